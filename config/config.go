// Package config reads the optional YAML configuration of sshniff.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"sshniff/analyser"
)

type Config struct {
	Logging  Logging  `yaml:"logging"`
	Analysis Analysis `yaml:"analysis"`
}

type Logging struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Analysis overrides analyser thresholds. Unset fields keep their default.
type Analysis struct {
	KeystrokeUpperBound *int `yaml:"keystroke_upper_bound"`
	EchoPadding         *int `yaml:"echo_padding"`

	ReorderWindow   *int `yaml:"reorder_window"`
	LoginWindow     *int `yaml:"login_window"`
	BootstrapWindow *int `yaml:"bootstrap_window"`
	HostKeyWindow   *int `yaml:"hostkey_window"`
	TunnelWindow    *int `yaml:"tunnel_window"`
	FallbackOffset  *int `yaml:"fallback_offset"`
	FallbackRun     *int `yaml:"fallback_run"`

	AgentWindow []int `yaml:"agent_window,flow"`

	ChaffGap *time.Duration `yaml:"chaff_gap"`

	LoginSuccessSizes  []int              `yaml:"login_success_sizes,flow"`
	KeyBands           []analyser.KeyBand `yaml:"key_bands"`
	ObfuscationMarkers []string           `yaml:"obfuscation_markers"`
}

func Default() *Config {
	return &Config{Logging: Logging{Level: "info"}}
}

// Load reads the file at path. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}
	defer file.Close()

	cfg, err := Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses a configuration document. Unknown keys are rejected.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	a := c.Analysis
	for name, v := range map[string]*int{
		"reorder_window":   a.ReorderWindow,
		"login_window":     a.LoginWindow,
		"bootstrap_window": a.BootstrapWindow,
		"hostkey_window":   a.HostKeyWindow,
		"tunnel_window":    a.TunnelWindow,
		"fallback_run":     a.FallbackRun,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("analysis.%s must be positive, got %d", name, *v)
		}
	}
	if a.FallbackOffset != nil && *a.FallbackOffset < 0 {
		return fmt.Errorf("analysis.fallback_offset must not be negative")
	}
	if a.AgentWindow != nil && (len(a.AgentWindow) != 2 || a.AgentWindow[0] > a.AgentWindow[1]) {
		return fmt.Errorf("analysis.agent_window must be [start, end], got %v", a.AgentWindow)
	}
	if a.ChaffGap != nil && *a.ChaffGap <= 0 {
		return fmt.Errorf("analysis.chaff_gap must be positive")
	}
	for i, b := range a.KeyBands {
		if b.Key == "" || b.Min > b.Max {
			return fmt.Errorf("analysis.key_bands[%d]: invalid band %s %d-%d", i, b.Key, b.Min, b.Max)
		}
	}
	return nil
}

// Thresholds returns the analyser defaults with the configured overrides
// applied.
func (c *Config) Thresholds() analyser.Thresholds {
	th := analyser.DefaultThresholds()
	a := c.Analysis

	setLength := func(dst *analyser.Length, v *int) {
		if v != nil {
			*dst = analyser.Length(*v)
		}
	}
	setInt := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
		}
	}
	setLength(&th.KeystrokeUpperBound, a.KeystrokeUpperBound)
	setLength(&th.EchoPadding, a.EchoPadding)
	setInt(&th.ReorderWindow, a.ReorderWindow)
	setInt(&th.LoginWindow, a.LoginWindow)
	setInt(&th.BootstrapWindow, a.BootstrapWindow)
	setInt(&th.HostKeyWindow, a.HostKeyWindow)
	setInt(&th.TunnelWindow, a.TunnelWindow)
	setInt(&th.FallbackOffset, a.FallbackOffset)
	setInt(&th.FallbackRun, a.FallbackRun)

	if len(a.AgentWindow) == 2 {
		th.AgentWindowStart, th.AgentWindowEnd = a.AgentWindow[0], a.AgentWindow[1]
	}
	if a.ChaffGap != nil {
		th.ChaffGap = *a.ChaffGap
	}
	if a.LoginSuccessSizes != nil {
		th.LoginSuccessSizes = make([]analyser.Length, len(a.LoginSuccessSizes))
		for i, s := range a.LoginSuccessSizes {
			th.LoginSuccessSizes[i] = analyser.Length(s)
		}
	}
	if a.KeyBands != nil {
		th.KeyBands = append([]analyser.KeyBand(nil), a.KeyBands...)
	}
	if a.ObfuscationMarkers != nil {
		th.ObfuscationMarkers = append([]string(nil), a.ObfuscationMarkers...)
	}
	return th
}
