package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"sshniff/analyser"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.JSON {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if !reflect.DeepEqual(cfg.Thresholds(), analyser.DefaultThresholds()) {
		t.Error("thresholds differ from the analyser defaults")
	}

	empty, err := Decode(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Decode empty: %v", err)
	}
	if !reflect.DeepEqual(empty, cfg) {
		t.Errorf("empty document = %+v", empty)
	}
}

func TestOverrides(t *testing.T) {
	doc := `
logging:
  level: debug
  json: true
analysis:
  reorder_window: 12
  echo_padding: 16
  chaff_gap: 50ms
  agent_window: [10, 14]
  login_success_sizes: [28, 36, 44]
  key_bands:
    - {key: RSA, min: 490, max: 520}
  obfuscation_markers: ["OpenSSH_9.9"]
`
	path := filepath.Join(t.TempDir(), "sshniff.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Errorf("logging = %+v", cfg.Logging)
	}

	th := cfg.Thresholds()
	def := analyser.DefaultThresholds()
	if th.ReorderWindow != 12 || th.EchoPadding != 16 || th.ChaffGap != 50*time.Millisecond {
		t.Errorf("overrides not applied: %+v", th)
	}
	if th.AgentWindowStart != 10 || th.AgentWindowEnd != 14 {
		t.Errorf("agent window = %d-%d", th.AgentWindowStart, th.AgentWindowEnd)
	}
	if !reflect.DeepEqual(th.LoginSuccessSizes, []analyser.Length{28, 36, 44}) {
		t.Errorf("login sizes = %v", th.LoginSuccessSizes)
	}
	if len(th.KeyBands) != 1 || th.KeyBands[0] != (analyser.KeyBand{Key: analyser.KeyRSA, Min: 490, Max: 520}) {
		t.Errorf("key bands = %+v", th.KeyBands)
	}
	if th.LoginWindow != def.LoginWindow || th.KeystrokeUpperBound != def.KeystrokeUpperBound {
		t.Error("unset fields changed")
	}
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown key", "analysis:\n  reorder: 3\n", "not found"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"zero window", "analysis:\n  login_window: 0\n", "login_window"},
		{"agent window", "analysis:\n  agent_window: [22, 18]\n", "agent_window"},
		{"key band", "analysis:\n  key_bands:\n    - {key: RSA, min: 500, max: 400}\n", "key_bands[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file loaded")
	}
}
