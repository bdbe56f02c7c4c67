package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "warn", true)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	entry := ForStream(ForRun(log, "run-1"), "a.pcap", 3)
	entry.Info("hidden")
	entry.Warn("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &fields); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if fields["msg"] != "shown" || fields["run"] != "run-1" || fields["file"] != "a.pcap" || fields["stream"] != float64(3) {
		t.Errorf("fields = %v", fields)
	}
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(&buf, "debug", false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.WithField("stream", 1).Debug("calibrated")
	if out := buf.String(); !strings.Contains(out, "level=debug") || !strings.Contains(out, "stream=1") {
		t.Errorf("output = %q", out)
	}

	if _, err := New(&buf, "verbose", false); err == nil {
		t.Error("unknown level accepted")
	}
}
