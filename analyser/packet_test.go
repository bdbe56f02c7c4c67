package analyser

import (
	"errors"
	"testing"

	"sshniff/dissect"
)

func TestProject(t *testing.T) {
	raw := []*dissect.Packet{
		{TCP: &dissect.TCP{SrcPort: 50502, DstPort: 22, Seq: 1, Len: 36}},
		{TCP: &dissect.TCP{SrcPort: 22, DstPort: 50502, Seq: 1, Len: 36}},
		{TCP: &dissect.TCP{SrcPort: 50502, DstPort: 22, Seq: 37, Len: 0}},
	}
	got, err := Project(raw)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if len(got) != len(raw) {
		t.Fatalf("got %d packets, want %d", len(got), len(raw))
	}
	want := []Length{36, -36, 0}
	for i, p := range got {
		if p.Length != want[i] {
			t.Errorf("packet %d length = %d, want %d", i, p.Length, want[i])
		}
		if p.Index != i || p.Raw != raw[i] {
			t.Errorf("packet %d not mapped in order", i)
		}
	}
	if got[1].Length.Direction() != ServerToClient || got[0].Length.Direction() != ClientToServer {
		t.Error("unexpected directions")
	}
	if got[1].Length.Magnitude() != 36 {
		t.Errorf("magnitude = %d", got[1].Length.Magnitude())
	}
}

func TestProjectMissingTCP(t *testing.T) {
	for name, raw := range map[string][]*dissect.Packet{
		"nil packet": {nil},
		"no tcp":     {{TCP: &dissect.TCP{Len: 4}}, {}},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := Project(raw); !errors.Is(err, ErrNoTCPLayer) {
				t.Errorf("err = %v, want ErrNoTCPLayer", err)
			}
		})
	}
}
