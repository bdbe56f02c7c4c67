package analyser

import (
	"time"

	"sshniff/dissect"
)

type Confidence string

// Tunnel and agent signatures are matched without a known protocol cause;
// their findings are always low confidence.
const ConfidenceLow Confidence = "low"

type FindingKind string

const (
	FindingReverseTunnel   FindingKind = "reverse-tunnel"
	FindingAgentForwarding FindingKind = "agent-forwarding"
)

// Finding is a best-effort pattern match.
type Finding struct {
	Kind       FindingKind    `json:"kind"`
	Confidence Confidence     `json:"confidence"`
	Anchor     DirectedPacket `json:"anchor"`
	// Offset is the time from the start of the stream to Anchor.
	Offset time.Duration `json:"offset"`
}

func newFinding(kind FindingKind, ordered []DirectedPacket, anchor DirectedPacket) *Finding {
	return &Finding{
		Kind:       kind,
		Confidence: ConfidenceLow,
		Anchor:     anchor.annotate(string(kind) + " (low confidence)"),
		Offset:     anchor.Timestamp.Sub(ordered[0].Timestamp),
	}
}

// ScanReverseTunnel looks for the packet shapes some clients produce right
// after a successful login when a remote forward (-R) is requested. Two
// variants are known, one mostly seen from macOS and one from Ubuntu.
func ScanReverseTunnel(ordered []DirectedPacket, prompt Length, th Thresholds) *Finding {
	n := len(ordered)
	for index := 0; index < n && index < th.TunnelWindow; index++ {
		if code, ok := ordered[index].messageCode(); !ok || code != dissect.MsgNewKeys {
			continue
		}
		// The first prompt sits at NEWKEYS+4.
		for offset := 4; index+offset+7 < n && offset < 20; offset++ {
			at := func(k int) Length { return ordered[index+offset+k].Length }
			if at(0) != prompt {
				continue
			}
			if at(2) == prompt {
				// Failed attempt, the next prompt follows.
				offset++
				continue
			}
			shrinking := at(6).Magnitude() < at(5).Magnitude()
			mac := at(3) > 0 && at(4) < 0 && at(4) != prompt && at(5) > 0 &&
				at(6) < 0 && at(6) != prompt && shrinking
			ubuntu := at(3) > 0 && at(4) > 0 && at(5) < 0 && at(5) != prompt &&
				at(6) < 0 && at(6) != prompt && shrinking && at(7) > 0
			if mac || ubuntu {
				return newFinding(FindingReverseTunnel, ordered, ordered[index+offset])
			}
		}
	}
	return nil
}

// ScanAgentForwarding looks for a client packet enclosed by two server
// packets on each side, shortly after NEWKEYS. Sessions without forwarding
// show this shape too.
func ScanAgentForwarding(ordered []DirectedPacket, newKeys int, th Thresholds) *Finding {
	for j := newKeys + th.AgentWindowStart; j <= newKeys+th.AgentWindowEnd; j++ {
		if j < 2 || j+2 >= len(ordered) {
			continue
		}
		if !ordered[j].Length.FromClient() {
			continue
		}
		if ordered[j-2].Length.FromServer() && ordered[j-1].Length.FromServer() &&
			ordered[j+1].Length.FromServer() && ordered[j+2].Length.FromServer() {
			return newFinding(FindingAgentForwarding, ordered, ordered[j])
		}
	}
	return nil
}
