package analyser

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

type KeystrokeKind int

const (
	KindKeystroke KeystrokeKind = iota
	KindDelete
	KindTab
	KindEnter
	KindArrowHorizontal
	KindArrowVertical
	KindUnknown
)

var kindNames = [...]string{"Keystroke", "Delete", "Tab", "Enter", "ArrowHorizontal", "ArrowVertical", "Unknown"}

func (k KeystrokeKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Invalid"
}

func (k KeystrokeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Keystroke is one inferred key press. Latency is relative to the previous
// keystroke of the same sequence and set by GroupSequences.
type Keystroke struct {
	Kind      KeystrokeKind
	Timestamp time.Time
	Latency   time.Duration
	// ResponseSize is the number of server bytes returned after an Enter.
	ResponseSize *uint64
	Seq          uint32
}

func (k Keystroke) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind         KeystrokeKind `json:"k_type"`
		Timestamp    time.Time     `json:"timestamp"`
		LatencyUS    int64         `json:"latency_us"`
		ResponseSize *uint64       `json:"response_size"`
		Seq          uint32        `json:"seq"`
	}{k.Kind, k.Timestamp, k.Latency.Microseconds(), k.ResponseSize, k.Seq})
}

func keystroke(kind KeystrokeKind, p DirectedPacket) Keystroke {
	return Keystroke{Kind: kind, Timestamp: p.Timestamp, Seq: p.Seq}
}

// sizing describes what a keystroke looks like on the wire. Without chaff
// key and echo are the calibrated size and slim is unused. With chaff, key
// is the fat size, slim and echo are half of it.
type sizing struct {
	key  Length
	slim Length
	echo Length
}

func (s sizing) isKey(l Length) bool {
	return l == s.key || (s.slim != 0 && l == s.slim)
}

// ScanKeystrokes classifies the packets from position from onwards using
// the calibrated keystroke size.
func ScanKeystrokes(ordered []DirectedPacket, size Length, from int, th Thresholds, log logrus.FieldLogger) []Keystroke {
	return scanKeystrokes(ordered, sizing{key: size, echo: size}, from, th, log)
}

// keyScan collects classified keystrokes and logs each one.
type keyScan struct {
	sz  sizing
	log logrus.FieldLogger
	out []Keystroke
}

func (s *keyScan) emit(k Keystroke, p DirectedPacket) {
	entry := s.log.WithFields(logrus.Fields{"seq": k.Seq, "index": p.Index, "length": p.Length, "kind": k.Kind})
	if k.ResponseSize != nil {
		entry = entry.WithField("response", *k.ResponseSize)
	}
	entry.Debug("keystroke")
	s.out = append(s.out, k)
}

func scanKeystrokes(packets []DirectedPacket, sz sizing, from int, th Thresholds, log logrus.FieldLogger) []Keystroke {
	s := &keyScan{sz: sz, log: log}
	n := len(packets)
	i := from
	for i+2 < n {
		curr, next, nextNext := packets[i], packets[i+1], packets[i+2]

		if curr.Length > sz.key && curr.Length <= sz.key+th.KeystrokeUpperBound {
			if next.Length == -sz.echo || next.Length == -curr.Length {
				s.emit(keystroke(KindArrowHorizontal, curr), curr)
				i = s.arrowRun(packets, i+2, curr.Length)
				continue
			}
			// History recall echoes vary too much to follow.
			s.emit(keystroke(KindArrowVertical, curr), curr)
			i += 2
			continue
		}
		if !sz.isKey(curr.Length) {
			i++
			continue
		}

		switch {
		case next.Length == -sz.echo && (sz.isKey(nextNext.Length) || nextNext.Length == sz.key+th.EchoPadding):
			s.emit(keystroke(KindKeystroke, curr), curr)
		case next.Length == -(sz.echo+th.EchoPadding) && sz.isKey(nextNext.Length):
			// Ctrl-A and Ctrl-E produce the same pattern.
			s.emit(keystroke(KindDelete, curr), curr)
		case next.Length < -(sz.echo+th.EchoPadding) && sz.isKey(nextNext.Length):
			s.emit(keystroke(KindTab, curr), curr)
		case next.Length <= -sz.echo && nextNext.Length <= -sz.echo && len(s.out) > 0:
			k := keystroke(KindEnter, curr)
			var response uint64
			end := i + 2
			for end < n && packets[end].Length.FromServer() {
				response += uint64(packets[end].Length.Magnitude())
				end++
			}
			k.ResponseSize = &response
			s.emit(k, curr)
			i = end
			continue
		}
		i += 2
	}
	return s.out
}

// arrowRun classifies the pairs following a horizontal arrow until the
// command is sent, which shows as server packets two positions ahead. Once
// the cursor has moved, a retyped character and a deletion look the same.
func (s *keyScan) arrowRun(packets []DirectedPacket, i int, arrow Length) int {
	for i+2 < len(packets) && !packets[i+2].Length.FromServer() {
		curr, next := packets[i], packets[i+1]
		switch {
		case s.sz.isKey(curr.Length) && next.Length <= -arrow:
			s.emit(keystroke(KindUnknown, curr), curr)
		case curr.Length == arrow:
			s.emit(keystroke(KindArrowHorizontal, curr), curr)
		case s.sz.isKey(curr.Length) && next.Length == -s.sz.echo:
			s.emit(keystroke(KindKeystroke, curr), curr)
		}
		i += 2
	}
	return i
}
