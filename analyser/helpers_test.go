package analyser

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"sshniff/dissect"
)

var epoch = time.Date(2024, 3, 14, 9, 30, 0, 0, time.UTC)

// directed builds packets 10ms apart from signed lengths.
func directed(lengths ...int) []DirectedPacket {
	out := make([]DirectedPacket, len(lengths))
	for i, l := range lengths {
		out[i] = DirectedPacket{
			Index:     i,
			Seq:       uint32(1 + i*100),
			Length:    Length(l),
			Timestamp: epoch.Add(time.Duration(i) * 10 * time.Millisecond),
		}
	}
	return out
}

// quiet returns a logger that discards everything.
func quiet() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

// withCode marks packet i as carrying the given SSH message code.
func withCode(packets []DirectedPacket, i int, code uint8) []DirectedPacket {
	packets[i].Raw = &dissect.Packet{SSH: &dissect.SSH{Messages: []uint8{code}}}
	return packets
}

func lengthsOf(packets []DirectedPacket) []Length {
	out := make([]Length, len(packets))
	for i, p := range packets {
		out[i] = p.Length
	}
	return out
}

func kindsOf(keys []Keystroke) []KeystrokeKind {
	out := make([]KeystrokeKind, len(keys))
	for i, k := range keys {
		out[i] = k.Kind
	}
	return out
}
