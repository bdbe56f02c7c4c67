// Package analyser infers SSH session metadata, authentication events and
// keystrokes from the sizes, directions and timing of encrypted packets.
package analyser

import (
	"fmt"
	"time"

	"sshniff/dissect"
)

// Length is a TCP payload length signed by direction: positive for client to
// server, negative for server to client.
type Length int

type Direction int

const (
	ClientToServer Direction = iota
	ServerToClient
)

func (d Direction) String() string {
	if d == ServerToClient {
		return "server->client"
	}
	return "client->server"
}

func (l Length) Direction() Direction {
	if l < 0 {
		return ServerToClient
	}
	return ClientToServer
}

func (l Length) Magnitude() int {
	if l < 0 {
		return int(-l)
	}
	return int(l)
}

func (l Length) FromClient() bool { return l > 0 }
func (l Length) FromServer() bool { return l < 0 }

// DirectedPacket is the unit every scan works on.
type DirectedPacket struct {
	// Index is the position of the packet in the stream as captured.
	Index      int             `json:"index"`
	Seq        uint32          `json:"seq"`
	Length     Length          `json:"length"`
	Timestamp  time.Time       `json:"timestamp"`
	Annotation string          `json:"annotation,omitempty"`
	Raw        *dissect.Packet `json:"-"`
}

func (p DirectedPacket) annotate(label string) DirectedPacket {
	p.Annotation = label
	return p
}

func (p DirectedPacket) messageCode() (uint8, bool) {
	return p.Raw.MessageCode()
}

// Project maps the dissected packets of one stream to directed packets, one
// for one and in order. The side with the higher port is the client.
func Project(raw []*dissect.Packet) ([]DirectedPacket, error) {
	out := make([]DirectedPacket, 0, len(raw))
	for i, p := range raw {
		if p == nil || p.TCP == nil {
			return nil, fmt.Errorf("packet %d: %w", i, ErrNoTCPLayer)
		}
		l := Length(p.TCP.Len)
		if p.TCP.DstPort > p.TCP.SrcPort {
			l = -l
		}
		out = append(out, DirectedPacket{
			Index:     i,
			Seq:       p.TCP.Seq,
			Length:    l,
			Timestamp: p.Timestamp,
			Raw:       p,
		})
	}
	return out, nil
}
