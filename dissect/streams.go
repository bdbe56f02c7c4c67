package dissect

import (
	"bytes"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
)

type flowKey struct {
	network   gopacket.Flow
	transport gopacket.Flow
}

func (k flowKey) reverse() flowKey {
	return flowKey{network: k.network.Reverse(), transport: k.transport.Reverse()}
}

type segment struct {
	seq    uint32
	length int
}

// halfConn is one direction of a TCP connection.
type halfConn struct {
	baseKnown bool
	base      uint32
	seen      map[segment]struct{}
	parser    sshParser
}

type conn struct {
	id     uint32
	half   [2]*halfConn
	ssh    bool
	stream *Stream
}

// streamTable numbers connections in order of first appearance, the same way
// Wireshark assigns tcp.stream.
type streamTable struct {
	conns map[flowKey]*conn
	next  uint32
}

func newStreamTable() *streamTable {
	return &streamTable{conns: make(map[flowKey]*conn)}
}

func (t *streamTable) lookup(key flowKey) (*conn, int) {
	if c, ok := t.conns[key]; ok {
		return c, 0
	}
	if c, ok := t.conns[key.reverse()]; ok {
		return c, 1
	}
	c := &conn{
		id:     t.next,
		half:   [2]*halfConn{{seen: make(map[segment]struct{})}, {seen: make(map[segment]struct{})}},
		stream: &Stream{ID: t.next},
	}
	t.next++
	t.conns[key] = c
	return c, 0
}

func (t *streamTable) add(number int, packet gopacket.Packet, log logrus.FieldLogger) {
	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	netLayer := packet.NetworkLayer()
	if tcpLayer == nil || netLayer == nil {
		return
	}
	tcp := tcpLayer.(*layers.TCP)

	c, dir := t.lookup(flowKey{network: netLayer.NetworkFlow(), transport: tcp.TransportFlow()})
	half := c.half[dir]
	if tcp.SYN {
		half.base = tcp.Seq
		half.baseKnown = true
	}

	payload := tcp.Payload
	if len(payload) == 0 {
		return
	}
	if !half.baseKnown {
		half.base = tcp.Seq - 1
		half.baseKnown = true
	}

	seg := segment{seq: tcp.Seq, length: len(payload)}
	if _, dup := half.seen[seg]; dup {
		log.WithFields(logrus.Fields{"frame": number, "stream": c.id}).Debug("dropping retransmission")
		return
	}
	half.seen[seg] = struct{}{}

	if !c.ssh {
		if !bytes.HasPrefix(payload, []byte(bannerPrefix)) && tcp.SrcPort != SSHPort && tcp.DstPort != SSHPort {
			return
		}
		c.ssh = true
	}

	var src, dst net.IP
	switch ip := netLayer.(type) {
	case *layers.IPv4:
		src, dst = ip.SrcIP, ip.DstIP
	case *layers.IPv6:
		src, dst = ip.SrcIP, ip.DstIP
	}

	c.stream.Packets = append(c.stream.Packets, &Packet{
		Number:    number,
		Timestamp: packet.Metadata().Timestamp,
		Network:   &Network{Src: src, Dst: dst},
		TCP: &TCP{
			Stream:  c.id,
			SrcPort: uint16(tcp.SrcPort),
			DstPort: uint16(tcp.DstPort),
			Seq:     tcp.Seq - half.base,
			Len:     len(payload),
		},
		SSH: half.parser.feed(payload),
	})
}

func (t *streamTable) result() map[uint32]*Stream {
	out := make(map[uint32]*Stream)
	for _, c := range t.conns {
		if c.ssh && len(c.stream.Packets) > 0 {
			out[c.id] = c.stream
		}
	}
	return out
}
