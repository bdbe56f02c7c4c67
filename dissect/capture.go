package dissect

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/sirupsen/logrus"
)

const pcapngMagic = 0x0A0D0D0A

// SSHPort is the port a stream must touch to be decoded as SSH when its
// banner exchange was not captured.
const SSHPort = 22

// Stream is the list of SSH segments of one TCP connection, in capture order.
type Stream struct {
	ID      uint32
	Packets []*Packet
}

// Capture is the decoded content of a capture file.
type Capture struct {
	Path    string
	Frames  int
	streams map[uint32]*Stream
}

// Open reads a pcap or pcapng file from disk.
func Open(path string, log logrus.FieldLogger) (*Capture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	c, err := Read(f, log)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	c.Path = path
	return c, nil
}

// Read decodes a capture from r. The file format is picked from the magic
// number.
func Read(r io.Reader, log logrus.FieldLogger) (*Capture, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}

	var (
		source gopacket.PacketDataSource
		link   layers.LinkType
	)
	if binary.LittleEndian.Uint32(magic) == pcapngMagic {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, err
		}
		source, link = ng, ng.LinkType()
	} else {
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			return nil, err
		}
		source, link = pr, pr.LinkType()
	}

	packetSource := gopacket.NewPacketSource(source, link)
	packetSource.DecodeOptions = gopacket.DecodeOptions{Lazy: true}

	table := newStreamTable()
	frames := 0
	for {
		packet, err := packetSource.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			log.WithField("frame", frames+1).Warn("capture truncated")
			break
		}
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", frames+1, err)
		}
		frames++
		table.add(frames, packet, log)
	}
	log.WithField("frames", frames).Debug("capture decoded")

	return &Capture{Frames: frames, streams: table.result()}, nil
}

// Streams returns the SSH streams ordered by ID. A negative id selects all of
// them, otherwise only the stream with that ID is returned.
func (c *Capture) Streams(id int) []*Stream {
	var out []*Stream
	for sid, s := range c.streams {
		if id >= 0 && sid != uint32(id) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
