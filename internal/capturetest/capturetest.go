// Package capturetest builds small synthetic SSH captures for tests.
package capturetest

import (
	"bytes"
	"encoding/binary"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Endpoint defaults mirror a LAN session against a Raspberry Pi.
var (
	DefaultClientIP = net.IPv4(192, 168, 0, 212)
	DefaultServerIP = net.IPv4(192, 168, 0, 45)
)

const (
	DefaultClientPort = 50502
	DefaultServerPort = 22
)

type frame struct {
	at         time.Time
	fromClient bool
	syn, ack   bool
	seq        uint32
	payload    []byte
}

// Builder records TCP segments of a single connection.
type Builder struct {
	ClientIP   net.IP
	ServerIP   net.IP
	ClientPort uint16
	ServerPort uint16

	now    time.Time
	seq    [2]uint32
	frames []frame
}

func New(start time.Time) *Builder {
	return &Builder{
		ClientIP:   DefaultClientIP,
		ServerIP:   DefaultServerIP,
		ClientPort: DefaultClientPort,
		ServerPort: DefaultServerPort,
		now:        start,
		seq:        [2]uint32{1000, 5000},
	}
}

func side(fromClient bool) int {
	if fromClient {
		return 0
	}
	return 1
}

// Handshake records the SYN and SYN/ACK of the connection.
func (b *Builder) Handshake() *Builder {
	for _, fromClient := range []bool{true, false} {
		s := side(fromClient)
		b.frames = append(b.frames, frame{at: b.now, fromClient: fromClient, syn: true, ack: !fromClient, seq: b.seq[s]})
		b.seq[s]++
		b.now = b.now.Add(time.Millisecond)
	}
	return b
}

func (b *Builder) send(fromClient bool, gap time.Duration, payload []byte) *Builder {
	b.now = b.now.Add(gap)
	s := side(fromClient)
	b.frames = append(b.frames, frame{at: b.now, fromClient: fromClient, ack: true, seq: b.seq[s], payload: payload})
	b.seq[s] += uint32(len(payload))
	return b
}

// Client records a client to server segment sent gap after the previous one.
func (b *Builder) Client(gap time.Duration, payload []byte) *Builder {
	return b.send(true, gap, payload)
}

// Server records a server to client segment sent gap after the previous one.
func (b *Builder) Server(gap time.Duration, payload []byte) *Builder {
	return b.send(false, gap, payload)
}

// Retransmit repeats the last recorded segment.
func (b *Builder) Retransmit(gap time.Duration) *Builder {
	last := b.frames[len(b.frames)-1]
	b.now = b.now.Add(gap)
	last.at = b.now
	b.frames = append(b.frames, last)
	return b
}

// Lengths records one opaque segment per entry; positive lengths are sent by
// the client, negative ones by the server.
func (b *Builder) Lengths(gap time.Duration, lengths ...int) *Builder {
	for _, l := range lengths {
		if l > 0 {
			b.Client(gap, Opaque(l))
		} else {
			b.Server(gap, Opaque(-l))
		}
	}
	return b
}

// Command records a command typed without editing: every character and the
// return key as a size byte packet echoed back, then the server output.
func (b *Builder) Command(gap time.Duration, size int, command string, output ...int) *Builder {
	for range command {
		b.Lengths(gap, size, -size)
	}
	b.Lengths(gap, size, -size)
	for _, l := range output {
		b.Lengths(gap, -l)
	}
	return b
}

// Bytes renders the capture in classic pcap format.
func (b *Builder) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return nil, err
	}
	if err := b.each(w.WritePacket); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NgBytes renders the capture in pcapng format.
func (b *Builder) NgBytes() ([]byte, error) {
	var buf bytes.Buffer
	w, err := pcapgo.NewNgWriter(&buf, layers.LinkTypeEthernet)
	if err != nil {
		return nil, err
	}
	if err := b.each(w.WritePacket); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (b *Builder) each(write func(gopacket.CaptureInfo, []byte) error) error {
	clientMAC := net.HardwareAddr{0x02, 0, 0, 0, 0, 0x01}
	serverMAC := net.HardwareAddr{0x02, 0, 0, 0, 0, 0x02}
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	for _, f := range b.frames {
		eth := &layers.Ethernet{SrcMAC: clientMAC, DstMAC: serverMAC, EthernetType: layers.EthernetTypeIPv4}
		ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP, SrcIP: b.ClientIP, DstIP: b.ServerIP}
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(b.ClientPort),
			DstPort: layers.TCPPort(b.ServerPort),
			Seq:     f.seq,
			SYN:     f.syn,
			ACK:     f.ack,
			PSH:     len(f.payload) > 0,
			Window:  502,
		}
		if !f.fromClient {
			eth.SrcMAC, eth.DstMAC = serverMAC, clientMAC
			ip.SrcIP, ip.DstIP = b.ServerIP, b.ClientIP
			tcp.SrcPort, tcp.DstPort = tcp.DstPort, tcp.SrcPort
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return err
		}

		sb := gopacket.NewSerializeBuffer()
		if err := gopacket.SerializeLayers(sb, opts, eth, ip, tcp, gopacket.Payload(f.payload)); err != nil {
			return err
		}
		data := sb.Bytes()
		ci := gopacket.CaptureInfo{Timestamp: f.at, CaptureLength: len(data), Length: len(data)}
		if err := write(ci, data); err != nil {
			return err
		}
	}
	return nil
}

// Banner returns an identification line.
func Banner(version string) []byte {
	return []byte(version + "\r\n")
}

// Packet wraps an SSH payload into an unencrypted binary packet padded to an
// 8 byte boundary.
func Packet(payload []byte) []byte {
	padding := 8 - (5+len(payload))%8
	if padding < 4 {
		padding += 8
	}
	out := make([]byte, 5, 5+len(payload)+padding)
	binary.BigEndian.PutUint32(out, uint32(1+len(payload)+padding))
	out[4] = byte(padding)
	out = append(out, payload...)
	return append(out, make([]byte, padding)...)
}

// Message returns a binary packet whose payload is code followed by body.
func Message(code uint8, body ...byte) []byte {
	return Packet(append([]byte{code}, body...))
}

// KexInit returns a binary packet holding an SSH_MSG_KEXINIT with the given
// name-lists: kex, host key, enc c2s, enc s2c, mac c2s, mac s2c, cmp c2s,
// cmp s2c.
func KexInit(lists [8]string) []byte {
	payload := []byte{20}
	payload = append(payload, make([]byte, 16)...)
	all := append(lists[:], "", "")
	for _, l := range all {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(l)))
		payload = append(payload, n[:]...)
		payload = append(payload, l...)
	}
	payload = append(payload, 0, 0, 0, 0, 0)
	return Packet(payload)
}

// Opaque returns n bytes that look like ciphertext.
func Opaque(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*31+7) | 0x80
	}
	return out
}

// Join concatenates several SSH packets into one segment payload.
func Join(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

// Algorithm lists of an OpenSSH 9.6 client and an OpenSSH 8.4 server.
var (
	ClientKexInit = [8]string{
		"curve25519-sha256,curve25519-sha256@libssh.org,ecdh-sha2-nistp256,ext-info-c",
		"ssh-ed25519,rsa-sha2-512",
		"chacha20-poly1305@openssh.com,aes128-ctr,aes256-gcm@openssh.com",
		"chacha20-poly1305@openssh.com,aes128-ctr,aes256-gcm@openssh.com",
		"umac-64-etm@openssh.com,hmac-sha2-256-etm@openssh.com,hmac-sha2-256",
		"umac-64-etm@openssh.com,hmac-sha2-256-etm@openssh.com,hmac-sha2-256",
		"none,zlib@openssh.com",
		"none,zlib@openssh.com",
	}
	ServerKexInit = [8]string{
		"curve25519-sha256,curve25519-sha256@libssh.org,diffie-hellman-group14-sha256",
		"rsa-sha2-512,ssh-ed25519",
		"chacha20-poly1305@openssh.com,aes128-ctr",
		"chacha20-poly1305@openssh.com,aes128-ctr",
		"umac-64-etm@openssh.com,hmac-sha2-256",
		"umac-64-etm@openssh.com,hmac-sha2-256",
		"none,zlib@openssh.com",
		"none,zlib@openssh.com",
	}
)

const (
	ClientBanner = "SSH-2.0-OpenSSH_9.6"
	ServerBanner = "SSH-2.0-OpenSSH_8.4p1 Raspbian-5+deb11u3"

	// MD5 over kex;enc;mac;cmp of the lists above.
	ClientHASSH = "e3d3ac08ee840720f36e4eb6e057bdbb"
	ServerHASSH = "7e099a9383e2050a2d9b5c303c993622"
)

// KeyExchange records the banner exchange and the unencrypted key exchange
// up to and including the client's NEWKEYS.
func (b *Builder) KeyExchange(client, server string) *Builder {
	ms := time.Millisecond
	return b.
		Client(ms, Banner(client)).
		Server(ms, Banner(server)).
		Client(ms, KexInit(ClientKexInit)).
		Server(ms, KexInit(ServerKexInit)).
		Client(ms, Message(30, Opaque(36)...)).
		Server(ms, Join(Message(31, Opaque(200)...), Message(21))).
		Client(ms, Message(21))
}

// LoginSession records a full session: key exchange, an accepted RSA key
// that is not used, a rejected ED25519 key, a correct password and the
// commands "ls", "id" and "exit". The echo of "i" is captured after "d" was
// already sent.
//
// Positions of the segments carrying payload: NEWKEYS 6, first prompt 10,
// login success 16. Keystroke size 36, prompt size -52.
func LoginSession(start time.Time) *Builder {
	ms := time.Millisecond
	b := New(start).Handshake().KeyExchange(ClientBanner, ServerBanner)
	b.Lengths(ms, 44, -44, 68, -52)
	b.Lengths(5*ms, 500, -100, 144, -52, 100, -28)
	b.Lengths(ms, -600, -100)

	typing := 150 * ms
	b.Lengths(typing, 36, -36, 36, -36, 36, -36, -400, -80)
	b.Lengths(typing, 36, 36, -36, -36, 36, -36, -300, -80)
	b.Lengths(typing, 36, -36, 36, -36, 36, -36, 36, -36, 36, -36, -60)
	return b
}
