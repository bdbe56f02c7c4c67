package dissect

import (
	"bytes"
	"strings"

	"golang.org/x/crypto/cryptobyte"
)

const (
	// RFC 4253 section 6.1 requires support for packets of this size; anything
	// larger in the plaintext phase means we are looking at ciphertext.
	maxPacketLength = 35000
	maxBannerLength = 255
	bannerPrefix    = "SSH-"
)

// sshParser follows one direction of an SSH connection through the banner
// exchange and the unencrypted binary packets up to NEWKEYS.
type sshParser struct {
	bannerSeen bool
	encrypted  bool
	buf        []byte
}

func (p *sshParser) feed(payload []byte) *SSH {
	if p.encrypted {
		return &SSH{Encrypted: true}
	}
	p.buf = append(p.buf, payload...)
	out := &SSH{}

	if !p.bannerSeen {
		if !p.readBanner(out) {
			if p.encrypted {
				out.Encrypted = true
			}
			return out
		}
	}

	for !p.encrypted {
		code, body, ok := p.nextPacket()
		if !ok {
			break
		}
		out.Messages = append(out.Messages, code)
		switch code {
		case MsgKexInit:
			if kex, ok := parseKexInit(body); ok {
				out.KexInit = kex
			}
		case MsgNewKeys:
			p.encrypted = true
			p.buf = nil
		}
	}
	return out
}

// readBanner consumes lines until the identification string is found. It
// reports false while the banner is still incomplete.
func (p *sshParser) readBanner(out *SSH) bool {
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			if len(p.buf) > maxBannerLength || (len(p.buf) > 0 && !printable(p.buf)) {
				// Capture started after the handshake.
				p.encrypted = true
				p.buf = nil
			}
			return false
		}
		line := p.buf[:idx]
		p.buf = p.buf[idx+1:]
		if bytes.HasPrefix(line, []byte(bannerPrefix)) {
			out.Protocol = strings.TrimRight(string(line), "\r")
			p.bannerSeen = true
			return true
		}
		if !printable(line) {
			p.encrypted = true
			p.buf = nil
			return false
		}
	}
}

// nextPacket pops one complete binary packet off the buffer and returns its
// message code and the payload that follows the code.
func (p *sshParser) nextPacket() (uint8, cryptobyte.String, bool) {
	peek := cryptobyte.String(p.buf)
	var length uint32
	if !peek.ReadUint32(&length) {
		return 0, nil, false
	}
	if length < 5 || length > maxPacketLength {
		p.encrypted = true
		p.buf = nil
		return 0, nil, false
	}

	s := cryptobyte.String(p.buf)
	var packet cryptobyte.String
	if !readUint32Prefixed(&s, &packet) {
		return 0, nil, false
	}
	p.buf = []byte(s)

	var padding uint8
	if !packet.ReadUint8(&padding) || int(padding) >= len(packet) {
		p.encrypted = true
		p.buf = nil
		return 0, nil, false
	}
	payload := packet[:len(packet)-int(padding)]
	var code uint8
	if !payload.ReadUint8(&code) {
		return 0, nil, false
	}
	return code, payload, true
}

// readUint32Prefixed reads a uint32 length followed by that many bytes.
// cryptobyte only ships 8, 16 and 24 bit prefixed readers.
func readUint32Prefixed(s *cryptobyte.String, out *cryptobyte.String) bool {
	var n uint32
	var b []byte
	if !s.ReadUint32(&n) || !s.ReadBytes(&b, int(n)) {
		return false
	}
	*out = b
	return true
}

// parseKexInit reads the name-lists that follow the message code and cookie.
func parseKexInit(body cryptobyte.String) (*KexInit, bool) {
	if !body.Skip(16) {
		return nil, false
	}
	var lists [8]string
	for i := range lists {
		var list cryptobyte.String
		if !readUint32Prefixed(&body, &list) {
			return nil, false
		}
		lists[i] = string(list)
	}
	return &KexInit{
		KexAlgorithms:             lists[0],
		ServerHostKeyAlgorithms:   lists[1],
		EncryptionClientToServer:  lists[2],
		EncryptionServerToClient:  lists[3],
		MACClientToServer:         lists[4],
		MACServerToClient:         lists[5],
		CompressionClientToServer: lists[6],
		CompressionServerToClient: lists[7],
	}, true
}

func printable(b []byte) bool {
	for _, c := range b {
		if c == '\r' || c == '\t' {
			continue
		}
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
