// Package dissect turns an offline packet capture into per-stream TCP
// segment records with the plaintext SSH fields decoded.
package dissect

import (
	"net"
	"time"
)

// SSH transport message codes referenced by the analyser.
const (
	MsgKexInit uint8 = 20
	MsgNewKeys uint8 = 21
)

// Packet is one captured TCP segment carrying payload.
type Packet struct {
	// Number is the 1-based frame number within the capture file.
	Number    int
	Timestamp time.Time

	Network *Network
	TCP     *TCP
	SSH     *SSH
}

type Network struct {
	Src net.IP
	Dst net.IP
}

type TCP struct {
	Stream  uint32
	SrcPort uint16
	DstPort uint16
	// Seq is relative to the initial sequence number of the sending side.
	Seq uint32
	Len int
}

// SSH holds the fields decoded for a segment of an SSH stream. Segments sent
// after NEWKEYS in their direction are Encrypted and carry nothing else.
type SSH struct {
	Protocol  string
	Messages  []uint8
	KexInit   *KexInit
	Encrypted bool
}

// KexInit carries the name-lists of an SSH_MSG_KEXINIT, comma separated as
// they appear on the wire.
type KexInit struct {
	KexAlgorithms             string
	ServerHostKeyAlgorithms   string
	EncryptionClientToServer  string
	EncryptionServerToClient  string
	MACClientToServer         string
	MACServerToClient         string
	CompressionClientToServer string
	CompressionServerToClient string
}

// MessageCode returns the code of the first SSH message completed in the
// segment.
func (p *Packet) MessageCode() (uint8, bool) {
	if p == nil || p.SSH == nil || len(p.SSH.Messages) == 0 {
		return 0, false
	}
	return p.SSH.Messages[0], true
}

// Banner returns the identification string carried by the segment, if any.
func (p *Packet) Banner() (string, bool) {
	if p == nil || p.SSH == nil || p.SSH.Protocol == "" {
		return "", false
	}
	return p.SSH.Protocol, true
}
