package analyser

import (
	"crypto/md5"
	"encoding/hex"
	"net"
	"strconv"
	"strings"

	"sshniff/dissect"
)

const (
	labelNewKeys   = "New Keys (21)"
	labelIndicator = "Keystroke Size Indicator"
	labelPrompt    = "First login prompt"
)

// Calibration holds the per-session sizes derived from the key exchange.
type Calibration struct {
	NewKeysIndex  int    `json:"new_keys_index"`
	KeystrokeSize Length `json:"keystroke_size"`
	PromptSize    Length `json:"prompt_size"`
	Obfuscated    bool   `json:"obfuscated"`
	// FallbackSize is the brute force estimate, zero when none was found.
	FallbackSize Length `json:"fallback_size,omitempty"`

	// Markers are the NEWKEYS, indicator and first prompt packets.
	Markers []DirectedPacket `json:"-"`
}

// FindNewKeys locates the first NEWKEYS within the bootstrap window and
// derives the keystroke size from the next two packets and the prompt size
// from the fourth.
func FindNewKeys(packets []DirectedPacket, th Thresholds) (Calibration, error) {
	for i, p := range packets {
		if i >= th.BootstrapWindow {
			break
		}
		if code, ok := p.messageCode(); !ok || code != dissect.MsgNewKeys {
			continue
		}
		if i+4 >= len(packets) {
			return Calibration{}, calibrationErr(ScanNewKeys, "not enough packets following NEWKEYS at %d", i)
		}
		first, second := packets[i+1].Length.Magnitude(), packets[i+2].Length.Magnitude()
		if first != second {
			return Calibration{}, &InvariantError{
				Scan:   ScanNewKeys,
				Reason: "packets after NEWKEYS differ: " + strconv.Itoa(first) + " != " + strconv.Itoa(second),
			}
		}
		size := Length(first) - th.EchoPadding
		if size <= 0 {
			return Calibration{}, &InvariantError{Scan: ScanNewKeys, Reason: "non-positive keystroke size " + strconv.Itoa(int(size))}
		}
		return Calibration{
			NewKeysIndex:  i,
			KeystrokeSize: size,
			PromptSize:    packets[i+4].Length,
			Markers: []DirectedPacket{
				p.annotate(labelNewKeys),
				packets[i+1].annotate(labelIndicator),
				packets[i+4].annotate(labelPrompt),
			},
		}, nil
	}
	return Calibration{}, calibrationErr(ScanNewKeys, "NEWKEYS not found within the first %d packets", th.BootstrapWindow)
}

// FallbackKeystrokeSize looks for a run of equally sized packets past the
// handshake, the signature of keystrokes and their echoes.
func FallbackKeystrokeSize(packets []DirectedPacket, th Thresholds) (Length, bool) {
	for i := th.FallbackOffset; i+th.FallbackRun < len(packets); i++ {
		size := packets[i+1].Length.Magnitude()
		run := true
		for j := 2; j <= th.FallbackRun; j++ {
			if packets[i+j].Length.Magnitude() != size {
				run = false
				break
			}
		}
		if run && size > 0 {
			return Length(size), true
		}
	}
	return 0, false
}

// Algorithms are the negotiated algorithm names.
type Algorithms struct {
	Kex         string `json:"kex"`
	Encryption  string `json:"enc"`
	MAC         string `json:"mac"`
	Compression string `json:"cmp"`
}

// Fingerprint is a HASSH value and the string it was computed from.
type Fingerprint struct {
	Hash       string `json:"hassh"`
	Algorithms string `json:"hassh_algorithms"`
}

type Fingerprints struct {
	Client     Fingerprint `json:"client"`
	Server     Fingerprint `json:"server"`
	Negotiated Algorithms  `json:"algorithms"`
}

// NoMAC is reported when the peers share no MAC, as with AEAD ciphers.
const NoMAC = "none"

func hassh(kex, enc, mac, cmp string) Fingerprint {
	s := strings.Join([]string{kex, enc, mac, cmp}, ";")
	sum := md5.Sum([]byte(s))
	return Fingerprint{Hash: hex.EncodeToString(sum[:]), Algorithms: s}
}

// Negotiate returns the first entry of the client's list that the server
// also offers.
func Negotiate(client, server string) (string, bool) {
	offered := make(map[string]struct{})
	for _, s := range strings.Split(server, ",") {
		offered[s] = struct{}{}
	}
	for _, c := range strings.Split(client, ",") {
		if _, ok := offered[c]; ok && c != "" {
			return c, true
		}
	}
	return "", false
}

// ComputeFingerprints finds the KEXINIT of each side within the bootstrap
// window and computes the HASSH values and negotiated algorithms.
func ComputeFingerprints(packets []DirectedPacket, th Thresholds) (Fingerprints, error) {
	var client, server *dissect.KexInit
	for i, p := range packets {
		if i >= th.BootstrapWindow || (client != nil && server != nil) {
			break
		}
		if code, ok := p.messageCode(); !ok || code != dissect.MsgKexInit || p.Raw.SSH.KexInit == nil {
			continue
		}
		if p.Length.FromClient() && client == nil {
			client = p.Raw.SSH.KexInit
		} else if p.Length.FromServer() && server == nil {
			server = p.Raw.SSH.KexInit
		}
	}
	if client == nil {
		return Fingerprints{}, calibrationErr(ScanFingerprint, "client KEXINIT not found")
	}
	if server == nil {
		return Fingerprints{}, calibrationErr(ScanFingerprint, "server KEXINIT not found")
	}

	fp := Fingerprints{
		Client: hassh(client.KexAlgorithms, client.EncryptionClientToServer, client.MACClientToServer, client.CompressionClientToServer),
		Server: hassh(server.KexAlgorithms, server.EncryptionServerToClient, server.MACServerToClient, server.CompressionServerToClient),
	}
	var ok bool
	if fp.Negotiated.Kex, ok = Negotiate(client.KexAlgorithms, server.KexAlgorithms); !ok {
		return Fingerprints{}, calibrationErr(ScanFingerprint, "no common key exchange algorithm")
	}
	if fp.Negotiated.Encryption, ok = Negotiate(client.EncryptionClientToServer, server.EncryptionServerToClient); !ok {
		return Fingerprints{}, calibrationErr(ScanFingerprint, "no common encryption algorithm")
	}
	if fp.Negotiated.MAC, ok = Negotiate(client.MACClientToServer, server.MACServerToClient); !ok {
		fp.Negotiated.MAC = NoMAC
	}
	if fp.Negotiated.Compression, ok = Negotiate(client.CompressionClientToServer, server.CompressionServerToClient); !ok {
		return Fingerprints{}, calibrationErr(ScanFingerprint, "no common compression algorithm")
	}
	return fp, nil
}

// Endpoints are the identification strings and addresses of both peers.
type Endpoints struct {
	ClientProtocol string `json:"client_protocol"`
	ServerProtocol string `json:"server_protocol"`
	Client         string `json:"src"`
	Server         string `json:"dst"`
}

// FindEndpoints reads both banners within the bootstrap window. Addresses
// come from the last banner packet seen and are swapped when that packet was
// sent by the server.
func FindEndpoints(packets []DirectedPacket, th Thresholds) (Endpoints, error) {
	var (
		ep               Endpoints
		srcIP, dstIP     net.IP
		srcPort, dstPort uint16
	)
	for i, p := range packets {
		if i >= th.BootstrapWindow || (ep.ClientProtocol != "" && ep.ServerProtocol != "") {
			break
		}
		banner, ok := p.Raw.Banner()
		if !ok {
			continue
		}
		if p.Raw.Network == nil {
			return Endpoints{}, calibrationErr(ScanProtocol, "banner packet %d has no network layer", p.Index)
		}
		srcIP, dstIP = p.Raw.Network.Src, p.Raw.Network.Dst
		srcPort, dstPort = p.Raw.TCP.SrcPort, p.Raw.TCP.DstPort
		if srcPort > dstPort && ep.ClientProtocol == "" {
			ep.ClientProtocol = banner
		} else if dstPort > srcPort && ep.ServerProtocol == "" {
			ep.ServerProtocol = banner
		}
	}
	if ep.ClientProtocol == "" {
		return Endpoints{}, calibrationErr(ScanProtocol, "client banner not found")
	}
	if ep.ServerProtocol == "" {
		return Endpoints{}, calibrationErr(ScanProtocol, "server banner not found")
	}
	if dstPort > srcPort {
		srcIP, dstIP = dstIP, srcIP
		srcPort, dstPort = dstPort, srcPort
	}
	ep.Client = net.JoinHostPort(srcIP.String(), strconv.Itoa(int(srcPort)))
	ep.Server = net.JoinHostPort(dstIP.String(), strconv.Itoa(int(dstPort)))
	return ep, nil
}

// IsObfuscated reports whether both banners belong to releases that send
// keystroke chaff.
func IsObfuscated(ep Endpoints, markers []string) bool {
	return matchesAny(ep.ClientProtocol, markers) && matchesAny(ep.ServerProtocol, markers)
}

func matchesAny(banner string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(banner, m) {
			return true
		}
	}
	return false
}
