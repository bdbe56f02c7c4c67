package analyser

import "time"

// KeyBand is an inclusive payload size range of a public key offer.
type KeyBand struct {
	Key KeyType `yaml:"key"`
	Min Length  `yaml:"min"`
	Max Length  `yaml:"max"`
}

// Thresholds holds the empirically derived constants every scan depends on.
// A value is built once and passed to each classifier; nothing mutates it.
type Thresholds struct {
	// Echo sizes of keystrokes next to arrow keys may exceed the calibrated
	// size by up to this many bytes.
	KeystrokeUpperBound Length
	// Backspace echoes and the NEWKEYS indicator packet carry this many
	// extra bytes.
	EchoPadding Length

	ReorderWindow   int
	LoginWindow     int
	BootstrapWindow int
	HostKeyWindow   int
	TunnelWindow    int
	FallbackOffset  int
	FallbackRun     int

	// Agent forwarding shows as a client packet within this range of
	// positions after NEWKEYS.
	AgentWindowStart int
	AgentWindowEnd   int

	ChaffGap time.Duration

	// Server payload sizes of SSH_MSG_USERAUTH_SUCCESS across common ciphers.
	LoginSuccessSizes []Length
	KeyBands          []KeyBand
	// Banner fragments of releases that inject keystroke chaff.
	ObfuscationMarkers []string
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		KeystrokeUpperBound: 16,
		EchoPadding:         8,
		ReorderWindow:       10,
		LoginWindow:         40,
		BootstrapWindow:     50,
		HostKeyWindow:       100,
		TunnelWindow:        40,
		FallbackOffset:      20,
		FallbackRun:         4,
		AgentWindowStart:    18,
		AgentWindowEnd:      22,
		ChaffGap:            35 * time.Millisecond,
		LoginSuccessSizes:   []Length{28, 36},
		KeyBands: []KeyBand{
			{Key: KeyRSA, Min: 492, Max: 500},
			{Key: KeyED25519, Min: 140, Max: 148},
			{Key: KeyECDSA, Min: 188, Max: 212},
		},
		ObfuscationMarkers: []string{
			"OpenSSH_9.5", "OpenSSH_9.6", "OpenSSH_9.7", "OpenSSH_9.8", "OpenSSH_9.9", "OpenSSH_10",
		},
	}
}

// keyFor classifies a client payload size against the key bands.
func (t Thresholds) keyFor(l Length) (KeyType, bool) {
	for _, b := range t.KeyBands {
		if l >= b.Min && l <= b.Max {
			return b.Key, true
		}
	}
	return KeyUnknown, false
}

func (t Thresholds) isLoginSuccess(l Length) bool {
	for _, size := range t.LoginSuccessSizes {
		if l == -size {
			return true
		}
	}
	return false
}
