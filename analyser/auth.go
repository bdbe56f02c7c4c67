package analyser

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"sshniff/dissect"
)

type KeyType string

const (
	KeyRSA     KeyType = "RSA"
	KeyECDSA   KeyType = "ECDSA"
	KeyED25519 KeyType = "ED25519"
	KeyUnknown KeyType = "Unknown"
)

type EventKind int

const (
	WrongPassword EventKind = iota
	CorrectPassword
	KeyOffered
	KeyAccepted
	KeyRejected
	HostKeyAccepted
)

// AuthEvent is attributed to the packet at Anchor. Key is set for
// KeyOffered only.
type AuthEvent struct {
	Kind   EventKind
	Key    KeyType
	Anchor DirectedPacket
}

// Label is the timeline text of the event.
func (e AuthEvent) Label() string {
	switch e.Kind {
	case WrongPassword:
		return "WrongPassword"
	case CorrectPassword:
		return "CorrectPassword"
	case KeyOffered:
		return "Offer" + string(e.Key) + "Key"
	case KeyAccepted:
		return "AcceptedKey"
	case KeyRejected:
		return "RejectedKey"
	case HostKeyAccepted:
		return "Server hostkey accepted"
	}
	return "Unknown"
}

func (e AuthEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Event string `json:"event"`
		Seq   uint32 `json:"seq"`
		Index int    `json:"index"`
	}{e.Label(), e.Anchor.Seq, e.Anchor.Index})
}

func newEvent(kind EventKind, key KeyType, anchor DirectedPacket) AuthEvent {
	e := AuthEvent{Kind: kind, Key: key}
	e.Anchor = anchor.annotate(e.Label())
	return e
}

// FindLogin returns the position of the first USERAUTH_SUCCESS sized server
// packet within the login window after NEWKEYS.
func FindLogin(ordered []DirectedPacket, newKeys int, th Thresholds) (int, error) {
	for i := newKeys; i < len(ordered) && i < newKeys+th.LoginWindow; i++ {
		if th.isLoginSuccess(ordered[i].Length) {
			return i, nil
		}
	}
	return 0, calibrationErr(ScanLogin, "no authentication success within %d packets of NEWKEYS", th.LoginWindow)
}

// ScanAuth walks the server side of the authentication exchange, from the
// first login prompt at NEWKEYS+4 up to loggedIn, and classifies each client
// request by the response it got.
func ScanAuth(ordered []DirectedPacket, cal Calibration, loggedIn int, th Thresholds, log logrus.FieldLogger) []AuthEvent {
	var events []AuthEvent
	add := func(evs ...AuthEvent) {
		for _, e := range evs {
			log.WithFields(logrus.Fields{"seq": e.Anchor.Seq, "index": e.Anchor.Index, "event": e.Label()}).Debug("auth event")
		}
		events = append(events, evs...)
	}
	for ptr := cal.NewKeysIndex + 4; ptr+2 < len(ordered) && ptr < loggedIn; ptr += 2 {
		curr, next, nextNext := ordered[ptr], ordered[ptr+1], ordered[ptr+2]

		switch {
		case nextNext.Length == cal.PromptSize:
			// Prompted again: a rejected key or a wrong password.
			if key, ok := th.keyFor(next.Length); ok {
				add(newEvent(KeyOffered, key, next), newEvent(KeyRejected, "", nextNext))
			} else {
				add(newEvent(WrongPassword, "", nextNext))
			}

		case ptr+2 == loggedIn:
			if curr.Length == cal.PromptSize {
				add(newEvent(CorrectPassword, "", nextNext))
				return events
			}

		default:
			key, _ := th.keyFor(next.Length)
			add(newEvent(KeyOffered, key, next), newEvent(KeyAccepted, "", nextNext))
			if ptr+4 == loggedIn {
				return events
			}
		}
	}
	return events
}

// FindHostKeyAccept looks for the NEWKEYS followed by encrypted traffic and
// labels the packet before it, the server's key exchange reply. This only
// happens when the host key is already known to the client.
func FindHostKeyAccept(ordered []DirectedPacket, loggedIn int, th Thresholds) (AuthEvent, bool) {
	for i := 1; i+1 < len(ordered) && i < th.HostKeyWindow && i != loggedIn; i++ {
		if code, ok := ordered[i].messageCode(); !ok || code != dissect.MsgNewKeys {
			continue
		}
		if _, ok := ordered[i+1].messageCode(); ok {
			continue
		}
		return newEvent(HostKeyAccepted, "", ordered[i-1]), true
	}
	return AuthEvent{}, false
}
