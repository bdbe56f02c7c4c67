package analyser

import (
	"github.com/sirupsen/logrus"

	"sshniff/dissect"
)

const timeLayout = "2006-01-02 15:04:05"

// Options control a single stream analysis.
type Options struct {
	// MetaOnly skips keystroke inference.
	MetaOnly   bool
	Thresholds Thresholds
}

// Session is everything inferred about one SSH stream.
type Session struct {
	Stream      uint32              `json:"stream"`
	StartUTC    string              `json:"start_utc"`
	EndUTC      string              `json:"end_utc"`
	Calibration Calibration         `json:"calibration"`
	Endpoints   Endpoints           `json:"endpoints"`
	Fingerprint Fingerprints        `json:"fingerprints"`
	LoggedInAt  int                 `json:"logged_in_at"`
	Timeline    []DirectedPacket    `json:"results"`
	Events      []AuthEvent         `json:"events"`
	Keystrokes  []KeystrokeSequence `json:"keystroke_data"`
	Findings    []*Finding          `json:"findings,omitempty"`

	// Ordered is the reordered packet sequence the classifiers ran on.
	Ordered []DirectedPacket `json:"-"`
}

// KeystrokeCount returns the number of keystrokes over all sequences.
func (s *Session) KeystrokeCount() int {
	n := 0
	for _, seq := range s.Keystrokes {
		n += len(seq)
	}
	return n
}

// Analyse runs every scan over the packets of one stream. Calibration
// failures are returned as *CalibrationError or *InvariantError; everything
// after calibration is best effort.
func Analyse(stream uint32, raw []*dissect.Packet, opts Options, log *logrus.Entry) (*Session, error) {
	th := opts.Thresholds
	if len(raw) == 0 {
		return nil, calibrationErr(ScanNewKeys, "stream has no packets")
	}
	packets, err := Project(raw)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Stream:   stream,
		StartUTC: packets[0].Timestamp.UTC().Format(timeLayout),
		EndUTC:   packets[len(packets)-1].Timestamp.UTC().Format(timeLayout),
	}

	cal, err := FindNewKeys(packets, th)
	if err != nil {
		return nil, err
	}
	if fallback, ok := FallbackKeystrokeSize(packets, th); ok {
		cal.FallbackSize = fallback
		if fallback != cal.KeystrokeSize {
			log.WithFields(logrus.Fields{"primary": cal.KeystrokeSize, "fallback": fallback}).
				Warn("disagreement when finding keystroke size, relying on fallback")
			cal.KeystrokeSize = fallback
		}
	}

	if s.Fingerprint, err = ComputeFingerprints(packets, th); err != nil {
		return nil, err
	}
	if s.Endpoints, err = FindEndpoints(packets, th); err != nil {
		return nil, err
	}

	if IsObfuscated(s.Endpoints, th.ObfuscationMarkers) {
		log.Warn("session uses keystroke obfuscation, results are experimental")
		cal.Obfuscated = true
		cal.KeystrokeSize *= 2
		s.Ordered = OrderObfuscated(packets, cal.KeystrokeSize, th).Packets
	} else {
		s.Ordered = Order(packets, cal.KeystrokeSize, th)
	}
	s.Calibration = cal
	log.WithFields(logrus.Fields{
		"new_keys":  cal.NewKeysIndex,
		"keystroke": cal.KeystrokeSize,
		"prompt":    cal.PromptSize,
	}).Debug("calibrated")

	if s.LoggedInAt, err = FindLogin(s.Ordered, cal.NewKeysIndex, th); err != nil {
		return nil, err
	}

	if hostKey, ok := FindHostKeyAccept(s.Ordered, s.LoggedInAt, th); ok {
		s.Events = append(s.Events, hostKey)
	} else {
		log.Warn("host key acceptance not found")
	}
	s.Events = append(s.Events, ScanAuth(s.Ordered, cal, s.LoggedInAt, th, log)...)
	s.Timeline = timeline(cal, s.Events)

	if f := ScanReverseTunnel(s.Ordered, cal.PromptSize, th); f != nil {
		log.WithField("seq", f.Anchor.Seq).Info("possible reverse tunnel")
		s.Findings = append(s.Findings, f)
	}
	if f := ScanAgentForwarding(s.Ordered, cal.NewKeysIndex, th); f != nil {
		log.WithField("seq", f.Anchor.Seq).Debug("possible agent forwarding")
		s.Findings = append(s.Findings, f)
	}

	if opts.MetaOnly {
		return s, nil
	}

	var keys []Keystroke
	if cal.Obfuscated {
		keys = ScanObfuscatedKeystrokes(s.Ordered, cal.KeystrokeSize, s.LoggedInAt, th, log)
	} else {
		keys = ScanKeystrokes(s.Ordered, cal.KeystrokeSize, s.LoggedInAt, th, log)
	}
	// The fallback size only differs from the scanned size under obfuscation.
	if len(keys) == 0 && cal.FallbackSize > 0 && cal.FallbackSize != cal.KeystrokeSize {
		log.WithField("size", cal.FallbackSize).Warn("no keystrokes found, retrying with fallback size")
		keys = ScanKeystrokes(s.Ordered, cal.FallbackSize, s.LoggedInAt, th, log)
	}
	s.Keystrokes = GroupSequences(keys)
	log.WithFields(logrus.Fields{"keystrokes": len(keys), "sequences": len(s.Keystrokes)}).Debug("keystrokes classified")
	return s, nil
}

// timeline lists the annotated packets in the order they are reported.
func timeline(cal Calibration, events []AuthEvent) []DirectedPacket {
	var out []DirectedPacket
	rest := events
	if len(events) > 0 && events[0].Kind == HostKeyAccepted {
		out = append(out, events[0].Anchor)
		rest = events[1:]
	}
	out = append(out, cal.Markers...)
	for _, e := range rest {
		out = append(out, e.Anchor)
	}
	return out
}
