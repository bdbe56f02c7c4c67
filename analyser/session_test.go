package analyser

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"sshniff/dissect"
	"sshniff/internal/capturetest"
)

func streamOf(t *testing.T, b *capturetest.Builder) []*dissect.Packet {
	t.Helper()
	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("render capture: %v", err)
	}
	log, _ := test.NewNullLogger()
	c, err := dissect.Read(bytes.NewReader(data), log)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	streams := c.Streams(0)
	if len(streams) != 1 {
		t.Fatalf("got %d streams", len(streams))
	}
	return streams[0].Packets
}

func analyse(t *testing.T, raw []*dissect.Packet, opts Options) (*Session, *test.Hook) {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	s, err := Analyse(0, raw, opts, logrus.NewEntry(log))
	if err != nil {
		t.Fatalf("Analyse: %v", err)
	}
	return s, hook
}

func TestAnalyseLoginSession(t *testing.T) {
	raw := streamOf(t, capturetest.LoginSession(epoch))
	s, hook := analyse(t, raw, Options{Thresholds: DefaultThresholds()})

	t.Run("calibration", func(t *testing.T) {
		c := s.Calibration
		if c.NewKeysIndex != 6 || c.KeystrokeSize != 36 || c.PromptSize != -52 || c.FallbackSize != 36 || c.Obfuscated {
			t.Errorf("calibration = %+v", c)
		}
		if s.LoggedInAt != 16 {
			t.Errorf("logged in at %d", s.LoggedInAt)
		}
		if s.StartUTC != "2024-03-14 09:30:00" {
			t.Errorf("start = %s", s.StartUTC)
		}
		if len(s.Ordered) != len(raw) {
			t.Errorf("ordered %d packets of %d", len(s.Ordered), len(raw))
		}
	})

	t.Run("meta", func(t *testing.T) {
		if s.Fingerprint.Client.Hash != capturetest.ClientHASSH || s.Fingerprint.Server.Hash != capturetest.ServerHASSH {
			t.Errorf("hassh = %s / %s", s.Fingerprint.Client.Hash, s.Fingerprint.Server.Hash)
		}
		want := Algorithms{
			Kex:         "curve25519-sha256",
			Encryption:  "chacha20-poly1305@openssh.com",
			MAC:         "umac-64-etm@openssh.com",
			Compression: "none",
		}
		if s.Fingerprint.Negotiated != want {
			t.Errorf("algorithms = %+v", s.Fingerprint.Negotiated)
		}
		ep := Endpoints{
			ClientProtocol: capturetest.ClientBanner,
			ServerProtocol: capturetest.ServerBanner,
			Client:         "192.168.0.212:50502",
			Server:         "192.168.0.45:22",
		}
		if s.Endpoints != ep {
			t.Errorf("endpoints = %+v", s.Endpoints)
		}
	})

	t.Run("events", func(t *testing.T) {
		checkEvents(t, s.Events, []wantEvent{
			{"Server hostkey accepted", 5},
			{"OfferRSAKey", 11},
			{"AcceptedKey", 12},
			{"OfferED25519Key", 13},
			{"RejectedKey", 14},
			{"CorrectPassword", 16},
		})
		var indices []int
		for _, p := range s.Timeline {
			indices = append(indices, p.Index)
		}
		want := []int{5, 6, 7, 10, 11, 12, 13, 14, 16}
		if len(indices) != len(want) {
			t.Fatalf("timeline = %v", indices)
		}
		for i := range want {
			if indices[i] != want[i] {
				t.Fatalf("timeline = %v, want %v", indices, want)
			}
		}
		if len(s.Findings) != 0 {
			t.Errorf("findings = %+v", s.Findings)
		}
	})

	t.Run("keystrokes", func(t *testing.T) {
		if len(s.Keystrokes) != 3 || s.KeystrokeCount() != 11 {
			t.Fatalf("got %d sequences, %d keystrokes", len(s.Keystrokes), s.KeystrokeCount())
		}
		for i, want := range []uint64{480, 380, 60} {
			seq := s.Keystrokes[i]
			enter := seq[len(seq)-1]
			if enter.Kind != KindEnter || enter.ResponseSize == nil || *enter.ResponseSize != want {
				t.Errorf("sequence %d ends with %v", i, enter)
			}
			if seq[0].Latency != 0 {
				t.Errorf("sequence %d starts at latency %v", i, seq[0].Latency)
			}
		}
		if got := s.Keystrokes[0][1].Latency; got != 300*time.Millisecond {
			t.Errorf("latency = %v", got)
		}
	})

	for _, e := range hook.AllEntries() {
		if e.Level <= logrus.WarnLevel {
			t.Errorf("unexpected %s: %s", e.Level, e.Message)
		}
	}
}

func TestAnalyseMetaOnly(t *testing.T) {
	raw := streamOf(t, capturetest.LoginSession(epoch))
	s, _ := analyse(t, raw, Options{MetaOnly: true, Thresholds: DefaultThresholds()})
	if s.Keystrokes != nil {
		t.Errorf("keystrokes inferred: %d", s.KeystrokeCount())
	}
	if len(s.Events) != 6 {
		t.Errorf("got %d events", len(s.Events))
	}
}

func TestAnalyseObfuscatedCalibration(t *testing.T) {
	ms := time.Millisecond
	b := capturetest.New(epoch).Handshake().KeyExchange(capturetest.ClientBanner, "SSH-2.0-OpenSSH_9.7")
	b.Lengths(ms, 44, -44, 68, -52, 100, -28)
	b.Lengths(100*ms, 36, -36, 72, -36, -36, 72, -36, -36, 36, -36, 36, -36, 36, -36)

	s, hook := analyse(t, streamOf(t, b), Options{MetaOnly: true, Thresholds: DefaultThresholds()})
	if !s.Calibration.Obfuscated || s.Calibration.KeystrokeSize != 72 {
		t.Errorf("calibration = %+v", s.Calibration)
	}
	if s.LoggedInAt != 12 {
		t.Errorf("logged in at %d", s.LoggedInAt)
	}
	warned := false
	for _, e := range hook.AllEntries() {
		warned = warned || e.Level == logrus.WarnLevel
	}
	if !warned {
		t.Error("obfuscation not reported")
	}
}

func TestAnalyseTypedCommands(t *testing.T) {
	ms := time.Millisecond
	b := capturetest.New(epoch).Handshake().KeyExchange(capturetest.ClientBanner, capturetest.ServerBanner)
	b.Lengths(ms, 44, -44, 68, -52, 100, -28)
	b.Command(120*ms, 36, "ls -al", 620, 80)
	b.Command(120*ms, 36, "id", 140, 80)
	b.Command(120*ms, 36, "exit", 60, 40)

	s, _ := analyse(t, streamOf(t, b), Options{Thresholds: DefaultThresholds()})
	if s.KeystrokeCount() != 15 {
		t.Fatalf("keystrokes = %d", s.KeystrokeCount())
	}
	for i, want := range []int{7, 3, 5} {
		if i >= len(s.Keystrokes) {
			t.Fatalf("got %d sequences", len(s.Keystrokes))
		}
		seq := s.Keystrokes[i]
		if len(seq) != want {
			t.Errorf("sequence %d has %d keystrokes, want %d", i, len(seq), want)
		}
		for j, k := range seq[:len(seq)-1] {
			if k.Kind != KindKeystroke {
				t.Errorf("sequence %d keystroke %d = %s", i, j, k.Kind)
			}
		}
		if seq[len(seq)-1].Kind != KindEnter {
			t.Errorf("sequence %d ends with %s", i, seq[len(seq)-1].Kind)
		}
	}
	if len(s.Keystrokes) != 3 {
		t.Errorf("got %d sequences", len(s.Keystrokes))
	}
}

func TestAnalyseFallbackRetry(t *testing.T) {
	ms := time.Millisecond
	typed := func(server string) *capturetest.Builder {
		b := capturetest.New(epoch).Handshake().KeyExchange(capturetest.ClientBanner, server)
		b.Lengths(ms, 44, -44, 68, -52, 100, -28)
		return b
	}
	retried := func(hook *test.Hook) bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "no keystrokes found, retrying with fallback size" {
				return true
			}
		}
		return false
	}

	t.Run("obfuscated server without chaff", func(t *testing.T) {
		b := typed("SSH-2.0-OpenSSH_9.7")
		b.Command(150*ms, 36, "ls", 400, 80)
		b.Command(150*ms, 36, "id", 300, 80)

		s, hook := analyse(t, streamOf(t, b), Options{Thresholds: DefaultThresholds()})
		c := s.Calibration
		if !c.Obfuscated || c.KeystrokeSize != 72 || c.FallbackSize != 36 {
			t.Fatalf("calibration = %+v", c)
		}
		if !retried(hook) {
			t.Error("fallback size not retried")
		}
		if len(s.Keystrokes) != 2 || s.KeystrokeCount() != 6 {
			t.Errorf("got %d sequences, %d keystrokes", len(s.Keystrokes), s.KeystrokeCount())
		}
	})

	t.Run("same size is not rescanned", func(t *testing.T) {
		b := typed(capturetest.ServerBanner)
		b.Lengths(150*ms, -36, -36, -36, -36, -36, -36, -36, -36, -36, -36, -36, -36, -36, -36, -36, -36)

		s, hook := analyse(t, streamOf(t, b), Options{Thresholds: DefaultThresholds()})
		if s.Calibration.FallbackSize != s.Calibration.KeystrokeSize {
			t.Fatalf("calibration = %+v", s.Calibration)
		}
		if retried(hook) {
			t.Error("rescanned with the size already used")
		}
		if s.KeystrokeCount() != 0 {
			t.Errorf("keystrokes = %d", s.KeystrokeCount())
		}
	})
}

func TestAnalyseCalibrationFailure(t *testing.T) {
	b := capturetest.New(epoch).Handshake().KeyExchange(capturetest.ClientBanner, capturetest.ServerBanner)
	log, _ := test.NewNullLogger()
	_, err := Analyse(0, streamOf(t, b), Options{Thresholds: DefaultThresholds()}, logrus.NewEntry(log))
	var cal *CalibrationError
	if !errors.As(err, &cal) || cal.Scan != ScanNewKeys {
		t.Fatalf("err = %v", err)
	}

	if _, err := Analyse(0, nil, Options{Thresholds: DefaultThresholds()}, logrus.NewEntry(log)); err == nil {
		t.Error("empty stream analysed")
	}
}
