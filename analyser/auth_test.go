package analyser

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"sshniff/dissect"
)

type wantEvent struct {
	label string
	index int
}

func checkEvents(t *testing.T, got []AuthEvent, want []wantEvent) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d events %v, want %d", len(got), got, len(want))
	}
	for i, w := range want {
		if got[i].Label() != w.label || got[i].Anchor.Index != w.index {
			t.Errorf("event %d = %s@%d, want %s@%d", i, got[i].Label(), got[i].Anchor.Index, w.label, w.index)
		}
		if got[i].Anchor.Annotation != w.label {
			t.Errorf("event %d annotation = %q", i, got[i].Anchor.Annotation)
		}
	}
}

func TestScanAuth(t *testing.T) {
	th := DefaultThresholds()

	t.Run("keys then password", func(t *testing.T) {
		ordered := withCode(directed(
			16, 44, -44, 68, -52, // NEWKEYS, indicator, first prompt
			500, -100, 144, -52, 100, -28, 36, -36,
		), 0, dissect.MsgNewKeys)
		cal := Calibration{NewKeysIndex: 0, KeystrokeSize: 36, PromptSize: -52}
		loggedIn, err := FindLogin(ordered, 0, th)
		if err != nil || loggedIn != 10 {
			t.Fatalf("FindLogin = %d, %v", loggedIn, err)
		}
		checkEvents(t, ScanAuth(ordered, cal, loggedIn, th, quiet()), []wantEvent{
			{"OfferRSAKey", 5},
			{"AcceptedKey", 6},
			{"OfferED25519Key", 7},
			{"RejectedKey", 8},
			{"CorrectPassword", 10},
		})
	})

	t.Run("wrong password", func(t *testing.T) {
		ordered := withCode(directed(16, 44, -44, 68, -52, 100, -52, 100, -36, 36), 0, dissect.MsgNewKeys)
		cal := Calibration{NewKeysIndex: 0, KeystrokeSize: 36, PromptSize: -52}
		loggedIn, err := FindLogin(ordered, 0, th)
		if err != nil || loggedIn != 8 {
			t.Fatalf("FindLogin = %d, %v", loggedIn, err)
		}
		checkEvents(t, ScanAuth(ordered, cal, loggedIn, th, quiet()), []wantEvent{
			{"WrongPassword", 6},
			{"CorrectPassword", 8},
		})
	})

	t.Run("accepted unknown key", func(t *testing.T) {
		ordered := withCode(directed(16, 44, -44, 68, -52, 300, -100, 400, -28, 36), 0, dissect.MsgNewKeys)
		cal := Calibration{PromptSize: -52}
		events := ScanAuth(ordered, cal, 8, th, quiet())
		checkEvents(t, events, []wantEvent{
			{"OfferUnknownKey", 5},
			{"AcceptedKey", 6},
		})
		if events[0].Key != KeyUnknown {
			t.Errorf("key = %s", events[0].Key)
		}
	})
}

func TestScanAuthLogsEvents(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	ordered := withCode(directed(16, 44, -44, 68, -52, 100, -52, 100, -36, 36), 0, dissect.MsgNewKeys)
	cal := Calibration{PromptSize: -52}

	events := ScanAuth(ordered, cal, 8, DefaultThresholds(), log)
	entries := hook.AllEntries()
	if len(entries) != len(events) || len(events) != 2 {
		t.Fatalf("%d entries for %d events", len(entries), len(events))
	}
	for i, e := range entries {
		if e.Data["seq"] != events[i].Anchor.Seq || e.Data["event"] != events[i].Label() {
			t.Errorf("entry %d = %v", i, e.Data)
		}
	}
}

func TestFindLoginMissing(t *testing.T) {
	_, err := FindLogin(directed(40, -40, 40, -40), 0, DefaultThresholds())
	var cal *CalibrationError
	if !errors.As(err, &cal) || cal.Scan != ScanLogin {
		t.Fatalf("err = %v", err)
	}
}

func TestFindHostKeyAccept(t *testing.T) {
	th := DefaultThresholds()

	ordered := withCode(withCode(directed(300, -500, 16, 44, -44), 0, 30), 2, dissect.MsgNewKeys)
	ordered = withCode(ordered, 1, 31)
	e, ok := FindHostKeyAccept(ordered, 10, th)
	if !ok {
		t.Fatal("host key acceptance not found")
	}
	if e.Kind != HostKeyAccepted || e.Anchor.Index != 1 || e.Anchor.Annotation != "Server hostkey accepted" {
		t.Errorf("event = %+v", e)
	}

	// A NEWKEYS followed by more plaintext is a new key exchange prompt.
	ordered = withCode(ordered, 3, 50)
	if _, ok := FindHostKeyAccept(ordered, 10, th); ok {
		t.Error("unexpected host key acceptance")
	}
}
