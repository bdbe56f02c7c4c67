package analyser

import (
	"errors"
	"fmt"
)

// ErrNoTCPLayer is returned by Project for a packet without transport
// framing.
var ErrNoTCPLayer = errors.New("packet has no TCP layer")

// Scan names the bootstrap or authentication scan that failed.
type Scan string

const (
	ScanNewKeys     Scan = "new keys"
	ScanFingerprint Scan = "fingerprint"
	ScanProtocol    Scan = "protocol"
	ScanLogin       Scan = "login"
)

// CalibrationError reports that a scan did not find its marker. The session
// cannot be analysed any further.
type CalibrationError struct {
	Scan   Scan
	Reason string
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("%s scan failed: %s", e.Scan, e.Reason)
}

// InvariantError reports traffic that breaks an assumption about the SSH
// implementation, such as unequal packets after NEWKEYS.
type InvariantError struct {
	Scan   Scan
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("unsupported SSH implementation (%s): %s", e.Scan, e.Reason)
}

func calibrationErr(scan Scan, format string, args ...interface{}) error {
	return &CalibrationError{Scan: scan, Reason: fmt.Sprintf(format, args...)}
}
