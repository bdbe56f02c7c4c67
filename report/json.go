package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"sshniff/analyser"
)

// FileName is the name of the JSON report written to the output directory.
const FileName = "sshniff.json"

// keystrokeReport is the reduced document written with -k.
type keystrokeReport struct {
	RunID string          `json:"run"`
	Files []keystrokeFile `json:"files"`
}

type keystrokeFile struct {
	File       string                                  `json:"file"`
	Keystrokes map[uint32][]analyser.KeystrokeSequence `json:"keystrokes"`
}

// JSON encodes the report. With keystrokesOnly only the keystroke sequences
// of each stream are kept.
func JSON(r *Report, keystrokesOnly bool) ([]byte, error) {
	if !keystrokesOnly {
		return json.Marshal(r)
	}
	out := keystrokeReport{RunID: r.RunID, Files: make([]keystrokeFile, 0, len(r.Files))}
	for _, f := range r.Files {
		kf := keystrokeFile{File: f.File, Keystrokes: make(map[uint32][]analyser.KeystrokeSequence, len(f.Sessions))}
		for id, s := range f.Sessions {
			kf.Keystrokes[id] = s.Keystrokes
		}
		out.Files = append(out.Files, kf)
	}
	return json.Marshal(out)
}

// WriteJSON writes the encoded report to w followed by a newline.
func WriteJSON(w io.Writer, r *Report, keystrokesOnly bool) error {
	data, err := JSON(r, keystrokesOnly)
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}

// SaveJSON writes the encoded report to FileName inside dir, creating dir
// if needed, and returns the file path.
func SaveJSON(dir string, r *Report, keystrokesOnly bool) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, FileName)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := WriteJSON(f, r, keystrokesOnly); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
