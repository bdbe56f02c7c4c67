// Package report renders analysis results to the console and as JSON.
package report

import (
	"sort"

	"sshniff/analyser"
)

// Report is the outcome of one sshniff run over one or more captures.
type Report struct {
	RunID string       `json:"run"`
	Files []FileResult `json:"files"`
}

// FileResult holds the sessions of one capture file. Streams that could not
// be analysed are listed in Errors instead.
type FileResult struct {
	File     string                       `json:"file"`
	Error    string                       `json:"error,omitempty"`
	Sessions map[uint32]*analyser.Session `json:"sessions"`
	Errors   map[uint32]string            `json:"errors,omitempty"`
}

// StreamIDs returns the analysed streams in ascending order.
func (f *FileResult) StreamIDs() []uint32 {
	ids := make([]uint32, 0, len(f.Sessions))
	for id := range f.Sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FailedIDs returns the streams that failed in ascending order.
func (f *FileResult) FailedIDs() []uint32 {
	ids := make([]uint32, 0, len(f.Errors))
	for id := range f.Errors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SessionCount returns the number of analysed sessions over all files.
func (r *Report) SessionCount() int {
	n := 0
	for _, f := range r.Files {
		n += len(f.Sessions)
	}
	return n
}
