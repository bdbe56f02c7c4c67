package pipeline

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var captureExts = []string{".pcap", ".pcapng", ".cap"}

func isCapture(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range captureExts {
		if ext == e {
			return true
		}
	}
	return false
}

// Discover returns the capture files to analyse. A file is returned as is
// whatever its name; a directory is walked for files with a capture
// extension.
func Discover(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	var files []string
	err = filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() && isCapture(info.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
