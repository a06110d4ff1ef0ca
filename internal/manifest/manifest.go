// Package manifest records the content hash of every minified output so
// deploy tooling can tell which assets changed between builds.
package manifest

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/zeebo/blake3"
)

// Entry describes one output file.
type Entry struct {
	Path       string `json:"path"`
	MediaType  string `json:"mediatype"`
	InputSize  int64  `json:"input_size"`
	OutputSize int64  `json:"output_size"`
	BLAKE3     string `json:"blake3"`
}

// Manifest collects entries from concurrent minifications.
type Manifest struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func New() *Manifest {
	return &Manifest{entries: make(map[string]Entry)}
}

// HashFile returns the hex BLAKE3-256 digest and size of the file at path.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Add hashes outputPath and records it. A later Add for the same path
// replaces the earlier entry.
func (m *Manifest) Add(outputPath, mediaType string, inputSize int64) error {
	digest, size, err := HashFile(outputPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[outputPath] = Entry{
		Path:       outputPath,
		MediaType:  mediaType,
		InputSize:  inputSize,
		OutputSize: size,
		BLAKE3:     digest,
	}
	return nil
}

// Entries returns the recorded entries sorted by path.
func (m *Manifest) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]Entry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries
}

// WriteFile writes the manifest to path as indented JSON.
func (m *Manifest) WriteFile(path string) error {
	data, err := json.MarshalIndent(m.Entries(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
