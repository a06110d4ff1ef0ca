package manifest

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
)

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.css")
	require.NoError(t, os.WriteFile(path, []byte("a{color:red}"), 0o644))

	digest, size, err := HashFile(path)
	require.NoError(t, err)
	sum := blake3.Sum256([]byte("a{color:red}"))
	require.Equal(t, hex.EncodeToString(sum[:]), digest)
	require.EqualValues(t, 12, size)
}

func TestManifestSortedAndConcurrent(t *testing.T) {
	dir := t.TempDir()
	names := []string{"c.js", "a.css", "b.html", "d.json"}
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}

	m := New()
	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			assert.NoError(t, m.Add(filepath.Join(dir, name), "text/plain", 100))
		}(name)
	}
	wg.Wait()

	entries := m.Entries()
	require.Len(t, entries, 4)
	for i, name := range []string{"a.css", "b.html", "c.js", "d.json"} {
		require.Equal(t, filepath.Join(dir, name), entries[i].Path)
		require.EqualValues(t, len(name), entries[i].OutputSize)
		require.EqualValues(t, 100, entries[i].InputSize)
	}

	out := filepath.Join(dir, "manifest.json")
	require.NoError(t, m.WriteFile(out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var decoded []Entry
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, entries, decoded)
}

func TestAddMissingFile(t *testing.T) {
	require.Error(t, New().Add(filepath.Join(t.TempDir(), "missing"), "text/css", 0))
}
