package precompress

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func decompress(t *testing.T, format Format, data []byte) []byte {
	t.Helper()
	var r io.Reader
	switch format {
	case Gzip:
		gz, err := gzip.NewReader(bytes.NewReader(data))
		require.NoError(t, err)
		r = gz
	case Brotli:
		r = brotli.NewReader(bytes.NewReader(data))
	case Zstd:
		zr, err := zstd.NewReader(bytes.NewReader(data))
		require.NoError(t, err)
		defer zr.Close()
		out, err := io.ReadAll(zr)
		require.NoError(t, err)
		return out
	}
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	return out
}

func TestParseFormats(t *testing.T) {
	formats, err := ParseFormats("gzip, br,zstd")
	require.NoError(t, err)
	require.Equal(t, []Format{Gzip, Brotli, Zstd}, formats)

	formats, err = ParseFormats("")
	require.NoError(t, err)
	require.Empty(t, formats)

	_, err = ParseFormats("gzip,lzma")
	require.ErrorContains(t, err, "lzma")
}

func TestWriteSiblings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.css")
	content := []byte(strings.Repeat("a{color:red}", 100))
	require.NoError(t, os.WriteFile(path, content, 0o644))

	written, err := WriteSiblings(path, []Format{Gzip, Brotli, Zstd})
	require.NoError(t, err)
	require.Equal(t, []string{path + ".gz", path + ".br", path + ".zst"}, written)

	for i, format := range []Format{Gzip, Brotli, Zstd} {
		data, err := os.ReadFile(written[i])
		require.NoError(t, err)
		require.Less(t, len(data), len(content))
		require.Equal(t, content, decompress(t, format, data))
	}
}

func TestWriteSiblingsNoFormats(t *testing.T) {
	written, err := WriteSiblings("/nonexistent", nil)
	require.NoError(t, err)
	require.Nil(t, written)
}
