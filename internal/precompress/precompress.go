// Package precompress writes compressed siblings of minified assets so a
// static file server can serve them with a matching Content-Encoding.
package precompress

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Format is a compression format and the extension of the file it writes.
type Format string

const (
	Gzip   Format = "gzip"
	Brotli Format = "br"
	Zstd   Format = "zstd"
)

// Extension returns the file extension for f, including the dot.
func (f Format) Extension() string {
	switch f {
	case Gzip:
		return ".gz"
	case Brotli:
		return ".br"
	case Zstd:
		return ".zst"
	default:
		return ""
	}
}

// ParseFormats parses a comma-separated list such as "gzip,br". An empty
// string yields no formats.
func ParseFormats(list string) ([]Format, error) {
	if list == "" {
		return nil, nil
	}
	var formats []Format
	for _, name := range strings.Split(list, ",") {
		format := Format(strings.TrimSpace(name))
		if format.Extension() == "" {
			return nil, fmt.Errorf("unknown precompression format %q (want gzip, br, or zstd)", name)
		}
		formats = append(formats, format)
	}
	return formats, nil
}

// Compress returns data compressed as format at the format's best ratio.
func Compress(format Format, data []byte) ([]byte, error) {
	var buf bytes.Buffer
	var w io.WriteCloser
	var err error
	switch format {
	case Gzip:
		w, err = gzip.NewWriterLevel(&buf, gzip.BestCompression)
	case Brotli:
		w = brotli.NewWriterLevel(&buf, brotli.BestCompression)
	case Zstd:
		w, err = zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	default:
		return nil, fmt.Errorf("unknown precompression format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteSiblings reads path and writes path+ext for each format. It
// returns the paths written.
func WriteSiblings(path string, formats []Format) ([]string, error) {
	if len(formats) == 0 {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	written := make([]string, 0, len(formats))
	for _, format := range formats {
		compressed, err := Compress(format, data)
		if err != nil {
			return written, fmt.Errorf("%s: compressing %s: %w", path, format, err)
		}
		target := path + format.Extension()
		if err := os.WriteFile(target, compressed, 0o644); err != nil {
			return written, err
		}
		written = append(written, target)
	}
	return written, nil
}
