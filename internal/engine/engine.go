// Package engine implements the minification engine that lib/ exports over
// the C ABI. It holds the process-wide minifier configuration and performs
// bounded in-memory and file-to-file minification.
//
// An Engine is safe for concurrent use: Configure swaps the whole
// configuration atomically, so a minification running concurrently with
// Configure sees either the old or the new configuration, never a mix.
package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/parse/v2/buffer"
)

// ErrOutputOverflow is returned when a minifier produces more bytes than
// the caller's output buffer holds. Minification never grows its input, so
// this signals a minifier bug rather than a caller error.
var ErrOutputOverflow = errors.New("output exceeds input length")

// Engine is the mutable minifier configuration shared by every call.
type Engine struct {
	m      atomic.Pointer[minify.M]
	logger *slog.Logger
}

// New returns an Engine configured with every minifier at its defaults.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := &Engine{logger: logger}
	e.m.Store(defaultSettings().build())
	return e
}

// Configure rebuilds every minifier from defaults, applies keys[i]=values[i]
// in order, and installs the result. Keys left out revert to their
// defaults. On error the previous configuration stays active.
func (e *Engine) Configure(keys, values []string) error {
	if len(keys) != len(values) {
		return fmt.Errorf("config has %d keys but %d values", len(keys), len(values))
	}
	s := defaultSettings()
	for i, key := range keys {
		if err := s.apply(key, values[i]); err != nil {
			return err
		}
	}
	e.m.Store(s.build())
	e.logger.Debug("minifier configuration replaced", "keys", len(keys))
	return nil
}

// MinifyInto minifies input as mediatype into output and returns the number
// of bytes written. output must have at least len(input) capacity. If
// cap(input) > len(input) and the byte after the input is NUL, the parser
// uses it as its end sentinel instead of copying the input.
func (e *Engine) MinifyInto(mediatype string, input, output []byte) (int, error) {
	w := buffer.NewWriter(output[:0])
	if err := e.m.Load().Minify(mediatype, w, buffer.NewReader(input)); err != nil {
		return 0, err
	}
	b := w.Bytes()
	if len(b) > cap(output) {
		return 0, ErrOutputOverflow
	}
	// The writer only reallocates past cap(output), so b normally aliases
	// output already and the copy is a no-op.
	return copy(output[:len(b)], b), nil
}

// Minify minifies input as mediatype into a freshly allocated slice.
func (e *Engine) Minify(mediatype string, input []byte) ([]byte, error) {
	output := make([]byte, len(input))
	n, err := e.MinifyInto(mediatype, input, output)
	if err != nil {
		return nil, err
	}
	return output[:n], nil
}

// MinifyFile minifies the file at inputPath into outputPath. The output is
// written to a temporary file in the destination directory and renamed
// into place, so a failed call leaves no partial output behind and
// inputPath may equal outputPath. A symlink at outputPath is followed and
// its target replaced. The result takes the permissions of the file it
// replaces, or of the input when there is none; ownership of a replaced
// file is not kept.
func (e *Engine) MinifyFile(mediatype, inputPath, outputPath string) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	mode := info.Mode().Perm()

	target, err := resolveOutput(outputPath)
	if err != nil {
		return err
	}
	if existing, err := os.Stat(target); err == nil {
		mode = existing.Mode().Perm()
	}

	out, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return err
	}
	tmpPath := out.Name()
	fail := func(err error) error {
		out.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := out.Chmod(mode); err != nil {
		return fail(err)
	}
	if err := e.m.Load().Minify(mediatype, out, in); err != nil {
		return fail(err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return err
	}
	e.logger.Debug("minified file", "mediatype", mediatype, "input", inputPath, "output", target)
	return nil
}

// resolveOutput follows symlinks at path. A missing path, or a symlink
// whose target does not exist yet, resolves to the path to create.
func resolveOutput(path string) (string, error) {
	for range maxSymlinks {
		info, err := os.Lstat(path)
		if errors.Is(err, fs.ErrNotExist) || (err == nil && info.Mode()&fs.ModeSymlink == 0) {
			return path, nil
		}
		if err != nil {
			return "", err
		}
		target, err := os.Readlink(path)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		path = target
	}
	return "", fmt.Errorf("%s: too many levels of symbolic links", path)
}

const maxSymlinks = 40
