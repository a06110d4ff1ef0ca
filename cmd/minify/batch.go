package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"

	"github.com/wilsonzlin/minify-ffi"
	"github.com/wilsonzlin/minify-ffi/internal/manifest"
	"github.com/wilsonzlin/minify-ffi/internal/precompress"
)

var extensionTypes = map[string]string{
	".css":  "text/css",
	".htm":  "text/html",
	".html": "text/html",
	".js":   "application/javascript",
	".mjs":  "application/javascript",
	".json": "application/json",
	".svg":  "image/svg+xml",
	".xml":  "text/xml",
}

// inferMediaType maps a file extension to the media type the engine
// registers for it.
func inferMediaType(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if mediaType, ok := extensionTypes[ext]; ok {
		return mediaType, nil
	}
	return "", fmt.Errorf("%s: cannot infer media type from extension %q; use --type", path, ext)
}

// job is one file to minify. An empty output means standard output.
type job struct {
	input     string
	output    string
	mediaType string
}

// selection decides which files are minified.
type selection struct {
	// recursive walks directory inputs.
	recursive bool
	// hidden includes dot files and dot directories in walks.
	hidden bool
	// match, if set, must match the base name of every file.
	match *regexp.Regexp
	// anyType accepts files with no known extension; --type names their
	// media type.
	anyType bool
}

// source is an input file and its path relative to the input it came
// from, which is where it lands under an output directory.
type source struct {
	path string
	rel  string
}

func (s selection) matches(name string) bool {
	if s.match != nil && !s.match.MatchString(name) {
		return false
	}
	if s.anyType {
		return true
	}
	_, ok := extensionTypes[strings.ToLower(filepath.Ext(name))]
	return ok
}

func (s selection) visible(name string) bool {
	return s.hidden || !strings.HasPrefix(name, ".")
}

// expand turns inputs into the files to minify. It reports whether any
// input was a directory.
func (s selection) expand(inputs []string) ([]source, bool, error) {
	var sources []source
	walked := false
	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			return nil, false, err
		}
		switch {
		case info.Mode().IsRegular():
			if s.match == nil || s.match.MatchString(info.Name()) {
				sources = append(sources, source{path: input, rel: info.Name()})
			}
		case info.IsDir():
			if !s.recursive {
				return nil, false, fmt.Errorf("%s is a directory; use --recursive", input)
			}
			walked = true
			err := filepath.WalkDir(input, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if path == input {
					return nil
				}
				if d.IsDir() {
					if !s.visible(d.Name()) {
						return filepath.SkipDir
					}
					return nil
				}
				if !d.Type().IsRegular() || !s.visible(d.Name()) || !s.matches(d.Name()) {
					return nil
				}
				rel, err := filepath.Rel(input, path)
				if err != nil {
					return err
				}
				sources = append(sources, source{path: path, rel: rel})
				return nil
			})
			if err != nil {
				return nil, false, err
			}
		default:
			return nil, false, fmt.Errorf("%s is not a file or directory", input)
		}
	}
	return sources, walked, nil
}

// planJobs resolves the media type and output path of every selected
// file. output is a file when there is one input file and output is not a
// directory; it is a directory otherwise, and walked files keep their
// path relative to the directory they were found in.
func planJobs(inputs []string, output, mediaType string, sel selection) ([]job, error) {
	sel.anyType = sel.anyType || mediaType != ""
	sources, walked, err := sel.expand(inputs)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, errors.New("no files to minify")
	}

	dirOutput := len(sources) > 1 || walked || strings.HasSuffix(output, string(filepath.Separator))
	if !dirOutput && output != "" {
		if info, err := os.Stat(output); err == nil && info.IsDir() {
			dirOutput = true
		}
	}
	if dirOutput && output == "" {
		return nil, errors.New("multiple inputs need --output naming a directory")
	}

	jobs := make([]job, 0, len(sources))
	seen := make(map[string]string, len(sources))
	for _, src := range sources {
		j := job{input: src.path, mediaType: mediaType, output: output}
		if j.mediaType == "" {
			inferred, err := inferMediaType(src.path)
			if err != nil {
				return nil, err
			}
			j.mediaType = inferred
		}
		if dirOutput {
			j.output = filepath.Join(output, src.rel)
		}
		if j.output != "" {
			if previous, ok := seen[j.output]; ok {
				return nil, fmt.Errorf("%s and %s both write %s", previous, src.path, j.output)
			}
			seen[j.output] = src.path
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// listTypes writes every recognized extension and its media type.
func listTypes(w io.Writer) error {
	exts := make([]string, 0, len(extensionTypes))
	for ext := range extensionTypes {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	for _, ext := range exts {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", strings.TrimPrefix(ext, "."), extensionTypes[ext]); err != nil {
			return err
		}
	}
	return nil
}

// fileMinifier is satisfied by *pool.Pool and libraryMinifier.
type fileMinifier interface {
	MinifyFile(ctx context.Context, mediaType, inputPath, outputPath string) error
}

type libraryMinifier struct {
	lib *minify.Library
}

func (m libraryMinifier) MinifyFile(ctx context.Context, mediaType, inputPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.lib.MinifyFile(mediaType, inputPath, outputPath)
}

// batch minifies jobs with up to parallel calls in flight and runs the
// per-output steps (precompression, manifest) after each one.
type batch struct {
	minifier fileMinifier
	parallel int
	formats  []precompress.Format
	manifest *manifest.Manifest
	logger   *slog.Logger
}

func (b *batch) enableManifest() {
	b.manifest = manifest.New()
}

func (b *batch) run(ctx context.Context, jobs []job) error {
	if b.logger == nil {
		b.logger = slog.New(slog.DiscardHandler)
	}
	errs := make([]error, len(jobs))
	var inputBytes, outputBytes atomic.Int64
	semaphore := make(chan struct{}, max(b.parallel, 1))
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-semaphore }()
			in, out, err := b.one(ctx, j)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", j.input, err)
				return
			}
			inputBytes.Add(in)
			outputBytes.Add(out)
		}(i, j)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return err
	}
	b.logger.Info("minified",
		"files", len(jobs),
		"input", humanize.Bytes(uint64(inputBytes.Load())),
		"output", humanize.Bytes(uint64(outputBytes.Load())),
	)
	return nil
}

// one minifies a single job and returns the input and output sizes.
func (b *batch) one(ctx context.Context, j job) (int64, int64, error) {
	info, err := os.Stat(j.input)
	if err != nil {
		return 0, 0, err
	}
	if err := os.MkdirAll(filepath.Dir(j.output), 0o755); err != nil {
		return 0, 0, err
	}
	if err := b.minifier.MinifyFile(ctx, j.mediaType, j.input, j.output); err != nil {
		return 0, 0, err
	}
	if _, err := precompress.WriteSiblings(j.output, b.formats); err != nil {
		return 0, 0, err
	}
	outInfo, err := os.Stat(j.output)
	if err != nil {
		return 0, 0, err
	}
	if b.manifest != nil {
		if err := b.manifest.Add(j.output, j.mediaType, info.Size()); err != nil {
			return 0, 0, err
		}
	}
	b.logger.Debug("minified file", "input", j.input, "output", j.output,
		"before", humanize.Bytes(uint64(info.Size())), "after", humanize.Bytes(uint64(outInfo.Size())))
	return info.Size(), outInfo.Size(), nil
}
