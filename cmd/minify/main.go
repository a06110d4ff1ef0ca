// minify minifies HTML, CSS, JavaScript, JSON, SVG, and XML through the
// native minification engine.
//
// Usage:
//
//	minify [flags] [input...]
//	minify worker
//	minify version
//
// With no inputs, standard input is minified to standard output and
// --type is required. With one input and no --output, the result goes to
// standard output. Otherwise --output names the output file (one input) or
// directory, created if missing. Directories are walked with --recursive,
// keeping their layout under the output directory.
//
// With --workers greater than 1, files are minified through a pool of
// "minify worker" processes, each with its own engine.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"runtime/debug"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/wilsonzlin/minify-ffi"
	"github.com/wilsonzlin/minify-ffi/internal/config"
	"github.com/wilsonzlin/minify-ffi/internal/precompress"
	"github.com/wilsonzlin/minify-ffi/pool"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type flags struct {
	mediaType   string
	output      string
	configPath  string
	overrides   []string
	library     string
	workers     int
	precompress string
	manifest    string
	recursive   bool
	hidden      bool
	match       string
	list        bool
}

func run(args []string) error {
	if len(args) > 0 {
		switch args[0] {
		case "worker":
			return runWorker()
		case "version", "--version":
			fmt.Printf("minify %s\n", version())
			return nil
		}
	}

	var f flags
	flagSet := pflag.NewFlagSet("minify", pflag.ContinueOnError)
	flagSet.StringVarP(&f.mediaType, "type", "t", "", "media type (default: inferred from the file extension)")
	flagSet.StringVarP(&f.output, "output", "o", "", "output file (one input) or directory")
	flagSet.StringVarP(&f.configPath, "config", "c", "", "engine config file (.yaml, .yml, .json, .jsonc); default $"+config.EnvVar)
	flagSet.StringArrayVar(&f.overrides, "set", nil, "engine config override key=value (repeatable)")
	flagSet.StringVar(&f.library, "library", "", "engine library path; default $"+minify.LibraryEnv)
	flagSet.IntVarP(&f.workers, "workers", "j", 1, "number of worker processes; more than 1 minifies through a process pool")
	flagSet.StringVar(&f.precompress, "precompress", "", "also write compressed copies of each output: comma list of gzip, br, zstd")
	flagSet.StringVar(&f.manifest, "manifest", "", "write a JSON manifest of output BLAKE3 hashes to this path")
	flagSet.BoolVarP(&f.recursive, "recursive", "r", false, "minify directories recursively")
	flagSet.BoolVarP(&f.hidden, "all", "a", false, "include hidden files and directories when recursing")
	flagSet.StringVar(&f.match, "match", "", "only minify files whose name matches this regular expression")
	flagSet.BoolVarP(&f.list, "list", "l", false, "list recognized file extensions and their media types")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: minify [flags] [input...]\n       minify worker\n       minify version\n\n")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if f.list {
		return listTypes(os.Stdout)
	}
	sel := selection{recursive: f.recursive, hidden: f.hidden}
	if f.match != "" {
		pattern, err := regexp.Compile(f.match)
		if err != nil {
			return fmt.Errorf("--match: %w", err)
		}
		sel.match = pattern
	}

	logger := newLogger()
	minify.SetLogger(logger)

	if f.library != "" {
		if err := os.Setenv(minify.LibraryEnv, f.library); err != nil {
			return err
		}
	}
	options, err := loadOptions(f.configPath, f.overrides)
	if err != nil {
		return err
	}
	formats, err := precompress.ParseFormats(f.precompress)
	if err != nil {
		return err
	}

	inputs := flagSet.Args()
	if len(inputs) == 0 {
		if f.mediaType == "" {
			return errors.New("--type is required when reading standard input")
		}
		if term.IsTerminal(int(os.Stdin.Fd())) {
			return errors.New("no inputs given and standard input is a terminal")
		}
		if len(formats) > 0 || f.manifest != "" {
			return errors.New("--precompress and --manifest need file outputs")
		}
		lib, err := openLibrary(options)
		if err != nil {
			return err
		}
		return minifyStream(lib, f.mediaType, os.Stdin, os.Stdout)
	}

	jobs, err := planJobs(inputs, f.output, f.mediaType, sel)
	if err != nil {
		return err
	}
	if len(jobs) == 1 && jobs[0].output == "" {
		if len(formats) > 0 || f.manifest != "" {
			return errors.New("--precompress and --manifest need --output")
		}
		lib, err := openLibrary(options)
		if err != nil {
			return err
		}
		in, err := os.Open(jobs[0].input)
		if err != nil {
			return err
		}
		defer in.Close()
		return minifyStream(lib, jobs[0].mediaType, in, os.Stdout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var m fileMinifier
	if f.workers > 1 {
		p, err := pool.Start(ctx, pool.Options{Workers: f.workers, Config: options, Logger: logger})
		if err != nil {
			return err
		}
		defer p.Close()
		m = p
	} else {
		lib, err := openLibrary(options)
		if err != nil {
			return err
		}
		m = libraryMinifier{lib}
	}

	b := &batch{
		minifier: m,
		parallel: max(f.workers, 1),
		formats:  formats,
		logger:   logger,
	}
	if f.manifest != "" {
		b.enableManifest()
	}
	if err := b.run(ctx, jobs); err != nil {
		return err
	}
	if f.manifest != "" {
		return b.manifest.WriteFile(f.manifest)
	}
	return nil
}

// runWorker serves the pool protocol on stdin and stdout with this
// process's engine.
func runWorker() error {
	logger := newLogger()
	minify.SetLogger(logger)
	lib, err := minify.Default()
	if err != nil {
		return err
	}
	logger.Debug("worker serving", "library", lib.Path(), "pid", os.Getpid())
	return pool.Serve(os.Stdin, os.Stdout, lib)
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if os.Getenv("MINIFY_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadOptions reads the config file, if any, and applies key=value
// overrides on top of it.
func loadOptions(configPath string, overrides []string) (minify.Options, error) {
	options := minify.Options{}
	if path := config.Resolve(configPath); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return nil, err
		}
		options = loaded
	}
	for _, override := range overrides {
		key, value, err := config.ParseOverride(override)
		if err != nil {
			return nil, err
		}
		options[key] = value
	}
	return options, nil
}

func openLibrary(options minify.Options) (*minify.Library, error) {
	lib, err := minify.Default()
	if err != nil {
		return nil, err
	}
	if len(options) > 0 {
		if err := lib.Configure(options); err != nil {
			return nil, err
		}
	}
	return lib, nil
}

func minifyStream(lib *minify.Library, mediaType string, r io.Reader, w io.Writer) error {
	input, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	output, err := lib.Minify(mediaType, string(input))
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, output)
	return err
}

func version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "(devel)"
	}
	return info.Main.Version
}
