package minify

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"unsafe"
)

// LibraryEnv names the environment variable that overrides the engine
// library path.
const LibraryEnv = "MINIFY_LIBRARY"

// nativeFuncs is the engine's C ABI as Go function values. free is nil
// when the engine does not export minifyFree.
type nativeFuncs struct {
	config func(keys, values unsafe.Pointer, count int64) unsafe.Pointer
	str    func(mediaType, input unsafe.Pointer, inputLength int64, output, outputLength unsafe.Pointer) unsafe.Pointer
	file   func(mediaType, inputPath, outputPath unsafe.Pointer) unsafe.Pointer
	free   func(ptr unsafe.Pointer)
}

// Library is a loaded engine. Its methods may be called from any
// goroutine; see the package documentation for what that implies for the
// engine's shared configuration.
type Library struct {
	path   string
	native nativeFuncs
}

var (
	logger atomic.Pointer[slog.Logger]

	defaultOnce    sync.Once
	defaultLibrary *Library
	defaultErr     error
)

func init() {
	logger.Store(slog.New(slog.DiscardHandler))
}

// SetLogger sets the logger used for loader diagnostics.
func SetLogger(l *slog.Logger) {
	logger.Store(l)
}

// LibraryPath returns where Default loads the engine from: $MINIFY_LIBRARY
// if set, else the platform library name next to the running executable.
func LibraryPath() (string, error) {
	if path := os.Getenv(LibraryEnv); path != "" {
		return path, nil
	}
	executable, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(executable), libraryName()), nil
}

func libraryName() string {
	if runtime.GOOS == "darwin" {
		return "libminify.dylib"
	}
	return "libminify.so"
}

// Default loads the engine from LibraryPath on first use and returns the
// same Library, or the same *LoadError, on every later call.
func Default() (*Library, error) {
	defaultOnce.Do(func() {
		path, err := LibraryPath()
		if err != nil {
			defaultErr = &LoadError{Path: libraryName(), Err: err}
			return
		}
		defaultLibrary, defaultErr = Open(path)
	})
	return defaultLibrary, defaultErr
}

// Open loads the engine at path. Loading the same path twice returns two
// Library values over one engine instance.
func Open(path string) (*Library, error) {
	native, err := load(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if native.free == nil {
		logger.Load().Warn("engine does not export minifyFree; error messages will not be released", "path", path)
	}
	logger.Load().Debug("loaded minify engine", "path", path)
	return &Library{path: path, native: native}, nil
}

// Path returns the path the library was loaded from.
func (l *Library) Path() string {
	return l.path
}

// check decodes a returned error pointer. It reports ok for NULL;
// otherwise it copies the message and releases the engine's memory.
func (l *Library) check(ret unsafe.Pointer) (message string, ok bool) {
	if ret == nil {
		return "", true
	}
	message = goString(ret)
	if l.native.free != nil {
		l.native.free(ret)
	}
	return message, false
}

// Configure replaces the engine's process-wide configuration. Keys are
// sent in sorted order, so which bad key gets reported is deterministic.
func (l *Library) Configure(options Options) error {
	keys := make([]string, 0, len(options))
	for key := range options {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	values := make([]string, len(keys))
	for i, key := range keys {
		values[i] = options[key].String()
	}

	ckeys := newCStringArray(keys)
	defer ckeys.release()
	cvalues := newCStringArray(values)
	defer cvalues.release()

	ret := l.native.config(ckeys.pointer(), cvalues.pointer(), int64(len(keys)))
	if message, ok := l.check(ret); !ok {
		return &ConfigurationError{Message: message}
	}
	return nil
}

// Minify minifies text as mediaType. The output buffer is sized to the
// input since minification never grows it.
func (l *Library) Minify(mediaType, text string) (string, error) {
	cMediaType, _ := encode(mediaType)
	input, inputLength := encode(text)
	output := newOutputBuffer(inputLength)
	outputLength := new(int64)

	var pinner runtime.Pinner
	defer pinner.Unpin()
	pinner.Pin(&cMediaType[0])
	pinner.Pin(&input[0])
	pinner.Pin(unsafe.SliceData(output))
	pinner.Pin(outputLength)

	ret := l.native.str(bufferPointer(cMediaType), bufferPointer(input), inputLength,
		bufferPointer(output), unsafe.Pointer(outputLength))
	if message, ok := l.check(ret); !ok {
		return "", &MinificationError{MediaType: mediaType, Message: message}
	}
	result, err := decode(output, *outputLength)
	if err != nil {
		return "", &MinificationError{MediaType: mediaType, Message: err.Error()}
	}
	return result, nil
}

// MinifyFile minifies the file at inputPath into outputPath. The engine
// does its own I/O.
func (l *Library) MinifyFile(mediaType, inputPath, outputPath string) error {
	cMediaType, _ := encode(mediaType)
	cInput, _ := encode(inputPath)
	cOutput, _ := encode(outputPath)

	var pinner runtime.Pinner
	defer pinner.Unpin()
	pinner.Pin(&cMediaType[0])
	pinner.Pin(&cInput[0])
	pinner.Pin(&cOutput[0])

	ret := l.native.file(bufferPointer(cMediaType), bufferPointer(cInput), bufferPointer(cOutput))
	if message, ok := l.check(ret); !ok {
		return &MinificationError{MediaType: mediaType, Message: message}
	}
	return nil
}

// Configure calls Configure on the Default library.
func Configure(options Options) error {
	l, err := Default()
	if err != nil {
		return err
	}
	return l.Configure(options)
}

// Minify calls Minify on the Default library.
func Minify(mediaType, text string) (string, error) {
	l, err := Default()
	if err != nil {
		return "", err
	}
	return l.Minify(mediaType, text)
}

// MinifyFile calls MinifyFile on the Default library.
func MinifyFile(mediaType, inputPath, outputPath string) error {
	l, err := Default()
	if err != nil {
		return err
	}
	return l.MinifyFile(mediaType, inputPath, outputPath)
}
