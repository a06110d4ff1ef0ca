package minify

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

// fakeEngine implements the engine's C ABI in Go so the bridge can be
// tested without a shared library.
type fakeEngine struct {
	keys, values []string
	files        [][3]string
	live         map[unsafe.Pointer][]byte
	freed        int
	overflow     bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{live: make(map[unsafe.Pointer][]byte)}
}

func (f *fakeEngine) fail(message string) unsafe.Pointer {
	buf, _ := encode(message)
	ptr := unsafe.Pointer(&buf[0])
	f.live[ptr] = buf
	return ptr
}

func (f *fakeEngine) library() *Library {
	return &Library{path: "fake", native: nativeFuncs{
		config: f.config,
		str:    f.str,
		file:   f.file,
		free: func(ptr unsafe.Pointer) {
			if _, ok := f.live[ptr]; !ok {
				panic("free of pointer the engine did not allocate")
			}
			delete(f.live, ptr)
			f.freed++
		},
	}}
}

func (f *fakeEngine) config(keys, values unsafe.Pointer, count int64) unsafe.Pointer {
	f.keys, f.values = nil, nil
	if count == 0 {
		if keys != nil || values != nil {
			return f.fail("non-nil arrays for empty config")
		}
		return nil
	}
	for i, ptr := range unsafe.Slice((*unsafe.Pointer)(keys), count) {
		f.keys = append(f.keys, goString(ptr))
		f.values = append(f.values, goString(unsafe.Slice((*unsafe.Pointer)(values), count)[i]))
	}
	for _, key := range f.keys {
		if key == "bogus" {
			return f.fail("unknown config key: bogus")
		}
	}
	return nil
}

func (f *fakeEngine) str(mediaType, input unsafe.Pointer, inputLength int64, output, outputLength unsafe.Pointer) unsafe.Pointer {
	if output == nil {
		return f.fail("nil output buffer")
	}
	in := unsafe.Slice((*byte)(input), inputLength+1)
	if in[inputLength] != 0 {
		return f.fail("input is not NUL-terminated")
	}
	in = in[:inputLength]

	var result []byte
	switch goString(mediaType) {
	case "text/plain":
		result = []byte(strings.Join(strings.Fields(string(in)), " "))
	case "application/octet-stream":
		result = in
	default:
		return f.fail("minifier does not exist for mimetype")
	}
	if f.overflow {
		*(*int64)(outputLength) = inputLength + 1
		return nil
	}
	copy(unsafe.Slice((*byte)(output), inputLength), result)
	*(*int64)(outputLength) = int64(len(result))
	return nil
}

func (f *fakeEngine) file(mediaType, inputPath, outputPath unsafe.Pointer) unsafe.Pointer {
	f.files = append(f.files, [3]string{goString(mediaType), goString(inputPath), goString(outputPath)})
	if goString(inputPath) == "missing" {
		return f.fail("open missing: no such file or directory")
	}
	return nil
}

func TestMinify(t *testing.T) {
	engine := newFakeEngine()
	out, err := engine.library().Minify("text/plain", "  some   spaced\ttext  ")
	require.NoError(t, err)
	require.Equal(t, "some spaced text", out)
}

func TestMinifyEmptyInput(t *testing.T) {
	engine := newFakeEngine()
	out, err := engine.library().Minify("text/plain", "")
	require.NoError(t, err)
	require.Equal(t, "", out)
}

func TestMinifyKeepsEmbeddedNUL(t *testing.T) {
	engine := newFakeEngine()
	input := "a\x00b\x00\x00c"
	out, err := engine.library().Minify("application/octet-stream", input)
	require.NoError(t, err)
	require.Equal(t, input, out)
}

func TestMinifyNonUTF8PassesThrough(t *testing.T) {
	engine := newFakeEngine()
	input := "\xff\xfe x"
	out, err := engine.library().Minify("application/octet-stream", input)
	require.NoError(t, err)
	require.Equal(t, input, out)
}

func TestMinifyUnknownMediaType(t *testing.T) {
	engine := newFakeEngine()
	_, err := engine.library().Minify("bogus/type", "x")

	var minifyErr *MinificationError
	require.True(t, errors.As(err, &minifyErr))
	require.Equal(t, "bogus/type", minifyErr.MediaType)
	require.Equal(t, "minifier does not exist for mimetype", minifyErr.Message)
	require.Equal(t, 1, engine.freed)
	require.Empty(t, engine.live)
}

func TestMinifyRejectsOverlongOutput(t *testing.T) {
	engine := newFakeEngine()
	engine.overflow = true
	_, err := engine.library().Minify("text/plain", "abc")

	var minifyErr *MinificationError
	require.ErrorAs(t, err, &minifyErr)
	require.Contains(t, minifyErr.Message, "4 bytes written into a 3 byte buffer")
}

func TestConfigureStringifiesValues(t *testing.T) {
	engine := newFakeEngine()
	err := engine.library().Configure(Options{
		"js-version":         IntValue(2020),
		"css-precision":      IntValue(-1),
		"html-keep-comments": BoolValue(true),
		"js-engine":          StringValue("esbuild"),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"css-precision", "html-keep-comments", "js-engine", "js-version"}, engine.keys)
	require.Equal(t, []string{"-1", "true", "esbuild", "2020"}, engine.values)
}

func TestConfigureEmpty(t *testing.T) {
	engine := newFakeEngine()
	require.NoError(t, engine.library().Configure(nil))
	require.Empty(t, engine.keys)
}

func TestConfigureError(t *testing.T) {
	engine := newFakeEngine()
	err := engine.library().Configure(Options{"bogus": BoolValue(false)})

	var configErr *ConfigurationError
	require.ErrorAs(t, err, &configErr)
	require.Equal(t, "unknown config key: bogus", configErr.Message)
	require.Equal(t, 1, engine.freed)
}

func TestMinifyFile(t *testing.T) {
	engine := newFakeEngine()
	lib := engine.library()
	require.NoError(t, lib.MinifyFile("text/html", "in.html", "out.html"))
	require.Equal(t, [][3]string{{"text/html", "in.html", "out.html"}}, engine.files)

	err := lib.MinifyFile("text/html", "missing", "out.html")
	var minifyErr *MinificationError
	require.ErrorAs(t, err, &minifyErr)
	require.Contains(t, minifyErr.Message, "no such file")
	require.Empty(t, engine.live)
}

func TestErrorWithoutFreeIsStillDecoded(t *testing.T) {
	engine := newFakeEngine()
	lib := engine.library()
	lib.native.free = nil

	_, err := lib.Minify("bogus/type", "x")
	require.ErrorAs(t, err, new(*MinificationError))
	require.Zero(t, engine.freed)
}

func TestValueString(t *testing.T) {
	require.Equal(t, "abc", StringValue("abc").String())
	require.Equal(t, "false", BoolValue(false).String())
	require.Equal(t, "42", IntValue(42).String())
	require.Equal(t, "", Value{}.String())
}

func TestParseValue(t *testing.T) {
	require.Equal(t, IntValue(1), ParseValue("1"))
	require.Equal(t, BoolValue(true), ParseValue("true"))
	require.Equal(t, StringValue("esbuild"), ParseValue("esbuild"))
	require.Equal(t, StringValue("T"), ParseValue("T"))
}

func TestDecode(t *testing.T) {
	buf := append(make([]byte, 0, 5), "hello"...)[:0]
	out, err := decode(buf, 3)
	require.NoError(t, err)
	require.Equal(t, "hel", out)

	_, err = decode(buf, -1)
	require.Error(t, err)
	_, err = decode(buf, 6)
	require.Error(t, err)
}

func TestOpenMissingLibrary(t *testing.T) {
	_, err := Open("/nonexistent/libminify.so")

	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, "/nonexistent/libminify.so", loadErr.Path)
}

func TestLibraryPathFromEnvironment(t *testing.T) {
	t.Setenv(LibraryEnv, "/opt/minify/libminify.so")
	path, err := LibraryPath()
	require.NoError(t, err)
	require.Equal(t, "/opt/minify/libminify.so", path)
}

// resetDefault clears the Default library so a test can exercise its
// first load, and clears it again when the test ends.
func resetDefault(t *testing.T) {
	t.Helper()
	reset := func() {
		defaultOnce = sync.Once{}
		defaultLibrary, defaultErr = nil, nil
	}
	reset()
	t.Cleanup(reset)
}

func TestDefaultLoadsOnce(t *testing.T) {
	resetDefault(t)
	missing := filepath.Join(t.TempDir(), "libminify.so")
	t.Setenv(LibraryEnv, missing)

	first, err := Default()
	require.Nil(t, first)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, missing, loadErr.Path)

	// A later path change is not picked up: the first result sticks.
	t.Setenv(LibraryEnv, filepath.Join(t.TempDir(), "other.so"))
	second, err2 := Default()
	require.Nil(t, second)
	require.Same(t, err, err2)

	_, err = Minify("text/css", "a{}")
	require.Same(t, err2, err)
	require.ErrorAs(t, Configure(Options{}), &loadErr)
	require.ErrorAs(t, MinifyFile("text/css", "in.css", "out.css"), &loadErr)
	require.Equal(t, missing, loadErr.Path)
}
