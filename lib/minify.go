// Build with:
//
//	go build -buildmode=c-shared -o libminify.so ./lib
//
// Every export returns NULL on success or an error message allocated with
// malloc. Callers release error messages with minifyFree.
package main

// #include <stdlib.h>
import "C"
import (
	"log/slog"
	"os"
	"unsafe"

	"github.com/wilsonzlin/minify-ffi/internal/engine"
)

// global is the engine configuration shared by every caller in the
// process. It lives until the process exits.
var global = engine.New(newLogger())

func newLogger() *slog.Logger {
	if os.Getenv("MINIFY_DEBUG") == "" {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func goBytes(ptr *C.char, length, capacity C.longlong) []byte {
	if ptr == nil || capacity == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), capacity)[:length]
}

func goStringArray(carr **C.char, length C.longlong) []string {
	if carr == nil || length <= 0 {
		return []string{}
	}
	arr := unsafe.Slice(carr, length)
	strs := make([]string, length)
	for i := range strs {
		strs[i] = C.GoString(arr[i])
	}
	return strs
}

func cError(err error) *C.char {
	if err == nil {
		return nil
	}
	return C.CString(err.Error())
}

//export minifyConfig
func minifyConfig(ckeys, cvals **C.char, length C.longlong) *C.char {
	keys := goStringArray(ckeys, length)
	vals := goStringArray(cvals, length)
	return cError(global.Configure(keys, vals))
}

//export minifyString
func minifyString(cmediatype, cinput *C.char, inputLength C.longlong, coutput *C.char, outputLength *C.longlong) *C.char {
	mediatype := C.GoString(cmediatype)
	input := goBytes(cinput, inputLength, inputLength+1) // +1 for the NUL sentinel used by the parser
	output := goBytes(coutput, inputLength, inputLength)

	n, err := global.MinifyInto(mediatype, input, output)
	if err != nil {
		return cError(err)
	}
	*outputLength = C.longlong(n)
	return nil
}

//export minifyFile
func minifyFile(cmediatype, cinput, coutput *C.char) *C.char {
	return cError(global.MinifyFile(C.GoString(cmediatype), C.GoString(cinput), C.GoString(coutput)))
}

//export minifyFree
func minifyFree(ptr *C.char) {
	if ptr != nil {
		C.free(unsafe.Pointer(ptr))
	}
}

func main() {}
