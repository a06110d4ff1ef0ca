//go:build !(darwin || freebsd || linux)

package minify

import (
	"errors"
	"runtime"
	"unsafe"
)

func load(path string) (nativeFuncs, error) {
	return nativeFuncs{}, errors.New("loading shared libraries is not supported on " + runtime.GOOS)
}

func goString(ptr unsafe.Pointer) string {
	var n int
	for *(*byte)(unsafe.Add(ptr, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(ptr), n))
}
