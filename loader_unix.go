//go:build darwin || freebsd || linux

package minify

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

func load(path string) (nativeFuncs, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nativeFuncs{}, err
	}

	var native nativeFuncs
	required := []struct {
		fptr any
		name string
	}{
		{&native.config, "minifyConfig"},
		{&native.str, "minifyString"},
		{&native.file, "minifyFile"},
	}
	for _, fn := range required {
		sym, err := purego.Dlsym(handle, fn.name)
		if err != nil {
			return nativeFuncs{}, fmt.Errorf("resolving %s: %w", fn.name, err)
		}
		purego.RegisterFunc(fn.fptr, sym)
	}
	if sym, err := purego.Dlsym(handle, "minifyFree"); err == nil {
		purego.RegisterFunc(&native.free, sym)
	}
	return native, nil
}

// goString copies a NUL-terminated C string.
func goString(ptr unsafe.Pointer) string {
	return unix.BytePtrToString((*byte)(ptr))
}
