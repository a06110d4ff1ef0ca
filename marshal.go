package minify

import (
	"fmt"
	"runtime"
	"unsafe"
)

// encode copies text into a NUL-terminated byte slice and returns it with
// the length of text. The bytes are passed as-is; no UTF-8 validation
// happens on this side of the boundary.
func encode(text string) ([]byte, int64) {
	buf := make([]byte, len(text)+1)
	copy(buf, text)
	return buf, int64(len(text))
}

// decode returns the first length bytes of buf as a string. It never scans
// for a NUL terminator, so output containing NUL bytes survives intact.
func decode(buf []byte, length int64) (string, error) {
	if length < 0 || length > int64(cap(buf)) {
		return "", fmt.Errorf("engine reported %d bytes written into a %d byte buffer", length, cap(buf))
	}
	return string(buf[:length]), nil
}

// newOutputBuffer returns an empty slice with the given capacity. Zero
// capacity still gets a backing array so the engine never receives a nil
// buffer pointer.
func newOutputBuffer(capacity int64) []byte {
	if capacity == 0 {
		return make([]byte, 1)[:0:0]
	}
	return make([]byte, 0, capacity)
}

// cStringArray holds a C char** built from Go strings. The strings and the
// pointer array stay pinned until release is called.
type cStringArray struct {
	bufs   [][]byte
	ptrs   []unsafe.Pointer
	pinner runtime.Pinner
}

func newCStringArray(strs []string) *cStringArray {
	a := &cStringArray{
		bufs: make([][]byte, len(strs)),
		ptrs: make([]unsafe.Pointer, len(strs)),
	}
	for i, s := range strs {
		a.bufs[i], _ = encode(s)
		a.pinner.Pin(&a.bufs[i][0])
		a.ptrs[i] = unsafe.Pointer(&a.bufs[i][0])
	}
	if len(a.ptrs) > 0 {
		a.pinner.Pin(&a.ptrs[0])
	}
	return a
}

// pointer returns the char** to pass to the engine, or nil when empty.
func (a *cStringArray) pointer() unsafe.Pointer {
	if len(a.ptrs) == 0 {
		return nil
	}
	return unsafe.Pointer(&a.ptrs[0])
}

func (a *cStringArray) release() {
	a.pinner.Unpin()
}

// bufferPointer returns the address of buf's backing array, which
// newOutputBuffer and encode guarantee is non-nil.
func bufferPointer(buf []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(buf))
}
