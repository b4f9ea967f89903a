package ort

import "unsafe"

// CstringToGo converts a C null-terminated string pointer to a Go string.
// Returns "" when ptr is 0 (null).
func CstringToGo(ptr uintptr) string {
	// Addresses inside the first page are never valid C strings; treat them
	// like null rather than faulting.
	if ptr < 4096 {
		return ""
	}

	// Scan for the terminator through a bounded slice view. The 1 MiB cap
	// avoids checkptr issues when walking C-allocated memory; ORT strings
	// (version, error messages, tensor names) are far smaller, and anything
	// past the cap would indicate corruption anyway.
	const maxStringLen = 1 << 20
	bytes := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), maxStringLen)

	var length int
	for i := 0; i < maxStringLen; i++ {
		if bytes[i] == 0 {
			length = i
			break
		}
	}

	return string(bytes[:length])
}

// GoToCstring converts a Go string to a null-terminated byte slice suitable
// for passing to C functions. Returns the backing slice and a uintptr to its
// first byte. The caller MUST keep the returned []byte alive (for example
// with runtime.KeepAlive) for as long as the C side may read the pointer.
func GoToCstring(s string) ([]byte, uintptr) {
	b := append([]byte(s), 0)
	return b, uintptr(unsafe.Pointer(&b[0]))
}

// makeCStringPointerArray converts names to an array of C string pointers
// plus the backing slices that must outlive any native call using them.
func makeCStringPointerArray(names []string) ([][]byte, []uintptr) {
	if len(names) == 0 {
		return nil, nil
	}

	backings := make([][]byte, len(names))
	ptrs := make([]uintptr, len(names))
	for i, name := range names {
		backings[i], ptrs[i] = GoToCstring(name)
	}
	return backings, ptrs
}
