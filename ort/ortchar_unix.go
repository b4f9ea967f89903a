//go:build !windows

package ort

// goStringToORTChar converts a Go string to the ORTCHAR_T form ORT expects
// on Unix, a NUL-terminated byte string. The caller must keep the returned
// backing object alive until ORT is done with the pointer.
func goStringToORTChar(s string) (uintptr, any, error) {
	bytes, ptr := GoToCstring(s)
	return ptr, bytes, nil
}
