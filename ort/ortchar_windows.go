//go:build windows

package ort

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// goStringToORTChar converts a Go string to the ORTCHAR_T form ORT expects
// on Windows, a NUL-terminated UTF-16 string. The caller must keep the
// returned backing object alive until ORT is done with the pointer.
func goStringToORTChar(s string) (uintptr, any, error) {
	utf16, err := windows.UTF16FromString(s)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to convert path %q to UTF-16: %w", s, err)
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(utf16))), utf16, nil
}
