//go:build windows

package ort

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func loadLibrary(path string) (uintptr, error) {
	handle, err := windows.LoadLibrary(path)
	if err != nil {
		return 0, fmt.Errorf("failed to load %q: %w", path, err)
	}
	if handle == 0 {
		return 0, fmt.Errorf("failed to load %q", path)
	}
	return uintptr(handle), nil
}

func getSymbol(handle uintptr, symbol string) (uintptr, error) {
	proc, err := windows.GetProcAddress(windows.Handle(handle), symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve symbol %q: %w", symbol, err)
	}
	return uintptr(unsafe.Pointer(proc)), nil
}

func closeLibrary(handle uintptr) error {
	if handle == 0 {
		return nil
	}
	return windows.FreeLibrary(windows.Handle(handle))
}
