//go:build !windows

package ort

import (
	"fmt"

	"github.com/ebitengine/purego"
)

func loadLibrary(path string) (uintptr, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, fmt.Errorf("failed to load %q: %w", path, err)
	}
	if handle == 0 {
		return 0, fmt.Errorf("failed to load %q", path)
	}
	return handle, nil
}

func getSymbol(handle uintptr, symbol string) (uintptr, error) {
	addr, err := purego.Dlsym(handle, symbol)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve symbol %q: %w", symbol, err)
	}
	return addr, nil
}

func closeLibrary(handle uintptr) error {
	if handle == 0 {
		return nil
	}
	return purego.Dlclose(handle)
}
