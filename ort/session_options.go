package ort

import (
	"fmt"
	"runtime"

	"github.com/ebitengine/purego"
)

// providerAppendSymbols maps execution provider names to the legacy append
// symbols exported directly by the shared library (these predate the OrtApi
// table and are still the stable way to enable a provider without cgo).
var providerAppendSymbols = map[string]string{
	ExecutionProviderCoreML: "OrtSessionOptionsAppendExecutionProvider_CoreML",
	ExecutionProviderCUDA:   "OrtSessionOptionsAppendExecutionProvider_CUDA",
}

// SessionOptions configures session creation: thread counts, graph
// optimization level, and execution providers.
type SessionOptions struct {
	handle uintptr // Pointer to OrtSessionOptions
}

// NewSessionOptions creates an options object with runtime defaults.
func NewSessionOptions() (*SessionOptions, error) {
	mu.Lock()
	create := createSessionOptionsFunc
	mu.Unlock()

	if create == nil {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	var handle uintptr
	status := create(&handle)
	if status != 0 {
		return nil, fmt.Errorf("failed to create session options: %w", consumeStatus(status))
	}

	options := &SessionOptions{handle: handle}
	runtime.SetFinalizer(options, func(o *SessionOptions) {
		_ = o.Destroy()
	})
	return options, nil
}

// SetIntraOpNumThreads sets the intra-op thread count. Zero keeps the
// runtime's own default.
func (o *SessionOptions) SetIntraOpNumThreads(numThreads int) error {
	if numThreads < 0 {
		return fmt.Errorf("thread count cannot be negative: %d", numThreads)
	}

	mu.Lock()
	setThreads := setIntraOpNumThreadsFunc
	mu.Unlock()

	if o == nil || o.handle == 0 {
		return fmt.Errorf("session options handle is not initialized")
	}
	if setThreads == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	// #nosec G115 -- negative values rejected above.
	status := setThreads(o.handle, int32(numThreads))
	if status != 0 {
		return fmt.Errorf("failed to set intra-op thread count: %w", consumeStatus(status))
	}
	return nil
}

// SetGraphOptimizationLevel sets the graph optimization level.
func (o *SessionOptions) SetGraphOptimizationLevel(level GraphOptimizationLevel) error {
	mu.Lock()
	setLevel := setSessionGraphOptimizationLevelFunc
	mu.Unlock()

	if o == nil || o.handle == 0 {
		return fmt.Errorf("session options handle is not initialized")
	}
	if setLevel == nil {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	status := setLevel(o.handle, int32(level))
	if status != 0 {
		return fmt.Errorf("failed to set graph optimization level: %w", consumeStatus(status))
	}
	return nil
}

// AppendExecutionProvider enables a hardware execution provider by name
// (see ExecutionProvider* constants). Fails when the loaded runtime was
// built without the provider, which callers should treat as "accelerator
// unavailable" rather than a fatal condition.
func (o *SessionOptions) AppendExecutionProvider(name string) error {
	symbol, ok := providerAppendSymbols[name]
	if !ok {
		return fmt.Errorf("unknown execution provider %q", name)
	}

	mu.Lock()
	lib := ortLib
	mu.Unlock()

	if o == nil || o.handle == 0 {
		return fmt.Errorf("session options handle is not initialized")
	}
	if lib == 0 {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	sym, err := getSymbol(lib, symbol)
	if err != nil || sym == 0 {
		return fmt.Errorf("execution provider %q is not available in this ONNX Runtime build", name)
	}

	var appendProvider func(options uintptr, flags uint32) uintptr
	purego.RegisterFunc(&appendProvider, sym)

	status := appendProvider(o.handle, 0)
	if status != 0 {
		return fmt.Errorf("failed to enable execution provider %q: %w", name, consumeStatus(status))
	}
	return nil
}

// Destroy releases the options. Idempotent and safe on nil.
func (o *SessionOptions) Destroy() error {
	if o == nil {
		return nil
	}

	mu.Lock()
	defer mu.Unlock()

	if o.handle == 0 {
		return nil
	}
	if releaseSessionOptionsFunc != nil {
		releaseSessionOptionsFunc(o.handle)
	}
	o.handle = 0
	runtime.SetFinalizer(o, nil)
	return nil
}
