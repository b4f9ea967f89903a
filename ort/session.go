package ort

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"
)

// AdvancedSession is an inference session with inputs and outputs bound at
// creation time. Run() reads the input tensors and writes the output tensors
// in place, which suits repeated fixed-shape inference.
//
// Run() may be called from multiple goroutines; calls are serialized per
// session. Destroy() waits for any in-flight Run() to finish.
type AdvancedSession struct {
	handle       uintptr // Pointer to OrtSession
	inputNames   []string
	outputNames  []string
	inputValues  []Value
	outputValues []Value
	runMu        sync.Mutex
}

// NewAdvancedSession creates a session for modelPath with pre-bound input and
// output values. options may be nil for runtime defaults.
func NewAdvancedSession(modelPath string, inputNames []string, outputNames []string,
	inputValues []Value, outputValues []Value, options *SessionOptions) (*AdvancedSession, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("model path cannot be empty")
	}
	if len(inputNames) == 0 {
		return nil, fmt.Errorf("at least one input name is required")
	}
	if len(outputNames) == 0 {
		return nil, fmt.Errorf("at least one output name is required")
	}
	if len(inputNames) != len(inputValues) {
		return nil, fmt.Errorf("input names/values count mismatch: %d names, %d values", len(inputNames), len(inputValues))
	}
	if len(outputNames) != len(outputValues) {
		return nil, fmt.Errorf("output names/values count mismatch: %d names, %d values", len(outputNames), len(outputValues))
	}
	if _, err := collectValueHandles("input", inputValues); err != nil {
		return nil, err
	}
	if _, err := collectValueHandles("output", outputValues); err != nil {
		return nil, err
	}

	handle, err := createNativeSession(modelPath, options)
	if err != nil {
		return nil, err
	}

	session := &AdvancedSession{
		handle:       handle,
		inputNames:   append([]string(nil), inputNames...),
		outputNames:  append([]string(nil), outputNames...),
		inputValues:  append([]Value(nil), inputValues...),
		outputValues: append([]Value(nil), outputValues...),
	}
	return session, nil
}

// Run executes one forward pass over the pre-bound values. Blocking; no
// cancellation. Results appear in the output tensors bound at creation.
func (s *AdvancedSession) Run() error {
	if s == nil {
		return fmt.Errorf("session is nil")
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.handle == 0 {
		return fmt.Errorf("session has been destroyed")
	}

	inputHandles, err := collectValueHandles("input", s.inputValues)
	if err != nil {
		return err
	}
	outputHandles, err := collectValueHandles("output", s.outputValues)
	if err != nil {
		return err
	}

	return runNativeSession(s.handle, s.inputNames, inputHandles, s.outputNames, outputHandles)
}

// Destroy releases the session. Idempotent and safe on nil; waits for any
// in-flight Run() first. The bound tensors are the caller's to destroy.
func (s *AdvancedSession) Destroy() error {
	if s == nil {
		return nil
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	handle := s.handle
	s.handle = 0
	s.inputNames = nil
	s.outputNames = nil
	s.inputValues = nil
	s.outputValues = nil

	releaseNativeSession(handle)
	return nil
}

// DynamicAdvancedSession is an inference session without pre-bound values:
// each Run call supplies its own tensor names and values, which suits models
// with data-dependent shapes (audio of arbitrary length, for example).
type DynamicAdvancedSession struct {
	handle uintptr
	runMu  sync.Mutex
}

// NewDynamicAdvancedSession creates a session for modelPath. options may be
// nil for runtime defaults.
func NewDynamicAdvancedSession(modelPath string, options *SessionOptions) (*DynamicAdvancedSession, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("model path cannot be empty")
	}

	handle, err := createNativeSession(modelPath, options)
	if err != nil {
		return nil, err
	}
	return &DynamicAdvancedSession{handle: handle}, nil
}

// Run executes one forward pass binding the given values by name. Output
// values must be pre-allocated tensors sized for the model's output.
func (s *DynamicAdvancedSession) Run(inputNames []string, inputValues []Value, outputNames []string, outputValues []Value) error {
	if s == nil {
		return fmt.Errorf("session is nil")
	}
	if len(inputNames) == 0 || len(inputNames) != len(inputValues) {
		return fmt.Errorf("input names/values count mismatch: %d names, %d values", len(inputNames), len(inputValues))
	}
	if len(outputNames) == 0 || len(outputNames) != len(outputValues) {
		return fmt.Errorf("output names/values count mismatch: %d names, %d values", len(outputNames), len(outputValues))
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.handle == 0 {
		return fmt.Errorf("session has been destroyed")
	}

	inputHandles, err := collectValueHandles("input", inputValues)
	if err != nil {
		return err
	}
	outputHandles, err := collectValueHandles("output", outputValues)
	if err != nil {
		return err
	}

	return runNativeSession(s.handle, inputNames, inputHandles, outputNames, outputHandles)
}

// RunFloat32 executes one forward pass letting ONNX Runtime allocate the
// single named float32 output, then copies it into Go memory and releases
// the native value. The returned slice and shape are owned by the caller.
func (s *DynamicAdvancedSession) RunFloat32(inputNames []string, inputValues []Value, outputName string) (Shape, []float32, error) {
	if s == nil {
		return nil, nil, fmt.Errorf("session is nil")
	}
	if len(inputNames) == 0 || len(inputNames) != len(inputValues) {
		return nil, nil, fmt.Errorf("input names/values count mismatch: %d names, %d values", len(inputNames), len(inputValues))
	}
	if outputName == "" {
		return nil, nil, fmt.Errorf("output name cannot be empty")
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.handle == 0 {
		return nil, nil, fmt.Errorf("session has been destroyed")
	}

	inputHandles, err := collectValueHandles("input", inputValues)
	if err != nil {
		return nil, nil, err
	}

	// A zero output handle tells ORT to allocate the output itself.
	outputHandles := []uintptr{0}
	if err := runNativeSession(s.handle, inputNames, inputHandles, []string{outputName}, outputHandles); err != nil {
		return nil, nil, err
	}
	if outputHandles[0] == 0 {
		return nil, nil, fmt.Errorf("inference produced no value for output %q", outputName)
	}

	return copyFloat32Value(outputHandles[0])
}

// Destroy releases the session. Idempotent and safe on nil; waits for any
// in-flight Run first.
func (s *DynamicAdvancedSession) Destroy() error {
	if s == nil {
		return nil
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	handle := s.handle
	s.handle = 0
	releaseNativeSession(handle)
	return nil
}

func createNativeSession(modelPath string, options *SessionOptions) (uintptr, error) {
	if options != nil && options.handle == 0 {
		return 0, fmt.Errorf("session options handle is not initialized")
	}

	ortCallMu.RLock()
	defer ortCallMu.RUnlock()

	mu.Lock()
	if ortAPI == nil || createSessionFunc == nil {
		mu.Unlock()
		return 0, fmt.Errorf("ONNX Runtime not initialized")
	}
	createSession := createSessionFunc
	env := ortEnv
	mu.Unlock()

	pathPtr, pathBacking, err := goStringToORTChar(modelPath)
	if err != nil {
		return 0, err
	}

	var optionsHandle uintptr
	if options != nil {
		optionsHandle = options.handle
	}

	var handle uintptr
	status := createSession(env, pathPtr, optionsHandle, &handle)
	runtime.KeepAlive(pathBacking)
	if status != 0 {
		return 0, fmt.Errorf("failed to create session: %w", consumeStatus(status))
	}
	runtime.KeepAlive(options)
	return handle, nil
}

// runNativeSession invokes OrtApi::Run. outputHandles entries may be zero to
// request runtime-allocated outputs; allocated handles are written back.
func runNativeSession(session uintptr, inputNames []string, inputHandles []uintptr, outputNames []string, outputHandles []uintptr) error {
	ortCallMu.RLock()
	defer ortCallMu.RUnlock()

	mu.Lock()
	if ortAPI == nil || runSessionFunc == nil {
		mu.Unlock()
		return fmt.Errorf("ONNX Runtime not initialized")
	}
	runSession := runSessionFunc
	mu.Unlock()

	inputNameBackings, inputNamePtrs := makeCStringPointerArray(inputNames)
	outputNameBackings, outputNamePtrs := makeCStringPointerArray(outputNames)

	status := runSession(
		session,
		0,
		sliceFirst(inputNamePtrs),
		sliceFirst(inputHandles),
		uintptr(len(inputHandles)),
		sliceFirst(outputNamePtrs),
		uintptr(len(outputHandles)),
		sliceFirst(outputHandles),
	)
	runtime.KeepAlive(inputNameBackings)
	runtime.KeepAlive(outputNameBackings)
	if status != 0 {
		return fmt.Errorf("failed to run inference: %w", consumeStatus(status))
	}
	return nil
}

func releaseNativeSession(handle uintptr) {
	if handle == 0 {
		return
	}

	ortCallMu.RLock()
	defer ortCallMu.RUnlock()

	mu.Lock()
	release := releaseSessionFunc
	mu.Unlock()

	if release != nil {
		release(handle)
	}
}

// collectValueHandles validates that every value carries a live OrtValue
// handle and returns the handles in order.
func collectValueHandles(kind string, values []Value) ([]uintptr, error) {
	handles := make([]uintptr, len(values))
	for i, value := range values {
		carrier, ok := value.(ortValueCarrier)
		if !ok {
			return nil, fmt.Errorf("unsupported value implementation at %s index %d: %T", kind, i, value)
		}
		handle := carrier.ortValueHandle()
		if handle == 0 {
			return nil, fmt.Errorf("%s value at index %d has been destroyed", kind, i)
		}
		handles[i] = handle
	}
	return handles, nil
}

func sliceFirst(values []uintptr) *uintptr {
	if len(values) == 0 {
		return nil
	}
	return unsafe.SliceData(values)
}

// copyFloat32Value copies a float32 OrtValue into Go memory and releases the
// native value. Caller must be inside the session runMu critical section or
// otherwise own the handle exclusively.
func copyFloat32Value(value uintptr) (Shape, []float32, error) {
	mu.Lock()
	getTypeAndShape := getTensorTypeAndShapeFunc
	getElementType := getTensorElementTypeFunc
	getDimCount := getDimensionsCountFunc
	getDims := getDimensionsFunc
	getElementCount := getTensorShapeElementCountFunc
	getMutableData := getTensorMutableDataFunc
	releaseInfo := releaseTensorTypeAndShapeInfoFunc
	releaseValue := releaseValueFunc
	mu.Unlock()

	if getTypeAndShape == nil || getMutableData == nil || releaseValue == nil {
		return nil, nil, fmt.Errorf("ONNX Runtime not initialized")
	}
	defer releaseValue(value)

	var infoHandle uintptr
	if status := getTypeAndShape(value, &infoHandle); status != 0 {
		return nil, nil, fmt.Errorf("failed to query output type and shape: %w", consumeStatus(status))
	}
	defer releaseInfo(infoHandle)

	var elementType int32
	if status := getElementType(infoHandle, &elementType); status != 0 {
		return nil, nil, fmt.Errorf("failed to query output element type: %w", consumeStatus(status))
	}
	if TensorElementDataType(elementType) != TensorElementDataTypeFloat {
		return nil, nil, fmt.Errorf("output element type is %d, expected float32", elementType)
	}

	var dimCount uintptr
	if status := getDimCount(infoHandle, &dimCount); status != 0 {
		return nil, nil, fmt.Errorf("failed to query output rank: %w", consumeStatus(status))
	}

	shape := make(Shape, dimCount)
	if dimCount > 0 {
		if status := getDims(infoHandle, unsafe.SliceData(shape), dimCount); status != 0 {
			return nil, nil, fmt.Errorf("failed to query output dimensions: %w", consumeStatus(status))
		}
	}

	var elementCount uintptr
	if status := getElementCount(infoHandle, &elementCount); status != 0 {
		return nil, nil, fmt.Errorf("failed to query output element count: %w", consumeStatus(status))
	}

	data := make([]float32, elementCount)
	if elementCount > 0 {
		var dataPtr uintptr
		if status := getMutableData(value, &dataPtr); status != 0 {
			return nil, nil, fmt.Errorf("failed to read output data: %w", consumeStatus(status))
		}
		// #nosec G103 -- Required for CGO-free FFI; the source buffer is owned by the OrtValue released below.
		src := unsafe.Slice((*float32)(unsafe.Pointer(dataPtr)), elementCount)
		copy(data, src)
	}

	return shape, data, nil
}
