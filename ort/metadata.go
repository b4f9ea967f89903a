package ort

import "fmt"

// InputNames returns the model's input tensor names in graph order.
func (s *DynamicAdvancedSession) InputNames() ([]string, error) {
	if s == nil {
		return nil, fmt.Errorf("session is nil")
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.handle == 0 {
		return nil, fmt.Errorf("session has been destroyed")
	}
	return sessionTensorNames(s.handle, false)
}

// OutputNames returns the model's output tensor names in graph order.
func (s *DynamicAdvancedSession) OutputNames() ([]string, error) {
	if s == nil {
		return nil, fmt.Errorf("session is nil")
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.handle == 0 {
		return nil, fmt.Errorf("session has been destroyed")
	}
	return sessionTensorNames(s.handle, true)
}

// OutputMetadata returns element type and declared shape for the named
// output. Symbolic (data-dependent) dimensions are reported as -1.
func (s *DynamicAdvancedSession) OutputMetadata(name string) (OutputInfo, error) {
	if s == nil {
		return OutputInfo{}, fmt.Errorf("session is nil")
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.handle == 0 {
		return OutputInfo{}, fmt.Errorf("session has been destroyed")
	}

	names, err := sessionTensorNames(s.handle, true)
	if err != nil {
		return OutputInfo{}, err
	}
	for i, candidate := range names {
		if candidate == name {
			return sessionOutputInfo(s.handle, uintptr(i), name)
		}
	}
	return OutputInfo{}, fmt.Errorf("model has no output named %q", name)
}

// sessionTensorNames lists input names, or output names when output is true.
// The native func vars are snapshotted under mu like every other call path.
func sessionTensorNames(session uintptr, output bool) ([]string, error) {
	ortCallMu.RLock()
	defer ortCallMu.RUnlock()

	mu.Lock()
	countFn, nameFn := sessionGetInputCountFunc, sessionGetInputNameFunc
	if output {
		countFn, nameFn = sessionGetOutputCountFunc, sessionGetOutputNameFunc
	}
	getAllocator := getAllocatorWithDefaultOptionsFunc
	allocatorFree := allocatorFreeFunc
	initialized := ortAPI != nil
	mu.Unlock()

	if !initialized || countFn == nil || nameFn == nil || getAllocator == nil || allocatorFree == nil {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	var allocator uintptr
	if status := getAllocator(&allocator); status != 0 {
		return nil, fmt.Errorf("failed to get default allocator: %w", consumeStatus(status))
	}

	var count uintptr
	if status := countFn(session, &count); status != 0 {
		return nil, fmt.Errorf("failed to query tensor count: %w", consumeStatus(status))
	}

	names := make([]string, 0, count)
	for i := uintptr(0); i < count; i++ {
		var namePtr uintptr
		if status := nameFn(session, i, allocator, &namePtr); status != 0 {
			return nil, fmt.Errorf("failed to query tensor name %d: %w", i, consumeStatus(status))
		}
		names = append(names, CstringToGo(namePtr))
		allocatorFree(allocator, namePtr)
	}
	return names, nil
}

func sessionOutputInfo(session uintptr, index uintptr, name string) (OutputInfo, error) {
	ortCallMu.RLock()
	defer ortCallMu.RUnlock()

	mu.Lock()
	getTypeInfo := sessionGetOutputTypeInfoFunc
	castToTensorInfo := castTypeInfoToTensorInfoFunc
	getElementType := getTensorElementTypeFunc
	getDimCount := getDimensionsCountFunc
	getDims := getDimensionsFunc
	releaseTypeInfo := releaseTypeInfoFunc
	mu.Unlock()

	if getTypeInfo == nil || castToTensorInfo == nil || releaseTypeInfo == nil {
		return OutputInfo{}, fmt.Errorf("ONNX Runtime not initialized")
	}

	var typeInfo uintptr
	if status := getTypeInfo(session, index, &typeInfo); status != 0 {
		return OutputInfo{}, fmt.Errorf("failed to query output %q type info: %w", name, consumeStatus(status))
	}
	defer releaseTypeInfo(typeInfo)

	// The tensor info is borrowed from the TypeInfo and must not be released
	// separately.
	var tensorInfo uintptr
	if status := castToTensorInfo(typeInfo, &tensorInfo); status != 0 {
		return OutputInfo{}, fmt.Errorf("failed to read output %q tensor info: %w", name, consumeStatus(status))
	}
	if tensorInfo == 0 {
		return OutputInfo{}, fmt.Errorf("output %q is not a tensor", name)
	}

	var elementType int32
	if status := getElementType(tensorInfo, &elementType); status != 0 {
		return OutputInfo{}, fmt.Errorf("failed to read output %q element type: %w", name, consumeStatus(status))
	}

	var dimCount uintptr
	if status := getDimCount(tensorInfo, &dimCount); status != 0 {
		return OutputInfo{}, fmt.Errorf("failed to read output %q rank: %w", name, consumeStatus(status))
	}

	shape := make(Shape, dimCount)
	if dimCount > 0 {
		if status := getDims(tensorInfo, &shape[0], dimCount); status != 0 {
			return OutputInfo{}, fmt.Errorf("failed to read output %q dimensions: %w", name, consumeStatus(status))
		}
	}

	return OutputInfo{
		Name:        name,
		ElementType: TensorElementDataType(elementType),
		Shape:       shape,
	}, nil
}
