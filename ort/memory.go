package ort

import (
	"fmt"
	"runtime"
)

// CreateMemoryInfo wraps OrtApi::CreateMemoryInfo. The returned MemoryInfo
// must be destroyed by the caller.
func CreateMemoryInfo(name string, allocatorType AllocatorType, deviceID int, memType MemType) (*MemoryInfo, error) {
	mu.Lock()
	defer mu.Unlock()

	if createMemoryInfoFunc == nil {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	nameBytes, namePtr := GoToCstring(name)
	defer runtime.KeepAlive(nameBytes)

	var handle uintptr
	status := createMemoryInfoFunc(namePtr, allocatorType, int32(deviceID), memType, &handle)
	if status != 0 {
		return nil, fmt.Errorf("failed to create memory info: %w", consumeStatus(status))
	}

	info := &MemoryInfo{
		handle:        handle,
		name:          name,
		memType:       memType,
		allocatorType: allocatorType,
		deviceID:      deviceID,
	}

	// Safety net in case Destroy() is never called.
	runtime.SetFinalizer(info, func(m *MemoryInfo) {
		_ = m.Destroy()
	})

	return info, nil
}

// CreateCpuMemoryInfo creates memory info for host CPU memory, the only
// placement the tensor path uses.
func CreateCpuMemoryInfo(allocatorType AllocatorType, memType MemType) (*MemoryInfo, error) {
	return CreateMemoryInfo("Cpu", allocatorType, 0, memType)
}

// Destroy releases the native OrtMemoryInfo. Idempotent.
func (m *MemoryInfo) Destroy() error {
	mu.Lock()
	defer mu.Unlock()

	if m.handle == 0 {
		return nil
	}

	if releaseMemoryInfoFunc != nil {
		releaseMemoryInfoFunc(m.handle)
	}

	m.handle = 0
	runtime.SetFinalizer(m, nil)
	return nil
}

// Name returns the allocator name the memory info was created with.
func (m *MemoryInfo) Name() string {
	return m.name
}

// MemType returns the memory type.
func (m *MemoryInfo) MemType() MemType {
	return m.memType
}

// AllocatorType returns the allocator type.
func (m *MemoryInfo) AllocatorType() AllocatorType {
	return m.allocatorType
}

// DeviceID returns the device id.
func (m *MemoryInfo) DeviceID() int {
	return m.deviceID
}

// IsValid reports whether the native handle is still live.
func (m *MemoryInfo) IsValid() bool {
	return m.handle != 0
}
