package ort

import "fmt"

// OrtApiBase mirrors the C OrtApiBase struct returned by OrtGetApiBase.
type OrtApiBase struct {
	GetApi           uintptr
	GetVersionString uintptr
}

// OrtApi mirrors the leading portion of the ONNX Runtime C API function
// pointer table. Field order must match onnxruntime_c_api.h exactly; entries
// we never call are still declared so the offsets of the ones we do call stay
// correct. Regenerate with tools/gen_ortapi.go when bumping the runtime
// version.
type OrtApi struct {
	CreateStatus    uintptr
	GetErrorCode    uintptr
	GetErrorMessage uintptr

	CreateEnv                 uintptr
	CreateEnvWithCustomLogger uintptr
	EnableTelemetryEvents     uintptr
	DisableTelemetryEvents    uintptr

	CreateSession          uintptr
	CreateSessionFromArray uintptr
	Run                    uintptr

	CreateSessionOptions             uintptr
	SetOptimizedModelFilePath        uintptr
	CloneSessionOptions              uintptr
	SetSessionExecutionMode          uintptr
	EnableProfiling                  uintptr
	DisableProfiling                 uintptr
	EnableMemPattern                 uintptr
	DisableMemPattern                uintptr
	EnableCpuMemArena                uintptr
	DisableCpuMemArena               uintptr
	SetSessionLogId                  uintptr
	SetSessionLogVerbosityLevel      uintptr
	SetSessionLogSeverityLevel       uintptr
	SetSessionGraphOptimizationLevel uintptr
	SetIntraOpNumThreads             uintptr
	SetInterOpNumThreads             uintptr

	CreateCustomOpDomain     uintptr
	CustomOpDomain_Add       uintptr
	AddCustomOpDomain        uintptr
	RegisterCustomOpsLibrary uintptr

	SessionGetInputCount                     uintptr
	SessionGetOutputCount                    uintptr
	SessionGetOverridableInitializerCount    uintptr
	SessionGetInputTypeInfo                  uintptr
	SessionGetOutputTypeInfo                 uintptr
	SessionGetOverridableInitializerTypeInfo uintptr
	SessionGetInputName                      uintptr
	SessionGetOutputName                     uintptr
	SessionGetOverridableInitializerName     uintptr

	CreateRunOptions                  uintptr
	RunOptionsSetRunLogVerbosityLevel uintptr
	RunOptionsSetRunLogSeverityLevel  uintptr
	RunOptionsSetRunTag               uintptr
	RunOptionsGetRunLogVerbosityLevel uintptr
	RunOptionsGetRunLogSeverityLevel  uintptr
	RunOptionsGetRunTag               uintptr
	RunOptionsSetTerminate            uintptr
	RunOptionsUnsetTerminate          uintptr

	CreateTensorAsOrtValue         uintptr
	CreateTensorWithDataAsOrtValue uintptr
	IsTensor                       uintptr
	GetTensorMutableData           uintptr

	FillStringTensor          uintptr
	GetStringTensorDataLength uintptr
	GetStringTensorContent    uintptr

	CastTypeInfoToTensorInfo     uintptr
	GetOnnxTypeFromTypeInfo      uintptr
	CreateTensorTypeAndShapeInfo uintptr
	SetTensorElementType         uintptr
	SetDimensions                uintptr

	GetTensorElementType       uintptr
	GetDimensionsCount         uintptr
	GetDimensions              uintptr
	GetSymbolicDimensions      uintptr
	GetTensorShapeElementCount uintptr
	GetTensorTypeAndShape      uintptr
	GetTypeInfo                uintptr
	GetValueType               uintptr

	CreateMemoryInfo     uintptr
	CreateCpuMemoryInfo  uintptr
	CompareMemoryInfo    uintptr
	MemoryInfoGetName    uintptr
	MemoryInfoGetId      uintptr
	MemoryInfoGetMemType uintptr
	MemoryInfoGetType    uintptr

	AllocatorAlloc                 uintptr
	AllocatorFree                  uintptr
	AllocatorGetInfo               uintptr
	GetAllocatorWithDefaultOptions uintptr

	AddFreeDimensionOverride uintptr

	GetValue          uintptr
	GetValueCount     uintptr
	CreateValue       uintptr
	CreateOpaqueValue uintptr
	GetOpaqueValue    uintptr

	KernelInfoGetAttribute_float  uintptr
	KernelInfoGetAttribute_int64  uintptr
	KernelInfoGetAttribute_string uintptr
	KernelContext_GetInputCount   uintptr
	KernelContext_GetOutputCount  uintptr
	KernelContext_GetInput        uintptr
	KernelContext_GetOutput       uintptr

	ReleaseEnv                    uintptr
	ReleaseStatus                 uintptr
	ReleaseMemoryInfo             uintptr
	ReleaseSession                uintptr
	ReleaseValue                  uintptr
	ReleaseRunOptions             uintptr
	ReleaseTypeInfo               uintptr
	ReleaseTensorTypeAndShapeInfo uintptr
	ReleaseSessionOptions         uintptr
	ReleaseCustomOpDomain         uintptr

	// Later entries exist in the C API but are not declared here; nothing in
	// this package reads past ReleaseCustomOpDomain.
}

// Status represents an ONNX Runtime status handle. A zero handle is success.
type Status struct {
	handle uintptr // Pointer to OrtStatus
}

// IsOK returns true if the status represents success
func (s *Status) IsOK() bool {
	return s.handle == 0
}

// GetErrorCode returns the error code recorded on the status. Before the
// runtime is initialized a failure status maps to ErrorCodeFail.
func (s *Status) GetErrorCode() ErrorCode {
	if s.IsOK() {
		return ErrorCodeOK
	}
	fn := getErrorCodeFunc
	if fn == nil {
		return ErrorCodeFail
	}
	return ErrorCode(fn(s.handle))
}

// GetErrorMessage returns the error message recorded on the status, or ""
// for a success status.
func (s *Status) GetErrorMessage() string {
	if s.IsOK() {
		return ""
	}
	return getErrorMessage(s.handle)
}

// StatusError is a failure reported by the ONNX Runtime C API. It carries the
// runtime's error code so callers can tell failure categories apart with
// errors.As.
type StatusError struct {
	Code    ErrorCode
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("onnxruntime error %d", e.Code)
	}
	return e.Message
}

// consumeStatus converts a failed OrtStatus handle into a StatusError and
// releases the handle. Returns nil for a success status. Callers either hold
// mu or are inside an ortCallMu read section, same as getErrorMessage.
func consumeStatus(handle uintptr) error {
	if handle == 0 {
		return nil
	}
	status := Status{handle: handle}
	err := &StatusError{Code: status.GetErrorCode(), Message: status.GetErrorMessage()}
	releaseStatus(handle)
	return err
}

// Value represents an ONNX Runtime value (tensor, sequence, map, etc.)
type Value interface {
	// Destroy releases the underlying resources
	Destroy() error
	// Type returns the type of the value
	Type() ValueType
}

// ValueType represents the type of an ONNX Runtime value
type ValueType int

const (
	ValueTypeUnknown ValueType = iota
	ValueTypeTensor
	ValueTypeSequence
	ValueTypeMap
	ValueTypeOpaque
	ValueTypeOptional
)

// ortValueCarrier is implemented by Value implementations backed by a native
// OrtValue handle. Sessions only accept values that carry a live handle.
type ortValueCarrier interface {
	ortValueHandle() uintptr
}

// MemoryInfo represents memory allocation information
type MemoryInfo struct {
	handle        uintptr // Pointer to OrtMemoryInfo
	name          string
	memType       MemType
	allocatorType AllocatorType
	deviceID      int
}

// OutputInfo describes one model output as reported by session metadata.
// Symbolic (data-dependent) dimensions are reported as -1.
type OutputInfo struct {
	Name        string
	ElementType TensorElementDataType
	Shape       Shape
}
