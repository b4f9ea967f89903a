package ort

const (
	// ORT_API_VERSION is the ONNX Runtime C API version this binding targets.
	// Must not exceed the version implemented by the loaded shared library.
	ORT_API_VERSION = 22
)

// LoggingLevel mirrors OrtLoggingLevel.
type LoggingLevel int

const (
	LoggingLevelVerbose LoggingLevel = iota
	LoggingLevelInfo
	LoggingLevelWarning
	LoggingLevelError
	LoggingLevelFatal
)

// ErrorCode mirrors OrtErrorCode, the failure category carried by an
// OrtStatus.
type ErrorCode int

const (
	ErrorCodeOK ErrorCode = iota
	ErrorCodeFail
	ErrorCodeInvalidArgument
	ErrorCodeNoSuchFile
	ErrorCodeNoModel
	ErrorCodeEngineError
	ErrorCodeRuntimeException
	ErrorCodeInvalidProtobuf
	ErrorCodeModelLoaded
	ErrorCodeNotImplemented
	ErrorCodeInvalidGraph
	ErrorCodeEPFail
	ErrorCodeModelLoadCanceled
	ErrorCodeModelRequiresCompilation
)

// TensorElementDataType mirrors ONNXTensorElementDataType. Only the
// entries up to BFloat16 are defined; this binding creates none beyond
// int64/float64.
type TensorElementDataType int

const (
	TensorElementDataTypeUndefined TensorElementDataType = iota
	TensorElementDataTypeFloat
	TensorElementDataTypeUint8
	TensorElementDataTypeInt8
	TensorElementDataTypeUint16
	TensorElementDataTypeInt16
	TensorElementDataTypeInt32
	TensorElementDataTypeInt64
	TensorElementDataTypeString
	TensorElementDataTypeBool
	TensorElementDataTypeFloat16
	TensorElementDataTypeDouble
	TensorElementDataTypeUint32
	TensorElementDataTypeUint64
	TensorElementDataTypeComplex64
	TensorElementDataTypeComplex128
	TensorElementDataTypeBFloat16
)

// AllocatorType mirrors OrtAllocatorType.
type AllocatorType int

const (
	AllocatorTypeInvalid AllocatorType = -1
	AllocatorTypeDevice  AllocatorType = 0
	AllocatorTypeArena   AllocatorType = 1
)

// MemType mirrors OrtMemType.
type MemType int

const (
	MemTypeCPUInput  MemType = -2
	MemTypeCPUOutput MemType = -1
	MemTypeCPU       MemType = MemTypeCPUOutput
	MemTypeDefault   MemType = 0
)

// GraphOptimizationLevel mirrors the C API's graph optimization tiers.
type GraphOptimizationLevel int

const (
	GraphOptimizationLevelDisableAll GraphOptimizationLevel = iota
	GraphOptimizationLevelEnableBasic
	GraphOptimizationLevelEnableExtended
	GraphOptimizationLevelEnableAll
)

// ExecutionProvider names accepted by SessionOptions.AppendExecutionProvider.
const (
	ExecutionProviderCoreML = "coreml"
	ExecutionProviderCUDA   = "cuda"
)
