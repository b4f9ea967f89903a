package ort

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Global runtime state. mu guards every variable below; ortCallMu is held in
// read mode around native calls and in write mode while tearing resources
// down, so a Destroy never races an in-flight call into the shared library.
var (
	mu        sync.Mutex
	ortCallMu sync.RWMutex

	refCount int
	ortLib   uintptr
	ortAPI   *OrtApi
	ortEnv   uintptr
	libPath  string
	logLevel = LoggingLevelWarning

	getVersionStringFunc func() uintptr

	createEnvFunc       func(logSeverity int32, logID uintptr, env *uintptr) uintptr
	releaseEnvFunc      func(env uintptr)
	getErrorCodeFunc    func(status uintptr) int32
	getErrorMessageFunc func(status uintptr) uintptr
	releaseStatusFunc   func(status uintptr)

	createMemoryInfoFunc  func(name uintptr, allocatorType AllocatorType, deviceID int32, memType MemType, memInfo *uintptr) uintptr
	releaseMemoryInfoFunc func(memInfo uintptr)

	createTensorWithDataAsOrtValueFunc func(memInfo uintptr, data uintptr, dataLen uintptr, shape *int64, shapeLen uintptr, elementType TensorElementDataType, value *uintptr) uintptr
	getTensorTypeAndShapeFunc          func(value uintptr, info *uintptr) uintptr
	getTensorMutableDataFunc           func(value uintptr, data *uintptr) uintptr
	releaseValueFunc                   func(value uintptr)

	createSessionOptionsFunc             func(options *uintptr) uintptr
	setIntraOpNumThreadsFunc             func(options uintptr, numThreads int32) uintptr
	setSessionGraphOptimizationLevelFunc func(options uintptr, level int32) uintptr
	releaseSessionOptionsFunc            func(options uintptr)

	createSessionFunc  func(env uintptr, modelPath uintptr, options uintptr, session *uintptr) uintptr
	runSessionFunc     func(session uintptr, runOptions uintptr, inputNames *uintptr, inputValues *uintptr, inputLen uintptr, outputNames *uintptr, outputLen uintptr, outputValues *uintptr) uintptr
	releaseSessionFunc func(session uintptr)

	sessionGetInputCountFunc     func(session uintptr, count *uintptr) uintptr
	sessionGetOutputCountFunc    func(session uintptr, count *uintptr) uintptr
	sessionGetInputNameFunc      func(session uintptr, index uintptr, allocator uintptr, name *uintptr) uintptr
	sessionGetOutputNameFunc     func(session uintptr, index uintptr, allocator uintptr, name *uintptr) uintptr
	sessionGetOutputTypeInfoFunc func(session uintptr, index uintptr, typeInfo *uintptr) uintptr

	castTypeInfoToTensorInfoFunc      func(typeInfo uintptr, tensorInfo *uintptr) uintptr
	getTensorElementTypeFunc          func(tensorInfo uintptr, elementType *int32) uintptr
	getDimensionsCountFunc            func(tensorInfo uintptr, count *uintptr) uintptr
	getDimensionsFunc                 func(tensorInfo uintptr, dims *int64, count uintptr) uintptr
	getTensorShapeElementCountFunc    func(tensorInfo uintptr, count *uintptr) uintptr
	releaseTypeInfoFunc               func(typeInfo uintptr)
	releaseTensorTypeAndShapeInfoFunc func(tensorInfo uintptr)

	getAllocatorWithDefaultOptionsFunc func(allocator *uintptr) uintptr
	allocatorFreeFunc                  func(allocator uintptr, p uintptr) uintptr
)

// SetSharedLibraryPath sets the path to the ONNX Runtime shared library.
// The path cannot change while the environment is initialized.
func SetSharedLibraryPath(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if refCount > 0 {
		return fmt.Errorf("cannot change library path after environment is initialized")
	}
	libPath = path
	return nil
}

// SetLogLevel sets the severity level used when creating the ONNX Runtime
// environment. Like the library path, it is fixed while initialized.
func SetLogLevel(level LoggingLevel) error {
	mu.Lock()
	defer mu.Unlock()

	if refCount > 0 {
		return fmt.Errorf("cannot change log level after environment is initialized")
	}
	logLevel = level
	return nil
}

// IsInitialized returns true if the environment is initialized
func IsInitialized() bool {
	mu.Lock()
	defer mu.Unlock()
	return refCount > 0
}

// GetVersionString returns the ONNX Runtime version string, or "0.0.0-dev"
// when the environment has not been initialized.
func GetVersionString() string {
	mu.Lock()
	defer mu.Unlock()

	if refCount == 0 || getVersionStringFunc == nil {
		return "0.0.0-dev"
	}
	return CstringToGo(getVersionStringFunc())
}

// InitializeEnvironment loads the ONNX Runtime shared library, resolves the
// C API table, and creates the global OrtEnv. Initialization is reference
// counted: every successful call must be paired with DestroyEnvironment.
func InitializeEnvironment() error {
	mu.Lock()
	defer mu.Unlock()

	if refCount > 0 {
		refCount++
		return nil
	}

	if libPath == "" {
		return fmt.Errorf("library path not set, call SetSharedLibraryPath first")
	}

	lib, err := loadLibrary(libPath)
	if err != nil || lib == 0 {
		return fmt.Errorf("failed to load ONNX Runtime library %q: %w", libPath, err)
	}

	if err := bindRuntime(lib); err != nil {
		resetRuntimeBindings()
		_ = closeLibrary(lib)
		return err
	}

	logIDBytes, logIDPtr := GoToCstring("listen2")
	var env uintptr
	status := createEnvFunc(int32(logLevel), logIDPtr, &env)
	runtime.KeepAlive(logIDBytes)
	if status != 0 {
		statusErr := consumeStatus(status)
		resetRuntimeBindings()
		_ = closeLibrary(lib)
		return fmt.Errorf("failed to create ONNX Runtime environment: %w", statusErr)
	}

	ortLib = lib
	ortEnv = env
	refCount = 1
	return nil
}

// DestroyEnvironment releases one reference to the environment, tearing the
// runtime down when the count reaches zero. Calling it without a matching
// initialization is a no-op.
func DestroyEnvironment() error {
	// Lock order here is ortCallMu -> mu.
	ortCallMu.Lock()
	defer ortCallMu.Unlock()

	mu.Lock()
	defer mu.Unlock()

	if refCount == 0 {
		return nil
	}

	refCount--
	if refCount > 0 {
		return nil
	}

	if ortEnv != 0 && releaseEnvFunc != nil {
		releaseEnvFunc(ortEnv)
	}
	ortEnv = 0

	var err error
	if ortLib != 0 {
		if closeErr := closeLibrary(ortLib); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close ONNX Runtime library: %w", closeErr))
		}
	}
	ortLib = 0
	resetRuntimeBindings()

	return err
}

// bindRuntime resolves the OrtApi table from a loaded library and registers
// every C entry point this package calls. Caller holds mu.
func bindRuntime(lib uintptr) error {
	getAPIBaseSym, err := getSymbol(lib, "OrtGetApiBase")
	if err != nil || getAPIBaseSym == 0 {
		return fmt.Errorf("failed to resolve OrtGetApiBase in %q: %w", libPath, err)
	}

	var getAPIBase func() uintptr
	purego.RegisterFunc(&getAPIBase, getAPIBaseSym)
	basePtr := getAPIBase()
	if basePtr == 0 {
		return fmt.Errorf("OrtGetApiBase returned a null OrtApiBase")
	}
	// #nosec G103 -- Required for CGO-free FFI; OrtApiBase is a static C struct.
	base := (*OrtApiBase)(unsafe.Pointer(basePtr))

	purego.RegisterFunc(&getVersionStringFunc, base.GetVersionString)

	var getAPI func(version uint32) uintptr
	purego.RegisterFunc(&getAPI, base.GetApi)
	apiPtr := getAPI(ORT_API_VERSION)
	if apiPtr == 0 {
		return fmt.Errorf("ONNX Runtime at %q does not support C API version %d", libPath, ORT_API_VERSION)
	}
	// #nosec G103 -- Required for CGO-free FFI; the OrtApi table is static for the process lifetime.
	api := (*OrtApi)(unsafe.Pointer(apiPtr))

	purego.RegisterFunc(&createEnvFunc, api.CreateEnv)
	purego.RegisterFunc(&releaseEnvFunc, api.ReleaseEnv)
	purego.RegisterFunc(&getErrorCodeFunc, api.GetErrorCode)
	purego.RegisterFunc(&getErrorMessageFunc, api.GetErrorMessage)
	purego.RegisterFunc(&releaseStatusFunc, api.ReleaseStatus)

	purego.RegisterFunc(&createMemoryInfoFunc, api.CreateMemoryInfo)
	purego.RegisterFunc(&releaseMemoryInfoFunc, api.ReleaseMemoryInfo)

	purego.RegisterFunc(&createTensorWithDataAsOrtValueFunc, api.CreateTensorWithDataAsOrtValue)
	purego.RegisterFunc(&getTensorTypeAndShapeFunc, api.GetTensorTypeAndShape)
	purego.RegisterFunc(&getTensorMutableDataFunc, api.GetTensorMutableData)
	purego.RegisterFunc(&releaseValueFunc, api.ReleaseValue)

	purego.RegisterFunc(&createSessionOptionsFunc, api.CreateSessionOptions)
	purego.RegisterFunc(&setIntraOpNumThreadsFunc, api.SetIntraOpNumThreads)
	purego.RegisterFunc(&setSessionGraphOptimizationLevelFunc, api.SetSessionGraphOptimizationLevel)
	purego.RegisterFunc(&releaseSessionOptionsFunc, api.ReleaseSessionOptions)

	purego.RegisterFunc(&createSessionFunc, api.CreateSession)
	purego.RegisterFunc(&runSessionFunc, api.Run)
	purego.RegisterFunc(&releaseSessionFunc, api.ReleaseSession)

	purego.RegisterFunc(&sessionGetInputCountFunc, api.SessionGetInputCount)
	purego.RegisterFunc(&sessionGetOutputCountFunc, api.SessionGetOutputCount)
	purego.RegisterFunc(&sessionGetInputNameFunc, api.SessionGetInputName)
	purego.RegisterFunc(&sessionGetOutputNameFunc, api.SessionGetOutputName)
	purego.RegisterFunc(&sessionGetOutputTypeInfoFunc, api.SessionGetOutputTypeInfo)

	purego.RegisterFunc(&castTypeInfoToTensorInfoFunc, api.CastTypeInfoToTensorInfo)
	purego.RegisterFunc(&getTensorElementTypeFunc, api.GetTensorElementType)
	purego.RegisterFunc(&getDimensionsCountFunc, api.GetDimensionsCount)
	purego.RegisterFunc(&getDimensionsFunc, api.GetDimensions)
	purego.RegisterFunc(&getTensorShapeElementCountFunc, api.GetTensorShapeElementCount)
	purego.RegisterFunc(&releaseTypeInfoFunc, api.ReleaseTypeInfo)
	purego.RegisterFunc(&releaseTensorTypeAndShapeInfoFunc, api.ReleaseTensorTypeAndShapeInfo)

	purego.RegisterFunc(&getAllocatorWithDefaultOptionsFunc, api.GetAllocatorWithDefaultOptions)
	purego.RegisterFunc(&allocatorFreeFunc, api.AllocatorFree)

	ortAPI = api
	return nil
}

// resetRuntimeBindings clears every registered entry point. Caller holds mu.
func resetRuntimeBindings() {
	ortAPI = nil
	getVersionStringFunc = nil
	createEnvFunc = nil
	releaseEnvFunc = nil
	getErrorCodeFunc = nil
	getErrorMessageFunc = nil
	releaseStatusFunc = nil
	createMemoryInfoFunc = nil
	releaseMemoryInfoFunc = nil
	createTensorWithDataAsOrtValueFunc = nil
	getTensorTypeAndShapeFunc = nil
	getTensorMutableDataFunc = nil
	releaseValueFunc = nil
	createSessionOptionsFunc = nil
	setIntraOpNumThreadsFunc = nil
	setSessionGraphOptimizationLevelFunc = nil
	releaseSessionOptionsFunc = nil
	createSessionFunc = nil
	runSessionFunc = nil
	releaseSessionFunc = nil
	sessionGetInputCountFunc = nil
	sessionGetOutputCountFunc = nil
	sessionGetInputNameFunc = nil
	sessionGetOutputNameFunc = nil
	sessionGetOutputTypeInfoFunc = nil
	castTypeInfoToTensorInfoFunc = nil
	getTensorElementTypeFunc = nil
	getDimensionsCountFunc = nil
	getDimensionsFunc = nil
	getTensorShapeElementCountFunc = nil
	releaseTypeInfoFunc = nil
	releaseTensorTypeAndShapeInfoFunc = nil
	getAllocatorWithDefaultOptionsFunc = nil
	allocatorFreeFunc = nil
}

// getErrorMessage extracts the message from an OrtStatus handle. Returns ""
// for a null status or before initialization. Callers either hold mu or are
// inside an ortCallMu read section, so the func var cannot be cleared
// underneath them.
func getErrorMessage(status uintptr) string {
	fn := getErrorMessageFunc
	if status == 0 || fn == nil {
		return ""
	}
	return CstringToGo(fn(status))
}

// releaseStatus frees an OrtStatus handle. Safe on a null status and before
// initialization.
func releaseStatus(status uintptr) {
	fn := releaseStatusFunc
	if status == 0 || fn == nil {
		return
	}
	fn(status)
}
