package inference

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/zachswift615/listen2/ort"
)

// Options configures session creation.
type Options struct {
	// NumThreads is the intra-op thread count. Zero keeps the runtime's own
	// default.
	NumThreads int

	// UseAccelerator enables the platform execution provider (CoreML on
	// darwin). When the loaded runtime does not support it, New fails rather
	// than silently running on CPU.
	UseAccelerator bool

	// LibraryPath points at an ONNX Runtime shared library to load. When
	// empty the library is resolved from the environment or downloaded into
	// the user cache.
	LibraryPath string
}

// Session is a loaded ONNX model ready for inference. Methods are safe for
// concurrent use; Run calls on the same session are serialized. A Session
// stays valid until Close, after which every method returns ErrSessionClosed.
type Session struct {
	mu      sync.Mutex
	native  *ort.DynamicAdvancedSession
	inputs  map[string]struct{}
	outputs map[string]ort.OutputInfo
	closed  bool
}

// New loads the model at modelPath and returns a ready session. The ONNX
// Runtime environment is reference-counted per session and released by Close.
func New(modelPath string, opts Options) (*Session, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, recordError(fmt.Errorf("model path cannot be empty"))
	}
	info, err := os.Stat(modelPath)
	if err != nil {
		return nil, recordError(fmt.Errorf("model file is not readable: %w", err))
	}
	if info.IsDir() {
		return nil, recordError(fmt.Errorf("model path is a directory: %q", modelPath))
	}
	if opts.NumThreads < 0 {
		return nil, recordError(fmt.Errorf("thread count cannot be negative: %d", opts.NumThreads))
	}

	var bootstrapOpts []ort.BootstrapOption
	if opts.LibraryPath != "" {
		bootstrapOpts = append(bootstrapOpts, ort.WithBootstrapLibraryPath(opts.LibraryPath))
	}
	if err := ort.InitializeEnvironmentWithBootstrap(bootstrapOpts...); err != nil {
		return nil, recordError(fmt.Errorf("failed to initialize ONNX Runtime: %w", err))
	}
	success := false
	defer func() {
		if !success {
			_ = ort.DestroyEnvironment()
		}
	}()

	sessionOptions, err := ort.NewSessionOptions()
	if err != nil {
		return nil, recordError(fmt.Errorf("failed to create session options: %w", err))
	}
	defer func() {
		_ = sessionOptions.Destroy()
	}()

	if opts.NumThreads > 0 {
		if err := sessionOptions.SetIntraOpNumThreads(opts.NumThreads); err != nil {
			return nil, recordError(err)
		}
	}
	if err := sessionOptions.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableAll); err != nil {
		return nil, recordError(err)
	}
	if opts.UseAccelerator {
		provider, err := acceleratorProvider()
		if err != nil {
			return nil, recordError(err)
		}
		if err := sessionOptions.AppendExecutionProvider(provider); err != nil {
			return nil, recordError(fmt.Errorf("accelerator unavailable: %w", err))
		}
	}

	native, err := ort.NewDynamicAdvancedSession(modelPath, sessionOptions)
	if err != nil {
		return nil, recordError(fmt.Errorf("failed to load model %q: %w", modelPath, err))
	}

	inputNames, err := native.InputNames()
	if err != nil {
		_ = native.Destroy()
		return nil, recordError(fmt.Errorf("failed to read model inputs: %w", err))
	}
	outputNames, err := native.OutputNames()
	if err != nil {
		_ = native.Destroy()
		return nil, recordError(fmt.Errorf("failed to read model outputs: %w", err))
	}

	inputs := make(map[string]struct{}, len(inputNames))
	for _, name := range inputNames {
		inputs[name] = struct{}{}
	}
	outputs := make(map[string]ort.OutputInfo, len(outputNames))
	for _, name := range outputNames {
		outputInfo, err := native.OutputMetadata(name)
		if err != nil {
			_ = native.Destroy()
			return nil, recordError(fmt.Errorf("failed to read metadata for output %q: %w", name, err))
		}
		outputs[name] = outputInfo
	}

	success = true
	return &Session{
		native:  native,
		inputs:  inputs,
		outputs: outputs,
	}, nil
}

// Run executes one blocking forward pass with the given input tensor and
// returns the named output with its actual shape. Concurrent Run calls on
// the same session are serialized.
func (s *Session) Run(input Tensor, outputName string) (Tensor, error) {
	if s == nil {
		return Tensor{}, recordError(ErrSessionClosed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Tensor{}, recordError(ErrSessionClosed)
	}
	if err := s.validateInput(input); err != nil {
		return Tensor{}, recordError(err)
	}
	if _, ok := s.outputs[outputName]; !ok {
		return Tensor{}, recordError(fmt.Errorf("%w: model has no output named %q", ErrUnknownTensor, outputName))
	}

	value, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return Tensor{}, recordError(fmt.Errorf("failed to bind input %q: %w", input.Name, err))
	}
	defer func() {
		_ = value.Destroy()
	}()

	outputShape, outputData, err := s.native.RunFloat32([]string{input.Name}, []ort.Value{value}, outputName)
	if err != nil {
		return Tensor{}, recordError(fmt.Errorf("inference failed: %w", err))
	}

	return Tensor{
		Name:  outputName,
		Shape: append([]int64(nil), outputShape...),
		Data:  outputData,
	}, nil
}

// OutputSize returns the element count the named output would have for an
// input of the given shape, without running inference. Symbolic output
// dimensions are substituted positionally from inputShape; a dimension that
// cannot be resolved that way is an error rather than a guess. The result is
// deterministic for identical arguments.
func (s *Session) OutputSize(inputShape []int64, outputName string) (int64, error) {
	if s == nil {
		return 0, recordError(ErrSessionClosed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, recordError(ErrSessionClosed)
	}
	outputInfo, ok := s.outputs[outputName]
	if !ok {
		return 0, recordError(fmt.Errorf("%w: model has no output named %q", ErrUnknownTensor, outputName))
	}
	for i, dim := range inputShape {
		if dim < 0 {
			return 0, recordError(fmt.Errorf("%w: input dimension %d is %d, expected a concrete size", ErrShapeMismatch, i, dim))
		}
	}

	resolved, err := resolveOutputShape(outputInfo.Shape, inputShape, outputName)
	if err != nil {
		return 0, recordError(err)
	}

	count, err := ort.ShapeElementCount(ort.NewShape(resolved...))
	if err != nil {
		return 0, recordError(fmt.Errorf("output %q shape %v is not countable: %w", outputName, resolved, err))
	}
	return int64(count), nil
}

// Close releases the session and its environment reference. Idempotent and
// safe on nil; an in-flight Run completes before the session is released.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	native := s.native
	s.native = nil
	s.inputs = nil
	s.outputs = nil

	var destroyErr error
	if native != nil {
		destroyErr = native.Destroy()
	}
	return errors.Join(destroyErr, ort.DestroyEnvironment())
}

func (s *Session) validateInput(input Tensor) error {
	if _, ok := s.inputs[input.Name]; !ok {
		return fmt.Errorf("%w: model has no input named %q", ErrUnknownTensor, input.Name)
	}
	for i, dim := range input.Shape {
		if dim < 0 {
			return fmt.Errorf("%w: input %q dimension %d is %d, expected a concrete size", ErrShapeMismatch, input.Name, i, dim)
		}
	}
	count, err := ort.ShapeElementCount(ort.NewShape(input.Shape...))
	if err != nil {
		return fmt.Errorf("%w: input %q shape %v: %v", ErrShapeMismatch, input.Name, input.Shape, err)
	}
	if count != len(input.Data) {
		return fmt.Errorf("%w: input %q has %d elements for shape %v, expected %d", ErrShapeMismatch, input.Name, len(input.Data), input.Shape, count)
	}
	return nil
}

// resolveOutputShape replaces symbolic (negative) dimensions in the declared
// output shape with the input dimension at the same position.
func resolveOutputShape(declared ort.Shape, inputShape []int64, outputName string) ([]int64, error) {
	resolved := make([]int64, len(declared))
	for i, dim := range declared {
		if dim >= 0 {
			resolved[i] = dim
			continue
		}
		if i < len(inputShape) && inputShape[i] >= 0 {
			resolved[i] = inputShape[i]
			continue
		}
		return nil, fmt.Errorf("%w: output %q dimension %d is symbolic and cannot be resolved from input shape %v", ErrShapeMismatch, outputName, i, inputShape)
	}
	return resolved, nil
}

// acceleratorProvider names the execution provider used when
// Options.UseAccelerator is set.
func acceleratorProvider() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		return ort.ExecutionProviderCoreML, nil
	default:
		return "", fmt.Errorf("no accelerator execution provider available on %s", runtime.GOOS)
	}
}
