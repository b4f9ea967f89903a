package ort

import (
	"strings"
	"testing"
)

func TestNewSessionOptionsWithoutORT(t *testing.T) {
	resetEnvironmentState()

	_, err := NewSessionOptions()
	if err == nil {
		t.Fatalf("expected error when ONNX Runtime is not initialized")
	}
	if !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSessionOptionsSetIntraOpNumThreadsValidation(t *testing.T) {
	resetEnvironmentState()

	options := &SessionOptions{}
	if err := options.SetIntraOpNumThreads(-1); err == nil {
		t.Fatalf("expected error for negative thread count")
	} else if !strings.Contains(err.Error(), "cannot be negative") {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := options.SetIntraOpNumThreads(4); err == nil {
		t.Fatalf("expected error for uninitialized options handle")
	} else if !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSessionOptionsSetGraphOptimizationLevelUninitialized(t *testing.T) {
	resetEnvironmentState()

	options := &SessionOptions{}
	err := options.SetGraphOptimizationLevel(GraphOptimizationLevelEnableAll)
	if err == nil {
		t.Fatalf("expected error for uninitialized options handle")
	}
	if !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSessionOptionsAppendExecutionProviderUnknown(t *testing.T) {
	resetEnvironmentState()

	options := &SessionOptions{handle: 1}
	err := options.AppendExecutionProvider("not-a-provider")
	if err == nil {
		t.Fatalf("expected error for unknown execution provider")
	}
	if !strings.Contains(err.Error(), "unknown execution provider") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSessionOptionsAppendExecutionProviderWithoutORT(t *testing.T) {
	resetEnvironmentState()

	options := &SessionOptions{handle: 1}
	err := options.AppendExecutionProvider(ExecutionProviderCoreML)
	if err == nil {
		t.Fatalf("expected error when ONNX Runtime is not initialized")
	}
	if !strings.Contains(err.Error(), "not initialized") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSessionOptionsDestroyIdempotent(t *testing.T) {
	resetEnvironmentState()

	var options *SessionOptions
	if err := options.Destroy(); err != nil {
		t.Fatalf("nil destroy should be a no-op, got: %v", err)
	}

	options = &SessionOptions{}
	if err := options.Destroy(); err != nil {
		t.Fatalf("destroy with zero handle should be a no-op, got: %v", err)
	}
	if err := options.Destroy(); err != nil {
		t.Fatalf("second destroy should be a no-op, got: %v", err)
	}
}
