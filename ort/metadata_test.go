package ort

import (
	"runtime"
	"strings"
	"testing"
)

func TestSessionMetadataValidation(t *testing.T) {
	resetEnvironmentState()

	var nilSession *DynamicAdvancedSession
	if _, err := nilSession.InputNames(); err == nil || !strings.Contains(err.Error(), "session is nil") {
		t.Fatalf("expected nil session error, got: %v", err)
	}
	if _, err := nilSession.OutputNames(); err == nil || !strings.Contains(err.Error(), "session is nil") {
		t.Fatalf("expected nil session error, got: %v", err)
	}
	if _, err := nilSession.OutputMetadata("emissions"); err == nil || !strings.Contains(err.Error(), "session is nil") {
		t.Fatalf("expected nil session error, got: %v", err)
	}

	destroyed := &DynamicAdvancedSession{handle: 0}
	if _, err := destroyed.InputNames(); err == nil || !strings.Contains(err.Error(), "session has been destroyed") {
		t.Fatalf("expected destroyed session error, got: %v", err)
	}

	live := &DynamicAdvancedSession{handle: 123}
	if _, err := live.InputNames(); err == nil || !strings.Contains(err.Error(), "ONNX Runtime not initialized") {
		t.Fatalf("expected not initialized error, got: %v", err)
	}
	if _, err := live.OutputNames(); err == nil || !strings.Contains(err.Error(), "ONNX Runtime not initialized") {
		t.Fatalf("expected not initialized error, got: %v", err)
	}
}

// installMetadataStubs wires fake count/name bindings that report the given
// input and output names for any session handle.
func installMetadataStubs(t *testing.T, inputs, outputs []string) func() {
	t.Helper()

	type backing struct {
		bytes []byte
		ptr   uintptr
	}
	hold := func(names []string) []backing {
		held := make([]backing, len(names))
		for i, name := range names {
			b, p := GoToCstring(name)
			held[i] = backing{bytes: b, ptr: p}
		}
		return held
	}
	inputHeld := hold(inputs)
	outputHeld := hold(outputs)

	var freed []uintptr

	mu.Lock()
	ortAPI = &OrtApi{}
	getAllocatorWithDefaultOptionsFunc = func(allocator *uintptr) uintptr {
		*allocator = 1 << 20
		return 0
	}
	allocatorFreeFunc = func(allocator uintptr, p uintptr) uintptr {
		freed = append(freed, p)
		return 0
	}
	sessionGetInputCountFunc = func(session uintptr, count *uintptr) uintptr {
		*count = uintptr(len(inputHeld))
		return 0
	}
	sessionGetOutputCountFunc = func(session uintptr, count *uintptr) uintptr {
		*count = uintptr(len(outputHeld))
		return 0
	}
	sessionGetInputNameFunc = func(session, index, allocator uintptr, name *uintptr) uintptr {
		*name = inputHeld[index].ptr
		return 0
	}
	sessionGetOutputNameFunc = func(session, index, allocator uintptr, name *uintptr) uintptr {
		*name = outputHeld[index].ptr
		return 0
	}
	mu.Unlock()

	return func() {
		runtime.KeepAlive(inputHeld)
		runtime.KeepAlive(outputHeld)
		if len(freed) != len(inputHeld)+len(outputHeld) {
			t.Errorf("expected every name buffer to be freed, got %d of %d",
				len(freed), len(inputHeld)+len(outputHeld))
		}
	}
}

func TestSessionTensorNamesWithStubbedRuntime(t *testing.T) {
	resetEnvironmentState()
	defer resetEnvironmentState()

	check := installMetadataStubs(t, []string{"audio"}, []string{"emissions", "lengths"})
	session := &DynamicAdvancedSession{handle: 123}

	inputs, err := session.InputNames()
	if err != nil {
		t.Fatalf("InputNames failed: %v", err)
	}
	if len(inputs) != 1 || inputs[0] != "audio" {
		t.Fatalf("unexpected input names: %v", inputs)
	}

	outputs, err := session.OutputNames()
	if err != nil {
		t.Fatalf("OutputNames failed: %v", err)
	}
	if len(outputs) != 2 || outputs[0] != "emissions" || outputs[1] != "lengths" {
		t.Fatalf("unexpected output names: %v", outputs)
	}

	check()
}
