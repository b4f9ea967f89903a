// Package inference wraps an ONNX Runtime session behind a small checked
// API: create a session over a model file, run synchronous forward passes,
// query output sizes for pre-allocation, and close.
//
// Every operation reports failure through its error return. The package
// additionally keeps a process-wide last-error string (LastError) for callers
// porting from C-style APIs; under concurrency it is last-writer-wins and
// only the per-call error is authoritative.
package inference

import (
	"errors"
	"sync"
)

// Sentinel errors for the validation failures callers are expected to branch
// on. Match with errors.Is; the wrapped message carries the offending name or
// shape.
var (
	// ErrSessionClosed is returned by every method of a closed (or nil)
	// session.
	ErrSessionClosed = errors.New("session is closed")

	// ErrUnknownTensor is returned when a tensor name does not match any
	// model input or output.
	ErrUnknownTensor = errors.New("unknown tensor name")

	// ErrShapeMismatch is returned when a tensor shape disagrees with its
	// data length, or an output size query cannot be satisfied for the given
	// input shape.
	ErrShapeMismatch = errors.New("tensor shape mismatch")
)

// Tensor is a named float32 buffer with its shape. Data is laid out in
// row-major order and must contain exactly the product of Shape elements.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

var (
	lastErrMu sync.Mutex
	lastErr   string
)

// LastError returns a description of the most recent failure in this process,
// or "" when no failure has occurred. With concurrent sessions the value is
// last-writer-wins; prefer the error returned by the failing call.
func LastError() string {
	lastErrMu.Lock()
	defer lastErrMu.Unlock()
	return lastErr
}

// recordError stores err in the process-wide slot and returns it unchanged.
func recordError(err error) error {
	if err == nil {
		return nil
	}
	lastErrMu.Lock()
	lastErr = err.Error()
	lastErrMu.Unlock()
	return err
}
