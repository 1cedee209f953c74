package native

import (
	"errors"
	"fmt"
)

var (
	ErrSpecTransform     = errors.New("spec transform failed")
	ErrArgsTransform     = errors.New("argument transform failed")
	ErrPathTooLong       = errors.New("object file path exceeds the platform path length limit")
	ErrOutputCollision   = errors.New("two source files map to the same object file")
	ErrCreateDir         = errors.New("failed to create object directory")
	ErrOptionsFile       = errors.New("failed to write options file")
	ErrToolFailed        = errors.New("tool exited with a failure status")
	ErrToolStart         = errors.New("tool could not be started")
	ErrCompileFailed     = errors.New("compilation failed")
	ErrDispatcherStopped = errors.New("dispatcher is stopped")
	ErrShutdownTimeout   = errors.New("timed out waiting for invocations to finish")
)

// InvocationError is the outcome of a single failed tool invocation
type InvocationError struct {
	Invocation Invocation
	ExitCode   int // -1 if the process never produced an exit status
	Err        error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("compiling %s: %v", e.Invocation.Source, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }
