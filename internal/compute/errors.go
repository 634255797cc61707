package compute

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownComputation = errors.New("unknown computation")
	ErrInvalidArgument    = errors.New("invalid computation argument")
	ErrLaunchFailure      = errors.New("computation launch failed")
	ErrExecutionFailure   = errors.New("computation execution failed")
	ErrEncoding           = errors.New("computation output is not valid utf-8")
	ErrSchema             = errors.New("computation output does not match schema")
)

// ExecutionError describes a process that started but did not finish
// successfully. Stderr is kept for operators and is never signed.
type ExecutionError struct {
	Computation string
	ExitCode    int
	Stderr      []byte
	Err         error
}

func (e *ExecutionError) Error() string {
	name := e.Computation
	if name == "" {
		name = "process"
	}
	if e.Err != nil {
		return fmt.Sprintf("%v: %s exited with code %d: %v", ErrExecutionFailure, name, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%v: %s exited with code %d", ErrExecutionFailure, name, e.ExitCode)
}

func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecutionFailure
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
