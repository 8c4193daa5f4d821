package compute

import (
	"errors"
	"strings"
)

// Error categories. Every error returned by an Engine wraps exactly one of
// these, so callers can branch with errors.Is.
var (
	// ErrInit is returned when no device could be acquired.
	ErrInit = errors.New("compute: device initialization failed")

	// ErrAllocation is returned when the device cannot satisfy a buffer allocation.
	ErrAllocation = errors.New("compute: allocation failed")

	// ErrNotFound is returned for a handle that is stale, unknown, or from another Engine.
	ErrNotFound = errors.New("compute: handle not found")

	// ErrSizeMismatch is returned when a byte slice does not fit the buffer.
	ErrSizeMismatch = errors.New("compute: size mismatch")

	// ErrInvalidArgument is returned for zero sizes, bad grids, oversized
	// parameter blocks and wrong buffer counts.
	ErrInvalidArgument = errors.New("compute: invalid argument")

	// ErrDecode is returned for malformed kernel bytecode.
	ErrDecode = errors.New("compute: kernel decode failed")

	// ErrCompile is returned when kernel source does not compile.
	// The concrete error is a *CompileError.
	ErrCompile = errors.New("compute: kernel compilation failed")

	// ErrCreation is returned when the device rejects a kernel, or when a
	// kernel does not fit the fixed binding layout.
	ErrCreation = errors.New("compute: kernel creation failed")

	// ErrDevice is returned when a transfer or dispatch fails on the device.
	ErrDevice = errors.New("compute: device operation failed")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("compute: engine closed")
)

// ErrNoCompiler is returned by LoadSource when the Engine has no compiler.
var ErrNoCompiler = &noCompilerError{}

type noCompilerError struct{}

func (*noCompilerError) Error() string { return "compute: no source compiler configured" }

// Is matches ErrInvalidArgument.
func (*noCompilerError) Is(target error) bool { return target == ErrInvalidArgument }

// CompileError carries the diagnostics of a rejected kernel source.
type CompileError struct {
	// Diagnostics is the compiler output, one entry per message.
	Diagnostics []string

	// Err is the compiler's own error.
	Err error
}

func (e *CompileError) Error() string {
	if len(e.Diagnostics) == 0 {
		return "compute: compile: " + e.Err.Error()
	}
	return "compute: compile: " + strings.Join(e.Diagnostics, "; ")
}

// Is matches ErrCompile.
func (e *CompileError) Is(target error) bool { return target == ErrCompile }

func (e *CompileError) Unwrap() error { return e.Err }
