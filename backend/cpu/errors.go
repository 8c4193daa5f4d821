package cpu

import "errors"

// Errors specific to the host backend. Resource and capacity failures wrap
// the shared gpucore sentinels instead.
var (
	// ErrAlreadyMapped is returned when mapping a buffer that is mapped.
	ErrAlreadyMapped = errors.New("cpu: buffer already mapped")

	// ErrNotMapped is returned when unmapping a buffer that is not mapped.
	ErrNotMapped = errors.New("cpu: buffer not mapped")

	// ErrBindingMismatch is returned at submit time when the bound groups
	// do not satisfy the pipeline layout.
	ErrBindingMismatch = errors.New("cpu: bind groups do not match pipeline layout")

	// ErrExecution is returned when the interpreter fails while running a kernel.
	ErrExecution = errors.New("cpu: kernel execution failed")
)
