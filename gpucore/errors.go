package gpucore

import "errors"

// Errors shared by Device implementations. Backends wrap these so the
// engine can classify failures with errors.Is.
var (
	// ErrOutOfMemory is returned when an allocation cannot be satisfied.
	ErrOutOfMemory = errors.New("gpucore: out of device memory")

	// ErrUnknownResource is returned when an ID does not name a live resource.
	ErrUnknownResource = errors.New("gpucore: unknown resource")

	// ErrNotMappable is returned when mapping a buffer without map usage.
	ErrNotMappable = errors.New("gpucore: buffer is not host-visible")

	// ErrPoolExhausted is returned when a pool has no room left.
	ErrPoolExhausted = errors.New("gpucore: pool exhausted")

	// ErrInvalidShader is returned when a shader module cannot be created
	// from the supplied code.
	ErrInvalidShader = errors.New("gpucore: invalid shader")

	// ErrEncoderState is returned when commands are recorded, finished or
	// submitted out of order.
	ErrEncoderState = errors.New("gpucore: command encoder misuse")
)
