package wgpu

import (
	"errors"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compute/gpucore"
)

// Errors specific to the wgpu backend.
var (
	// ErrAlreadyMapped is returned when mapping a buffer that is mapped.
	ErrAlreadyMapped = errors.New("wgpu: buffer already mapped")

	// ErrNotMapped is returned when unmapping a buffer that is not mapped.
	ErrNotMapped = errors.New("wgpu: buffer not mapped")

	// ErrBindingMismatch is returned when bind group entries do not match
	// their layout.
	ErrBindingMismatch = errors.New("wgpu: bind group does not match layout")

	// ErrDevice is returned for HAL failures with no more specific meaning.
	ErrDevice = errors.New("wgpu: device error")

	// ErrDeviceLost is returned once the HAL reports the device as lost.
	ErrDeviceLost = errors.New("wgpu: device lost")
)

// classify maps a HAL error onto the sentinel callers match against.
func classify(err error) error {
	switch {
	case errors.Is(err, hal.ErrDeviceOutOfMemory):
		return gpucore.ErrOutOfMemory
	case errors.Is(err, hal.ErrDeviceLost):
		return ErrDeviceLost
	default:
		return ErrDevice
	}
}
