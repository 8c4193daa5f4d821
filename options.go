package compute

import (
	"github.com/gogpu/compute/gpucore"
)

// DefaultCapacity is the initial slot count of the buffer and kernel tables.
const DefaultCapacity = 10

// Compiler turns kernel source into SPIR-V bytecode.
// compiler.Naga implements it for WGSL.
type Compiler interface {
	Compile(source, entryPoint string) ([]byte, error)
}

// Option configures an Engine during creation.
//
// Example:
//
//	// Default backend selection, no source compiler
//	e, err := compute.New(false)
//
//	// Host backend with WGSL support
//	e, err := compute.New(false,
//	    compute.WithBackend("cpu"),
//	    compute.WithCompiler(compiler.New()))
type Option func(*engineOptions)

type engineOptions struct {
	backend  string
	device   gpucore.Device
	compiler Compiler
	label    string
	capacity int
}

func defaultOptions() engineOptions {
	return engineOptions{
		label:    "compute",
		capacity: DefaultCapacity,
	}
}

// WithBackend selects a registered backend by name, such as "wgpu" or
// "cpu". Without it the registry's priority order is used.
func WithBackend(name string) Option {
	return func(o *engineOptions) {
		o.backend = name
	}
}

// WithDevice uses an already opened device. The caller keeps ownership:
// Close releases the Engine's resources on it but does not destroy it.
// WithDevice takes precedence over WithBackend.
func WithDevice(dev gpucore.Device) Option {
	return func(o *engineOptions) {
		o.device = dev
	}
}

// WithCompiler enables LoadSource.
func WithCompiler(c Compiler) Option {
	return func(o *engineOptions) {
		o.compiler = c
	}
}

// WithLabel sets the prefix of device object labels.
func WithLabel(label string) Option {
	return func(o *engineOptions) {
		o.label = label
	}
}

// WithCapacity sets the initial slot count of the resource tables.
// Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(o *engineOptions) {
		if n > 0 {
			o.capacity = n
		}
	}
}
