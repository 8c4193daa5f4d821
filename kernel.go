package compute

import (
	"errors"
	"fmt"

	"github.com/gogpu/compute/compiler"
	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/handle"
	"github.com/gogpu/compute/internal/spirv"
)

// EntryPoint is the name of the compute entry point every kernel exports.
const EntryPoint = spirv.EntryPoint

// Kernel is a handle to a loaded compute kernel.
// The zero Kernel is never valid.
type Kernel struct {
	h handle.Handle
}

// IsZero reports whether k is the zero Kernel.
func (k Kernel) IsZero() bool { return k.h.IsZero() }

func (k Kernel) String() string {
	return fmt.Sprintf("kernel(%d#%d)", k.h.Index(), k.h.Generation())
}

// KernelInfo is what the Engine learned about a kernel when loading it.
type KernelInfo struct {
	// EntryPoint is the compute entry point name.
	EntryPoint string

	// Arity is the number of buffers Run must be given (1 or 2).
	Arity int

	// UsesParams reports whether the kernel reads the parameter block.
	UsesParams bool

	// WorkgroupSize is the kernel's declared local size.
	WorkgroupSize [3]uint32
}

// LoadBytecode creates a kernel from SPIR-V bytecode.
//
// The module must export a GLCompute entry point named "main" that binds
// storage buffers at @group(0) @binding(0), and optionally
// @group(0) @binding(1), plus an optional uniform parameter block at
// @group(1) @binding(0). Malformed bytecode wraps ErrDecode; a module that
// does not fit this layout, or that the device rejects, wraps ErrCreation.
func (e *Engine) LoadBytecode(code []byte) (Kernel, error) {
	if err := e.lock(); err != nil {
		return Kernel{}, err
	}
	defer e.mu.Unlock()
	return e.loadBytecode(code)
}

func (e *Engine) loadBytecode(code []byte) (Kernel, error) {
	decoded, err := spirv.Decode(code)
	switch {
	case errors.Is(err, spirv.ErrLayout):
		return Kernel{}, fmt.Errorf("%w: %w", ErrCreation, err)
	case err != nil:
		return Kernel{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	ws := decoded.WorkgroupSize
	for i, lim := range e.limits.MaxWorkgroupSize {
		if ws[i] == 0 || ws[i] > lim {
			return Kernel{}, fmt.Errorf("%w: workgroup size %v exceeds device limit %v",
				ErrCreation, ws, e.limits.MaxWorkgroupSize)
		}
	}

	label := fmt.Sprintf("%s_kernel_%d", e.label, e.kernels.Len())
	module, err := e.dev.CreateShaderModule(decoded.Words, label)
	if err != nil {
		return Kernel{}, fmt.Errorf("%w: %w", ErrCreation, err)
	}
	pipeline, err := e.dev.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label:        label,
		Layout:       e.bindings[decoded.Arity-1].pipeline,
		ShaderModule: module,
		EntryPoint:   decoded.EntryPoint,
	})
	if err != nil {
		e.dev.DestroyShaderModule(module)
		return Kernel{}, fmt.Errorf("%w: %w", ErrCreation, err)
	}

	h := e.kernels.Insert(boundKernel{
		module:   module,
		pipeline: pipeline,
		info: KernelInfo{
			EntryPoint:    decoded.EntryPoint,
			Arity:         decoded.Arity,
			UsesParams:    decoded.UsesParams,
			WorkgroupSize: ws,
		},
	})
	e.log.Debug("compute: kernel loaded",
		"arity", decoded.Arity,
		"params", decoded.UsesParams,
		"workgroup", ws,
		"words", len(decoded.Words))
	return Kernel{h: h}, nil
}

// LoadSource compiles kernel source with the Engine's compiler and loads
// the result. Compiler failures are returned as *CompileError. Without a
// compiler the call fails with ErrNoCompiler.
func (e *Engine) LoadSource(src string) (Kernel, error) {
	if err := e.lock(); err != nil {
		return Kernel{}, err
	}
	defer e.mu.Unlock()

	if e.comp == nil {
		return Kernel{}, ErrNoCompiler
	}
	code, err := e.comp.Compile(src, EntryPoint)
	if err != nil {
		ce := &CompileError{Err: err}
		var cerr *compiler.Error
		if errors.As(err, &cerr) {
			ce.Diagnostics = cerr.Diagnostics
		}
		return Kernel{}, ce
	}
	return e.loadBytecode(code)
}

// FreeKernel releases k. The handle, and every copy of it, is invalid
// afterwards.
func (e *Engine) FreeKernel(k Kernel) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	bk, err := e.kernels.Remove(k.h)
	if err != nil {
		return notFound(k.String(), err)
	}
	e.destroyKernel(bk)
	return nil
}

func (e *Engine) destroyKernel(k boundKernel) {
	e.dev.DestroyComputePipeline(k.pipeline)
	e.dev.DestroyShaderModule(k.module)
}

// KernelInfo returns the reflected properties of k.
func (e *Engine) KernelInfo(k Kernel) (KernelInfo, error) {
	if err := e.lock(); err != nil {
		return KernelInfo{}, err
	}
	defer e.mu.Unlock()

	bk, err := e.kernels.Get(k.h)
	if err != nil {
		return KernelInfo{}, notFound(k.String(), err)
	}
	return bk.info, nil
}
