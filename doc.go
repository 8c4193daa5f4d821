// Package compute runs compute kernels on a GPU, or on the host when no
// GPU is available.
//
// # Overview
//
// An [Engine] owns one device. It hands out [Buffer] handles, each a
// device buffer visible to kernels paired with a host-visible staging
// buffer of the same size, and [Kernel] handles built from SPIR-V
// bytecode or, with a compiler, from WGSL source. [Engine.Run] binds one
// or two buffers, uploads a small parameter block and dispatches a 3-D
// grid of workgroups.
//
// Every call is synchronous: it returns after the device work it issued
// has finished, so each operation observes the effects of all earlier ones.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/compute"
//	    "github.com/gogpu/compute/compiler"
//	)
//
//	e, err := compute.New(false, compute.WithCompiler(compiler.New()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Close()
//
//	k, _ := e.LoadSource(addK)
//	buf, _ := compute.NewBuffer[uint32](e, 1024)
//	_ = compute.WriteSlice(e, buf, data)
//	_ = e.Run(k, []compute.Buffer{buf}, compute.Groups(1024, 64), 1, 1, compute.Params[uint32](7))
//	_ = compute.ReadSlice(e, buf, data)
//
// # Kernel layout
//
// Kernels export a GLCompute entry point named "main". Storage buffers are
// bound at @group(0) @binding(0) and, for two-buffer kernels,
// @group(0) @binding(1). The parameter block, up to 128 bytes, is a
// uniform at @group(1) @binding(0):
//
//	struct Params { k: u32 }
//	@group(0) @binding(0) var<storage, read_write> data: array<u32>;
//	@group(1) @binding(0) var<uniform> params: Params;
//
//	@compute @workgroup_size(64)
//	fn main(@builtin(global_invocation_id) id: vec3<u32>) {
//	    if id.x < arrayLength(&data) {
//	        data[id.x] = data[id.x] + params.k;
//	    }
//	}
//
// The number of storage buffers a kernel binds is read from its bytecode
// at load time and checked by Run.
//
// # Backends
//
// Devices come from the registry in package backend. Without
// [WithBackend] or [WithDevice], New tries "wgpu" (the gogpu/wgpu HAL)
// and falls back to "cpu", which interprets SPIR-V on the host. HAL
// drivers register themselves when imported; programs that want GPU
// execution should import github.com/gogpu/wgpu/hal/allbackends.
//
// # Errors
//
// Errors wrap one of the category sentinels ([ErrInit], [ErrAllocation],
// [ErrNotFound], [ErrSizeMismatch], [ErrInvalidArgument], [ErrDecode],
// [ErrCompile], [ErrCreation], [ErrDevice], [ErrClosed]); match them with
// errors.Is.
//
// # Logging
//
// Nothing is logged by default. See [SetLogger].
package compute
