package gpucore

import "github.com/gogpu/gpucontext"

// Device abstracts over the native API that runs compute work.
//
// The engine depends only on this interface. Each backend package provides
// one implementation: backend/wgpu drives the gogpu/wgpu HAL, backend/cpu
// runs kernels on the host.
//
// Resource lifecycle:
//   - Resources are created via Create*/Allocate* methods
//   - Resources must be explicitly destroyed via Destroy* methods
//   - Destroying a resource while in use is undefined behavior
//   - IDs become invalid after destruction and must not be reused
//
// Implementations are not required to be safe for concurrent use. The
// engine issues at most one call at a time.
type Device interface {
	// === Capabilities ===

	// Info returns adapter metadata.
	Info() gpucontext.AdapterInfo

	// Limits returns the device limits.
	Limits() Limits

	// === Buffer Management ===

	// CreateBuffer allocates a buffer.
	// Returns ErrOutOfMemory (wrapped) when the allocation cannot be satisfied.
	CreateBuffer(desc *BufferDesc) (BufferID, error)

	// DestroyBuffer releases a buffer.
	DestroyBuffer(id BufferID)

	// MapBuffer maps a host-visible buffer and returns its full contents.
	// The slice aliases device memory and is valid until UnmapBuffer.
	MapBuffer(id BufferID) ([]byte, error)

	// UnmapBuffer ends a mapping started by MapBuffer. Host writes made
	// through the mapped slice are visible to the device afterwards.
	UnmapBuffer(id BufferID) error

	// === Kernel Objects ===

	// CreateShaderModule creates a shader module from SPIR-V words.
	CreateShaderModule(spirv []uint32, label string) (ShaderModuleID, error)

	// DestroyShaderModule releases a shader module.
	DestroyShaderModule(id ShaderModuleID)

	// CreateComputePipeline creates a compute pipeline.
	CreateComputePipeline(desc *ComputePipelineDesc) (ComputePipelineID, error)

	// DestroyComputePipeline releases a compute pipeline.
	DestroyComputePipeline(id ComputePipelineID)

	// === Binding Objects ===

	// CreateBindGroupLayout creates a bind group layout.
	CreateBindGroupLayout(desc *BindGroupLayoutDesc) (BindGroupLayoutID, error)

	// DestroyBindGroupLayout releases a bind group layout.
	DestroyBindGroupLayout(id BindGroupLayoutID)

	// CreatePipelineLayout creates a pipeline layout. When desc.ParamsSize
	// is non-zero the layout reserves a parameter block of that size at
	// ParamsGroup/ParamsBinding.
	CreatePipelineLayout(desc *PipelineLayoutDesc) (PipelineLayoutID, error)

	// DestroyPipelineLayout releases a pipeline layout.
	DestroyPipelineLayout(id PipelineLayoutID)

	// CreateBindGroupPool creates a pool that bind groups are allocated from.
	CreateBindGroupPool(desc *BindGroupPoolDesc) (BindGroupPoolID, error)

	// DestroyBindGroupPool releases a pool and every bind group allocated from it.
	DestroyBindGroupPool(id BindGroupPoolID)

	// AllocateBindGroup allocates an empty bind group for layout from pool.
	AllocateBindGroup(pool BindGroupPoolID, layout BindGroupLayoutID) (BindGroupID, error)

	// UpdateBindGroup points the bindings of group at new resources.
	// The group keeps its ID.
	UpdateBindGroup(group BindGroupID, entries []BindGroupEntry) error

	// === Command Recording and Execution ===

	// CreateCommandPool creates a command pool.
	CreateCommandPool(label string) (CommandPoolID, error)

	// DestroyCommandPool releases a pool and every command buffer allocated from it.
	DestroyCommandPool(id CommandPoolID)

	// AllocateCommandBuffer allocates a reusable command buffer from pool.
	AllocateCommandBuffer(pool CommandPoolID) (CommandBufferID, error)

	// BeginCommands resets cmd and starts recording into it.
	// The returned encoder must be finished before Submit.
	BeginCommands(cmd CommandBufferID) (CommandEncoder, error)

	// Submit queues the recorded commands for execution.
	Submit(cmd CommandBufferID) error

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error

	// Destroy releases the device. It must be the last call.
	Destroy()
}

// CommandEncoder records commands into a command buffer.
//
// Usage:
//  1. Obtain encoder from Device.BeginCommands()
//  2. Record copies and compute passes
//  3. Call Finish() to close the command buffer
//  4. Call Device.Submit() to execute
type CommandEncoder interface {
	// CopyBuffer copies size bytes from the start of src to the start of dst.
	CopyBuffer(src, dst BufferID, size uint64)

	// BeginComputePass begins a compute pass.
	// The pass must be ended before Finish.
	BeginComputePass(label string) ComputePassEncoder

	// Finish closes the command buffer. It reports the first recording
	// error, if any.
	Finish() error
}

// ComputePassEncoder records compute commands.
//
// The encoder is single-use and cannot be reused after End().
type ComputePassEncoder interface {
	// SetParams sets the parameter block for following dispatches. The data
	// is zero-padded to the layout's parameter size.
	SetParams(data []byte)

	// SetBindGroup sets a bind group at the specified index.
	SetBindGroup(index uint32, group BindGroupID)

	// SetPipeline sets the active compute pipeline.
	SetPipeline(pipeline ComputePipelineID)

	// Dispatch dispatches compute workgroups.
	// x, y, z are the number of workgroups in each dimension.
	Dispatch(x, y, z uint32)

	// End finishes the compute pass.
	End()
}
