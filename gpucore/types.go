package gpucore

// Resource IDs
//
// These opaque IDs name device resources. Each Device implementation
// keeps its own mapping between IDs and backend objects.

// BufferID is an opaque handle to a device buffer.
type BufferID uint64

// ShaderModuleID is an opaque handle to a loaded shader module.
type ShaderModuleID uint64

// ComputePipelineID is an opaque handle to a compute pipeline.
type ComputePipelineID uint64

// BindGroupLayoutID is an opaque handle to a bind group layout.
type BindGroupLayoutID uint64

// BindGroupPoolID is an opaque handle to a pool that bind groups are allocated from.
type BindGroupPoolID uint64

// BindGroupID is an opaque handle to a bind group.
type BindGroupID uint64

// PipelineLayoutID is an opaque handle to a pipeline layout.
type PipelineLayoutID uint64

// CommandPoolID is an opaque handle to a command pool.
type CommandPoolID uint64

// CommandBufferID is an opaque handle to a reusable command buffer.
type CommandBufferID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// MaxParamsSize is the capacity in bytes of the per-dispatch parameter
// block every pipeline layout reserves.
const MaxParamsSize = 128

// MinParamsSize is the smallest parameter block a dispatch uploads.
// Shorter blocks are zero-padded.
const MinParamsSize = 4

// Fixed binding locations shared by every kernel.
const (
	// StorageGroup is the bind group holding the kernel's storage buffers.
	StorageGroup = 0

	// ParamsGroup is the bind group holding the parameter block.
	ParamsGroup = 1

	// ParamsBinding is the binding of the parameter block inside ParamsGroup.
	ParamsBinding = 0

	// MaxStorageSlots is the number of storage buffer slots a kernel may use.
	MaxStorageSlots = 2
)

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageMapRead indicates the buffer can be mapped for reading.
	BufferUsageMapRead BufferUsage = 1 << 0

	// BufferUsageMapWrite indicates the buffer can be mapped for writing.
	BufferUsageMapWrite BufferUsage = 1 << 1

	// BufferUsageCopySrc indicates the buffer can be used as a copy source.
	BufferUsageCopySrc BufferUsage = 1 << 2

	// BufferUsageCopyDst indicates the buffer can be used as a copy destination.
	BufferUsageCopyDst BufferUsage = 1 << 3

	// BufferUsageUniform indicates the buffer can be used as a uniform buffer.
	BufferUsageUniform BufferUsage = 1 << 6

	// BufferUsageStorage indicates the buffer can be used as a storage buffer.
	BufferUsageStorage BufferUsage = 1 << 7
)

// Common usage combinations.
const (
	// UsageDeviceStorage is the usage of the kernel-visible half of a buffer pair.
	UsageDeviceStorage = BufferUsageStorage | BufferUsageCopySrc | BufferUsageCopyDst

	// UsageStaging is the usage of the host-visible half of a buffer pair.
	UsageStaging = BufferUsageMapRead | BufferUsageMapWrite | BufferUsageCopySrc | BufferUsageCopyDst
)

// Has reports whether u contains every flag in flags.
func (u BufferUsage) Has(flags BufferUsage) bool { return u&flags == flags }

// Mappable reports whether a buffer with this usage can be mapped by the host.
func (u BufferUsage) Mappable() bool {
	return u&(BufferUsageMapRead|BufferUsageMapWrite) != 0
}

// BindingType specifies the type of a shader binding.
type BindingType uint32

// Binding types.
const (
	// BindingTypeUniformBuffer is a uniform buffer binding.
	BindingTypeUniformBuffer BindingType = iota + 1

	// BindingTypeStorageBuffer is a storage buffer binding (read-write).
	BindingTypeStorageBuffer

	// BindingTypeReadOnlyStorageBuffer is a read-only storage buffer binding.
	BindingTypeReadOnlyStorageBuffer
)

// String returns the binding type name.
func (b BindingType) String() string {
	switch b {
	case BindingTypeUniformBuffer:
		return "uniform"
	case BindingTypeStorageBuffer:
		return "storage"
	case BindingTypeReadOnlyStorageBuffer:
		return "read-only-storage"
	default:
		return "unknown"
	}
}

// BufferDesc describes a buffer.
type BufferDesc struct {
	// Label is an optional debug label.
	Label string

	// Size is the buffer size in bytes. Must be greater than zero.
	Size uint64

	// Usage is the set of allowed uses.
	Usage BufferUsage
}

// ComputePipelineDesc describes a compute pipeline.
type ComputePipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Layout is the pipeline layout.
	Layout PipelineLayoutID

	// ShaderModule contains the compute shader.
	ShaderModule ShaderModuleID

	// EntryPoint is the name of the shader entry point function.
	EntryPoint string
}

// BindGroupLayoutDesc describes a bind group layout.
type BindGroupLayoutDesc struct {
	// Label is an optional debug label.
	Label string

	// Entries defines the bindings in this layout.
	Entries []BindGroupLayoutEntry
}

// BindGroupLayoutEntry describes a single binding in a bind group layout.
type BindGroupLayoutEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Type is the type of resource bound at this index.
	Type BindingType

	// MinBindingSize is the minimum buffer size for the binding, or 0.
	MinBindingSize uint64
}

// BindGroupEntry describes a single binding in a bind group.
type BindGroupEntry struct {
	// Binding is the binding index.
	Binding uint32

	// Buffer is the buffer to bind.
	Buffer BufferID

	// Offset is the offset into the buffer.
	Offset uint64

	// Size is the size of the buffer range to bind.
	// Use 0 to bind the entire buffer from offset.
	Size uint64
}

// BindGroupPoolDesc describes a bind group pool.
type BindGroupPoolDesc struct {
	// Label is an optional debug label.
	Label string

	// MaxGroups is the number of bind groups the pool can hand out.
	MaxGroups uint32

	// MaxBuffers is the total number of buffer bindings across all groups.
	MaxBuffers uint32
}

// PipelineLayoutDesc describes a pipeline layout.
type PipelineLayoutDesc struct {
	// Label is an optional debug label.
	Label string

	// BindGroupLayouts are the storage bind group layouts, starting at
	// StorageGroup.
	BindGroupLayouts []BindGroupLayoutID

	// ParamsSize is the capacity of the parameter block in bytes.
	// Zero means the layout has no parameter block.
	ParamsSize uint32
}

// Limits describes the device limits the engine cares about.
type Limits struct {
	// MaxBufferSize is the maximum buffer size in bytes.
	MaxBufferSize uint64

	// MaxStorageBufferBindingSize is the largest range a storage binding may cover.
	MaxStorageBufferBindingSize uint64

	// MaxWorkgroupsPerDimension is the largest group count per dispatch axis.
	MaxWorkgroupsPerDimension uint32

	// MaxWorkgroupSize is the largest workgroup size per axis.
	MaxWorkgroupSize [3]uint32

	// MaxParamsSize is the largest parameter block the device accepts.
	MaxParamsSize uint32
}

// DefaultLimits returns conservative limits every backend can honour.
func DefaultLimits() Limits {
	return Limits{
		MaxBufferSize:               256 << 20,
		MaxStorageBufferBindingSize: 128 << 20,
		MaxWorkgroupsPerDimension:   65535,
		MaxWorkgroupSize:            [3]uint32{256, 256, 64},
		MaxParamsSize:               MaxParamsSize,
	}
}
