package wgpu

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compute/gpucore"
)

// convertLimits narrows HAL limits to the ones the engine checks.
func convertLimits(l gputypes.Limits) gpucore.Limits {
	return gpucore.Limits{
		MaxBufferSize:               l.MaxBufferSize,
		MaxStorageBufferBindingSize: l.MaxStorageBufferBindingSize,
		MaxWorkgroupsPerDimension:   l.MaxComputeWorkgroupsPerDimension,
		MaxWorkgroupSize: [3]uint32{
			l.MaxComputeWorkgroupSizeX,
			l.MaxComputeWorkgroupSizeY,
			l.MaxComputeWorkgroupSizeZ,
		},
		MaxParamsSize: gpucore.MaxParamsSize,
	}
}

// convertBufferUsage converts gpucore buffer usage flags to gputypes.
// The bit values are the same in both.
func convertBufferUsage(usage gpucore.BufferUsage) gputypes.BufferUsage {
	return gputypes.BufferUsage(usage)
}

// convertDeviceType maps a HAL device type onto the adapter classes
// shared with gpucontext.
func convertDeviceType(t gputypes.DeviceType) gpucontext.AdapterType {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return gpucontext.AdapterTypeDiscrete
	case gputypes.DeviceTypeIntegratedGPU:
		return gpucontext.AdapterTypeIntegrated
	case gputypes.DeviceTypeCPU:
		return gpucontext.AdapterTypeSoftware
	default:
		return gpucontext.AdapterTypeUnknown
	}
}

func convertBindingType(t gpucore.BindingType) gputypes.BufferBindingType {
	switch t {
	case gpucore.BindingTypeUniformBuffer:
		return gputypes.BufferBindingTypeUniform
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		return gputypes.BufferBindingTypeReadOnlyStorage
	default:
		return gputypes.BufferBindingTypeStorage
	}
}

// convertBindGroupLayoutEntry converts a compute-visible buffer binding.
func convertBindGroupLayoutEntry(e gpucore.BindGroupLayoutEntry) gputypes.BindGroupLayoutEntry {
	return gputypes.BindGroupLayoutEntry{
		Binding:    e.Binding,
		Visibility: gputypes.ShaderStageCompute,
		Buffer: &gputypes.BufferBindingLayout{
			Type:           convertBindingType(e.Type),
			MinBindingSize: e.MinBindingSize,
		},
	}
}

// convertBindGroupEntry binds buf, resolved from e.Buffer by the caller.
func convertBindGroupEntry(e gpucore.BindGroupEntry, buf hal.Buffer) gputypes.BindGroupEntry {
	return gputypes.BindGroupEntry{
		Binding: e.Binding,
		Resource: gputypes.BufferBinding{
			Buffer: buf.NativeHandle(),
			Offset: e.Offset,
			Size:   e.Size,
		},
	}
}
