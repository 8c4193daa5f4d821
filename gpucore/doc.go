// Package gpucore defines the device abstraction the compute engine runs on.
//
// The [Device] interface is the only contract between the engine and a
// native compute API. It covers the five capabilities the engine needs:
// allocate (buffers, kernels, layouts, pools), bind ([Device.UpdateBindGroup]),
// submit ([Device.BeginCommands], [Device.Submit]), wait ([Device.WaitIdle])
// and destroy (the Destroy* family).
//
// # Architecture
//
//	               +-----------------+
//	               |     compute     |
//	               |     (Engine)    |
//	               +--------+--------+
//	                        |
//	                 gpucore.Device
//	                        |
//	         +--------------+--------------+
//	         |                             |
//	+--------v--------+          +--------v--------+
//	|  backend/wgpu   |          |   backend/cpu   |
//	|  (hal.Device)   |          | (SPIR-V interp) |
//	+--------+--------+          +-----------------+
//	         |
//	+--------v--------+
//	|   gogpu/wgpu    |
//	| Vulkan/Metal/.. |
//	+-----------------+
//
// # Resource Management
//
// Resources are named by opaque IDs ([BufferID], [ComputePipelineID], etc.).
// Implementations track the mapping between IDs and backend objects.
// [InvalidID] never names a resource.
//
// # Kernel ABI
//
// Every kernel sees the same fixed layout: storage buffers at
// @group(0) @binding(0) and @group(0) @binding(1), and an optional
// parameter block of up to [MaxParamsSize] bytes declared as
// @group(1) @binding(0) var<uniform>. Pipeline layouts own the storage for
// the parameter block; [ComputePassEncoder.SetParams] fills it.
package gpucore
