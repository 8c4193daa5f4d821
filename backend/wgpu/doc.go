// Package wgpu implements gpucore.Device on top of the gogpu/wgpu HAL.
//
// The HAL itself is backend-neutral: Vulkan, Metal, DX12 and GLES drivers
// register with it when their packages are imported, as does the software
// backend. Programs usually import them all at once:
//
//	import _ "github.com/gogpu/wgpu/hal/allbackends"
//
// # Providers
//
// Importing this package registers the "wgpu" provider with the backend
// registry. It tries the registered HAL backends in order (Vulkan, Metal,
// DX12, GL, then software) and opens the best adapter of the first one
// that has any, preferring discrete GPUs. The "wgpu-vulkan", "wgpu-metal",
// "wgpu-dx12", "wgpu-gl" and "wgpu-software" providers force one backend.
//
// A device owned by another component can be shared with FromProvider.
//
// # Parameter blocks
//
// WebGPU has no push constants. A pipeline layout with a non-zero
// ParamsSize therefore owns a small uniform buffer bound at
// gpucore.ParamsGroup. Each Dispatch writes the current parameter block
// into it through the queue before recording the dispatch, so one
// submission should carry one dispatch per pipeline layout.
package wgpu
