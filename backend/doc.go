// Package backend provides a pluggable device registry.
//
// The engine runs kernels on a [gpucore.Device]. This package maps names to
// the providers that open such devices, so callers can pick a device at
// runtime without importing a specific backend.
//
// # Backend Registration
//
// Providers are registered via init() functions. Importing a backend
// package for its side effect is enough:
//
//	import (
//		_ "github.com/gogpu/compute/backend/cpu"
//		_ "github.com/gogpu/compute/backend/wgpu"
//	)
//
// # Backend Selection
//
// Use OpenDefault() to get the best available device, or Open() to request
// a specific provider by name:
//
//	// Best available: wgpu, falling back to cpu
//	dev, name, err := backend.OpenDefault(backend.Config{})
//
//	// Or a specific provider
//	dev, err := backend.Open("cpu", backend.Config{})
//
// # Available Backends
//
//   - "wgpu": gogpu/wgpu HAL (Vulkan, Metal, DX12, GLES, software)
//   - "vulkan", "metal", "dx12", "gl": the wgpu backend pinned to one API
//   - "cpu": host execution through the wgpu SPIR-V interpreter (always available)
package backend
