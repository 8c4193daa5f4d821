// Package cpu provides a gpucore.Device that runs kernels on the host.
//
// Kernels are executed by the SPIR-V interpreter of the wgpu software
// backend (github.com/gogpu/wgpu/hal/software/shader), one invocation at a
// time. Buffers are plain byte slices, so mapping is free and every buffer
// is host-visible. Submission executes recorded commands immediately and
// WaitIdle returns at once.
//
// The device is slow but deterministic and has no platform requirements,
// which makes it the fallback when no GPU backend can be opened and the
// device the engine's tests run on.
//
// Importing the package registers it with the backend registry as "cpu":
//
//	import _ "github.com/gogpu/compute/backend/cpu"
package cpu
