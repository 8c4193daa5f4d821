package compute

import (
	"fmt"

	"github.com/gogpu/compute/gpucore"
)

// Run dispatches k over an x by y by z grid of workgroups and waits for it
// to finish.
//
// buffers are bound to slots 0 and 1 in order; their count must equal the
// kernel's arity. params is copied into the parameter block, zero-padded
// to at least 4 bytes, and may be at most 128 bytes long. A bad grid or
// params block wraps ErrInvalidArgument whatever the handles are; stale
// handles then wrap ErrNotFound.
func (e *Engine) Run(k Kernel, buffers []Buffer, x, y, z uint32, params []byte) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	limit := e.limits.MaxWorkgroupsPerDimension
	if x == 0 || y == 0 || z == 0 || x > limit || y > limit || z > limit {
		return fmt.Errorf("%w: grid (%d, %d, %d) outside 1..%d", ErrInvalidArgument, x, y, z, limit)
	}
	if len(params) > gpucore.MaxParamsSize {
		return fmt.Errorf("%w: params block of %d bytes exceeds %d", ErrInvalidArgument, len(params), gpucore.MaxParamsSize)
	}

	bk, err := e.kernels.Get(k.h)
	if err != nil {
		return notFound(k.String(), err)
	}
	if len(buffers) != bk.info.Arity {
		return fmt.Errorf("%w: kernel takes %d buffers, got %d", ErrInvalidArgument, bk.info.Arity, len(buffers))
	}

	entries := make([]gpucore.BindGroupEntry, len(buffers))
	for i, b := range buffers {
		sb, err := e.buffers.Get(b.h)
		if err != nil {
			return notFound(b.String(), err)
		}
		for _, prev := range buffers[:i] {
			if prev == b {
				return fmt.Errorf("%w: %s bound twice", ErrInvalidArgument, b)
			}
		}
		entries[i] = gpucore.BindGroupEntry{
			Binding: uint32(i), //nolint:gosec // i < MaxStorageSlots
			Buffer:  sb.device,
		}
	}


	b := e.bindings[bk.info.Arity-1]
	if err := e.dev.UpdateBindGroup(b.set, entries); err != nil {
		return fmt.Errorf("%w: bind buffers: %w", ErrDevice, err)
	}

	enc, err := e.dev.BeginCommands(e.cmd)
	if err != nil {
		return fmt.Errorf("%w: begin dispatch: %w", ErrDevice, err)
	}
	pass := enc.BeginComputePass(e.label + "_dispatch")
	pass.SetParams(paramsBlock(params))
	pass.SetBindGroup(gpucore.StorageGroup, b.set)
	pass.SetPipeline(bk.pipeline)
	pass.Dispatch(x, y, z)
	pass.End()
	if err := enc.Finish(); err != nil {
		return fmt.Errorf("%w: record dispatch: %w", ErrDevice, err)
	}
	if err := e.submit(); err != nil {
		return err
	}

	e.stats.Dispatches++
	e.log.Debug("compute: dispatch", "kernel", k.String(), "grid", [3]uint32{x, y, z}, "params", len(params))
	return nil
}

// paramsBlock zero-pads params to the minimum block size.
func paramsBlock(params []byte) []byte {
	if len(params) >= gpucore.MinParamsSize {
		return params
	}
	block := make([]byte, gpucore.MinParamsSize)
	copy(block, params)
	return block
}
