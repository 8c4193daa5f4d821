package wgpu

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compute/gpucore"
)

type cmdState uint8

const (
	cmdIdle cmdState = iota
	cmdRecording
	cmdFinished
	cmdSubmitted
)

type commandPool struct {
	label   string
	buffers []gpucore.CommandBufferID
}

// commandBuffer pairs a HAL encoder with the command buffer it last produced.
type commandBuffer struct {
	label   string
	encoder hal.CommandEncoder
	hal     hal.CommandBuffer
	state   cmdState
}

// release returns the HAL command buffer to its encoder and destroys the
// encoder. Pending work must be complete.
func (c *commandBuffer) release() {
	if c.state == cmdRecording {
		c.encoder.DiscardEncoding()
	}
	if c.hal != nil {
		c.encoder.ResetAll([]hal.CommandBuffer{c.hal})
		c.hal = nil
	}
	c.encoder.Destroy()
}

// CreateCommandPool creates a command pool.
func (d *Device) CreateCommandPool(label string) (gpucore.CommandPoolID, error) {
	id := gpucore.CommandPoolID(d.newID())

	d.mu.Lock()
	d.commandPools[id] = &commandPool{label: label}
	d.mu.Unlock()

	return id, nil
}

// DestroyCommandPool releases a pool and its command buffers.
func (d *Device) DestroyCommandPool(id gpucore.CommandPoolID) {
	d.mu.Lock()
	p, ok := d.commandPools[id]
	var cbs []*commandBuffer
	if ok {
		for _, cid := range p.buffers {
			if cb := d.commandBuffers[cid]; cb != nil {
				cbs = append(cbs, cb)
			}
			delete(d.commandBuffers, cid)
		}
		delete(d.commandPools, id)
	}
	d.mu.Unlock()

	for _, cb := range cbs {
		cb.release()
	}
}

// AllocateCommandBuffer creates a command buffer with its own HAL encoder.
func (d *Device) AllocateCommandBuffer(pool gpucore.CommandPoolID) (gpucore.CommandBufferID, error) {
	d.mu.Lock()
	p, ok := d.commandPools[pool]
	d.mu.Unlock()
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: command pool %d", gpucore.ErrUnknownResource, pool)
	}

	label := d.labelf("%s_%d", p.label, len(p.buffers))
	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create command encoder: %w", err)
	}

	id := gpucore.CommandBufferID(d.newID())

	d.mu.Lock()
	p.buffers = append(p.buffers, id)
	d.commandBuffers[id] = &commandBuffer{label: label, encoder: enc}
	d.mu.Unlock()

	return id, nil
}

// BeginCommands resets cmd and starts recording. Work submitted from cmd
// earlier must be complete.
func (d *Device) BeginCommands(cmd gpucore.CommandBufferID) (gpucore.CommandEncoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	cb, ok := d.commandBuffers[cmd]
	if !ok {
		return nil, fmt.Errorf("%w: command buffer %d", gpucore.ErrUnknownResource, cmd)
	}
	if cb.state == cmdRecording {
		return nil, fmt.Errorf("%w: command buffer %d is already recording", gpucore.ErrEncoderState, cmd)
	}
	if cb.hal != nil {
		cb.encoder.ResetAll([]hal.CommandBuffer{cb.hal})
		cb.hal = nil
	}
	if err := cb.encoder.BeginEncoding(cb.label); err != nil {
		cb.state = cmdIdle
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	cb.state = cmdRecording
	return &commandEncoder{dev: d, cb: cb}, nil
}

// Submit queues the finished command buffer.
func (d *Device) Submit(cmd gpucore.CommandBufferID) error {
	d.mu.Lock()
	cb, ok := d.commandBuffers[cmd]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: command buffer %d", gpucore.ErrUnknownResource, cmd)
	}
	if cb.state != cmdFinished {
		return fmt.Errorf("%w: command buffer %d submitted before Finish", gpucore.ErrEncoderState, cmd)
	}

	idx, err := d.queue.Submit([]hal.CommandBuffer{cb.hal})
	if err != nil {
		return fmt.Errorf("%w: submit: %w", classify(err), err)
	}
	cb.state = cmdSubmitted
	d.log.Debug("wgpu: submitted", "cmd", cb.label, "index", idx)
	return nil
}

// commandEncoder records into a HAL command encoder. Recording errors are
// kept and reported by Finish.
type commandEncoder struct {
	dev *Device
	cb  *commandBuffer
	err error
}

func (e *commandEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// CopyBuffer records a buffer-to-buffer copy from offset 0.
func (e *commandEncoder) CopyBuffer(src, dst gpucore.BufferID, size uint64) {
	e.dev.mu.Lock()
	s, sok := e.dev.buffers[src]
	t, tok := e.dev.buffers[dst]
	e.dev.mu.Unlock()

	switch {
	case !sok:
		e.fail(fmt.Errorf("%w: copy source %d", gpucore.ErrUnknownResource, src))
		return
	case !tok:
		e.fail(fmt.Errorf("%w: copy destination %d", gpucore.ErrUnknownResource, dst))
		return
	case size == 0 || size > s.size || size > t.size:
		e.fail(fmt.Errorf("wgpu: copy of %d bytes between buffers of %d and %d bytes", size, s.size, t.size))
		return
	}
	e.cb.encoder.CopyBufferToBuffer(s.hal, t.hal, []hal.BufferCopy{{Size: size}})
}

// BeginComputePass begins a compute pass.
func (e *commandEncoder) BeginComputePass(label string) gpucore.ComputePassEncoder {
	pass := e.cb.encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: e.dev.labelf("%s", label)})
	return &computePassEncoder{enc: e, pass: pass}
}

// Finish closes the command buffer.
func (e *commandEncoder) Finish() error {
	if e.cb.state != cmdRecording {
		return fmt.Errorf("%w: finish without recording", gpucore.ErrEncoderState)
	}
	if e.err != nil {
		e.cb.encoder.DiscardEncoding()
		e.cb.state = cmdIdle
		return e.err
	}
	buf, err := e.cb.encoder.EndEncoding()
	if err != nil {
		e.cb.encoder.DiscardEncoding()
		e.cb.state = cmdIdle
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	e.cb.hal = buf
	e.cb.state = cmdFinished
	return nil
}

// computePassEncoder records compute commands.
//
// The parameter block is written through the queue when the dispatch is
// recorded, so a submission carries one parameter block per layout.
type computePassEncoder struct {
	enc      *commandEncoder
	pass     hal.ComputePassEncoder
	pipeline *computePipeline
	params   []byte
	ended    bool
}

// SetParams sets the parameter block for following dispatches.
func (p *computePassEncoder) SetParams(data []byte) {
	if len(data) > gpucore.MaxParamsSize {
		p.enc.fail(fmt.Errorf("wgpu: params block of %d bytes exceeds %d", len(data), gpucore.MaxParamsSize))
		return
	}
	p.params = append(p.params[:0], data...)
}

// SetBindGroup sets a storage bind group at the specified index.
func (p *computePassEncoder) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	d := p.enc.dev
	d.mu.Lock()
	g, ok := d.bindGroups[group]
	d.mu.Unlock()

	switch {
	case !ok:
		p.enc.fail(fmt.Errorf("%w: bind group %d", gpucore.ErrUnknownResource, group))
	case g.hal == nil:
		p.enc.fail(fmt.Errorf("%w: bind group %d was never updated", ErrBindingMismatch, group))
	default:
		p.pass.SetBindGroup(index, g.hal, nil)
	}
}

// SetPipeline sets the active compute pipeline.
func (p *computePassEncoder) SetPipeline(pipeline gpucore.ComputePipelineID) {
	d := p.enc.dev
	d.mu.Lock()
	cp, ok := d.computePipelines[pipeline]
	d.mu.Unlock()

	if !ok {
		p.enc.fail(fmt.Errorf("%w: pipeline %d", gpucore.ErrUnknownResource, pipeline))
		return
	}
	p.pipeline = cp
	p.pass.SetPipeline(cp.hal)
}

// Dispatch uploads the parameter block, binds it and records the dispatch.
func (p *computePassEncoder) Dispatch(x, y, z uint32) {
	if p.ended {
		p.enc.fail(fmt.Errorf("%w: dispatch after End", gpucore.ErrEncoderState))
		return
	}
	if p.pipeline == nil {
		p.enc.fail(fmt.Errorf("%w: dispatch without pipeline", gpucore.ErrEncoderState))
		return
	}
	d := p.enc.dev
	limit := d.limits.MaxWorkgroupsPerDimension
	if x == 0 || y == 0 || z == 0 || x > limit || y > limit || z > limit {
		p.enc.fail(fmt.Errorf("wgpu: dispatch (%d, %d, %d) outside 1..%d", x, y, z, limit))
		return
	}

	d.mu.Lock()
	pl := d.pipelineLayouts[p.pipeline.layout]
	d.mu.Unlock()
	if pl == nil {
		p.enc.fail(fmt.Errorf("%w: pipeline layout %d", gpucore.ErrUnknownResource, p.pipeline.layout))
		return
	}

	if pl.paramsSize > 0 {
		block := make([]byte, pl.paramsSize)
		copy(block, p.params)
		if err := d.queue.WriteBuffer(pl.paramsBuffer, 0, block); err != nil {
			p.enc.fail(fmt.Errorf("wgpu: write params: %w", err))
			return
		}
		p.pass.SetBindGroup(gpucore.ParamsGroup, pl.paramsGroup, nil)
	}
	p.pass.Dispatch(x, y, z)
}

// End finishes the compute pass.
func (p *computePassEncoder) End() {
	if p.ended {
		return
	}
	p.ended = true
	p.pass.End()
}
