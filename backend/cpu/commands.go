package cpu

import (
	"fmt"

	"github.com/gogpu/wgpu/hal/software/shader"

	"github.com/gogpu/compute/gpucore"
)

type cmdState uint8

const (
	cmdIdle cmdState = iota
	cmdRecording
	cmdFinished
)

// command is a recorded operation replayed by Submit.
type command interface {
	execute(d *Device) error
}

type copyCmd struct {
	src, dst gpucore.BufferID
	size     uint64
}

type dispatchCmd struct {
	pipeline gpucore.ComputePipelineID
	groups   map[uint32]gpucore.BindGroupID
	params   []byte
	x, y, z  uint32
}

type commandBuffer struct {
	state cmdState
	cmds  []command
	err   error
}

// BeginCommands resets cmd and starts recording into it.
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
	cb.state = cmdRecording
	cb.cmds = cb.cmds[:0]
	cb.err = nil
	return &commandEncoder{dev: d, cb: cb}, nil
}

// Submit runs the recorded commands to completion.
func (d *Device) Submit(cmd gpucore.CommandBufferID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cb, ok := d.commandBuffers[cmd]
	if !ok {
		return fmt.Errorf("%w: command buffer %d", gpucore.ErrUnknownResource, cmd)
	}
	if cb.state != cmdFinished {
		return fmt.Errorf("%w: command buffer %d submitted before Finish", gpucore.ErrEncoderState, cmd)
	}
	cb.state = cmdIdle
	for _, c := range cb.cmds {
		if err := c.execute(d); err != nil {
			return err
		}
	}
	return nil
}

func (c copyCmd) execute(d *Device) error {
	src, ok := d.buffers[c.src]
	if !ok {
		return fmt.Errorf("%w: copy source %d", gpucore.ErrUnknownResource, c.src)
	}
	dst, ok := d.buffers[c.dst]
	if !ok {
		return fmt.Errorf("%w: copy destination %d", gpucore.ErrUnknownResource, c.dst)
	}
	if !src.usage.Has(gpucore.BufferUsageCopySrc) || !dst.usage.Has(gpucore.BufferUsageCopyDst) {
		return fmt.Errorf("cpu: copy %d -> %d without copy usage", c.src, c.dst)
	}
	if c.size > uint64(len(src.data)) || c.size > uint64(len(dst.data)) {
		return fmt.Errorf("cpu: copy of %d bytes overruns %d -> %d (%d, %d bytes)",
			c.size, c.src, c.dst, len(src.data), len(dst.data))
	}
	copy(dst.data[:c.size], src.data[:c.size])
	return nil
}

func (c *dispatchCmd) execute(d *Device) error {
	p, ok := d.computePipelines[c.pipeline]
	if !ok {
		return fmt.Errorf("%w: pipeline %d", gpucore.ErrUnknownResource, c.pipeline)
	}
	pl, ok := d.pipelineLayouts[p.layout]
	if !ok {
		return fmt.Errorf("%w: pipeline layout %d", gpucore.ErrUnknownResource, p.layout)
	}

	bufs := make(map[shader.BindingKey][]byte)
	type binding struct {
		key  shader.BindingKey
		data []byte
	}
	var storage []binding

	for gi, layoutID := range pl.groups {
		index := uint32(gi) //nolint:gosec // at most ParamsGroup groups
		groupID, ok := c.groups[index]
		if !ok {
			return fmt.Errorf("%w: no bind group at index %d", ErrBindingMismatch, index)
		}
		g, ok := d.bindGroups[groupID]
		if !ok {
			return fmt.Errorf("%w: bind group %d", gpucore.ErrUnknownResource, groupID)
		}
		if g.layout != layoutID {
			return fmt.Errorf("%w: bind group %d has layout %d, pipeline expects %d",
				ErrBindingMismatch, groupID, g.layout, layoutID)
		}
		l := d.bindGroupLayouts[layoutID]
		if l == nil || len(g.entries) != len(l.entries) {
			return fmt.Errorf("%w: bind group %d is not fully bound", ErrBindingMismatch, groupID)
		}
		for _, e := range g.entries {
			b, ok := d.buffers[e.Buffer]
			if !ok {
				return fmt.Errorf("%w: buffer %d bound at %d/%d", gpucore.ErrUnknownResource, e.Buffer, index, e.Binding)
			}
			if b.mapped {
				return fmt.Errorf("%w: buffer %d is mapped", gpucore.ErrEncoderState, e.Buffer)
			}
			end := uint64(len(b.data))
			if e.Size != 0 {
				end = e.Offset + e.Size
			}
			key := shader.BindingKey{Group: index, Binding: e.Binding}
			view := b.data[e.Offset:end]
			bufs[key] = view
			storage = append(storage, binding{key: key, data: view})
		}
	}

	if pl.paramsSize > 0 {
		block := make([]byte, pl.paramsSize)
		copy(block, c.params)
		bufs[shader.BindingKey{Group: gpucore.ParamsGroup, Binding: gpucore.ParamsBinding}] = block
	}

	ctx := &shader.ExecutionContext{Buffers: bufs}
	if err := p.module.DispatchCompute(p.entry, ctx, c.x, c.y, c.z); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrExecution, p.label, err)
	}

	// The interpreter may replace a slice rather than write through it.
	for _, s := range storage {
		if out := ctx.Buffers[s.key]; len(out) > 0 && &out[0] != &s.data[0] {
			copy(s.data, out)
		}
	}
	d.log.Debug("cpu: dispatch", "pipeline", p.label, "groups", [3]uint32{c.x, c.y, c.z})
	return nil
}

// commandEncoder records into a command buffer. Recording errors are kept
// and reported by Finish.
type commandEncoder struct {
	dev *Device
	cb  *commandBuffer
}

func (e *commandEncoder) fail(err error) {
	if e.cb.err == nil {
		e.cb.err = err
	}
}

// CopyBuffer records a buffer-to-buffer copy.
func (e *commandEncoder) CopyBuffer(src, dst gpucore.BufferID, size uint64) {
	if size == 0 {
		e.fail(fmt.Errorf("cpu: zero-length copy"))
		return
	}
	e.cb.cmds = append(e.cb.cmds, copyCmd{src: src, dst: dst, size: size})
}

// BeginComputePass begins a compute pass.
func (e *commandEncoder) BeginComputePass(_ string) gpucore.ComputePassEncoder {
	return &computePassEncoder{enc: e, groups: make(map[uint32]gpucore.BindGroupID)}
}

// Finish closes the command buffer.
func (e *commandEncoder) Finish() error {
	if e.cb.state != cmdRecording {
		return fmt.Errorf("%w: finish without recording", gpucore.ErrEncoderState)
	}
	if e.cb.err != nil {
		e.cb.state = cmdIdle
		return e.cb.err
	}
	e.cb.state = cmdFinished
	return nil
}

// computePassEncoder records compute commands.
type computePassEncoder struct {
	enc      *commandEncoder
	pipeline gpucore.ComputePipelineID
	groups   map[uint32]gpucore.BindGroupID
	params   []byte
	ended    bool
}

// SetParams sets the parameter block for following dispatches.
func (p *computePassEncoder) SetParams(data []byte) {
	if len(data) > gpucore.MaxParamsSize {
		p.enc.fail(fmt.Errorf("cpu: params block of %d bytes exceeds %d", len(data), gpucore.MaxParamsSize))
		return
	}
	p.params = append(p.params[:0], data...)
}

// SetBindGroup sets a bind group at the specified index.
func (p *computePassEncoder) SetBindGroup(index uint32, group gpucore.BindGroupID) {
	p.groups[index] = group
}

// SetPipeline sets the active compute pipeline.
func (p *computePassEncoder) SetPipeline(pipeline gpucore.ComputePipelineID) {
	p.pipeline = pipeline
}

// Dispatch records a dispatch with the current state.
func (p *computePassEncoder) Dispatch(x, y, z uint32) {
	if p.ended {
		p.enc.fail(fmt.Errorf("%w: dispatch after End", gpucore.ErrEncoderState))
		return
	}
	if p.pipeline == gpucore.InvalidID {
		p.enc.fail(fmt.Errorf("%w: dispatch without pipeline", gpucore.ErrEncoderState))
		return
	}
	limit := p.enc.dev.limits.MaxWorkgroupsPerDimension
	if x == 0 || y == 0 || z == 0 || x > limit || y > limit || z > limit {
		p.enc.fail(fmt.Errorf("cpu: dispatch (%d, %d, %d) outside 1..%d", x, y, z, limit))
		return
	}
	groups := make(map[uint32]gpucore.BindGroupID, len(p.groups))
	for k, v := range p.groups {
		groups[k] = v
	}
	p.enc.cb.cmds = append(p.enc.cb.cmds, &dispatchCmd{
		pipeline: p.pipeline,
		groups:   groups,
		params:   append([]byte(nil), p.params...),
		x:        x, y: y, z: z,
	})
}

// End finishes the compute pass.
func (p *computePassEncoder) End() {
	p.ended = true
}
