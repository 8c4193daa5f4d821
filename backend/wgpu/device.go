package wgpu

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compute/gpucore"
)

type buffer struct {
	hal    hal.Buffer
	label  string
	size   uint64
	usage  gpucore.BufferUsage
	mapped bool
}

type bindGroupLayout struct {
	hal     hal.BindGroupLayout
	entries []gpucore.BindGroupLayoutEntry
}

// pipelineLayout owns the parameter block resources when paramsSize > 0.
type pipelineLayout struct {
	hal          hal.PipelineLayout
	groups       []gpucore.BindGroupLayoutID
	paramsSize   uint32
	paramsLayout hal.BindGroupLayout
	paramsBuffer hal.Buffer
	paramsGroup  hal.BindGroup
}

type computePipeline struct {
	hal    hal.ComputePipeline
	layout gpucore.PipelineLayoutID
}

type bindGroupPool struct {
	label      string
	maxGroups  uint32
	maxBuffers uint32
	buffers    uint32
	groups     []gpucore.BindGroupID
}

// bindGroup is created on the device by the first UpdateBindGroup.
type bindGroup struct {
	hal    hal.BindGroup
	layout gpucore.BindGroupLayoutID
}

// Device implements gpucore.Device using gogpu/wgpu/hal directly.
// It provides a bridge between the gpucore abstraction and the HAL layer.
//
// Thread Safety: Device is safe for concurrent use from multiple goroutines.
// All resource operations are protected by a mutex.
type Device struct {
	mu     sync.Mutex
	log    *slog.Logger
	device hal.Device
	queue  hal.Queue

	// instance is set when the device was opened by this package.
	instance hal.Instance
	// external devices are left alive by Destroy.
	external bool

	info    gputypes.AdapterInfo
	limits  gpucore.Limits
	label   string
	destroy sync.Once

	// ID generation
	nextID atomic.Uint64

	// Resource tracking maps gpucore IDs to hal resources
	buffers          map[gpucore.BufferID]*buffer
	shaderModules    map[gpucore.ShaderModuleID]hal.ShaderModule
	computePipelines map[gpucore.ComputePipelineID]*computePipeline
	bindGroupLayouts map[gpucore.BindGroupLayoutID]*bindGroupLayout
	pipelineLayouts  map[gpucore.PipelineLayoutID]*pipelineLayout
	bindGroupPools   map[gpucore.BindGroupPoolID]*bindGroupPool
	bindGroups       map[gpucore.BindGroupID]*bindGroup
	commandPools     map[gpucore.CommandPoolID]*commandPool
	commandBuffers   map[gpucore.CommandBufferID]*commandBuffer
}

// NewDevice wraps a HAL device and queue.
// The limits parameter provides the adapter's capability limits.
// If limits is nil, default limits are used.
func NewDevice(device hal.Device, queue hal.Queue, info gputypes.AdapterInfo, limits *gputypes.Limits) *Device {
	lim := gputypes.DefaultLimits()
	if limits != nil {
		lim = *limits
	}

	d := &Device{
		log:              slog.New(nopHandler{}),
		device:           device,
		queue:            queue,
		info:             info,
		limits:           convertLimits(lim),
		buffers:          make(map[gpucore.BufferID]*buffer),
		shaderModules:    make(map[gpucore.ShaderModuleID]hal.ShaderModule),
		computePipelines: make(map[gpucore.ComputePipelineID]*computePipeline),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]*bindGroupLayout),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID]*pipelineLayout),
		bindGroupPools:   make(map[gpucore.BindGroupPoolID]*bindGroupPool),
		bindGroups:       make(map[gpucore.BindGroupID]*bindGroup),
		commandPools:     make(map[gpucore.CommandPoolID]*commandPool),
		commandBuffers:   make(map[gpucore.CommandBufferID]*commandBuffer),
	}

	// Start ID generation at 1 (0 is invalid)
	d.nextID.Store(1)
	return d
}

// SetLogger sets the logger for device diagnostics. Nil restores silence.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	d.log = l
}

// newID generates a unique resource ID.
func (d *Device) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// labelf prefixes a debug label with the device label.
func (d *Device) labelf(format string, args ...any) string {
	s := fmt.Sprintf(format, args...)
	if d.label == "" {
		return s
	}
	return d.label + ":" + s
}

// === Capabilities ===

// Info returns adapter metadata.
func (d *Device) Info() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: d.info.Name, Type: convertDeviceType(d.info.DeviceType)}
}

// AdapterInfo returns the full HAL adapter description.
func (d *Device) AdapterInfo() gputypes.AdapterInfo { return d.info }

// Limits returns the device limits.
func (d *Device) Limits() gpucore.Limits { return d.limits }

// HalDevice returns the underlying HAL device.
func (d *Device) HalDevice() any { return d.device }

// HalQueue returns the underlying HAL queue.
func (d *Device) HalQueue() any { return d.queue }

// === Buffer Management ===

// CreateBuffer allocates a device buffer.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: buffer size must be greater than zero")
	}
	if desc.Size > d.limits.MaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("%w: %d bytes exceeds max buffer size %d",
			gpucore.ErrOutOfMemory, desc.Size, d.limits.MaxBufferSize)
	}

	b, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: d.labelf("%s", desc.Label),
		Size:  desc.Size,
		Usage: convertBufferUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: create buffer %q: %w", classify(err), desc.Label, err)
	}

	id := gpucore.BufferID(d.newID())

	d.mu.Lock()
	d.buffers[id] = &buffer{hal: b, label: desc.Label, size: desc.Size, usage: desc.Usage}
	d.mu.Unlock()

	return id, nil
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	b, ok := d.buffers[id]
	if ok {
		delete(d.buffers, id)
	}
	d.mu.Unlock()

	if ok {
		if b.mapped {
			_ = d.device.UnmapBuffer(b.hal)
		}
		d.device.DestroyBuffer(b.hal)
	}
}

// MapBuffer maps the whole buffer for host access.
func (d *Device) MapBuffer(id gpucore.BufferID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
	}
	if !b.usage.Mappable() {
		return nil, fmt.Errorf("%w: buffer %d (%s)", gpucore.ErrNotMappable, id, b.label)
	}
	if b.mapped {
		return nil, fmt.Errorf("%w: buffer %d (%s)", ErrAlreadyMapped, id, b.label)
	}

	m, err := d.device.MapBuffer(b.hal, 0, b.size)
	if err != nil {
		return nil, fmt.Errorf("wgpu: map buffer %q: %w", b.label, err)
	}
	b.mapped = true
	return unsafe.Slice((*byte)(m.Ptr), b.size), nil
}

// UnmapBuffer ends a mapping.
func (d *Device) UnmapBuffer(id gpucore.BufferID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, id)
	}
	if !b.mapped {
		return fmt.Errorf("%w: buffer %d (%s)", ErrNotMapped, id, b.label)
	}
	b.mapped = false
	if err := d.device.UnmapBuffer(b.hal); err != nil {
		return fmt.Errorf("wgpu: unmap buffer %q: %w", b.label, err)
	}
	return nil
}

// === Kernel Objects ===

// CreateShaderModule creates a shader module from SPIR-V bytecode.
func (d *Device) CreateShaderModule(spirv []uint32, label string) (gpucore.ShaderModuleID, error) {
	if len(spirv) == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: empty SPIR-V bytecode", gpucore.ErrInvalidShader)
	}

	module, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  d.labelf("%s", label),
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: %s: %w", gpucore.ErrInvalidShader, label, err)
	}

	id := gpucore.ShaderModuleID(d.newID())

	d.mu.Lock()
	d.shaderModules[id] = module
	d.mu.Unlock()

	return id, nil
}

// DestroyShaderModule releases a shader module.
func (d *Device) DestroyShaderModule(id gpucore.ShaderModuleID) {
	d.mu.Lock()
	module, ok := d.shaderModules[id]
	if ok {
		delete(d.shaderModules, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyShaderModule(module)
	}
}

// CreateComputePipeline creates a compute pipeline.
func (d *Device) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	d.mu.Lock()
	module, ok := d.shaderModules[desc.ShaderModule]
	layout := d.pipelineLayouts[desc.Layout]
	d.mu.Unlock()

	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", gpucore.ErrUnknownResource, desc.ShaderModule)
	}
	if layout == nil {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %d", gpucore.ErrUnknownResource, desc.Layout)
	}

	pipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  d.labelf("%s", desc.Label),
		Layout: layout.hal,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline %q: %w", gpucore.ErrInvalidShader, desc.Label, err)
	}

	id := gpucore.ComputePipelineID(d.newID())

	d.mu.Lock()
	d.computePipelines[id] = &computePipeline{hal: pipeline, layout: desc.Layout}
	d.mu.Unlock()

	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (d *Device) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	d.mu.Lock()
	p, ok := d.computePipelines[id]
	if ok {
		delete(d.computePipelines, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyComputePipeline(p.hal)
	}
}

// === Binding Objects ===

// CreateBindGroupLayout creates a bind group layout.
func (d *Device) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, len(desc.Entries))
	for i, e := range desc.Entries {
		entries[i] = convertBindGroupLayoutEntry(e)
	}

	layout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   d.labelf("%s", desc.Label),
		Entries: entries,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("wgpu: create bind group layout %q: %w", desc.Label, err)
	}

	id := gpucore.BindGroupLayoutID(d.newID())

	d.mu.Lock()
	d.bindGroupLayouts[id] = &bindGroupLayout{
		hal:     layout,
		entries: append([]gpucore.BindGroupLayoutEntry(nil), desc.Entries...),
	}
	d.mu.Unlock()

	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (d *Device) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	d.mu.Lock()
	l, ok := d.bindGroupLayouts[id]
	if ok {
		delete(d.bindGroupLayouts, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyBindGroupLayout(l.hal)
	}
}

// CreatePipelineLayout creates a pipeline layout. A non-zero ParamsSize adds
// a uniform block at ParamsGroup backed by a buffer the layout owns.
func (d *Device) CreatePipelineLayout(desc *gpucore.PipelineLayoutDesc) (gpucore.PipelineLayoutID, error) {
	if desc.ParamsSize > d.limits.MaxParamsSize {
		return gpucore.InvalidID, fmt.Errorf("wgpu: params size %d exceeds %d", desc.ParamsSize, d.limits.MaxParamsSize)
	}
	if desc.ParamsSize > 0 && len(desc.BindGroupLayouts) != gpucore.ParamsGroup {
		return gpucore.InvalidID, fmt.Errorf("wgpu: params block needs exactly %d storage groups, got %d",
			gpucore.ParamsGroup, len(desc.BindGroupLayouts))
	}

	d.mu.Lock()
	halLayouts := make([]hal.BindGroupLayout, 0, len(desc.BindGroupLayouts)+1)
	for _, lid := range desc.BindGroupLayouts {
		l, ok := d.bindGroupLayouts[lid]
		if !ok {
			d.mu.Unlock()
			return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", gpucore.ErrUnknownResource, lid)
		}
		halLayouts = append(halLayouts, l.hal)
	}
	d.mu.Unlock()

	pl := &pipelineLayout{
		groups:     append([]gpucore.BindGroupLayoutID(nil), desc.BindGroupLayouts...),
		paramsSize: desc.ParamsSize,
	}
	if desc.ParamsSize > 0 {
		if err := d.createParamsBlock(pl, desc.Label); err != nil {
			return gpucore.InvalidID, err
		}
		halLayouts = append(halLayouts, pl.paramsLayout)
	}

	layout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            d.labelf("%s", desc.Label),
		BindGroupLayouts: halLayouts,
	})
	if err != nil {
		d.destroyParamsBlock(pl)
		return gpucore.InvalidID, fmt.Errorf("wgpu: create pipeline layout %q: %w", desc.Label, err)
	}
	pl.hal = layout

	id := gpucore.PipelineLayoutID(d.newID())

	d.mu.Lock()
	d.pipelineLayouts[id] = pl
	d.mu.Unlock()

	return id, nil
}

// createParamsBlock creates the uniform layout, buffer and bind group that
// carry the parameter block of pl.
func (d *Device) createParamsBlock(pl *pipelineLayout, label string) error {
	var err error
	pl.paramsLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: d.labelf("%s_params_layout", label),
		Entries: []gputypes.BindGroupLayoutEntry{
			convertBindGroupLayoutEntry(gpucore.BindGroupLayoutEntry{
				Binding: gpucore.ParamsBinding,
				Type:    gpucore.BindingTypeUniformBuffer,
			}),
		},
	})
	if err != nil {
		return fmt.Errorf("wgpu: create params layout: %w", err)
	}

	pl.paramsBuffer, err = d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: d.labelf("%s_params", label),
		Size:  uint64(pl.paramsSize),
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		d.destroyParamsBlock(pl)
		return fmt.Errorf("%w: create params buffer: %w", classify(err), err)
	}

	pl.paramsGroup, err = d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  d.labelf("%s_params_group", label),
		Layout: pl.paramsLayout,
		Entries: []gputypes.BindGroupEntry{{
			Binding: gpucore.ParamsBinding,
			Resource: gputypes.BufferBinding{
				Buffer: pl.paramsBuffer.NativeHandle(),
				Size:   uint64(pl.paramsSize),
			},
		}},
	})
	if err != nil {
		d.destroyParamsBlock(pl)
		return fmt.Errorf("wgpu: create params bind group: %w", err)
	}
	return nil
}

func (d *Device) destroyParamsBlock(pl *pipelineLayout) {
	if pl.paramsGroup != nil {
		d.device.DestroyBindGroup(pl.paramsGroup)
		pl.paramsGroup = nil
	}
	if pl.paramsBuffer != nil {
		d.device.DestroyBuffer(pl.paramsBuffer)
		pl.paramsBuffer = nil
	}
	if pl.paramsLayout != nil {
		d.device.DestroyBindGroupLayout(pl.paramsLayout)
		pl.paramsLayout = nil
	}
}

// DestroyPipelineLayout releases a pipeline layout and its parameter block.
func (d *Device) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	d.mu.Lock()
	pl, ok := d.pipelineLayouts[id]
	if ok {
		delete(d.pipelineLayouts, id)
	}
	d.mu.Unlock()

	if ok {
		d.device.DestroyPipelineLayout(pl.hal)
		d.destroyParamsBlock(pl)
	}
}

// CreateBindGroupPool creates a pool. The HAL has no descriptor pools, so
// the pool only enforces capacity and owns its groups.
func (d *Device) CreateBindGroupPool(desc *gpucore.BindGroupPoolDesc) (gpucore.BindGroupPoolID, error) {
	if desc.MaxGroups == 0 {
		return gpucore.InvalidID, fmt.Errorf("wgpu: bind group pool %q has no capacity", desc.Label)
	}

	id := gpucore.BindGroupPoolID(d.newID())

	d.mu.Lock()
	d.bindGroupPools[id] = &bindGroupPool{label: desc.Label, maxGroups: desc.MaxGroups, maxBuffers: desc.MaxBuffers}
	d.mu.Unlock()

	return id, nil
}

// DestroyBindGroupPool releases a pool and its bind groups.
func (d *Device) DestroyBindGroupPool(id gpucore.BindGroupPoolID) {
	d.mu.Lock()
	p, ok := d.bindGroupPools[id]
	var groups []hal.BindGroup
	if ok {
		for _, gid := range p.groups {
			if g := d.bindGroups[gid]; g != nil && g.hal != nil {
				groups = append(groups, g.hal)
			}
			delete(d.bindGroups, gid)
		}
		delete(d.bindGroupPools, id)
	}
	d.mu.Unlock()

	for _, g := range groups {
		d.device.DestroyBindGroup(g)
	}
}

// AllocateBindGroup reserves a bind group in pool.
func (d *Device) AllocateBindGroup(pool gpucore.BindGroupPoolID, layout gpucore.BindGroupLayoutID) (gpucore.BindGroupID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.bindGroupPools[pool]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: bind group pool %d", gpucore.ErrUnknownResource, pool)
	}
	l, ok := d.bindGroupLayouts[layout]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", gpucore.ErrUnknownResource, layout)
	}
	n := uint32(len(l.entries)) //nolint:gosec // layouts are small
	if uint32(len(p.groups)) >= p.maxGroups || p.buffers+n > p.maxBuffers {
		return gpucore.InvalidID, fmt.Errorf("%w: bind group pool %q", gpucore.ErrPoolExhausted, p.label)
	}

	id := gpucore.BindGroupID(d.newID())
	p.groups = append(p.groups, id)
	p.buffers += n
	d.bindGroups[id] = &bindGroup{layout: layout}
	return id, nil
}

// UpdateBindGroup points the group at new buffers. HAL bind groups are
// immutable, so the HAL object is replaced while the ID stays the same.
// The old object must not be in use by pending work.
func (d *Device) UpdateBindGroup(group gpucore.BindGroupID, entries []gpucore.BindGroupEntry) error {
	d.mu.Lock()
	g, ok := d.bindGroups[group]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: bind group %d", gpucore.ErrUnknownResource, group)
	}
	l := d.bindGroupLayouts[g.layout]
	if l == nil {
		d.mu.Unlock()
		return fmt.Errorf("%w: layout of bind group %d", gpucore.ErrUnknownResource, group)
	}
	if len(entries) != len(l.entries) {
		d.mu.Unlock()
		return fmt.Errorf("%w: %d entries for a %d-binding layout", ErrBindingMismatch, len(entries), len(l.entries))
	}
	halEntries := make([]gputypes.BindGroupEntry, len(entries))
	for i, e := range entries {
		b, ok := d.buffers[e.Buffer]
		if !ok {
			d.mu.Unlock()
			return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, e.Buffer)
		}
		halEntries[i] = convertBindGroupEntry(e, b.hal)
	}
	d.mu.Unlock()

	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   d.labelf("bind_group_%d", group),
		Layout:  l.hal,
		Entries: halEntries,
	})
	if err != nil {
		return fmt.Errorf("wgpu: update bind group %d: %w", group, err)
	}

	d.mu.Lock()
	old := g.hal
	g.hal = bg
	d.mu.Unlock()

	if old != nil {
		d.device.DestroyBindGroup(old)
	}
	return nil
}

// WaitIdle blocks until the GPU has finished all submitted work.
func (d *Device) WaitIdle() error {
	if err := d.device.WaitIdle(); err != nil {
		return fmt.Errorf("wgpu: wait idle: %w", err)
	}
	return nil
}

// Destroy releases every remaining resource, then the device unless it is
// owned by someone else.
func (d *Device) Destroy() {
	d.destroy.Do(d.destroyAll)
}

func (d *Device) destroyAll() {
	if err := d.device.WaitIdle(); err != nil {
		d.log.Warn("wgpu: wait idle before destroy", "err", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, cb := range d.commandBuffers {
		cb.release()
	}
	for _, p := range d.computePipelines {
		d.device.DestroyComputePipeline(p.hal)
	}
	for _, m := range d.shaderModules {
		d.device.DestroyShaderModule(m)
	}
	for _, g := range d.bindGroups {
		if g.hal != nil {
			d.device.DestroyBindGroup(g.hal)
		}
	}
	for _, pl := range d.pipelineLayouts {
		d.device.DestroyPipelineLayout(pl.hal)
		d.destroyParamsBlock(pl)
	}
	for _, l := range d.bindGroupLayouts {
		d.device.DestroyBindGroupLayout(l.hal)
	}
	for _, b := range d.buffers {
		d.device.DestroyBuffer(b.hal)
	}
	clear(d.commandBuffers)
	clear(d.commandPools)
	clear(d.computePipelines)
	clear(d.shaderModules)
	clear(d.bindGroups)
	clear(d.bindGroupPools)
	clear(d.pipelineLayouts)
	clear(d.bindGroupLayouts)
	clear(d.buffers)

	if d.external {
		return
	}
	d.device.Destroy()
	if d.instance != nil {
		d.instance.Destroy()
	}
	d.log.Info("wgpu: device destroyed", "adapter", d.info.Name)
}

// Compile-time interface check.
var _ gpucore.Device = (*Device)(nil)
