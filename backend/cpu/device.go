package cpu

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal/software/shader"

	"github.com/gogpu/compute/gpucore"
)

// AdapterName is the adapter name the device reports.
const AdapterName = "SPIR-V interpreter"

type hostBuffer struct {
	label  string
	usage  gpucore.BufferUsage
	data   []byte
	mapped bool
}

type pipeline struct {
	label  string
	module *shader.Module
	entry  string
	layout gpucore.PipelineLayoutID
}

type bindGroupLayout struct {
	entries []gpucore.BindGroupLayoutEntry
}

type pipelineLayout struct {
	groups     []gpucore.BindGroupLayoutID
	paramsSize uint32
}

type bindGroupPool struct {
	maxGroups  uint32
	maxBuffers uint32
	buffers    uint32
	groups     []gpucore.BindGroupID
}

type bindGroup struct {
	pool    gpucore.BindGroupPoolID
	layout  gpucore.BindGroupLayoutID
	entries []gpucore.BindGroupEntry
}

type commandPool struct {
	label   string
	buffers []gpucore.CommandBufferID
}

// Device implements gpucore.Device on host memory.
//
// Thread Safety: Device is safe for concurrent use from multiple goroutines.
// All resource operations are protected by a mutex.
type Device struct {
	mu     sync.Mutex
	log    *slog.Logger
	label  string
	limits gpucore.Limits

	// budget caps the total bytes of live buffers. Zero means no cap.
	budget    uint64
	allocated uint64

	// ID generation
	nextID atomic.Uint64

	buffers          map[gpucore.BufferID]*hostBuffer
	shaderModules    map[gpucore.ShaderModuleID]*shader.Module
	computePipelines map[gpucore.ComputePipelineID]*pipeline
	bindGroupLayouts map[gpucore.BindGroupLayoutID]*bindGroupLayout
	pipelineLayouts  map[gpucore.PipelineLayoutID]*pipelineLayout
	bindGroupPools   map[gpucore.BindGroupPoolID]*bindGroupPool
	bindGroups       map[gpucore.BindGroupID]*bindGroup
	commandPools     map[gpucore.CommandPoolID]*commandPool
	commandBuffers   map[gpucore.CommandBufferID]*commandBuffer

	destroyed bool
}

// Option configures a Device.
type Option func(*Device)

// WithLimits overrides the default limits.
func WithLimits(l gpucore.Limits) Option {
	return func(d *Device) { d.limits = l }
}

// WithMemoryBudget caps the total size of live buffers in bytes.
// Allocations beyond it fail with gpucore.ErrOutOfMemory.
func WithMemoryBudget(bytes uint64) Option {
	return func(d *Device) { d.budget = bytes }
}

// WithLogger sets the logger for device diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Device) {
		if l != nil {
			d.log = l
		}
	}
}

// WithLabel sets the device label used in log output.
func WithLabel(label string) Option {
	return func(d *Device) { d.label = label }
}

// New creates a host device.
func New(opts ...Option) *Device {
	d := &Device{
		log:              slog.New(nopHandler{}),
		limits:           gpucore.DefaultLimits(),
		buffers:          make(map[gpucore.BufferID]*hostBuffer),
		shaderModules:    make(map[gpucore.ShaderModuleID]*shader.Module),
		computePipelines: make(map[gpucore.ComputePipelineID]*pipeline),
		bindGroupLayouts: make(map[gpucore.BindGroupLayoutID]*bindGroupLayout),
		pipelineLayouts:  make(map[gpucore.PipelineLayoutID]*pipelineLayout),
		bindGroupPools:   make(map[gpucore.BindGroupPoolID]*bindGroupPool),
		bindGroups:       make(map[gpucore.BindGroupID]*bindGroup),
		commandPools:     make(map[gpucore.CommandPoolID]*commandPool),
		commandBuffers:   make(map[gpucore.CommandBufferID]*commandBuffer),
	}
	for _, opt := range opts {
		opt(d)
	}

	// Start ID generation at 1 (0 is invalid)
	d.nextID.Store(1)
	return d
}

// newID generates a unique resource ID.
func (d *Device) newID() uint64 {
	return d.nextID.Add(1) - 1
}

// === Capabilities ===

// Info returns adapter metadata.
func (d *Device) Info() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: AdapterName, Type: gpucontext.AdapterTypeSoftware}
}

// Limits returns the device limits.
func (d *Device) Limits() gpucore.Limits { return d.limits }

// Allocated returns the total size of live buffers in bytes.
func (d *Device) Allocated() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated
}

// === Buffer Management ===

// CreateBuffer allocates a zeroed host buffer.
func (d *Device) CreateBuffer(desc *gpucore.BufferDesc) (gpucore.BufferID, error) {
	if desc == nil || desc.Size == 0 {
		return gpucore.InvalidID, fmt.Errorf("cpu: buffer size must be greater than zero")
	}
	if desc.Size > d.limits.MaxBufferSize {
		return gpucore.InvalidID, fmt.Errorf("%w: %d bytes exceeds max buffer size %d",
			gpucore.ErrOutOfMemory, desc.Size, d.limits.MaxBufferSize)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.budget > 0 && d.allocated+desc.Size > d.budget {
		return gpucore.InvalidID, fmt.Errorf("%w: %d bytes requested, %d of %d in use",
			gpucore.ErrOutOfMemory, desc.Size, d.allocated, d.budget)
	}

	id := gpucore.BufferID(d.newID())
	d.buffers[id] = &hostBuffer{
		label: desc.Label,
		usage: desc.Usage,
		data:  make([]byte, desc.Size),
	}
	d.allocated += desc.Size
	d.log.Debug("cpu: buffer created", "id", id, "label", desc.Label, "size", desc.Size)
	return id, nil
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if b, ok := d.buffers[id]; ok {
		d.allocated -= uint64(len(b.data))
		delete(d.buffers, id)
	}
}

// MapBuffer returns the buffer contents. The slice is the buffer's storage.
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
	b.mapped = true
	return b.data, nil
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
	return nil
}

// === Kernel Objects ===

// CreateShaderModule parses SPIR-V for the interpreter.
func (d *Device) CreateShaderModule(spirv []uint32, label string) (gpucore.ShaderModuleID, error) {
	if len(spirv) == 0 {
		return gpucore.InvalidID, fmt.Errorf("%w: empty SPIR-V bytecode", gpucore.ErrInvalidShader)
	}
	m, err := shader.ParseModule(spirv)
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("%w: %s: %w", gpucore.ErrInvalidShader, label, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := gpucore.ShaderModuleID(d.newID())
	d.shaderModules[id] = m
	return id, nil
}

// DestroyShaderModule releases a shader module.
func (d *Device) DestroyShaderModule(id gpucore.ShaderModuleID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.shaderModules, id)
}

// CreateComputePipeline binds a module's compute entry point to a layout.
func (d *Device) CreateComputePipeline(desc *gpucore.ComputePipelineDesc) (gpucore.ComputePipelineID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.shaderModules[desc.ShaderModule]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: shader module %d", gpucore.ErrUnknownResource, desc.ShaderModule)
	}
	if _, ok := d.pipelineLayouts[desc.Layout]; !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: pipeline layout %d", gpucore.ErrUnknownResource, desc.Layout)
	}
	ep, ok := m.EntryPoints[desc.EntryPoint]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: entry point %q not found", gpucore.ErrInvalidShader, desc.EntryPoint)
	}
	if ep.ExecutionModel != shader.ExecutionModelGLCompute {
		return gpucore.InvalidID, fmt.Errorf("%w: entry point %q is not a compute entry point", gpucore.ErrInvalidShader, desc.EntryPoint)
	}
	size := m.GetWorkgroupSize(desc.EntryPoint)
	for i, n := range size {
		if n == 0 || n > d.limits.MaxWorkgroupSize[i] {
			return gpucore.InvalidID, fmt.Errorf("%w: workgroup size %v exceeds %v",
				gpucore.ErrInvalidShader, size, d.limits.MaxWorkgroupSize)
		}
	}

	id := gpucore.ComputePipelineID(d.newID())
	d.computePipelines[id] = &pipeline{
		label:  desc.Label,
		module: m,
		entry:  desc.EntryPoint,
		layout: desc.Layout,
	}
	return id, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (d *Device) DestroyComputePipeline(id gpucore.ComputePipelineID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.computePipelines, id)
}

// === Binding Objects ===

// CreateBindGroupLayout creates a bind group layout.
func (d *Device) CreateBindGroupLayout(desc *gpucore.BindGroupLayoutDesc) (gpucore.BindGroupLayoutID, error) {
	seen := make(map[uint32]bool, len(desc.Entries))
	for _, e := range desc.Entries {
		if seen[e.Binding] {
			return gpucore.InvalidID, fmt.Errorf("cpu: duplicate binding %d in layout %q", e.Binding, desc.Label)
		}
		seen[e.Binding] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := gpucore.BindGroupLayoutID(d.newID())
	d.bindGroupLayouts[id] = &bindGroupLayout{
		entries: append([]gpucore.BindGroupLayoutEntry(nil), desc.Entries...),
	}
	return id, nil
}

// DestroyBindGroupLayout releases a bind group layout.
func (d *Device) DestroyBindGroupLayout(id gpucore.BindGroupLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.bindGroupLayouts, id)
}

// CreatePipelineLayout creates a pipeline layout.
func (d *Device) CreatePipelineLayout(desc *gpucore.PipelineLayoutDesc) (gpucore.PipelineLayoutID, error) {
	if desc.ParamsSize > d.limits.MaxParamsSize {
		return gpucore.InvalidID, fmt.Errorf("cpu: params size %d exceeds %d", desc.ParamsSize, d.limits.MaxParamsSize)
	}
	if len(desc.BindGroupLayouts) > gpucore.ParamsGroup {
		return gpucore.InvalidID, fmt.Errorf("cpu: %d storage groups, at most %d",
			len(desc.BindGroupLayouts), gpucore.ParamsGroup)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, l := range desc.BindGroupLayouts {
		if _, ok := d.bindGroupLayouts[l]; !ok {
			return gpucore.InvalidID, fmt.Errorf("%w: bind group layout %d", gpucore.ErrUnknownResource, l)
		}
	}

	id := gpucore.PipelineLayoutID(d.newID())
	d.pipelineLayouts[id] = &pipelineLayout{
		groups:     append([]gpucore.BindGroupLayoutID(nil), desc.BindGroupLayouts...),
		paramsSize: desc.ParamsSize,
	}
	return id, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (d *Device) DestroyPipelineLayout(id gpucore.PipelineLayoutID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pipelineLayouts, id)
}

// CreateBindGroupPool creates a bind group pool.
func (d *Device) CreateBindGroupPool(desc *gpucore.BindGroupPoolDesc) (gpucore.BindGroupPoolID, error) {
	if desc.MaxGroups == 0 {
		return gpucore.InvalidID, fmt.Errorf("cpu: bind group pool %q has no capacity", desc.Label)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := gpucore.BindGroupPoolID(d.newID())
	d.bindGroupPools[id] = &bindGroupPool{maxGroups: desc.MaxGroups, maxBuffers: desc.MaxBuffers}
	return id, nil
}

// DestroyBindGroupPool releases a pool and its bind groups.
func (d *Device) DestroyBindGroupPool(id gpucore.BindGroupPoolID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.bindGroupPools[id]
	if !ok {
		return
	}
	for _, g := range p.groups {
		delete(d.bindGroups, g)
	}
	delete(d.bindGroupPools, id)
}

// AllocateBindGroup allocates an empty bind group.
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
		return gpucore.InvalidID, fmt.Errorf("%w: bind group pool %d", gpucore.ErrPoolExhausted, pool)
	}

	id := gpucore.BindGroupID(d.newID())
	p.groups = append(p.groups, id)
	p.buffers += n
	d.bindGroups[id] = &bindGroup{pool: pool, layout: layout}
	return id, nil
}

// UpdateBindGroup points the group's bindings at new buffers.
func (d *Device) UpdateBindGroup(group gpucore.BindGroupID, entries []gpucore.BindGroupEntry) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	g, ok := d.bindGroups[group]
	if !ok {
		return fmt.Errorf("%w: bind group %d", gpucore.ErrUnknownResource, group)
	}
	l := d.bindGroupLayouts[g.layout]
	if l == nil {
		return fmt.Errorf("%w: layout of bind group %d", gpucore.ErrUnknownResource, group)
	}
	if len(entries) != len(l.entries) {
		return fmt.Errorf("%w: %d entries for a %d-binding layout", ErrBindingMismatch, len(entries), len(l.entries))
	}
	for _, e := range entries {
		if !hasBinding(l, e.Binding) {
			return fmt.Errorf("%w: binding %d not in layout", ErrBindingMismatch, e.Binding)
		}
		b, ok := d.buffers[e.Buffer]
		if !ok {
			return fmt.Errorf("%w: buffer %d", gpucore.ErrUnknownResource, e.Buffer)
		}
		if e.Offset >= uint64(len(b.data)) || e.Offset+e.Size > uint64(len(b.data)) {
			return fmt.Errorf("cpu: binding %d range [%d,+%d) outside buffer of %d bytes",
				e.Binding, e.Offset, e.Size, len(b.data))
		}
	}
	g.entries = append(g.entries[:0], entries...)
	return nil
}

func hasBinding(l *bindGroupLayout, binding uint32) bool {
	for _, e := range l.entries {
		if e.Binding == binding {
			return true
		}
	}
	return false
}

// === Command Recording and Execution ===

// CreateCommandPool creates a command pool.
func (d *Device) CreateCommandPool(label string) (gpucore.CommandPoolID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := gpucore.CommandPoolID(d.newID())
	d.commandPools[id] = &commandPool{label: label}
	return id, nil
}

// DestroyCommandPool releases a pool and its command buffers.
func (d *Device) DestroyCommandPool(id gpucore.CommandPoolID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.commandPools[id]
	if !ok {
		return
	}
	for _, c := range p.buffers {
		delete(d.commandBuffers, c)
	}
	delete(d.commandPools, id)
}

// AllocateCommandBuffer allocates a command buffer.
func (d *Device) AllocateCommandBuffer(pool gpucore.CommandPoolID) (gpucore.CommandBufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.commandPools[pool]
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: command pool %d", gpucore.ErrUnknownResource, pool)
	}
	id := gpucore.CommandBufferID(d.newID())
	p.buffers = append(p.buffers, id)
	d.commandBuffers[id] = &commandBuffer{}
	return id, nil
}

// WaitIdle returns immediately: Submit runs work to completion.
func (d *Device) WaitIdle() error { return nil }

// Destroy releases every remaining resource.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.destroyed {
		return
	}
	d.destroyed = true
	if n := len(d.buffers); n > 0 {
		d.log.Warn("cpu: device destroyed with live buffers", "count", n, "bytes", d.allocated)
	}
	clear(d.buffers)
	clear(d.shaderModules)
	clear(d.computePipelines)
	clear(d.bindGroupLayouts)
	clear(d.pipelineLayouts)
	clear(d.bindGroupPools)
	clear(d.bindGroups)
	clear(d.commandPools)
	clear(d.commandBuffers)
	d.allocated = 0
}

// LiveResources returns the number of live device objects of every kind.
// A device whose owner released everything reports zero.
func (d *Device) LiveResources() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers) + len(d.shaderModules) + len(d.computePipelines) +
		len(d.bindGroupLayouts) + len(d.pipelineLayouts) + len(d.bindGroupPools) +
		len(d.bindGroups) + len(d.commandPools) + len(d.commandBuffers)
}

// Compile-time interface check.
var _ gpucore.Device = (*Device)(nil)
