package compute

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/compute/backend"
	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/handle"

	// Register the bundled backends.
	_ "github.com/gogpu/compute/backend/cpu"
	_ "github.com/gogpu/compute/backend/wgpu"
)

// binding holds the objects shared by every kernel of one arity: the
// storage group layout, the pipeline layout built on it and the single
// bind group rebound on each dispatch.
type binding struct {
	group    gpucore.BindGroupLayoutID
	pipeline gpucore.PipelineLayoutID
	set      gpucore.BindGroupID
}

// storageBuffer is a device buffer paired with a host-visible staging
// buffer of the same size.
type storageBuffer struct {
	device  gpucore.BufferID
	staging gpucore.BufferID
	size    int
}

// boundKernel is a compute pipeline built on the binding of its arity.
type boundKernel struct {
	module   gpucore.ShaderModuleID
	pipeline gpucore.ComputePipelineID
	info     KernelInfo
}

// Engine runs compute kernels on one device.
//
// Every operation blocks until the device work it issued has completed.
// Engine serializes its operations, but the handles it returns are only
// valid against the Engine that created them.
type Engine struct {
	mu     sync.Mutex
	log    *slog.Logger
	dev    gpucore.Device
	name   string
	owned  bool
	label  string
	limits gpucore.Limits
	comp   Compiler
	closed bool

	cmdPool  gpucore.CommandPoolID
	cmd      gpucore.CommandBufferID
	bindPool gpucore.BindGroupPoolID
	bindings [gpucore.MaxStorageSlots]binding

	buffers *handle.Table[storageBuffer]
	kernels *handle.Table[boundKernel]

	stats Stats
}

// New acquires a device and creates the objects shared by all transfers
// and dispatches. The validation flag enables the native API's validation
// layers on backends that have them.
//
// Errors wrap ErrInit.
func New(validation bool, opts ...Option) (*Engine, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		log:     Logger(),
		label:   o.label,
		comp:    o.compiler,
		buffers: handle.New[storageBuffer](o.capacity),
		kernels: handle.New[boundKernel](o.capacity),
	}

	if err := e.acquire(o, validation); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}
	e.limits = e.dev.Limits()

	if err := e.createShared(); err != nil {
		e.destroyShared()
		e.releaseDevice()
		return nil, fmt.Errorf("%w: %w", ErrInit, err)
	}

	e.log.Info("compute: engine ready",
		"backend", e.name,
		"adapter", e.dev.Info().Name,
		"validation", validation)
	return e, nil
}

// acquire opens or adopts the device.
func (e *Engine) acquire(o engineOptions, validation bool) error {
	if o.device != nil {
		e.dev = o.device
		e.name = "external"
		return nil
	}

	cfg := backend.Config{Validation: validation, Label: o.label, Logger: e.log}
	if o.backend != "" {
		dev, err := backend.Open(o.backend, cfg)
		if err != nil {
			return err
		}
		e.dev, e.name, e.owned = dev, o.backend, true
		return nil
	}

	dev, name, err := backend.OpenDefault(cfg)
	if err != nil {
		return err
	}
	e.dev, e.name, e.owned = dev, name, true
	return nil
}

// createShared creates, in order, the command pool and its command buffer,
// the storage group layouts, the bind group pool and its bind groups, and
// the pipeline layouts with their parameter blocks.
func (e *Engine) createShared() error {
	var err error
	if e.cmdPool, err = e.dev.CreateCommandPool(e.label + "_commands"); err != nil {
		return fmt.Errorf("create command pool: %w", err)
	}
	if e.cmd, err = e.dev.AllocateCommandBuffer(e.cmdPool); err != nil {
		return fmt.Errorf("allocate command buffer: %w", err)
	}

	for i := range e.bindings {
		arity := i + 1
		entries := make([]gpucore.BindGroupLayoutEntry, arity)
		for slot := range entries {
			entries[slot] = gpucore.BindGroupLayoutEntry{
				Binding: uint32(slot), //nolint:gosec // slot < MaxStorageSlots
				Type:    gpucore.BindingTypeStorageBuffer,
			}
		}
		e.bindings[i].group, err = e.dev.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
			Label:   fmt.Sprintf("%s_storage_%d", e.label, arity),
			Entries: entries,
		})
		if err != nil {
			return fmt.Errorf("create bind group layout (arity %d): %w", arity, err)
		}
	}

	e.bindPool, err = e.dev.CreateBindGroupPool(&gpucore.BindGroupPoolDesc{
		Label:      e.label + "_bindings",
		MaxGroups:  gpucore.MaxStorageSlots,
		MaxBuffers: gpucore.MaxStorageSlots * (gpucore.MaxStorageSlots + 1) / 2,
	})
	if err != nil {
		return fmt.Errorf("create bind group pool: %w", err)
	}
	for i := range e.bindings {
		if e.bindings[i].set, err = e.dev.AllocateBindGroup(e.bindPool, e.bindings[i].group); err != nil {
			return fmt.Errorf("allocate bind group (arity %d): %w", i+1, err)
		}
	}

	for i := range e.bindings {
		e.bindings[i].pipeline, err = e.dev.CreatePipelineLayout(&gpucore.PipelineLayoutDesc{
			Label:            fmt.Sprintf("%s_layout_%d", e.label, i+1),
			BindGroupLayouts: []gpucore.BindGroupLayoutID{e.bindings[i].group},
			ParamsSize:       gpucore.MaxParamsSize,
		})
		if err != nil {
			return fmt.Errorf("create pipeline layout (arity %d): %w", i+1, err)
		}
	}
	return nil
}

// destroyShared releases the shared objects in reverse dependency order:
// bind group pool, command pool, pipeline layouts, bind group layouts.
// Objects that were never created are skipped.
func (e *Engine) destroyShared() {
	if e.bindPool != gpucore.InvalidID {
		e.dev.DestroyBindGroupPool(e.bindPool)
		e.bindPool = gpucore.InvalidID
	}
	if e.cmdPool != gpucore.InvalidID {
		e.dev.DestroyCommandPool(e.cmdPool)
		e.cmdPool, e.cmd = gpucore.InvalidID, gpucore.InvalidID
	}
	for i := range e.bindings {
		if b := &e.bindings[i]; b.pipeline != gpucore.InvalidID {
			e.dev.DestroyPipelineLayout(b.pipeline)
		}
	}
	for i := range e.bindings {
		if b := &e.bindings[i]; b.group != gpucore.InvalidID {
			e.dev.DestroyBindGroupLayout(b.group)
		}
	}
	e.bindings = [gpucore.MaxStorageSlots]binding{}
}

func (e *Engine) releaseDevice() {
	if e.owned {
		e.dev.Destroy()
	}
}

// Close waits for the device to go idle, then releases every kernel,
// every buffer pair and the shared objects, in that order. The device is
// destroyed unless it was supplied with WithDevice.
//
// Close is idempotent and never fails: problems are logged and the
// remaining resources are still released. Handles issued by the Engine
// are invalid afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true

	if err := e.dev.WaitIdle(); err != nil {
		e.log.Warn("compute: wait idle before teardown", "err", err)
	}

	nk := e.kernels.Len()
	for _, h := range e.kernels.Handles() {
		if k, err := e.kernels.Remove(h); err == nil {
			e.destroyKernel(k)
		}
	}
	nb := e.buffers.Len()
	for _, h := range e.buffers.Handles() {
		if b, err := e.buffers.Remove(h); err == nil {
			e.destroyBuffer(b)
		}
	}
	e.kernels.Reset()
	e.buffers.Reset()

	e.destroyShared()
	e.releaseDevice()
	e.log.Info("compute: engine closed", "backend", e.name, "kernels", nk, "buffers", nb)
}

// DeviceInfo describes the device an Engine runs on.
type DeviceInfo struct {
	// Backend is the registry name of the backend, or "external".
	Backend string

	// Adapter is the adapter name reported by the device.
	Adapter string

	// Type is the adapter class, such as "discrete" or "software".
	Type string

	// Limits are the device limits the Engine checks against.
	Limits gpucore.Limits
}

// Info describes the Engine's device.
func (e *Engine) Info() DeviceInfo {
	info := e.dev.Info()
	return DeviceInfo{
		Backend: e.name,
		Adapter: info.Name,
		Type:    info.Type.String(),
		Limits:  e.limits,
	}
}

// Stats counts live resources and completed device work.
type Stats struct {
	Buffers     int
	Kernels     int
	BufferBytes int64
	Transfers   uint64
	Dispatches  uint64
}

// Stats returns a snapshot of the Engine's counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.Buffers = e.buffers.Len()
	s.Kernels = e.kernels.Len()
	return s
}

// lock acquires the Engine for one operation.
func (e *Engine) lock() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	return nil
}

// notFound converts a table miss into ErrNotFound.
func notFound(kind string, err error) error {
	if errors.Is(err, handle.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, kind)
	}
	return err
}

// submit runs the recorded command buffer and waits for the device to go idle.
func (e *Engine) submit() error {
	if err := e.dev.Submit(e.cmd); err != nil {
		return fmt.Errorf("%w: submit: %w", ErrDevice, err)
	}
	if err := e.dev.WaitIdle(); err != nil {
		return fmt.Errorf("%w: wait idle: %w", ErrDevice, err)
	}
	return nil
}
