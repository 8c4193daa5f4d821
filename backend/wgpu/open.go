package wgpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compute/backend"
	"github.com/gogpu/compute/gpucore"
)

// Registry names of the providers that force one HAL backend.
const (
	NameVulkan   = "wgpu-vulkan"
	NameMetal    = "wgpu-metal"
	NameDX12     = "wgpu-dx12"
	NameGL       = "wgpu-gl"
	NameSoftware = "wgpu-software"
)

// init registers the HAL providers on package import. The HAL backends
// themselves register when their packages are imported, usually through
// github.com/gogpu/wgpu/hal/allbackends.
func init() {
	backend.Register(backend.BackendWGPU, Provider{})
	backend.Register(NameVulkan, Provider{Variants: []gputypes.Backend{gputypes.BackendVulkan}})
	backend.Register(NameMetal, Provider{Variants: []gputypes.Backend{gputypes.BackendMetal}})
	backend.Register(NameDX12, Provider{Variants: []gputypes.Backend{gputypes.BackendDX12}})
	backend.Register(NameGL, Provider{Variants: []gputypes.Backend{gputypes.BackendGL}})
	backend.Register(NameSoftware, Provider{Variants: []gputypes.Backend{gputypes.BackendEmpty}})
}

// defaultVariants is the bring-up order: hardware APIs first, then the
// software rasterizer registered as BackendEmpty.
var defaultVariants = []gputypes.Backend{
	gputypes.BackendVulkan,
	gputypes.BackendMetal,
	gputypes.BackendDX12,
	gputypes.BackendGL,
	gputypes.BackendEmpty,
}

// Provider opens devices through the registered HAL backends.
type Provider struct {
	// Variants restricts bring-up to these HAL backends, tried in order.
	// Empty means every registered backend, hardware first.
	Variants []gputypes.Backend
}

func (p Provider) variants() []gputypes.Backend {
	if len(p.Variants) > 0 {
		return p.Variants
	}
	return defaultVariants
}

// Open creates an instance on the first HAL backend that exposes an
// adapter and opens the best adapter it has.
func (p Provider) Open(cfg backend.Config) (gpucore.Device, error) {
	log := cfg.Log()
	var errs []error
	for _, v := range p.variants() {
		b, ok := hal.GetBackend(v)
		if !ok {
			continue
		}
		d, err := openBackend(b, cfg)
		if err != nil {
			log.Debug("wgpu: backend unavailable", "backend", v, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", v, err))
			continue
		}
		return d, nil
	}
	if len(errs) == 0 {
		return nil, fmt.Errorf("%w: no HAL backend registered", backend.ErrNoAdapter)
	}
	return nil, fmt.Errorf("%w: %w", backend.ErrNoAdapter, errors.Join(errs...))
}

// Adapters lists the adapters of every registered HAL backend Open would try.
func (p Provider) Adapters() []gpucontext.AdapterInfo {
	var out []gpucontext.AdapterInfo
	for _, v := range p.variants() {
		b, ok := hal.GetBackend(v)
		if !ok {
			continue
		}
		instance, err := b.CreateInstance(&hal.InstanceDescriptor{Backends: gputypes.BackendsAll})
		if err != nil {
			continue
		}
		for _, a := range instance.EnumerateAdapters(nil) {
			out = append(out, gpucontext.AdapterInfo{Name: a.Info.Name, Type: convertDeviceType(a.Info.DeviceType)})
		}
		instance.Destroy()
	}
	return out
}

// openBackend brings up a device on one HAL backend. The instance is owned
// by the returned device.
func openBackend(b hal.Backend, cfg backend.Config) (*Device, error) {
	desc := &hal.InstanceDescriptor{Backends: gputypes.BackendsAll}
	if cfg.Validation {
		desc.Flags = gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}
	instance, err := b.CreateInstance(desc)
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	d, err := OpenInstance(instance, cfg)
	if err != nil {
		instance.Destroy()
		return nil, err
	}
	d.instance = instance
	return d, nil
}

// OpenInstance opens the best adapter of instance. The caller keeps
// ownership of instance.
func OpenInstance(instance hal.Instance, cfg backend.Config) (*Device, error) {
	adapters := instance.EnumerateAdapters(nil)
	selected := selectAdapter(adapters)
	if selected == nil {
		return nil, backend.ErrNoAdapter
	}

	limits := gputypes.DefaultLimits()
	openDev, err := selected.Adapter.Open(gputypes.Features(0), limits)
	if err != nil {
		return nil, fmt.Errorf("%w: open device: %w", classify(err), err)
	}

	d := NewDevice(openDev.Device, openDev.Queue, selected.Info, &limits)
	d.label = cfg.Label
	d.SetLogger(cfg.Logger)
	d.log.Info("wgpu: device opened", "adapter", selected.Info.Name, "type", selected.Info.DeviceType)
	return d, nil
}

// adapterRank orders device types, lower is preferred.
func adapterRank(t gputypes.DeviceType) int {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU:
		return 0
	case gputypes.DeviceTypeIntegratedGPU:
		return 1
	case gputypes.DeviceTypeVirtualGPU:
		return 2
	case gputypes.DeviceTypeCPU:
		return 3
	default:
		return 4
	}
}

// selectAdapter prefers discrete GPUs, then integrated, virtual and CPU
// adapters. Ties keep enumeration order.
func selectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if selected == nil || adapterRank(adapters[i].Info.DeviceType) < adapterRank(selected.Info.DeviceType) {
			selected = &adapters[i]
		}
	}
	return selected
}

// FromProvider wraps a device owned by another component, such as a
// gogpu application. The provider must implement HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue. Destroy releases
// the resources created through the returned Device but leaves the
// HAL device alive.
func FromProvider(provider any) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}

	var info gputypes.AdapterInfo
	if ip, ok := provider.(interface{ AdapterInfo() gpucontext.AdapterInfo }); ok {
		ai := ip.AdapterInfo()
		info.Name = ai.Name
		info.DeviceType = deviceTypeOf(ai.Type)
	}

	d := NewDevice(device, queue, info, nil)
	d.external = true
	return d, nil
}

func deviceTypeOf(t gpucontext.AdapterType) gputypes.DeviceType {
	switch t {
	case gpucontext.AdapterTypeDiscrete:
		return gputypes.DeviceTypeDiscreteGPU
	case gpucontext.AdapterTypeIntegrated:
		return gputypes.DeviceTypeIntegratedGPU
	case gpucontext.AdapterTypeSoftware:
		return gputypes.DeviceTypeCPU
	default:
		return gputypes.DeviceTypeOther
	}
}
