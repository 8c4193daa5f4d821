package wgpu

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
	"github.com/gogpu/wgpu/hal/software"

	"github.com/gogpu/compute/backend"
	"github.com/gogpu/compute/compiler"
	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/compute/internal/spirv"
)

const squareScaled = `
struct Params { k: u32 }
@group(0) @binding(0) var<storage, read> input: array<u32>;
@group(0) @binding(1) var<storage, read_write> output: array<u32>;
@group(1) @binding(0) var<uniform> params: Params;

@compute @workgroup_size(4)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x;
    output[i] = input[i] * input[i] * params.k;
}
`

// openDevice opens a Device on the first adapter of api.
func openDevice(t *testing.T, api hal.Backend) *Device {
	t.Helper()
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	d, err := OpenInstance(instance, backend.Config{Label: "test"})
	if err != nil {
		instance.Destroy()
		t.Fatalf("OpenInstance() error = %v", err)
	}
	d.instance = instance
	t.Cleanup(d.Destroy)
	return d
}

func createNoopDevice(t *testing.T) *Device {
	t.Helper()
	return openDevice(t, noop.API{})
}

func createSoftwareDevice(t *testing.T) *Device {
	t.Helper()
	return openDevice(t, software.API{})
}

func mustBuffer(t *testing.T, d *Device, size uint64, usage gpucore.BufferUsage) gpucore.BufferID {
	t.Helper()
	id, err := d.CreateBuffer(&gpucore.BufferDesc{Label: "test", Size: size, Usage: usage})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	return id
}

func writeMapped(t *testing.T, d *Device, id gpucore.BufferID, data []byte) {
	t.Helper()
	m, err := d.MapBuffer(id)
	if err != nil {
		t.Fatalf("MapBuffer() error = %v", err)
	}
	copy(m, data)
	if err := d.UnmapBuffer(id); err != nil {
		t.Fatalf("UnmapBuffer() error = %v", err)
	}
}

func readMapped(t *testing.T, d *Device, id gpucore.BufferID) []byte {
	t.Helper()
	m, err := d.MapBuffer(id)
	if err != nil {
		t.Fatalf("MapBuffer() error = %v", err)
	}
	out := append([]byte(nil), m...)
	if err := d.UnmapBuffer(id); err != nil {
		t.Fatalf("UnmapBuffer() error = %v", err)
	}
	return out
}

func TestNoopMappedRoundTrip(t *testing.T) {
	d := createNoopDevice(t)

	buf := mustBuffer(t, d, 16, gpucore.UsageStaging)
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	writeMapped(t, d, buf, want)

	got := readMapped(t, d, buf)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("readMapped()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestMapBufferStates(t *testing.T) {
	d := createNoopDevice(t)

	storage := mustBuffer(t, d, 16, gpucore.UsageDeviceStorage)
	if _, err := d.MapBuffer(storage); !errors.Is(err, gpucore.ErrNotMappable) {
		t.Errorf("MapBuffer(storage) error = %v, want ErrNotMappable", err)
	}

	staging := mustBuffer(t, d, 16, gpucore.UsageStaging)
	if err := d.UnmapBuffer(staging); !errors.Is(err, ErrNotMapped) {
		t.Errorf("UnmapBuffer(unmapped) error = %v, want ErrNotMapped", err)
	}
	if _, err := d.MapBuffer(staging); err != nil {
		t.Fatalf("MapBuffer() error = %v", err)
	}
	if _, err := d.MapBuffer(staging); !errors.Is(err, ErrAlreadyMapped) {
		t.Errorf("MapBuffer(mapped) error = %v, want ErrAlreadyMapped", err)
	}
	if _, err := d.MapBuffer(gpucore.BufferID(999)); !errors.Is(err, gpucore.ErrUnknownResource) {
		t.Errorf("MapBuffer(unknown) error = %v, want ErrUnknownResource", err)
	}
}

func TestCreateBufferLimits(t *testing.T) {
	d := createNoopDevice(t)

	if _, err := d.CreateBuffer(&gpucore.BufferDesc{Size: 0}); err == nil {
		t.Error("CreateBuffer(size 0) error = nil, want error")
	}
	_, err := d.CreateBuffer(&gpucore.BufferDesc{Size: d.Limits().MaxBufferSize + 1, Usage: gpucore.UsageStaging})
	if !errors.Is(err, gpucore.ErrOutOfMemory) {
		t.Errorf("CreateBuffer(too large) error = %v, want ErrOutOfMemory", err)
	}
}

func TestPipelineLayoutParamsBlock(t *testing.T) {
	d := createNoopDevice(t)

	bgl, err := d.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Entries: []gpucore.BindGroupLayoutEntry{{Binding: 0, Type: gpucore.BindingTypeStorageBuffer}},
	})
	if err != nil {
		t.Fatalf("CreateBindGroupLayout() error = %v", err)
	}

	tests := []struct {
		name    string
		desc    gpucore.PipelineLayoutDesc
		wantErr bool
	}{
		{"no params", gpucore.PipelineLayoutDesc{BindGroupLayouts: []gpucore.BindGroupLayoutID{bgl}}, false},
		{"params", gpucore.PipelineLayoutDesc{BindGroupLayouts: []gpucore.BindGroupLayoutID{bgl}, ParamsSize: 128}, false},
		{"params too large", gpucore.PipelineLayoutDesc{BindGroupLayouts: []gpucore.BindGroupLayoutID{bgl}, ParamsSize: 132}, true},
		{"params without storage group", gpucore.PipelineLayoutDesc{ParamsSize: 16}, true},
		{"unknown layout", gpucore.PipelineLayoutDesc{BindGroupLayouts: []gpucore.BindGroupLayoutID{999}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := d.CreatePipelineLayout(&tt.desc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CreatePipelineLayout() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				d.DestroyPipelineLayout(id)
			}
		})
	}
}

func TestBindGroupPool(t *testing.T) {
	d := createNoopDevice(t)

	bgl, _ := d.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Entries: []gpucore.BindGroupLayoutEntry{{Binding: 0, Type: gpucore.BindingTypeStorageBuffer}},
	})
	pool, err := d.CreateBindGroupPool(&gpucore.BindGroupPoolDesc{MaxGroups: 1, MaxBuffers: 1})
	if err != nil {
		t.Fatalf("CreateBindGroupPool() error = %v", err)
	}
	group, err := d.AllocateBindGroup(pool, bgl)
	if err != nil {
		t.Fatalf("AllocateBindGroup() error = %v", err)
	}
	if _, err := d.AllocateBindGroup(pool, bgl); !errors.Is(err, gpucore.ErrPoolExhausted) {
		t.Errorf("AllocateBindGroup(full pool) error = %v, want ErrPoolExhausted", err)
	}

	buf := mustBuffer(t, d, 16, gpucore.UsageDeviceStorage)
	if err := d.UpdateBindGroup(group, nil); !errors.Is(err, ErrBindingMismatch) {
		t.Errorf("UpdateBindGroup(no entries) error = %v, want ErrBindingMismatch", err)
	}
	if err := d.UpdateBindGroup(group, []gpucore.BindGroupEntry{{Binding: 0, Buffer: buf}}); err != nil {
		t.Errorf("UpdateBindGroup() error = %v", err)
	}
	// Rebinding replaces the HAL object in place.
	if err := d.UpdateBindGroup(group, []gpucore.BindGroupEntry{{Binding: 0, Buffer: buf}}); err != nil {
		t.Errorf("UpdateBindGroup(again) error = %v", err)
	}
}

func TestEncoderMisuse(t *testing.T) {
	d := createNoopDevice(t)

	pool, _ := d.CreateCommandPool("test")
	cmd, err := d.AllocateCommandBuffer(pool)
	if err != nil {
		t.Fatalf("AllocateCommandBuffer() error = %v", err)
	}
	if err := d.Submit(cmd); !errors.Is(err, gpucore.ErrEncoderState) {
		t.Errorf("Submit(unfinished) error = %v, want ErrEncoderState", err)
	}

	enc, err := d.BeginCommands(cmd)
	if err != nil {
		t.Fatalf("BeginCommands() error = %v", err)
	}
	if _, err := d.BeginCommands(cmd); !errors.Is(err, gpucore.ErrEncoderState) {
		t.Errorf("BeginCommands(recording) error = %v, want ErrEncoderState", err)
	}
	pass := enc.BeginComputePass("bad")
	pass.Dispatch(1, 1, 1)
	pass.End()
	if err := enc.Finish(); !errors.Is(err, gpucore.ErrEncoderState) {
		t.Errorf("Finish() error = %v, want ErrEncoderState", err)
	}

	// The buffer is reusable after a failed recording.
	enc, err = d.BeginCommands(cmd)
	if err != nil {
		t.Fatalf("BeginCommands(after failure) error = %v", err)
	}
	if err := enc.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if err := d.Submit(cmd); err != nil {
		t.Errorf("Submit() error = %v", err)
	}
	if _, err := d.AllocateCommandBuffer(gpucore.CommandPoolID(999)); !errors.Is(err, gpucore.ErrUnknownResource) {
		t.Errorf("AllocateCommandBuffer(unknown pool) error = %v, want ErrUnknownResource", err)
	}
}

func TestSetParamsTooLarge(t *testing.T) {
	d := createNoopDevice(t)

	pool, _ := d.CreateCommandPool("test")
	cmd, _ := d.AllocateCommandBuffer(pool)
	enc, err := d.BeginCommands(cmd)
	if err != nil {
		t.Fatalf("BeginCommands() error = %v", err)
	}
	pass := enc.BeginComputePass("params")
	pass.SetParams(make([]byte, gpucore.MaxParamsSize+1))
	pass.End()
	if err := enc.Finish(); err == nil {
		t.Error("Finish() error = nil, want params size error")
	}
}

func TestSoftwareCopyRoundTrip(t *testing.T) {
	d := createSoftwareDevice(t)

	const size = 32
	src := mustBuffer(t, d, size, gpucore.UsageStaging)
	mid := mustBuffer(t, d, size, gpucore.UsageDeviceStorage)
	dst := mustBuffer(t, d, size, gpucore.UsageStaging)

	want := make([]byte, size)
	for i := range want {
		want[i] = byte(i * 7)
	}
	writeMapped(t, d, src, want)

	pool, _ := d.CreateCommandPool("copy")
	cmd, _ := d.AllocateCommandBuffer(pool)
	enc, err := d.BeginCommands(cmd)
	if err != nil {
		t.Fatalf("BeginCommands() error = %v", err)
	}
	enc.CopyBuffer(src, mid, size)
	enc.CopyBuffer(mid, dst, size)
	if err := enc.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if err := d.Submit(cmd); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := d.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}

	got := readMapped(t, d, dst)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dst[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestSoftwareDispatchWithParams(t *testing.T) {
	d := createSoftwareDevice(t)

	const n = 8
	in := make([]byte, n*4)
	for i := range n {
		binary.LittleEndian.PutUint32(in[i*4:], uint32(i))
	}
	input := mustBuffer(t, d, n*4, gpucore.UsageDeviceStorage|gpucore.UsageStaging)
	output := mustBuffer(t, d, n*4, gpucore.UsageDeviceStorage|gpucore.UsageStaging)
	writeMapped(t, d, input, in)

	bgl, err := d.CreateBindGroupLayout(&gpucore.BindGroupLayoutDesc{
		Entries: []gpucore.BindGroupLayoutEntry{
			{Binding: 0, Type: gpucore.BindingTypeStorageBuffer},
			{Binding: 1, Type: gpucore.BindingTypeStorageBuffer},
		},
	})
	if err != nil {
		t.Fatalf("CreateBindGroupLayout() error = %v", err)
	}
	pl, err := d.CreatePipelineLayout(&gpucore.PipelineLayoutDesc{
		BindGroupLayouts: []gpucore.BindGroupLayoutID{bgl},
		ParamsSize:       gpucore.MaxParamsSize,
	})
	if err != nil {
		t.Fatalf("CreatePipelineLayout() error = %v", err)
	}
	pool, _ := d.CreateBindGroupPool(&gpucore.BindGroupPoolDesc{MaxGroups: 1, MaxBuffers: 2})
	group, _ := d.AllocateBindGroup(pool, bgl)
	if err := d.UpdateBindGroup(group, []gpucore.BindGroupEntry{
		{Binding: 0, Buffer: input},
		{Binding: 1, Buffer: output},
	}); err != nil {
		t.Fatalf("UpdateBindGroup() error = %v", err)
	}

	code, err := compiler.New().Compile(squareScaled, "main")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	words, err := spirv.Words(code)
	if err != nil {
		t.Fatalf("Words() error = %v", err)
	}
	mod, err := d.CreateShaderModule(words, "square")
	if err != nil {
		t.Fatalf("CreateShaderModule() error = %v", err)
	}
	pipe, err := d.CreateComputePipeline(&gpucore.ComputePipelineDesc{
		Label: "square", Layout: pl, ShaderModule: mod, EntryPoint: "main",
	})
	if err != nil {
		t.Fatalf("CreateComputePipeline() error = %v", err)
	}

	cpool, _ := d.CreateCommandPool("dispatch")
	cmd, _ := d.AllocateCommandBuffer(cpool)
	enc, err := d.BeginCommands(cmd)
	if err != nil {
		t.Fatalf("BeginCommands() error = %v", err)
	}
	pass := enc.BeginComputePass("square")
	pass.SetParams([]byte{5, 0, 0, 0})
	pass.SetBindGroup(gpucore.StorageGroup, group)
	pass.SetPipeline(pipe)
	pass.Dispatch(n/4, 1, 1)
	pass.End()
	if err := enc.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if err := d.Submit(cmd); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := d.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle() error = %v", err)
	}

	got := readMapped(t, d, output)
	for i := range n {
		want := uint32(i * i * 5)
		if v := binary.LittleEndian.Uint32(got[i*4:]); v != want {
			t.Errorf("output[%d] = %d, want %d", i, v, want)
		}
	}
}

func TestDeviceInfo(t *testing.T) {
	d := createSoftwareDevice(t)

	info := d.Info()
	if info.Type != gpucontext.AdapterTypeSoftware {
		t.Errorf("Info().Type = %v, want AdapterTypeSoftware", info.Type)
	}
	if info.Name == "" {
		t.Error("Info().Name is empty")
	}
	if got := d.Limits().MaxParamsSize; got != gpucore.MaxParamsSize {
		t.Errorf("Limits().MaxParamsSize = %d, want %d", got, gpucore.MaxParamsSize)
	}
}

func TestSelectAdapter(t *testing.T) {
	adapter := func(name string, dt gputypes.DeviceType) hal.ExposedAdapter {
		return hal.ExposedAdapter{Info: gputypes.AdapterInfo{Name: name, DeviceType: dt}}
	}
	tests := []struct {
		name     string
		adapters []hal.ExposedAdapter
		want     string
	}{
		{"none", nil, ""},
		{"single cpu", []hal.ExposedAdapter{adapter("cpu", gputypes.DeviceTypeCPU)}, "cpu"},
		{"discrete wins", []hal.ExposedAdapter{
			adapter("cpu", gputypes.DeviceTypeCPU),
			adapter("igpu", gputypes.DeviceTypeIntegratedGPU),
			adapter("dgpu", gputypes.DeviceTypeDiscreteGPU),
		}, "dgpu"},
		{"first of equal rank", []hal.ExposedAdapter{
			adapter("a", gputypes.DeviceTypeIntegratedGPU),
			adapter("b", gputypes.DeviceTypeIntegratedGPU),
		}, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectAdapter(tt.adapters)
			name := ""
			if got != nil {
				name = got.Info.Name
			}
			if name != tt.want {
				t.Errorf("selectAdapter() = %q, want %q", name, tt.want)
			}
		})
	}
}

type halProvider struct {
	device hal.Device
	queue  hal.Queue
}

func (p halProvider) HalDevice() any { return p.device }
func (p halProvider) HalQueue() any  { return p.queue }
func (p halProvider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "shared", Type: gpucontext.AdapterTypeIntegrated}
}

func TestFromProvider(t *testing.T) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	defer instance.Destroy()
	openDev, err := instance.EnumerateAdapters(nil)[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer openDev.Device.Destroy()

	if _, err := FromProvider(struct{}{}); err == nil {
		t.Error("FromProvider(struct{}) error = nil, want error")
	}

	d, err := FromProvider(halProvider{device: openDev.Device, queue: openDev.Queue})
	if err != nil {
		t.Fatalf("FromProvider() error = %v", err)
	}
	if got := d.Info(); got.Name != "shared" || got.Type != gpucontext.AdapterTypeIntegrated {
		t.Errorf("Info() = %+v, want shared/integrated", got)
	}
	if d.HalDevice() != openDev.Device {
		t.Error("HalDevice() does not return the provider's device")
	}
	mustBuffer(t, d, 16, gpucore.UsageStaging)
	d.Destroy()
	d.Destroy()
}

func TestProvidersRegistered(t *testing.T) {
	for _, name := range []string{backend.BackendWGPU, NameVulkan, NameMetal, NameDX12, NameGL, NameSoftware} {
		if !backend.IsRegistered(name) {
			t.Errorf("IsRegistered(%q) = false, want true", name)
		}
	}
}

func TestProviderNoBackend(t *testing.T) {
	p := Provider{Variants: []gputypes.Backend{gputypes.BackendBrowserWebGPU}}
	if _, err := p.Open(backend.Config{}); !errors.Is(err, backend.ErrNoAdapter) {
		t.Errorf("Open() error = %v, want ErrNoAdapter", err)
	}
	if got := p.Adapters(); len(got) != 0 {
		t.Errorf("Adapters() = %v, want empty", got)
	}
}
