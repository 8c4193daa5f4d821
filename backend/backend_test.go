package backend

import (
	"errors"
	"slices"
	"testing"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/compute/gpucore"
)

// stubDevice satisfies gpucore.Device; only identity matters here.
type stubDevice struct {
	gpucore.Device
	name string
}

var errOpen = errors.New("stub: open failed")

func stubProvider(name string, fail bool) ProviderFunc {
	return ProviderFunc{
		Adapter: gpucontext.AdapterInfo{Name: name + " adapter", Type: gpucontext.AdapterTypeSoftware},
		OpenFn: func(Config) (gpucore.Device, error) {
			if fail {
				return nil, errOpen
			}
			return &stubDevice{name: name}, nil
		},
	}
}

// withRegistry swaps in a clean registry for the duration of a test.
func withRegistry(t *testing.T, ps map[string]Provider) {
	t.Helper()
	registryMu.Lock()
	saved := providers
	providers = make(map[string]Provider)
	for k, v := range ps {
		providers[k] = v
	}
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		providers = saved
		registryMu.Unlock()
	})
}

func TestRegistryRegisterAndGet(t *testing.T) {
	withRegistry(t, nil)

	Register("test", stubProvider("test", false))
	if p := Get("test"); p == nil {
		t.Fatal("Get(test) = nil, want provider")
	}
	if !IsRegistered("test") {
		t.Error("IsRegistered(test) = false, want true")
	}
}

func TestRegistryGetUnregistered(t *testing.T) {
	withRegistry(t, nil)

	if p := Get("missing"); p != nil {
		t.Errorf("Get(missing) = %v, want nil", p)
	}
	if _, err := Open("missing", Config{}); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("Open(missing) error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestRegistryAvailable(t *testing.T) {
	withRegistry(t, map[string]Provider{
		"b": stubProvider("b", false),
		"a": stubProvider("a", false),
	})

	got := Available()
	if want := []string{"a", "b"}; !slices.Equal(got, want) {
		t.Errorf("Available() = %v, want %v", got, want)
	}
}

func TestRegistryUnregister(t *testing.T) {
	withRegistry(t, map[string]Provider{"test": stubProvider("test", false)})

	Unregister("test")
	if IsRegistered("test") {
		t.Error("IsRegistered(test) after Unregister = true, want false")
	}
}

func TestOpenDefaultPriority(t *testing.T) {
	tests := []struct {
		name      string
		providers map[string]Provider
		want      string
	}{
		{
			name: "wgpu preferred",
			providers: map[string]Provider{
				BackendCPU:  stubProvider(BackendCPU, false),
				BackendWGPU: stubProvider(BackendWGPU, false),
				"aaa":       stubProvider("aaa", false),
			},
			want: BackendWGPU,
		},
		{
			name: "falls back to cpu",
			providers: map[string]Provider{
				BackendCPU:  stubProvider(BackendCPU, false),
				BackendWGPU: stubProvider(BackendWGPU, true),
			},
			want: BackendCPU,
		},
		{
			name: "unprioritized last",
			providers: map[string]Provider{
				BackendCPU: stubProvider(BackendCPU, true),
				"zzz":      stubProvider("zzz", false),
			},
			want: "zzz",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withRegistry(t, tt.providers)

			dev, name, err := OpenDefault(Config{})
			if err != nil {
				t.Fatalf("OpenDefault() error = %v", err)
			}
			if name != tt.want {
				t.Errorf("OpenDefault() name = %q, want %q", name, tt.want)
			}
			if got := dev.(*stubDevice).name; got != tt.want {
				t.Errorf("OpenDefault() device = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpenDefaultAllFail(t *testing.T) {
	withRegistry(t, map[string]Provider{
		BackendCPU:  stubProvider(BackendCPU, true),
		BackendWGPU: stubProvider(BackendWGPU, true),
	})

	_, _, err := OpenDefault(Config{})
	if !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("OpenDefault() error = %v, want ErrBackendNotAvailable", err)
	}
	if !errors.Is(err, errOpen) {
		t.Errorf("OpenDefault() error = %v, want it to wrap the provider error", err)
	}
}

func TestOpenDefaultEmpty(t *testing.T) {
	withRegistry(t, nil)

	if _, _, err := OpenDefault(Config{}); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("OpenDefault() error = %v, want ErrBackendNotAvailable", err)
	}
}

func TestDevices(t *testing.T) {
	withRegistry(t, map[string]Provider{
		BackendCPU:  stubProvider(BackendCPU, false),
		BackendWGPU: stubProvider(BackendWGPU, false),
	})

	got := Devices()
	if len(got) != 2 {
		t.Fatalf("Devices() len = %d, want 2", len(got))
	}
	if got[0].Backend != BackendWGPU || got[1].Backend != BackendCPU {
		t.Errorf("Devices() order = [%s %s], want [wgpu cpu]", got[0].Backend, got[1].Backend)
	}
	if got[1].Adapter.Name != "cpu adapter" {
		t.Errorf("Devices()[1].Adapter.Name = %q, want %q", got[1].Adapter.Name, "cpu adapter")
	}
}

func TestConfigLogNeverNil(t *testing.T) {
	if (Config{}).Log() == nil {
		t.Fatal("Config{}.Log() = nil")
	}
	// Must not panic.
	(Config{}).Log().Info("discarded")
}
