package backend

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/compute/gpucore"
)

// Backend name constants.
const (
	// BackendWGPU is the name of the GPU backend over the gogpu/wgpu HAL.
	BackendWGPU = "wgpu"
	// BackendCPU is the name of the host backend that interprets SPIR-V.
	BackendCPU = "cpu"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNoAdapter is returned when a backend finds no usable adapter.
	ErrNoAdapter = errors.New("backend: no compatible adapter")
)

// Config carries the settings shared by every backend.
type Config struct {
	// Validation enables the native API's validation layers, where the
	// backend has them.
	Validation bool

	// Label prefixes debug labels of device objects.
	Label string

	// Logger receives backend diagnostics. Nil means silent.
	Logger *slog.Logger
}

// Log returns cfg.Logger, or a logger that discards everything.
func (cfg Config) Log() *slog.Logger {
	if cfg.Logger == nil {
		return slog.New(nopHandler{})
	}
	return cfg.Logger
}

// Provider opens devices of one kind.
//
// Providers must be registered via Register() and are selected via
// Open() or OpenDefault().
type Provider interface {
	// Open acquires a device. The caller owns it and must Destroy it.
	Open(cfg Config) (gpucore.Device, error)

	// Adapters lists the adapters Open could choose from. It may be
	// empty when the backend cannot be initialized on this machine.
	Adapters() []gpucontext.AdapterInfo
}

// ProviderFunc adapts a plain function to a Provider with a single
// fixed adapter.
type ProviderFunc struct {
	Adapter gpucontext.AdapterInfo
	OpenFn  func(cfg Config) (gpucore.Device, error)
}

// Open calls p.OpenFn.
func (p ProviderFunc) Open(cfg Config) (gpucore.Device, error) { return p.OpenFn(cfg) }

// Adapters returns p.Adapter.
func (p ProviderFunc) Adapters() []gpucontext.AdapterInfo {
	return []gpucontext.AdapterInfo{p.Adapter}
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
