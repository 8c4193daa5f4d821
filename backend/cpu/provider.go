package cpu

import (
	"context"
	"log/slog"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/compute/backend"
	"github.com/gogpu/compute/gpucore"
)

// init registers the host backend on package import.
func init() {
	backend.Register(backend.BackendCPU, Provider{})
}

// Provider opens host devices.
type Provider struct {
	// Options are applied to every device after the registry config.
	Options []Option
}

// Open creates a host device. The validation flag has no effect: the
// interpreter always checks its inputs.
func (p Provider) Open(cfg backend.Config) (gpucore.Device, error) {
	opts := append([]Option{WithLogger(cfg.Logger), WithLabel(cfg.Label)}, p.Options...)
	d := New(opts...)
	d.log.Info("cpu: device opened", "adapter", AdapterName, "label", cfg.Label)
	return d, nil
}

// Adapters returns the single host adapter.
func (Provider) Adapters() []gpucontext.AdapterInfo {
	return []gpucontext.AdapterInfo{{Name: AdapterName, Type: gpucontext.AdapterTypeSoftware}}
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }
