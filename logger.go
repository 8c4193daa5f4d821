package compute

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler drops every record. Because Enabled reports false, slog never
// builds the attributes of a disabled call.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger routes engine diagnostics to l. The package is silent until
// this is called, and SetLogger(nil) makes it silent again.
//
// An Engine captures the logger in New, so a later SetLogger only affects
// engines opened afterwards. Messages are prefixed "compute:". Debug covers
// each buffer, kernel and dispatch. Info marks an engine opening or closing,
// and Warn reports a skipped backend or a failed teardown step.
//
// A gpurun-style setup that prints dispatches to stderr:
//
//	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
//	compute.SetLogger(slog.New(h))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the logger set by SetLogger, or a silent one.
// It may be called from any goroutine.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
