// Package logging configures the gpurun logger and bridges the compute
// library's slog output into it.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

// Init initializes the logger. An unknown level falls back to info.
// Output goes to console when it is not nil and to logFile when it is not
// empty.
func Init(level, logFile string, console io.Writer) error {
	log = logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	var writers []io.Writer
	if console != nil {
		writers = append(writers, console)
	}
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return err
		}
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		writers = append(writers, file)
	}
	switch len(writers) {
	case 0:
		log.SetOutput(io.Discard)
	default:
		log.SetOutput(io.MultiWriter(writers...))
	}
	return nil
}

// Get returns the logger instance.
func Get() *logrus.Logger {
	if log == nil {
		log = logrus.New()
	}
	return log
}

// Slog returns a slog.Logger that writes through l.
func Slog(l *logrus.Logger) *slog.Logger {
	return slog.New(&handler{log: l})
}

// handler is a slog.Handler backed by a logrus logger.
type handler struct {
	log    *logrus.Logger
	fields logrus.Fields
	groups []string
}

func toLogrus(l slog.Level) logrus.Level {
	switch {
	case l >= slog.LevelError:
		return logrus.ErrorLevel
	case l >= slog.LevelWarn:
		return logrus.WarnLevel
	case l >= slog.LevelInfo:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

func (h *handler) Enabled(_ context.Context, l slog.Level) bool {
	return h.log.IsLevelEnabled(toLogrus(l))
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	fields := make(logrus.Fields, len(h.fields)+r.NumAttrs())
	for k, v := range h.fields {
		fields[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		h.add(fields, h.groups, a)
		return true
	})
	entry := h.log.WithFields(fields)
	if !r.Time.IsZero() {
		entry = entry.WithTime(r.Time)
	}
	entry.Log(toLogrus(r.Level), r.Message)
	return nil
}

func (h *handler) add(fields logrus.Fields, groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		sub := groups
		if a.Key != "" {
			sub = append(slices.Clip(groups), a.Key)
		}
		for _, ga := range a.Value.Group() {
			h.add(fields, sub, ga)
		}
		return
	}
	key := a.Key
	for i := len(groups) - 1; i >= 0; i-- {
		key = groups[i] + "." + key
	}
	fields[key] = a.Value.Any()
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make(logrus.Fields, len(h.fields)+len(attrs))
	for k, v := range h.fields {
		fields[k] = v
	}
	for _, a := range attrs {
		h.add(fields, h.groups, a)
	}
	return &handler{log: h.log, fields: fields, groups: h.groups}
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &handler{log: h.log, fields: h.fields, groups: append(slices.Clip(h.groups), name)}
}
