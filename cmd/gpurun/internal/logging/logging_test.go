package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func newBuffered(level logrus.Level) (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	return l, &buf
}

func TestSlogLevels(t *testing.T) {
	tests := []struct {
		level logrus.Level
		slog  slog.Level
		want  bool
	}{
		{logrus.InfoLevel, slog.LevelDebug, false},
		{logrus.InfoLevel, slog.LevelInfo, true},
		{logrus.WarnLevel, slog.LevelInfo, false},
		{logrus.WarnLevel, slog.LevelError, true},
		{logrus.DebugLevel, slog.LevelDebug, true},
	}
	for _, tt := range tests {
		l, _ := newBuffered(tt.level)
		if got := Slog(l).Enabled(t.Context(), tt.slog); got != tt.want {
			t.Errorf("Enabled(%v) at %v = %v, want %v", tt.slog, tt.level, got, tt.want)
		}
	}
}

func TestSlogFields(t *testing.T) {
	l, buf := newBuffered(logrus.DebugLevel)
	log := Slog(l).With("backend", "cpu").WithGroup("kernel")

	log.Info("loaded", "arity", 2, slog.Group("wg", "x", 64))

	out := buf.String()
	for _, want := range []string{
		"level=info",
		`msg=loaded`,
		"backend=cpu",
		"kernel.arity=2",
		"kernel.wg.x=64",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestSlogFiltered(t *testing.T) {
	l, buf := newBuffered(logrus.WarnLevel)
	Slog(l).Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("output = %q, want nothing", buf.String())
	}
}

func TestInit(t *testing.T) {
	file := t.TempDir() + "/logs/gpurun.log"
	if err := Init("debug", file, nil); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if got := Get().GetLevel(); got != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", got)
	}
	Get().Info("written")

	if err := Init("nonsense", "", &bytes.Buffer{}); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if got := Get().GetLevel(); got != logrus.InfoLevel {
		t.Errorf("level = %v, want info", got)
	}
}
