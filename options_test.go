package compute

import (
	"testing"

	"github.com/gogpu/compute/backend/cpu"
)

func TestDefaultOptions(t *testing.T) {
	o := defaultOptions()
	if o.label != "compute" {
		t.Errorf("label = %q, want %q", o.label, "compute")
	}
	if o.capacity != DefaultCapacity {
		t.Errorf("capacity = %d, want %d", o.capacity, DefaultCapacity)
	}
	if o.backend != "" || o.device != nil || o.compiler != nil {
		t.Errorf("defaultOptions() = %+v, want no backend, device or compiler", o)
	}
}

func TestWithCapacity(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{1, 1},
		{64, 64},
		{0, DefaultCapacity},
		{-3, DefaultCapacity},
	}
	for _, tt := range tests {
		o := defaultOptions()
		WithCapacity(tt.n)(&o)
		if o.capacity != tt.want {
			t.Errorf("WithCapacity(%d): capacity = %d, want %d", tt.n, o.capacity, tt.want)
		}
	}
}

func TestWithCapacityGrows(t *testing.T) {
	e := newTestEngine(t, WithCapacity(1))

	bufs := make([]Buffer, 5)
	for i := range bufs {
		b, err := e.Buffer(1, 4)
		if err != nil {
			t.Fatalf("Buffer(%d) error = %v", i, err)
		}
		bufs[i] = b
	}
	for i, b := range bufs {
		if err := e.Write(b, []byte{byte(i), 0, 0, 0}); err != nil {
			t.Errorf("Write(%d) error = %v", i, err)
		}
	}
	if got := e.Stats().Buffers; got != len(bufs) {
		t.Errorf("Stats().Buffers = %d, want %d", got, len(bufs))
	}
}

func TestWithDeviceTakesPrecedence(t *testing.T) {
	dev := cpu.New()
	defer dev.Destroy()

	e, err := New(false, WithBackend("does-not-exist"), WithDevice(dev))
	if err != nil {
		t.Fatalf("New(WithDevice) error = %v", err)
	}
	defer e.Close()

	if got := e.Info().Backend; got != "external" {
		t.Errorf("Info().Backend = %q, want %q", got, "external")
	}
}
