package compute

import (
	"bytes"
	"errors"
	"math"
	"slices"
	"testing"
)

type celsius float32

func roundTrip[T Scalar](t *testing.T, e *Engine, in []T) {
	t.Helper()
	b, err := NewBuffer[T](e, len(in))
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	defer func() { _ = e.FreeBuffer(b) }()

	if err := WriteSlice(e, b, in); err != nil {
		t.Fatalf("WriteSlice() error = %v", err)
	}
	out := make([]T, len(in))
	if err := ReadSlice(e, b, out); err != nil {
		t.Fatalf("ReadSlice() error = %v", err)
	}
	if !slices.Equal(out, in) {
		t.Errorf("ReadSlice() = %v, want %v", out, in)
	}
}

func TestTypedRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	t.Run("uint32", func(t *testing.T) { roundTrip(t, e, []uint32{0, 1, math.MaxUint32, 0xdeadbeef}) })
	t.Run("int16", func(t *testing.T) { roundTrip(t, e, []int16{-32768, -1, 0, 32767}) })
	t.Run("int8", func(t *testing.T) { roundTrip(t, e, []int8{-128, -1, 0, 1, 127}) })
	t.Run("float32", func(t *testing.T) { roundTrip(t, e, []float32{-1.5, 0, 3.25, math.MaxFloat32}) })
	t.Run("float64", func(t *testing.T) { roundTrip(t, e, []float64{math.Pi, -math.E, math.SmallestNonzeroFloat64}) })
	t.Run("named", func(t *testing.T) { roundTrip(t, e, []celsius{-40, 0, 36.6}) })
}

func TestTypedBufferSize(t *testing.T) {
	e := newTestEngine(t)

	b, err := NewBuffer[float64](e, 10)
	if err != nil {
		t.Fatalf("NewBuffer() error = %v", err)
	}
	if got, _ := e.BufferSize(b); got != 80 {
		t.Errorf("BufferSize() = %d, want 80", got)
	}
	if _, err := NewBuffer[uint32](e, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NewBuffer(0) error = %v, want ErrInvalidArgument", err)
	}
}

func TestTypedSizeMismatch(t *testing.T) {
	e := newTestEngine(t)

	b, _ := NewBuffer[uint32](e, 4)
	if err := WriteSlice(e, b, []uint32{1, 2, 3}); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("WriteSlice(3 of 4) error = %v, want ErrSizeMismatch", err)
	}
	if err := ReadSlice(e, b, make([]uint32, 5)); !errors.Is(err, ErrSizeMismatch) {
		t.Errorf("ReadSlice(5 of 4) error = %v, want ErrSizeMismatch", err)
	}
	// Same byte count, different element type.
	if err := WriteSlice(e, b, []uint16{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Errorf("WriteSlice(8 x uint16) error = %v", err)
	}
}

func TestParams(t *testing.T) {
	tests := []struct {
		name string
		got  []byte
		want []byte
	}{
		{"none", Params[uint32](), []byte{}},
		{"uint32", Params[uint32](7, 0x01020304), []byte{7, 0, 0, 0, 4, 3, 2, 1}},
		{"int32", Params[int32](-1), []byte{0xff, 0xff, 0xff, 0xff}},
		{"float32", Params[float32](1), []byte{0, 0, 0x80, 0x3f}},
		{"uint8", Params[uint8](1, 2, 3), []byte{1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !bytes.Equal(tt.got, tt.want) {
				t.Errorf("Params() = %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestGroups(t *testing.T) {
	tests := []struct {
		n, size uint32
		want    uint32
	}{
		{800, 16, 50},
		{801, 16, 51},
		{1, 64, 1},
		{0, 64, 0},
		{5, 0, 5},
		{64, 64, 1},
	}
	for _, tt := range tests {
		if got := Groups(tt.n, tt.size); got != tt.want {
			t.Errorf("Groups(%d, %d) = %d, want %d", tt.n, tt.size, got, tt.want)
		}
	}
}
