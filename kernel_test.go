package compute

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/wgpu/hal/software/shader"

	"github.com/gogpu/compute/compiler"
	"github.com/gogpu/compute/internal/spirv/spirvtest"
)

func TestLoadBytecode(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name string
		src  string
		want KernelInfo
	}{
		{"one buffer with params", addKernel, KernelInfo{EntryPoint: "main", Arity: 1, UsesParams: true, WorkgroupSize: [3]uint32{64, 1, 1}}},
		{"two buffers", squareKernel, KernelInfo{EntryPoint: "main", Arity: 2, WorkgroupSize: [3]uint32{16, 1, 1}}},
		{"two buffers with params", scaledSquareKernel, KernelInfo{EntryPoint: "main", Arity: 2, UsesParams: true, WorkgroupSize: [3]uint32{4, 1, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := e.LoadBytecode(mustCompile(t, tt.src))
			if err != nil {
				t.Fatalf("LoadBytecode() error = %v", err)
			}
			got, err := e.KernelInfo(k)
			if err != nil {
				t.Fatalf("KernelInfo() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("KernelInfo() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoadBytecodeBigEndian(t *testing.T) {
	e := newTestEngine(t)

	code := mustCompile(t, squareKernel)
	swapped := make([]byte, len(code))
	for i := 0; i < len(code); i += 4 {
		binary.BigEndian.PutUint32(swapped[i:], binary.LittleEndian.Uint32(code[i:]))
	}
	if _, err := e.LoadBytecode(swapped); err != nil {
		t.Errorf("LoadBytecode(big-endian) error = %v", err)
	}
}

func TestLoadBytecodeDecodeErrors(t *testing.T) {
	e := newTestEngine(t)

	valid := mustCompile(t, squareKernel)
	badMagic := append([]byte(nil), valid...)
	binary.LittleEndian.PutUint32(badMagic, 0xdeadbeef)

	tests := []struct {
		name string
		code []byte
	}{
		{"empty", nil},
		{"not word aligned", valid[:len(valid)-1]},
		{"shorter than header", valid[:16]},
		{"bad magic", badMagic},
		{"truncated", valid[:24]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.LoadBytecode(tt.code)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("LoadBytecode() error = %v, want ErrDecode", err)
			}
		})
	}
	if got := e.Stats().Kernels; got != 0 {
		t.Errorf("Stats().Kernels = %d, want 0", got)
	}
}

func TestLoadBytecodeCreationErrors(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name string
		code []byte
	}{
		{"binding outside slots", mustCompile(t, strayBindingKernel)},
		{"push constant block", spirvtest.Compute([3]uint32{1, 1, 1}, spirvtest.Storage(0),
			spirvtest.Resource{Class: shader.StorageClassPushConstant, Unbound: true}).Bytes()},
		{"no main entry point", spirvtest.Module{EntryPoint: "other", Resources: []spirvtest.Resource{spirvtest.Storage(0)}}.Bytes()},
		{"no storage buffer", spirvtest.Compute([3]uint32{1, 1, 1}, spirvtest.Params()).Bytes()},
		{"workgroup too large", spirvtest.Compute([3]uint32{4096, 1, 1}, spirvtest.Storage(0)).Bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.LoadBytecode(tt.code)
			if !errors.Is(err, ErrCreation) {
				t.Errorf("LoadBytecode() error = %v, want ErrCreation", err)
			}
		})
	}
}

func TestLoadSource(t *testing.T) {
	e := newTestEngine(t)

	k, err := e.LoadSource(squareKernel)
	if err != nil {
		t.Fatalf("LoadSource() error = %v", err)
	}
	if info, _ := e.KernelInfo(k); info.Arity != 2 {
		t.Errorf("KernelInfo().Arity = %d, want 2", info.Arity)
	}

	_, err = e.LoadSource("fn main( {")
	if !errors.Is(err, ErrCompile) {
		t.Fatalf("LoadSource(bad syntax) error = %v, want ErrCompile", err)
	}
	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("LoadSource(bad syntax) error type = %T, want *CompileError", err)
	}
	if len(ce.Diagnostics) == 0 {
		t.Error("CompileError.Diagnostics is empty")
	}
}

func TestLoadSourceCached(t *testing.T) {
	c := compiler.NewCached(compiler.New(), 4)
	e := newTestEngine(t, WithCompiler(c))

	a, err := e.LoadSource(squareKernel)
	if err != nil {
		t.Fatalf("LoadSource() error = %v", err)
	}
	b, err := e.LoadSource(squareKernel)
	if err != nil {
		t.Fatalf("LoadSource() error = %v", err)
	}
	if a == b {
		t.Error("LoadSource() twice returned the same handle")
	}
	if s := c.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Errorf("compiler cache Stats() = %+v, want 1 hit and 1 miss", s)
	}
}

func TestLoadSourceWithoutCompiler(t *testing.T) {
	e, err := New(false, WithBackend("cpu"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close()

	_, err = e.LoadSource(addKernel)
	if !errors.Is(err, ErrNoCompiler) {
		t.Errorf("LoadSource() error = %v, want ErrNoCompiler", err)
	}
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("LoadSource() error = %v, want ErrInvalidArgument", err)
	}
}

func TestFreeKernel(t *testing.T) {
	e := newTestEngine(t)

	k, err := e.LoadSource(addKernel)
	if err != nil {
		t.Fatalf("LoadSource() error = %v", err)
	}
	if err := e.FreeKernel(k); err != nil {
		t.Fatalf("FreeKernel() error = %v", err)
	}
	if err := e.FreeKernel(k); !errors.Is(err, ErrNotFound) {
		t.Errorf("FreeKernel(twice) error = %v, want ErrNotFound", err)
	}

	next, err := e.LoadSource(squareKernel)
	if err != nil {
		t.Fatalf("LoadSource() error = %v", err)
	}
	buf, _ := e.Buffer(4, 4)
	if err := e.Run(k, []Buffer{buf}, 1, 1, 1, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Run(freed kernel) error = %v, want ErrNotFound", err)
	}
	if _, err := e.KernelInfo(next); err != nil {
		t.Errorf("KernelInfo(next) error = %v", err)
	}
}
