// Package spirv decodes kernel bytecode and checks it against the engine's
// fixed binding layout.
//
// Parsing is delegated to the SPIR-V front end of the wgpu software backend
// (github.com/gogpu/wgpu/hal/software/shader). This package adds the header
// checks, endianness handling and the reflection the engine needs at load
// time: entry point, storage slot arity, parameter block use and workgroup
// size.
package spirv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"sort"

	"github.com/gogpu/wgpu/hal/software/shader"

	"github.com/gogpu/compute/gpucore"
)

// Magic is the SPIR-V magic number in host word order.
const Magic = 0x07230203

// EntryPoint is the entry point name every kernel must export.
const EntryPoint = "main"

// headerWords is the number of words in the SPIR-V module header.
const headerWords = 5

// Highest SPIR-V version accepted (1.6).
const (
	maxMajor = 1
	maxMinor = 6
)

var (
	// ErrDecode is returned for bytecode that is not a well-formed SPIR-V module.
	ErrDecode = errors.New("spirv: malformed bytecode")

	// ErrLayout is returned for a well-formed module that does not fit the
	// engine's binding layout.
	ErrLayout = errors.New("spirv: kernel does not match binding layout")
)

// Kernel is a decoded module together with what the engine learned about it.
type Kernel struct {
	// Words is the module in host word order, ready for the device.
	Words []uint32

	// EntryPoint is the compute entry point name.
	EntryPoint string

	// Arity is the number of storage slots the kernel binds (1 or 2).
	Arity int

	// UsesParams reports whether the kernel reads the parameter block.
	UsesParams bool

	// WorkgroupSize is the declared local size.
	WorkgroupSize [3]uint32

	// Version is the SPIR-V version as (major, minor).
	Version [2]uint8
}

// Words converts bytecode to words. Both little- and big-endian encodings
// are accepted; the magic number decides.
func Words(code []byte) ([]uint32, error) {
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: empty bytecode", ErrDecode)
	}
	if len(code)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 4", ErrDecode, len(code))
	}
	if len(code) < headerWords*4 {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the module header", ErrDecode, len(code))
	}

	var order binary.ByteOrder = binary.LittleEndian
	switch binary.LittleEndian.Uint32(code) {
	case Magic:
	case bits.ReverseBytes32(Magic):
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: bad magic 0x%08x", ErrDecode, binary.LittleEndian.Uint32(code))
	}

	words := make([]uint32, len(code)/4)
	for i := range words {
		words[i] = order.Uint32(code[i*4:])
	}
	return words, nil
}

// Decode validates bytecode and reflects its binding layout.
//
// Structural problems are reported as ErrDecode. A module that parses but
// does not fit the fixed layout is reported as ErrLayout.
func Decode(code []byte) (*Kernel, error) {
	words, err := Words(code)
	if err != nil {
		return nil, err
	}

	version := words[1]
	major, minor := uint8(version>>16), uint8(version>>8) //nolint:gosec // byte fields of the version word
	if version&0xff0000ff != 0 || major == 0 || major > maxMajor || minor > maxMinor {
		return nil, fmt.Errorf("%w: unsupported version word 0x%08x", ErrDecode, version)
	}
	if words[3] == 0 {
		return nil, fmt.Errorf("%w: zero id bound", ErrDecode)
	}

	m, err := shader.ParseModule(words)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	k, err := Reflect(m)
	if err != nil {
		return nil, err
	}
	k.Words = words
	k.Version = [2]uint8{major, minor}
	return k, nil
}

// Reflect checks a parsed module against the fixed binding layout.
func Reflect(m *shader.Module) (*Kernel, error) {
	ep, ok := m.EntryPoints[EntryPoint]
	if !ok {
		return nil, fmt.Errorf("%w: entry point %q not found", ErrLayout, EntryPoint)
	}
	if ep.ExecutionModel != shader.ExecutionModelGLCompute {
		return nil, fmt.Errorf("%w: entry point %q is not a compute entry point (model %d)",
			ErrLayout, EntryPoint, ep.ExecutionModel)
	}

	k := &Kernel{
		EntryPoint:    EntryPoint,
		WorkgroupSize: m.GetWorkgroupSize(EntryPoint),
	}

	var slots [gpucore.MaxStorageSlots]bool
	for _, id := range sortedVariables(m) {
		vi := m.Variables[id]
		switch vi.StorageClass {
		case shader.StorageClassStorageBuffer, shader.StorageClassUniform:
		case shader.StorageClassPushConstant:
			return nil, fmt.Errorf("%w: push constant block %%%d, declare parameters at @group(%d) @binding(%d)",
				ErrLayout, id, gpucore.ParamsGroup, gpucore.ParamsBinding)
		case shader.StorageClassUniformConstant:
			return nil, fmt.Errorf("%w: texture or sampler binding %%%d", ErrLayout, id)
		default:
			continue
		}

		bk, ok := m.GetBinding(id)
		if !ok {
			return nil, fmt.Errorf("%w: resource %%%d has no binding decoration", ErrLayout, id)
		}
		storage := vi.StorageClass == shader.StorageClassStorageBuffer || isBufferBlock(m, vi.TypeID)

		switch {
		case bk.Group == gpucore.StorageGroup && storage && bk.Binding < gpucore.MaxStorageSlots:
			slots[bk.Binding] = true
		case bk.Group == gpucore.ParamsGroup && !storage && bk.Binding == gpucore.ParamsBinding:
			k.UsesParams = true
		default:
			kind := "uniform"
			if storage {
				kind = "storage"
			}
			return nil, fmt.Errorf("%w: %s buffer at @group(%d) @binding(%d)", ErrLayout, kind, bk.Group, bk.Binding)
		}
	}

	switch {
	case slots[0] && slots[1]:
		k.Arity = 2
	case slots[0]:
		k.Arity = 1
	case slots[1]:
		return nil, fmt.Errorf("%w: binding 1 used without binding 0", ErrLayout)
	default:
		return nil, fmt.Errorf("%w: kernel binds no storage buffer", ErrLayout)
	}
	return k, nil
}

// sortedVariables returns variable IDs in ascending order so errors are
// reported deterministically.
func sortedVariables(m *shader.Module) []uint32 {
	ids := make([]uint32, 0, len(m.Variables))
	for id := range m.Variables {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// isBufferBlock reports whether the pointer type ptrType points at a
// struct decorated BufferBlock, the pre-1.3 spelling of a storage buffer.
func isBufferBlock(m *shader.Module, ptrType uint32) bool {
	ptr, ok := m.Types[ptrType]
	if !ok {
		return false
	}
	for key := range m.Decorations {
		if key.TargetID == ptr.ElemType && key.Decoration == shader.DecorationBufferBlock {
			return true
		}
	}
	return false
}
