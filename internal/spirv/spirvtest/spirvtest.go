// Package spirvtest assembles small SPIR-V modules for tests.
//
// The modules declare resources and an entry point but their function body
// only returns. They exercise decoding and reflection, not execution.
package spirvtest

import (
	"encoding/binary"

	"github.com/gogpu/wgpu/hal/software/shader"
)

const magic = 0x07230203

// Resource is a buffer variable declared by the module.
type Resource struct {
	Group   uint32
	Binding uint32

	// Class is a shader.StorageClass* value.
	Class uint32

	// BufferBlock decorates the block struct BufferBlock instead of Block,
	// the pre-1.3 spelling of a storage buffer.
	BufferBlock bool

	// Unbound omits the Binding and DescriptorSet decorations.
	Unbound bool
}

// Storage returns a storage buffer resource at @group(0) @binding(b).
func Storage(b uint32) Resource {
	return Resource{Group: 0, Binding: b, Class: shader.StorageClassStorageBuffer}
}

// Params returns the parameter block resource at @group(1) @binding(0).
func Params() Resource {
	return Resource{Group: 1, Binding: 0, Class: shader.StorageClassUniform}
}

// Module describes a module to assemble.
type Module struct {
	// EntryPoint defaults to "main".
	EntryPoint string

	// Model defaults to GLCompute. Vertex (0) cannot be selected.
	Model uint32

	// LocalSize defaults to {1, 1, 1}. Ignored for non-compute models.
	LocalSize [3]uint32

	// Version is the header version word. Defaults to 1.3.
	Version uint32

	Resources []Resource
}

// Compute returns a compute module binding the given resources.
func Compute(localSize [3]uint32, resources ...Resource) Module {
	return Module{LocalSize: localSize, Resources: resources}
}

// Bytes assembles the module as little-endian bytecode.
func (m Module) Bytes() []byte {
	words := m.Words()
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// Words assembles the module.
func (m Module) Words() []uint32 {
	name := m.EntryPoint
	if name == "" {
		name = "main"
	}
	model := m.Model
	if model == 0 {
		model = shader.ExecutionModelGLCompute
	}
	local := m.LocalSize
	if local == [3]uint32{} {
		local = [3]uint32{1, 1, 1}
	}
	version := m.Version
	if version == 0 {
		version = 0x00010300
	}

	next := uint32(1)
	alloc := func() uint32 { id := next; next++; return id }

	idVoid := alloc()
	idUint := alloc()
	idLen := alloc()
	idArr := alloc()
	idFnTy := alloc()
	idFn := alloc()
	idLabel := alloc()

	type res struct {
		Resource
		structID, ptrID, varID uint32
	}
	rs := make([]res, len(m.Resources))
	for i, r := range m.Resources {
		rs[i] = res{Resource: r, structID: alloc(), ptrID: alloc(), varID: alloc()}
	}

	nameWords := str(name)
	var words []uint32
	words = append(words,
		magic, version, 0, next, 0,
		inst(2, shader.OpCapability), 1,
		inst(3, shader.OpMemoryModel), 0, 1,
	)
	words = append(words, inst(uint16(3+len(nameWords)), shader.OpEntryPoint), model, idFn) //nolint:gosec // short names
	words = append(words, nameWords...)
	if model == shader.ExecutionModelGLCompute {
		words = append(words, inst(6, shader.OpExecutionMode), idFn, shader.ExecutionModeLocalSize, local[0], local[1], local[2])
	}

	for _, r := range rs {
		if !r.Unbound {
			words = append(words,
				inst(4, shader.OpDecorate), r.varID, shader.DecorationBinding, r.Binding,
				inst(4, shader.OpDecorate), r.varID, shader.DecorationDescriptorSet, r.Group,
			)
		}
		block := uint32(shader.DecorationBlock)
		if r.BufferBlock {
			block = shader.DecorationBufferBlock
		}
		words = append(words,
			inst(3, shader.OpDecorate), r.structID, block,
			inst(5, shader.OpMemberDecorate), r.structID, 0, shader.DecorationOffset, 0,
		)
	}
	words = append(words, inst(4, shader.OpDecorate), idArr, shader.DecorationArrayStride, 4)

	words = append(words,
		inst(2, shader.OpTypeVoid), idVoid,
		inst(4, shader.OpTypeInt), idUint, 32, 0,
		inst(4, shader.OpConstant), idUint, idLen, 4,
		inst(4, shader.OpTypeArray), idArr, idUint, idLen,
	)
	for _, r := range rs {
		words = append(words,
			inst(3, shader.OpTypeStruct), r.structID, idArr,
			inst(4, shader.OpTypePointer), r.ptrID, r.Class, r.structID,
		)
	}
	words = append(words, inst(3, shader.OpTypeFunction), idFnTy, idVoid)
	for _, r := range rs {
		words = append(words, inst(4, shader.OpVariable), r.ptrID, r.varID, r.Class)
	}

	words = append(words,
		inst(5, shader.OpFunction), idVoid, idFn, 0, idFnTy,
		inst(2, shader.OpLabel), idLabel,
		inst(1, shader.OpReturn),
		inst(1, shader.OpFunctionEnd),
	)
	return words
}

func inst(wordCount uint16, opcode uint16) uint32 {
	return uint32(wordCount)<<16 | uint32(opcode)
}

// str encodes a nul-terminated SPIR-V literal string.
func str(s string) []uint32 {
	b := append([]byte(s), 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return out
}
