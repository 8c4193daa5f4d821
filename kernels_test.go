package compute

import (
	"testing"

	"github.com/gogpu/compute/compiler"
)

// addKernel adds params.k to the first params.n elements of data.
const addKernel = `
struct Params {
    k: u32,
    n: u32,
}
@group(0) @binding(0) var<storage, read_write> data: array<u32>;
@group(1) @binding(0) var<uniform> params: Params;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x;
    if i < params.n {
        data[i] = data[i] + params.k;
    }
}
`

// squareKernel writes the square of each input element to output.
const squareKernel = `
@group(0) @binding(0) var<storage, read> input: array<u32>;
@group(0) @binding(1) var<storage, read_write> output: array<u32>;

@compute @workgroup_size(16)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x;
    output[i] = input[i] * input[i];
}
`

// scaledSquareKernel multiplies each square by params.p.
const scaledSquareKernel = `
struct Params { p: u32 }
@group(0) @binding(0) var<storage, read> input: array<u32>;
@group(0) @binding(1) var<storage, read_write> output: array<u32>;
@group(1) @binding(0) var<uniform> params: Params;

@compute @workgroup_size(4)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let i = id.x;
    output[i] = input[i] * input[i] * params.p;
}
`

// strayBindingKernel binds a storage buffer outside the two fixed slots.
const strayBindingKernel = `
@group(0) @binding(0) var<storage, read_write> a: array<u32>;
@group(0) @binding(2) var<storage, read_write> b: array<u32>;

@compute @workgroup_size(1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    a[id.x] = b[id.x];
}
`

// mustCompile compiles WGSL to SPIR-V bytecode.
func mustCompile(t *testing.T, src string) []byte {
	t.Helper()
	code, err := compiler.New().Compile(src, EntryPoint)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return code
}
