package commands

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/compute"
	"github.com/gogpu/compute/cmd/gpurun/internal/logging"
)

type runOptions struct {
	input      string
	output     string
	params     string
	paramsType string
	grid       []uint
	outLen     int
}

func (a *app) runCommand() *cobra.Command {
	var o runOptions
	cmd := &cobra.Command{
		Use:   "run KERNEL --input FILE",
		Short: "Run a kernel over numbers read from a file",
		Long: `Run a kernel over numbers read from a file and print the result.

KERNEL is WGSL source when it ends in .wgsl and SPIR-V bytecode
otherwise. The input holds numbers separated by spaces, commas or
newlines; they fill slot 0. A kernel with two slots gets a zeroed output
buffer in slot 1 and that buffer is printed; a kernel with one slot is
updated in place.

The grid defaults to enough workgroups along x to cover every input
element.`,
		Example: `  gpurun run square.wgsl --input data.txt
  gpurun run add.spv --input data.txt --params 5,1000 --type u32
  gpurun run scale.wgsl --input data.txt --type f32 --params 2.5 --grid 4,1,1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd, args[0], o)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.input, "input", "i", "", "file of input numbers (required)")
	f.StringVarP(&o.output, "output", "o", "", "write the result here instead of stdout")
	f.String("type", "u32", "element type: u32, i32 or f32")
	f.StringVarP(&o.params, "params", "p", "", "comma-separated parameter block values")
	f.StringVar(&o.paramsType, "params-type", "", "parameter type (default: --type)")
	f.UintSliceVar(&o.grid, "grid", nil, "workgroup counts x,y,z")
	f.IntVar(&o.outLen, "out-len", 0, "elements in the output buffer (default: input length)")
	_ = cmd.MarkFlagRequired("input")
	_ = a.v.BindPFlag("type", f.Lookup("type"))
	return cmd
}

func (a *app) run(cmd *cobra.Command, kernelPath string, o runOptions) error {
	typ := a.v.GetString("type")
	if o.paramsType == "" {
		o.paramsType = typ
	}

	raw, err := os.ReadFile(o.input)
	if err != nil {
		return err
	}
	fields := splitNumbers(string(raw))
	if len(fields) == 0 {
		return fmt.Errorf("%s: no input values", o.input)
	}
	params, err := encodeValues(o.paramsType, splitNumbers(o.params))
	if err != nil {
		return fmt.Errorf("params: %w", err)
	}

	e, err := a.engine()
	if err != nil {
		return err
	}
	defer e.Close()

	k, err := loadKernel(e, kernelPath)
	if err != nil {
		return err
	}
	info, err := e.KernelInfo(k)
	if err != nil {
		return err
	}
	log := logging.Get().WithField("backend", e.Info().Backend)
	log.Infof("loaded %s: arity %d, workgroup %v", filepath.Base(kernelPath), info.Arity, info.WorkgroupSize)

	j := job{
		engine: e,
		kernel: k,
		info:   info,
		params: params,
		outLen: o.outLen,
	}
	if j.grid, err = gridFor(o.grid, len(fields), info); err != nil {
		return err
	}

	var result []string
	switch typ {
	case "u32":
		result, err = execute(j, fields, parseU32)
	case "i32":
		result, err = execute(j, fields, parseI32)
	case "f32":
		result, err = execute(j, fields, parseF32)
	default:
		return fmt.Errorf("unknown element type %q", typ)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if o.output != "" {
		f, err := os.Create(o.output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	return writeValues(out, result)
}

// job is one dispatch of a loaded kernel.
type job struct {
	engine *compute.Engine
	kernel compute.Kernel
	info   compute.KernelInfo
	params []byte
	grid   [3]uint32
	outLen int
}

func execute[T compute.Scalar](j job, fields []string, parse func(string) (T, error)) ([]string, error) {
	in, err := parseValues(fields, parse)
	if err != nil {
		return nil, err
	}
	e := j.engine

	src, err := compute.NewBuffer[T](e, len(in))
	if err != nil {
		return nil, err
	}
	if err := compute.WriteSlice(e, src, in); err != nil {
		return nil, err
	}

	buffers := []compute.Buffer{src}
	result := in
	if j.info.Arity == 2 {
		n := j.outLen
		if n <= 0 {
			n = len(in)
		}
		dst, err := compute.NewBuffer[T](e, n)
		if err != nil {
			return nil, err
		}
		buffers = append(buffers, dst)
		result = make([]T, n)
	}

	if err := e.Run(j.kernel, buffers, j.grid[0], j.grid[1], j.grid[2], j.params); err != nil {
		return nil, err
	}
	if err := compute.ReadSlice(e, buffers[len(buffers)-1], result); err != nil {
		return nil, err
	}

	out := make([]string, len(result))
	for i, v := range result {
		out[i] = fmt.Sprint(v)
	}
	return out, nil
}

func loadKernel(e *compute.Engine, path string) (compute.Kernel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return compute.Kernel{}, err
	}
	if strings.EqualFold(filepath.Ext(path), ".wgsl") {
		return e.LoadSource(string(data))
	}
	return e.LoadBytecode(data)
}

func gridFor(grid []uint, n int, info compute.KernelInfo) ([3]uint32, error) {
	if len(grid) == 0 {
		return [3]uint32{compute.Groups(uint32(n), info.WorkgroupSize[0]), 1, 1}, nil //nolint:gosec // input length
	}
	if len(grid) > 3 {
		return [3]uint32{}, fmt.Errorf("grid %v has more than 3 dimensions", grid)
	}
	g := [3]uint32{1, 1, 1}
	for i, v := range grid {
		if v > math.MaxUint32 {
			return [3]uint32{}, fmt.Errorf("grid dimension %d is %d, above %d", i, v, uint32(math.MaxUint32))
		}
		g[i] = uint32(v)
	}
	return g, nil
}

func splitNumbers(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

func parseValues[T any](fields []string, parse func(string) (T, error)) ([]T, error) {
	out := make([]T, len(fields))
	for i, f := range fields {
		v, err := parse(f)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func encodeValues(typ string, fields []string) ([]byte, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	switch typ {
	case "u32":
		v, err := parseValues(fields, parseU32)
		return compute.Params(v...), err
	case "i32":
		v, err := parseValues(fields, parseI32)
		return compute.Params(v...), err
	case "f32":
		v, err := parseValues(fields, parseF32)
		return compute.Params(v...), err
	default:
		return nil, fmt.Errorf("unknown element type %q", typ)
	}
}

func parseU32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	return uint32(v), err
}

func parseI32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 0, 32)
	return int32(v), err
}

func parseF32(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	return float32(v), err
}

func writeValues(w io.Writer, values []string) error {
	_, err := fmt.Fprintln(w, strings.Join(values, " "))
	return err
}
