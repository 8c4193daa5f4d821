// Package compiler turns WGSL kernel source into SPIR-V bytecode.
//
// It drives the gogpu/naga pipeline one stage at a time (parse, lower,
// validate, generate) so that failures carry the stage they came from and
// so the requested entry point can be checked before code generation.
// [Naga] satisfies compute.Compiler.
package compiler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
)

// Stage names the compilation step that failed.
type Stage string

// Compilation stages.
const (
	StageParse    Stage = "parse"
	StageLower    Stage = "lower"
	StageValidate Stage = "validate"
	StageEntry    Stage = "entry point"
	StageGenerate Stage = "generate"
)

// ErrNoEntryPoint is returned when the source has no compute entry point
// with the requested name.
var ErrNoEntryPoint = errors.New("compiler: compute entry point not found")

// Error is a compilation failure. Diagnostics holds one line per problem.
type Error struct {
	Stage       Stage
	Diagnostics []string
	Err         error
}

func (e *Error) Error() string {
	return fmt.Sprintf("compiler: %s: %s", e.Stage, strings.Join(e.Diagnostics, "; "))
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures a Naga compiler.
type Options struct {
	// Version is the SPIR-V version to emit. Default 1.3.
	Version spirv.Version

	// Debug emits debug names and line info.
	Debug bool

	// Validate runs IR validation before code generation. Default true.
	Validate bool
}

// Option configures a Naga compiler.
type Option func(*Options)

// WithSPIRVVersion selects the SPIR-V version to emit.
func WithSPIRVVersion(v spirv.Version) Option {
	return func(o *Options) { o.Version = v }
}

// WithDebugInfo enables or disables debug info in the output.
func WithDebugInfo(enabled bool) Option {
	return func(o *Options) { o.Debug = enabled }
}

// WithValidation enables or disables IR validation.
func WithValidation(enabled bool) Option {
	return func(o *Options) { o.Validate = enabled }
}

// Naga compiles WGSL with gogpu/naga.
type Naga struct {
	opts Options
}

// New creates a compiler.
func New(opts ...Option) *Naga {
	def := naga.DefaultOptions()
	o := Options{
		Version:  def.SPIRVVersion,
		Debug:    def.Debug,
		Validate: def.Validate,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Naga{opts: o}
}

// Options returns the effective options.
func (c *Naga) Options() Options { return c.opts }

// Compile compiles source and returns little-endian SPIR-V bytecode whose
// compute entry point is named entryPoint.
func (c *Naga) Compile(source, entryPoint string) ([]byte, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, &Error{Stage: StageParse, Diagnostics: []string{err.Error()}, Err: err}
	}

	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, &Error{Stage: StageLower, Diagnostics: []string{err.Error()}, Err: err}
	}

	if err := checkEntryPoint(module, entryPoint); err != nil {
		return nil, &Error{Stage: StageEntry, Diagnostics: []string{err.Error()}, Err: err}
	}

	if c.opts.Validate {
		verrs, err := naga.Validate(module)
		if err != nil {
			return nil, &Error{Stage: StageValidate, Diagnostics: []string{err.Error()}, Err: err}
		}
		if len(verrs) > 0 {
			diags := make([]string, len(verrs))
			for i := range verrs {
				diags[i] = verrs[i].Error()
			}
			return nil, &Error{Stage: StageValidate, Diagnostics: diags, Err: verrs[0]}
		}
	}

	code, err := naga.GenerateSPIRV(module, spirv.Options{Version: c.opts.Version, Debug: c.opts.Debug})
	if err != nil {
		return nil, &Error{Stage: StageGenerate, Diagnostics: []string{err.Error()}, Err: err}
	}
	return code, nil
}

func checkEntryPoint(module *ir.Module, name string) error {
	var found []string
	for i := range module.EntryPoints {
		ep := &module.EntryPoints[i]
		if ep.Stage != ir.StageCompute {
			continue
		}
		if ep.Name == name {
			return nil
		}
		found = append(found, ep.Name)
	}
	if len(found) == 0 {
		return fmt.Errorf("%w: %q (source declares no @compute function)", ErrNoEntryPoint, name)
	}
	return fmt.Errorf("%w: %q (have %s)", ErrNoEntryPoint, name, strings.Join(found, ", "))
}
