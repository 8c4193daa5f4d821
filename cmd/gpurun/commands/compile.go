package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gogpu/compute"
	"github.com/gogpu/compute/cmd/gpurun/internal/logging"
	"github.com/gogpu/compute/compiler"
	"github.com/gogpu/compute/internal/spirv"
)

func (a *app) compileCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "compile KERNEL.wgsl",
		Short: "Compile a WGSL kernel to SPIR-V",
		Long: `Compile a WGSL kernel to SPIR-V bytecode and report its layout.

The output defaults to the input path with a .spv extension. The kernel
must follow the engine's binding layout: entry point "main", storage
buffers at @group(0) @binding(0) and @binding(1), and an optional
uniform parameter block at @group(1) @binding(0).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			code, err := compiler.New().Compile(string(src), compute.EntryPoint)
			if err != nil {
				return err
			}
			k, err := spirv.Decode(code)
			if err != nil {
				return err
			}

			if output == "" {
				output = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".spv"
			}
			if err := os.WriteFile(output, code, 0o644); err != nil {
				return err
			}
			logging.Get().WithField("bytes", len(code)).Debugf("wrote %s", output)

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bytes, arity %d, params %t, workgroup %v\n",
				output, len(code), k.Arity, k.UsesParams, k.WorkgroupSize)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file")
	return cmd
}
