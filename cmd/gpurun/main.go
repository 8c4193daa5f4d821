// Command gpurun lists compute devices, compiles WGSL kernels to SPIR-V
// and runs kernels over data files.
package main

import (
	"os"

	"github.com/gogpu/compute/cmd/gpurun/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
