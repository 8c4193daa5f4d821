package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gogpu/compute"
	"github.com/gogpu/compute/backend"
)

func (a *app) devicesCommand() *cobra.Command {
	var probe bool
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List the adapters of every backend",
		Long: `List the adapters every registered backend can open, in the order
the engine tries them when no backend is named.

With --probe the selected backend is opened and its limits are shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "BACKEND\tADAPTER\tTYPE")
			for _, d := range backend.Devices() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Backend, d.Adapter.Name, d.Adapter.Type)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if !probe {
				return nil
			}

			e, err := a.engine()
			if err != nil {
				return err
			}
			defer e.Close()
			printInfo(cmd, e.Info())
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "open the selected backend and print its limits")
	return cmd
}

func printInfo(cmd *cobra.Command, info compute.DeviceInfo) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nselected: %s (%s, %s)\n", info.Adapter, info.Backend, info.Type)
	fmt.Fprintf(out, "  max buffer size:        %d\n", info.Limits.MaxBufferSize)
	fmt.Fprintf(out, "  max workgroups per dim: %d\n", info.Limits.MaxWorkgroupsPerDimension)
	fmt.Fprintf(out, "  max workgroup size:     %v\n", info.Limits.MaxWorkgroupSize)
	fmt.Fprintf(out, "  max params size:        %d\n", info.Limits.MaxParamsSize)
}
