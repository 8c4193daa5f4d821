// Package commands implements the gpurun command tree.
package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gogpu/compute"
	"github.com/gogpu/compute/cmd/gpurun/internal/logging"
	"github.com/gogpu/compute/compiler"

	// Vulkan, Metal, DX12, GLES and the software rasterizer, per platform.
	_ "github.com/gogpu/wgpu/hal/allbackends"
)

// Version is the gpurun release.
const Version = "0.1.0"

// kernelCompiler is shared by every engine the process opens, so a kernel
// compiled once is reused by later commands.
var kernelCompiler = compiler.NewCached(compiler.New(), 0)

// app holds the state shared by every command of one tree.
type app struct {
	v       *viper.Viper
	cfgFile string
}

// Execute runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "gpurun",
		Short: "Run compute kernels on a GPU",
		Long: `gpurun drives the compute engine from the command line.

It lists the adapters every backend can open, compiles WGSL kernels to
SPIR-V, and dispatches a kernel over numbers read from a file.`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.gpurun/config.yaml)")
	pf.String("backend", "", "backend to open: wgpu, cpu or a forced wgpu variant (default: best available)")
	pf.Bool("validation", false, "enable the graphics API validation layers")
	pf.String("log-level", "warn", "log level: debug, info, warn or error")
	pf.String("log-file", "", "also write logs to this file")
	pf.BoolP("verbose", "v", false, "verbose output (same as --log-level debug)")
	pf.BoolP("quiet", "q", false, "no log output on the console")

	for _, name := range []string{"backend", "validation", "log-level", "log-file", "verbose", "quiet"} {
		_ = a.v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(
		a.devicesCommand(),
		a.compileCommand(),
		a.runCommand(),
		versionCommand(),
	)
	return root
}

// init reads the config file and environment and sets up logging.
func (a *app) init(cmd *cobra.Command) error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			a.v.AddConfigPath(filepath.Join(home, ".gpurun"))
		}
		a.v.AddConfigPath(".")
		a.v.SetConfigType("yaml")
		a.v.SetConfigName("config")
	}

	a.v.SetEnvPrefix("GPURUN")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	level := a.v.GetString("log-level")
	if a.v.GetBool("verbose") {
		level = "debug"
	}
	var console io.Writer
	if !a.v.GetBool("quiet") {
		console = cmd.ErrOrStderr()
	}
	if err := logging.Init(level, a.v.GetString("log-file"), console); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	compute.SetLogger(logging.Slog(logging.Get()))

	if used := a.v.ConfigFileUsed(); used != "" {
		logging.Get().Debugf("using config file %s", used)
	}
	return nil
}

// engine opens an Engine on the configured backend with the shared compiler.
func (a *app) engine(opts ...compute.Option) (*compute.Engine, error) {
	opts = append(opts, compute.WithCompiler(kernelCompiler), compute.WithLabel("gpurun"))
	if name := a.v.GetString("backend"); name != "" {
		opts = append(opts, compute.WithBackend(name))
	}
	return compute.New(a.v.GetBool("validation"), opts...)
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gpurun v%s\n", Version)
		},
	}
}
