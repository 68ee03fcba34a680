// Command hlo2ir reads HLO module texts from a file, compiles each to LLVM
// IR, and prints the result. It exists to unit-test the GPU IR emitters in
// isolation: the printed IR covers only the parts of the program that will
// be code generated for the device, and it is not run through the full LLVM
// pass pipeline unless device code is requested.
package main

import (
	goflag "flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/lumen-gpu/lumen/internal/driver"
)

const longHelp = `Reads HLO modules from a file, compiles them, and prints the LLVM IR
generated by the IR emitter. Multiple modules in one file are separated by
lines of "// -----" and are compiled in order; the first failure aborts the
run.

When passed --ptx, the LLVM IR is optimized and device code is emitted
instead of the non-optimized LLVM. By default SM 70 is targeted; change it
with --sm (meaningful only for the NVPTX build).`

func newRootCmd() *cobra.Command {
	var opts driver.Options
	cmd := &cobra.Command{
		Use:   "hlo2ir <file>",
		Short: "Compile HLO module text to LLVM IR or device code",
		Long:  longHelp,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return driver.Run(args[0], opts)
		},
	}
	cmd.Flags().BoolVar(&opts.EmitDeviceCode, "ptx", false,
		"Print device code instead of non-optimized LLVM IR.")
	cmd.Flags().IntVar(&opts.SM, "sm", 70,
		"Compute capability to target (useful only with --ptx).")
	cmd.Flags().StringVar(&opts.SupportLibDir, "device_lib_dir", "",
		"Override the device support-library directory.")

	// Generic debug flags (glog's -v, -logtostderr, ...) join the same
	// parse pass as the domain flags above.
	cmd.PersistentFlags().AddGoFlagSet(goflag.CommandLine)
	cmd.SilenceErrors = true
	return cmd
}

func main() {
	defer glog.Flush()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hlo2ir: %v\n", err)
		glog.Flush()
		os.Exit(1)
	}
}
