// Package driver orchestrates one harness run: read a file of HLO module
// texts, split it into program units, and for each unit in order load it,
// lower it to LLVM IR, optionally continue to device code, and print the
// artifact. The first failing unit aborts the whole run; there is no
// partial recovery.
package driver

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/lumen-gpu/lumen/internal/backend"
	"github.com/lumen-gpu/lumen/internal/codegen"
	"github.com/lumen-gpu/lumen/internal/device"
	"github.com/lumen-gpu/lumen/internal/hlo"
)

// UnitDelimiter separates independent program units in an input file. It
// must stand alone on its own line.
const UnitDelimiter = "// -----"

// Options configures one run. The zero value compiles to unoptimized LLVM
// IR for sm_70 and writes to stdout.
type Options struct {
	// EmitDeviceCode continues past IR generation into device lowering.
	EmitDeviceCode bool
	// SM is the two-digit compute capability (major*10+minor) for the
	// assembly-family backend. It is passed through as given; the CLI
	// supplies the 70 default, and sm_00 fails the capability check.
	SM int
	// SupportLibDir overrides the backend's device-library directory.
	SupportLibDir string
	// Out receives the printed artifacts. Defaults to stdout.
	Out io.Writer
	// Backend overrides the build's default device-lowering backend.
	Backend backend.Backend
}

// Run processes every program unit in the file at path. It stops at the
// first failure and returns a descriptive error; output already printed for
// earlier units stands.
func Run(path string, opts Options) error {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	be := opts.Backend
	if be == nil {
		be = defaultBackend()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %q", path)
	}

	units := SplitUnits(string(data))
	glog.V(1).Infof("%s: %d program unit(s)", path, len(units))
	for i, unit := range units {
		if err := compileAndPrint(unit, be, opts); err != nil {
			return errors.Wrapf(err, "program unit %d", i+1)
		}
	}
	return nil
}

// SplitUnits splits a file's text into program-unit texts at delimiter
// lines. Units that are empty or whitespace-only are dropped, so an empty
// file or a trailing delimiter yields no spurious unit.
func SplitUnits(text string) []string {
	var units []string
	var cur []string
	flush := func() {
		unit := strings.Join(cur, "\n")
		if strings.TrimSpace(unit) != "" {
			units = append(units, unit)
		}
		cur = cur[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == UnitDelimiter {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return units
}

// compileAndPrint runs one program unit through load, pipeline lowering,
// and (optionally) device lowering, printing the chosen artifact.
func compileAndPrint(unitText string, be backend.Backend, opts Options) error {
	mod, err := hlo.ParseModule(unitText)
	if err != nil {
		return errors.Wrap(err, "loading HLO module")
	}

	cfg := codegen.TargetConfig{
		TargetTriple: be.TargetTriple(),
		DataLayout:   be.DataLayout(),
		PlatformName: be.PlatformName(),
		PlatformID:   be.PlatformID(),
		PointerSize:  8,
		DeviceInfo:   device.V100DeviceInfo(),
		Cuda:         device.CudaComputeCapabilityFromSM(opts.SM),
		Rocm:         device.DefaultRocmComputeCapability(),
	}
	ir, err := codegen.CompileModuleToIR(mod, cfg)
	if err != nil {
		return err
	}

	if !opts.EmitDeviceCode {
		fmt.Fprint(opts.Out, ir.String())
		return nil
	}

	art, err := be.Lower(ir, backend.Options{
		Cuda:          cfg.Cuda,
		Rocm:          cfg.Rocm,
		DeviceInfo:    cfg.DeviceInfo,
		SupportLibDir: opts.SupportLibDir,
	})
	if err != nil {
		return errors.Wrapf(err, "device lowering with %s", be.Name())
	}

	switch art.Kind {
	case backend.AssemblyText:
		fmt.Fprintln(opts.Out, art.Assembly)
	case backend.BinaryImage:
		// The binary image is produced but not forwarded to the output
		// stream; it is only observable through logging. Known gap, kept
		// as-is. See DESIGN.md.
		glog.V(1).Infof("module %q: produced %s code object (%s), not printed",
			mod.Name, be.Name(), humanize.Bytes(uint64(len(art.Image))))
	}
	return nil
}
