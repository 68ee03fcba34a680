// Package nvptx is the assembly-family device lowering: it optimizes LLVM
// IR and emits PTX text for NVIDIA targets. Lowering needs the CUDA
// libdevice directory and a supported compute capability.
package nvptx

import (
	"os"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/lumen-gpu/lumen/internal/backend"
	"github.com/lumen-gpu/lumen/internal/device"
	"github.com/lumen-gpu/lumen/internal/llvmir"
)

// Target constants for the NVPTX family.
const (
	Triple       = "nvptx64-nvidia-cuda"
	DataLayout   = "e-i64:64-i128:128-v16:16-v32:32-n16:32:64"
	PlatformName = "CUDA"
)

// DefaultLibdeviceDir is where a stock CUDA toolkit installs libdevice.
const DefaultLibdeviceDir = "/usr/local/cuda/nvvm/libdevice"

// libdeviceDirEnv overrides the libdevice search path.
const libdeviceDirEnv = "LUMEN_CUDA_LIBDEVICE_DIR"

// Backend implements backend.Backend for the NVPTX family.
type Backend struct{}

// New returns the NVPTX backend.
func New() *Backend { return &Backend{} }

func (*Backend) Name() string                  { return "NVPTX" }
func (*Backend) PlatformName() string          { return PlatformName }
func (*Backend) PlatformID() device.PlatformID { return device.PlatformCUDA }
func (*Backend) TargetTriple() string          { return Triple }
func (*Backend) DataLayout() string            { return DataLayout }

// LibdeviceDir resolves the libdevice directory from the environment or the
// stock toolkit location.
func LibdeviceDir() string {
	if dir := os.Getenv(libdeviceDirEnv); dir != "" {
		return dir
	}
	return DefaultLibdeviceDir
}

// Lower optimizes m and emits PTX for the requested compute capability.
func (b *Backend) Lower(m *llvmir.Module, opts backend.Options) (backend.Artifact, error) {
	if err := checkComputeCapability(opts.Cuda); err != nil {
		return backend.Artifact{}, err
	}
	dir := opts.SupportLibDir
	if dir == "" {
		dir = LibdeviceDir()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return backend.Artifact{}, errors.Wrapf(err, "libdevice directory %q is not usable", dir)
	}
	if !info.IsDir() {
		return backend.Artifact{}, errors.Errorf("libdevice path %q is not a directory", dir)
	}
	glog.V(1).Infof("nvptx: lowering module %q for %s (libdevice: %s)", m.Name, opts.Cuda, dir)

	m.Optimize()
	ptx, err := emitPTX(m, opts.Cuda)
	if err != nil {
		return backend.Artifact{}, errors.Wrapf(err, "PTX emission for module %q", m.Name)
	}
	return backend.Artifact{Kind: backend.AssemblyText, Assembly: ptx}, nil
}

// checkComputeCapability rejects generations the emitter cannot target.
// sm_35 is the floor; major versions beyond 9 are unknown to this emitter.
func checkComputeCapability(cc device.CudaComputeCapability) error {
	if cc.Major < 3 || (cc.Major == 3 && cc.Minor < 5) || cc.Major > 9 {
		return errors.Errorf("unsupported compute capability %s", cc)
	}
	return nil
}
