// Package amdgpu is the binary-family device lowering: it optimizes LLVM IR
// and emits an HSACO code object (an ELF image) for AMD targets. Lowering
// needs the ROCm device-library directory and a known gfx architecture.
package amdgpu

import (
	"os"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/lumen-gpu/lumen/internal/backend"
	"github.com/lumen-gpu/lumen/internal/device"
	"github.com/lumen-gpu/lumen/internal/llvmir"
)

// Target constants for the AMDGPU family.
const (
	Triple       = "amdgcn--amdhsa-amdgiz"
	DataLayout   = "e-p:64:64-p1:64:64-p2:32:32-p3:32:32-p4:64:64-p5:32:32-i64:64-v32:32-n32:64-S32-A5"
	PlatformName = "ROCm"
)

// DefaultDeviceLibDir is where a stock ROCm install keeps the bitcode
// device libraries.
const DefaultDeviceLibDir = "/opt/rocm/amdgcn/bitcode"

// deviceLibDirEnv overrides the device-library search path.
const deviceLibDirEnv = "LUMEN_ROCM_DEVICE_LIB_DIR"

// archFlags maps the gfx architectures the emitter knows to their ELF
// e_flags machine values.
var archFlags = map[string]uint32{
	"gfx900":  0x2c,
	"gfx906":  0x2f,
	"gfx908":  0x30,
	"gfx90a":  0x3f,
	"gfx1030": 0x36,
}

// Backend implements backend.Backend for the AMDGPU family.
type Backend struct{}

// New returns the AMDGPU backend.
func New() *Backend { return &Backend{} }

func (*Backend) Name() string                  { return "AMDGPU" }
func (*Backend) PlatformName() string          { return PlatformName }
func (*Backend) PlatformID() device.PlatformID { return device.PlatformROCm }
func (*Backend) TargetTriple() string          { return Triple }
func (*Backend) DataLayout() string            { return DataLayout }

// DeviceLibDir resolves the ROCm device-library directory from the
// environment or the stock install location.
func DeviceLibDir() string {
	if dir := os.Getenv(deviceLibDirEnv); dir != "" {
		return dir
	}
	return DefaultDeviceLibDir
}

// Lower optimizes m and emits an HSACO image for the requested gfx
// architecture.
func (b *Backend) Lower(m *llvmir.Module, opts backend.Options) (backend.Artifact, error) {
	flags, ok := archFlags[opts.Rocm.GfxArch]
	if !ok {
		return backend.Artifact{}, errors.Errorf("unsupported gfx architecture %q", opts.Rocm.GfxArch)
	}
	dir := opts.SupportLibDir
	if dir == "" {
		dir = DeviceLibDir()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return backend.Artifact{}, errors.Wrapf(err, "ROCm device-library directory %q is not usable", dir)
	}
	if !info.IsDir() {
		return backend.Artifact{}, errors.Errorf("ROCm device-library path %q is not a directory", dir)
	}
	glog.V(1).Infof("amdgpu: lowering module %q for %s (device libs: %s)", m.Name, opts.Rocm, dir)

	m.Optimize()
	image, err := emitHsaco(m, opts.Rocm.GfxArch, flags)
	if err != nil {
		return backend.Artifact{}, errors.Wrapf(err, "HSACO emission for module %q", m.Name)
	}
	return backend.Artifact{Kind: backend.BinaryImage, Image: image}, nil
}
