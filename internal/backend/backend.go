// Package backend defines the device-lowering contract: a Backend takes an
// unlowered LLVM IR module, optimizes it, and emits the final device code
// artifact for its hardware family. Exactly one family is active per build;
// the selection lives behind build tags in the driver, never in the
// orchestration logic itself.
package backend

import (
	"github.com/lumen-gpu/lumen/internal/device"
	"github.com/lumen-gpu/lumen/internal/llvmir"
)

// ArtifactKind distinguishes the two device-code output formats.
type ArtifactKind int

const (
	// AssemblyText is human-readable device assembly (the NVPTX family).
	AssemblyText ArtifactKind = iota
	// BinaryImage is an opaque code object (the AMDGPU family).
	BinaryImage
)

// Artifact is the final device-code output of one lowering. Exactly one of
// Assembly or Image is populated, according to Kind.
type Artifact struct {
	Kind     ArtifactKind
	Assembly string
	Image    []byte
}

// Options parameterizes one lowering invocation. SupportLibDir overrides the
// backend's device-library search path; when empty the backend resolves its
// own default.
type Options struct {
	Cuda          device.CudaComputeCapability
	Rocm          device.RocmComputeCapability
	DeviceInfo    device.GPUDeviceInfo
	SupportLibDir string
}

// Backend is one device-lowering implementation. It also supplies the
// target metadata the compilation pipeline needs for its family.
type Backend interface {
	// Name identifies the backend family, e.g. "NVPTX".
	Name() string
	// PlatformName is the platform string passed to the pipeline, e.g. "CUDA".
	PlatformName() string
	// PlatformID keys platform-dependent lowering decisions.
	PlatformID() device.PlatformID
	// TargetTriple and DataLayout describe the family's LLVM target.
	TargetTriple() string
	DataLayout() string

	// Lower optimizes the IR module in place and emits the device code
	// artifact. The module must not be reused afterwards.
	Lower(m *llvmir.Module, opts Options) (Artifact, error)
}
