// Package device models the GPU the compiler targets: fixed capability
// limits for one reference device plus the compute-capability identity each
// backend family keys codegen on. No live device is ever queried; the values
// are descriptive constants.
package device

import "fmt"

// GPUDeviceInfo holds the hardware limits codegen decisions depend on
// (launch bounds, shared memory budgeting, warp-size-dependent lowering).
// All fields are positive.
type GPUDeviceInfo struct {
	ThreadsPerBlockLimit int
	ThreadsPerWarp       int
	SharedMemoryPerBlock int
	CoreCount            int
	ThreadsPerCoreLimit  int
	BlockDimLimitX       int
	BlockDimLimitY       int
	BlockDimLimitZ       int
}

// V100DeviceInfo returns the reference device profile the tool compiles for,
// an NVIDIA V100. Deterministic, no hardware probe.
func V100DeviceInfo() GPUDeviceInfo {
	return GPUDeviceInfo{
		ThreadsPerBlockLimit: 1024,
		ThreadsPerWarp:       32,
		SharedMemoryPerBlock: 49152,
		CoreCount:            80,
		ThreadsPerCoreLimit:  2048,
		BlockDimLimitX:       2147483647,
		BlockDimLimitY:       65535,
		BlockDimLimitZ:       65535,
	}
}

// PlatformID identifies the platform family a pipeline invocation targets.
type PlatformID string

// Platform identifiers.
const (
	PlatformCUDA PlatformID = "cuda"
	PlatformROCm PlatformID = "rocm"
)

// CudaComputeCapability is the numeric-versioned compute capability used by
// the NVPTX backend family.
type CudaComputeCapability struct {
	Major int
	Minor int
}

// CudaComputeCapabilityFromSM splits a two-digit SM number into a
// major/minor pair: 75 becomes {7, 5}.
func CudaComputeCapabilityFromSM(sm int) CudaComputeCapability {
	return CudaComputeCapability{Major: sm / 10, Minor: sm % 10}
}

// String renders the capability as an SM target name, e.g. "sm_70".
func (cc CudaComputeCapability) String() string {
	return fmt.Sprintf("sm_%d%d", cc.Major, cc.Minor)
}

// RocmComputeCapability is the named-architecture compute capability used by
// the AMDGPU backend family.
type RocmComputeCapability struct {
	GfxArch string
}

// DefaultRocmComputeCapability is the architecture the tool models when the
// AMDGPU backend is linked. The NVPTX build constructs it too but never
// reads it.
func DefaultRocmComputeCapability() RocmComputeCapability {
	return RocmComputeCapability{GfxArch: "gfx908"}
}

func (cc RocmComputeCapability) String() string {
	return cc.GfxArch
}
