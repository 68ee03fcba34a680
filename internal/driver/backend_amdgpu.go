//go:build amdgpu

package driver

import (
	"github.com/lumen-gpu/lumen/internal/backend"
	"github.com/lumen-gpu/lumen/internal/backend/amdgpu"
)

// defaultBackend selects the device-lowering family linked into this build.
func defaultBackend() backend.Backend {
	return amdgpu.New()
}
