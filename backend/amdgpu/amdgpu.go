// Copyright 2026 Lumen GPU Compiler. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package amdgpu exposes the binary-family device lowering: optimized LLVM
// IR in, an HSACO code object out.
package amdgpu

import (
	internalamdgpu "github.com/lumen-gpu/lumen/internal/backend/amdgpu"
)

// Backend is the AMDGPU device-lowering backend.
type Backend = internalamdgpu.Backend

// New creates an AMDGPU backend.
func New() *Backend {
	return internalamdgpu.New()
}

// DeviceLibDir resolves the ROCm device-library directory the backend will
// use when no override is given.
func DeviceLibDir() string {
	return internalamdgpu.DeviceLibDir()
}
