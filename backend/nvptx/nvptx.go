// Copyright 2026 Lumen GPU Compiler. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package nvptx exposes the assembly-family device lowering: optimized LLVM
// IR in, PTX text out.
package nvptx

import (
	internalnvptx "github.com/lumen-gpu/lumen/internal/backend/nvptx"
)

// Backend is the NVPTX device-lowering backend.
type Backend = internalnvptx.Backend

// New creates an NVPTX backend.
//
// Example:
//
//	be := nvptx.New()
//	art, err := be.Lower(irModule, opts)
func New() *Backend {
	return internalnvptx.New()
}

// LibdeviceDir resolves the CUDA libdevice directory the backend will use
// when no override is given.
func LibdeviceDir() string {
	return internalnvptx.LibdeviceDir()
}
