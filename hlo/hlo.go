// Copyright 2026 Lumen GPU Compiler. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package hlo exposes the HLO text loader: it parses one linear-algebra
// computation graph from its textual form into the in-memory module the
// compilation pipeline consumes.
//
// Example:
//
//	mod, err := hlo.ParseModule(text)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(mod.Name)
package hlo

import (
	"github.com/lumen-gpu/lumen/internal/hlo"
)

// Module is one loaded HLO module.
type Module = hlo.Module

// Computation is a named instruction sequence inside a module.
type Computation = hlo.Computation

// Instruction is one node of the computation graph.
type Instruction = hlo.Instruction

// Shape is an element type plus dimensions.
type Shape = hlo.Shape

// ParseError describes a malformed module text, with the offending line.
type ParseError = hlo.ParseError

// ParseModule parses one HLO module text.
func ParseModule(text string) (*Module, error) {
	return hlo.ParseModule(text)
}
