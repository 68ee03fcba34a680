// Package llvmir models the LLVM IR modules the compilation pipeline
// produces: a small SSA instruction set, a builder, a textual printer
// matching LLVM assembly syntax, and the optimization passes device
// lowering runs before emission.
//
// Kernels here are straight-line scalar functions over one element index
// obtained from a thread-id intrinsic; that is all the IR emitter for the
// supported HLO opcodes needs.
package llvmir
