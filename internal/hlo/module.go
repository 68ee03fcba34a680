package hlo

import (
	"sort"
	"strconv"
	"strings"
)

// DType is an HLO element type.
type DType string

// Element types accepted by the loader.
const (
	F32  DType = "f32"
	F16  DType = "f16"
	S32  DType = "s32"
	Pred DType = "pred"
)

// Opcode identifies an HLO instruction.
type Opcode string

// Opcodes known to the loader.
const (
	OpParameter   Opcode = "parameter"
	OpConstant    Opcode = "constant"
	OpAdd         Opcode = "add"
	OpSubtract    Opcode = "subtract"
	OpMultiply    Opcode = "multiply"
	OpDivide      Opcode = "divide"
	OpMaximum     Opcode = "maximum"
	OpMinimum     Opcode = "minimum"
	OpNegate      Opcode = "negate"
	OpExponential Opcode = "exponential"
	OpTanh        Opcode = "tanh"
	OpCopy        Opcode = "copy"
)

// arity maps every known opcode to its operand count.
// parameter and constant take no tensor operands.
var arity = map[Opcode]int{
	OpParameter:   0,
	OpConstant:    0,
	OpAdd:         2,
	OpSubtract:    2,
	OpMultiply:    2,
	OpDivide:      2,
	OpMaximum:     2,
	OpMinimum:     2,
	OpNegate:      1,
	OpExponential: 1,
	OpTanh:        1,
	OpCopy:        1,
}

// DeviceTargetable reports whether an instruction with this opcode is code
// generated for the device. parameter and constant only describe inputs; the
// remaining opcodes lower to device math.
func (op Opcode) DeviceTargetable() bool {
	n, ok := arity[op]
	return ok && n > 0
}

// Shape is an element type plus dimensions. A scalar has no dimensions.
type Shape struct {
	DType DType
	Dims  []int64
}

// Elements returns the element count of the shape (1 for a scalar).
func (s Shape) Elements() int64 {
	n := int64(1)
	for _, d := range s.Dims {
		n *= d
	}
	return n
}

// String renders the shape the way HLO text spells it, e.g. "f32[4,8]".
func (s Shape) String() string {
	if len(s.Dims) == 0 {
		return string(s.DType) + "[]"
	}
	dims := make([]string, len(s.Dims))
	for i, d := range s.Dims {
		dims[i] = strconv.FormatInt(d, 10)
	}
	return string(s.DType) + "[" + strings.Join(dims, ",") + "]"
}

// Instruction is one node of the computation graph. Operands are indices
// into the owning Computation's Instructions slice, in program order.
type Instruction struct {
	Name     string
	Shape    Shape
	Opcode   Opcode
	Operands []int

	// Parameter number for OpParameter instructions.
	ParamIndex int
	// Literal text for OpConstant instructions, kept verbatim.
	Literal string
}

// Computation is a named sequence of instructions ending in a ROOT.
type Computation struct {
	Name         string
	Instructions []Instruction
	Root         int // index of the ROOT instruction
}

// Parameters returns the computation's parameter instructions in parameter
// number order.
func (c *Computation) Parameters() []Instruction {
	var params []Instruction
	for _, inst := range c.Instructions {
		if inst.Opcode == OpParameter {
			params = append(params, inst)
		}
	}
	sort.Slice(params, func(i, j int) bool {
		return params[i].ParamIndex < params[j].ParamIndex
	})
	return params
}

// Module is one loaded HLO module: a name plus its computations. Entry is an
// index into Computations.
type Module struct {
	Name         string
	Computations []Computation
	Entry        int
}

// EntryComputation returns the module's entry computation.
func (m *Module) EntryComputation() *Computation {
	return &m.Computations[m.Entry]
}
