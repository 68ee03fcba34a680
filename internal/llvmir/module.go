package llvmir

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// OpKind classifies an instruction for printing and optimization.
type OpKind int

const (
	KindCall   OpKind = iota // call to an intrinsic or device-library function
	KindBinary               // fadd, fsub, fmul, fdiv
	KindUnary                // fneg
	KindGEP                  // getelementptr
	KindLoad
	KindStore
	KindRet
)

// Instruction is one SSA instruction. Result is the register name without
// the leading %, empty when the instruction produces no value. Args hold
// rendered operands: registers ("%3"), literals ("2.5"), or parameter names
// ("%arg0").
type Instruction struct {
	Kind   OpKind
	Result string
	Type   string // result type, or the stored value type for KindStore
	Op     string // binary/unary opcode, or callee name for KindCall
	Args   []string
}

// Param is a kernel parameter: device-memory pointers in, one out.
type Param struct {
	Name string
	Type string
}

// Function is one device kernel: a name, its parameters, and a single
// straight-line entry block.
type Function struct {
	Name         string
	Params       []Param
	Instructions []Instruction

	nextReg int
}

// Module is an LLVM IR module under construction or ready to print.
type Module struct {
	Name         string
	TargetTriple string
	DataLayout   string
	Functions    []*Function
}

// NewModule returns an empty module with the given name.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// SetTarget records the module's target triple and data layout.
func (m *Module) SetTarget(triple, layout string) {
	m.TargetTriple = triple
	m.DataLayout = layout
}

// NewKernel appends a void kernel function with the given parameters and
// returns it for instruction emission.
func (m *Module) NewKernel(name string, params []Param) *Function {
	fn := &Function{Name: name, Params: params}
	m.Functions = append(m.Functions, fn)
	return fn
}

// Empty reports whether the module holds no functions, i.e. nothing in the
// source program was device-targetable.
func (m *Module) Empty() bool {
	return len(m.Functions) == 0
}

func (f *Function) newReg() string {
	r := strconv.Itoa(f.nextReg)
	f.nextReg++
	return r
}

// Call emits a call instruction and returns the result register reference.
func (f *Function) Call(typ, callee string, args ...string) string {
	r := f.newReg()
	f.Instructions = append(f.Instructions, Instruction{
		Kind: KindCall, Result: r, Type: typ, Op: callee, Args: args,
	})
	return "%" + r
}

// Binary emits a two-operand arithmetic instruction (fadd, fmul, ...).
func (f *Function) Binary(op, typ, a, b string) string {
	r := f.newReg()
	f.Instructions = append(f.Instructions, Instruction{
		Kind: KindBinary, Result: r, Type: typ, Op: op, Args: []string{a, b},
	})
	return "%" + r
}

// Unary emits a one-operand instruction (fneg).
func (f *Function) Unary(op, typ, a string) string {
	r := f.newReg()
	f.Instructions = append(f.Instructions, Instruction{
		Kind: KindUnary, Result: r, Type: typ, Op: op, Args: []string{a},
	})
	return "%" + r
}

// GEP emits a getelementptr over a flat element array.
func (f *Function) GEP(elemType, ptr, index string) string {
	r := f.newReg()
	f.Instructions = append(f.Instructions, Instruction{
		Kind: KindGEP, Result: r, Type: elemType, Args: []string{ptr, index},
	})
	return "%" + r
}

// Load emits a load of elemType through ptr.
func (f *Function) Load(elemType, ptr string) string {
	r := f.newReg()
	f.Instructions = append(f.Instructions, Instruction{
		Kind: KindLoad, Result: r, Type: elemType, Args: []string{ptr},
	})
	return "%" + r
}

// Store emits a store of val through ptr.
func (f *Function) Store(elemType, val, ptr string) {
	f.Instructions = append(f.Instructions, Instruction{
		Kind: KindStore, Type: elemType, Args: []string{val, ptr},
	})
}

// Ret emits the terminating ret void.
func (f *Function) Ret() {
	f.Instructions = append(f.Instructions, Instruction{Kind: KindRet})
}

// String renders the module as LLVM assembly text.
func (m *Module) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "; ModuleID = '%s'\n", m.Name)
	fmt.Fprintf(&b, "source_filename = %q\n", m.Name)
	if m.DataLayout != "" {
		fmt.Fprintf(&b, "target datalayout = %q\n", m.DataLayout)
	}
	if m.TargetTriple != "" {
		fmt.Fprintf(&b, "target triple = %q\n", m.TargetTriple)
	}

	declared := map[string]string{}
	for _, fn := range m.Functions {
		b.WriteString("\n")
		fn.write(&b, declared)
	}

	if len(declared) > 0 {
		names := make([]string, 0, len(declared))
		for name := range declared {
			names = append(names, name)
		}
		sort.Strings(names)
		b.WriteString("\n")
		for _, name := range names {
			fmt.Fprintf(&b, "declare %s\n", declared[name])
		}
	}
	return b.String()
}

func (f *Function) write(b *strings.Builder, declared map[string]string) {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.Type + " %" + p.Name
	}
	fmt.Fprintf(b, "define void @%s(%s) {\n", f.Name, strings.Join(params, ", "))
	b.WriteString("entry:\n")
	for _, inst := range f.Instructions {
		b.WriteString("  ")
		b.WriteString(inst.render(declared))
		b.WriteString("\n")
	}
	b.WriteString("}\n")
}

func (inst Instruction) render(declared map[string]string) string {
	switch inst.Kind {
	case KindCall:
		args := make([]string, len(inst.Args))
		argTypes := make([]string, len(inst.Args))
		for i, a := range inst.Args {
			args[i] = inst.argType(i) + " " + a
			argTypes[i] = inst.argType(i)
		}
		if declared != nil {
			declared[inst.Op] = fmt.Sprintf("%s @%s(%s)", inst.Type, inst.Op, strings.Join(argTypes, ", "))
		}
		return fmt.Sprintf("%%%s = call %s @%s(%s)", inst.Result, inst.Type, inst.Op, strings.Join(args, ", "))
	case KindBinary:
		return fmt.Sprintf("%%%s = %s %s %s, %s", inst.Result, inst.Op, inst.Type, inst.Args[0], inst.Args[1])
	case KindUnary:
		return fmt.Sprintf("%%%s = %s %s %s", inst.Result, inst.Op, inst.Type, inst.Args[0])
	case KindGEP:
		return fmt.Sprintf("%%%s = getelementptr %s, %s* %s, i32 %s",
			inst.Result, inst.Type, inst.Type, inst.Args[0], inst.Args[1])
	case KindLoad:
		return fmt.Sprintf("%%%s = load %s, %s* %s", inst.Result, inst.Type, inst.Type, inst.Args[0])
	case KindStore:
		return fmt.Sprintf("store %s %s, %s* %s", inst.Type, inst.Args[0], inst.Type, inst.Args[1])
	case KindRet:
		return "ret void"
	}
	return ""
}

// argType gives the type of a call argument. The intrinsics used here take
// arguments of the call's own result type, except the nullary thread-id
// reads, which take none.
func (inst Instruction) argType(int) string {
	return inst.Type
}
