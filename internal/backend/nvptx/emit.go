package nvptx

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/lumen-gpu/lumen/internal/device"
	"github.com/lumen-gpu/lumen/internal/llvmir"
)

// ptxVersion is the PTX ISA version the emitter writes. 7.0 covers every
// compute capability the backend accepts.
const ptxVersion = "7.0"

// emitPTX renders an optimized IR module as PTX assembly.
func emitPTX(m *llvmir.Module, cc device.CudaComputeCapability) (string, error) {
	var b strings.Builder
	b.WriteString("//\n// Generated by the Lumen NVPTX backend\n//\n\n")
	fmt.Fprintf(&b, ".version %s\n", ptxVersion)
	fmt.Fprintf(&b, ".target %s\n", cc)
	b.WriteString(".address_size 64\n")

	for _, fn := range m.Functions {
		b.WriteString("\n")
		if err := emitFunction(&b, fn); err != nil {
			return "", errors.Wrapf(err, "function %q", fn.Name)
		}
	}
	return b.String(), nil
}

// regFile hands out PTX virtual registers per class.
type regFile struct {
	r, f, h, rd int
}

func (rf *regFile) next(class string) string {
	switch class {
	case "r":
		rf.r++
		return "%r" + strconv.Itoa(rf.r)
	case "f":
		rf.f++
		return "%f" + strconv.Itoa(rf.f)
	case "h":
		rf.h++
		return "%h" + strconv.Itoa(rf.h)
	default:
		rf.rd++
		return "%rd" + strconv.Itoa(rf.rd)
	}
}

type funcEmitter struct {
	regs regFile
	body []string
	// vals maps IR value refs (%0, %arg0) to PTX operands.
	vals map[string]string
}

func (e *funcEmitter) emitf(format string, args ...any) {
	e.body = append(e.body, fmt.Sprintf(format, args...))
}

func emitFunction(b *strings.Builder, fn *llvmir.Function) error {
	e := &funcEmitter{vals: map[string]string{}}

	// Kernel parameters arrive as .u64 params, converted to global pointers.
	for i, p := range fn.Params {
		raw := e.regs.next("rd")
		global := e.regs.next("rd")
		e.emitf("ld.param.u64 \t%s, [%s_param_%d];", raw, fn.Name, i)
		e.emitf("cvta.to.global.u64 \t%s, %s;", global, raw)
		e.vals["%"+p.Name] = global
	}

	for _, inst := range fn.Instructions {
		if err := e.emitInstruction(inst); err != nil {
			return err
		}
	}

	params := make([]string, len(fn.Params))
	for i := range fn.Params {
		params[i] = fmt.Sprintf("\t.param .u64 %s_param_%d", fn.Name, i)
	}
	fmt.Fprintf(b, ".visible .entry %s(\n%s\n)\n{\n", fn.Name, strings.Join(params, ",\n"))
	if e.regs.r > 0 {
		fmt.Fprintf(b, "\t.reg .b32 \t%%r<%d>;\n", e.regs.r+1)
	}
	if e.regs.f > 0 {
		fmt.Fprintf(b, "\t.reg .f32 \t%%f<%d>;\n", e.regs.f+1)
	}
	if e.regs.h > 0 {
		fmt.Fprintf(b, "\t.reg .b16 \t%%h<%d>;\n", e.regs.h+1)
	}
	if e.regs.rd > 0 {
		fmt.Fprintf(b, "\t.reg .b64 \t%%rd<%d>;\n", e.regs.rd+1)
	}
	b.WriteString("\n")
	for _, line := range e.body {
		b.WriteString("\t")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("}\n")
	return nil
}

func (e *funcEmitter) emitInstruction(inst llvmir.Instruction) error {
	switch inst.Kind {
	case llvmir.KindCall:
		return e.emitCall(inst)

	case llvmir.KindBinary:
		op, err := binaryPTXOp(inst.Op, inst.Type)
		if err != nil {
			return err
		}
		dst := e.regs.next(regClass(inst.Type))
		e.emitf("%s \t%s, %s, %s;", op, dst, e.operand(inst.Args[0], inst.Type), e.operand(inst.Args[1], inst.Type))
		e.vals["%"+inst.Result] = dst

	case llvmir.KindUnary:
		if inst.Op != "fneg" {
			return errors.Errorf("no PTX lowering for unary op %q", inst.Op)
		}
		dst := e.regs.next(regClass(inst.Type))
		e.emitf("neg.%s \t%s, %s;", floatSuffix(inst.Type), dst, e.operand(inst.Args[0], inst.Type))
		e.vals["%"+inst.Result] = dst

	case llvmir.KindGEP:
		scaled := e.regs.next("rd")
		dst := e.regs.next("rd")
		e.emitf("mul.wide.s32 \t%s, %s, %d;", scaled, e.operand(inst.Args[1], "i32"), elemSize(inst.Type))
		e.emitf("add.s64 \t%s, %s, %s;", dst, e.operand(inst.Args[0], "ptr"), scaled)
		e.vals["%"+inst.Result] = dst

	case llvmir.KindLoad:
		dst := e.regs.next(regClass(inst.Type))
		e.emitf("ld.global.%s \t%s, [%s];", memSuffix(inst.Type), dst, e.operand(inst.Args[0], "ptr"))
		e.vals["%"+inst.Result] = dst

	case llvmir.KindStore:
		src, err := e.ensureReg(inst.Args[0], inst.Type)
		if err != nil {
			return err
		}
		e.emitf("st.global.%s \t[%s], %s;", memSuffix(inst.Type), e.operand(inst.Args[1], "ptr"), src)

	case llvmir.KindRet:
		e.emitf("ret;")
	}
	return nil
}

func (e *funcEmitter) emitCall(inst llvmir.Instruction) error {
	callee := inst.Op
	switch {
	case strings.Contains(callee, "tid") || strings.Contains(callee, "workitem"):
		dst := e.regs.next("r")
		e.emitf("mov.u32 \t%s, %%tid.x;", dst)
		e.vals["%"+inst.Result] = dst

	case strings.HasPrefix(callee, "llvm.maxnum") || strings.HasPrefix(callee, "llvm.minnum"):
		op := "max"
		if strings.HasPrefix(callee, "llvm.minnum") {
			op = "min"
		}
		dst := e.regs.next(regClass(inst.Type))
		e.emitf("%s.%s \t%s, %s, %s;", op, floatSuffix(inst.Type), dst,
			e.operand(inst.Args[0], inst.Type), e.operand(inst.Args[1], inst.Type))
		e.vals["%"+inst.Result] = dst

	case callee == "llvm.smax.i32" || callee == "llvm.smin.i32":
		op := "max"
		if callee == "llvm.smin.i32" {
			op = "min"
		}
		dst := e.regs.next("r")
		e.emitf("%s.s32 \t%s, %s, %s;", op, dst,
			e.operand(inst.Args[0], inst.Type), e.operand(inst.Args[1], inst.Type))
		e.vals["%"+inst.Result] = dst

	case strings.HasPrefix(callee, "llvm.exp."):
		if inst.Type != "float" {
			return errors.Errorf("%s exponential has no PTX lowering", inst.Type)
		}
		// exp(x) = 2^(x * log2 e); ex2 is the hardware primitive.
		scaled := e.regs.next("f")
		dst := e.regs.next("f")
		e.emitf("mul.f32 \t%s, %s, 0f3FB8AA3B;", scaled, e.operand(inst.Args[0], "float"))
		e.emitf("ex2.approx.f32 \t%s, %s;", dst, scaled)
		e.vals["%"+inst.Result] = dst

	case callee == "__nv_tanhf":
		if inst.Type != "float" {
			return errors.Errorf("%s tanh has no PTX lowering", inst.Type)
		}
		dst := e.regs.next("f")
		e.emitf("tanh.approx.f32 \t%s, %s;", dst, e.operand(inst.Args[0], "float"))
		e.vals["%"+inst.Result] = dst

	default:
		return errors.Errorf("no PTX lowering for call to %q", callee)
	}
	return nil
}

// operand resolves an IR value reference to its PTX operand, converting
// float literals to PTX hex form.
func (e *funcEmitter) operand(ref, typ string) string {
	if op, ok := e.vals[ref]; ok {
		return op
	}
	if typ == "float" || typ == "half" {
		if v, err := strconv.ParseFloat(ref, 32); err == nil {
			return fmt.Sprintf("0f%08X", math.Float32bits(float32(v)))
		}
	}
	return ref
}

// ensureReg materializes a literal into a register; stores cannot take an
// immediate source.
func (e *funcEmitter) ensureReg(ref, typ string) (string, error) {
	op := e.operand(ref, typ)
	if strings.HasPrefix(op, "%") {
		return op, nil
	}
	dst := e.regs.next(regClass(typ))
	switch typ {
	case "float":
		e.emitf("mov.f32 \t%s, %s;", dst, op)
	case "half":
		e.emitf("mov.b16 \t%s, %s;", dst, op)
	case "i32", "i1":
		e.emitf("mov.u32 \t%s, %s;", dst, op)
	default:
		return "", errors.Errorf("cannot materialize literal of type %q", typ)
	}
	return dst, nil
}

func regClass(typ string) string {
	switch typ {
	case "float":
		return "f"
	case "half":
		return "h"
	default:
		return "r"
	}
}

func floatSuffix(typ string) string {
	if typ == "half" {
		return "f16"
	}
	return "f32"
}

func memSuffix(typ string) string {
	switch typ {
	case "float":
		return "f32"
	case "half":
		return "b16"
	case "i1":
		return "u8"
	default:
		return "u32"
	}
}

func elemSize(typ string) int {
	switch typ {
	case "half":
		return 2
	case "i1":
		return 1
	default:
		return 4
	}
}

func binaryPTXOp(op, typ string) (string, error) {
	if typ == "float" || typ == "half" {
		suffix := floatSuffix(typ)
		switch op {
		case "fadd":
			return "add." + suffix, nil
		case "fsub":
			return "sub." + suffix, nil
		case "fmul":
			return "mul." + suffix, nil
		case "fdiv":
			if typ == "half" {
				return "", errors.Errorf("f16 divide has no PTX lowering")
			}
			return "div.rn.f32", nil
		}
	}
	switch op {
	case "add":
		return "add.s32", nil
	case "sub":
		return "sub.s32", nil
	case "mul":
		return "mul.lo.s32", nil
	case "sdiv":
		return "div.s32", nil
	}
	return "", errors.Errorf("no PTX lowering for %s.%s", op, typ)
}
