// Package codegen lowers a loaded HLO module to an LLVM IR module. The
// emitted IR covers only the device-targetable portion of the program: the
// entry computation's math lowers to one scalar kernel over a thread index,
// while host-side plumbing (parameter passing, helper computations) emits
// nothing.
package codegen

import (
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/lumen-gpu/lumen/internal/device"
	"github.com/lumen-gpu/lumen/internal/hlo"
	"github.com/lumen-gpu/lumen/internal/llvmir"
)

// TargetConfig carries the per-run target metadata the pipeline is
// parameterized by. It is constant across all program units of a run.
type TargetConfig struct {
	TargetTriple string
	DataLayout   string
	PlatformName string
	PlatformID   device.PlatformID
	PointerSize  int

	DeviceInfo device.GPUDeviceInfo
	Cuda       device.CudaComputeCapability
	Rocm       device.RocmComputeCapability
}

func (cfg TargetConfig) validate() error {
	if cfg.TargetTriple == "" || cfg.PlatformName == "" {
		return errors.New("target triple and platform name must be non-empty")
	}
	if cfg.PointerSize != 8 {
		return errors.Errorf("unsupported pointer size %d, only 64-bit targets are modeled", cfg.PointerSize)
	}
	info := cfg.DeviceInfo
	if info.ThreadsPerBlockLimit <= 0 || info.ThreadsPerWarp <= 0 ||
		info.SharedMemoryPerBlock <= 0 || info.CoreCount <= 0 ||
		info.ThreadsPerCoreLimit <= 0 || info.BlockDimLimitX <= 0 ||
		info.BlockDimLimitY <= 0 || info.BlockDimLimitZ <= 0 {
		return errors.New("device capability fields must all be positive")
	}
	return nil
}

// CompileModuleToIR lowers one HLO module to LLVM IR for the configured
// target. The returned module is owned by the caller.
func CompileModuleToIR(mod *hlo.Module, cfg TargetConfig) (*llvmir.Module, error) {
	if mod == nil {
		return nil, errors.New("nil HLO module")
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid target for module %q", mod.Name)
	}

	out := llvmir.NewModule(mod.Name)
	out.SetTarget(cfg.TargetTriple, cfg.DataLayout)

	entry := mod.EntryComputation()
	if !hasDeviceWork(entry) {
		glog.V(1).Infof("module %q: entry computation %q has no device-targetable instructions",
			mod.Name, entry.Name)
		return out, nil
	}

	e := &emitter{cfg: cfg}
	if err := e.emitKernel(out, entry); err != nil {
		return nil, errors.Wrapf(err, "lowering module %q", mod.Name)
	}
	glog.V(1).Infof("module %q: lowered computation %q for %s", mod.Name, entry.Name, cfg.PlatformName)
	return out, nil
}

func hasDeviceWork(comp *hlo.Computation) bool {
	for _, inst := range comp.Instructions {
		if inst.Opcode.DeviceTargetable() {
			return true
		}
	}
	return false
}

type emitter struct {
	cfg TargetConfig
}

// emitKernel lowers one computation to a scalar kernel: every parameter
// becomes a device pointer argument, each instruction computes one element
// at the thread index, and the ROOT value is stored to the output pointer.
func (e *emitter) emitKernel(out *llvmir.Module, comp *hlo.Computation) error {
	root := comp.Instructions[comp.Root]
	if root.Shape.Elements() > int64(e.cfg.DeviceInfo.BlockDimLimitX)*int64(e.cfg.DeviceInfo.ThreadsPerBlockLimit) {
		return errors.Errorf("computation %q: root shape %s exceeds the device launch grid",
			comp.Name, root.Shape)
	}

	params := comp.Parameters()
	fnParams := make([]llvmir.Param, 0, len(params)+1)
	paramPtr := map[string]string{} // instruction name -> pointer arg
	for i, p := range params {
		arg := "arg" + strconv.Itoa(i)
		elem, err := elemType(p.Shape.DType)
		if err != nil {
			return errors.Wrapf(err, "parameter %q", p.Name)
		}
		fnParams = append(fnParams, llvmir.Param{Name: arg, Type: elem + "*"})
		paramPtr[p.Name] = "%" + arg
	}
	rootElem, err := elemType(root.Shape.DType)
	if err != nil {
		return errors.Wrapf(err, "root %q", root.Name)
	}
	fnParams = append(fnParams, llvmir.Param{Name: "out", Type: rootElem + "*"})

	fn := out.NewKernel(comp.Name+"_kernel", fnParams)
	tid := fn.Call("i32", threadIDIntrinsic(e.cfg.PlatformID))

	values := make([]string, len(comp.Instructions))
	for i, inst := range comp.Instructions {
		v, err := e.emitInstruction(fn, inst, values, tid, paramPtr)
		if err != nil {
			return errors.Wrapf(err, "instruction %q", inst.Name)
		}
		values[i] = v
	}

	outPtr := fn.GEP(rootElem, "%out", tid)
	fn.Store(rootElem, values[comp.Root], outPtr)
	fn.Ret()
	return nil
}

func (e *emitter) emitInstruction(fn *llvmir.Function, inst hlo.Instruction,
	values []string, tid string, paramPtr map[string]string) (string, error) {
	typ, err := elemType(inst.Shape.DType)
	if err != nil {
		return "", err
	}

	switch inst.Opcode {
	case hlo.OpParameter:
		ptr := fn.GEP(typ, paramPtr[inst.Name], tid)
		return fn.Load(typ, ptr), nil

	case hlo.OpConstant:
		return constantLiteral(inst.Shape.DType, inst.Literal)

	case hlo.OpAdd, hlo.OpSubtract, hlo.OpMultiply, hlo.OpDivide:
		op, err := binaryOp(inst.Opcode, inst.Shape.DType)
		if err != nil {
			return "", err
		}
		a := values[inst.Operands[0]]
		b := values[inst.Operands[1]]
		return fn.Binary(op, typ, a, b), nil

	case hlo.OpMaximum, hlo.OpMinimum:
		callee, err := minmaxIntrinsic(inst.Opcode, inst.Shape.DType)
		if err != nil {
			return "", err
		}
		a := values[inst.Operands[0]]
		b := values[inst.Operands[1]]
		return fn.Call(typ, callee, a, b), nil

	case hlo.OpNegate:
		a := values[inst.Operands[0]]
		switch {
		case inst.Shape.DType == hlo.S32:
			return fn.Binary("sub", typ, "0", a), nil
		case isFloat(inst.Shape.DType):
			return fn.Unary("fneg", typ, a), nil
		}
		return "", errors.Errorf("negate is not defined for %s", inst.Shape.DType)

	case hlo.OpExponential:
		// The device math libraries expose only the f32 entry points.
		if inst.Shape.DType != hlo.F32 {
			return "", errors.Errorf("exponential requires f32, got %s", inst.Shape.DType)
		}
		return fn.Call(typ, "llvm.exp.f32", values[inst.Operands[0]]), nil

	case hlo.OpTanh:
		if inst.Shape.DType != hlo.F32 {
			return "", errors.Errorf("tanh requires f32, got %s", inst.Shape.DType)
		}
		return fn.Call(typ, tanhCallee(e.cfg.PlatformID), values[inst.Operands[0]]), nil

	case hlo.OpCopy:
		return values[inst.Operands[0]], nil
	}
	return "", errors.Errorf("opcode %q is not lowered", inst.Opcode)
}

func elemType(dt hlo.DType) (string, error) {
	switch dt {
	case hlo.F32:
		return "float", nil
	case hlo.F16:
		return "half", nil
	case hlo.S32:
		return "i32", nil
	case hlo.Pred:
		return "i1", nil
	}
	return "", errors.Errorf("element type %q has no device lowering", dt)
}

func isFloat(dt hlo.DType) bool {
	return dt == hlo.F32 || dt == hlo.F16
}

func binaryOp(op hlo.Opcode, dt hlo.DType) (string, error) {
	if isFloat(dt) {
		switch op {
		case hlo.OpAdd:
			return "fadd", nil
		case hlo.OpSubtract:
			return "fsub", nil
		case hlo.OpMultiply:
			return "fmul", nil
		case hlo.OpDivide:
			return "fdiv", nil
		}
	}
	if dt == hlo.S32 {
		switch op {
		case hlo.OpAdd:
			return "add", nil
		case hlo.OpSubtract:
			return "sub", nil
		case hlo.OpMultiply:
			return "mul", nil
		case hlo.OpDivide:
			return "sdiv", nil
		}
	}
	return "", errors.Errorf("%s is not defined for %s", op, dt)
}

func minmaxIntrinsic(op hlo.Opcode, dt hlo.DType) (string, error) {
	switch {
	case isFloat(dt) && op == hlo.OpMaximum:
		return "llvm.maxnum." + floatSuffix(dt), nil
	case isFloat(dt) && op == hlo.OpMinimum:
		return "llvm.minnum." + floatSuffix(dt), nil
	case dt == hlo.S32 && op == hlo.OpMaximum:
		return "llvm.smax.i32", nil
	case dt == hlo.S32 && op == hlo.OpMinimum:
		return "llvm.smin.i32", nil
	}
	return "", errors.Errorf("%s is not defined for %s", op, dt)
}

func floatSuffix(dt hlo.DType) string {
	if dt == hlo.F16 {
		return "f16"
	}
	return "f32"
}

// threadIDIntrinsic picks the per-platform thread index read.
func threadIDIntrinsic(id device.PlatformID) string {
	if id == device.PlatformROCm {
		return "llvm.amdgcn.workitem.id.x"
	}
	return "llvm.nvvm.read.ptx.sreg.tid.x"
}

// tanhCallee resolves tanh to the platform's device math library.
func tanhCallee(id device.PlatformID) string {
	if id == device.PlatformROCm {
		return "__ocml_tanh_f32"
	}
	return "__nv_tanhf"
}

// constantLiteral renders an HLO constant literal as an LLVM operand.
func constantLiteral(dt hlo.DType, lit string) (string, error) {
	if isFloat(dt) {
		v, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return "", errors.Errorf("invalid float literal %q", lit)
		}
		s := strconv.FormatFloat(v, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s, nil
	}
	if dt == hlo.S32 {
		if _, err := strconv.ParseInt(lit, 10, 32); err != nil {
			return "", errors.Errorf("invalid integer literal %q", lit)
		}
		return lit, nil
	}
	if dt == hlo.Pred {
		switch lit {
		case "true":
			return "1", nil
		case "false":
			return "0", nil
		}
		return "", errors.Errorf("invalid pred literal %q", lit)
	}
	return "", errors.Errorf("constants of type %s are not lowered", dt)
}
