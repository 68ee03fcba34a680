package hlo

import (
	"fmt"
	"strconv"
	"strings"
)

// HLO module text:
// HloModule <name>
//
// [ENTRY] <name> {
//   <id> = <dtype>[dims] <opcode>(<operands>)
//   ROOT <id> = ...
// }

// ParseError describes a malformed module text, with the offending line.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

func parseErrorf(line int, format string, args ...any) error {
	return &ParseError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

// ParseModule parses one HLO module text into a Module. Comments (// to end
// of line) and blank lines are ignored. The module must contain at least one
// computation, each computation exactly one ROOT, and the entry computation
// is the one marked ENTRY (or the sole computation if none is marked).
func ParseModule(text string) (*Module, error) {
	lines := strings.Split(text, "\n")
	mod := &Module{Entry: -1}

	var cur *Computation
	var curNames map[string]int
	var curEntry bool

	for lineno, raw := range lines {
		line := stripComment(raw)
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		n := lineno + 1

		fields := strings.Fields(line)

		switch {
		case fields[0] == "HloModule":
			if mod.Name != "" {
				return nil, parseErrorf(n, "duplicate HloModule declaration")
			}
			if len(fields) < 2 {
				return nil, parseErrorf(n, "HloModule declaration is missing a name")
			}
			mod.Name = strings.TrimSuffix(fields[1], ",")

		case strings.HasSuffix(line, "{"):
			if cur != nil {
				return nil, parseErrorf(n, "computation %q is not closed", cur.Name)
			}
			header := strings.TrimSpace(strings.TrimSuffix(line, "{"))
			curEntry = false
			if rest, ok := strings.CutPrefix(header, "ENTRY "); ok {
				curEntry = true
				header = strings.TrimSpace(rest)
			}
			if header == "" {
				return nil, parseErrorf(n, "computation is missing a name")
			}
			cur = &Computation{Name: header, Root: -1}
			curNames = make(map[string]int)

		case line == "}":
			if cur == nil {
				return nil, parseErrorf(n, "unexpected } outside a computation")
			}
			if len(cur.Instructions) == 0 {
				return nil, parseErrorf(n, "computation %q has no instructions", cur.Name)
			}
			if cur.Root < 0 {
				return nil, parseErrorf(n, "computation %q has no ROOT instruction", cur.Name)
			}
			if curEntry {
				if mod.Entry >= 0 {
					return nil, parseErrorf(n, "multiple ENTRY computations")
				}
				mod.Entry = len(mod.Computations)
			}
			mod.Computations = append(mod.Computations, *cur)
			cur = nil

		default:
			if cur == nil {
				return nil, parseErrorf(n, "instruction outside a computation: %q", line)
			}
			inst, isRoot, err := parseInstruction(line, n, curNames)
			if err != nil {
				return nil, err
			}
			if isRoot {
				if cur.Root >= 0 {
					return nil, parseErrorf(n, "computation %q has multiple ROOT instructions", cur.Name)
				}
				cur.Root = len(cur.Instructions)
			}
			if _, dup := curNames[inst.Name]; dup {
				return nil, parseErrorf(n, "duplicate instruction name %q", inst.Name)
			}
			curNames[inst.Name] = len(cur.Instructions)
			cur.Instructions = append(cur.Instructions, inst)
		}
	}

	if cur != nil {
		return nil, parseErrorf(len(lines), "computation %q is not closed", cur.Name)
	}
	if mod.Name == "" {
		return nil, parseErrorf(1, "missing HloModule declaration")
	}
	if len(mod.Computations) == 0 {
		return nil, parseErrorf(len(lines), "module %q has no computations", mod.Name)
	}
	if mod.Entry < 0 {
		if len(mod.Computations) > 1 {
			return nil, parseErrorf(len(lines), "module %q has no ENTRY computation", mod.Name)
		}
		mod.Entry = 0
	}
	return mod, nil
}

// parseInstruction parses one "<id> = <shape> <opcode>(<args>)" line.
func parseInstruction(line string, lineno int, names map[string]int) (Instruction, bool, error) {
	var inst Instruction

	isRoot := false
	if rest, ok := strings.CutPrefix(line, "ROOT "); ok {
		isRoot = true
		line = strings.TrimSpace(rest)
	}

	name, rhs, ok := strings.Cut(line, "=")
	if !ok {
		return inst, false, parseErrorf(lineno, "instruction is missing '=': %q", line)
	}
	inst.Name = strings.TrimSpace(name)
	if inst.Name == "" {
		return inst, false, parseErrorf(lineno, "instruction has an empty name")
	}
	rhs = strings.TrimSpace(rhs)

	shapeText, rest, ok := strings.Cut(rhs, " ")
	if !ok {
		return inst, false, parseErrorf(lineno, "instruction %q is missing an opcode", inst.Name)
	}
	shape, err := parseShape(shapeText)
	if err != nil {
		return inst, false, parseErrorf(lineno, "instruction %q: %v", inst.Name, err)
	}
	inst.Shape = shape

	rest = strings.TrimSpace(rest)
	open := strings.IndexByte(rest, '(')
	if open < 0 || !strings.HasSuffix(rest, ")") {
		return inst, false, parseErrorf(lineno, "instruction %q has malformed operands", inst.Name)
	}
	inst.Opcode = Opcode(strings.TrimSpace(rest[:open]))
	args := rest[open+1 : len(rest)-1]

	want, known := arity[inst.Opcode]
	if !known {
		return inst, false, parseErrorf(lineno, "unknown opcode %q", inst.Opcode)
	}

	switch inst.Opcode {
	case OpParameter:
		idx, err := strconv.Atoi(strings.TrimSpace(args))
		if err != nil || idx < 0 {
			return inst, false, parseErrorf(lineno, "parameter %q has an invalid parameter number %q", inst.Name, args)
		}
		inst.ParamIndex = idx
	case OpConstant:
		inst.Literal = strings.TrimSpace(args)
	default:
		operands := splitOperands(args)
		if len(operands) != want {
			return inst, false, parseErrorf(lineno, "%s expects %d operands, got %d", inst.Opcode, want, len(operands))
		}
		for _, op := range operands {
			idx, ok := names[op]
			if !ok {
				return inst, false, parseErrorf(lineno, "instruction %q uses undefined operand %q", inst.Name, op)
			}
			inst.Operands = append(inst.Operands, idx)
		}
	}
	return inst, isRoot, nil
}

// parseShape parses "<dtype>[d0,d1,...]"; "f32[]" is a scalar.
func parseShape(s string) (Shape, error) {
	open := strings.IndexByte(s, '[')
	if open < 0 || !strings.HasSuffix(s, "]") {
		return Shape{}, fmt.Errorf("malformed shape %q", s)
	}
	dtype := DType(s[:open])
	switch dtype {
	case F32, F16, S32, Pred:
	default:
		return Shape{}, fmt.Errorf("unsupported element type %q", string(dtype))
	}
	shape := Shape{DType: dtype}
	dims := s[open+1 : len(s)-1]
	if dims == "" {
		return shape, nil
	}
	for _, d := range strings.Split(dims, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(d), 10, 64)
		if err != nil || v <= 0 {
			return Shape{}, fmt.Errorf("invalid dimension %q in shape %q", d, s)
		}
		shape.Dims = append(shape.Dims, v)
	}
	return shape, nil
}

func splitOperands(args string) []string {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	parts := strings.Split(args, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// stripComment removes a // comment from a line. Shapes and operand lists
// never contain string literals, so a plain scan is enough.
func stripComment(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		return line[:i]
	}
	return line
}
