package llvmir

import (
	"strconv"
	"strings"
)

// Optimize runs the pre-emission pass pipeline over every function:
// constant folding followed by dead-code elimination. Stores, calls with
// used results, and the terminator are preserved; everything unreachable
// from them is dropped.
func (m *Module) Optimize() {
	for _, fn := range m.Functions {
		fn.foldConstants()
		fn.eliminateDeadCode()
	}
}

// foldConstants replaces binary float arithmetic over two literal operands
// with a literal, rewriting later uses. The folded instruction is left for
// eliminateDeadCode to collect.
func (f *Function) foldConstants() {
	folded := map[string]string{} // %reg -> literal
	for i := range f.Instructions {
		inst := &f.Instructions[i]
		for j, a := range inst.Args {
			if lit, ok := folded[a]; ok {
				inst.Args[j] = lit
			}
		}
		if inst.Kind != KindBinary || inst.Type != "float" {
			continue
		}
		a, aok := parseFloatLiteral(inst.Args[0])
		b, bok := parseFloatLiteral(inst.Args[1])
		if !aok || !bok {
			continue
		}
		var v float64
		switch inst.Op {
		case "fadd":
			v = a + b
		case "fsub":
			v = a - b
		case "fmul":
			v = a * b
		case "fdiv":
			if b == 0 {
				continue
			}
			v = a / b
		default:
			continue
		}
		folded["%"+inst.Result] = formatFloatLiteral(v)
	}
}

// eliminateDeadCode drops value-producing instructions whose results are
// never used. Iterates to a fixed point so chains of dead values disappear.
func (f *Function) eliminateDeadCode() {
	for {
		used := map[string]bool{}
		for _, inst := range f.Instructions {
			for _, a := range inst.Args {
				used[a] = true
			}
		}
		kept := f.Instructions[:0]
		removed := false
		for _, inst := range f.Instructions {
			dead := inst.Result != "" && !used["%"+inst.Result]
			if dead {
				removed = true
				continue
			}
			kept = append(kept, inst)
		}
		f.Instructions = kept
		if !removed {
			return
		}
	}
}

func parseFloatLiteral(s string) (float64, bool) {
	if strings.HasPrefix(s, "%") {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func formatFloatLiteral(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	// LLVM float literals need a decimal point or exponent.
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
