package irtext

import (
	"fmt"
	"io"
	"strings"

	"github.com/raymyers/lowgen/pkg/ir"
)

// Fprint writes fn in the textual form the parser accepts.
func Fprint(w io.Writer, fn *ir.Function) {
	fmt.Fprintf(w, "function %%%s(%s)%s %s {\n",
		fn.Name, sigParams(fn.Sig.Params), sigResults(fn.Sig.Results), fn.Sig.Conv)
	for bi, b := range fn.Layout() {
		fmt.Fprintf(w, "block%d%s:\n", bi, blockParams(fn, b))
		for _, inst := range fn.BlockInsts(b) {
			fmt.Fprintf(w, "    %s\n", instText(fn, inst))
		}
	}
	fmt.Fprintln(w, "}")
}

// Format returns fn rendered as text.
func Format(fn *ir.Function) string {
	var b strings.Builder
	Fprint(&b, fn)
	return b.String()
}

func sigParams(ps []ir.Param) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.Ty.String()
		if p.Signed {
			parts[i] += " sext"
		}
	}
	return strings.Join(parts, ", ")
}

func sigResults(ps []ir.Param) string {
	if len(ps) == 0 {
		return ""
	}
	return " -> " + sigParams(ps)
}

func blockParams(fn *ir.Function, b ir.Block) string {
	params := fn.BlockParams(b)
	if len(params) == 0 {
		return ""
	}
	parts := make([]string, len(params))
	for i, v := range params {
		parts[i] = fmt.Sprintf("v%d: %s", v, fn.ValueType(v))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func valueList(vs []ir.Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprintf("v%d", v)
	}
	return strings.Join(parts, ", ")
}

func targetText(fn *ir.Function, t ir.Target) string {
	idx := 0
	for i, b := range fn.Layout() {
		if b == t.Block {
			idx = i
			break
		}
	}
	if len(t.Args) == 0 {
		return fmt.Sprintf("block%d", idx)
	}
	return fmt.Sprintf("block%d(%s)", idx, valueList(t.Args))
}

func instText(fn *ir.Function, inst ir.Inst) string {
	d := fn.Data(inst)
	var lhs string
	if len(d.Results) > 0 {
		lhs = valueList(d.Results) + " = "
	}

	switch d.Op {
	case ir.OpIconst:
		return fmt.Sprintf("%s%s.%s %d", lhs, d.Op, fn.ValueType(d.Results[0]), d.Imm)
	case ir.OpUextend, ir.OpSextend, ir.OpIreduce:
		return fmt.Sprintf("%s%s.%s %s", lhs, d.Op, fn.ValueType(d.Results[0]), valueList(d.Args))
	case ir.OpLoad:
		return fmt.Sprintf("%s%s.%s %s%s", lhs, d.Op, fn.ValueType(d.Results[0]), valueList(d.Args), offText(d.Offset))
	case ir.OpStore:
		return fmt.Sprintf("%s %s%s", d.Op, valueList(d.Args), offText(d.Offset))
	case ir.OpIcmp:
		return fmt.Sprintf("%s%s %s %s", lhs, d.Op, d.Cond, valueList(d.Args))
	case ir.OpCall:
		return fmt.Sprintf("%s%s %%%s(%s)", lhs, d.Op, d.Callee, valueList(d.Args))
	case ir.OpJump:
		return fmt.Sprintf("%s %s", d.Op, targetText(fn, d.Targets[0]))
	case ir.OpBrif:
		return fmt.Sprintf("%s %s, %s, %s", d.Op, valueList(d.Args),
			targetText(fn, d.Targets[0]), targetText(fn, d.Targets[1]))
	case ir.OpTrap:
		return fmt.Sprintf("%s %s", d.Op, d.Trap)
	default:
		if len(d.Args) == 0 {
			return lhs + d.Op.String()
		}
		return fmt.Sprintf("%s%s %s", lhs, d.Op, valueList(d.Args))
	}
}

func offText(off int64) string {
	if off == 0 {
		return ""
	}
	return fmt.Sprintf("+%d", off)
}
