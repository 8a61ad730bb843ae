package irtext

import (
	"errors"
	"fmt"

	"github.com/raymyers/lowgen/pkg/ir"
)

// ErrParse wraps all errors produced while reading IR text.
var ErrParse = errors.New("irtext: parse error")

// Module is the result of parsing one source text: function definitions plus
// the signatures of declared external functions.
type Module struct {
	Funcs []*ir.Function
	Decls map[string]*ir.Sig
}

// Parse reads IR text into a Module. defaultConv fills in the calling
// convention for headers that omit one; pass "" to require it.
func Parse(src, defaultConv string) (*Module, error) {
	p := NewParser(src)
	p.DefaultConv = defaultConv
	am := p.parseModule()
	if len(p.errors) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrParse, p.errors[0])
	}
	return build(am)
}

// ParseFunction reads a text containing exactly one function.
func ParseFunction(src, defaultConv string) (*ir.Function, error) {
	m, err := Parse(src, defaultConv)
	if err != nil {
		return nil, err
	}
	if len(m.Funcs) != 1 {
		return nil, fmt.Errorf("%w: expected 1 function, found %d", ErrParse, len(m.Funcs))
	}
	return m.Funcs[0], nil
}

func build(am *astModule) (*Module, error) {
	m := &Module{Decls: map[string]*ir.Sig{}}
	for _, d := range am.decls {
		sig, err := buildSig(d)
		if err != nil {
			return nil, err
		}
		m.Decls[d.name] = sig
	}
	// Definitions are callable too, in any order.
	for _, f := range am.funcs {
		sig, err := buildSig(f.astDecl)
		if err != nil {
			return nil, err
		}
		m.Decls[f.name] = sig
	}
	for _, f := range am.funcs {
		fn, err := buildFunc(f, m.Decls)
		if err != nil {
			return nil, err
		}
		m.Funcs = append(m.Funcs, fn)
	}
	return m, nil
}

func buildSig(d astDecl) (*ir.Sig, error) {
	sig := &ir.Sig{Conv: d.conv}
	for _, sp := range d.params {
		ty, err := ir.ParseType(sp.ty)
		if err != nil {
			return nil, fmt.Errorf("%w: function %%%s: %v", ErrParse, d.name, err)
		}
		sig.Params = append(sig.Params, ir.Param{Ty: ty, Signed: sp.signed})
	}
	for _, sp := range d.results {
		ty, err := ir.ParseType(sp.ty)
		if err != nil {
			return nil, fmt.Errorf("%w: function %%%s: %v", ErrParse, d.name, err)
		}
		sig.Results = append(sig.Results, ir.Param{Ty: ty, Signed: sp.signed})
	}
	return sig, nil
}

// builder resolves one function's names to IR entities.
type builder struct {
	fn     *ir.Function
	decls  map[string]*ir.Sig
	blocks map[string]ir.Block
	vals   map[string]ir.Value
}

func buildFunc(af astFunc, decls map[string]*ir.Sig) (*ir.Function, error) {
	sig, err := buildSig(af.astDecl)
	if err != nil {
		return nil, err
	}
	b := &builder{
		fn:     ir.NewFunction(af.name, *sig),
		decls:  decls,
		blocks: map[string]ir.Block{},
		vals:   map[string]ir.Value{},
	}

	// All blocks and their parameter values exist before any instruction is
	// built, so branches may reference blocks textually ahead.
	for _, ab := range af.blocks {
		if _, dup := b.blocks[ab.name]; dup {
			return nil, b.errf(ab.line, "duplicate block %s", ab.name)
		}
		tys := make([]ir.Type, len(ab.params))
		for i, bp := range ab.params {
			ty, err := ir.ParseType(bp.ty)
			if err != nil {
				return nil, b.errf(ab.line, "%v", err)
			}
			tys[i] = ty
		}
		blk := b.fn.AddBlock(tys...)
		b.blocks[ab.name] = blk
		for i, bp := range ab.params {
			if _, dup := b.vals[bp.name]; dup {
				return nil, b.errf(ab.line, "duplicate value %s", bp.name)
			}
			b.vals[bp.name] = b.fn.BlockParams(blk)[i]
		}
	}

	for _, ab := range af.blocks {
		for _, inst := range ab.insts {
			if err := b.buildInst(b.blocks[ab.name], inst); err != nil {
				return nil, err
			}
		}
	}
	return b.fn, nil
}

func (b *builder) errf(line int, format string, args ...any) error {
	prefix := fmt.Sprintf("%%%s: line %d: ", b.fn.Name, line)
	return fmt.Errorf("%w: %s", ErrParse, prefix+fmt.Sprintf(format, args...))
}

func (b *builder) value(line int, name string) (ir.Value, error) {
	v, ok := b.vals[name]
	if !ok {
		return ir.NoValue, b.errf(line, "undefined value %s", name)
	}
	return v, nil
}

func (b *builder) values(line int, names []string) ([]ir.Value, error) {
	out := make([]ir.Value, len(names))
	for i, n := range names {
		v, err := b.value(line, n)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (b *builder) target(line int, t astTarget) (ir.Target, error) {
	blk, ok := b.blocks[t.block]
	if !ok {
		return ir.Target{}, b.errf(line, "undefined block %s", t.block)
	}
	args, err := b.values(line, t.args)
	if err != nil {
		return ir.Target{}, err
	}
	return ir.Target{Block: blk, Args: args}, nil
}

func (b *builder) suffixType(inst astInst) (ir.Type, error) {
	if inst.suffix == "" {
		return ir.Invalid, b.errf(inst.line, "%s requires a type suffix", inst.op)
	}
	ty, err := ir.ParseType(inst.suffix)
	if err != nil {
		return ir.Invalid, b.errf(inst.line, "%v", err)
	}
	return ty, nil
}

func intType(bits uint) (ir.Type, error) {
	return ir.ParseType(fmt.Sprintf("i%d", bits))
}

func (b *builder) buildInst(blk ir.Block, inst astInst) error {
	op, ok := ir.OpcodeByName(inst.op)
	if !ok {
		return b.errf(inst.line, "unknown opcode %s", inst.op)
	}
	data := ir.InstData{Op: op, Imm: inst.imm, Offset: inst.off}

	args, err := b.values(inst.line, inst.args)
	if err != nil {
		return err
	}
	data.Args = args

	var resultTys []ir.Type
	switch op {
	case ir.OpIconst, ir.OpUextend, ir.OpSextend, ir.OpIreduce, ir.OpLoad:
		ty, err := b.suffixType(inst)
		if err != nil {
			return err
		}
		resultTys = []ir.Type{ty}

	case ir.OpIcmp:
		cond, ok := ir.CondByName(inst.cond)
		if !ok {
			return b.errf(inst.line, "unknown condition %s", inst.cond)
		}
		data.Cond = cond
		resultTys = []ir.Type{ir.I8}

	case ir.OpIconcat:
		if len(args) != 2 {
			return b.errf(inst.line, "iconcat takes 2 operands")
		}
		ty, err := intType(b.fn.ValueType(args[0]).Bits() * 2)
		if err != nil {
			return b.errf(inst.line, "%v", err)
		}
		resultTys = []ir.Type{ty}

	case ir.OpIsplit:
		if len(args) != 1 {
			return b.errf(inst.line, "isplit takes 1 operand")
		}
		half, err := intType(b.fn.ValueType(args[0]).Bits() / 2)
		if err != nil {
			return b.errf(inst.line, "%v", err)
		}
		resultTys = []ir.Type{half, half}

	case ir.OpSelect:
		if len(args) != 3 {
			return b.errf(inst.line, "select takes 3 operands")
		}
		resultTys = []ir.Type{b.fn.ValueType(args[1])}

	case ir.OpCall:
		sig, ok := b.decls[inst.callee]
		if !ok {
			return b.errf(inst.line, "call to undeclared function %%%s", inst.callee)
		}
		data.Callee = inst.callee
		data.CallSig = sig
		for _, r := range sig.Results {
			resultTys = append(resultTys, r.Ty)
		}

	case ir.OpJump:
		t, err := b.target(inst.line, inst.targets[0])
		if err != nil {
			return err
		}
		data.Targets = []ir.Target{t}

	case ir.OpBrif:
		for _, at := range inst.targets {
			t, err := b.target(inst.line, at)
			if err != nil {
				return err
			}
			data.Targets = append(data.Targets, t)
		}

	case ir.OpTrap:
		code, ok := ir.TrapCodeByName(inst.trap)
		if !ok {
			return b.errf(inst.line, "unknown trap code %s", inst.trap)
		}
		data.Trap = code

	case ir.OpReturn, ir.OpStore:
		// No results.

	default:
		// Arithmetic, logic, shifts and bit counts take the first operand's
		// type.
		if len(args) == 0 {
			return b.errf(inst.line, "%s takes at least 1 operand", inst.op)
		}
		resultTys = []ir.Type{b.fn.ValueType(args[0])}
	}

	if len(inst.results) != len(resultTys) {
		return b.errf(inst.line, "%s defines %d values, got %d names",
			inst.op, len(resultTys), len(inst.results))
	}
	vals := b.fn.Append(blk, data, resultTys...)
	for i, name := range inst.results {
		if _, dup := b.vals[name]; dup {
			return b.errf(inst.line, "duplicate value %s", name)
		}
		b.vals[name] = vals[i]
	}
	return nil
}
