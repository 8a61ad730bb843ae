package arm64

import (
	"github.com/raymyers/lowgen/pkg/ir"
	"github.com/raymyers/lowgen/pkg/lower"
	"github.com/raymyers/lowgen/pkg/vcode"
	"github.com/raymyers/lowgen/pkg/wide"
)

// rules is the ARM64 rewrite-rule table, built once at package init and
// read-only afterward. Priorities: 2 for pattern-refined forms (immediate
// folds, fused compares), 1 for the plain register forms; type guards keep
// same-priority rules disjoint.
var rules = buildRules()

func buildRules() *lower.RuleSet {
	rs := lower.NewRuleSet()

	rs.Add(ir.OpIconst, "iconst", 1, lowerIconst)
	rs.Add(ir.OpIconcat, "iconcat", 1, lowerIconcat)
	rs.Add(ir.OpIsplit, "isplit", 1, lowerIsplit)

	rs.Add(ir.OpIadd, "iadd_imm12", 2, rrImm12Rule(opAdd, true))
	rs.Add(ir.OpIadd, "iadd", 1, rrrRule(opAdd))
	rs.Add(ir.OpIadd, "iadd_wide", 1, wideBinCtxRule(wide.Add))
	rs.Add(ir.OpIsub, "isub_imm12", 2, rrImm12Rule(opSub, false))
	rs.Add(ir.OpIsub, "isub", 1, rrrRule(opSub))
	rs.Add(ir.OpIsub, "isub_wide", 1, wideBinCtxRule(wide.Sub))

	rs.Add(ir.OpImul, "imul", 1, rrrRule(opMul))
	rs.Add(ir.OpImul, "imul_wide", 1, wideBinCtxRule(wide.Mul))
	rs.Add(ir.OpUmulhi, "umulhi", 1, rrrRule(opUmulh))
	rs.Add(ir.OpSmulhi, "smulhi", 1, rrrRule(opSmulh))

	rs.Add(ir.OpBand, "band", 1, rrrRule(opAnd))
	rs.Add(ir.OpBand, "band_wide", 1, wideBinRule(wide.Band))
	rs.Add(ir.OpBor, "bor", 1, rrrRule(opOrr))
	rs.Add(ir.OpBor, "bor_wide", 1, wideBinRule(wide.Bor))
	rs.Add(ir.OpBxor, "bxor", 1, rrrRule(opEor))
	rs.Add(ir.OpBxor, "bxor_wide", 1, wideBinRule(wide.Bxor))
	rs.Add(ir.OpBnot, "bnot", 1, lowerBnot)
	rs.Add(ir.OpBnot, "bnot_wide", 1, wideUnRule(wide.Bnot))

	rs.Add(ir.OpIshl, "ishl", 1, shiftRule(opLsl))
	rs.Add(ir.OpIshl, "ishl_wide", 1, wideShiftRule(wide.Shl))
	rs.Add(ir.OpUshr, "ushr", 1, shiftRule(opLsr))
	rs.Add(ir.OpUshr, "ushr_wide", 1, wideShiftRule(wide.UShr))
	rs.Add(ir.OpSshr, "sshr", 1, shiftRule(opAsr))
	rs.Add(ir.OpSshr, "sshr_wide", 1, wideShiftRule(wide.SShr))
	rs.Add(ir.OpRotl, "rotl", 1, lowerRotl)
	rs.Add(ir.OpRotl, "rotl_wide", 1, wideShiftRule(wide.Rotl))
	rs.Add(ir.OpRotr, "rotr", 1, lowerRotr)
	rs.Add(ir.OpRotr, "rotr_wide", 1, wideShiftRule(wide.Rotr))

	rs.Add(ir.OpClz, "clz", 1, lowerClz)
	rs.Add(ir.OpClz, "clz_wide", 1, wideUnRule(wide.Clz))
	rs.Add(ir.OpCtz, "ctz", 1, lowerCtz)
	rs.Add(ir.OpCtz, "ctz_wide", 1, wideUnRule(wide.Ctz))
	rs.Add(ir.OpPopcnt, "popcnt", 1, lowerPopcnt)
	rs.Add(ir.OpPopcnt, "popcnt_wide", 1, wideUnRule(wide.Popcnt))

	rs.Add(ir.OpUextend, "uextend", 1, lowerUextend)
	rs.Add(ir.OpSextend, "sextend", 1, lowerSextend)
	rs.Add(ir.OpIreduce, "ireduce", 1, lowerIreduce)

	rs.Add(ir.OpIcmp, "icmp", 1, lowerIcmp)
	rs.Add(ir.OpIcmp, "icmp_wide", 1, lowerIcmpWide)
	rs.Add(ir.OpSelect, "select_icmp", 2, lowerSelectIcmp)
	rs.Add(ir.OpSelect, "select", 1, lowerSelect)

	rs.Add(ir.OpLoad, "load", 1, lowerLoad)
	rs.Add(ir.OpStore, "store", 1, lowerStore)

	rs.Add(ir.OpUdiv, "udiv", 1, divRule(opUdiv, false))
	rs.Add(ir.OpSdiv, "sdiv", 1, divRule(opSdiv, true))
	rs.Add(ir.OpUrem, "urem", 1, remRule(opUdiv, false))
	rs.Add(ir.OpSrem, "srem", 1, remRule(opSdiv, false))

	rs.Add(ir.OpJump, "jump", 1, lowerJump)
	rs.Add(ir.OpBrif, "brif_icmp", 2, lowerBrifIcmp)
	rs.Add(ir.OpBrif, "brif", 1, lowerBrif)
	rs.Add(ir.OpCall, "call", 1, lowerCall)
	rs.Add(ir.OpReturn, "return", 1, lowerReturn)
	rs.Add(ir.OpTrap, "trap", 1, lowerTrap)

	return rs
}

func resTy(c *lower.Ctx, i ir.Inst) ir.Type {
	d := c.Fn.Data(i)
	if len(d.Results) == 0 {
		return ir.Invalid
	}
	return c.Fn.ValueType(d.Results[0])
}

func intUpTo64(ty ir.Type) bool { return ty.IsInt() && ty.Bits() <= 64 }
func isWide(ty ir.Type) bool    { return ty.IsInt() && ty.Bits() == 2*wordBits }

func moveGroup(c *lower.Ctx, dst, src vcode.RegGroup) {
	for i := 0; i < dst.Len(); i++ {
		c.Emit(MovRR{Rd: dst.Reg(i), Rm: src.Reg(i)})
	}
}

// --- constants and group plumbing ---

func lowerIconst(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	if !intUpTo64(resTy(c, i)) {
		return nil, false
	}
	rd := c.OutReg(i)
	loadConst(c, rd, uint64(c.Fn.Data(i).Imm))
	return vcode.Out1(vcode.One(rd)), true
}

func lowerIconcat(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	d := c.Fn.Data(i)
	dst := c.OutRegs(i)[0]
	c.Emit(MovRR{Rd: dst.Reg(0), Rm: c.ValueReg(d.Args[0])})
	c.Emit(MovRR{Rd: dst.Reg(1), Rm: c.ValueReg(d.Args[1])})
	return vcode.Out1(dst), true
}

func lowerIsplit(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	d := c.Fn.Data(i)
	src := c.ValueRegs(d.Args[0])
	out := c.OutRegs(i)
	c.Emit(MovRR{Rd: out[0].Reg(0), Rm: src.Reg(0)})
	c.Emit(MovRR{Rd: out[1].Reg(0), Rm: src.Reg(1)})
	return out, true
}

// --- ALU ---

func rrrRule(op AluOp) lower.RuleFn {
	return func(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
		if !intUpTo64(resTy(c, i)) {
			return nil, false
		}
		d := c.Fn.Data(i)
		rd := c.OutReg(i)
		c.Emit(AluRRR{Op: op, Rd: rd, Rn: c.ValueReg(d.Args[0]), Rm: c.ValueReg(d.Args[1])})
		return vcode.Out1(vcode.One(rd)), true
	}
}

// rrImm12Rule folds a small constant operand into the immediate form. For
// commutative operations the constant may sit on either side.
func rrImm12Rule(op AluOp, commute bool) lower.RuleFn {
	return func(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
		if !intUpTo64(resTy(c, i)) {
			return nil, false
		}
		d := c.Fn.Data(i)
		rn, imm := d.Args[0], int64(-1)
		if v, ok := c.IconstVal(d.Args[1]); ok && v >= 0 && v < 4096 {
			imm = v
		} else if v, ok := c.IconstVal(d.Args[0]); commute && ok && v >= 0 && v < 4096 {
			imm, rn = v, d.Args[1]
		}
		if imm < 0 {
			return nil, false
		}
		rd := c.OutReg(i)
		c.Emit(AluRRImm12{Op: op, Rd: rd, Rn: c.ValueReg(rn), Imm: uint16(imm)})
		return vcode.Out1(vcode.One(rd)), true
	}
}

func lowerBnot(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	if !intUpTo64(resTy(c, i)) {
		return nil, false
	}
	d := c.Fn.Data(i)
	rd := c.OutReg(i)
	c.Emit(AluRRR{Op: opOrn, Rd: rd, Rn: XZR, Rm: c.ValueReg(d.Args[0])})
	return vcode.Out1(vcode.One(rd)), true
}

// --- wide (double-register) forms, delegated to the decomposition ---

func wideBinCtxRule(f func(*lower.Ctx, wide.Ops, vcode.RegGroup, vcode.RegGroup) vcode.RegGroup) lower.RuleFn {
	return func(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
		if !isWide(resTy(c, i)) {
			return nil, false
		}
		d := c.Fn.Data(i)
		g := f(c, aluOps{c}, c.ValueRegs(d.Args[0]), c.ValueRegs(d.Args[1]))
		dst := c.OutRegs(i)[0]
		moveGroup(c, dst, g)
		return vcode.Out1(dst), true
	}
}

func wideBinRule(f func(wide.Ops, vcode.RegGroup, vcode.RegGroup) vcode.RegGroup) lower.RuleFn {
	return func(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
		if !isWide(resTy(c, i)) {
			return nil, false
		}
		d := c.Fn.Data(i)
		g := f(aluOps{c}, c.ValueRegs(d.Args[0]), c.ValueRegs(d.Args[1]))
		dst := c.OutRegs(i)[0]
		moveGroup(c, dst, g)
		return vcode.Out1(dst), true
	}
}

func wideUnRule(f func(wide.Ops, vcode.RegGroup) vcode.RegGroup) lower.RuleFn {
	return func(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
		if !isWide(resTy(c, i)) {
			return nil, false
		}
		d := c.Fn.Data(i)
		g := f(aluOps{c}, c.ValueRegs(d.Args[0]))
		dst := c.OutRegs(i)[0]
		moveGroup(c, dst, g)
		return vcode.Out1(dst), true
	}
}

func wideShiftRule(f func(*lower.Ctx, wide.Ops, vcode.RegGroup, vcode.Reg) vcode.RegGroup) lower.RuleFn {
	return func(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
		if !isWide(resTy(c, i)) {
			return nil, false
		}
		d := c.Fn.Data(i)
		amt := c.ValueRegs(d.Args[1]).Reg(0)
		g := f(c, aluOps{c}, c.ValueRegs(d.Args[0]), amt)
		dst := c.OutRegs(i)[0]
		moveGroup(c, dst, g)
		return vcode.Out1(dst), true
	}
}

// --- shifts and rotates up to one register ---

// shiftRule masks the amount to the value width and, for right shifts of
// sub-word values, canonicalizes the operand to full width first.
func shiftRule(op AluOp) lower.RuleFn {
	return func(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
		ty := resTy(c, i)
		if !intUpTo64(ty) {
			return nil, false
		}
		d := c.Fn.Data(i)
		ops := aluOps{c}
		bits := ty.Bits()
		x := c.ValueReg(d.Args[0])
		amt := c.ValueRegs(d.Args[1]).Reg(0)
		if bits < wordBits {
			amt = ops.And(amt, ops.Imm(uint64(bits-1)))
			switch op {
			case opLsr:
				x = wide.ZeroExtend(ops, x, bits)
			case opAsr:
				x = wide.SignExtend(ops, x, bits)
			}
		}
		rd := c.OutReg(i)
		c.Emit(AluRRR{Op: op, Rd: rd, Rn: x, Rm: amt})
		return vcode.Out1(vcode.One(rd)), true
	}
}

func lowerRotr(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	if ty := resTy(c, i); !ty.IsInt() || ty.Bits() != wordBits {
		return nil, false
	}
	d := c.Fn.Data(i)
	rd := c.OutReg(i)
	c.Emit(AluRRR{Op: opRor, Rd: rd, Rn: c.ValueReg(d.Args[0]), Rm: c.ValueRegs(d.Args[1]).Reg(0)})
	return vcode.Out1(vcode.One(rd)), true
}

// lowerRotl rewrites rotl(x, n) as ror(x, width-n); there is no rotate-left
// instruction.
func lowerRotl(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	if ty := resTy(c, i); !ty.IsInt() || ty.Bits() != wordBits {
		return nil, false
	}
	d := c.Fn.Data(i)
	ops := aluOps{c}
	inv := ops.And(ops.Sub(ops.Imm(wordBits), c.ValueRegs(d.Args[1]).Reg(0)), ops.Imm(wordBits-1))
	rd := c.OutReg(i)
	c.Emit(AluRRR{Op: opRor, Rd: rd, Rn: c.ValueReg(d.Args[0]), Rm: inv})
	return vcode.Out1(vcode.One(rd)), true
}

// --- bit counts ---

func lowerClz(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	ty := resTy(c, i)
	if !intUpTo64(ty) {
		return nil, false
	}
	d := c.Fn.Data(i)
	rd := c.OutReg(i)
	x := c.ValueReg(d.Args[0])
	if ty.Bits() < wordBits {
		c.Emit(MovRR{Rd: rd, Rm: wide.ClzNarrow(aluOps{c}, x, ty.Bits())})
	} else {
		c.Emit(BitRR{Op: bitClz, Rd: rd, Rn: x})
	}
	return vcode.Out1(vcode.One(rd)), true
}

func lowerCtz(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	ty := resTy(c, i)
	if !intUpTo64(ty) {
		return nil, false
	}
	d := c.Fn.Data(i)
	rd := c.OutReg(i)
	x := c.ValueReg(d.Args[0])
	if ty.Bits() < wordBits {
		c.Emit(MovRR{Rd: rd, Rm: wide.CtzNarrow(aluOps{c}, x, ty.Bits())})
	} else {
		rev := c.NewReg(vcode.ClassInt)
		c.Emit(BitRR{Op: bitRbit, Rd: rev, Rn: x})
		c.Emit(BitRR{Op: bitClz, Rd: rd, Rn: rev})
	}
	return vcode.Out1(vcode.One(rd)), true
}

func lowerPopcnt(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	ty := resTy(c, i)
	if !intUpTo64(ty) {
		return nil, false
	}
	d := c.Fn.Data(i)
	rd := c.OutReg(i)
	x := c.ValueReg(d.Args[0])
	if ty.Bits() < wordBits {
		c.Emit(MovRR{Rd: rd, Rm: wide.PopcntNarrow(aluOps{c}, x, ty.Bits())})
	} else {
		c.Emit(BitRR{Op: bitCnt, Rd: rd, Rn: x})
	}
	return vcode.Out1(vcode.One(rd)), true
}

// --- width changes ---

func extendOp(fromBits uint, signed bool) (ExtOp, bool) {
	switch fromBits {
	case 8:
		if signed {
			return extSxtb, true
		}
		return extUxtb, true
	case 16:
		if signed {
			return extSxth, true
		}
		return extUxth, true
	case 32:
		if signed {
			return extSxtw, true
		}
		return extUxtw, true
	}
	return 0, false
}

func lowerExtend(c *lower.Ctx, i ir.Inst, signed bool) (vcode.Output, bool) {
	d := c.Fn.Data(i)
	from := c.TypeOf(d.Args[0])
	to := resTy(c, i)
	if !from.IsInt() || !to.IsInt() {
		return nil, false
	}
	src := c.ValueReg(d.Args[0])

	widen := func(rd vcode.Reg) {
		if from.Bits() >= wordBits {
			c.Emit(MovRR{Rd: rd, Rm: src})
			return
		}
		op, ok := extendOp(from.Bits(), signed)
		if !ok {
			c.Errf("unsupported extend from %s", from)
			return
		}
		c.Emit(Extend{Op: op, Rd: rd, Rn: src})
	}

	switch {
	case to.Bits() <= wordBits:
		rd := c.OutReg(i)
		widen(rd)
		return vcode.Out1(vcode.One(rd)), true
	case isWide(to):
		dst := c.OutRegs(i)[0]
		widen(dst.Reg(0))
		if signed {
			c.Emit(ShiftImm{Op: opAsr, Rd: dst.Reg(1), Rn: dst.Reg(0), Amt: wordBits - 1})
		} else {
			c.Emit(MovRR{Rd: dst.Reg(1), Rm: XZR})
		}
		return vcode.Out1(dst), true
	}
	return nil, false
}

func lowerUextend(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	return lowerExtend(c, i, false)
}

func lowerSextend(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	return lowerExtend(c, i, true)
}

// lowerIreduce narrows by reinterpretation: the low register carries the
// value; callers of sub-word values mask as needed.
func lowerIreduce(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	d := c.Fn.Data(i)
	if !intUpTo64(resTy(c, i)) {
		return nil, false
	}
	rd := c.OutReg(i)
	c.Emit(MovRR{Rd: rd, Rm: c.ValueRegs(d.Args[0]).Reg(0)})
	return vcode.Out1(vcode.One(rd)), true
}

// --- comparisons and selection ---

// cmpOperands canonicalizes sub-word compare operands to full width so the
// native cmp is exact.
func cmpOperands(c *lower.Ctx, x, y ir.Value, signed bool) (vcode.Reg, vcode.Reg) {
	ops := aluOps{c}
	bits := c.TypeOf(x).Bits()
	rx, ry := c.ValueReg(x), c.ValueReg(y)
	if bits < wordBits {
		if signed {
			rx, ry = wide.SignExtend(ops, rx, bits), wide.SignExtend(ops, ry, bits)
		} else {
			rx, ry = wide.ZeroExtend(ops, rx, bits), wide.ZeroExtend(ops, ry, bits)
		}
	}
	return rx, ry
}

func lowerIcmp(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	d := c.Fn.Data(i)
	if !intUpTo64(c.TypeOf(d.Args[0])) {
		return nil, false
	}
	cond := condFor(d.Cond)
	rx, ry := cmpOperands(c, d.Args[0], d.Args[1], d.Cond.Signed())
	rd := c.OutReg(i)
	c.WithFlags(
		lower.FlagsProducer{Instr: CmpRR{Rn: rx, Rm: ry}},
		lower.FlagsConsumer{Instr: CSet{Rd: rd, Cond: cond}, Result: rd},
	)
	return vcode.Out1(vcode.One(rd)), true
}

// lowerIcmpWide compares double-register values. Equality folds the slot
// differences together; ordered comparisons chain a borrow through the high
// slots so the final flags read as if a full-width subtraction had run.
func lowerIcmpWide(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	d := c.Fn.Data(i)
	if !isWide(c.TypeOf(d.Args[0])) {
		return nil, false
	}
	ops := aluOps{c}
	x, y := c.ValueRegs(d.Args[0]), c.ValueRegs(d.Args[1])
	rd := c.OutReg(i)

	cond := d.Cond
	switch cond {
	case ir.CondEq, ir.CondNe:
		diff := ops.Or(ops.Xor(x.Reg(0), y.Reg(0)), ops.Xor(x.Reg(1), y.Reg(1)))
		c.WithFlags(
			lower.FlagsProducer{Instr: CmpImm{Rn: diff, Imm: 0}},
			lower.FlagsConsumer{Instr: CSet{Rd: rd, Cond: condFor(cond)}, Result: rd},
		)
		return vcode.Out1(vcode.One(rd)), true
	case ir.CondUle, ir.CondUgt, ir.CondSle, ir.CondSgt:
		// a<=b is b>=a, a>b is b<a: swap and reuse the four direct forms.
		x, y = y, x
		switch cond {
		case ir.CondUle:
			cond = ir.CondUge
		case ir.CondUgt:
			cond = ir.CondUlt
		case ir.CondSle:
			cond = ir.CondSge
		case ir.CondSgt:
			cond = ir.CondSlt
		}
	}
	c.WithFlags(
		lower.FlagsProducer{Instr: CmpRR{Rn: x.Reg(0), Rm: y.Reg(0)}},
		lower.FlagsConsumer{Instr: AluRRR{Op: opSbcs, Rd: XZR, Rn: x.Reg(1), Rm: y.Reg(1)}, Result: XZR, Chains: true},
		lower.FlagsConsumer{Instr: CSet{Rd: rd, Cond: condFor(cond)}, Result: rd},
	)
	return vcode.Out1(vcode.One(rd)), true
}

// selectProducer builds the flags producer for a select condition, folding
// a feeding integer compare when possible.
func selectProducer(c *lower.Ctx, condVal ir.Value) (lower.FlagsProducer, Cond, bool) {
	if inst, ok := c.MatchOp(condVal, ir.OpIcmp); ok {
		d := c.Fn.Data(inst)
		if intUpTo64(c.TypeOf(d.Args[0])) {
			rx, ry := cmpOperands(c, d.Args[0], d.Args[1], d.Cond.Signed())
			return lower.FlagsProducer{Instr: CmpRR{Rn: rx, Rm: ry}}, condFor(d.Cond), true
		}
	}
	return lower.FlagsProducer{}, EQ, false
}

func emitSelect(c *lower.Ctx, i ir.Inst, p lower.FlagsProducer, cond Cond) (vcode.Output, bool) {
	d := c.Fn.Data(i)
	ty := resTy(c, i)
	x, y := c.ValueRegs(d.Args[1]), c.ValueRegs(d.Args[2])
	dst := c.OutRegs(i)[0]
	switch {
	case intUpTo64(ty) || ty.IsFloat():
		rd := dst.Reg(0)
		c.WithFlags(p, lower.FlagsConsumer{Instr: CSel{Rd: rd, Rn: x.Reg(0), Rm: y.Reg(0), Cond: cond}, Result: rd})
	case isWide(ty):
		c.WithFlags(p,
			lower.FlagsConsumer{Instr: CSel{Rd: dst.Reg(0), Rn: x.Reg(0), Rm: y.Reg(0), Cond: cond}, Result: dst.Reg(0)},
			lower.FlagsConsumer{Instr: CSel{Rd: dst.Reg(1), Rn: x.Reg(1), Rm: y.Reg(1), Cond: cond}, Result: dst.Reg(1)},
		)
	default:
		return nil, false
	}
	return vcode.Out1(dst), true
}

func lowerSelectIcmp(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	d := c.Fn.Data(i)
	p, cond, ok := selectProducer(c, d.Args[0])
	if !ok {
		return nil, false
	}
	return emitSelect(c, i, p, cond)
}

func lowerSelect(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	d := c.Fn.Data(i)
	t := c.ValueRegs(d.Args[0]).Reg(0)
	return emitSelect(c, i, lower.FlagsProducer{Instr: CmpImm{Rn: t, Imm: 0}}, NE)
}

// --- memory ---

// amode folds a constant offset added to the base address into the
// instruction's displacement.
func amode(c *lower.Ctx, addr ir.Value, off int64) (vcode.Reg, int64) {
	if inst, ok := c.MatchOp(addr, ir.OpIadd); ok {
		d := c.Fn.Data(inst)
		if v, ok := c.IconstVal(d.Args[1]); ok && off+v >= 0 && off+v < 32768 {
			return c.ValueReg(d.Args[0]), off + v
		}
		if v, ok := c.IconstVal(d.Args[0]); ok && off+v >= 0 && off+v < 32768 {
			return c.ValueReg(d.Args[1]), off + v
		}
	}
	return c.ValueReg(addr), off
}

func lowerLoad(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	d := c.Fn.Data(i)
	ty := resTy(c, i)
	base, off := amode(c, d.Args[0], d.Offset)
	switch {
	case intUpTo64(ty) || ty.IsFloat():
		rd := c.OutReg(i)
		c.Emit(Ldr{Rd: rd, Base: base, Off: off, Bits: loadBits(ty.Bits())})
		return vcode.Out1(vcode.One(rd)), true
	case isWide(ty):
		dst := c.OutRegs(i)[0]
		c.Emit(Ldr{Rd: dst.Reg(0), Base: base, Off: off, Bits: 64})
		c.Emit(Ldr{Rd: dst.Reg(1), Base: base, Off: off + 8, Bits: 64})
		return vcode.Out1(dst), true
	}
	return nil, false
}

func lowerStore(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	d := c.Fn.Data(i)
	ty := c.TypeOf(d.Args[0])
	base, off := amode(c, d.Args[1], d.Offset)
	src := c.ValueRegs(d.Args[0])
	switch {
	case intUpTo64(ty) || ty.IsFloat():
		c.Emit(Str{Rs: src.Reg(0), Base: base, Off: off, Bits: loadBits(ty.Bits())})
	case isWide(ty):
		c.Emit(Str{Rs: src.Reg(0), Base: base, Off: off, Bits: 64})
		c.Emit(Str{Rs: src.Reg(1), Base: base, Off: off + 8, Bits: 64})
	default:
		return nil, false
	}
	return vcode.NoOutput, true
}

// --- division with runtime trap guards ---

// divRule lowers a division with its zero-divisor guard and, for the signed
// form, the overflow guard for MinInt / -1. Guards are explicit compare-
// and-trap pairs; configuration may prove them unreachable and elide them.
func divRule(op AluOp, checkOverflow bool) lower.RuleFn {
	return func(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
		ty := resTy(c, i)
		if !ty.IsInt() || ty.Bits() != wordBits {
			return nil, false
		}
		d := c.Fn.Data(i)
		x, y := c.ValueReg(d.Args[0]), c.ValueReg(d.Args[1])
		emitDivGuards(c, x, y, checkOverflow)
		rd := c.OutReg(i)
		c.Emit(AluRRR{Op: op, Rd: rd, Rn: x, Rm: y})
		return vcode.Out1(vcode.One(rd)), true
	}
}

// remRule computes the remainder as x - (x/y)*y via msub. The hardware
// defines MinInt % -1 as zero, so only the zero-divisor guard is needed.
func remRule(op AluOp, checkOverflow bool) lower.RuleFn {
	return func(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
		ty := resTy(c, i)
		if !ty.IsInt() || ty.Bits() != wordBits {
			return nil, false
		}
		d := c.Fn.Data(i)
		x, y := c.ValueReg(d.Args[0]), c.ValueReg(d.Args[1])
		emitDivGuards(c, x, y, checkOverflow)
		quot := c.NewReg(vcode.ClassInt)
		c.Emit(AluRRR{Op: op, Rd: quot, Rn: x, Rm: y})
		rd := c.OutReg(i)
		c.Emit(MSub{Rd: rd, Rn: quot, Rm: y, Ra: x})
		return vcode.Out1(vcode.One(rd)), true
	}
}

func emitDivGuards(c *lower.Ctx, x, y vcode.Reg, checkOverflow bool) {
	if c.Cfg.ElideTrapGuards {
		return
	}
	c.WithFlags(
		lower.FlagsProducer{Instr: CmpImm{Rn: y, Imm: 0}},
		lower.FlagsConsumer{Instr: TrapIf{Cond: EQ, Code: ir.TrapDivByZero}},
	)
	if !checkOverflow {
		return
	}
	ops := aluOps{c}
	minInt := ops.Imm(1 << (wordBits - 1))
	rMin := c.NewReg(vcode.ClassInt)
	atMin := c.WithFlags(
		lower.FlagsProducer{Instr: CmpRR{Rn: x, Rm: minInt}},
		lower.FlagsConsumer{Instr: CSet{Rd: rMin, Cond: EQ}, Result: rMin},
	)
	rNeg := c.NewReg(vcode.ClassInt)
	atNegOne := c.WithFlags(
		lower.FlagsProducer{Instr: CmnImm{Rn: y, Imm: 1}},
		lower.FlagsConsumer{Instr: CSet{Rd: rNeg, Cond: EQ}, Result: rNeg},
	)
	both := ops.And(atMin[0], atNegOne[0])
	c.WithFlags(
		lower.FlagsProducer{Instr: CmpImm{Rn: both, Imm: 0}},
		lower.FlagsConsumer{Instr: TrapIf{Cond: NE, Code: ir.TrapIntOverflow}},
	)
}

// --- control flow ---

func lowerJump(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	d := c.Fn.Data(i)
	c.BranchArgMoves(d.Targets[0])
	c.Emit(B{Target: c.BlockLabel(d.Targets[0].Block)})
	return vcode.NoOutput, true
}

// lowerBrifIcmp fuses a feeding compare with the conditional branch.
func lowerBrifIcmp(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	d := c.Fn.Data(i)
	p, cond, ok := selectProducer(c, d.Args[0])
	if !ok {
		return nil, false
	}
	emitBrif(c, d, p, cond)
	return vcode.NoOutput, true
}

func lowerBrif(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	d := c.Fn.Data(i)
	t := c.ValueRegs(d.Args[0]).Reg(0)
	emitBrif(c, d, lower.FlagsProducer{Instr: CmpImm{Rn: t, Imm: 0}}, NE)
	return vcode.NoOutput, true
}

// emitBrif places the taken edge's argument moves before the paired
// compare-and-branch. Those moves only write the taken block's parameter
// registers, which the fallthrough edge never reads, so running them on the
// untaken path is harmless.
func emitBrif(c *lower.Ctx, d *ir.InstData, p lower.FlagsProducer, cond Cond) {
	taken, notTaken := d.Targets[0], d.Targets[1]
	c.BranchArgMoves(taken)
	c.WithFlags(p, lower.FlagsConsumer{Instr: BCond{Cond: cond, Target: c.BlockLabel(taken.Block)}})
	c.BranchArgMoves(notTaken)
	c.Emit(B{Target: c.BlockLabel(notTaken.Block)})
}

func lowerTrap(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	c.Emit(Udf{Code: c.Fn.Data(i).Trap})
	return vcode.NoOutput, true
}
