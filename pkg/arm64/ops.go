package arm64

import (
	"github.com/raymyers/lowgen/pkg/abi"
	"github.com/raymyers/lowgen/pkg/lower"
	"github.com/raymyers/lowgen/pkg/vcode"
)

// Backend wires the ARM64 rule table into the lowering engine. It is
// stateless; per-function state lives in the engine's Ctx.
type Backend struct{}

// New returns the ARM64 backend.
func New() *Backend { return &Backend{} }

// Rules implements lower.Backend.
func (*Backend) Rules() *lower.RuleSet { return rules }

// WordBits implements lower.Backend.
func (*Backend) WordBits() uint { return wordBits }

// Move implements lower.Backend.
func (*Backend) Move(c *lower.Ctx, dst, src vcode.Reg) {
	c.Emit(MovRR{Rd: dst, Rm: src})
}

// BindArg implements lower.Backend: one move or stack load per slot.
func (*Backend) BindArg(c *lower.Ctx, arg abi.Arg, dst vcode.RegGroup) {
	if len(arg.Slots) != dst.Len() {
		c.Errf("argument has %d slots, register group has %d", len(arg.Slots), dst.Len())
		return
	}
	for i, s := range arg.Slots {
		switch s.Kind {
		case abi.KindReg:
			c.Emit(MovRR{Rd: dst.Reg(i), Rm: s.Reg})
		case abi.KindStack:
			c.Emit(LdrArg{Rd: dst.Reg(i), Off: s.Offset, Bits: loadBits(s.Bits)})
		}
	}
}

func loadBits(bits uint) uint8 {
	switch {
	case bits <= 8:
		return 8
	case bits <= 16:
		return 16
	case bits <= 32:
		return 32
	default:
		return 64
	}
}

// loadConst materializes a 64-bit constant into rd with a movz/movk chain.
func loadConst(c *lower.Ctx, rd vcode.Reg, v uint64) {
	if v == 0 {
		c.Emit(MovZ{Rd: rd, Imm: 0})
		return
	}
	first := true
	for shift := uint8(0); shift < 64; shift += 16 {
		chunk := uint16(v >> shift)
		if chunk == 0 {
			continue
		}
		if first {
			c.Emit(MovZ{Rd: rd, Imm: chunk, Shift: shift})
			first = false
		} else {
			c.Emit(MovK{Rd: rd, Imm: chunk, Shift: shift})
		}
	}
}

// aluOps adapts the per-slot ARM64 instructions to the wide-value
// decomposition capability interface.
type aluOps struct {
	c *lower.Ctx
}

func (o aluOps) temp() vcode.Reg { return o.c.NewReg(vcode.ClassInt) }

func (o aluOps) rrr(op AluOp, x, y vcode.Reg) vcode.Reg {
	rd := o.temp()
	o.c.Emit(AluRRR{Op: op, Rd: rd, Rn: x, Rm: y})
	return rd
}

func (o aluOps) WordBits() uint { return wordBits }

func (o aluOps) Zero() vcode.Reg { return XZR }

func (o aluOps) Imm(v uint64) vcode.Reg {
	rd := o.temp()
	loadConst(o.c, rd, v)
	return rd
}

func (o aluOps) Add(x, y vcode.Reg) vcode.Reg    { return o.rrr(opAdd, x, y) }
func (o aluOps) Sub(x, y vcode.Reg) vcode.Reg    { return o.rrr(opSub, x, y) }
func (o aluOps) Mul(x, y vcode.Reg) vcode.Reg    { return o.rrr(opMul, x, y) }
func (o aluOps) UMulHi(x, y vcode.Reg) vcode.Reg { return o.rrr(opUmulh, x, y) }
func (o aluOps) And(x, y vcode.Reg) vcode.Reg    { return o.rrr(opAnd, x, y) }
func (o aluOps) Or(x, y vcode.Reg) vcode.Reg     { return o.rrr(opOrr, x, y) }
func (o aluOps) Xor(x, y vcode.Reg) vcode.Reg    { return o.rrr(opEor, x, y) }
func (o aluOps) Not(x vcode.Reg) vcode.Reg       { return o.rrr(opOrn, XZR, x) }

func (o aluOps) Shl(x, amt vcode.Reg) vcode.Reg  { return o.rrr(opLsl, x, amt) }
func (o aluOps) UShr(x, amt vcode.Reg) vcode.Reg { return o.rrr(opLsr, x, amt) }
func (o aluOps) SShr(x, amt vcode.Reg) vcode.Reg { return o.rrr(opAsr, x, amt) }

func (o aluOps) shiftImm(op AluOp, x vcode.Reg, amt uint) vcode.Reg {
	if amt == 0 {
		return x
	}
	rd := o.temp()
	o.c.Emit(ShiftImm{Op: op, Rd: rd, Rn: x, Amt: uint8(amt)})
	return rd
}

func (o aluOps) ShlImm(x vcode.Reg, amt uint) vcode.Reg  { return o.shiftImm(opLsl, x, amt) }
func (o aluOps) UShrImm(x vcode.Reg, amt uint) vcode.Reg { return o.shiftImm(opLsr, x, amt) }
func (o aluOps) SShrImm(x vcode.Reg, amt uint) vcode.Reg { return o.shiftImm(opAsr, x, amt) }

func (o aluOps) Clz(x vcode.Reg) vcode.Reg {
	rd := o.temp()
	o.c.Emit(BitRR{Op: bitClz, Rd: rd, Rn: x})
	return rd
}

func (o aluOps) Ctz(x vcode.Reg) vcode.Reg {
	rev := o.temp()
	o.c.Emit(BitRR{Op: bitRbit, Rd: rev, Rn: x})
	return o.Clz(rev)
}

func (o aluOps) Popcnt(x vcode.Reg) vcode.Reg {
	rd := o.temp()
	o.c.Emit(BitRR{Op: bitCnt, Rd: rd, Rn: x})
	return rd
}

func (o aluOps) AddFlags(x, y vcode.Reg) lower.FlagsProducer {
	rd := o.temp()
	return lower.FlagsProducer{Instr: AluRRR{Op: opAdds, Rd: rd, Rn: x, Rm: y}, Result: rd}
}

func (o aluOps) Adc(x, y vcode.Reg) lower.FlagsConsumer {
	rd := o.temp()
	return lower.FlagsConsumer{Instr: AluRRR{Op: opAdc, Rd: rd, Rn: x, Rm: y}, Result: rd}
}

func (o aluOps) AdcChain(x, y vcode.Reg) lower.FlagsConsumer {
	rd := o.temp()
	return lower.FlagsConsumer{Instr: AluRRR{Op: opAdcs, Rd: rd, Rn: x, Rm: y}, Result: rd, Chains: true}
}

func (o aluOps) SubFlags(x, y vcode.Reg) lower.FlagsProducer {
	rd := o.temp()
	return lower.FlagsProducer{Instr: AluRRR{Op: opSubs, Rd: rd, Rn: x, Rm: y}, Result: rd}
}

func (o aluOps) Sbb(x, y vcode.Reg) lower.FlagsConsumer {
	rd := o.temp()
	return lower.FlagsConsumer{Instr: AluRRR{Op: opSbc, Rd: rd, Rn: x, Rm: y}, Result: rd}
}

func (o aluOps) SbbChain(x, y vcode.Reg) lower.FlagsConsumer {
	rd := o.temp()
	return lower.FlagsConsumer{Instr: AluRRR{Op: opSbcs, Rd: rd, Rn: x, Rm: y}, Result: rd, Chains: true}
}

func (o aluOps) TstImm(x vcode.Reg, mask uint64) lower.FlagsProducer {
	return lower.FlagsProducer{Instr: TstImm{Rn: x, Imm: mask}}
}

func (o aluOps) CSelNE(ifSet, ifClear vcode.Reg) lower.FlagsConsumer {
	rd := o.temp()
	return lower.FlagsConsumer{Instr: CSel{Rd: rd, Rn: ifSet, Rm: ifClear, Cond: NE}, Result: rd}
}
