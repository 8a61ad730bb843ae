package arm64

import (
	"github.com/raymyers/lowgen/pkg/abi"
	"github.com/raymyers/lowgen/pkg/ir"
	"github.com/raymyers/lowgen/pkg/lower"
	"github.com/raymyers/lowgen/pkg/vcode"
)

// widenForSlot applies the slot's required sub-word extension before the
// value crosses the call boundary.
func widenForSlot(c *lower.Ctx, s abi.Slot, r vcode.Reg) vcode.Reg {
	if s.Ext == abi.ExtNone || s.Bits >= wordBits {
		return r
	}
	op, ok := extendOp(s.Bits, s.Ext == abi.ExtSign)
	if !ok {
		c.Errf("no extension for %d-bit slot", s.Bits)
		return r
	}
	t := c.NewReg(vcode.ClassInt)
	c.Emit(Extend{Op: op, Rd: t, Rn: r})
	return t
}

// lowerCall resolves the callee's signature at the call site, stages
// arguments into their locations, and copies returns back out. Outgoing
// stack arguments sit at the bottom of the frame; a callee return area, when
// needed, sits just above them and its address goes out through the
// convention's pointer location.
func lowerCall(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	d := c.Fn.Data(i)
	if d.CallSig == nil {
		c.Errf("call to %s has no signature", d.Callee)
		return nil, false
	}
	sig, err := abi.Resolve(d.CallSig)
	if err != nil {
		c.Errf("call to %s: %v", d.Callee, err)
		return nil, false
	}
	if len(sig.Args) != len(d.Args) {
		c.Errf("call to %s passes %d args, signature has %d", d.Callee, len(d.Args), len(sig.Args))
		return nil, false
	}

	for ai, arg := range sig.Args {
		src := c.ValueRegs(d.Args[ai])
		if len(arg.Slots) != src.Len() {
			c.Errf("call to %s: arg %d has %d slots, group has %d", d.Callee, ai, len(arg.Slots), src.Len())
			return nil, false
		}
		for si, s := range arg.Slots {
			r := widenForSlot(c, s, src.Reg(si))
			switch s.Kind {
			case abi.KindReg:
				c.Emit(MovRR{Rd: s.Reg, Rm: r})
			case abi.KindStack:
				c.Emit(Str{Rs: r, Base: SP, Off: s.Offset, Bits: loadBits(s.Bits)})
			}
		}
	}

	if sig.RetPtr != nil {
		area := c.NewReg(vcode.ClassInt)
		if sig.StackArgSpace < 4096 {
			c.Emit(AluRRImm12{Op: opAdd, Rd: area, Rn: SP, Imm: uint16(sig.StackArgSpace)})
		} else {
			// The return area sits beyond imm12 reach; materialize the offset.
			off := c.NewReg(vcode.ClassInt)
			loadConst(c, off, uint64(sig.StackArgSpace))
			c.Emit(AluRRR{Op: opAdd, Rd: area, Rn: SP, Rm: off})
		}
		switch sig.RetPtr.Kind {
		case abi.KindReg:
			c.Emit(MovRR{Rd: sig.RetPtr.Reg, Rm: area})
		case abi.KindStack:
			c.Emit(Str{Rs: area, Base: SP, Off: sig.RetPtr.Offset, Bits: 64})
		}
	}

	c.Emit(Bl{Sym: d.Callee})

	out := c.OutRegs(i)
	if len(sig.Rets) != len(out) {
		c.Errf("call to %s yields %d results, signature has %d", d.Callee, len(out), len(sig.Rets))
		return nil, false
	}
	for ri, ret := range sig.Rets {
		dst := out[ri]
		for si, s := range ret.Slots {
			switch s.Kind {
			case abi.KindReg:
				c.Emit(MovRR{Rd: dst.Reg(si), Rm: s.Reg})
			case abi.KindStack:
				c.Emit(Ldr{Rd: dst.Reg(si), Base: SP, Off: sig.StackArgSpace + s.Offset, Bits: loadBits(s.Bits)})
			}
		}
	}

	c.Unit().ReserveCallSpace(sig.StackArgSpace, sig.StackRetSpace)
	return out, true
}

// lowerReturn moves return values into their resolved locations. Values
// redirected to the return area are stored through the pointer captured at
// entry.
func lowerReturn(c *lower.Ctx, i ir.Inst) (vcode.Output, bool) {
	d := c.Fn.Data(i)
	sig := c.Sig()
	if len(d.Args) != len(sig.Rets) {
		c.Errf("return passes %d values, signature has %d", len(d.Args), len(sig.Rets))
		return nil, false
	}
	for ri, ret := range sig.Rets {
		src := c.ValueRegs(d.Args[ri])
		if len(ret.Slots) != src.Len() {
			c.Errf("return value %d has %d slots, group has %d", ri, len(ret.Slots), src.Len())
			return nil, false
		}
		for si, s := range ret.Slots {
			r := widenForSlot(c, s, src.Reg(si))
			switch s.Kind {
			case abi.KindReg:
				c.Emit(MovRR{Rd: s.Reg, Rm: r})
			case abi.KindStack:
				c.Emit(Str{Rs: r, Base: c.RetPtr(), Off: s.Offset, Bits: loadBits(s.Bits)})
			}
		}
	}
	c.Emit(Ret{})
	return vcode.NoOutput, true
}
