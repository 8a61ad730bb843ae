package wide

import (
	"github.com/raymyers/lowgen/pkg/lower"
	"github.com/raymyers/lowgen/pkg/vcode"
)

// Add lowers a double-width addition: add the low slots producing a carry,
// add-with-carry the high slots consuming it.
func Add(c *lower.Ctx, ops Ops, x, y vcode.RegGroup) vcode.RegGroup {
	p := ops.AddFlags(x.Reg(0), y.Reg(0))
	hi := c.WithFlags(p, ops.Adc(x.Reg(1), y.Reg(1)))
	return vcode.Two(p.Result, hi[0])
}

// Sub lowers a double-width subtraction with borrow propagation.
func Sub(c *lower.Ctx, ops Ops, x, y vcode.RegGroup) vcode.RegGroup {
	p := ops.SubFlags(x.Reg(0), y.Reg(0))
	hi := c.WithFlags(p, ops.Sbb(x.Reg(1), y.Reg(1)))
	return vcode.Two(p.Result, hi[0])
}

// Mul lowers a double-width multiply to the standard long-multiplication
// composition: the low slot is the low product of the low words; the high
// slot combines the high product of the low words with both cross terms.
// Only the double-width result is materialized; the upper half of the full
// quadruple-width product is not needed.
func Mul(c *lower.Ctx, ops Ops, x, y vcode.RegGroup) vcode.RegGroup {
	lo := ops.Mul(x.Reg(0), y.Reg(0))
	carry := ops.UMulHi(x.Reg(0), y.Reg(0))
	cross1 := ops.Mul(x.Reg(0), y.Reg(1))
	cross2 := ops.Mul(x.Reg(1), y.Reg(0))
	hi := ops.Add(ops.Add(carry, cross1), cross2)
	return vcode.Two(lo, hi)
}

// Band, Bor, Bxor and Bnot apply slot-wise; no carries cross slots.

func Band(ops Ops, x, y vcode.RegGroup) vcode.RegGroup {
	return vcode.Two(ops.And(x.Reg(0), y.Reg(0)), ops.And(x.Reg(1), y.Reg(1)))
}

func Bor(ops Ops, x, y vcode.RegGroup) vcode.RegGroup {
	return vcode.Two(ops.Or(x.Reg(0), y.Reg(0)), ops.Or(x.Reg(1), y.Reg(1)))
}

func Bxor(ops Ops, x, y vcode.RegGroup) vcode.RegGroup {
	return vcode.Two(ops.Xor(x.Reg(0), y.Reg(0)), ops.Xor(x.Reg(1), y.Reg(1)))
}

func Bnot(ops Ops, x vcode.RegGroup) vcode.RegGroup {
	return vcode.Two(ops.Not(x.Reg(0)), ops.Not(x.Reg(1)))
}

// Shl lowers a variable-amount double-width shift left. Each slot is
// shifted by the amount modulo the word size; the bits crossing the slot
// boundary are recovered with a complementary shift by the bitwise
// complement of the amount (with a pre-shift by one, so an amount of zero
// injects nothing rather than shifting by the full word, which hardware
// leaves undefined); a final flag-based selection picks the cross-slot case
// when the amount's word bit is set.
func Shl(c *lower.Ctx, ops Ops, x vcode.RegGroup, amt vcode.Reg) vcode.RegGroup {
	w := ops.WordBits()
	notAmt := ops.Not(amt)

	lo := ops.Shl(x.Reg(0), amt)
	carry := ops.UShr(ops.UShrImm(x.Reg(0), 1), notAmt)
	hi := ops.Or(ops.Shl(x.Reg(1), amt), carry)

	// amount >= word: the low slot is discarded entirely.
	crossHi := lo
	zero := ops.Zero()
	sel := c.WithFlags(ops.TstImm(amt, uint64(w)),
		ops.CSelNE(zero, lo),
		ops.CSelNE(crossHi, hi))
	return vcode.Two(sel[0], sel[1])
}

// UShr lowers a variable-amount double-width logical shift right.
func UShr(c *lower.Ctx, ops Ops, x vcode.RegGroup, amt vcode.Reg) vcode.RegGroup {
	w := ops.WordBits()
	notAmt := ops.Not(amt)

	carry := ops.Shl(ops.ShlImm(x.Reg(1), 1), notAmt)
	lo := ops.Or(ops.UShr(x.Reg(0), amt), carry)
	hi := ops.UShr(x.Reg(1), amt)

	crossLo := hi
	zero := ops.Zero()
	sel := c.WithFlags(ops.TstImm(amt, uint64(w)),
		ops.CSelNE(crossLo, lo),
		ops.CSelNE(zero, hi))
	return vcode.Two(sel[0], sel[1])
}

// SShr lowers a variable-amount double-width arithmetic shift right; the
// cross-slot case fills the high slot with copies of the sign bit.
func SShr(c *lower.Ctx, ops Ops, x vcode.RegGroup, amt vcode.Reg) vcode.RegGroup {
	w := ops.WordBits()
	notAmt := ops.Not(amt)

	carry := ops.Shl(ops.ShlImm(x.Reg(1), 1), notAmt)
	lo := ops.Or(ops.UShr(x.Reg(0), amt), carry)
	hi := ops.SShr(x.Reg(1), amt)

	crossLo := hi
	signs := ops.SShrImm(x.Reg(1), w-1)
	sel := c.WithFlags(ops.TstImm(amt, uint64(w)),
		ops.CSelNE(crossLo, lo),
		ops.CSelNE(signs, hi))
	return vcode.Two(sel[0], sel[1])
}

// Rotl lowers a double-width rotate left as shl(x, n) | ushr(x, width-n),
// each half handled by the shift decompositions above.
func Rotl(c *lower.Ctx, ops Ops, x vcode.RegGroup, amt vcode.Reg) vcode.RegGroup {
	w := ops.WordBits()
	left := Shl(c, ops, x, amt)
	inv := ops.And(ops.Sub(ops.Imm(uint64(2*w)), amt), ops.Imm(uint64(2*w-1)))
	right := UShr(c, ops, x, inv)
	return Bor(ops, left, right)
}

// Rotr lowers a double-width rotate right symmetrically.
func Rotr(c *lower.Ctx, ops Ops, x vcode.RegGroup, amt vcode.Reg) vcode.RegGroup {
	w := ops.WordBits()
	right := UShr(c, ops, x, amt)
	inv := ops.And(ops.Sub(ops.Imm(uint64(2*w)), amt), ops.Imm(uint64(2*w-1)))
	left := Shl(c, ops, x, inv)
	return Bor(ops, right, left)
}

// Clz combines per-slot leading-zero counts arithmetically, branch-free:
// when the high slot is all zeros its count equals the word size, so
// shifting the count right by log2(word) yields exactly 0 or 1 to gate the
// low slot's contribution.
func Clz(ops Ops, x vcode.RegGroup) vcode.RegGroup {
	hiClz := ops.Clz(x.Reg(1))
	loClz := ops.Clz(x.Reg(0))
	gate := ops.UShrImm(hiClz, log2(ops.WordBits()))
	total := ops.Add(hiClz, ops.Mul(loClz, gate))
	return vcode.Two(total, ops.Zero())
}

// Ctz is the mirror image: the low slot's count gates the high slot's.
func Ctz(ops Ops, x vcode.RegGroup) vcode.RegGroup {
	loCtz := ops.Ctz(x.Reg(0))
	hiCtz := ops.Ctz(x.Reg(1))
	gate := ops.UShrImm(loCtz, log2(ops.WordBits()))
	total := ops.Add(loCtz, ops.Mul(hiCtz, gate))
	return vcode.Two(total, ops.Zero())
}

// Popcnt sums the per-slot population counts.
func Popcnt(ops Ops, x vcode.RegGroup) vcode.RegGroup {
	total := ops.Add(ops.Popcnt(x.Reg(0)), ops.Popcnt(x.Reg(1)))
	return vcode.Two(total, ops.Zero())
}

func log2(n uint) uint {
	var r uint
	for n > 1 {
		n >>= 1
		r++
	}
	return r
}
