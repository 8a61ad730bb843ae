// Package wide lowers operations on integer values wider than one native
// register into explicit multi-instruction sequences, linking the per-slot
// pieces through the flags-pairing protocol where carry or borrow must
// propagate. The algorithms are generic over a target capability interface;
// the target supplies the per-slot instructions, this package supplies the
// composition.
package wide

import (
	"github.com/raymyers/lowgen/pkg/lower"
	"github.com/raymyers/lowgen/pkg/vcode"
)

// Ops is the per-slot instruction capability a target provides. Each method
// either emits an instruction returning the destination register, or builds
// a flags producer/consumer for the caller to pair via Ctx.WithFlags.
// Register-operand shift amounts are taken modulo the word size, matching
// hardware shift semantics.
type Ops interface {
	WordBits() uint

	Zero() vcode.Reg
	Imm(v uint64) vcode.Reg

	Add(x, y vcode.Reg) vcode.Reg
	Sub(x, y vcode.Reg) vcode.Reg
	Mul(x, y vcode.Reg) vcode.Reg
	UMulHi(x, y vcode.Reg) vcode.Reg
	And(x, y vcode.Reg) vcode.Reg
	Or(x, y vcode.Reg) vcode.Reg
	Xor(x, y vcode.Reg) vcode.Reg
	Not(x vcode.Reg) vcode.Reg

	Shl(x, amt vcode.Reg) vcode.Reg
	UShr(x, amt vcode.Reg) vcode.Reg
	SShr(x, amt vcode.Reg) vcode.Reg
	ShlImm(x vcode.Reg, amt uint) vcode.Reg
	UShrImm(x vcode.Reg, amt uint) vcode.Reg
	SShrImm(x vcode.Reg, amt uint) vcode.Reg

	Clz(x vcode.Reg) vcode.Reg
	Ctz(x vcode.Reg) vcode.Reg
	Popcnt(x vcode.Reg) vcode.Reg

	// AddFlags/SubFlags produce a result and a carry/borrow; Adc/Sbb consume
	// it; the Chain variants both consume and produce, for values spanning
	// more than two slots.
	AddFlags(x, y vcode.Reg) lower.FlagsProducer
	Adc(x, y vcode.Reg) lower.FlagsConsumer
	AdcChain(x, y vcode.Reg) lower.FlagsConsumer
	SubFlags(x, y vcode.Reg) lower.FlagsProducer
	Sbb(x, y vcode.Reg) lower.FlagsConsumer
	SbbChain(x, y vcode.Reg) lower.FlagsConsumer

	// TstImm produces flags from x & mask; CSelNE selects ifSet when those
	// flags are nonzero, ifClear otherwise.
	TstImm(x vcode.Reg, mask uint64) lower.FlagsProducer
	CSelNE(ifSet, ifClear vcode.Reg) lower.FlagsConsumer
}
