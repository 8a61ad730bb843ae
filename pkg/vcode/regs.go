// Package vcode defines the abstract machine code produced by lowering:
// registers not yet bound by allocation, register groups backing multi-slot
// values, and the per-function instruction stream handed to the register
// allocator.
package vcode

import "fmt"

// RegClass partitions registers by bank.
type RegClass uint8

const (
	ClassInt RegClass = iota
	ClassFloat
)

func (c RegClass) String() string {
	if c == ClassFloat {
		return "float"
	}
	return "int"
}

// Reg is an abstract register: virtual (assigned by later allocation) or
// real (pinned, e.g. ABI-mandated). The zero value is not a valid register.
//
// Encoding: bit 30 set for real registers, bits 28-29 the class, low bits
// the index plus one so that Reg(0) stays invalid.
type Reg uint32

const (
	regRealBit   = 1 << 30
	regClassLsb  = 28
	regClassMask = 3 << regClassLsb
	regIndexMask = (1 << regClassLsb) - 1
)

// NoReg is the absent-register sentinel.
const NoReg Reg = 0

// Virtual returns the virtual register with the given index and class.
func Virtual(index int, class RegClass) Reg {
	return Reg(index+1) | Reg(class)<<regClassLsb
}

// Real returns the real (pinned) register with the given hardware index.
func Real(hw int, class RegClass) Reg {
	return Reg(hw+1) | Reg(class)<<regClassLsb | regRealBit
}

// Valid reports whether r names a register.
func (r Reg) Valid() bool { return r != NoReg }

// IsReal reports whether r is pinned to a hardware register.
func (r Reg) IsReal() bool { return r&regRealBit != 0 }

// IsVirtual reports whether r awaits allocation.
func (r Reg) IsVirtual() bool { return r.Valid() && !r.IsReal() }

// Class returns the register bank of r.
func (r Reg) Class() RegClass { return RegClass((r & regClassMask) >> regClassLsb) }

// Index returns the virtual index or hardware number of r.
func (r Reg) Index() int { return int(r&regIndexMask) - 1 }

func (r Reg) String() string {
	switch {
	case !r.Valid():
		return "noreg"
	case r.IsReal():
		return fmt.Sprintf("%%r%d", r.Index())
	default:
		return fmt.Sprintf("v%d", r.Index())
	}
}

// RegGroup is the ordered, fixed-length list of registers backing one value.
// The slot count is a function of the value's type and the target word size
// only, so the same value always materializes into the same shape of group.
type RegGroup struct {
	regs [2]Reg
	n    uint8
}

// One returns a single-register group.
func One(r Reg) RegGroup { return RegGroup{regs: [2]Reg{r}, n: 1} }

// Two returns a two-register group, low slot first.
func Two(lo, hi Reg) RegGroup { return RegGroup{regs: [2]Reg{lo, hi}, n: 2} }

// Len returns the number of slots.
func (g RegGroup) Len() int { return int(g.n) }

// Reg returns slot i.
func (g RegGroup) Reg(i int) Reg { return g.regs[i] }

// Only returns the single register of a one-slot group.
func (g RegGroup) Only() (Reg, bool) {
	if g.n == 1 {
		return g.regs[0], true
	}
	return NoReg, false
}

// Regs returns the slots in order.
func (g RegGroup) Regs() []Reg { return append([]Reg(nil), g.regs[:g.n]...) }

func (g RegGroup) String() string {
	if g.n == 2 {
		return fmt.Sprintf("{%s, %s}", g.regs[0], g.regs[1])
	}
	if g.n == 1 {
		return g.regs[0].String()
	}
	return "{}"
}

// Output is the ordered list of register groups produced by one lowering
// step: empty for side-effect-only lowerings, one entry per result value
// otherwise.
type Output []RegGroup

// NoOutput is the empty instruction output.
var NoOutput = Output{}

// Out1 wraps a single-result output.
func Out1(g RegGroup) Output { return Output{g} }

// Out2 wraps a two-result output (e.g. a full multiply's low and high).
func Out2(a, b RegGroup) Output { return Output{a, b} }
