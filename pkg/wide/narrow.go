package wide

import "github.com/raymyers/lowgen/pkg/vcode"

// Sub-word values are the inverse problem of wide ones: a value narrower
// than a register must be masked or extended to the full width consistently
// before a native-width instruction can stand in for the narrow operation.

// ZeroExtend masks x down to its low fromBits bits.
func ZeroExtend(ops Ops, x vcode.Reg, fromBits uint) vcode.Reg {
	if fromBits >= ops.WordBits() {
		return x
	}
	return ops.And(x, ops.Imm(1<<fromBits-1))
}

// SignExtend replicates bit fromBits-1 of x through the full register.
func SignExtend(ops Ops, x vcode.Reg, fromBits uint) vcode.Reg {
	w := ops.WordBits()
	if fromBits >= w {
		return x
	}
	return ops.SShrImm(ops.ShlImm(x, w-fromBits), w-fromBits)
}

// ClzNarrow counts leading zeros within a fromBits-wide value: the
// native-width count over the zero-extended value includes the padding,
// which is subtracted back out.
func ClzNarrow(ops Ops, x vcode.Reg, fromBits uint) vcode.Reg {
	w := ops.WordBits()
	full := ops.Clz(ZeroExtend(ops, x, fromBits))
	return ops.Sub(full, ops.Imm(uint64(w-fromBits)))
}

// CtzNarrow caps the trailing-zero count at fromBits by planting a guard
// bit just past the value's top.
func CtzNarrow(ops Ops, x vcode.Reg, fromBits uint) vcode.Reg {
	if fromBits >= ops.WordBits() {
		return ops.Ctz(x)
	}
	return ops.Ctz(ops.Or(x, ops.Imm(1<<fromBits)))
}

// PopcntNarrow counts set bits of a fromBits-wide value.
func PopcntNarrow(ops Ops, x vcode.Reg, fromBits uint) vcode.Reg {
	return ops.Popcnt(ZeroExtend(ops, x, fromBits))
}
