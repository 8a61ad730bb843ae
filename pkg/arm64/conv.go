package arm64

import (
	"github.com/raymyers/lowgen/pkg/abi"
	"github.com/raymyers/lowgen/pkg/vcode"
)

// AAPCS64: x0-x7 and v0-v7 carry arguments, x0-x1 and v0-v1 carry returns,
// x8 is the indirect result location register. Sub-word arguments are not
// widened by the caller.
func init() {
	abi.Register(&abi.Convention{
		Name:          "aapcs64",
		WordBits:      wordBits,
		IntArgRegs:    xRegs(0, 7),
		FloatArgRegs:  vRegs(0, 7),
		IntRetRegs:    xRegs(0, 1),
		FloatRetRegs:  vRegs(0, 1),
		RetPtrReg:     X8,
		ExtendSubword: false,
		StackAlign:    16,
	})
}

func xRegs(lo, hi int) []vcode.Reg {
	rs := make([]vcode.Reg, 0, hi-lo+1)
	for n := lo; n <= hi; n++ {
		rs = append(rs, X(n))
	}
	return rs
}

func vRegs(lo, hi int) []vcode.Reg {
	rs := make([]vcode.Reg, 0, hi-lo+1)
	for n := lo; n <= hi; n++ {
		rs = append(rs, V(n))
	}
	return rs
}
