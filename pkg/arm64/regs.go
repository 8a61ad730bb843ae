// Package arm64 instantiates the lowering engine for ARM64: the abstract
// instruction set, the rewrite-rule table, the wide-value capability hookup,
// and the AAPCS64 calling convention. Everything here is rule data and
// instruction definitions; the engine logic lives in pkg/lower.
package arm64

import (
	"fmt"

	"github.com/raymyers/lowgen/pkg/vcode"
)

const wordBits = 64

// X returns the pinned general-purpose register xN.
func X(n int) vcode.Reg { return vcode.Real(n, vcode.ClassInt) }

// V returns the pinned vector/FP register vN.
func V(n int) vcode.Reg { return vcode.Real(n, vcode.ClassFloat) }

// Distinguished registers. SP shares encoding 31 with XZR in real encodings;
// here it gets its own index since vcode registers are symbolic.
var (
	XZR = X(31)
	SP  = X(32)
	X8  = X(8) // indirect result location register
	LR  = X(30)
)

func regName(r vcode.Reg) string {
	switch {
	case !r.Valid():
		return "noreg"
	case r == XZR:
		return "xzr"
	case r == SP:
		return "sp"
	case r.IsReal() && r.Class() == vcode.ClassInt:
		return fmt.Sprintf("x%d", r.Index())
	case r.IsReal():
		return fmt.Sprintf("d%d", r.Index())
	default:
		return fmt.Sprintf("v%d", r.Index())
	}
}
