package lower

import (
	"fmt"

	"github.com/raymyers/lowgen/pkg/abi"
	"github.com/raymyers/lowgen/pkg/ir"
	"github.com/raymyers/lowgen/pkg/vcode"
)

// Function lowers fn to an abstract machine instruction stream. Blocks are
// processed in the function's layout order (reverse post-order by
// construction) with per-block instruction order preserved, since emission
// order is observable. Any error aborts the whole function; partial output
// is meaningless to register allocation.
func Function(fn *ir.Function, be Backend, cfg Config) (*vcode.Unit, error) {
	c := NewCtx(fn, be, cfg)

	sig, err := abi.Resolve(&fn.Sig)
	if err != nil {
		return nil, fmt.Errorf("lowering %s: %w", fn.Name, err)
	}
	c.sig = sig

	for _, b := range fn.Layout() {
		c.Emit(vcode.LabelMark{L: c.BlockLabel(b)})
		if b == fn.Entry() {
			if err := c.bindEntry(); err != nil {
				return nil, fmt.Errorf("lowering %s: %w", fn.Name, err)
			}
		}
		for _, inst := range fn.BlockInsts(b) {
			if err := c.lowerInst(inst); err != nil {
				return nil, fmt.Errorf("lowering %s: %w", fn.Name, err)
			}
		}
	}
	if c.err != nil {
		return nil, fmt.Errorf("lowering %s: %w", fn.Name, c.err)
	}

	c.unit.StackArgSpace = sig.StackArgSpace
	c.unit.StackRetSpace = sig.StackRetSpace
	c.unit.NumVirtuals = c.nextV
	return c.unit, nil
}

// bindEntry copies resolved incoming arguments into the entry block's
// parameter groups and captures the return-area pointer when present.
func (c *Ctx) bindEntry() error {
	params := c.Fn.BlockParams(c.Fn.Entry())
	if len(params) != len(c.sig.Args) {
		return fmt.Errorf("%w: entry block has %d params, signature has %d args",
			ErrInternal, len(params), len(c.sig.Args))
	}
	if c.sig.RetPtr != nil {
		c.retPtr = c.NewReg(vcode.ClassInt)
		ptrArg := abi.Arg{Slots: []abi.Slot{*c.sig.RetPtr}}
		c.be.BindArg(c, ptrArg, vcode.One(c.retPtr))
	}
	for i, p := range params {
		c.be.BindArg(c, c.sig.Args[i], c.ValueRegs(p))
	}
	return c.err
}
