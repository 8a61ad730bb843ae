// Package lower implements the rule-matching instruction selection engine.
// Targets register prioritized rewrite rules per opcode; the engine walks a
// function's blocks in layout order, dispatches each instruction to the
// first matching rule, and collects the emitted abstract machine
// instructions into a vcode.Unit.
package lower

import (
	"errors"
	"fmt"

	"github.com/raymyers/lowgen/pkg/abi"
	"github.com/raymyers/lowgen/pkg/ir"
	"github.com/raymyers/lowgen/pkg/vcode"
)

// ErrNoRule reports that no rewrite rule matched an instruction. This is an
// internal error: the target's rule table is incomplete.
var ErrNoRule = errors.New("lower: no rule matched")

// ErrInternal reports a violated engine invariant.
var ErrInternal = errors.New("lower: internal error")

// RuleFn attempts one rewrite of inst. Matching must be side-effect-free:
// a rule may call extractors and pure constructors freely, but must not emit
// until it is certain to succeed. On success it defines every result value
// of inst in that value's register group and returns the groups, in result
// order; on failure it returns ok=false having emitted nothing, and the
// engine backtracks to the next candidate.
type RuleFn func(c *Ctx, inst ir.Inst) (out vcode.Output, ok bool)

type rule struct {
	name string
	prio int
	seq  int
	fn   RuleFn
}

// RuleSet is an ordered rule table keyed by opcode. Rules with higher
// priority are tried first; ties are broken by registration order. Lists are
// kept in dispatch order on Add, so a populated table is read-only during
// lowering and safe to share across parallel lowerings.
type RuleSet struct {
	byOp map[ir.Opcode][]rule
	seq  int
}

// NewRuleSet creates an empty rule table.
func NewRuleSet() *RuleSet {
	return &RuleSet{byOp: map[ir.Opcode][]rule{}}
}

// Add registers a rule for op, inserting it after rules of higher or equal
// priority. The name appears in diagnostics only.
func (rs *RuleSet) Add(op ir.Opcode, name string, prio int, fn RuleFn) {
	list := rs.byOp[op]
	r := rule{name: name, prio: prio, seq: rs.seq, fn: fn}
	rs.seq++
	i := len(list)
	for i > 0 && list[i-1].prio < prio {
		i--
	}
	list = append(list, rule{})
	copy(list[i+1:], list[i:])
	list[i] = r
	rs.byOp[op] = list
}

func (rs *RuleSet) rulesFor(op ir.Opcode) []rule { return rs.byOp[op] }

// Backend is the capability surface a target supplies to the engine. The
// engine calls these but never implements them.
type Backend interface {
	// Rules returns the target's rule table. The table must be fully
	// populated before lowering begins and never mutated afterward.
	Rules() *RuleSet
	// WordBits returns the native integer register width.
	WordBits() uint
	// Move emits a register-to-register copy.
	Move(c *Ctx, dst, src vcode.Reg)
	// BindArg copies one resolved incoming argument into dst at function
	// entry.
	BindArg(c *Ctx, arg abi.Arg, dst vcode.RegGroup)
}

// Config carries the target-configuration inputs the engine consumes.
type Config struct {
	// ElideTrapGuards omits guard sequences for runtime traps the
	// surrounding configuration proves unreachable.
	ElideTrapGuards bool
}

// Ctx is the per-function lowering context: the IR view, the value-to-
// register-group mapping, and the emission stream. A Ctx is used by exactly
// one goroutine.
type Ctx struct {
	Fn  *ir.Function
	Cfg Config

	be     Backend
	sig    *abi.Signature
	unit   *vcode.Unit
	vals   map[ir.Value]vcode.RegGroup
	labels map[ir.Block]vcode.Label
	nextV  int
	nextL  vcode.Label
	retPtr vcode.Reg
	err    error
}

// NewCtx creates a lowering context. fn may be nil for contexts used only as
// emission buffers (target helpers and their tests).
func NewCtx(fn *ir.Function, be Backend, cfg Config) *Ctx {
	name := ""
	if fn != nil {
		name = fn.Name
	}
	return &Ctx{
		Fn:     fn,
		Cfg:    cfg,
		be:     be,
		unit:   &vcode.Unit{Name: name},
		vals:   map[ir.Value]vcode.RegGroup{},
		labels: map[ir.Block]vcode.Label{},
	}
}

// Errf records a fatal internal error. Lowering of the function aborts at
// the next engine step; partial output is discarded by the caller.
func (c *Ctx) Errf(format string, args ...any) {
	if c.err == nil {
		c.err = fmt.Errorf("%w: "+format, append([]any{ErrInternal}, args...)...)
	}
}

// Err returns the recorded fatal error, if any.
func (c *Ctx) Err() error { return c.err }

// Emit appends an abstract machine instruction to the output stream.
func (c *Ctx) Emit(i vcode.Instr) { c.unit.Append(i) }

// NewReg allocates a fresh virtual register.
func (c *Ctx) NewReg(class vcode.RegClass) vcode.Reg {
	r := vcode.Virtual(c.nextV, class)
	c.nextV++
	return r
}

// GroupLen returns the register-slot count for a value of type ty on a
// target with the given word size. The count depends on nothing else.
func GroupLen(ty ir.Type, wordBits uint) int {
	if ty.IsFloat() || ty.IsVector() {
		return 1
	}
	n := int((ty.Bits() + wordBits - 1) / wordBits)
	if n < 1 {
		n = 1
	}
	return n
}

func classOf(ty ir.Type) vcode.RegClass {
	if ty.IsFloat() || ty.IsVector() {
		return vcode.ClassFloat
	}
	return vcode.ClassInt
}

// TempGroup allocates a fresh register group shaped for ty.
func (c *Ctx) TempGroup(ty ir.Type) vcode.RegGroup {
	class := classOf(ty)
	switch n := GroupLen(ty, c.be.WordBits()); n {
	case 1:
		return vcode.One(c.NewReg(class))
	case 2:
		return vcode.Two(c.NewReg(class), c.NewReg(class))
	default:
		c.Errf("type %s needs %d register slots, at most 2 supported", ty, n)
		return vcode.One(c.NewReg(class))
	}
}

// ValueRegs returns the register group backing v, allocating it on first
// use. The same value always yields the same group.
func (c *Ctx) ValueRegs(v ir.Value) vcode.RegGroup {
	if g, ok := c.vals[v]; ok {
		return g
	}
	g := c.TempGroup(c.Fn.ValueType(v))
	c.vals[v] = g
	return g
}

// ValueReg returns the single register backing a one-slot value.
func (c *Ctx) ValueReg(v ir.Value) vcode.Reg {
	g := c.ValueRegs(v)
	r, ok := g.Only()
	if !ok {
		c.Errf("value %d of type %s is not single-register", v, c.Fn.ValueType(v))
	}
	return r
}

// OutRegs returns the register groups for every result of inst, in order.
func (c *Ctx) OutRegs(inst ir.Inst) vcode.Output {
	data := c.Fn.Data(inst)
	out := make(vcode.Output, len(data.Results))
	for i, r := range data.Results {
		out[i] = c.ValueRegs(r)
	}
	return out
}

// OutReg returns the single register of inst's only result.
func (c *Ctx) OutReg(inst ir.Inst) vcode.Reg {
	data := c.Fn.Data(inst)
	if len(data.Results) != 1 {
		c.Errf("instruction %s has %d results, want 1", data.Op, len(data.Results))
		return vcode.NoReg
	}
	return c.ValueReg(data.Results[0])
}

// Sig returns the resolved ABI signature of the function being lowered.
func (c *Ctx) Sig() *abi.Signature { return c.sig }

// RetPtr returns the register holding the caller-supplied return-area
// pointer, or NoReg when returns fit in registers.
func (c *Ctx) RetPtr() vcode.Reg { return c.retPtr }

// BlockLabel returns the label of block b, allocating it on first use.
func (c *Ctx) BlockLabel(b ir.Block) vcode.Label {
	if l, ok := c.labels[b]; ok {
		return l
	}
	c.nextL++
	c.labels[b] = c.nextL
	return c.nextL
}

// Unit returns the output stream under construction.
func (c *Ctx) Unit() *vcode.Unit { return c.unit }

// --- shared extractors ---

// TypeOf returns the type of v.
func (c *Ctx) TypeOf(v ir.Value) ir.Type { return c.Fn.ValueType(v) }

// Def returns the instruction defining v; ok=false for block parameters.
func (c *Ctx) Def(v ir.Value) (ir.Inst, bool) { return c.Fn.ValueDef(v) }

// MatchOp returns the instruction defining v when its opcode is op.
func (c *Ctx) MatchOp(v ir.Value, op ir.Opcode) (ir.Inst, bool) {
	inst, ok := c.Fn.ValueDef(v)
	if !ok || c.Fn.Data(inst).Op != op {
		return 0, false
	}
	return inst, true
}

// IconstVal returns the constant bits when v is defined by iconst.
func (c *Ctx) IconstVal(v ir.Value) (int64, bool) {
	inst, ok := c.MatchOp(v, ir.OpIconst)
	if !ok {
		return 0, false
	}
	return c.Fn.Data(inst).Imm, true
}

// BranchArgMoves emits the copies carrying branch arguments into the target
// block's parameter groups. Branch rules call this before the jump.
//
// The batch is a parallel copy: every source is read as of the branch, so a
// move whose destination feeds another pending move must not run first. Moves
// are emitted reads-before-writes; a cycle (e.g. a swap on a self-loop) is
// cut by preserving one destination in a scratch register.
func (c *Ctx) BranchArgMoves(t ir.Target) {
	params := c.Fn.BlockParams(t.Block)
	if len(params) != len(t.Args) {
		c.Errf("branch to block %d passes %d args for %d params", t.Block, len(t.Args), len(params))
		return
	}
	type move struct{ dst, src vcode.Reg }
	var pending []move
	for i, arg := range t.Args {
		src := c.ValueRegs(arg)
		dst := c.ValueRegs(params[i])
		if src.Len() != dst.Len() {
			c.Errf("branch arg %d: group shape mismatch", i)
			return
		}
		for k := 0; k < src.Len(); k++ {
			if src.Reg(k) != dst.Reg(k) {
				pending = append(pending, move{dst.Reg(k), src.Reg(k)})
			}
		}
	}
	for len(pending) > 0 {
		emitted := false
		for i, m := range pending {
			blocked := false
			for j, o := range pending {
				if j != i && o.src == m.dst {
					blocked = true
					break
				}
			}
			if !blocked {
				c.be.Move(c, m.dst, m.src)
				pending = append(pending[:i], pending[i+1:]...)
				emitted = true
				break
			}
		}
		if emitted {
			continue
		}
		// Every remaining destination is still read by another move.
		d := pending[0].dst
		scratch := c.NewReg(d.Class())
		c.be.Move(c, scratch, d)
		for i := range pending {
			if pending[i].src == d {
				pending[i].src = scratch
			}
		}
	}
}

// lowerInst dispatches inst to the rule table.
func (c *Ctx) lowerInst(inst ir.Inst) error {
	data := c.Fn.Data(inst)
	rules := c.be.Rules().rulesFor(data.Op)
	before := len(c.unit.Instrs)
	for _, r := range rules {
		out, ok := r.fn(c, inst)
		if c.err != nil {
			return c.err
		}
		if !ok {
			if len(c.unit.Instrs) != before {
				return fmt.Errorf("%w: rule %q for %s emitted before committing", ErrInternal, r.name, data.Op)
			}
			continue
		}
		return c.checkOutput(inst, r.name, out)
	}
	return fmt.Errorf("%w: %s (inst %d)", ErrNoRule, data.Op, inst)
}

// checkOutput enforces the output invariants: one group per result, each
// group being the result value's own group with the slot count its type
// demands.
func (c *Ctx) checkOutput(inst ir.Inst, name string, out vcode.Output) error {
	data := c.Fn.Data(inst)
	if len(out) != len(data.Results) {
		return fmt.Errorf("%w: rule %q for %s produced %d outputs, want %d",
			ErrInternal, name, data.Op, len(out), len(data.Results))
	}
	for i, r := range data.Results {
		ty := c.Fn.ValueType(r)
		want := GroupLen(ty, c.be.WordBits())
		if out[i].Len() != want {
			return fmt.Errorf("%w: rule %q for %s: output %d has %d slots, type %s wants %d",
				ErrInternal, name, data.Op, i, out[i].Len(), ty, want)
		}
		if out[i] != c.ValueRegs(r) {
			return fmt.Errorf("%w: rule %q for %s: output %d does not define the result's register group",
				ErrInternal, name, data.Op, i)
		}
	}
	return nil
}
