package lower

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/raymyers/lowgen/pkg/abi"
	"github.com/raymyers/lowgen/pkg/ir"
	"github.com/raymyers/lowgen/pkg/vcode"
)

type testInstr string

func (i testInstr) String() string { return string(i) }

func emitf(c *Ctx, format string, args ...any) {
	c.Emit(testInstr(fmt.Sprintf(format, args...)))
}

type testBackend struct {
	rules *RuleSet
	word  uint
}

func newTestBackend() *testBackend {
	return &testBackend{rules: NewRuleSet(), word: 64}
}

func (b *testBackend) Rules() *RuleSet { return b.rules }
func (b *testBackend) WordBits() uint  { return b.word }

func (b *testBackend) Move(c *Ctx, dst, src vcode.Reg) {
	emitf(c, "mov %s, %s", dst, src)
}

func (b *testBackend) BindArg(c *Ctx, arg abi.Arg, dst vcode.RegGroup) {
	for i := range arg.Slots {
		emitf(c, "bind %s <- %s", dst.Reg(i), arg.Slots[i])
	}
}

func init() {
	abi.Register(&abi.Convention{
		Name:       "lt",
		WordBits:   64,
		IntArgRegs: []vcode.Reg{vcode.Real(0, vcode.ClassInt), vcode.Real(1, vcode.ClassInt)},
		IntRetRegs: []vcode.Reg{vcode.Real(0, vcode.ClassInt)},
		StackAlign: 8,
	})
}

// addReturnRule installs a minimal return rule so test functions terminate.
func addReturnRule(b *testBackend) {
	b.rules.Add(ir.OpReturn, "ret", 1, func(c *Ctx, i ir.Inst) (vcode.Output, bool) {
		emitf(c, "ret")
		return vcode.NoOutput, true
	})
}

// buildAddFn builds: entry(v0: i64, v1: i64) { v2 = iadd v0, v1; return v2 }
func buildAddFn() *ir.Function {
	sig := ir.Sig{Conv: "lt", Params: []ir.Param{{Ty: ir.I64}, {Ty: ir.I64}}, Results: []ir.Param{{Ty: ir.I64}}}
	fn := ir.NewFunction("add", sig)
	entry := fn.AddBlock(ir.I64, ir.I64)
	params := fn.BlockParams(entry)
	sum := fn.Append(entry, ir.InstData{Op: ir.OpIadd, Args: params}, ir.I64)
	fn.Append(entry, ir.InstData{Op: ir.OpReturn, Args: sum})
	return fn
}

func addFn(t *testing.T) *ir.Function {
	t.Helper()
	return buildAddFn()
}

// addJumpRule installs a jump rule that runs the branch-argument moves.
func addJumpRule(b *testBackend) {
	b.rules.Add(ir.OpJump, "jump", 1, func(c *Ctx, i ir.Inst) (vcode.Output, bool) {
		d := c.Fn.Data(i)
		c.BranchArgMoves(d.Targets[0])
		emitf(c, "b %s", c.BlockLabel(d.Targets[0].Block))
		return vcode.NoOutput, true
	})
}

func iaddRule(name string) RuleFn {
	return func(c *Ctx, i ir.Inst) (vcode.Output, bool) {
		d := c.Fn.Data(i)
		rd := c.OutReg(i)
		emitf(c, "%s %s, %s, %s", name, rd, c.ValueReg(d.Args[0]), c.ValueReg(d.Args[1]))
		return vcode.Out1(vcode.One(rd)), true
	}
}

func TestHigherPriorityWins(t *testing.T) {
	b := newTestBackend()
	b.rules.Add(ir.OpIadd, "low", 1, iaddRule("low"))
	b.rules.Add(ir.OpIadd, "high", 2, iaddRule("high"))
	addReturnRule(b)

	unit, err := Function(addFn(t), b, Config{})
	if err != nil {
		t.Fatalf("Function: %v", err)
	}
	listing := unit.Listing()
	if !strings.Contains(listing, "high") {
		t.Errorf("expected high-priority rule to fire:\n%s", listing)
	}
	if strings.Contains(listing, "low") {
		t.Errorf("low-priority rule should not fire:\n%s", listing)
	}
}

func TestEqualPriorityUsesRegistrationOrder(t *testing.T) {
	b := newTestBackend()
	b.rules.Add(ir.OpIadd, "first", 1, iaddRule("first"))
	b.rules.Add(ir.OpIadd, "second", 1, iaddRule("second"))
	addReturnRule(b)

	unit, err := Function(addFn(t), b, Config{})
	if err != nil {
		t.Fatalf("Function: %v", err)
	}
	if !strings.Contains(unit.Listing(), "first") {
		t.Errorf("expected first-registered rule to fire:\n%s", unit.Listing())
	}
}

func TestBacktracksToNextRule(t *testing.T) {
	b := newTestBackend()
	b.rules.Add(ir.OpIadd, "picky", 2, func(c *Ctx, i ir.Inst) (vcode.Output, bool) {
		// Matches nothing, emits nothing.
		return nil, false
	})
	b.rules.Add(ir.OpIadd, "fallback", 1, iaddRule("fallback"))
	addReturnRule(b)

	unit, err := Function(addFn(t), b, Config{})
	if err != nil {
		t.Fatalf("Function: %v", err)
	}
	if !strings.Contains(unit.Listing(), "fallback") {
		t.Errorf("expected fallback rule after backtrack:\n%s", unit.Listing())
	}
}

func TestNoRuleMatched(t *testing.T) {
	b := newTestBackend()
	addReturnRule(b)

	_, err := Function(addFn(t), b, Config{})
	if !errors.Is(err, ErrNoRule) {
		t.Errorf("err = %v, want ErrNoRule", err)
	}
}

func TestEmissionBeforeCommitIsAnError(t *testing.T) {
	b := newTestBackend()
	b.rules.Add(ir.OpIadd, "leaky", 2, func(c *Ctx, i ir.Inst) (vcode.Output, bool) {
		emitf(c, "leak")
		return nil, false
	})
	b.rules.Add(ir.OpIadd, "fallback", 1, iaddRule("fallback"))
	addReturnRule(b)

	_, err := Function(addFn(t), b, Config{})
	if !errors.Is(err, ErrInternal) {
		t.Errorf("err = %v, want ErrInternal", err)
	}
}

func TestOutputMustBeResultGroup(t *testing.T) {
	b := newTestBackend()
	b.rules.Add(ir.OpIadd, "stray", 1, func(c *Ctx, i ir.Inst) (vcode.Output, bool) {
		g := c.TempGroup(ir.I64)
		emitf(c, "add %s", g.Reg(0))
		return vcode.Out1(g), true
	})
	addReturnRule(b)

	_, err := Function(addFn(t), b, Config{})
	if !errors.Is(err, ErrInternal) {
		t.Errorf("err = %v, want ErrInternal", err)
	}
}

func TestGroupLen(t *testing.T) {
	tests := []struct {
		ty   ir.Type
		word uint
		want int
	}{
		{ir.I8, 64, 1},
		{ir.I32, 64, 1},
		{ir.I64, 64, 1},
		{ir.I128, 64, 2},
		{ir.I64, 32, 2},
		{ir.I128, 32, 4},
		{ir.F64, 64, 1},
		{ir.I32X4, 64, 1},
	}
	for _, tt := range tests {
		if got := GroupLen(tt.ty, tt.word); got != tt.want {
			t.Errorf("GroupLen(%s, %d) = %d, want %d", tt.ty, tt.word, got, tt.want)
		}
	}
}

func TestValueRegsStable(t *testing.T) {
	b := newTestBackend()
	c := NewCtx(addFn(t), b, Config{})

	v := ir.Value(0)
	g1 := c.ValueRegs(v)
	g2 := c.ValueRegs(v)
	if g1 != g2 {
		t.Error("the same value must map to the same register group")
	}
}

func TestBranchArgMoves(t *testing.T) {
	sig := ir.Sig{Conv: "lt", Params: []ir.Param{{Ty: ir.I64}}}
	fn := ir.NewFunction("looplike", sig)
	entry := fn.AddBlock(ir.I64)
	next := fn.AddBlock(ir.I64)
	p := fn.BlockParams(entry)
	fn.Append(entry, ir.InstData{Op: ir.OpJump, Targets: []ir.Target{{Block: next, Args: p}}})
	fn.Append(next, ir.InstData{Op: ir.OpReturn})

	b := newTestBackend()
	addJumpRule(b)
	addReturnRule(b)

	unit, err := Function(fn, b, Config{})
	if err != nil {
		t.Fatalf("Function: %v", err)
	}
	listing := unit.Listing()
	if !strings.Contains(listing, "mov ") {
		t.Errorf("expected a parameter move before the jump:\n%s", listing)
	}
	movLine := strings.Index(listing, "mov ")
	bLine := strings.Index(listing, "b L")
	if movLine > bLine {
		t.Errorf("moves must precede the branch:\n%s", listing)
	}
}

func TestParallelLowering(t *testing.T) {
	b := newTestBackend()
	b.rules.Add(ir.OpIadd, "add", 1, iaddRule("add"))
	addReturnRule(b)

	unit, err := Function(buildAddFn(), b, Config{})
	if err != nil {
		t.Fatalf("Function: %v", err)
	}
	want := unit.Listing()

	const n = 8
	listings := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for g := 0; g < n; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			u, err := Function(buildAddFn(), b, Config{})
			if err != nil {
				errs[g] = err
				return
			}
			listings[g] = u.Listing()
		}(g)
	}
	wg.Wait()
	for g := 0; g < n; g++ {
		if errs[g] != nil {
			t.Fatalf("goroutine %d: %v", g, errs[g])
		}
		if listings[g] != want {
			t.Errorf("goroutine %d listing differs:\ngot:\n%s\nwant:\n%s", g, listings[g], want)
		}
	}
}

// applyMoves interprets the emitted mov instructions over an environment
// seeded with the entry parameters' values.
func applyMoves(unit *vcode.Unit, env map[string]string) {
	for _, in := range unit.Instrs {
		s := in.String()
		if !strings.HasPrefix(s, "mov ") {
			continue
		}
		parts := strings.Split(s[len("mov "):], ", ")
		if len(parts) != 2 {
			continue
		}
		v, ok := env[parts[1]]
		if !ok {
			v = parts[1]
		}
		env[parts[0]] = v
	}
}

func TestBranchArgSwapUsesScratch(t *testing.T) {
	// loop(v2, v3) branches to itself with its own parameters swapped; the
	// move batch must not overwrite one source before the other reads it.
	sig := ir.Sig{Conv: "lt", Params: []ir.Param{{Ty: ir.I64}, {Ty: ir.I64}}}
	fn := ir.NewFunction("spin", sig)
	entry := fn.AddBlock(ir.I64, ir.I64)
	loop := fn.AddBlock(ir.I64, ir.I64)
	p := fn.BlockParams(entry)
	fn.Append(entry, ir.InstData{Op: ir.OpJump, Targets: []ir.Target{{Block: loop, Args: p}}})
	q := fn.BlockParams(loop)
	fn.Append(loop, ir.InstData{Op: ir.OpJump, Targets: []ir.Target{{Block: loop, Args: []ir.Value{q[1], q[0]}}}})

	b := newTestBackend()
	addJumpRule(b)
	unit, err := Function(fn, b, Config{})
	if err != nil {
		t.Fatalf("Function: %v", err)
	}

	env := map[string]string{"v0": "A", "v1": "B"}
	applyMoves(unit, env)
	if env["v2"] != "B" || env["v3"] != "A" {
		t.Errorf("after one swap iteration v2 = %q, v3 = %q, want \"B\", \"A\":\n%s",
			env["v2"], env["v3"], unit.Listing())
	}
}

func TestTempGroupSlotLimit(t *testing.T) {
	b := &testBackend{rules: NewRuleSet(), word: 32}
	c := NewCtx(nil, b, Config{})
	c.TempGroup(ir.I128)
	if !errors.Is(c.Err(), ErrInternal) {
		t.Errorf("err = %v, want ErrInternal", c.Err())
	}
}

func TestEntryParamCountMismatch(t *testing.T) {
	sig := ir.Sig{Conv: "lt", Params: []ir.Param{{Ty: ir.I64}, {Ty: ir.I64}}}
	fn := ir.NewFunction("bad", sig)
	entry := fn.AddBlock(ir.I64) // one param, signature has two
	fn.Append(entry, ir.InstData{Op: ir.OpReturn})

	b := newTestBackend()
	addReturnRule(b)

	_, err := Function(fn, b, Config{})
	if !errors.Is(err, ErrInternal) {
		t.Errorf("err = %v, want ErrInternal", err)
	}
}

func TestReturnAreaPointerCaptured(t *testing.T) {
	// Two i64 results overflow the single return register of "lt".
	sig := ir.Sig{
		Conv:    "lt",
		Results: []ir.Param{{Ty: ir.I64}, {Ty: ir.I64}},
	}
	fn := ir.NewFunction("big", sig)
	entry := fn.AddBlock()
	zero := fn.Append(entry, ir.InstData{Op: ir.OpIconst}, ir.I64)
	fn.Append(entry, ir.InstData{Op: ir.OpReturn, Args: []ir.Value{zero[0], zero[0]}})

	b := newTestBackend()
	b.rules.Add(ir.OpIconst, "iconst", 1, func(c *Ctx, i ir.Inst) (vcode.Output, bool) {
		rd := c.OutReg(i)
		emitf(c, "movz %s, #0", rd)
		return vcode.Out1(vcode.One(rd)), true
	})
	b.rules.Add(ir.OpReturn, "ret", 1, func(c *Ctx, i ir.Inst) (vcode.Output, bool) {
		if !c.RetPtr().Valid() {
			t.Error("RetPtr should be captured for overflowing returns")
		}
		emitf(c, "ret")
		return vcode.NoOutput, true
	})

	unit, err := Function(fn, b, Config{})
	if err != nil {
		t.Fatalf("Function: %v", err)
	}
	if unit.StackRetSpace != 16 {
		t.Errorf("StackRetSpace = %d, want 16", unit.StackRetSpace)
	}
	if !strings.Contains(unit.Listing(), "bind ") {
		t.Errorf("expected a bind for the return-area pointer:\n%s", unit.Listing())
	}
}
