package wide

import (
	"math/bits"
	"math/rand"
	"testing"

	"github.com/raymyers/lowgen/pkg/abi"
	"github.com/raymyers/lowgen/pkg/lower"
	"github.com/raymyers/lowgen/pkg/vcode"
)

// The decompositions are tested by execution: evalOps implements Ops by
// computing each per-slot operation immediately, so a composed sequence can
// be compared against a 128-bit reference model.

type evalInstr string

func (i evalInstr) String() string { return string(i) }

type evalBackend struct{}

func (evalBackend) Rules() *lower.RuleSet                             { return nil }
func (evalBackend) WordBits() uint                                    { return 64 }
func (evalBackend) Move(c *lower.Ctx, dst, src vcode.Reg)             {}
func (evalBackend) BindArg(c *lower.Ctx, a abi.Arg, d vcode.RegGroup) {}

type evalOps struct {
	c     *lower.Ctx
	vals  map[vcode.Reg]uint64
	carry uint64
	nz    bool
}

func newEval() *evalOps {
	return &evalOps{
		c:    lower.NewCtx(nil, evalBackend{}, lower.Config{}),
		vals: map[vcode.Reg]uint64{},
	}
}

func (o *evalOps) reg(v uint64) vcode.Reg {
	r := o.c.NewReg(vcode.ClassInt)
	o.vals[r] = v
	return r
}

func (o *evalOps) get(r vcode.Reg) uint64 { return o.vals[r] }

func (o *evalOps) group(lo, hi uint64) vcode.RegGroup {
	return vcode.Two(o.reg(lo), o.reg(hi))
}

func (o *evalOps) WordBits() uint           { return 64 }
func (o *evalOps) Zero() vcode.Reg          { return o.reg(0) }
func (o *evalOps) Imm(v uint64) vcode.Reg   { return o.reg(v) }

func (o *evalOps) Add(x, y vcode.Reg) vcode.Reg    { return o.reg(o.get(x) + o.get(y)) }
func (o *evalOps) Sub(x, y vcode.Reg) vcode.Reg    { return o.reg(o.get(x) - o.get(y)) }
func (o *evalOps) Mul(x, y vcode.Reg) vcode.Reg    { return o.reg(o.get(x) * o.get(y)) }
func (o *evalOps) And(x, y vcode.Reg) vcode.Reg    { return o.reg(o.get(x) & o.get(y)) }
func (o *evalOps) Or(x, y vcode.Reg) vcode.Reg     { return o.reg(o.get(x) | o.get(y)) }
func (o *evalOps) Xor(x, y vcode.Reg) vcode.Reg    { return o.reg(o.get(x) ^ o.get(y)) }
func (o *evalOps) Not(x vcode.Reg) vcode.Reg       { return o.reg(^o.get(x)) }

func (o *evalOps) UMulHi(x, y vcode.Reg) vcode.Reg {
	hi, _ := bits.Mul64(o.get(x), o.get(y))
	return o.reg(hi)
}

func (o *evalOps) Shl(x, amt vcode.Reg) vcode.Reg {
	return o.reg(o.get(x) << (o.get(amt) & 63))
}
func (o *evalOps) UShr(x, amt vcode.Reg) vcode.Reg {
	return o.reg(o.get(x) >> (o.get(amt) & 63))
}
func (o *evalOps) SShr(x, amt vcode.Reg) vcode.Reg {
	return o.reg(uint64(int64(o.get(x)) >> (o.get(amt) & 63)))
}
func (o *evalOps) ShlImm(x vcode.Reg, amt uint) vcode.Reg  { return o.reg(o.get(x) << amt) }
func (o *evalOps) UShrImm(x vcode.Reg, amt uint) vcode.Reg { return o.reg(o.get(x) >> amt) }
func (o *evalOps) SShrImm(x vcode.Reg, amt uint) vcode.Reg {
	return o.reg(uint64(int64(o.get(x)) >> amt))
}

func (o *evalOps) Clz(x vcode.Reg) vcode.Reg {
	return o.reg(uint64(bits.LeadingZeros64(o.get(x))))
}
func (o *evalOps) Ctz(x vcode.Reg) vcode.Reg {
	return o.reg(uint64(bits.TrailingZeros64(o.get(x))))
}
func (o *evalOps) Popcnt(x vcode.Reg) vcode.Reg {
	return o.reg(uint64(bits.OnesCount64(o.get(x))))
}

func (o *evalOps) AddFlags(x, y vcode.Reg) lower.FlagsProducer {
	sum, carry := bits.Add64(o.get(x), o.get(y), 0)
	o.carry = carry
	return lower.FlagsProducer{Instr: evalInstr("adds"), Result: o.reg(sum)}
}

func (o *evalOps) Adc(x, y vcode.Reg) lower.FlagsConsumer {
	sum, _ := bits.Add64(o.get(x), o.get(y), o.carry)
	return lower.FlagsConsumer{Instr: evalInstr("adc"), Result: o.reg(sum)}
}

func (o *evalOps) AdcChain(x, y vcode.Reg) lower.FlagsConsumer {
	sum, carry := bits.Add64(o.get(x), o.get(y), o.carry)
	o.carry = carry
	return lower.FlagsConsumer{Instr: evalInstr("adcs"), Result: o.reg(sum), Chains: true}
}

func (o *evalOps) SubFlags(x, y vcode.Reg) lower.FlagsProducer {
	diff, borrow := bits.Sub64(o.get(x), o.get(y), 0)
	o.carry = borrow
	return lower.FlagsProducer{Instr: evalInstr("subs"), Result: o.reg(diff)}
}

func (o *evalOps) Sbb(x, y vcode.Reg) lower.FlagsConsumer {
	diff, _ := bits.Sub64(o.get(x), o.get(y), o.carry)
	return lower.FlagsConsumer{Instr: evalInstr("sbc"), Result: o.reg(diff)}
}

func (o *evalOps) SbbChain(x, y vcode.Reg) lower.FlagsConsumer {
	diff, borrow := bits.Sub64(o.get(x), o.get(y), o.carry)
	o.carry = borrow
	return lower.FlagsConsumer{Instr: evalInstr("sbcs"), Result: o.reg(diff), Chains: true}
}

func (o *evalOps) TstImm(x vcode.Reg, mask uint64) lower.FlagsProducer {
	o.nz = o.get(x)&mask != 0
	return lower.FlagsProducer{Instr: evalInstr("tst")}
}

func (o *evalOps) CSelNE(ifSet, ifClear vcode.Reg) lower.FlagsConsumer {
	v := o.get(ifClear)
	if o.nz {
		v = o.get(ifSet)
	}
	return lower.FlagsConsumer{Instr: evalInstr("csel"), Result: o.reg(v)}
}

// --- 128-bit reference model ---

type u128 struct{ lo, hi uint64 }

func add128(x, y u128) u128 {
	lo, c := bits.Add64(x.lo, y.lo, 0)
	hi, _ := bits.Add64(x.hi, y.hi, c)
	return u128{lo, hi}
}

func sub128(x, y u128) u128 {
	lo, b := bits.Sub64(x.lo, y.lo, 0)
	hi, _ := bits.Sub64(x.hi, y.hi, b)
	return u128{lo, hi}
}

func mul128(x, y u128) u128 {
	hi, lo := bits.Mul64(x.lo, y.lo)
	hi += x.lo*y.hi + x.hi*y.lo
	return u128{lo, hi}
}

func shl128(x u128, amt uint) u128 {
	amt %= 128
	switch {
	case amt == 0:
		return x
	case amt < 64:
		return u128{x.lo << amt, x.hi<<amt | x.lo>>(64-amt)}
	default:
		return u128{0, x.lo << (amt - 64)}
	}
}

func ushr128(x u128, amt uint) u128 {
	amt %= 128
	switch {
	case amt == 0:
		return x
	case amt < 64:
		return u128{x.lo>>amt | x.hi<<(64-amt), x.hi >> amt}
	default:
		return u128{x.hi >> (amt - 64), 0}
	}
}

func sshr128(x u128, amt uint) u128 {
	amt %= 128
	signs := uint64(int64(x.hi) >> 63)
	switch {
	case amt == 0:
		return x
	case amt < 64:
		return u128{x.lo>>amt | x.hi<<(64-amt), uint64(int64(x.hi) >> amt)}
	default:
		return u128{uint64(int64(x.hi) >> (amt - 64)), signs}
	}
}

func rotl128(x u128, amt uint) u128 {
	amt %= 128
	if amt == 0 {
		return x
	}
	l := shl128(x, amt)
	r := ushr128(x, 128-amt)
	return u128{l.lo | r.lo, l.hi | r.hi}
}

func rotr128(x u128, amt uint) u128 {
	return rotl128(x, 128-amt%128)
}

func clz128(x u128) uint64 {
	if x.hi != 0 {
		return uint64(bits.LeadingZeros64(x.hi))
	}
	return 64 + uint64(bits.LeadingZeros64(x.lo))
}

func ctz128(x u128) uint64 {
	if x.lo != 0 {
		return uint64(bits.TrailingZeros64(x.lo))
	}
	return 64 + uint64(bits.TrailingZeros64(x.hi))
}

// --- test drivers ---

var interesting = []u128{
	{0, 0},
	{1, 0},
	{0, 1},
	{^uint64(0), 0},
	{0, ^uint64(0)},
	{^uint64(0), ^uint64(0)},
	{1 << 63, 0},
	{0, 1 << 63},
	{0xdeadbeefcafebabe, 0x0123456789abcdef},
	{0x8000000000000001, 0x7fffffffffffffff},
}

func randomPairs(n int) [][2]u128 {
	rng := rand.New(rand.NewSource(42))
	out := make([][2]u128, n)
	for i := range out {
		out[i] = [2]u128{
			{rng.Uint64(), rng.Uint64()},
			{rng.Uint64(), rng.Uint64()},
		}
	}
	return out
}

func allPairs() [][2]u128 {
	var out [][2]u128
	for _, x := range interesting {
		for _, y := range interesting {
			out = append(out, [2]u128{x, y})
		}
	}
	return append(out, randomPairs(200)...)
}

func checkBin(t *testing.T, name string,
	f func(*lower.Ctx, Ops, vcode.RegGroup, vcode.RegGroup) vcode.RegGroup,
	ref func(x, y u128) u128) {
	t.Helper()
	for _, pair := range allPairs() {
		o := newEval()
		g := f(o.c, o, o.group(pair[0].lo, pair[0].hi), o.group(pair[1].lo, pair[1].hi))
		if o.c.Err() != nil {
			t.Fatalf("%s: %v", name, o.c.Err())
		}
		got := u128{o.get(g.Reg(0)), o.get(g.Reg(1))}
		want := ref(pair[0], pair[1])
		if got != want {
			t.Fatalf("%s(%x:%x, %x:%x) = %x:%x, want %x:%x", name,
				pair[0].hi, pair[0].lo, pair[1].hi, pair[1].lo,
				got.hi, got.lo, want.hi, want.lo)
		}
	}
}

func TestAdd(t *testing.T) { checkBin(t, "add", Add, add128) }
func TestSub(t *testing.T) { checkBin(t, "sub", Sub, sub128) }
func TestMul(t *testing.T) { checkBin(t, "mul", Mul, mul128) }

func TestAddCarriesAcrossSlots(t *testing.T) {
	o := newEval()
	g := Add(o.c, o, o.group(^uint64(0), 0), o.group(1, 0))
	if got := (u128{o.get(g.Reg(0)), o.get(g.Reg(1))}); got != (u128{0, 1}) {
		t.Errorf("carry lost: got %x:%x, want 1:0", got.hi, got.lo)
	}
}

func TestBitwise(t *testing.T) {
	checkBin(t, "band", func(c *lower.Ctx, o Ops, x, y vcode.RegGroup) vcode.RegGroup {
		return Band(o, x, y)
	}, func(x, y u128) u128 { return u128{x.lo & y.lo, x.hi & y.hi} })
	checkBin(t, "bor", func(c *lower.Ctx, o Ops, x, y vcode.RegGroup) vcode.RegGroup {
		return Bor(o, x, y)
	}, func(x, y u128) u128 { return u128{x.lo | y.lo, x.hi | y.hi} })
	checkBin(t, "bxor", func(c *lower.Ctx, o Ops, x, y vcode.RegGroup) vcode.RegGroup {
		return Bxor(o, x, y)
	}, func(x, y u128) u128 { return u128{x.lo ^ y.lo, x.hi ^ y.hi} })
}

func TestBnot(t *testing.T) {
	for _, x := range interesting {
		o := newEval()
		g := Bnot(o, o.group(x.lo, x.hi))
		got := u128{o.get(g.Reg(0)), o.get(g.Reg(1))}
		if got != (u128{^x.lo, ^x.hi}) {
			t.Fatalf("bnot(%x:%x) = %x:%x", x.hi, x.lo, got.hi, got.lo)
		}
	}
}

var shiftAmounts = []uint{0, 1, 7, 31, 63, 64, 65, 100, 127, 128, 129, 192, 255}

func checkShift(t *testing.T, name string,
	f func(*lower.Ctx, Ops, vcode.RegGroup, vcode.Reg) vcode.RegGroup,
	ref func(x u128, amt uint) u128) {
	t.Helper()
	values := append(interesting[:len(interesting):len(interesting)],
		u128{0x0f0f0f0f0f0f0f0f, 0xf0f0f0f0f0f0f0f0})
	for _, x := range values {
		for _, amt := range shiftAmounts {
			o := newEval()
			g := f(o.c, o, o.group(x.lo, x.hi), o.reg(uint64(amt)))
			if o.c.Err() != nil {
				t.Fatalf("%s: %v", name, o.c.Err())
			}
			got := u128{o.get(g.Reg(0)), o.get(g.Reg(1))}
			want := ref(x, amt)
			if got != want {
				t.Fatalf("%s(%x:%x, %d) = %x:%x, want %x:%x", name,
					x.hi, x.lo, amt, got.hi, got.lo, want.hi, want.lo)
			}
		}
	}
}

func TestShl(t *testing.T)  { checkShift(t, "shl", Shl, shl128) }
func TestUShr(t *testing.T) { checkShift(t, "ushr", UShr, ushr128) }
func TestSShr(t *testing.T) { checkShift(t, "sshr", SShr, sshr128) }
func TestRotl(t *testing.T) { checkShift(t, "rotl", Rotl, rotl128) }
func TestRotr(t *testing.T) { checkShift(t, "rotr", Rotr, rotr128) }

func checkCount(t *testing.T, name string,
	f func(Ops, vcode.RegGroup) vcode.RegGroup,
	ref func(x u128) uint64) {
	t.Helper()
	for _, pair := range allPairs() {
		x := pair[0]
		o := newEval()
		g := f(o, o.group(x.lo, x.hi))
		got := u128{o.get(g.Reg(0)), o.get(g.Reg(1))}
		want := u128{ref(x), 0}
		if got != want {
			t.Fatalf("%s(%x:%x) = %x:%x, want %d", name, x.hi, x.lo, got.hi, got.lo, want.lo)
		}
	}
}

func TestClz(t *testing.T) { checkCount(t, "clz", Clz, clz128) }
func TestCtz(t *testing.T) { checkCount(t, "ctz", Ctz, ctz128) }
func TestPopcnt(t *testing.T) {
	checkCount(t, "popcnt", Popcnt, func(x u128) uint64 {
		return uint64(bits.OnesCount64(x.lo) + bits.OnesCount64(x.hi))
	})
}

func TestLog2(t *testing.T) {
	tests := []struct{ n, want uint }{{1, 0}, {2, 1}, {32, 5}, {64, 6}, {128, 7}}
	for _, tt := range tests {
		if got := log2(tt.n); got != tt.want {
			t.Errorf("log2(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}
