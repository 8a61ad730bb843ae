package lower

import (
	"testing"

	"github.com/raymyers/lowgen/pkg/vcode"
)

func TestWithFlagsEmitsContiguously(t *testing.T) {
	b := newTestBackend()
	c := NewCtx(nil, b, Config{})

	// Unrelated instruction before the pairing.
	emitf(c, "pre")

	r1 := c.NewReg(vcode.ClassInt)
	r2 := c.NewReg(vcode.ClassInt)
	got := c.WithFlags(
		FlagsProducer{Instr: testInstr("adds"), Result: c.NewReg(vcode.ClassInt)},
		FlagsConsumer{Instr: testInstr("adcs"), Result: r1, Chains: true},
		FlagsConsumer{Instr: testInstr("adc"), Result: r2},
	)
	emitf(c, "post")

	if c.Err() != nil {
		t.Fatalf("unexpected error: %v", c.Err())
	}
	if len(got) != 2 || got[0] != r1 || got[1] != r2 {
		t.Errorf("results = %v, want [%s %s]", got, r1, r2)
	}

	want := []string{"pre", "adds", "adcs", "adc", "post"}
	if len(c.Unit().Instrs) != len(want) {
		t.Fatalf("emitted %d instructions, want %d", len(c.Unit().Instrs), len(want))
	}
	for i, w := range want {
		if c.Unit().Instrs[i].String() != w {
			t.Errorf("instr %d = %s, want %s", i, c.Unit().Instrs[i], w)
		}
	}
}

func TestWithFlagsRejectsNoConsumers(t *testing.T) {
	c := NewCtx(nil, newTestBackend(), Config{})
	c.WithFlags(FlagsProducer{Instr: testInstr("cmp")})
	if c.Err() == nil {
		t.Error("pairing without consumers should be rejected")
	}
}

func TestWithFlagsRejectsTooManyConsumers(t *testing.T) {
	c := NewCtx(nil, newTestBackend(), Config{})
	cons := make([]FlagsConsumer, maxConsumers+1)
	for i := range cons {
		cons[i] = FlagsConsumer{Instr: testInstr("csel")}
	}
	c.WithFlags(FlagsProducer{Instr: testInstr("tst")}, cons...)
	if c.Err() == nil {
		t.Error("pairing beyond the consumer bound should be rejected")
	}
}

func TestWithFlagsRejectsNilInstr(t *testing.T) {
	c := NewCtx(nil, newTestBackend(), Config{})
	c.WithFlags(FlagsProducer{}, FlagsConsumer{Instr: testInstr("csel")})
	if c.Err() == nil {
		t.Error("nil producer should be rejected")
	}

	c2 := NewCtx(nil, newTestBackend(), Config{})
	c2.WithFlags(FlagsProducer{Instr: testInstr("cmp")}, FlagsConsumer{})
	if c2.Err() == nil {
		t.Error("nil consumer should be rejected")
	}
}
