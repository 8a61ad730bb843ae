package vcode

import "testing"

func TestRegEncoding(t *testing.T) {
	v := Virtual(12, ClassInt)
	if !v.IsVirtual() || v.IsReal() {
		t.Error("Virtual register misclassified")
	}
	if v.Index() != 12 {
		t.Errorf("Index() = %d, want 12", v.Index())
	}
	if v.Class() != ClassInt {
		t.Errorf("Class() = %s, want int", v.Class())
	}
	if v.String() != "v12" {
		t.Errorf("String() = %q, want v12", v.String())
	}

	r := Real(3, ClassFloat)
	if !r.IsReal() || r.IsVirtual() {
		t.Error("Real register misclassified")
	}
	if r.Index() != 3 {
		t.Errorf("Index() = %d, want 3", r.Index())
	}
	if r.Class() != ClassFloat {
		t.Errorf("Class() = %s, want float", r.Class())
	}

	if NoReg.Valid() {
		t.Error("NoReg should be invalid")
	}
	if Virtual(0, ClassInt) == NoReg {
		t.Error("Virtual(0) must be distinct from NoReg")
	}
	if Virtual(5, ClassInt) == Real(5, ClassInt) {
		t.Error("virtual and real registers with equal index must differ")
	}
	if Virtual(5, ClassInt) == Virtual(5, ClassFloat) {
		t.Error("registers of different classes must differ")
	}
}

func TestRegGroup(t *testing.T) {
	a, b := Virtual(0, ClassInt), Virtual(1, ClassInt)

	one := One(a)
	if one.Len() != 1 || one.Reg(0) != a {
		t.Error("One group malformed")
	}
	if r, ok := one.Only(); !ok || r != a {
		t.Error("Only() should return the single register")
	}

	two := Two(a, b)
	if two.Len() != 2 || two.Reg(0) != a || two.Reg(1) != b {
		t.Error("Two group malformed")
	}
	if _, ok := two.Only(); ok {
		t.Error("Only() should fail on a two-slot group")
	}
	regs := two.Regs()
	if len(regs) != 2 || regs[0] != a || regs[1] != b {
		t.Error("Regs() slice malformed")
	}

	// Groups are values; the same slots compare equal.
	if Two(a, b) != two {
		t.Error("equal groups should compare equal")
	}
	if Two(b, a) == two {
		t.Error("slot order must matter")
	}
}

func TestUnitReserveCallSpace(t *testing.T) {
	u := &Unit{}
	u.ReserveCallSpace(16, 0)
	u.ReserveCallSpace(8, 32)
	u.ReserveCallSpace(24, 16)

	if u.CallArgSpace != 24 {
		t.Errorf("CallArgSpace = %d, want 24", u.CallArgSpace)
	}
	if u.CallRetSpace != 32 {
		t.Errorf("CallRetSpace = %d, want 32", u.CallRetSpace)
	}
}

type fakeInstr string

func (f fakeInstr) String() string { return string(f) }

func TestListing(t *testing.T) {
	u := &Unit{Name: "f"}
	u.Append(LabelMark{L: 1})
	u.Append(fakeInstr("mov v0, v1"))
	u.Append(fakeInstr("ret"))

	want := "f:\nL1:\n\tmov v0, v1\n\tret\n"
	if got := u.Listing(); got != want {
		t.Errorf("Listing() = %q, want %q", got, want)
	}
}
