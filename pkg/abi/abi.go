// Package abi resolves call signatures to concrete argument and return
// locations: registers or stack slots, with sub-word extension modes, plus
// the synthetic return-area pointer when return values overflow the register
// budget. Resolution is a pure function of the type list and convention.
package abi

import (
	"errors"
	"fmt"

	"github.com/raymyers/lowgen/pkg/ir"
	"github.com/raymyers/lowgen/pkg/vcode"
)

// ErrUnknownConv reports a calling convention no target registered.
var ErrUnknownConv = errors.New("abi: unknown calling convention")

// ExtMode is the sub-word extension applied when a value narrower than a
// register crosses the call boundary.
type ExtMode uint8

const (
	ExtNone ExtMode = iota
	ExtZero
	ExtSign
)

func (e ExtMode) String() string {
	switch e {
	case ExtZero:
		return "zext"
	case ExtSign:
		return "sext"
	}
	return "none"
}

// LocKind distinguishes register slots from stack slots.
type LocKind uint8

const (
	KindReg LocKind = iota
	KindStack
)

// Slot is one register-sized piece of an argument or return value.
type Slot struct {
	Kind   LocKind
	Reg    vcode.Reg // valid when Kind == KindReg
	Offset int64     // byte offset when Kind == KindStack
	Bits   uint      // width of this piece
	Ext    ExtMode
}

func (s Slot) String() string {
	if s.Kind == KindReg {
		return fmt.Sprintf("reg(%s, %db, %s)", s.Reg, s.Bits, s.Ext)
	}
	return fmt.Sprintf("stack(+%d, %db, %s)", s.Offset, s.Bits, s.Ext)
}

// Arg is one logical argument or return value resolved to its slots. Values
// wider than one register occupy several slots, low slot first.
type Arg struct {
	Ty    ir.Type
	Slots []Slot
}

// InRetArea reports whether this return value is redirected through the
// caller-supplied return area rather than registers.
func (a Arg) InRetArea() bool {
	return len(a.Slots) > 0 && a.Slots[0].Kind == KindStack
}

// Signature is the fully resolved locations for one call. Created once per
// call site at lowering time and immutable afterward.
type Signature struct {
	Conv          string
	Args          []Arg
	Rets          []Arg
	RetPtr        *Slot // caller-supplied return-area pointer, nil if unused
	StackArgSpace int64
	StackRetSpace int64
}

// Convention describes one target calling convention. Conventions are
// registered by target packages at init time; the table is immutable
// afterward and safe for concurrent reads across parallel lowerings.
type Convention struct {
	Name          string
	WordBits      uint
	IntArgRegs    []vcode.Reg
	FloatArgRegs  []vcode.Reg
	IntRetRegs    []vcode.Reg
	FloatRetRegs  []vcode.Reg
	RetPtrReg     vcode.Reg // dedicated return-area register; NoReg to prepend an argument
	ExtendSubword bool      // whether sub-word arguments are widened to a full register
	StackAlign    int64
}

var convs = map[string]*Convention{}

// Register adds a convention to the process-wide table. It must only be
// called from init functions; duplicate names are a programming error.
func Register(c *Convention) {
	if _, dup := convs[c.Name]; dup {
		panic("abi: duplicate convention " + c.Name)
	}
	convs[c.Name] = c
}

// Lookup returns the registered convention with the given name.
func Lookup(name string) (*Convention, bool) {
	c, ok := convs[name]
	return c, ok
}

// Resolve computes the Signature for sig under its calling convention.
func Resolve(sig *ir.Sig) (*Signature, error) {
	conv, ok := convs[sig.Conv]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConv, sig.Conv)
	}

	out := &Signature{Conv: conv.Name}

	// Returns are placed first: if they overflow the return registers the
	// whole return footprint moves to a caller-allocated area and a pointer
	// argument is added before ordinary argument assignment.
	retWalk := newWalker(conv, conv.IntRetRegs, conv.FloatRetRegs)
	rets := make([]Arg, 0, len(sig.Results))
	overflow := false
	for _, p := range sig.Results {
		a, ok := retWalk.tryRegs(p)
		if !ok {
			overflow = true
			break
		}
		rets = append(rets, a)
	}

	argWalk := newWalker(conv, conv.IntArgRegs, conv.FloatArgRegs)
	if overflow {
		// Redirect every return value to the return area so callee stores
		// are uniform, and claim the pointer location.
		area := newWalker(conv, nil, nil)
		rets = rets[:0]
		for _, p := range sig.Results {
			rets = append(rets, area.assign(p))
		}
		out.StackRetSpace = align(area.stackOff, conv.StackAlign)

		ptr := Slot{Kind: KindReg, Bits: conv.WordBits}
		if conv.RetPtrReg.Valid() {
			ptr.Reg = conv.RetPtrReg
		} else if len(argWalk.intRegs) > 0 {
			ptr.Reg = argWalk.intRegs[0]
			argWalk.intRegs = argWalk.intRegs[1:]
		} else {
			ptr.Kind = KindStack
			ptr.Offset = argWalk.takeStack(conv.WordBits)
		}
		out.RetPtr = &ptr
	}
	out.Rets = rets

	for _, p := range sig.Params {
		out.Args = append(out.Args, argWalk.assign(p))
	}
	out.StackArgSpace = align(argWalk.stackOff, conv.StackAlign)
	return out, nil
}

// walker threads the remaining register budget and the running stack offset
// through an in-order assignment.
type walker struct {
	conv     *Convention
	intRegs  []vcode.Reg
	fltRegs  []vcode.Reg
	stackOff int64
}

func newWalker(conv *Convention, intRegs, fltRegs []vcode.Reg) *walker {
	return &walker{conv: conv, intRegs: intRegs, fltRegs: fltRegs}
}

func (w *walker) takeStack(bits uint) int64 {
	word := int64(w.conv.WordBits / 8)
	off := w.stackOff
	n := (int64(bits)/8 + word - 1) / word
	if n < 1 {
		n = 1
	}
	w.stackOff += n * word
	return off
}

func slotCount(conv *Convention, ty ir.Type) int {
	if ty.IsFloat() || ty.IsVector() {
		return 1
	}
	n := int((ty.Bits() + conv.WordBits - 1) / conv.WordBits)
	if n < 1 {
		n = 1
	}
	return n
}

func extFor(conv *Convention, p ir.Param) ExtMode {
	if !conv.ExtendSubword || !p.Ty.IsInt() || p.Ty.Bits() >= conv.WordBits {
		return ExtNone
	}
	if p.Signed {
		return ExtSign
	}
	return ExtZero
}

// tryRegs assigns p entirely to registers, or reports failure without
// consuming any budget.
func (w *walker) tryRegs(p ir.Param) (Arg, bool) {
	n := slotCount(w.conv, p.Ty)
	regs := &w.intRegs
	if p.Ty.IsFloat() || p.Ty.IsVector() {
		regs = &w.fltRegs
	}
	if len(*regs) < n {
		return Arg{}, false
	}
	a := w.regArg(p, n, regs)
	return a, true
}

// assign places p in registers if the full slot run fits, else on the stack.
// A multi-slot value is never split between a register and the stack.
func (w *walker) assign(p ir.Param) Arg {
	if a, ok := w.tryRegs(p); ok {
		return a
	}
	n := slotCount(w.conv, p.Ty)
	ext := extFor(w.conv, p)
	a := Arg{Ty: p.Ty}
	for i := 0; i < n; i++ {
		a.Slots = append(a.Slots, Slot{
			Kind:   KindStack,
			Offset: w.takeStack(slotBits(w.conv, p.Ty, i, n)),
			Bits:   slotBits(w.conv, p.Ty, i, n),
			Ext:    ext,
		})
	}
	return a
}

func (w *walker) regArg(p ir.Param, n int, regs *[]vcode.Reg) Arg {
	ext := extFor(w.conv, p)
	a := Arg{Ty: p.Ty}
	for i := 0; i < n; i++ {
		a.Slots = append(a.Slots, Slot{
			Kind: KindReg,
			Reg:  (*regs)[0],
			Bits: slotBits(w.conv, p.Ty, i, n),
			Ext:  ext,
		})
		*regs = (*regs)[1:]
	}
	return a
}

// slotBits returns the width of slot i of an n-slot value.
func slotBits(conv *Convention, ty ir.Type, i, n int) uint {
	if n == 1 {
		return ty.Bits()
	}
	rem := ty.Bits() - uint(i)*conv.WordBits
	if rem > conv.WordBits {
		return conv.WordBits
	}
	return rem
}

func align(n, a int64) int64 {
	if a <= 1 {
		return n
	}
	return (n + a - 1) &^ (a - 1)
}
