package vcode

import (
	"fmt"
	"io"
	"strings"
)

// Instr is one target-specific abstract machine instruction. The engine
// treats instructions as opaque beyond their textual rendering, which must be
// deterministic so listings can be compared literally in tests.
type Instr interface {
	String() string
}

// Label is a branch target in the instruction stream. Labels are positive;
// 0 indicates no label.
type Label int

// Valid reports whether l names a label.
func (l Label) Valid() bool { return l > 0 }

func (l Label) String() string { return fmt.Sprintf("L%d", int(l)) }

// LabelMark is the pseudo-instruction placing a label in the stream.
type LabelMark struct {
	L Label
}

func (m LabelMark) String() string { return m.L.String() + ":" }

// Unit is the lowering output for one function: an ordered instruction
// stream over abstract registers plus the stack space the resolved ABI
// requires for arguments and returns.
type Unit struct {
	Name          string
	Instrs        []Instr
	StackArgSpace int64 // incoming stack-argument bytes, from the unit's own signature
	StackRetSpace int64 // incoming return-area bytes
	CallArgSpace  int64 // max outgoing stack-argument bytes over all call sites
	CallRetSpace  int64 // max outgoing return-area bytes over all call sites
	NumVirtuals   int
}

// Append adds an instruction to the stream.
func (u *Unit) Append(i Instr) {
	u.Instrs = append(u.Instrs, i)
}

// ReserveCallSpace grows the outgoing call-site reservations. Call sites
// share one region, so the maximum suffices.
func (u *Unit) ReserveCallSpace(argBytes, retBytes int64) {
	if argBytes > u.CallArgSpace {
		u.CallArgSpace = argBytes
	}
	if retBytes > u.CallRetSpace {
		u.CallRetSpace = retBytes
	}
}

// Printer renders units as disassembly-like listings.
type Printer struct {
	w io.Writer
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintUnit writes the listing for u.
func (p *Printer) PrintUnit(u *Unit) {
	fmt.Fprintf(p.w, "%s:\n", u.Name)
	for _, in := range u.Instrs {
		if _, ok := in.(LabelMark); ok {
			fmt.Fprintf(p.w, "%s\n", in)
			continue
		}
		fmt.Fprintf(p.w, "\t%s\n", in)
	}
}

// Listing returns the unit rendered as text.
func (u *Unit) Listing() string {
	var b strings.Builder
	NewPrinter(&b).PrintUnit(u)
	return b.String()
}
