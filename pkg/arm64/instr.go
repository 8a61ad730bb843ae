package arm64

import (
	"fmt"

	"github.com/raymyers/lowgen/pkg/ir"
	"github.com/raymyers/lowgen/pkg/vcode"
)

// AluOp selects the three-register ALU operation.
type AluOp uint8

const (
	opAdd AluOp = iota
	opAdds
	opAdc
	opAdcs
	opSub
	opSubs
	opSbc
	opSbcs
	opAnd
	opOrr
	opEor
	opOrn
	opMul
	opUmulh
	opSmulh
	opLsl
	opLsr
	opAsr
	opRor
	opUdiv
	opSdiv
)

var aluNames = [...]string{
	opAdd: "add", opAdds: "adds", opAdc: "adc", opAdcs: "adcs",
	opSub: "sub", opSubs: "subs", opSbc: "sbc", opSbcs: "sbcs",
	opAnd: "and", opOrr: "orr", opEor: "eor", opOrn: "orn",
	opMul: "mul", opUmulh: "umulh", opSmulh: "smulh",
	opLsl: "lsl", opLsr: "lsr", opAsr: "asr", opRor: "ror",
	opUdiv: "udiv", opSdiv: "sdiv",
}

func (op AluOp) String() string { return aluNames[op] }

// Cond is an ARM64 condition code.
type Cond uint8

const (
	EQ Cond = iota
	NE
	HS
	LO
	HI
	LS
	GE
	LT
	GT
	LE
)

var condNames = [...]string{
	EQ: "eq", NE: "ne", HS: "hs", LO: "lo", HI: "hi",
	LS: "ls", GE: "ge", LT: "lt", GT: "gt", LE: "le",
}

func (c Cond) String() string { return condNames[c] }

// Invert returns the negated condition.
func (c Cond) Invert() Cond {
	switch c {
	case EQ:
		return NE
	case NE:
		return EQ
	case HS:
		return LO
	case LO:
		return HS
	case HI:
		return LS
	case LS:
		return HI
	case GE:
		return LT
	case LT:
		return GE
	case GT:
		return LE
	default:
		return GT
	}
}

// condFor maps an IR comparison to the condition that is true after
// cmp x, y.
func condFor(c ir.Cond) Cond {
	switch c {
	case ir.CondEq:
		return EQ
	case ir.CondNe:
		return NE
	case ir.CondUlt:
		return LO
	case ir.CondUge:
		return HS
	case ir.CondUgt:
		return HI
	case ir.CondUle:
		return LS
	case ir.CondSlt:
		return LT
	case ir.CondSge:
		return GE
	case ir.CondSgt:
		return GT
	default:
		return LE
	}
}

// --- instruction forms ---

// AluRRR is a three-register ALU instruction.
type AluRRR struct {
	Op         AluOp
	Rd, Rn, Rm vcode.Reg
}

func (i AluRRR) String() string {
	return fmt.Sprintf("%s %s, %s, %s", i.Op, regName(i.Rd), regName(i.Rn), regName(i.Rm))
}

// AluRRImm12 is add/sub with a 12-bit unsigned immediate.
type AluRRImm12 struct {
	Op     AluOp
	Rd, Rn vcode.Reg
	Imm    uint16
}

func (i AluRRImm12) String() string {
	return fmt.Sprintf("%s %s, %s, #%d", i.Op, regName(i.Rd), regName(i.Rn), i.Imm)
}

// ShiftImm is a constant-amount shift.
type ShiftImm struct {
	Op     AluOp // lsl, lsr, asr
	Rd, Rn vcode.Reg
	Amt    uint8
}

func (i ShiftImm) String() string {
	return fmt.Sprintf("%s %s, %s, #%d", i.Op, regName(i.Rd), regName(i.Rn), i.Amt)
}

// MovZ loads a 16-bit immediate shifted into place, zeroing the rest.
type MovZ struct {
	Rd    vcode.Reg
	Imm   uint16
	Shift uint8 // 0, 16, 32, 48
}

func (i MovZ) String() string {
	if i.Shift == 0 {
		return fmt.Sprintf("movz %s, #%d", regName(i.Rd), i.Imm)
	}
	return fmt.Sprintf("movz %s, #%d, lsl #%d", regName(i.Rd), i.Imm, i.Shift)
}

// MovK patches a 16-bit immediate into place, keeping the rest.
type MovK struct {
	Rd    vcode.Reg
	Imm   uint16
	Shift uint8
}

func (i MovK) String() string {
	if i.Shift == 0 {
		return fmt.Sprintf("movk %s, #%d", regName(i.Rd), i.Imm)
	}
	return fmt.Sprintf("movk %s, #%d, lsl #%d", regName(i.Rd), i.Imm, i.Shift)
}

// MovRR is a register move.
type MovRR struct {
	Rd, Rm vcode.Reg
}

func (i MovRR) String() string {
	if i.Rd.Class() == vcode.ClassFloat || i.Rm.Class() == vcode.ClassFloat {
		return fmt.Sprintf("fmov %s, %s", regName(i.Rd), regName(i.Rm))
	}
	return fmt.Sprintf("mov %s, %s", regName(i.Rd), regName(i.Rm))
}

// MSub computes Rd = Ra - Rn*Rm, the remainder step after a division.
type MSub struct {
	Rd, Rn, Rm, Ra vcode.Reg
}

func (i MSub) String() string {
	return fmt.Sprintf("msub %s, %s, %s, %s", regName(i.Rd), regName(i.Rn), regName(i.Rm), regName(i.Ra))
}

// CmpRR sets flags from Rn - Rm.
type CmpRR struct {
	Rn, Rm vcode.Reg
}

func (i CmpRR) String() string {
	return fmt.Sprintf("cmp %s, %s", regName(i.Rn), regName(i.Rm))
}

// CmpImm sets flags from Rn - Imm.
type CmpImm struct {
	Rn  vcode.Reg
	Imm uint16
}

func (i CmpImm) String() string {
	return fmt.Sprintf("cmp %s, #%d", regName(i.Rn), i.Imm)
}

// CmnImm sets flags from Rn + Imm.
type CmnImm struct {
	Rn  vcode.Reg
	Imm uint16
}

func (i CmnImm) String() string {
	return fmt.Sprintf("cmn %s, #%d", regName(i.Rn), i.Imm)
}

// TstImm sets flags from Rn & Imm.
type TstImm struct {
	Rn  vcode.Reg
	Imm uint64
}

func (i TstImm) String() string {
	return fmt.Sprintf("tst %s, #%d", regName(i.Rn), i.Imm)
}

// CSel selects Rn when Cond holds, else Rm.
type CSel struct {
	Rd, Rn, Rm vcode.Reg
	Cond       Cond
}

func (i CSel) String() string {
	return fmt.Sprintf("csel %s, %s, %s, %s", regName(i.Rd), regName(i.Rn), regName(i.Rm), i.Cond)
}

// CSet materializes Cond as 0 or 1.
type CSet struct {
	Rd   vcode.Reg
	Cond Cond
}

func (i CSet) String() string {
	return fmt.Sprintf("cset %s, %s", regName(i.Rd), i.Cond)
}

// BitOp selects the two-register bit instruction.
type BitOp uint8

const (
	bitClz BitOp = iota
	bitRbit
	bitCnt // population count; expanded at encoding time
)

var bitNames = [...]string{bitClz: "clz", bitRbit: "rbit", bitCnt: "cnt"}

// BitRR is a two-register bit-manipulation instruction.
type BitRR struct {
	Op     BitOp
	Rd, Rn vcode.Reg
}

func (i BitRR) String() string {
	return fmt.Sprintf("%s %s, %s", bitNames[i.Op], regName(i.Rd), regName(i.Rn))
}

// ExtOp selects the extension instruction.
type ExtOp uint8

const (
	extUxtb ExtOp = iota
	extUxth
	extUxtw
	extSxtb
	extSxth
	extSxtw
)

var extNames = [...]string{
	extUxtb: "uxtb", extUxth: "uxth", extUxtw: "uxtw",
	extSxtb: "sxtb", extSxth: "sxth", extSxtw: "sxtw",
}

// Extend widens a sub-word value to the full register.
type Extend struct {
	Op     ExtOp
	Rd, Rn vcode.Reg
}

func (i Extend) String() string {
	return fmt.Sprintf("%s %s, %s", extNames[i.Op], regName(i.Rd), regName(i.Rn))
}

// Ldr loads Bits bits from [Base + Off].
type Ldr struct {
	Rd   vcode.Reg
	Base vcode.Reg
	Off  int64
	Bits uint8
}

func (i Ldr) String() string {
	return fmt.Sprintf("%s %s, [%s, #%d]", ldName("ldr", i.Bits), regName(i.Rd), regName(i.Base), i.Off)
}

// Str stores Bits bits to [Base + Off].
type Str struct {
	Rs   vcode.Reg
	Base vcode.Reg
	Off  int64
	Bits uint8
}

func (i Str) String() string {
	return fmt.Sprintf("%s %s, [%s, #%d]", ldName("str", i.Bits), regName(i.Rs), regName(i.Base), i.Off)
}

func ldName(base string, bits uint8) string {
	switch bits {
	case 8:
		return base + "b"
	case 16:
		return base + "h"
	case 32:
		return base + "w"
	default:
		return base
	}
}

// LdrArg loads an incoming stack argument. The concrete frame offset is
// fixed up after frame layout, so the slot is symbolic here.
type LdrArg struct {
	Rd   vcode.Reg
	Off  int64
	Bits uint8
}

func (i LdrArg) String() string {
	return fmt.Sprintf("%s %s, [args+%d]", ldName("ldr", i.Bits), regName(i.Rd), i.Off)
}

// B is an unconditional branch.
type B struct {
	Target vcode.Label
}

func (i B) String() string { return "b " + i.Target.String() }

// BCond branches when Cond holds.
type BCond struct {
	Cond   Cond
	Target vcode.Label
}

func (i BCond) String() string { return fmt.Sprintf("b.%s %s", i.Cond, i.Target) }

// Bl calls a symbol.
type Bl struct {
	Sym string
}

func (i Bl) String() string { return "bl " + i.Sym }

// Ret returns to the caller.
type Ret struct{}

func (Ret) String() string { return "ret" }

// TrapIf raises Code when Cond holds; it reads the current flags.
type TrapIf struct {
	Cond Cond
	Code ir.TrapCode
}

func (i TrapIf) String() string { return fmt.Sprintf("trapif %s, %s", i.Cond, i.Code) }

// Udf raises Code unconditionally.
type Udf struct {
	Code ir.TrapCode
}

func (i Udf) String() string { return "udf " + i.Code.String() }
