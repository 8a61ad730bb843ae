package ir

import "fmt"

// Value identifies an SSA definition site: either a block parameter or an
// instruction result. Values are immutable once created and owned by the
// Function that created them.
type Value int32

// Inst identifies an instruction within a Function.
type Inst int32

// Block identifies a basic block within a Function.
type Block int32

// NoValue is the absent-value sentinel.
const NoValue Value = -1

// Opcode is the closed catalog of IR operations. Rule tables are keyed by
// opcode, which keeps rule-set completeness checkable.
type Opcode uint8

const (
	OpInvalid Opcode = iota
	OpIconst
	OpIconcat // (lo, hi) -> double-width
	OpIsplit  // double-width -> (lo, hi)
	OpIadd
	OpIsub
	OpImul
	OpUmulhi
	OpSmulhi
	OpUdiv
	OpSdiv
	OpUrem
	OpSrem
	OpBand
	OpBor
	OpBxor
	OpBnot
	OpIshl
	OpUshr
	OpSshr
	OpRotl
	OpRotr
	OpClz
	OpCtz
	OpPopcnt
	OpUextend
	OpSextend
	OpIreduce
	OpIcmp
	OpSelect
	OpLoad
	OpStore
	OpCall
	OpJump
	OpBrif
	OpReturn
	OpTrap
	numOpcodes
)

var opcodeNames = [numOpcodes]string{
	OpInvalid: "invalid",
	OpIconst:  "iconst",
	OpIconcat: "iconcat",
	OpIsplit:  "isplit",
	OpIadd:    "iadd",
	OpIsub:    "isub",
	OpImul:    "imul",
	OpUmulhi:  "umulhi",
	OpSmulhi:  "smulhi",
	OpUdiv:    "udiv",
	OpSdiv:    "sdiv",
	OpUrem:    "urem",
	OpSrem:    "srem",
	OpBand:    "band",
	OpBor:     "bor",
	OpBxor:    "bxor",
	OpBnot:    "bnot",
	OpIshl:    "ishl",
	OpUshr:    "ushr",
	OpSshr:    "sshr",
	OpRotl:    "rotl",
	OpRotr:    "rotr",
	OpClz:     "clz",
	OpCtz:     "ctz",
	OpPopcnt:  "popcnt",
	OpUextend: "uextend",
	OpSextend: "sextend",
	OpIreduce: "ireduce",
	OpIcmp:    "icmp",
	OpSelect:  "select",
	OpLoad:    "load",
	OpStore:   "store",
	OpCall:    "call",
	OpJump:    "jump",
	OpBrif:    "brif",
	OpReturn:  "return",
	OpTrap:    "trap",
}

func (op Opcode) String() string {
	if op < numOpcodes {
		return opcodeNames[op]
	}
	return fmt.Sprintf("opcode(%d)", uint8(op))
}

// OpcodeByName returns the opcode with the given textual name.
func OpcodeByName(name string) (Opcode, bool) {
	for op, n := range opcodeNames {
		if n == name && Opcode(op) != OpInvalid {
			return Opcode(op), true
		}
	}
	return OpInvalid, false
}

// IsBranch reports whether op terminates a block with a control transfer.
func (op Opcode) IsBranch() bool {
	return op == OpJump || op == OpBrif
}

// IsTerminator reports whether op must end a block.
func (op Opcode) IsTerminator() bool {
	return op.IsBranch() || op == OpReturn || op == OpTrap
}

// Cond is an integer comparison condition.
type Cond uint8

const (
	CondInvalid Cond = iota
	CondEq
	CondNe
	CondSlt
	CondSle
	CondSgt
	CondSge
	CondUlt
	CondUle
	CondUgt
	CondUge
)

var condNames = map[Cond]string{
	CondEq: "eq", CondNe: "ne",
	CondSlt: "slt", CondSle: "sle", CondSgt: "sgt", CondSge: "sge",
	CondUlt: "ult", CondUle: "ule", CondUgt: "ugt", CondUge: "uge",
}

func (c Cond) String() string {
	if n, ok := condNames[c]; ok {
		return n
	}
	return "??"
}

// CondByName returns the condition with the given textual name.
func CondByName(name string) (Cond, bool) {
	for c, n := range condNames {
		if n == name {
			return c, true
		}
	}
	return CondInvalid, false
}

// Signed reports whether the condition compares operands as signed values.
func (c Cond) Signed() bool {
	switch c {
	case CondSlt, CondSle, CondSgt, CondSge:
		return true
	}
	return false
}

// TrapCode distinguishes runtime trap causes.
type TrapCode uint8

const (
	TrapUnreachable TrapCode = iota
	TrapDivByZero
	TrapIntOverflow
	TrapBadConvToInt
)

var trapNames = map[TrapCode]string{
	TrapUnreachable:  "unreachable",
	TrapDivByZero:    "int_divz",
	TrapIntOverflow:  "int_ovf",
	TrapBadConvToInt: "bad_toint",
}

func (t TrapCode) String() string {
	if n, ok := trapNames[t]; ok {
		return n
	}
	return "trap??"
}

// TrapCodeByName returns the trap code with the given textual name.
func TrapCodeByName(name string) (TrapCode, bool) {
	for c, n := range trapNames {
		if n == name {
			return c, true
		}
	}
	return TrapUnreachable, false
}

// Param is one logical argument or return slot in a signature, with the
// signedness that drives sub-word extension at ABI boundaries.
type Param struct {
	Ty     Type
	Signed bool
}

// Sig is a call signature: parameter and result types plus the calling
// convention identifier resolved by the ABI layer.
type Sig struct {
	Conv    string
	Params  []Param
	Results []Param
}

// Target is one branch edge: the destination block and the values passed to
// its block parameters.
type Target struct {
	Block Block
	Args  []Value
}

// InstData is the flat payload of one instruction. Which fields are
// meaningful depends on Op; unused fields stay zero.
type InstData struct {
	Op      Opcode
	Args    []Value
	Results []Value
	Imm     int64    // OpIconst bits
	Cond    Cond     // OpIcmp
	Offset  int64    // OpLoad / OpStore constant offset
	Trap    TrapCode // OpTrap
	Callee  string   // OpCall
	CallSig *Sig     // OpCall
	Targets []Target // OpJump (1), OpBrif (2: taken, not-taken)
}

type valueData struct {
	ty  Type
	def Inst // defining instruction, or -1 for block parameters
}

type blockData struct {
	params []Value
	insts  []Inst
}

// Function is an SSA function body. Blocks are kept in layout order, which
// the builder is expected to produce in reverse post-order; lowering walks
// them as given.
type Function struct {
	Name string
	Sig  Sig

	values []valueData
	insts  []InstData
	blocks []blockData
	layout []Block
}

// NewFunction creates an empty function with the given signature.
func NewFunction(name string, sig Sig) *Function {
	return &Function{Name: name, Sig: sig}
}

// AddBlock appends a new block with parameters of the given types. The first
// block added is the entry block; its parameters are the function arguments.
func (f *Function) AddBlock(paramTypes ...Type) Block {
	b := Block(len(f.blocks))
	bd := blockData{}
	for _, ty := range paramTypes {
		v := f.newValue(ty, -1)
		bd.params = append(bd.params, v)
	}
	f.blocks = append(f.blocks, bd)
	f.layout = append(f.layout, b)
	return b
}

func (f *Function) newValue(ty Type, def Inst) Value {
	v := Value(len(f.values))
	f.values = append(f.values, valueData{ty: ty, def: def})
	return v
}

// Append adds an instruction to block b, creating one result value per entry
// in resultTypes. It returns the created result values.
func (f *Function) Append(b Block, data InstData, resultTypes ...Type) []Value {
	i := Inst(len(f.insts))
	for _, ty := range resultTypes {
		data.Results = append(data.Results, f.newValue(ty, i))
	}
	f.insts = append(f.insts, data)
	f.blocks[b].insts = append(f.blocks[b].insts, i)
	return f.insts[i].Results
}

// --- read-only accessors used by the lowering engine ---

// Entry returns the entry block.
func (f *Function) Entry() Block { return f.layout[0] }

// Layout returns blocks in layout order.
func (f *Function) Layout() []Block { return f.layout }

// BlockParams returns the parameter values of block b.
func (f *Function) BlockParams(b Block) []Value { return f.blocks[b].params }

// BlockInsts returns the instructions of block b in order.
func (f *Function) BlockInsts(b Block) []Inst { return f.blocks[b].insts }

// Data returns the payload of instruction i.
func (f *Function) Data(i Inst) *InstData { return &f.insts[i] }

// ValueType returns the type of v.
func (f *Function) ValueType(v Value) Type { return f.values[v].ty }

// ValueDef returns the instruction defining v, or ok=false if v is a block
// parameter.
func (f *Function) ValueDef(v Value) (Inst, bool) {
	d := f.values[v].def
	return d, d >= 0
}

// NumValues returns the number of values created so far.
func (f *Function) NumValues() int { return len(f.values) }

// NumBlocks returns the number of blocks.
func (f *Function) NumBlocks() int { return len(f.blocks) }
