// Package il is the typed intermediate-language model the lowerer (C8)
// emits into and the external text form serializes (spec §4.9): an
// SSA-like function as an ordered list of basic blocks, each with a
// label, typed block parameters, and a terminator-last instruction
// sequence.
package il

import "github.com/splanck/viper-sub008/internal/diag"

// TypeKind is the IL's fixed, closed set of value shapes (spec §4.8
// "Mapping": every BASIC/Pascal/Zia source type maps down to one of
// these before it reaches IL).
type TypeKind int

const (
	KindVoid TypeKind = iota
	KindI64
	KindF64
	KindI1
	KindStr
	KindPtr
)

// Type is an IL value type. It carries no further structure: class
// layout, array element type, and interface shape all live in
// internal/types/internal/layout and are erased by the time the
// lowerer emits IL, per spec §4.8.
type Type struct{ Kind TypeKind }

var (
	Void = Type{Kind: KindVoid}
	I64  = Type{Kind: KindI64}
	F64  = Type{Kind: KindF64}
	I1   = Type{Kind: KindI1}
	Str  = Type{Kind: KindStr}
	Ptr  = Type{Kind: KindPtr}
)

func (t Type) String() string {
	switch t.Kind {
	case KindI64:
		return "i64"
	case KindF64:
		return "f64"
	case KindI1:
		return "i1"
	case KindStr:
		return "str"
	case KindPtr:
		return "ptr"
	default:
		return "void"
	}
}

// ValueKind discriminates an operand: a constant, a reference to an
// earlier instruction's result, or a symbol reference.
type ValueKind int

const (
	VConstInt ValueKind = iota
	VConstFloat
	VConstBool
	VConstStr
	VTemp
	VGlobal
	VNull
)

// Value is an IL operand.
type Value struct {
	Kind  ValueKind
	Int   int64
	Float float64
	Bool  bool
	Str   string // literal text (VConstStr) or symbol name (VGlobal)
	Temp  int    // VTemp
}

func ConstInt(v int64) Value     { return Value{Kind: VConstInt, Int: v} }
func ConstFloat(v float64) Value { return Value{Kind: VConstFloat, Float: v} }
func ConstBool(v bool) Value     { return Value{Kind: VConstBool, Bool: v} }
func ConstStr(s string) Value    { return Value{Kind: VConstStr, Str: s} }
func TempVal(id int) Value       { return Value{Kind: VTemp, Temp: id} }
func GlobalVal(name string) Value { return Value{Kind: VGlobal, Str: name} }
func NullVal() Value             { return Value{Kind: VNull} }

// Opcode names every instruction the lowerer can emit (spec §4.8/§4.9).
type Opcode string

const (
	OpAlloca       Opcode = "alloca"
	OpLoad         Opcode = "load"
	OpStore        Opcode = "store"
	OpGEP          Opcode = "gep"
	OpIAddOvf      Opcode = "iaddovf"
	OpISubOvf      Opcode = "isubovf"
	OpIMulOvf      Opcode = "imulovf"
	OpSDivChk0     Opcode = "sdivchk0"
	OpSRemChk0     Opcode = "sremchk0"
	OpFAdd         Opcode = "fadd"
	OpFSub         Opcode = "fsub"
	OpFMul         Opcode = "fmul"
	OpFDiv         Opcode = "fdiv"
	OpICmp         Opcode = "icmp"
	OpFCmp         Opcode = "fcmp"
	OpNot          Opcode = "not"
	OpNeg          Opcode = "neg"
	OpFNeg         Opcode = "fneg"
	OpSIToFP       Opcode = "sitofp"
	OpCall         Opcode = "call"
	OpCallIndirect Opcode = "call_indirect"
	OpBr           Opcode = "br"
	OpCBr          Opcode = "cbr"
	OpRet          Opcode = "ret"
	OpRetVoid      Opcode = "ret.void"
	OpEHPush       Opcode = "eh.push"
	OpEHPop        Opcode = "eh.pop"
	OpEHEntry      Opcode = "eh.entry"
	OpResumeSame   Opcode = "resume.same"
	OpResumeLabel  Opcode = "resume.label"
)

// CmpPredicate is the comparison kind carried by icmp/fcmp.
type CmpPredicate string

const (
	CmpEq CmpPredicate = "eq"
	CmpNe CmpPredicate = "ne"
	CmpLt CmpPredicate = "lt"
	CmpLe CmpPredicate = "le"
	CmpGt CmpPredicate = "gt"
	CmpGe CmpPredicate = "ge"
)

// terminators is the closed set of opcodes that end a block (spec §4.9).
var terminators = map[Opcode]bool{
	OpBr: true, OpCBr: true, OpRet: true, OpRetVoid: true,
	OpResumeSame: true, OpResumeLabel: true,
}

// IsTerminator reports whether op ends a basic block.
func IsTerminator(op Opcode) bool { return terminators[op] }

// Instruction is one IL operation: an opcode, an optional result temp
// (HasResult discriminates "no result" from "result is temp 0"),
// operands, optional branch targets with per-target argument vectors
// (block-parameter-style SSA), an optional call callee, and source
// location. eh.entry is the one two-result opcode (the error value and
// the resume token, spec §3 "Handler token"); HasResult2/Result2 carry
// the second so the resume token has a defining instruction, same as
// every other temp (property 10, "every temp defined before use").
type Instruction struct {
	Op         Opcode
	HasResult  bool
	Result     int
	HasResult2 bool
	Result2    int
	Type       Type
	Predicate  CmpPredicate // only for OpICmp/OpFCmp
	Operands   []Value
	Targets    []string
	TargetArgs [][]Value
	Callee     string
	Loc        diag.SourceLoc
}

// Param is one block or function parameter: a name and an IL type.
type Param struct {
	Name string
	Type Type
}

// Block is one basic block: a label, block parameters (for incoming
// SSA values from predecessors) each bound to a temp id in
// ParamTemps (same index correspondence as Params), and an instruction
// sequence ending in exactly one terminator.
type Block struct {
	Label        string
	Params       []Param
	ParamTemps   []int
	Instructions []Instruction
}

// ParamValue returns the SSA value a block parameter at idx is read as
// from within the block.
func (b *Block) ParamValue(idx int) Value { return TempVal(b.ParamTemps[idx]) }

// Terminated reports whether the block already ends in a terminator.
func (b *Block) Terminated() bool {
	n := len(b.Instructions)
	return n > 0 && IsTerminator(b.Instructions[n-1].Op)
}

// Function is an ordered list of basic blocks; the first block is the
// entry block.
type Function struct {
	Name    string
	Params  []Param
	Return  Type
	Blocks  []*Block
	nextTmp int
}

// Global is a string-constant pool entry (spec §4.8's constant strings
// used by print/error-message call sites).
type Global struct {
	Name  string
	Value string
}

// ExternDecl is a runtime symbol a module calls into but does not
// define, declared once at the top of the module's text form.
type ExternDecl struct {
	Symbol string
	Params []Type
	Return Type
}

// Module is one compiled translation unit: every function, the string
// constant pool, and the set of externs the lowerer referenced.
type Module struct {
	Functions []*Function
	Globals   []Global
	Externs   []ExternDecl
}
