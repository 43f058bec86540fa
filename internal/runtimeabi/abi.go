// Package runtimeabi is the static table of runtime (`rt_*`) extern
// symbols the lowerer calls into, named here rather than spelled out as
// string literals at each call site so a symbol rename is a one-line
// change (spec §6's ABI table).
package runtimeabi

// ABIType is a minimal value-shape tag for runtime call signatures,
// independent of internal/il's richer Type so this package stays a leaf
// the lowerer depends on rather than the other way around.
type ABIType int

const (
	TVoid ABIType = iota
	TI64
	TF64
	TI1
	TStr
	TPtr
	TNoReturn
)

// Signature is one runtime extern's parameter/return shape.
type Signature struct {
	Symbol  string
	Params  []ABIType
	Return  ABIType
}

// Core allocation and class-registration symbols (spec §6).
const (
	Alloc                   = "rt_alloc"
	ObjNewI64               = "rt_obj_new_i64"
	GetClassVtable          = "rt_get_class_vtable"
	RegisterClassWithBase   = "rt_register_class_with_base_rs"
	GetInterfaceImpl        = "rt_get_interface_impl"
	CastAs                  = "rt_cast_as"
	CastAsIface             = "rt_cast_as_iface"
	Throw                   = "rt_throw"
)

// String and collection symbols. StrConcat is not in spec §6's literal
// table, which only says string concatenation "dispatches through rt_*
// helpers indexed by argument type" without naming one; this is the
// named symbol for the string+string case, following that table's
// naming convention.
const (
	StrEq     = "rt_str_eq"
	Substr    = "rt_substr"
	Len       = "rt_len"
	StrConcat = "rt_str_concat"

	ArrI64Get = "rt_arr_i64_get"
	ArrI64Set = "rt_arr_i64_set"
	ArrI64Len = "rt_arr_i64_len"
)

// Module-variable accessor symbols, one per storable scalar shape; a
// module-level variable of type t is addressed through
// ModVarAddr(t), never a raw global.
func ModVarAddr(suffix string) string { return "rt_modvar_addr_" + suffix }

const (
	ModVarI64 = "i64"
	ModVarF64 = "f64"
	ModVarI1  = "i1"
	ModVarStr = "str"
	ModVarPtr = "ptr"
)

// Console/IO and misc builtin symbols.
const (
	PrintI64    = "rt_print_i64"
	PrintF64    = "rt_print_f64"
	PrintStr    = "rt_print_str"
	PrintI1     = "rt_print_i1"
	InputLine   = "rt_input_line"
	RandomizeI64 = "rt_randomize_i64"
	TermLocate  = "rt_term_locate"
)

// signatures is the full table, keyed by symbol. The lowerer looks up
// each extern a module actually references here to declare it; call
// arguments are not checked against it.
var signatures = map[string]Signature{
	Alloc:                 {Symbol: Alloc, Params: []ABIType{TI64}, Return: TPtr},
	ObjNewI64:             {Symbol: ObjNewI64, Params: []ABIType{TI64, TI64}, Return: TPtr},
	GetClassVtable:        {Symbol: GetClassVtable, Params: []ABIType{TI64}, Return: TPtr},
	RegisterClassWithBase: {Symbol: RegisterClassWithBase, Params: []ABIType{TI64, TPtr, TStr, TI64, TI64}, Return: TVoid},
	GetInterfaceImpl:      {Symbol: GetInterfaceImpl, Params: []ABIType{TI64, TI64}, Return: TPtr},
	CastAs:                {Symbol: CastAs, Params: []ABIType{TPtr, TI64}, Return: TPtr},
	CastAsIface:           {Symbol: CastAsIface, Params: []ABIType{TPtr, TI64}, Return: TPtr},
	Throw:                 {Symbol: Throw, Params: []ABIType{TPtr}, Return: TNoReturn},

	StrEq:     {Symbol: StrEq, Params: []ABIType{TStr, TStr}, Return: TI1},
	Substr:    {Symbol: Substr, Params: []ABIType{TStr, TI64, TI64}, Return: TStr},
	Len:       {Symbol: Len, Params: []ABIType{TStr}, Return: TI64},
	StrConcat: {Symbol: StrConcat, Params: []ABIType{TStr, TStr}, Return: TStr},

	ArrI64Get: {Symbol: ArrI64Get, Params: []ABIType{TPtr, TI64}, Return: TI64},
	ArrI64Set: {Symbol: ArrI64Set, Params: []ABIType{TPtr, TI64, TI64}, Return: TVoid},
	ArrI64Len: {Symbol: ArrI64Len, Params: []ABIType{TPtr}, Return: TI64},

	PrintI64:     {Symbol: PrintI64, Params: []ABIType{TI64}, Return: TVoid},
	PrintF64:     {Symbol: PrintF64, Params: []ABIType{TF64}, Return: TVoid},
	PrintStr:     {Symbol: PrintStr, Params: []ABIType{TStr}, Return: TVoid},
	PrintI1:      {Symbol: PrintI1, Params: []ABIType{TI1}, Return: TVoid},
	InputLine:    {Symbol: InputLine, Return: TStr},
	RandomizeI64: {Symbol: RandomizeI64, Params: []ABIType{TI64}, Return: TVoid},
	TermLocate:   {Symbol: TermLocate, Params: []ABIType{TI64, TI64}, Return: TVoid},

	ModVarAddr(ModVarI64): {Symbol: ModVarAddr(ModVarI64), Params: []ABIType{TStr}, Return: TPtr},
	ModVarAddr(ModVarF64): {Symbol: ModVarAddr(ModVarF64), Params: []ABIType{TStr}, Return: TPtr},
	ModVarAddr(ModVarI1):  {Symbol: ModVarAddr(ModVarI1), Params: []ABIType{TStr}, Return: TPtr},
	ModVarAddr(ModVarStr): {Symbol: ModVarAddr(ModVarStr), Params: []ABIType{TStr}, Return: TPtr},
	ModVarAddr(ModVarPtr): {Symbol: ModVarAddr(ModVarPtr), Params: []ABIType{TStr}, Return: TPtr},
}

// Lookup returns a runtime extern's signature by symbol name.
func Lookup(symbol string) (Signature, bool) {
	sig, ok := signatures[symbol]
	return sig, ok
}

// PrintSymbolFor returns the Write/WriteLn runtime symbol for a value
// of the given ABI shape (spec §4.6 "Builtins" dispatch table).
func PrintSymbolFor(t ABIType) (string, bool) {
	switch t {
	case TI64:
		return PrintI64, true
	case TF64:
		return PrintF64, true
	case TStr:
		return PrintStr, true
	case TI1:
		return PrintI1, true
	default:
		return "", false
	}
}
