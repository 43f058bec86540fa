// Package types implements the shared nominal type system (spec §3):
// a tagged Type variant, class/interface/procedure records, and the
// assignability rules the analyzer and lowerer both consult.
//
// Modeled after cmd/compile/internal/types' Type/Sym pattern: formatting
// hooks are injected rather than imported, to avoid a dependency cycle
// between this package and the diagnostic formatter; here that surfaces
// as the String method staying a pure structural description with no
// import of internal/diag.
package types

import "strings"

// Kind discriminates the tagged Type variant.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt64
	KindFloat64
	KindBool
	KindString
	KindNil
	KindVoid
	KindUnknown // error/recovery type
	KindArray
	KindRecord
	KindSet
	KindRange
	KindClass
	KindInterface
	KindOptional
	KindFunc
	KindEnum
	KindPointer // reserved, unsupported in v0.1
)

// Type is a tagged variant over every type shape spec §3 enumerates.
// Only the fields relevant to Kind are populated; this mirrors a C++
// tagged union more than idiomatic separate interfaces because the
// analyzer needs O(1) kind dispatch at every expression-typing site.
type Type struct {
	Kind Kind

	// KindArray
	Elem *Type
	Dims []int // fixed dimensions; nil/empty means unbounded

	// KindRecord
	Fields []RecordField

	// KindSet / KindRange
	Of *Type

	// KindClass / KindInterface
	Name string // canonical qualified name

	// KindOptional
	Unwrapped *Type

	// KindFunc
	Sig *Procedure

	// KindEnum
	EnumName   string
	EnumValues []string // member names in declaration order; ordinals may be explicit and live in the analyzer's constant table
}

// RecordField is one ordered field of a record type.
type RecordField struct {
	Name string
	Type *Type
}

var (
	Int64   = &Type{Kind: KindInt64}
	Float64 = &Type{Kind: KindFloat64}
	Bool    = &Type{Kind: KindBool}
	String  = &Type{Kind: KindString}
	Nil     = &Type{Kind: KindNil}
	Void    = &Type{Kind: KindVoid}
	Unknown = &Type{Kind: KindUnknown}
)

// NewOptional builds an optional-of-t type. Per spec §3, optional is
// flat: wrapping an already-optional type is rejected by the caller
// (analyzer), not silently flattened here, so a double-optional
// construction attempt surfaces as a semantic error at the call site
// rather than being quietly "fixed".
func NewOptional(t *Type) *Type {
	return &Type{Kind: KindOptional, Unwrapped: t}
}

// IsOptional reports whether t is an optional type.
func (t *Type) IsOptional() bool { return t != nil && t.Kind == KindOptional }

// NewArray builds an array-of-elem type with optional fixed dimensions.
func NewArray(elem *Type, dims []int) *Type {
	return &Type{Kind: KindArray, Elem: elem, Dims: dims}
}

// NewClass builds a nominal class-by-name reference type.
func NewClass(name string) *Type { return &Type{Kind: KindClass, Name: name} }

// NewInterface builds a nominal interface-by-name reference type.
func NewInterface(name string) *Type { return &Type{Kind: KindInterface, Name: name} }

// String renders a human-readable type description for diagnostics.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.Kind {
	case KindInt64:
		return "integer"
	case KindFloat64:
		return "real"
	case KindBool:
		return "boolean"
	case KindString:
		return "string"
	case KindNil:
		return "nil"
	case KindVoid:
		return "void"
	case KindUnknown:
		return "unknown"
	case KindArray:
		dims := ""
		for _, d := range t.Dims {
			dims += "[" + itoa(d) + "]"
		}
		return "array" + dims + " of " + t.Elem.String()
	case KindRecord:
		var names []string
		for _, f := range t.Fields {
			names = append(names, f.Name+":"+f.Type.String())
		}
		return "record{" + strings.Join(names, ", ") + "}"
	case KindSet:
		return "set of " + t.Of.String()
	case KindRange:
		return "range of " + t.Of.String()
	case KindClass:
		return t.Name
	case KindInterface:
		return t.Name
	case KindOptional:
		return t.Unwrapped.String() + "?"
	case KindFunc:
		return t.Sig.String()
	case KindEnum:
		return t.EnumName
	case KindPointer:
		return "pointer (unsupported)"
	default:
		return "<invalid>"
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{byte('0' + n%10)}, buf...)
		n /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}

// Equal reports structural equality, recursing through composites. Class
// and interface types compare by name only (nominal typing).
func Equal(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindArray:
		if len(a.Dims) != len(b.Dims) {
			return false
		}
		for i := range a.Dims {
			if a.Dims[i] != b.Dims[i] {
				return false
			}
		}
		return Equal(a.Elem, b.Elem)
	case KindRecord:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for i := range a.Fields {
			if a.Fields[i].Name != b.Fields[i].Name || !Equal(a.Fields[i].Type, b.Fields[i].Type) {
				return false
			}
		}
		return true
	case KindSet, KindRange:
		return Equal(a.Of, b.Of)
	case KindClass, KindInterface:
		return strings.EqualFold(a.Name, b.Name)
	case KindOptional:
		return Equal(a.Unwrapped, b.Unwrapped)
	case KindEnum:
		return strings.EqualFold(a.EnumName, b.EnumName)
	default:
		return true
	}
}
