package lower

import (
	"github.com/splanck/viper-sub008/internal/il"
	"github.com/splanck/viper-sub008/internal/runtimeabi"
	"github.com/splanck/viper-sub008/internal/types"
)

// mapType lowers a validated source type to its IL shape (spec §4.8
// "Mapping"): integer -> i64, boolean -> i1, real -> f64, string -> str,
// class/array/optional-of-reference -> ptr, interface -> ptr to a fat
// pointer, enum -> i64.
func (lw *Lowerer) mapType(t *types.Type) il.Type {
	if t == nil {
		return il.Void
	}
	switch t.Kind {
	case types.KindInt64, types.KindEnum, types.KindRange:
		return il.I64
	case types.KindFloat64:
		return il.F64
	case types.KindBool:
		return il.I1
	case types.KindString:
		return il.Str
	case types.KindVoid:
		return il.Void
	case types.KindClass, types.KindArray, types.KindInterface, types.KindRecord, types.KindSet:
		return il.Ptr
	case types.KindOptional:
		return lw.mapType(t.Unwrapped)
	default:
		return il.Ptr
	}
}

// abiTypeFor maps an IL type to the runtime-ABI's coarser shape tag, so
// runtimeabi.Signature lookups (built against ABIType) compose with
// il.Type-shaped call sites.
func abiTypeFor(t il.Type) runtimeabi.ABIType {
	switch t.Kind {
	case il.KindI64:
		return runtimeabi.TI64
	case il.KindF64:
		return runtimeabi.TF64
	case il.KindI1:
		return runtimeabi.TI1
	case il.KindStr:
		return runtimeabi.TStr
	case il.KindPtr:
		return runtimeabi.TPtr
	default:
		return runtimeabi.TVoid
	}
}

func ilTypeForABI(t runtimeabi.ABIType) il.Type {
	switch t {
	case runtimeabi.TI64:
		return il.I64
	case runtimeabi.TF64:
		return il.F64
	case runtimeabi.TI1:
		return il.I1
	case runtimeabi.TStr:
		return il.Str
	case runtimeabi.TPtr:
		return il.Ptr
	default:
		return il.Void
	}
}

// rtclassSignature bridges a runtimeabi.Signature into an il.ExternDecl
// for module-level extern declaration.
func rtclassSignature(symbol string) (il.ExternDecl, bool) {
	sig, ok := runtimeabi.Lookup(symbol)
	if !ok {
		return il.ExternDecl{}, false
	}
	params := make([]il.Type, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = ilTypeForABI(p)
	}
	return il.ExternDecl{Symbol: symbol, Params: params, Return: ilTypeForABI(sig.Return)}, true
}
