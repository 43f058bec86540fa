package runtimeabi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupKnownSymbol(t *testing.T) {
	sig, ok := Lookup(ObjNewI64)
	require.True(t, ok)
	require.Equal(t, []ABIType{TI64, TI64}, sig.Params)
	require.Equal(t, TPtr, sig.Return)
}

func TestLookupUnknownSymbol(t *testing.T) {
	_, ok := Lookup("rt_does_not_exist")
	require.False(t, ok)
}

func TestModVarAddrNaming(t *testing.T) {
	require.Equal(t, "rt_modvar_addr_i64", ModVarAddr(ModVarI64))
	sig, ok := Lookup(ModVarAddr(ModVarStr))
	require.True(t, ok)
	require.Equal(t, TPtr, sig.Return)
}

func TestPrintSymbolForEachScalarShape(t *testing.T) {
	cases := []struct {
		shape ABIType
		want  string
	}{
		{TI64, PrintI64},
		{TF64, PrintF64},
		{TStr, PrintStr},
		{TI1, PrintI1},
	}
	for _, tc := range cases {
		sym, ok := PrintSymbolFor(tc.shape)
		require.True(t, ok)
		require.Equal(t, tc.want, sym)
	}
}

func TestPrintSymbolForUnsupportedShape(t *testing.T) {
	_, ok := PrintSymbolFor(TPtr)
	require.False(t, ok)
}
