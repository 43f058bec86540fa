package rtclass

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupKnownClass(t *testing.T) {
	c, ok := Lookup(ClassString)
	require.True(t, ok)
	require.Equal(t, "Viper", c.Namespace)
	require.NotEmpty(t, c.Methods)
}

func TestLookupUnknownClass(t *testing.T) {
	_, ok := Lookup("Viper.DoesNotExist")
	require.False(t, ok)
}

func TestConsoleAliasesTerminal(t *testing.T) {
	require.Equal(t, ClassTerminal, ClassConsole)
}

func TestBuiltinExternsNonEmpty(t *testing.T) {
	require.NotEmpty(t, BuiltinExterns())
	for _, e := range BuiltinExterns() {
		require.Contains(t, e.QualifiedName, ".")
		require.NotEmpty(t, e.Symbol)
	}
}
