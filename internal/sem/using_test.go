package sem

import (
	"testing"

	"github.com/splanck/viper-sub008/internal/diag"
	"github.com/stretchr/testify/require"
)

func TestUsingDeclarationOrder(t *testing.T) {
	u := NewUsingContext()
	u.Add("B", "", diag.SourceLoc{Line: 1})
	u.Add("A", "", diag.SourceLoc{Line: 2})
	u.Add("C", "", diag.SourceLoc{Line: 3})

	imports := u.Imports()
	require.Len(t, imports, 3)
	require.Equal(t, []string{"B", "A", "C"}, []string{imports[0].Namespace, imports[1].Namespace, imports[2].Namespace})
}

func TestUsingAliasCaseInsensitive(t *testing.T) {
	u := NewUsingContext()
	u.Add("Viper.Collections", "Coll", diag.SourceLoc{})

	require.True(t, u.HasAlias("coll"))
	require.True(t, u.HasAlias("COLL"))
	require.Equal(t, "Viper.Collections", u.ResolveAlias("coll"))
}

func TestUsingNoAliasClause(t *testing.T) {
	u := NewUsingContext()
	u.Add("Viper", "", diag.SourceLoc{})
	require.False(t, u.HasAlias(""))
	require.False(t, u.HasAlias("viper"))
}

func TestUsingClear(t *testing.T) {
	u := NewUsingContext()
	u.Add("A", "X", diag.SourceLoc{})
	u.Clear()
	require.Empty(t, u.Imports())
	require.False(t, u.HasAlias("x"))
}
