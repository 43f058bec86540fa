package sem

import (
	"testing"

	"github.com/splanck/viper-sub008/internal/diag"
	"github.com/stretchr/testify/require"
)

func newFixture() (*NamespaceRegistry, *UsingContext) {
	r := NewNamespaceRegistry()
	u := NewUsingContext()
	return r, u
}

// TestResolverAmbiguity is spec seed scenario S1: A.Thing and B.Thing are
// both visible via USING; resolving "Thing" from the global namespace is
// ambiguous with a sorted contender list.
func TestResolverAmbiguity(t *testing.T) {
	r, u := newFixture()
	r.RegisterClass("A", "Thing")
	r.RegisterClass("B", "Thing")
	u.Add("B", "", diag.SourceLoc{})
	u.Add("A", "", diag.SourceLoc{})

	res := NewTypeResolver(r, u).Resolve("Thing", nil)
	require.False(t, res.Found)
	require.Equal(t, []string{"A.Thing", "B.Thing"}, res.Contenders)
}

func TestResolverCurrentNamespacePrecedence(t *testing.T) {
	r, u := newFixture()
	r.RegisterClass("A", "Thing")
	r.RegisterClass("B", "Thing")
	u.Add("B", "", diag.SourceLoc{})

	res := NewTypeResolver(r, u).Resolve("Thing", []string{"A"})
	require.True(t, res.Found)
	require.Equal(t, "A.Thing", res.QName)
	require.Empty(t, res.Contenders)
}

func TestResolverQualifiedBypassesUsing(t *testing.T) {
	r, u := newFixture()
	r.RegisterClass("A", "Thing")
	u.Add("Z", "", diag.SourceLoc{})

	res := NewTypeResolver(r, u).Resolve("A.Thing", nil)
	require.True(t, res.Found)
	require.Equal(t, "A.Thing", res.QName)
	require.Equal(t, ResolveClass, res.Kind)
}

func TestResolverAliasExpansion(t *testing.T) {
	r, u := newFixture()
	r.RegisterInterface("Viper.Collections", "IEnumerable")
	u.Add("Viper.Collections", "Coll", diag.SourceLoc{})

	res := NewTypeResolver(r, u).Resolve("Coll.IEnumerable", nil)
	require.True(t, res.Found)
	require.Equal(t, "Viper.Collections.IEnumerable", res.QName)
	require.Equal(t, ResolveInterface, res.Kind)
}

func TestResolverAliasExpansionNotFound(t *testing.T) {
	r, u := newFixture()
	u.Add("Viper.Collections", "Coll", diag.SourceLoc{})

	res := NewTypeResolver(r, u).Resolve("Coll.Missing", nil)
	require.False(t, res.Found)
	require.Empty(t, res.Contenders)
}

func TestResolverNotFound(t *testing.T) {
	r, u := newFixture()
	res := NewTypeResolver(r, u).Resolve("Nothing", nil)
	require.False(t, res.Found)
	require.Empty(t, res.Contenders)
}

// TestResolverDeterminism covers spec property 3 across import orderings:
// the contender list is always sorted, regardless of declaration order.
func TestResolverDeterminism(t *testing.T) {
	r, u := newFixture()
	r.RegisterClass("Z", "Thing")
	r.RegisterClass("A", "Thing")
	r.RegisterClass("M", "Thing")
	u.Add("Z", "", diag.SourceLoc{})
	u.Add("A", "", diag.SourceLoc{})
	u.Add("M", "", diag.SourceLoc{})

	res := NewTypeResolver(r, u).Resolve("Thing", nil)
	require.False(t, res.Found)
	require.Equal(t, []string{"A.Thing", "M.Thing", "Z.Thing"}, res.Contenders)
}

func TestResolverNamespaceWalkUp(t *testing.T) {
	r, u := newFixture()
	r.RegisterClass("A.B", "Thing")

	res := NewTypeResolver(r, u).Resolve("Thing", []string{"A", "B", "C"})
	require.True(t, res.Found)
	require.Equal(t, "A.B.Thing", res.QName)
}
