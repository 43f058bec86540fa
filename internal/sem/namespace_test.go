package sem

import (
	"testing"

	"github.com/splanck/viper-sub008/internal/rtclass"
	"github.com/stretchr/testify/require"
)

// TestRegistryIdempotence covers spec property 1: repeated namespace
// registration leaves one namespace, and the canonical spelling is the
// first one ever passed in.
func TestRegistryIdempotence(t *testing.T) {
	r := NewNamespaceRegistry()
	r.RegisterNamespace("Foo.Bar")
	r.RegisterNamespace("FOO.BAR")
	r.RegisterNamespace("foo.bar")

	require.Equal(t, "Foo.Bar", r.Info("foo.bar").Full)
	require.True(t, r.NamespaceExists("FOO.bar"))
}

// TestCaseInsensitivity covers spec property 2 for every query API this
// component exposes.
func TestCaseInsensitivity(t *testing.T) {
	r := NewNamespaceRegistry()
	r.RegisterClass("A.B", "Thing")

	require.True(t, r.TypeExists("a.b.thing"))
	require.True(t, r.TypeExists("A.B.THING"))
	require.Equal(t, KindClass, r.GetTypeKind("a.B.thinG"))
}

func TestRegisterClassGlobalNamespace(t *testing.T) {
	r := NewNamespaceRegistry()
	r.RegisterClass("", "Top")
	require.True(t, r.TypeExists("Top"))
	require.Equal(t, KindClass, r.GetTypeKind("top"))
}

func TestRegisterInterface(t *testing.T) {
	r := NewNamespaceRegistry()
	r.RegisterInterface("Viper.Collections", "IEnumerable")
	require.Equal(t, KindInterface, r.GetTypeKind("viper.collections.ienumerable"))
	info := r.Info("Viper.Collections")
	require.Contains(t, info.Interfaces, "Viper.Collections.IEnumerable")
}

func TestSeedFromRuntimeBuiltins(t *testing.T) {
	r := NewNamespaceRegistry()
	r.SeedFromRuntimeBuiltins(rtclass.BuiltinExterns())
	require.True(t, r.NamespaceExists("Viper"))
	require.True(t, r.NamespaceExists("Viper.Console"))
	// The final segment (the extern name itself) must not become a namespace.
	require.False(t, r.NamespaceExists("Viper.Console.PrintI64"))
}

func TestSeedRuntimeClassNamespaces(t *testing.T) {
	r := NewNamespaceRegistry()
	r.SeedRuntimeClassNamespaces(rtclass.Catalog())
	require.True(t, r.NamespaceExists("Viper"))
	require.True(t, r.NamespaceExists("Viper.Text"))
	require.True(t, r.NamespaceExists("Viper.Collections"))
}

func TestGetTypeKindUnknown(t *testing.T) {
	r := NewNamespaceRegistry()
	require.Equal(t, KindNone, r.GetTypeKind("Nope.Nothing"))
}
