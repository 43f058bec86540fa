// Package sem holds the core name-resolution and semantic-analysis
// components (C3 namespace registry, C4 USING context, C5 type
// resolver, C6 two-pass analyzer) that every frontend shares.
package sem

import (
	"strings"

	"github.com/splanck/viper-sub008/internal/rtclass"
)

// TypeKind discriminates a registered name between a class and an
// interface, or reports that no type was found.
type TypeKind int

const (
	KindNone TypeKind = iota
	KindClass
	KindInterface
)

// NamespaceInfo is the canonical record for one registered namespace:
// its first-seen spelling plus the fully qualified class/interface names
// declared directly within it.
type NamespaceInfo struct {
	Full       string
	Classes    map[string]struct{}
	Interfaces map[string]struct{}
}

// NamespaceRegistry is the case-insensitive nominal-name store (C3).
// All lookups fold to lowercase; the first spelling ever registered for
// a given name is preserved as its canonical form for diagnostics.
//
// Ported from the original Viper compiler's NamespaceRegistry: registration
// is idempotent, and repeated namespace declarations merge into one
// logical namespace keyed by lowercase path.
type NamespaceRegistry struct {
	namespaces map[string]*NamespaceInfo
	types      map[string]TypeKind
}

// NewNamespaceRegistry constructs an empty registry.
func NewNamespaceRegistry() *NamespaceRegistry {
	return &NamespaceRegistry{
		namespaces: make(map[string]*NamespaceInfo),
		types:      make(map[string]TypeKind),
	}
}

func toLower(s string) string { return strings.ToLower(s) }

// RegisterNamespace registers full (idempotent); the first spelling seen
// for a given lowercase key is preserved as the canonical form.
func (r *NamespaceRegistry) RegisterNamespace(full string) {
	key := toLower(full)
	if _, ok := r.namespaces[key]; ok {
		return
	}
	r.namespaces[key] = &NamespaceInfo{
		Full:       full,
		Classes:    make(map[string]struct{}),
		Interfaces: make(map[string]struct{}),
	}
}

// RegisterClass ensures nsFull exists, then records "nsFull.className" in
// canonical casing as a class. The global namespace (nsFull == "") yields
// just "className" as the qualified name.
func (r *NamespaceRegistry) RegisterClass(nsFull, className string) {
	r.RegisterNamespace(nsFull)
	info := r.namespaces[toLower(nsFull)]
	fq := qualify(info.Full, className)
	info.Classes[fq] = struct{}{}
	r.types[toLower(fq)] = KindClass
}

// RegisterInterface is RegisterClass's analogue for interfaces.
func (r *NamespaceRegistry) RegisterInterface(nsFull, ifaceName string) {
	r.RegisterNamespace(nsFull)
	info := r.namespaces[toLower(nsFull)]
	fq := qualify(info.Full, ifaceName)
	info.Interfaces[fq] = struct{}{}
	r.types[toLower(fq)] = KindInterface
}

func qualify(nsFull, simple string) string {
	if nsFull == "" {
		return simple
	}
	return nsFull + "." + simple
}

// NamespaceExists reports whether full was ever registered.
func (r *NamespaceRegistry) NamespaceExists(full string) bool {
	_, ok := r.namespaces[toLower(full)]
	return ok
}

// TypeExists reports whether qualified names a registered class or
// interface.
func (r *NamespaceRegistry) TypeExists(qualified string) bool {
	_, ok := r.types[toLower(qualified)]
	return ok
}

// GetTypeKind reports the kind of a registered type, or KindNone.
func (r *NamespaceRegistry) GetTypeKind(qualified string) TypeKind {
	return r.types[toLower(qualified)]
}

// Info returns the namespace record for full, or nil if unregistered.
func (r *NamespaceRegistry) Info(full string) *NamespaceInfo {
	return r.namespaces[toLower(full)]
}

// SeedFromRuntimeBuiltins registers every dotted namespace prefix of
// each builtin extern procedure name (e.g. "Viper.Console.PrintI64"
// registers "Viper" and "Viper.Console"), so "USING Viper.Console"
// resolves unqualified calls against the runtime's builtin surface.
func (r *NamespaceRegistry) SeedFromRuntimeBuiltins(descs []rtclass.ExternProc) {
	for _, d := range descs {
		r.registerDottedPrefixes(d.QualifiedName)
	}
}

// SeedRuntimeClassNamespaces registers every dotted prefix of each
// runtime class's qualified name (e.g. "Viper.String" registers
// "Viper"), idempotently and case-insensitively.
func (r *NamespaceRegistry) SeedRuntimeClassNamespaces(classes []rtclass.Class) {
	for _, c := range classes {
		r.registerDottedPrefixes(c.QualifiedName)
	}
}

// registerDottedPrefixes registers every namespace prefix of a dotted
// name, stopping before the final segment (which names the function or
// type itself, not a namespace).
func (r *NamespaceRegistry) registerDottedPrefixes(name string) {
	segments := strings.Split(name, ".")
	if len(segments) < 2 {
		return
	}
	var current string
	for i := 0; i < len(segments)-1; i++ {
		if current == "" {
			current = segments[i]
		} else {
			current = current + "." + segments[i]
		}
		r.RegisterNamespace(current)
	}
}
