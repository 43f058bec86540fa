package sem

import (
	"sort"
	"strings"
)

// ResolveKind mirrors TypeKind for a resolution result (Unknown covers
// both "not found" and "ambiguous").
type ResolveKind int

const (
	ResolveUnknown ResolveKind = iota
	ResolveClass
	ResolveInterface
)

// ResolveResult is the outcome of resolving a type name.
type ResolveResult struct {
	Found      bool
	QName      string
	Kind       ResolveKind
	Contenders []string // non-empty only when Found is false due to ambiguity
}

// TypeResolver maps (name, current-namespace-chain) to a qualified type,
// detecting ambiguity among USING-imported candidates (C5). It does not
// own the registry or using context it reads from.
type TypeResolver struct {
	registry *NamespaceRegistry
	using    *UsingContext
}

// NewTypeResolver builds a resolver over an existing registry and using
// context.
func NewTypeResolver(registry *NamespaceRegistry, using *UsingContext) *TypeResolver {
	return &TypeResolver{registry: registry, using: using}
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func joinPath(segments []string) string {
	return strings.Join(segments, ".")
}

func convertKind(k TypeKind) ResolveKind {
	switch k {
	case KindClass:
		return ResolveClass
	case KindInterface:
		return ResolveInterface
	default:
		return ResolveUnknown
	}
}

// tryResolveInNamespace returns the qualified candidate name if ns.typeName
// exists in the registry, or "" otherwise.
func (t *TypeResolver) tryResolveInNamespace(ns, typeName string) string {
	candidate := typeName
	if ns != "" {
		candidate = ns + "." + typeName
	}
	if t.registry.TypeExists(candidate) {
		return candidate
	}
	return ""
}

// Resolve implements the algorithm from spec §4.5:
//  1. Dotted name whose first segment is a registered alias: expand and
//     check existence; USING is never consulted again.
//  2. Otherwise-dotted name: treat as fully qualified.
//  3. Simple name: walk the current namespace chain from most specific
//     to empty (a hit there ends the search, so it can never be
//     ambiguous), then scan USING imports in declaration order,
//     collecting every hit.
//
// Zero hits is not-found; one hit succeeds; more than one is ambiguous,
// reported via a case-insensitively sorted contender list for stable
// diagnostics.
func (t *TypeResolver) Resolve(name string, currentNsChain []string) ResolveResult {
	var result ResolveResult

	if strings.Contains(name, ".") {
		segments := splitPath(name)
		if len(segments) == 0 {
			return result
		}
		first := segments[0]

		if t.using.HasAlias(first) {
			expandedNs := t.using.ResolveAlias(first)
			expanded := append(splitPath(expandedNs), segments[1:]...)
			expandedPath := joinPath(expanded)
			if t.registry.TypeExists(expandedPath) {
				result.Found = true
				result.QName = expandedPath
				result.Kind = convertKind(t.registry.GetTypeKind(expandedPath))
			}
			return result
		}

		if t.registry.TypeExists(name) {
			result.Found = true
			result.QName = name
			result.Kind = convertKind(t.registry.GetTypeKind(name))
		}
		return result
	}

	// Simple name: current namespace chain, most specific first. A hit
	// here takes precedence over every USING import and ends the search,
	// so it can never itself be the source of ambiguity.
	for depth := len(currentNsChain); depth >= 0; depth-- {
		ns := joinPath(currentNsChain[:depth])
		if resolved := t.tryResolveInNamespace(ns, name); resolved != "" {
			result.Found = true
			result.QName = resolved
			result.Kind = convertKind(t.registry.GetTypeKind(resolved))
			return result
		}
	}

	var candidates []string
	for _, imp := range t.using.Imports() {
		if resolved := t.tryResolveInNamespace(imp.Namespace, name); resolved != "" {
			candidates = append(candidates, resolved)
		}
	}

	switch len(candidates) {
	case 0:
		return result
	case 1:
		result.Found = true
		result.QName = candidates[0]
		result.Kind = convertKind(t.registry.GetTypeKind(candidates[0]))
		return result
	default:
		sort.Slice(candidates, func(i, j int) bool {
			return strings.ToLower(candidates[i]) < strings.ToLower(candidates[j])
		})
		result.Contenders = candidates
		return result
	}
}
