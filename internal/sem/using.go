package sem

import "github.com/splanck/viper-sub008/internal/diag"

// Import is a single file-scoped USING directive: a namespace path, an
// optional alias (empty if no AS clause), and the source location for
// diagnostics.
type Import struct {
	Namespace string
	Alias     string
	Loc       diag.SourceLoc
}

// UsingContext is the file-scoped, declaration-ordered import list (C4).
// Nested-namespace blocks keep their own scoped stack of UsingContext
// values rather than mutating the top-level one; only top-level USINGs
// populate the context the type resolver consults.
type UsingContext struct {
	imports []Import
	aliases map[string]string // lowercase alias -> namespace (last-seen spelling)
}

// NewUsingContext constructs an empty context.
func NewUsingContext() *UsingContext {
	return &UsingContext{aliases: make(map[string]string)}
}

// Add appends a USING directive in declaration order and, if alias is
// non-empty, registers it for case-insensitive resolution.
func (u *UsingContext) Add(namespace, alias string, loc diag.SourceLoc) {
	u.imports = append(u.imports, Import{Namespace: namespace, Alias: alias, Loc: loc})
	if alias != "" {
		u.aliases[toLower(alias)] = namespace
	}
}

// Imports returns every USING directive in the order it was declared.
func (u *UsingContext) Imports() []Import { return u.imports }

// HasAlias reports whether alias was registered by some USING ... AS
// clause.
func (u *UsingContext) HasAlias(alias string) bool {
	_, ok := u.aliases[toLower(alias)]
	return ok
}

// ResolveAlias returns the namespace alias expands to, or "" if alias is
// not registered.
func (u *UsingContext) ResolveAlias(alias string) string {
	return u.aliases[toLower(alias)]
}

// Clear resets the context for a new file in a multi-file compilation.
func (u *UsingContext) Clear() {
	u.imports = nil
	u.aliases = make(map[string]string)
}
