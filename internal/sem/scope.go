package sem

import "github.com/splanck/viper-sub008/internal/types"

// SymbolKind discriminates what a scope entry stands for (spec §3
// "Symbol frame"), in the same storage-class enum style as
// cmd/compile/internal/gc's Class (Pxxx/PEXTERN/PAUTO/...) generalized
// from "where a variable lives" to "what kind of name this is" for a
// source-level (not codegen-level) symbol table.
type SymbolKind int

const (
	SymVariable SymbolKind = iota
	SymParameter
	SymImplicit // synthesized names, e.g. a with-statement's temp
	SymConstant
	SymForIndex
)

// ArrayMeta records the bound information an array-typed local needs for
// index-type checking.
type ArrayMeta struct {
	Dims []int
}

// SymbolEntry is one scope binding.
type SymbolEntry struct {
	Name          string // original-case spelling
	Kind          SymbolKind
	DeclaredType  *types.Type
	NarrowedType  *types.Type // set by the narrowing stack, not stored here directly; see flow.go
	Array         *ArrayMeta
	ModuleLevel   bool
	Const         bool
	ConstValue    any // populated for SymConstant after folding
}

// Scope is one entry in the scope stack: module/global at the bottom,
// one frame per routine, nested frames for structured control blocks
// that introduce their own bindings (for/for-in/with temp).
type Scope struct {
	entries map[string]*SymbolEntry // key: lowercase name
	parent  *Scope
}

// ScopeStack is the stack of scopes (spec §3). The bottom frame (index 0)
// is always the module/global scope.
type ScopeStack struct {
	top *Scope
}

// NewScopeStack creates a stack with just the module/global scope.
func NewScopeStack() *ScopeStack {
	return &ScopeStack{top: &Scope{entries: make(map[string]*SymbolEntry)}}
}

// Push enters a new nested scope (routine entry, structured-control
// entry).
func (s *ScopeStack) Push() {
	s.top = &Scope{entries: make(map[string]*SymbolEntry), parent: s.top}
}

// Pop exits the innermost scope. Popping the module/global scope is a
// caller bug and is a no-op here rather than a panic, since the analyzer
// never does it in well-formed control flow.
func (s *ScopeStack) Pop() {
	if s.top.parent != nil {
		s.top = s.top.parent
	}
}

// Declare binds name in the innermost scope.
func (s *ScopeStack) Declare(name string, entry *SymbolEntry) {
	s.top.entries[toLower(name)] = entry
}

// Lookup searches from the innermost scope outward and returns the first
// match, or nil.
func (s *ScopeStack) Lookup(name string) *SymbolEntry {
	key := toLower(name)
	for sc := s.top; sc != nil; sc = sc.parent {
		if e, ok := sc.entries[key]; ok {
			return e
		}
	}
	return nil
}

// LookupModuleLevel searches only the bottom (global) scope.
func (s *ScopeStack) LookupModuleLevel(name string) *SymbolEntry {
	sc := s.top
	for sc.parent != nil {
		sc = sc.parent
	}
	return sc.entries[toLower(name)]
}

// InRoutineScope reports whether any frame has been pushed above the
// module scope (used to decide whether a VarDecl participates in
// definite-assignment tracking, which only applies within routine
// bodies).
func (s *ScopeStack) InRoutineScope() bool {
	return s.top.parent != nil
}
