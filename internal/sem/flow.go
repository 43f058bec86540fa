package sem

import "github.com/splanck/viper-sub008/internal/types"

// DefiniteAssignment tracks which non-nullable reference-typed locals
// have not yet been assigned (spec §3 "Definite-assignment set"). The
// set holds names still *un*assigned; membership means "reading this is
// an error".
type DefiniteAssignment struct {
	unassigned map[string]struct{}
}

// NewDefiniteAssignment starts with every given name unassigned.
func NewDefiniteAssignment(names []string) *DefiniteAssignment {
	d := &DefiniteAssignment{unassigned: make(map[string]struct{}, len(names))}
	for _, n := range names {
		d.unassigned[toLower(n)] = struct{}{}
	}
	return d
}

// Snapshot copies the current unassigned set, for branch-entry capture.
func (d *DefiniteAssignment) Snapshot() *DefiniteAssignment {
	cp := &DefiniteAssignment{unassigned: make(map[string]struct{}, len(d.unassigned))}
	for k := range d.unassigned {
		cp.unassigned[k] = struct{}{}
	}
	return cp
}

// MarkAssigned removes name from the unassigned set.
func (d *DefiniteAssignment) MarkAssigned(name string) {
	delete(d.unassigned, toLower(name))
}

// IsUnassigned reports whether name has not yet been definitely assigned.
func (d *DefiniteAssignment) IsUnassigned(name string) bool {
	_, ok := d.unassigned[toLower(name)]
	return ok
}

// MergeBranches implements spec §8 property 6, the definite-assignment
// merge law: after an if/else, a name is assigned iff it was assigned on
// both branches, i.e. the merged unassigned set is the UNION of the two
// branches' unassigned sets. Passing a single branch (else == nil,
// meaning "no else clause") returns a copy of that branch's set
// unchanged, per spec §4.6 "Missing else keeps the pre-if set
// conservatively" (the pre-if set already equals what a no-op else
// branch would have produced, so unioning with itself is a no-op).
func MergeBranches(thenSet, elseSet *DefiniteAssignment) *DefiniteAssignment {
	merged := &DefiniteAssignment{unassigned: make(map[string]struct{})}
	for k := range thenSet.unassigned {
		merged.unassigned[k] = struct{}{}
	}
	if elseSet != nil {
		for k := range elseSet.unassigned {
			merged.unassigned[k] = struct{}{}
		}
	}
	return merged
}

// NarrowingStack is a stack of maps from lowercase variable name to a
// refined type, pushed on entry to a branch proven non-nil by a direct
// nil comparison (spec §3 "Narrowing stack"). The innermost entry wins
// at lookup.
type NarrowingStack struct {
	frames []map[string]*types.Type
}

// NewNarrowingStack starts empty.
func NewNarrowingStack() *NarrowingStack { return &NarrowingStack{} }

// Push enters a new narrowing scope.
func (n *NarrowingStack) Push() {
	n.frames = append(n.frames, make(map[string]*types.Type))
}

// Pop exits the innermost narrowing scope (spec §8 property 7: a
// variable narrowed in a branch is not narrowed outside it).
func (n *NarrowingStack) Pop() {
	if len(n.frames) > 0 {
		n.frames = n.frames[:len(n.frames)-1]
	}
}

// Narrow binds name to t in the innermost frame.
func (n *NarrowingStack) Narrow(name string, t *types.Type) {
	if len(n.frames) == 0 {
		n.Push()
	}
	n.frames[len(n.frames)-1][toLower(name)] = t
}

// Lookup returns the innermost narrowed type for name, or nil if not
// narrowed anywhere on the stack.
func (n *NarrowingStack) Lookup(name string) *types.Type {
	key := toLower(name)
	for i := len(n.frames) - 1; i >= 0; i-- {
		if t, ok := n.frames[i][key]; ok {
			return t
		}
	}
	return nil
}

// Invalidate removes name's narrowing from every frame on the stack: any
// assignment to a narrowed variable invalidates the narrowing everywhere
// (spec §8 property 7), not just in the innermost scope.
func (n *NarrowingStack) Invalidate(name string) {
	key := toLower(name)
	for _, f := range n.frames {
		delete(f, key)
	}
}

// WithContext is one entry of the with-statement context stack: the
// receiver's class/record type and a synthesized temp-variable name. The
// innermost context wins on ambiguous field resolution (spec §4.6).
type WithContext struct {
	ReceiverType *types.Type
	TempName     string
}

// WithStack is a stack of WithContext, innermost last.
type WithStack struct {
	frames []WithContext
}

// Push enters a new with-context.
func (w *WithStack) Push(ctx WithContext) { w.frames = append(w.frames, ctx) }

// Pop exits the innermost with-context.
func (w *WithStack) Pop() {
	if len(w.frames) > 0 {
		w.frames = w.frames[:len(w.frames)-1]
	}
}

// Innermost returns the current with-context, or nil if none is active.
func (w *WithStack) Innermost() *WithContext {
	if len(w.frames) == 0 {
		return nil
	}
	return &w.frames[len(w.frames)-1]
}

// LoopKind distinguishes the loop forms that exit/break/continue must
// validate against.
type LoopKind int

const (
	LoopWhile LoopKind = iota
	LoopRepeat
	LoopFor
	LoopForIn
)

// LoopStack tracks nested loop entry so break/continue/exit validation
// (spec §4.6 "while/repeat/for/for-in") can check a loop is actually in
// scope.
type LoopStack struct {
	kinds []LoopKind
}

// Push enters a loop of the given kind.
func (l *LoopStack) Push(k LoopKind) { l.kinds = append(l.kinds, k) }

// Pop exits the innermost loop.
func (l *LoopStack) Pop() {
	if len(l.kinds) > 0 {
		l.kinds = l.kinds[:len(l.kinds)-1]
	}
}

// InLoop reports whether any loop is currently open.
func (l *LoopStack) InLoop() bool { return len(l.kinds) > 0 }
