package sem

import (
	"github.com/pkg/errors"
	"github.com/splanck/viper-sub008/internal/ast"
	"github.com/splanck/viper-sub008/internal/diag"
	"github.com/splanck/viper-sub008/internal/rtclass"
	"github.com/splanck/viper-sub008/internal/types"
)

// Diagnostic codes for the error kinds spec §7 enumerates; lexical and
// syntactic codes belong to the external frontends. CodeCaseLabelOverflow
// and CodeUseBeforeAssign are defined here but not raised by this analyzer.
const (
	CodeUndefinedIdent      = "B2001"
	CodeAmbiguousType       = "B2002"
	CodeUndefinedType       = "B2003"
	CodeUndefinedProc       = "B2004"
	CodeAssignMismatch      = "B2005"
	CodeBadOperator         = "B2006"
	CodeNonBoolCondition    = "B2007"
	CodeNonOrdinalLoopVar   = "B2008"
	CodeNilNonOptional      = "B2009"
	CodeDoubleOptional      = "B2010"
	CodeDuplicateCaseLabel  = "B2011"
	CodeCaseLabelOverflow   = "B2012"
	CodeAbstractInstantiate = "B2013"
	CodeNotImplementsIface  = "B2014"
	CodeDuplicateOverload   = "B2015"
	CodeBreakOutsideLoop    = "B2016"
	CodeExitValueInSub      = "B2017"
	CodeRaiseOutsideHandler = "B2018"
	CodeUseBeforeAssign     = "B2019"
	CodeConstNotConstant    = "B2020"
	CodeConstDivByZero      = "B2021"
	CodeAssignToLoopVar     = "B2022"
	CodeAssignToFuncName    = "B2023"
	CodeInternal            = "B2999"
)

// ImplicitConversion records that an expression node needs a runtime
// coercion when lowered, keyed by node identity (spec §4.6 "Implicit-
// conversion notes").
type ImplicitConversion struct {
	Target *types.Type
}

// ClassInfo augments types.Class with the declaration-order interface
// list already on it; kept as an alias point so lower/layout packages
// share one vocabulary with sem.
type ClassInfo = types.Class

// Analyzer is the two-pass semantic analyzer (C6): declaration
// collection, then body analysis, sharing one type/symbol/class/
// interface/constant table set for the whole compilation.
type Analyzer struct {
	Namespaces *NamespaceRegistry
	Using      *UsingContext
	Resolver   *TypeResolver

	Classes    map[string]*types.Class     // key: lowercase qualified name
	Interfaces map[string]*types.Interface // key: lowercase qualified name
	Procs      map[string]*types.Procedure // key: lowercase name (free functions)
	Constants  map[string]ConstValue       // key: lowercase name

	scopes     *ScopeStack
	narrowing  *NarrowingStack
	withStack  *WithStack
	loops      *LoopStack
	nsChain    []string

	implicit map[ast.Expr]ImplicitConversion

	// Types caches every expression node's validated type, keyed by
	// node identity, so internal/lower can recover it post-analysis
	// without re-deriving types itself.
	Types map[ast.Expr]*types.Type

	inExceptHandler bool

	emit diag.Emitter
}

// ConstValue is a folded compile-time constant, channeled by type per
// spec §4.6 ("Constant folding").
type ConstValue struct {
	Type  *types.Type
	Int   int64
	Real  float64
	Str   string
	Bool  bool
	Enum  string // enum member name, when Type.Kind == KindEnum
}

// NewAnalyzer builds an analyzer seeded with the runtime class catalog
// (spec §4.2/§4.3): the namespace registry is pre-populated with every
// runtime class's dotted namespace prefixes and the builtin extern
// procedure prefixes, so "USING Viper.Console" resolves immediately.
func NewAnalyzer(emit diag.Emitter) *Analyzer {
	ns := NewNamespaceRegistry()
	ns.SeedRuntimeClassNamespaces(rtclass.Catalog())
	ns.SeedFromRuntimeBuiltins(rtclass.BuiltinExterns())

	using := NewUsingContext()
	a := &Analyzer{
		Namespaces: ns,
		Using:      using,
		Resolver:   NewTypeResolver(ns, using),
		Classes:    make(map[string]*types.Class),
		Interfaces: make(map[string]*types.Interface),
		Procs:      make(map[string]*types.Procedure),
		Constants:  make(map[string]ConstValue),
		scopes:     NewScopeStack(),
		narrowing:  NewNarrowingStack(),
		withStack:  &WithStack{},
		loops:      &LoopStack{},
		implicit:   make(map[ast.Expr]ImplicitConversion),
		Types:      make(map[ast.Expr]*types.Type),
		emit:       emit,
	}
	return a
}

func (a *Analyzer) errorf(loc diag.SourceLoc, code, msg string, args ...any) {
	a.emit.Emit(diag.Diagnostic{
		Severity:     diag.Error,
		Code:         code,
		Loc:          loc,
		Message:      msg,
		Replacements: args,
	})
}

func (a *Analyzer) warnf(loc diag.SourceLoc, code, msg string, args ...any) {
	a.emit.Emit(diag.Diagnostic{
		Severity:     diag.Warning,
		Code:         code,
		Loc:          loc,
		Message:      msg,
		Replacements: args,
	})
}

// Analyze runs both passes over f and returns the implicit-conversion
// side map the lowerer consults.
func (a *Analyzer) Analyze(f *ast.File) map[ast.Expr]ImplicitConversion {
	for _, u := range f.Using {
		a.Using.Add(u.Namespace, u.Alias, u.Loc())
	}
	a.pass1(f)
	a.pass2(f)
	return a.implicit
}

// ---- Pass 1: declaration collection ----

func (a *Analyzer) pass1(f *ast.File) {
	for _, d := range f.Decls {
		a.collectDecl(d)
	}
}

func (a *Analyzer) collectDecl(d ast.Decl) {
	switch n := d.(type) {
	case *ast.TypeDecl:
		t := a.resolveTypeExpr(n.RHS)
		a.scopes.Declare(n.Name, &SymbolEntry{Name: n.Name, Kind: SymConstant, DeclaredType: t, ModuleLevel: true})
	case *ast.VarDecl:
		t := a.varDeclType(n)
		a.scopes.Declare(n.Name, &SymbolEntry{Name: n.Name, Kind: SymVariable, DeclaredType: t, ModuleLevel: true})
	case *ast.ConstDecl:
		a.collectConst(n)
	case *ast.EnumDecl:
		a.collectEnum(n)
	case *ast.ProcDecl:
		a.collectProc(n)
	case *ast.ClassDecl:
		a.collectClass(n)
	case *ast.InterfaceDecl:
		a.collectInterface(n)
	default:
		a.errorf(d.Loc(), CodeInternal, "unhandled declaration kind %T", d)
	}
}

func (a *Analyzer) varDeclType(n *ast.VarDecl) *types.Type {
	if n.Type != nil {
		return a.resolveTypeExpr(n.Type)
	}
	if n.Init != nil {
		return a.typeOfConstExpr(n.Init)
	}
	return types.Unknown
}

func (a *Analyzer) collectConst(n *ast.ConstDecl) {
	val, ok := a.foldConst(n.Init)
	if !ok {
		a.errorf(n.Loc(), CodeConstNotConstant, "initializer for constant %q is not a compile-time constant", n.Name)
		val = ConstValue{Type: types.Unknown}
	}
	a.Constants[toLower(n.Name)] = val
}

// foldConst evaluates a constant expression per spec §4.6: literals,
// named constants, and unary/binary ops over constants. Division by zero
// is rejected rather than folded.
func (a *Analyzer) foldConst(e ast.Expr) (ConstValue, bool) {
	switch n := e.(type) {
	case *ast.IntLit:
		return ConstValue{Type: types.Int64, Int: n.Value}, true
	case *ast.FloatLit:
		return ConstValue{Type: types.Float64, Real: n.Value}, true
	case *ast.BoolLit:
		return ConstValue{Type: types.Bool, Bool: n.Value}, true
	case *ast.StringLit:
		return ConstValue{Type: types.String, Str: n.Value}, true
	case *ast.Ident:
		if v, ok := a.Constants[toLower(n.Name)]; ok {
			return v, true
		}
		return ConstValue{}, false
	case *ast.UnaryExpr:
		x, ok := a.foldConst(n.X)
		if !ok {
			return ConstValue{}, false
		}
		return foldUnary(n.Op, x)
	case *ast.BinaryExpr:
		x, ok1 := a.foldConst(n.X)
		y, ok2 := a.foldConst(n.Y)
		if !ok1 || !ok2 {
			return ConstValue{}, false
		}
		v, ok := foldBinary(n.Op, x, y)
		if !ok && (n.Op == "/" || n.Op == "div" || n.Op == "mod") {
			a.errorf(n.Loc(), CodeConstDivByZero, "division by zero in constant expression")
		}
		return v, ok
	default:
		return ConstValue{}, false
	}
}

func foldUnary(op string, x ConstValue) (ConstValue, bool) {
	switch op {
	case "-":
		if x.Type == types.Int64 {
			return ConstValue{Type: types.Int64, Int: -x.Int}, true
		}
		return ConstValue{Type: types.Float64, Real: -x.Real}, true
	case "not":
		return ConstValue{Type: types.Bool, Bool: !x.Bool}, true
	default:
		return ConstValue{}, false
	}
}

func foldBinary(op string, x, y ConstValue) (ConstValue, bool) {
	bothInt := x.Type == types.Int64 && y.Type == types.Int64
	switch op {
	case "+":
		if bothInt {
			return ConstValue{Type: types.Int64, Int: x.Int + y.Int}, true
		}
		return ConstValue{Type: types.Float64, Real: asFloat(x) + asFloat(y)}, true
	case "-":
		if bothInt {
			return ConstValue{Type: types.Int64, Int: x.Int - y.Int}, true
		}
		return ConstValue{Type: types.Float64, Real: asFloat(x) - asFloat(y)}, true
	case "*":
		if bothInt {
			return ConstValue{Type: types.Int64, Int: x.Int * y.Int}, true
		}
		return ConstValue{Type: types.Float64, Real: asFloat(x) * asFloat(y)}, true
	case "/":
		if asFloat(y) == 0 {
			return ConstValue{}, false
		}
		return ConstValue{Type: types.Float64, Real: asFloat(x) / asFloat(y)}, true
	case "div":
		if y.Int == 0 {
			return ConstValue{}, false
		}
		return ConstValue{Type: types.Int64, Int: x.Int / y.Int}, true
	case "mod":
		if y.Int == 0 {
			return ConstValue{}, false
		}
		return ConstValue{Type: types.Int64, Int: x.Int % y.Int}, true
	default:
		return ConstValue{}, false
	}
}

func asFloat(v ConstValue) float64 {
	if v.Type == types.Int64 {
		return float64(v.Int)
	}
	return v.Real
}

func (a *Analyzer) typeOfConstExpr(e ast.Expr) *types.Type {
	if v, ok := a.foldConst(e); ok {
		return v.Type
	}
	return types.Unknown
}

func (a *Analyzer) collectEnum(n *ast.EnumDecl) {
	seen := make(map[string]bool)
	t := &types.Type{Kind: types.KindEnum, EnumName: n.Name}
	next := 0
	for _, m := range n.Members {
		if seen[toLower(m.Name)] {
			a.errorf(n.Loc(), CodeDuplicateOverload, "duplicate enum member %q in %q", m.Name, n.Name)
			continue
		}
		seen[toLower(m.Name)] = true
		ordinal := next
		if m.Ordinal != nil {
			ordinal = *m.Ordinal
		}
		next = ordinal + 1
		t.EnumValues = append(t.EnumValues, m.Name)
		a.Constants[toLower(m.Name)] = ConstValue{Type: t, Int: int64(ordinal), Enum: m.Name}
	}
	a.scopes.Declare(n.Name, &SymbolEntry{Name: n.Name, Kind: SymConstant, DeclaredType: t, ModuleLevel: true})
}

func (a *Analyzer) collectProc(n *ast.ProcDecl) {
	sig := a.buildSignature(n)
	if n.ClassName != "" {
		// Method signature: key "Class.Method" participates in the
		// enclosing class's overload set, not the free-function table.
		cls := a.ensureClass(n.ClassName)
		key := toLower(n.Name)
		for _, existing := range cls.Methods[key] {
			if signaturesEqual(existing, sig) {
				a.errorf(n.Loc(), CodeDuplicateOverload, "duplicate overload of %s.%s", n.ClassName, n.Name)
				return
			}
		}
		cls.AddMethodOverload(key, sig)
		if n.Kind == int(types.ProcConstructor) {
			cls.HasConstructor = true
		}
		if n.Kind == int(types.ProcDestructor) {
			cls.HasDestructor = true
		}
		return
	}

	// Free function: a forward declaration and its later definition share
	// one entry. A later bodiless declaration replaces the recorded
	// signature; no duplicate-definition diagnostic is raised here.
	key := toLower(n.Name)
	if existing, ok := a.Procs[key]; ok {
		if n.Body != nil && existing != nil {
			// A body-bearing declaration for a name already recorded keeps
			// the existing signature; a second body is not reported.
			return
		}
	}
	a.Procs[key] = sig
}

func (a *Analyzer) buildSignature(n *ast.ProcDecl) *types.Procedure {
	sig := &types.Procedure{
		Name:       n.Name,
		Kind:       types.ProcKind(n.Kind),
		Visibility: types.Visibility(n.Visibility),
		IsVirtual:  n.IsVirtual,
		IsOverride: n.IsOverride,
		IsAbstract: n.IsAbstract,
	}
	if n.Return != nil {
		sig.Return = a.resolveTypeExpr(n.Return)
	} else {
		sig.Return = types.Void
	}
	required := 0
	seenDefault := false
	for _, p := range n.Params {
		pt := a.resolveTypeExpr(p.Type)
		sig.Params = append(sig.Params, types.Param{
			Name: p.Name, Type: pt, ByRef: p.ByRef, HasDefault: p.Default != nil,
		})
		if p.Default == nil && !seenDefault {
			required++
		} else {
			seenDefault = true
		}
	}
	sig.RequiredArgs = required
	return sig
}

func signaturesEqual(a, b *types.Procedure) bool {
	if len(a.Params) != len(b.Params) {
		return false
	}
	for i := range a.Params {
		if !types.Equal(a.Params[i].Type, b.Params[i].Type) {
			return false
		}
	}
	return true
}

func (a *Analyzer) ensureClass(name string) *types.Class {
	key := toLower(name)
	if c, ok := a.Classes[key]; ok {
		return c
	}
	c := types.NewClassRecord(name, "")
	a.Classes[key] = c
	return c
}

func (a *Analyzer) collectClass(n *ast.ClassDecl) {
	c := a.ensureClass(n.Name)
	c.BaseName = n.BaseName
	c.InterfaceNames = n.Interfaces
	c.IsAbstract = n.IsAbstract
	for _, f := range n.Fields {
		c.AddField(toLower(f.Name), types.Field{
			DeclaredName: f.Name,
			Type:         a.resolveTypeExpr(f.Type),
			Weak:         f.Weak,
			Visibility:   types.Visibility(f.Visibility),
		})
	}
	for _, m := range n.Methods {
		m.ClassName = n.Name
		a.collectProc(m)
	}
	// Properties validated in pass 2 (needs accessor lookups against the
	// now-complete field/method tables of every class).
	for _, p := range n.Properties {
		c.Properties[toLower(p.Name)] = types.Property{
			Type:          a.resolveTypeExpr(p.Type),
			ReadAccessor:  p.ReadAccessor,
			WriteAccessor: p.WriteAccessor,
			Visibility:    types.Visibility(p.Visibility),
		}
	}
}

func (a *Analyzer) collectInterface(n *ast.InterfaceDecl) {
	key := toLower(n.Name)
	iface, ok := a.Interfaces[key]
	if !ok {
		iface = types.NewInterface(n.Name)
		a.Interfaces[key] = iface
	}
	iface.BaseNames = n.Bases
	for _, m := range n.Methods {
		sig := a.buildSignature(m)
		mkey := toLower(m.Name)
		for _, existing := range iface.Methods[mkey] {
			if signaturesEqual(existing, sig) {
				a.errorf(m.Loc(), CodeDuplicateOverload, "duplicate overload of %s.%s", n.Name, m.Name)
				return
			}
		}
		iface.Methods[mkey] = append(iface.Methods[mkey], sig)
	}
}

// ---- Pass 2: body analysis ----

func (a *Analyzer) pass2(f *ast.File) {
	for _, d := range f.Decls {
		switch n := d.(type) {
		case *ast.ProcDecl:
			a.analyzeProcBody(n)
		case *ast.ClassDecl:
			a.validateClass(n)
			for _, m := range n.Methods {
				a.analyzeProcBody(m)
			}
		}
	}
}

// validateClass performs the pass-2 checks spec §4.6 assigns to classes:
// property accessor validity, and interface-implementation checking
// walking the inheritance chain.
func (a *Analyzer) validateClass(n *ast.ClassDecl) {
	cls := a.Classes[toLower(n.Name)]
	for _, p := range n.Properties {
		if _, isField := cls.Fields[toLower(p.ReadAccessor)]; isField {
			// field-backed accessor: type must already match (resolved above).
			continue
		}
		if _, ok := cls.Methods[toLower(p.ReadAccessor)]; !ok {
			a.errorf(n.Loc(), CodeUndefinedProc, "property %s.%s read accessor %q is neither a field nor a method", n.Name, p.Name, p.ReadAccessor)
		}
	}
	for _, ifaceName := range n.Interfaces {
		a.checkImplementsInterface(cls, ifaceName, n.Loc())
	}
}

func (a *Analyzer) checkImplementsInterface(cls *types.Class, ifaceName string, loc diag.SourceLoc) {
	iface, ok := a.Interfaces[toLower(ifaceName)]
	if !ok {
		a.errorf(loc, CodeUndefinedType, "unknown interface %q", ifaceName)
		return
	}
	for methodKey, overloads := range iface.Methods {
		found := false
		for c := cls; c != nil; {
			if classOverloads, ok := c.Methods[methodKey]; ok {
				for _, want := range overloads {
					for _, have := range classOverloads {
						if signaturesEqual(want, have) {
							found = true
						}
					}
				}
			}
			c = a.Classes[toLower(c.BaseName)]
		}
		if !found {
			a.errorf(loc, CodeNotImplementsIface, "class %q does not implement %s.%s", cls.Name, ifaceName, methodKey)
		}
	}
	for _, base := range iface.BaseNames {
		a.checkImplementsInterface(cls, base, loc)
	}
}

func (a *Analyzer) analyzeProcBody(n *ast.ProcDecl) {
	if n.Body == nil {
		return // forward declaration
	}
	a.scopes.Push()
	defer a.scopes.Pop()

	if n.ClassName != "" {
		a.scopes.Declare("self", &SymbolEntry{Name: "self", Kind: SymParameter, DeclaredType: types.NewClass(n.ClassName)})
	}
	for _, p := range n.Params {
		pt := a.resolveTypeExpr(p.Type)
		a.scopes.Declare(p.Name, &SymbolEntry{Name: p.Name, Kind: SymParameter, DeclaredType: pt})
	}

	// Parameters arrive already assigned by the caller; only locals
	// declared without an initializer start in the unassigned set.
	da := NewDefiniteAssignment(nil)
	for _, stmt := range n.Body {
		da = a.analyzeStmt(stmt, da, n)
	}
}

// analyzeStmt type-checks one statement and returns the (possibly
// updated) definite-assignment set for the statements that follow it.
func (a *Analyzer) analyzeStmt(s ast.Stmt, da *DefiniteAssignment, enclosing *ast.ProcDecl) *DefiniteAssignment {
	switch n := s.(type) {
	case *ast.LocalVarStmt:
		t := a.varDeclType(&n.Decl)
		if n.Decl.Init != nil {
			a.checkExpr(n.Decl.Init)
		}
		a.scopes.Declare(n.Decl.Name, &SymbolEntry{Name: n.Decl.Name, Kind: SymVariable, DeclaredType: t})
		if n.Decl.Init != nil {
			da.MarkAssigned(n.Decl.Name)
		} else if isNonNullableRef(t) {
			da.unassigned[toLower(n.Decl.Name)] = struct{}{}
		}
		return da

	case *ast.AssignStmt:
		vt := a.checkExpr(n.Value)
		tt := a.checkExpr(n.Target)
		a.checkAssignable(n.Loc(), tt, vt, n.Value)
		if id, ok := n.Target.(*ast.Ident); ok {
			if entry := a.scopes.Lookup(id.Name); entry != nil && entry.Kind == SymForIndex {
				a.errorf(n.Loc(), CodeAssignToLoopVar, "cannot assign to loop variable %q", id.Name)
			} else if enclosing != nil && enclosing.Kind == int(types.ProcFunction) && toLower(id.Name) == toLower(enclosing.Name) {
				a.errorf(n.Loc(), CodeAssignToFuncName, "cannot assign to function name %q", id.Name)
			}
			da.MarkAssigned(id.Name)
			a.narrowing.Invalidate(id.Name)
		}
		return da

	case *ast.ExprStmt:
		a.checkExpr(n.X)
		return da

	case *ast.IfStmt:
		ct := a.checkExpr(n.Cond)
		if !types.Equal(ct, types.Bool) && ct != types.Unknown {
			a.errorf(n.Cond.Loc(), CodeNonBoolCondition, "if condition must be boolean, got %s", ct)
		}
		thenNarrow, elseNarrow := a.narrowingFromCondition(n.Cond)

		a.narrowing.Push()
		if thenNarrow != nil {
			a.narrowing.Narrow(thenNarrow.name, thenNarrow.t)
		}
		thenDA := da.Snapshot()
		for _, st := range n.Then {
			thenDA = a.analyzeStmt(st, thenDA, enclosing)
		}
		a.narrowing.Pop()

		if n.Else == nil {
			return da // missing else: pre-if set, conservatively
		}

		a.narrowing.Push()
		if elseNarrow != nil {
			a.narrowing.Narrow(elseNarrow.name, elseNarrow.t)
		}
		elseDA := da.Snapshot()
		for _, st := range n.Else {
			elseDA = a.analyzeStmt(st, elseDA, enclosing)
		}
		a.narrowing.Pop()

		return MergeBranches(thenDA, elseDA)

	case *ast.WhileStmt:
		ct := a.checkExpr(n.Cond)
		if !types.Equal(ct, types.Bool) && ct != types.Unknown {
			a.errorf(n.Cond.Loc(), CodeNonBoolCondition, "while condition must be boolean, got %s", ct)
		}
		a.loops.Push(LoopWhile)
		bodyDA := da.Snapshot()
		for _, st := range n.Body {
			bodyDA = a.analyzeStmt(st, bodyDA, enclosing)
		}
		a.loops.Pop()
		return da // a while body may run zero times; nothing new is guaranteed assigned

	case *ast.RepeatStmt:
		a.loops.Push(LoopRepeat)
		bodyDA := da.Snapshot()
		for _, st := range n.Body {
			bodyDA = a.analyzeStmt(st, bodyDA, enclosing)
		}
		a.loops.Pop()
		ct := a.checkExpr(n.Cond)
		if !types.Equal(ct, types.Bool) && ct != types.Unknown {
			a.errorf(n.Cond.Loc(), CodeNonBoolCondition, "repeat-until condition must be boolean, got %s", ct)
		}
		return bodyDA // repeat body runs at least once

	case *ast.ForStmt:
		lt := a.checkExpr(n.Low)
		a.checkExpr(n.High)
		if !isOrdinal(lt) && lt != types.Unknown {
			a.errorf(n.Loc(), CodeNonOrdinalLoopVar, "for-loop variable %q must be ordinal", n.Var)
		}
		a.scopes.Push()
		a.scopes.Declare(n.Var, &SymbolEntry{Name: n.Var, Kind: SymForIndex, DeclaredType: lt})
		a.loops.Push(LoopFor)
		bodyDA := da.Snapshot()
		for _, st := range n.Body {
			bodyDA = a.analyzeStmt(st, bodyDA, enclosing)
		}
		a.loops.Pop()
		a.scopes.Pop()
		return da

	case *ast.ForInStmt:
		ct := a.checkExpr(n.Collection)
		elemType := elementType(ct)
		a.scopes.Push()
		a.scopes.Declare(n.Var, &SymbolEntry{Name: n.Var, Kind: SymForIndex, DeclaredType: elemType})
		a.loops.Push(LoopForIn)
		bodyDA := da.Snapshot()
		for _, st := range n.Body {
			bodyDA = a.analyzeStmt(st, bodyDA, enclosing)
		}
		a.loops.Pop()
		a.scopes.Pop()
		return da

	case *ast.CaseStmt:
		st := a.checkExpr(n.Scrutinee)
		if st.Kind != types.KindInt64 && st.Kind != types.KindEnum && st != types.Unknown {
			a.errorf(n.Loc(), CodeBadOperator, "case scrutinee must be integer or enum, got %s", st)
		}
		seen := make(map[int64]bool)
		for _, arm := range n.Arms {
			for _, label := range arm.Labels {
				v, ok := a.foldConst(label)
				if !ok {
					continue
				}
				if seen[v.Int] {
					a.errorf(label.Loc(), CodeDuplicateCaseLabel, "duplicate case label")
				}
				seen[v.Int] = true
			}
			armDA := da.Snapshot()
			for _, bs := range arm.Body {
				armDA = a.analyzeStmt(bs, armDA, enclosing)
			}
		}
		for _, bs := range n.Default {
			da = a.analyzeStmt(bs, da, enclosing)
		}
		return da

	case *ast.TryStmt:
		tryDA := da.Snapshot()
		for _, bs := range n.Body {
			tryDA = a.analyzeStmt(bs, tryDA, enclosing)
		}
		for _, h := range n.Handlers {
			a.scopes.Push()
			if h.Name != "" {
				a.scopes.Declare(h.Name, &SymbolEntry{Name: h.Name, Kind: SymVariable, DeclaredType: types.NewClass(h.ExcType)})
			}
			handlerDA := da.Snapshot()
			prevInHandler := a.inExceptHandler
			a.inExceptHandler = true
			for _, bs := range h.Body {
				handlerDA = a.analyzeStmt(bs, handlerDA, enclosing)
			}
			a.inExceptHandler = prevInHandler
			a.scopes.Pop()
		}
		if n.Finally != nil {
			finDA := da.Snapshot()
			for _, bs := range n.Finally {
				finDA = a.analyzeStmt(bs, finDA, enclosing)
			}
		}
		return da

	case *ast.ExitStmt:
		if n.Value != nil {
			if enclosing.Kind != int(types.ProcFunction) {
				a.errorf(n.Loc(), CodeExitValueInSub, "exit with value is only valid inside a function")
			} else {
				vt := a.checkExpr(n.Value)
				ret := a.resolveTypeExpr(enclosing.Return)
				a.checkAssignable(n.Loc(), ret, vt, n.Value)
			}
		}
		return da

	case *ast.BreakStmt:
		if !a.loops.InLoop() {
			a.errorf(n.Loc(), CodeBreakOutsideLoop, "break outside loop")
		}
		return da

	case *ast.ContinueStmt:
		if !a.loops.InLoop() {
			a.errorf(n.Loc(), CodeBreakOutsideLoop, "continue outside loop")
		}
		return da

	case *ast.WithStmt:
		rt := a.checkExpr(n.Receiver)
		a.withStack.Push(WithContext{ReceiverType: rt, TempName: "__with_tmp"})
		bodyDA := da.Snapshot()
		for _, bs := range n.Body {
			bodyDA = a.analyzeStmt(bs, bodyDA, enclosing)
		}
		a.withStack.Pop()
		return da

	case *ast.RaiseStmt:
		if n.Value == nil {
			// Bare raise is valid only inside an except handler; the
			// TryStmt case sets inExceptHandler while it analyzes handler
			// bodies.
			if !a.inExceptHandler {
				a.errorf(n.Loc(), CodeRaiseOutsideHandler, "raise without expression is only valid inside an except handler")
			}
		} else {
			a.checkExpr(n.Value)
		}
		return da

	default:
		a.errorf(s.Loc(), CodeInternal, "unhandled statement kind %T", s)
		return da
	}
}

func isNonNullableRef(t *types.Type) bool {
	return t != nil && (t.Kind == types.KindClass || t.Kind == types.KindInterface)
}

func isOrdinal(t *types.Type) bool {
	return t != nil && (t.Kind == types.KindInt64 || t.Kind == types.KindEnum || t.Kind == types.KindRange)
}

func elementType(collection *types.Type) *types.Type {
	if collection == nil {
		return types.Unknown
	}
	switch collection.Kind {
	case types.KindArray:
		return collection.Elem
	case types.KindString:
		return types.String // 1-char substring
	default:
		return types.Unknown
	}
}

type narrowTarget struct {
	name string
	t    *types.Type
}

// narrowingFromCondition recognizes "x = nil" / "x <> nil" nil-comparison
// patterns against an optional-typed identifier and returns the narrowing
// to push into the then-branch (for "<>") or else-branch (for "=").
func (a *Analyzer) narrowingFromCondition(cond ast.Expr) (thenN, elseN *narrowTarget) {
	bin, ok := cond.(*ast.BinaryExpr)
	if !ok || (bin.Op != "=" && bin.Op != "<>") {
		return nil, nil
	}
	ident, isNilCmp := identNilComparison(bin)
	if ident == nil {
		return nil, nil
	}
	entry := a.scopes.Lookup(ident.Name)
	if entry == nil || !entry.DeclaredType.IsOptional() {
		return nil, nil
	}
	narrowed := &narrowTarget{name: ident.Name, t: entry.DeclaredType.Unwrapped}
	if !isNilCmp {
		return nil, nil
	}
	if bin.Op == "<>" {
		return narrowed, nil
	}
	return nil, narrowed
}

func identNilComparison(bin *ast.BinaryExpr) (*ast.Ident, bool) {
	if id, ok := bin.X.(*ast.Ident); ok {
		if _, isNil := bin.Y.(*ast.NilLit); isNil {
			return id, true
		}
	}
	if id, ok := bin.Y.(*ast.Ident); ok {
		if _, isNil := bin.X.(*ast.NilLit); isNil {
			return id, true
		}
	}
	return nil, false
}

// checkAssignable implements spec §4.6 "Assignability".
func (a *Analyzer) checkAssignable(loc diag.SourceLoc, target, source *types.Type, srcExpr ast.Expr) {
	if target == types.Unknown || source == types.Unknown {
		return
	}
	if source.Kind == types.KindNil {
		if target.IsOptional() {
			return
		}
		a.errorf(loc, CodeNilNonOptional, "nil is not assignable to non-optional type %s", target)
		return
	}
	if target.IsOptional() {
		if source.IsOptional() {
			if types.Equal(target.Unwrapped, source.Unwrapped) {
				return
			}
		} else if types.Equal(target.Unwrapped, source) {
			if srcExpr != nil {
				a.implicit[srcExpr] = ImplicitConversion{Target: target}
			}
			return
		}
	}
	if source.IsOptional() && !target.IsOptional() {
		a.errorf(loc, CodeAssignMismatch, "cannot implicitly convert %s to non-optional %s", source, target)
		return
	}
	switch target.Kind {
	case types.KindClass:
		if source.Kind == types.KindClass && a.classDerivesFrom(source.Name, target.Name) {
			return
		}
	case types.KindInterface:
		if source.Kind == types.KindInterface && a.interfaceExtends(source.Name, target.Name) {
			return
		}
		if source.Kind == types.KindClass && a.classImplements(source.Name, target.Name) {
			return
		}
	case types.KindArray:
		if source.Kind == types.KindArray && types.Equal(target.Elem, source.Elem) && len(target.Dims) == len(source.Dims) {
			return
		}
	case types.KindFloat64:
		if source.Kind == types.KindInt64 {
			if srcExpr != nil {
				a.implicit[srcExpr] = ImplicitConversion{Target: target}
			}
			return
		}
	case types.KindInt64:
		if source.Kind == types.KindEnum || source.Kind == types.KindRange {
			return
		}
	}
	if types.Equal(target, source) {
		return
	}
	a.errorf(loc, CodeAssignMismatch, "cannot assign %s to %s", source, target)
}

func (a *Analyzer) classDerivesFrom(className, targetName string) bool {
	key := toLower(className)
	for {
		if toLowerEq(key, targetName) {
			return true
		}
		c, ok := a.Classes[key]
		if !ok || c.BaseName == "" {
			return false
		}
		key = toLower(c.BaseName)
	}
}

func toLowerEq(lowered, other string) bool { return lowered == toLower(other) }

func (a *Analyzer) interfaceExtends(ifaceName, targetName string) bool {
	if toLowerEq(toLower(ifaceName), targetName) {
		return true
	}
	iface, ok := a.Interfaces[toLower(ifaceName)]
	if !ok {
		return false
	}
	for _, base := range iface.BaseNames {
		if a.interfaceExtends(base, targetName) {
			return true
		}
	}
	return false
}

func (a *Analyzer) classImplements(className, ifaceName string) bool {
	key := toLower(className)
	for {
		c, ok := a.Classes[key]
		if !ok {
			return false
		}
		for _, impl := range c.InterfaceNames {
			if a.interfaceExtends(impl, ifaceName) {
				return true
			}
		}
		if c.BaseName == "" {
			return false
		}
		key = toLower(c.BaseName)
	}
}

// ResolveTypeExprPublic exposes resolveTypeExpr to internal/lower,
// which needs to re-resolve a ProcDecl's param/return type expressions
// to their already-validated types during IL construction.
func (a *Analyzer) ResolveTypeExprPublic(t ast.TypeExpr) *types.Type {
	return a.resolveTypeExpr(t)
}

// resolveTypeExpr resolves a parsed TypeExpr against the type resolver,
// rejecting double-optional per spec §3.
func (a *Analyzer) resolveTypeExpr(t ast.TypeExpr) *types.Type {
	switch n := t.(type) {
	case nil:
		return types.Unknown
	case *ast.NamedType:
		return a.resolvePrimitiveOrNominal(n.Name, t.Loc())
	case *ast.OptionalType:
		inner := a.resolveTypeExpr(n.Inner)
		if inner.IsOptional() {
			a.errorf(t.Loc(), CodeDoubleOptional, "optional-of-optional is not allowed")
			return types.Unknown
		}
		return types.NewOptional(inner)
	case *ast.ArrayType:
		return types.NewArray(a.resolveTypeExpr(n.Elem), n.Dims)
	default:
		a.errorf(t.Loc(), CodeInternal, "unhandled type-expr kind %T", t)
		return types.Unknown
	}
}

var primitiveNames = map[string]*types.Type{
	"integer": types.Int64,
	"real":    types.Float64,
	"boolean": types.Bool,
	"string":  types.String,
	"void":    types.Void,
}

func (a *Analyzer) resolvePrimitiveOrNominal(name string, loc diag.SourceLoc) *types.Type {
	if t, ok := primitiveNames[toLower(name)]; ok {
		return t
	}
	if t, ok := a.Classes[toLower(name)]; ok {
		return types.NewClass(t.Name)
	}
	if _, ok := a.Interfaces[toLower(name)]; ok {
		return types.NewInterface(name)
	}
	res := a.Resolver.Resolve(name, a.nsChain)
	if !res.Found {
		if len(res.Contenders) > 0 {
			a.errorf(loc, CodeAmbiguousType, "ambiguous type %q: %v", name, res.Contenders)
		} else {
			a.errorf(loc, CodeUndefinedType, "undefined type %q", name)
		}
		return types.Unknown
	}
	switch res.Kind {
	case ResolveClass:
		return types.NewClass(res.QName)
	case ResolveInterface:
		return types.NewInterface(res.QName)
	default:
		return types.Unknown
	}
}

// checkExpr type-checks an expression and returns its type, following
// the structure-directed rules of spec §4.6.
// checkExpr types e and caches the result in Types so internal/lower
// can recover an already-validated expression's type without
// re-running analysis.
func (a *Analyzer) checkExpr(e ast.Expr) *types.Type {
	t := a.checkExprInner(e)
	a.Types[e] = t
	return t
}

func (a *Analyzer) checkExprInner(e ast.Expr) *types.Type {
	switch n := e.(type) {
	case *ast.IntLit:
		return types.Int64
	case *ast.FloatLit:
		return types.Float64
	case *ast.BoolLit:
		return types.Bool
	case *ast.StringLit:
		return types.String
	case *ast.NilLit:
		return types.Nil

	case *ast.Ident:
		return a.checkIdent(n)

	case *ast.UnaryExpr:
		xt := a.checkExpr(n.X)
		return a.checkUnary(n, xt)

	case *ast.BinaryExpr:
		xt := a.checkExpr(n.X)
		yt := a.checkExpr(n.Y)
		return a.checkBinary(n, xt, yt)

	case *ast.CoalesceExpr:
		xt := a.checkExpr(n.X)
		yt := a.checkExpr(n.Y)
		if !xt.IsOptional() {
			a.errorf(n.Loc(), CodeBadOperator, "left side of ?? must be optional")
			return types.Unknown
		}
		if !types.Equal(xt.Unwrapped, yt) && yt != types.Unknown {
			a.errorf(n.Loc(), CodeBadOperator, "?? operands must be type-compatible")
		}
		return xt.Unwrapped

	case *ast.FieldAccess:
		return a.checkFieldAccess(n)

	case *ast.IndexExpr:
		xt := a.checkExpr(n.X)
		it := a.checkExpr(n.Index)
		if !isOrdinal(it) && it != types.Unknown {
			a.errorf(n.Index.Loc(), CodeNonOrdinalLoopVar, "array index must be ordinal")
		}
		if xt != nil && xt.Kind == types.KindArray {
			return xt.Elem
		}
		if xt != nil && xt.Kind == types.KindString {
			return types.String
		}
		return types.Unknown

	case *ast.CastExpr:
		target := a.resolvePrimitiveOrNominal(n.TypeName, n.Loc())
		a.checkExpr(n.X)
		return target

	case *ast.CallExpr:
		return a.checkCall(n)

	case *ast.InheritedExpr:
		return a.checkInherited(n)

	default:
		a.errorf(e.Loc(), CodeInternal, "unhandled expression kind %T", e)
		return types.Unknown
	}
}

func (a *Analyzer) checkIdent(n *ast.Ident) *types.Type {
	if entry := a.scopes.Lookup(n.Name); entry != nil {
		if entry.Kind == SymVariable {
			if narrowed := a.narrowing.Lookup(n.Name); narrowed != nil {
				return narrowed
			}
		}
		return entry.DeclaredType
	}
	if wc := a.withStack.Innermost(); wc != nil {
		if wc.ReceiverType.Kind == types.KindClass {
			if cls, ok := a.Classes[toLower(wc.ReceiverType.Name)]; ok {
				if f, ok := cls.Fields[toLower(n.Name)]; ok {
					return f.Type
				}
			}
		}
	}
	if v, ok := a.Constants[toLower(n.Name)]; ok {
		return v.Type
	}
	if t, ok := a.Classes[toLower(n.Name)]; ok {
		return types.NewClass(t.Name) // type reference, e.g. bare ClassName before ".Create"
	}
	a.errorf(n.Loc(), CodeUndefinedIdent, "undefined identifier %q", n.Name)
	return types.Unknown
}

func (a *Analyzer) checkUnary(n *ast.UnaryExpr, xt *types.Type) *types.Type {
	switch n.Op {
	case "-":
		if xt.Kind == types.KindInt64 || xt.Kind == types.KindFloat64 || xt == types.Unknown {
			return xt
		}
	case "not":
		if xt.Kind == types.KindBool || xt == types.Unknown {
			return types.Bool
		}
	}
	if xt != types.Unknown {
		a.errorf(n.Loc(), CodeBadOperator, "operator %q not applicable to %s", n.Op, xt)
	}
	return types.Unknown
}

func (a *Analyzer) checkBinary(n *ast.BinaryExpr, xt, yt *types.Type) *types.Type {
	isArith := map[string]bool{"+": true, "-": true, "*": true}[n.Op]
	isCompare := map[string]bool{"=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true}[n.Op]

	switch {
	case isArith:
		if xt.Kind == types.KindFloat64 || yt.Kind == types.KindFloat64 {
			return types.Float64
		}
		if xt.Kind == types.KindInt64 && yt.Kind == types.KindInt64 {
			return types.Int64
		}
		if xt.Kind == types.KindString && yt.Kind == types.KindString && n.Op == "+" {
			return types.String
		}
	case n.Op == "/":
		return types.Float64
	case n.Op == "div" || n.Op == "mod":
		if xt.Kind == types.KindInt64 && yt.Kind == types.KindInt64 {
			return types.Int64
		}
		a.errorf(n.Loc(), CodeBadOperator, "%s requires both operands to be integer", n.Op)
		return types.Unknown
	case n.Op == "and" || n.Op == "or":
		if xt.Kind == types.KindBool && yt.Kind == types.KindBool {
			return types.Bool
		}
		a.errorf(n.Loc(), CodeBadOperator, "%s requires both operands to be boolean", n.Op)
		return types.Unknown
	case isCompare:
		if xt.Kind == types.KindEnum || yt.Kind == types.KindEnum {
			if !types.Equal(xt, yt) {
				a.errorf(n.Loc(), CodeBadOperator, "enum comparison requires both sides to be the same enum type")
			}
			return types.Bool
		}
		if xt.Kind == types.KindNil || yt.Kind == types.KindNil {
			other := xt
			if xt.Kind == types.KindNil {
				other = yt
			}
			if other.Kind != types.KindOptional && other.Kind != types.KindClass && other.Kind != types.KindInterface && other != types.Unknown {
				a.errorf(n.Loc(), CodeNilNonOptional, "nil compared with non-optional reference type %s", other)
			}
		}
		return types.Bool
	}
	if xt != types.Unknown && yt != types.Unknown {
		a.errorf(n.Loc(), CodeBadOperator, "operator %q not applicable to %s and %s", n.Op, xt, yt)
	}
	return types.Unknown
}

func (a *Analyzer) checkFieldAccess(n *ast.FieldAccess) *types.Type {
	xt := a.checkExpr(n.X)
	if xt == nil || xt == types.Unknown {
		return types.Unknown
	}
	switch xt.Kind {
	case types.KindClass:
		for key := toLower(xt.Name); key != ""; {
			cls, ok := a.Classes[key]
			if !ok {
				break
			}
			if f, ok := cls.Fields[toLower(n.Name)]; ok {
				return f.Type
			}
			if p, ok := cls.Properties[toLower(n.Name)]; ok {
				return p.Type
			}
			key = toLower(cls.BaseName)
		}
		a.errorf(n.Loc(), CodeUndefinedIdent, "unknown member %q on class %s", n.Name, xt.Name)
		return types.Unknown
	case types.KindString:
		if toLower(n.Name) == "length" {
			return types.Int64
		}
		return types.Unknown
	default:
		return types.Unknown
	}
}

func (a *Analyzer) checkCall(n *ast.CallExpr) *types.Type {
	for _, arg := range n.Args {
		a.checkExpr(arg)
	}
	switch callee := n.Callee.(type) {
	case *ast.Ident:
		// Free function call, or a class-reference bare-name used as a
		// type-cast form (TypeName(expr) per spec §4.6 call shape (c)).
		if sig, ok := a.Procs[toLower(callee.Name)]; ok {
			return sig.Return
		}
		if cls, ok := a.Classes[toLower(callee.Name)]; ok {
			if len(n.Args) != 1 {
				a.errorf(n.Loc(), CodeBadOperator, "type-cast form requires exactly one operand")
			}
			return types.NewClass(cls.Name)
		}
		if _, ok := a.Interfaces[toLower(callee.Name)]; ok {
			return types.NewInterface(callee.Name)
		}
		a.errorf(n.Loc(), CodeUndefinedProc, "undefined procedure %q", callee.Name)
		return types.Unknown

	case *ast.FieldAccess:
		// Constructor call form: ClassName.Create(args), recognized when
		// the base resolves to a class type (not a variable).
		if baseIdent, ok := callee.X.(*ast.Ident); ok {
			if a.scopes.Lookup(baseIdent.Name) == nil {
				if cls, ok := a.Classes[toLower(baseIdent.Name)]; ok {
					if cls.IsAbstract {
						a.errorf(n.Loc(), CodeAbstractInstantiate, "cannot instantiate abstract class %s", cls.Name)
					}
					return types.NewClass(cls.Name)
				}
			}
		}
		// Method call: receiver.Name(args).
		rt := a.checkExpr(callee.X)
		return a.resolveMethodCallReturn(rt, callee.Name, n)

	default:
		a.errorf(n.Loc(), CodeBadOperator, "callee is not callable")
		return types.Unknown
	}
}

func (a *Analyzer) resolveMethodCallReturn(receiver *types.Type, name string, call *ast.CallExpr) *types.Type {
	if receiver == nil || receiver == types.Unknown {
		return types.Unknown
	}
	switch receiver.Kind {
	case types.KindClass:
		for key := toLower(receiver.Name); key != ""; {
			cls, ok := a.Classes[key]
			if !ok {
				break
			}
			if overloads, ok := cls.Methods[toLower(name)]; ok {
				if sig := selectOverload(overloads, len(call.Args)); sig != nil {
					return sig.Return
				}
			}
			key = toLower(cls.BaseName)
		}
		a.errorf(call.Loc(), CodeUndefinedProc, "unknown method %q on class %s", name, receiver.Name)
		return types.Unknown
	case types.KindInterface:
		iface, ok := a.Interfaces[toLower(receiver.Name)]
		if !ok {
			return types.Unknown
		}
		if overloads, ok := iface.Methods[toLower(name)]; ok {
			if sig := selectOverload(overloads, len(call.Args)); sig != nil {
				return sig.Return
			}
		}
		a.errorf(call.Loc(), CodeUndefinedProc, "unknown interface method %q", name)
		return types.Unknown
	default:
		return types.Unknown
	}
}

// selectOverload picks the overload whose arity accepts argCount
// arguments (required..len(params)). Argument-type assignability
// matching against each candidate is the lowerer's job once a single
// overload is selected; arity is what disambiguates the common case.
func selectOverload(overloads []*types.Procedure, argCount int) *types.Procedure {
	for _, o := range overloads {
		if argCount >= o.RequiredArgs && argCount <= len(o.Params) {
			return o
		}
	}
	if len(overloads) > 0 {
		return overloads[0]
	}
	return nil
}

func (a *Analyzer) checkInherited(n *ast.InheritedExpr) *types.Type {
	for _, arg := range n.Args {
		a.checkExpr(arg)
	}
	self := a.scopes.Lookup("self")
	if self == nil {
		a.errorf(n.Loc(), CodeBadOperator, "inherited is only valid inside a method")
		return types.Unknown
	}
	cls, ok := a.Classes[toLower(self.DeclaredType.Name)]
	if !ok || cls.BaseName == "" {
		a.errorf(n.Loc(), CodeUndefinedProc, "no base class for inherited call")
		return types.Unknown
	}
	base := a.Classes[toLower(cls.BaseName)]
	if base == nil {
		return types.Unknown
	}
	if overloads, ok := base.Methods[toLower(n.MethodName)]; ok {
		if sig := selectOverload(overloads, len(n.Args)); sig != nil {
			if sig.IsAbstract {
				a.errorf(n.Loc(), CodeAbstractInstantiate, "cannot call inherited on abstract method %s", n.MethodName)
			}
			return sig.Return
		}
	}
	return types.Unknown
}

// InternalError wraps an invariant violation in the analyzer with a
// stack trace (spec §9 "Visitor pattern" default-arm note).
func (a *Analyzer) InternalError(where string, kind any) error {
	return errors.Errorf("sem: unhandled %s kind %T", where, kind)
}
