// Package ast defines the shared AST contract the semantic analyzer and
// lowerer consume. Per spec §2, the AST itself is externally owned (each
// frontend's parser builds it from its own token stream); this package
// is the lingua franca shape BASIC, Pascal, and Zia all lower to before
// they reach the analyzer, since the three frontends differ in surface
// syntax, not in the semantic model spec §4 describes. Every
// analyzer/lowerer pointer into these nodes is a non-owning back
// reference scoped to one compilation (spec §3 "Lifetimes").
package ast

import "github.com/splanck/viper-sub008/internal/diag"

// Node is implemented by every AST node. The analyzer's structure-
// directed dispatch is a single type switch on the concrete node type per
// spec §9 "Visitor pattern" note, rather than double-dispatch visitor methods.
type Node interface {
	Loc() diag.SourceLoc
}

type base struct {
	Location diag.SourceLoc
}

func (b base) Loc() diag.SourceLoc { return b.Location }

// ---- Top-level compilation unit ----

// File is one compiled source file: its USING directives, and the
// module-level declarations that follow.
type File struct {
	base
	Using []UsingDirective
	Decls []Decl
}

// UsingDirective is one parsed "USING ns [AS alias]" line.
type UsingDirective struct {
	base
	Namespace string
	Alias     string
}

// ---- Declarations ----

// Decl is implemented by every module-level declaration node.
type Decl interface {
	Node
	declNode()
}

type declBase struct{ base }

func (declBase) declNode() {}

// TypeDecl introduces a named alias for a type expression.
type TypeDecl struct {
	declBase
	Name string
	RHS  TypeExpr
}

// VarDecl declares a variable (module-level or local), with an optional
// initializer.
type VarDecl struct {
	declBase
	Name        string
	Type        TypeExpr // nil if inferred from Init
	Init        Expr     // nil if uninitialized
	ModuleLevel bool
}

// ConstDecl declares a compile-time constant; Init must fold per spec
// §4.6 "Constant folding".
type ConstDecl struct {
	declBase
	Name string
	Type TypeExpr // nil if inferred
	Init Expr
}

// EnumMember is one member of an EnumDecl; ordinal is its declaration
// index unless the source assigns one explicitly.
type EnumMember struct {
	Name    string
	Ordinal *int // nil means "assign next sequential ordinal"
}

// EnumDecl declares an enum type; each member becomes a constant whose
// value is its ordinal.
type EnumDecl struct {
	declBase
	Name    string
	Members []EnumMember
}

// ProcDecl declares a function/sub/procedure/constructor/destructor.
// Body is nil for a forward declaration; a later ProcDecl with a body
// and a matching signature replaces the forward entry.
type ProcDecl struct {
	declBase
	Name        string
	ClassName   string // "" for a free function; set for Class.Method
	Kind        int    // mirrors types.ProcKind
	Return      TypeExpr
	Params      []ParamDecl
	Body        []Stmt // nil for forward declarations
	IsVirtual   bool
	IsOverride  bool
	IsAbstract  bool
	Visibility  int // mirrors types.Visibility
}

// ParamDecl is one parameter in a ProcDecl's parameter list.
type ParamDecl struct {
	Name       string
	Type       TypeExpr
	ByRef      bool
	Default    Expr // nil if no default
}

// FieldDecl is one field in a ClassDecl.
type FieldDecl struct {
	Name       string
	Type       TypeExpr
	Weak       bool
	Visibility int
}

// PropertyDecl is one property in a ClassDecl.
type PropertyDecl struct {
	Name          string
	Type          TypeExpr
	ReadAccessor  string
	WriteAccessor string // "" if read-only
	Visibility    int
}

// ClassDecl declares a class: optional base, ordered interfaces, fields,
// methods (as nested ProcDecls), and properties.
type ClassDecl struct {
	declBase
	Name       string
	BaseName   string
	Interfaces []string
	Fields     []FieldDecl
	Properties []PropertyDecl
	Methods    []*ProcDecl
	IsAbstract bool
}

// InterfaceDecl declares an interface: ordered base interfaces and a
// method table (no bodies).
type InterfaceDecl struct {
	declBase
	Name      string
	Bases     []string
	Methods   []*ProcDecl
}

// ---- Type expressions ----

// TypeExpr is implemented by every parsed type-reference node.
type TypeExpr interface {
	Node
	typeExprNode()
}

type typeExprBase struct{ base }

func (typeExprBase) typeExprNode() {}

// NamedType is a simple or dotted type name reference (primitive,
// class, or interface), resolved by internal/sem's TypeResolver.
type NamedType struct {
	typeExprBase
	Name string
}

// OptionalType wraps another type expression in "?"; the analyzer
// rejects nesting (optional-of-optional).
type OptionalType struct {
	typeExprBase
	Inner TypeExpr
}

// ArrayType is "array[dims] of Elem"; Dims is nil for an unbounded array.
type ArrayType struct {
	typeExprBase
	Elem TypeExpr
	Dims []int
}

// ---- Statements ----

// Stmt is implemented by every statement node.
type Stmt interface {
	Node
	stmtNode()
}

type stmtBase struct{ base }

func (stmtBase) stmtNode() {}

// LocalVarStmt declares a local variable inside a routine body.
type LocalVarStmt struct {
	stmtBase
	Decl VarDecl
}

// AssignStmt assigns Value to Target.
type AssignStmt struct {
	stmtBase
	Target Expr
	Value  Expr
}

// ExprStmt evaluates an expression (typically a call) for effect.
type ExprStmt struct {
	stmtBase
	X Expr
}

// IfStmt is "if Cond then Then [else Else]".
type IfStmt struct {
	stmtBase
	Cond Expr
	Then []Stmt
	Else []Stmt // nil if no else clause
}

// WhileStmt is "while Cond do Body".
type WhileStmt struct {
	stmtBase
	Cond Expr
	Body []Stmt
}

// RepeatStmt is "repeat Body until Cond".
type RepeatStmt struct {
	stmtBase
	Body []Stmt
	Cond Expr
}

// ForStmt is a counted "for Var := Low to/downto High do Body"; the loop
// variable must be ordinal (spec §4.6).
type ForStmt struct {
	stmtBase
	Var      string
	Low      Expr
	High     Expr
	Downto   bool
	Body     []Stmt
}

// ForInStmt is "for Var in Collection do Body"; Var's type is the
// element type of Collection (array element, or 1-char substring for
// strings).
type ForInStmt struct {
	stmtBase
	Var        string
	Collection Expr
	Body       []Stmt
}

// CaseArm is one label/body pair of a CaseStmt.
type CaseArm struct {
	Labels []Expr // constant expressions
	Body   []Stmt
}

// CaseStmt is "case Scrutinee of Arms"; Scrutinee must be integer or
// enum, and labels (after constant folding) must be unique.
type CaseStmt struct {
	stmtBase
	Scrutinee Expr
	Arms      []CaseArm
	Default   []Stmt // nil if no default arm
}

// ExceptHandler is one "except ExcType [as Name] then Body" clause.
// Per spec §4.8/§9, v0.1 treats only the first handler as live (a
// catch-all); ExcType must derive from the predefined Exception class.
type ExceptHandler struct {
	ExcType string
	Name    string // "" if the exception value is not bound
	Body    []Stmt
}

// TryStmt is "try Body except Handlers [finally Finally]"; "except...else"
// is rejected in v0.1 (spec §4.6 Control statements).
type TryStmt struct {
	stmtBase
	Body     []Stmt
	Handlers []ExceptHandler
	Finally  []Stmt // nil if no finally clause
}

// ExitStmt is "exit" or "exit(Value)"; Value is nil for a bare exit.
type ExitStmt struct {
	stmtBase
	Value Expr
}

// BreakStmt / ContinueStmt exit or restart the innermost loop; the
// analyzer validates a loop is in scope (spec §7 Control errors).
type BreakStmt struct{ stmtBase }
type ContinueStmt struct{ stmtBase }

// WithStmt is "with Receiver do Body"; Receiver's class/record type and
// a synthesized temp name become the innermost with-context (spec §4.6).
type WithStmt struct {
	stmtBase
	Receiver Expr
	Body     []Stmt
}

// RaiseStmt is "raise" (valid only inside an except handler) or
// "raise Expr" (Expr must be an exception-type value).
type RaiseStmt struct {
	stmtBase
	Value Expr // nil for a bare raise
}

// ---- Expressions ----

// Expr is implemented by every expression node.
type Expr interface {
	Node
	exprNode()
}

type exprBase struct{ base }

func (exprBase) exprNode() {}

// IntLit, FloatLit, BoolLit, StringLit, NilLit are literal nodes.
type IntLit struct {
	exprBase
	Value int64
}

type FloatLit struct {
	exprBase
	Value float64
}

type BoolLit struct {
	exprBase
	Value bool
}

type StringLit struct {
	exprBase
	Value string
}

type NilLit struct{ exprBase }

// Ident is a bare identifier reference, resolved per the lookup order in
// spec §4.6.
type Ident struct {
	exprBase
	Name string
}

// UnaryExpr is a prefix unary operator applied to X.
type UnaryExpr struct {
	exprBase
	Op string
	X  Expr
}

// BinaryExpr is an infix binary operator applied to X and Y.
type BinaryExpr struct {
	exprBase
	Op   string
	X, Y Expr
}

// CoalesceExpr is "X ?? Y".
type CoalesceExpr struct {
	exprBase
	X, Y Expr
}

// CallExpr is a call of any of the four shapes spec §4.6 recognizes:
// free function, method call (Callee is a FieldAccess), type-cast
// (Callee resolves to a class/interface type name), or constructor call
// (Callee is a FieldAccess whose base resolves to a class type).
type CallExpr struct {
	exprBase
	Callee Expr
	Args   []Expr
}

// FieldAccess is "X.Name"; depending on what X resolves to, the analyzer
// treats this as a field read, a property read, a method-call callee, or
// the class-reference half of a constructor call.
type FieldAccess struct {
	exprBase
	X    Expr
	Name string
}

// IndexExpr is "X[Index]".
type IndexExpr struct {
	exprBase
	X     Expr
	Index Expr
}

// CastExpr is "TypeName(X)", recognized when TypeName resolves to a
// class/interface (spec §4.6 call shape (c)).
type CastExpr struct {
	exprBase
	TypeName string
	X        Expr
}

// InheritedExpr is "inherited [MethodName](Args)"; MethodName empty means
// "the current method's name".
type InheritedExpr struct {
	exprBase
	MethodName string
	Args       []Expr
}
