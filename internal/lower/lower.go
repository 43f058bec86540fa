// Package lower implements the lowerer (C8): it walks an analyzed AST
// and builds the typed IL (internal/il) that carries every construct's
// validated semantics into the runtime ABI (internal/runtimeabi) and
// class layout (internal/layout) the analyzer and layout computer
// already worked out. Grounded on the original Viper compiler's
// Lowerer_*.cpp family (frontends/pascal), ported to Go's builder-style
// IL construction rather than the original's direct emit-as-you-go
// methods.
package lower

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/splanck/viper-sub008/internal/ast"
	"github.com/splanck/viper-sub008/internal/il"
	"github.com/splanck/viper-sub008/internal/layout"
	"github.com/splanck/viper-sub008/internal/sem"
	"github.com/splanck/viper-sub008/internal/types"
	"go.uber.org/zap"
)

// loopTargets names the blocks "break"/"continue" jump to for the
// innermost enclosing loop.
type loopTargets struct {
	breakLabel    string
	continueLabel string
}

// Lowerer drives AST -> IL construction for one compilation unit. It
// consumes an already-analyzed AST: the Analyzer's cached expression
// types (sem.Analyzer.Types) and implicit-conversion map tell the
// lowerer exactly which coercions to materialize, so it never
// re-derives assignability itself.
type Lowerer struct {
	analyzer *sem.Analyzer
	implicit map[ast.Expr]sem.ImplicitConversion
	layout   *layout.Computer

	mod *il.Module

	b *il.Builder

	locals    map[string]il.Value // lowercase name -> alloca slot
	localType map[string]*types.Type

	currentClassName string
	currentFuncName  string
	resultSlot       il.Value
	hasResultSlot    bool

	loops       []loopTargets
	handlerToks []il.Value
	withFrames  []withFrame

	externsUsed map[string]bool
	stringPool  map[string]string // literal text -> global name
	blockSeq    int

	log *zap.SugaredLogger
}

// New builds a Lowerer over an analyzer that has already run Analyze
// and a layout computer that has already run ComputeAll.
func New(analyzer *sem.Analyzer, implicit map[ast.Expr]sem.ImplicitConversion, comp *layout.Computer) *Lowerer {
	comp.AssignInterfaceIDs(analyzer.Interfaces)
	return &Lowerer{
		analyzer:    analyzer,
		implicit:    implicit,
		layout:      comp,
		mod:         &il.Module{},
		externsUsed: make(map[string]bool),
		stringPool:  make(map[string]string),
		log:         zap.NewNop().Sugar(),
	}
}

// WithLogger injects a structured logger for module-init emission
// tracing. Callers that don't need trace output can leave the
// no-op default from New in place.
func (lw *Lowerer) WithLogger(log *zap.SugaredLogger) *Lowerer {
	lw.log = log
	return lw
}

// LowerFile lowers every top-level declaration of f into the module,
// returning the finished module plus the accumulated string constants
// and extern declarations it referenced.
func (lw *Lowerer) LowerFile(f *ast.File) (*il.Module, error) {
	for _, d := range f.Decls {
		if err := lw.lowerDecl(d); err != nil {
			return nil, err
		}
	}
	if err := lw.BuildModuleInit(); err != nil {
		return nil, err
	}
	lw.finalizeExterns()
	return lw.mod, nil
}

func (lw *Lowerer) lowerDecl(d ast.Decl) error {
	switch n := d.(type) {
	case *ast.ProcDecl:
		if n.Body == nil {
			return nil // forward declaration, nothing to lower
		}
		return lw.lowerProc(n, "")
	case *ast.ClassDecl:
		return lw.lowerClass(n)
	case *ast.VarDecl, *ast.ConstDecl, *ast.TypeDecl, *ast.EnumDecl, *ast.InterfaceDecl:
		return nil // module-level data/type declarations carry no executable IL of their own
	default:
		return errors.Errorf("lower: unhandled top-level decl %T", d)
	}
}

func (lw *Lowerer) lowerClass(n *ast.ClassDecl) error {
	for _, m := range n.Methods {
		if m.Body == nil {
			continue
		}
		if err := lw.lowerProc(m, n.Name); err != nil {
			return err
		}
	}
	return nil
}

// mangleMethod names a class method's IL function, mirroring the
// original lowerer's "Class.Method" mangling (orig:Lowerer_OOP.cpp).
func mangleMethod(className, methodName string) string {
	return className + "." + methodName
}

func (lw *Lowerer) lowerProc(n *ast.ProcDecl, className string) error {
	ret := il.Void
	if n.Kind == int(types.ProcFunction) {
		ret = lw.mapType(lw.resolveReturnType(n))
	}

	params := make([]il.Param, 0, len(n.Params)+1)
	if className != "" {
		params = append(params, il.Param{Name: "self", Type: il.Ptr})
	}
	for _, p := range n.Params {
		params = append(params, il.Param{Name: p.Name, Type: lw.mapType(lw.resolveParamType(p))})
	}

	name := n.Name
	if className != "" {
		name = mangleMethod(className, n.Name)
	}

	lw.b = il.NewBuilder(name, params, ret)
	lw.locals = make(map[string]il.Value)
	lw.localType = make(map[string]*types.Type)
	lw.currentClassName = className
	lw.currentFuncName = n.Name
	lw.hasResultSlot = false
	lw.loops = nil
	lw.blockSeq = 0

	entry, err := lw.b.CreateBlock("entry")
	if err != nil {
		return err
	}
	lw.b.SetBlock(entry)

	idx := 0
	if className != "" {
		selfSlot, err := lw.b.EmitAlloca(il.Ptr, n.Loc())
		if err != nil {
			return err
		}
		if err := lw.b.EmitStore(selfSlot, il.TempVal(0), n.Loc()); err != nil {
			return err
		}
		lw.locals["self"] = selfSlot
		lw.localType["self"] = types.NewClass(className)
		idx++
	}
	for _, p := range n.Params {
		slot, err := lw.b.EmitAlloca(lw.mapType(lw.resolveParamType(p)), n.Loc())
		if err != nil {
			return err
		}
		if err := lw.b.EmitStore(slot, il.TempVal(idx), n.Loc()); err != nil {
			return err
		}
		key := lowerKey(p.Name)
		lw.locals[key] = slot
		lw.localType[key] = lw.resolveParamType(p)
		idx++
	}

	if n.Kind == int(types.ProcFunction) {
		slot, err := lw.b.EmitAlloca(ret, n.Loc())
		if err != nil {
			return err
		}
		lw.resultSlot = slot
		lw.hasResultSlot = true
	}

	if err := lw.lowerStmts(n.Body); err != nil {
		return err
	}

	if !lw.b.Current().Terminated() {
		if n.Kind == int(types.ProcFunction) {
			val, err := lw.b.EmitLoad(lw.resultSlot, ret, n.Loc())
			if err != nil {
				return err
			}
			if err := lw.b.EmitRet(val, n.Loc()); err != nil {
				return err
			}
		} else if err := lw.b.EmitRetVoid(n.Loc()); err != nil {
			return err
		}
	}

	lw.mod.Functions = append(lw.mod.Functions, lw.b.Function())
	return nil
}

func (lw *Lowerer) resolveReturnType(n *ast.ProcDecl) *types.Type {
	if n.Return == nil {
		return types.Void
	}
	return lw.analyzer.ResolveTypeExprPublic(n.Return)
}

func (lw *Lowerer) resolveParamType(p ast.ParamDecl) *types.Type {
	return lw.analyzer.ResolveTypeExprPublic(p.Type)
}

// newBlockLabel returns a fresh, function-unique block label built
// from a descriptive prefix (mirrors the original lowerer's
// "and_rhs"/"coalesce_join"-style names).
func (lw *Lowerer) newBlockLabel(prefix string) string {
	lw.blockSeq++
	return fmt.Sprintf("%s.%d", prefix, lw.blockSeq)
}

func lowerKey(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// useExtern records a runtime extern symbol as used so finalizeExterns
// can declare it.
func (lw *Lowerer) useExtern(symbol string) {
	lw.externsUsed[symbol] = true
}

func (lw *Lowerer) finalizeExterns() {
	for sym := range lw.externsUsed {
		sig, ok := rtclassSignature(sym)
		if !ok {
			continue
		}
		lw.mod.Externs = append(lw.mod.Externs, sig)
	}
	for text, name := range lw.stringPool {
		lw.mod.Globals = append(lw.mod.Globals, il.Global{Name: name, Value: text})
	}
}

// stringConst interns a string literal into the module's constant pool,
// returning its global reference.
func (lw *Lowerer) stringConst(text string) il.Value {
	name, ok := lw.stringPool[text]
	if !ok {
		name = fmt.Sprintf("str.%d", len(lw.stringPool))
		lw.stringPool[text] = name
	}
	return il.GlobalVal(name)
}
