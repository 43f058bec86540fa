package lower

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/splanck/viper-sub008/internal/ast"
	"github.com/splanck/viper-sub008/internal/diag"
	"github.com/splanck/viper-sub008/internal/il"
	"github.com/splanck/viper-sub008/internal/runtimeabi"
	"github.com/splanck/viper-sub008/internal/types"
)

// withFrame is one active "with Receiver do" binding: the already-
// lowered receiver pointer and its static class name, consulted by
// lowerIdent when a bare name isn't a local, a self-member, or a
// constant (orig:Lowerer_Stmt.cpp lowerWith).
type withFrame struct {
	objPtr    il.Value
	className string
}

// tryLowerWithMember resolves a bare identifier against the innermost
// active with-receiver's fields, the with-statement counterpart of
// tryLowerSelfMember.
func (lw *Lowerer) tryLowerWithMember(name string, loc diag.SourceLoc) (il.Value, bool, error) {
	if len(lw.withFrames) == 0 {
		return il.Value{}, false, nil
	}
	wf := lw.withFrames[len(lw.withFrames)-1]
	if wf.className == "" {
		return il.Value{}, false, nil
	}
	for c := lw.analyzer.Classes[lowerKey(wf.className)]; c != nil; {
		if _, ok := c.Fields[lowerKey(name)]; ok {
			val, err := lw.lowerFieldOnObject(wf.objPtr, c.Name, name, loc)
			return val, true, err
		}
		c = lw.analyzer.Classes[lowerKey(c.BaseName)]
	}
	return il.Value{}, false, nil
}

// lowerStmts lowers a statement list in order, stopping early if one of
// them terminates its block (a return/break/continue or a bare raise
// makes the rest of the list dead; a raise with a value is an rt_throw
// call and does not end the block).
func (lw *Lowerer) lowerStmts(stmts []ast.Stmt) error {
	for _, s := range stmts {
		if lw.b.Current().Terminated() {
			return nil
		}
		if err := lw.lowerStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (lw *Lowerer) lowerStmt(s ast.Stmt) error {
	switch n := s.(type) {
	case *ast.LocalVarStmt:
		return lw.lowerLocalVarStmt(n)
	case *ast.AssignStmt:
		return lw.lowerAssignStmt(n)
	case *ast.ExprStmt:
		_, err := lw.lowerExpr(n.X)
		return err
	case *ast.IfStmt:
		return lw.lowerIfStmt(n)
	case *ast.WhileStmt:
		return lw.lowerWhileStmt(n)
	case *ast.RepeatStmt:
		return lw.lowerRepeatStmt(n)
	case *ast.ForStmt:
		return lw.lowerForStmt(n)
	case *ast.ForInStmt:
		return lw.lowerForInStmt(n)
	case *ast.CaseStmt:
		return lw.lowerCaseStmt(n)
	case *ast.TryStmt:
		return lw.lowerTryStmt(n)
	case *ast.ExitStmt:
		return lw.lowerExitStmt(n)
	case *ast.BreakStmt:
		return lw.lowerBreakStmt(n)
	case *ast.ContinueStmt:
		return lw.lowerContinueStmt(n)
	case *ast.WithStmt:
		return lw.lowerWithStmt(n)
	case *ast.RaiseStmt:
		return lw.lowerRaiseStmt(n)
	default:
		return errors.Errorf("lower: unhandled statement kind %T", s)
	}
}

// zeroValue is the default-initialized value for an uninitialized local
// of IL type t (spec §4.6 "uninitialized locals start at their type's
// zero value").
func zeroValue(t il.Type) il.Value {
	switch t.Kind {
	case il.KindI64:
		return il.ConstInt(0)
	case il.KindF64:
		return il.ConstFloat(0)
	case il.KindI1:
		return il.ConstBool(false)
	case il.KindStr:
		return il.ConstStr("")
	default:
		return il.NullVal()
	}
}

func (lw *Lowerer) lowerLocalVarStmt(n *ast.LocalVarStmt) error {
	var t *types.Type
	if n.Decl.Type != nil {
		t = lw.analyzer.ResolveTypeExprPublic(n.Decl.Type)
	} else if n.Decl.Init != nil {
		t = lw.analyzer.Types[n.Decl.Init]
	}
	ilType := lw.mapType(t)

	slot, err := lw.b.EmitAlloca(ilType, n.Loc())
	if err != nil {
		return err
	}
	key := lowerKey(n.Decl.Name)
	lw.locals[key] = slot
	lw.localType[key] = t

	if n.Decl.Init != nil {
		val, err := lw.lowerExpr(n.Decl.Init)
		if err != nil {
			return err
		}
		return lw.b.EmitStore(slot, val, n.Loc())
	}
	return lw.b.EmitStore(slot, zeroValue(ilType), n.Loc())
}

func (lw *Lowerer) lowerAssignStmt(n *ast.AssignStmt) error {
	val, err := lw.lowerExpr(n.Value)
	if err != nil {
		return err
	}
	switch target := n.Target.(type) {
	case *ast.Ident:
		return lw.storeIdent(target, val, n.Loc())
	case *ast.FieldAccess:
		return lw.storeFieldAccess(target, val, n.Loc())
	case *ast.IndexExpr:
		return lw.storeIndex(target, val, n.Loc())
	default:
		return errors.Errorf("lower: unassignable target %T", n.Target)
	}
}

func (lw *Lowerer) storeIdent(id *ast.Ident, val il.Value, loc diag.SourceLoc) error {
	key := lowerKey(id.Name)
	if key == "result" && lw.hasResultSlot {
		return lw.b.EmitStore(lw.resultSlot, val, loc)
	}
	if slot, ok := lw.locals[key]; ok {
		return lw.b.EmitStore(slot, val, loc)
	}
	if lw.currentClassName != "" {
		if addr, ok, err := lw.trySelfFieldAddr(id.Name, loc); ok {
			if err != nil {
				return err
			}
			return lw.b.EmitStore(addr, val, loc)
		}
	}
	return errors.Errorf("lower: cannot assign to %q", id.Name)
}

func (lw *Lowerer) storeFieldAccess(fa *ast.FieldAccess, val il.Value, loc diag.SourceLoc) error {
	xt := lw.analyzer.Types[fa.X]
	if xt == nil || xt.Kind != types.KindClass {
		return errors.Errorf("lower: cannot assign to field %q", fa.Name)
	}
	objPtr, err := lw.lowerExpr(fa.X)
	if err != nil {
		return err
	}
	for className := xt.Name; className != ""; {
		cls, ok := lw.analyzer.Classes[lowerKey(className)]
		if !ok {
			break
		}
		if _, ok := cls.Fields[lowerKey(fa.Name)]; ok {
			off, ok := lw.layout.FieldOffset(className, fa.Name)
			if !ok {
				return errors.Errorf("lower: unknown field %q on class %s", fa.Name, className)
			}
			addr, err := lw.b.EmitGEP(objPtr, int64(off), loc)
			if err != nil {
				return err
			}
			return lw.b.EmitStore(addr, val, loc)
		}
		if prop, ok := cls.Properties[lowerKey(fa.Name)]; ok {
			if prop.WriteAccessor == "" {
				return errors.Errorf("lower: property %q is read-only", fa.Name)
			}
			_, err := lw.dispatchMethod(className, prop.WriteAccessor, []il.Value{objPtr, val}, loc)
			return err
		}
		className = cls.BaseName
	}
	return errors.Errorf("lower: cannot assign to field %q", fa.Name)
}

func (lw *Lowerer) storeIndex(n *ast.IndexExpr, val il.Value, loc diag.SourceLoc) error {
	base, err := lw.lowerExpr(n.X)
	if err != nil {
		return err
	}
	idx, err := lw.lowerExpr(n.Index)
	if err != nil {
		return err
	}
	lw.useExtern(runtimeabi.ArrI64Set)
	_, err = lw.b.EmitCall(runtimeabi.ArrI64Set, []il.Value{base, idx, val}, il.Void, loc)
	return err
}

// lowerIfStmt emits the then/else diamond. Either arm may itself end in
// a terminator (a nested return/raise/break), in which case that arm
// contributes no edge into the join block; if both arms terminate, no
// join block is created at all.
func (lw *Lowerer) lowerIfStmt(n *ast.IfStmt) error {
	thenLabel := lw.newBlockLabel("if_then")
	elseLabel := lw.newBlockLabel("if_else")

	cond, err := lw.lowerExpr(n.Cond)
	if err != nil {
		return err
	}

	thenBlock, err := lw.b.CreateBlock(thenLabel)
	if err != nil {
		return err
	}
	elseBlock, err := lw.b.CreateBlock(elseLabel)
	if err != nil {
		return err
	}
	if err := lw.b.EmitCBr(cond, thenLabel, nil, elseLabel, nil, n.Loc()); err != nil {
		return err
	}

	lw.b.SetBlock(thenBlock)
	if err := lw.lowerStmts(n.Then); err != nil {
		return err
	}
	thenEnd := lw.b.Current()
	thenOpen := !thenEnd.Terminated()

	lw.b.SetBlock(elseBlock)
	if n.Else != nil {
		if err := lw.lowerStmts(n.Else); err != nil {
			return err
		}
	}
	elseEnd := lw.b.Current()
	elseOpen := !elseEnd.Terminated()

	if !thenOpen && !elseOpen {
		return nil
	}

	joinLabel := lw.newBlockLabel("if_join")
	joinBlock, err := lw.b.CreateBlock(joinLabel)
	if err != nil {
		return err
	}
	if thenOpen {
		lw.b.SetBlock(thenEnd)
		if err := lw.b.EmitBr(joinLabel, nil, n.Loc()); err != nil {
			return err
		}
	}
	if elseOpen {
		lw.b.SetBlock(elseEnd)
		if err := lw.b.EmitBr(joinLabel, nil, n.Loc()); err != nil {
			return err
		}
	}
	lw.b.SetBlock(joinBlock)
	return nil
}

func (lw *Lowerer) lowerWhileStmt(n *ast.WhileStmt) error {
	condLabel := lw.newBlockLabel("while_cond")
	bodyLabel := lw.newBlockLabel("while_body")
	doneLabel := lw.newBlockLabel("while_done")

	if err := lw.b.EmitBr(condLabel, nil, n.Loc()); err != nil {
		return err
	}

	condBlock, err := lw.b.CreateBlock(condLabel)
	if err != nil {
		return err
	}
	bodyBlock, err := lw.b.CreateBlock(bodyLabel)
	if err != nil {
		return err
	}
	doneBlock, err := lw.b.CreateBlock(doneLabel)
	if err != nil {
		return err
	}

	lw.b.SetBlock(condBlock)
	cond, err := lw.lowerExpr(n.Cond)
	if err != nil {
		return err
	}
	if err := lw.b.EmitCBr(cond, bodyLabel, nil, doneLabel, nil, n.Loc()); err != nil {
		return err
	}

	lw.loops = append(lw.loops, loopTargets{breakLabel: doneLabel, continueLabel: condLabel})
	lw.b.SetBlock(bodyBlock)
	if err := lw.lowerStmts(n.Body); err != nil {
		return err
	}
	if !lw.b.Current().Terminated() {
		if err := lw.b.EmitBr(condLabel, nil, n.Loc()); err != nil {
			return err
		}
	}
	lw.loops = lw.loops[:len(lw.loops)-1]

	lw.b.SetBlock(doneBlock)
	return nil
}

func (lw *Lowerer) lowerRepeatStmt(n *ast.RepeatStmt) error {
	bodyLabel := lw.newBlockLabel("repeat_body")
	condLabel := lw.newBlockLabel("repeat_cond")
	doneLabel := lw.newBlockLabel("repeat_done")

	if err := lw.b.EmitBr(bodyLabel, nil, n.Loc()); err != nil {
		return err
	}

	bodyBlock, err := lw.b.CreateBlock(bodyLabel)
	if err != nil {
		return err
	}
	condBlock, err := lw.b.CreateBlock(condLabel)
	if err != nil {
		return err
	}
	doneBlock, err := lw.b.CreateBlock(doneLabel)
	if err != nil {
		return err
	}

	lw.loops = append(lw.loops, loopTargets{breakLabel: doneLabel, continueLabel: condLabel})
	lw.b.SetBlock(bodyBlock)
	if err := lw.lowerStmts(n.Body); err != nil {
		return err
	}
	if !lw.b.Current().Terminated() {
		if err := lw.b.EmitBr(condLabel, nil, n.Loc()); err != nil {
			return err
		}
	}
	lw.loops = lw.loops[:len(lw.loops)-1]

	lw.b.SetBlock(condBlock)
	cond, err := lw.lowerExpr(n.Cond)
	if err != nil {
		return err
	}
	// "until cond" loops while cond is false.
	if err := lw.b.EmitCBr(cond, doneLabel, nil, bodyLabel, nil, n.Loc()); err != nil {
		return err
	}

	lw.b.SetBlock(doneBlock)
	return nil
}

func (lw *Lowerer) lowerForStmt(n *ast.ForStmt) error {
	low, err := lw.lowerExpr(n.Low)
	if err != nil {
		return err
	}
	high, err := lw.lowerExpr(n.High)
	if err != nil {
		return err
	}

	varType := lw.analyzer.Types[n.Low]
	if varType == nil {
		varType = types.Int64
	}
	ilType := lw.mapType(varType)

	slot, err := lw.b.EmitAlloca(ilType, n.Loc())
	if err != nil {
		return err
	}
	if err := lw.b.EmitStore(slot, low, n.Loc()); err != nil {
		return err
	}
	key := lowerKey(n.Var)
	lw.locals[key] = slot
	lw.localType[key] = varType

	highSlot, err := lw.b.EmitAlloca(ilType, n.Loc())
	if err != nil {
		return err
	}
	if err := lw.b.EmitStore(highSlot, high, n.Loc()); err != nil {
		return err
	}

	condLabel := lw.newBlockLabel("for_cond")
	bodyLabel := lw.newBlockLabel("for_body")
	stepLabel := lw.newBlockLabel("for_step")
	doneLabel := lw.newBlockLabel("for_done")

	if err := lw.b.EmitBr(condLabel, nil, n.Loc()); err != nil {
		return err
	}

	condBlock, err := lw.b.CreateBlock(condLabel)
	if err != nil {
		return err
	}
	bodyBlock, err := lw.b.CreateBlock(bodyLabel)
	if err != nil {
		return err
	}
	stepBlock, err := lw.b.CreateBlock(stepLabel)
	if err != nil {
		return err
	}
	doneBlock, err := lw.b.CreateBlock(doneLabel)
	if err != nil {
		return err
	}

	lw.b.SetBlock(condBlock)
	cur, err := lw.b.EmitLoad(slot, ilType, n.Loc())
	if err != nil {
		return err
	}
	highVal, err := lw.b.EmitLoad(highSlot, ilType, n.Loc())
	if err != nil {
		return err
	}
	pred := il.CmpLe
	if n.Downto {
		pred = il.CmpGe
	}
	cond, err := lw.b.EmitCmp(il.OpICmp, pred, cur, highVal, n.Loc())
	if err != nil {
		return err
	}
	if err := lw.b.EmitCBr(cond, bodyLabel, nil, doneLabel, nil, n.Loc()); err != nil {
		return err
	}

	lw.loops = append(lw.loops, loopTargets{breakLabel: doneLabel, continueLabel: stepLabel})
	lw.b.SetBlock(bodyBlock)
	if err := lw.lowerStmts(n.Body); err != nil {
		return err
	}
	if !lw.b.Current().Terminated() {
		if err := lw.b.EmitBr(stepLabel, nil, n.Loc()); err != nil {
			return err
		}
	}
	lw.loops = lw.loops[:len(lw.loops)-1]

	lw.b.SetBlock(stepBlock)
	cur2, err := lw.b.EmitLoad(slot, ilType, n.Loc())
	if err != nil {
		return err
	}
	op := il.OpIAddOvf
	if n.Downto {
		op = il.OpISubOvf
	}
	next, err := lw.b.EmitBinary(op, cur2, il.ConstInt(1), ilType, n.Loc())
	if err != nil {
		return err
	}
	if err := lw.b.EmitStore(slot, next, n.Loc()); err != nil {
		return err
	}
	if err := lw.b.EmitBr(condLabel, nil, n.Loc()); err != nil {
		return err
	}

	lw.b.SetBlock(doneBlock)
	return nil
}

// lowerForInStmt indexes the collection by an implicit counter (spec
// §4.6 "for-in"): an array element read via rt_arr_i64_get or a
// 1-character string slice via rt_substr.
func (lw *Lowerer) lowerForInStmt(n *ast.ForInStmt) error {
	collType := lw.analyzer.Types[n.Collection]
	coll, err := lw.lowerExpr(n.Collection)
	if err != nil {
		return err
	}
	isString := collType != nil && collType.Kind == types.KindString

	var length il.Value
	if isString {
		lw.useExtern(runtimeabi.Len)
		length, err = lw.b.EmitCall(runtimeabi.Len, []il.Value{coll}, il.I64, n.Loc())
	} else {
		lw.useExtern(runtimeabi.ArrI64Len)
		length, err = lw.b.EmitCall(runtimeabi.ArrI64Len, []il.Value{coll}, il.I64, n.Loc())
	}
	if err != nil {
		return err
	}

	idxSlot, err := lw.b.EmitAlloca(il.I64, n.Loc())
	if err != nil {
		return err
	}
	if err := lw.b.EmitStore(idxSlot, il.ConstInt(0), n.Loc()); err != nil {
		return err
	}

	elemType := types.String
	if collType != nil && collType.Kind == types.KindArray {
		elemType = collType.Elem
	}
	elemIL := lw.mapType(elemType)
	key := lowerKey(n.Var)
	elemSlot, err := lw.b.EmitAlloca(elemIL, n.Loc())
	if err != nil {
		return err
	}
	lw.locals[key] = elemSlot
	lw.localType[key] = elemType

	condLabel := lw.newBlockLabel("forin_cond")
	bodyLabel := lw.newBlockLabel("forin_body")
	stepLabel := lw.newBlockLabel("forin_step")
	doneLabel := lw.newBlockLabel("forin_done")

	if err := lw.b.EmitBr(condLabel, nil, n.Loc()); err != nil {
		return err
	}

	condBlock, err := lw.b.CreateBlock(condLabel)
	if err != nil {
		return err
	}
	bodyBlock, err := lw.b.CreateBlock(bodyLabel)
	if err != nil {
		return err
	}
	stepBlock, err := lw.b.CreateBlock(stepLabel)
	if err != nil {
		return err
	}
	doneBlock, err := lw.b.CreateBlock(doneLabel)
	if err != nil {
		return err
	}

	lw.b.SetBlock(condBlock)
	idx, err := lw.b.EmitLoad(idxSlot, il.I64, n.Loc())
	if err != nil {
		return err
	}
	cond, err := lw.b.EmitCmp(il.OpICmp, il.CmpLt, idx, length, n.Loc())
	if err != nil {
		return err
	}
	if err := lw.b.EmitCBr(cond, bodyLabel, nil, doneLabel, nil, n.Loc()); err != nil {
		return err
	}

	lw.b.SetBlock(bodyBlock)
	idx2, err := lw.b.EmitLoad(idxSlot, il.I64, n.Loc())
	if err != nil {
		return err
	}
	var elem il.Value
	if isString {
		lw.useExtern(runtimeabi.Substr)
		elem, err = lw.b.EmitCall(runtimeabi.Substr, []il.Value{coll, idx2, il.ConstInt(1)}, il.Str, n.Loc())
	} else {
		lw.useExtern(runtimeabi.ArrI64Get)
		elem, err = lw.b.EmitCall(runtimeabi.ArrI64Get, []il.Value{coll, idx2}, il.I64, n.Loc())
	}
	if err != nil {
		return err
	}
	if err := lw.b.EmitStore(elemSlot, elem, n.Loc()); err != nil {
		return err
	}

	lw.loops = append(lw.loops, loopTargets{breakLabel: doneLabel, continueLabel: stepLabel})
	if err := lw.lowerStmts(n.Body); err != nil {
		return err
	}
	if !lw.b.Current().Terminated() {
		if err := lw.b.EmitBr(stepLabel, nil, n.Loc()); err != nil {
			return err
		}
	}
	lw.loops = lw.loops[:len(lw.loops)-1]

	lw.b.SetBlock(stepBlock)
	idx3, err := lw.b.EmitLoad(idxSlot, il.I64, n.Loc())
	if err != nil {
		return err
	}
	next, err := lw.b.EmitBinary(il.OpIAddOvf, idx3, il.ConstInt(1), il.I64, n.Loc())
	if err != nil {
		return err
	}
	if err := lw.b.EmitStore(idxSlot, next, n.Loc()); err != nil {
		return err
	}
	if err := lw.b.EmitBr(condLabel, nil, n.Loc()); err != nil {
		return err
	}

	lw.b.SetBlock(doneBlock)
	return nil
}

// lowerCaseStmt flattens every arm's label set into one cascading chain
// of equality tests against the scrutinee, falling through to the
// default arm (or straight to done if there is none) when no label
// matches.
func (lw *Lowerer) lowerCaseStmt(n *ast.CaseStmt) error {
	scrutinee, err := lw.lowerExpr(n.Scrutinee)
	if err != nil {
		return err
	}

	type labelTest struct {
		expr ast.Expr
		arm  int
	}
	var tests []labelTest
	for ai, arm := range n.Arms {
		for _, l := range arm.Labels {
			tests = append(tests, labelTest{expr: l, arm: ai})
		}
	}

	armLabels := make([]string, len(n.Arms))
	for ai := range n.Arms {
		armLabels[ai] = lw.newBlockLabel(fmt.Sprintf("case_arm%d", ai))
	}
	defaultLabel := lw.newBlockLabel("case_default")
	doneLabel := lw.newBlockLabel("case_done")

	testLabels := make([]string, len(tests))
	for i := range tests {
		testLabels[i] = lw.newBlockLabel(fmt.Sprintf("case_test%d", i))
	}

	firstLabel := defaultLabel
	if len(tests) > 0 {
		firstLabel = testLabels[0]
	}
	if err := lw.b.EmitBr(firstLabel, nil, n.Loc()); err != nil {
		return err
	}

	testBlocks := make([]*il.Block, len(tests))
	for i := range tests {
		blk, err := lw.b.CreateBlock(testLabels[i])
		if err != nil {
			return err
		}
		testBlocks[i] = blk
	}
	armBlocks := make([]*il.Block, len(n.Arms))
	for ai := range n.Arms {
		blk, err := lw.b.CreateBlock(armLabels[ai])
		if err != nil {
			return err
		}
		armBlocks[ai] = blk
	}
	defaultBlock, err := lw.b.CreateBlock(defaultLabel)
	if err != nil {
		return err
	}
	doneBlock, err := lw.b.CreateBlock(doneLabel)
	if err != nil {
		return err
	}

	for i, t := range tests {
		lw.b.SetBlock(testBlocks[i])
		labelVal, err := lw.lowerExpr(t.expr)
		if err != nil {
			return err
		}
		eq, err := lw.b.EmitCmp(il.OpICmp, il.CmpEq, scrutinee, labelVal, t.expr.Loc())
		if err != nil {
			return err
		}
		nextLabel := defaultLabel
		if i+1 < len(tests) {
			nextLabel = testLabels[i+1]
		}
		if err := lw.b.EmitCBr(eq, armLabels[t.arm], nil, nextLabel, nil, n.Loc()); err != nil {
			return err
		}
	}

	for ai, arm := range n.Arms {
		lw.b.SetBlock(armBlocks[ai])
		if err := lw.lowerStmts(arm.Body); err != nil {
			return err
		}
		if !lw.b.Current().Terminated() {
			if err := lw.b.EmitBr(doneLabel, nil, n.Loc()); err != nil {
				return err
			}
		}
	}

	lw.b.SetBlock(defaultBlock)
	if n.Default != nil {
		if err := lw.lowerStmts(n.Default); err != nil {
			return err
		}
	}
	if !lw.b.Current().Terminated() {
		if err := lw.b.EmitBr(doneLabel, nil, n.Loc()); err != nil {
			return err
		}
	}

	lw.b.SetBlock(doneBlock)
	return nil
}

// lowerTryStmt lowers try/except/finally (spec §4.8 "Exception
// handling"): eh.push the handler before the protected body, eh.pop on
// normal fallthrough, and a handler block whose first instruction is
// eh.entry. v0.1 treats only the first handler as live, a catch-all
// regardless of its declared exception type (documented open question:
// full type-dispatch cascades need a runtime type-test helper this ABI
// doesn't define yet). A try with a finally block but no handler still
// gets a handler block, which runs the finally block and then rethrows
// with resume.same.
func (lw *Lowerer) lowerTryStmt(n *ast.TryStmt) error {
	hasHandler := len(n.Handlers) > 0
	hasFinally := n.Finally != nil
	needsHandler := hasHandler || hasFinally

	bodyLabel := lw.newBlockLabel("try_body")
	doneLabel := lw.newBlockLabel("try_done")
	var handlerLabel string
	if needsHandler {
		handlerLabel = lw.newBlockLabel("try_handler")
		if err := lw.b.EmitEHPush(handlerLabel, n.Loc()); err != nil {
			return err
		}
	}
	if err := lw.b.EmitBr(bodyLabel, nil, n.Loc()); err != nil {
		return err
	}

	bodyBlock, err := lw.b.CreateBlock(bodyLabel)
	if err != nil {
		return err
	}
	var handlerBlock *il.Block
	if needsHandler {
		handlerBlock, err = lw.b.CreateBlock(handlerLabel)
		if err != nil {
			return err
		}
	}
	doneBlock, err := lw.b.CreateBlock(doneLabel)
	if err != nil {
		return err
	}

	lw.b.SetBlock(bodyBlock)
	if err := lw.lowerStmts(n.Body); err != nil {
		return err
	}
	if !lw.b.Current().Terminated() {
		if needsHandler {
			if err := lw.b.EmitEHPop(n.Loc()); err != nil {
				return err
			}
		}
		if hasFinally {
			if err := lw.lowerStmts(n.Finally); err != nil {
				return err
			}
		}
		if !lw.b.Current().Terminated() {
			if err := lw.b.EmitBr(doneLabel, nil, n.Loc()); err != nil {
				return err
			}
		}
	}

	if needsHandler {
		var h ast.ExceptHandler
		if hasHandler {
			h = n.Handlers[0]
		}
		lw.b.SetBlock(handlerBlock)
		errVal, tok, err := lw.b.EmitEHEntry(n.Loc())
		if err != nil {
			return err
		}
		if h.Name != "" {
			key := lowerKey(h.Name)
			slot, err := lw.b.EmitAlloca(il.Ptr, n.Loc())
			if err != nil {
				return err
			}
			if err := lw.b.EmitStore(slot, errVal, n.Loc()); err != nil {
				return err
			}
			lw.locals[key] = slot
			lw.localType[key] = types.NewClass(h.ExcType)
		}

		lw.handlerToks = append(lw.handlerToks, tok)
		err = lw.lowerStmts(h.Body)
		lw.handlerToks = lw.handlerToks[:len(lw.handlerToks)-1]
		if err != nil {
			return err
		}

		if !lw.b.Current().Terminated() {
			if hasFinally {
				if err := lw.lowerStmts(n.Finally); err != nil {
					return err
				}
			}
			if !lw.b.Current().Terminated() && !hasHandler {
				if err := lw.b.EmitResumeSame(tok, n.Loc()); err != nil {
					return err
				}
			}
			if !lw.b.Current().Terminated() {
				if err := lw.b.EmitResumeLabel(tok, doneLabel, n.Loc()); err != nil {
					return err
				}
			}
		}
	}

	lw.b.SetBlock(doneBlock)
	return nil
}

func (lw *Lowerer) lowerExitStmt(n *ast.ExitStmt) error {
	if n.Value != nil {
		val, err := lw.lowerExpr(n.Value)
		if err != nil {
			return err
		}
		if err := lw.b.EmitStore(lw.resultSlot, val, n.Loc()); err != nil {
			return err
		}
	}
	if lw.hasResultSlot {
		val, err := lw.b.EmitLoad(lw.resultSlot, lw.b.Function().Return, n.Loc())
		if err != nil {
			return err
		}
		return lw.b.EmitRet(val, n.Loc())
	}
	return lw.b.EmitRetVoid(n.Loc())
}

func (lw *Lowerer) lowerBreakStmt(n *ast.BreakStmt) error {
	if len(lw.loops) == 0 {
		return errors.Errorf("lower: break outside loop")
	}
	return lw.b.EmitBr(lw.loops[len(lw.loops)-1].breakLabel, nil, n.Loc())
}

func (lw *Lowerer) lowerContinueStmt(n *ast.ContinueStmt) error {
	if len(lw.loops) == 0 {
		return errors.Errorf("lower: continue outside loop")
	}
	return lw.b.EmitBr(lw.loops[len(lw.loops)-1].continueLabel, nil, n.Loc())
}

func (lw *Lowerer) lowerWithStmt(n *ast.WithStmt) error {
	rt := lw.analyzer.Types[n.Receiver]
	objPtr, err := lw.lowerExpr(n.Receiver)
	if err != nil {
		return err
	}
	className := ""
	if rt != nil && rt.Kind == types.KindClass {
		className = rt.Name
	}
	lw.withFrames = append(lw.withFrames, withFrame{objPtr: objPtr, className: className})
	err = lw.lowerStmts(n.Body)
	lw.withFrames = lw.withFrames[:len(lw.withFrames)-1]
	return err
}

func (lw *Lowerer) lowerRaiseStmt(n *ast.RaiseStmt) error {
	if n.Value == nil {
		if len(lw.handlerToks) == 0 {
			return errors.Errorf("lower: bare raise outside except handler")
		}
		tok := lw.handlerToks[len(lw.handlerToks)-1]
		return lw.b.EmitResumeSame(tok, n.Loc())
	}
	val, err := lw.lowerExpr(n.Value)
	if err != nil {
		return err
	}
	lw.useExtern(runtimeabi.Throw)
	_, err = lw.b.EmitCall(runtimeabi.Throw, []il.Value{val}, il.Void, n.Loc())
	return err
}
