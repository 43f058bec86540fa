package lower

import (
	"github.com/pkg/errors"
	"github.com/splanck/viper-sub008/internal/ast"
	"github.com/splanck/viper-sub008/internal/il"
	"github.com/splanck/viper-sub008/internal/runtimeabi"
	"github.com/splanck/viper-sub008/internal/sem"
	"github.com/splanck/viper-sub008/internal/types"
)

// lowerExpr lowers e to an IL value, applying whatever implicit
// conversion the analyzer recorded for this node (spec §4.6 "Implicit
// conversion"): Integer->Real widening is a sitofp, T->T? is a no-op at
// the value level since both are represented the same way once a
// reference type, and Integer widening of an optional follows the same
// rule as its unwrapped form.
func (lw *Lowerer) lowerExpr(e ast.Expr) (il.Value, error) {
	val, err := lw.lowerExprRaw(e)
	if err != nil {
		return il.Value{}, err
	}
	if conv, ok := lw.implicit[e]; ok && conv.Target != nil && conv.Target.Kind == types.KindFloat64 {
		srcType := lw.analyzer.Types[e]
		if srcType != nil && srcType.Kind == types.KindInt64 {
			return lw.b.EmitUnary(il.OpSIToFP, val, il.F64, e.Loc())
		}
	}
	return val, nil
}

func (lw *Lowerer) lowerExprRaw(e ast.Expr) (il.Value, error) {
	switch n := e.(type) {
	case *ast.IntLit:
		return il.ConstInt(n.Value), nil
	case *ast.FloatLit:
		return il.ConstFloat(n.Value), nil
	case *ast.BoolLit:
		return il.ConstBool(n.Value), nil
	case *ast.StringLit:
		return lw.stringConst(n.Value), nil
	case *ast.NilLit:
		return il.NullVal(), nil

	case *ast.Ident:
		return lw.lowerIdent(n)

	case *ast.UnaryExpr:
		return lw.lowerUnary(n)

	case *ast.BinaryExpr:
		return lw.lowerBinary(n)

	case *ast.CoalesceExpr:
		return lw.lowerCoalesce(n)

	case *ast.FieldAccess:
		return lw.lowerFieldAccess(n)

	case *ast.IndexExpr:
		return lw.lowerIndex(n)

	case *ast.CastExpr:
		return lw.lowerCast(n)

	case *ast.CallExpr:
		return lw.lowerCall(n)

	case *ast.InheritedExpr:
		return lw.lowerInherited(n)

	default:
		return il.Value{}, errors.Errorf("lower: unhandled expression kind %T", e)
	}
}

func (lw *Lowerer) lowerIdent(n *ast.Ident) (il.Value, error) {
	key := lowerKey(n.Name)
	if key == "result" && lw.hasResultSlot {
		t := lw.analyzer.Types[n]
		return lw.b.EmitLoad(lw.resultSlot, lw.mapType(t), n.Loc())
	}
	if slot, ok := lw.locals[key]; ok {
		t := lw.localType[key]
		return lw.b.EmitLoad(slot, lw.mapType(t), n.Loc())
	}
	// Implicit Self-member reference inside a method (spec §4.6 lookup
	// order falls through to fields before it reaches constants).
	if lw.currentClassName != "" {
		if val, ok, err := lw.tryLowerSelfMember(n.Name, n.Loc()); ok || err != nil {
			return val, err
		}
	}
	if val, ok, err := lw.tryLowerWithMember(n.Name, n.Loc()); ok || err != nil {
		return val, err
	}
	if c, ok := lw.analyzer.Constants[key]; ok {
		return lw.constValueToIL(c), nil
	}
	return il.Value{}, errors.Errorf("lower: unresolved identifier %q", n.Name)
}

// constValueToIL renders a folded compile-time constant (spec §4.6
// "Constant folding") as an IL literal value.
func (lw *Lowerer) constValueToIL(c sem.ConstValue) il.Value {
	if c.Type == nil {
		return il.ConstInt(0)
	}
	switch c.Type.Kind {
	case types.KindFloat64:
		return il.ConstFloat(c.Real)
	case types.KindBool:
		return il.ConstBool(c.Bool)
	case types.KindString:
		return lw.stringConst(c.Str)
	case types.KindEnum:
		return il.ConstInt(c.Int)
	default:
		return il.ConstInt(c.Int)
	}
}

func (lw *Lowerer) lowerUnary(n *ast.UnaryExpr) (il.Value, error) {
	x, err := lw.lowerExpr(n.X)
	if err != nil {
		return il.Value{}, err
	}
	xt := lw.analyzer.Types[n.X]
	switch n.Op {
	case "-":
		if xt != nil && xt.Kind == types.KindFloat64 {
			return lw.b.EmitUnary(il.OpFNeg, x, il.F64, n.Loc())
		}
		zero := il.ConstInt(0)
		return lw.b.EmitBinary(il.OpISubOvf, zero, x, il.I64, n.Loc())
	case "not":
		return lw.b.EmitUnary(il.OpNot, x, il.I1, n.Loc())
	default:
		return il.Value{}, errors.Errorf("lower: unhandled unary operator %q", n.Op)
	}
}

func (lw *Lowerer) lowerBinary(n *ast.BinaryExpr) (il.Value, error) {
	switch n.Op {
	case "and":
		return lw.lowerShortCircuit(n, true)
	case "or":
		return lw.lowerShortCircuit(n, false)
	}

	x, err := lw.lowerExpr(n.X)
	if err != nil {
		return il.Value{}, err
	}
	y, err := lw.lowerExpr(n.Y)
	if err != nil {
		return il.Value{}, err
	}
	xt := lw.analyzer.Types[n.X]
	isFloat := xt != nil && xt.Kind == types.KindFloat64
	isString := xt != nil && xt.Kind == types.KindString

	switch n.Op {
	case "+":
		if isString {
			lw.useExtern(runtimeabi.StrConcat)
			return lw.b.EmitCall(runtimeabi.StrConcat, []il.Value{x, y}, il.Str, n.Loc())
		}
		if isFloat {
			return lw.b.EmitBinary(il.OpFAdd, x, y, il.F64, n.Loc())
		}
		return lw.b.EmitBinary(il.OpIAddOvf, x, y, il.I64, n.Loc())
	case "-":
		if isFloat {
			return lw.b.EmitBinary(il.OpFSub, x, y, il.F64, n.Loc())
		}
		return lw.b.EmitBinary(il.OpISubOvf, x, y, il.I64, n.Loc())
	case "*":
		if isFloat {
			return lw.b.EmitBinary(il.OpFMul, x, y, il.F64, n.Loc())
		}
		return lw.b.EmitBinary(il.OpIMulOvf, x, y, il.I64, n.Loc())
	case "/":
		return lw.b.EmitBinary(il.OpFDiv, x, y, il.F64, n.Loc())
	case "div":
		return lw.b.EmitBinary(il.OpSDivChk0, x, y, il.I64, n.Loc())
	case "mod":
		return lw.b.EmitBinary(il.OpSRemChk0, x, y, il.I64, n.Loc())
	case "=", "<>", "<", "<=", ">", ">=":
		if isString && (n.Op == "=" || n.Op == "<>") {
			lw.useExtern(runtimeabi.StrEq)
			eq, err := lw.b.EmitCall(runtimeabi.StrEq, []il.Value{x, y}, il.I1, n.Loc())
			if err != nil {
				return il.Value{}, err
			}
			if n.Op == "<>" {
				return lw.b.EmitUnary(il.OpNot, eq, il.I1, n.Loc())
			}
			return eq, nil
		}
		op := il.OpICmp
		if isFloat {
			op = il.OpFCmp
		}
		return lw.b.EmitCmp(op, cmpPredicate(n.Op), x, y, n.Loc())
	default:
		return il.Value{}, errors.Errorf("lower: unhandled binary operator %q", n.Op)
	}
}

func cmpPredicate(op string) il.CmpPredicate {
	switch op {
	case "=":
		return il.CmpEq
	case "<>":
		return il.CmpNe
	case "<":
		return il.CmpLt
	case "<=":
		return il.CmpLe
	case ">":
		return il.CmpGt
	case ">=":
		return il.CmpGe
	default:
		return il.CmpEq
	}
}

// lowerShortCircuit emits the diamond `and`/`or` shape (orig:
// Lowerer_Expr.cpp lowerLogicalAnd/lowerLogicalOr), adapted to this
// module's block-parameter-carried join value instead of the original's
// alloca-and-reload result slot.
func (lw *Lowerer) lowerShortCircuit(n *ast.BinaryExpr, isAnd bool) (il.Value, error) {
	rhsLabel := lw.newBlockLabel("and_rhs")
	shortLabel := lw.newBlockLabel("and_short")
	joinLabel := lw.newBlockLabel("and_join")
	if !isAnd {
		rhsLabel = lw.newBlockLabel("or_rhs")
		shortLabel = lw.newBlockLabel("or_short")
		joinLabel = lw.newBlockLabel("or_join")
	}

	left, err := lw.lowerExpr(n.X)
	if err != nil {
		return il.Value{}, err
	}

	rhsBlock, err := lw.b.CreateBlock(rhsLabel)
	if err != nil {
		return il.Value{}, err
	}
	shortBlock, err := lw.b.CreateBlock(shortLabel)
	if err != nil {
		return il.Value{}, err
	}
	joinBlock, err := lw.b.CreateBlock(joinLabel, il.Param{Name: "v", Type: il.I1})
	if err != nil {
		return il.Value{}, err
	}

	if isAnd {
		if err := lw.b.EmitCBr(left, rhsLabel, nil, shortLabel, nil, n.Loc()); err != nil {
			return il.Value{}, err
		}
	} else {
		if err := lw.b.EmitCBr(left, shortLabel, nil, rhsLabel, nil, n.Loc()); err != nil {
			return il.Value{}, err
		}
	}

	lw.b.SetBlock(shortBlock)
	shortVal := il.ConstBool(!isAnd)
	if err := lw.b.EmitBr(joinLabel, []il.Value{shortVal}, n.Loc()); err != nil {
		return il.Value{}, err
	}

	lw.b.SetBlock(rhsBlock)
	right, err := lw.lowerExpr(n.Y)
	if err != nil {
		return il.Value{}, err
	}
	if err := lw.b.EmitBr(joinLabel, []il.Value{right}, n.Loc()); err != nil {
		return il.Value{}, err
	}

	lw.b.SetBlock(joinBlock)
	return joinBlock.ParamValue(0), nil
}

func (lw *Lowerer) lowerCoalesce(n *ast.CoalesceExpr) (il.Value, error) {
	useLeftLabel := lw.newBlockLabel("coalesce_use_lhs")
	evalRhsLabel := lw.newBlockLabel("coalesce_rhs")
	joinLabel := lw.newBlockLabel("coalesce_join")

	left, err := lw.lowerExpr(n.X)
	if err != nil {
		return il.Value{}, err
	}
	rt := lw.analyzer.Types[n.X]
	resultType := il.Ptr
	if rt != nil {
		resultType = lw.mapType(rt.Unwrapped)
	}

	useLeftBlock, err := lw.b.CreateBlock(useLeftLabel)
	if err != nil {
		return il.Value{}, err
	}
	evalRhsBlock, err := lw.b.CreateBlock(evalRhsLabel)
	if err != nil {
		return il.Value{}, err
	}
	joinBlock, err := lw.b.CreateBlock(joinLabel, il.Param{Name: "v", Type: resultType})
	if err != nil {
		return il.Value{}, err
	}

	isNotNil, err := lw.b.EmitCmp(il.OpICmp, il.CmpNe, left, il.NullVal(), n.Loc())
	if err != nil {
		return il.Value{}, err
	}
	if err := lw.b.EmitCBr(isNotNil, useLeftLabel, nil, evalRhsLabel, nil, n.Loc()); err != nil {
		return il.Value{}, err
	}

	lw.b.SetBlock(useLeftBlock)
	if err := lw.b.EmitBr(joinLabel, []il.Value{left}, n.Loc()); err != nil {
		return il.Value{}, err
	}

	lw.b.SetBlock(evalRhsBlock)
	right, err := lw.lowerExpr(n.Y)
	if err != nil {
		return il.Value{}, err
	}
	if err := lw.b.EmitBr(joinLabel, []il.Value{right}, n.Loc()); err != nil {
		return il.Value{}, err
	}

	lw.b.SetBlock(joinBlock)
	return joinBlock.ParamValue(0), nil
}

func (lw *Lowerer) lowerIndex(n *ast.IndexExpr) (il.Value, error) {
	base, err := lw.lowerExpr(n.X)
	if err != nil {
		return il.Value{}, err
	}
	idx, err := lw.lowerExpr(n.Index)
	if err != nil {
		return il.Value{}, err
	}
	xt := lw.analyzer.Types[n.X]
	if xt != nil && xt.Kind == types.KindString {
		lw.useExtern(runtimeabi.Substr)
		return lw.b.EmitCall(runtimeabi.Substr, []il.Value{base, idx, il.ConstInt(1)}, il.Str, n.Loc())
	}
	lw.useExtern(runtimeabi.ArrI64Get)
	return lw.b.EmitCall(runtimeabi.ArrI64Get, []il.Value{base, idx}, il.I64, n.Loc())
}

func (lw *Lowerer) lowerCast(n *ast.CastExpr) (il.Value, error) {
	x, err := lw.lowerExpr(n.X)
	if err != nil {
		return il.Value{}, err
	}

	if iface, ok := lw.analyzer.Interfaces[lowerKey(n.TypeName)]; ok {
		srcType := lw.analyzer.Types[n.X]
		if srcType != nil && srcType.Kind == types.KindClass {
			cl, ok := lw.layout.ClassLayoutOf(srcType.Name)
			if !ok {
				return x, nil
			}
			ifaceID := 0
			if ifLayout, ok := lw.layout.InterfaceLayoutOf(iface.Name); ok {
				ifaceID = ifLayout.InterfaceID
			}
			return lw.buildInterfaceFatPointer(x, cl.ClassID, ifaceID, n.Loc())
		}
		lw.useExtern(runtimeabi.CastAsIface)
		ifaceID := 0
		if ifLayout, ok := lw.layout.InterfaceLayoutOf(iface.Name); ok {
			ifaceID = ifLayout.InterfaceID
		}
		return lw.b.EmitCall(runtimeabi.CastAsIface, []il.Value{x, il.ConstInt(int64(ifaceID))}, il.Ptr, n.Loc())
	}

	cls, ok := lw.analyzer.Classes[lowerKey(n.TypeName)]
	if !ok {
		return x, nil
	}
	layout, ok := lw.layout.ClassLayoutOf(cls.Name)
	if !ok {
		return x, nil
	}
	lw.useExtern(runtimeabi.CastAs)
	return lw.b.EmitCall(runtimeabi.CastAs, []il.Value{x, il.ConstInt(int64(layout.ClassID))}, il.Ptr, n.Loc())
}
