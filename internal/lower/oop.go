package lower

import (
	"github.com/pkg/errors"
	"github.com/splanck/viper-sub008/internal/ast"
	"github.com/splanck/viper-sub008/internal/diag"
	"github.com/splanck/viper-sub008/internal/il"
	"github.com/splanck/viper-sub008/internal/rtclass"
	"github.com/splanck/viper-sub008/internal/runtimeabi"
	"github.com/splanck/viper-sub008/internal/types"
)

// tryLowerSelfMember resolves a bare identifier inside a method body to
// a field read on the implicit self, walking the base-class chain the
// way the analyzer's own field lookup does (orig:Lowerer_OOP.cpp
// ClassLayout::findField).
func (lw *Lowerer) tryLowerSelfMember(name string, loc diag.SourceLoc) (il.Value, bool, error) {
	cls, ok := lw.analyzer.Classes[lowerKey(lw.currentClassName)]
	if !ok {
		return il.Value{}, false, nil
	}
	for c := cls; c != nil; {
		if _, ok := c.Fields[lowerKey(name)]; ok {
			selfPtr, err := lw.b.EmitLoad(lw.locals["self"], il.Ptr, loc)
			if err != nil {
				return il.Value{}, true, err
			}
			val, err := lw.lowerFieldOnObject(selfPtr, c.Name, name, loc)
			return val, true, err
		}
		c = lw.analyzer.Classes[lowerKey(c.BaseName)]
	}
	return il.Value{}, false, nil
}

// trySelfFieldAddr resolves a bare identifier inside a method body to
// the address of a field on the implicit self, for use as an
// assignment target (the store-address counterpart of
// tryLowerSelfMember, which loads the value instead).
func (lw *Lowerer) trySelfFieldAddr(name string, loc diag.SourceLoc) (il.Value, bool, error) {
	cls, ok := lw.analyzer.Classes[lowerKey(lw.currentClassName)]
	if !ok {
		return il.Value{}, false, nil
	}
	for c := cls; c != nil; {
		if _, ok := c.Fields[lowerKey(name)]; ok {
			selfPtr, err := lw.b.EmitLoad(lw.locals["self"], il.Ptr, loc)
			if err != nil {
				return il.Value{}, true, err
			}
			off, ok := lw.layout.FieldOffset(c.Name, name)
			if !ok {
				return il.Value{}, true, errors.Errorf("lower: unknown field %q on class %s", name, c.Name)
			}
			addr, err := lw.b.EmitGEP(selfPtr, int64(off), loc)
			return addr, true, err
		}
		c = lw.analyzer.Classes[lowerKey(c.BaseName)]
	}
	return il.Value{}, false, nil
}

// lowerFieldOnObject reads a known field off an already-lowered object
// pointer: GEP to its offset, then load its mapped type.
func (lw *Lowerer) lowerFieldOnObject(objPtr il.Value, className, fieldName string, loc diag.SourceLoc) (il.Value, error) {
	off, ok := lw.layout.FieldOffset(className, fieldName)
	if !ok {
		return il.Value{}, errors.Errorf("lower: unknown field %q on class %s", fieldName, className)
	}
	cls := lw.analyzer.Classes[lowerKey(className)]
	f := cls.Fields[lowerKey(fieldName)]
	fieldPtr, err := lw.b.EmitGEP(objPtr, int64(off), loc)
	if err != nil {
		return il.Value{}, err
	}
	return lw.b.EmitLoad(fieldPtr, lw.mapType(f.Type), loc)
}

// lowerFieldAccess lowers X.Name: a built-in string .Length, an object
// field read (walking to find which ancestor declares it), or a
// runtime-class property read (orig:Lowerer_Expr_Access.cpp
// lowerObjectFieldAccess).
func (lw *Lowerer) lowerFieldAccess(n *ast.FieldAccess) (il.Value, error) {
	xt := lw.analyzer.Types[n.X]
	if xt != nil && xt.Kind == types.KindString && lowerKey(n.Name) == "length" {
		s, err := lw.lowerExpr(n.X)
		if err != nil {
			return il.Value{}, err
		}
		lw.useExtern(runtimeabi.Len)
		return lw.b.EmitCall(runtimeabi.Len, []il.Value{s}, il.I64, n.Loc())
	}

	if xt != nil && xt.Kind == types.KindClass {
		objPtr, err := lw.lowerExpr(n.X)
		if err != nil {
			return il.Value{}, err
		}
		for className := xt.Name; className != ""; {
			cls, ok := lw.analyzer.Classes[lowerKey(className)]
			if !ok {
				break
			}
			if _, ok := cls.Fields[lowerKey(n.Name)]; ok {
				return lw.lowerFieldOnObject(objPtr, className, n.Name, n.Loc())
			}
			className = cls.BaseName
		}
		if rc, ok := rtclass.Lookup(xt.Name); ok {
			for _, p := range rc.Properties {
				if lowerKey(p.Name) == lowerKey(n.Name) {
					lw.useExtern(p.GetterSym)
					return lw.b.EmitCall(p.GetterSym, []il.Value{objPtr}, lw.mapRtTypeName(p.Type), n.Loc())
				}
			}
		}
	}

	return il.Value{}, errors.Errorf("lower: cannot lower field access %q", n.Name)
}

// lowerCall dispatches a CallExpr to free-function, constructor, or
// method-call lowering, mirroring the shape sem.Analyzer's call checker
// recognizes (orig:Lowerer_Expr_Call.cpp lowerCall).
func (lw *Lowerer) lowerCall(n *ast.CallExpr) (il.Value, error) {
	switch callee := n.Callee.(type) {
	case *ast.Ident:
		return lw.lowerFreeCall(callee, n)
	case *ast.FieldAccess:
		if baseIdent, ok := callee.X.(*ast.Ident); ok {
			if cls, ok := lw.analyzer.Classes[lowerKey(baseIdent.Name)]; ok {
				if _, isLocal := lw.locals[lowerKey(baseIdent.Name)]; !isLocal {
					return lw.lowerConstructorCall(cls, callee.Name, n.Args, n.Loc())
				}
			}
		}
		return lw.lowerMethodCall(callee, n)
	default:
		return il.Value{}, errors.Errorf("lower: callee is not callable: %T", n.Callee)
	}
}

func (lw *Lowerer) lowerArgs(args []ast.Expr) ([]il.Value, error) {
	out := make([]il.Value, len(args))
	for i, a := range args {
		v, err := lw.lowerExpr(a)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// lowerFreeCall lowers a bare Name(args) call: an implicit method call
// on self when inside a method whose class declares that method, else
// a direct free-function call.
func (lw *Lowerer) lowerFreeCall(callee *ast.Ident, n *ast.CallExpr) (il.Value, error) {
	if lw.currentClassName != "" {
		if cls, ok := lw.analyzer.Classes[lowerKey(lw.currentClassName)]; ok {
			if _, ok := cls.Methods[lowerKey(callee.Name)]; ok {
				args, err := lw.lowerArgs(n.Args)
				if err != nil {
					return il.Value{}, err
				}
				selfPtr, err := lw.b.EmitLoad(lw.locals["self"], il.Ptr, n.Loc())
				if err != nil {
					return il.Value{}, err
				}
				return lw.dispatchMethod(lw.currentClassName, callee.Name, append([]il.Value{selfPtr}, args...), n.Loc())
			}
		}
	}

	args, err := lw.lowerArgs(n.Args)
	if err != nil {
		return il.Value{}, err
	}
	ret := lw.analyzer.Types[n]
	return lw.b.EmitCall(callee.Name, args, lw.mapType(ret), n.Loc())
}

// lowerConstructorCall allocates the object, wires its vtable pointer,
// and calls the named constructor (orig:Lowerer_OOP.cpp
// lowerConstructorCall).
func (lw *Lowerer) lowerConstructorCall(cls *types.Class, ctorName string, argExprs []ast.Expr, loc diag.SourceLoc) (il.Value, error) {
	cl, ok := lw.layout.ClassLayoutOf(cls.Name)
	if !ok {
		return il.Value{}, errors.Errorf("lower: no layout computed for class %s", cls.Name)
	}

	lw.useExtern(runtimeabi.ObjNewI64)
	objPtr, err := lw.b.EmitCall(runtimeabi.ObjNewI64,
		[]il.Value{il.ConstInt(int64(cl.ClassID)), il.ConstInt(int64(cl.Size))}, il.Ptr, loc)
	if err != nil {
		return il.Value{}, err
	}

	lw.useExtern(runtimeabi.GetClassVtable)
	vtablePtr, err := lw.b.EmitCall(runtimeabi.GetClassVtable, []il.Value{il.ConstInt(int64(cl.ClassID))}, il.Ptr, loc)
	if err != nil {
		return il.Value{}, err
	}
	if err := lw.b.EmitStore(objPtr, vtablePtr, loc); err != nil {
		return il.Value{}, err
	}

	args, err := lw.lowerArgs(argExprs)
	if err != nil {
		return il.Value{}, err
	}
	ctorArgs := append([]il.Value{objPtr}, args...)
	if _, err := lw.b.EmitCall(mangleMethod(cls.Name, ctorName), ctorArgs, il.Void, loc); err != nil {
		return il.Value{}, err
	}
	return objPtr, nil
}

// lowerMethodCall lowers receiver.Method(args): a user class (direct or
// virtual dispatch), an interface value (itable dispatch), or a
// built-in runtime class (a plain extern call).
func (lw *Lowerer) lowerMethodCall(fa *ast.FieldAccess, call *ast.CallExpr) (il.Value, error) {
	receiverType := lw.analyzer.Types[fa.X]
	if receiverType == nil {
		return il.Value{}, errors.Errorf("lower: unknown receiver type for method call %q", fa.Name)
	}

	receiver, err := lw.lowerExpr(fa.X)
	if err != nil {
		return il.Value{}, err
	}
	args, err := lw.lowerArgs(call.Args)
	if err != nil {
		return il.Value{}, err
	}

	switch receiverType.Kind {
	case types.KindClass:
		if _, ok := lw.analyzer.Classes[lowerKey(receiverType.Name)]; ok {
			return lw.dispatchMethod(receiverType.Name, fa.Name, append([]il.Value{receiver}, args...), call.Loc())
		}
		if v, ok, err := lw.rtMethodCall(receiverType.Name, fa.Name, receiver, args, call.Loc()); ok || err != nil {
			return v, err
		}
	case types.KindInterface:
		return lw.dispatchInterfaceMethod(receiverType.Name, receiver, fa.Name, args, call.Loc())
	case types.KindString:
		if v, ok, err := lw.rtMethodCall(rtclass.ClassString, fa.Name, receiver, args, call.Loc()); ok || err != nil {
			return v, err
		}
	}
	return il.Value{}, errors.Errorf("lower: cannot lower method call %q", fa.Name)
}

// findMethod walks a class's base chain for an overload matching the
// given argument count, returning the first match (reimplements the
// analyzer's overload selection here since that helper is unexported).
func (lw *Lowerer) findMethod(className, methodName string, argCount int) *types.Procedure {
	for c := lw.analyzer.Classes[lowerKey(className)]; c != nil; {
		if overloads, ok := c.Methods[lowerKey(methodName)]; ok {
			for _, p := range overloads {
				if argCount >= p.RequiredArgs && argCount <= len(p.Params) {
					return p
				}
			}
		}
		c = lw.analyzer.Classes[lowerKey(c.BaseName)]
	}
	return nil
}

// dispatchMethod calls a user class method by name, either directly or
// through the vtable when the resolved overload is virtual/override
// (orig:Lowerer_OOP.cpp lowerMethodCall). args[0] is always the
// receiver object pointer.
func (lw *Lowerer) dispatchMethod(className, methodName string, args []il.Value, loc diag.SourceLoc) (il.Value, error) {
	proc := lw.findMethod(className, methodName, len(args)-1)
	if proc == nil {
		return il.Value{}, errors.Errorf("lower: unknown method %q on class %s", methodName, className)
	}
	retType := lw.mapType(proc.Return)

	if slot, ok := lw.layout.VirtualSlot(className, methodName); ok && (proc.IsVirtual || proc.IsOverride) {
		vtablePtr, err := lw.b.EmitLoad(args[0], il.Ptr, loc)
		if err != nil {
			return il.Value{}, err
		}
		slotPtr, err := lw.b.EmitGEP(vtablePtr, int64(slot*8), loc)
		if err != nil {
			return il.Value{}, err
		}
		funcPtr, err := lw.b.EmitLoad(slotPtr, il.Ptr, loc)
		if err != nil {
			return il.Value{}, err
		}
		return lw.b.EmitCallIndirect(funcPtr, args, retType, loc)
	}

	return lw.b.EmitCall(mangleMethod(className, methodName), args, retType, loc)
}

// buildInterfaceFatPointer materializes the 16-byte { objPtr, itablePtr }
// value spec §4.8 describes: a fresh two-word stack slot with the
// object pointer at offset 0 and the itable (from rt_get_interface_impl)
// at offset 8.
func (lw *Lowerer) buildInterfaceFatPointer(objPtr il.Value, classID, ifaceID int, loc diag.SourceLoc) (il.Value, error) {
	fatPtr, err := lw.b.EmitAlloca(il.Ptr, loc)
	if err != nil {
		return il.Value{}, err
	}
	if err := lw.b.EmitStore(fatPtr, objPtr, loc); err != nil {
		return il.Value{}, err
	}

	lw.useExtern(runtimeabi.GetInterfaceImpl)
	itablePtr, err := lw.b.EmitCall(runtimeabi.GetInterfaceImpl,
		[]il.Value{il.ConstInt(int64(classID)), il.ConstInt(int64(ifaceID))}, il.Ptr, loc)
	if err != nil {
		return il.Value{}, err
	}
	itableSlot, err := lw.b.EmitGEP(fatPtr, 8, loc)
	if err != nil {
		return il.Value{}, err
	}
	if err := lw.b.EmitStore(itableSlot, itablePtr, loc); err != nil {
		return il.Value{}, err
	}
	return fatPtr, nil
}

// dispatchInterfaceMethod calls through an interface-typed value's
// itable: load objPtr/itablePtr out of the fat pointer, index the
// method's stable slot, and call indirectly with objPtr as receiver.
func (lw *Lowerer) dispatchInterfaceMethod(ifaceName string, fatPtr il.Value, methodName string, args []il.Value, loc diag.SourceLoc) (il.Value, error) {
	iface := lw.analyzer.Interfaces[lowerKey(ifaceName)]
	if iface == nil {
		return il.Value{}, errors.Errorf("lower: unknown interface %s", ifaceName)
	}
	overloads := iface.Methods[lowerKey(methodName)]
	if len(overloads) == 0 {
		return il.Value{}, errors.Errorf("lower: unknown interface method %q", methodName)
	}
	retType := lw.mapType(overloads[0].Return)

	slot, ok := lw.layout.InterfaceMethodSlot(ifaceName, methodName)
	if !ok {
		return il.Value{}, errors.Errorf("lower: interface %s has no itable slot for %q", ifaceName, methodName)
	}

	objPtr, err := lw.b.EmitLoad(fatPtr, il.Ptr, loc)
	if err != nil {
		return il.Value{}, err
	}
	itableAddr, err := lw.b.EmitGEP(fatPtr, 8, loc)
	if err != nil {
		return il.Value{}, err
	}
	itable, err := lw.b.EmitLoad(itableAddr, il.Ptr, loc)
	if err != nil {
		return il.Value{}, err
	}
	slotPtr, err := lw.b.EmitGEP(itable, int64(slot*8), loc)
	if err != nil {
		return il.Value{}, err
	}
	funcPtr, err := lw.b.EmitLoad(slotPtr, il.Ptr, loc)
	if err != nil {
		return il.Value{}, err
	}
	return lw.b.EmitCallIndirect(funcPtr, append([]il.Value{objPtr}, args...), retType, loc)
}

// rtMethodCall dispatches a call to a built-in runtime class's method,
// found via the runtime class catalog (internal/rtclass), passing the
// receiver as the first argument (spec §4.2's enumerated runtime
// classes).
func (lw *Lowerer) rtMethodCall(qualifiedClassName, methodName string, self il.Value, args []il.Value, loc diag.SourceLoc) (il.Value, bool, error) {
	rc, ok := rtclass.Lookup(qualifiedClassName)
	if !ok {
		return il.Value{}, false, nil
	}
	for _, m := range rc.Methods {
		if lowerKey(m.Name) == lowerKey(methodName) {
			lw.useExtern(m.Symbol)
			callArgs := append([]il.Value{self}, args...)
			retType := lw.mapRtTypeName(m.ReturnType)
			val, err := lw.b.EmitCall(m.Symbol, callArgs, retType, loc)
			return val, true, err
		}
	}
	return il.Value{}, false, nil
}

// mapRtTypeName maps one of the runtime catalog's textual type tags
// (spec §4.2's descriptor table) to an IL type.
func (lw *Lowerer) mapRtTypeName(name string) il.Type {
	switch name {
	case "integer":
		return il.I64
	case "real":
		return il.F64
	case "boolean":
		return il.I1
	case "string":
		return il.Str
	case "void", "":
		return il.Void
	default:
		return il.Ptr
	}
}

// lowerInherited lowers `inherited [Method](Args)`: a direct (never
// virtual) call to the base class's implementation.
func (lw *Lowerer) lowerInherited(n *ast.InheritedExpr) (il.Value, error) {
	cls := lw.analyzer.Classes[lowerKey(lw.currentClassName)]
	if cls == nil || cls.BaseName == "" {
		return il.Value{}, errors.Errorf("lower: inherited used outside a derived class method")
	}
	methodName := n.MethodName
	if methodName == "" {
		methodName = lw.currentFuncName
	}
	selfPtr, err := lw.b.EmitLoad(lw.locals["self"], il.Ptr, n.Loc())
	if err != nil {
		return il.Value{}, err
	}
	args, err := lw.lowerArgs(n.Args)
	if err != nil {
		return il.Value{}, err
	}
	proc := lw.findMethod(cls.BaseName, methodName, len(args))
	retType := il.Void
	if proc != nil {
		retType = lw.mapType(proc.Return)
	}
	return lw.b.EmitCall(mangleMethod(cls.BaseName, methodName), append([]il.Value{selfPtr}, args...), retType, n.Loc())
}

// BuildModuleInit emits __pas_oop_init, which registers every class
// with the runtime in base-before-derived order
// (orig:Lowerer_OOP.cpp emitOopModuleInit/emitVtableRegistration).
func (lw *Lowerer) BuildModuleInit() error {
	order := lw.layout.RegistrationOrder()
	if len(order) == 0 {
		return nil
	}
	lw.log.Debugw("emitting module init", "classes", len(order))

	b := il.NewBuilder("__pas_oop_init", nil, il.Void)
	entry, err := b.CreateBlock("entry")
	if err != nil {
		return err
	}
	b.SetBlock(entry)

	savedBuilder := lw.b
	lw.b = b
	defer func() { lw.b = savedBuilder }()

	for _, className := range order {
		if err := lw.emitVtableRegistration(className); err != nil {
			return err
		}
	}
	if err := lw.b.EmitRetVoid(diag.SourceLoc{}); err != nil {
		return err
	}
	lw.mod.Functions = append(lw.mod.Functions, b.Function())
	return nil
}

func (lw *Lowerer) emitVtableRegistration(className string) error {
	cl, ok := lw.layout.ClassLayoutOf(className)
	if !ok {
		return nil
	}
	vt, hasVtable := lw.layout.VtableLayoutOf(className)
	slotCount := 0
	if hasVtable {
		slotCount = len(vt.Slots)
	}
	vtableBytes := int64(8)
	if slotCount > 0 {
		vtableBytes = int64(slotCount * 8)
	}

	loc := diag.SourceLoc{}

	lw.useExtern(runtimeabi.Alloc)
	vtablePtr, err := lw.b.EmitCall(runtimeabi.Alloc, []il.Value{il.ConstInt(vtableBytes)}, il.Ptr, loc)
	if err != nil {
		return err
	}

	for _, slot := range vt.Slots {
		slotPtr, err := lw.b.EmitGEP(vtablePtr, int64(slot.Slot*8), loc)
		if err != nil {
			return err
		}
		funcName := mangleMethod(slot.ImplClass, slot.MethodName)
		if err := lw.b.EmitStore(slotPtr, il.GlobalVal(funcName), loc); err != nil {
			return err
		}
	}

	baseClassID := lw.layout.BaseClassID(className)
	nameVal := lw.stringConst(className)

	lw.useExtern(runtimeabi.RegisterClassWithBase)
	_, err = lw.b.EmitCall(runtimeabi.RegisterClassWithBase,
		[]il.Value{il.ConstInt(int64(cl.ClassID)), vtablePtr, nameVal, il.ConstInt(int64(slotCount)), il.ConstInt(int64(baseClassID))},
		il.Void, loc)
	return err
}
