package lower

import (
	"testing"

	"github.com/splanck/viper-sub008/internal/ast"
	"github.com/splanck/viper-sub008/internal/types"
	"github.com/stretchr/testify/require"
)

func fieldAccess(x ast.Expr, name string) ast.Expr {
	return &ast.FieldAccess{X: x, Name: name}
}

func call(callee ast.Expr, args ...ast.Expr) ast.Expr {
	return &ast.CallExpr{Callee: callee, Args: args}
}

func pointClass() *ast.ClassDecl {
	return &ast.ClassDecl{
		Name: "Point",
		Fields: []ast.FieldDecl{
			{Name: "X", Type: namedType("integer")},
		},
		Methods: []*ast.ProcDecl{
			{
				Name:      "Create",
				ClassName: "Point",
				Kind:      int(types.ProcConstructor),
				Params:    []ast.ParamDecl{{Name: "x", Type: namedType("integer")}},
				Body: []ast.Stmt{
					&ast.AssignStmt{Target: fieldAccess(ident("self"), "X"), Value: ident("x")},
				},
			},
			{
				Name:      "GetX",
				ClassName: "Point",
				Kind:      int(types.ProcFunction),
				Return:    namedType("integer"),
				Body: []ast.Stmt{
					&ast.ExitStmt{Value: fieldAccess(ident("self"), "X")},
				},
			},
		},
	}
}

func TestLowerConstructorAndFieldStore(t *testing.T) {
	f := &ast.File{
		Decls: []ast.Decl{
			pointClass(),
			simpleProc("Main", []ast.Stmt{
				&ast.LocalVarStmt{Decl: ast.VarDecl{
					Name: "p",
					Init: call(fieldAccess(ident("Point"), "Create"), intLit(5)),
				}},
			}),
		},
	}
	out := lowerFile(t, f)
	require.Contains(t, out, "func Point.Create(")
	require.Contains(t, out, "rt_obj_new_i64")
	require.Contains(t, out, "rt_get_class_vtable")
	require.Contains(t, out, "func Point.GetX(")
}

func TestLowerVirtualMethodDispatchesThroughVtable(t *testing.T) {
	base := &ast.ClassDecl{
		Name: "Animal",
		Methods: []*ast.ProcDecl{
			{
				Name:      "Speak",
				ClassName: "Animal",
				Kind:      int(types.ProcProcedure),
				IsVirtual: true,
				Body:      []ast.Stmt{},
			},
		},
	}
	derived := &ast.ClassDecl{
		Name:     "Dog",
		BaseName: "Animal",
		Methods: []*ast.ProcDecl{
			{
				Name:      "Create",
				ClassName: "Dog",
				Kind:      int(types.ProcConstructor),
				Body:      []ast.Stmt{},
			},
			{
				Name:       "Speak",
				ClassName:  "Dog",
				Kind:       int(types.ProcProcedure),
				IsOverride: true,
				Body:       []ast.Stmt{},
			},
		},
	}
	f := &ast.File{
		Decls: []ast.Decl{
			base,
			derived,
			simpleProc("Main", []ast.Stmt{
				&ast.LocalVarStmt{Decl: ast.VarDecl{
					Name: "a",
					Type: namedType("Animal"),
					Init: call(fieldAccess(ident("Dog"), "Create")),
				}},
				&ast.ExprStmt{X: call(fieldAccess(ident("a"), "Speak"))},
			}),
		},
	}
	out := lowerFile(t, f)
	require.Contains(t, out, "func Dog.Speak(")
	require.Contains(t, out, "call_indirect")
}
