package lower

import (
	"testing"

	"github.com/splanck/viper-sub008/internal/ast"
	"github.com/splanck/viper-sub008/internal/types"
	"github.com/stretchr/testify/require"
)

func TestLowerIfStmtJoinsOpenArms(t *testing.T) {
	f := &ast.File{
		Decls: []ast.Decl{
			simpleProc("Main", []ast.Stmt{
				&ast.LocalVarStmt{Decl: ast.VarDecl{Name: "x", Type: namedType("integer"), Init: intLit(0)}},
				&ast.IfStmt{
					Cond: binary("<", ident("x"), intLit(10)),
					Then: []ast.Stmt{&ast.AssignStmt{Target: ident("x"), Value: intLit(1)}},
					Else: []ast.Stmt{&ast.AssignStmt{Target: ident("x"), Value: intLit(2)}},
				},
			}),
		},
	}
	out := lowerFile(t, f)
	require.Contains(t, out, "if_then")
	require.Contains(t, out, "if_else")
	require.Contains(t, out, "if_join")
}

func TestLowerIfStmtSkipsJoinWhenBothArmsReturn(t *testing.T) {
	f := &ast.File{
		Decls: []ast.Decl{
			&ast.ProcDecl{
				Name:   "Sign",
				Kind:   int(types.ProcFunction),
				Return: namedType("integer"),
				Params: []ast.ParamDecl{{Name: "x", Type: namedType("integer")}},
				Body: []ast.Stmt{
					&ast.IfStmt{
						Cond: binary("<", ident("x"), intLit(0)),
						Then: []ast.Stmt{&ast.ExitStmt{Value: intLit(-1)}},
						Else: []ast.Stmt{&ast.ExitStmt{Value: intLit(1)}},
					},
				},
			},
		},
	}
	out := lowerFile(t, f)
	require.NotContains(t, out, "if_join")
}

func TestLowerWhileLoop(t *testing.T) {
	f := &ast.File{
		Decls: []ast.Decl{
			simpleProc("Main", []ast.Stmt{
				&ast.LocalVarStmt{Decl: ast.VarDecl{Name: "i", Type: namedType("integer"), Init: intLit(0)}},
				&ast.WhileStmt{
					Cond: binary("<", ident("i"), intLit(10)),
					Body: []ast.Stmt{
						&ast.AssignStmt{Target: ident("i"), Value: binary("+", ident("i"), intLit(1))},
					},
				},
			}),
		},
	}
	out := lowerFile(t, f)
	require.Contains(t, out, "while_cond")
	require.Contains(t, out, "while_body")
	require.Contains(t, out, "while_done")
}

func TestLowerForLoopCountsUp(t *testing.T) {
	f := &ast.File{
		Decls: []ast.Decl{
			simpleProc("Main", []ast.Stmt{
				&ast.ForStmt{
					Var:  "i",
					Low:  intLit(1),
					High: intLit(10),
					Body: []ast.Stmt{&ast.ExprStmt{X: ident("i")}},
				},
			}),
		},
	}
	out := lowerFile(t, f)
	require.Contains(t, out, "for_cond")
	require.Contains(t, out, "for_step")
	require.Contains(t, out, "icmp.le")
	require.Contains(t, out, "iaddovf")
}

func TestLowerCaseStmtCascadesLabels(t *testing.T) {
	f := &ast.File{
		Decls: []ast.Decl{
			simpleProc("Main", []ast.Stmt{
				&ast.LocalVarStmt{Decl: ast.VarDecl{Name: "x", Type: namedType("integer"), Init: intLit(1)}},
				&ast.CaseStmt{
					Scrutinee: ident("x"),
					Arms: []ast.CaseArm{
						{Labels: []ast.Expr{intLit(1)}, Body: []ast.Stmt{&ast.ExprStmt{X: ident("x")}}},
						{Labels: []ast.Expr{intLit(2), intLit(3)}, Body: []ast.Stmt{&ast.ExprStmt{X: ident("x")}}},
					},
					Default: []ast.Stmt{&ast.ExprStmt{X: ident("x")}},
				},
			}),
		},
	}
	out := lowerFile(t, f)
	require.Contains(t, out, "case_test0")
	require.Contains(t, out, "case_arm0")
	require.Contains(t, out, "case_arm1")
	require.Contains(t, out, "case_default")
	require.Contains(t, out, "case_done")
}

func boolLit(v bool) ast.Expr { return &ast.BoolLit{Value: v} }

func myErrorClass() *ast.ClassDecl {
	return &ast.ClassDecl{
		Name: "MyError",
		Methods: []*ast.ProcDecl{
			{Name: "Create", ClassName: "MyError", Kind: int(types.ProcConstructor), Body: []ast.Stmt{}},
		},
	}
}

func TestLowerBreakAndContinue(t *testing.T) {
	f := &ast.File{
		Decls: []ast.Decl{
			simpleProc("Main", []ast.Stmt{
				&ast.WhileStmt{
					Cond: boolLit(true),
					Body: []ast.Stmt{
						&ast.IfStmt{
							Cond: boolLit(true),
							Then: []ast.Stmt{&ast.BreakStmt{}},
						},
						&ast.ContinueStmt{},
					},
				},
			}),
		},
	}
	out := lowerFile(t, f)
	require.Contains(t, out, "while_done")
}

func TestLowerTryExceptShape(t *testing.T) {
	f := &ast.File{
		Decls: []ast.Decl{
			myErrorClass(),
			simpleProc("Main", []ast.Stmt{
				&ast.LocalVarStmt{Decl: ast.VarDecl{
					Name: "ex",
					Init: call(fieldAccess(ident("MyError"), "Create")),
				}},
				&ast.TryStmt{
					Body: []ast.Stmt{
						&ast.RaiseStmt{Value: ident("ex")},
					},
					Handlers: []ast.ExceptHandler{
						{ExcType: "MyError", Name: "e", Body: []ast.Stmt{&ast.ExprStmt{X: ident("e")}}},
					},
				},
			}),
		},
	}
	out := lowerFile(t, f)
	require.Contains(t, out, "eh.push")
	require.Contains(t, out, "eh.pop")
	require.Contains(t, out, "eh.entry")
	require.Contains(t, out, "try_handler")
}

func TestLowerTryFinallyRunsOnBothPaths(t *testing.T) {
	f := &ast.File{
		Decls: []ast.Decl{
			simpleProc("Main", []ast.Stmt{
				&ast.TryStmt{
					Body:    []ast.Stmt{&ast.ExprStmt{X: boolLit(true)}},
					Finally: []ast.Stmt{&ast.ExprStmt{X: boolLit(false)}},
				},
			}),
		},
	}
	out := lowerFile(t, f)
	require.Contains(t, out, "try_body")
	require.Contains(t, out, "try_done")
	require.Contains(t, out, "eh.entry")
	require.Contains(t, out, "resume.same")
}

func TestLowerBareRaiseResumesSameHandler(t *testing.T) {
	f := &ast.File{
		Decls: []ast.Decl{
			simpleProc("Main", []ast.Stmt{
				&ast.TryStmt{
					Body: []ast.Stmt{&ast.ExprStmt{X: boolLit(true)}},
					Handlers: []ast.ExceptHandler{
						{ExcType: "Exception", Body: []ast.Stmt{&ast.RaiseStmt{}}},
					},
				},
			}),
		},
	}
	out := lowerFile(t, f)
	require.Contains(t, out, "resume.same")
}
