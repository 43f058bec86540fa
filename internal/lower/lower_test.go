package lower

import (
	"testing"

	"github.com/splanck/viper-sub008/internal/ast"
	"github.com/splanck/viper-sub008/internal/diag"
	"github.com/splanck/viper-sub008/internal/il"
	"github.com/splanck/viper-sub008/internal/layout"
	"github.com/splanck/viper-sub008/internal/sem"
	"github.com/splanck/viper-sub008/internal/types"
	"github.com/stretchr/testify/require"
)

// lowerFile runs the full analyze -> layout -> lower pipeline over f and
// returns the rendered IL text, failing the test if analysis reports
// any error diagnostic.
func lowerFile(t *testing.T, f *ast.File) string {
	t.Helper()
	var tally diag.Tally
	a := sem.NewAnalyzer(&tally)
	implicit := a.Analyze(f)
	require.False(t, tally.HasErrors(), "analysis errors: %+v", tally.Diagnostics)

	comp := layout.NewComputer(a.Classes)
	require.NoError(t, comp.ComputeAll())

	lw := New(a, implicit, comp)
	mod, err := lw.LowerFile(f)
	require.NoError(t, err)
	return il.Render(mod)
}

func namedType(name string) ast.TypeExpr { return &ast.NamedType{Name: name} }

func ident(name string) ast.Expr { return &ast.Ident{Name: name} }

func intLit(v int64) ast.Expr { return &ast.IntLit{Value: v} }

func binary(op string, x, y ast.Expr) ast.Expr { return &ast.BinaryExpr{Op: op, X: x, Y: y} }

func simpleProc(name string, body []ast.Stmt) *ast.ProcDecl {
	return &ast.ProcDecl{Name: name, Kind: int(types.ProcProcedure), Body: body}
}

func TestLowerIntegerFunctionReturnsConstant(t *testing.T) {
	f := &ast.File{
		Decls: []ast.Decl{
			&ast.ProcDecl{
				Name:   "Answer",
				Kind:   int(types.ProcFunction),
				Return: namedType("integer"),
				Body: []ast.Stmt{
					&ast.ExitStmt{Value: intLit(42)},
				},
			},
		},
	}
	out := lowerFile(t, f)
	require.Contains(t, out, "func Answer()")
	require.Contains(t, out, "42")
}

func TestLowerLocalVarAndAssign(t *testing.T) {
	f := &ast.File{
		Decls: []ast.Decl{
			simpleProc("Main", []ast.Stmt{
				&ast.LocalVarStmt{Decl: ast.VarDecl{Name: "x", Type: namedType("integer"), Init: intLit(1)}},
				&ast.AssignStmt{Target: ident("x"), Value: binary("+", ident("x"), intLit(1))},
			}),
		},
	}
	out := lowerFile(t, f)
	require.Contains(t, out, "func Main()")
	require.Contains(t, out, "alloca")
	require.Contains(t, out, "iaddovf")
}
