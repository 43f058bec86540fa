package astjson

import (
	"testing"

	"github.com/splanck/viper-sub008/internal/ast"
	"github.com/splanck/viper-sub008/internal/diag"
	"github.com/splanck/viper-sub008/internal/il"
	"github.com/splanck/viper-sub008/internal/layout"
	"github.com/splanck/viper-sub008/internal/lower"
	"github.com/splanck/viper-sub008/internal/sem"
	"github.com/stretchr/testify/require"
)

const answerFile = `{
  "decls": [
    {
      "kind": "ProcDecl",
      "name": "Answer",
      "proc_kind": 0,
      "return": {"kind": "NamedType", "name": "integer"},
      "body": [
        {"kind": "ExitStmt", "value": {"kind": "IntLit", "value": 42}}
      ]
    }
  ]
}`

func TestDecodeProducesLowerableFile(t *testing.T) {
	f, err := Decode([]byte(answerFile))
	require.NoError(t, err)
	require.Len(t, f.Decls, 1)

	proc, ok := f.Decls[0].(*ast.ProcDecl)
	require.True(t, ok)
	require.Equal(t, "Answer", proc.Name)

	var tally diag.Tally
	a := sem.NewAnalyzer(&tally)
	implicit := a.Analyze(f)
	require.False(t, tally.HasErrors())

	comp := layout.NewComputer(a.Classes)
	require.NoError(t, comp.ComputeAll())

	lw := lower.New(a, implicit, comp)
	mod, err := lw.LowerFile(f)
	require.NoError(t, err)

	out := il.Render(mod)
	require.Contains(t, out, "func Answer()")
	require.Contains(t, out, "42")
}

func TestDecodeRejectsUnknownExprKind(t *testing.T) {
	_, err := Decode([]byte(`{"decls":[{"kind":"ProcDecl","name":"X","proc_kind":1,"body":[
		{"kind":"ExprStmt","x":{"kind":"Mystery"}}
	]}]}`))
	require.Error(t, err)
}

func TestDecodeVarAndAssign(t *testing.T) {
	src := `{
		"decls": [
			{
				"kind": "ProcDecl",
				"name": "Main",
				"proc_kind": 1,
				"body": [
					{"kind": "LocalVarStmt", "decl": {
						"name": "x",
						"type": {"kind": "NamedType", "name": "integer"},
						"init": {"kind": "IntLit", "value": 1}
					}},
					{"kind": "AssignStmt",
						"target": {"kind": "Ident", "name": "x"},
						"value": {"kind": "BinaryExpr", "op": "+", "x": {"kind": "Ident", "name": "x"}, "y": {"kind": "IntLit", "value": 1}}}
				]
			}
		]
	}`
	f, err := Decode([]byte(src))
	require.NoError(t, err)

	var tally diag.Tally
	a := sem.NewAnalyzer(&tally)
	implicit := a.Analyze(f)
	require.False(t, tally.HasErrors(), "%+v", tally.Diagnostics)

	comp := layout.NewComputer(a.Classes)
	require.NoError(t, comp.ComputeAll())

	lw := lower.New(a, implicit, comp)
	mod, err := lw.LowerFile(f)
	require.NoError(t, err)

	out := il.Render(mod)
	require.Contains(t, out, "alloca")
	require.Contains(t, out, "iaddovf")
}
