package il

import (
	"testing"

	"github.com/splanck/viper-sub008/internal/diag"
	"github.com/stretchr/testify/require"
)

func noLoc() diag.SourceLoc { return diag.SourceLoc{} }

func TestBuilderSimpleAddFunction(t *testing.T) {
	b := NewBuilder("add", []Param{{Name: "a", Type: I64}, {Name: "b", Type: I64}}, I64)
	entry, err := b.CreateBlock("entry")
	require.NoError(t, err)
	b.SetBlock(entry)

	sum, err := b.EmitBinary(OpIAddOvf, TempVal(0), TempVal(1), I64, noLoc())
	require.NoError(t, err)
	require.NoError(t, b.EmitRet(sum, noLoc()))

	fn := b.Function()
	require.Len(t, fn.Blocks, 1)
	require.True(t, fn.Blocks[0].Terminated())
	require.True(t, IsTerminator(fn.Blocks[0].Instructions[len(fn.Blocks[0].Instructions)-1].Op))
}

func TestBuilderRejectsAppendAfterTerminator(t *testing.T) {
	b := NewBuilder("f", nil, Void)
	entry, _ := b.CreateBlock("entry")
	b.SetBlock(entry)
	require.NoError(t, b.EmitRetVoid(noLoc()))

	_, err := b.EmitAlloca(I64, noLoc())
	require.Error(t, err)
}

func TestBuilderRejectsDuplicateBlockLabel(t *testing.T) {
	b := NewBuilder("f", nil, Void)
	_, err := b.CreateBlock("entry")
	require.NoError(t, err)
	_, err = b.CreateBlock("entry")
	require.Error(t, err)
}

func TestBuilderRejectsEmitWithNoCurrentBlock(t *testing.T) {
	b := NewBuilder("f", nil, Void)
	_, err := b.CreateBlock("entry")
	require.NoError(t, err)
	err = b.EmitRetVoid(noLoc())
	require.Error(t, err)
}

func TestNextTempIsMonotonic(t *testing.T) {
	b := NewBuilder("f", nil, Void)
	ids := []int{b.NextTemp(), b.NextTemp(), b.NextTemp()}
	require.Equal(t, []int{0, 1, 2}, ids)
}

func TestCBrCarriesPerTargetBlockArgs(t *testing.T) {
	b := NewBuilder("f", []Param{{Name: "x", Type: I1}}, Void)
	entry, _ := b.CreateBlock("entry")
	thenBlk, _ := b.CreateBlock("then", Param{Name: "v", Type: I64})
	elseBlk, _ := b.CreateBlock("else", Param{Name: "v", Type: I64})
	b.SetBlock(entry)

	require.NoError(t, b.EmitCBr(TempVal(0), "then", []Value{ConstInt(1)}, "else", []Value{ConstInt(0)}, noLoc()))

	b.SetBlock(thenBlk)
	require.NoError(t, b.EmitRetVoid(noLoc()))
	b.SetBlock(elseBlk)
	require.NoError(t, b.EmitRetVoid(noLoc()))

	inst := entry.Instructions[0]
	require.Equal(t, OpCBr, inst.Op)
	require.Equal(t, []string{"then", "else"}, inst.Targets)
	require.Equal(t, int64(1), inst.TargetArgs[0][0].Int)
	require.Equal(t, int64(0), inst.TargetArgs[1][0].Int)
}

func TestEHPushPopResumeShape(t *testing.T) {
	b := NewBuilder("f", nil, Void)
	entry, _ := b.CreateBlock("entry")
	handler, _ := b.CreateBlock("handler")
	b.SetBlock(entry)
	require.NoError(t, b.EmitEHPush("handler", noLoc()))
	require.NoError(t, b.EmitEHPop(noLoc()))
	require.NoError(t, b.EmitRetVoid(noLoc()))

	b.SetBlock(handler)
	errVal, tok, err := b.EmitEHEntry(noLoc())
	require.NoError(t, err)
	require.NoError(t, b.EmitResumeLabel(tok, "entry", noLoc()))
	require.NotEqual(t, errVal.Temp, tok.Temp)
}

func TestRenderProducesTextForm(t *testing.T) {
	b := NewBuilder("add", []Param{{Name: "a", Type: I64}, {Name: "b", Type: I64}}, I64)
	entry, _ := b.CreateBlock("entry")
	b.SetBlock(entry)
	sum, err := b.EmitBinary(OpIAddOvf, TempVal(0), TempVal(1), I64, noLoc())
	require.NoError(t, err)
	require.NoError(t, b.EmitRet(sum, noLoc()))

	mod := &Module{Functions: []*Function{b.Function()}}
	out := Render(mod)
	require.Contains(t, out, "func add(a: i64, b: i64) i64 {")
	require.Contains(t, out, "entry():")
	require.Contains(t, out, "%2 = iaddovf i64, %0, %1")
	require.Contains(t, out, "ret %2")
}

func TestRenderExternAndGlobal(t *testing.T) {
	mod := &Module{
		Externs: []ExternDecl{{Symbol: "rt_print_str", Params: []Type{Str}, Return: Void}},
		Globals: []Global{{Name: "str.0", Value: "hello"}},
	}
	out := Render(mod)
	require.Contains(t, out, "extern rt_print_str(str) void")
	require.Contains(t, out, `global str.0 = "hello"`)
}
