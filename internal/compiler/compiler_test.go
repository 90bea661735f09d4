package compiler_test

import (
	"testing"

	"github.com/oranpie/impcore/internal/compiler"
	"github.com/oranpie/impcore/internal/ir"
	"github.com/oranpie/impcore/internal/module"
	"github.com/stretchr/testify/require"
)

func TestCompileConstAddHostPrint(t *testing.T) {
	src := `
#call core::const out=local::a value=2;
#call core::const out=local::b value=3;
#call core::add a=local::a b=local::b out=local::c;
#call core::host::print value=local::c;
`
	cm, err := compiler.Compile(src, "t.imp")
	require.NoError(t, err)
	init := cm.Functions[cm.InitFuncID]
	require.Equal(t, 3, init.LocalCount) // a, b, c

	var ops []ir.Op
	for _, instr := range init.Code {
		ops = append(ops, instr.Op)
	}
	require.Equal(t, []ir.Op{ir.OpConst, ir.OpConst, ir.OpAdd, ir.OpHostPrint}, ops)
}

func TestCompileFunctionDeclaration(t *testing.T) {
	src := `
#call core::fn::begin name="sum2" args="a,b" retshape="scalar";
#call core::add a=arg::a b=arg::b out=return::value;
#call core::exit;
#call core::fn::end;
`
	cm, err := compiler.Compile(src, "t.imp")
	require.NoError(t, err)
	require.Len(t, cm.Functions, 2) // init + sum2
	sum2 := cm.Functions[1]
	require.Equal(t, "sum2", sum2.Name)
	require.Equal(t, 2, sum2.ArgCount)
	require.Equal(t, module.RetScalar, sum2.RetShape)

	_, ok := cm.Globals["main::sum2"]
	require.True(t, ok)

	// init synthesizes Const(fn handle) + Move(global)
	init := cm.Functions[0]
	require.Len(t, init.Code, 2)
	require.Equal(t, ir.OpConst, init.Code[0].Op)
	require.Equal(t, ir.OpMove, init.Code[1].Op)
}

func TestCompileSafeDivExpansion(t *testing.T) {
	src := `#call @safe core::div a=10 b=0 out=local::q;`
	cm, err := compiler.Compile(src, "t.imp")
	require.NoError(t, err)
	init := cm.Functions[cm.InitFuncID]
	var ops []ir.Op
	for _, instr := range init.Code {
		ops = append(ops, instr.Op)
	}
	// Const(a) Const(b) TryPush Div TryPop Jump Const(null)
	require.Contains(t, ops, ir.OpTryPush)
	require.Contains(t, ops, ir.OpTryPop)
	require.Contains(t, ops, ir.OpDiv)
	require.Equal(t, ir.OpConst, ops[len(ops)-1])
}

func TestSafeOnUnsupportedOpIsError(t *testing.T) {
	_, err := compiler.Compile(`#call @safe core::add a=1 b=2 out=local::c;`, "t.imp")
	require.Error(t, err)
}

func TestUnknownCoreOp(t *testing.T) {
	_, err := compiler.Compile(`#call core::bogus x=1;`, "t.imp")
	require.Error(t, err)
}

func TestDuplicateLabelIsError(t *testing.T) {
	src := `
#call core::fn::begin name="f" args="" retshape="any";
#call core::label name="L";
#call core::label name="L";
#call core::exit;
#call core::fn::end;
`
	_, err := compiler.Compile(src, "t.imp")
	require.Error(t, err)
}

func TestUnresolvedLabelIsError(t *testing.T) {
	src := `
#call core::fn::begin name="f" args="" retshape="any";
#call core::jump label="Nowhere";
#call core::exit;
#call core::fn::end;
`
	_, err := compiler.Compile(src, "t.imp")
	require.Error(t, err)
}

func TestUnbalancedTryIsError(t *testing.T) {
	src := `
#call core::fn::begin name="f" args="" retshape="any";
#call core::try::push handler="H";
#call core::exit;
#call core::label name="H";
#call core::exit;
#call core::fn::end;
`
	_, err := compiler.Compile(src, "t.imp")
	require.Error(t, err)
}

func TestInvokeLowersArgsAndOut(t *testing.T) {
	src := `#call main::sum2 args="local::x,local::y" out=local::r;`
	cm, err := compiler.Compile(src, "t.imp")
	require.NoError(t, err)
	init := cm.Functions[cm.InitFuncID]
	require.Len(t, init.Code, 1)
	instr := init.Code[0]
	require.Equal(t, ir.OpInvoke, instr.Op)
	require.Len(t, instr.Args, 2)
	require.Equal(t, ir.SpGlobal, instr.A.Space)
}

func TestUnknownArgRefIsError(t *testing.T) {
	src := `
#call core::fn::begin name="f" args="a" retshape="any";
#call core::move dst=local::x src=arg::b;
#call core::exit;
#call core::fn::end;
`
	_, err := compiler.Compile(src, "t.imp")
	require.Error(t, err)
}
