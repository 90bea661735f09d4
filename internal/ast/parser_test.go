package ast_test

import (
	"testing"

	"github.com/oranpie/impcore/internal/ast"
	"github.com/stretchr/testify/require"
)

func TestParseSimpleProgram(t *testing.T) {
	src := `
#call core::const out=local::a value=2;
#call core::const out=local::b value=3;
#call core::add a=local::a b=local::b out=local::c;
#call core::host::print value=local::c;
`
	prog, err := ast.Parse(src)
	require.NoError(t, err)
	require.Len(t, prog.Stmts, 4)
	require.Equal(t, "core::const", prog.Stmts[0].Target)
	require.Equal(t, "core::host::print", prog.Stmts[3].Target)

	v, ok := prog.Stmts[2].Arg("a")
	require.True(t, ok)
	require.Equal(t, ast.AtomRef, v.Kind)
	require.Equal(t, "local", v.RefNS)
	require.Equal(t, "a", v.RefName)
}

func TestParseAnnotation(t *testing.T) {
	src := `#call @safe core::div a=10 b=0 out=local::q;`
	prog, err := ast.Parse(src)
	require.NoError(t, err)
	require.True(t, prog.Stmts[0].HasAnnotation("safe"))
	a, _ := prog.Stmts[0].Arg("a")
	require.Equal(t, ast.AtomNum, a.Kind)
	require.Equal(t, 10.0, a.Num)
}

func TestParseAtoms(t *testing.T) {
	src := `#call core::const out=local::v value=null;
#call core::const out=local::w value=true;
#call core::const out=local::s value="hi\nthere";
`
	prog, err := ast.Parse(src)
	require.NoError(t, err)
	v0, _ := prog.Stmts[0].Arg("value")
	require.Equal(t, ast.AtomNull, v0.Kind)
	v1, _ := prog.Stmts[1].Arg("value")
	require.Equal(t, ast.AtomBool, v1.Kind)
	require.True(t, v1.Bool)
	v2, _ := prog.Stmts[2].Arg("value")
	require.Equal(t, "hi\nthere", v2.Text)
}

func TestParseMissingEquals(t *testing.T) {
	_, err := ast.Parse(`#call core::const out local::a;`)
	require.Error(t, err)
}

func TestParseUnterminatedStatement(t *testing.T) {
	_, err := ast.Parse(`#call core::const out=local::a value=1`)
	require.Error(t, err)
}

func TestParseUnknownStatementKeyword(t *testing.T) {
	_, err := ast.Parse(`#bogus foo;`)
	require.Error(t, err)
}
