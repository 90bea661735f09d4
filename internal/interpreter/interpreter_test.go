package interpreter_test

import (
	"fmt"
	"testing"

	"github.com/oranpie/impcore/internal/compiler"
	"github.com/oranpie/impcore/internal/interpreter"
	"github.com/oranpie/impcore/internal/module"
	"github.com/oranpie/impcore/internal/value"
	"github.com/stretchr/testify/require"
)

type capturePrinter struct{ lines []string }

func (c *capturePrinter) Print(s string) { c.lines = append(c.lines, s) }

func newEngine() (*interpreter.Engine, *module.Loader, *capturePrinter) {
	loader := module.NewLoader(failReader, compiler.Compile)
	printer := &capturePrinter{}
	eng := interpreter.NewEngine(loader, printer)
	return eng, loader, printer
}

func failReader(path string) (string, error) {
	return "", fmt.Errorf("unexpected read of %s", path)
}

func memReader(files map[string]string) module.SourceReader {
	return func(canonical string) (string, error) {
		if src, ok := files[canonical]; ok {
			return src, nil
		}
		return "", fmt.Errorf("no such file: %s", canonical)
	}
}

func compileAndRun(t *testing.T, src string, printer *capturePrinter) *module.CompiledModule {
	t.Helper()
	loader := module.NewLoader(memReader(map[string]string{"/virt/main.imp": src}), compiler.Compile)
	eng := interpreter.NewEngine(loader, printer)
	cm, err := eng.Run("/virt/main.imp")
	require.NoError(t, err)
	return cm
}

func TestConstAddHostPrint(t *testing.T) {
	printer := &capturePrinter{}
	compileAndRun(t, `
#call core::const out=local::a value=2;
#call core::const out=local::b value=3;
#call core::add a=local::a b=local::b out=local::c;
#call core::host::print value=local::c;
`, printer)
	require.Equal(t, []string{"5"}, printer.lines)
}

func TestSafeDivByZeroYieldsNull(t *testing.T) {
	printer := &capturePrinter{}
	compileAndRun(t, `
#call @safe core::div a=10 b=0 out=local::q;
#call core::host::print value=local::q;
`, printer)
	require.Equal(t, []string{"null"}, printer.lines)
}

func TestUnhandledThrowBecomesVmError(t *testing.T) {
	loader := module.NewLoader(memReader(map[string]string{"/virt/main.imp": `
#call core::const out=local::code value="boom";
#call core::const out=local::msg value="kaboom";
#call core::throw code=local::code msg=local::msg;
`}), compiler.Compile)
	eng := interpreter.NewEngine(loader, &capturePrinter{})
	_, err := eng.Run("/virt/main.imp")
	require.Error(t, err)
	var vmErr *interpreter.VmError
	require.ErrorAs(t, err, &vmErr)
	require.Equal(t, "boom", mustText(t, vmErr.Value, "code"))
}

func TestFunctionCallAndTryCatch(t *testing.T) {
	printer := &capturePrinter{}
	compileAndRun(t, `
#call core::fn::begin name="boom" args="" retshape="any";
#call core::const out=local::c value="oops";
#call core::const out=local::m value="it broke";
#call core::throw code=local::c msg=local::m;
#call core::exit;
#call core::fn::end;

#call core::try::push handler="H";
#call main::boom args="" out=local::r;
#call core::try::pop;
#call core::jump label="E";
#call core::label name="H";
#call core::host::print value=err::e;
#call core::label name="E";
`, printer)
	require.Len(t, printer.lines, 1)
	require.Contains(t, printer.lines[0], "oops")
}

func TestObjectOps(t *testing.T) {
	printer := &capturePrinter{}
	compileAndRun(t, `
#call core::obj::new out=local::o;
#call core::const out=local::k value="name";
#call core::const out=local::v value="imp";
#call core::obj::set obj=local::o key=local::k value=local::v out=local::o2;
#call core::obj::get obj=local::o2 key=local::k out=local::got;
#call core::host::print value=local::got;
#call core::obj::has obj=local::o2 key=local::k out=local::has;
#call core::host::print value=local::has;
#call core::obj::del obj=local::o2 key=local::k out=local::deleted;
#call core::obj::has obj=local::o2 key=local::k out=local::has2;
#call core::host::print value=local::has2;
`, printer)
	require.Equal(t, []string{"imp", "true", "false"}, printer.lines)
}

// core::obj::get on a missing key yields null and never throws;
// core::obj::has is the presence check.
func TestObjGetMissingKeyYieldsNull(t *testing.T) {
	printer := &capturePrinter{}
	compileAndRun(t, `
#call core::obj::new out=local::o;
#call core::obj::get obj=local::o key="nope" out=local::v;
#call core::host::print value=local::v;
#call core::obj::has obj=local::o key="nope" out=local::h;
#call core::host::print value=local::h;
`, printer)
	require.Equal(t, []string{"null", "false"}, printer.lines)
}

func TestStringOps(t *testing.T) {
	printer := &capturePrinter{}
	compileAndRun(t, `
#call core::str::concat a="foo" b="bar" out=local::c;
#call core::host::print value=local::c;
#call core::str::len v=local::c out=local::n;
#call core::host::print value=local::n;
#call core::str::slice v=local::c start=1 end=4 out=local::s;
#call core::host::print value=local::s;
#call core::str::eq a="foo" b="foo" out=local::eq;
#call core::host::print value=local::eq;
`, printer)
	require.Equal(t, []string{"foobar", "6", "oob", "true"}, printer.lines)
}

func TestBadRetshapeObjectRejectsNull(t *testing.T) {
	printer := &capturePrinter{}
	compileAndRun(t, `
#call core::fn::begin name="f" args="" retshape="object";
#call core::exit;
#call core::fn::end;

#call core::try::push handler="H";
#call main::f args="" out=local::r;
#call core::try::pop;
#call core::jump label="E";
#call core::label name="H";
#call core::host::print value=err::e;
#call core::label name="E";
`, printer)
	require.Len(t, printer.lines, 1)
	require.Contains(t, printer.lines[0], "bad_retshape")
}

func TestInvokeNonFunctionThrows(t *testing.T) {
	printer := &capturePrinter{}
	compileAndRun(t, `
#call core::const out=local::notfn value=5;
#call core::try::push handler="H";
#call local::notfn args="" out=local::r;
#call core::try::pop;
#call core::jump label="E";
#call core::label name="H";
#call core::host::print value=err::e;
#call core::label name="E";
`, printer)
	require.Len(t, printer.lines, 1)
	require.Contains(t, printer.lines[0], "invoke_target_not_fn")
}

func TestSum2InvokedWithArgs(t *testing.T) {
	printer := &capturePrinter{}
	compileAndRun(t, `
#call core::fn::begin name="sum2" args="a,b" retshape="scalar";
#call core::add a=arg::a b=arg::b out=return::value;
#call core::exit;
#call core::fn::end;

#call core::const out=local::x value=4;
#call core::const out=local::y value=7;
#call main::sum2 args="local::x,local::y" out=local::r;
#call core::host::print value=local::r;
`, printer)
	require.Equal(t, []string{"11"}, printer.lines)
}

// A module's initializer runs once per canonical path per VM lifetime, no
// matter how many import sites (or repeated root loads) reach it.
func TestImportedInitRunsOncePerVM(t *testing.T) {
	files := map[string]string{
		"/virt/a.imp": `
#call core::import alias="b" path="b.imp";
#call core::import alias="again" path="b.imp";
`,
		"/virt/b.imp": `
#call core::host::print value="B-init";
`,
	}
	printer := &capturePrinter{}
	loader := module.NewLoader(memReader(files), compiler.Compile)
	eng := interpreter.NewEngine(loader, printer)
	_, err := eng.Run("/virt/a.imp")
	require.NoError(t, err)
	_, err = eng.Run("/virt/a.imp")
	require.NoError(t, err)
	require.Equal(t, []string{"B-init"}, printer.lines)
}

func TestImportExportAcrossModules(t *testing.T) {
	files := map[string]string{
		"/virt/main.imp": `
#call core::import alias="io" path="io.imp";
#call io::greet args="" out=local::g;
#call core::host::print value=local::g;
`,
		"/virt/io.imp": `
#call core::fn::begin name="greet" args="" retshape="scalar";
#call core::const out=return::value value="hi";
#call core::exit;
#call core::fn::end;
#call core::mod::export name="greet" value=main::greet;
`,
	}
	printer := &capturePrinter{}
	loader := module.NewLoader(memReader(files), compiler.Compile)
	eng := interpreter.NewEngine(loader, printer)
	_, err := eng.Run("/virt/main.imp")
	require.NoError(t, err)
	require.Equal(t, []string{"hi"}, printer.lines)
}

func mustText(t *testing.T, v value.Value, key string) string {
	t.Helper()
	require.Equal(t, value.KindObject, v.Kind())
	got, ok := v.AsObject().Get(key)
	require.True(t, ok)
	require.Equal(t, value.KindText, got.Kind())
	return got.AsText()
}
