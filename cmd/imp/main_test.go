package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sumProgram = `
#call core::const out=local::a value=2;
#call core::const out=local::b value=3;
#call core::add a=local::a b=local::b out=local::c;
#call core::host::print value=local::c;
`

func runCLI(t *testing.T, args []string) (code int, stdOut, stdErr string) {
	t.Helper()
	var out, errBuf bytes.Buffer
	code = doMain(args, &out, &errBuf)
	return code, out.String(), errBuf.String()
}

func writeSource(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.imp")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestRunSourceFile(t *testing.T) {
	path := writeSource(t, sumProgram)
	code, stdOut, stdErr := runCLI(t, []string{"run", path})
	require.Equal(t, 0, code)
	require.Empty(t, stdErr)
	require.Equal(t, "5\n", stdOut)
}

func TestBuildThenRunBytecode(t *testing.T) {
	path := writeSource(t, sumProgram)
	outPath := filepath.Join(filepath.Dir(path), "prog.impc")

	code, _, stdErr := runCLI(t, []string{"build", path, "-o", outPath})
	require.Equal(t, 0, code, stdErr)
	require.FileExists(t, outPath)

	code, stdOut, stdErr := runCLI(t, []string{"run", outPath})
	require.Equal(t, 0, code, stdErr)
	require.Equal(t, "5\n", stdOut)
}

func TestDumpIRPrintsFunctions(t *testing.T) {
	path := writeSource(t, sumProgram)
	code, stdOut, stdErr := runCLI(t, []string{"dump-ir", path})
	require.Equal(t, 0, code, stdErr)
	require.Contains(t, stdOut, "fn <init>")
	require.Contains(t, stdOut, "add")
}

func TestRunUnhandledThrowExitsNonZero(t *testing.T) {
	path := writeSource(t, `#call core::throw code="oops" msg="bad";`)
	code, _, stdErr := runCLI(t, []string{"run", path})
	require.Equal(t, 1, code)
	require.Contains(t, stdErr, "oops")
}

func TestHelpWithNoArgs(t *testing.T) {
	code, _, stdErr := runCLI(t, nil)
	require.Equal(t, 1, code)
	require.Contains(t, stdErr, "usage:")
}

func TestUnknownSubcommand(t *testing.T) {
	code, _, stdErr := runCLI(t, []string{"frobnicate"})
	require.Equal(t, 1, code)
	require.Contains(t, stdErr, "unknown subcommand")
}
