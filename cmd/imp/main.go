// Command imp is the Imp-Core v2 CLI front end: run, dump-ir, and build.
// It is a thin shell over the impcore package — file I/O,
// flag parsing, and exit-code mapping live here; everything else lives in
// internal/*.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	impcore "github.com/oranpie/impcore"
	"github.com/oranpie/impcore/internal/codec"
	"github.com/oranpie/impcore/internal/compiler"
	"github.com/oranpie/impcore/internal/interpreter"
	"github.com/oranpie/impcore/internal/module"
)

func main() {
	os.Exit(doMain(os.Args[1:], os.Stdout, os.Stderr))
}

// doMain is separated from main for the purpose of unit testing.
func doMain(args []string, stdOut, stdErr io.Writer) int {
	if len(args) == 0 {
		printUsage(stdErr)
		return 1
	}

	subCmd, rest := args[0], args[1:]
	switch subCmd {
	case "run":
		return doRun(rest, stdOut, stdErr)
	case "dump-ir":
		return doDumpIR(rest, stdOut, stdErr)
	case "build":
		return doBuild(rest, stdOut, stdErr)
	case "-h", "--help", "help":
		printUsage(stdOut)
		return 0
	default:
		fmt.Fprintf(stdErr, "unknown subcommand %q\n", subCmd)
		printUsage(stdErr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage:")
	fmt.Fprintln(w, "  imp run <file.imp|file.impc> [--strict-bytecode]")
	fmt.Fprintln(w, "  imp dump-ir <file.imp|file.impc>")
	fmt.Fprintln(w, "  imp build <file.imp> [-o out.impc]")
}

// splitArgs partitions args into flag tokens (leading "-") and positional
// tokens, so a trailing flag like "run prog.imp --strict-bytecode" parses
// the same as a leading one.
func splitArgs(args []string) (flags, positional []string) {
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			flags = append(flags, a)
		} else {
			positional = append(positional, a)
		}
	}
	return flags, positional
}

func readFile(canonicalPath string) (string, error) {
	b, err := os.ReadFile(canonicalPath)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func isBytecode(path string) bool { return filepath.Ext(path) == ".impc" }

func doRun(args []string, stdOut, stdErr io.Writer) int {
	flagArgs, positional := splitArgs(args)
	strict := false
	for _, f := range flagArgs {
		switch f {
		case "--strict-bytecode":
			strict = true
		default:
			fmt.Fprintf(stdErr, "run: unknown flag %q\n", f)
			return 1
		}
	}
	if len(positional) != 1 {
		fmt.Fprintln(stdErr, "run: expected exactly one file argument")
		return 1
	}
	path := positional[0]

	rt := impcore.New(impcore.Config{Host: stdOut}, readFile)

	if isBytecode(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintln(stdErr, err)
			return 1
		}
		modules, derr := codec.Decode(data)
		if derr != nil {
			if !strict {
				// Without --strict-bytecode, a corrupt or stale .impc falls
				// back to recompiling its same-named .imp source, if any.
				sibling := strings.TrimSuffix(path, filepath.Ext(path)) + ".imp"
				if _, statErr := os.Stat(sibling); statErr == nil {
					if _, err := rt.Run(sibling); err != nil {
						return reportRunErr(err, stdErr)
					}
					return 0
				}
			}
			fmt.Fprintln(stdErr, derr)
			return 1
		}
		rt.Loader.SeedPending(modules)
		abs, err := filepath.Abs(modules[0].Path)
		if err != nil {
			fmt.Fprintln(stdErr, err)
			return 1
		}
		if _, err := rt.Run(abs); err != nil {
			return reportRunErr(err, stdErr)
		}
		return 0
	}

	if _, err := rt.Run(path); err != nil {
		return reportRunErr(err, stdErr)
	}
	return 0
}

func reportRunErr(err error, stdErr io.Writer) int {
	var vmErr *interpreter.VmError
	if errors.As(err, &vmErr) {
		code, msg := interpreter.DescribeErrorObject(vmErr.Value)
		fmt.Fprintf(stdErr, "unhandled throw %s: %s\n", code, msg)
		return 1
	}
	fmt.Fprintln(stdErr, err)
	return 1
}

func doDumpIR(args []string, stdOut, stdErr io.Writer) int {
	_, positional := splitArgs(args)
	if len(positional) != 1 {
		fmt.Fprintln(stdErr, "dump-ir: expected exactly one file argument")
		return 1
	}
	path := positional[0]

	var cm *module.CompiledModule
	if isBytecode(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintln(stdErr, err)
			return 1
		}
		modules, err := codec.Decode(data)
		if err != nil {
			fmt.Fprintln(stdErr, err)
			return 1
		}
		cm = modules[0]
	} else {
		src, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintln(stdErr, err)
			return 1
		}
		compiled, err := compiler.Compile(string(src), path)
		if err != nil {
			fmt.Fprintln(stdErr, err)
			return 1
		}
		cm = compiled
	}

	fmt.Fprint(stdOut, impcore.DumpIR(cm))
	return 0
}

func doBuild(args []string, stdOut, stdErr io.Writer) int {
	var out string
	var positional []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-o":
			i++
			if i >= len(args) {
				fmt.Fprintln(stdErr, "build: -o requires a value")
				return 1
			}
			out = args[i]
		case strings.HasPrefix(args[i], "-o="):
			out = strings.TrimPrefix(args[i], "-o=")
		default:
			positional = append(positional, args[i])
		}
	}
	if len(positional) != 1 {
		fmt.Fprintln(stdErr, "build: expected exactly one source file argument")
		return 1
	}
	path := positional[0]
	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + ".impc"
	}

	var outBuf bytes.Buffer
	rt := impcore.New(impcore.Config{Host: &outBuf}, readFile)
	if _, err := rt.Run(path); err != nil {
		return reportRunErr(err, stdErr)
	}
	if outBuf.Len() > 0 {
		_, _ = io.Copy(stdOut, &outBuf)
	}

	data := rt.Freeze()
	if err := os.WriteFile(out, data, 0o644); err != nil {
		fmt.Fprintln(stdErr, err)
		return 1
	}
	fmt.Fprintf(stdOut, "wrote %s (%d bytes, %d modules)\n", out, len(data), len(rt.Loader.Modules()))
	return 0
}
