// Package impcore is the Runtime facade over Imp-Core v2's execution core:
// load+compile a module graph, pick an execution tier, run it, and
// freeze/thaw the compiled graph through the AOT codec. Everything it wires
// together lives in internal/*; cmd/imp is the thin CLI built on top of it.
package impcore

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/oranpie/impcore/internal/codec"
	"github.com/oranpie/impcore/internal/compiler"
	"github.com/oranpie/impcore/internal/interpreter"
	"github.com/oranpie/impcore/internal/module"
	"github.com/oranpie/impcore/internal/threaded"
)

// Config controls how a Runtime executes a program. The surface here is
// deliberately a plain struct, not a functional-options builder: Imp-Core
// v2 has exactly one tiering knob and one host-output sink, nowhere near
// the configuration matrix a builder pattern earns its keep for.
type Config struct {
	// NoJIT forces every function onto the reference interpreter tier for
	// the lifetime of the Runtime, regardless of IMP_NO_JIT.
	NoJIT bool
	// Host receives host::print output. Defaults
	// to os.Stdout when nil.
	Host io.Writer
}

// Runtime is one VM lifetime: exactly one Loader, one Engine, and (unless
// disabled) one direct-threaded fast tier. A VM owns its loader cache
// exclusively and shares nothing with any other Runtime.
type Runtime struct {
	Loader *module.Loader
	Engine *interpreter.Engine
}

type writerPrinter struct{ w io.Writer }

func (p writerPrinter) Print(s string) { fmt.Fprintln(p.w, s) }

// New constructs a Runtime. read supplies source text for a canonical path
// (file I/O is the host's concern, never touched by the core directly);
// cmd/imp wires this to os.ReadFile.
func New(cfg Config, read module.SourceReader) *Runtime {
	host := cfg.Host
	if host == nil {
		host = os.Stdout
	}
	loader := module.NewLoader(read, compiler.Compile)
	eng := interpreter.NewEngine(loader, writerPrinter{w: host})

	noJIT := cfg.NoJIT || os.Getenv("IMP_NO_JIT") == "1"
	if !noJIT {
		eng.Fast = threaded.NewTier()
	}
	return &Runtime{Loader: loader, Engine: eng}
}

// Run loads and executes path as the root module, returning its
// CompiledModule once every transitively-imported initializer (and path's
// own) has run to completion.
func (rt *Runtime) Run(path string) (*module.CompiledModule, error) {
	return rt.Engine.Run(path)
}

// Freeze encodes every module this Runtime has loaded so far as .impc
// bytes, with the first module ever loaded (module id 0) as the entry
// module.
func (rt *Runtime) Freeze() []byte {
	return codec.Encode(rt.Loader.Modules())
}

// Thaw decodes previously-frozen .impc bytes into a module graph without
// executing anything. A caller that wants to run the result hands these
// modules to a Runtime's Loader.SeedPending and then Runs the entry
// module's path (cmd/imp's run does the same for every .impc input, calling
// codec.Decode directly).
func Thaw(data []byte) ([]*module.CompiledModule, error) {
	return codec.Decode(data)
}

// DumpIR renders a human-readable listing of every function in m, one
// instruction per line, prefixed with its PC.
func DumpIR(m *module.CompiledModule) string {
	var b strings.Builder
	for _, fn := range m.Functions {
		name := fn.Name
		if name == "" {
			name = "<init>"
		}
		fmt.Fprintf(&b, "fn %s(%s) retshape=%s\n", name, strings.Join(fn.ArgNames, ", "), fn.RetShape)
		for pc, instr := range fn.Code {
			fmt.Fprintf(&b, "  %4d  %s\n", pc, instr)
		}
	}
	return b.String()
}
