package codec

import (
	"github.com/oranpie/impcore/internal/module"
)

// Encode freezes a compiled-module graph into the .impc binary format.
// modules[0] must be the entry module; the rest may be in
// any order (their FnHandle constants carry their own module id, so cross-
// references survive regardless of position).
func Encode(modules []*module.CompiledModule) []byte {
	w := &writer{}
	w.buf.WriteString(Magic)
	w.u16(Version)
	w.u32(uint32(len(modules)))
	for _, m := range modules {
		w.encodeModule(m)
	}
	return w.bytesOut()
}

func (w *writer) encodeModule(m *module.CompiledModule) {
	w.u32(m.ModuleID)
	w.str(m.Path)

	w.u32(uint32(len(m.Functions)))
	for _, fn := range m.Functions {
		w.encodeFunction(fn)
	}

	// Globals: name table indexed by GlobalValues position, then the
	// values themselves in the same index order.
	names := make([]string, len(m.GlobalValues))
	for name, idx := range m.Globals {
		names[idx] = name
	}
	w.u32(uint32(len(names)))
	for i, name := range names {
		w.str(name)
		w.value(m.GlobalValues[i])
	}

	w.u32(uint32(len(m.Exports)))
	// Exports has no defined iteration order in Go; export order does not
	// need to be preserved, only that every exported name resolves to its
	// value after decode.
	for name, v := range m.Exports {
		w.str(name)
		w.value(v)
	}

	w.u32(uint32(len(m.Imports)))
	for _, imp := range m.Imports {
		w.str(imp.Alias)
		w.str(imp.Path)
	}

	w.u32(uint32(m.InitFuncID))
}

func (w *writer) encodeFunction(fn *module.CompiledFunction) {
	w.str(fn.Name)
	w.u32(uint32(len(fn.ArgNames)))
	for _, n := range fn.ArgNames {
		w.str(n)
	}
	w.u32(uint32(fn.LocalCount))
	w.u32(uint32(fn.ArgCount))
	w.u32(uint32(fn.RetSlotCount))
	w.u32(uint32(fn.ErrSlotCount))
	w.u8(uint8(fn.RetShape))

	w.u32(uint32(len(fn.Code)))
	for _, in := range fn.Code {
		w.instr(in)
	}
}
