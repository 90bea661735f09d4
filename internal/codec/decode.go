package codec

import (
	"github.com/oranpie/impcore/internal/ir"
	"github.com/oranpie/impcore/internal/module"
	"github.com/oranpie/impcore/internal/value"
)

// Decode thaws a .impc stream into a compiled-module graph. The entry
// module is the returned slice's index 0. Internal module ids are
// re-assigned by position; FnHandle constants are rewritten to match.
func Decode(data []byte) ([]*module.CompiledModule, error) {
	r := &reader{data: data}

	if len(data) < 4 {
		var got [4]byte
		copy(got[:], data)
		return nil, &BadMagicError{Got: got}
	}
	var magic [4]byte
	copy(magic[:], data[:4])
	r.pos = 4
	if string(magic[:]) != Magic {
		return nil, &BadMagicError{Got: magic}
	}

	version, err := r.u16("format version")
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, &UnsupportedVersionError{Got: version}
	}

	count, err := r.u32("module count")
	if err != nil {
		return nil, err
	}

	// oldToNew maps each stream-declared module_id to its position in the
	// decoded slice, so FnHandle constants (and the loader's ModuleID
	// fields) can be remapped to the ids this decode assigns.
	modules := make([]*module.CompiledModule, count)
	oldToNew := make(map[uint32]uint32, count)
	for i := uint32(0); i < count; i++ {
		m, oldID, derr := r.decodeModule()
		if derr != nil {
			return nil, derr
		}
		oldToNew[oldID] = i
		m.ModuleID = i
		for _, fn := range m.Functions {
			fn.ModuleID = i
		}
		modules[i] = m
	}

	for _, m := range modules {
		remapModuleIDs(m, oldToNew)
		if err := validateModule(m, count); err != nil {
			return nil, err
		}
	}

	return modules, nil
}

func (r *reader) decodeModule() (*module.CompiledModule, uint32, error) {
	oldID, err := r.u32("module id")
	if err != nil {
		return nil, 0, err
	}
	path, err := r.str("module path")
	if err != nil {
		return nil, 0, err
	}
	m := module.NewCompiledModule(path)

	fnCount, err := r.u32("function count")
	if err != nil {
		return nil, 0, err
	}
	m.Functions = make([]*module.CompiledFunction, fnCount)
	for i := range m.Functions {
		fn, err := r.decodeFunction()
		if err != nil {
			return nil, 0, err
		}
		fn.FuncID = uint32(i)
		m.Functions[i] = fn
	}

	globalCount, err := r.u32("global count")
	if err != nil {
		return nil, 0, err
	}
	gvs, names, err := r.decodeGlobals(int(globalCount))
	if err != nil {
		return nil, 0, err
	}
	m.GlobalValues = gvs
	for i, name := range names {
		m.Globals[name] = i
	}

	exportCount, err := r.u32("export count")
	if err != nil {
		return nil, 0, err
	}
	for i := uint32(0); i < exportCount; i++ {
		name, err := r.str("export name")
		if err != nil {
			return nil, 0, err
		}
		v, err := r.value("export value")
		if err != nil {
			return nil, 0, err
		}
		m.Exports[name] = v
	}

	importCount, err := r.u32("import count")
	if err != nil {
		return nil, 0, err
	}
	m.Imports = make([]module.ImportEntry, importCount)
	for i := range m.Imports {
		alias, err := r.str("import alias")
		if err != nil {
			return nil, 0, err
		}
		path, err := r.str("import path")
		if err != nil {
			return nil, 0, err
		}
		m.Imports[i] = module.ImportEntry{Alias: alias, Path: path}
	}

	initID, err := r.u32("init func id")
	if err != nil {
		return nil, 0, err
	}
	m.InitFuncID = int(initID)
	if initID == ^uint32(0) {
		// The encoder writes InitFuncID -1 (no initializer) as 0xFFFFFFFF.
		m.InitFuncID = -1
	}

	return m, oldID, nil
}

func (r *reader) decodeGlobals(n int) ([]value.Value, []string, error) {
	names := make([]string, n)
	vals := make([]value.Value, n)
	for i := 0; i < n; i++ {
		name, err := r.str("global name")
		if err != nil {
			return nil, nil, err
		}
		v, err := r.value("global value")
		if err != nil {
			return nil, nil, err
		}
		names[i] = name
		vals[i] = v
	}
	return vals, names, nil
}

func (r *reader) decodeFunction() (*module.CompiledFunction, error) {
	name, err := r.str("function name")
	if err != nil {
		return nil, err
	}
	argNameCount, err := r.u32("arg name count")
	if err != nil {
		return nil, err
	}
	argNames := make([]string, argNameCount)
	for i := range argNames {
		argNames[i], err = r.str("arg name")
		if err != nil {
			return nil, err
		}
	}
	localCount, err := r.u32("local count")
	if err != nil {
		return nil, err
	}
	argCount, err := r.u32("arg count")
	if err != nil {
		return nil, err
	}
	retSlotCount, err := r.u32("ret slot count")
	if err != nil {
		return nil, err
	}
	errSlotCount, err := r.u32("err slot count")
	if err != nil {
		return nil, err
	}
	retShapeTag, err := r.u8("retshape tag")
	if err != nil {
		return nil, err
	}
	if retShapeTag > uint8(module.RetAny) {
		return nil, &UnknownTagError{Context: "retshape", Tag: retShapeTag}
	}

	instrCount, err := r.u32("instruction count")
	if err != nil {
		return nil, err
	}
	code := make([]ir.Instr, instrCount)
	for i := range code {
		code[i], err = r.instr("instruction")
		if err != nil {
			return nil, err
		}
	}

	return &module.CompiledFunction{
		Name:         name,
		ArgNames:     argNames,
		LocalCount:   int(localCount),
		ArgCount:     int(argCount),
		RetSlotCount: int(retSlotCount),
		ErrSlotCount: int(errSlotCount),
		RetShape:     module.RetShape(retShapeTag),
		Code:         code,
	}, nil
}
