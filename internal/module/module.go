// Package module holds the runtime form of a compiled Imp-Core source file
// and the loader that resolves imports across a module graph.
package module

import (
	"github.com/oranpie/impcore/internal/ir"
	"github.com/oranpie/impcore/internal/value"
)

// RetShape is the declared shape of a function's return value, validated
// at Exit.
type RetShape uint8

const (
	RetScalar RetShape = iota
	RetObject
	RetAny
)

// ParseRetShape maps a source retshape= string to a RetShape, or reports
// false if it names none of "scalar"/"object"/"any".
func ParseRetShape(s string) (RetShape, bool) {
	switch s {
	case "scalar":
		return RetScalar, true
	case "object":
		return RetObject, true
	case "any":
		return RetAny, true
	default:
		return 0, false
	}
}

func (r RetShape) String() string {
	switch r {
	case RetScalar:
		return "scalar"
	case RetObject:
		return "object"
	default:
		return "any"
	}
}

// CompiledFunction is one compiled function body, pre-sized for its frame.
type CompiledFunction struct {
	Code []ir.Instr

	ArgNames []string

	LocalCount   int
	ArgCount     int
	RetSlotCount int
	ErrSlotCount int

	RetShape RetShape

	ModuleID uint32
	FuncID   uint32

	// Name is the function's declared name (for dump-ir and error text);
	// empty for a module's synthetic initializer.
	Name string
}

// ImportEntry is one `core::import` recorded for execution by the owning
// module's initializer.
type ImportEntry struct {
	Alias string
	Path  string
}

// CompiledModule is the runtime form of one compiled Imp-Core source file.
type CompiledModule struct {
	ModuleID uint32
	Path     string // canonical source path

	Functions []*CompiledFunction

	// Globals maps a fully-qualified name (e.g. "main::sum2" or
	// "io::read") to an index into GlobalValues.
	Globals      map[string]int
	GlobalValues []value.Value

	Imports []ImportEntry

	// Exports maps an export name to the value captured at mod::export
	// time. mod::export fills it while the initializer runs; importers
	// only see it once the initializer has returned without throwing.
	Exports map[string]value.Value

	InitFuncID int
}

// NewCompiledModule returns an empty module ready for the compiler to
// populate. ModuleID is left at zero; the loader assigns the real id.
func NewCompiledModule(path string) *CompiledModule {
	return &CompiledModule{
		Path:       path,
		Globals:    map[string]int{},
		Exports:    map[string]value.Value{},
		InitFuncID: -1,
	}
}

// GlobalSlot interns name into the module's global table, returning its
// index. Repeated calls with the same name return the same index.
func (m *CompiledModule) GlobalSlot(name string) int {
	if idx, ok := m.Globals[name]; ok {
		return idx
	}
	idx := len(m.GlobalValues)
	m.Globals[name] = idx
	m.GlobalValues = append(m.GlobalValues, value.Null)
	return idx
}

// PatchModuleID rewrites every placeholder ModuleID (zero, assigned before
// the loader knew this module's real id) embedded in function metadata and
// FnHandle constants. Called once by the loader right after a module has
// been compiled.
func (m *CompiledModule) PatchModuleID(id uint32) {
	m.ModuleID = id
	for _, fn := range m.Functions {
		fn.ModuleID = id
		for i, instr := range fn.Code {
			if instr.Op == ir.OpConst && instr.Imm.Kind() == value.KindFnHandle {
				fn.Code[i].Imm = instr.Imm.WithFnModuleID(id)
			}
		}
	}
}
