package codec

import (
	"github.com/oranpie/impcore/internal/ir"
	"github.com/oranpie/impcore/internal/module"
	"github.com/oranpie/impcore/internal/value"
)

// remapModuleIDs rewrites every FnHandle embedded in m (as a Const
// instruction immediate, a global value, or an export value) from the
// stream's own module ids to the ids this decode assigned, per
// oldToNew. Module ids may be freely re-assigned across an encode/decode
// round trip; only the identity of *which* module and
// function a handle names must survive.
func remapModuleIDs(m *module.CompiledModule, oldToNew map[uint32]uint32) {
	for _, fn := range m.Functions {
		for i, in := range fn.Code {
			if in.Op == ir.OpConst {
				fn.Code[i].Imm = remapValue(in.Imm, oldToNew)
			}
		}
	}
	for i, v := range m.GlobalValues {
		m.GlobalValues[i] = remapValue(v, oldToNew)
	}
	for name, v := range m.Exports {
		m.Exports[name] = remapValue(v, oldToNew)
	}
}

func remapValue(v value.Value, oldToNew map[uint32]uint32) value.Value {
	switch v.Kind() {
	case value.KindFnHandle:
		h := v.AsFnHandle()
		if newID, ok := oldToNew[h.ModuleID]; ok {
			h.ModuleID = newID
		}
		return value.Fn(h)
	case value.KindObject:
		o := v.AsObject()
		for _, k := range o.Keys() {
			ev, _ := o.Get(k)
			o.Set(k, remapValue(ev, oldToNew))
		}
		return v
	default:
		return v
	}
}

// validateModule re-derives the .impc integrity checks after parsing:
// every slot operand must fit within its function's declared frame sizes,
// every jump/branch/try target must land inside that function's own code
// or exactly at its end (the implicit Exit), and every FnHandle Const
// immediate must name a module that exists in the decoded graph. The
// function id of an FnHandle is not checked here.
func validateModule(m *module.CompiledModule, moduleCount uint32) error {
	for fi, fn := range m.Functions {
		if err := validateFunction(m.Path, fi, fn, len(m.GlobalValues), moduleCount); err != nil {
			return err
		}
	}
	if m.InitFuncID >= 0 && m.InitFuncID >= len(m.Functions) {
		return integrityf("module %q: init_fn_id %d out of range (%d functions)", m.Path, m.InitFuncID, len(m.Functions))
	}
	return nil
}

func validateFunction(modPath string, funcIdx int, fn *module.CompiledFunction, globalCount int, moduleCount uint32) error {
	checkSlot := func(s ir.Slot) error {
		var limit int
		switch s.Space {
		case ir.SpNone:
			return nil
		case ir.SpLocal:
			limit = fn.LocalCount
		case ir.SpArg:
			limit = fn.ArgCount
		case ir.SpRet:
			limit = fn.RetSlotCount
		case ir.SpErr:
			limit = fn.ErrSlotCount
		case ir.SpGlobal:
			limit = globalCount
		default:
			return integrityf("module %q function %d: invalid slot space %d", modPath, funcIdx, s.Space)
		}
		if s.Index < 0 || s.Index >= limit {
			return integrityf("module %q function %d: slot index %d out of range for space %s (declared size %d)",
				modPath, funcIdx, s.Index, s.Space, limit)
		}
		return nil
	}
	checkPC := func(pc int) error {
		if pc < 0 || pc > len(fn.Code) {
			return integrityf("module %q function %d: pc %d out of range (%d instructions)", modPath, funcIdx, pc, len(fn.Code))
		}
		return nil
	}
	checkFnHandle := func(v value.Value) error {
		if v.Kind() != value.KindFnHandle {
			return nil
		}
		h := v.AsFnHandle()
		if h.ModuleID >= moduleCount {
			return integrityf("module %q function %d: fn handle names out-of-range module %d", modPath, funcIdx, h.ModuleID)
		}
		return nil
	}

	for _, in := range fn.Code {
		for _, s := range []ir.Slot{in.Out, in.A, in.B, in.C} {
			if err := checkSlot(s); err != nil {
				return err
			}
		}
		for _, s := range in.Args {
			if err := checkSlot(s); err != nil {
				return err
			}
		}
		switch in.Op {
		case ir.OpJump:
			if err := checkPC(in.PC); err != nil {
				return err
			}
		case ir.OpBr:
			if err := checkPC(in.PC); err != nil {
				return err
			}
			if err := checkPC(in.PC2); err != nil {
				return err
			}
		case ir.OpTryPush:
			if err := checkPC(in.PC); err != nil {
				return err
			}
			// A caught throw is always written into err slot 0.
			if fn.ErrSlotCount < 1 {
				return integrityf("module %q function %d: try handler installed but no err slot declared", modPath, funcIdx)
			}
		case ir.OpConst:
			if err := checkFnHandle(in.Imm); err != nil {
				return err
			}
		}
	}
	return nil
}
