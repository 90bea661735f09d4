// Package interpreter implements the VM frame machine and the reference
// (switch-dispatch) execution tier. Its exported helpers (Frame, the
// op-body functions in ops.go, Engine.Raise/HandleCalleeErr)
// are also the foundation internal/threaded builds its step-plan tier on,
// so every piece two tiers must share lives here and is exported.
package interpreter

import (
	"github.com/oranpie/impcore/internal/ir"
	"github.com/oranpie/impcore/internal/module"
	"github.com/oranpie/impcore/internal/value"
)

// Frame is one activation of a function.
type Frame struct {
	Fn  *module.CompiledFunction
	Mod *module.CompiledModule

	PC int

	Locals []value.Value
	Args   []value.Value
	Ret    []value.Value
	Err    []value.Value

	TryStack []int // handler PCs, per-frame only
}

// ErrSlot0 is the conventional err::e slot a thrown value is written into.
var ErrSlot0 = ir.Slot{Space: ir.SpErr, Index: 0}

// NewFrame allocates a fresh activation record for fn, copying args in.
func NewFrame(fn *module.CompiledFunction, mod *module.CompiledModule, args []value.Value) *Frame {
	f := &Frame{
		Fn:     fn,
		Mod:    mod,
		Locals: make([]value.Value, fn.LocalCount),
		Args:   make([]value.Value, fn.ArgCount),
		Ret:    make([]value.Value, fn.RetSlotCount),
		Err:    make([]value.Value, fn.ErrSlotCount),
	}
	copy(f.Args, args)
	return f
}

// Get reads a resolved Slot. Every Slot reaching here was resolved at
// compile time; an out-of-range index is a
// structural bug, not a user error, and panics as such.
func (f *Frame) Get(s ir.Slot) value.Value {
	switch s.Space {
	case ir.SpLocal:
		return f.Locals[s.Index]
	case ir.SpArg:
		return f.Args[s.Index]
	case ir.SpRet:
		return f.Ret[s.Index]
	case ir.SpErr:
		return f.Err[s.Index]
	case ir.SpGlobal:
		return f.Mod.GlobalValues[s.Index]
	case ir.SpNone:
		return value.Null
	default:
		panic(Bugf("invalid slot space %v", s.Space))
	}
}

// Set writes a resolved Slot. Writing to SpNone is a deliberate no-op (used
// for "out" operands the source chose not to bind).
func (f *Frame) Set(s ir.Slot, v value.Value) {
	switch s.Space {
	case ir.SpLocal:
		f.Locals[s.Index] = v
	case ir.SpArg:
		f.Args[s.Index] = v
	case ir.SpRet:
		f.Ret[s.Index] = v
	case ir.SpErr:
		f.Err[s.Index] = v
	case ir.SpGlobal:
		f.Mod.GlobalValues[s.Index] = v
	case ir.SpNone:
		// discard
	default:
		panic(Bugf("invalid slot space %v", s.Space))
	}
}

// PushTry records a handler PC on this frame's try stack (core::try::push).
func (f *Frame) PushTry(pc int) { f.TryStack = append(f.TryStack, pc) }

// PopTry discards the top handler PC (core::try::pop).
func (f *Frame) PopTry() {
	if len(f.TryStack) == 0 {
		return
	}
	f.TryStack = f.TryStack[:len(f.TryStack)-1]
}

// Catch pops a handler PC and writes errVal into err::e (slot 0), reporting
// whether a handler was available. Used identically for a local
// core::throw and for a callee's unhandled throw reaching this frame.
func (f *Frame) Catch(errVal value.Value) (handlerPC int, ok bool) {
	if len(f.TryStack) == 0 {
		return 0, false
	}
	n := len(f.TryStack) - 1
	pc := f.TryStack[n]
	f.TryStack = f.TryStack[:n]
	f.Set(ErrSlot0, errVal)
	return pc, true
}
