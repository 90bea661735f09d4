package interpreter

import (
	"errors"

	"github.com/oranpie/impcore/internal/module"
	"github.com/oranpie/impcore/internal/value"
)

// Printer is the host::print downcall target. Satisfied
// by the root package's writerPrinter (runtime.go).
type Printer interface {
	Print(s string)
}

// FastTier is the direct-threaded execution tier (internal/threaded),
// plugged into Engine by the root runtime. Kept as an interface here so
// interpreter never imports threaded: threaded imports interpreter instead,
// mirroring the module.Runner injection the loader already uses.
type FastTier interface {
	// Supports reports whether fn uses only ops the fast tier compiles a
	// step plan for; unsupported functions always run on the reference
	// interpreter.
	Supports(fn *module.CompiledFunction) bool
	Run(eng *Engine, fn *module.CompiledFunction, mod *module.CompiledModule, args []value.Value) (value.Value, error)
}

// Engine is the VM: a Loader for cross-module calls/imports, a Printer for
// host::print, and an optional fast tier. Engine implements module.Runner,
// so it is wired into its own Loader via SetRunner.
type Engine struct {
	Loader *module.Loader
	Host   Printer
	Fast   FastTier

	tierDecided map[uint64]bool
	tierFast    map[uint64]bool
}

// NewEngine constructs an Engine over loader, wiring itself in as the
// loader's Runner. host may be nil (host::print becomes a no-op) only in
// tests; production callers always supply one.
func NewEngine(loader *module.Loader, host Printer) *Engine {
	eng := &Engine{
		Loader:      loader,
		Host:        host,
		tierDecided: map[uint64]bool{},
		tierFast:    map[uint64]bool{},
	}
	loader.SetRunner(eng)
	return eng
}

func fnKey(modID, funcID uint32) uint64 { return uint64(modID)<<32 | uint64(funcID) }

func (eng *Engine) useFast(fn *module.CompiledFunction) bool {
	if eng.Fast == nil {
		return false
	}
	key := fnKey(fn.ModuleID, fn.FuncID)
	if decided, ok := eng.tierDecided[key]; ok {
		return decided && eng.tierFast[key]
	}
	use := eng.Fast.Supports(fn)
	eng.tierDecided[key] = true
	eng.tierFast[key] = use
	return use
}

// RunFunction implements module.Runner: run fn to completion (on whichever
// tier it was assigned at first entry) and return its value.
func (eng *Engine) RunFunction(cm *module.CompiledModule, funcID int, args []value.Value) (value.Value, error) {
	fn := cm.Functions[funcID]
	if eng.useFast(fn) {
		return eng.Fast.Run(eng, fn, cm, args)
	}
	return eng.runInterpreted(fn, cm, args)
}

// Run loads path as the root module. Loader.Load runs its initializer as
// part of loading (Engine is the Loader's Runner), so by the time Load
// returns the whole program has already executed; Run's only job is to
// fold an unhandled throw that unwound past that initializer into a
// VmError rather than a bare ThrownValue.
func (eng *Engine) Run(path string) (*module.CompiledModule, error) {
	cm, err := eng.Loader.Load(path)
	if err != nil {
		var tv *ThrownValue
		if errors.As(err, &tv) {
			return nil, &VmError{Value: tv.Value}
		}
		return nil, err
	}
	return cm, nil
}

// Raise constructs a {code,msg} error Object and either hands it to the
// current frame's innermost try handler (same as a user core::throw) or
// reports it as unhandled, to be caught further up the call stack or
// reported as a VmError at the root. Shared by both execution tiers.
func (eng *Engine) Raise(frame *Frame, code, msg string) (handled bool, propagate error) {
	errVal := NewErrorObject(code, msg)
	if pc, ok := frame.Catch(errVal); ok {
		frame.PC = pc
		return true, nil
	}
	return false, &ThrownValue{Value: errVal}
}

// Deliver raises se against frame's try stack. cont reports whether the
// dispatch loop should move on to its next instruction (handler found, PC
// already redirected); err is non-nil only when the throw must propagate
// out of this frame entirely.
func (eng *Engine) Deliver(frame *Frame, se *ErrSignal) (cont bool, err error) {
	handled, propagate := eng.Raise(frame, se.Code, se.Msg)
	if propagate != nil {
		return false, propagate
	}
	return handled, nil
}

// HandleCalleeErr folds a nested RunFunction's error into this frame's own
// try handling, exactly as if frame itself had just thrown: an unhandled
// ThrownValue from a callee is caught by the caller's try stack the same
// way a local core::throw would be. Any other
// error (import failure, internal bug) is never catchable and propagates
// immediately.
func (eng *Engine) HandleCalleeErr(frame *Frame, err error) (handled bool, propagate error) {
	var tv *ThrownValue
	if errors.As(err, &tv) {
		if pc, ok := frame.Catch(tv.Value); ok {
			frame.PC = pc
			return true, nil
		}
		return false, tv
	}
	return false, err
}

// Invoke checks that target is an FnHandle, looks up the function it names,
// and runs it with args via RunFunction. Shared by both execution tiers.
func (eng *Engine) Invoke(frame *Frame, target value.Value, args []value.Value) (value.Value, error) {
	if target.Kind() != value.KindFnHandle {
		return value.Null, &ThrownValue{Value: NewErrorObject("invoke_target_not_fn", "cannot invoke a "+target.Kind().String())}
	}
	handle := target.AsFnHandle()
	targetMod := eng.Loader.ModuleByID(handle.ModuleID)
	if targetMod == nil {
		panic(Bugf("invoke: unknown module id %d", handle.ModuleID))
	}
	if int(handle.FuncID) >= len(targetMod.Functions) {
		panic(Bugf("invoke: unknown function id %d in module %d", handle.FuncID, handle.ModuleID))
	}
	return eng.RunFunction(targetMod, int(handle.FuncID), args)
}
