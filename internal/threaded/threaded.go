// Package threaded implements the direct-threaded execution tier: a
// per-function plan of prebound closures executed by index instead of
// interpreter's switch-on-Op dispatch loop. No machine code is emitted,
// only Go closures captured over an instruction's already-resolved
// operands.
package threaded

import (
	"fmt"
	"os"

	"github.com/oranpie/impcore/internal/interpreter"
	"github.com/oranpie/impcore/internal/ir"
	"github.com/oranpie/impcore/internal/module"
	"github.com/oranpie/impcore/internal/value"
)

// step is one prebound instruction body. done reports whether the frame's
// function has returned (via Exit or an unhandled throw); a step that
// merely advances control flow (jump/br/try) has already written
// fr.PC itself, exactly as interpreter's dispatch loop does.
type step func(fr *interpreter.Frame, eng *interpreter.Engine) (done bool, ret value.Value, err error)

// Tier is the fast tier. IMP_NO_JIT=1 disables it entirely, forcing every
// function onto the reference interpreter.
type Tier struct {
	disabled bool
	plans    map[*module.CompiledFunction][]step
}

// NewTier builds a Tier, honoring IMP_NO_JIT from the environment.
func NewTier() *Tier {
	return &Tier{
		disabled: os.Getenv("IMP_NO_JIT") == "1",
		plans:    map[*module.CompiledFunction][]step{},
	}
}

// Supports reports whether fn can run on the fast tier. core::import and
// core::mod::export only ever appear in a module initializer, which runs
// exactly once per path — there is nothing to gain by
// threading it, so those two ops simply are not compiled into step plans
// and any function using them falls back to the interpreter transparently.
func (t *Tier) Supports(fn *module.CompiledFunction) bool {
	if t.disabled {
		return false
	}
	for _, instr := range fn.Code {
		switch instr.Op {
		case ir.OpImportModule, ir.OpModExport:
			return false
		}
	}
	return true
}

// Run executes fn's step plan, building and caching it on first entry.
func (t *Tier) Run(eng *interpreter.Engine, fn *module.CompiledFunction, mod *module.CompiledModule, args []value.Value) (ret value.Value, err error) {
	plan, ok := t.plans[fn]
	if !ok {
		plan = build(fn)
		t.plans[fn] = plan
	}

	frame := interpreter.NewFrame(fn, mod, args)
	defer func() {
		if r := recover(); r != nil {
			if b, ok := r.(interpreter.Bug); ok {
				err = fmt.Errorf("%w (in %s at pc %d, threaded tier)", b, interpreter.FrameLabel(fn), frame.PC)
				return
			}
			panic(r)
		}
	}()

	for {
		if frame.PC < 0 || frame.PC >= len(plan) {
			panic(interpreter.Bugf("pc %d out of range (plan length %d)", frame.PC, len(plan)))
		}
		s := plan[frame.PC]
		frame.PC++
		done, v, err := s(frame, eng)
		if err != nil {
			return value.Null, err
		}
		if done {
			return v, nil
		}
	}
}

// build compiles fn's instruction slice into a parallel slice of prebound
// step closures, one per instruction, indexed identically to fn.Code so
// jump/try targets (already resolved PCs from compilation) carry over
// unchanged. One extra trailing Exit step makes running past the last
// instruction an implicit Exit, as on the interpreter tier.
func build(fn *module.CompiledFunction) []step {
	plan := make([]step, len(fn.Code)+1)
	for i := range fn.Code {
		plan[i] = buildStep(fn.Code[i])
	}
	plan[len(fn.Code)] = buildStep(ir.Instr{Op: ir.OpExit})
	return plan
}

func buildStep(instr ir.Instr) step {
	switch instr.Op {
	case ir.OpConst:
		out, imm := instr.Out, instr.Imm
		return func(fr *interpreter.Frame, _ *interpreter.Engine) (bool, value.Value, error) {
			fr.Set(out, imm)
			return false, value.Value{}, nil
		}

	case ir.OpMove:
		out, a := instr.Out, instr.A
		return func(fr *interpreter.Frame, _ *interpreter.Engine) (bool, value.Value, error) {
			fr.Set(out, fr.Get(a))
			return false, value.Value{}, nil
		}

	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe:
		op, a, b, out := instr.Op, instr.A, instr.B, instr.Out
		return func(fr *interpreter.Frame, eng *interpreter.Engine) (bool, value.Value, error) {
			res, se := interpreter.BinNumOp(op, fr.Get(a), fr.Get(b))
			if se != nil {
				cont, err := eng.Deliver(fr, se)
				if err != nil {
					return true, value.Null, err
				}
				if cont {
					return false, value.Value{}, nil
				}
			}
			fr.Set(out, res)
			return false, value.Value{}, nil
		}

	case ir.OpEq, ir.OpNeq:
		op, a, b, out := instr.Op, instr.A, instr.B, instr.Out
		return func(fr *interpreter.Frame, _ *interpreter.Engine) (bool, value.Value, error) {
			fr.Set(out, interpreter.EqualOp(op, fr.Get(a), fr.Get(b)))
			return false, value.Value{}, nil
		}

	case ir.OpJump:
		target := instr.PC
		return func(fr *interpreter.Frame, _ *interpreter.Engine) (bool, value.Value, error) {
			fr.PC = target
			return false, value.Value{}, nil
		}

	case ir.OpBr:
		a, thenPC, elsePC := instr.A, instr.PC, instr.PC2
		return func(fr *interpreter.Frame, eng *interpreter.Engine) (bool, value.Value, error) {
			cond := fr.Get(a)
			if cond.Kind() != value.KindBool {
				cont, err := eng.Deliver(fr, interpreter.Sig("type_error", "core::br cond must be bool, got %s", cond.Kind()))
				if err != nil {
					return true, value.Null, err
				}
				if cont {
					return false, value.Value{}, nil
				}
			}
			if cond.AsBool() {
				fr.PC = thenPC
			} else {
				fr.PC = elsePC
			}
			return false, value.Value{}, nil
		}

	case ir.OpExit:
		return func(fr *interpreter.Frame, eng *interpreter.Engine) (bool, value.Value, error) {
			var retVal value.Value
			if len(fr.Ret) > 0 {
				retVal = fr.Ret[0]
			}
			if !interpreter.RetShapeOK(fr.Fn.RetShape, retVal) {
				se := interpreter.Sig("bad_retshape", "function %q declared retshape=%s but returned %s",
					interpreter.FrameLabel(fr.Fn), fr.Fn.RetShape, retVal.Kind())
				cont, err := eng.Deliver(fr, se)
				if err != nil {
					return true, value.Null, err
				}
				if cont {
					return false, value.Value{}, nil
				}
			}
			return true, retVal, nil
		}

	case ir.OpThrow:
		a, b := instr.A, instr.B
		return func(fr *interpreter.Frame, eng *interpreter.Engine) (bool, value.Value, error) {
			codeV, msgV := fr.Get(a), fr.Get(b)
			if codeV.Kind() != value.KindText || msgV.Kind() != value.KindText {
				_, err := eng.Deliver(fr, interpreter.Sig("type_error", "core::throw code/msg must be text"))
				if err != nil {
					return true, value.Null, err
				}
				return false, value.Value{}, nil
			}
			_, err := eng.Raise(fr, codeV.AsText(), msgV.AsText())
			if err != nil {
				return true, value.Null, err
			}
			return false, value.Value{}, nil
		}

	case ir.OpTryPush:
		target := instr.PC
		return func(fr *interpreter.Frame, _ *interpreter.Engine) (bool, value.Value, error) {
			fr.PushTry(target)
			return false, value.Value{}, nil
		}

	case ir.OpTryPop:
		return func(fr *interpreter.Frame, _ *interpreter.Engine) (bool, value.Value, error) {
			fr.PopTry()
			return false, value.Value{}, nil
		}

	case ir.OpInvoke:
		targetSlot, argSlots, out := instr.A, instr.Args, instr.Out
		return func(fr *interpreter.Frame, eng *interpreter.Engine) (bool, value.Value, error) {
			args := make([]value.Value, len(argSlots))
			for i, s := range argSlots {
				args[i] = fr.Get(s)
			}
			res, err := eng.Invoke(fr, fr.Get(targetSlot), args)
			if err != nil {
				cont, werr := eng.HandleCalleeErr(fr, err)
				if werr != nil {
					return true, value.Null, werr
				}
				if cont {
					return false, value.Value{}, nil
				}
			}
			fr.Set(out, res)
			return false, value.Value{}, nil
		}

	case ir.OpObjNew:
		out := instr.Out
		return func(fr *interpreter.Frame, _ *interpreter.Engine) (bool, value.Value, error) {
			fr.Set(out, value.Obj(value.NewObject()))
			return false, value.Value{}, nil
		}

	case ir.OpObjSet:
		a, b, c, out := instr.A, instr.B, instr.C, instr.Out
		return wrapObj3(a, b, c, out, interpreter.ExecObjSet)

	case ir.OpObjGet:
		a, b, out := instr.A, instr.B, instr.Out
		return wrapObj2(a, b, out, interpreter.ExecObjGet)

	case ir.OpObjHas:
		a, b, out := instr.A, instr.B, instr.Out
		return wrapObj2(a, b, out, interpreter.ExecObjHas)

	case ir.OpObjDel:
		a, b, out := instr.A, instr.B, instr.Out
		return wrapObj2(a, b, out, interpreter.ExecObjDel)

	case ir.OpObjKeys:
		a, out := instr.A, instr.Out
		return func(fr *interpreter.Frame, eng *interpreter.Engine) (bool, value.Value, error) {
			res, se := interpreter.ExecObjKeys(fr.Get(a))
			return deliverResult(fr, eng, se, out, res)
		}

	case ir.OpStrConcat:
		a, b, out := instr.A, instr.B, instr.Out
		return wrapObj2(a, b, out, interpreter.ExecStrConcat)

	case ir.OpStrEq:
		a, b, out := instr.A, instr.B, instr.Out
		return wrapObj2(a, b, out, interpreter.ExecStrEq)

	case ir.OpStrLen:
		a, out := instr.A, instr.Out
		return func(fr *interpreter.Frame, eng *interpreter.Engine) (bool, value.Value, error) {
			res, se := interpreter.ExecStrLen(fr.Get(a))
			return deliverResult(fr, eng, se, out, res)
		}

	case ir.OpStrSlice:
		a, b, c, out := instr.A, instr.B, instr.C, instr.Out
		return wrapObj3(a, b, c, out, interpreter.ExecStrSlice)

	case ir.OpHostPrint:
		a, out := instr.A, instr.Out
		return func(fr *interpreter.Frame, eng *interpreter.Engine) (bool, value.Value, error) {
			v := fr.Get(a)
			if eng.Host != nil {
				eng.Host.Print(interpreter.PrintString(v))
			}
			fr.Set(out, v)
			return false, value.Value{}, nil
		}

	case ir.OpImportModule, ir.OpModExport:
		// Never reached: Supports excludes any function containing these.
		return func(*interpreter.Frame, *interpreter.Engine) (bool, value.Value, error) {
			panic(interpreter.Bugf("threaded tier does not support op %v", instr.Op))
		}

	default:
		panic(interpreter.Bugf("threaded tier: unhandled op %v", instr.Op))
	}
}

// wrapObj2/wrapObj3 adapt a two/three-operand op body (shared with the
// interpreter tier) into a step closure.
func wrapObj2(a, b, out ir.Slot, fn func(value.Value, value.Value) (value.Value, *interpreter.ErrSignal)) step {
	return func(fr *interpreter.Frame, eng *interpreter.Engine) (bool, value.Value, error) {
		res, se := fn(fr.Get(a), fr.Get(b))
		return deliverResult(fr, eng, se, out, res)
	}
}

func wrapObj3(a, b, c, out ir.Slot, fn func(value.Value, value.Value, value.Value) (value.Value, *interpreter.ErrSignal)) step {
	return func(fr *interpreter.Frame, eng *interpreter.Engine) (bool, value.Value, error) {
		res, se := fn(fr.Get(a), fr.Get(b), fr.Get(c))
		return deliverResult(fr, eng, se, out, res)
	}
}

// deliverResult is the common tail of every op body: on success, write res
// to out; on an ErrSignal, raise it through the frame's try stack.
func deliverResult(fr *interpreter.Frame, eng *interpreter.Engine, se *interpreter.ErrSignal, out ir.Slot, res value.Value) (bool, value.Value, error) {
	if se != nil {
		cont, err := eng.Deliver(fr, se)
		if err != nil {
			return true, value.Null, err
		}
		if cont {
			return false, value.Value{}, nil
		}
	}
	fr.Set(out, res)
	return false, value.Value{}, nil
}
