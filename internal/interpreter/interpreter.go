package interpreter

import (
	"fmt"

	"github.com/oranpie/impcore/internal/ir"
	"github.com/oranpie/impcore/internal/module"
	"github.com/oranpie/impcore/internal/value"
)

// runInterpreted runs fn on the reference tier: a frame, a PC, and a switch
// over ir.Op bumping the PC until Exit (or an unhandled throw) returns.
// Running past the last instruction is an implicit Exit.
func (eng *Engine) runInterpreted(fn *module.CompiledFunction, mod *module.CompiledModule, args []value.Value) (ret value.Value, err error) {
	frame := NewFrame(fn, mod, args)
	defer func() {
		if r := recover(); r != nil {
			if b, ok := r.(Bug); ok {
				err = fmt.Errorf("%w (in %s at pc %d)", b, FrameLabel(fn), frame.PC)
				return
			}
			panic(r)
		}
	}()
	return eng.execFrame(frame)
}

// FrameLabel names fn for diagnostics: its declared name, or "<init>" for a
// module's synthetic initializer.
func FrameLabel(fn *module.CompiledFunction) string {
	if fn.Name == "" {
		return "<init>"
	}
	return fn.Name
}

func (eng *Engine) execFrame(frame *Frame) (value.Value, error) {
	for {
		if frame.PC < 0 || frame.PC > len(frame.Fn.Code) {
			panic(Bugf("pc %d out of range (code length %d)", frame.PC, len(frame.Fn.Code)))
		}
		instr := ir.Instr{Op: ir.OpExit}
		if frame.PC < len(frame.Fn.Code) {
			instr = frame.Fn.Code[frame.PC]
		}
		frame.PC++

		switch instr.Op {
		case ir.OpConst:
			frame.Set(instr.Out, instr.Imm)

		case ir.OpMove:
			frame.Set(instr.Out, frame.Get(instr.A))

		case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe:
			res, se := BinNumOp(instr.Op, frame.Get(instr.A), frame.Get(instr.B))
			if se != nil {
				if cont, err := eng.Deliver(frame, se); err != nil {
					return value.Null, err
				} else if cont {
					continue
				}
			}
			frame.Set(instr.Out, res)

		case ir.OpEq, ir.OpNeq:
			frame.Set(instr.Out, EqualOp(instr.Op, frame.Get(instr.A), frame.Get(instr.B)))

		case ir.OpJump:
			frame.PC = instr.PC

		case ir.OpBr:
			cond := frame.Get(instr.A)
			if cond.Kind() != value.KindBool {
				if cont, err := eng.Deliver(frame, Sig("type_error", "core::br cond must be bool, got %s", cond.Kind())); err != nil {
					return value.Null, err
				} else if cont {
					continue
				}
			}
			if cond.AsBool() {
				frame.PC = instr.PC
			} else {
				frame.PC = instr.PC2
			}

		case ir.OpExit:
			var retVal value.Value
			if len(frame.Ret) > 0 {
				retVal = frame.Ret[0]
			}
			if !RetShapeOK(frame.Fn.RetShape, retVal) {
				se := Sig("bad_retshape", "function %q declared retshape=%s but returned %s",
					FrameLabel(frame.Fn), frame.Fn.RetShape, retVal.Kind())
				if cont, err := eng.Deliver(frame, se); err != nil {
					return value.Null, err
				} else if cont {
					continue
				}
			}
			return retVal, nil

		case ir.OpThrow:
			codeV, msgV := frame.Get(instr.A), frame.Get(instr.B)
			if codeV.Kind() != value.KindText || msgV.Kind() != value.KindText {
				if cont, err := eng.Deliver(frame, Sig("type_error", "core::throw code/msg must be text")); err != nil {
					return value.Null, err
				} else if cont {
					continue
				}
			} else {
				handled, err := eng.Raise(frame, codeV.AsText(), msgV.AsText())
				if err != nil {
					return value.Null, err
				}
				if handled {
					continue
				}
			}

		case ir.OpTryPush:
			frame.PushTry(instr.PC)

		case ir.OpTryPop:
			frame.PopTry()

		case ir.OpInvoke:
			args := make([]value.Value, len(instr.Args))
			for i, s := range instr.Args {
				args[i] = frame.Get(s)
			}
			res, err := eng.Invoke(frame, frame.Get(instr.A), args)
			if err != nil {
				if cont, werr := eng.HandleCalleeErr(frame, err); werr != nil {
					return value.Null, werr
				} else if cont {
					continue
				}
			}
			frame.Set(instr.Out, res)

		case ir.OpObjNew:
			frame.Set(instr.Out, value.Obj(value.NewObject()))

		case ir.OpObjSet:
			res, se := ExecObjSet(frame.Get(instr.A), frame.Get(instr.B), frame.Get(instr.C))
			if se != nil {
				if cont, err := eng.Deliver(frame, se); err != nil {
					return value.Null, err
				} else if cont {
					continue
				}
			}
			frame.Set(instr.Out, res)

		case ir.OpObjGet:
			res, se := ExecObjGet(frame.Get(instr.A), frame.Get(instr.B))
			if se != nil {
				if cont, err := eng.Deliver(frame, se); err != nil {
					return value.Null, err
				} else if cont {
					continue
				}
			}
			frame.Set(instr.Out, res)

		case ir.OpObjHas:
			res, se := ExecObjHas(frame.Get(instr.A), frame.Get(instr.B))
			if se != nil {
				if cont, err := eng.Deliver(frame, se); err != nil {
					return value.Null, err
				} else if cont {
					continue
				}
			}
			frame.Set(instr.Out, res)

		case ir.OpObjDel:
			res, se := ExecObjDel(frame.Get(instr.A), frame.Get(instr.B))
			if se != nil {
				if cont, err := eng.Deliver(frame, se); err != nil {
					return value.Null, err
				} else if cont {
					continue
				}
			}
			frame.Set(instr.Out, res)

		case ir.OpObjKeys:
			res, se := ExecObjKeys(frame.Get(instr.A))
			if se != nil {
				if cont, err := eng.Deliver(frame, se); err != nil {
					return value.Null, err
				} else if cont {
					continue
				}
			}
			frame.Set(instr.Out, res)

		case ir.OpStrConcat:
			res, se := ExecStrConcat(frame.Get(instr.A), frame.Get(instr.B))
			if se != nil {
				if cont, err := eng.Deliver(frame, se); err != nil {
					return value.Null, err
				} else if cont {
					continue
				}
			}
			frame.Set(instr.Out, res)

		case ir.OpStrEq:
			res, se := ExecStrEq(frame.Get(instr.A), frame.Get(instr.B))
			if se != nil {
				if cont, err := eng.Deliver(frame, se); err != nil {
					return value.Null, err
				} else if cont {
					continue
				}
			}
			frame.Set(instr.Out, res)

		case ir.OpStrLen:
			res, se := ExecStrLen(frame.Get(instr.A))
			if se != nil {
				if cont, err := eng.Deliver(frame, se); err != nil {
					return value.Null, err
				} else if cont {
					continue
				}
			}
			frame.Set(instr.Out, res)

		case ir.OpStrSlice:
			res, se := ExecStrSlice(frame.Get(instr.A), frame.Get(instr.B), frame.Get(instr.C))
			if se != nil {
				if cont, err := eng.Deliver(frame, se); err != nil {
					return value.Null, err
				} else if cont {
					continue
				}
			}
			frame.Set(instr.Out, res)

		case ir.OpHostPrint:
			v := frame.Get(instr.A)
			if eng.Host != nil {
				eng.Host.Print(PrintString(v))
			}
			frame.Set(instr.Out, v)

		case ir.OpImportModule:
			if err := eng.Loader.Import(frame.Mod, instr.Name, instr.Path); err != nil {
				// Import failures are static-phase in character even when
				// triggered mid-execution: never catchable by try/throw.
				return value.Null, err
			}

		case ir.OpModExport:
			frame.Mod.Exports[instr.Name] = frame.Get(instr.A)

		default:
			panic(Bugf("unhandled op %v", instr.Op))
		}
	}
}
