package codec

import (
	"encoding/binary"
	"math"

	"github.com/oranpie/impcore/internal/ir"
	"github.com/oranpie/impcore/internal/value"
)

type reader struct {
	data []byte
	pos  int
}

func (r *reader) need(n int, context string) error {
	if r.pos+n > len(r.data) {
		return &UnexpectedEOFError{Context: context}
	}
	return nil
}

func (r *reader) u8(context string) (uint8, error) {
	if err := r.need(1, context); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *reader) u16(context string) (uint16, error) {
	if err := r.need(2, context); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32(context string) (uint32, error) {
	if err := r.need(4, context); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) f64(context string) (float64, error) {
	if err := r.need(8, context); err != nil {
		return 0, err
	}
	bits := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return math.Float64frombits(bits), nil
}

func (r *reader) str(context string) (string, error) {
	n, err := r.u32(context)
	if err != nil {
		return "", err
	}
	if err := r.need(int(n), context); err != nil {
		return "", err
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *reader) slot(context string) (ir.Slot, error) {
	sp, err := r.u8(context)
	if err != nil {
		return ir.Slot{}, err
	}
	idx, err := r.u32(context)
	if err != nil {
		return ir.Slot{}, err
	}
	return ir.Slot{Space: ir.Space(sp), Index: int(idx)}, nil
}

func (r *reader) slots(context string) ([]ir.Slot, error) {
	n, err := r.u16(context)
	if err != nil {
		return nil, err
	}
	out := make([]ir.Slot, n)
	for i := range out {
		out[i], err = r.slot(context)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *reader) value(context string) (value.Value, error) {
	tag, err := r.u8(context)
	if err != nil {
		return value.Value{}, err
	}
	switch tag {
	case tagNull:
		return value.Null, nil
	case tagBool:
		b, err := r.u8(context)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(b != 0), nil
	case tagNum:
		n, err := r.f64(context)
		if err != nil {
			return value.Value{}, err
		}
		return value.Num(n), nil
	case tagText:
		s, err := r.str(context)
		if err != nil {
			return value.Value{}, err
		}
		return value.Text(s), nil
	case tagObject:
		o, err := r.object(context)
		if err != nil {
			return value.Value{}, err
		}
		return value.Obj(o), nil
	case tagFnHandle:
		modID, err := r.u32(context)
		if err != nil {
			return value.Value{}, err
		}
		fnID, err := r.u32(context)
		if err != nil {
			return value.Value{}, err
		}
		return value.Fn(value.FnHandle{ModuleID: modID, FuncID: fnID}), nil
	default:
		return value.Value{}, &UnknownTagError{Context: "value variant", Tag: tag}
	}
}

func (r *reader) object(context string) (*value.Object, error) {
	foreign, err := r.u8(context)
	if err != nil {
		return nil, err
	}
	n, err := r.u32(context)
	if err != nil {
		return nil, err
	}
	o := value.NewObject()
	o.Foreign = foreign != 0
	for i := uint32(0); i < n; i++ {
		k, err := r.str(context)
		if err != nil {
			return nil, err
		}
		v, err := r.value(context)
		if err != nil {
			return nil, err
		}
		o.Set(k, v)
	}
	return o, nil
}

func (r *reader) instr(context string) (ir.Instr, error) {
	tag, err := r.u8(context)
	if err != nil {
		return ir.Instr{}, err
	}
	op, ok := wireToIR[tag]
	if !ok {
		return ir.Instr{}, &UnknownTagError{Context: "opcode", Tag: tag}
	}
	in := ir.Instr{Op: op}

	readSlot := func(dst *ir.Slot) {
		if err != nil {
			return
		}
		*dst, err = r.slot(context)
	}
	readU32 := func(dst *int) {
		if err != nil {
			return
		}
		var v uint32
		v, err = r.u32(context)
		*dst = int(v)
	}
	readStr := func(dst *string) {
		if err != nil {
			return
		}
		*dst, err = r.str(context)
	}

	switch op {
	case ir.OpConst:
		readSlot(&in.Out)
		if err == nil {
			in.Imm, err = r.value(context)
		}
	case ir.OpMove:
		readSlot(&in.Out)
		readSlot(&in.A)
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv,
		ir.OpEq, ir.OpNeq, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe,
		ir.OpStrConcat, ir.OpStrEq:
		readSlot(&in.A)
		readSlot(&in.B)
		readSlot(&in.Out)
	case ir.OpJump:
		readU32(&in.PC)
	case ir.OpBr:
		readSlot(&in.A)
		readU32(&in.PC)
		readU32(&in.PC2)
	case ir.OpExit, ir.OpTryPop:
		// no operands
	case ir.OpThrow:
		readSlot(&in.A)
		readSlot(&in.B)
	case ir.OpTryPush:
		readU32(&in.PC)
	case ir.OpInvoke:
		readSlot(&in.A)
		if err == nil {
			in.Args, err = r.slots(context)
		}
		readSlot(&in.Out)
	case ir.OpObjNew:
		readSlot(&in.Out)
	case ir.OpObjSet, ir.OpStrSlice:
		readSlot(&in.A)
		readSlot(&in.B)
		readSlot(&in.C)
		readSlot(&in.Out)
	case ir.OpObjGet, ir.OpObjHas, ir.OpObjDel:
		readSlot(&in.A)
		readSlot(&in.B)
		readSlot(&in.Out)
	case ir.OpObjKeys, ir.OpStrLen:
		readSlot(&in.A)
		readSlot(&in.Out)
	case ir.OpHostPrint:
		readSlot(&in.A)
		readSlot(&in.Out)
	case ir.OpImportModule:
		readStr(&in.Name)
		readStr(&in.Path)
	case ir.OpModExport:
		readStr(&in.Name)
		readSlot(&in.A)
	default:
		return ir.Instr{}, &UnknownTagError{Context: "opcode", Tag: tag}
	}
	if err != nil {
		return ir.Instr{}, err
	}
	return in, nil
}
