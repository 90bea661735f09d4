package codec

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/oranpie/impcore/internal/ir"
	"github.com/oranpie/impcore/internal/value"
)

// writer accumulates a .impc stream. Integer fields are big-endian;
// float64 payloads inside value constants are little-endian IEEE-754.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) u8(v uint8)   { w.buf.WriteByte(v) }
func (w *writer) u16(v uint16) { var b [2]byte; binary.BigEndian.PutUint16(b[:], v); w.buf.Write(b[:]) }
func (w *writer) u32(v uint32) { var b [4]byte; binary.BigEndian.PutUint32(b[:], v); w.buf.Write(b[:]) }

func (w *writer) f64(v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	w.buf.Write(b[:])
}

func (w *writer) str(s string) {
	w.u32(uint32(len(s)))
	w.buf.WriteString(s)
}

func (w *writer) bytesOut() []byte { return w.buf.Bytes() }

func (w *writer) slot(s ir.Slot) {
	w.u8(uint8(s.Space))
	w.u32(uint32(s.Index))
}

func (w *writer) slots(ss []ir.Slot) {
	w.u16(uint16(len(ss)))
	for _, s := range ss {
		w.slot(s)
	}
}

// value variant tags. Fixed, independent of the iota order in package
// value, so the wire format never shifts if that package's Kind constants
// are reordered.
const (
	tagNull uint8 = iota
	tagBool
	tagNum
	tagText
	tagObject
	tagFnHandle
)

func (w *writer) value(v value.Value) {
	switch v.Kind() {
	case value.KindNull:
		w.u8(tagNull)
	case value.KindBool:
		w.u8(tagBool)
		if v.AsBool() {
			w.u8(1)
		} else {
			w.u8(0)
		}
	case value.KindNum:
		w.u8(tagNum)
		w.f64(v.AsNum())
	case value.KindText:
		w.u8(tagText)
		w.str(v.AsText())
	case value.KindObject:
		w.u8(tagObject)
		w.object(v.AsObject())
	case value.KindFnHandle:
		w.u8(tagFnHandle)
		h := v.AsFnHandle()
		w.u32(h.ModuleID)
		w.u32(h.FuncID)
	default:
		panic("codec: unknown value kind")
	}
}

func (w *writer) object(o *value.Object) {
	if o.Foreign {
		w.u8(1)
	} else {
		w.u8(0)
	}
	keys := o.Keys()
	w.u32(uint32(len(keys)))
	for _, k := range keys {
		w.str(k)
		ev, _ := o.Get(k)
		w.value(ev)
	}
}

// opcode tags on the wire. Fixed independent of ir.Op's iota order for the
// same reason as value tags above.
const (
	opConst uint8 = iota
	opMove
	opAdd
	opSub
	opMul
	opDiv
	opEq
	opNeq
	opLt
	opLe
	opGt
	opGe
	opJump
	opBr
	opExit
	opThrow
	opTryPush
	opTryPop
	opInvoke
	opObjNew
	opObjSet
	opObjGet
	opObjHas
	opObjKeys
	opObjDel
	opStrConcat
	opStrLen
	opStrSlice
	opStrEq
	opHostPrint
	opImportModule
	opModExport
)

var irToWire = map[ir.Op]uint8{
	ir.OpConst: opConst, ir.OpMove: opMove,
	ir.OpAdd: opAdd, ir.OpSub: opSub, ir.OpMul: opMul, ir.OpDiv: opDiv,
	ir.OpEq: opEq, ir.OpNeq: opNeq, ir.OpLt: opLt, ir.OpLe: opLe, ir.OpGt: opGt, ir.OpGe: opGe,
	ir.OpJump: opJump, ir.OpBr: opBr, ir.OpExit: opExit, ir.OpThrow: opThrow,
	ir.OpTryPush: opTryPush, ir.OpTryPop: opTryPop, ir.OpInvoke: opInvoke,
	ir.OpObjNew: opObjNew, ir.OpObjSet: opObjSet, ir.OpObjGet: opObjGet, ir.OpObjHas: opObjHas,
	ir.OpObjKeys: opObjKeys, ir.OpObjDel: opObjDel,
	ir.OpStrConcat: opStrConcat, ir.OpStrLen: opStrLen, ir.OpStrSlice: opStrSlice, ir.OpStrEq: opStrEq,
	ir.OpHostPrint: opHostPrint, ir.OpImportModule: opImportModule, ir.OpModExport: opModExport,
}

var wireToIR = func() map[uint8]ir.Op {
	m := make(map[uint8]ir.Op, len(irToWire))
	for k, v := range irToWire {
		m[v] = k
	}
	return m
}()

// instr writes one instruction's tag followed by only the operand fields
// that opcode actually uses, so every tag has a fixed operand shape.
func (w *writer) instr(in ir.Instr) {
	tag, ok := irToWire[in.Op]
	if !ok {
		panic("codec: unknown ir.Op")
	}
	w.u8(tag)
	switch in.Op {
	case ir.OpConst:
		w.slot(in.Out)
		w.value(in.Imm)
	case ir.OpMove:
		w.slot(in.Out)
		w.slot(in.A)
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv,
		ir.OpEq, ir.OpNeq, ir.OpLt, ir.OpLe, ir.OpGt, ir.OpGe,
		ir.OpStrConcat, ir.OpStrEq:
		w.slot(in.A)
		w.slot(in.B)
		w.slot(in.Out)
	case ir.OpJump:
		w.u32(uint32(in.PC))
	case ir.OpBr:
		w.slot(in.A)
		w.u32(uint32(in.PC))
		w.u32(uint32(in.PC2))
	case ir.OpExit:
		// no operands: Exit reads frame.Ret[0] and frame.Fn.RetShape
	case ir.OpThrow:
		w.slot(in.A)
		w.slot(in.B)
	case ir.OpTryPush:
		w.u32(uint32(in.PC))
	case ir.OpTryPop:
		// no operands
	case ir.OpInvoke:
		w.slot(in.A)
		w.slots(in.Args)
		w.slot(in.Out)
	case ir.OpObjNew:
		w.slot(in.Out)
	case ir.OpObjSet, ir.OpStrSlice:
		w.slot(in.A)
		w.slot(in.B)
		w.slot(in.C)
		w.slot(in.Out)
	case ir.OpObjGet, ir.OpObjHas, ir.OpObjDel:
		w.slot(in.A)
		w.slot(in.B)
		w.slot(in.Out)
	case ir.OpObjKeys, ir.OpStrLen:
		w.slot(in.A)
		w.slot(in.Out)
	case ir.OpHostPrint:
		w.slot(in.A)
		w.slot(in.Out)
	case ir.OpImportModule:
		w.str(in.Name)
		w.str(in.Path)
	case ir.OpModExport:
		w.str(in.Name)
		w.slot(in.A)
	default:
		panic("codec: unhandled op in instr encoder")
	}
}
