// Package ir defines the slot-based instruction set that the compiler
// lowers #call statements into.
package ir

import (
	"fmt"
	"strings"

	"github.com/oranpie/impcore/internal/value"
)

// Space identifies which array a Slot addresses. Slot resolution happens
// entirely at compile time: no instruction ever
// carries a name, only a (Space, Index) pair.
type Space uint8

const (
	SpNone   Space = iota // operand unused
	SpLocal               // frame.locals
	SpArg                 // frame.args
	SpRet                 // frame.ret
	SpErr                 // frame.err
	SpGlobal              // owning module's global value table
)

func (s Space) String() string {
	switch s {
	case SpLocal:
		return "local"
	case SpArg:
		return "arg"
	case SpRet:
		return "return"
	case SpErr:
		return "err"
	case SpGlobal:
		return "global"
	default:
		return "-"
	}
}

// Slot is a resolved storage location: either a frame array cell or a slot
// in the owning module's global value table.
type Slot struct {
	Space Space
	Index int
}

// None is the "no operand" slot, used for unused Instr operand fields.
var None = Slot{Space: SpNone}

func (s Slot) String() string {
	if s.Space == SpNone {
		return "_"
	}
	return fmt.Sprintf("%s::%d", s.Space, s.Index)
}

// Op identifies an instruction kind.
type Op uint8

const (
	OpConst Op = iota
	OpMove
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNeq
	OpLt
	OpLe
	OpGt
	OpGe
	OpJump
	OpBr
	OpExit
	OpThrow
	OpTryPush
	OpTryPop
	OpInvoke
	OpObjNew
	OpObjSet
	OpObjGet
	OpObjHas
	OpObjKeys
	OpObjDel
	OpStrConcat
	OpStrLen
	OpStrSlice
	OpStrEq
	OpHostPrint
	OpImportModule
	OpModExport
)

var opNames = map[Op]string{
	OpConst: "const", OpMove: "move", OpAdd: "add", OpSub: "sub", OpMul: "mul",
	OpDiv: "div", OpEq: "eq", OpNeq: "neq", OpLt: "lt", OpLe: "le", OpGt: "gt", OpGe: "ge",
	OpJump: "jump", OpBr: "br", OpExit: "exit", OpThrow: "throw",
	OpTryPush: "try.push", OpTryPop: "try.pop", OpInvoke: "invoke",
	OpObjNew: "obj.new", OpObjSet: "obj.set", OpObjGet: "obj.get", OpObjHas: "obj.has",
	OpObjKeys: "obj.keys", OpObjDel: "obj.del",
	OpStrConcat: "str.concat", OpStrLen: "str.len", OpStrSlice: "str.slice", OpStrEq: "str.eq",
	OpHostPrint: "host.print", OpImportModule: "import", OpModExport: "mod.export",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return "unknown"
}

// String renders instr for `imp dump-ir`: the op name followed by whichever
// operand fields that op actually populates (see internal/codec's per-op
// encode table for the authoritative field-per-op mapping).
func (instr Instr) String() string {
	var b strings.Builder
	b.WriteString(instr.Op.String())
	writeSlot := func(prefix string, s Slot) {
		if s.Space == SpNone {
			return
		}
		fmt.Fprintf(&b, " %s=%s", prefix, s)
	}
	switch instr.Op {
	case OpConst:
		writeSlot("out", instr.Out)
		fmt.Fprintf(&b, " imm=%s", instr.Imm)
	case OpMove:
		writeSlot("out", instr.Out)
		writeSlot("a", instr.A)
	case OpJump:
		fmt.Fprintf(&b, " pc=%d", instr.PC)
	case OpBr:
		writeSlot("a", instr.A)
		fmt.Fprintf(&b, " then=%d else=%d", instr.PC, instr.PC2)
	case OpTryPush:
		fmt.Fprintf(&b, " handler=%d", instr.PC)
	case OpInvoke:
		writeSlot("target", instr.A)
		for i, s := range instr.Args {
			fmt.Fprintf(&b, " arg%d=%s", i, s)
		}
		writeSlot("out", instr.Out)
	case OpImportModule:
		fmt.Fprintf(&b, " alias=%s path=%q", instr.Name, instr.Path)
	case OpModExport:
		fmt.Fprintf(&b, " name=%s", instr.Name)
		writeSlot("value", instr.A)
	case OpExit, OpTryPop:
		// no operands
	default:
		writeSlot("a", instr.A)
		writeSlot("b", instr.B)
		writeSlot("c", instr.C)
		writeSlot("out", instr.Out)
	}
	return b.String()
}

// Instr is one instruction. Not every field is meaningful for every Op; see
// internal/codec's per-op encode table for which fields each Op populates.
type Instr struct {
	Op Op

	Out Slot
	A   Slot
	B   Slot
	C   Slot

	PC  int // jump target; then-branch for Br; handler pc for TryPush
	PC2 int // else-branch pc for Br

	Args []Slot // Invoke argument slots (A holds the target slot)

	Name string // ModExport export name; ImportModule alias
	Path string // ImportModule path

	Imm value.Value // Const payload
}
