package codec_test

import (
	"testing"

	"github.com/oranpie/impcore/internal/codec"
	"github.com/oranpie/impcore/internal/ir"
	"github.com/oranpie/impcore/internal/module"
	"github.com/oranpie/impcore/internal/value"
	"github.com/stretchr/testify/require"
)

// buildGraph constructs a two-module graph by hand: module 0 (entry)
// imports module 1 and invokes one of its exported functions, exercising
// arithmetic, object, try, host-print, export, and cross-module FnHandle
// constants in one pass.
func buildGraph() []*module.CompiledModule {
	lib := module.NewCompiledModule("/lib.imp")
	lib.ModuleID = 7 // deliberately non-zero/non-contiguous to exercise remap
	addFn := &module.CompiledFunction{
		Name:         "add2",
		ArgNames:     []string{"a", "b"},
		ArgCount:     2,
		RetSlotCount: 1,
		RetShape:     module.RetScalar,
		ModuleID:     7,
		FuncID:       0,
		Code: []ir.Instr{
			{Op: ir.OpAdd, A: ir.Slot{Space: ir.SpArg, Index: 0}, B: ir.Slot{Space: ir.SpArg, Index: 1}, Out: ir.Slot{Space: ir.SpRet, Index: 0}},
			{Op: ir.OpExit},
		},
	}
	lib.Functions = []*module.CompiledFunction{addFn}
	lib.InitFuncID = -1
	lib.Exports["add2"] = value.Fn(value.FnHandle{ModuleID: 7, FuncID: 0})

	entry := module.NewCompiledModule("/entry.imp")
	entry.ModuleID = 3
	gAlias := entry.GlobalSlot("lib::add2")
	entry.GlobalValues[gAlias] = value.Fn(value.FnHandle{ModuleID: 7, FuncID: 0})
	entry.Imports = []module.ImportEntry{{Alias: "lib", Path: "/lib.imp"}}

	obj := value.NewObject()
	obj.Set("k", value.Num(1))

	initFn := &module.CompiledFunction{
		Name:     "",
		ModuleID: 3,
		FuncID:   0,
		RetShape: module.RetAny,
		Code: []ir.Instr{
			{Op: ir.OpConst, Out: ir.Slot{Space: ir.SpLocal, Index: 0}, Imm: value.Num(4)},
			{Op: ir.OpConst, Out: ir.Slot{Space: ir.SpLocal, Index: 1}, Imm: value.Num(7)},
			{Op: ir.OpInvoke, A: ir.Slot{Space: ir.SpGlobal, Index: gAlias},
				Args: []ir.Slot{{Space: ir.SpLocal, Index: 0}, {Space: ir.SpLocal, Index: 1}},
				Out:  ir.Slot{Space: ir.SpLocal, Index: 2}},
			{Op: ir.OpTryPush, PC: 6},
			{Op: ir.OpDiv, A: ir.Slot{Space: ir.SpLocal, Index: 2}, B: ir.Slot{Space: ir.SpLocal, Index: 0}, Out: ir.Slot{Space: ir.SpLocal, Index: 3}},
			{Op: ir.OpTryPop},
			{Op: ir.OpConst, Out: ir.Slot{Space: ir.SpLocal, Index: 4}, Imm: value.Obj(obj)},
			{Op: ir.OpObjGet, A: ir.Slot{Space: ir.SpLocal, Index: 4}, B: ir.Slot{Space: ir.SpLocal, Index: 5}, Out: ir.Slot{Space: ir.SpLocal, Index: 6}},
			{Op: ir.OpHostPrint, A: ir.Slot{Space: ir.SpLocal, Index: 6}, Out: ir.Slot{Space: ir.SpLocal, Index: 7}},
			{Op: ir.OpModExport, Name: "result", A: ir.Slot{Space: ir.SpLocal, Index: 2}},
			{Op: ir.OpExit},
		},
		LocalCount:   8,
		ErrSlotCount: 1,
	}
	entry.Functions = []*module.CompiledFunction{initFn}
	entry.InitFuncID = 0

	return []*module.CompiledModule{entry, lib}
}

func TestRoundTripPreservesSemantics(t *testing.T) {
	graph := buildGraph()
	data := codec.Encode(graph)

	require.Equal(t, []byte(codec.Magic), data[:4])

	decoded, err := codec.Decode(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)

	entry, lib := decoded[0], decoded[1]
	require.Equal(t, "/entry.imp", entry.Path)
	require.Equal(t, "/lib.imp", lib.Path)

	// Module ids are re-assigned by position; cross-module FnHandle
	// constants must follow.
	require.Equal(t, uint32(0), entry.ModuleID)
	require.Equal(t, uint32(1), lib.ModuleID)

	libAddHandle := lib.Exports["add2"].AsFnHandle()
	require.Equal(t, uint32(1), libAddHandle.ModuleID)
	require.Equal(t, uint32(0), libAddHandle.FuncID)

	gIdx := entry.Globals["lib::add2"]
	globalHandle := entry.GlobalValues[gIdx].AsFnHandle()
	require.Equal(t, uint32(1), globalHandle.ModuleID)

	// The instruction stream round-trips exactly, op-by-op.
	initFn := entry.Functions[0]
	require.Len(t, initFn.Code, 11)
	require.Equal(t, ir.OpInvoke, initFn.Code[2].Op)
	require.Equal(t, []ir.Slot{{Space: ir.SpLocal, Index: 0}, {Space: ir.SpLocal, Index: 1}}, initFn.Code[2].Args)
	require.Equal(t, ir.OpTryPush, initFn.Code[3].Op)
	require.Equal(t, 6, initFn.Code[3].PC)

	objConst := initFn.Code[6].Imm
	require.Equal(t, value.KindObject, objConst.Kind())
	v, ok := objConst.AsObject().Get("k")
	require.True(t, ok)
	require.True(t, value.Num(1).Equal(v))

	require.Equal(t, "result", initFn.Code[9].Name)
	require.Equal(t, module.RetAny, initFn.RetShape)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := codec.Decode([]byte("XXXX\x00\x01\x00\x00\x00\x00"))
	var bad *codec.BadMagicError
	require.ErrorAs(t, err, &bad)
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	data := codec.Encode(buildGraph())
	data[4] = 0xFF // bump the version field past what this decoder knows
	_, err := codec.Decode(data)
	var bad *codec.UnsupportedVersionError
	require.ErrorAs(t, err, &bad)
}

func TestDecodeRejectsTruncatedStream(t *testing.T) {
	data := codec.Encode(buildGraph())
	_, err := codec.Decode(data[:len(data)-5])
	var eof *codec.UnexpectedEOFError
	require.ErrorAs(t, err, &eof)
}

func TestDecodeRejectsTryWithoutErrSlot(t *testing.T) {
	graph := buildGraph()
	graph[0].Functions[0].ErrSlotCount = 0
	data := codec.Encode(graph)
	_, err := codec.Decode(data)
	var ierr *codec.IntegrityError
	require.ErrorAs(t, err, &ierr)
}

func TestDecodeRejectsOutOfRangeSlot(t *testing.T) {
	graph := buildGraph()
	// Declare a function with no locals but an instruction referencing
	// local slot 0: an integrity violation the decoder must catch.
	graph[0].Functions[0].LocalCount = 0
	data := codec.Encode(graph)
	_, err := codec.Decode(data)
	var ierr *codec.IntegrityError
	require.ErrorAs(t, err, &ierr)
}
