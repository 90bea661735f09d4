package compiler

import (
	"fmt"
	"strings"

	"github.com/oranpie/impcore/internal/ast"
	"github.com/oranpie/impcore/internal/ir"
	"github.com/oranpie/impcore/internal/module"
	"github.com/oranpie/impcore/internal/value"
)

var compareOps = map[string]ir.Op{
	"add": ir.OpAdd, "sub": ir.OpSub, "mul": ir.OpMul, "div": ir.OpDiv,
	"eq": ir.OpEq, "neq": ir.OpNeq, "lt": ir.OpLt, "le": ir.OpLe, "gt": ir.OpGt, "ge": ir.OpGe,
}

func (c *compilerState) compileStmt(stmt *ast.CallStmt) error {
	for _, ann := range stmt.Annotations {
		if ann != "safe" {
			return errAt(stmt.Line, stmt.Col, "unknown annotation @%s", ann)
		}
	}
	safe := stmt.HasAnnotation("safe")
	if safe && stmt.Target != "core::div" {
		return errAt(stmt.Line, stmt.Col, "@safe is only supported on core::div, not %s", stmt.Target)
	}

	if !strings.HasPrefix(stmt.Target, "core::") {
		return c.compileInvoke(stmt)
	}
	op := strings.TrimPrefix(stmt.Target, "core::")

	switch op {
	case "fn::begin":
		return c.compileFnBegin(stmt)
	case "fn::end":
		return c.compileFnEnd(stmt)
	case "label":
		return c.compileLabel(stmt)
	case "jump":
		return c.compileJump(stmt)
	case "br":
		return c.compileBr(stmt)
	case "try::push":
		return c.compileTryPush(stmt)
	case "try::pop":
		return c.compileTryPop(stmt)
	case "const":
		return c.compileConst(stmt)
	case "move":
		return c.compileMove(stmt)
	case "add", "sub", "mul", "div", "eq", "neq", "lt", "le", "gt", "ge":
		return c.compileBinOp(stmt, op, safe)
	case "exit":
		c.cur.emit(ir.Instr{Op: ir.OpExit})
		return nil
	case "throw":
		return c.compileThrow(stmt)
	case "obj::new":
		return c.compileObjNew(stmt)
	case "obj::set":
		return c.compileObjSet(stmt)
	case "obj::get":
		return c.compileObjGetHas(stmt, ir.OpObjGet)
	case "obj::has":
		return c.compileObjGetHas(stmt, ir.OpObjHas)
	case "obj::del":
		return c.compileObjGetHas(stmt, ir.OpObjDel)
	case "obj::keys":
		return c.compileObjKeys(stmt)
	case "str::concat":
		return c.compileStrBin(stmt, ir.OpStrConcat)
	case "str::eq":
		return c.compileStrBin(stmt, ir.OpStrEq)
	case "str::len":
		return c.compileStrLen(stmt)
	case "str::slice":
		return c.compileStrSlice(stmt)
	case "host::print":
		return c.compileHostPrint(stmt)
	case "import":
		return c.compileImport(stmt)
	case "mod::export":
		return c.compileModExport(stmt)
	default:
		return errAt(stmt.Line, stmt.Col, "unknown core op %q", stmt.Target)
	}
}

func (c *compilerState) compileFnBegin(stmt *ast.CallStmt) error {
	if c.insideFn {
		return errAt(stmt.Line, stmt.Col, "nested core::fn::begin not supported (close %q first)", c.cur.name)
	}
	name, err := requireText(stmt, "name")
	if err != nil {
		return err
	}
	argsCSV, err := optionalText(stmt, "args", "")
	if err != nil {
		return err
	}
	retShapeText, err := requireText(stmt, "retshape")
	if err != nil {
		return err
	}
	rs, ok := module.ParseRetShape(retShapeText)
	if !ok {
		return errAt(stmt.Line, stmt.Col, "invalid retshape %q (want scalar|object|any)", retShapeText)
	}

	fs := newFuncScope(name)
	fs.argNames = splitCSV(argsCSV)
	for i, a := range fs.argNames {
		fs.argSlots[a] = i
	}
	fs.retShape = rs

	c.cur = fs
	c.insideFn = true
	return nil
}

func (c *compilerState) finalizeFunc(fn *funcScope, funcID int) (*module.CompiledFunction, error) {
	for _, ref := range fn.pending {
		idx, ok := fn.labels[ref.name]
		if !ok {
			return nil, errAt(ref.line, ref.col, "unresolved label %q in function %q", ref.name, fn.name)
		}
		switch ref.which {
		case 1:
			fn.code[ref.instrIdx].PC = idx
		case 2:
			fn.code[ref.instrIdx].PC2 = idx
		}
	}
	if fn.tryDepth != 0 {
		return nil, errAt(0, 0, "unbalanced core::try::push/core::try::pop in function %q", fn.name)
	}
	retCount := len(fn.retSlots)
	if retCount < 1 {
		retCount = 1
	}
	errCount := len(fn.errSlots)
	if errCount < 1 {
		errCount = 1
	}
	return &module.CompiledFunction{
		Code:         fn.code,
		ArgNames:     fn.argNames,
		LocalCount:   len(fn.localSlots),
		ArgCount:     len(fn.argNames),
		RetSlotCount: retCount,
		ErrSlotCount: errCount,
		RetShape:     fn.retShape,
		Name:         fn.name,
		FuncID:       uint32(funcID),
	}, nil
}

func (c *compilerState) compileFnEnd(stmt *ast.CallStmt) error {
	if !c.insideFn {
		return errAt(stmt.Line, stmt.Col, "core::fn::end without a matching core::fn::begin")
	}
	fn := c.cur
	funcID := len(c.mod.Functions)
	compiledFn, err := c.finalizeFunc(fn, funcID)
	if err != nil {
		return err
	}
	c.mod.Functions = append(c.mod.Functions, compiledFn)

	// "Its FnHandle is stored in the global slot X via synthetic Const +
	// Move in the enclosing initializer."
	tmp := c.initScope.freshSynthLocal()
	tmpSlot := ir.Slot{Space: ir.SpLocal, Index: tmp}
	c.initScope.emit(ir.Instr{
		Op:  ir.OpConst,
		Out: tmpSlot,
		Imm: value.Fn(value.FnHandle{ModuleID: 0, FuncID: uint32(funcID)}),
	})
	gslot := c.mod.GlobalSlot("main::" + fn.name)
	c.initScope.emit(ir.Instr{Op: ir.OpMove, Out: ir.Slot{Space: ir.SpGlobal, Index: gslot}, A: tmpSlot})

	c.cur = c.initScope
	c.insideFn = false
	return nil
}

func (c *compilerState) compileLabel(stmt *ast.CallStmt) error {
	name, err := requireText(stmt, "name")
	if err != nil {
		return err
	}
	if _, ok := c.cur.labels[name]; ok {
		return errAt(stmt.Line, stmt.Col, "duplicate label %q", name)
	}
	c.cur.labels[name] = len(c.cur.code)
	return nil
}

func (c *compilerState) addPendingLabel(instrIdx, which int, name string, stmt *ast.CallStmt) {
	c.cur.pending = append(c.cur.pending, labelRef{instrIdx: instrIdx, which: which, name: name, line: stmt.Line, col: stmt.Col})
}

func (c *compilerState) compileJump(stmt *ast.CallStmt) error {
	label, err := requireText(stmt, "label")
	if err != nil {
		return err
	}
	idx := c.cur.emit(ir.Instr{Op: ir.OpJump})
	c.addPendingLabel(idx, 1, label, stmt)
	return nil
}

func (c *compilerState) compileBr(stmt *ast.CallStmt) error {
	condAtom, err := requireArg(stmt, "cond")
	if err != nil {
		return err
	}
	condSlot, err := c.resolveOperand(condAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	thenLabel, err := requireText(stmt, "then")
	if err != nil {
		return err
	}
	elseLabel, err := requireText(stmt, "else")
	if err != nil {
		return err
	}
	idx := c.cur.emit(ir.Instr{Op: ir.OpBr, A: condSlot})
	c.addPendingLabel(idx, 1, thenLabel, stmt)
	c.addPendingLabel(idx, 2, elseLabel, stmt)
	return nil
}

func (c *compilerState) compileTryPush(stmt *ast.CallStmt) error {
	handler, err := requireText(stmt, "handler")
	if err != nil {
		return err
	}
	idx := c.cur.emit(ir.Instr{Op: ir.OpTryPush})
	c.addPendingLabel(idx, 1, handler, stmt)
	c.cur.tryDepth++
	return nil
}

func (c *compilerState) compileTryPop(stmt *ast.CallStmt) error {
	if c.cur.tryDepth == 0 {
		return errAt(stmt.Line, stmt.Col, "core::try::pop without a matching core::try::push")
	}
	c.cur.emit(ir.Instr{Op: ir.OpTryPop})
	c.cur.tryDepth--
	return nil
}

func (c *compilerState) compileConst(stmt *ast.CallStmt) error {
	outAtom, err := requireArg(stmt, "out")
	if err != nil {
		return err
	}
	outSlot, err := c.resolveDestRef(outAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	valAtom, err := requireArg(stmt, "value")
	if err != nil {
		return err
	}
	if valAtom.Kind == ast.AtomRef {
		return errAt(stmt.Line, stmt.Col, "core::const value must be a literal; use core::move to copy a ref")
	}
	v, ok := atomToValue(valAtom)
	if !ok {
		return errAt(stmt.Line, stmt.Col, "core::const value must be a literal")
	}
	c.cur.emit(ir.Instr{Op: ir.OpConst, Out: outSlot, Imm: v})
	return nil
}

func (c *compilerState) compileMove(stmt *ast.CallStmt) error {
	dstAtom, err := requireArg(stmt, "dst")
	if err != nil {
		return err
	}
	dstSlot, err := c.resolveDestRef(dstAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	srcAtom, err := requireArg(stmt, "src")
	if err != nil {
		return err
	}
	srcSlot, err := c.resolveOperand(srcAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	c.cur.emit(ir.Instr{Op: ir.OpMove, Out: dstSlot, A: srcSlot})
	return nil
}

// compileBinOp lowers add/sub/mul/div/eq/neq/lt/le/gt/ge, including the
// @safe core::div expansion:
//
//	TryPush(H); Div(A,B,O); TryPop; Jump(E); H: Const(O, null); E:
func (c *compilerState) compileBinOp(stmt *ast.CallStmt, name string, safe bool) error {
	aAtom, err := requireArg(stmt, "a")
	if err != nil {
		return err
	}
	bAtom, err := requireArg(stmt, "b")
	if err != nil {
		return err
	}
	outAtom, err := requireArg(stmt, "out")
	if err != nil {
		return err
	}
	aSlot, err := c.resolveOperand(aAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	bSlot, err := c.resolveOperand(bAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	outSlot, err := c.resolveDestRef(outAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	op := compareOps[name]

	if !safe {
		c.cur.emit(ir.Instr{Op: op, A: aSlot, B: bSlot, Out: outSlot})
		return nil
	}

	fn := c.cur
	fn.synthSeq++
	handlerLabel := fmt.Sprintf("$safe_h%d", fn.synthSeq)
	endLabel := fmt.Sprintf("$safe_e%d", fn.synthSeq)

	pushIdx := fn.emit(ir.Instr{Op: ir.OpTryPush})
	c.addPendingLabel(pushIdx, 1, handlerLabel, stmt)
	fn.tryDepth++

	fn.emit(ir.Instr{Op: op, A: aSlot, B: bSlot, Out: outSlot})
	fn.emit(ir.Instr{Op: ir.OpTryPop})
	fn.tryDepth--

	jumpIdx := fn.emit(ir.Instr{Op: ir.OpJump})
	c.addPendingLabel(jumpIdx, 1, endLabel, stmt)

	fn.labels[handlerLabel] = len(fn.code)
	fn.emit(ir.Instr{Op: ir.OpConst, Out: outSlot, Imm: value.Null})

	fn.labels[endLabel] = len(fn.code)
	return nil
}

func (c *compilerState) compileThrow(stmt *ast.CallStmt) error {
	codeAtom, err := requireArg(stmt, "code")
	if err != nil {
		return err
	}
	msgAtom, err := requireArg(stmt, "msg")
	if err != nil {
		return err
	}
	codeSlot, err := c.resolveOperand(codeAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	msgSlot, err := c.resolveOperand(msgAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	c.cur.emit(ir.Instr{Op: ir.OpThrow, A: codeSlot, B: msgSlot})
	return nil
}

func (c *compilerState) compileObjNew(stmt *ast.CallStmt) error {
	outAtom, err := requireArg(stmt, "out")
	if err != nil {
		return err
	}
	outSlot, err := c.resolveDestRef(outAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	c.cur.emit(ir.Instr{Op: ir.OpObjNew, Out: outSlot})
	return nil
}

func (c *compilerState) compileObjSet(stmt *ast.CallStmt) error {
	objAtom, err := requireArg(stmt, "obj")
	if err != nil {
		return err
	}
	keyAtom, err := requireArg(stmt, "key")
	if err != nil {
		return err
	}
	valAtom, err := requireArg(stmt, "value")
	if err != nil {
		return err
	}
	outAtom, err := requireArg(stmt, "out")
	if err != nil {
		return err
	}
	objSlot, err := c.resolveOperand(objAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	keySlot, err := c.resolveOperand(keyAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	valSlot, err := c.resolveOperand(valAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	outSlot, err := c.resolveDestRef(outAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	c.cur.emit(ir.Instr{Op: ir.OpObjSet, A: objSlot, B: keySlot, C: valSlot, Out: outSlot})
	return nil
}

func (c *compilerState) compileObjGetHas(stmt *ast.CallStmt, op ir.Op) error {
	objAtom, err := requireArg(stmt, "obj")
	if err != nil {
		return err
	}
	keyAtom, err := requireArg(stmt, "key")
	if err != nil {
		return err
	}
	outAtom, err := requireArg(stmt, "out")
	if err != nil {
		return err
	}
	objSlot, err := c.resolveOperand(objAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	keySlot, err := c.resolveOperand(keyAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	outSlot, err := c.resolveDestRef(outAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	c.cur.emit(ir.Instr{Op: op, A: objSlot, B: keySlot, Out: outSlot})
	return nil
}

func (c *compilerState) compileObjKeys(stmt *ast.CallStmt) error {
	objAtom, err := requireArg(stmt, "obj")
	if err != nil {
		return err
	}
	outAtom, err := requireArg(stmt, "out")
	if err != nil {
		return err
	}
	objSlot, err := c.resolveOperand(objAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	outSlot, err := c.resolveDestRef(outAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	c.cur.emit(ir.Instr{Op: ir.OpObjKeys, A: objSlot, Out: outSlot})
	return nil
}

func (c *compilerState) compileStrBin(stmt *ast.CallStmt, op ir.Op) error {
	aAtom, err := requireArg(stmt, "a")
	if err != nil {
		return err
	}
	bAtom, err := requireArg(stmt, "b")
	if err != nil {
		return err
	}
	outAtom, err := requireArg(stmt, "out")
	if err != nil {
		return err
	}
	aSlot, err := c.resolveOperand(aAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	bSlot, err := c.resolveOperand(bAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	outSlot, err := c.resolveDestRef(outAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	c.cur.emit(ir.Instr{Op: op, A: aSlot, B: bSlot, Out: outSlot})
	return nil
}

func (c *compilerState) compileStrLen(stmt *ast.CallStmt) error {
	vAtom, err := requireArg(stmt, "v")
	if err != nil {
		return err
	}
	outAtom, err := requireArg(stmt, "out")
	if err != nil {
		return err
	}
	vSlot, err := c.resolveOperand(vAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	outSlot, err := c.resolveDestRef(outAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	c.cur.emit(ir.Instr{Op: ir.OpStrLen, A: vSlot, Out: outSlot})
	return nil
}

func (c *compilerState) compileStrSlice(stmt *ast.CallStmt) error {
	vAtom, err := requireArg(stmt, "v")
	if err != nil {
		return err
	}
	startAtom, err := requireArg(stmt, "start")
	if err != nil {
		return err
	}
	endAtom, err := requireArg(stmt, "end")
	if err != nil {
		return err
	}
	outAtom, err := requireArg(stmt, "out")
	if err != nil {
		return err
	}
	vSlot, err := c.resolveOperand(vAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	startSlot, err := c.resolveOperand(startAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	endSlot, err := c.resolveOperand(endAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	outSlot, err := c.resolveDestRef(outAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	c.cur.emit(ir.Instr{Op: ir.OpStrSlice, A: vSlot, B: startSlot, C: endSlot, Out: outSlot})
	return nil
}

func (c *compilerState) compileHostPrint(stmt *ast.CallStmt) error {
	valAtom, err := requireArg(stmt, "value")
	if err != nil {
		return err
	}
	valSlot, err := c.resolveOperand(valAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	outSlot := ir.None
	if outAtom, ok := stmt.Arg("out"); ok {
		outSlot, err = c.resolveDestRef(outAtom, stmt.Line, stmt.Col)
		if err != nil {
			return err
		}
	}
	c.cur.emit(ir.Instr{Op: ir.OpHostPrint, A: valSlot, Out: outSlot})
	return nil
}

func (c *compilerState) compileImport(stmt *ast.CallStmt) error {
	alias, err := requireText(stmt, "alias")
	if err != nil {
		return err
	}
	path, err := requireText(stmt, "path")
	if err != nil {
		return err
	}
	c.mod.Imports = append(c.mod.Imports, module.ImportEntry{Alias: alias, Path: path})
	c.cur.emit(ir.Instr{Op: ir.OpImportModule, Name: alias, Path: path})
	return nil
}

func (c *compilerState) compileModExport(stmt *ast.CallStmt) error {
	name, err := requireText(stmt, "name")
	if err != nil {
		return err
	}
	valAtom, err := requireArg(stmt, "value")
	if err != nil {
		return err
	}
	valSlot, err := c.resolveOperand(valAtom, stmt.Line, stmt.Col)
	if err != nil {
		return err
	}
	c.cur.emit(ir.Instr{Op: ir.OpModExport, Name: name, A: valSlot})
	return nil
}

// compileInvoke lowers a non-core:: target (alias::name / main::name) to an
// Invoke instruction.
func (c *compilerState) compileInvoke(stmt *ast.CallStmt) error {
	ns, name, ok := splitRefString(stmt.Target)
	if !ok {
		return errAt(stmt.Line, stmt.Col, "invalid invoke target %q: expected ns::name", stmt.Target)
	}
	targetSlot := c.resolveRef(ns, name)

	var argSlots []ir.Slot
	if argsText, err := optionalText(stmt, "args", ""); err != nil {
		return err
	} else {
		for _, entry := range splitCSV(argsText) {
			argNS, argName, ok := splitRefString(entry)
			if !ok {
				return errAt(stmt.Line, stmt.Col, "malformed arg ref %q in args=", entry)
			}
			slot, err := c.resolveRefChecked(argNS, argName, stmt.Line, stmt.Col)
			if err != nil {
				return err
			}
			argSlots = append(argSlots, slot)
		}
	}

	outSlot := ir.None
	if outAtom, ok := stmt.Arg("out"); ok {
		var err error
		outSlot, err = c.resolveDestRef(outAtom, stmt.Line, stmt.Col)
		if err != nil {
			return err
		}
	}

	c.cur.emit(ir.Instr{Op: ir.OpInvoke, A: targetSlot, Args: argSlots, Out: outSlot})
	return nil
}
