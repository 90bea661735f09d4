// Package compiler lowers a parsed Imp-Core AST into a slot-based
// CompiledModule.
package compiler

import (
	"fmt"
	"strings"

	"github.com/oranpie/impcore/internal/ast"
	"github.com/oranpie/impcore/internal/ir"
	"github.com/oranpie/impcore/internal/module"
	"github.com/oranpie/impcore/internal/value"
)

// Compile compiles src (with the given source path, used only for error
// messages and module identity) into a fresh *module.CompiledModule.
//
// Compile's signature matches module.CompileFunc, so it can be wired into
// a module.Loader directly.
func Compile(src, path string) (*module.CompiledModule, error) {
	prog, err := ast.Parse(src)
	if err != nil {
		return nil, err
	}
	return CompileProgram(prog, path)
}

// CompileProgram compiles an already-parsed Program.
func CompileProgram(prog *ast.Program, path string) (*module.CompiledModule, error) {
	c := &compilerState{mod: module.NewCompiledModule(path)}
	c.initScope = newFuncScope("<init>")
	c.cur = c.initScope
	// Reserve function id 0 for the initializer; declared functions are
	// appended starting at id 1 as core::fn::end closes them.
	c.mod.Functions = append(c.mod.Functions, nil)

	for i := range prog.Stmts {
		if err := c.compileStmt(&prog.Stmts[i]); err != nil {
			return nil, err
		}
	}
	if c.insideFn {
		return nil, errAt(0, 0, "unterminated function %q: missing core::fn::end", c.cur.name)
	}

	initFn, err := c.finalizeFunc(c.initScope, 0)
	if err != nil {
		return nil, err
	}
	c.mod.Functions[0] = initFn
	c.mod.InitFuncID = 0
	return c.mod, nil
}

type labelRef struct {
	instrIdx  int
	which     int // 1 = PC, 2 = PC2
	name      string
	line, col int
}

type funcScope struct {
	name       string
	argNames   []string
	argSlots   map[string]int
	localSlots map[string]int
	retSlots   map[string]int
	errSlots   map[string]int
	labels     map[string]int
	pending    []labelRef
	retShape   module.RetShape
	code       []ir.Instr
	tryDepth   int
	synthSeq   int
}

func newFuncScope(name string) *funcScope {
	return &funcScope{
		name:       name,
		argSlots:   map[string]int{},
		localSlots: map[string]int{},
		retSlots:   map[string]int{},
		errSlots:   map[string]int{},
		labels:     map[string]int{},
	}
}

func (f *funcScope) emit(instr ir.Instr) int {
	f.code = append(f.code, instr)
	return len(f.code) - 1
}

func (f *funcScope) internLocal(name string) int {
	if idx, ok := f.localSlots[name]; ok {
		return idx
	}
	idx := len(f.localSlots)
	f.localSlots[name] = idx
	return idx
}

func (f *funcScope) internRet(name string) int {
	if idx, ok := f.retSlots[name]; ok {
		return idx
	}
	idx := len(f.retSlots)
	f.retSlots[name] = idx
	return idx
}

func (f *funcScope) internErr(name string) int {
	if idx, ok := f.errSlots[name]; ok {
		return idx
	}
	idx := len(f.errSlots)
	f.errSlots[name] = idx
	return idx
}

func (f *funcScope) freshSynthLocal() int {
	f.synthSeq++
	return f.internLocal(fmt.Sprintf("$t%d", f.synthSeq))
}

type compilerState struct {
	mod       *module.CompiledModule
	cur       *funcScope
	initScope *funcScope
	insideFn  bool
}

func (c *compilerState) resolveRef(ns, name string) ir.Slot {
	switch ns {
	case "local":
		return ir.Slot{Space: ir.SpLocal, Index: c.cur.internLocal(name)}
	case "arg":
		// Existence is validated by resolveRefChecked before this is
		// reached from any compiler entry point.
		return ir.Slot{Space: ir.SpArg, Index: c.cur.argSlots[name]}
	case "return":
		return ir.Slot{Space: ir.SpRet, Index: c.cur.internRet(name)}
	case "err":
		return ir.Slot{Space: ir.SpErr, Index: c.cur.internErr(name)}
	default:
		key := ns + "::" + name
		return ir.Slot{Space: ir.SpGlobal, Index: c.mod.GlobalSlot(key)}
	}
}

func (c *compilerState) resolveRefChecked(ns, name string, line, col int) (ir.Slot, error) {
	if ns == "arg" {
		if _, ok := c.cur.argSlots[name]; !ok {
			return ir.Slot{}, errAt(line, col, "unknown arg::%s (not declared in fn::begin args=)", name)
		}
	}
	return c.resolveRef(ns, name), nil
}

func atomToValue(a ast.Atom) (value.Value, bool) {
	switch a.Kind {
	case ast.AtomNull:
		return value.Null, true
	case ast.AtomBool:
		return value.Bool(a.Bool), true
	case ast.AtomNum:
		return value.Num(a.Num), true
	case ast.AtomText:
		return value.Text(a.Text), true
	default:
		return value.Value{}, false
	}
}

// resolveOperand turns any Atom (ref or literal) into a Slot. Literals are
// materialized via a synthetic Const instruction into a fresh local.
func (c *compilerState) resolveOperand(a ast.Atom, line, col int) (ir.Slot, error) {
	if a.Kind == ast.AtomRef {
		return c.resolveRefChecked(a.RefNS, a.RefName, line, col)
	}
	v, ok := atomToValue(a)
	if !ok {
		return ir.Slot{}, errAt(line, col, "expected a value")
	}
	slot := ir.Slot{Space: ir.SpLocal, Index: c.cur.freshSynthLocal()}
	c.cur.emit(ir.Instr{Op: ir.OpConst, Out: slot, Imm: v})
	return slot, nil
}

// resolveDestRef requires a (always must be a ref: it names a storage
// location, never a literal).
func (c *compilerState) resolveDestRef(a ast.Atom, line, col int) (ir.Slot, error) {
	if a.Kind != ast.AtomRef {
		return ir.Slot{}, errAt(line, col, "expected a ref destination (ns::name)")
	}
	return c.resolveRefChecked(a.RefNS, a.RefName, line, col)
}

func requireArg(stmt *ast.CallStmt, key string) (ast.Atom, error) {
	v, ok := stmt.Arg(key)
	if !ok {
		return ast.Atom{}, errAt(stmt.Line, stmt.Col, "%s: missing required key %q", stmt.Target, key)
	}
	return v, nil
}

func requireText(stmt *ast.CallStmt, key string) (string, error) {
	v, err := requireArg(stmt, key)
	if err != nil {
		return "", err
	}
	if v.Kind != ast.AtomText {
		return "", errAt(stmt.Line, stmt.Col, "%s: key %q must be a string", stmt.Target, key)
	}
	return v.Text, nil
}

func optionalText(stmt *ast.CallStmt, key, def string) (string, error) {
	v, ok := stmt.Arg(key)
	if !ok {
		return def, nil
	}
	if v.Kind != ast.AtomText {
		return "", errAt(stmt.Line, stmt.Col, "%s: key %q must be a string", stmt.Target, key)
	}
	return v.Text, nil
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func splitRefString(s string) (ns, name string, ok bool) {
	idx := strings.Index(s, "::")
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+2:], true
}
