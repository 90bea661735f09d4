// Package value implements the Imp-Core runtime value model: the tagged
// Value sum type and its Object variant.
package value

import "fmt"

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNum
	KindText
	KindObject
	KindFnHandle
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNum:
		return "num"
	case KindText:
		return "text"
	case KindObject:
		return "object"
	case KindFnHandle:
		return "fnhandle"
	default:
		return "unknown"
	}
}

// FnHandle identifies a function within a CompiledModule graph: a module id
// plus a function id local to that module.
type FnHandle struct {
	ModuleID uint32
	FuncID   uint32
}

// Value is the runtime tagged union over Imp-Core's atom variants. The zero
// Value is Null.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	obj  *Object
	fn   FnHandle
}

// Null is the canonical null value.
var Null = Value{kind: KindNull}

// Bool constructs a Bool value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Num constructs a Num value. NaN and Inf are permitted payloads.
func Num(n float64) Value { return Value{kind: KindNum, n: n} }

// Text constructs a Text value.
func Text(s string) Value { return Value{kind: KindText, s: s} }

// Obj wraps an *Object as a Value.
func Obj(o *Object) Value { return Value{kind: KindObject, obj: o} }

// Fn wraps a FnHandle as a Value.
func Fn(h FnHandle) Value { return Value{kind: KindFnHandle, fn: h} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNull() bool  { return v.kind == KindNull }
func (v Value) AsBool() bool  { return v.b }
func (v Value) AsNum() float64 { return v.n }
func (v Value) AsText() string { return v.s }
func (v Value) AsObject() *Object  { return v.obj }
func (v Value) AsFnHandle() FnHandle { return v.fn }

// WithFnModuleID returns a copy of v with its FnHandle's ModuleID replaced.
// It is used by the loader to patch function handles emitted by the
// compiler before the owning module's id was known.
func (v Value) WithFnModuleID(id uint32) Value {
	if v.kind != KindFnHandle {
		return v
	}
	v.fn.ModuleID = id
	return v
}

// Equal implements strict, variant-typed equality:
// mismatched variants are never equal, NaN is never equal to itself.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNum:
		return v.n == other.n
	case KindText:
		return v.s == other.s
	case KindObject:
		return v.obj == other.obj
	case KindFnHandle:
		return v.fn == other.fn
	default:
		return false
	}
}

// String renders a debug form, used by dump-ir and error messages.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindNum:
		return fmt.Sprintf("%g", v.n)
	case KindText:
		return fmt.Sprintf("%q", v.s)
	case KindObject:
		return v.obj.String()
	case KindFnHandle:
		return fmt.Sprintf("fn(%d:%d)", v.fn.ModuleID, v.fn.FuncID)
	default:
		return "<invalid>"
	}
}
