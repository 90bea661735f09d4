package interpreter

import (
	"strconv"
	"unicode/utf8"

	"github.com/oranpie/impcore/internal/ir"
	"github.com/oranpie/impcore/internal/module"
	"github.com/oranpie/impcore/internal/value"
)

// BinNumOp implements add/sub/mul/div/lt/le/gt/ge: all eight
// arithmetic/ordering ops require two Num operands. Shared by both
// execution tiers.
func BinNumOp(op ir.Op, a, b value.Value) (value.Value, *ErrSignal) {
	if a.Kind() != value.KindNum || b.Kind() != value.KindNum {
		return value.Null, Sig("type_error", "%s requires num operands, got %s and %s", op, a.Kind(), b.Kind())
	}
	x, y := a.AsNum(), b.AsNum()
	switch op {
	case ir.OpAdd:
		return value.Num(x + y), nil
	case ir.OpSub:
		return value.Num(x - y), nil
	case ir.OpMul:
		return value.Num(x * y), nil
	case ir.OpDiv:
		if y == 0 {
			return value.Null, Sig("div_by_zero", "division by zero")
		}
		return value.Num(x / y), nil
	case ir.OpLt:
		return value.Bool(x < y), nil
	case ir.OpLe:
		return value.Bool(x <= y), nil
	case ir.OpGt:
		return value.Bool(x > y), nil
	case ir.OpGe:
		return value.Bool(x >= y), nil
	default:
		panic(Bugf("BinNumOp called with non-arithmetic op %v", op))
	}
}

// EqualOp implements eq/neq: strict, variant-typed equality over any two
// Values, never a type error.
func EqualOp(op ir.Op, a, b value.Value) value.Value {
	eq := a.Equal(b)
	if op == ir.OpNeq {
		return value.Bool(!eq)
	}
	return value.Bool(eq)
}

func asObject(v value.Value) (*value.Object, *ErrSignal) {
	if v.Kind() != value.KindObject {
		return nil, Sig("type_error", "expected object, got %s", v.Kind())
	}
	return v.AsObject(), nil
}

func asKeyText(v value.Value) (string, *ErrSignal) {
	if v.Kind() != value.KindText {
		return "", Sig("type_error", "expected text key, got %s", v.Kind())
	}
	return v.AsText(), nil
}

// ExecObjSet implements core::obj::set, mutating obj in place and yielding
// it back as Out (Objects are reference types).
func ExecObjSet(objV, keyV, valV value.Value) (value.Value, *ErrSignal) {
	obj, se := asObject(objV)
	if se != nil {
		return value.Null, se
	}
	key, se := asKeyText(keyV)
	if se != nil {
		return value.Null, se
	}
	obj.Set(key, valV)
	return objV, nil
}

// ExecObjGet implements core::obj::get: a missing key yields Null, never a
// throw — core::obj::has exists for presence checks, and
// missing_key itself is reserved for a stricter accessor built on top of
// obj::get, which this op surface does not add.
func ExecObjGet(objV, keyV value.Value) (value.Value, *ErrSignal) {
	obj, se := asObject(objV)
	if se != nil {
		return value.Null, se
	}
	key, se := asKeyText(keyV)
	if se != nil {
		return value.Null, se
	}
	v, ok := obj.Get(key)
	if !ok {
		return value.Null, nil
	}
	return v, nil
}

func ExecObjHas(objV, keyV value.Value) (value.Value, *ErrSignal) {
	obj, se := asObject(objV)
	if se != nil {
		return value.Null, se
	}
	key, se := asKeyText(keyV)
	if se != nil {
		return value.Null, se
	}
	return value.Bool(obj.Has(key)), nil
}

func ExecObjDel(objV, keyV value.Value) (value.Value, *ErrSignal) {
	obj, se := asObject(objV)
	if se != nil {
		return value.Null, se
	}
	key, se := asKeyText(keyV)
	if se != nil {
		return value.Null, se
	}
	return value.Bool(obj.Delete(key)), nil
}

// ExecObjKeys implements the supplemented core::obj::keys op. Imp-Core has
// no array type, so the key list is itself returned as an
// Object whose keys are decimal indices ("0","1",...) mapping to the
// original keys as Text, preserving insertion order.
func ExecObjKeys(objV value.Value) (value.Value, *ErrSignal) {
	obj, se := asObject(objV)
	if se != nil {
		return value.Null, se
	}
	out := value.NewObject()
	for i, k := range obj.Keys() {
		out.Set(strconv.Itoa(i), value.Text(k))
	}
	return value.Obj(out), nil
}

func asText(v value.Value) (string, *ErrSignal) {
	if v.Kind() != value.KindText {
		return "", Sig("type_error", "expected text, got %s", v.Kind())
	}
	return v.AsText(), nil
}

func ExecStrConcat(a, b value.Value) (value.Value, *ErrSignal) {
	as, se := asText(a)
	if se != nil {
		return value.Null, se
	}
	bs, se := asText(b)
	if se != nil {
		return value.Null, se
	}
	return value.Text(as + bs), nil
}

func ExecStrEq(a, b value.Value) (value.Value, *ErrSignal) {
	as, se := asText(a)
	if se != nil {
		return value.Null, se
	}
	bs, se := asText(b)
	if se != nil {
		return value.Null, se
	}
	return value.Bool(as == bs), nil
}

func ExecStrLen(v value.Value) (value.Value, *ErrSignal) {
	s, se := asText(v)
	if se != nil {
		return value.Null, se
	}
	return value.Num(float64(utf8.RuneCountInString(s))), nil
}

// ExecStrSlice implements the supplemented core::str::slice op over rune
// (code point) indices, clamped into range rather than thrown: a slice is
// never an "exceptional" operation the way a missing object key is.
func ExecStrSlice(vV, startV, endV value.Value) (value.Value, *ErrSignal) {
	s, se := asText(vV)
	if se != nil {
		return value.Null, se
	}
	if startV.Kind() != value.KindNum || endV.Kind() != value.KindNum {
		return value.Null, Sig("type_error", "str::slice start/end must be num")
	}
	runes := []rune(s)
	n := len(runes)
	start := clampIndex(int(startV.AsNum()), n)
	end := clampIndex(int(endV.AsNum()), n)
	if end < start {
		end = start
	}
	return value.Text(string(runes[start:end])), nil
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

// PrintString renders a Value for host::print: Text prints bare (no
// quotes), every other kind uses its debug form.
func PrintString(v value.Value) string {
	if v.Kind() == value.KindText {
		return v.AsText()
	}
	return v.String()
}

// RetShapeOK validates a function's return value against its declared
// shape at Exit.
func RetShapeOK(rs module.RetShape, v value.Value) bool {
	switch rs {
	case module.RetScalar:
		switch v.Kind() {
		case value.KindNull, value.KindBool, value.KindNum, value.KindText:
			return true
		default:
			return false
		}
	case module.RetObject:
		// An object-shaped return rejects null.
		return v.Kind() == value.KindObject
	default: // any
		return true
	}
}
