package interpreter

import (
	"fmt"

	"github.com/oranpie/impcore/internal/value"
)

// ErrSignal is how an op body reports "raise this built-in runtime error"
// (type_error, div_by_zero, missing_key, ...) to the dispatch loop; it is
// turned into a real thrown Object via Engine.Raise, exactly as if the
// program itself had called core::throw. Exported so both execution tiers'
// dispatch loops can consume it.
type ErrSignal struct {
	Code string
	Msg  string
}

// Sig constructs an ErrSignal with a formatted message.
func Sig(code, format string, args ...any) *ErrSignal {
	return &ErrSignal{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// NewErrorObject builds the {code, msg} Object a thrown value always is.
func NewErrorObject(code, msg string) value.Value {
	o := value.NewObject()
	o.Set("code", value.Text(code))
	o.Set("msg", value.Text(msg))
	return value.Obj(o)
}

// ThrownValue is an Imp-Core throw that has unwound out of a frame with no
// handler on that frame's own try stack. Engine.HandleCalleeErr lets the
// caller's frame attempt to catch it in turn; only once it unwinds past the
// root frame does it become a VmError.
type ThrownValue struct {
	Value value.Value
}

func (t *ThrownValue) Error() string {
	code, msg := DescribeErrorObject(t.Value)
	return fmt.Sprintf("unhandled throw %s: %s", code, msg)
}

// VmError is a ThrownValue that reached the root frame with nothing left to
// unwind into.
type VmError struct {
	Value value.Value
}

func (e *VmError) Error() string {
	code, msg := DescribeErrorObject(e.Value)
	return fmt.Sprintf("vm error %s: %s", code, msg)
}

// DescribeErrorObject extracts the conventional code/msg fields from a
// thrown Object, tolerating a malformed or non-Object throw.
func DescribeErrorObject(v value.Value) (code, msg string) {
	if v.Kind() != value.KindObject {
		return "?", v.String()
	}
	o := v.AsObject()
	code, msg = "?", "?"
	if c, ok := o.Get("code"); ok && c.Kind() == value.KindText {
		code = c.AsText()
	}
	if m, ok := o.Get("msg"); ok && m.Kind() == value.KindText {
		msg = m.AsText()
	}
	return code, msg
}

// Bug is a structural invariant violation: a slot, label, or jump target
// that compilation should have guaranteed. Every tier panics with a Bug
// rather than silently misbehaving, and recovers it at its own top-level
// entry point into a distinctly reported error: implementation bugs are
// never surfaced as in-program throws.
type Bug struct{ Msg string }

func (b Bug) Error() string { return "impcore internal error: " + b.Msg }

func Bugf(format string, args ...any) Bug {
	return Bug{Msg: fmt.Sprintf(format, args...)}
}
