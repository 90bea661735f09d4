package value_test

import (
	"math"
	"testing"

	"github.com/oranpie/impcore/internal/value"
	"github.com/stretchr/testify/require"
)

func TestEqualStrictByVariant(t *testing.T) {
	require.True(t, value.Num(1).Equal(value.Num(1)))
	require.False(t, value.Num(1).Equal(value.Text("1")))
	require.False(t, value.Null.Equal(value.Bool(false)))
	require.True(t, value.Null.Equal(value.Null))
}

func TestEqualNaNNeverEqual(t *testing.T) {
	nan := value.Num(math.NaN())
	require.False(t, nan.Equal(nan))
}

func TestObjectInsertionOrder(t *testing.T) {
	o := value.NewObject()
	o.Set("b", value.Num(2))
	o.Set("a", value.Num(1))
	o.Set("b", value.Num(3)) // update, should not move
	require.Equal(t, []string{"b", "a"}, o.Keys())

	v, ok := o.Get("b")
	require.True(t, ok)
	require.True(t, v.Equal(value.Num(3)))

	_, ok = o.Get("missing")
	require.False(t, ok)
}

func TestObjectDelete(t *testing.T) {
	o := value.NewObject()
	o.Set("a", value.Num(1))
	o.Set("b", value.Num(2))
	require.True(t, o.Delete("a"))
	require.False(t, o.Delete("a"))
	require.Equal(t, []string{"b"}, o.Keys())
}

func TestObjectStringRendersInInsertionOrder(t *testing.T) {
	o := value.NewObject()
	o.Set("code", value.Text("div_by_zero"))
	o.Set("msg", value.Text("division by zero"))
	require.Equal(t, `{code: "div_by_zero", msg: "division by zero"}`, value.Obj(o).String())
}

func TestWithFnModuleID(t *testing.T) {
	h := value.Fn(value.FnHandle{ModuleID: 0, FuncID: 3})
	patched := h.WithFnModuleID(7)
	require.Equal(t, uint32(7), patched.AsFnHandle().ModuleID)
	require.Equal(t, uint32(3), patched.AsFnHandle().FuncID)

	notFn := value.Num(1).WithFnModuleID(7)
	require.True(t, notFn.Equal(value.Num(1)))
}
