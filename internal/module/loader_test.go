package module_test

import (
	"fmt"
	"testing"

	"github.com/oranpie/impcore/internal/module"
	"github.com/oranpie/impcore/internal/value"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	ran []string
}

func (s *stubRunner) RunFunction(cm *module.CompiledModule, funcID int, args []value.Value) (value.Value, error) {
	s.ran = append(s.ran, cm.Path)
	cm.Exports["x"] = value.Num(float64(len(s.ran)))
	return value.Null, nil
}

func fakeCompile(src, path string) (*module.CompiledModule, error) {
	cm := module.NewCompiledModule(path)
	cm.Functions = append(cm.Functions, &module.CompiledFunction{Name: "<init>"})
	cm.InitFuncID = 0
	return cm, nil
}

func TestLoaderRunsInitOncePerPath(t *testing.T) {
	reads := map[string]string{"/a.imp": "a", "/b.imp": "b"}
	runner := &stubRunner{}
	l := module.NewLoader(func(p string) (string, error) {
		s, ok := reads[p]
		if !ok {
			return "", fmt.Errorf("no such file %s", p)
		}
		return s, nil
	}, fakeCompile)
	l.SetRunner(runner)

	m1, err := l.Load("/a.imp")
	require.NoError(t, err)
	m2, err := l.Load("/a.imp")
	require.NoError(t, err)
	require.Same(t, m1, m2)
	require.Len(t, runner.ran, 1, "initializer must run exactly once per path")
}

func TestLoaderImportBindsExports(t *testing.T) {
	reads := map[string]string{"/a.imp": "a", "/b.imp": "b"}
	runner := &stubRunner{}
	l := module.NewLoader(func(p string) (string, error) { return reads[p], nil }, fakeCompile)
	l.SetRunner(runner)

	a, err := l.Load("/a.imp")
	require.NoError(t, err)
	require.NoError(t, l.Import(a, "b", "/b.imp"))

	idx, ok := a.Globals["b::x"]
	require.True(t, ok)
	require.True(t, a.GlobalValues[idx].Equal(value.Num(2)))
}

func TestLoaderDetectsCycle(t *testing.T) {
	reads := map[string]string{"/a.imp": "a"}
	l := module.NewLoader(func(p string) (string, error) { return reads[p], nil }, fakeCompile)
	cyclingRunner := &cycleRunner{loader: l}
	l.SetRunner(cyclingRunner)

	_, err := l.Load("/a.imp")
	require.Error(t, err)
	var impErr *module.ImportError
	require.ErrorAs(t, err, &impErr)
	require.Equal(t, "cycle", impErr.Kind)
}

// cycleRunner simulates a module whose initializer imports itself.
type cycleRunner struct{ loader *module.Loader }

func (c *cycleRunner) RunFunction(cm *module.CompiledModule, funcID int, args []value.Value) (value.Value, error) {
	return value.Null, c.loader.Import(cm, "self", cm.Path)
}

func TestLoaderSeedPendingSkipsRecompile(t *testing.T) {
	pre := module.NewCompiledModule("/a.imp")
	pre.ModuleID = 5
	pre.Functions = append(pre.Functions, &module.CompiledFunction{Name: "<init>", ModuleID: 5})
	pre.InitFuncID = 0

	calls := 0
	l := module.NewLoader(func(p string) (string, error) {
		return "", fmt.Errorf("read should never be called for a seeded module, got %s", p)
	}, func(src, path string) (*module.CompiledModule, error) {
		calls++
		return nil, fmt.Errorf("compile should never be called for a seeded module")
	})
	l.SeedPending([]*module.CompiledModule{pre})
	runner := &stubRunner{}
	l.SetRunner(runner)

	got, err := l.Load("/a.imp")
	require.NoError(t, err)
	require.Same(t, pre, got)
	require.Equal(t, 0, calls)
	require.Equal(t, uint32(5), got.ModuleID)
	require.Same(t, pre, l.ModuleByID(5))

	mods := l.Modules()
	require.Len(t, mods, 1)
	require.Same(t, pre, mods[0])
}
