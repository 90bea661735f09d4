package module

import (
	"fmt"
	"path/filepath"

	"github.com/oranpie/impcore/internal/value"
)

// ImportError reports a static-phase failure in the loader:
// currently only the cyclic-import case.
type ImportError struct {
	Path string
	Kind string // "cycle"
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import error (%s): %s", e.Kind, e.Path)
}

// SourceReader loads the raw source text for a canonical path. File I/O is
// an external collaborator; the loader never touches the
// filesystem directly.
type SourceReader func(canonicalPath string) (string, error)

// CompileFunc compiles source text into a fresh CompiledModule. Supplied by
// the compiler package at wiring time to avoid a module->compiler import.
type CompileFunc func(src, path string) (*CompiledModule, error)

// Runner executes a compiled function to completion and returns its return
// value. Implemented by the interpreter; supplied to the loader at wiring
// time to avoid a module->interpreter import.
type Runner interface {
	RunFunction(cm *CompiledModule, funcID int, args []value.Value) (value.Value, error)
}

type cacheState uint8

const (
	stateLoading cacheState = iota
	stateReady
)

type cacheEntry struct {
	state  cacheState
	module *CompiledModule
}

// Loader implements recursive import with path-keyed caching and
// once-per-path initializer execution. A Loader belongs to exactly one VM:
// it is never shared across VM instances and never guards its cache with a
// mutex.
type Loader struct {
	read    SourceReader
	compile CompileFunc
	runner  Runner

	cache        map[string]*cacheEntry
	byID         map[uint32]*CompiledModule
	nextModuleID uint32

	// pending holds already-compiled modules (e.g. thawed from a .impc
	// stream by the AOT codec) keyed by canonical path, consulted by
	// loadCanonical before falling back to read+compile. Their module ids
	// are adopted as-is rather than reassigned, since a thawed graph's
	// cross-module FnHandle constants already agree on an id scheme.
	pending map[string]*CompiledModule
}

// SeedPending registers already-compiled modules so Load/Import adopt them
// directly instead of reading and compiling source for their paths. Each
// module's own initializer still runs exactly once, on demand, in whatever
// order the program's own core::import instructions trigger it in — the
// same lazy order a fresh compile-and-run would use.
func (l *Loader) SeedPending(modules []*CompiledModule) {
	if l.pending == nil {
		l.pending = map[string]*CompiledModule{}
	}
	for _, m := range modules {
		l.pending[m.Path] = m
	}
}

// NewLoader constructs a Loader. SetRunner must be called before Load is
// used, since running a module's initializer requires a VM.
func NewLoader(read SourceReader, compile CompileFunc) *Loader {
	return &Loader{read: read, compile: compile, cache: map[string]*cacheEntry{}, byID: map[uint32]*CompiledModule{}}
}

// SetRunner wires the VM that will execute module initializers.
func (l *Loader) SetRunner(r Runner) { l.runner = r }

// ModuleByID returns a previously loaded module, or nil if no such id has
// been assigned.
func (l *Loader) ModuleByID(id uint32) *CompiledModule {
	return l.byID[id]
}

// Modules returns every module this Loader has finished loading, ordered by
// module id ascending. Module id 0 is always the first module ever loaded
// (the root of Load), matching the AOT codec's "entry module at index 0"
// convention as long as the graph is frozen from a fresh
// Loader right after Load returns.
func (l *Loader) Modules() []*CompiledModule {
	out := make([]*CompiledModule, 0, len(l.byID))
	for id := uint32(0); id < l.nextModuleID; id++ {
		if m, ok := l.byID[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Load is the entry point for the root module: canonicalize, compile (if
// not cached), run its initializer once, and return it.
func (l *Loader) Load(path string) (*CompiledModule, error) {
	canonical, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("canonicalize %s: %w", path, err)
	}
	return l.loadCanonical(canonical)
}

// Import implements the ImportModule instruction:
// resolve path relative to fromModule, load (or reuse) the target, then
// bind alias::name for every exported name into fromModule's own global
// table.
func (l *Loader) Import(fromModule *CompiledModule, alias, path string) error {
	canonical, err := canonicalizeRelative(fromModule.Path, path)
	if err != nil {
		return fmt.Errorf("canonicalize import %s: %w", path, err)
	}
	target, err := l.loadCanonical(canonical)
	if err != nil {
		return err
	}
	for name, v := range target.Exports {
		idx := fromModule.GlobalSlot(alias + "::" + name)
		fromModule.GlobalValues[idx] = v
	}
	return nil
}

func canonicalizeRelative(fromPath, importPath string) (string, error) {
	if filepath.IsAbs(importPath) {
		return filepath.Abs(importPath)
	}
	dir := filepath.Dir(fromPath)
	return filepath.Abs(filepath.Join(dir, importPath))
}

func (l *Loader) loadCanonical(canonical string) (*CompiledModule, error) {
	if entry, ok := l.cache[canonical]; ok {
		switch entry.state {
		case stateLoading:
			return nil, &ImportError{Path: canonical, Kind: "cycle"}
		case stateReady:
			return entry.module, nil
		}
	}

	var cm *CompiledModule
	if pend, ok := l.pending[canonical]; ok {
		cm = pend
		delete(l.pending, canonical)
		l.byID[cm.ModuleID] = cm
		if cm.ModuleID >= l.nextModuleID {
			l.nextModuleID = cm.ModuleID + 1
		}
	} else {
		src, err := l.read(canonical)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", canonical, err)
		}
		compiled, err := l.compile(src, canonical)
		if err != nil {
			return nil, err
		}
		cm = compiled

		id := l.nextModuleID
		l.nextModuleID++
		cm.PatchModuleID(id)
		l.byID[id] = cm
	}

	l.cache[canonical] = &cacheEntry{state: stateLoading}

	if l.runner == nil {
		delete(l.cache, canonical)
		return nil, fmt.Errorf("loader: no runner configured to execute %s's initializer", canonical)
	}
	if cm.InitFuncID >= 0 {
		if _, err := l.runner.RunFunction(cm, cm.InitFuncID, nil); err != nil {
			delete(l.cache, canonical)
			return nil, err
		}
	}

	l.cache[canonical] = &cacheEntry{state: stateReady, module: cm}
	return cm, nil
}
