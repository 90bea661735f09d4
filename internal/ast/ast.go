// Package ast defines the parsed form of an Imp-Core source file: a flat
// sequence of annotated #call statements.
package ast

// AtomKind identifies which literal form an Atom holds.
type AtomKind uint8

const (
	AtomNull AtomKind = iota
	AtomBool
	AtomNum
	AtomText
	AtomRef
)

// Atom is a literal value as it appears in source: null, true/false, a
// number, a double-quoted string, or a ref (namespace::name).
type Atom struct {
	Kind    AtomKind
	Bool    bool
	Num     float64
	Text    string
	RefNS   string
	RefName string
}

// KV is one key=value pair in a #call statement's argument list.
type KV struct {
	Key   string
	Value Atom
	Line  int
	Col   int
}

// CallStmt is one parsed `#call [@anno ...] target key=value ...;` statement.
type CallStmt struct {
	Annotations []string
	Target      string // dotted path joined with "::", e.g. "core::fn::begin" or "alias::sum2"
	Args        []KV
	Line, Col   int
}

// Arg looks up a KV by key, reporting whether it was present.
func (c *CallStmt) Arg(key string) (Atom, bool) {
	for _, kv := range c.Args {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return Atom{}, false
}

// HasAnnotation reports whether the statement carries the given annotation
// (without its leading '@').
func (c *CallStmt) HasAnnotation(name string) bool {
	for _, a := range c.Annotations {
		if a == name {
			return true
		}
	}
	return false
}

// Program is a whole parsed source file: its statements in source order.
type Program struct {
	Stmts []CallStmt
}
