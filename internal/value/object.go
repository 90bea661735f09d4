package value

import "strings"

// Object is an ordered key->value map. Insertion order is preserved for
// iteration (Keys). Objects are always shared
// by reference: copying a Value that holds an Object copies the pointer,
// never the underlying map, so mutation through any alias is visible to
// every holder.
type Object struct {
	keys    []string
	vals    map[string]Value
	Foreign bool // true for "foreign function handle" objects
}

// NewObject returns an empty, non-foreign Object.
func NewObject() *Object {
	return &Object{vals: make(map[string]Value)}
}

// Set inserts or updates key. New keys are appended to the iteration order;
// updating an existing key does not move it.
func (o *Object) Set(key string, v Value) {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

// Get returns the value for key and whether it was present.
func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.vals[key]
	return v, ok
}

// Has reports whether key is present.
func (o *Object) Has(key string) bool {
	_, ok := o.vals[key]
	return ok
}

// Delete removes key, reporting whether it was present.
func (o *Object) Delete(key string) bool {
	if _, ok := o.vals[key]; !ok {
		return false
	}
	delete(o.vals, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns the keys in insertion order. The returned slice is a copy.
func (o *Object) Keys() []string {
	out := make([]string, len(o.keys))
	copy(out, o.keys)
	return out
}

// Len returns the number of entries.
func (o *Object) Len() int { return len(o.keys) }

// String renders a debug form in insertion order, used by dump-ir,
// host::print, and error messages.
func (o *Object) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(o.vals[k].String())
	}
	b.WriteByte('}')
	return b.String()
}
