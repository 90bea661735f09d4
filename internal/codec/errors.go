// Package codec implements the AOT .impc binary format: a freeze/thaw
// codec for the compiled-module graph that sits between the
// compiler and the VM as an optional step. The in-memory CompiledModule
// graph remains the canonical runtime form; decode(encode(g)) must produce
// a graph semantically identical to g.
package codec

import "fmt"

// Magic is the 4-byte file header every .impc stream starts with.
const Magic = "IMPC"

// Version is the only format version this codec understands.
const Version uint16 = 1

// BadMagicError reports a stream whose first 4 bytes are not "IMPC".
type BadMagicError struct{ Got [4]byte }

func (e *BadMagicError) Error() string {
	return fmt.Sprintf("codec: bad magic %q, want %q", e.Got[:], Magic)
}

// UnsupportedVersionError reports a format version this decoder doesn't
// understand.
type UnsupportedVersionError struct{ Got uint16 }

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("codec: unsupported format version %d, want %d", e.Got, Version)
}

// UnknownTagError reports an opcode or value-variant byte the decoder has
// no case for.
type UnknownTagError struct {
	Context string
	Tag     byte
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("codec: unknown %s tag 0x%02x", e.Context, e.Tag)
}

// UnexpectedEOFError reports a stream that ended before a declared field
// could be fully read.
type UnexpectedEOFError struct{ Context string }

func (e *UnexpectedEOFError) Error() string {
	return fmt.Sprintf("codec: unexpected EOF reading %s", e.Context)
}

// IntegrityError reports a structurally inconsistent but fully-parsed
// stream: a slot index out of range for its function's declared sizes, an
// FnHandle constant naming a module id outside the decoded graph, a label
// PC past its function's code length, and so on.
type IntegrityError struct{ Msg string }

func (e *IntegrityError) Error() string { return "codec: integrity error: " + e.Msg }

func integrityf(format string, args ...any) error {
	return &IntegrityError{Msg: fmt.Sprintf(format, args...)}
}
