package ast

import (
	"fmt"
	"strings"

	"github.com/oranpie/impcore/internal/lexer"
)

// Error is a static parse error with a source position.
type Error struct {
	Line, Col int
	Msg       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse error at %d:%d: %s", e.Line, e.Col, e.Msg)
}

// Parser turns a token stream into a Program.
type Parser struct {
	lex  *lexer.Lexer
	tok  lexer.Token
	peek *lexer.Token
}

// Parse lexes and parses a whole source file.
func Parse(src string) (*Program, error) {
	p := &Parser{lex: lexer.New(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	prog := &Program{}
	for p.tok.Kind != lexer.TEOF {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		prog.Stmts = append(prog.Stmts, *stmt)
	}
	return prog, nil
}

func (p *Parser) advance() error {
	if p.peek != nil {
		p.tok = *p.peek
		p.peek = nil
		return nil
	}
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func wrapLexErr(err error) error {
	if le, ok := err.(*lexer.Error); ok {
		return &Error{Line: le.Line, Col: le.Col, Msg: le.Msg}
	}
	return err
}

func (p *Parser) expect(k lexer.TokKind, what string) (lexer.Token, error) {
	if p.tok.Kind != k {
		return lexer.Token{}, &Error{Line: p.tok.Line, Col: p.tok.Col, Msg: fmt.Sprintf("expected %s", what)}
	}
	tok := p.tok
	if err := p.advance(); err != nil {
		return lexer.Token{}, wrapLexErr(err)
	}
	return tok, nil
}

// parseStmt parses `#call [@anno ...] target key=value ... ;`.
func (p *Parser) parseStmt() (*CallStmt, error) {
	startLine, startCol := p.tok.Line, p.tok.Col
	if _, err := p.expect(lexer.THash, "'#'"); err != nil {
		return nil, err
	}
	kw, err := p.expect(lexer.TIdent, "'call'")
	if err != nil {
		return nil, err
	}
	if kw.Text != "call" {
		return nil, &Error{Line: kw.Line, Col: kw.Col, Msg: fmt.Sprintf("unknown statement '#%s', only #call is supported", kw.Text)}
	}

	stmt := &CallStmt{Line: startLine, Col: startCol}
	for p.tok.Kind == lexer.TAt {
		if err := p.advance(); err != nil {
			return nil, wrapLexErr(err)
		}
		name, err := p.expect(lexer.TIdent, "annotation name")
		if err != nil {
			return nil, err
		}
		stmt.Annotations = append(stmt.Annotations, name.Text)
	}

	target, err := p.parsePath()
	if err != nil {
		return nil, err
	}
	stmt.Target = target

	for p.tok.Kind == lexer.TIdent {
		kv, err := p.parseKV()
		if err != nil {
			return nil, err
		}
		stmt.Args = append(stmt.Args, *kv)
	}

	if p.tok.Kind != lexer.TSemi {
		return nil, &Error{Line: p.tok.Line, Col: p.tok.Col, Msg: "unterminated statement, expected ';'"}
	}
	if err := p.advance(); err != nil {
		return nil, wrapLexErr(err)
	}
	return stmt, nil
}

// parsePath parses an identifier optionally followed by one or more
// "::ident" segments, joining them with "::". Used for both statement
// targets and refs.
func (p *Parser) parsePath() (string, error) {
	first, err := p.expect(lexer.TIdent, "identifier")
	if err != nil {
		return "", err
	}
	var segs []string
	segs = append(segs, first.Text)
	for p.tok.Kind == lexer.TColonColon {
		if err := p.advance(); err != nil {
			return "", wrapLexErr(err)
		}
		if p.tok.Kind != lexer.TIdent {
			return "", &Error{Line: p.tok.Line, Col: p.tok.Col, Msg: "malformed ref: expected identifier after '::'"}
		}
		seg := p.tok
		if err := p.advance(); err != nil {
			return "", wrapLexErr(err)
		}
		segs = append(segs, seg.Text)
	}
	return strings.Join(segs, "::"), nil
}

func (p *Parser) parseKV() (*KV, error) {
	key := p.tok
	if err := p.advance(); err != nil {
		return nil, wrapLexErr(err)
	}
	if _, err := p.expect(lexer.TEquals, "'=' after key"); err != nil {
		return nil, err
	}
	atom, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	return &KV{Key: key.Text, Value: atom, Line: key.Line, Col: key.Col}, nil
}

func (p *Parser) parseAtom() (Atom, error) {
	switch p.tok.Kind {
	case lexer.TString:
		s := p.tok.Text
		if err := p.advance(); err != nil {
			return Atom{}, wrapLexErr(err)
		}
		return Atom{Kind: AtomText, Text: s}, nil
	case lexer.TNumber:
		n := p.tok.Num
		if err := p.advance(); err != nil {
			return Atom{}, wrapLexErr(err)
		}
		return Atom{Kind: AtomNum, Num: n}, nil
	case lexer.TIdent:
		switch p.tok.Text {
		case "null":
			if err := p.advance(); err != nil {
				return Atom{}, wrapLexErr(err)
			}
			return Atom{Kind: AtomNull}, nil
		case "true", "false":
			b := p.tok.Text == "true"
			if err := p.advance(); err != nil {
				return Atom{}, wrapLexErr(err)
			}
			return Atom{Kind: AtomBool, Bool: b}, nil
		default:
			path, err := p.parsePath()
			if err != nil {
				return Atom{}, err
			}
			idx := strings.Index(path, "::")
			if idx < 0 {
				return Atom{}, &Error{Line: p.tok.Line, Col: p.tok.Col, Msg: fmt.Sprintf("malformed ref %q: missing '::'", path)}
			}
			return Atom{Kind: AtomRef, RefNS: path[:idx], RefName: path[idx+2:]}, nil
		}
	default:
		return Atom{}, &Error{Line: p.tok.Line, Col: p.tok.Col, Msg: "expected a value (null, bool, number, string, or ref)"}
	}
}
