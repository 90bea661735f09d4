package lexer_test

import (
	"testing"

	"github.com/oranpie/impcore/internal/lexer"
	"github.com/stretchr/testify/require"
)

func allTokens(t *testing.T, src string) []lexer.Token {
	t.Helper()
	l := lexer.New(src)
	var toks []lexer.Token
	for {
		tok, err := l.Next()
		require.NoError(t, err)
		toks = append(toks, tok)
		if tok.Kind == lexer.TEOF {
			return toks
		}
	}
}

func TestLexBasicStatement(t *testing.T) {
	toks := allTokens(t, `#call core::add a=local::a b=local::b out=local::c;`)
	kinds := make([]lexer.TokKind, 0, len(toks))
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
	}
	require.Equal(t, lexer.THash, kinds[0])
	require.Contains(t, kinds, lexer.TColonColon)
	require.Equal(t, lexer.TSemi, toks[len(toks)-2].Kind)
	require.Equal(t, lexer.TEOF, toks[len(toks)-1].Kind)
}

func TestLexStringEscapes(t *testing.T) {
	l := lexer.New(`"a\nb\tc\\d\"e"`)
	tok, err := l.Next()
	require.NoError(t, err)
	require.Equal(t, lexer.TString, tok.Kind)
	require.Equal(t, "a\nb\tc\\d\"e", tok.Text)
}

func TestLexUnterminatedString(t *testing.T) {
	l := lexer.New(`"abc`)
	_, err := l.Next()
	require.Error(t, err)
	var lexErr *lexer.Error
	require.ErrorAs(t, err, &lexErr)
}

func TestLexUnknownEscape(t *testing.T) {
	l := lexer.New(`"a\qb"`)
	_, err := l.Next()
	require.Error(t, err)
}

func TestLexNegativeAndDecimalNumbers(t *testing.T) {
	l := lexer.New(`-3.5 42`)
	tok, err := l.Next()
	require.NoError(t, err)
	require.Equal(t, lexer.TNumber, tok.Kind)
	require.InDelta(t, -3.5, tok.Num, 1e-9)

	tok, err = l.Next()
	require.NoError(t, err)
	require.InDelta(t, 42.0, tok.Num, 1e-9)
}
