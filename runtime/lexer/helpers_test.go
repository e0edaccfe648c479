package lexer

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// newTestLexer is a test helper that creates and initializes a lexer with string input
func newTestLexer(input string, opts ...LexerOpt) *Lexer {
	lex := NewLexer(opts...)
	lex.Init([]byte(input))
	return lex
}

// tokenExpectation represents an expected token for testing
type tokenExpectation struct {
	Type   TokenType
	Text   string
	Line   int
	Column int
}

// assertTokens compares actual tokens with expected, providing clear error messages
func assertTokens(t *testing.T, name string, input string, expected []tokenExpectation) {
	t.Helper()

	tokens := newTestLexer(input).GetTokens()
	var actual []tokenExpectation
	for _, token := range tokens {
		actual = append(actual, tokenExpectation{
			Type:   token.Type,
			Text:   token.String(),
			Line:   token.Position.Line,
			Column: token.Position.Column,
		})
	}

	if diff := cmp.Diff(expected, actual); diff != "" {
		t.Errorf("%s: token mismatch (-expected +actual):\n%s", name, diff)
	}
}
