package parser

import (
	"fmt"

	"github.com/opal-lang/beast/runtime/lexer"
)

// describe names a token the way diagnostics print it: "')'",
// "integer 5", "function id $main", "end of file".
func describe(tok lexer.Token) string {
	switch tok.Type {
	case lexer.EOF:
		return "end of file"
	case lexer.LPAREN, lexer.RPAREN,
		lexer.LT, lexer.LT_EQ, lexer.GT, lexer.GT_EQ, lexer.EQ_EQ, lexer.NOT_EQ:
		return "'" + tok.Symbol() + "'"
	case lexer.FUNC_ID:
		return "function id " + tok.String()
	case lexer.CONST_ID:
		return "constant id " + tok.String()
	case lexer.ATOM:
		return "atom " + tok.String()
	case lexer.INTEGER:
		return "integer " + tok.String()
	case lexer.STRING:
		return "string " + tok.String()
	case lexer.TYPE:
		return "type " + tok.String()
	case lexer.PATH:
		return "module path " + tok.String()
	case lexer.IDENTIFIER:
		return fmt.Sprintf("%q", tok.String())
	case lexer.IMPORT, lexer.AS, lexer.FROM, lexer.CONST, lexer.FUNC,
		lexer.EXPORT, lexer.WHILE, lexer.IF, lexer.ELSE:
		return "keyword " + tok.String()
	}
	return tok.Type.String()
}
