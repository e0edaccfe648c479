package lexer

import "github.com/opal-lang/beast/core/types"

// TokenType represents lexical tokens of the Beast assembly language
type TokenType int

const (
	// Special tokens
	EOF TokenType = iota
	ILLEGAL

	// Punctuation
	LPAREN // (
	RPAREN // )

	// Identifiers
	FUNC_ID    // $name - function ids and import bindings
	CONST_ID   // %name - constant ids
	ATOM       // :name - register and syscall tags
	IDENTIFIER // bare word: instruction mnemonics, flag conditions, path segments
	PATH       // a.b.c - dotted module path

	// Keywords
	IMPORT // import
	AS     // as
	FROM   // from
	CONST  // const
	FUNC   // func
	EXPORT // export
	WHILE  // while
	IF     // if
	ELSE   // else
	TYPE   // u8, u16, i8, i16

	// Comparison operators (conditions)
	LT     // <
	LT_EQ  // <=
	GT     // >
	GT_EQ  // >=
	EQ_EQ  // ==
	NOT_EQ // !=

	// Literals
	INTEGER // 42, -7, 0xff_ff
	STRING  // "quoted"

	// Comments
	COMMENT // ;; line or (; block ;)
)

// Token represents a lexical token
type Token struct {
	Type     TokenType
	Text     []byte // Slice of the input; nil for self-identifying tokens
	Position types.Position
	// HasSpaceBefore is a formatting hint, not semantic data.
	HasSpaceBefore bool
}

// String returns the token text as a string (for testing and debugging)
func (t Token) String() string {
	return string(t.Text)
}

// Symbol returns the token's text, or its fixed spelling for punctuation.
func (t Token) Symbol() string {
	if len(t.Text) > 0 {
		return string(t.Text)
	}
	switch t.Type {
	case LPAREN:
		return "("
	case RPAREN:
		return ")"
	case LT:
		return "<"
	case LT_EQ:
		return "<="
	case GT:
		return ">"
	case GT_EQ:
		return ">="
	case EQ_EQ:
		return "=="
	case NOT_EQ:
		return "!="
	case EOF:
		return "end of file"
	}
	return t.Type.String()
}

var tokenNames = [...]string{
	EOF:        "EOF",
	ILLEGAL:    "ILLEGAL",
	LPAREN:     "LPAREN",
	RPAREN:     "RPAREN",
	FUNC_ID:    "FUNC_ID",
	CONST_ID:   "CONST_ID",
	ATOM:       "ATOM",
	IDENTIFIER: "IDENTIFIER",
	PATH:       "PATH",
	IMPORT:     "IMPORT",
	AS:         "AS",
	FROM:       "FROM",
	CONST:      "CONST",
	FUNC:       "FUNC",
	EXPORT:     "EXPORT",
	WHILE:      "WHILE",
	IF:         "IF",
	ELSE:       "ELSE",
	TYPE:       "TYPE",
	LT:         "LT",
	LT_EQ:      "LT_EQ",
	GT:         "GT",
	GT_EQ:      "GT_EQ",
	EQ_EQ:      "EQ_EQ",
	NOT_EQ:     "NOT_EQ",
	INTEGER:    "INTEGER",
	STRING:     "STRING",
	COMMENT:    "COMMENT",
}

func (t TokenType) String() string {
	if t >= 0 && int(t) < len(tokenNames) && tokenNames[t] != "" {
		return tokenNames[t]
	}
	return "UNKNOWN"
}

// Keywords maps reserved words to their token types
var Keywords = map[string]TokenType{
	"import": IMPORT,
	"as":     AS,
	"from":   FROM,
	"const":  CONST,
	"func":   FUNC,
	"export": EXPORT,
	"while":  WHILE,
	"if":     IF,
	"else":   ELSE,
	"u8":     TYPE,
	"u16":    TYPE,
	"i8":     TYPE,
	"i16":    TYPE,
}

// ComparisonTokens maps condition operators to their token types
var ComparisonTokens = map[string]TokenType{
	"<":  LT,
	"<=": LT_EQ,
	">":  GT,
	">=": GT_EQ,
	"==": EQ_EQ,
	"!=": NOT_EQ,
}
