// Package lexer turns Beast source text into tokens.
//
// The lexer never stops early: malformed input becomes an ILLEGAL token and a
// LexError diagnostic, and scanning resumes after it. Errors() returns the
// diagnostics in the order their ILLEGAL tokens were produced.
package lexer

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/opal-lang/beast/core/ast"
	"github.com/opal-lang/beast/core/diag"
	"github.com/opal-lang/beast/core/invariant"
	"github.com/opal-lang/beast/core/types"
)

// LexerOpt represents a lexer configuration option
type LexerOpt func(*LexerConfig)

// TelemetryMode controls telemetry collection (production-safe)
type TelemetryMode int

const (
	TelemetryOff    TelemetryMode = iota // Zero overhead (default)
	TelemetryBasic                       // Token counts only
	TelemetryTiming                      // Token counts + timing per type
)

// LexerConfig holds lexer configuration
type LexerConfig struct {
	telemetry TelemetryMode
}

// WithTelemetryBasic enables basic telemetry (token counts only)
func WithTelemetryBasic() LexerOpt {
	return func(c *LexerConfig) {
		c.telemetry = TelemetryBasic
	}
}

// WithTelemetryTiming enables timing telemetry (counts + timing per type)
func WithTelemetryTiming() LexerOpt {
	return func(c *LexerConfig) {
		c.telemetry = TelemetryTiming
	}
}

// TokenTelemetry holds per-token type telemetry
type TokenTelemetry struct {
	Type      TokenType
	Count     int
	TotalTime time.Duration
}

// Lexer scans Beast source
type Lexer struct {
	input    []byte
	position int
	line     int
	column   int

	errors diag.List

	telemetryMode  TelemetryMode
	tokenTelemetry map[TokenType]*TokenTelemetry
}

// NewLexer creates a new lexer instance with optional configuration.
// Call Init before reading tokens.
func NewLexer(opts ...LexerOpt) *Lexer {
	config := &LexerConfig{}
	for _, opt := range opts {
		opt(config)
	}

	l := &Lexer{telemetryMode: config.telemetry}
	if config.telemetry > TelemetryOff {
		l.tokenTelemetry = make(map[TokenType]*TokenTelemetry)
	}
	l.Init(nil)
	return l
}

// Init resets the lexer with new input (following Go scanner pattern)
func (l *Lexer) Init(input []byte) {
	l.input = input
	l.position = 0
	l.line = 1
	l.column = 1
	l.errors = nil

	for k := range l.tokenTelemetry {
		delete(l.tokenTelemetry, k)
	}
}

// Tokenize scans all of input. The token slice always ends with EOF.
func Tokenize(input []byte) ([]Token, diag.List) {
	l := NewLexer()
	l.Init(input)
	return l.GetTokens(), l.Errors()
}

// NextToken returns the next token. After the end of input it keeps
// returning EOF.
func (l *Lexer) NextToken() Token {
	var start time.Time
	if l.telemetryMode >= TelemetryTiming {
		start = time.Now()
	}

	prev := l.position
	tok := l.lexToken()
	invariant.Invariant(l.position > prev || tok.Type == EOF, "lexer must advance")

	if l.telemetryMode > TelemetryOff {
		t, ok := l.tokenTelemetry[tok.Type]
		if !ok {
			t = &TokenTelemetry{Type: tok.Type}
			l.tokenTelemetry[tok.Type] = t
		}
		t.Count++
		if l.telemetryMode >= TelemetryTiming {
			t.TotalTime += time.Since(start)
		}
	}
	return tok
}

// GetTokens returns every remaining token, ending with EOF
func (l *Lexer) GetTokens() []Token {
	tokens := make([]Token, 0, len(l.input)/4+1)
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == EOF {
			return tokens
		}
	}
}

// Errors returns the lexical diagnostics found so far, one per ILLEGAL token.
func (l *Lexer) Errors() diag.List {
	return l.errors
}

// GetTokenTelemetry returns a copy of the per-token type telemetry, or nil
// when telemetry is off.
func (l *Lexer) GetTokenTelemetry() map[TokenType]*TokenTelemetry {
	if l.telemetryMode == TelemetryOff {
		return nil
	}
	result := make(map[TokenType]*TokenTelemetry, len(l.tokenTelemetry))
	for k, v := range l.tokenTelemetry {
		c := *v
		result[k] = &c
	}
	return result
}

func (l *Lexer) pos() types.Position {
	return types.Position{Line: l.line, Column: l.column, Offset: l.position}
}

// lexToken performs the actual tokenization work
func (l *Lexer) lexToken() Token {
	hadWhitespace := l.skipWhitespace()

	if l.position >= len(l.input) {
		return Token{Type: EOF, Position: l.pos(), HasSpaceBefore: hadWhitespace}
	}

	start := l.pos()
	ch := l.currentChar()

	var tok Token
	switch {
	case ch == '(' && l.peekChar() == ';':
		tok = l.lexBlockComment(start)
	case ch == '(':
		l.advanceChar()
		tok = Token{Type: LPAREN, Position: start}
	case ch == ')':
		l.advanceChar()
		tok = Token{Type: RPAREN, Position: start}
	case ch == ';' && l.peekChar() == ';':
		tok = l.lexLineComment(start)
	case ch == '$':
		tok = l.lexSigilIdentifier(start, FUNC_ID)
	case ch == '%':
		tok = l.lexSigilIdentifier(start, CONST_ID)
	case ch == ':':
		tok = l.lexSigilIdentifier(start, ATOM)
	case ch == '"':
		tok = l.lexString(start)
	case ch < 128 && isDigit[ch]:
		tok = l.lexNumber(start)
	case (ch == '+' || ch == '-') && l.peekChar() < 128 && isDigit[l.peekChar()]:
		tok = l.lexNumber(start)
	case ch < 128 && isIdentStart[ch]:
		tok = l.lexWord(start)
	case ch == '<' || ch == '>' || ch == '=' || ch == '!':
		tok = l.lexComparison(start)
	default:
		tok = l.lexInvalidCharacter(start)
	}
	tok.HasSpaceBefore = hadWhitespace
	return tok
}

// skipWhitespace skips whitespace, returning true if any was skipped
func (l *Lexer) skipWhitespace() bool {
	start := l.position
	for l.position < len(l.input) {
		ch := l.input[l.position]
		if ch >= 128 || !isWhitespace[ch] {
			break
		}
		l.advanceChar()
	}
	return l.position > start
}

// currentChar returns the current byte (ASCII fast path)
func (l *Lexer) currentChar() byte {
	if l.position >= len(l.input) {
		return 0 // EOF
	}
	return l.input[l.position]
}

// peekChar returns the byte after the current one
func (l *Lexer) peekChar() byte {
	if l.position+1 >= len(l.input) {
		return 0
	}
	return l.input[l.position+1]
}

// advanceChar moves to the next character, handling Unicode for position tracking only
func (l *Lexer) advanceChar() {
	if l.position >= len(l.input) {
		return
	}

	ch := l.input[l.position]
	if ch < 128 {
		if ch == '\n' {
			l.line++
			l.column = 1
		} else {
			l.column++
		}
		l.position++
		return
	}

	_, size := utf8.DecodeRune(l.input[l.position:])
	if size <= 0 {
		size = 1
	}
	l.position += size
	l.column++ // Unicode characters count as 1 column for display
}

// illegal records a lexical error and returns an ILLEGAL token covering
// input[start.Offset:l.position].
func (l *Lexer) illegal(start, at types.Position, code diag.Code, format string, args ...interface{}) Token {
	l.errors = append(l.errors, diag.Diagnostic{
		Kind:     diag.LexError,
		Code:     code,
		Position: at,
		Message:  fmt.Sprintf(format, args...),
	})
	return Token{Type: ILLEGAL, Text: l.input[start.Offset:l.position], Position: start}
}

// skipWord consumes input up to the next delimiter.
func (l *Lexer) skipWord() {
	for !atDelimiter(l.input, l.position) {
		l.advanceChar()
	}
}

// lexSigilIdentifier reads $name, %name or :name
func (l *Lexer) lexSigilIdentifier(start types.Position, typ TokenType) Token {
	l.advanceChar() // sigil

	nameStart := l.position
	for l.position < len(l.input) {
		ch := l.input[l.position]
		if ch >= 128 || !isIdentPart[ch] {
			break
		}
		l.advanceChar()
	}

	if l.position == nameStart || !atDelimiter(l.input, l.position) {
		l.skipWord()
		return l.illegal(start, start, diag.CodeInvalidIdentifier,
			"invalid identifier %q", l.input[start.Offset:l.position])
	}
	return Token{Type: typ, Text: l.input[start.Offset:l.position], Position: start}
}

// lexWord reads a keyword, type, mnemonic or dotted module path
func (l *Lexer) lexWord(start types.Position) Token {
	dotted := false
	for l.position < len(l.input) {
		ch := l.input[l.position]
		if ch == '.' {
			dotted = true
			l.advanceChar()
			continue
		}
		if ch >= 128 || !isIdentPart[ch] {
			break
		}
		l.advanceChar()
	}

	if !atDelimiter(l.input, l.position) {
		l.skipWord()
		return l.illegal(start, start, diag.CodeInvalidIdentifier,
			"invalid identifier %q", l.input[start.Offset:l.position])
	}

	text := l.input[start.Offset:l.position]
	if dotted {
		return Token{Type: PATH, Text: text, Position: start}
	}
	if kw, ok := Keywords[string(text)]; ok {
		return Token{Type: kw, Text: text, Position: start}
	}
	return Token{Type: IDENTIFIER, Text: text, Position: start}
}

// lexNumber reads a signed or unsigned numeral, with optional "_" digit
// separators and a "0x" hex prefix.
func (l *Lexer) lexNumber(start types.Position) Token {
	if ch := l.currentChar(); ch == '+' || ch == '-' {
		l.advanceChar()
	}
	for l.position < len(l.input) {
		ch := l.input[l.position]
		if ch >= 128 || !isIdentPart[ch] {
			break
		}
		l.advanceChar()
	}
	if !atDelimiter(l.input, l.position) {
		l.skipWord()
	}

	text := l.input[start.Offset:l.position]
	if _, err := ast.ParseLiteral(string(text)); err != nil {
		return l.illegal(start, start, diag.CodeInvalidNumber, "invalid number %q", text)
	}
	return Token{Type: INTEGER, Text: text, Position: start}
}

// lexComparison reads <, <=, >, >=, == or !=
func (l *Lexer) lexComparison(start types.Position) Token {
	ch := l.currentChar()
	two := l.peekChar() == '='
	if two {
		l.advanceChar()
		l.advanceChar()
		return Token{Type: ComparisonTokens[string([]byte{ch, '='})], Position: start}
	}
	if ch == '<' || ch == '>' {
		l.advanceChar()
		return Token{Type: ComparisonTokens[string(ch)], Position: start}
	}
	return l.lexInvalidCharacter(start)
}

func (l *Lexer) lexInvalidCharacter(start types.Position) Token {
	r, _ := utf8.DecodeRune(l.input[l.position:])
	l.advanceChar()
	return l.illegal(start, start, diag.CodeInvalidCharacter, "invalid character %q", r)
}

// lexString reads a double-quoted string, validating escapes. The token
// text includes the quotes; use Unquote to decode it.
func (l *Lexer) lexString(start types.Position) Token {
	l.advanceChar() // opening quote

	for l.position < len(l.input) {
		ch := l.currentChar()
		switch ch {
		case '"':
			l.advanceChar()
			return Token{Type: STRING, Text: l.input[start.Offset:l.position], Position: start}
		case '\n':
			return l.illegal(start, start, diag.CodeUnterminatedString, "unterminated string")
		case '\\':
			escPos := l.pos()
			n, ok := escapeLength(l.input[l.position:])
			for l.position < escPos.Offset+n {
				l.advanceChar()
			}
			if !ok {
				l.skipString()
				return l.illegal(start, escPos, diag.CodeInvalidEscape,
					"invalid escape sequence %q", l.input[escPos.Offset:escPos.Offset+n])
			}
		default:
			l.advanceChar()
		}
	}
	return l.illegal(start, start, diag.CodeUnterminatedString, "unterminated string")
}

// skipString consumes the rest of a string after an error, up to and
// including the closing quote if it is on the same line.
func (l *Lexer) skipString() {
	for l.position < len(l.input) {
		switch l.currentChar() {
		case '\n':
			return
		case '"':
			l.advanceChar()
			return
		case '\\':
			l.advanceChar()
		}
		l.advanceChar()
	}
}

// lexLineComment reads ;; up to the end of the line
func (l *Lexer) lexLineComment(start types.Position) Token {
	for l.position < len(l.input) && l.currentChar() != '\n' {
		l.advanceChar()
	}
	return Token{Type: COMMENT, Text: l.input[start.Offset:l.position], Position: start}
}

// lexBlockComment reads (; ... ;). Block comments do not nest.
func (l *Lexer) lexBlockComment(start types.Position) Token {
	l.advanceChar() // (
	l.advanceChar() // ;
	for l.position < len(l.input) {
		if l.currentChar() == ';' && l.peekChar() == ')' {
			l.advanceChar()
			l.advanceChar()
			return Token{Type: COMMENT, Text: l.input[start.Offset:l.position], Position: start}
		}
		l.advanceChar()
	}
	return l.illegal(start, start, diag.CodeUnterminatedComment, "unterminated block comment")
}
