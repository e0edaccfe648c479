package lexer

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"
)

// escapeLength measures the escape sequence at the start of b, which must
// begin with a backslash. It returns the length in bytes and whether the
// sequence is valid. Accepted forms:
//
//	\t \n \r \" \' \\   short escapes
//	\u{H..H}            Unicode scalar value, 1 to 6 hex digits
//	\uHH                code point U+0000 to U+00FF
//	\HH                 raw byte
func escapeLength(b []byte) (int, bool) {
	if len(b) < 2 {
		return 1, false
	}
	switch b[1] {
	case 't', 'n', 'r', '"', '\'', '\\':
		return 2, true
	case 'u':
		if len(b) > 2 && b[2] == '{' {
			i := 3
			for i < len(b) && i-3 < 6 && b[i] < 128 && isHexDigit[b[i]] {
				i++
			}
			if i == 3 || i >= len(b) || b[i] != '}' {
				return i, false
			}
			v, err := strconv.ParseUint(string(b[3:i]), 16, 32)
			if err != nil || !utf8.ValidRune(rune(v)) {
				return i + 1, false
			}
			return i + 1, true
		}
		if len(b) > 3 && isHex(b[2]) && isHex(b[3]) {
			return 4, true
		}
		return 2, false
	}
	if len(b) > 2 && isHex(b[1]) && isHex(b[2]) {
		return 3, true
	}
	_, size := utf8.DecodeRune(b[1:])
	return 1 + size, false
}

func isHex(ch byte) bool {
	return ch < 128 && isHexDigit[ch]
}

// ErrSyntax is returned by Unquote for text that is not a valid string token.
var ErrSyntax = errors.New("invalid string literal")

// Unquote decodes the text of a STRING token, quotes included.
func Unquote(text []byte) (string, error) {
	if len(text) < 2 || text[0] != '"' || text[len(text)-1] != '"' {
		return "", ErrSyntax
	}
	body := text[1 : len(text)-1]

	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); {
		ch := body[i]
		if ch == '"' || ch == '\n' {
			return "", ErrSyntax
		}
		if ch != '\\' {
			b.WriteByte(ch)
			i++
			continue
		}

		n, ok := escapeLength(body[i:])
		if !ok {
			return "", ErrSyntax
		}
		esc := body[i : i+n]
		switch {
		case n == 2:
			b.WriteByte(shortEscapes[esc[1]])
		case esc[1] == 'u' && esc[2] == '{':
			v, _ := strconv.ParseUint(string(esc[3:n-1]), 16, 32)
			b.WriteRune(rune(v))
		case esc[1] == 'u':
			v, _ := strconv.ParseUint(string(esc[2:4]), 16, 8)
			b.WriteRune(rune(v))
		default:
			v, _ := strconv.ParseUint(string(esc[1:3]), 16, 8)
			b.WriteByte(byte(v))
		}
		i += n
	}
	return b.String(), nil
}

var shortEscapes = map[byte]byte{
	't':  '\t',
	'n':  '\n',
	'r':  '\r',
	'"':  '"',
	'\'': '\'',
	'\\': '\\',
}
