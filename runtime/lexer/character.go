package lexer

// ASCII character lookup tables for fast classification (zero-allocation)
//
// Use inline bounds-checked lookups:
//
//	if ch < 128 && isIdentPart[ch] { ... }
//
// Beast source is ASCII outside of string literals and comments.
var (
	isWhitespace [128]bool // Space, tab, carriage return, newline
	isLetter     [128]bool // a-z, A-Z, _
	isDigit      [128]bool // 0-9
	isHexDigit   [128]bool // 0-9, a-f, A-F
	isIdentStart [128]bool // Letter or _
	isIdentPart  [128]bool // Letter, digit or _
	isPathPart   [128]bool // a-z or _ (module path segments)
	isDelimiter  [128]bool // Characters that end a word
)

func init() {
	for i := 0; i < 128; i++ {
		ch := byte(i)

		isWhitespace[i] = ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n' || ch == '\f'
		isLetter[i] = ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch == '_'
		isDigit[i] = '0' <= ch && ch <= '9'
		isHexDigit[i] = isDigit[i] || ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F')
		isIdentStart[i] = isLetter[i]
		isIdentPart[i] = isLetter[i] || isDigit[i]
		isPathPart[i] = ('a' <= ch && ch <= 'z') || ch == '_'
		isDelimiter[i] = isWhitespace[i] || ch == '(' || ch == ')' || ch == ';' || ch == '"'
	}
}

// atDelimiter reports whether position i of input ends a word.
func atDelimiter(input []byte, i int) bool {
	if i >= len(input) {
		return true
	}
	ch := input[i]
	return ch < 128 && isDelimiter[ch]
}

// IsModulePath reports whether s is a dotted lowercase module path:
// one or more [a-z_]+ segments separated by dots.
func IsModulePath(s string) bool {
	if s == "" {
		return false
	}
	segment := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '.' {
			if segment == 0 {
				return false
			}
			segment = 0
			continue
		}
		if ch >= 128 || !isPathPart[ch] {
			return false
		}
		segment++
	}
	return segment > 0
}
