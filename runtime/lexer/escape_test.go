package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnquote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"hi"`, "hi"},
		{`""`, ""},
		{`"a\tb\nc\r"`, "a\tb\nc\r"},
		{`"\"q\" \\ \'"`, `"q" \ '`},
		{`"\u{48}\u{1F600}"`, "H\U0001F600"},
		{`"\u41"`, "A"},
		{`"\ff\00"`, "\xff\x00"},
		{`"héllo"`, "héllo"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Unquote([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnquoteRejects(t *testing.T) {
	for _, in := range []string{``, `"`, `abc`, `"a"b"`, `"\q"`, `"\u{}"`, `"\u{D800}"`, `"\u{1234567}"`, `"\uZZ"`, `"\4"`} {
		_, err := Unquote([]byte(in))
		assert.ErrorIs(t, err, ErrSyntax, in)
	}
}

func TestEscapeLength(t *testing.T) {
	tests := []struct {
		in    string
		n     int
		valid bool
	}{
		{`\n`, 2, true},
		{`\u{10FFFF}x`, 10, true},
		{`\u{110000}`, 10, false},
		{`\u00`, 4, true},
		{`\7f`, 3, true},
		{`\x`, 2, false},
		{`\`, 1, false},
		{`\é`, 3, false},
	}

	for _, tt := range tests {
		n, ok := escapeLength([]byte(tt.in))
		assert.Equal(t, tt.n, n, tt.in)
		assert.Equal(t, tt.valid, ok, tt.in)
	}
}
