package ast

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/opal-lang/beast/core/types"
)

// Literal is a numeral as written, with its decoded sign and magnitude.
// The value is only interpreted against a Type by the validator.
type Literal struct {
	Text      string // Source spelling, e.g. "0xff_ff" or "-12"
	Negative  bool
	Magnitude uint64
	Overflow  bool // Magnitude does not fit in 64 bits
	Pos       types.Position
}

// ParseLiteral decodes a signed or unsigned numeral: an optional sign, then
// "0x" followed by hex digits or plain decimal digits, with "_" allowed
// between digits.
func ParseLiteral(text string) (Literal, error) {
	lit := Literal{Text: text}
	s := text
	if s != "" && (s[0] == '+' || s[0] == '-') {
		lit.Negative = s[0] == '-'
		s = s[1:]
	}

	base := 10
	if len(s) > 2 && s[0] == '0' && s[1] == 'x' {
		base = 16
		s = s[2:]
	}
	if s == "" || s[0] == '_' || s[len(s)-1] == '_' || strings.Contains(s, "__") {
		return Literal{}, fmt.Errorf("invalid numeral %q", text)
	}
	digits := strings.ReplaceAll(s, "_", "")

	n, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			lit.Overflow = true
			return lit, nil
		}
		return Literal{}, fmt.Errorf("invalid numeral %q", text)
	}
	lit.Magnitude = n
	return lit, nil
}

// Fits reports whether the literal is representable in t.
func (l Literal) Fits(t types.Type) bool {
	return !l.Overflow && t.Fits(l.Negative, l.Magnitude)
}

// Int64 returns the literal as a signed value. ok is false if it does not fit.
func (l Literal) Int64() (v int64, ok bool) {
	if l.Overflow {
		return 0, false
	}
	if l.Negative {
		switch {
		case l.Magnitude > 1<<63:
			return 0, false
		case l.Magnitude == 1<<63:
			return math.MinInt64, true
		}
		return -int64(l.Magnitude), true
	}
	if l.Magnitude > 1<<63-1 {
		return 0, false
	}
	return int64(l.Magnitude), true
}

func (l Literal) Position() types.Position { return l.Pos }

func (l Literal) String() string {
	if l.Text != "" {
		return l.Text
	}
	if l.Negative {
		return "-" + strconv.FormatUint(l.Magnitude, 10)
	}
	return strconv.FormatUint(l.Magnitude, 10)
}

// Operand is either a literal or a reference to a constant.
type Operand struct {
	Literal *Literal
	Const   *ConstRef
}

// NewLiteralOperand wraps l as an operand.
func NewLiteralOperand(l Literal) Operand { return Operand{Literal: &l} }

// NewConstOperand wraps a reference to the constant name.
func NewConstOperand(name string, pos types.Position) Operand {
	return Operand{Const: &ConstRef{Name: name, Pos: pos}}
}

func (o Operand) Position() types.Position {
	if o.Const != nil {
		return o.Const.Pos
	}
	if o.Literal != nil {
		return o.Literal.Pos
	}
	return types.Position{}
}

func (o Operand) String() string {
	if o.Const != nil {
		return o.Const.Name
	}
	if o.Literal != nil {
		return o.Literal.String()
	}
	return "<nil>"
}

// Value returns the literal behind the operand: the literal itself, or the
// resolved constant's value. ok is false for an unresolved reference.
func (o Operand) Value() (Literal, bool) {
	if o.Literal != nil {
		return *o.Literal, true
	}
	if o.Const != nil && o.Const.Decl != nil {
		return o.Const.Decl.Value, true
	}
	return Literal{}, false
}

// ConstRef names a constant. Decl is filled in by the validator.
type ConstRef struct {
	Name string
	Pos  types.Position
	Decl *Constant
}
