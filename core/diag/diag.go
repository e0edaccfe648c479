// Package diag defines the structured diagnostics produced by every Beast
// stage. A failure is always a (Kind, Position, Message) triple, enriched with
// a stable code and optional hints for the user.
package diag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opal-lang/beast/core/types"
)

// Kind is the top-level error taxonomy.
type Kind uint8

const (
	LexError Kind = iota + 1
	SyntaxError
	NameError
	TypeError
	// StructureError is reserved for grammar revisions whose nesting cannot
	// be expressed purely structurally. No current stage emits it.
	StructureError
)

func (k Kind) String() string {
	switch k {
	case LexError:
		return "LexError"
	case SyntaxError:
		return "SyntaxError"
	case NameError:
		return "NameError"
	case TypeError:
		return "TypeError"
	case StructureError:
		return "StructureError"
	default:
		return "Error"
	}
}

// Fatal reports whether diagnostics of this kind abort the whole module.
func (k Kind) Fatal() bool {
	return k == LexError || k == SyntaxError
}

// Code identifies the precise failure within a Kind.
type Code string

const (
	// Lexical
	CodeUnterminatedString  Code = "unterminated-string"
	CodeInvalidEscape       Code = "invalid-escape"
	CodeUnterminatedComment Code = "unterminated-comment"
	CodeInvalidCharacter    Code = "invalid-character"
	CodeInvalidNumber       Code = "invalid-number"
	CodeInvalidIdentifier   Code = "invalid-identifier"

	// Syntax
	CodeUnbalancedParens   Code = "unbalanced-parens"
	CodeUnknownKeyword     Code = "unknown-keyword"
	CodeMissingOperand     Code = "missing-operand"
	CodeMalformedCondition Code = "malformed-condition"
	CodeUnexpectedToken    Code = "unexpected-token"
	CodeTrailingInput      Code = "trailing-input"
	CodeDialect            Code = "dialect"

	// Name
	CodeDuplicate       Code = "duplicate"
	CodeUndefined       Code = "undefined"
	CodeUnknownRegister Code = "unknown-register"

	// Type
	CodeLiteralOutOfRange   Code = "literal-out-of-range"
	CodeStackUnderflow      Code = "stack-underflow"
	CodeOperandTypeMismatch Code = "operand-type-mismatch"
	CodeUnbalancedLoopStack Code = "unbalanced-loop-stack"
	CodeBranchStackMismatch Code = "branch-stack-mismatch"
	CodeMissingReturn       Code = "missing-return"
)

// Diagnostic is one reported problem with rich context for user-friendly
// messages.
type Diagnostic struct {
	// Classification
	Kind Kind
	Code Code

	// Location
	Filename string         // Source filename (empty for stdin/string)
	Position types.Position // Line, column, offset
	Function string         // Enclosing function id, for semantic errors

	// Core error info
	Message string // Clear, specific: "stack underflow"
	Context string // What we were checking: "add instruction"

	// What went wrong
	Expected []string // Human-readable names of what would be valid
	Got      string   // What was found instead

	// How to fix it
	Suggestion string // Actionable fix: "did you mean %x?"
	Example    string // Valid syntax: "(push u8 1)"
	Note       string // Optional explanation
}

// Error renders the diagnostic on a single line:
//
//	file.beast:3:15: TypeError[stack-underflow]: message
func (d Diagnostic) Error() string {
	var b strings.Builder
	if d.Filename != "" {
		b.WriteString(d.Filename)
		b.WriteByte(':')
	}
	if d.Position.IsValid() {
		fmt.Fprintf(&b, "%d:%d: ", d.Position.Line, d.Position.Column)
	} else if d.Filename != "" {
		b.WriteByte(' ')
	}
	b.WriteString(d.Kind.String())
	if d.Code != "" {
		fmt.Fprintf(&b, "[%s]", d.Code)
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// Is lets errors.Is match a diagnostic against a template carrying only a
// Kind and/or Code.
func (d Diagnostic) Is(target error) bool {
	t, ok := target.(Diagnostic)
	if !ok {
		return false
	}
	if t.Kind != 0 && t.Kind != d.Kind {
		return false
	}
	if t.Code != "" && t.Code != d.Code {
		return false
	}
	return t.Kind != 0 || t.Code != ""
}

// List is an ordered collection of diagnostics. A non-empty List is an error.
type List []Diagnostic

func (l List) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	var b strings.Builder
	for i, d := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(d.Error())
	}
	return b.String()
}

// Unwrap exposes each diagnostic to errors.Is and errors.As.
func (l List) Unwrap() []error {
	errs := make([]error, len(l))
	for i, d := range l {
		errs[i] = d
	}
	return errs
}

// Err returns l as an error, or nil when l is empty.
func (l List) Err() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// Sort orders diagnostics by filename then source offset. Diagnostics at the
// same place keep their relative order.
func (l List) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		if l[i].Filename != l[j].Filename {
			return l[i].Filename < l[j].Filename
		}
		return l[i].Position.Offset < l[j].Position.Offset
	})
}

// HasFatal reports whether any diagnostic aborted parsing.
func (l List) HasFatal() bool {
	for _, d := range l {
		if d.Kind.Fatal() {
			return true
		}
	}
	return false
}

// Codes returns the code of every diagnostic, in order. Handy in tests.
func (l List) Codes() []Code {
	codes := make([]Code, len(l))
	for i, d := range l {
		codes[i] = d.Code
	}
	return codes
}

// WithFilename returns a copy of l with Filename set on every entry.
func (l List) WithFilename(name string) List {
	out := make(List, len(l))
	for i, d := range l {
		d.Filename = name
		out[i] = d
	}
	return out
}

// FormatExpected joins names the way a person would say them:
// "a", "a or b", "a, b, or c".
func FormatExpected(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " or " + names[1]
	}
	return strings.Join(names[:len(names)-1], ", ") + ", or " + names[len(names)-1]
}
