// Package ast defines the typed module produced by the builder and refined by
// the validator. Every node carries the source position it was built from.
//
// Identifiers keep their sigil: functions and bindings are "$name", constants
// are "%name", atoms are ":name".
package ast

import (
	"strings"

	"github.com/opal-lang/beast/core/types"
)

// Node represents any node in the AST
type Node interface {
	String() string
	Position() types.Position
}

// Module is the top-level container for one source file.
type Module struct {
	Name      string // Dotted module path, set by the loader ("" for ad-hoc sources)
	Imports   []*Import
	Constants []*Constant
	Functions []*Function
	Exports   []*Export
	Pos       types.Position
}

func (m *Module) Position() types.Position { return m.Pos }

func (m *Module) String() string { return Format(m) }

// Function returns the function declared as name, or nil.
func (m *Module) Function(name string) *Function {
	for _, f := range m.Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Constant returns the constant declared as name, or nil.
func (m *Module) Constant(name string) *Constant {
	for _, c := range m.Constants {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Import binds an external function into the module namespace.
type Import struct {
	Name   string // Function id in the origin module
	Alias  string // Optional local name
	Origin string // Dotted module path, or the unquoted string in the flags dialect
	Quoted bool   // Origin was written as a string literal
	Pos    types.Position
}

// Binding returns the name the import is known by inside the module.
func (i *Import) Binding() string {
	if i.Alias != "" {
		return i.Alias
	}
	return i.Name
}

func (i *Import) Position() types.Position { return i.Pos }

func (i *Import) String() string {
	var b strings.Builder
	b.WriteString("(import ")
	b.WriteString(i.Name)
	if i.Alias != "" {
		b.WriteString(" as ")
		b.WriteString(i.Alias)
	}
	b.WriteString(" from ")
	if i.Quoted {
		b.WriteString(Quote(i.Origin))
	} else {
		b.WriteString(i.Origin)
	}
	b.WriteByte(')')
	return b.String()
}

// Export publishes a declared or imported function.
type Export struct {
	Name  string
	Alias string
	Pos   types.Position

	// External is set by the validator when Name resolves to an import.
	External *Import
}

// Binding returns the name the export is published under.
func (e *Export) Binding() string {
	if e.Alias != "" {
		return e.Alias
	}
	return e.Name
}

func (e *Export) Position() types.Position { return e.Pos }

func (e *Export) String() string {
	if e.Alias != "" {
		return "(export " + e.Name + " as " + e.Alias + ")"
	}
	return "(export " + e.Name + ")"
}

// Constant is a named literal. Type is types.Invalid when the declaration
// omitted it.
type Constant struct {
	Name  string
	Type  types.Type
	Value Literal
	Pos   types.Position
}

// Typed reports whether the declaration carried an explicit type.
func (c *Constant) Typed() bool { return c.Type != types.Invalid }

func (c *Constant) Position() types.Position { return c.Pos }

func (c *Constant) String() string {
	if c.Typed() {
		return "(const " + c.Name + " " + c.Type.String() + " " + c.Value.String() + ")"
	}
	return "(const " + c.Name + " " + c.Value.String() + ")"
}

// Function is a named instruction tree.
type Function struct {
	Name string
	Body []Instruction
	Pos  types.Position

	// ExitStack is the abstract operand stack at the first top-level ret,
	// recorded by the validator.
	ExitStack []types.Type
}

func (f *Function) Position() types.Position { return f.Pos }

func (f *Function) String() string {
	var b strings.Builder
	b.WriteString("(func ")
	b.WriteString(f.Name)
	for _, in := range f.Body {
		b.WriteByte(' ')
		b.WriteString(in.String())
	}
	b.WriteByte(')')
	return b.String()
}
