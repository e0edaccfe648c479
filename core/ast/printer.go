package ast

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const indent = "  "

// Format renders m in canonical form. Top-level fields keep their source
// order; function bodies get one instruction per line with nested blocks
// indented. Parsing the output yields a structurally identical module.
func Format(m *Module) string {
	fields := make([]Node, 0, len(m.Imports)+len(m.Constants)+len(m.Functions)+len(m.Exports))
	for _, i := range m.Imports {
		fields = append(fields, i)
	}
	for _, c := range m.Constants {
		fields = append(fields, c)
	}
	for _, f := range m.Functions {
		fields = append(fields, f)
	}
	for _, e := range m.Exports {
		fields = append(fields, e)
	}
	// Nodes built in memory have zero offsets and stay in category order.
	sort.SliceStable(fields, func(i, j int) bool {
		return fields[i].Position().Offset < fields[j].Position().Offset
	})

	var b strings.Builder
	var prev Node
	for _, n := range fields {
		if prev != nil {
			_, prevFunc := prev.(*Function)
			_, curFunc := n.(*Function)
			if prevFunc || curFunc {
				b.WriteByte('\n')
			}
		}
		if f, ok := n.(*Function); ok {
			formatFunction(&b, f)
		} else {
			b.WriteString(n.String())
		}
		b.WriteByte('\n')
		prev = n
	}
	return b.String()
}

func formatFunction(b *strings.Builder, f *Function) {
	b.WriteString("(func ")
	b.WriteString(f.Name)
	formatBody(b, f.Body, 1)
	b.WriteByte(')')
}

func formatBody(b *strings.Builder, seq []Instruction, depth int) {
	for _, in := range seq {
		b.WriteByte('\n')
		b.WriteString(strings.Repeat(indent, depth))
		switch in := in.(type) {
		case *While:
			b.WriteString("(while ")
			b.WriteString(in.Cond.String())
			formatBody(b, in.Body, depth+1)
			b.WriteByte(')')
		case *If:
			b.WriteString("(if ")
			b.WriteString(in.Cond.String())
			formatBody(b, in.Then, depth+1)
			if in.HasElse {
				b.WriteByte('\n')
				b.WriteString(strings.Repeat(indent, depth+1))
				b.WriteString("(else")
				formatBody(b, in.Else, depth+2)
				b.WriteByte(')')
			}
			b.WriteByte(')')
		default:
			b.WriteString(in.String())
		}
	}
}

// Quote renders s as a Beast string literal. Printable runes are kept,
// control bytes use the short escapes where one exists and a two-digit hex
// escape otherwise.
func Quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		switch {
		case r == '"':
			b.WriteString(`\"`)
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == utf8.RuneError && size == 1, r < 0x20, r == 0x7f:
			fmt.Fprintf(&b, `\%02x`, s[i])
		default:
			b.WriteString(s[i : i+size])
		}
		i += size
	}
	b.WriteByte('"')
	return b.String()
}
