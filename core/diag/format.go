package diag

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[90m"
)

// Colorize wraps text in ANSI color codes if color is enabled
func Colorize(text, color string, useColor bool) string {
	if !useColor {
		return text
	}
	return color + text + ColorReset
}

// ErrorFormatter renders diagnostics with a source snippet and caret.
//
// Compact output:
//
//	main.beast:3:15: TypeError: stack underflow in add instruction
//	 3 | (func $i (add u8) (ret))
//	   |               ^ expected 2 operands
//	   did you mean ...
//
// Detailed output adds a "-->" location line and labelled hints.
type ErrorFormatter struct {
	Source   []byte // Original source, used for the snippet
	Filename string // Overrides Diagnostic.Filename when set
	Compact  bool
	Color    bool
}

// Format renders a single diagnostic.
func (f ErrorFormatter) Format(d Diagnostic) string {
	if f.Compact {
		return f.formatCompact(d)
	}
	return f.formatDetailed(d)
}

// FormatAll renders every diagnostic in l, separated by blank lines in
// detailed mode.
func (f ErrorFormatter) FormatAll(l List) string {
	var b strings.Builder
	for i, d := range l {
		if i > 0 && !f.Compact {
			b.WriteByte('\n')
		}
		b.WriteString(f.Format(d))
	}
	return b.String()
}

func (f ErrorFormatter) filename(d Diagnostic) string {
	if f.Filename != "" {
		return f.Filename
	}
	return d.Filename
}

func (f ErrorFormatter) headline(d Diagnostic) string {
	msg := d.Message
	if d.Context != "" {
		msg += " in " + d.Context
	}
	return msg
}

func (f ErrorFormatter) formatCompact(d Diagnostic) string {
	var b strings.Builder

	loc := f.filename(d)
	if d.Position.IsValid() {
		if loc != "" {
			loc += ":"
		}
		loc += strconv.Itoa(d.Position.Line) + ":" + strconv.Itoa(d.Position.Column)
	}
	if loc != "" {
		b.WriteString(loc)
		b.WriteString(": ")
	}
	b.WriteString(Colorize(d.Kind.String()+":", ColorRed, f.Color))
	b.WriteByte(' ')
	b.WriteString(f.headline(d))
	b.WriteByte('\n')

	width := gutterWidth(d)
	if snippet := f.snippet(d, width); snippet != "" {
		b.WriteString(snippet)
	}
	if d.Suggestion != "" {
		b.WriteString(strings.Repeat(" ", width+1))
		b.WriteString(Colorize(d.Suggestion, ColorYellow, f.Color))
		b.WriteByte('\n')
	}
	return b.String()
}

func (f ErrorFormatter) formatDetailed(d Diagnostic) string {
	var b strings.Builder

	b.WriteString(Colorize(d.Kind.String()+":", ColorRed, f.Color))
	b.WriteByte(' ')
	b.WriteString(f.headline(d))
	b.WriteByte('\n')

	width := gutterWidth(d)
	pad := strings.Repeat(" ", width)
	if d.Position.IsValid() {
		loc := strconv.Itoa(d.Position.Line) + ":" + strconv.Itoa(d.Position.Column)
		if name := f.filename(d); name != "" {
			loc = name + ":" + loc
		}
		fmt.Fprintf(&b, "%s--> %s\n", pad, loc)
	}

	snippet := f.snippet(d, width)
	if snippet != "" {
		b.WriteString(pad + " |\n")
		b.WriteString(snippet)
	}

	hints := []struct{ label, text string }{
		{"Suggestion", d.Suggestion},
		{"Example", d.Example},
		{"Note", d.Note},
	}
	wroteSeparator := false
	for _, h := range hints {
		if h.text == "" {
			continue
		}
		if snippet != "" && !wroteSeparator {
			b.WriteString(pad + " |\n")
			wroteSeparator = true
		}
		fmt.Fprintf(&b, "%s = %s: %s\n", pad, h.label, h.text)
	}
	return b.String()
}

// snippet renders the offending source line and a caret under the column.
func (f ErrorFormatter) snippet(d Diagnostic, width int) string {
	if len(f.Source) == 0 || !d.Position.IsValid() {
		return ""
	}
	line, ok := sourceLine(f.Source, d.Position.Line)
	if !ok {
		return ""
	}

	var b strings.Builder
	gutter := strings.Repeat(" ", width+1) + "|"
	fmt.Fprintf(&b, "%*d | %s\n", width, d.Position.Line, line)

	b.WriteString(gutter)
	b.WriteByte(' ')
	col := d.Position.Column
	if col > len(line)+1 {
		col = len(line) + 1
	}
	for i := 0; i < col-1; i++ {
		// Keep tabs so the caret lines up with the rendered source.
		if line[i] == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	b.WriteString(Colorize("^", ColorRed, f.Color))
	if label := caretLabel(d); label != "" {
		b.WriteByte(' ')
		b.WriteString(label)
	}
	b.WriteByte('\n')
	return b.String()
}

func caretLabel(d Diagnostic) string {
	if len(d.Expected) > 0 {
		return "expected " + FormatExpected(d.Expected)
	}
	return ""
}

func gutterWidth(d Diagnostic) int {
	w := len(strconv.Itoa(d.Position.Line))
	if w < 2 {
		w = 2
	}
	return w
}

// sourceLine returns the 1-based line n of src without its line terminator.
func sourceLine(src []byte, n int) (string, bool) {
	for i := 1; i < n; i++ {
		idx := bytes.IndexByte(src, '\n')
		if idx < 0 {
			return "", false
		}
		src = src[idx+1:]
	}
	if end := bytes.IndexByte(src, '\n'); end >= 0 {
		src = src[:end]
	}
	return strings.TrimSuffix(string(src), "\r"), true
}
