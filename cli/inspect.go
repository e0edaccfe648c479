package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/opal-lang/beast/core/ast"
	"github.com/opal-lang/beast/core/modfmt"
	"github.com/opal-lang/beast/core/types"
	"github.com/opal-lang/beast/runtime/validation"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.bmod>",
		Short: "Describe a built module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.inspect(args[0])
		},
	}
}

func (a *app) inspect(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	m, digest, err := modfmt.Read(f)
	if err != nil {
		return &CLIError{
			Message: fmt.Sprintf("%s is not a valid module", path),
			Details: err.Error(),
			Hint:    "Rebuild it with 'beast build'",
		}
	}

	_, _ = fmt.Fprintf(a.stdout, "module %s\n%s\n\n", m.Name, digest)

	a.renderTable("Imports", table.Row{"Binding", "Function", "Origin"}, len(m.Imports), func(i int) table.Row {
		imp := m.Imports[i]
		return table.Row{imp.Binding(), imp.Name, imp.Origin}
	})
	a.renderTable("Constants", table.Row{"Name", "Type", "Value"}, len(m.Constants), func(i int) table.Row {
		c := m.Constants[i]
		typ := "untyped"
		if c.Typed() {
			typ = c.Type.String()
		}
		return table.Row{c.Name, typ, c.Value.String()}
	})
	a.renderTable("Functions", table.Row{"Name", "Instructions", "Exit stack"}, len(m.Functions), func(i int) table.Row {
		fn := m.Functions[i]
		return table.Row{fn.Name, countInstructions(fn.Body), formatStack(fn.ExitStack)}
	})
	a.renderTable("Exports", table.Row{"Binding", "Function", "Origin"}, len(m.Exports), func(i int) table.Row {
		e := m.Exports[i]
		origin := m.Name
		if e.External != nil {
			origin = e.External.Origin
		}
		return table.Row{e.Binding(), e.Name, origin}
	})

	if cycles := validation.FindRecursion(m); len(cycles) > 0 {
		_, _ = fmt.Fprintln(a.stdout, "Recursion:")
		for _, c := range cycles {
			_, _ = fmt.Fprintf(a.stdout, "  %s\n", c)
		}
	}
	return nil
}

// renderTable prints a titled table with n rows, or nothing when n is zero.
func (a *app) renderTable(title string, header table.Row, n int, row func(int) table.Row) {
	if n == 0 {
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(a.stdout)
	tw.SetTitle(title)
	tw.AppendHeader(header)
	for i := 0; i < n; i++ {
		tw.AppendRow(row(i))
	}
	tw.Render()
	_, _ = fmt.Fprintln(a.stdout)
}

func countInstructions(seq []ast.Instruction) int {
	n := 0
	ast.Walk(seq, func(ast.Instruction) bool {
		n++
		return true
	})
	return n
}

func formatStack(s []types.Type) string {
	if len(s) == 0 {
		return "[]"
	}
	parts := make([]string, len(s))
	for i, t := range s {
		parts[i] = t.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
