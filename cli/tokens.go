package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/opal-lang/beast/runtime/lexer"
)

func newTokensCmd(a *app) *cobra.Command {
	var telemetry bool

	cmd := &cobra.Command{
		Use:   "tokens <file>",
		Short: "Print the token stream of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.tokens(args[0], telemetry)
		},
	}
	cmd.Flags().BoolVar(&telemetry, "telemetry", false, "Also print per-type token counts")
	return cmd
}

func (a *app) tokens(file string, telemetry bool) error {
	src, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("error opening file %s: %w", file, err)
	}

	var opts []lexer.LexerOpt
	if telemetry {
		opts = append(opts, lexer.WithTelemetryBasic())
	}
	lex := lexer.NewLexer(opts...)
	lex.Init(src)
	tokens := lex.GetTokens()

	tw := table.NewWriter()
	tw.SetOutputMirror(a.stdout)
	tw.SetTitle(file)
	tw.AppendHeader(table.Row{"Position", "Type", "Text"})
	for _, tok := range tokens {
		pos := fmt.Sprintf("%d:%d", tok.Position.Line, tok.Position.Column)
		tw.AppendRow(table.Row{pos, tok.Type.String(), strconv.Quote(tok.Symbol())})
	}
	tw.Render()

	if telemetry {
		counts := lex.GetTokenTelemetry()
		ct := table.NewWriter()
		ct.SetOutputMirror(a.stdout)
		ct.SetTitle("Token counts")
		ct.AppendHeader(table.Row{"Type", "Count"})
		for typ := lexer.EOF; typ <= lexer.COMMENT; typ++ {
			if t, ok := counts[typ]; ok {
				ct.AppendRow(table.Row{typ.String(), t.Count})
			}
		}
		ct.Render()
	}

	return a.reporter(map[string][]byte{file: src}).report(lex.Errors().WithFilename(file))
}
