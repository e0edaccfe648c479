package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opal-lang/beast/core/ast"
	"github.com/opal-lang/beast/runtime/lexer"
)

type fmtFlags struct {
	write        bool
	list         bool
	dropComments bool
}

func newFmtCmd(a *app) *cobra.Command {
	var flags fmtFlags

	cmd := &cobra.Command{
		Use:   "fmt <files...>",
		Short: "Print modules in canonical form",
		Long: `Print Beast modules in canonical form.

The canonical printer does not keep comments, so files containing comments
are only rewritten with --drop-comments.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.format(args, flags)
		},
	}
	cmd.Flags().BoolVarP(&flags.write, "write", "w", false, "Write the result back to each file")
	cmd.Flags().BoolVarP(&flags.list, "list", "l", false, "List files whose formatting differs and fail if any do")
	cmd.Flags().BoolVar(&flags.dropComments, "drop-comments", false, "Allow rewriting files that contain comments")
	return cmd
}

func (a *app) format(files []string, flags fmtFlags) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	units, err := a.compileFiles(cfg, files)
	if err != nil {
		return err
	}

	var unformatted []string
	for _, u := range units {
		if u.result.Module == nil {
			return a.reporter(map[string][]byte{u.path: u.source}).report(u.result.Diagnostics)
		}
		out := []byte(ast.Format(u.result.Module))
		changed := !bytes.Equal(out, u.source)

		switch {
		case flags.list:
			if changed {
				unformatted = append(unformatted, u.path)
				_, _ = fmt.Fprintln(a.stdout, u.path)
			}
		case flags.write:
			if !changed {
				continue
			}
			if !flags.dropComments && hasComments(u.source) {
				return &CLIError{
					Message: fmt.Sprintf("%s contains comments", u.path),
					Details: "The canonical form does not keep comments.",
					Hint:    "Pass --drop-comments to rewrite it anyway",
				}
			}
			if err := os.WriteFile(u.path, out, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", u.path, err)
			}
			a.logger.Debug("formatted", "file", u.path)
		default:
			_, _ = a.stdout.Write(out)
		}
	}

	if len(unformatted) > 0 {
		return &errReported{count: len(unformatted)}
	}
	return nil
}

// hasComments reports whether src holds any comment token.
func hasComments(src []byte) bool {
	tokens, _ := lexer.Tokenize(src)
	for _, tok := range tokens {
		if tok.Type == lexer.COMMENT {
			return true
		}
	}
	return false
}
