package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opal-lang/beast/core/config"
	"github.com/opal-lang/beast/core/diag"
)

type checkFlags struct {
	watch bool
}

func newCheckCmd(a *app) *cobra.Command {
	var flags checkFlags

	cmd := &cobra.Command{
		Use:   "check [files...]",
		Short: "Parse and validate modules",
		Long: `Parse and validate Beast modules.

With no arguments the project in --dir is checked: the entry module named in
Beast.toml is loaded together with every module it imports. With arguments
each file is checked on its own.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			run := func(ctx context.Context) error {
				if len(args) > 0 {
					return a.checkFiles(args)
				}
				return a.checkProject(ctx)
			}
			if !flags.watch {
				return run(cmd.Context())
			}
			return a.watch(cmd.Context(), watchTargets(a, args), run)
		},
	}
	cmd.Flags().BoolVarP(&flags.watch, "watch", "w", false, "Re-check whenever a source file changes")
	return cmd
}

// checkProject loads the project's entry module and its imports.
func (a *app) checkProject(ctx context.Context) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	prog, err := a.loadProject(ctx, cfg)
	if err != nil {
		return &CLIError{
			Message: err.Error(),
			Hint:    fmt.Sprintf("set compilation.entry_point in %s or add the module to an include path", filepath.Join(a.dir, config.FileName)),
		}
	}

	sources := make(map[string][]byte, len(prog.Units))
	for _, u := range prog.Units {
		sources[u.Path] = u.Source
	}
	if err := a.reporter(sources).report(prog.Diagnostics()); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(a.stdout, "%s %s (%d %s)\n",
		diag.Colorize("ok", diag.ColorGreen, a.useColor()), prog.Entry, len(prog.Units), plural(len(prog.Units), "module"))
	return nil
}

// checkFiles compiles each file independently.
func (a *app) checkFiles(files []string) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	units, err := a.compileFiles(cfg, files)
	if err != nil {
		return err
	}

	sources := make(map[string][]byte, len(units))
	var all diag.List
	for _, u := range units {
		sources[u.path] = u.source
		all = append(all, u.result.Diagnostics...)
	}
	if err := a.reporter(sources).report(all); err != nil {
		return err
	}

	for _, u := range units {
		_, _ = fmt.Fprintf(a.stdout, "%s %s\n", diag.Colorize("ok", diag.ColorGreen, a.useColor()), u.path)
	}
	return nil
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
