package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opal-lang/beast/core/ast"
	"github.com/opal-lang/beast/core/diag"
	"github.com/opal-lang/beast/core/modfmt"
)

func newBuildCmd(a *app) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "build [files...]",
		Short: "Write validated modules as .bmod files",
		Long: `Validate modules and write each one as a .bmod file named after the module.

With no arguments every source module of the project is built. Nothing is
written unless all modules are valid.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.build(cmd.Context(), args, outDir)
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "build", "Output directory")
	return cmd
}

// artifact is a module ready to be written.
type artifact struct {
	name   string
	module *ast.Module
}

func (a *app) build(ctx context.Context, files []string, outDir string) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}

	var arts []artifact
	var all diag.List
	sources := map[string][]byte{}
	if len(files) > 0 {
		units, err := a.compileFiles(cfg, files)
		if err != nil {
			return err
		}
		for _, u := range units {
			sources[u.path] = u.source
			all = append(all, u.result.Diagnostics...)
			arts = append(arts, artifact{name: moduleName(u.path), module: u.result.Module})
		}
	} else {
		prog, err := a.loadProject(ctx, cfg)
		if err != nil {
			return err
		}
		for _, u := range prog.Units {
			sources[u.Path] = u.Source
			if u.Module != nil {
				arts = append(arts, artifact{name: u.Name, module: u.Module})
			}
		}
		all = prog.Diagnostics()
	}
	if err := a.reporter(sources).report(all); err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	for _, art := range arts {
		path := filepath.Join(outDir, art.name+modfmt.Ext)
		digest, err := writeModule(path, art.module)
		if err != nil {
			return err
		}
		a.logger.Debug("wrote module", "module", art.name, "path", path)
		_, _ = fmt.Fprintf(a.stdout, "%s %s\n", digest, path)
	}
	return nil
}

func writeModule(path string, m *ast.Module) (digest modfmt.Digest, err error) {
	f, err := os.Create(path)
	if err != nil {
		return digest, fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	digest, err = modfmt.Write(f, m)
	if err != nil {
		return digest, fmt.Errorf("write %s: %w", path, err)
	}
	return digest, nil
}
