package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/opal-lang/beast/core/config"
	"github.com/opal-lang/beast/runtime"
	"github.com/opal-lang/beast/runtime/loader"
	"github.com/opal-lang/beast/runtime/parser"
	"github.com/opal-lang/beast/runtime/validation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	rootCmd := newRootCmd(a)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		FormatError(os.Stderr, err, colorEnabled(os.Stderr, a.noColor))
		os.Exit(1)
	}
}

// app holds the global flags and output streams shared by every command.
type app struct {
	stdout io.Writer
	stderr io.Writer

	dir     string
	debug   bool
	noColor bool
	compact bool

	logger *slog.Logger
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "beast",
		Short:         "Check, format and build Beast assembly modules",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.logger = newLogger(a.stderr, a.debug)
		},
	}
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	rootCmd.PersistentFlags().StringVarP(&a.dir, "dir", "C", ".", "Project directory (holds Beast.toml)")
	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging (also BEAST_DEBUG)")
	rootCmd.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&a.compact, "compact", false, "Print one-line diagnostics")

	rootCmd.AddCommand(
		newCheckCmd(a),
		newFmtCmd(a),
		newTokensCmd(a),
		newBuildCmd(a),
		newInspectCmd(a),
	)
	return rootCmd
}

func (a *app) useColor() bool {
	return colorEnabled(a.stdout, a.noColor)
}

func (a *app) reporter(sources map[string][]byte) *reporter {
	return &reporter{w: a.stderr, sources: sources, color: a.useColor(), compact: a.compact}
}

// config loads the project file from the project directory.
func (a *app) config() (*config.Config, error) {
	cfg, err := config.Load(os.DirFS(a.dir))
	if err != nil {
		return nil, err
	}
	a.logger.Debug("configuration loaded",
		"entry", cfg.Compilation.EntryPoint,
		"dialect", cfg.Compilation.Dialect,
		"signals", len(cfg.Signals))
	return cfg, nil
}

// compiled is one compiled source together with its text.
type compiled struct {
	path   string
	source []byte
	result *runtime.Result
}

// compileFiles compiles each file on its own with the project's dialect and
// signal table.
func (a *app) compileFiles(cfg *config.Config, files []string) ([]compiled, error) {
	dialect, err := parser.ParseDialect(cfg.Compilation.Dialect)
	if err != nil {
		return nil, err
	}

	out := make([]compiled, 0, len(files))
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("error opening file %s: %w", file, err)
		}
		res := runtime.Compile(src,
			runtime.WithModuleName(moduleName(file)),
			runtime.WithFilename(file),
			runtime.WithParserOptions(parser.WithDialect(dialect)),
			runtime.WithValidatorOptions(validation.WithSignals(cfg.Signals)),
		)
		a.logger.Debug("compiled file", "file", file, "diagnostics", len(res.Diagnostics))
		out = append(out, compiled{path: file, source: src, result: res})
	}
	return out, nil
}

// loadProject loads the entry module of the project and its imports.
func (a *app) loadProject(ctx context.Context, cfg *config.Config) (*loader.Program, error) {
	opts, err := loader.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, loader.WithLogger(a.logger))
	return loader.New(os.DirFS(a.dir), opts...).Load(ctx, cfg.Compilation.EntryPoint)
}

// moduleName derives a module name from a file name: "src/app.beast" is
// "app".
func moduleName(file string) string {
	base := filepath.Base(file)
	return base[:len(base)-len(filepath.Ext(base))]
}
