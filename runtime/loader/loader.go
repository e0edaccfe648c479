// Package loader discovers, compiles and validates every module reachable
// from an entry module.
//
// Modules are loaded level by level: each level is compiled concurrently, and
// the imports of a level form the next one. Each module is validated on its
// own; linking across modules is left to the consumer of the Program.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	goruntime "runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/opal-lang/beast/core/ast"
	"github.com/opal-lang/beast/core/config"
	"github.com/opal-lang/beast/core/diag"
	"github.com/opal-lang/beast/core/types"
	"github.com/opal-lang/beast/runtime"
	"github.com/opal-lang/beast/runtime/lexer"
	"github.com/opal-lang/beast/runtime/parser"
	"github.com/opal-lang/beast/runtime/validation"
)

// EntryFunction is the function the entry module must declare.
const EntryFunction = "$main"

var (
	// SourceExts are the source file extensions, in lookup order.
	SourceExts = []string{".beast", ".bst"}

	// LibraryExts are the library file extensions, in lookup order.
	LibraryExts = []string{".blib", ".bl"}
)

// ErrModuleNotFound is returned when the entry module cannot be discovered.
var ErrModuleNotFound = errors.New("module not found")

// Kind tells how a module was found.
type Kind uint8

const (
	Source  Kind = iota + 1 // Compiled from source
	Library                 // Prebuilt library, recorded but not opened
)

func (k Kind) String() string {
	switch k {
	case Source:
		return "source"
	case Library:
		return "library"
	}
	return "unknown"
}

// Unit is one discovered module.
type Unit struct {
	Name        string // Dotted module path
	Path        string // File within the loader's file system
	Kind        Kind
	Source      []byte      // Nil for libraries
	Module      *ast.Module // Built module; nil for libraries and parse failures
	Diagnostics diag.List
}

// Valid reports whether the unit can be handed on: a library, or a source
// module without diagnostics.
func (u *Unit) Valid() bool {
	return len(u.Diagnostics) == 0 && (u.Kind == Library || u.Module != nil)
}

// Program is the result of a load.
type Program struct {
	Entry string
	Units []*Unit // Level by level, sorted by name within a level
}

// Unit returns the unit named name, or nil.
func (p *Program) Unit(name string) *Unit {
	for _, u := range p.Units {
		if u.Name == name {
			return u
		}
	}
	return nil
}

// Diagnostics returns the diagnostics of every unit, ordered by file.
func (p *Program) Diagnostics() diag.List {
	var all diag.List
	for _, u := range p.Units {
		all = append(all, u.Diagnostics...)
	}
	all.Sort()
	return all
}

// Err returns every diagnostic as an error, or nil when all units are valid.
func (p *Program) Err() error {
	return p.Diagnostics().Err()
}

// LoaderOpt configures a Loader.
type LoaderOpt func(*LoaderConfig)

// LoaderConfig holds loader settings.
type LoaderConfig struct {
	include     []string
	lib         []string
	dialect     parser.Dialect
	signals     map[string]uint16
	logger      *slog.Logger
	concurrency int
}

// WithIncludePaths sets the source directories (default "src").
func WithIncludePaths(dirs ...string) LoaderOpt {
	return func(c *LoaderConfig) {
		c.include = dirs
	}
}

// WithLibPaths sets the library directories (default "lib").
func WithLibPaths(dirs ...string) LoaderOpt {
	return func(c *LoaderConfig) {
		c.lib = dirs
	}
}

// WithDialect selects the grammar revision for every source module.
func WithDialect(d parser.Dialect) LoaderOpt {
	return func(c *LoaderConfig) {
		c.dialect = d
	}
}

// WithSignals restricts sys to the given signal table.
func WithSignals(signals map[string]uint16) LoaderOpt {
	return func(c *LoaderConfig) {
		c.signals = signals
	}
}

// WithLogger sets the logger for discovery and load events.
func WithLogger(logger *slog.Logger) LoaderOpt {
	return func(c *LoaderConfig) {
		c.logger = logger
	}
}

// WithConcurrency bounds how many modules compile at once
// (default GOMAXPROCS).
func WithConcurrency(n int) LoaderOpt {
	return func(c *LoaderConfig) {
		c.concurrency = n
	}
}

// FromConfig translates a project configuration into loader options.
func FromConfig(cfg *config.Config) ([]LoaderOpt, error) {
	dialect, err := parser.ParseDialect(cfg.Compilation.Dialect)
	if err != nil {
		return nil, err
	}
	return []LoaderOpt{
		WithIncludePaths(cfg.Compilation.Include...),
		WithLibPaths(cfg.Compilation.Lib...),
		WithDialect(dialect),
		WithSignals(cfg.Signals),
	}, nil
}

// Loader loads modules from a file system.
type Loader struct {
	fsys   fs.FS
	config *LoaderConfig
}

// New returns a loader reading from fsys.
func New(fsys fs.FS, opts ...LoaderOpt) *Loader {
	config := &LoaderConfig{
		include: []string{"src"},
		lib:     []string{"lib"},
	}
	for _, opt := range opts {
		opt(config)
	}
	if config.logger == nil {
		config.logger = slog.New(slog.DiscardHandler)
	}
	if config.concurrency <= 0 {
		config.concurrency = goruntime.GOMAXPROCS(0)
	}
	return &Loader{fsys: fsys, config: config}
}

// Discover maps a module path to a file. Library directories are searched
// before include directories; within each, extensions are tried in order
// across all directories.
func (l *Loader) Discover(module string) (string, Kind, error) {
	if !lexer.IsModulePath(module) {
		return "", 0, fmt.Errorf("invalid module path %q", module)
	}
	rel := strings.ReplaceAll(module, ".", "/")

	for _, c := range l.candidates(rel) {
		info, err := fs.Stat(l.fsys, c.path)
		if err == nil && info.Mode().IsRegular() {
			return c.path, c.kind, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", 0, fmt.Errorf("stat %s: %w", c.path, err)
		}
	}
	return "", 0, fmt.Errorf("%s: %w", module, ErrModuleNotFound)
}

type candidate struct {
	path string
	kind Kind
}

func (l *Loader) candidates(rel string) []candidate {
	var out []candidate
	for _, ext := range LibraryExts {
		for _, dir := range l.config.lib {
			out = append(out, candidate{path.Join(dir, rel+ext), Library})
		}
	}
	for _, ext := range SourceExts {
		for _, dir := range l.config.include {
			out = append(out, candidate{path.Join(dir, rel+ext), Source})
		}
	}
	return out
}

// searched lists the paths Discover tries for module.
func (l *Loader) searched(module string) []string {
	cs := l.candidates(strings.ReplaceAll(module, ".", "/"))
	paths := make([]string, len(cs))
	for i, c := range cs {
		paths[i] = c.path
	}
	return paths
}

// Load loads entry and every module it transitively imports. The returned
// error covers infrastructure failures only; problems in the modules
// themselves are reported through Program.Err.
func (l *Loader) Load(ctx context.Context, entry string) (*Program, error) {
	p, kind, err := l.Discover(entry)
	if err != nil {
		return nil, fmt.Errorf("entry module: %w", err)
	}

	prog := &Program{Entry: entry}
	requested := map[string]bool{entry: true}
	level := []pending{{name: entry, path: p, kind: kind}}

	for depth := 0; len(level) > 0; depth++ {
		units, err := l.loadLevel(ctx, level)
		if err != nil {
			return nil, err
		}
		l.config.logger.Debug("level loaded", "depth", depth, "modules", len(units))

		var next []pending
		for _, u := range units {
			prog.Units = append(prog.Units, u)
			if u.Module == nil {
				continue
			}
			for _, imp := range u.Module.Imports {
				if requested[imp.Origin] {
					continue
				}
				found, ok := l.resolveImport(u, imp)
				if !ok {
					continue
				}
				requested[imp.Origin] = true
				next = append(next, found)
			}
		}
		sort.Slice(next, func(i, j int) bool { return next[i].name < next[j].name })
		level = next
	}

	if u := prog.Unit(entry); u.Kind == Source && u.Module != nil {
		l.checkEntry(u)
	}
	return prog, nil
}

type pending struct {
	name string
	path string
	kind Kind
}

// resolveImport discovers the origin of imp, reporting it on u when absent.
func (l *Loader) resolveImport(u *Unit, imp *ast.Import) (pending, bool) {
	p, kind, err := l.Discover(imp.Origin)
	if err == nil {
		return pending{name: imp.Origin, path: p, kind: kind}, true
	}

	d := diag.Diagnostic{
		Kind:     diag.NameError,
		Code:     diag.CodeUndefined,
		Filename: u.Path,
		Position: imp.Pos,
		Message:  fmt.Sprintf("module %s not found", imp.Origin),
		Context:  "import origin",
	}
	if errors.Is(err, ErrModuleNotFound) {
		d.Note = "searched " + strings.Join(l.searched(imp.Origin), ", ")
	} else {
		d.Message = err.Error()
	}
	u.Diagnostics = append(u.Diagnostics, d)
	u.Diagnostics.Sort()
	return pending{}, false
}

// loadLevel compiles one level of modules concurrently. Units are returned
// in the order of level.
func (l *Loader) loadLevel(ctx context.Context, level []pending) ([]*Unit, error) {
	units := make([]*Unit, len(level))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.config.concurrency)

	for i, pm := range level {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			u, err := l.loadUnit(pm)
			if err != nil {
				return err
			}
			units[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return units, nil
}

func (l *Loader) loadUnit(pm pending) (*Unit, error) {
	u := &Unit{Name: pm.name, Path: pm.path, Kind: pm.kind}
	l.config.logger.Debug("discovered module", "module", pm.name, "path", pm.path, "kind", pm.kind)

	if pm.kind == Library {
		return u, nil
	}

	src, err := fs.ReadFile(l.fsys, pm.path)
	if err != nil {
		return nil, fmt.Errorf("read module %s: %w", pm.name, err)
	}
	u.Source = src

	res := runtime.Compile(src,
		runtime.WithModuleName(pm.name),
		runtime.WithFilename(pm.path),
		runtime.WithParserOptions(parser.WithDialect(l.config.dialect)),
		runtime.WithValidatorOptions(validation.WithSignals(l.config.signals)),
	)
	u.Module = res.Module
	u.Diagnostics = res.Diagnostics

	l.config.logger.Debug("compiled module", "module", pm.name, "diagnostics", len(res.Diagnostics))
	return u, nil
}

// checkEntry requires the entry module to declare EntryFunction.
func (l *Loader) checkEntry(u *Unit) {
	if u.Module.Function(EntryFunction) != nil {
		return
	}
	d := diag.Diagnostic{
		Kind:     diag.NameError,
		Code:     diag.CodeUndefined,
		Filename: u.Path,
		Position: types.Position{Line: 1, Column: 1},
		Message:  fmt.Sprintf("entry module %s does not declare %s", u.Name, EntryFunction),
		Example:  "(func $main (ret))",
	}
	names := make([]string, len(u.Module.Functions))
	for i, fn := range u.Module.Functions {
		names[i] = fn.Name
	}
	if match := diag.ClosestMatch(EntryFunction, names); match != "" {
		d.Suggestion = fmt.Sprintf("did you mean %s?", match)
	}
	u.Diagnostics = append(u.Diagnostics, d)
	u.Diagnostics.Sort()
}
