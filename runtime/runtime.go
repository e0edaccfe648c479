// Package runtime wires the Beast front end together: source text is lexed,
// parsed into events, built into an ast.Module and validated.
package runtime

import (
	"github.com/opal-lang/beast/core/ast"
	"github.com/opal-lang/beast/core/diag"
	"github.com/opal-lang/beast/core/invariant"
	"github.com/opal-lang/beast/runtime/builder"
	"github.com/opal-lang/beast/runtime/parser"
	"github.com/opal-lang/beast/runtime/validation"
)

// CompileOpt configures Compile.
type CompileOpt func(*CompileConfig)

// CompileConfig holds the options forwarded to each stage.
type CompileConfig struct {
	name      string
	filename  string
	parser    []parser.ParserOpt
	validator []validation.ValidatorOpt
}

// WithModuleName sets ast.Module.Name.
func WithModuleName(name string) CompileOpt {
	return func(c *CompileConfig) {
		c.name = name
	}
}

// WithFilename stamps every diagnostic with filename.
func WithFilename(filename string) CompileOpt {
	return func(c *CompileConfig) {
		c.filename = filename
	}
}

// WithParserOptions forwards options to the parser.
func WithParserOptions(opts ...parser.ParserOpt) CompileOpt {
	return func(c *CompileConfig) {
		c.parser = append(c.parser, opts...)
	}
}

// WithValidatorOptions forwards options to the validator.
func WithValidatorOptions(opts ...validation.ValidatorOpt) CompileOpt {
	return func(c *CompileConfig) {
		c.validator = append(c.validator, opts...)
	}
}

// Result is the outcome of compiling one source.
type Result struct {
	Tree        *parser.ParseTree
	Module      *ast.Module // Built module; nil when parsing failed
	Diagnostics diag.List
}

// Valid reports whether the module passed every stage.
func (r *Result) Valid() bool {
	return r.Module != nil && len(r.Diagnostics) == 0
}

// Err returns the diagnostics as an error, or nil for a valid module.
func (r *Result) Err() error {
	return r.Diagnostics.Err()
}

// Compile runs every stage over source. A parse failure stops the pipeline
// with its single diagnostic; otherwise the built module is returned along
// with every validation diagnostic. Only a valid module may be handed on.
func Compile(source []byte, opts ...CompileOpt) *Result {
	config := &CompileConfig{}
	for _, opt := range opts {
		opt(config)
	}

	res := &Result{Tree: parser.Parse(source, config.parser...)}
	if len(res.Tree.Errors) > 0 {
		res.Diagnostics = stamp(res.Tree.Errors, config.filename)
		return res
	}

	m, err := builder.BuildModule(config.name, res.Tree.Events, res.Tree.Tokens)
	invariant.ExpectNoError(err, "building a cleanly parsed module")

	res.Module = m
	if errs := validation.Check(m, config.validator...); len(errs) > 0 {
		res.Diagnostics = stamp(errs, config.filename)
	}
	return res
}

// CompileString is a convenience wrapper around Compile.
func CompileString(source string, opts ...CompileOpt) *Result {
	return Compile([]byte(source), opts...)
}

func stamp(l diag.List, filename string) diag.List {
	if filename == "" {
		return l
	}
	return l.WithFilename(filename)
}
