// Package validation proves a built module well-formed: every name resolves,
// every literal fits its type, and every function body is stack- and
// type-correct.
//
// Validation is a pure function of the module and its options. The only
// state is the per-call symbol tables, so independent modules can be checked
// concurrently.
package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opal-lang/beast/core/ast"
	"github.com/opal-lang/beast/core/diag"
	"github.com/opal-lang/beast/core/invariant"
	"github.com/opal-lang/beast/core/types"
)

// Registers are the machine registers reg may name.
var Registers = []string{":sp", ":bp"}

// ValidatorOpt configures validation.
type ValidatorOpt func(*ValidatorConfig)

// ValidatorConfig holds validation settings.
type ValidatorConfig struct {
	signals map[string]uint16
}

// WithSignals restricts sys to the named signals. Names are given without
// the leading ':'. A nil or empty table accepts any atom.
func WithSignals(signals map[string]uint16) ValidatorOpt {
	return func(c *ValidatorConfig) {
		c.signals = signals
	}
}

// Validate checks m and fills in its resolved references. The module is
// returned only when no diagnostics were produced.
func Validate(m *ast.Module, opts ...ValidatorOpt) (*ast.Module, error) {
	if errs := Check(m, opts...); len(errs) > 0 {
		return nil, errs
	}
	return m, nil
}

// Check validates m and returns every diagnostic found, in source order.
// Name and range problems are all collected; stack simulation stops at the
// first violation within each function but continues with the next one.
func Check(m *ast.Module, opts ...ValidatorOpt) diag.List {
	invariant.NotNil(m, "module")

	config := &ValidatorConfig{}
	for _, opt := range opts {
		opt(config)
	}

	v := &validator{
		module:    m,
		config:    config,
		functions: make(map[string]binding),
		constants: make(map[string]*ast.Constant),
	}

	v.buildNamespaces()
	v.checkConstants()
	v.resolveExports()
	for _, fn := range m.Functions {
		v.checkFunction(fn)
	}

	v.diags.Sort()
	return v.diags
}

// binding is an entry of the function namespace: a declared function or an
// import binding.
type binding struct {
	function *ast.Function
	imp      *ast.Import
}

func (b binding) position() types.Position {
	if b.function != nil {
		return b.function.Pos
	}
	return b.imp.Pos
}

type validator struct {
	module    *ast.Module
	config    *ValidatorConfig
	functions map[string]binding
	constants map[string]*ast.Constant
	diags     diag.List
}

func (v *validator) report(d diag.Diagnostic) {
	v.diags = append(v.diags, d)
}

// buildNamespaces registers every function, import binding and constant.
// Declarations are visited in source order so the later of two colliding
// names is the one reported.
func (v *validator) buildNamespaces() {
	type entry struct {
		name string
		b    binding
	}
	var bindings []entry
	for _, imp := range v.module.Imports {
		bindings = append(bindings, entry{imp.Binding(), binding{imp: imp}})
	}
	for _, fn := range v.module.Functions {
		bindings = append(bindings, entry{fn.Name, binding{function: fn}})
	}
	sort.SliceStable(bindings, func(i, j int) bool {
		return bindings[i].b.position().Offset < bindings[j].b.position().Offset
	})

	for _, e := range bindings {
		if prev, ok := v.functions[e.name]; ok {
			v.report(duplicate(e.name, e.b.position(), prev.position()))
			continue
		}
		v.functions[e.name] = e.b
	}

	for _, c := range v.module.Constants {
		if prev, ok := v.constants[c.Name]; ok {
			v.report(duplicate(c.Name, c.Pos, prev.Pos))
			continue
		}
		v.constants[c.Name] = c
	}
}

func duplicate(name string, pos, first types.Position) diag.Diagnostic {
	return diag.Diagnostic{
		Kind:     diag.NameError,
		Code:     diag.CodeDuplicate,
		Position: pos,
		Message:  fmt.Sprintf("%s is already declared", name),
		Note:     fmt.Sprintf("first declared at %s", first),
	}
}

// checkConstants range-checks constant declarations. An untyped constant
// must fit at least one type.
func (v *validator) checkConstants() {
	for _, c := range v.module.Constants {
		if c.Typed() {
			if !c.Value.Fits(c.Type) {
				v.report(outOfRange(c.Value, c.Type, c.Value.Pos, "constant "+c.Name))
			}
			continue
		}
		if !c.Value.Fits(types.U16) && !c.Value.Fits(types.I16) {
			d := outOfRange(c.Value, types.Invalid, c.Value.Pos, "constant "+c.Name)
			d.Message = fmt.Sprintf("literal %s does not fit any type", c.Value)
			v.report(d)
		}
	}
}

func outOfRange(lit ast.Literal, t types.Type, pos types.Position, context string) diag.Diagnostic {
	d := diag.Diagnostic{
		Kind:     diag.TypeError,
		Code:     diag.CodeLiteralOutOfRange,
		Position: pos,
		Message:  fmt.Sprintf("literal %s is out of range for %s", lit, t),
		Context:  context,
	}
	if lo, hi := t.Range(); lo <= hi {
		d.Note = fmt.Sprintf("%s holds %d..%d", t, lo, hi)
	}
	return d
}

// resolveExports checks export targets. A function is exported at most once
// and every published name is unique.
func (v *validator) resolveExports() {
	exported := make(map[string]*ast.Export)
	published := make(map[string]*ast.Export)
	for _, e := range v.module.Exports {
		if b, ok := v.resolveFunction(e.Name, e.Pos, "export"); ok {
			e.External = b.imp
		}
		if prev, ok := exported[e.Name]; ok {
			v.report(duplicateExport(e.Name+" is already exported", e.Pos, prev.Pos))
			continue
		}
		if prev, ok := published[e.Binding()]; ok {
			v.report(duplicateExport("export name "+e.Binding()+" is already taken", e.Pos, prev.Pos))
			continue
		}
		exported[e.Name] = e
		published[e.Binding()] = e
	}
}

func duplicateExport(msg string, pos, first types.Position) diag.Diagnostic {
	return diag.Diagnostic{
		Kind:     diag.NameError,
		Code:     diag.CodeDuplicate,
		Position: pos,
		Message:  msg,
		Note:     fmt.Sprintf("first exported at %s", first),
	}
}

// resolveFunction looks name up among declared functions and import
// bindings, reporting it when absent.
func (v *validator) resolveFunction(name string, pos types.Position, context string) (binding, bool) {
	if b, ok := v.functions[name]; ok {
		return b, true
	}
	v.report(undefined("function", name, pos, context, v.functionNames()))
	return binding{}, false
}

// resolveConstant fills in ref.Decl, reporting the name when absent.
func (v *validator) resolveConstant(ref *ast.ConstRef, context string) *ast.Constant {
	c, ok := v.constants[ref.Name]
	if !ok {
		ref.Decl = nil
		v.report(undefined("constant", ref.Name, ref.Pos, context, v.constantNames()))
		return nil
	}
	ref.Decl = c
	return c
}

func undefined(what, name string, pos types.Position, context string, candidates []string) diag.Diagnostic {
	d := diag.Diagnostic{
		Kind:     diag.NameError,
		Code:     diag.CodeUndefined,
		Position: pos,
		Message:  fmt.Sprintf("undefined %s %s", what, name),
		Context:  context,
	}
	if match := diag.ClosestMatch(name, candidates); match != "" {
		d.Suggestion = fmt.Sprintf("did you mean %s?", match)
	}
	return d
}

func (v *validator) functionNames() []string {
	names := make([]string, 0, len(v.functions))
	for name := range v.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (v *validator) constantNames() []string {
	names := make([]string, 0, len(v.constants))
	for name := range v.constants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// checkFunction resolves and range-checks every instruction of fn, then
// simulates its operand stack.
func (v *validator) checkFunction(fn *ast.Function) {
	start := len(v.diags)

	ast.Walk(fn.Body, func(in ast.Instruction) bool {
		v.checkInstruction(in)
		return true
	})

	hasRet := false
	for _, in := range fn.Body {
		if _, ok := in.(*ast.Ret); ok {
			hasRet = true
			break
		}
	}
	if !hasRet {
		v.report(diag.Diagnostic{
			Kind:       diag.TypeError,
			Code:       diag.CodeMissingReturn,
			Position:   fn.Pos,
			Message:    fmt.Sprintf("function %s has no ret", fn.Name),
			Suggestion: "end the function body with (ret)",
		})
	}

	if d := simulate(fn); d != nil {
		v.report(*d)
	}

	for i := start; i < len(v.diags); i++ {
		v.diags[i].Function = fn.Name
	}
}

// checkInstruction handles the name and range rules of one instruction.
func (v *validator) checkInstruction(in ast.Instruction) {
	switch in := in.(type) {
	case *ast.Push:
		v.checkValue(in.Value, in.Type, in.Pos, "push instruction")
	case *ast.Load:
		if in.Addr != nil {
			v.checkValue(*in.Addr, types.Address, in.Addr.Position(), "load address")
		}
	case *ast.Store:
		if in.Addr != nil {
			v.checkValue(*in.Addr, types.Address, in.Addr.Position(), "store address")
		}
	case *ast.Alloc:
		v.checkValue(in.Size, types.Address, in.Size.Position(), "alloc size")
	case *ast.Call:
		in.External = nil
		if b, ok := v.resolveFunction(in.Target, in.Pos, "call instruction"); ok {
			in.External = b.imp
		}
	case *ast.Reg:
		if !isRegister(in.Register) {
			d := diag.Diagnostic{
				Kind:     diag.NameError,
				Code:     diag.CodeUnknownRegister,
				Position: in.Pos,
				Message:  fmt.Sprintf("unknown register %s", in.Register),
				Context:  "reg instruction",
				Expected: Registers,
			}
			if match := diag.ClosestMatch(in.Register, Registers); match != "" {
				d.Suggestion = fmt.Sprintf("did you mean %s?", match)
			}
			v.report(d)
		}
	case *ast.Sys:
		v.checkSignal(in)
	}
}

// checkValue resolves a literal-or-constant operand used as a t and checks
// it fits. pos is where a range error is reported.
func (v *validator) checkValue(op ast.Operand, t types.Type, pos types.Position, context string) {
	if op.Const != nil {
		c := v.resolveConstant(op.Const, context)
		if c == nil {
			return
		}
		if c.Typed() && t != types.Address && c.Type != t {
			v.report(diag.Diagnostic{
				Kind:     diag.TypeError,
				Code:     diag.CodeOperandTypeMismatch,
				Position: pos,
				Message:  fmt.Sprintf("constant %s has type %s, expected %s", c.Name, c.Type, t),
				Context:  context,
				Note:     fmt.Sprintf("%s declared at %s", c.Name, c.Pos),
			})
			return
		}
	}

	lit, ok := op.Value()
	if !ok || lit.Fits(t) {
		return
	}
	d := outOfRange(lit, t, pos, context)
	if op.Const != nil {
		d.Message = fmt.Sprintf("constant %s = %s is out of range for %s", op.Const.Name, lit, t)
	}
	v.report(d)
}

func (v *validator) checkSignal(in *ast.Sys) {
	if len(v.config.signals) == 0 {
		return
	}
	name := strings.TrimPrefix(in.Name, ":")
	if _, ok := v.config.signals[name]; ok {
		return
	}

	names := make([]string, 0, len(v.config.signals))
	for s := range v.config.signals {
		names = append(names, ":"+s)
	}
	sort.Strings(names)
	v.report(undefined("signal", in.Name, in.Pos, "sys instruction", names))
}

func isRegister(name string) bool {
	for _, r := range Registers {
		if r == name {
			return true
		}
	}
	return false
}
