package validation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opal-lang/beast/core/ast"
	"github.com/opal-lang/beast/core/diag"
	"github.com/opal-lang/beast/core/types"
	"github.com/opal-lang/beast/runtime/builder"
	"github.com/opal-lang/beast/runtime/parser"
)

func module(t *testing.T, src string, opts ...parser.ParserOpt) *ast.Module {
	t.Helper()
	m, err := builder.Build(parser.ParseString(src, opts...), "test")
	require.NoError(t, err)
	return m
}

func check(t *testing.T, src string, opts ...ValidatorOpt) diag.List {
	t.Helper()
	return Check(module(t, src), opts...)
}

func TestScenarios(t *testing.T) {
	t.Run("add two u8 values", func(t *testing.T) {
		m := module(t, "(func $main (push u8 5) (push u8 3) (add u8) (ret))")
		got, err := Validate(m)
		require.NoError(t, err)
		assert.Same(t, m, got)
		assert.Equal(t, []types.Type{types.U8}, m.Functions[0].ExitStack)
	})

	t.Run("push literal out of range", func(t *testing.T) {
		errs := check(t, "(func $f (push u8 300) (ret))")
		require.Len(t, errs, 1)
		assert.Equal(t, diag.TypeError, errs[0].Kind)
		assert.Equal(t, diag.CodeLiteralOutOfRange, errs[0].Code)
		assert.Equal(t, types.Position{Line: 1, Column: 10, Offset: 9}, errs[0].Position)
		assert.Equal(t, "$f", errs[0].Function)
	})

	t.Run("constant reference resolves", func(t *testing.T) {
		m := module(t, "(const %x u8 10) (func $g (push u8 %x) (ret))")
		_, err := Validate(m)
		require.NoError(t, err)
		push := m.Functions[0].Body[0].(*ast.Push)
		assert.Same(t, m.Constants[0], push.Value.Const.Decl)
	})

	t.Run("undefined constant", func(t *testing.T) {
		errs := check(t, "(func $h (push u8 %y) (ret))")
		require.Len(t, errs, 1)
		assert.Equal(t, diag.NameError, errs[0].Kind)
		assert.Equal(t, diag.CodeUndefined, errs[0].Code)
		assert.Contains(t, errs[0].Message, "%y")
		assert.Equal(t, types.Position{Line: 1, Column: 19, Offset: 18}, errs[0].Position)
	})

	t.Run("add on empty stack", func(t *testing.T) {
		errs := check(t, "(func $i (add u8) (ret))")
		require.Len(t, errs, 1)
		assert.Equal(t, diag.TypeError, errs[0].Kind)
		assert.Equal(t, diag.CodeStackUnderflow, errs[0].Code)
		assert.Equal(t, types.Position{Line: 1, Column: 10, Offset: 9}, errs[0].Position)
	})

	t.Run("balanced loop", func(t *testing.T) {
		errs := check(t, "(func $j (push u8 1) (while (> u8) (push u8 1) (drop u8)) (ret))")
		assert.Empty(t, errs)
	})
}

func TestConstantRange(t *testing.T) {
	for _, typ := range types.All {
		lo, hi := typ.Range()
		for _, tc := range []struct {
			value int64
			ok    bool
		}{
			{lo, true},
			{hi, true},
			{lo - 1, false},
			{hi + 1, false},
		} {
			name := fmt.Sprintf("%s %d", typ, tc.value)
			t.Run(name, func(t *testing.T) {
				src := fmt.Sprintf("(const %%c %s %d)", typ, tc.value)
				errs := Check(module(t, src))
				if tc.ok {
					assert.Empty(t, errs)
					return
				}
				require.Len(t, errs, 1)
				assert.Equal(t, diag.CodeLiteralOutOfRange, errs[0].Code)
			})
		}
	}
}

func TestLiteralRanges(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code diag.Code
	}{
		{"negative on unsigned", "(func $f (push u8 -1) (drop u8) (ret))", diag.CodeLiteralOutOfRange},
		{"negative zero on unsigned", "(func $f (push u16 -0) (drop u16) (ret))", diag.CodeLiteralOutOfRange},
		{"hex fits u16", "(func $f (push u16 0xff_ff) (drop u16) (ret))", ""},
		{"overflow 64 bits", "(func $f (push i16 99999999999999999999999) (drop i16) (ret))", diag.CodeLiteralOutOfRange},
		{"untyped constant fits", "(const %c 200) (func $f (push u8 %c) (drop u8) (ret))", ""},
		{"untyped constant too big for use", "(const %c 200) (func $f (push i8 %c) (drop i8) (ret))", diag.CodeLiteralOutOfRange},
		{"untyped constant fits nothing", "(const %c 70000)", diag.CodeLiteralOutOfRange},
		{"typed constant wrong type", "(const %c u16 1) (func $f (push u8 %c) (drop u8) (ret))", diag.CodeOperandTypeMismatch},
		{"direct address too big", "(func $f (load u8 0x1_0000) (drop u8) (ret))", diag.CodeLiteralOutOfRange},
		{"negative address", "(func $f (push u8 1) (store u8 -2) (ret))", diag.CodeLiteralOutOfRange},
		{"alloc size too big", "(func $f (alloc 65536) (free) (ret))", diag.CodeLiteralOutOfRange},
		{"typed constant as address", "(const %a u8 16) (func $f (load i16 %a) (drop i16) (ret))", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := check(t, tt.src)
			if tt.code == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1, "diagnostics: %v", errs)
			assert.Equal(t, tt.code, errs[0].Code, errs[0].Message)
		})
	}
}

func TestStackEffects(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code diag.Code
		exit []types.Type
	}{
		{
			name: "unary ops keep type",
			src:  "(func $f (push i8 1) (neg i8) (not i8) (inc i8) (dec i8) (ret))",
			exit: []types.Type{types.I8},
		},
		{
			name: "binary op wrong type",
			src:  "(func $f (push u8 1) (push u8 2) (add u16) (ret))",
			code: diag.CodeOperandTypeMismatch,
		},
		{
			name: "binary op mixed operands",
			src:  "(func $f (push u16 1) (push u8 2) (sub u8) (ret))",
			code: diag.CodeOperandTypeMismatch,
		},
		{
			name: "binary op one operand",
			src:  "(func $f (push u8 1) (mul u8) (ret))",
			code: diag.CodeStackUnderflow,
		},
		{
			name: "promote then demote",
			src:  "(func $f (push u8 1) (u8_promote) (u16_demote) (push i16 -4) (i16_demote) (i8_promote) (ret))",
			exit: []types.Type{types.U8, types.I16},
		},
		{
			name: "no implicit sign change",
			src:  "(func $f (push u8 1) (i8_promote) (ret))",
			code: diag.CodeOperandTypeMismatch,
		},
		{
			name: "register pushes address",
			src:  "(func $f (reg :sp) (reg :bp) (ret))",
			exit: []types.Type{types.U16, types.U16},
		},
		{
			name: "direct load and store",
			src:  "(func $f (load i16 0x20) (store i16 0x22) (ret))",
			exit: []types.Type{},
		},
		{
			name: "indirect load takes address",
			src:  "(func $f (push u16 0x20) (load i8) (ret))",
			exit: []types.Type{types.I8},
		},
		{
			name: "indirect load without address",
			src:  "(func $f (load i8) (ret))",
			code: diag.CodeStackUnderflow,
		},
		{
			name: "indirect store takes value then address",
			src:  "(func $f (push u8 7) (push u16 0x20) (store u8) (ret))",
			exit: []types.Type{},
		},
		{
			name: "indirect store with swapped operands",
			src:  "(func $f (push u16 0x20) (push u8 7) (store u8) (ret))",
			code: diag.CodeOperandTypeMismatch,
		},
		{
			name: "dup duplicates top",
			src:  "(func $f (push u8 1) (dup u8) (ret))",
			exit: []types.Type{types.U8, types.U8},
		},
		{
			name: "dup wrong type",
			src:  "(func $f (push u8 1) (dup i8) (ret))",
			code: diag.CodeOperandTypeMismatch,
		},
		{
			name: "drop empty",
			src:  "(func $f (drop u16) (ret))",
			code: diag.CodeStackUnderflow,
		},
		{
			name: "alloc and free",
			src:  "(func $f (alloc 8) (dup u16) (free) (ret))",
			exit: []types.Type{types.U16},
		},
		{
			name: "free without address",
			src:  "(func $f (push u8 1) (free) (ret))",
			code: diag.CodeOperandTypeMismatch,
		},
		{
			name: "call and sys leave stack alone",
			src:  "(func $g (ret)) (func $f (push u8 1) (call $g) (sys :write) (ret))",
			exit: []types.Type{types.U8},
		},
		{
			name: "exit stack at first ret",
			src:  "(func $f (push u8 1) (ret) (push u8 2) (ret))",
			exit: []types.Type{types.U8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := module(t, tt.src)
			errs := Check(m)
			if tt.code != "" {
				require.Len(t, errs, 1, "diagnostics: %v", errs)
				assert.Equal(t, tt.code, errs[0].Code, errs[0].Message)
				return
			}
			require.Empty(t, errs)
			fn := m.Functions[len(m.Functions)-1]
			assert.Equal(t, len(tt.exit), len(fn.ExitStack))
			for i := range tt.exit {
				assert.Equal(t, tt.exit[i], fn.ExitStack[i])
			}
		})
	}
}

func TestMismatchHints(t *testing.T) {
	errs := check(t, "(func $f (push u8 1) (drop u16) (ret))")
	require.Len(t, errs, 1)
	assert.Equal(t, "use (u8_promote) to convert u8 to u16", errs[0].Note)
	assert.Equal(t, "u8", errs[0].Got)

	errs = check(t, "(func $f (push u8 1) (drop i8) (ret))")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Note, "signed and unsigned")
}

func TestControlFlow(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code diag.Code
		pos  types.Position
	}{
		{
			name: "loop body pushes",
			src:  "(func $f (push u8 1) (while (> u8) (push u8 1)) (ret))",
			code: diag.CodeUnbalancedLoopStack,
			pos:  types.Position{Line: 1, Column: 22, Offset: 21},
		},
		{
			name: "loop body pops",
			src:  "(func $f (push u8 1) (push u8 1) (while (> u8) (drop u8)) (ret))",
			code: diag.CodeUnbalancedLoopStack,
		},
		{
			name: "loop body changes type",
			src:  "(func $f (push u8 1) (while (!= u8) (u8_promote) (u16_demote) (u8_promote)) (ret))",
			code: diag.CodeUnbalancedLoopStack,
		},
		{
			name: "nested balanced loops",
			src:  "(func $f (push u8 1) (while (> u8) (dec u8) (while (> u8) (dup u8) (drop u8))) (ret))",
		},
		{
			name: "comparison inspects one operand",
			src:  "(func $f (push u8 1) (while (> u8) (dec u8)) (drop u8) (ret))",
		},
		{
			name: "comparison keeps its operand",
			src:  "(func $f (push u8 1) (if (== u8) (drop u8) (push u8 2)) (drop u8) (ret))",
		},
		{
			name: "condition on empty stack",
			src:  "(func $f (while (< i8) (ret)) (ret))",
			code: diag.CodeStackUnderflow,
		},
		{
			name: "condition type mismatch",
			src:  "(func $f (push u8 1) (if (< i8) (ret)) (ret))",
			code: diag.CodeOperandTypeMismatch,
		},
		{
			name: "branches agree",
			src:  "(func $f (push u8 1) (if (== u8) (push u8 2) (else (push u8 3))) (ret))",
		},
		{
			name: "branches disagree",
			src:  "(func $f (push u8 1) (if (== u8) (push u8 2) (else (push u16 3))) (ret))",
			code: diag.CodeBranchStackMismatch,
			pos:  types.Position{Line: 1, Column: 46, Offset: 45},
		},
		{
			name: "if without else must balance",
			src:  "(func $f (push u8 1) (if (== u8) (drop u8)) (ret))",
			code: diag.CodeBranchStackMismatch,
			pos:  types.Position{Line: 1, Column: 22, Offset: 21},
		},
		{
			name: "error inside branch",
			src:  "(func $f (push u8 1) (if (== u8) (add u8)) (ret))",
			code: diag.CodeStackUnderflow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := check(t, tt.src)
			if tt.code == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1, "diagnostics: %v", errs)
			assert.Equal(t, tt.code, errs[0].Code, errs[0].Message)
			if tt.pos.IsValid() {
				assert.Equal(t, tt.pos, errs[0].Position)
			}
		})
	}
}

func TestFlagConditions(t *testing.T) {
	src := "(func $f (push u8 3) (while (nz) (dec u8)) (ret))"
	m := module(t, src, parser.WithDialect(parser.DialectFlags))
	assert.Empty(t, Check(m))

	m = module(t, "(func $f (if (z) (ret)) (ret))", parser.WithDialect(parser.DialectFlags))
	errs := Check(m)
	require.Len(t, errs, 1)
	assert.Equal(t, diag.CodeStackUnderflow, errs[0].Code)
	assert.Equal(t, 14, errs[0].Position.Column)
}

func TestNames(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		codes []diag.Code
	}{
		{
			name:  "duplicate function",
			src:   "(func $f (ret)) (func $f (ret))",
			codes: []diag.Code{diag.CodeDuplicate},
		},
		{
			name:  "import collides with function",
			src:   "(import $f from std.io) (func $f (ret))",
			codes: []diag.Code{diag.CodeDuplicate},
		},
		{
			name:  "alias avoids collision",
			src:   "(import $f as $g from std.io) (func $f (call $g) (ret))",
			codes: nil,
		},
		{
			name:  "functions and constants are separate",
			src:   "(const %f 1) (func $f (ret))",
			codes: nil,
		},
		{
			name:  "duplicate constant",
			src:   "(const %c 1) (const %c u8 2)",
			codes: []diag.Code{diag.CodeDuplicate},
		},
		{
			name:  "duplicate export name",
			src:   "(func $f (ret)) (func $g (ret)) (export $f as $x) (export $g as $x)",
			codes: []diag.Code{diag.CodeDuplicate},
		},
		{
			name:  "function exported twice",
			src:   "(func $f (ret)) (export $f as $a) (export $f as $b)",
			codes: []diag.Code{diag.CodeDuplicate},
		},
		{
			name:  "same export repeated",
			src:   "(func $f (ret)) (export $f) (export $f)",
			codes: []diag.Code{diag.CodeDuplicate},
		},
		{
			name:  "export of undefined",
			src:   "(export $nope)",
			codes: []diag.Code{diag.CodeUndefined},
		},
		{
			name:  "call of undefined",
			src:   "(func $f (call $g) (ret))",
			codes: []diag.Code{diag.CodeUndefined},
		},
		{
			name:  "unknown register",
			src:   "(func $f (reg :ip) (drop u16) (ret))",
			codes: []diag.Code{diag.CodeUnknownRegister},
		},
		{
			name:  "every name error is reported",
			src:   "(func $f (push u8 %a) (push u8 %b) (call $c) (drop u8) (drop u8) (ret))",
			codes: []diag.Code{diag.CodeUndefined, diag.CodeUndefined, diag.CodeUndefined},
		},
		{
			name:  "missing return",
			src:   "(func $f (push u8 1) (if (== u8) (ret)) (drop u8))",
			codes: []diag.Code{diag.CodeMissingReturn},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := check(t, tt.src)
			assert.Equal(t, tt.codes, nilIfEmpty(errs.Codes()), "diagnostics: %v", errs)
		})
	}
}

func nilIfEmpty(codes []diag.Code) []diag.Code {
	if len(codes) == 0 {
		return nil
	}
	return codes
}

func TestResolutionFillsReferences(t *testing.T) {
	m := module(t, `
(import $print as $p from std.io)
(func $main (call $p) (call $helper) (ret))
(func $helper (ret))
(export $p as $out)
(export $main)
`)
	require.Empty(t, Check(m))

	calls := m.Functions[0].Body
	assert.Same(t, m.Imports[0], calls[0].(*ast.Call).External)
	assert.Nil(t, calls[1].(*ast.Call).External)
	assert.Same(t, m.Imports[0], m.Exports[0].External)
	assert.Nil(t, m.Exports[1].External)
}

func TestSuggestions(t *testing.T) {
	errs := check(t, "(const %count 1) (func $main (push u8 %cnt) (call $mian) (drop u8) (ret))")
	require.Len(t, errs, 2)
	assert.Equal(t, "did you mean %count?", errs[0].Suggestion)
	assert.Equal(t, "did you mean $main?", errs[1].Suggestion)

	errs = check(t, "(func $f (reg :s) (drop u16) (ret))")
	require.Len(t, errs, 1)
	assert.Equal(t, "did you mean :sp?", errs[0].Suggestion)
}

func TestSignals(t *testing.T) {
	src := "(func $f (sys :write) (sys :exti) (ret))"

	assert.Empty(t, check(t, src))

	errs := check(t, src, WithSignals(map[string]uint16{"write": 1, "exit": 60}))
	require.Len(t, errs, 1)
	assert.Equal(t, diag.CodeUndefined, errs[0].Code)
	assert.Equal(t, "did you mean :exit?", errs[0].Suggestion)
}

func TestDiagnosticsAggregate(t *testing.T) {
	src := `(func $a (add u8) (drop u8) (ret))
(func $b (push u8 1) (while (> u8) (push u8 1)) (ret))
(func $c (push u8 %missing) (ret))`

	errs := check(t, src)
	require.Len(t, errs, 3, "diagnostics: %v", errs)

	// One stack violation per function, in source order.
	assert.Equal(t, []diag.Code{diag.CodeStackUnderflow, diag.CodeUnbalancedLoopStack, diag.CodeUndefined}, errs.Codes())
	assert.Equal(t, []string{"$a", "$b", "$c"}, []string{errs[0].Function, errs[1].Function, errs[2].Function})
	for i := 1; i < len(errs); i++ {
		assert.Less(t, errs[i-1].Position.Offset, errs[i].Position.Offset)
	}

	m, err := Validate(module(t, src))
	assert.Nil(t, m)
	assert.ErrorIs(t, err, diag.Diagnostic{Code: diag.CodeUnbalancedLoopStack})
}

func TestValidateIsIdempotent(t *testing.T) {
	m := module(t, `
(import $print from std.io)
(const %n u8 3)
(func $main
  (push u8 %n)
  (while (> u8)
    (dec u8)
    (call $print))
  (ret))
(export $main)
`)
	require.Empty(t, Check(m))
	exit := m.Functions[0].ExitStack
	require.Empty(t, Check(m))
	assert.Equal(t, exit, m.Functions[0].ExitStack)
}

func TestFindRecursion(t *testing.T) {
	m := module(t, `
(import $ext from std.io)
(func $a (call $b) (ret))
(func $b (call $c) (call $ext) (ret))
(func $c (call $a) (call $b) (ret))
(func $self (if (== u8) (call $self)) (ret))
(func $leaf (ret))
`)

	cycles := FindRecursion(m)
	var got []string
	for _, c := range cycles {
		got = append(got, c.String())
	}
	assert.Equal(t, []string{
		"$a -> $b -> $c -> $a",
		"$b -> $c -> $b",
		"$self -> $self",
	}, got)

	graph := CallGraph(m)
	assert.Equal(t, []string{"$c"}, graph["$b"])
	assert.Empty(t, graph["$leaf"])
}
