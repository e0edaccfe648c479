// Package parser turns Beast tokens into a flat event stream describing the
// nested parenthesized structure of a module.
//
// Parsing stops at the first lexical or syntax error: a malformed
// S-expression cannot be resynchronized without risking cascading false
// errors, so ParseTree.Errors holds at most one diagnostic.
package parser

import (
	"fmt"
	"time"

	"github.com/opal-lang/beast/core/diag"
	"github.com/opal-lang/beast/core/invariant"
	"github.com/opal-lang/beast/runtime/lexer"
)

// Parse parses source into an event-based parse tree.
func Parse(source []byte, opts ...ParserOpt) *ParseTree {
	config := &ParserConfig{}
	for _, opt := range opts {
		opt(config)
	}

	var telemetry *ParseTelemetry
	var startTotal time.Time
	if config.telemetry >= TelemetryBasic {
		telemetry = &ParseTelemetry{}
		if config.telemetry >= TelemetryTiming {
			startTotal = time.Now()
		}
	}

	lex := lexer.NewLexer()
	lex.Init(source)
	all := lex.GetTokens()

	if config.telemetry >= TelemetryBasic {
		telemetry.TokenCount = len(all)
		if config.telemetry >= TelemetryTiming {
			telemetry.LexTime = time.Since(startTotal)
		}
	}

	tokens := make([]lexer.Token, 0, len(all))
	for _, tok := range all {
		if tok.Type != lexer.COMMENT {
			tokens = append(tokens, tok)
		}
	}

	// Heuristic: ~1.5 events per token (most tokens are leaves)
	eventCap := len(tokens) * 3 / 2
	if eventCap < 16 {
		eventCap = 16
	}

	p := &parser{
		tokens:  tokens,
		lexErrs: lex.Errors(),
		events:  make([]Event, 0, eventCap),
		config:  config,
	}

	var startParse time.Time
	if config.telemetry >= TelemetryTiming {
		startParse = time.Now()
	}

	p.run()

	if config.telemetry >= TelemetryBasic {
		telemetry.EventCount = len(p.events)
		telemetry.ErrorCount = len(p.errors)
		if config.telemetry >= TelemetryTiming {
			telemetry.ParseTime = time.Since(startParse)
			telemetry.TotalTime = time.Since(startTotal)
		}
	}

	invariant.Postcondition(len(p.errors) <= 1, "parser reports at most one error, got %d", len(p.errors))

	return &ParseTree{
		Source:    source,
		Tokens:    tokens,
		Events:    p.events,
		Errors:    p.errors,
		Dialect:   config.dialect,
		Telemetry: telemetry,
	}
}

// ParseString is a convenience wrapper for tests
func ParseString(input string, opts ...ParserOpt) *ParseTree {
	return Parse([]byte(input), opts...)
}

// bailout unwinds the parser after the first error.
type bailout struct{}

// parser is the internal parser state
type parser struct {
	tokens  []lexer.Token
	lexErrs diag.List
	pos     int
	events  []Event
	errors  diag.List
	config  *ParserConfig
	opened  []lexer.Token // unclosed '(' tokens, innermost last
}

func (p *parser) run() {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); !ok {
				panic(r)
			}
		}
	}()
	p.file()
}

// file parses the top-level sequence of file fields
func (p *parser) file() {
	kind := p.start(NodeSource)

	fields := 0
	for !p.at(lexer.EOF) {
		prevPos := p.pos

		switch tok := p.current(); tok.Type {
		case lexer.LPAREN:
			p.field()
			fields++
		case lexer.RPAREN:
			p.abort(diag.Diagnostic{
				Code:       diag.CodeUnbalancedParens,
				Position:   tok.Position,
				Message:    "unexpected ')' with no matching '('",
				Suggestion: "remove the extra ')'",
			})
		default:
			msg := "unexpected " + describe(tok) + " at top level"
			if fields > 0 {
				msg = "unexpected " + describe(tok) + " after the last file field"
			}
			p.abort(diag.Diagnostic{
				Code:       diag.CodeTrailingInput,
				Position:   tok.Position,
				Message:    msg,
				Expected:   []string{"'('"},
				Suggestion: "every file field is parenthesized: (import ...), (const ...), (func ...) or (export ...)",
			})
		}

		invariant.Invariant(p.pos > prevPos, "parser stuck in file() at pos %d", p.pos)
	}

	p.finish(kind)
}

// field dispatches on the keyword after '('
func (p *parser) field() {
	switch kw := p.peek(1); kw.Type {
	case lexer.IMPORT:
		p.importDecl()
	case lexer.CONST:
		p.constDecl()
	case lexer.FUNC:
		p.function()
	case lexer.EXPORT:
		p.exportDecl()
	case lexer.EOF:
		p.open()
		p.unclosed()
	default:
		d := diag.Diagnostic{
			Code:     diag.CodeUnknownKeyword,
			Position: kw.Position,
			Message:  "unknown file field " + describe(kw),
			Expected: []string{"import", "const", "func", "export"},
			Example:  "(func $main (ret))",
		}
		if match := diag.ClosestMatch(kw.String(), []string{"import", "const", "func", "export"}); match != "" {
			d.Suggestion = fmt.Sprintf("did you mean %q?", match)
		}
		p.abort(d)
	}
}

// importDecl parses (import $f [as $g] from origin)
func (p *parser) importDecl() {
	kind := p.start(NodeImport)
	p.open()
	p.token() // import

	p.expect(lexer.FUNC_ID, "function id", "import")
	if p.at(lexer.AS) {
		p.token()
		p.expect(lexer.FUNC_ID, "alias", "import")
	}
	p.expect(lexer.FROM, "'from'", "import")
	p.origin()

	p.close("import", "(import $print as $p from std.io)")
	p.finish(kind)
}

// origin parses the module an import comes from. Its spelling depends on
// the dialect.
func (p *parser) origin() {
	tok := p.current()

	if p.config.dialect == DialectFlags {
		switch tok.Type {
		case lexer.STRING:
			p.token()
			return
		case lexer.PATH, lexer.IDENTIFIER:
			p.abort(diag.Diagnostic{
				Code:       diag.CodeDialect,
				Position:   tok.Position,
				Message:    "import origins are quoted strings in the flags dialect",
				Suggestion: fmt.Sprintf("write \"%s\"", tok.Text),
			})
		}
		p.expect(lexer.STRING, "origin string", "import")
		return
	}

	switch tok.Type {
	case lexer.PATH, lexer.IDENTIFIER:
		if !lexer.IsModulePath(tok.String()) {
			p.abort(diag.Diagnostic{
				Code:     diag.CodeUnexpectedToken,
				Position: tok.Position,
				Message:  fmt.Sprintf("invalid module path %q", tok.Text),
				Note:     "module paths are lowercase segments separated by dots, like std.io",
			})
		}
		p.token()
		return
	case lexer.STRING:
		p.abort(diag.Diagnostic{
			Code:       diag.CodeDialect,
			Position:   tok.Position,
			Message:    "quoted import origins require the flags dialect",
			Suggestion: "write the origin as a dotted module path, like std.io",
		})
	}
	p.expect(lexer.PATH, "module path", "import")
}

// constDecl parses (const %c [type] literal)
func (p *parser) constDecl() {
	kind := p.start(NodeConstant)
	p.open()
	p.token() // const

	p.expect(lexer.CONST_ID, "constant id", "constant")
	if p.at(lexer.TYPE) {
		p.token()
	} else if p.config.dialect == DialectFlags {
		tok := p.current()
		if tok.Type == lexer.EOF {
			p.unclosed()
		}
		p.abort(diag.Diagnostic{
			Code:     diag.CodeMissingOperand,
			Position: tok.Position,
			Message:  "constant type is required in the flags dialect",
			Expected: []string{"type"},
			Example:  "(const %limit u8 10)",
		})
	}
	p.expect(lexer.INTEGER, "literal", "constant")

	p.close("constant", "(const %limit u8 10)")
	p.finish(kind)
}

// exportDecl parses (export $f [as $g])
func (p *parser) exportDecl() {
	kind := p.start(NodeExport)
	p.open()
	p.token() // export

	p.expect(lexer.FUNC_ID, "function id", "export")
	if p.at(lexer.AS) {
		p.token()
		p.expect(lexer.FUNC_ID, "alias", "export")
	}

	p.close("export", "(export $main as $start)")
	p.finish(kind)
}

// function parses (func $f instr*)
func (p *parser) function() {
	kind := p.start(NodeFunction)
	p.open()
	p.token() // func

	p.expect(lexer.FUNC_ID, "function id", "function")
	p.body(false)

	p.close("function", "(func $main (push u8 1) (ret))")
	p.finish(kind)
}

// body parses a sequence of instructions. With allowElse it stops before an
// (else ...) block so the enclosing if can claim it.
func (p *parser) body(allowElse bool) {
	for p.at(lexer.LPAREN) {
		if allowElse && p.peek(1).Type == lexer.ELSE {
			return
		}
		prevPos := p.pos
		p.instruction()
		invariant.Invariant(p.pos > prevPos, "parser stuck in body() at pos %d", p.pos)
	}
}

// instruction parses one instruction: a while loop, an if block or a plain
// instruction.
func (p *parser) instruction() {
	switch kw := p.peek(1); kw.Type {
	case lexer.WHILE:
		p.whileLoop()
	case lexer.IF:
		p.ifCond()
	case lexer.IDENTIFIER:
		p.plainInstruction()
	case lexer.ELSE:
		p.abort(diag.Diagnostic{
			Code:       diag.CodeUnexpectedToken,
			Position:   kw.Position,
			Message:    "else without if",
			Suggestion: "(else ...) must be the last element of an (if ...) block",
			Example:    "(if (== u8) (ret) (else (drop u8)))",
		})
	case lexer.EOF:
		p.open()
		p.unclosed()
	default:
		p.abort(diag.Diagnostic{
			Code:     diag.CodeUnknownKeyword,
			Position: kw.Position,
			Message:  describe(kw) + " is not an instruction",
			Expected: []string{"instruction"},
			Example:  "(push u8 1)",
		})
	}
}

// whileLoop parses (while cond instr*)
func (p *parser) whileLoop() {
	kind := p.start(NodeWhile)
	p.open()
	p.token() // while

	p.condition("while")
	p.body(false)

	p.close("while loop", "(while (> u8) (dec u8))")
	p.finish(kind)
}

// ifCond parses (if cond instr* [(else instr*)])
func (p *parser) ifCond() {
	kind := p.start(NodeIf)
	p.open()
	p.token() // if

	p.condition("if")
	p.body(true)

	if p.at(lexer.LPAREN) && p.peek(1).Type == lexer.ELSE {
		elseKind := p.start(NodeElse)
		p.open()
		p.token() // else
		p.body(false)
		p.close("else block", "(else (drop u8))")
		p.finish(elseKind)
	}

	p.close("if block", "(if (== u8) (ret) (else (drop u8)))")
	p.finish(kind)
}

// condition parses (op type) or, in the flags dialect, (p|n|z|nz)
func (p *parser) condition(owner string) {
	kind := p.start(NodeCondition)

	example := "(" + owner + " (> u8) ...)"
	if p.config.dialect == DialectFlags {
		example = "(" + owner + " (nz) ...)"
	}

	if !p.at(lexer.LPAREN) {
		tok := p.current()
		if tok.Type == lexer.EOF {
			p.unclosed()
		}
		p.abort(diag.Diagnostic{
			Code:     diag.CodeMalformedCondition,
			Position: tok.Position,
			Message:  owner + " requires a condition",
			Expected: []string{"'('"},
			Example:  example,
		})
	}
	p.open()

	tok := p.current()
	switch {
	case isComparison(tok.Type):
		if p.config.dialect == DialectFlags {
			p.abort(diag.Diagnostic{
				Code:       diag.CodeMalformedCondition,
				Position:   tok.Position,
				Message:    "comparison conditions are not available in the flags dialect",
				Suggestion: "use one of p, n, z or nz",
				Example:    example,
			})
		}
		p.token()
		if !p.at(lexer.TYPE) {
			next := p.current()
			if next.Type == lexer.EOF {
				p.unclosed()
			}
			p.abort(diag.Diagnostic{
				Code:     diag.CodeMalformedCondition,
				Position: next.Position,
				Message:  fmt.Sprintf("comparison '%s' requires a type", tok.Symbol()),
				Expected: []string{"type"},
				Example:  example,
			})
		}
		p.token()
	case tok.Type == lexer.IDENTIFIER && flagConditions[tok.String()]:
		if p.config.dialect != DialectFlags {
			p.abort(diag.Diagnostic{
				Code:       diag.CodeMalformedCondition,
				Position:   tok.Position,
				Message:    fmt.Sprintf("flag condition (%s) requires the flags dialect", tok.Text),
				Suggestion: "compare against a type instead, like (> u8)",
				Example:    example,
			})
		}
		p.token()
	case tok.Type == lexer.EOF:
		p.unclosed()
	default:
		expected := []string{"'<'", "'<='", "'>'", "'>='", "'=='", "'!='"}
		if p.config.dialect == DialectFlags {
			expected = []string{"p", "n", "z", "nz"}
		}
		p.abort(diag.Diagnostic{
			Code:     diag.CodeMalformedCondition,
			Position: tok.Position,
			Message:  "malformed condition: unexpected " + describe(tok),
			Expected: expected,
			Example:  example,
		})
	}

	if !p.at(lexer.RPAREN) {
		tok := p.current()
		if tok.Type == lexer.EOF {
			p.unclosed()
		}
		p.abort(diag.Diagnostic{
			Code:     diag.CodeMalformedCondition,
			Position: tok.Position,
			Message:  "unexpected " + describe(tok) + " in condition",
			Expected: []string{"')'"},
			Example:  example,
		})
	}
	p.token()
	p.opened = p.opened[:len(p.opened)-1]

	p.finish(kind)
}

// plainInstruction parses (mnemonic operand*) against the instruction table
func (p *parser) plainInstruction() {
	kind := p.start(NodeInstruction)
	p.open()

	tok := p.current()
	name := tok.String()
	spec, ok := instructions[name]
	if !ok {
		d := diag.Diagnostic{
			Code:     diag.CodeUnknownKeyword,
			Position: tok.Position,
			Message:  fmt.Sprintf("unknown instruction %q", name),
			Expected: []string{"instruction"},
		}
		if match := diag.ClosestMatch(name, Mnemonics(p.config.dialect)); match != "" {
			d.Suggestion = fmt.Sprintf("did you mean %q?", match)
			d.Example = instructions[match].example
		}
		p.abort(d)
	}
	if p.config.dialect == DialectFlags && !spec.flags {
		p.abort(diag.Diagnostic{
			Code:     diag.CodeDialect,
			Position: tok.Position,
			Message:  fmt.Sprintf("instruction %q is not available in the flags dialect", name),
			Note:     "the flags dialect has no memory, register, stack-shuffling, syscall or conversion instructions",
		})
	}
	p.token()

	for _, op := range spec.operands {
		p.operand(op, name, spec.example)
	}

	p.close(name+" instruction", spec.example)
	p.finish(kind)
}

// operand consumes one operand slot of a plain instruction
func (p *parser) operand(op operandKind, mnemonic, example string) {
	var want []lexer.TokenType
	switch op {
	case operandType:
		want = []lexer.TokenType{lexer.TYPE}
	case operandValue:
		want = []lexer.TokenType{lexer.INTEGER, lexer.CONST_ID}
	case operandAddress:
		if p.at(lexer.INTEGER) || p.at(lexer.CONST_ID) {
			p.token()
		}
		return
	case operandRegister, operandSignal:
		want = []lexer.TokenType{lexer.ATOM}
	case operandFunction:
		want = []lexer.TokenType{lexer.FUNC_ID}
	}

	tok := p.current()
	for _, typ := range want {
		if tok.Type == typ {
			p.token()
			return
		}
	}

	switch tok.Type {
	case lexer.EOF:
		p.unclosed()
	case lexer.RPAREN:
		p.abort(diag.Diagnostic{
			Code:     diag.CodeMissingOperand,
			Position: tok.Position,
			Message:  fmt.Sprintf("%s requires a %s", mnemonic, op),
			Context:  mnemonic + " instruction",
			Expected: []string{op.String()},
			Example:  example,
		})
	}

	d := diag.Diagnostic{
		Code:     diag.CodeUnexpectedToken,
		Position: tok.Position,
		Message:  fmt.Sprintf("expected %s, got %s", op, describe(tok)),
		Context:  mnemonic + " instruction",
		Expected: []string{op.String()},
		Example:  example,
	}
	if op == operandType && tok.Type == lexer.IDENTIFIER {
		d.Note = "the types are u8, u16, i8 and i16"
	}
	p.abort(d)
}

// expect consumes a token of type typ or aborts. what names the token for
// the message, context names the enclosing form.
func (p *parser) expect(typ lexer.TokenType, what, context string) {
	tok := p.current()
	if tok.Type == typ {
		p.token()
		return
	}

	switch tok.Type {
	case lexer.EOF:
		p.unclosed()
	case lexer.RPAREN:
		p.abort(diag.Diagnostic{
			Code:     diag.CodeMissingOperand,
			Position: tok.Position,
			Message:  "missing " + what,
			Context:  context,
			Expected: []string{what},
		})
	}
	p.abort(diag.Diagnostic{
		Code:     diag.CodeUnexpectedToken,
		Position: tok.Position,
		Message:  fmt.Sprintf("expected %s, got %s", what, describe(tok)),
		Context:  context,
		Expected: []string{what},
	})
}

// open consumes a '(' and remembers it for unbalanced-paren reporting
func (p *parser) open() {
	invariant.Precondition(p.at(lexer.LPAREN), "open() called at %s", p.current().Type)
	p.opened = append(p.opened, p.current())
	p.token()
}

// close consumes the ')' matching the innermost open '('
func (p *parser) close(context, example string) {
	tok := p.current()
	switch tok.Type {
	case lexer.RPAREN:
		p.token()
		p.opened = p.opened[:len(p.opened)-1]
		return
	case lexer.EOF:
		p.unclosed()
	}
	p.abort(diag.Diagnostic{
		Code:     diag.CodeUnexpectedToken,
		Position: tok.Position,
		Message:  "unexpected " + describe(tok),
		Context:  context,
		Expected: []string{"')'"},
		Example:  example,
	})
}

// unclosed aborts at end of input with the innermost '(' still open
func (p *parser) unclosed() {
	invariant.Invariant(len(p.opened) > 0, "unclosed() with no open parenthesis")
	open := p.opened[len(p.opened)-1]
	p.abort(diag.Diagnostic{
		Code:       diag.CodeUnbalancedParens,
		Position:   open.Position,
		Message:    "unclosed '('",
		Suggestion: "add the missing ')'",
		Note:       fmt.Sprintf("end of file reached with %d unclosed '('", len(p.opened)),
	})
}

// abort records d as a syntax error and unwinds the parser. A lexical error
// found on the way takes its place.
func (p *parser) abort(d diag.Diagnostic) {
	if d.Kind == 0 {
		d.Kind = diag.SyntaxError
	}
	p.errors = append(p.errors, d)
	panic(bailout{})
}

// lexError reports the diagnostic that produced the ILLEGAL token at index i
func (p *parser) lexError(i int) {
	n := 0
	for j := 0; j < i; j++ {
		if p.tokens[j].Type == lexer.ILLEGAL {
			n++
		}
	}
	invariant.Invariant(n < len(p.lexErrs), "ILLEGAL token %d has no lexer diagnostic", i)
	p.abort(p.lexErrs[n])
}

// at checks if current token is of given type
func (p *parser) at(typ lexer.TokenType) bool {
	return p.current().Type == typ
}

// current returns the current token
func (p *parser) current() lexer.Token {
	return p.peek(0)
}

// peek returns the token n positions ahead. Looking at an ILLEGAL token
// reports its lexical error.
func (p *parser) peek(n int) lexer.Token {
	i := p.pos + n
	if i >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1] // EOF
	}
	if p.tokens[i].Type == lexer.ILLEGAL {
		p.lexError(i)
	}
	return p.tokens[i]
}

// advance moves to the next token
func (p *parser) advance() {
	if p.pos < len(p.tokens) {
		p.pos++
	}
}

// start emits an Open event with the given node kind and returns it for matching close
func (p *parser) start(kind NodeKind) NodeKind {
	p.events = append(p.events, Event{Kind: EventOpen, Data: uint32(kind)})
	return kind
}

// finish emits a Close event with the given node kind
func (p *parser) finish(kind NodeKind) {
	p.events = append(p.events, Event{Kind: EventClose, Data: uint32(kind)})
}

// token emits a Token event and advances
func (p *parser) token() {
	p.events = append(p.events, Event{Kind: EventToken, Data: uint32(p.pos)})
	p.advance()
}

func isComparison(t lexer.TokenType) bool {
	switch t {
	case lexer.LT, lexer.LT_EQ, lexer.GT, lexer.GT_EQ, lexer.EQ_EQ, lexer.NOT_EQ:
		return true
	}
	return false
}
