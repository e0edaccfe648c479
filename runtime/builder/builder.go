// Package builder turns parser events into a typed ast.Module. It is a pure
// structural pass: names are not resolved and nothing is type-checked.
package builder

import (
	"fmt"

	"github.com/opal-lang/beast/core/ast"
	"github.com/opal-lang/beast/core/types"
	"github.com/opal-lang/beast/runtime/lexer"
	"github.com/opal-lang/beast/runtime/parser"
)

// Build converts a parse tree into a module named name. A tree carrying
// parse errors yields those errors.
func Build(tree *parser.ParseTree, name string) (*ast.Module, error) {
	if err := tree.Err(); err != nil {
		return nil, err
	}
	return BuildModule(name, tree.Events, tree.Tokens)
}

// BuildModule constructs a module from parser events and tokens. The event
// stream must come from a successful parse; anything else is reported as a
// malformed stream.
func BuildModule(name string, events []parser.Event, tokens []lexer.Token) (*ast.Module, error) {
	b := &builder{events: events, tokens: tokens}
	m := b.buildSource(name)
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// builder walks parser events. The first failure sticks; later calls become
// no-ops returning zero values.
type builder struct {
	events []parser.Event
	tokens []lexer.Token
	pos    int
	err    error
}

func (b *builder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("malformed event stream at event %d: "+format, append([]any{b.pos}, args...)...)
	}
}

// peekOpen returns the kind of the Open event at the cursor.
func (b *builder) peekOpen() (parser.NodeKind, bool) {
	if b.err != nil || b.pos >= len(b.events) {
		return 0, false
	}
	ev := b.events[b.pos]
	if ev.Kind != parser.EventOpen {
		return 0, false
	}
	return parser.NodeKind(ev.Data), true
}

// enter consumes the Open event of kind.
func (b *builder) enter(kind parser.NodeKind) {
	if got, ok := b.peekOpen(); !ok || got != kind {
		b.fail("expected open %s", kind)
		return
	}
	b.pos++
}

// exit consumes the Close event of kind.
func (b *builder) exit(kind parser.NodeKind) {
	if b.err != nil {
		return
	}
	if b.pos >= len(b.events) {
		b.fail("missing close %s", kind)
		return
	}
	ev := b.events[b.pos]
	if ev.Kind != parser.EventClose || parser.NodeKind(ev.Data) != kind {
		b.fail("expected close %s, got %s", kind, ev.Kind)
		return
	}
	b.pos++
}

// peekToken returns the token behind the Token event at the cursor.
func (b *builder) peekToken() (lexer.Token, bool) {
	if b.err != nil || b.pos >= len(b.events) {
		return lexer.Token{}, false
	}
	ev := b.events[b.pos]
	if ev.Kind != parser.EventToken {
		return lexer.Token{}, false
	}
	if int(ev.Data) >= len(b.tokens) {
		b.fail("token index %d out of range", ev.Data)
		return lexer.Token{}, false
	}
	return b.tokens[ev.Data], true
}

// accept consumes the next token if it has one of the given types.
func (b *builder) accept(want ...lexer.TokenType) (lexer.Token, bool) {
	tok, ok := b.peekToken()
	if !ok {
		return lexer.Token{}, false
	}
	for _, typ := range want {
		if tok.Type == typ {
			b.pos++
			return tok, true
		}
	}
	return lexer.Token{}, false
}

// token consumes the next token, which must have one of the given types.
func (b *builder) token(want ...lexer.TokenType) lexer.Token {
	tok, ok := b.accept(want...)
	if !ok {
		b.fail("expected token %v", want)
	}
	return tok
}

func (b *builder) buildSource(name string) *ast.Module {
	m := &ast.Module{Name: name, Pos: types.Position{Line: 1, Column: 1}}

	b.enter(parser.NodeSource)
	for {
		kind, ok := b.peekOpen()
		if !ok {
			break
		}
		switch kind {
		case parser.NodeImport:
			m.Imports = append(m.Imports, b.buildImport())
		case parser.NodeConstant:
			m.Constants = append(m.Constants, b.buildConstant())
		case parser.NodeFunction:
			m.Functions = append(m.Functions, b.buildFunction())
		case parser.NodeExport:
			m.Exports = append(m.Exports, b.buildExport())
		default:
			b.fail("unexpected %s at top level", kind)
		}
	}
	b.exit(parser.NodeSource)

	if b.err == nil && b.pos != len(b.events) {
		b.fail("%d events after source", len(b.events)-b.pos)
	}
	return m
}

func (b *builder) buildImport() *ast.Import {
	b.enter(parser.NodeImport)
	lp := b.token(lexer.LPAREN)
	b.token(lexer.IMPORT)

	imp := &ast.Import{
		Name: b.token(lexer.FUNC_ID).String(),
		Pos:  lp.Position,
	}
	if _, ok := b.accept(lexer.AS); ok {
		imp.Alias = b.token(lexer.FUNC_ID).String()
	}
	b.token(lexer.FROM)

	origin := b.token(lexer.PATH, lexer.IDENTIFIER, lexer.STRING)
	if origin.Type == lexer.STRING {
		s, err := lexer.Unquote(origin.Text)
		if err != nil {
			b.fail("import origin %s: %v", origin.Text, err)
		}
		imp.Origin, imp.Quoted = s, true
	} else {
		imp.Origin = origin.String()
	}

	b.token(lexer.RPAREN)
	b.exit(parser.NodeImport)
	return imp
}

func (b *builder) buildConstant() *ast.Constant {
	b.enter(parser.NodeConstant)
	lp := b.token(lexer.LPAREN)
	b.token(lexer.CONST)

	c := &ast.Constant{
		Name: b.token(lexer.CONST_ID).String(),
		Pos:  lp.Position,
	}
	if tok, ok := b.accept(lexer.TYPE); ok {
		c.Type = b.typeOf(tok)
	}
	c.Value = b.literal(b.token(lexer.INTEGER))

	b.token(lexer.RPAREN)
	b.exit(parser.NodeConstant)
	return c
}

func (b *builder) buildExport() *ast.Export {
	b.enter(parser.NodeExport)
	lp := b.token(lexer.LPAREN)
	b.token(lexer.EXPORT)

	e := &ast.Export{
		Name: b.token(lexer.FUNC_ID).String(),
		Pos:  lp.Position,
	}
	if _, ok := b.accept(lexer.AS); ok {
		e.Alias = b.token(lexer.FUNC_ID).String()
	}

	b.token(lexer.RPAREN)
	b.exit(parser.NodeExport)
	return e
}

func (b *builder) buildFunction() *ast.Function {
	b.enter(parser.NodeFunction)
	lp := b.token(lexer.LPAREN)
	b.token(lexer.FUNC)

	fn := &ast.Function{
		Name: b.token(lexer.FUNC_ID).String(),
		Pos:  lp.Position,
	}
	fn.Body = b.buildBody()

	b.token(lexer.RPAREN)
	b.exit(parser.NodeFunction)
	return fn
}

// buildBody collects instructions until the next event is not an
// instruction node.
func (b *builder) buildBody() []ast.Instruction {
	var body []ast.Instruction
	for {
		kind, ok := b.peekOpen()
		if !ok {
			return body
		}
		var in ast.Instruction
		switch kind {
		case parser.NodeInstruction:
			in = b.buildInstruction()
		case parser.NodeWhile:
			in = b.buildWhile()
		case parser.NodeIf:
			in = b.buildIf()
		default:
			return body
		}
		if b.err != nil {
			return body
		}
		body = append(body, in)
	}
}

func (b *builder) buildWhile() *ast.While {
	b.enter(parser.NodeWhile)
	lp := b.token(lexer.LPAREN)
	b.token(lexer.WHILE)

	w := &ast.While{Pos: lp.Position}
	w.Cond = b.buildCondition()
	w.Body = b.buildBody()

	b.token(lexer.RPAREN)
	b.exit(parser.NodeWhile)
	return w
}

func (b *builder) buildIf() *ast.If {
	b.enter(parser.NodeIf)
	lp := b.token(lexer.LPAREN)
	b.token(lexer.IF)

	in := &ast.If{Pos: lp.Position}
	in.Cond = b.buildCondition()
	in.Then = b.buildBody()

	if kind, ok := b.peekOpen(); ok && kind == parser.NodeElse {
		b.enter(parser.NodeElse)
		elp := b.token(lexer.LPAREN)
		b.token(lexer.ELSE)
		in.HasElse = true
		in.ElsePos = elp.Position
		in.Else = b.buildBody()
		b.token(lexer.RPAREN)
		b.exit(parser.NodeElse)
	}

	b.token(lexer.RPAREN)
	b.exit(parser.NodeIf)
	return in
}

func (b *builder) buildCondition() ast.Condition {
	b.enter(parser.NodeCondition)
	lp := b.token(lexer.LPAREN)

	cond := ast.Condition{Pos: lp.Position}
	if tok, ok := b.accept(lexer.LT, lexer.LT_EQ, lexer.GT, lexer.GT_EQ, lexer.EQ_EQ, lexer.NOT_EQ); ok {
		cond.Op = ast.CondOps[tok.Symbol()]
		cond.Type = b.typeOf(b.token(lexer.TYPE))
	} else {
		tok := b.token(lexer.IDENTIFIER)
		op, ok := ast.CondOps[tok.String()]
		if b.err == nil && (!ok || !op.Flag()) {
			b.fail("unknown condition %q", tok.Text)
		}
		cond.Op = op
	}

	b.token(lexer.RPAREN)
	b.exit(parser.NodeCondition)
	return cond
}

func (b *builder) buildInstruction() ast.Instruction {
	b.enter(parser.NodeInstruction)
	lp := b.token(lexer.LPAREN)
	mnemonic := b.token(lexer.IDENTIFIER).String()
	pos := lp.Position

	var in ast.Instruction
	switch mnemonic {
	case "push":
		t := b.typeOf(b.token(lexer.TYPE))
		in = &ast.Push{Type: t, Value: b.value(), Pos: pos}
	case "reg":
		in = &ast.Reg{Register: b.token(lexer.ATOM).String(), Pos: pos}
	case "load":
		t := b.typeOf(b.token(lexer.TYPE))
		in = &ast.Load{Type: t, Addr: b.address(), Pos: pos}
	case "store":
		t := b.typeOf(b.token(lexer.TYPE))
		in = &ast.Store{Type: t, Addr: b.address(), Pos: pos}
	case "dup":
		in = &ast.Dup{Type: b.typeOf(b.token(lexer.TYPE)), Pos: pos}
	case "drop":
		in = &ast.Drop{Type: b.typeOf(b.token(lexer.TYPE)), Pos: pos}
	case "call":
		in = &ast.Call{Target: b.token(lexer.FUNC_ID).String(), Pos: pos}
	case "ret":
		in = &ast.Ret{Pos: pos}
	case "alloc":
		in = &ast.Alloc{Size: b.value(), Pos: pos}
	case "free":
		in = &ast.Free{Pos: pos}
	case "sys":
		in = &ast.Sys{Name: b.token(lexer.ATOM).String(), Pos: pos}
	default:
		if op, ok := ast.ArithOps[mnemonic]; ok {
			in = &ast.Arith{Op: op, Type: b.typeOf(b.token(lexer.TYPE)), Pos: pos}
		} else if conv, ok := types.Conversions[mnemonic]; ok {
			in = &ast.Convert{Name: mnemonic, Conversion: conv, Pos: pos}
		} else if b.err == nil {
			b.fail("unknown instruction %q", mnemonic)
		}
	}

	b.token(lexer.RPAREN)
	b.exit(parser.NodeInstruction)
	return in
}

// value reads a literal or constant operand.
func (b *builder) value() ast.Operand {
	tok := b.token(lexer.INTEGER, lexer.CONST_ID)
	if tok.Type == lexer.CONST_ID {
		return ast.NewConstOperand(tok.String(), tok.Position)
	}
	return ast.NewLiteralOperand(b.literal(tok))
}

// address reads an optional direct address operand.
func (b *builder) address() *ast.Operand {
	tok, ok := b.peekToken()
	if !ok || (tok.Type != lexer.INTEGER && tok.Type != lexer.CONST_ID) {
		return nil
	}
	op := b.value()
	return &op
}

func (b *builder) literal(tok lexer.Token) ast.Literal {
	if b.err != nil {
		return ast.Literal{}
	}
	lit, err := ast.ParseLiteral(tok.String())
	if err != nil {
		b.fail("%v", err)
	}
	lit.Pos = tok.Position
	return lit
}

func (b *builder) typeOf(tok lexer.Token) types.Type {
	if b.err != nil {
		return types.Invalid
	}
	t, ok := types.Parse(tok.String())
	if !ok {
		b.fail("unknown type %q", tok.Text)
	}
	return t
}
