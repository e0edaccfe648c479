package modfmt

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/opal-lang/beast/core/ast"
	"github.com/opal-lang/beast/core/types"
)

// PayloadVersion is the version of the canonical payload layout.
const PayloadVersion uint8 = 1

// maxNesting bounds CBOR nesting on decode. Each while or if level costs two
// levels (the node map and its body array).
const maxNesting = 512

// Payload is the position-free form of a validated module. It carries the
// whole instruction tree plus the signature a linker needs.
type Payload struct {
	Version   uint8          `cbor:"v"`
	Name      string         `cbor:"name"`
	Imports   []ImportEntry  `cbor:"imports"`
	Exports   []ExportEntry  `cbor:"exports"`
	Constants []ConstEntry   `cbor:"consts"`
	Functions []FunctionBody `cbor:"funcs"`
}

// ImportEntry is one import binding.
type ImportEntry struct {
	Name   string `cbor:"name"`
	Alias  string `cbor:"alias,omitempty"`
	Origin string `cbor:"origin"`
	Quoted bool   `cbor:"quoted,omitempty"`
}

// ExportEntry is one published function.
type ExportEntry struct {
	Name     string `cbor:"name"`
	Alias    string `cbor:"alias,omitempty"`
	External bool   `cbor:"external,omitempty"`
}

// ConstEntry is one constant. Type is 0 for untyped constants.
type ConstEntry struct {
	Name  string      `cbor:"name"`
	Type  types.Type  `cbor:"type,omitempty"`
	Value LiteralForm `cbor:"value"`
}

// LiteralForm keeps both the spelling and the decoded value of a numeral.
type LiteralForm struct {
	Text      string `cbor:"text"`
	Negative  bool   `cbor:"neg,omitempty"`
	Magnitude uint64 `cbor:"mag"`
}

// FunctionBody is one function with its recorded exit stack.
type FunctionBody struct {
	Name      string       `cbor:"name"`
	Body      []Node       `cbor:"body"`
	ExitStack []types.Type `cbor:"exit,omitempty"`
}

// Node is a union over instruction forms, discriminated by Op, which holds
// the instruction mnemonic.
type Node struct {
	Op      string         `cbor:"op"`
	Type    types.Type     `cbor:"type,omitempty"`
	Operand *OperandForm   `cbor:"operand,omitempty"` // push value, alloc size, load/store address
	Name    string         `cbor:"name,omitempty"`    // call target, register, signal
	Cond    *ConditionForm `cbor:"cond,omitempty"`
	Body    []Node         `cbor:"body,omitempty"` // while body, if then-branch
	Else    []Node         `cbor:"else,omitempty"`
	HasElse bool           `cbor:"has_else,omitempty"`
}

// OperandForm is either a constant name or a literal.
type OperandForm struct {
	Const   string       `cbor:"const,omitempty"`
	Literal *LiteralForm `cbor:"lit,omitempty"`
}

// ConditionForm is a condition. Type is 0 for flag conditions.
type ConditionForm struct {
	Op   string     `cbor:"op"`
	Type types.Type `cbor:"type,omitempty"`
}

// Canonicalize converts m into its payload form.
func Canonicalize(m *ast.Module) *Payload {
	p := &Payload{
		Version:   PayloadVersion,
		Name:      m.Name,
		Imports:   make([]ImportEntry, len(m.Imports)),
		Exports:   make([]ExportEntry, len(m.Exports)),
		Constants: make([]ConstEntry, len(m.Constants)),
		Functions: make([]FunctionBody, len(m.Functions)),
	}
	for i, imp := range m.Imports {
		p.Imports[i] = ImportEntry{Name: imp.Name, Alias: imp.Alias, Origin: imp.Origin, Quoted: imp.Quoted}
	}
	for i, e := range m.Exports {
		p.Exports[i] = ExportEntry{Name: e.Name, Alias: e.Alias, External: e.External != nil}
	}
	for i, c := range m.Constants {
		p.Constants[i] = ConstEntry{Name: c.Name, Type: c.Type, Value: literalForm(c.Value)}
	}
	for i, fn := range m.Functions {
		p.Functions[i] = FunctionBody{
			Name:      fn.Name,
			Body:      canonicalizeSeq(fn.Body),
			ExitStack: fn.ExitStack,
		}
	}
	return p
}

func literalForm(l ast.Literal) LiteralForm {
	return LiteralForm{Text: l.String(), Negative: l.Negative, Magnitude: l.Magnitude}
}

func operandForm(o ast.Operand) *OperandForm {
	if o.Const != nil {
		return &OperandForm{Const: o.Const.Name}
	}
	if o.Literal != nil {
		lf := literalForm(*o.Literal)
		return &OperandForm{Literal: &lf}
	}
	return nil
}

func canonicalizeSeq(seq []ast.Instruction) []Node {
	nodes := make([]Node, len(seq))
	for i, in := range seq {
		nodes[i] = canonicalizeInstruction(in)
	}
	return nodes
}

func canonicalizeInstruction(in ast.Instruction) Node {
	n := Node{Op: in.Mnemonic()}
	switch in := in.(type) {
	case *ast.Push:
		n.Type = in.Type
		n.Operand = operandForm(in.Value)
	case *ast.Arith:
		n.Type = in.Type
	case *ast.Reg:
		n.Name = in.Register
	case *ast.Load:
		n.Type = in.Type
		if in.Addr != nil {
			n.Operand = operandForm(*in.Addr)
		}
	case *ast.Store:
		n.Type = in.Type
		if in.Addr != nil {
			n.Operand = operandForm(*in.Addr)
		}
	case *ast.Dup:
		n.Type = in.Type
	case *ast.Drop:
		n.Type = in.Type
	case *ast.Call:
		n.Name = in.Target
	case *ast.Alloc:
		n.Operand = operandForm(in.Size)
	case *ast.Sys:
		n.Name = in.Name
	case *ast.While:
		n.Cond = &ConditionForm{Op: in.Cond.Op.String(), Type: in.Cond.Type}
		n.Body = canonicalizeSeq(in.Body)
	case *ast.If:
		n.Cond = &ConditionForm{Op: in.Cond.Op.String(), Type: in.Cond.Type}
		n.Body = canonicalizeSeq(in.Then)
		n.Else = canonicalizeSeq(in.Else)
		n.HasElse = in.HasElse
	}
	return n
}

// MarshalBinary produces the deterministic CBOR encoding of the payload.
func (p *Payload) MarshalBinary() ([]byte, error) {
	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}

	// Alias type so the encoder does not call MarshalBinary again.
	type payloadAlias Payload
	data, err := encMode.Marshal((*payloadAlias)(p))
	if err != nil {
		return nil, fmt.Errorf("CBOR encoding failed: %w", err)
	}
	return data, nil
}

// UnmarshalBinary decodes a payload, rejecting duplicate and unknown keys.
func (p *Payload) UnmarshalBinary(data []byte) error {
	decMode, err := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxNestedLevels:   maxNesting,
	}.DecMode()
	if err != nil {
		return fmt.Errorf("failed to create CBOR decoder: %w", err)
	}

	type payloadAlias Payload
	if err := decMode.Unmarshal(data, (*payloadAlias)(p)); err != nil {
		return fmt.Errorf("CBOR decoding failed: %w", err)
	}
	if p.Version != PayloadVersion {
		return fmt.Errorf("unsupported payload version %d, expected %d", p.Version, PayloadVersion)
	}
	return nil
}

// Module rebuilds the module the payload describes. Constant references,
// calls and exports are linked back to their declarations. Positions are not
// part of the payload and stay zero.
func (p *Payload) Module() (*ast.Module, error) {
	m := &ast.Module{Name: p.Name}

	imports := make(map[string]*ast.Import, len(p.Imports))
	for _, ie := range p.Imports {
		imp := &ast.Import{Name: ie.Name, Alias: ie.Alias, Origin: ie.Origin, Quoted: ie.Quoted}
		m.Imports = append(m.Imports, imp)
		imports[imp.Binding()] = imp
	}

	constants := make(map[string]*ast.Constant, len(p.Constants))
	for _, ce := range p.Constants {
		if ce.Type != types.Invalid && !ce.Type.Valid() {
			return nil, fmt.Errorf("constant %s: invalid type %d", ce.Name, ce.Type)
		}
		c := &ast.Constant{Name: ce.Name, Type: ce.Type, Value: ce.Value.literal()}
		m.Constants = append(m.Constants, c)
		constants[c.Name] = c
	}

	d := &decoder{imports: imports, constants: constants}
	for _, fb := range p.Functions {
		body, err := d.seq(fb.Body)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", fb.Name, err)
		}
		m.Functions = append(m.Functions, &ast.Function{Name: fb.Name, Body: body, ExitStack: fb.ExitStack})
	}

	for _, ee := range p.Exports {
		e := &ast.Export{Name: ee.Name, Alias: ee.Alias}
		if ee.External {
			imp, ok := imports[ee.Name]
			if !ok {
				return nil, fmt.Errorf("export %s: no import binding", ee.Name)
			}
			e.External = imp
		}
		m.Exports = append(m.Exports, e)
	}
	return m, nil
}

func (lf LiteralForm) literal() ast.Literal {
	return ast.Literal{Text: lf.Text, Negative: lf.Negative, Magnitude: lf.Magnitude}
}

type decoder struct {
	imports   map[string]*ast.Import
	constants map[string]*ast.Constant
}

func (d *decoder) seq(nodes []Node) ([]ast.Instruction, error) {
	if len(nodes) == 0 {
		return nil, nil
	}
	seq := make([]ast.Instruction, len(nodes))
	for i := range nodes {
		in, err := d.instruction(&nodes[i])
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		seq[i] = in
	}
	return seq, nil
}

func (d *decoder) instruction(n *Node) (ast.Instruction, error) {
	if op, ok := ast.ArithOps[n.Op]; ok {
		t, err := validType(n)
		return &ast.Arith{Op: op, Type: t}, err
	}
	if conv, ok := types.Conversions[n.Op]; ok {
		return &ast.Convert{Name: n.Op, Conversion: conv}, nil
	}

	switch n.Op {
	case "push":
		t, err := validType(n)
		if err != nil {
			return nil, err
		}
		v, err := d.operand(n, true)
		if err != nil {
			return nil, err
		}
		return &ast.Push{Type: t, Value: *v}, nil
	case "load", "store":
		t, err := validType(n)
		if err != nil {
			return nil, err
		}
		addr, err := d.operand(n, false)
		if err != nil {
			return nil, err
		}
		if n.Op == "load" {
			return &ast.Load{Type: t, Addr: addr}, nil
		}
		return &ast.Store{Type: t, Addr: addr}, nil
	case "dup":
		t, err := validType(n)
		return &ast.Dup{Type: t}, err
	case "drop":
		t, err := validType(n)
		return &ast.Drop{Type: t}, err
	case "reg":
		return &ast.Reg{Register: n.Name}, nil
	case "call":
		return &ast.Call{Target: n.Name, External: d.imports[n.Name]}, nil
	case "ret":
		return &ast.Ret{}, nil
	case "alloc":
		size, err := d.operand(n, true)
		if err != nil {
			return nil, err
		}
		return &ast.Alloc{Size: *size}, nil
	case "free":
		return &ast.Free{}, nil
	case "sys":
		return &ast.Sys{Name: n.Name}, nil
	case "while":
		cond, err := condition(n)
		if err != nil {
			return nil, err
		}
		body, err := d.seq(n.Body)
		if err != nil {
			return nil, err
		}
		return &ast.While{Cond: cond, Body: body}, nil
	case "if":
		cond, err := condition(n)
		if err != nil {
			return nil, err
		}
		then, err := d.seq(n.Body)
		if err != nil {
			return nil, err
		}
		otherwise, err := d.seq(n.Else)
		if err != nil {
			return nil, err
		}
		return &ast.If{Cond: cond, Then: then, Else: otherwise, HasElse: n.HasElse}, nil
	}
	return nil, fmt.Errorf("unknown instruction %q", n.Op)
}

func validType(n *Node) (types.Type, error) {
	if !n.Type.Valid() {
		return types.Invalid, fmt.Errorf("%s: invalid type %d", n.Op, n.Type)
	}
	return n.Type, nil
}

// operand decodes n.Operand. A missing operand is an error only when
// required.
func (d *decoder) operand(n *Node, required bool) (*ast.Operand, error) {
	o := n.Operand
	switch {
	case o == nil && required:
		return nil, fmt.Errorf("%s: missing operand", n.Op)
	case o == nil:
		return nil, nil
	case o.Const != "":
		c, ok := d.constants[o.Const]
		if !ok {
			return nil, fmt.Errorf("%s: undefined constant %s", n.Op, o.Const)
		}
		return &ast.Operand{Const: &ast.ConstRef{Name: o.Const, Decl: c}}, nil
	case o.Literal != nil:
		v := ast.NewLiteralOperand(o.Literal.literal())
		return &v, nil
	}
	return nil, fmt.Errorf("%s: empty operand", n.Op)
}

func condition(n *Node) (ast.Condition, error) {
	if n.Cond == nil {
		return ast.Condition{}, fmt.Errorf("%s: missing condition", n.Op)
	}
	op, ok := ast.CondOps[n.Cond.Op]
	if !ok {
		return ast.Condition{}, fmt.Errorf("%s: unknown condition %q", n.Op, n.Cond.Op)
	}
	if op.Flag() != (n.Cond.Type == types.Invalid) || (!op.Flag() && !n.Cond.Type.Valid()) {
		return ast.Condition{}, fmt.Errorf("%s: condition %s has invalid type %d", n.Op, n.Cond.Op, n.Cond.Type)
	}
	return ast.Condition{Op: op, Type: n.Cond.Type}, nil
}
