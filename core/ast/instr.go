package ast

import (
	"strings"

	"github.com/opal-lang/beast/core/types"
)

// Instruction is the sum type over every instruction form. The set of
// implementations is closed; consumers switch over the concrete types.
type Instruction interface {
	Node
	Mnemonic() string
	instruction()
}

// ArithOp enumerates the typed arithmetic and bitwise operations.
type ArithOp uint8

const (
	OpAdd ArithOp = iota + 1
	OpSub
	OpMul
	OpDiv
	OpShr
	OpShl
	OpAnd
	OpOr
	OpXor
	OpNot
	OpNeg
	OpInc
	OpDec
)

var arithNames = [...]string{
	OpAdd: "add",
	OpSub: "sub",
	OpMul: "mul",
	OpDiv: "div",
	OpShr: "shr",
	OpShl: "shl",
	OpAnd: "and",
	OpOr:  "or",
	OpXor: "xor",
	OpNot: "not",
	OpNeg: "neg",
	OpInc: "inc",
	OpDec: "dec",
}

// ArithOps maps each mnemonic to its operation.
var ArithOps = func() map[string]ArithOp {
	m := make(map[string]ArithOp, len(arithNames))
	for op, name := range arithNames {
		if name != "" {
			m[name] = ArithOp(op)
		}
	}
	return m
}()

func (op ArithOp) String() string {
	if int(op) < len(arithNames) && arithNames[op] != "" {
		return arithNames[op]
	}
	return "arith?"
}

// Unary reports whether op pops one operand instead of two.
func (op ArithOp) Unary() bool {
	return op >= OpNot && op <= OpDec
}

// CondOp enumerates loop and branch conditions.
type CondOp uint8

const (
	CondLess CondOp = iota + 1
	CondLessEq
	CondGreater
	CondGreaterEq
	CondEqual
	CondNotEqual

	// Flag conditions test the result of the previous arithmetic operation.
	CondPositive
	CondNegative
	CondZero
	CondNotZero
)

var condNames = [...]string{
	CondLess:      "<",
	CondLessEq:    "<=",
	CondGreater:   ">",
	CondGreaterEq: ">=",
	CondEqual:     "==",
	CondNotEqual:  "!=",
	CondPositive:  "p",
	CondNegative:  "n",
	CondZero:      "z",
	CondNotZero:   "nz",
}

// CondOps maps each condition spelling to its operation.
var CondOps = func() map[string]CondOp {
	m := make(map[string]CondOp, len(condNames))
	for op, name := range condNames {
		if name != "" {
			m[name] = CondOp(op)
		}
	}
	return m
}()

func (op CondOp) String() string {
	if int(op) < len(condNames) && condNames[op] != "" {
		return condNames[op]
	}
	return "cond?"
}

// Flag reports whether op is a flag-style condition.
func (op CondOp) Flag() bool {
	return op >= CondPositive && op <= CondNotZero
}

// Condition guards a while loop or an if block. Type is types.Invalid for
// flag conditions.
type Condition struct {
	Op   CondOp
	Type types.Type
	Pos  types.Position
}

func (c Condition) Position() types.Position { return c.Pos }

func (c Condition) String() string {
	if c.Op.Flag() {
		return "(" + c.Op.String() + ")"
	}
	return "(" + c.Op.String() + " " + c.Type.String() + ")"
}

// Push pushes a literal or constant of Type.
type Push struct {
	Type  types.Type
	Value Operand
	Pos   types.Position
}

// Arith is a typed arithmetic or bitwise operation.
type Arith struct {
	Op   ArithOp
	Type types.Type
	Pos  types.Position
}

// Convert is one of the explicit promote/demote instructions.
type Convert struct {
	Name       string // Mnemonic, e.g. "u8_promote"
	Conversion types.Conversion
	Pos        types.Position
}

// Reg pushes the value of a machine register.
type Reg struct {
	Register string // Atom, e.g. ":sp"
	Pos      types.Position
}

// Load reads a value of Type from memory. A nil Addr selects indirect
// addressing: the address is taken from the operand stack.
type Load struct {
	Type types.Type
	Addr *Operand
	Pos  types.Position
}

// Indirect reports whether the address comes from the operand stack.
func (l *Load) Indirect() bool { return l.Addr == nil }

// Store writes a value of Type to memory. A nil Addr selects indirect
// addressing.
type Store struct {
	Type types.Type
	Addr *Operand
	Pos  types.Position
}

// Indirect reports whether the address comes from the operand stack.
func (s *Store) Indirect() bool { return s.Addr == nil }

// Dup duplicates the top operand.
type Dup struct {
	Type types.Type
	Pos  types.Position
}

// Drop discards the top operand.
type Drop struct {
	Type types.Type
	Pos  types.Position
}

// Call transfers control to a declared or imported function.
type Call struct {
	Target string
	Pos    types.Position

	// External is set by the validator when Target resolves to an import.
	External *Import
}

// Ret returns from the enclosing function.
type Ret struct {
	Pos types.Position
}

// Alloc reserves Size bytes and pushes the address.
type Alloc struct {
	Size Operand
	Pos  types.Position
}

// Free releases the allocation whose address is on top of the stack.
type Free struct {
	Pos types.Position
}

// Sys performs the host call named by an atom.
type Sys struct {
	Name string // Atom, e.g. ":write"
	Pos  types.Position
}

// While repeats Body while Cond holds.
type While struct {
	Cond Condition
	Body []Instruction
	Pos  types.Position
}

// If runs Then when Cond holds, Else otherwise.
type If struct {
	Cond    Condition
	Then    []Instruction
	Else    []Instruction
	HasElse bool
	ElsePos types.Position
	Pos     types.Position
}

func (*Push) instruction()    {}
func (*Arith) instruction()   {}
func (*Convert) instruction() {}
func (*Reg) instruction()     {}
func (*Load) instruction()    {}
func (*Store) instruction()   {}
func (*Dup) instruction()     {}
func (*Drop) instruction()    {}
func (*Call) instruction()    {}
func (*Ret) instruction()     {}
func (*Alloc) instruction()   {}
func (*Free) instruction()    {}
func (*Sys) instruction()     {}
func (*While) instruction()   {}
func (*If) instruction()      {}

func (i *Push) Mnemonic() string    { return "push" }
func (i *Arith) Mnemonic() string   { return i.Op.String() }
func (i *Convert) Mnemonic() string { return i.Name }
func (i *Reg) Mnemonic() string     { return "reg" }
func (i *Load) Mnemonic() string    { return "load" }
func (i *Store) Mnemonic() string   { return "store" }
func (i *Dup) Mnemonic() string     { return "dup" }
func (i *Drop) Mnemonic() string    { return "drop" }
func (i *Call) Mnemonic() string    { return "call" }
func (i *Ret) Mnemonic() string     { return "ret" }
func (i *Alloc) Mnemonic() string   { return "alloc" }
func (i *Free) Mnemonic() string    { return "free" }
func (i *Sys) Mnemonic() string     { return "sys" }
func (i *While) Mnemonic() string   { return "while" }
func (i *If) Mnemonic() string      { return "if" }

func (i *Push) Position() types.Position    { return i.Pos }
func (i *Arith) Position() types.Position   { return i.Pos }
func (i *Convert) Position() types.Position { return i.Pos }
func (i *Reg) Position() types.Position     { return i.Pos }
func (i *Load) Position() types.Position    { return i.Pos }
func (i *Store) Position() types.Position   { return i.Pos }
func (i *Dup) Position() types.Position     { return i.Pos }
func (i *Drop) Position() types.Position    { return i.Pos }
func (i *Call) Position() types.Position    { return i.Pos }
func (i *Ret) Position() types.Position     { return i.Pos }
func (i *Alloc) Position() types.Position   { return i.Pos }
func (i *Free) Position() types.Position    { return i.Pos }
func (i *Sys) Position() types.Position     { return i.Pos }
func (i *While) Position() types.Position   { return i.Pos }
func (i *If) Position() types.Position      { return i.Pos }

func (i *Push) String() string    { return "(push " + i.Type.String() + " " + i.Value.String() + ")" }
func (i *Arith) String() string   { return "(" + i.Op.String() + " " + i.Type.String() + ")" }
func (i *Convert) String() string { return "(" + i.Name + ")" }
func (i *Reg) String() string     { return "(reg " + i.Register + ")" }
func (i *Dup) String() string     { return "(dup " + i.Type.String() + ")" }
func (i *Drop) String() string    { return "(drop " + i.Type.String() + ")" }
func (i *Call) String() string    { return "(call " + i.Target + ")" }
func (i *Ret) String() string     { return "(ret)" }
func (i *Alloc) String() string   { return "(alloc " + i.Size.String() + ")" }
func (i *Free) String() string    { return "(free)" }
func (i *Sys) String() string     { return "(sys " + i.Name + ")" }

func (i *Load) String() string {
	if i.Addr == nil {
		return "(load " + i.Type.String() + ")"
	}
	return "(load " + i.Type.String() + " " + i.Addr.String() + ")"
}

func (i *Store) String() string {
	if i.Addr == nil {
		return "(store " + i.Type.String() + ")"
	}
	return "(store " + i.Type.String() + " " + i.Addr.String() + ")"
}

func (i *While) String() string {
	var b strings.Builder
	b.WriteString("(while ")
	b.WriteString(i.Cond.String())
	writeSeq(&b, i.Body)
	b.WriteByte(')')
	return b.String()
}

func (i *If) String() string {
	var b strings.Builder
	b.WriteString("(if ")
	b.WriteString(i.Cond.String())
	writeSeq(&b, i.Then)
	if i.HasElse {
		b.WriteString(" (else")
		writeSeq(&b, i.Else)
		b.WriteByte(')')
	}
	b.WriteByte(')')
	return b.String()
}

func writeSeq(b *strings.Builder, seq []Instruction) {
	for _, in := range seq {
		b.WriteByte(' ')
		b.WriteString(in.String())
	}
}

// Walk calls fn for every instruction in seq in source order, descending
// into while and if bodies. Returning false from fn skips the children of
// that instruction.
func Walk(seq []Instruction, fn func(Instruction) bool) {
	for _, in := range seq {
		if !fn(in) {
			continue
		}
		switch in := in.(type) {
		case *While:
			Walk(in.Body, fn)
		case *If:
			Walk(in.Then, fn)
			Walk(in.Else, fn)
		}
	}
}
