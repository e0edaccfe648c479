package validation

import (
	"fmt"
	"strings"

	"github.com/opal-lang/beast/core/ast"
	"github.com/opal-lang/beast/core/diag"
	"github.com/opal-lang/beast/core/types"
)

// stack is the abstract operand stack: the types of the runtime values,
// bottom first.
type stack []types.Type

func (s stack) String() string {
	parts := make([]string, len(s))
	for i, t := range s {
		parts[i] = t.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func (s stack) equal(o stack) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

func (s stack) clone() stack {
	return append(stack(nil), s...)
}

// stackError stops a simulation at its first violation.
type stackError struct {
	diag diag.Diagnostic
}

// simulate walks fn's body from an empty stack. It records the stack at the
// first top-level ret in fn.ExitStack and returns the first violation, if
// any.
func simulate(fn *ast.Function) *diag.Diagnostic {
	sim := &simulator{}
	fn.ExitStack = nil

	returned := false
	for _, in := range fn.Body {
		if err := sim.step(in); err != nil {
			return &err.diag
		}
		if _, ok := in.(*ast.Ret); ok && !returned {
			returned = true
			fn.ExitStack = sim.stack.clone()
		}
	}
	return nil
}

type simulator struct {
	stack stack
}

func (s *simulator) push(t types.Type) {
	s.stack = append(s.stack, t)
}

// pop removes the top operands, which must match want from bottom to top.
func (s *simulator) pop(in ast.Instruction, want ...types.Type) *stackError {
	if err := s.peek(in, want...); err != nil {
		return err
	}
	s.stack = s.stack[:len(s.stack)-len(want)]
	return nil
}

// peek checks the top operands against want, bottom to top, without
// removing them.
func (s *simulator) peek(in ast.Instruction, want ...types.Type) *stackError {
	if len(s.stack) < len(want) {
		return &stackError{diag.Diagnostic{
			Kind:     diag.TypeError,
			Code:     diag.CodeStackUnderflow,
			Position: in.Position(),
			Message: fmt.Sprintf("stack underflow: %s needs %s, stack is %s",
				in.Mnemonic(), operands(want), s.stack),
			Context: in.Mnemonic() + " instruction",
		}}
	}
	base := len(s.stack) - len(want)
	for i, t := range want {
		if got := s.stack[base+i]; got != t {
			return &stackError{diag.Diagnostic{
				Kind:     diag.TypeError,
				Code:     diag.CodeOperandTypeMismatch,
				Position: in.Position(),
				Message: fmt.Sprintf("%s expects %s on the stack, found %s",
					in.Mnemonic(), stack(want), stack(s.stack[base:])),
				Context:  in.Mnemonic() + " instruction",
				Expected: []string{t.String()},
				Got:      got.String(),
				Note:     conversionHint(got, t),
			}}
		}
	}
	return nil
}

func operands(want []types.Type) string {
	if len(want) == 1 {
		return "1 operand " + stack(want).String()
	}
	return fmt.Sprintf("%d operands %s", len(want), stack(want))
}

// conversionHint names the instruction converting got to want, if any.
func conversionHint(got, want types.Type) string {
	for name, conv := range types.Conversions {
		if conv.From == got && conv.To == want {
			return fmt.Sprintf("use (%s) to convert %s to %s", name, got, want)
		}
	}
	if got.Signed() != want.Signed() {
		return "signed and unsigned values never convert into each other"
	}
	return ""
}

// step applies the stack effect of one instruction.
func (s *simulator) step(in ast.Instruction) *stackError {
	switch in := in.(type) {
	case *ast.Push:
		s.push(in.Type)

	case *ast.Arith:
		if in.Op.Unary() {
			if err := s.pop(in, in.Type); err != nil {
				return err
			}
		} else if err := s.pop(in, in.Type, in.Type); err != nil {
			return err
		}
		s.push(in.Type)

	case *ast.Convert:
		if err := s.pop(in, in.Conversion.From); err != nil {
			return err
		}
		s.push(in.Conversion.To)

	case *ast.Reg:
		s.push(types.Address)

	case *ast.Load:
		if in.Indirect() {
			if err := s.pop(in, types.Address); err != nil {
				return err
			}
		}
		s.push(in.Type)

	case *ast.Store:
		if in.Indirect() {
			return s.pop(in, in.Type, types.Address)
		}
		return s.pop(in, in.Type)

	case *ast.Dup:
		if err := s.peek(in, in.Type); err != nil {
			return err
		}
		s.push(in.Type)

	case *ast.Drop:
		return s.pop(in, in.Type)

	case *ast.Alloc:
		s.push(types.Address)

	case *ast.Free:
		return s.pop(in, types.Address)

	case *ast.Call, *ast.Sys, *ast.Ret:
		// No stack effect.

	case *ast.While:
		return s.loop(in)

	case *ast.If:
		return s.branch(in)
	}
	return nil
}

// condition checks the operands a condition inspects. A comparison looks at
// the top operand of its type; a flag condition needs some prior value.
func (s *simulator) condition(in ast.Instruction, cond ast.Condition) *stackError {
	if !cond.Op.Flag() {
		return s.peek(in, cond.Type)
	}
	if len(s.stack) == 0 {
		return &stackError{diag.Diagnostic{
			Kind:     diag.TypeError,
			Code:     diag.CodeStackUnderflow,
			Position: cond.Pos,
			Message:  fmt.Sprintf("condition %s tests an empty stack", cond),
			Context:  in.Mnemonic() + " condition",
		}}
	}
	return nil
}

// block simulates seq starting from entry and returns the resulting stack.
func (s *simulator) block(entry stack, seq []ast.Instruction) (stack, *stackError) {
	sub := &simulator{stack: entry.clone()}
	for _, in := range seq {
		if err := sub.step(in); err != nil {
			return nil, err
		}
	}
	return sub.stack, nil
}

func (s *simulator) loop(in *ast.While) *stackError {
	if err := s.condition(in, in.Cond); err != nil {
		return err
	}
	exit, err := s.block(s.stack, in.Body)
	if err != nil {
		return err
	}
	if !exit.equal(s.stack) {
		return &stackError{diag.Diagnostic{
			Kind:     diag.TypeError,
			Code:     diag.CodeUnbalancedLoopStack,
			Position: in.Pos,
			Message:  fmt.Sprintf("while body changes the stack from %s to %s", s.stack, exit),
			Context:  "while loop",
			Note:     "a loop body must leave the stack exactly as it found it",
		}}
	}
	return nil
}

func (s *simulator) branch(in *ast.If) *stackError {
	if err := s.condition(in, in.Cond); err != nil {
		return err
	}
	then, err := s.block(s.stack, in.Then)
	if err != nil {
		return err
	}
	otherwise := s.stack
	if in.HasElse {
		if otherwise, err = s.block(s.stack, in.Else); err != nil {
			return err
		}
	}
	if !then.equal(otherwise) {
		pos := in.Pos
		if in.HasElse {
			pos = in.ElsePos
		}
		d := diag.Diagnostic{
			Kind:     diag.TypeError,
			Code:     diag.CodeBranchStackMismatch,
			Position: pos,
			Message:  fmt.Sprintf("if branches leave different stacks: %s and %s", then, otherwise),
			Context:  "if block",
		}
		if !in.HasElse {
			d.Message = fmt.Sprintf("if without else changes the stack from %s to %s", s.stack, then)
			d.Note = "without an else the stack must be the same whether or not the branch runs"
		}
		return &stackError{d}
	}
	s.stack = then
	return nil
}
