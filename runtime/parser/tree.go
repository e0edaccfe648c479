package parser

import (
	"github.com/opal-lang/beast/core/diag"
	"github.com/opal-lang/beast/runtime/lexer"
)

// ParseTree represents the result of parsing
type ParseTree struct {
	Source    []byte          // Original source (for reference)
	Tokens    []lexer.Token   // Tokens from lexer, comments removed
	Events    []Event         // Parse events
	Errors    diag.List       // At most one: parsing stops at the first error
	Dialect   Dialect         // Grammar revision the source was parsed with
	Telemetry *ParseTelemetry // Performance metrics (nil if disabled)
}

// Err returns the parse failure, or nil.
func (t *ParseTree) Err() error {
	return t.Errors.Err()
}

// Event represents a parse tree construction event
type Event struct {
	Kind EventKind
	Data uint32 // NodeKind for Open/Close, token index for Token
}

// EventKind represents the type of parse event
type EventKind uint8

const (
	EventOpen  EventKind = iota // Open syntax node
	EventClose                  // Close syntax node
	EventToken                  // Consume token
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "Open"
	case EventClose:
		return "Close"
	case EventToken:
		return "Token"
	}
	return "EventKind?"
}

// NodeKind represents syntax node types
//
// IMPORTANT: When adding new node types, ALWAYS add them at the END of the enum.
// Adding nodes in the middle will shift all subsequent node numbers and break
// existing tests.
type NodeKind uint32

const (
	NodeSource      NodeKind = iota // Top-level source
	NodeImport                      // (import $f [as $g] from origin)
	NodeConstant                    // (const %c [type] literal)
	NodeFunction                    // (func $f instr*)
	NodeExport                      // (export $f [as $g])
	NodeInstruction                 // (mnemonic operand*)
	NodeWhile                       // (while cond instr*)
	NodeIf                          // (if cond instr* [else])
	NodeElse                        // (else instr*)
	NodeCondition                   // (op type) or (flag)
)

var nodeNames = [...]string{
	NodeSource:      "Source",
	NodeImport:      "Import",
	NodeConstant:    "Constant",
	NodeFunction:    "Function",
	NodeExport:      "Export",
	NodeInstruction: "Instruction",
	NodeWhile:       "While",
	NodeIf:          "If",
	NodeElse:        "Else",
	NodeCondition:   "Condition",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeNames) {
		return nodeNames[k]
	}
	return "Node?"
}
