package parser

import "sort"

// operandKind describes one operand slot of a plain instruction.
type operandKind uint8

const (
	operandType     operandKind = iota + 1 // u8, u16, i8 or i16
	operandValue                           // integer literal or constant id
	operandAddress                         // optional integer literal or constant id
	operandRegister                        // atom
	operandSignal                          // atom
	operandFunction                        // function id
)

func (k operandKind) String() string {
	switch k {
	case operandType:
		return "type"
	case operandValue:
		return "literal or constant"
	case operandAddress:
		return "address"
	case operandRegister:
		return "register atom"
	case operandSignal:
		return "signal atom"
	case operandFunction:
		return "function id"
	}
	return "operand"
}

// instrSpec is the surface shape of a plain instruction.
type instrSpec struct {
	operands []operandKind
	flags    bool   // available in DialectFlags
	example  string // shown in diagnostics
}

var (
	typed     = []operandKind{operandType}
	typedPush = []operandKind{operandType, operandValue}
	typedAddr = []operandKind{operandType, operandAddress}
)

// instructions lists every plain (non-block) instruction by mnemonic.
var instructions = map[string]instrSpec{
	"push": {typedPush, true, "(push u8 5)"},

	"add": {typed, true, "(add u8)"},
	"sub": {typed, true, "(sub u8)"},
	"mul": {typed, true, "(mul u8)"},
	"div": {typed, true, "(div u8)"},
	"shr": {typed, true, "(shr u8)"},
	"shl": {typed, true, "(shl u8)"},
	"and": {typed, true, "(and u8)"},
	"or":  {typed, true, "(or u8)"},
	"xor": {typed, true, "(xor u8)"},
	"not": {typed, true, "(not u8)"},
	"neg": {typed, true, "(neg i8)"},
	"inc": {typed, true, "(inc u8)"},
	"dec": {typed, true, "(dec u8)"},

	"u8_promote": {nil, false, "(u8_promote)"},
	"u16_demote": {nil, false, "(u16_demote)"},
	"i8_promote": {nil, false, "(i8_promote)"},
	"i16_demote": {nil, false, "(i16_demote)"},

	"reg":   {[]operandKind{operandRegister}, false, "(reg :sp)"},
	"load":  {typedAddr, false, "(load u8 0x10)"},
	"store": {typedAddr, false, "(store u8 0x10)"},
	"dup":   {typed, false, "(dup u8)"},
	"drop":  {typed, false, "(drop u8)"},
	"call":  {[]operandKind{operandFunction}, true, "(call $f)"},
	"ret":   {nil, true, "(ret)"},
	"alloc": {[]operandKind{operandValue}, false, "(alloc 16)"},
	"free":  {nil, false, "(free)"},
	"sys":   {[]operandKind{operandSignal}, false, "(sys :write)"},
}

// Mnemonics returns the plain instruction mnemonics available in d, sorted.
func Mnemonics(d Dialect) []string {
	names := make([]string, 0, len(instructions))
	for name, spec := range instructions {
		if d == DialectFlags && !spec.flags {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// flagConditions are the condition spellings of DialectFlags.
var flagConditions = map[string]bool{"p": true, "n": true, "z": true, "nz": true}
