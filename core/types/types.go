// Package types holds the primitive vocabulary shared by every Beast stage:
// the four fixed-width integer kinds and source positions.
package types

import "fmt"

// Type is a fixed-width integer kind. No other primitive types exist.
type Type uint8

const (
	Invalid Type = iota
	U8
	U16
	I8
	I16
)

// All lists the valid types in declaration order.
var All = []Type{U8, U16, I8, I16}

// Pre-computed names, indexed by Type
var typeNames = [...]string{
	Invalid: "invalid",
	U8:      "u8",
	U16:     "u16",
	I8:      "i8",
	I16:     "i16",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Parse maps a type keyword to its Type. The second result is false for
// anything that is not one of u8, u16, i8, i16.
func Parse(s string) (Type, bool) {
	switch s {
	case "u8":
		return U8, true
	case "u16":
		return U16, true
	case "i8":
		return I8, true
	case "i16":
		return I16, true
	}
	return Invalid, false
}

// Valid reports whether t is one of the four integer kinds.
func (t Type) Valid() bool {
	return t >= U8 && t <= I16
}

// Signed reports whether t belongs to the signed family.
func (t Type) Signed() bool {
	return t == I8 || t == I16
}

// Width returns the size of t in bits.
func (t Type) Width() int {
	switch t {
	case U8, I8:
		return 8
	case U16, I16:
		return 16
	}
	return 0
}

// Range returns the inclusive bounds of values representable by t.
func (t Type) Range() (lo, hi int64) {
	switch t {
	case U8:
		return 0, 255
	case U16:
		return 0, 65535
	case I8:
		return -128, 127
	case I16:
		return -32768, 32767
	}
	return 0, -1
}

// Fits reports whether the literal -magnitude (negative) or +magnitude fits
// in t. Negative values never fit an unsigned type, not even -0.
func (t Type) Fits(negative bool, magnitude uint64) bool {
	lo, hi := t.Range()
	if hi < lo {
		return false
	}
	if negative {
		if !t.Signed() {
			return false
		}
		return magnitude <= uint64(-lo)
	}
	return magnitude <= uint64(hi)
}

// Conversion describes one of the explicit promote/demote instructions.
type Conversion struct {
	From Type
	To   Type
}

// Conversions maps each conversion mnemonic to its source and destination.
// Signed and unsigned families never convert into each other.
var Conversions = map[string]Conversion{
	"u8_promote": {From: U8, To: U16},
	"u16_demote": {From: U16, To: U8},
	"i8_promote": {From: I8, To: I16},
	"i16_demote": {From: I16, To: I8},
}

// Address is the type of memory addresses, allocation sizes and register
// values.
const Address = U16
