package parser

import (
	"fmt"
	"time"
)

// ParserOpt represents a parser configuration option
type ParserOpt func(*ParserConfig)

// Dialect selects one of the two grammar revisions of Beast.
type Dialect uint8

const (
	// DialectComparison is the canonical revision: comparison conditions
	// such as (> u8), dotted module paths, optional constant types and the
	// full instruction set.
	DialectComparison Dialect = iota

	// DialectFlags is the reduced revision: flag conditions (p, n, z, nz),
	// quoted import origins, mandatory constant types and no memory,
	// register, stack-shuffling, syscall or conversion instructions.
	DialectFlags
)

func (d Dialect) String() string {
	if d == DialectFlags {
		return "flags"
	}
	return "comparison"
}

// ParseDialect maps a configuration name to a Dialect. The empty string
// selects DialectComparison.
func ParseDialect(name string) (Dialect, error) {
	switch name {
	case "", "comparison":
		return DialectComparison, nil
	case "flags":
		return DialectFlags, nil
	}
	return DialectComparison, fmt.Errorf("unknown dialect %q (want comparison or flags)", name)
}

// TelemetryMode controls telemetry collection (production-safe)
type TelemetryMode int

const (
	TelemetryOff    TelemetryMode = iota // Zero overhead (default)
	TelemetryBasic                       // Parse counts only
	TelemetryTiming                      // Parse counts + timing per phase
)

// ParserConfig holds parser configuration
type ParserConfig struct {
	dialect   Dialect
	telemetry TelemetryMode
}

// WithDialect selects the grammar revision (default DialectComparison)
func WithDialect(d Dialect) ParserOpt {
	return func(c *ParserConfig) {
		c.dialect = d
	}
}

// WithTelemetryBasic enables basic telemetry (parse counts only)
func WithTelemetryBasic() ParserOpt {
	return func(c *ParserConfig) {
		c.telemetry = TelemetryBasic
	}
}

// WithTelemetryTiming enables timing telemetry (counts + timing per phase)
func WithTelemetryTiming() ParserOpt {
	return func(c *ParserConfig) {
		c.telemetry = TelemetryTiming
	}
}

// ParseTelemetry holds parser performance metrics (production-safe)
type ParseTelemetry struct {
	LexTime    time.Duration // Time spent lexing
	ParseTime  time.Duration // Time spent parsing
	TotalTime  time.Duration // Total parse time
	TokenCount int           // Number of tokens, comments included
	EventCount int           // Number of events
	ErrorCount int           // Number of parse errors
}
