package jit

import "fmt"

// Tier is a compilation quality level for a function. Tiers order
// strictly TierNone < TierBaseline < TierOptimized and a function's
// tier never decreases.
type Tier int

const (
	// TierNone means the function runs only through the interpreter.
	TierNone Tier = iota
	// TierBaseline is a simple, fast translation.
	TierBaseline
	// TierOptimized is a full optimizing compile.
	TierOptimized
)

// String returns the tier name.
func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierBaseline:
		return "baseline"
	case TierOptimized:
		return "optimized"
	default:
		return "unknown"
	}
}

// ParseTier parses a tier name as used in configuration files.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "none":
		return TierNone, nil
	case "baseline":
		return TierBaseline, nil
	case "optimized":
		return TierOptimized, nil
	default:
		return TierNone, fmt.Errorf("unknown tier %q", s)
	}
}
