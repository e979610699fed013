// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package rules holds the rule data model and the protocol-partitioned
// prefix index (§4.1) that the analyzer consults per packet. Rules are
// immutable once loaded; nothing in this package mutates a Rule after
// Store.Insert returns.
package rules

// Any is the sentinel value meaning "match every value of this field".
const Any = "any"

// Action is the disposition a matching rule requests.
type Action string

const (
	ActionAlert Action = "alert"
	ActionBlock Action = "block"
	ActionLog   Action = "log"
)

// Direction constrains which way traffic must be flowing relative to
// HOME_NET/EXTERNAL_NET for a rule to be considered (§4.3).
type Direction string

const (
	DirectionIn   Direction = "in"
	DirectionOut  Direction = "out"
	DirectionBoth Direction = "both"
)

// Threshold gates how often a rule may fire for a given source: the
// (count+1)-th event within the trailing `Time` seconds triggers a match.
type Threshold struct {
	Count int
	Time  int // seconds
}

// DefaultThreshold is applied to any rule whose config omits threshold.
func DefaultThreshold() Threshold {
	return Threshold{Count: 1, Time: 10}
}

// Rule is the immutable, fully-resolved form of one entry from
// config_rules.json (§3, §6). SrcIP/DstIP/SrcPort/DstPort hold the literal
// string "any" (the Any constant) when the rule is a wildcard on that
// field.
type Rule struct {
	ID          string
	Protocol    string
	SrcIP       string
	DstIP       string
	SrcPort     string
	DstPort     string
	Action      Action
	Description string
	Direction   Direction
	Flags       []string // TCP flag letters, e.g. "S", "A", "F", "R", "P", "U"
	Threshold   Threshold
}

// IsWildcard reports whether this rule matches on at least one field via
// the "any" sentinel (§4.1's definition of a wildcard rule).
func (r Rule) IsWildcard() bool {
	return r.SrcIP == Any || r.DstIP == Any || r.SrcPort == Any || r.DstPort == Any
}

// HasFlag reports whether flag (a single letter like "S") is required by
// this rule.
func (r Rule) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
