// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import "strings"

// Pattern represents a single-stem `%` pattern, the only wildcard form
// GNU Make's implicit-rule targets and prerequisites use (§3, §4.E).
// A pattern with no '%' is a plain literal and never matches anything
// but an identical string.
type Pattern struct {
	Prefix  string
	Suffix  string
	HasStem bool
	Raw     string
}

// ParsePattern parses a single target/prerequisite word into a Pattern.
// At most one '%' is meaningful; a second '%' is treated as a literal
// character, matching GNU Make's own rule that only the first '%' in a
// pattern word is special.
func ParsePattern(s string) Pattern {
	i := strings.IndexByte(s, '%')
	if i < 0 {
		return Pattern{Raw: s}
	}
	return Pattern{Prefix: s[:i], Suffix: s[i+1:], HasStem: true, Raw: s}
}

// IsPattern reports whether this word contains a stem.
func (p Pattern) IsPattern() bool {
	return p.HasStem
}

// Match attempts to match a concrete string against this pattern,
// returning the stem substring bound to '%' and true on success.
func (p Pattern) Match(s string) (stem string, ok bool) {
	if !p.HasStem {
		return "", s == p.Raw
	}
	if !strings.HasPrefix(s, p.Prefix) || !strings.HasSuffix(s, p.Suffix) {
		return "", false
	}
	if len(s) < len(p.Prefix)+len(p.Suffix) {
		return "", false
	}
	return s[len(p.Prefix) : len(s)-len(p.Suffix)], true
}

// Expand substitutes stem into the pattern, producing a concrete string.
func (p Pattern) Expand(stem string) string {
	if !p.HasStem {
		return p.Raw
	}
	return p.Prefix + stem + p.Suffix
}

// StemLength is used to rank competing pattern-rule matches: GNU Make
// prefers the rule whose target pattern has the shortest stem, i.e. the
// most specific (longest literal prefix+suffix) match (§4.F).
func StemLength(stem string) int {
	return len(stem)
}
