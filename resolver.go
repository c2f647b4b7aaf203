// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"path/filepath"
	"sort"
)

// maxChainDepth bounds the implicit-chain recursive search (§4.F) against
// pathological pattern-rule cycles.
const maxChainDepth = 32

// Resolver implements getRule/findRule (§4.F): exact rules first, then
// stem-length-ordered pattern/anything candidates, with implicit-chain
// search honoring the terminal (double-colon pattern) exclusion.
type Resolver struct {
	table *RuleTable
	fs    FileSystem
}

// NewResolver builds a Resolver over table, using fs to probe for
// on-disk leaf files during intermediate-existence checks.
func NewResolver(table *RuleTable, fs FileSystem) *Resolver {
	return &Resolver{table: table, fs: fs}
}

// GetRules returns the independent rules to build for target: normally a
// single-element slice, or one element per double-colon header. Each
// returned Rule has prerequisites-only contributions folded in.
func (rs *Resolver) GetRules(target string) ([]*Rule, error) {
	extraPrereqs, extraOrderOnly := rs.prereqOnlyContributions(target)

	if exact := rs.table.exactRules[target]; len(exact) > 0 {
		out := make([]*Rule, len(exact))
		for i, r := range exact {
			out[i] = mergeExtra(r, extraPrereqs, extraOrderOnly)
		}
		return out, nil
	}

	rule, err := rs.findRuleDepth(target, 0)
	if err != nil {
		return nil, err
	}
	if rule != nil {
		return []*Rule{mergeExtra(rule, extraPrereqs, extraOrderOnly)}, nil
	}

	ts, err := rs.fs.Timestamp(target, false)
	if err != nil {
		return nil, err
	}
	if ts != 0 {
		return []*Rule{{Targets: []string{target}, Prerequisites: extraPrereqs, OrderOnly: extraOrderOnly, All: true}}, nil
	}
	if len(extraPrereqs) > 0 || len(extraOrderOnly) > 0 {
		return []*Rule{{Targets: []string{target}, Prerequisites: extraPrereqs, OrderOnly: extraOrderOnly}}, nil
	}
	return nil, newError(ErrRuleResolution, "", 0, "no rule to make target %q", target)
}

func mergeExtra(r *Rule, extraPrereqs, extraOrderOnly []string) *Rule {
	if len(extraPrereqs) == 0 && len(extraOrderOnly) == 0 {
		return r
	}
	clone := *r
	clone.Prerequisites = append(append([]string(nil), extraPrereqs...), r.Prerequisites...)
	clone.OrderOnly = append(append([]string(nil), extraOrderOnly...), r.OrderOnly...)
	return &clone
}

// prereqOnlyContributions accumulates prerequisites from pattern rules
// (and exact rules) that match target but carry no recipe — these
// contribute unconditionally regardless of which recipe-bearing rule
// ultimately wins (§4.F step 1).
func (rs *Resolver) prereqOnlyContributions(target string) (prereqs, orderOnly []string) {
	for _, r := range rs.table.exactRules[target] {
		if !r.HasRecipe {
			prereqs = append(prereqs, r.Prerequisites...)
			orderOnly = append(orderOnly, r.OrderOnly...)
		}
	}
	for _, e := range rs.table.patternRules {
		if e.rule.HasRecipe {
			continue
		}
		stem, ok := e.pattern.Match(target)
		if !ok {
			continue
		}
		prereqs = append(prereqs, concretize(e.rule.Prerequisites, stem)...)
		orderOnly = append(orderOnly, concretize(e.rule.OrderOnly, stem)...)
	}
	return prereqs, orderOnly
}

type candidate struct {
	rule *Rule
	pat  Pattern
	stem string
}

// findRuleDepth resolves the recipe-bearing rule for target, recursing
// through the implicit-rule chain up to maxChainDepth.
func (rs *Resolver) findRuleDepth(target string, depth int) (*Rule, error) {
	if depth > maxChainDepth {
		return nil, nil
	}

	candidates := rs.matchCandidates(target)
	if len(candidates) == 0 {
		return nil, nil
	}

	for _, c := range candidates {
		if len(rs.intermediates(c)) == 0 {
			return rs.instantiate(c, target), nil
		}
	}

	if rs.table.KnownType(filepath.Ext(target)) {
		return nil, nil
	}

	for _, c := range candidates {
		if c.rule.Terminal {
			continue
		}
		allResolve := true
		for _, im := range rs.intermediates(c) {
			if sub, err := rs.findRuleDepth(im, depth+1); err != nil {
				return nil, err
			} else if sub == nil && !rs.fileExists(im) {
				allResolve = false
				break
			}
		}
		if allResolve {
			return rs.instantiate(c, target), nil
		}
	}
	return nil, nil
}

// matchCandidates returns recipe-bearing pattern and anything-rule
// matches for target, ordered shortest-stem-first (ties broken by
// declaration order, via a stable sort) with anything-rules appended
// last (§4.F).
func (rs *Resolver) matchCandidates(target string) []candidate {
	var out []candidate
	for _, e := range rs.table.patternRules {
		if !e.rule.HasRecipe {
			continue
		}
		stem, ok := e.pattern.Match(target)
		if !ok {
			continue
		}
		out = append(out, candidate{rule: e.rule, pat: e.pattern, stem: stem})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return StemLength(out[i].stem) < StemLength(out[j].stem)
	})
	for _, r := range rs.table.anythingRules {
		if !r.HasRecipe {
			continue
		}
		out = append(out, candidate{rule: r, stem: target})
	}
	return out
}

// intermediates returns c's concretized prerequisites (normal +
// order-only) that have neither a known rule nor an on-disk file.
func (rs *Resolver) intermediates(c candidate) []string {
	var prereqs []string
	prereqs = append(prereqs, concretize(c.rule.Prerequisites, c.stem)...)
	prereqs = append(prereqs, concretize(c.rule.OrderOnly, c.stem)...)

	var out []string
	for _, p := range prereqs {
		if p == ".WAIT" {
			continue
		}
		if rs.hasRuleFor(p) {
			continue
		}
		if rs.fileExists(p) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (rs *Resolver) hasRuleFor(name string) bool {
	if _, ok := rs.table.exactRules[name]; ok {
		return true
	}
	if len(rs.table.anythingRules) > 0 {
		return true
	}
	for _, e := range rs.table.patternRules {
		if _, ok := e.pattern.Match(name); ok {
			return true
		}
	}
	return false
}

func (rs *Resolver) fileExists(path string) bool {
	ts, err := rs.fs.Timestamp(path, false)
	return err == nil && ts != 0
}

func (rs *Resolver) instantiate(c candidate, target string) *Rule {
	r := &Rule{
		Targets:       []string{target},
		Prerequisites: concretize(c.rule.Prerequisites, c.stem),
		OrderOnly:     concretize(c.rule.OrderOnly, c.stem),
		Recipe:        c.rule.Recipe,
		Stem:          c.stem,
		DoubleColon:   c.rule.DoubleColon,
		Terminal:      c.rule.Terminal,
		HasRecipe:     true,
		File:          c.rule.File,
		Line:          c.rule.Line,
	}
	return r
}

// concretize substitutes stem into every "%"-bearing word of words,
// leaving non-pattern words (and ".WAIT") untouched.
func concretize(words []string, stem string) []string {
	if len(words) == 0 {
		return nil
	}
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = ParsePattern(w).Expand(stem)
	}
	return out
}
