// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"path/filepath"
	"strings"
)

// Rule is the post-expansion rule record the Runner consumes (§3).
type Rule struct {
	Targets       []string // full target list when Grouped; otherwise len==1
	Prerequisites []string // includes ".WAIT" sentinels, unexpanded of order-only split
	OrderOnly     []string
	Recipe        []string // raw recipe lines, expanded per-invocation
	Stem          string
	DoubleColon   bool
	Grouped       bool
	Terminal      bool // double-colon pattern rule: excluded from implicit chaining
	All           bool // no prerequisites, matches anything via exact target
	HasRecipe     bool
	File          string
	Line          int
}

// Target returns the rule's primary target (first listed), used for
// automatic-variable binding and diagnostics.
func (r *Rule) Target() string {
	if len(r.Targets) == 0 {
		return ""
	}
	return r.Targets[0]
}

// patternRuleEntry pairs a parsed target Pattern with its Rule.
type patternRuleEntry struct {
	pattern Pattern
	rule    *Rule
}

// patternScopeEntry pairs a parsed target Pattern with a target-specific
// Scope (§3).
type patternScopeEntry struct {
	pattern Pattern
	scope   *Scope
}

// Scope holds target- or pattern-specific variable assignments (§3),
// applied by overlaying a VariableStore onto the Runner's Expander when
// that target is being evaluated. A Scope applies only to targets that
// match it; its variables are not passed on to the prerequisites of
// those targets.
type Scope struct {
	Store *VariableStore
}

// NewScope creates an empty Scope.
func NewScope() *Scope {
	return &Scope{Store: NewVariableStore()}
}

// TargetSet represents a special-target membership set (§3): a set with
// no listed names means "applies universally".
type TargetSet struct {
	Universal bool
	Names     map[string]bool
}

// Has reports whether target is a member of the set.
func (s *TargetSet) Has(target string) bool {
	if s == nil {
		return false
	}
	if s.Universal {
		return true
	}
	return s.Names[target]
}

// sequentializes reports whether building names together must be
// serialized: a bare `.NOTPARALLEL:` (Universal) always does, and a
// `.NOTPARALLEL: a b` form does when every one of names is listed.
func (s *TargetSet) sequentializes(names []string) bool {
	if s == nil {
		return false
	}
	if s.Universal {
		return true
	}
	for _, n := range names {
		if !s.Names[n] {
			return false
		}
	}
	return len(names) > 0
}

// RuleTable indexes every rule and target-scope known for a run (§4.E).
type RuleTable struct {
	exactRules    map[string][]*Rule // >1 entries only for double-colon
	patternRules  []patternRuleEntry // declaration order
	anythingRules []*Rule            // target pattern is exactly "%"

	exactScopes   map[string]*Scope
	patternScopes []patternScopeEntry

	knownTypes map[string]bool // extensions named by pattern-rule targets
	suffixes   []string        // .SUFFIXES accumulation, oldest-style chaining

	specialTargets map[string]*TargetSet
	defaultGoal    string
}

// NewRuleTable creates an empty table.
func NewRuleTable() *RuleTable {
	return &RuleTable{
		exactRules:     make(map[string][]*Rule),
		exactScopes:    make(map[string]*Scope),
		knownTypes:     make(map[string]bool),
		specialTargets: make(map[string]*TargetSet),
	}
}

// AddRule expands entry's Targets/Prerequisites with expander (the
// "global expander" per §4.E) and installs the resulting Rule(s).
func (rt *RuleTable) AddRule(entry *RuleEntry, expander *Expander) error {
	targets := strings.Fields(expander.Expand(entry.Targets))
	if len(targets) == 0 {
		return newError(ErrParse, entry.File, entry.Line, "rule header expands to no targets")
	}

	prereqWords := strings.Fields(expander.Expand(entry.Prerequisites))
	prereqs, orderOnly := splitOrderOnly(prereqWords)

	if rt.defaultGoal == "" {
		for _, t := range targets {
			if !isSpecialTargetName(t) {
				rt.defaultGoal = t
				break
			}
		}
	}

	if targets[0] == ".SUFFIXES" {
		if len(prereqs) == 0 {
			rt.suffixes = nil
		} else {
			rt.suffixes = append(rt.suffixes, prereqs...)
		}
	}

	if isSpecialTargetName(targets[0]) && len(targets) == 1 {
		rt.installSpecialTarget(targets[0], prereqs)
	}

	rule := &Rule{
		Targets:       targets,
		Prerequisites: prereqs,
		OrderOnly:     orderOnly,
		Recipe:        entry.Recipe,
		DoubleColon:   entry.DoubleColon,
		Grouped:       entry.Grouped,
		HasRecipe:     len(entry.Recipe) > 0,
		All:           len(prereqs) == 0 && len(orderOnly) == 0,
		File:          entry.File,
		Line:          entry.Line,
	}

	for _, t := range targets {
		pat := ParsePattern(t)
		if !pat.IsPattern() {
			rt.installExact(t, rule)
			continue
		}
		if pat.Prefix == "" && pat.Suffix == "" {
			rt.anythingRules = append(rt.anythingRules, rule)
			continue
		}
		rule.Terminal = entry.DoubleColon
		ext := filepath.Ext(pat.Suffix)
		if ext != "" {
			rt.knownTypes[ext] = true
		}
		rt.patternRules = append(rt.patternRules, patternRuleEntry{pattern: pat, rule: rule})
	}
	return nil
}

func (rt *RuleTable) installExact(target string, rule *Rule) {
	existing := rt.exactRules[target]
	if rule.DoubleColon {
		rt.exactRules[target] = append(existing, rule)
		return
	}
	for _, r := range existing {
		if r.HasRecipe && rule.HasRecipe {
			// Multiple headers accumulate prerequisites only (§3 invariant);
			// merge into the first recipe-bearing rule rather than error.
			r.Prerequisites = append(r.Prerequisites, rule.Prerequisites...)
			r.OrderOnly = append(r.OrderOnly, rule.OrderOnly...)
			return
		}
	}
	if len(existing) == 1 && !existing[0].HasRecipe && rule.HasRecipe {
		merged := existing[0]
		merged.Recipe = rule.Recipe
		merged.HasRecipe = true
		merged.Prerequisites = append(merged.Prerequisites, rule.Prerequisites...)
		merged.OrderOnly = append(merged.OrderOnly, rule.OrderOnly...)
		merged.All = merged.All && rule.All
		return
	}
	rt.exactRules[target] = append(existing, rule)
}

// AddScope installs a target-/pattern-specific variable scope (§3, §4.D).
func (rt *RuleTable) AddScope(assign *TargetScopeAssign, expander *Expander, runShell func(string) (string, error)) error {
	targets := strings.Fields(expander.Expand(assign.TargetsRaw))
	for _, t := range targets {
		scope := rt.scopeFor(t)
		err := ApplyAssignment(scope.Store, func(s string) string { return expander.Expand(s) }, runShell,
			assign.Assignment.Name, assign.Assignment.Op, assign.Assignment.Value, OriginFile)
		if err != nil {
			return wrapError(ErrExpansion, assign.File, assign.Line, err, "target-specific assignment for %q", t)
		}
		if assign.Assignment.Private {
			if v, ok := scope.Store.Lookup(assign.Assignment.Name); ok {
				v.Private = true
			}
		}
	}
	return nil
}

func (rt *RuleTable) scopeFor(target string) *Scope {
	pat := ParsePattern(target)
	if !pat.IsPattern() {
		if s, ok := rt.exactScopes[target]; ok {
			return s
		}
		s := NewScope()
		rt.exactScopes[target] = s
		return s
	}
	for _, e := range rt.patternScopes {
		if e.pattern.Raw == target {
			return e.scope
		}
	}
	s := NewScope()
	rt.patternScopes = append(rt.patternScopes, patternScopeEntry{pattern: pat, scope: s})
	return s
}

// ScopeFor returns the combined scopes (pattern then exact, exact wins)
// applicable to target, or nil if none match.
func (rt *RuleTable) ScopeFor(target string) []*Scope {
	var scopes []*Scope
	for _, e := range rt.patternScopes {
		if _, ok := e.pattern.Match(target); ok {
			scopes = append(scopes, e.scope)
		}
	}
	if s, ok := rt.exactScopes[target]; ok {
		scopes = append(scopes, s)
	}
	return scopes
}

func (rt *RuleTable) installSpecialTarget(name string, prereqs []string) {
	set, ok := rt.specialTargets[name]
	if !ok {
		set = &TargetSet{Names: make(map[string]bool)}
		rt.specialTargets[name] = set
	}
	if len(prereqs) == 0 {
		set.Universal = true
		return
	}
	for _, p := range prereqs {
		set.Names[p] = true
	}
}

// Special returns the TargetSet for special target name (e.g. ".PHONY").
func (rt *RuleTable) Special(name string) *TargetSet {
	return rt.specialTargets[name]
}

// DefaultGoal returns the first explicit non-special target encountered,
// used when the Runner is given no goals (§6 `.DEFAULT_GOAL`).
func (rt *RuleTable) DefaultGoal() string {
	return rt.defaultGoal
}

// KnownType reports whether ext (including the leading dot) is mentioned
// by any pattern rule's target, gating implicit-chain search (§4.F).
func (rt *RuleTable) KnownType(ext string) bool {
	return rt.knownTypes[ext]
}

func isSpecialTargetName(t string) bool {
	switch t {
	case ".PHONY", ".PRECIOUS", ".INTERMEDIATE", ".NOTINTERMEDIATE", ".SECONDARY",
		".SECONDEXPANSION", ".DELETE_ON_ERROR", ".IGNORE", ".LOW_RESOLUTION_TIME",
		".SILENT", ".EXPORT_ALL_VARIABLES", ".NOTPARALLEL", ".ONESHELL", ".POSIX",
		".SUFFIXES", ".DEFAULT", ".DEFAULT_GOAL":
		return true
	}
	return false
}

// splitOrderOnly splits a prerequisite word list at the first lone "|",
// per §4.E.
func splitOrderOnly(words []string) (normal, orderOnly []string) {
	for i, w := range words {
		if w == "|" {
			return words[:i], words[i+1:]
		}
	}
	return words, nil
}
