// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainExpander() *Expander {
	return NewExpander(NewVariableStore(), NewFunctionLibrary(), &Env{})
}

func TestAddRuleInstallsExactRule(t *testing.T) {
	rt := NewRuleTable()
	exp := plainExpander()
	err := rt.AddRule(&RuleEntry{Targets: "out", Prerequisites: "a b", Recipe: []string{"build"}}, exp)
	require.NoError(t, err)

	rules := rt.exactRules["out"]
	require.Len(t, rules, 1)
	assert.Equal(t, []string{"a", "b"}, rules[0].Prerequisites)
	assert.True(t, rules[0].HasRecipe)
}

func TestAddRuleSplitsOrderOnly(t *testing.T) {
	rt := NewRuleTable()
	exp := plainExpander()
	require.NoError(t, rt.AddRule(&RuleEntry{Targets: "out", Prerequisites: "a | b c", Recipe: []string{"x"}}, exp))
	r := rt.exactRules["out"][0]
	assert.Equal(t, []string{"a"}, r.Prerequisites)
	assert.Equal(t, []string{"b", "c"}, r.OrderOnly)
}

func TestAddRuleMergesRecipelessThenRecipeBearingHeaders(t *testing.T) {
	rt := NewRuleTable()
	exp := plainExpander()
	require.NoError(t, rt.AddRule(&RuleEntry{Targets: "out", Prerequisites: "a"}, exp))
	require.NoError(t, rt.AddRule(&RuleEntry{Targets: "out", Prerequisites: "b", Recipe: []string{"build"}}, exp))

	rules := rt.exactRules["out"]
	require.Len(t, rules, 1, "a prerequisite-only header merges into the recipe-bearing one rather than creating a second rule")
	assert.ElementsMatch(t, []string{"a", "b"}, rules[0].Prerequisites)
}

func TestAddRuleDoubleColonKeepsRulesSeparate(t *testing.T) {
	rt := NewRuleTable()
	exp := plainExpander()
	require.NoError(t, rt.AddRule(&RuleEntry{Targets: "log", Prerequisites: "a", DoubleColon: true, Recipe: []string{"x"}}, exp))
	require.NoError(t, rt.AddRule(&RuleEntry{Targets: "log", Prerequisites: "b", DoubleColon: true, Recipe: []string{"y"}}, exp))

	assert.Len(t, rt.exactRules["log"], 2)
}

func TestAddRulePatternGoesToPatternRules(t *testing.T) {
	rt := NewRuleTable()
	exp := plainExpander()
	require.NoError(t, rt.AddRule(&RuleEntry{Targets: "%.o", Prerequisites: "%.c", Recipe: []string{"cc"}}, exp))
	require.Len(t, rt.patternRules, 1)
	assert.True(t, rt.KnownType(".o"))
}

func TestAddRuleInstallsSpecialTargetMembership(t *testing.T) {
	rt := NewRuleTable()
	exp := plainExpander()
	require.NoError(t, rt.AddRule(&RuleEntry{Targets: ".PHONY", Prerequisites: "clean all"}, exp))
	set := rt.Special(".PHONY")
	require.NotNil(t, set)
	assert.True(t, set.Has("clean"))
	assert.False(t, set.Has("missing"))
}

func TestSpecialTargetUniversalForm(t *testing.T) {
	rt := NewRuleTable()
	exp := plainExpander()
	require.NoError(t, rt.AddRule(&RuleEntry{Targets: ".NOTPARALLEL"}, exp))
	set := rt.Special(".NOTPARALLEL")
	require.NotNil(t, set)
	assert.True(t, set.Universal)
	assert.True(t, set.Has("anything"))
}

func TestTargetSetSequentializes(t *testing.T) {
	var nilSet *TargetSet
	assert.False(t, nilSet.sequentializes([]string{"a"}))

	universal := &TargetSet{Universal: true}
	assert.True(t, universal.sequentializes([]string{"a", "b"}))

	named := &TargetSet{Names: map[string]bool{"a": true, "b": true}}
	assert.True(t, named.sequentializes([]string{"a", "b"}))
	assert.False(t, named.sequentializes([]string{"a", "c"}), "a name outside the set must not force serialization")
	assert.False(t, named.sequentializes(nil))
}

func TestDefaultGoalIsFirstNonSpecialTarget(t *testing.T) {
	rt := NewRuleTable()
	exp := plainExpander()
	require.NoError(t, rt.AddRule(&RuleEntry{Targets: ".PHONY", Prerequisites: "clean"}, exp))
	require.NoError(t, rt.AddRule(&RuleEntry{Targets: "all", Prerequisites: "out"}, exp))
	require.NoError(t, rt.AddRule(&RuleEntry{Targets: "clean"}, exp))
	assert.Equal(t, "all", rt.DefaultGoal())
}

func TestScopeForCombinesPatternAndExact(t *testing.T) {
	rt := NewRuleTable()
	exp := plainExpander()
	require.NoError(t, rt.AddScope(&TargetScopeAssign{
		TargetsRaw: "%.o",
		Assignment: Assignment{Name: "CFLAGS", Op: OpRecursive, Value: "-Wall"},
	}, exp, noShell))
	require.NoError(t, rt.AddScope(&TargetScopeAssign{
		TargetsRaw: "out.o",
		Assignment: Assignment{Name: "CFLAGS", Op: OpAppend, Value: "-O2"},
	}, exp, noShell))

	scopes := rt.ScopeFor("out.o")
	require.Len(t, scopes, 2, "a pattern scope and an exact scope both apply")
}
