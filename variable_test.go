// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(s string) string { return s }

func noShell(string) (string, error) { return "", nil }

func TestApplyAssignmentRecursiveDefersExpansion(t *testing.T) {
	s := NewVariableStore()
	require.NoError(t, ApplyAssignment(s, identity, noShell, "FOO", OpRecursive, "$(BAR)", OriginFile))
	v, ok := s.Lookup("FOO")
	require.True(t, ok)
	assert.Equal(t, "$(BAR)", v.Value, "recursive assignment stores the raw RHS, unexpanded")
	assert.True(t, v.Recurse)
}

func TestApplyAssignmentSimpleExpandsNow(t *testing.T) {
	s := NewVariableStore()
	expand := func(v string) string { return v + "-expanded" }
	require.NoError(t, ApplyAssignment(s, expand, noShell, "FOO", OpSimple, "raw", OriginFile))
	v, _ := s.Lookup("FOO")
	assert.Equal(t, "raw-expanded", v.Value)
	assert.False(t, v.Recurse)
}

func TestApplyAssignmentCondSetOnlyWhenAbsent(t *testing.T) {
	s := NewVariableStore()
	require.NoError(t, ApplyAssignment(s, identity, noShell, "FOO", OpCondSet, "first", OriginFile))
	require.NoError(t, ApplyAssignment(s, identity, noShell, "FOO", OpCondSet, "second", OriginFile))
	assert.Equal(t, "first", s.Get("FOO"))
}

func TestApplyAssignmentAppendRecursive(t *testing.T) {
	s := NewVariableStore()
	require.NoError(t, ApplyAssignment(s, identity, noShell, "LIST", OpRecursive, "a", OriginFile))
	require.NoError(t, ApplyAssignment(s, identity, noShell, "LIST", OpAppend, "b", OriginFile))
	v, _ := s.Lookup("LIST")
	assert.Equal(t, "a b", v.Value)
	assert.True(t, v.Recurse, "appending to a recursive variable keeps it recursive")
}

func TestApplyAssignmentAppendSimpleExpandsRHS(t *testing.T) {
	s := NewVariableStore()
	require.NoError(t, ApplyAssignment(s, identity, noShell, "LIST", OpSimple, "a", OriginFile))
	expand := func(v string) string { return v + "!" }
	require.NoError(t, ApplyAssignment(s, expand, noShell, "LIST", OpAppend, "b", OriginFile))
	v, _ := s.Lookup("LIST")
	assert.Equal(t, "a b!", v.Value)
}

func TestApplyAssignmentShellRuns(t *testing.T) {
	s := NewVariableStore()
	runShell := func(cmd string) (string, error) { return "output\n", nil }
	require.NoError(t, ApplyAssignment(s, identity, runShell, "OUT", OpShell, "echo output", OriginFile))
	v, _ := s.Lookup("OUT")
	assert.Equal(t, "output", v.Value, "trailing newline from shell output is trimmed")
	assert.False(t, v.Recurse)
}

func TestApplyAssignmentCommandLineBeatsFile(t *testing.T) {
	s := NewVariableStore()
	require.NoError(t, ApplyAssignment(s, identity, noShell, "FOO", OpRecursive, "cli", OriginCommandLine))
	require.NoError(t, ApplyAssignment(s, identity, noShell, "FOO", OpRecursive, "file", OriginFile))
	assert.Equal(t, "cli", s.Get("FOO"), "a file assignment must not downgrade a command-line origin")
}

func TestApplyAssignmentOverrideBeatsCommandLine(t *testing.T) {
	s := NewVariableStore()
	require.NoError(t, ApplyAssignment(s, identity, noShell, "FOO", OpRecursive, "cli", OriginCommandLine))
	require.NoError(t, ApplyAssignment(s, identity, noShell, "FOO", OpRecursive, "forced", OriginOverride))
	assert.Equal(t, "forced", s.Get("FOO"))
	v, _ := s.Lookup("FOO")
	assert.Equal(t, OriginOverride, v.Origin, "an override directive always wins and keeps its own origin label")
}

func TestApplyAssignmentOverridePromotesEnvironmentOrigin(t *testing.T) {
	s := NewVariableStore()
	require.NoError(t, ApplyAssignment(s, identity, noShell, "FOO", OpRecursive, "env", OriginEnvironment))
	require.NoError(t, ApplyAssignment(s, identity, noShell, "FOO", OpRecursive, "forced", OriginOverride))
	v, _ := s.Lookup("FOO")
	assert.Equal(t, "forced", v.Value)
	assert.Equal(t, OriginEnvironmentOverride, v.Origin, "an override directive over an environment variable is relabeled environment-override")
}

func TestApplyAssignmentEnvOverridesRejectsFileWrite(t *testing.T) {
	s := NewVariableStore()
	s.SetEnvOverrides(true)
	require.NoError(t, ApplyAssignment(s, identity, noShell, "FOO", OpRecursive, "env", OriginEnvironment))
	require.NoError(t, ApplyAssignment(s, identity, noShell, "FOO", OpRecursive, "file", OriginFile))
	assert.Equal(t, "env", s.Get("FOO"), "-e semantics: file assignments must not override an environment variable")
}

func TestVariableStoreUndefineRemovesFromNames(t *testing.T) {
	s := NewVariableStore()
	s.SetRecursive("A", "1")
	s.SetRecursive("B", "2")
	s.Undefine("A")
	_, ok := s.Lookup("A")
	assert.False(t, ok)
	assert.Equal(t, []string{"B"}, s.Names())
}

func TestVariableStoreEnviron(t *testing.T) {
	s := NewVariableStore()
	s.SetRecursive("PRIVATE", "x")
	s.Set("PUBLIC", "y")
	s.Export("PUBLIC")
	env := s.Environ()
	assert.Contains(t, env, "PUBLIC=y")
	assert.NotContains(t, env, "PRIVATE=x")
}

func TestVariableStoreCloneIsIndependent(t *testing.T) {
	s := NewVariableStore()
	s.SetRecursive("A", "1")
	c := s.Clone()
	c.SetRecursive("B", "2")
	_, ok := s.Lookup("B")
	assert.False(t, ok, "cloning must not leak new names back into the source store")
}

func TestFlavorReflectsRecurseFlag(t *testing.T) {
	s := NewVariableStore()
	s.SetRecursive("R", "v")
	s.Set("S", "v")
	rv, _ := s.Lookup("R")
	sv, _ := s.Lookup("S")
	assert.Equal(t, "recursive", rv.Flavor())
	assert.Equal(t, "simple", sv.Flavor())
}
