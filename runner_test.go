// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shellThatBuilds wires a fakeShell so that running any command bumps
// every target named in commandToTargets[cmd] to a fresh fakeFS
// timestamp, so rebuild decisions observe the recipe's effect.
func shellThatBuilds(fs *fakeFS, commandToTargets map[string][]string) *fakeShell {
	sh := newFakeShell()
	sh.onRun = func(cmd string) {
		for _, t := range commandToTargets[cmd] {
			fs.touchAt(t, fs.tick())
		}
	}
	return sh
}

func TestAtMostOnceBuild(t *testing.T) {
	fs := newFakeFS()
	sh := shellThatBuilds(fs, map[string][]string{
		"build shared": {"shared"},
		"build a":      {"a"},
		"build b":      {"b"},
	})
	mk := `
all: a b
	build all
a: shared
	build a
b: shared
	build b
shared:
	build shared
`
	e := newTestEngine(t, fs, sh, mk)
	ran, err := e.Run([]string{"all"}, RunOptions{Jobs: 4})
	require.NoError(t, err)
	assert.True(t, ran)

	count := 0
	for _, c := range sh.ran() {
		if c == "build shared" {
			count++
		}
	}
	assert.Equal(t, 1, count, "shared prerequisite of a and b must build exactly once")
}

func TestGroupedTargetsShareOneRecipeRun(t *testing.T) {
	fs := newFakeFS()
	sh := shellThatBuilds(fs, map[string][]string{
		"gen": {"out.h", "out.c"},
	})
	mk := `
out.h out.c &: src.idl
	gen
src.idl:
`
	fs.touchAt("src.idl", 1)
	e := newTestEngine(t, fs, sh, mk)

	ran1, err := e.Run([]string{"out.h", "out.c"}, RunOptions{Jobs: 2})
	require.NoError(t, err)
	assert.True(t, ran1)

	count := 0
	for _, c := range sh.ran() {
		if c == "gen" {
			count++
		}
	}
	assert.Equal(t, 1, count, "a grouped recipe runs once regardless of which member is requested")
}

func TestDoubleColonRulesRunIndependently(t *testing.T) {
	fs := newFakeFS()
	sh := newFakeShell()
	mk := `
log.txt:: a.src
	append a
log.txt:: b.src
	append b
a.src:
b.src:
`
	fs.touchAt("a.src", 1)
	fs.touchAt("b.src", 2)
	e := newTestEngine(t, fs, sh, mk)

	_, err := e.Run([]string{"log.txt"}, RunOptions{Jobs: 1})
	require.NoError(t, err)

	cmds := sh.ran()
	assert.Contains(t, cmds, "append a")
	assert.Contains(t, cmds, "append b")
	assert.Len(t, cmds, 2, "each double-colon rule contributes exactly one recipe run")
}

func TestShortestStemPatternWins(t *testing.T) {
	fs := newFakeFS()
	sh := newFakeShell()
	mk := `
%.o: %.c
	cc1 $@
foo%.o: foo%.c
	cc2 $@
foo.c:
`
	fs.touchAt("foo.c", 1)
	e := newTestEngine(t, fs, sh, mk)

	_, err := e.Run([]string{"foo.o"}, RunOptions{Jobs: 1})
	require.NoError(t, err)
	assert.Contains(t, sh.ran(), "cc2 foo.o", "the rule with the shorter stem (foo%.o, stem empty) should win over %.o")
}

func TestSecondExpansion(t *testing.T) {
	fs := newFakeFS()
	sh := newFakeShell()
	mk := `
.SECONDEXPANSION:
OBJS_main = helper.o
main: $$(OBJS_$$@)
	link $^
helper.o:
`
	fs.touchAt("helper.o", 1)
	e := newTestEngine(t, fs, sh, mk)

	_, err := e.Run([]string{"main"}, RunOptions{Jobs: 1})
	require.NoError(t, err)
	assert.Contains(t, sh.ran(), "link helper.o")
}

func TestWaitSerializesSegments(t *testing.T) {
	fs := newFakeFS()
	var order []string
	sh := newFakeShell()
	sh.onRun = func(cmd string) { order = append(order, cmd) }
	mk := `
all: first .WAIT second
	finish
first:
	build first
second:
	build second
`
	e := newTestEngine(t, fs, sh, mk)
	_, err := e.Run([]string{"all"}, RunOptions{Jobs: 4})
	require.NoError(t, err)

	firstIdx, secondIdx, finishIdx := -1, -1, -1
	for i, c := range order {
		switch c {
		case "build first":
			firstIdx = i
		case "build second":
			secondIdx = i
		case "finish":
			finishIdx = i
		}
	}
	require.True(t, firstIdx >= 0 && secondIdx >= 0 && finishIdx >= 0)
	assert.Less(t, firstIdx, secondIdx, ".WAIT must order the first segment strictly before the second")
	assert.Less(t, secondIdx, finishIdx)
}

func TestNotParallelForcesSequential(t *testing.T) {
	fs := newFakeFS()
	var concurrent int32
	var maxConcurrent int32
	sh := newFakeShell()
	sh.onRun = func(cmd string) {
		n := atomic.AddInt32(&concurrent, 1)
		for {
			old := atomic.LoadInt32(&maxConcurrent)
			if n <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, n) {
				break
			}
		}
		atomic.AddInt32(&concurrent, -1)
	}
	mk := `
.NOTPARALLEL:
all: a b
	finish
a:
	build a
b:
	build b
`
	e := newTestEngine(t, fs, sh, mk)
	_, err := e.Run([]string{"all"}, RunOptions{Jobs: 4})
	require.NoError(t, err)
	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxConcurrent)), 1, ".NOTPARALLEL must serialize prerequisite builds")
}

func TestDeleteOnErrorUnlinksPartialTarget(t *testing.T) {
	fs := newFakeFS()
	sh := newFakeShell()
	sh.fail["bad recipe"] = true
	sh.onRun = func(cmd string) {
		if cmd == "bad recipe" {
			fs.touchAt("out", fs.tick())
		}
	}
	mk := `
.DELETE_ON_ERROR:
out:
	bad recipe
`
	e := newTestEngine(t, fs, sh, mk)
	_, err := e.Run([]string{"out"}, RunOptions{Jobs: 1})
	require.Error(t, err)

	ts, _ := fs.Timestamp("out", false)
	assert.Equal(t, int64(0), ts, ".DELETE_ON_ERROR must remove a target left behind by a failed recipe")
}

func TestDryRunPerformsNoRecipes(t *testing.T) {
	fs := newFakeFS()
	sh := newFakeShell()
	mk := `
out:
	would run this
`
	e := newTestEngine(t, fs, sh, mk)
	ran, err := e.Run([]string{"out"}, RunOptions{Jobs: 1, Mode: ModeDryRun})
	require.NoError(t, err)
	assert.True(t, ran, "dry-run still reports that work would be done")
	assert.Empty(t, sh.ran(), "dry-run must not invoke the shell")
}

func TestQuestionModeDoesNotRunRecipes(t *testing.T) {
	fs := newFakeFS()
	sh := newFakeShell()
	mk := `
out:
	would run this
`
	e := newTestEngine(t, fs, sh, mk)
	ran, err := e.Run([]string{"out"}, RunOptions{Jobs: 1, Mode: ModeQuestion})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Empty(t, sh.ran())
}

func TestUpToDateTargetSkipsRecipe(t *testing.T) {
	fs := newFakeFS()
	sh := newFakeShell()
	mk := `
out: in
	build
in:
`
	fs.touchAt("in", 1)
	fs.touchAt("out", 2)
	e := newTestEngine(t, fs, sh, mk)
	ran, err := e.Run([]string{"out"}, RunOptions{Jobs: 1})
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Empty(t, sh.ran())
}

func TestAutomaticVariables(t *testing.T) {
	fs := newFakeFS()
	var captured string
	sh := newFakeShell()
	sh.onRun = func(cmd string) { captured = cmd }
	mk := `
out: a.txt b.txt
	echo $@ $< $^
a.txt:
b.txt:
`
	fs.touchAt("a.txt", 1)
	fs.touchAt("b.txt", 2)
	e := newTestEngine(t, fs, sh, mk)
	_, err := e.Run([]string{"out"}, RunOptions{Jobs: 1})
	require.NoError(t, err)
	assert.Equal(t, "echo out a.txt a.txt b.txt", captured)
}

func TestAutomaticVariableQuestionMarkListsAllNewerPrereqs(t *testing.T) {
	fs := newFakeFS()
	var captured string
	sh := newFakeShell()
	sh.onRun = func(cmd string) { captured = cmd }
	mk := `
out: a b c
	echo $?
`
	fs.touchAt("out", 5)
	fs.touchAt("a", 10)
	fs.touchAt("b", 3)
	fs.touchAt("c", 20)
	e := newTestEngine(t, fs, sh, mk)
	_, err := e.Run([]string{"out"}, RunOptions{Jobs: 1})
	require.NoError(t, err)
	assert.Equal(t, "echo a c", captured, "$? must list every prerequisite newer than the target, not just the last one found")
}
