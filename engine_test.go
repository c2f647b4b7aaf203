// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingIncludeLoader delegates to the same FileSystem-backed logic as
// fsIncludeLoader, but records every batch of paths it was asked to load,
// so a test can confirm Engine actually routes includes through the
// injected IncludeLoader instead of reading the FileSystem directly.
type recordingIncludeLoader struct {
	fs        FileSystem
	requested [][]string
}

func (l *recordingIncludeLoader) Load(files []string, onLoaded func(path, contents string) error) []string {
	l.requested = append(l.requested, append([]string(nil), files...))
	var failed []string
	for _, path := range files {
		contents, err := l.fs.ReadFile(path)
		if err != nil {
			failed = append(failed, path)
			continue
		}
		if onLoaded != nil {
			if err := onLoaded(path, contents); err != nil {
				failed = append(failed, path)
			}
		}
	}
	return failed
}

func TestEngineIncludeRoutesThroughInjectedIncludeLoader(t *testing.T) {
	fs := newFakeFS()
	fs.touchAt("/work/extra.mk", 1)
	loader := &recordingIncludeLoader{fs: fs}
	e := NewEngine(EngineOptions{
		FS:            fs,
		Shell:         newFakeShell(),
		CurDir:        "/work",
		Jobs:          1,
		Environ:       []string{},
		IncludeLoader: loader,
	})
	require.NoError(t, e.LoadString("Makefile", "include extra.mk\n"))
	require.Len(t, loader.requested, 1)
	assert.Equal(t, []string{"/work/extra.mk"}, loader.requested[0])
}

func TestEngineDeferredIncludeBecomesGoalAfterResolveFails(t *testing.T) {
	fs := newFakeFS()
	sh := newFakeShell()
	mk := `
-include missing.mk

other:
	echo other

missing.mk:
	echo building-missing
`
	e := newTestEngine(t, fs, sh, mk)
	_, err := e.Run([]string{"other"}, RunOptions{Jobs: 1})
	require.NoError(t, err)
	ran := sh.ran()
	assert.Contains(t, ran, "echo other")
	assert.Contains(t, ran, "echo building-missing", "a still-missing optional include must be fed to the Runner as a goal, not silently dropped")
}
