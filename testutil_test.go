// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"context"
	"sync"
)

// fakeFS is an in-memory FileSystem test double: mtimes are a logical
// counter rather than wall-clock time, so rebuild-decision tests are
// deterministic regardless of how fast the test runs.
type fakeFS struct {
	mu     sync.Mutex
	files  map[string]int64
	clock  int64
	unlink []string
}

func newFakeFS() *fakeFS {
	return &fakeFS{files: make(map[string]int64)}
}

func (f *fakeFS) touchAt(path string, ts int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = ts
}

func (f *fakeFS) tick() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock++
	return f.clock
}

func (f *fakeFS) Timestamp(path string, _ bool) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[path], nil
}

func (f *fakeFS) Unlink(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, path)
	f.unlink = append(f.unlink, path)
	return nil
}

func (f *fakeFS) Touch(path string) error {
	f.mu.Lock()
	f.clock++
	ts := f.clock
	f.mu.Unlock()
	f.touchAt(path, ts)
	return nil
}

func (f *fakeFS) ReadFile(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.files[path]; !ok {
		return "", &Error{Kind: ErrInclude, Msg: "no such file: " + path}
	}
	return "", nil
}

func (f *fakeFS) WriteFile(path string, _ string, _ bool) error {
	f.mu.Lock()
	f.clock++
	ts := f.clock
	f.mu.Unlock()
	f.touchAt(path, ts)
	return nil
}

func (f *fakeFS) Realpath(path string) (string, error) { return path, nil }
func (f *fakeFS) MkdirAll(string) error                 { return nil }

// fakeShell is a Shell test double: every invocation is recorded, and a
// command's exit status is controlled by fakeShell.fail, keyed by the
// literal command line. It changes no fakeFS timestamps itself; a test
// that needs a recipe's effect on disk sets onRun, which is called with
// each command line.
type fakeShell struct {
	mu       sync.Mutex
	commands []string
	fail     map[string]bool
	onRun    func(cmd string)
}

func newFakeShell() *fakeShell {
	return &fakeShell{fail: make(map[string]bool)}
}

func (s *fakeShell) Run(_ context.Context, req ShellRequest) (ShellResult, error) {
	s.mu.Lock()
	s.commands = append(s.commands, req.CommandLine)
	fail := s.fail[req.CommandLine]
	s.mu.Unlock()
	if s.onRun != nil {
		s.onRun(req.CommandLine)
	}
	if fail {
		return ShellResult{ExitCode: 1}, nil
	}
	return ShellResult{ExitCode: 0}, nil
}

func (s *fakeShell) ran() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// newTestEngine builds an Engine over the given makefile text, backed by
// fs/sh fakes, and loads it immediately.
func newTestEngine(t interface{ Fatalf(string, ...any) }, fs FileSystem, sh Shell, makefile string) *Engine {
	e := NewEngine(EngineOptions{
		FS:      fs,
		Shell:   sh,
		CurDir:  "/work",
		Jobs:    4,
		Environ: []string{},
	})
	if err := e.LoadString("Makefile", makefile); err != nil {
		t.Fatalf("LoadString: %v", err)
	}
	return e
}
