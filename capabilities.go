// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import "context"

// FileSystem is the engine's window onto the outside filesystem (§4.H):
// timestamps, touch/unlink, makefile and include reads, and the `file`
// builtin go through this interface so tests can substitute an in-memory
// FS with controllable mtimes. Two paths bypass it: the vpath resolver
// probes directories with os.Stat, and the default `wildcard` glob reads
// the OS filesystem through os.DirFS.
type FileSystem interface {
	// Timestamp returns path's modification time as a Unix timestamp, or 0
	// if the path does not exist. When checkSymlink is true, returns the
	// max of lstat and stat mtimes (a symlink newer than its target still
	// counts as changed).
	Timestamp(path string, checkSymlink bool) (int64, error)
	Unlink(path string) error
	Touch(path string) error
	ReadFile(path string) (string, error)
	WriteFile(path string, data string, append bool) error
	Realpath(path string) (string, error)
	MkdirAll(path string) error
}

// ShellRequest bundles the inputs to a single Shell.Run invocation.
type ShellRequest struct {
	CommandLine string
	Cwd         string
	Env         []string
	Shell       string // interpreter path/name, e.g. "/bin/sh"; "" picks a default
	Silent      bool
	Stdout      func(chunk []byte)
	Stderr      func(chunk []byte)
}

// ShellResult is what a Shell invocation reports back.
type ShellResult struct {
	ExitCode int
}

// Shell spawns a command line with a given cwd/env/interpreter, streaming
// stdout/stderr chunks as they arrive (§4.H).
type Shell interface {
	Run(ctx context.Context, req ShellRequest) (ShellResult, error)
}

// Lock is a held JobServer concurrency slot; Release must be safe to call
// exactly once along every code path, including error paths.
type Lock interface {
	Release()
}

// JobServer hands out bounded concurrency slots (§4.H, §5). Acquire
// blocks until a slot is free or ctx is done; a max of N must never allow
// N+1 concurrent holders.
type JobServer interface {
	Acquire(ctx context.Context) (Lock, error)
}

// PathResolver implements vpath/VPATH search (§4.H): resolve(file) returns
// an existing path, or ok=false if no vpath mapping produces a hit.
type PathResolver interface {
	Resolve(file string) (resolved string, ok bool)
}

// IncludeLoader resolves and reads include files (§4.H). Load attempts
// every path in files and returns the subset that could not be read;
// successful reads are handed back through onLoaded before Load returns,
// so the caller's Parser/loader can fold their statements in immediately.
type IncludeLoader interface {
	Load(files []string, onLoaded func(path, contents string) error) (failed []string)
}
