// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"context"
	"io"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// interpShell is the default Shell (§4.H), backed by mvdan.cc/sh/v3's POSIX
// interpreter rather than forking an external /bin/sh — recipe lines run
// in-process, which is both faster and sandboxable for embedders. An
// execShell (below) remains available for callers who need parity with a
// real system shell (custom SHELL/.SHELLFLAGS values the embedded
// interpreter doesn't understand).
type interpShell struct{}

// NewInterpShell returns the default Shell implementation.
func NewInterpShell() Shell { return interpShell{} }

func (interpShell) Run(ctx context.Context, req ShellRequest) (ShellResult, error) {
	file, err := syntax.NewParser().Parse(strings.NewReader(req.CommandLine), "")
	if err != nil {
		return ShellResult{ExitCode: 1}, wrapError(ErrShellSpawn, "", 0, err, "parsing recipe line")
	}

	stdout := sinkWriter{fn: req.Stdout}
	stderr := sinkWriter{fn: req.Stderr}

	opts := []interp.RunnerOption{
		interp.StdIO(strings.NewReader(""), stdout, stderr),
	}
	if req.Cwd != "" {
		opts = append(opts, interp.Dir(req.Cwd))
	}
	if len(req.Env) > 0 {
		opts = append(opts, interp.Env(expand.ListEnviron(req.Env...)))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return ShellResult{ExitCode: 1}, wrapError(ErrShellSpawn, "", 0, err, "constructing shell interpreter")
	}

	runErr := runner.Run(ctx, file)
	if runErr == nil {
		return ShellResult{ExitCode: 0}, nil
	}
	if status, ok := interp.IsExitStatus(runErr); ok {
		return ShellResult{ExitCode: int(status)}, nil
	}
	return ShellResult{ExitCode: 1}, wrapError(ErrShellSpawn, "", 0, runErr, "running recipe line")
}

// sinkWriter adapts a streaming-chunk callback to io.Writer, matching the
// "stream stdout/stderr chunks as they arrive" contract in §4.H.
type sinkWriter struct {
	fn func(chunk []byte)
}

func (s sinkWriter) Write(p []byte) (int, error) {
	if s.fn != nil {
		chunk := make([]byte, len(p))
		copy(chunk, p)
		s.fn(chunk)
	}
	return len(p), nil
}

var _ io.Writer = sinkWriter{}

// execShell spawns req.Shell (default "/bin/sh") as a real subprocess via
// os/exec, behind the Shell interface. Embedders that need parity with a
// custom system SHELL value should inject this instead of the default
// interpShell.
type execShell struct{}

// NewExecShell returns an os/exec-backed Shell.
func NewExecShell() Shell { return execShell{} }

func (execShell) Run(ctx context.Context, req ShellRequest) (ShellResult, error) {
	shellPath := req.Shell
	if shellPath == "" {
		shellPath = "/bin/sh"
	}
	cmd := execCommandContext(ctx, shellPath, "-c", req.CommandLine)
	cmd.Dir = req.Cwd
	cmd.Env = req.Env
	cmd.Stdout = sinkWriter{fn: req.Stdout}
	cmd.Stderr = sinkWriter{fn: req.Stderr}

	err := cmd.Run()
	if err == nil {
		return ShellResult{ExitCode: 0}, nil
	}
	if exitErr, ok := asExitError(err); ok {
		return ShellResult{ExitCode: exitErr.ExitCode()}, nil
	}
	return ShellResult{ExitCode: 1}, wrapError(ErrShellSpawn, "", 0, err, "spawning %s", shellPath)
}
