// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"context"
	"os/exec"
)

func execCommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

func asExitError(err error) (*exec.ExitError, bool) {
	ee, ok := err.(*exec.ExitError)
	return ee, ok
}
