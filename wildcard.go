// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// osWildcard implements the `wildcard` builtin's glob engine, relative to
// CURDIR, using doublestar/v4 for `**` support.
func osWildcard(curdir string, patterns []string) ([]string, error) {
	root := curdir
	if root == "" {
		root = "."
	}
	fsys := os.DirFS(root)

	var out []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, filepath.ToSlash(pattern))
		if err != nil {
			return nil, wrapError(ErrExpansion, "", 0, err, "wildcard %q", pattern)
		}
		out = append(out, matches...)
	}
	return out, nil
}
