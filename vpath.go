// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"os"
	"path/filepath"
	"strings"
)

// vpathMapping is one installed `vpath pattern dirs` entry.
type vpathMapping struct {
	pattern Pattern
	dirs    []string
}

// vpathResolver is the default PathResolver (§4.H): matches a file against
// each mapping's `%` pattern with the module's own Pattern type and probes
// the mapping's directories with os.Stat, following the generic VPATH
// search order (global VPATH dirs checked after pattern-specific ones,
// first existing hit wins).
type vpathResolver struct {
	mappings []vpathMapping
	vpath    []string // global VPATH search dirs
	root     string
}

// NewPathResolver builds a PathResolver rooted at root (normally CURDIR).
func NewPathResolver(root string) *vpathResolver {
	return &vpathResolver{root: root}
}

// SetVPath installs the space/colon-separated global VPATH directory list.
func (v *vpathResolver) SetVPath(spec string) {
	v.vpath = splitPathList(spec)
}

// AddVpath installs a `vpath pattern dirs` mapping (pattern contains a
// literal `%`, dirs is a space/colon-separated directory list).
func (v *vpathResolver) AddVpath(pattern, dirs string) {
	v.mappings = append(v.mappings, vpathMapping{pattern: ParsePattern(pattern), dirs: splitPathList(dirs)})
}

// DeleteVpath removes every mapping for the given pattern.
func (v *vpathResolver) DeleteVpath(pattern string) {
	out := v.mappings[:0]
	for _, m := range v.mappings {
		if m.pattern.Raw != pattern {
			out = append(out, m)
		}
	}
	v.mappings = out
}

// ClearVpath removes all mappings (bare `vpath` directive).
func (v *vpathResolver) ClearVpath() {
	v.mappings = nil
}

func splitPathList(spec string) []string {
	spec = strings.ReplaceAll(spec, ":", " ")
	return strings.Fields(spec)
}

func (v *vpathResolver) Resolve(file string) (string, bool) {
	if filepath.IsAbs(file) {
		return file, false
	}
	if v.exists(file) {
		return file, false
	}

	for _, m := range v.mappings {
		if !m.pattern.IsPattern() {
			if m.pattern.Raw != file {
				continue
			}
		} else if _, ok := m.pattern.Match(file); !ok {
			continue
		}
		if hit, ok := v.searchDirs(m.dirs, file); ok {
			return hit, true
		}
	}

	if hit, ok := v.searchDirs(v.vpath, file); ok {
		return hit, true
	}
	return file, false
}

func (v *vpathResolver) searchDirs(dirs []string, file string) (string, bool) {
	for _, dir := range dirs {
		candidate := filepath.Join(dir, file)
		if v.exists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func (v *vpathResolver) exists(path string) bool {
	full := path
	if v.root != "" && !filepath.IsAbs(path) {
		full = filepath.Join(v.root, path)
	}
	_, err := os.Stat(full)
	return err == nil
}
