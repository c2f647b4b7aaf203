// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

// fsIncludeLoader is the default IncludeLoader (§4.H): an open-then-parse
// flow that reports failed files instead of erroring immediately, so
// `-include`/`sinclude` callers can defer rather than aborting the load.
type fsIncludeLoader struct {
	fs FileSystem
}

// NewIncludeLoader returns a FileSystem-backed IncludeLoader.
func NewIncludeLoader(fs FileSystem) IncludeLoader {
	return &fsIncludeLoader{fs: fs}
}

func (l *fsIncludeLoader) Load(files []string, onLoaded func(path, contents string) error) []string {
	var failed []string
	for _, path := range files {
		contents, err := l.fs.ReadFile(path)
		if err != nil {
			failed = append(failed, path)
			continue
		}
		if onLoaded != nil {
			if cbErr := onLoaded(path, contents); cbErr != nil {
				failed = append(failed, path)
			}
		}
	}
	return failed
}
