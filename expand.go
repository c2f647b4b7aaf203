// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"strings"
	"sync"
)

// maxExpansionDepth bounds the recursion-depth counter described in §4.A;
// exceeding it emits a warning and returns the input unchanged instead of
// overflowing the stack on a self-referential recursive variable.
const maxExpansionDepth = 50

// Env bundles the capabilities and shared mutable state an Expander needs
// beyond variable lookup: the injected FileSystem/Shell (§4.H), a warning
// sink, and the `eval` builtin's callback into the Parser/loader.
type Env struct {
	FS        FileSystem
	Shell     Shell
	WarnUndef bool
	OnWarn    func(string)
	OnEval    func(text string) error
	Wildcard  func(pattern string) ([]string, error)
	CurDir    string

	mu        sync.Mutex
	shellExit string
}

func (e *Env) setShellExit(code string) {
	e.mu.Lock()
	e.shellExit = code
	e.mu.Unlock()
}

func (e *Env) warn(msg string) {
	if e.OnWarn != nil {
		e.OnWarn(msg)
	}
}

// Expander evaluates `$(...)`/`${...}`/`$x` references within a string
// (§4.A). It is immutable-ish: With/WithoutPrivate return a new value
// rather than mutating the receiver, so concurrent builds can safely hold
// and branch from the same parent Expander.
type Expander struct {
	frames      []*VariableStore // frames[0] is innermost; last is outermost (global)
	hidePrivate bool
	funcs       *FunctionLibrary
	env         *Env
}

// NewExpander creates a root Expander over the given global store.
func NewExpander(global *VariableStore, funcs *FunctionLibrary, env *Env) *Expander {
	return &Expander{frames: []*VariableStore{global}, funcs: funcs, env: env}
}

// With returns a new Expander that consults overlay before the parent
// chain. It does not mutate the receiver.
func (e *Expander) With(overlay *VariableStore) *Expander {
	if overlay == nil {
		return e
	}
	frames := make([]*VariableStore, 0, len(e.frames)+1)
	frames = append(frames, overlay)
	frames = append(frames, e.frames...)
	return &Expander{frames: frames, hidePrivate: e.hidePrivate, funcs: e.funcs, env: e.env}
}

// WithoutPrivate returns a view that hides Private-flagged entries from
// every current frame except the base (global) store. The Runner does not
// call it: each target is built with only the global store and its own
// scopes, so no target's variables reach its prerequisites.
func (e *Expander) WithoutPrivate() *Expander {
	return &Expander{frames: e.frames, hidePrivate: true, funcs: e.funcs, env: e.env}
}

// Store returns the innermost overlay frame (or the global store if there
// is only one frame), for callers that need to install variables into the
// "current" scope (e.g. the parser evaluating an assignment).
func (e *Expander) Store() *VariableStore {
	return e.frames[0]
}

// Global returns the outermost (root) store.
func (e *Expander) Global() *VariableStore {
	return e.frames[len(e.frames)-1]
}

// Lookup resolves name against the frame chain, innermost first.
func (e *Expander) Lookup(name string) (*Variable, bool) {
	for i, f := range e.frames {
		v, ok := f.Lookup(name)
		if !ok {
			continue
		}
		if e.hidePrivate && v.Private && i < len(e.frames)-1 {
			continue
		}
		return v, true
	}
	return nil, false
}

// Get returns a variable's current value (expanding it if recursive),
// or "" plus a warning (if WarnUndef is set) when undefined.
func (e *Expander) Get(name string) string {
	v, ok := e.Lookup(name)
	if !ok {
		if e.env != nil && e.env.WarnUndef {
			e.env.warn("undefined variable '" + name + "'")
		}
		return ""
	}
	if v.Recurse {
		return e.expand(v.read(), 0)
	}
	return v.read()
}

// expansionPanic carries an `error`-builtin failure up to the nearest
// public Expand call, where it is recovered, logged, and turned into an
// empty result (§7: expansion errors are recovered locally so a bad call
// in a diagnostic context does not tear down the whole build).
type expansionPanic struct{ err error }

// Expand is the public entry point: expand(input) -> string (§4.A).
func (e *Expander) Expand(input string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			ep, ok := r.(expansionPanic)
			if !ok {
				panic(r)
			}
			if e.env != nil {
				e.env.warn(ep.err.Error())
			}
			result = ""
		}
	}()
	return e.expand(input, 0)
}

func (e *Expander) expand(input string, depth int) string {
	if depth >= maxExpansionDepth {
		e.env.warn("variable expansion too deeply recursive")
		return input
	}

	var b strings.Builder
	i := 0
	for i < len(input) {
		c := input[i]
		if c != '$' {
			b.WriteByte(c)
			i++
			continue
		}
		i++
		if i >= len(input) {
			b.WriteByte('$')
			break
		}
		switch input[i] {
		case '$':
			b.WriteByte('$')
			i++
		case '(', '{':
			open := input[i]
			close := byte(')')
			if open == '{' {
				close = '}'
			}
			end := findMatchingBracket(input, i, open, close)
			if end < 0 {
				b.WriteByte('$')
				b.WriteByte(open)
				i++
				continue
			}
			body := input[i+1 : end]
			b.WriteString(e.evalBody(body, depth))
			i = end + 1
		default:
			// Single-character variable reference: $x
			name := input[i : i+1]
			b.WriteString(e.Get(name))
			i++
		}
	}
	return b.String()
}

// evalBody evaluates the contents of a `$(...)`/`${...}` body: a
// substitution reference, a function call, or a plain variable name, in
// that order (§4.A).
func (e *Expander) evalBody(body string, depth int) string {
	// 1. Substitution reference: name:pattern=replacement
	if name, pattern, replacement, ok := splitSubstRef(body); ok {
		val := e.Get(name)
		if !strings.Contains(pattern, "%") {
			pattern = "%" + pattern
			replacement = "%" + replacement
		}
		return joinWords(patsubstWords(pattern, replacement, splitWords(val)))
	}

	// 2. Function call: first whitespace-separated token is a function name.
	fname, rest, hasArgs := cutFuncHead(body)
	if hasArgs || isKnownFunc(e.funcs, fname) {
		if fn, ok := e.funcs.lookup(fname); ok {
			args := splitTopLevelCommas(rest)
			if !fn.Raw {
				for i, a := range args {
					args[i] = e.expand(a, depth+1)
				}
			}
			return fn.Call(e, args, depth)
		}
	}

	// 3. Plain variable reference: expand the body as a name, then look up.
	name := e.expand(body, depth+1)
	v, ok := e.Lookup(name)
	if !ok {
		if e.env != nil && e.env.WarnUndef {
			e.env.warn("undefined variable '" + name + "'")
		}
		return ""
	}
	if v.Recurse {
		return e.expand(v.read(), depth+1)
	}
	return v.read()
}

// splitSubstRef recognizes "name:pattern=replacement", where name must
// contain no space or tab, so a function call (whose name is followed by
// whitespace) is not mistaken for a substitution reference.
func splitSubstRef(body string) (name, pattern, replacement string, ok bool) {
	colon := strings.IndexByte(body, ':')
	if colon < 0 {
		return "", "", "", false
	}
	eq := strings.IndexByte(body[colon+1:], '=')
	if eq < 0 {
		return "", "", "", false
	}
	eq += colon + 1
	name = body[:colon]
	if strings.ContainsAny(name, " \t") {
		return "", "", "", false
	}
	pattern = body[colon+1 : eq]
	replacement = body[eq+1:]
	return name, pattern, replacement, true
}

// cutFuncHead splits body into its first whitespace-separated token and
// the remainder, reporting whether a remainder (i.e. plausible argument
// list) follows.
func cutFuncHead(body string) (head, rest string, hasRest bool) {
	i := 0
	for i < len(body) && body[i] != ' ' && body[i] != '\t' {
		i++
	}
	if i == len(body) {
		return body, "", false
	}
	head = body[:i]
	for i < len(body) && (body[i] == ' ' || body[i] == '\t') {
		i++
	}
	return head, body[i:], true
}

func isKnownFunc(lib *FunctionLibrary, name string) bool {
	_, ok := lib.lookup(name)
	return ok
}

// findMatchingBracket finds the index of the close bracket matching the
// open bracket at input[start], honoring nested $(...)/${...} and a
// backslash escape.
func findMatchingBracket(input string, start int, open, close byte) int {
	depth := 1
	i := start + 1
	for i < len(input) {
		switch input[i] {
		case '\\':
			i += 2
			continue
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i
			}
		}
		i++
	}
	return -1
}

// splitTopLevelCommas splits s on commas, honoring $(...)/${...} balance,
// for function-argument lists.
func splitTopLevelCommas(s string) []string {
	var args []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '{':
			depth++
		case ')', '}':
			depth--
		case '$':
			if i+1 < len(s) && (s[i+1] == '(' || s[i+1] == '{') {
				// Let the depth++ above handle it on the next iteration by
				// not special-casing; the bracket chars themselves are
				// counted regardless of the preceding '$'.
			}
		case ',':
			if depth == 0 {
				args = append(args, s[start:i])
				start = i + 1
			}
		}
	}
	args = append(args, s[start:])
	return args
}
