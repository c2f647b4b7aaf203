// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FuncImpl is a built-in or user-defined function body. args have already
// been pre-expanded unless the function is registered Raw, per §4.A.
type FuncImpl func(e *Expander, args []string, depth int) string

// FuncDef is one FunctionLibrary entry: the callable plus whether it
// receives raw (unexpanded) arguments.
type FuncDef struct {
	Name string
	Raw  bool
	Call FuncImpl
}

// FunctionLibrary is the dispatch table described in §4.C, grouped by
// purpose exactly as the section lays them out. It is immutable after
// construction and safe for concurrent use by multiple Expanders.
type FunctionLibrary struct {
	defs map[string]*FuncDef
}

func (l *FunctionLibrary) lookup(name string) (*FuncDef, bool) {
	d, ok := l.defs[name]
	return d, ok
}

func (l *FunctionLibrary) register(name string, raw bool, fn FuncImpl) {
	l.defs[name] = &FuncDef{Name: name, Raw: raw, Call: fn}
}

// NewFunctionLibrary builds the standard library of built-in functions,
// dispatched by name against pre-split, top-level-comma-separated
// argument lists (split once in Expander.evalBody).
func NewFunctionLibrary() *FunctionLibrary {
	l := &FunctionLibrary{defs: make(map[string]*FuncDef)}

	// --- String/list ---
	l.register("subst", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 3 {
			return ""
		}
		return strings.ReplaceAll(a[2], a[0], a[1])
	})
	l.register("patsubst", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 3 {
			return ""
		}
		return joinWords(patsubstWords(a[0], a[1], splitWords(a[2])))
	})
	l.register("strip", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 1 {
			return ""
		}
		return joinWords(splitWords(a[0]))
	})
	l.register("findstring", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 2 {
			return ""
		}
		if strings.Contains(a[1], a[0]) {
			return a[0]
		}
		return ""
	})
	l.register("filter", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 2 {
			return ""
		}
		patterns := splitWords(a[0])
		var out []string
		for _, w := range splitWords(a[1]) {
			for _, p := range patterns {
				if patsubstMatch(p, w) {
					out = append(out, w)
					break
				}
			}
		}
		return joinWords(out)
	})
	l.register("filter-out", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 2 {
			return ""
		}
		patterns := splitWords(a[0])
		var out []string
		for _, w := range splitWords(a[1]) {
			matched := false
			for _, p := range patterns {
				if patsubstMatch(p, w) {
					matched = true
					break
				}
			}
			if !matched {
				out = append(out, w)
			}
		}
		return joinWords(out)
	})
	l.register("sort", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 1 {
			return ""
		}
		words := splitWords(a[0])
		sort.Strings(words)
		return joinWords(dedupeStrings(words))
	})
	l.register("word", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 2 {
			return ""
		}
		n, err := strconv.Atoi(strings.TrimSpace(a[0]))
		if err != nil || n < 1 {
			panic(expansionPanic{fmt.Errorf("word: non-numeric or zero first argument %q", a[0])})
		}
		words := splitWords(a[1])
		if n > len(words) {
			return ""
		}
		return words[n-1]
	})
	l.register("words", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 1 {
			return ""
		}
		return strconv.Itoa(len(splitWords(a[0])))
	})
	l.register("wordlist", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 3 {
			return ""
		}
		start, err1 := strconv.Atoi(strings.TrimSpace(a[0]))
		end, err2 := strconv.Atoi(strings.TrimSpace(a[1]))
		if err1 != nil || err2 != nil || start < 1 {
			panic(expansionPanic{fmt.Errorf("wordlist: invalid bounds %q,%q", a[0], a[1])})
		}
		words := splitWords(a[2])
		if start > len(words) {
			return ""
		}
		if end > len(words) {
			end = len(words)
		}
		if end < start {
			return ""
		}
		return joinWords(words[start-1 : end])
	})
	l.register("firstword", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 1 {
			return ""
		}
		words := splitWords(a[0])
		if len(words) == 0 {
			return ""
		}
		return words[0]
	})
	l.register("lastword", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 1 {
			return ""
		}
		words := splitWords(a[0])
		if len(words) == 0 {
			return ""
		}
		return words[len(words)-1]
	})
	l.register("join", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 2 {
			return ""
		}
		left, right := splitWords(a[0]), splitWords(a[1])
		n := len(left)
		if len(right) > n {
			n = len(right)
		}
		out := make([]string, 0, n)
		for i := 0; i < n; i++ {
			var lw, rw string
			if i < len(left) {
				lw = left[i]
			}
			if i < len(right) {
				rw = right[i]
			}
			out = append(out, lw+rw)
		}
		return joinWords(out)
	})
	l.register("addsuffix", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 2 {
			return ""
		}
		words := splitWords(a[1])
		out := make([]string, len(words))
		for i, w := range words {
			out[i] = w + a[0]
		}
		return joinWords(out)
	})
	l.register("addprefix", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 2 {
			return ""
		}
		words := splitWords(a[1])
		out := make([]string, len(words))
		for i, w := range words {
			out[i] = a[0] + w
		}
		return joinWords(out)
	})

	// --- Path ---
	l.register("dir", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 1 {
			return ""
		}
		words := splitWords(a[0])
		out := make([]string, len(words))
		for i, w := range words {
			out[i] = dirWithSlash(w)
		}
		return joinWords(out)
	})
	l.register("notdir", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 1 {
			return ""
		}
		words := splitWords(a[0])
		out := make([]string, len(words))
		for i, w := range words {
			out[i] = filepath.Base(w)
		}
		return joinWords(out)
	})
	l.register("suffix", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 1 {
			return ""
		}
		var out []string
		for _, w := range splitWords(a[0]) {
			if ext := filepath.Ext(w); ext != "" {
				out = append(out, ext)
			}
		}
		return joinWords(out)
	})
	l.register("basename", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 1 {
			return ""
		}
		words := splitWords(a[0])
		out := make([]string, len(words))
		for i, w := range words {
			ext := filepath.Ext(w)
			out[i] = w[:len(w)-len(ext)]
		}
		return joinWords(out)
	})
	l.register("realpath", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 1 || e.env == nil || e.env.FS == nil {
			return ""
		}
		var out []string
		for _, w := range splitWords(a[0]) {
			if rp, err := e.env.FS.Realpath(w); err == nil {
				out = append(out, rp)
			}
		}
		return joinWords(out)
	})
	l.register("abspath", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 1 {
			return ""
		}
		curdir := ""
		if e.env != nil {
			curdir = e.env.CurDir
		}
		var out []string
		for _, w := range splitWords(a[0]) {
			if !filepath.IsAbs(w) && curdir != "" {
				w = filepath.Join(curdir, w)
			}
			out = append(out, filepath.Clean(w))
		}
		return joinWords(out)
	})
	l.register("wildcard", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 1 || e.env == nil || e.env.Wildcard == nil {
			return ""
		}
		var out []string
		for _, pat := range splitWords(a[0]) {
			matches, err := e.env.Wildcard(pat)
			if err != nil {
				continue
			}
			out = append(out, matches...)
		}
		return joinWords(out)
	})

	// --- Conditional/logic ---
	l.register("if", true, func(e *Expander, a []string, depth int) string {
		if len(a) < 2 {
			panic(expansionPanic{fmt.Errorf("if: expected 2 or 3 arguments, got %d", len(a))})
		}
		cond := strings.TrimSpace(e.expand(a[0], depth+1))
		if cond != "" {
			return e.expand(a[1], depth+1)
		}
		if len(a) >= 3 {
			return e.expand(a[2], depth+1)
		}
		return ""
	})
	l.register("or", true, func(e *Expander, a []string, depth int) string {
		var last string
		for _, arg := range a {
			last = e.expand(arg, depth+1)
			if strings.TrimSpace(last) != "" {
				return last
			}
		}
		return last
	})
	l.register("and", true, func(e *Expander, a []string, depth int) string {
		var last string
		for _, arg := range a {
			last = e.expand(arg, depth+1)
			if strings.TrimSpace(last) == "" {
				return ""
			}
		}
		return last
	})
	l.register("intcmp", false, func(e *Expander, a []string, _ int) string {
		if len(a) < 2 {
			panic(expansionPanic{fmt.Errorf("intcmp: expected at least 2 arguments")})
		}
		lhs, err1 := strconv.Atoi(strings.TrimSpace(a[0]))
		rhs, err2 := strconv.Atoi(strings.TrimSpace(a[1]))
		if err1 != nil || err2 != nil {
			panic(expansionPanic{fmt.Errorf("intcmp: non-numeric argument")})
		}
		switch {
		case lhs < rhs:
			if len(a) >= 3 {
				return a[2]
			}
		case lhs == rhs:
			if len(a) >= 4 {
				return a[3]
			}
		default:
			if len(a) >= 5 {
				return a[4]
			}
		}
		return ""
	})

	// --- Meta ---
	l.register("value", true, func(e *Expander, a []string, depth int) string {
		if len(a) != 1 {
			return ""
		}
		name := e.expand(a[0], depth+1)
		v, ok := e.Lookup(name)
		if !ok {
			return ""
		}
		return v.read()
	})
	l.register("origin", true, func(e *Expander, a []string, depth int) string {
		if len(a) != 1 {
			return "undefined"
		}
		name := e.expand(a[0], depth+1)
		v, ok := e.Lookup(name)
		if !ok {
			return "undefined"
		}
		return v.Origin.String()
	})
	l.register("flavor", true, func(e *Expander, a []string, depth int) string {
		if len(a) != 1 {
			return "undefined"
		}
		name := e.expand(a[0], depth+1)
		v, ok := e.Lookup(name)
		if !ok {
			return "undefined"
		}
		return v.Flavor()
	})

	// --- Control (raw) ---
	l.register("foreach", true, func(e *Expander, a []string, depth int) string {
		if len(a) != 3 {
			panic(expansionPanic{fmt.Errorf("foreach: expected 3 arguments, got %d", len(a))})
		}
		name := strings.TrimSpace(e.expand(a[0], depth+1))
		list := e.expand(a[1], depth+1)
		var out []string
		for _, word := range splitWords(list) {
			overlay := NewVariableStore()
			overlay.SetRecursive(name, word)
			child := e.With(overlay)
			out = append(out, child.expand(a[2], depth+1))
		}
		return joinWords(out)
	})
	l.register("let", true, func(e *Expander, a []string, depth int) string {
		if len(a) != 3 {
			panic(expansionPanic{fmt.Errorf("let: expected 3 arguments, got %d", len(a))})
		}
		names := splitWords(e.expand(a[0], depth+1))
		values := splitWords(e.expand(a[1], depth+1))
		overlay := NewVariableStore()
		for i, n := range names {
			if i == len(names)-1 && len(values) > i {
				overlay.SetRecursive(n, joinWords(values[i:]))
			} else if i < len(values) {
				overlay.SetRecursive(n, values[i])
			} else {
				overlay.SetRecursive(n, "")
			}
		}
		return e.With(overlay).expand(a[2], depth+1)
	})
	l.register("call", true, func(e *Expander, a []string, depth int) string {
		if len(a) < 1 {
			return ""
		}
		fname := strings.TrimSpace(e.expand(a[0], depth+1))
		v, ok := e.Lookup(fname)
		if !ok {
			return ""
		}
		overlay := NewVariableStore()
		overlay.SetRecursive("0", fname)
		for i := 1; i < len(a); i++ {
			overlay.SetRecursive(strconv.Itoa(i), e.expand(a[i], depth+1))
		}
		child := e.With(overlay)
		if v.Recurse {
			return child.expand(v.read(), depth+1)
		}
		return v.read()
	})

	// --- I/O ---
	l.register("error", false, func(e *Expander, a []string, _ int) string {
		panic(expansionPanic{fmt.Errorf("%s", strings.Join(a, ""))})
	})
	l.register("warning", false, func(e *Expander, a []string, _ int) string {
		if e.env != nil {
			e.env.warn(strings.Join(a, ""))
		}
		return ""
	})
	l.register("info", false, func(e *Expander, a []string, _ int) string {
		if e.env != nil {
			e.env.warn(strings.Join(a, ""))
		}
		return ""
	})
	l.register("file", false, func(e *Expander, a []string, _ int) string {
		if len(a) < 1 || e.env == nil || e.env.FS == nil {
			return ""
		}
		op, filename, ok := strings.Cut(strings.TrimSpace(a[0]), " ")
		if !ok {
			filename = op
			op = ">"
		}
		filename = strings.TrimSpace(filename)
		switch op {
		case "<":
			data, err := e.env.FS.ReadFile(filename)
			if err != nil {
				return ""
			}
			return data
		case ">", ">>":
			text := ""
			if len(a) > 1 {
				text = a[1]
			}
			_ = e.env.FS.WriteFile(filename, text, op == ">>")
			return ""
		}
		return ""
	})

	// --- Shell bridge ---
	l.register("shell", false, func(e *Expander, a []string, _ int) string {
		if len(a) != 1 || e.env == nil || e.env.Shell == nil {
			return ""
		}
		var out strings.Builder
		res, err := e.env.Shell.Run(context.Background(), ShellRequest{
			CommandLine: a[0],
			Cwd:         e.env.CurDir,
			Env:         e.Global().Environ(),
			Stdout:      func(chunk []byte) { out.Write(chunk) },
			Stderr:      func(chunk []byte) {},
		})
		if err != nil {
			e.env.setShellExit("-1")
			return ""
		}
		e.env.setShellExit(strconv.Itoa(res.ExitCode))
		trimmed := strings.TrimRight(out.String(), "\n")
		return strings.ReplaceAll(trimmed, "\n", " ")
	})
	l.register("eval", true, func(e *Expander, a []string, depth int) string {
		if len(a) != 1 || e.env == nil || e.env.OnEval == nil {
			return ""
		}
		text := e.expand(a[0], depth+1)
		if err := e.env.OnEval(text); err != nil {
			panic(expansionPanic{err})
		}
		return ""
	})

	return l
}

func dirWithSlash(path string) string {
	d := filepath.Dir(path)
	if d == "." {
		return "./"
	}
	if strings.HasSuffix(d, "/") {
		return d
	}
	return d + "/"
}
