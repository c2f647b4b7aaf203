// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

const makeVersion = "4.0-gomake"

// Engine is the top-level embeddable build engine: it owns the global
// VariableStore, the accumulated RuleTable, and the injected capabilities
// (§2, §4.H), and exposes Run as the single public entry point (§6).
type Engine struct {
	global *VariableStore
	funcs  *FunctionLibrary
	env    *Env
	table  *RuleTable

	fs            FileSystem
	shell         Shell
	jobServer     JobServer
	pathResolver  *vpathResolver
	includeLoader IncludeLoader

	curdir       string
	makefileList []string
	recipePrefix byte
	parser       *Parser // most recent Parser; a file is parsed whole before it is evaluated, so a .RECIPEPREFIX assignment affects only makefile text loaded after that file (includes, later LoadString calls), not the rest of its own file

	deferredIncludes   []deferredInclude
	unresolvedIncludes []string
}

type deferredInclude struct {
	path string // resolved, for re-reading via the FileSystem/IncludeLoader
	goal string // as typed in the include directive, for feeding to the Runner as a goal
	file string
	line int
}

// EngineOptions configures a new Engine. Zero-value capability fields are
// replaced with the default pack-grounded implementations.
type EngineOptions struct {
	FS            FileSystem
	Shell         Shell
	IncludeLoader IncludeLoader
	CurDir        string
	Jobs          int
	WarnUndef     bool
	Environ       []string // defaults to os.Environ()
	OnWarn        func(string)
}

// NewEngine constructs an Engine with builtin variables installed (§6).
func NewEngine(opts EngineOptions) *Engine {
	if opts.FS == nil {
		opts.FS = NewOSFileSystem()
	}
	if opts.Shell == nil {
		opts.Shell = NewInterpShell()
	}
	if opts.CurDir == "" {
		opts.CurDir, _ = os.Getwd()
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ()
	}
	if opts.Jobs <= 0 {
		opts.Jobs = 1
	}

	global := NewVariableStoreFromEnviron(opts.Environ)
	funcs := NewFunctionLibrary()
	table := NewRuleTable()
	pathResolver := NewPathResolver(opts.CurDir)

	e := &Engine{
		global:        global,
		funcs:         funcs,
		table:         table,
		fs:            opts.FS,
		shell:         opts.Shell,
		jobServer:     NewJobServer(opts.Jobs),
		pathResolver:  pathResolver,
		curdir:        opts.CurDir,
		recipePrefix:  defaultRecipePrefix,
	}
	if opts.IncludeLoader != nil {
		e.includeLoader = opts.IncludeLoader
	} else {
		e.includeLoader = NewIncludeLoader(opts.FS)
	}

	e.env = &Env{
		FS:        opts.FS,
		Shell:     opts.Shell,
		WarnUndef: opts.WarnUndef,
		OnWarn:    opts.OnWarn,
		OnEval:    e.evalText,
		Wildcard:  func(pattern string) ([]string, error) { return osWildcard(e.curdir, strings.Fields(pattern)) },
		CurDir:    opts.CurDir,
	}

	e.installBuiltins()
	return e
}

func (e *Engine) expander() *Expander {
	return NewExpander(e.global, e.funcs, e.env)
}

func (e *Engine) runShell(cmd string) (string, error) {
	var out strings.Builder
	res, err := e.shellRun(cmd, &out, &out)
	if err != nil {
		return "", err
	}
	e.env.setShellExit(strconv.Itoa(res.ExitCode))
	return out.String(), nil
}

func (e *Engine) installBuiltins() {
	e.global.SetComputed("CURDIR", func() string { return e.curdir }, nil)
	e.global.SetComputed("MAKE_VERSION", func() string { return makeVersion }, nil)
	e.global.SetComputed("MAKE_HOST", func() string { return runtime.GOOS + "-" + runtime.GOARCH }, nil)
	e.global.SetComputed(".FEATURES", func() string {
		return "target-specific order-only second-expansion else-if shortest-stem undefine oneshell"
	}, nil)
	e.global.SetComputed(".INCLUDE_DIRS", func() string { return strings.Join(e.pathResolver.vpath, " ") }, nil)
	e.global.SetComputed(".VARIABLES", func() string { return strings.Join(e.global.Names(), " ") }, nil)
	e.global.SetComputed(".SUFFIXES", func() string { return strings.Join(e.table.suffixes, " ") }, nil)
	e.global.SetComputed(".DEFAULT_GOAL", func() string { return e.table.DefaultGoal() }, func(v string) { e.table.defaultGoal = v })
	e.global.SetComputed("MAKEFILE_LIST", func() string { return strings.Join(e.makefileList, " ") }, nil)
	e.global.SetComputed(".SHELLEXIT", func() string { e.env.mu.Lock(); defer e.env.mu.Unlock(); return e.env.shellExit }, nil)
	e.global.SetComputed(".RECIPEPREFIX", func() string {
		if e.recipePrefix == defaultRecipePrefix {
			return "\t"
		}
		return string(e.recipePrefix)
	}, func(v string) {
		if v == "" {
			e.recipePrefix = defaultRecipePrefix
		} else {
			e.recipePrefix = v[0]
		}
		if e.parser != nil {
			e.parser.SetRecipePrefix(e.recipePrefix)
		}
	})
	if _, ok := e.global.Lookup("SHELL"); !ok {
		e.global.SetRecursive("SHELL", "/bin/sh")
	}
	e.global.SetComputed("VPATH", func() string { return strings.Join(e.pathResolver.vpath, " ") },
		func(v string) { e.pathResolver.SetVPath(v) })
}

// SetOverride installs a command-line variable assignment (`VAR=value` on
// the gomake command line), which takes precedence over plain file
// assignments but still yields to `override` directives (§3's origin
// lattice, OriginCommandLine).
func (e *Engine) SetOverride(name, value string) error {
	err := ApplyAssignment(e.global, func(s string) string { return e.expander().Expand(s) }, e.runShell,
		name, OpRecursive, value, OriginCommandLine)
	if err != nil {
		return wrapError(ErrExpansion, "<command-line>", 0, err, "assigning %q", name)
	}
	return nil
}

// LoadFile parses and evaluates a makefile from disk, folding its
// statements into the current global state.
func (e *Engine) LoadFile(path string) error {
	contents, err := e.fs.ReadFile(path)
	if err != nil {
		return wrapError(ErrInclude, path, 0, err, "reading makefile")
	}
	return e.LoadString(path, contents)
}

// LoadString parses and evaluates makefile text attributed to file.
func (e *Engine) LoadString(file, contents string) error {
	p := &Parser{file: file, recipePrefix: e.recipePrefix}
	e.parser = p
	if err := p.readLines(strings.NewReader(contents)); err != nil {
		return wrapError(ErrParse, file, 0, err, "reading makefile")
	}
	stmts, err := p.parseBlock(nil)
	if err != nil {
		return err
	}
	e.makefileList = append(e.makefileList, file)
	return e.evaluate(stmts)
}

func (e *Engine) evaluate(stmts []Stmt) error {
	for _, stmt := range stmts {
		if err := e.evalStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) evalStmt(stmt Stmt) error {
	switch n := stmt.(type) {
	case *Assignment:
		return e.evalAssignment(n, OriginFile)
	case *RuleEntry:
		return e.table.AddRule(n, e.expander())
	case *TargetScopeAssign:
		return e.table.AddScope(n, e.expander(), e.runShell)
	case *Conditional:
		return e.evalConditional(n)
	case *IncludeStmt:
		return e.evalInclude(n)
	case *ExportStmt:
		return e.evalExport(n)
	case *UndefineStmt:
		e.global.Undefine(e.expander().Expand(n.Name))
		return nil
	case *VpathStmt:
		return e.evalVpath(n)
	}
	return nil
}

func (e *Engine) evalAssignment(a *Assignment, origin Origin) error {
	name := e.expander().Expand(a.Name)
	if a.Override {
		origin = OriginOverride
	}
	err := ApplyAssignment(e.global, func(s string) string { return e.expander().Expand(s) }, e.runShell, name, a.Op, a.Value, origin)
	if err != nil {
		return wrapError(ErrExpansion, a.File, a.Line, err, "assigning %q", name)
	}
	if a.Private {
		if v, ok := e.global.Lookup(name); ok {
			v.Private = true
		}
	}
	return nil
}

func (e *Engine) evalConditional(c *Conditional) error {
	exp := e.expander()
	for _, branch := range c.Branches {
		if branch.Kind == "else" {
			return e.evaluate(branch.Body)
		}
		if e.branchTrue(exp, branch) {
			return e.evaluate(branch.Body)
		}
	}
	return nil
}

func (e *Engine) branchTrue(exp *Expander, branch CondBranch) bool {
	switch branch.Kind {
	case "ifdef":
		return exp.Get(strings.TrimSpace(branch.Args[0])) != ""
	case "ifndef":
		return exp.Get(strings.TrimSpace(branch.Args[0])) == ""
	case "ifeq":
		return exp.Expand(branch.Args[0]) == exp.Expand(branch.Args[1])
	case "ifneq":
		return exp.Expand(branch.Args[0]) != exp.Expand(branch.Args[1])
	}
	return false
}

func (e *Engine) evalInclude(inc *IncludeStmt) error {
	exp := e.expander()
	var resolved []string
	goalFor := make(map[string]string) // resolved path -> as-typed name, for goal-feeding
	for _, path := range strings.Fields(exp.Expand(inc.Path)) {
		p := path
		if !filepath.IsAbs(p) {
			p = filepath.Join(e.curdir, p)
		}
		resolved = append(resolved, p)
		goalFor[p] = path
	}
	if len(resolved) == 0 {
		return nil
	}

	var loadErr error
	failed := e.includeLoader.Load(resolved, func(path, contents string) error {
		if err := e.LoadString(path, contents); err != nil {
			loadErr = err
			return err
		}
		return nil
	})
	if loadErr != nil {
		return loadErr
	}
	if len(failed) == 0 {
		return nil
	}
	if !inc.Optional {
		return newError(ErrInclude, inc.File, inc.Line, "including %q: not found", failed[0])
	}
	for _, path := range failed {
		e.deferredIncludes = append(e.deferredIncludes, deferredInclude{path: path, goal: goalFor[path], file: inc.File, line: inc.Line})
	}
	return nil
}

func (e *Engine) evalExport(ex *ExportStmt) error {
	if ex.Assignment != nil {
		if err := e.evalAssignment(ex.Assignment, OriginFile); err != nil {
			return err
		}
		e.global.Export(e.expander().Expand(ex.Assignment.Name))
		return nil
	}
	if ex.All {
		e.global.SetExportAll(!ex.Unexport)
		return nil
	}
	for _, name := range ex.Names {
		name = e.expander().Expand(name)
		if ex.Unexport {
			e.global.Unexport(name)
		} else {
			e.global.Export(name)
		}
	}
	return nil
}

func (e *Engine) evalVpath(v *VpathStmt) error {
	exp := e.expander()
	switch {
	case v.Clear:
		e.pathResolver.ClearVpath()
	case v.Delete:
		e.pathResolver.DeleteVpath(exp.Expand(v.Pattern))
	default:
		e.pathResolver.AddVpath(exp.Expand(v.Pattern), exp.Expand(v.Dirs))
	}
	return nil
}

// evalText feeds text back into the loader, implementing the `eval`
// builtin (§4.C): parse it as if it were makefile text appended at the
// current point, then evaluate the resulting statements immediately.
func (e *Engine) evalText(text string) error {
	p := &Parser{file: "<eval>", recipePrefix: e.recipePrefix}
	if err := p.readLines(strings.NewReader(text)); err != nil {
		return err
	}
	stmts, err := p.parseBlock(nil)
	if err != nil {
		return err
	}
	return e.evaluate(stmts)
}

// Run builds goals under opts, returning true iff any recipe was (or
// would be) run (§6 `run(goals, options) -> bool`).
func (e *Engine) Run(goals []string, opts RunOptions) (bool, error) {
	if err := e.resolveDeferredIncludes(); err != nil {
		return false, err
	}
	if len(goals) == 0 {
		if dg := e.table.DefaultGoal(); dg != "" {
			goals = []string{dg}
		} else {
			return false, nil
		}
	}
	if len(e.unresolvedIncludes) > 0 {
		goals = append(append([]string(nil), goals...), e.unresolvedIncludes...)
		e.unresolvedIncludes = nil
	}

	resolver := NewResolver(e.table, e.fs)
	runner := newRunner(e, resolver, opts)
	return runner.runGoals(goals)
}

// resolveDeferredIncludes retries every `-include`/`sinclude` path that
// failed to read at parse time (§7.6). A path still missing after this
// retry is handed to Run as an extra goal, so the Resolver/Runner can
// either build it from a matching rule or fail the build on it.
func (e *Engine) resolveDeferredIncludes() error {
	if len(e.deferredIncludes) == 0 {
		return nil
	}
	pending := e.deferredIncludes
	e.deferredIncludes = nil

	paths := make([]string, len(pending))
	goalFor := make(map[string]string, len(pending))
	for i, d := range pending {
		paths[i] = d.path
		goalFor[d.path] = d.goal
	}

	var loadErr error
	failed := e.includeLoader.Load(paths, func(path, contents string) error {
		if err := e.LoadString(path, contents); err != nil {
			loadErr = err
			return err
		}
		return nil
	})
	if loadErr != nil {
		return loadErr
	}
	for _, path := range failed {
		e.unresolvedIncludes = append(e.unresolvedIncludes, goalFor[path])
	}
	return nil
}

func (e *Engine) shellRun(cmd string, stdout, stderr *strings.Builder) (ShellResult, error) {
	return e.shell.Run(context.Background(), ShellRequest{
		CommandLine: cmd,
		Cwd:         e.curdir,
		Env:         e.global.Environ(),
		Shell:       e.global.Get("SHELL"),
		Stdout:      func(chunk []byte) { stdout.Write(chunk) },
		Stderr:      func(chunk []byte) { stderr.Write(chunk) },
	})
}
