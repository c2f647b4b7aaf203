// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// runner drives the dependency graph to completion for one Engine.Run call
// (§4.G). It owns per-run memoization and timestamp/path caches; nothing
// here survives past runGoals returning.
type runner struct {
	e        *Engine
	resolver *Resolver
	opts     RunOptions

	mu      sync.Mutex
	futures map[string]*targetFuture

	tsMu    sync.Mutex
	tsCache map[string]int64

	pathMu    sync.Mutex
	pathCache map[string]string

	errMu sync.Mutex
	err   error

	ctx    context.Context
	cancel context.CancelFunc
}

type targetFuture struct {
	done  chan struct{}
	built bool
	err   error
}

func newRunner(e *Engine, resolver *Resolver, opts RunOptions) *runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &runner{
		e:         e,
		resolver:  resolver,
		opts:      opts,
		futures:   make(map[string]*targetFuture),
		tsCache:   make(map[string]int64),
		pathCache: make(map[string]string),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// runGoals is the Runner's public entry point: build every goal, in
// parallel unless `.NOTPARALLEL` applies, and report whether any recipe
// ran (or, under dry-run/question mode, would have run).
func (r *runner) runGoals(goals []string) (bool, error) {
	defer r.cancel()

	g, ctx := errgroup.WithContext(r.ctx)
	results := make([]bool, len(goals))
	sequential := r.e.table.Special(".NOTPARALLEL").sequentializes(goals)
	for i, goal := range goals {
		i, goal := i, goal
		if sequential {
			built, err := r.buildTarget(ctx, goal)
			results[i] = built
			if err != nil {
				if !r.opts.KeepGoing {
					return anyTrue(results), err
				}
				r.recordErr(err)
			}
			continue
		}
		g.Go(func() error {
			built, err := r.buildTarget(ctx, goal)
			results[i] = built
			if err != nil && !r.opts.KeepGoing {
				return err
			}
			if err != nil {
				r.recordErr(err)
			}
			return nil
		})
	}
	if !sequential {
		if err := g.Wait(); err != nil {
			return anyTrue(results), err
		}
	}

	r.errMu.Lock()
	defer r.errMu.Unlock()
	return anyTrue(results), r.err
}

func anyTrue(bs []bool) bool {
	for _, b := range bs {
		if b {
			return true
		}
	}
	return false
}

func (r *runner) recordErr(err error) {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

// buildTarget memoizes target: the first caller to reach it installs a
// future and actually builds; every later caller (including other group
// members) blocks on the same future and replays its result (§4.G step 1,
// §8 "at-most-once").
func (r *runner) buildTarget(ctx context.Context, target string) (bool, error) {
	r.mu.Lock()
	if f, ok := r.futures[target]; ok {
		r.mu.Unlock()
		select {
		case <-f.done:
			return f.built, f.err
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	f := &targetFuture{done: make(chan struct{})}
	r.futures[target] = f
	for _, rule := range r.e.table.exactRules[target] {
		if !rule.Grouped {
			continue
		}
		for _, t := range rule.Targets {
			if _, ok := r.futures[t]; !ok {
				r.futures[t] = f
			}
		}
	}
	r.mu.Unlock()

	built, err := r.doBuild(ctx, target, f)
	f.built, f.err = built, err
	close(f.done)
	return built, err
}

func (r *runner) doBuild(ctx context.Context, target string, f *targetFuture) (bool, error) {
	rules, err := r.resolver.GetRules(target)
	if err != nil {
		return false, err
	}

	// Grouped (`&:`) rules share one recipe across every listed target;
	// install the same future under every sibling so a later request for
	// any of them replays this result instead of rebuilding (§4.G step 1).
	for _, rule := range rules {
		if !rule.Grouped {
			continue
		}
		r.mu.Lock()
		for _, t := range rule.Targets {
			if t == target {
				continue
			}
			if _, ok := r.futures[t]; !ok {
				r.futures[t] = f
			}
		}
		r.mu.Unlock()
	}

	built := false
	for _, rule := range rules {
		ok, err := r.buildRule(ctx, target, rule)
		if err != nil {
			if r.opts.KeepGoing {
				r.recordErr(err)
				continue
			}
			r.cancel()
			return built, err
		}
		built = built || ok
	}
	return built, nil
}

// buildRule resolves one independent rule's prerequisites, decides
// whether a rebuild is needed, and runs its recipe if so (§4.G steps
// 2-9). Each double-colon rule for the same target reaches here once,
// independently (§8 "double-colon independence").
func (r *runner) buildRule(ctx context.Context, target string, rule *Rule) (bool, error) {
	scopes := r.e.table.ScopeFor(target)
	exp := r.e.expander()
	for _, s := range scopes {
		exp = exp.With(s.Store)
	}

	prereqs := append([]string(nil), rule.Prerequisites...)
	orderOnly := append([]string(nil), rule.OrderOnly...)
	if extra := strings.Fields(exp.Get(".EXTRA_PREREQS")); len(extra) > 0 {
		prereqs = append(prereqs, extra...)
	}

	if r.secondExpansionApplies(target) {
		stemExp := exp.With(stemOverlay(target, rule.Stem))
		prereqs = reExpandWords(stemExp, prereqs)
		orderOnly = reExpandWords(stemExp, orderOnly)
	}

	resolvedPrereqs, segments := r.splitWaitSegments(prereqs)
	resolvedOrderOnly := r.resolveAll(orderOnly)

	if err := r.buildSegments(ctx, segments); err != nil {
		return false, err
	}
	if len(orderOnly) > 0 {
		if _, err := r.buildSet(ctx, orderOnly); err != nil {
			return false, err
		}
	}

	needsBuild, newer, err := r.decideRebuild(target, rule, resolvedPrereqs, resolvedOrderOnly)
	if err != nil {
		return false, err
	}
	if !needsBuild {
		return false, nil
	}

	if r.opts.Mode == ModeQuestion {
		return true, nil
	}

	if err := r.runRecipe(ctx, target, rule, resolvedPrereqs, resolvedOrderOnly, newer); err != nil {
		return false, err
	}
	r.invalidateTimestamp(target)
	return true, nil
}

func (r *runner) secondExpansionApplies(target string) bool {
	set := r.e.table.Special(".SECONDEXPANSION")
	return set != nil && set.Has(target)
}

func stemOverlay(target, stem string) *VariableStore {
	s := NewVariableStore()
	s.Set("@", target)
	s.Set("*", stem)
	return s
}

func reExpandWords(exp *Expander, words []string) []string {
	if len(words) == 0 {
		return nil
	}
	out := make([]string, 0, len(words))
	for _, w := range words {
		out = append(out, strings.Fields(exp.Expand(w))...)
	}
	return out
}

// splitWaitSegments resolves prereqs through vpath and splits them at
// `.WAIT` sentinels into parallel-build segments (§3, §4.G step 4).
func (r *runner) splitWaitSegments(prereqs []string) (resolved []string, segments [][]string) {
	var cur []string
	for _, p := range prereqs {
		if p == ".WAIT" {
			segments = append(segments, cur)
			cur = nil
			continue
		}
		cur = append(cur, p)
	}
	segments = append(segments, cur)
	resolved = r.resolveAll(prereqs)
	return resolved, segments
}

func (r *runner) resolveAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w == ".WAIT" {
			continue
		}
		out = append(out, r.resolvePath(w))
	}
	return out
}

func (r *runner) resolvePath(word string) string {
	r.pathMu.Lock()
	if v, ok := r.pathCache[word]; ok {
		r.pathMu.Unlock()
		return v
	}
	r.pathMu.Unlock()

	resolved := word
	if v, ok := r.e.pathResolver.Resolve(word); ok {
		resolved = v
	}

	r.pathMu.Lock()
	r.pathCache[word] = resolved
	r.pathMu.Unlock()
	return resolved
}

// buildSegments builds `.WAIT`-delimited segments in order; within a
// segment, members build in parallel unless `.NOTPARALLEL` is bare or
// names every member of the segment (TargetSet.sequentializes). Naming
// only the target whose prerequisites these are does not serialize them
// (§3, §4.G step 4, §8 "`.WAIT` serialization").
func (r *runner) buildSegments(ctx context.Context, segments [][]string) error {
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		if _, err := r.buildSet(ctx, seg); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) buildSet(ctx context.Context, names []string) (bool, error) {
	set := r.e.table.Special(".NOTPARALLEL")
	names = shuffleOrder(names, r.opts.Shuffle, r.opts.ShuffleSeed)

	if set.sequentializes(names) {
		any := false
		for _, n := range names {
			ok, err := r.buildTarget(ctx, n)
			if err != nil {
				return any, err
			}
			any = any || ok
		}
		return any, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([]bool, len(names))
	for i, n := range names {
		i, n := i, n
		g.Go(func() error {
			ok, err := r.buildTarget(gctx, n)
			results[i] = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return anyTrue(results), err
	}
	return anyTrue(results), nil
}

func shuffleOrder(names []string, mode Shuffle, seed int64) []string {
	if mode == ShuffleNone || len(names) < 2 {
		return names
	}
	out := append([]string(nil), names...)
	switch mode {
	case ShuffleReverse:
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	case ShuffleSeeded:
		perm := lcgPermutation(len(out), seed)
		shuffled := make([]string, len(out))
		for i, p := range perm {
			shuffled[i] = out[p]
		}
		return shuffled
	}
	return out
}

// lcgPermutation generates a deterministic pseudo-random permutation from
// seed without touching math/rand (whose global state the harness
// forbids perturbing mid-run); a linear congruential generator is
// sufficient for test-reproducible shuffling (§5).
func lcgPermutation(n int, seed int64) []int {
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	state := uint64(seed)
	for i := n - 1; i > 0; i-- {
		state = state*6364136223846793005 + 1442695040888963407
		j := int((state >> 33) % uint64(i+1))
		perm[i], perm[j] = perm[j], perm[i]
	}
	return perm
}

// decideRebuild implements the timestamp comparison (§4.G step 5): a
// `.PHONY` target always rebuilds; a missing target always rebuilds; a
// target older than any prerequisite rebuilds. `--always-make` and
// `-o`/`-W` overrides are honored here.
func (r *runner) decideRebuild(target string, rule *Rule, prereqs, orderOnly []string) (bool, []string, error) {
	if r.opts.Always {
		return true, nil, nil
	}
	if r.isPhony(target) {
		return true, nil, nil
	}
	for _, n := range r.opts.AssumeOld {
		if n == target {
			return false, nil, nil
		}
	}
	for _, n := range r.opts.AssumeNew {
		if n == target {
			return true, nil, nil
		}
	}

	targetTS, err := r.timestamp(target)
	if err != nil {
		return false, nil, err
	}
	if targetTS == 0 {
		return true, nil, nil
	}
	if len(prereqs) == 0 && len(orderOnly) == 0 && !rule.All {
		return false, nil, nil
	}

	var newer []string
	for _, p := range prereqs {
		if containsString(r.opts.AssumeNew, p) {
			newer = append(newer, p)
			continue
		}
		if containsString(r.opts.AssumeOld, p) {
			continue
		}
		pts, err := r.timestamp(p)
		if err != nil {
			return false, nil, err
		}
		if pts == 0 || pts > targetTS {
			newer = append(newer, p)
		}
	}
	if len(newer) > 0 {
		return true, newer, nil
	}
	return false, nil, nil
}

func (r *runner) isPhony(target string) bool {
	set := r.e.table.Special(".PHONY")
	return set.Has(target)
}

func (r *runner) timestamp(path string) (int64, error) {
	r.tsMu.Lock()
	if v, ok := r.tsCache[path]; ok {
		r.tsMu.Unlock()
		return v, nil
	}
	r.tsMu.Unlock()

	ts, err := r.e.fs.Timestamp(path, r.opts.CheckSymlink)
	if err != nil {
		return 0, err
	}
	r.tsMu.Lock()
	r.tsCache[path] = ts
	r.tsMu.Unlock()
	return ts, nil
}

func (r *runner) invalidateTimestamp(path string) {
	r.tsMu.Lock()
	delete(r.tsCache, path)
	r.tsMu.Unlock()
}

// runRecipe executes rule's recipe lines for target, under ModeTouch
// (just touches the target), ModeDryRun (prints without running), or
// ModeNormal (§4.G steps 6-9).
func (r *runner) runRecipe(ctx context.Context, target string, rule *Rule, prereqs, orderOnly, newer []string) error {
	if r.opts.Mode == ModeTouch {
		return r.e.fs.Touch(target)
	}

	overlay := NewVariableStore()
	bindAutomaticVarsInto(overlay, target, rule, prereqs, orderOnly, newer)
	exp := r.e.expander()
	for _, s := range r.e.table.ScopeFor(target) {
		exp = exp.With(s.Store)
	}
	exp = exp.With(overlay) // automatic vars always win, applied last

	silent := r.opts.Silent || (!r.opts.NoSilent && r.e.table.Special(".SILENT").Has(target))
	ignoreAll := r.opts.IgnoreErrors || r.e.table.Special(".IGNORE").Has(target)
	oneshell := r.opts.OneShell || r.e.table.Special(".ONESHELL").Has(target)

	lines := make([]recipeLine, len(rule.Recipe))
	expanded := make([]string, len(rule.Recipe))
	for i, raw := range rule.Recipe {
		lines[i] = parseRecipeLine(raw)
		expanded[i] = exp.Expand(lines[i].text)
	}

	if oneshell {
		ignoreErrs := make([]bool, len(lines))
		forced := false
		for i, l := range lines {
			ignoreErrs[i] = l.ignoreErr || ignoreAll
			forced = forced || l.forceRun
		}
		if r.opts.Mode == ModeDryRun && !forced {
			r.opts.output([]byte(strings.Join(expanded, "\n") + "\n"))
			return nil
		}
		script := oneshellScript(expanded, ignoreErrs)
		if err := r.invoke(ctx, target, script, silent || allSilent(lines), true); err != nil {
			r.onRecipeFailure(target)
			return wrapError(ErrRecipe, rule.File, rule.Line, err, "recipe for %q failed", target)
		}
		return nil
	}

	for i, l := range lines {
		if r.opts.Mode == ModeDryRun && !l.forceRun {
			r.opts.output([]byte(expanded[i] + "\n"))
			continue
		}
		err := r.invoke(ctx, target, expanded[i], silent || l.silent, false)
		if err != nil {
			if l.ignoreErr || ignoreAll {
				continue
			}
			r.onRecipeFailure(target)
			return wrapError(ErrRecipe, rule.File, rule.Line, err, "recipe for %q failed", target)
		}
	}
	return nil
}

func allSilent(lines []recipeLine) bool {
	for _, l := range lines {
		if !l.silent {
			return false
		}
	}
	return true
}

func (r *runner) invoke(ctx context.Context, target, command string, silent, oneshell bool) error {
	if !silent {
		r.opts.output([]byte(command + "\n"))
	}
	lock, err := r.e.jobServer.Acquire(ctx)
	if err != nil {
		return err
	}
	defer lock.Release()

	res, err := r.e.shell.Run(ctx, ShellRequest{
		CommandLine: command,
		Cwd:         r.e.curdir,
		Env:         r.e.global.Environ(),
		Shell:       r.e.global.Get("SHELL"),
		Silent:      silent,
		Stdout:      func(chunk []byte) { r.opts.output(chunk) },
		Stderr:      func(chunk []byte) { r.opts.output(chunk) },
	})
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("exit status %d", res.ExitCode)
	}
	return nil
}

// onRecipeFailure implements `.DELETE_ON_ERROR` (§3): unless target is
// `.PRECIOUS` or `.SECONDARY`, a partially-written target is removed so a
// later rerun does not mistake it for up to date.
func (r *runner) onRecipeFailure(target string) {
	set := r.e.table.Special(".DELETE_ON_ERROR")
	if set == nil || !set.Has(target) {
		return
	}
	if r.e.table.Special(".PRECIOUS").Has(target) || r.e.table.Special(".SECONDARY").Has(target) {
		return
	}
	_ = r.e.fs.Unlink(target)
	r.invalidateTimestamp(target)
}

// bindAutomaticVarsInto computes and installs $@ $< $^ $+ $? $* $| (and
// their D/F forms) for one recipe invocation (§6). $< and $^ deduplicate;
// $+ preserves duplicates and order-only-excludes; $? is every
// prerequisite strictly newer than target (all of them, not just one),
// or every prerequisite when the target did not exist yet.
func bindAutomaticVarsInto(store *VariableStore, target string, rule *Rule, prereqs, orderOnly, newer []string) {
	unique := dedupeStrings(prereqs)
	first := ""
	if len(unique) > 0 {
		first = unique[0]
	}
	quest := newer
	if quest == nil {
		quest = prereqs
	}
	vars := automaticVars{
		at:    target,
		lt:    first,
		caret: strings.Join(unique, " "),
		plus:  strings.Join(prereqs, " "),
		quest: strings.Join(quest, " "),
		star:  rule.Stem,
		pipe:  strings.Join(orderOnly, " "),
	}
	vars.bind(store)
}
