// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"gomake"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "gomake: %s\n", err)
		os.Exit(2)
	}
}

func run(argv []string) error {
	flags := pflag.NewFlagSet("gomake", pflag.ContinueOnError)

	files := flags.StringArrayP("file", "f", nil, "read FILE as a makefile")
	jobs := flags.IntP("jobs", "j", 1, "allow N jobs at once")
	dryRun := flags.BoolP("dry-run", "n", false, "print recipes without executing them")
	question := flags.BoolP("question", "q", false, "run no recipes; exit nonzero iff any target is out of date")
	touch := flags.BoolP("touch", "t", false, "touch targets instead of running recipes")
	keepGoing := flags.BoolP("keep-going", "k", false, "continue as much as possible after an error")
	ignoreErrors := flags.BoolP("ignore-errors", "i", false, "ignore errors from recipes")
	alwaysMake := flags.BoolP("always-make", "B", false, "unconditionally rebuild every target")
	silent := flags.BoolP("silent", "s", false, "don't echo recipes before running them")
	noSilent := flags.Bool("no-silent", false, "override a makefile's .SILENT")
	oneShell := flags.Bool("one-shell", false, "run each rule's recipe in a single shell invocation")
	checkSymlink := flags.BoolP("check-symlink-times", "L", false, "use the latest mtime between symlinks and targets")
	directory := flags.StringP("directory", "C", "", "change to DIRECTORY before reading makefiles")
	assumeOld := flags.StringArrayP("old-file", "o", nil, "consider FILE to be very old and do not remake it")
	assumeNew := flags.StringArrayP("new-file", "W", nil, "consider FILE to be infinitely new")
	shuffleFlag := flags.String("shuffle", "", "perturb prerequisite build order: none, reverse, or random[:SEED]")
	outputSync := flags.StringP("output-sync", "O", "", "output-sync mode: none, target, line, recurse (accepted; recipe output is not synchronized)")
	warnUndefined := flags.Bool("warn-undefined-variables", false, "warn when an undefined variable is referenced")
	version := flags.Bool("version", false, "print the version and exit")

	if err := flags.Parse(argv); err != nil {
		return err
	}
	if *version {
		fmt.Println("GNU Make 4.0 (gomake reimplementation)")
		return nil
	}

	rest := flags.Args()
	var goals []string
	overrides := map[string]string{}
	for _, arg := range rest {
		if name, value, ok := strings.Cut(arg, "="); ok {
			overrides[name] = value
			continue
		}
		goals = append(goals, arg)
	}

	if *directory != "" {
		if err := os.Chdir(*directory); err != nil {
			return err
		}
	}
	curdir, err := os.Getwd()
	if err != nil {
		return err
	}

	var warnings []string
	engine := gomake.NewEngine(gomake.EngineOptions{
		CurDir:    curdir,
		Jobs:      *jobs,
		WarnUndef: *warnUndefined,
		OnWarn:    func(msg string) { warnings = append(warnings, msg) },
	})

	makefiles := *files
	if len(makefiles) == 0 {
		makefiles = defaultMakefiles(curdir)
	}
	if len(makefiles) == 0 {
		return fmt.Errorf("no makefile found")
	}
	for _, f := range makefiles {
		if !filepath.IsAbs(f) {
			f = filepath.Join(curdir, f)
		}
		if err := engine.LoadFile(f); err != nil {
			return err
		}
	}

	for name, value := range overrides {
		if err := engine.SetOverride(name, value); err != nil {
			return err
		}
	}

	mode := gomake.ModeNormal
	switch {
	case *dryRun:
		mode = gomake.ModeDryRun
	case *question:
		mode = gomake.ModeQuestion
	case *touch:
		mode = gomake.ModeTouch
	}

	shuffle, seed, err := parseShuffle(*shuffleFlag)
	if err != nil {
		return err
	}

	opts := gomake.RunOptions{
		Mode:         mode,
		Jobs:         *jobs,
		Always:       *alwaysMake,
		KeepGoing:    *keepGoing,
		IgnoreErrors: *ignoreErrors,
		Silent:       *silent,
		NoSilent:     *noSilent,
		OneShell:     *oneShell,
		CheckSymlink: *checkSymlink,
		AssumeOld:    *assumeOld,
		AssumeNew:    *assumeNew,
		Shuffle:      shuffle,
		ShuffleSeed:  seed,
		OutputSync:   parseOutputSync(*outputSync),
		Output:       func(chunk []byte) { os.Stdout.Write(chunk) },
	}

	ranRecipe, err := engine.Run(goals, opts)
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "gomake: %s\n", w)
	}
	if err != nil {
		return err
	}
	if *question && ranRecipe {
		os.Exit(1)
	}
	return nil
}

func defaultMakefiles(curdir string) []string {
	for _, name := range []string{"GNUmakefile", "makefile", "Makefile"} {
		path := filepath.Join(curdir, name)
		if _, err := os.Stat(path); err == nil {
			return []string{path}
		}
	}
	return nil
}

func parseShuffle(v string) (gomake.Shuffle, int64, error) {
	if v == "" {
		return gomake.ShuffleNone, 0, nil
	}
	kind, rest, _ := strings.Cut(v, ":")
	switch kind {
	case "none":
		return gomake.ShuffleNone, 0, nil
	case "reverse":
		return gomake.ShuffleReverse, 0, nil
	case "random":
		if rest == "" {
			return gomake.ShuffleSeeded, 1, nil
		}
		seed, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return gomake.ShuffleNone, 0, fmt.Errorf("invalid --shuffle seed %q: %w", rest, err)
		}
		return gomake.ShuffleSeeded, seed, nil
	default:
		return gomake.ShuffleNone, 0, fmt.Errorf("invalid --shuffle mode %q", kind)
	}
}

func parseOutputSync(v string) gomake.OutputSync {
	switch v {
	case "target":
		return gomake.OutputSyncTarget
	case "line":
		return gomake.OutputSyncLine
	case "recurse":
		return gomake.OutputSyncRecurse
	default:
		return gomake.OutputSyncNone
	}
}
