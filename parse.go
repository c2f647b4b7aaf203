// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"bufio"
	"io"
	"strings"
)

// defaultRecipePrefix is the sentinel meaning "TAB"; once `.RECIPEPREFIX`
// sets a custom prefix, only that single byte qualifies a line as a
// recipe line.
const defaultRecipePrefix = 0

// Parser turns makefile text into a *File of Stmt nodes (§4.D). It does
// not evaluate anything — no variable lookups, no conditional branch
// pruning — that is the loader's job (see engine.go).
type Parser struct {
	file         string
	lines        []string
	lineNo       []int // 1-based physical line number that each p.lines entry started at
	pos          int
	recipePrefix byte // defaultRecipePrefix, or a custom single byte
	suffixes     []string
	lastRecipe   *[]string // points at the Recipe slice of the most recently opened rule, for continuation lines
}

// ParseFile parses makefile text attributed to the given filename (used in
// diagnostics and $(MAKEFILE_LIST)).
func ParseFile(file string, r io.Reader) (*File, error) {
	p := &Parser{file: file, recipePrefix: defaultRecipePrefix}
	if err := p.readLines(r); err != nil {
		return nil, wrapError(ErrParse, file, 0, err, "reading makefile")
	}
	stmts, err := p.parseBlock(nil)
	if err != nil {
		return nil, err
	}
	return &File{Stmts: stmts}, nil
}

// SetRecipePrefix changes the recipe-line prefix for the lines this Parser
// has not yet read; 0 restores TAB. Lines already read keep the
// classification they were given (§4.D / §3 builtin variables).
func (p *Parser) SetRecipePrefix(b byte) {
	if b == 0 {
		p.recipePrefix = defaultRecipePrefix
		return
	}
	p.recipePrefix = b
}

func (p *Parser) readLines(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		p.lines = append(p.lines, scanner.Text())
		p.lineNo = append(p.lineNo, lineNo)
	}
	return scanner.Err()
}

func (p *Parser) errf(line int, format string, args ...any) error {
	return newError(ErrParse, p.file, line, format, args...)
}

func (p *Parser) isRecipeLine(raw string) bool {
	if raw == "" {
		return false
	}
	if p.recipePrefix == defaultRecipePrefix {
		return raw[0] == '\t'
	}
	return raw[0] == p.recipePrefix
}

func (p *Parser) stripRecipePrefix(raw string) string {
	return raw[1:]
}

// nextLogicalLine returns the next non-recipe logical line (continuation
// lines joined with a space, per GNU Make's backslash-newline folding),
// or the next recipe line verbatim (no continuation folding — the shell
// handles its own line continuations), and the 1-based line number it
// started on. ok is false at end of input.
func (p *Parser) nextLogicalLine() (text string, lineNo int, isRecipe bool, ok bool) {
	if p.pos >= len(p.lines) {
		return "", 0, false, false
	}
	raw := p.lines[p.pos]
	lineNo = p.lineNo[p.pos]
	if p.isRecipeLine(raw) {
		p.pos++
		return p.stripRecipePrefix(raw), lineNo, true, true
	}
	p.pos++
	line := stripComment(raw)
	for strings.HasSuffix(line, "\\") && p.pos < len(p.lines) {
		line = strings.TrimRight(line[:len(line)-1], " \t") + " " + strings.TrimLeft(stripComment(p.lines[p.pos]), " \t")
		p.pos++
	}
	return line, lineNo, false, true
}

// stripComment removes a `#`-to-end-of-line comment unless the `#` is
// preceded by an odd number of backslashes (i.e. it is itself escaped).
func stripComment(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] != '#' {
			continue
		}
		backslashes := 0
		for j := i - 1; j >= 0 && line[j] == '\\'; j-- {
			backslashes++
		}
		if backslashes%2 == 1 {
			continue
		}
		return strings.TrimRight(line[:i], " \t")
	}
	return line
}

// parseBlock parses statements until EOF or, when terminators is non-nil,
// until a line trims to one of the given terminator keywords (used inside
// conditional bodies). The terminator line itself is NOT consumed.
func (p *Parser) parseBlock(terminators map[string]bool) ([]Stmt, error) {
	var stmts []Stmt
	for {
		save := p.pos
		text, lineNo, isRecipe, ok := p.nextLogicalLine()
		if !ok {
			return stmts, nil
		}
		if isRecipe {
			if p.lastRecipe == nil {
				return nil, p.errf(lineNo, "recipe line outside of a rule")
			}
			*p.lastRecipe = append(*p.lastRecipe, text)
			continue
		}
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			continue
		}
		if terminators != nil {
			word := firstWord(trimmed)
			if terminators[word] || terminators[trimmed] {
				p.pos = save
				return stmts, nil
			}
		}
		stmt, err := p.parseStatement(trimmed, lineNo)
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
}

func firstWord(s string) string {
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s
	}
	return s[:i]
}

func (p *Parser) parseStatement(trimmed string, lineNo int) (Stmt, error) {
	switch firstWord(trimmed) {
	case "ifeq", "ifneq", "ifdef", "ifndef":
		return p.parseConditional(trimmed, lineNo)
	case "include":
		return &IncludeStmt{Path: strings.TrimSpace(trimmed[len("include"):]), File: p.file, Line: lineNo}, nil
	case "-include":
		return &IncludeStmt{Path: strings.TrimSpace(trimmed[len("-include"):]), Optional: true, File: p.file, Line: lineNo}, nil
	case "sinclude":
		return &IncludeStmt{Path: strings.TrimSpace(trimmed[len("sinclude"):]), Optional: true, File: p.file, Line: lineNo}, nil
	case "export":
		return p.parseExport(trimmed, lineNo, false)
	case "unexport":
		return p.parseExport(trimmed, lineNo, true)
	case "undefine":
		return &UndefineStmt{Name: strings.TrimSpace(trimmed[len("undefine"):]), File: p.file, Line: lineNo}, nil
	case "vpath":
		return p.parseVpath(trimmed, lineNo)
	case "define":
		return p.parseDefine(trimmed, lineNo)
	case "else", "endif", "endef":
		return nil, p.errf(lineNo, "unexpected %q outside a conditional/define block", firstWord(trimmed))
	}

	if a, ok := p.parseAssignmentLine(trimmed, lineNo); ok {
		return a, nil
	}

	return p.parseRuleHeader(trimmed, lineNo)
}

// --- assignments ---

func (p *Parser) parseAssignmentLine(trimmed string, lineNo int) (Stmt, bool) {
	rest := trimmed
	override, private := false, false
	for {
		if r, ok := strings.CutPrefix(rest, "override "); ok {
			override = true
			rest = strings.TrimLeft(r, " \t")
			continue
		}
		if r, ok := strings.CutPrefix(rest, "private "); ok {
			private = true
			rest = strings.TrimLeft(r, " \t")
			continue
		}
		break
	}
	name, op, value, ok := splitAssignment(rest)
	if !ok {
		return nil, false
	}
	return &Assignment{Name: name, Op: op, Value: value, Override: override, Private: private, File: p.file, Line: lineNo}, true
}

// splitAssignment finds the first top-level assignment operator in s and
// splits it into name/op/value. A bare top-level ':' not immediately
// followed by '=' (or a second ':') disqualifies the line as an
// assignment — it is a rule header instead.
func splitAssignment(s string) (name string, op AssignOp, value string, ok bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '{':
			depth++
			continue
		case ')', '}':
			depth--
			continue
		}
		if depth != 0 {
			continue
		}
		if s[i] == ':' {
			if strings.HasPrefix(s[i:], ":::=") {
				n := strings.TrimSpace(s[:i])
				return n, OpImmediate, strings.TrimSpace(s[i+4:]), validName(n)
			}
			if strings.HasPrefix(s[i:], "::=") {
				n := strings.TrimSpace(s[:i])
				return n, OpSimple, strings.TrimSpace(s[i+3:]), validName(n)
			}
			if strings.HasPrefix(s[i:], ":=") {
				n := strings.TrimSpace(s[:i])
				return n, OpSimple, strings.TrimSpace(s[i+2:]), validName(n)
			}
			return "", 0, "", false
		}
		if s[i] == '=' {
			prefix := s[:i]
			switch {
			case strings.HasSuffix(prefix, "?"):
				n := strings.TrimSpace(prefix[:len(prefix)-1])
				return n, OpCondSet, strings.TrimSpace(s[i+1:]), validName(n)
			case strings.HasSuffix(prefix, "+"):
				n := strings.TrimSpace(prefix[:len(prefix)-1])
				return n, OpAppend, strings.TrimSpace(s[i+1:]), validName(n)
			case strings.HasSuffix(prefix, "!"):
				n := strings.TrimSpace(prefix[:len(prefix)-1])
				return n, OpShell, strings.TrimSpace(s[i+1:]), validName(n)
			default:
				n := strings.TrimSpace(prefix)
				return n, OpRecursive, strings.TrimSpace(s[i+1:]), validName(n)
			}
		}
	}
	return "", 0, "", false
}

func validName(s string) bool {
	return strings.TrimSpace(s) != "" && !strings.ContainsAny(s, " \t")
}

// parseDefine handles `define NAME [op]` ... `endef`, where op, if
// present, is one of the six assignment operators (default recursive).
func (p *Parser) parseDefine(trimmed string, lineNo int) (Stmt, error) {
	rest := strings.TrimSpace(trimmed[len("define"):])
	override, private := false, false
	for {
		if r, ok := strings.CutPrefix(rest, "override "); ok {
			override = true
			rest = strings.TrimLeft(r, " \t")
			continue
		}
		if r, ok := strings.CutPrefix(rest, "private "); ok {
			private = true
			rest = strings.TrimLeft(r, " \t")
			continue
		}
		break
	}

	name := strings.TrimSpace(rest)
	op := OpRecursive
	for _, suf := range []struct {
		tok string
		op  AssignOp
	}{
		{":::=", OpImmediate}, {"::=", OpSimple}, {":=", OpSimple}, {"?=", OpCondSet},
		{"+=", OpAppend}, {"!=", OpShell}, {"=", OpRecursive},
	} {
		if strings.HasSuffix(name, suf.tok) {
			name = strings.TrimSpace(name[:len(name)-len(suf.tok)])
			op = suf.op
			break
		}
	}

	var body []string
	for {
		raw, ln, _, ok := p.nextLogicalLine()
		if !ok {
			return nil, p.errf(lineNo, "define %q: missing endef", name)
		}
		if strings.TrimSpace(raw) == "endef" {
			break
		}
		_ = ln
		body = append(body, raw)
	}

	return &Assignment{
		Name: name, Op: op, Value: strings.Join(body, "\n"),
		Define: true, Override: override, Private: private, File: p.file, Line: lineNo,
	}, nil
}

// --- conditionals ---

func (p *Parser) parseConditional(trimmed string, lineNo int) (Stmt, error) {
	cond := &Conditional{File: p.file, Line: lineNo}
	branch, err := parseCondBranch(trimmed)
	if err != nil {
		return nil, p.errf(lineNo, "%s", err)
	}
	for {
		body, err := p.parseBlock(condTerminators)
		if err != nil {
			return nil, err
		}
		branch.Body = body
		cond.Branches = append(cond.Branches, branch)

		text, ln, _, ok := p.nextLogicalLine()
		if !ok {
			return nil, p.errf(lineNo, "missing endif")
		}
		text = strings.TrimSpace(text)
		switch {
		case text == "endif":
			return cond, nil
		case text == "else":
			branch = CondBranch{Kind: "else"}
		case strings.HasPrefix(text, "else "):
			branch, err = parseCondBranch(strings.TrimSpace(text[len("else "):]))
			if err != nil {
				return nil, p.errf(ln, "%s", err)
			}
		default:
			return nil, p.errf(ln, "expected else/endif, got %q", text)
		}
	}
}

var condTerminators = map[string]bool{"else": true, "endif": true}

func parseCondBranch(line string) (CondBranch, error) {
	kind := firstWord(line)
	rest := strings.TrimSpace(line[len(kind):])
	switch kind {
	case "ifdef", "ifndef":
		return CondBranch{Kind: kind, Args: []string{rest}}, nil
	case "ifeq", "ifneq":
		args, err := splitCondArgs(rest)
		if err != nil {
			return CondBranch{}, err
		}
		return CondBranch{Kind: kind, Args: args}, nil
	}
	return CondBranch{}, newError(ErrParse, "", 0, "unrecognized conditional %q", line)
}

// splitCondArgs parses the ifeq/ifneq argument forms: "(a,b)" or "'a' 'b'"
// or `"a" "b"`.
func splitCondArgs(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		inner := s[1 : len(s)-1]
		parts := splitTopLevelCommas(inner)
		if len(parts) != 2 {
			return nil, newError(ErrParse, "", 0, "ifeq/ifneq requires exactly two arguments, got %q", s)
		}
		return []string{strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])}, nil
	}
	var args []string
	rest := s
	for len(args) < 2 {
		rest = strings.TrimSpace(rest)
		if rest == "" {
			break
		}
		q := rest[0]
		if q != '\'' && q != '"' {
			return nil, newError(ErrParse, "", 0, "ifeq/ifneq: expected quoted argument, got %q", rest)
		}
		end := strings.IndexByte(rest[1:], q)
		if end < 0 {
			return nil, newError(ErrParse, "", 0, "ifeq/ifneq: unterminated quote in %q", rest)
		}
		args = append(args, rest[1:1+end])
		rest = rest[1+end+1:]
	}
	if len(args) != 2 {
		return nil, newError(ErrParse, "", 0, "ifeq/ifneq requires exactly two arguments, got %q", s)
	}
	return args, nil
}

// --- export/undefine/vpath ---

func (p *Parser) parseExport(trimmed string, lineNo int, unexport bool) (Stmt, error) {
	kw := "export"
	if unexport {
		kw = "unexport"
	}
	rest := strings.TrimSpace(trimmed[len(kw):])
	if rest == "" {
		return &ExportStmt{Unexport: unexport, All: true, File: p.file, Line: lineNo}, nil
	}
	if name, op, value, ok := splitAssignment(rest); ok {
		a := &Assignment{Name: name, Op: op, Value: value, File: p.file, Line: lineNo}
		return &ExportStmt{Unexport: unexport, Names: []string{name}, Assignment: a, File: p.file, Line: lineNo}, nil
	}
	return &ExportStmt{Unexport: unexport, Names: strings.Fields(rest), File: p.file, Line: lineNo}, nil
}

func (p *Parser) parseVpath(trimmed string, lineNo int) (Stmt, error) {
	rest := strings.TrimSpace(trimmed[len("vpath"):])
	if rest == "" {
		return &VpathStmt{Clear: true, File: p.file, Line: lineNo}, nil
	}
	fields := strings.Fields(rest)
	if len(fields) == 1 {
		return &VpathStmt{Delete: true, Pattern: fields[0], File: p.file, Line: lineNo}, nil
	}
	return &VpathStmt{Pattern: fields[0], Dirs: strings.Join(fields[1:], " "), File: p.file, Line: lineNo}, nil
}

// --- rule headers ---

func (p *Parser) parseRuleHeader(trimmed string, lineNo int) (Stmt, error) {
	colon := topLevelColon(trimmed)
	if colon < 0 {
		return nil, p.errf(lineNo, "unrecognized syntax: %s", trimmed)
	}

	targetStr := strings.TrimSpace(trimmed[:colon])
	rest := trimmed[colon+1:]

	grouped := false
	if strings.HasSuffix(targetStr, "&") {
		grouped = true
		targetStr = strings.TrimSpace(targetStr[:len(targetStr)-1])
	}
	if targetStr == "" {
		return nil, p.errf(lineNo, "missing target")
	}

	doubleColon := false
	if strings.HasPrefix(rest, ":") {
		doubleColon = true
		rest = rest[1:]
	}

	// Target/pattern-specific variable assignment: `target: name = value`.
	if name, op, value, ok := splitAssignment(strings.TrimSpace(rest)); ok {
		return &TargetScopeAssign{
			TargetsRaw: targetStr,
			Assignment: Assignment{Name: name, Op: op, Value: value, File: p.file, Line: lineNo},
			File:       p.file, Line: lineNo,
		}, nil
	}

	// Peel an inline recipe after ';'.
	var inlineRecipe string
	hasInline := false
	if semi := topLevelSemicolon(rest); semi >= 0 {
		inlineRecipe = strings.TrimSpace(rest[semi+1:])
		rest = rest[:semi]
		hasInline = true
	}

	prereqStr := strings.TrimSpace(rest)

	if targetStr == ".SUFFIXES" {
		if prereqStr == "" {
			p.suffixes = nil
		} else {
			p.suffixes = append(p.suffixes, strings.Fields(prereqStr)...)
		}
	} else if pat, prereq, ok := rewriteSuffixRule(targetStr, prereqStr, p.suffixes); ok {
		targetStr, prereqStr = pat, prereq
	}

	entry := &RuleEntry{
		Targets:       targetStr,
		Prerequisites: prereqStr,
		DoubleColon:   doubleColon,
		Grouped:       grouped,
		File:          p.file,
		Line:          lineNo,
	}
	if hasInline && inlineRecipe != "" {
		entry.Recipe = append(entry.Recipe, inlineRecipe)
	}
	p.lastRecipe = &entry.Recipe
	return entry, nil
}

// topLevelColon finds the first ':' not nested inside $(...)/${...}.
func topLevelColon(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '{':
			depth++
		case ')', '}':
			depth--
		case ':':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func topLevelSemicolon(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '{':
			depth++
		case ')', '}':
			depth--
		case ';':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// rewriteSuffixRule implements the legacy `.c.o:` / `.c:` suffix-rule
// syntax (§4.D): a single target token built from one or two known suffixes,
// with no explicit prerequisites, is rewritten into a pattern rule.
func rewriteSuffixRule(target, prereqs string, suffixes []string) (pattern, newPrereqs string, ok bool) {
	if prereqs != "" || !strings.HasPrefix(target, ".") {
		return "", "", false
	}
	for _, s1 := range suffixes {
		if !strings.HasPrefix(target, s1) {
			continue
		}
		rest := target[len(s1):]
		if rest == "" {
			return "%", "%" + s1, true
		}
		for _, s2 := range suffixes {
			if rest == s2 {
				return "%" + s2, "%" + s1, true
			}
		}
	}
	return "", "", false
}
