// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import "strings"

// splitWords splits on runs of whitespace, like GNU Make's word lists;
// kept as a named helper since word-list semantics recur across nearly
// every list function.
func splitWords(s string) []string {
	return strings.Fields(s)
}

func joinWords(words []string) string {
	return strings.Join(words, " ")
}

// patsubstWord applies a single %-pattern substitution to one word.
func patsubstWord(pattern, replacement, word string) string {
	if !strings.Contains(pattern, "%") {
		if word == pattern {
			return replacement
		}
		return word
	}
	prefix, suffix, _ := strings.Cut(pattern, "%")
	if !strings.HasPrefix(word, prefix) || !strings.HasSuffix(word, suffix) {
		return word
	}
	if len(word) < len(prefix)+len(suffix) {
		return word
	}
	stem := word[len(prefix) : len(word)-len(suffix)]
	return strings.Replace(replacement, "%", stem, 1)
}

func patsubstWords(pattern, replacement string, words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = patsubstWord(pattern, replacement, w)
	}
	return out
}

// patsubstMatch tests whether a word matches a %-pattern.
func patsubstMatch(pattern, word string) bool {
	if !strings.Contains(pattern, "%") {
		return word == pattern
	}
	prefix, suffix, _ := strings.Cut(pattern, "%")
	return strings.HasPrefix(word, prefix) && strings.HasSuffix(word, suffix) && len(word) >= len(prefix)+len(suffix)
}

func isIdentStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

func dedupeStrings(words []string) []string {
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
