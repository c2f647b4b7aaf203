// Copyright 2026 The gomake Authors
// SPDX-License-Identifier: Apache-2.0

package gomake

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatternLiteralMatchesOnlyItself(t *testing.T) {
	p := ParsePattern("foo.o")
	assert.False(t, p.IsPattern())
	_, ok := p.Match("foo.o")
	assert.True(t, ok)
	_, ok = p.Match("bar.o")
	assert.False(t, ok)
}

func TestPatternStemCapture(t *testing.T) {
	p := ParsePattern("%.o")
	stem, ok := p.Match("foo.o")
	assert.True(t, ok)
	assert.Equal(t, "foo", stem)

	_, ok = p.Match("foo.c")
	assert.False(t, ok, "suffix must match exactly")
}

func TestPatternPrefixAndSuffix(t *testing.T) {
	p := ParsePattern("lib%.a")
	stem, ok := p.Match("libfoo.a")
	assert.True(t, ok)
	assert.Equal(t, "foo", stem)

	_, ok = p.Match("libfoo.so")
	assert.False(t, ok)
	_, ok = p.Match("foo.a")
	assert.False(t, ok, "missing prefix")
}

func TestPatternRejectsTooShortWord(t *testing.T) {
	p := ParsePattern("lib%.a")
	_, ok := p.Match("lib.a")
	assert.True(t, ok, "empty stem is a legal match")
	_, ok = p.Match("lia")
	assert.False(t, ok)
}

func TestPatternExpand(t *testing.T) {
	p := ParsePattern("%.o")
	assert.Equal(t, "foo.o", p.Expand("foo"))

	lit := ParsePattern("fixed")
	assert.Equal(t, "fixed", lit.Expand("anything"))
}

func TestPatternOnlyFirstPercentIsSpecial(t *testing.T) {
	p := ParsePattern("a%b%c")
	assert.Equal(t, "a", p.Prefix)
	assert.Equal(t, "b%c", p.Suffix)
	stem, ok := p.Match("axb%c")
	assert.True(t, ok)
	assert.Equal(t, "x", stem)
}

func TestStemLengthOrdersShorterFirst(t *testing.T) {
	assert.Less(t, StemLength(""), StemLength("x"))
	assert.Less(t, StemLength("x"), StemLength("xy"))
}
