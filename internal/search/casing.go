package search

import (
	"slices"
	"sync"
	"unicode"
)

// casing holds, for each needle position, every rune whose lower form equals
// the needle's lower form there. Candidates are sorted in key order, so the
// first candidate is not always the upper-case one: Georgian letters sort
// their Mtavruli capitals above the lower-case forms.
type casing struct {
	lower []rune
	cands [][]rune
	// lo is the smallest key that can match: the first candidate at every position.
	lo []rune
}

func newCasing(needle string) casing {
	rs := []rune(needle)
	c := casing{
		lower: make([]rune, len(rs)),
		cands: make([][]rune, len(rs)),
		lo:    make([]rune, len(rs)),
	}
	for i, r := range rs {
		l := unicode.ToLower(r)
		c.lower[i] = l
		c.cands[i] = candidates(l)
		c.lo[i] = c.cands[i][0]
	}
	return c
}

// upperForms maps a lower-case rune to every other rune that lower-cases to it.
var upperForms = sync.OnceValue(func() map[rune][]rune {
	m := make(map[rune][]rune)
	for r := rune(0); r <= unicode.MaxRune; r++ {
		if l := unicode.ToLower(r); l != r {
			m[l] = append(m[l], r)
		}
	}
	return m
})

// candidates returns l and the runes that lower-case to it, sorted.
func candidates(l rune) []rune {
	out := append([]rune{l}, upperForms()[l]...)
	slices.Sort(out)
	return out
}

func lowerRunes(s []rune) []rune {
	out := make([]rune, len(s))
	for i, r := range s {
		out[i] = unicode.ToLower(r)
	}
	return out
}

// matches reports whether the lower-cased key starts with the lower-cased needle.
func (c casing) matches(lowerKey []rune) bool {
	if len(lowerKey) < len(c.lower) {
		return false
	}
	for i, r := range c.lower {
		if lowerKey[i] != r {
			return false
		}
	}
	return true
}

// above returns the smallest candidate at position i greater than r.
func (c casing) above(i int, r rune) (rune, bool) {
	for _, x := range c.cands[i] {
		if x > r {
			return x, true
		}
	}
	return 0, false
}

// next returns the smallest key greater than key that could still start with
// some casing of the needle, or false when no such key exists.
//
// Keys compare rune by rune, which is the byte order of their UTF-8 encoding.
func (c casing) next(key, lowerKey []rune) (string, bool) {
	n := min(len(key), len(c.lower))
	bump := -1 // last position whose candidate can still grow

	for i := 0; i < n; i++ {
		if !slices.Contains(c.cands[i], key[i]) {
			if r, ok := c.above(i, key[i]); ok {
				return c.splice(key[:i], r, i+1), true
			}
			return c.backtrack(key, bump)
		}
		if key[i] != c.cands[i][len(c.cands[i])-1] {
			bump = i
		}
	}

	if n < len(c.lower) {
		return string(key) + string(c.lo[len(key):]), true
	}
	if c.matches(lowerKey) {
		// Already a match; the caller steps to the following key.
		return string(key), true
	}
	return c.backtrack(key, bump)
}

func (c casing) backtrack(key []rune, bump int) (string, bool) {
	if bump < 0 {
		return "", false
	}
	r, _ := c.above(bump, key[bump])
	return c.splice(key[:bump], r, bump+1), true
}

// splice builds head + r + lo[from:].
func (c casing) splice(head []rune, r rune, from int) string {
	out := make([]rune, 0, len(head)+1+len(c.lo)-from)
	out = append(out, head...)
	out = append(out, r)
	out = append(out, c.lo[from:]...)
	return string(out)
}
