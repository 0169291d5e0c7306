package interpreter

import (
	"slices"
	"strings"
	"unicode/utf8"

	"infra-chatops/internal/catalog"
)

// maxAlignments caps how many ways one pattern may be laid over one input.
const maxAlignments = 64

type literalMatch int

const (
	noMatch literalMatch = iota
	exactMatch
	nearMatch
)

// span is the token range captured by the placeholder at the same pattern
// position. An absent placeholder has start == end.
type span struct {
	start, end int
}

func (s span) absent() bool { return s.start == s.end }

type alignment struct {
	spans []span
	exact int
	near  int
}

// align enumerates the ways pattern p covers tokens exactly, trying short
// captures before long ones and absent placeholders last.
func align(p catalog.Pattern, tokens []string) []alignment {
	var out []alignment
	spans := make([]span, len(p.Tokens))

	var walk func(pi, ti, exact, near int)
	walk = func(pi, ti, exact, near int) {
		if len(out) >= maxAlignments {
			return
		}
		if pi == len(p.Tokens) {
			if ti == len(tokens) {
				out = append(out, alignment{
					spans: append([]span(nil), spans...),
					exact: exact,
					near:  near,
				})
			}
			return
		}

		tok := p.Tokens[pi]
		if !tok.IsSlot() {
			if ti >= len(tokens) {
				return
			}
			switch matchLiteral(tok.Literal, tokens[ti]) {
			case exactMatch:
				walk(pi+1, ti+1, exact+1, near)
			case nearMatch:
				walk(pi+1, ti+1, exact, near+1)
			}
			return
		}

		for end := ti + 1; end <= len(tokens); end++ {
			spans[pi] = span{start: ti, end: end}
			walk(pi+1, end, exact, near)
		}
		spans[pi] = span{start: ti, end: ti}
		walk(pi+1, ti, exact, near)
	}

	walk(0, 0, 0, 0)
	return out
}

// matchLiteral compares a pattern word with an input word. Words of four or
// more letters tolerate one typo.
func matchLiteral(literal, token string) literalMatch {
	if literal == token {
		return exactMatch
	}
	if utf8.RuneCountInString(literal) >= 4 && utf8.RuneCountInString(token) >= 4 && withinOneEdit(literal, token) {
		return nearMatch
	}
	return noMatch
}

// withinOneEdit reports whether a and b differ by one insertion, deletion,
// substitution or adjacent transposition of a letter.
func withinOneEdit(a, b string) bool {
	if a == b {
		return true
	}
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la-lb > 1 || lb-la > 1 {
		return false
	}

	i := 0
	for i < la && i < lb && ra[i] == rb[i] {
		i++
	}
	switch {
	case la == lb:
		if slices.Equal(ra[i+1:], rb[i+1:]) {
			return true
		}
		return i+1 < la && ra[i] == rb[i+1] && ra[i+1] == rb[i] && slices.Equal(ra[i+2:], rb[i+2:])
	case la > lb:
		return slices.Equal(ra[i+1:], rb[i:])
	default:
		return slices.Equal(ra[i:], rb[i+1:])
	}
}

// joinSpan renders a capture the way catalog lookups expect it.
func joinSpan(tokens []string, s span) string {
	return strings.Join(tokens[s.start:s.end], " ")
}
