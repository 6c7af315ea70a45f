// Package textutil provides the lightweight lexical measures shared by the
// fusion and evidence stages. Everything here works on lowercased token sets;
// no model calls.
package textutil

import (
	"strings"
	"unicode"
)

// Tokens splits text into lowercased word tokens, dropping punctuation.
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// TokenSet returns the set of lowercased word tokens.
func TokenSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, tok := range Tokens(text) {
		set[tok] = struct{}{}
	}
	return set
}

// Jaccard is the token-set Jaccard similarity of two texts.
func Jaccard(a, b string) float64 {
	sa, sb := TokenSet(a), TokenSet(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	inter := 0
	for tok := range sa {
		if _, ok := sb[tok]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

// Coverage is the fraction of a's tokens that appear in b
// (unigram recall, ROUGE-1 style).
func Coverage(a, b string) float64 {
	ta := Tokens(a)
	if len(ta) == 0 {
		return 0
	}
	sb := TokenSet(b)
	matched := 0
	for _, tok := range ta {
		if _, ok := sb[tok]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(ta))
}
