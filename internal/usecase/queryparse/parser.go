// Package queryparse extracts boolean structure from raw queries.
// The output annotates the query for lexical boosting downstream; parsing
// never rejects a query.
package queryparse

import (
	"strings"

	"github.com/kailas-cloud/fusegate/internal/domain"
	"github.com/kailas-cloud/fusegate/internal/textutil"
)

type parseMode int

const (
	modeInclude parseMode = iota
	modeExclude
	modeOr
)

// connectives switch the active mode, matched case-insensitively.
var connectives = map[string]parseMode{
	"and":     modeInclude,
	"+":       modeInclude,
	"not":     modeExclude,
	"-":       modeExclude,
	"without": modeExclude,
	"exclude": modeExclude,
	"or":      modeOr,
	"|":       modeOr,
	"either":  modeOr,
}

// Parse scans whitespace-delimited tokens, switching between include,
// exclude, and or mode on connective keywords. All other tokens are stripped
// of surrounding punctuation and appended to the active mode's set.
// Parsing starts in include mode.
func Parse(query string) domain.Hints {
	var hints domain.Hints
	mode := modeInclude
	seen := map[string]struct{}{}

	for _, tok := range strings.Fields(query) {
		if m, ok := connectives[strings.ToLower(tok)]; ok {
			mode = m
			continue
		}

		term := strings.ToLower(strings.Trim(tok, `.,;:!?"'()[]{}`))
		if term == "" {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		switch mode {
		case modeExclude:
			hints.Exclude = append(hints.Exclude, term)
		case modeOr:
			hints.Or = append(hints.Or, term)
		default:
			hints.Include = append(hints.Include, term)
		}
	}

	return hints
}

// ContainsAnchor reports whether text carries any of the include-set terms
// as whole tokens. Substring hits inside larger words do not count.
func ContainsAnchor(text string, hints domain.Hints) bool {
	if len(hints.Include) == 0 {
		return false
	}
	tokens := textutil.TokenSet(text)
	for _, term := range hints.Include {
		if tokensPresent(tokens, textutil.Tokens(term)) {
			return true
		}
	}
	return false
}

// tokensPresent reports whether every term token appears in the text token
// set. Hyphenated terms tokenize to multiple words and must match all.
func tokensPresent(set map[string]struct{}, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	for _, t := range terms {
		if _, ok := set[t]; !ok {
			return false
		}
	}
	return true
}
