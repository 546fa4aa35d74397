// Package normalize canonicalizes chat text before trigger matching.
package normalize

import (
	"regexp"
	"strings"
)

// separators covers ASCII whitespace, every Unicode separator (spaces, U+2028,
// U+2029), vertical tab and the BOM, plus Latin and Persian punctuation.
var separators = regexp.MustCompile(`[\s\v\p{Z}\x{FEFF},.!?؟،]+`)

var letterFold = strings.NewReplacer(
	"آ", "ا",
	"ي", "ی",
)

// Text lowercases s, collapses whitespace and punctuation runs into a single
// space, folds Persian letter variants and trims the result.
func Text(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	s = separators.ReplaceAllString(s, " ")
	s = letterFold.Replace(s)
	return strings.TrimSpace(s)
}

// Words splits the normalized form of s on single spaces.
// An empty input yields a single empty word, which callers treat as "no words".
func Words(s string) []string {
	return strings.Split(Text(s), " ")
}

// WordSet returns the set of normalized words in s.
func WordSet(s string) map[string]struct{} {
	words := Words(s)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Contains reports whether the normalized haystack contains the normalized needle.
func Contains(haystack, needle string) bool {
	return strings.Contains(Text(haystack), Text(needle))
}
