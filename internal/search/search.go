// Package search grounds AI answers with a Tavily web-search snippet.
package search

import (
	"strings"

	"github.com/nextlevelbuilder/hamdam/internal/normalize"
)

// DefaultTriggers are the Persian interrogatives that suggest a factual lookup.
var DefaultTriggers = []string{
	"کیست", "کیه", "چیست", "چیه", "کجاست", "کجا بود", "چه زمانی",
	"تاریخ", "چقدر", "قیمت", "تعداد", "آخرین خبر", "چه خبر از",
}

// NeedsSearch reports whether the normalized text contains any normalized trigger.
func NeedsSearch(text string, triggers []string) bool {
	msg := normalize.Text(text)
	if msg == "" {
		return false
	}
	for _, t := range triggers {
		nt := normalize.Text(t)
		if nt != "" && strings.Contains(msg, nt) {
			return true
		}
	}
	return false
}
