// Package catalog builds and matches the curated trigger index.
package catalog

import (
	"strings"

	"github.com/nextlevelbuilder/hamdam/internal/normalize"
	"github.com/nextlevelbuilder/hamdam/internal/store"
)

// Rule is a curated response rule as persisted by the store.
type Rule = store.Rule

// Options are the smart-match tuning knobs.
type Options struct {
	ScoreThreshold     float64
	StatePriorityBoost float64
}

// DefaultOptions mirrors the shipped configuration.
func DefaultOptions() Options {
	return Options{ScoreThreshold: 0.75, StatePriorityBoost: 0.1}
}

// Index is an immutable snapshot of the context-free part of the catalog.
// It is never modified after Build returns.
type Index struct {
	exact map[string]*Rule
	smart []*Rule
	opts  Options
	size  int
}

// Match is an accepted smart-match candidate.
type Match struct {
	Rule       *Rule
	Trigger    string
	Score      float64 // includes the state priority boost
	RawScore   float64
	ExtraWords []string
}

// Perfect reports whether every trigger word was present, ignoring the boost.
func (m Match) Perfect() bool {
	return m.RawScore == 1.0
}

// Build indexes rules that require no context. Exact triggers are keyed by
// their normalized form; a later rule overwrites an earlier one with the same key.
func Build(rules []Rule, opts Options) *Index {
	idx := &Index{
		exact: make(map[string]*Rule),
		opts:  opts,
	}
	for i := range rules {
		r := &rules[i]
		if r.RequiredContext != "" {
			continue
		}
		idx.size++
		switch r.MatchType {
		case store.MatchExact:
			for _, t := range r.Triggers {
				idx.exact[normalize.Text(t)] = r
			}
		case store.MatchSmart:
			idx.smart = append(idx.smart, r)
		}
	}
	return idx
}

// Len returns the number of indexed rules.
func (idx *Index) Len() int { return idx.size }

// ExactKeys returns the number of distinct exact trigger keys.
func (idx *Index) ExactKeys() int { return len(idx.exact) }

// MatchExact looks up the normalized text in the exact map.
func (idx *Index) MatchExact(text string) (*Rule, bool) {
	r, ok := idx.exact[normalize.Text(text)]
	return r, ok
}

// MatchSmart scores every smart trigger by word overlap and returns the best
// candidate when it clears the threshold. Ties keep the earlier candidate.
func (idx *Index) MatchSmart(text string) (Match, bool) {
	msgWords := normalize.WordSet(text)

	var (
		best      Match
		bestScore float64
	)
	for _, r := range idx.smart {
		if excluded(r, msgWords) {
			continue
		}
		for _, trigger := range r.Triggers {
			words := normalize.Words(trigger)
			if words[0] == "" {
				continue
			}
			matches := 0
			for _, w := range words {
				if _, ok := msgWords[w]; ok {
					matches++
				}
			}
			raw := float64(matches) / float64(len(words))
			score := raw
			if r.SetsContext != "" {
				score += idx.opts.StatePriorityBoost
			}
			if score > bestScore {
				bestScore = score
				best = Match{Rule: r, Trigger: trigger, Score: score, RawScore: raw}
			}
		}
	}

	if best.Rule == nil || best.Score < idx.opts.ScoreThreshold {
		return Match{}, false
	}
	best.ExtraWords = extraWords(text, best.Trigger)
	return best, true
}

func excluded(r *Rule, msgWords map[string]struct{}) bool {
	for _, ex := range r.ExcludeWords {
		if _, ok := msgWords[normalize.Text(ex)]; ok {
			return true
		}
	}
	return false
}

// extraWords lists distinct message words not covered by the trigger, in message order.
func extraWords(text, trigger string) []string {
	triggerWords := normalize.WordSet(trigger)
	seen := make(map[string]struct{})
	var out []string
	for _, w := range normalize.Words(text) {
		if w == "" {
			continue
		}
		if _, ok := triggerWords[w]; ok {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// MatchContext resolves a reply for a user awaiting a context. Non-wildcard
// triggers match by substring of the normalized message; the first rule in
// catalog order wins. Failing that, the first rule carrying "*" is returned
// with wildcard set.
func MatchContext(rules []Rule, text string) (rule *Rule, wildcard bool) {
	msg := normalize.Text(text)
	var fallback *Rule
	for i := range rules {
		r := &rules[i]
		for _, t := range r.Triggers {
			if t == store.Wildcard {
				if fallback == nil {
					fallback = r
				}
				continue
			}
			if nt := normalize.Text(t); nt != "" && strings.Contains(msg, nt) {
				return r, false
			}
		}
	}
	if fallback != nil {
		return fallback, true
	}
	return nil, false
}
