package store

import (
	"context"
	"errors"
	"time"
)

// Match types.
const (
	MatchExact = "exact"
	MatchSmart = "smart"
)

// Wildcard is the trigger reserved as a context's fallback of last resort.
const Wildcard = "*"

// Rule is a curated response rule.
type Rule struct {
	ID              int64     `json:"id"`
	Triggers        []string  `json:"triggers"`
	Responses       []string  `json:"responses"`
	MatchType       string    `json:"matchType"`
	Kind            string    `json:"type,omitempty"`
	RequiredContext string    `json:"requiredContext,omitempty"`
	SetsContext     string    `json:"setsContext,omitempty"`
	ExcludeWords    []string  `json:"excludeWords,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Validate checks the structural invariants of a rule.
func (r *Rule) Validate() error {
	if len(r.Triggers) == 0 {
		return errors.New("rule needs at least one trigger")
	}
	if len(r.Responses) == 0 {
		return errors.New("rule needs at least one response")
	}
	if r.MatchType != MatchExact && r.MatchType != MatchSmart {
		return errors.New("matchType must be exact or smart")
	}
	return nil
}

// HasWildcard reports whether the rule carries the "*" trigger.
func (r *Rule) HasWildcard() bool {
	for _, t := range r.Triggers {
		if t == Wildcard {
			return true
		}
	}
	return false
}

// RuleStore persists the response catalog. List order is catalog (insertion) order.
type RuleStore interface {
	ListRules(ctx context.Context) ([]Rule, error)
	ListRulesByContext(ctx context.Context, requiredContext string) ([]Rule, error)
	CreateRule(ctx context.Context, r *Rule) error
	// ImportRules inserts all rules in one transaction and returns the count.
	ImportRules(ctx context.Context, rules []Rule) (int, error)
	DeleteRule(ctx context.Context, id int64) error
}
