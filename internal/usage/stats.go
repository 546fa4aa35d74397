// Package usage tracks process-wide usage counters and persists them daily.
package usage

import (
	"sync"

	"github.com/nextlevelbuilder/hamdam/internal/store"
)

// DefaultCostPerToken is the blended USD price used for the running spend estimate.
const DefaultCostPerToken = 0.0000002

// Snapshot is a copy of the live counters.
type Snapshot struct {
	MessagesProcessed int64   `json:"messagesProcessed"`
	AIResponses       int64   `json:"aiResponses"`
	SearchCalls       int64   `json:"searchCalls"`
	TokensUsed        int64   `json:"tokensUsed"`
	EstimatedCost     float64 `json:"estimatedCost"`
	AIFailures        int64   `json:"aiFailures"`
	SearchFailures    int64   `json:"searchFailures"`
}

// Day converts the snapshot into a daily_stats row.
func (s Snapshot) Day(date string) store.DailyStats {
	return store.DailyStats{
		Date:              date,
		MessagesProcessed: s.MessagesProcessed,
		AIResponses:       s.AIResponses,
		SearchCalls:       s.SearchCalls,
		TokensUsed:        s.TokensUsed,
		EstimatedCost:     s.EstimatedCost,
		AIFailures:        s.AIFailures,
		SearchFailures:    s.SearchFailures,
	}
}

// FromDay is the inverse of Snapshot.Day.
func FromDay(d store.DailyStats) Snapshot {
	return Snapshot{
		MessagesProcessed: d.MessagesProcessed,
		AIResponses:       d.AIResponses,
		SearchCalls:       d.SearchCalls,
		TokensUsed:        d.TokensUsed,
		EstimatedCost:     d.EstimatedCost,
		AIFailures:        d.AIFailures,
		SearchFailures:    d.SearchFailures,
	}
}

// Stats holds the counters for the current day. Safe for concurrent use.
type Stats struct {
	mu           sync.Mutex
	cur          Snapshot
	costPerToken float64
	metrics      *Metrics
}

// NewStats creates zeroed counters. metrics may be nil.
func NewStats(costPerToken float64, metrics *Metrics) *Stats {
	if costPerToken <= 0 {
		costPerToken = DefaultCostPerToken
	}
	s := &Stats{costPerToken: costPerToken, metrics: metrics}
	if metrics != nil {
		metrics.bind(s)
	}
	return s
}

func (s *Stats) IncMessages() {
	s.mu.Lock()
	s.cur.MessagesProcessed++
	s.mu.Unlock()
	s.metrics.incMessages()
}

func (s *Stats) IncAIResponses() {
	s.mu.Lock()
	s.cur.AIResponses++
	s.mu.Unlock()
	s.metrics.incAIResponses()
}

func (s *Stats) IncSearchCalls() {
	s.mu.Lock()
	s.cur.SearchCalls++
	s.mu.Unlock()
	s.metrics.incSearchCalls()
}

// AddTokens accumulates tokens and their estimated cost.
func (s *Stats) AddTokens(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.cur.TokensUsed += int64(n)
	s.cur.EstimatedCost += float64(n) * s.costPerToken
	s.mu.Unlock()
	s.metrics.addTokens(n)
}

func (s *Stats) IncAIFailures() {
	s.mu.Lock()
	s.cur.AIFailures++
	s.mu.Unlock()
	s.metrics.incAIFailures()
}

func (s *Stats) IncSearchFailures() {
	s.mu.Lock()
	s.cur.SearchFailures++
	s.mu.Unlock()
	s.metrics.incSearchFailures()
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Load replaces the counters, used to resume today's totals after a restart.
func (s *Stats) Load(snap Snapshot) {
	s.mu.Lock()
	s.cur = snap
	s.mu.Unlock()
}

// Reset zeroes the counters.
func (s *Stats) Reset() {
	s.mu.Lock()
	s.cur = Snapshot{}
	s.mu.Unlock()
}

// swap atomically returns the counters and zeroes them.
func (s *Stats) swap() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.cur
	s.cur = Snapshot{}
	return snap
}

// merge adds snap back onto the live counters.
func (s *Stats) merge(snap Snapshot) {
	s.mu.Lock()
	s.cur.MessagesProcessed += snap.MessagesProcessed
	s.cur.AIResponses += snap.AIResponses
	s.cur.SearchCalls += snap.SearchCalls
	s.cur.TokensUsed += snap.TokensUsed
	s.cur.EstimatedCost += snap.EstimatedCost
	s.cur.AIFailures += snap.AIFailures
	s.cur.SearchFailures += snap.SearchFailures
	s.mu.Unlock()
}
