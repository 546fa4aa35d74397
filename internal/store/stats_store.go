package store

import "context"

// DailyStats is one flushed day of usage counters. Date is YYYY-MM-DD (UTC).
type DailyStats struct {
	Date              string  `json:"date"`
	MessagesProcessed int64   `json:"messagesProcessed"`
	AIResponses       int64   `json:"aiResponses"`
	SearchCalls       int64   `json:"searchCalls"`
	TokensUsed        int64   `json:"tokensUsed"`
	EstimatedCost     float64 `json:"estimatedCost"`
	AIFailures        int64   `json:"aiFailures"`
	SearchFailures    int64   `json:"searchFailures"`
}

// StatsStore persists daily usage rows.
type StatsStore interface {
	// GetDay returns the row for date or ErrNotFound.
	GetDay(ctx context.Context, date string) (*DailyStats, error)
	// UpsertDay inserts the row or overwrites the existing one for the same date.
	UpsertDay(ctx context.Context, s DailyStats) error
	// ListDays returns the most recent rows, newest first.
	ListDays(ctx context.Context, limit int) ([]DailyStats, error)
}
