package store

import (
	"context"

	"github.com/nextlevelbuilder/hamdam/internal/providers"
)

// HistoryStore persists the short AI conversation window per user.
type HistoryStore interface {
	// GetHistory returns the stored turns, or an empty slice for a new user.
	GetHistory(ctx context.Context, userID string) ([]providers.Message, error)
	SaveHistory(ctx context.Context, userID string, msgs []providers.Message) error
}
