package store

import "context"

// StateStore holds at most one pending conversation context per user.
type StateStore interface {
	// GetState returns the user's context or ErrNotFound when idle.
	GetState(ctx context.Context, userID string) (string, error)
	SetState(ctx context.Context, userID, state string) error
	ClearState(ctx context.Context, userID string) error
}
