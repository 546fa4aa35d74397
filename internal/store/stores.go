package store

import (
	"errors"
	"io"
)

// ErrNotFound is returned when a keyed row does not exist.
var ErrNotFound = errors.New("not found")

// Stores is the top-level container for all storage backends.
// Both the SQLite (standalone) and Postgres (managed) drivers fill every field.
type Stores struct {
	Rules   RuleStore
	States  StateStore
	History HistoryStore
	Stats   StatsStore
	Chats   ChatStore

	closer io.Closer
}

// NewStores wires a backend that implements every store interface.
func NewStores(b Backend) *Stores {
	return &Stores{Rules: b, States: b, History: b, Stats: b, Chats: b, closer: b}
}

// Close releases the underlying connection.
func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// Backend is a single database implementing all stores.
type Backend interface {
	RuleStore
	StateStore
	HistoryStore
	StatsStore
	ChatStore
	io.Closer
}

// StoreConfig selects and locates the backend.
type StoreConfig struct {
	Driver      string // "sqlite" or "postgres"
	DataDir     string // sqlite only; ":memory:" for tests
	PostgresDSN string
}
