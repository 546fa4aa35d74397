package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// RuleSource lists the full catalog in insertion order.
type RuleSource interface {
	ListRules(ctx context.Context) ([]Rule, error)
}

// Holder owns the live index. Reload builds a complete replacement before
// swapping it in, so Index never returns a partially built snapshot.
type Holder struct {
	src  RuleSource
	opts Options
	cur  atomic.Pointer[Index]

	reloads  atomic.Int64
	loadedAt atomic.Int64 // unix nanos
}

// NewHolder creates a holder with an empty index.
func NewHolder(src RuleSource, opts Options) *Holder {
	h := &Holder{src: src, opts: opts}
	h.cur.Store(Build(nil, opts))
	return h
}

// Index returns the current snapshot.
func (h *Holder) Index() *Index {
	return h.cur.Load()
}

// Reload rebuilds the index from the source. On error the previous index stays live.
func (h *Holder) Reload(ctx context.Context) error {
	rules, err := h.src.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	idx := Build(rules, h.opts)
	h.cur.Store(idx)
	h.reloads.Add(1)
	h.loadedAt.Store(time.Now().UnixNano())
	slog.Info("catalog reloaded", "rules", len(rules), "indexed", idx.Len(), "exact_keys", idx.ExactKeys())
	return nil
}

// Reloads returns how many successful reloads have happened.
func (h *Holder) Reloads() int64 { return h.reloads.Load() }

// LoadedAt returns the time of the last successful reload (zero if none).
func (h *Holder) LoadedAt() time.Time {
	n := h.loadedAt.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
