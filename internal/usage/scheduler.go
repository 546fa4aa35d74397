package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/hamdam/internal/store"
)

// DefaultFlushCron flushes at UTC midnight.
const DefaultFlushCron = "0 0 * * *"

const dateLayout = "2006-01-02"

// Scheduler persists the counters on a cron schedule and resets them.
type Scheduler struct {
	stats *Stats
	store store.StatsStore
	expr  string
	now   func() time.Time
}

// NewScheduler validates expr and creates a scheduler.
func NewScheduler(stats *Stats, st store.StatsStore, expr string) (*Scheduler, error) {
	if expr == "" {
		expr = DefaultFlushCron
	}
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid flush cron %q", expr)
	}
	return &Scheduler{stats: stats, store: st, expr: expr, now: time.Now}, nil
}

func (s *Scheduler) today() string {
	return s.now().UTC().Format(dateLayout)
}

// LoadToday resumes today's counters from the store, if a row exists.
func (s *Scheduler) LoadToday(ctx context.Context) error {
	day, err := s.store.GetDay(ctx, s.today())
	if errors.Is(err, store.ErrNotFound) {
		slog.Info("no stats stored for today, starting fresh")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load today's stats: %w", err)
	}
	s.stats.Load(FromDay(*day))
	slog.Info("resumed today's stats", "date", day.Date, "messages", day.MessagesProcessed)
	return nil
}

// Flush writes the live counters for today without resetting them.
func (s *Scheduler) Flush(ctx context.Context) error {
	date := s.today()
	if err := s.store.UpsertDay(ctx, s.stats.Snapshot().Day(date)); err != nil {
		return fmt.Errorf("flush stats for %s: %w", date, err)
	}
	slog.Info("stats flushed", "date", date)
	return nil
}

// rollover writes the closing period's counters under the date that just ended
// and starts a fresh period.
func (s *Scheduler) rollover(ctx context.Context, tick time.Time) error {
	date := tick.UTC().Add(-time.Second).Format(dateLayout)
	snap := s.stats.swap()
	if err := s.store.UpsertDay(ctx, snap.Day(date)); err != nil {
		// Put the counts back so the shutdown flush still records them.
		s.stats.merge(snap)
		return fmt.Errorf("rollover stats for %s: %w", date, err)
	}
	slog.Info("daily stats saved", "date", date, "messages", snap.MessagesProcessed, "cost_usd", snap.EstimatedCost)
	return nil
}

// Run blocks until ctx is done, rolling the counters over at every tick.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		now := s.now().UTC()
		next, err := gronx.NextTickAfter(s.expr, now, false)
		if err != nil {
			return fmt.Errorf("next flush tick: %w", err)
		}
		slog.Debug("next stats flush scheduled", "at", next, "in", next.Sub(now).Round(time.Minute))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			if err := s.rollover(ctx, next); err != nil {
				slog.Error("stats rollover failed", "error", err)
			}
		}
	}
}
