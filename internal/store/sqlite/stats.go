package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/nextlevelbuilder/hamdam/internal/store"
)

const statsSelectCols = `date, messages_processed, ai_responses, search_calls, tokens_used, estimated_cost, ai_failures, search_failures`

func (s *DB) GetDay(ctx context.Context, date string) (*store.DailyStats, error) {
	var d store.DailyStats
	err := s.db.QueryRowContext(ctx,
		`SELECT `+statsSelectCols+` FROM daily_stats WHERE date = ?`, date).
		Scan(&d.Date, &d.MessagesProcessed, &d.AIResponses, &d.SearchCalls,
			&d.TokensUsed, &d.EstimatedCost, &d.AIFailures, &d.SearchFailures)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *DB) UpsertDay(ctx context.Context, d store.DailyStats) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_stats (`+statsSelectCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET
		   messages_processed = excluded.messages_processed,
		   ai_responses = excluded.ai_responses,
		   search_calls = excluded.search_calls,
		   tokens_used = excluded.tokens_used,
		   estimated_cost = excluded.estimated_cost,
		   ai_failures = excluded.ai_failures,
		   search_failures = excluded.search_failures`,
		d.Date, d.MessagesProcessed, d.AIResponses, d.SearchCalls,
		d.TokensUsed, d.EstimatedCost, d.AIFailures, d.SearchFailures)
	return err
}

func (s *DB) ListDays(ctx context.Context, limit int) ([]store.DailyStats, error) {
	if limit <= 0 {
		limit = 7
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+statsSelectCols+` FROM daily_stats ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.DailyStats
	for rows.Next() {
		var d store.DailyStats
		if err := rows.Scan(&d.Date, &d.MessagesProcessed, &d.AIResponses, &d.SearchCalls,
			&d.TokensUsed, &d.EstimatedCost, &d.AIFailures, &d.SearchFailures); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- known chats ---

func (s *DB) RecordChat(ctx context.Context, channel, chatID, title string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO known_chats (channel, chat_id, title, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(channel, chat_id) DO NOTHING`,
		channel, chatID, title, s.timestamp())
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *DB) ListChats(ctx context.Context, channel string) ([]store.KnownChat, error) {
	q := `SELECT channel, chat_id, title, created_at FROM known_chats`
	var args []any
	if channel != "" {
		q += ` WHERE channel = ?`
		args = append(args, channel)
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.KnownChat
	for rows.Next() {
		var (
			c       store.KnownChat
			created string
		)
		if err := rows.Scan(&c.Channel, &c.ChatID, &c.Title, &created); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, c)
	}
	return out, rows.Err()
}
