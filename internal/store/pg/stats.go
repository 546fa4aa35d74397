package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/nextlevelbuilder/hamdam/internal/store"
)

const statsSelectCols = `date, messages_processed, ai_responses, search_calls, tokens_used, estimated_cost, ai_failures, search_failures`

func scanDay(row interface{ Scan(...any) error }) (store.DailyStats, error) {
	var d store.DailyStats
	err := row.Scan(&d.Date, &d.MessagesProcessed, &d.AIResponses, &d.SearchCalls,
		&d.TokensUsed, &d.EstimatedCost, &d.AIFailures, &d.SearchFailures)
	return d, err
}

func (s *DB) GetDay(ctx context.Context, date string) (*store.DailyStats, error) {
	d, err := scanDay(s.db.QueryRowContext(ctx,
		`SELECT `+statsSelectCols+` FROM daily_stats WHERE date = $1`, date))
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
		`INSERT INTO daily_stats (`+statsSelectCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (date) DO UPDATE SET
		   messages_processed = EXCLUDED.messages_processed,
		   ai_responses = EXCLUDED.ai_responses,
		   search_calls = EXCLUDED.search_calls,
		   tokens_used = EXCLUDED.tokens_used,
		   estimated_cost = EXCLUDED.estimated_cost,
		   ai_failures = EXCLUDED.ai_failures,
		   search_failures = EXCLUDED.search_failures`,
		d.Date, d.MessagesProcessed, d.AIResponses, d.SearchCalls,
		d.TokensUsed, d.EstimatedCost, d.AIFailures, d.SearchFailures)
	return err
}

func (s *DB) ListDays(ctx context.Context, limit int) ([]store.DailyStats, error) {
	if limit <= 0 {
		limit = 7
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+statsSelectCols+` FROM daily_stats ORDER BY date DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.DailyStats
	for rows.Next() {
		d, err := scanDay(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *DB) RecordChat(ctx context.Context, channel, chatID, title string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO known_chats (channel, chat_id, title, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (channel, chat_id) DO NOTHING`,
		channel, chatID, title, s.now().UTC())
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *DB) ListChats(ctx context.Context, channel string) ([]store.KnownChat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel, chat_id, title, created_at FROM known_chats
		 WHERE $1 = '' OR channel = $1 ORDER BY created_at`, channel)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.KnownChat
	for rows.Next() {
		var c store.KnownChat
		if err := rows.Scan(&c.Channel, &c.ChatID, &c.Title, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
