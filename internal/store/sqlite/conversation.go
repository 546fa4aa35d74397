package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/nextlevelbuilder/hamdam/internal/providers"
	"github.com/nextlevelbuilder/hamdam/internal/store"
)

// --- conversation state ---

func (s *DB) GetState(ctx context.Context, userID string) (string, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM conversation_state WHERE user_id = ?`, userID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	return state, err
}

func (s *DB) SetState(ctx context.Context, userID, state string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_state (user_id, state, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		userID, state, s.timestamp())
	return err
}

func (s *DB) ClearState(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_state WHERE user_id = ?`, userID)
	return err
}

// --- conversation history ---

func (s *DB) GetHistory(ctx context.Context, userID string) ([]providers.Message, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT messages FROM conversation_history WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []providers.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	var msgs []providers.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *DB) SaveHistory(ctx context.Context, userID string, msgs []providers.Message) error {
	if msgs == nil {
		msgs = []providers.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_history (user_id, messages, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET messages = excluded.messages, updated_at = excluded.updated_at`,
		userID, string(data), s.timestamp())
	return err
}
