package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/nextlevelbuilder/hamdam/internal/providers"
	"github.com/nextlevelbuilder/hamdam/internal/store"
)

func (s *DB) GetState(ctx context.Context, userID string) (string, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM conversation_state WHERE user_id = $1`, userID).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	return state, err
}

func (s *DB) SetState(ctx context.Context, userID, state string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_state (user_id, state, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		userID, state, s.now().UTC())
	return err
}

func (s *DB) ClearState(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_state WHERE user_id = $1`, userID)
	return err
}

func (s *DB) GetHistory(ctx context.Context, userID string) ([]providers.Message, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT messages FROM conversation_history WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []providers.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	var msgs []providers.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
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
		`INSERT INTO conversation_history (user_id, messages, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET messages = EXCLUDED.messages, updated_at = EXCLUDED.updated_at`,
		userID, data, s.now().UTC())
	return err
}
