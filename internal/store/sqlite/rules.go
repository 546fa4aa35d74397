package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/hamdam/internal/store"
)

const ruleSelectCols = `id, triggers, responses, match_type, kind, context_required, sets_context, exclude_words, created_at`

func (s *DB) ListRules(ctx context.Context) ([]store.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleSelectCols+` FROM responses ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return scanRules(rows)
}

func (s *DB) ListRulesByContext(ctx context.Context, requiredContext string) ([]store.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ruleSelectCols+` FROM responses WHERE context_required = ? ORDER BY id`, requiredContext)
	if err != nil {
		return nil, err
	}
	return scanRules(rows)
}

func (s *DB) CreateRule(ctx context.Context, r *store.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	id, err := insertRule(ctx, s.db, r, s.timestamp())
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

func (s *DB) ImportRules(ctx context.Context, rules []store.Rule) (int, error) {
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return 0, fmt.Errorf("rule %d: %w", i, err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	ts := s.timestamp()
	for i := range rules {
		id, err := insertRule(ctx, tx, &rules[i], ts)
		if err != nil {
			return 0, fmt.Errorf("insert rule %d: %w", i, err)
		}
		rules[i].ID = id
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rules), nil
}

func (s *DB) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRule(ctx context.Context, db execer, r *store.Rule, ts string) (int64, error) {
	triggers, err := marshalList(r.Triggers)
	if err != nil {
		return 0, err
	}
	responses, err := marshalList(r.Responses)
	if err != nil {
		return 0, err
	}
	exclude, err := marshalList(r.ExcludeWords)
	if err != nil {
		return 0, err
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO responses (triggers, responses, match_type, kind, context_required, sets_context, exclude_words, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		triggers, responses, r.MatchType, r.Kind, r.RequiredContext, r.SetsContext, exclude, ts)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanRules(rows *sql.Rows) ([]store.Rule, error) {
	defer rows.Close()

	var out []store.Rule
	for rows.Next() {
		var (
			r                            store.Rule
			triggers, responses, exclude string
			created                      string
		)
		if err := rows.Scan(&r.ID, &triggers, &responses, &r.MatchType, &r.Kind,
			&r.RequiredContext, &r.SetsContext, &exclude, &created); err != nil {
			return nil, err
		}
		var err error
		if r.Triggers, err = unmarshalList(triggers); err != nil {
			return nil, fmt.Errorf("rule %d triggers: %w", r.ID, err)
		}
		if r.Responses, err = unmarshalList(responses); err != nil {
			return nil, fmt.Errorf("rule %d responses: %w", r.ID, err)
		}
		if r.ExcludeWords, err = unmarshalList(exclude); err != nil {
			return nil, fmt.Errorf("rule %d exclude words: %w", r.ID, err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	return out, rows.Err()
}
