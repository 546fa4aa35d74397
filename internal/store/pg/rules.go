package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

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
		`SELECT `+ruleSelectCols+` FROM responses WHERE context_required = $1 ORDER BY id`, requiredContext)
	if err != nil {
		return nil, err
	}
	return scanRules(rows)
}

func (s *DB) CreateRule(ctx context.Context, r *store.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	return insertRule(ctx, s.db, r, s)
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

	for i := range rules {
		if err := insertRule(ctx, tx, &rules[i], s); err != nil {
			return 0, fmt.Errorf("insert rule %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rules), nil
}

func (s *DB) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM responses WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func insertRule(ctx context.Context, q queryRower, r *store.Rule, s *DB) error {
	triggers, _ := json.Marshal(orEmpty(r.Triggers))
	responses, _ := json.Marshal(orEmpty(r.Responses))
	exclude, _ := json.Marshal(orEmpty(r.ExcludeWords))

	r.CreatedAt = s.now().UTC()
	return q.QueryRowContext(ctx,
		`INSERT INTO responses (triggers, responses, match_type, kind, context_required, sets_context, exclude_words, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		triggers, responses, r.MatchType, r.Kind, r.RequiredContext, r.SetsContext, exclude, r.CreatedAt,
	).Scan(&r.ID)
}

func scanRules(rows *sql.Rows) ([]store.Rule, error) {
	defer rows.Close()

	var out []store.Rule
	for rows.Next() {
		var (
			r                            store.Rule
			triggers, responses, exclude []byte
		)
		if err := rows.Scan(&r.ID, &triggers, &responses, &r.MatchType, &r.Kind,
			&r.RequiredContext, &r.SetsContext, &exclude, &r.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(triggers, &r.Triggers); err != nil {
			return nil, fmt.Errorf("rule %d triggers: %w", r.ID, err)
		}
		if err := json.Unmarshal(responses, &r.Responses); err != nil {
			return nil, fmt.Errorf("rule %d responses: %w", r.ID, err)
		}
		if len(exclude) > 0 {
			if err := json.Unmarshal(exclude, &r.ExcludeWords); err != nil {
				return nil, fmt.Errorf("rule %d exclude words: %w", r.ID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
