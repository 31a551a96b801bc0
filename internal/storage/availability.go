package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/meetsync/meetsync/internal/model"
	"github.com/meetsync/meetsync/libs/db"
)

type AvailabilityRepository struct {
	pool *db.Pool
}

func NewAvailabilityRepository(pool *db.Pool) *AvailabilityRepository {
	return &AvailabilityRepository{pool: pool}
}

func (r *AvailabilityRepository) Create(ctx context.Context, rule model.AvailabilityRule) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_rules (id, user_id, weekday, rule_date, start_minute, end_minute)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rule.ID, rule.UserID, rule.Weekday, rule.Date, rule.StartMinute, rule.EndMinute)
	return err
}

// ReplaceWeekly swaps the whole weekly template in one transaction, so a
// concurrent slot query never sees a half-written template.
func (r *AvailabilityRepository) ReplaceWeekly(ctx context.Context, userID string, rules []model.AvailabilityRule) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		DELETE FROM availability_rules
		WHERE user_id = $1 AND rule_date IS NULL
	`, userID); err != nil {
		return err
	}
	for _, rule := range rules {
		if _, err := tx.Exec(ctx, `
			INSERT INTO availability_rules (id, user_id, weekday, start_minute, end_minute)
			VALUES ($1, $2, $3, $4, $5)
		`, rule.ID, userID, rule.Weekday, rule.StartMinute, rule.EndMinute); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *AvailabilityRepository) ListByUser(ctx context.Context, userID string) ([]model.AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, user_id::text, weekday, rule_date, start_minute, end_minute, created_at
		FROM availability_rules
		WHERE user_id = $1
		ORDER BY weekday, rule_date, start_minute
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *AvailabilityRepository) DeleteOverride(ctx context.Context, id string, userID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM availability_rules
		WHERE id = $1 AND user_id = $2 AND rule_date IS NOT NULL
	`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanRules(rows pgx.Rows) ([]model.AvailabilityRule, error) {
	var out []model.AvailabilityRule
	for rows.Next() {
		var rule model.AvailabilityRule
		var date *time.Time
		if err := rows.Scan(
			&rule.ID,
			&rule.UserID,
			&rule.Weekday,
			&date,
			&rule.StartMinute,
			&rule.EndMinute,
			&rule.CreatedAt,
		); err != nil {
			return nil, err
		}
		rule.Date = date
		out = append(out, rule)
	}
	return out, rows.Err()
}
