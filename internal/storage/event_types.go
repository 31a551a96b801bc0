package storage

import (
	"context"

	"github.com/meetsync/meetsync/internal/model"
	"github.com/meetsync/meetsync/libs/db"
)

type EventTypeRepository struct {
	pool *db.Pool
}

func NewEventTypeRepository(pool *db.Pool) *EventTypeRepository {
	return &EventTypeRepository{pool: pool}
}

const eventTypeColumns = `
	id::text, user_id::text, name, slug, description, duration_minutes,
	location_kind, price_cents, currency, is_private, created_at`

func (r *EventTypeRepository) Create(ctx context.Context, et model.EventType) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_types
			(id, user_id, name, slug, description, duration_minutes, location_kind, price_cents, currency, is_private)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, et.ID, et.UserID, et.Name, et.Slug, et.Description, et.DurationMins,
		et.LocationKind, et.PriceCents, et.Currency, et.IsPrivate)
	return err
}

func (r *EventTypeRepository) GetByID(ctx context.Context, id string) (model.EventType, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+eventTypeColumns+` FROM event_types WHERE id = $1`, id)
	return scanEventType(row)
}

func (r *EventTypeRepository) ListByUser(ctx context.Context, userID string) ([]model.EventType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventTypeColumns+`
		FROM event_types
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EventType
	for rows.Next() {
		et, err := scanEventType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, et)
	}
	return out, rows.Err()
}

// ListPublicByUser returns the non-private event types invitees may book.
func (r *EventTypeRepository) ListPublicByUser(ctx context.Context, userID string) ([]model.EventType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventTypeColumns+`
		FROM event_types
		WHERE user_id = $1 AND is_private = false
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EventType
	for rows.Next() {
		et, err := scanEventType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, et)
	}
	return out, rows.Err()
}

func (r *EventTypeRepository) SetPrivacy(ctx context.Context, id string, userID string, isPrivate bool) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE event_types
		SET is_private = $3
		WHERE id = $1 AND user_id = $2
	`, id, userID, isPrivate)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes an event type with no meetings; event types with history
// are kept (meetings reference them) and the caller gets ok=false.
func (r *EventTypeRepository) Delete(ctx context.Context, id string, userID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM event_types
		WHERE id = $1
			AND user_id = $2
			AND NOT EXISTS (SELECT 1 FROM meetings WHERE event_type_id = $1)
	`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

type eventTypeScanner interface {
	Scan(dest ...any) error
}

func scanEventType(row eventTypeScanner) (model.EventType, error) {
	var et model.EventType
	err := row.Scan(
		&et.ID,
		&et.UserID,
		&et.Name,
		&et.Slug,
		&et.Description,
		&et.DurationMins,
		&et.LocationKind,
		&et.PriceCents,
		&et.Currency,
		&et.IsPrivate,
		&et.CreatedAt,
	)
	if err != nil {
		return model.EventType{}, err
	}
	return et, nil
}
