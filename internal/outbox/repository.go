// Package outbox implements the transactional outbox: domain events are
// committed in the same transaction as the state change that caused them,
// and a background publisher relays them to Kafka afterwards.
package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/meetsync/meetsync/libs/db"
	otelx "github.com/meetsync/meetsync/libs/otel"
)

// Event is what callers enqueue. The event type doubles as the Kafka topic.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Pending is a stored event claimed for publishing.
type Pending struct {
	ID          int64
	EventID     string
	AggregateID string
	EventType   string
	Payload     []byte
	Traceparent string
	Tracestate  string
}

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert enqueues the event inside the caller's transaction, capturing the
// current trace context so the consumer side can link its spans.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

// ClaimBatch locks up to limit unpublished events for this transaction.
// SKIP LOCKED lets concurrent publishers drain disjoint batches.
func (r *Repository) ClaimBatch(ctx context.Context, tx pgx.Tx, limit int) ([]Pending, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text, aggregate_id, event_type, payload, traceparent, tracestate
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batch []Pending
	for rows.Next() {
		var p Pending
		if err := rows.Scan(&p.ID, &p.EventID, &p.AggregateID, &p.EventType, &p.Payload, &p.Traceparent, &p.Tracestate); err != nil {
			return nil, err
		}
		batch = append(batch, p)
	}
	return batch, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
