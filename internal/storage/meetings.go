package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/meetsync/meetsync/internal/model"
	"github.com/meetsync/meetsync/libs/db"
)

type MeetingRepository struct {
	pool *db.Pool
}

func NewMeetingRepository(pool *db.Pool) *MeetingRepository {
	return &MeetingRepository{pool: pool}
}

func (r *MeetingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const meetingColumns = `
	id::text, event_type_id::text, host_id::text, invitee_name, invitee_email,
	start_time, end_time, status, cancel_token_hash, cancelled_at,
	COALESCE(cancel_reason, ''), meeting_link, payment_intent_id, payment_status, created_at`

// Create inserts inside the caller's transaction. The meetings_no_host_overlap
// exclusion constraint raises 23P01 when the interval collides with another
// scheduled meeting for the host; callers detect it with IsConflict.
func (r *MeetingRepository) Create(ctx context.Context, tx pgx.Tx, m *model.Meeting) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO meetings
			(id, event_type_id, host_id, invitee_name, invitee_email,
			start_time, end_time, status, cancel_token_hash, meeting_link, payment_intent_id, payment_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, m.ID, m.EventTypeID, m.HostID, m.InviteeName, m.InviteeEmail,
		m.StartTime, m.EndTime, m.Status, m.CancelTokenHash, m.MeetingLink, m.PaymentIntentID, m.PaymentStatus)
	return err
}

func (r *MeetingRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Meeting, error) {
	row := tx.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1 FOR UPDATE`, id)
	return scanMeeting(row)
}

func (r *MeetingRepository) GetByID(ctx context.Context, id string) (model.Meeting, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id)
	return scanMeeting(row)
}

func (r *MeetingRepository) Cancel(ctx context.Context, tx pgx.Tx, id string, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE meetings
		SET status = 'cancelled',
			cancelled_at = now(),
			cancel_reason = $2
		WHERE id = $1
		RETURNING cancelled_at
	`, id, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

func (r *MeetingRepository) SetMeetingLink(ctx context.Context, id string, link string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE meetings
		SET meeting_link = $2
		WHERE id = $1
	`, id, link)
	return err
}

// SetPaymentStatusByIntent updates the payment status of whichever meeting
// carries the Stripe payment intent. Returns true when a row matched.
func (r *MeetingRepository) SetPaymentStatusByIntent(ctx context.Context, intentID string, status string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE meetings
		SET payment_status = $2
		WHERE payment_intent_id = $1
	`, intentID, status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListScheduledIntervals returns the scheduled meetings overlapping
// [start, end) for a host. Cancelled meetings do not block slots.
func (r *MeetingRepository) ListScheduledIntervals(ctx context.Context, hostID string, start, end time.Time) ([]model.Meeting, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE host_id = $1
			AND status = 'scheduled'
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, hostID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMeetings(rows)
}

func (r *MeetingRepository) ListByHost(ctx context.Context, hostID string, filter string, limit int) ([]model.Meeting, error) {
	if limit <= 0 {
		limit = 50
	}
	where := `host_id = $1`
	switch filter {
	case "upcoming":
		where += ` AND status = 'scheduled' AND start_time >= now()`
	case "past":
		where += ` AND status = 'scheduled' AND start_time < now()`
	case "cancelled":
		where += ` AND status = 'cancelled'`
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+meetingColumns+`
		FROM meetings
		WHERE `+where+`
		ORDER BY start_time DESC
		LIMIT $2
	`, hostID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMeetings(rows)
}

type meetingScanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row meetingScanner) (model.Meeting, error) {
	var m model.Meeting
	var cancelledAt *time.Time
	err := row.Scan(
		&m.ID,
		&m.EventTypeID,
		&m.HostID,
		&m.InviteeName,
		&m.InviteeEmail,
		&m.StartTime,
		&m.EndTime,
		&m.Status,
		&m.CancelTokenHash,
		&cancelledAt,
		&m.CancelReason,
		&m.MeetingLink,
		&m.PaymentIntentID,
		&m.PaymentStatus,
		&m.CreatedAt,
	)
	if err != nil {
		return model.Meeting{}, err
	}
	m.CancelledAt = cancelledAt
	return m, nil
}

func collectMeetings(rows pgx.Rows) ([]model.Meeting, error) {
	var out []model.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
