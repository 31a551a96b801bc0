package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/meetsync/meetsync/internal/migrate"
	"github.com/meetsync/meetsync/internal/model"
	"github.com/meetsync/meetsync/libs/db"
)

// Requires a live Postgres with btree_gist available:
//
//	TEST_DATABASE_URL=postgres://... go test ./internal/storage/
func openTestPool(t *testing.T) *db.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(pool.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := migrate.Up(ctx, pool, logger); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func seedHostAndEventType(t *testing.T, ctx context.Context, pool *db.Pool) (model.User, model.EventType) {
	t.Helper()
	host := model.User{
		ID:           uuid.NewString(),
		Email:        uuid.NewString() + "@example.test",
		PasswordHash: "x",
		Name:         "Race Host",
		Timezone:     "UTC",
	}
	if err := NewUserRepository(pool).Create(ctx, host); err != nil {
		t.Fatalf("create user: %v", err)
	}
	et := model.EventType{
		ID:           uuid.NewString(),
		UserID:       host.ID,
		Name:         "Intro Call",
		Slug:         "intro-" + uuid.NewString()[:8],
		DurationMins: 30,
		LocationKind: model.LocationGoogleMeet,
	}
	if err := NewEventTypeRepository(pool).Create(ctx, et); err != nil {
		t.Fatalf("create event type: %v", err)
	}
	return host, et
}

// Two transactions insert the same interval for the same host; the
// meetings_no_host_overlap exclusion constraint must let exactly one commit.
func TestMeetingCreateConcurrentOverlap(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	host, et := seedHostAndEventType(t, ctx, pool)
	meetings := NewMeetingRepository(pool)

	start := time.Now().UTC().Truncate(time.Hour).Add(48 * time.Hour)
	end := start.Add(30 * time.Minute)

	insert := func() error {
		tx, err := meetings.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()
		m := model.Meeting{
			ID:              uuid.NewString(),
			EventTypeID:     et.ID,
			HostID:          host.ID,
			InviteeName:     "Invitee",
			InviteeEmail:    "invitee@example.test",
			StartTime:       start,
			EndTime:         end,
			Status:          model.MeetingScheduled,
			CancelTokenHash: "hash-" + uuid.NewString(),
		}
		if err := meetings.Create(ctx, tx, &m); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = insert()
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case IsConflict(err):
			conflicts++
		default:
			t.Fatalf("unexpected insert error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("expected exactly one winner, got wins=%d conflicts=%d", wins, conflicts)
	}

	// A cancelled meeting frees its interval for rebooking.
	tx, err := meetings.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	row := pool.QueryRow(ctx, `SELECT id::text FROM meetings WHERE host_id = $1 AND status = 'scheduled'`, host.ID)
	var winnerID string
	if err := row.Scan(&winnerID); err != nil {
		t.Fatalf("scan winner: %v", err)
	}
	if _, err := meetings.Cancel(ctx, tx, winnerID, "making room"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit cancel: %v", err)
	}
	if err := insert(); err != nil {
		t.Fatalf("rebooking a cancelled interval should succeed: %v", err)
	}
}
