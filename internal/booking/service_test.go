package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/meetsync/meetsync/internal/apperror"
	"github.com/meetsync/meetsync/internal/model"
	"github.com/meetsync/meetsync/internal/payments"
	"github.com/meetsync/meetsync/internal/sessions"
)

type recordingProvider struct {
	cancelled []string
	cancelErr error
}

func (p *recordingProvider) CreateIntent(ctx context.Context, amountCents int64, currency string, description string, receiptEmail string) (payments.Intent, error) {
	return payments.Intent{ID: "pi_test", ClientSecret: "cs_test"}, nil
}

func (p *recordingProvider) CancelIntent(ctx context.Context, intentID string) error {
	p.cancelled = append(p.cancelled, intentID)
	return p.cancelErr
}

func TestAuthorizeCancel(t *testing.T) {
	token, err := sessions.NewToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	meeting := model.Meeting{
		HostID:          "host-1",
		CancelTokenHash: sessions.HashToken(token),
	}

	by, err := authorizeCancel(meeting, Actor{UserID: "host-1"})
	if err != nil {
		t.Fatalf("host cancel should be allowed: %v", err)
	}
	if by != "host" {
		t.Fatalf("expected host, got %s", by)
	}

	by, err = authorizeCancel(meeting, Actor{CancelToken: token})
	if err != nil {
		t.Fatalf("invitee cancel with valid token should be allowed: %v", err)
	}
	if by != "invitee" {
		t.Fatalf("expected invitee, got %s", by)
	}
}

func TestCancelOutcomeIdempotentOnCancelled(t *testing.T) {
	token, err := sessions.NewToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	meeting := model.Meeting{
		HostID:          "host-1",
		Status:          model.MeetingCancelled,
		CancelTokenHash: sessions.HashToken(token),
	}

	for _, actor := range []Actor{{UserID: "host-1"}, {CancelToken: token}} {
		_, alreadyCancelled, err := cancelOutcome(meeting, actor)
		if err != nil {
			t.Fatalf("actor %+v: repeat cancel should not error: %v", actor, err)
		}
		if !alreadyCancelled {
			t.Fatalf("actor %+v: expected already-cancelled outcome", actor)
		}
	}

	// A stranger still gets Forbidden, cancelled or not.
	_, _, err = cancelOutcome(meeting, Actor{UserID: "someone-else"})
	if appErr, ok := apperror.As(err); !ok || appErr.Code != "FORBIDDEN" {
		t.Fatalf("expected FORBIDDEN, got %v", err)
	}

	meeting.Status = model.MeetingScheduled
	by, alreadyCancelled, err := cancelOutcome(meeting, Actor{UserID: "host-1"})
	if err != nil || alreadyCancelled {
		t.Fatalf("scheduled meeting should cancel: by=%s already=%v err=%v", by, alreadyCancelled, err)
	}
}

func TestReleaseIntentVoidsOrphan(t *testing.T) {
	provider := &recordingProvider{}
	s := &Service{
		payments: provider,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	s.releaseIntent(context.Background(), "pi_orphan")
	if len(provider.cancelled) != 1 || provider.cancelled[0] != "pi_orphan" {
		t.Fatalf("expected pi_orphan to be voided, got %v", provider.cancelled)
	}

	// A provider failure is logged, not raised; the booking error wins.
	provider.cancelErr = errors.New("stripe is down")
	s.releaseIntent(context.Background(), "pi_second")
	if len(provider.cancelled) != 2 {
		t.Fatalf("expected cancel attempt despite provider error, got %v", provider.cancelled)
	}
}

func TestAuthorizeCancelRejectsStrangers(t *testing.T) {
	meeting := model.Meeting{
		HostID:          "host-1",
		CancelTokenHash: sessions.HashToken("real-token"),
	}

	cases := []Actor{
		{UserID: "someone-else"},
		{CancelToken: "wrong-token"},
		{},
	}
	for _, actor := range cases {
		_, err := authorizeCancel(meeting, actor)
		appErr, ok := apperror.As(err)
		if !ok || appErr.Code != "FORBIDDEN" {
			t.Fatalf("actor %+v: expected FORBIDDEN, got %v", actor, err)
		}
	}
}
