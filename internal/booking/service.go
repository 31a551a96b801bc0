// Package booking owns the slot -> meeting state transition. The overlap
// check and insert run in one transaction; the meetings_no_host_overlap
// exclusion constraint serializes concurrent attempts on the same slot, so
// exactly one of two racing requests wins.
package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/meetsync/meetsync/internal/apperror"
	"github.com/meetsync/meetsync/internal/availability"
	"github.com/meetsync/meetsync/internal/model"
	"github.com/meetsync/meetsync/internal/outbox"
	"github.com/meetsync/meetsync/internal/payments"
	"github.com/meetsync/meetsync/internal/sessions"
	"github.com/meetsync/meetsync/internal/storage"
)

// CalendarScheduler pushes a booked meeting to the host's external calendar
// and returns a conferencing link. Implementations are best-effort.
type CalendarScheduler interface {
	Connected(ctx context.Context, userID string) (bool, error)
	ScheduleMeeting(ctx context.Context, hostID string, m model.Meeting, eventName string) (string, error)
}

type Service struct {
	meetings   *storage.MeetingRepository
	eventTypes *storage.EventTypeRepository
	users      *storage.UserRepository
	rules      *storage.AvailabilityRepository
	outbox     *outbox.Repository
	payments   payments.Provider   // nil when payments are not configured
	calendar   CalendarScheduler   // nil when no calendar integration
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(
	meetings *storage.MeetingRepository,
	eventTypes *storage.EventTypeRepository,
	users *storage.UserRepository,
	rules *storage.AvailabilityRepository,
	outboxRepo *outbox.Repository,
	paymentsProvider payments.Provider,
	calendarScheduler CalendarScheduler,
	logger *slog.Logger,
) *Service {
	return &Service{
		meetings:   meetings,
		eventTypes: eventTypes,
		users:      users,
		rules:      rules,
		outbox:     outboxRepo,
		payments:   paymentsProvider,
		calendar:   calendarScheduler,
		logger:     logger,
		now:        time.Now,
	}
}

type BookRequest struct {
	EventTypeID  string
	Start        time.Time
	InviteeName  string
	InviteeEmail string
}

type BookResult struct {
	Meeting             model.Meeting
	EventType           model.EventType
	CancelToken         string
	PaymentClientSecret string
}

// BookSlot validates the requested interval against live availability data
// and inserts the meeting. The resolver output a client used to pick the
// slot may be stale; everything is re-checked here before commit.
func (s *Service) BookSlot(ctx context.Context, req BookRequest) (BookResult, error) {
	et, err := s.eventTypes.GetByID(ctx, req.EventTypeID)
	if err != nil {
		if storage.IsNotFound(err) {
			return BookResult{}, apperror.NotFound("event type")
		}
		return BookResult{}, err
	}

	host, err := s.users.GetByID(ctx, et.UserID)
	if err != nil {
		return BookResult{}, err
	}
	loc, err := time.LoadLocation(host.Timezone)
	if err != nil {
		return BookResult{}, fmt.Errorf("host timezone %q: %w", host.Timezone, err)
	}

	now := s.now().UTC()
	start := req.Start.UTC()
	if !start.After(now) {
		return BookResult{}, apperror.Validation("start_time must be in the future")
	}
	duration := time.Duration(et.DurationMins) * time.Minute
	end := start.Add(duration)

	if err := s.validateSlot(ctx, host.ID, et, loc, start, now); err != nil {
		return BookResult{}, err
	}

	cancelToken, err := sessions.NewToken()
	if err != nil {
		return BookResult{}, err
	}

	meeting := model.Meeting{
		ID:              uuid.NewString(),
		EventTypeID:     et.ID,
		HostID:          host.ID,
		InviteeName:     req.InviteeName,
		InviteeEmail:    req.InviteeEmail,
		StartTime:       start,
		EndTime:         end,
		Status:          model.MeetingScheduled,
		CancelTokenHash: sessions.HashToken(cancelToken),
	}

	var clientSecret string
	booked := false
	if et.PriceCents > 0 {
		if s.payments == nil {
			return BookResult{}, apperror.Validation("this event type requires payment, which is not enabled")
		}
		intent, err := s.payments.CreateIntent(ctx, et.PriceCents, et.Currency,
			fmt.Sprintf("%s with %s", et.Name, host.Name), req.InviteeEmail)
		if err != nil {
			return BookResult{}, fmt.Errorf("create payment intent: %w", err)
		}
		meeting.PaymentIntentID = intent.ID
		meeting.PaymentStatus = model.PaymentPending
		clientSecret = intent.ClientSecret
		// The intent exists before the insert; void it when the booking
		// fails so the invitee is never left with a payable orphan.
		defer func() {
			if !booked {
				s.releaseIntent(ctx, intent.ID)
			}
		}()
	}

	tx, err := s.meetings.Begin(ctx)
	if err != nil {
		return BookResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := s.meetings.Create(ctx, tx, &meeting); err != nil {
		if storage.IsConflict(err) {
			return BookResult{}, apperror.SlotUnavailable()
		}
		return BookResult{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"meeting_id":    meeting.ID,
		"event_name":    et.Name,
		"host_name":     host.Name,
		"host_email":    host.Email,
		"invitee_name":  meeting.InviteeName,
		"invitee_email": meeting.InviteeEmail,
		"start_time":    meeting.StartTime.Format(time.RFC3339),
		"end_time":      meeting.EndTime.Format(time.RFC3339),
		"cancel_token":  cancelToken,
	})
	if err != nil {
		return BookResult{}, err
	}
	if err := s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "meeting",
		AggregateID:   meeting.ID,
		EventType:     "meeting.booked.v1",
		Payload:       payload,
	}); err != nil {
		return BookResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return BookResult{}, err
	}
	booked = true

	s.attachMeetingLink(ctx, &meeting, et)

	return BookResult{
		Meeting:             meeting,
		EventType:           et,
		CancelToken:         cancelToken,
		PaymentClientSecret: clientSecret,
	}, nil
}

// validateSlot recomputes the resolver's output for the requested day from
// live data and requires the interval to be one of the offered slots.
func (s *Service) validateSlot(ctx context.Context, hostID string, et model.EventType, loc *time.Location, start time.Time, now time.Time) error {
	localStart := start.In(loc)
	dayStart := time.Date(localStart.Year(), localStart.Month(), localStart.Day(), 0, 0, 0, 0, loc)
	dayEnd := time.Date(localStart.Year(), localStart.Month(), localStart.Day()+1, 0, 0, 0, 0, loc)

	rules, err := s.rules.ListByUser(ctx, hostID)
	if err != nil {
		return err
	}
	busy, err := s.meetings.ListScheduledIntervals(ctx, hostID, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return err
	}
	busyIntervals := make([]availability.Interval, 0, len(busy))
	for _, m := range busy {
		busyIntervals = append(busyIntervals, availability.Interval{Start: m.StartTime, End: m.EndTime})
	}

	slots := availability.Slots(availability.Input{
		Rules:    rules,
		Location: loc,
		Duration: time.Duration(et.DurationMins) * time.Minute,
		Busy:     busyIntervals,
		From:     dayStart.UTC(),
		To:       dayEnd.UTC(),
		Now:      now,
	})
	for _, slot := range slots {
		if slot.Start.Equal(start) {
			return nil
		}
	}
	return apperror.SlotUnavailable()
}

func (s *Service) releaseIntent(ctx context.Context, intentID string) {
	if err := s.payments.CancelIntent(ctx, intentID); err != nil {
		s.logger.Warn("failed to cancel payment intent for failed booking", "intent_id", intentID, "err", err)
	}
}

// attachMeetingLink is post-commit and best-effort: the booking stands even
// when the calendar provider is unreachable.
func (s *Service) attachMeetingLink(ctx context.Context, meeting *model.Meeting, et model.EventType) {
	if s.calendar == nil || et.LocationKind != model.LocationGoogleMeet {
		return
	}
	connected, err := s.calendar.Connected(ctx, meeting.HostID)
	if err != nil || !connected {
		if err != nil {
			s.logger.Warn("calendar connection lookup failed", "err", err)
		}
		return
	}
	link, err := s.calendar.ScheduleMeeting(ctx, meeting.HostID, *meeting, et.Name)
	if err != nil {
		s.logger.Warn("calendar event creation failed", "meeting_id", meeting.ID, "err", err)
		return
	}
	if link == "" {
		return
	}
	if err := s.meetings.SetMeetingLink(ctx, meeting.ID, link); err != nil {
		s.logger.Warn("failed to store meeting link", "meeting_id", meeting.ID, "err", err)
		return
	}
	meeting.MeetingLink = link
}

// Actor identifies who is cancelling: an authenticated host (UserID) or an
// invitee presenting the cancel token issued at booking time.
type Actor struct {
	UserID      string
	CancelToken string
}

// authorizeCancel returns who is performing the cancellation, or Forbidden
// when the actor is neither the host nor the token-holding invitee.
func authorizeCancel(meeting model.Meeting, actor Actor) (string, error) {
	if actor.UserID != "" && actor.UserID == meeting.HostID {
		return "host", nil
	}
	if actor.CancelToken != "" && sessions.HashToken(actor.CancelToken) == meeting.CancelTokenHash {
		return "invitee", nil
	}
	return "", apperror.Forbidden("only the host or the invitee may cancel this meeting")
}

// cancelOutcome decides a cancel request against a loaded meeting row:
// who is cancelling, and whether the meeting is already cancelled so the
// call should return the existing state untouched.
func cancelOutcome(meeting model.Meeting, actor Actor) (cancelledBy string, alreadyCancelled bool, err error) {
	cancelledBy, err = authorizeCancel(meeting, actor)
	if err != nil {
		return "", false, err
	}
	return cancelledBy, meeting.Status == model.MeetingCancelled, nil
}

// CancelMeeting marks the meeting cancelled, keeping the row for audit.
// Repeating the call on an already-cancelled meeting returns the existing
// state rather than double-processing.
func (s *Service) CancelMeeting(ctx context.Context, meetingID string, actor Actor, reason string) (model.Meeting, error) {
	tx, err := s.meetings.Begin(ctx)
	if err != nil {
		return model.Meeting{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	meeting, err := s.meetings.GetForUpdate(ctx, tx, meetingID)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Meeting{}, apperror.NotFound("meeting")
		}
		return model.Meeting{}, err
	}

	cancelledBy, alreadyCancelled, err := cancelOutcome(meeting, actor)
	if err != nil {
		return model.Meeting{}, err
	}
	if alreadyCancelled {
		return meeting, nil
	}

	cancelledAt, err := s.meetings.Cancel(ctx, tx, meeting.ID, reason)
	if err != nil {
		return model.Meeting{}, err
	}

	et, err := s.eventTypes.GetByID(ctx, meeting.EventTypeID)
	if err != nil {
		return model.Meeting{}, err
	}
	host, err := s.users.GetByID(ctx, meeting.HostID)
	if err != nil {
		return model.Meeting{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"meeting_id":    meeting.ID,
		"event_name":    et.Name,
		"host_email":    host.Email,
		"invitee_name":  meeting.InviteeName,
		"invitee_email": meeting.InviteeEmail,
		"start_time":    meeting.StartTime.Format(time.RFC3339),
		"reason":        reason,
		"cancelled_by":  cancelledBy,
	})
	if err != nil {
		return model.Meeting{}, err
	}
	if err := s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "meeting",
		AggregateID:   meeting.ID,
		EventType:     "meeting.cancelled.v1",
		Payload:       payload,
	}); err != nil {
		return model.Meeting{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Meeting{}, err
	}

	meeting.Status = model.MeetingCancelled
	meeting.CancelledAt = &cancelledAt
	meeting.CancelReason = reason
	return meeting, nil
}
