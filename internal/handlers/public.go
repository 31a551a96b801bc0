package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/meetsync/meetsync/internal/apperror"
	"github.com/meetsync/meetsync/internal/availability"
	"github.com/meetsync/meetsync/internal/booking"
	"github.com/meetsync/meetsync/internal/storage"
)

// maxSlotRange caps how far ahead a single slots query may look. It bounds
// the resolver's work per request.
const maxSlotRange = 60 * 24 * time.Hour

// PublicHandler serves the unauthenticated booking surface: invitees browse
// event types, list open slots, book, and cancel with their token.
type PublicHandler struct {
	users      *storage.UserRepository
	eventTypes *storage.EventTypeRepository
	rules      *storage.AvailabilityRepository
	meetings   *storage.MeetingRepository
	booking    *booking.Service
}

func NewPublicHandler(
	users *storage.UserRepository,
	eventTypes *storage.EventTypeRepository,
	rules *storage.AvailabilityRepository,
	meetings *storage.MeetingRepository,
	bookingSvc *booking.Service,
) *PublicHandler {
	return &PublicHandler{
		users:      users,
		eventTypes: eventTypes,
		rules:      rules,
		meetings:   meetings,
		booking:    bookingSvc,
	}
}

type publicEventTypeResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Description  string `json:"description,omitempty"`
	DurationMins int    `json:"duration_mins"`
	LocationKind string `json:"location_kind"`
	PriceCents   int64  `json:"price_cents,omitempty"`
	Currency     string `json:"currency,omitempty"`
	HostName     string `json:"host_name"`
}

// EventTypes serves /api/v1/public/event-types?host={user_id}. Private event
// types never appear here.
func (h *PublicHandler) EventTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hostID := strings.TrimSpace(r.URL.Query().Get("host"))
	if hostID == "" {
		writeError(w, apperror.Validation("host query parameter is required"))
		return
	}
	if !validUUID(hostID) {
		writeError(w, apperror.NotFound("host"))
		return
	}
	host, err := h.users.GetByID(r.Context(), hostID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, apperror.NotFound("host"))
			return
		}
		writeError(w, err)
		return
	}

	eventTypes, err := h.eventTypes.ListPublicByUser(r.Context(), host.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]publicEventTypeResponse, 0, len(eventTypes))
	for _, et := range eventTypes {
		out = append(out, publicEventTypeResponse{
			ID:           et.ID,
			Name:         et.Name,
			Slug:         et.Slug,
			Description:  et.Description,
			DurationMins: et.DurationMins,
			LocationKind: et.LocationKind,
			PriceCents:   et.PriceCents,
			Currency:     et.Currency,
			HostName:     host.Name,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Slots serves /api/v1/public/slots?event_type_id&from&to&timezone. Slot
// bounds are RFC 3339; the optional timezone renders the returned times in
// the invitee's zone instead of UTC.
func (h *PublicHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	eventTypeID := strings.TrimSpace(q.Get("event_type_id"))
	if eventTypeID == "" {
		writeError(w, apperror.Validation("event_type_id is required"))
		return
	}
	if !validUUID(eventTypeID) {
		writeError(w, apperror.NotFound("event type"))
		return
	}
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		writeError(w, apperror.Validation("from must be RFC 3339"))
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		writeError(w, apperror.Validation("to must be RFC 3339"))
		return
	}
	if !to.After(from) {
		writeError(w, apperror.Validation("to must be after from"))
		return
	}
	if to.Sub(from) > maxSlotRange {
		writeError(w, apperror.Validation("range may span at most 60 days"))
		return
	}
	display := time.UTC
	if tz := strings.TrimSpace(q.Get("timezone")); tz != "" {
		display, err = time.LoadLocation(tz)
		if err != nil {
			writeError(w, apperror.Validation("unknown timezone %q", tz))
			return
		}
	}

	et, err := h.eventTypes.GetByID(r.Context(), eventTypeID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, apperror.NotFound("event type"))
			return
		}
		writeError(w, err)
		return
	}
	host, err := h.users.GetByID(r.Context(), et.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	loc, err := time.LoadLocation(host.Timezone)
	if err != nil {
		writeError(w, err)
		return
	}

	rules, err := h.rules.ListByUser(r.Context(), host.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	scheduled, err := h.meetings.ListScheduledIntervals(r.Context(), host.ID, from.UTC(), to.UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	busy := make([]availability.Interval, 0, len(scheduled))
	for _, m := range scheduled {
		busy = append(busy, availability.Interval{Start: m.StartTime, End: m.EndTime})
	}

	slots := availability.Slots(availability.Input{
		Rules:    rules,
		Location: loc,
		Duration: time.Duration(et.DurationMins) * time.Minute,
		Busy:     busy,
		From:     from.UTC(),
		To:       to.UTC(),
		Now:      time.Now().UTC(),
	})

	out := make([]slotItem, 0, len(slots))
	for _, slot := range slots {
		out = append(out, slotItem{
			StartTime: slot.Start.In(display).Format(time.RFC3339),
			EndTime:   slot.End.In(display).Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"timezone": display.String(),
		"slots":    out,
	})
}

type publicBookRequest struct {
	EventTypeID  string `json:"event_type_id"`
	StartTime    string `json:"start_time"`
	InviteeName  string `json:"invitee_name"`
	InviteeEmail string `json:"invitee_email"`
}

type publicBookResponse struct {
	MeetingID           string `json:"meeting_id"`
	EventName           string `json:"event_name"`
	StartTime           string `json:"start_time"`
	EndTime             string `json:"end_time"`
	MeetingLink         string `json:"meeting_link,omitempty"`
	CancelToken         string `json:"cancel_token"`
	PaymentClientSecret string `json:"payment_client_secret,omitempty"`
}

// Book serves POST /api/v1/public/book.
func (h *PublicHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req publicBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.Validation("invalid json body"))
		return
	}
	req.EventTypeID = strings.TrimSpace(req.EventTypeID)
	req.InviteeName = strings.TrimSpace(req.InviteeName)
	req.InviteeEmail = strings.ToLower(strings.TrimSpace(req.InviteeEmail))
	if req.EventTypeID == "" || req.InviteeName == "" || req.InviteeEmail == "" {
		writeError(w, apperror.Validation("event_type_id, invitee_name and invitee_email are required"))
		return
	}
	if !validUUID(req.EventTypeID) {
		writeError(w, apperror.NotFound("event type"))
		return
	}
	if !strings.Contains(req.InviteeEmail, "@") {
		writeError(w, apperror.Validation("invitee_email is not a valid address"))
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		writeError(w, apperror.Validation("start_time must be RFC 3339"))
		return
	}

	result, err := h.booking.BookSlot(r.Context(), booking.BookRequest{
		EventTypeID:  req.EventTypeID,
		Start:        start,
		InviteeName:  req.InviteeName,
		InviteeEmail: req.InviteeEmail,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, publicBookResponse{
		MeetingID:           result.Meeting.ID,
		EventName:           result.EventType.Name,
		StartTime:           result.Meeting.StartTime.UTC().Format(time.RFC3339),
		EndTime:             result.Meeting.EndTime.UTC().Format(time.RFC3339),
		MeetingLink:         result.Meeting.MeetingLink,
		CancelToken:         result.CancelToken,
		PaymentClientSecret: result.PaymentClientSecret,
	})
}

type publicCancelRequest struct {
	MeetingID   string `json:"meeting_id"`
	CancelToken string `json:"cancel_token"`
	Reason      string `json:"reason"`
}

// Cancel serves POST /api/v1/public/meetings/cancel using the token issued
// at booking time.
func (h *PublicHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req publicCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.Validation("invalid json body"))
		return
	}
	req.MeetingID = strings.TrimSpace(req.MeetingID)
	req.CancelToken = strings.TrimSpace(req.CancelToken)
	if req.MeetingID == "" || req.CancelToken == "" {
		writeError(w, apperror.Validation("meeting_id and cancel_token are required"))
		return
	}
	if !validUUID(req.MeetingID) {
		writeError(w, apperror.NotFound("meeting"))
		return
	}

	meeting, err := h.booking.CancelMeeting(r.Context(), req.MeetingID,
		booking.Actor{CancelToken: req.CancelToken}, strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMeetingResponse(meeting))
}
