package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/meetsync/meetsync/internal/apperror"
	"github.com/meetsync/meetsync/internal/booking"
	"github.com/meetsync/meetsync/internal/model"
	"github.com/meetsync/meetsync/internal/storage"
)

type MeetingHandler struct {
	meetings *storage.MeetingRepository
	booking  *booking.Service
}

func NewMeetingHandler(meetings *storage.MeetingRepository, bookingSvc *booking.Service) *MeetingHandler {
	return &MeetingHandler{meetings: meetings, booking: bookingSvc}
}

type meetingResponse struct {
	ID           string `json:"id"`
	EventTypeID  string `json:"event_type_id"`
	InviteeName  string `json:"invitee_name"`
	InviteeEmail string `json:"invitee_email"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Status       string `json:"status"`
	MeetingLink  string `json:"meeting_link,omitempty"`
	CancelledAt  string `json:"cancelled_at,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`
}

func toMeetingResponse(m model.Meeting) meetingResponse {
	out := meetingResponse{
		ID:           m.ID,
		EventTypeID:  m.EventTypeID,
		InviteeName:  m.InviteeName,
		InviteeEmail: m.InviteeEmail,
		StartTime:    m.StartTime.UTC().Format(time.RFC3339),
		EndTime:      m.EndTime.UTC().Format(time.RFC3339),
		Status:       m.Status,
		MeetingLink:  m.MeetingLink,
		CancelReason: m.CancelReason,
	}
	if m.CancelledAt != nil {
		out.CancelledAt = m.CancelledAt.UTC().Format(time.RFC3339)
	}
	return out
}

// List serves /api/v1/meetings?filter=upcoming|past|cancelled for the
// authenticated host. The default filter is upcoming.
func (h *MeetingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter := r.URL.Query().Get("filter")
	if filter == "" {
		filter = "upcoming"
	}
	switch filter {
	case "upcoming", "past", "cancelled":
	default:
		writeError(w, apperror.Validation("filter must be upcoming, past or cancelled"))
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, apperror.Validation("limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	meetings, err := h.meetings.ListByHost(r.Context(), authedUserID(r), filter, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]meetingResponse, 0, len(meetings))
	for _, m := range meetings {
		out = append(out, toMeetingResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

type hostCancelRequest struct {
	MeetingID string `json:"meeting_id"`
	Reason    string `json:"reason"`
}

// Cancel lets the authenticated host cancel one of their meetings.
func (h *MeetingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req hostCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.Validation("invalid json body"))
		return
	}
	req.MeetingID = strings.TrimSpace(req.MeetingID)
	if req.MeetingID == "" {
		writeError(w, apperror.Validation("meeting_id is required"))
		return
	}
	if !validUUID(req.MeetingID) {
		writeError(w, apperror.NotFound("meeting"))
		return
	}

	meeting, err := h.booking.CancelMeeting(r.Context(), req.MeetingID,
		booking.Actor{UserID: authedUserID(r)}, strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMeetingResponse(meeting))
}
