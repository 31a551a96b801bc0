package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meetsync/meetsync/internal/apperror"
	"github.com/meetsync/meetsync/internal/model"
	"github.com/meetsync/meetsync/internal/storage"
)

type EventTypeHandler struct {
	eventTypes *storage.EventTypeRepository
}

func NewEventTypeHandler(eventTypes *storage.EventTypeRepository) *EventTypeHandler {
	return &EventTypeHandler{eventTypes: eventTypes}
}

type createEventTypeRequest struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Description  string `json:"description"`
	DurationMins int    `json:"duration_mins"`
	LocationKind string `json:"location_kind"`
	PriceCents   int64  `json:"price_cents"`
	Currency     string `json:"currency"`
	IsPrivate    bool   `json:"is_private"`
}

type eventTypeResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	Description  string `json:"description,omitempty"`
	DurationMins int    `json:"duration_mins"`
	LocationKind string `json:"location_kind"`
	PriceCents   int64  `json:"price_cents,omitempty"`
	Currency     string `json:"currency,omitempty"`
	IsPrivate    bool   `json:"is_private"`
	CreatedAt    string `json:"created_at"`
}

func toEventTypeResponse(et model.EventType) eventTypeResponse {
	return eventTypeResponse{
		ID:           et.ID,
		Name:         et.Name,
		Slug:         et.Slug,
		Description:  et.Description,
		DurationMins: et.DurationMins,
		LocationKind: et.LocationKind,
		PriceCents:   et.PriceCents,
		Currency:     et.Currency,
		IsPrivate:    et.IsPrivate,
		CreatedAt:    et.CreatedAt.Format(time.RFC3339),
	}
}

// Collection serves /api/v1/event-types: GET lists the host's event types,
// POST creates one.
func (h *EventTypeHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Item serves /api/v1/event-types/{id}: GET fetches, PATCH toggles privacy,
// DELETE removes the event type when no meetings reference it.
func (h *EventTypeHandler) Item(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, apperror.Validation("event type id is required"))
		return
	}
	if !validUUID(id) {
		writeError(w, apperror.NotFound("event type"))
		return
	}
	userID := authedUserID(r)

	switch r.Method {
	case http.MethodGet:
		et, err := h.eventTypes.GetByID(r.Context(), id)
		if err != nil {
			if storage.IsNotFound(err) {
				writeError(w, apperror.NotFound("event type"))
				return
			}
			writeError(w, err)
			return
		}
		if et.UserID != userID {
			writeError(w, apperror.Forbidden("event type belongs to another user"))
			return
		}
		writeJSON(w, http.StatusOK, toEventTypeResponse(et))
	case http.MethodPatch:
		var req struct {
			IsPrivate *bool `json:"is_private"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperror.Validation("invalid json body"))
			return
		}
		if req.IsPrivate == nil {
			writeError(w, apperror.Validation("is_private is required"))
			return
		}
		ok, err := h.eventTypes.SetPrivacy(r.Context(), id, userID, *req.IsPrivate)
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			writeError(w, apperror.NotFound("event type"))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		ok, err := h.eventTypes.Delete(r.Context(), id, userID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			writeError(w, apperror.Conflict("event type has meetings or does not exist"))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *EventTypeHandler) list(w http.ResponseWriter, r *http.Request) {
	eventTypes, err := h.eventTypes.ListByUser(r.Context(), authedUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]eventTypeResponse, 0, len(eventTypes))
	for _, et := range eventTypes {
		out = append(out, toEventTypeResponse(et))
	}
	writeJSON(w, http.StatusOK, out)
}

var validLocationKinds = map[string]bool{
	model.LocationGoogleMeet: true,
	model.LocationPhone:      true,
	model.LocationInPerson:   true,
}

func (h *EventTypeHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createEventTypeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.Validation("invalid json body"))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Slug = strings.TrimSpace(req.Slug)
	req.Currency = strings.ToLower(strings.TrimSpace(req.Currency))

	if req.Name == "" {
		writeError(w, apperror.Validation("name is required"))
		return
	}
	if req.DurationMins <= 0 || req.DurationMins > 24*60 {
		writeError(w, apperror.Validation("duration_mins must be between 1 and 1440"))
		return
	}
	if req.LocationKind == "" {
		req.LocationKind = model.LocationGoogleMeet
	}
	if !validLocationKinds[req.LocationKind] {
		writeError(w, apperror.Validation("unknown location_kind %q", req.LocationKind))
		return
	}
	if req.PriceCents < 0 {
		writeError(w, apperror.Validation("price_cents must not be negative"))
		return
	}
	if req.PriceCents > 0 && req.Currency == "" {
		writeError(w, apperror.Validation("currency is required for paid event types"))
		return
	}
	if req.Slug == "" {
		req.Slug = slugify(req.Name)
	}
	if !slugPattern.MatchString(req.Slug) {
		writeError(w, apperror.Validation("slug may only contain lowercase letters, digits and hyphens"))
		return
	}

	et := model.EventType{
		ID:           uuid.NewString(),
		UserID:       authedUserID(r),
		Name:         req.Name,
		Slug:         req.Slug,
		Description:  strings.TrimSpace(req.Description),
		DurationMins: req.DurationMins,
		LocationKind: req.LocationKind,
		PriceCents:   req.PriceCents,
		Currency:     req.Currency,
		IsPrivate:    req.IsPrivate,
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.eventTypes.Create(r.Context(), et); err != nil {
		if storage.IsUniqueViolation(err) {
			writeError(w, apperror.Conflict("an event type with this slug already exists"))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventTypeResponse(et))
}

var (
	slugPattern    = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
	nonSlugChars   = regexp.MustCompile(`[^a-z0-9]+`)
	trailingHyphen = regexp.MustCompile(`^-+|-+$`)
)

func slugify(name string) string {
	s := nonSlugChars.ReplaceAllString(strings.ToLower(name), "-")
	return trailingHyphen.ReplaceAllString(s, "")
}
