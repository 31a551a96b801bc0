package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meetsync/meetsync/internal/apperror"
	"github.com/meetsync/meetsync/internal/model"
	"github.com/meetsync/meetsync/internal/storage"
)

type AvailabilityHandler struct {
	rules *storage.AvailabilityRepository
}

func NewAvailabilityHandler(rules *storage.AvailabilityRepository) *AvailabilityHandler {
	return &AvailabilityHandler{rules: rules}
}

type weeklyRule struct {
	Weekday     int `json:"weekday"`
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

type overrideRequest struct {
	Date        string `json:"date"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
}

type ruleResponse struct {
	ID          string `json:"id"`
	Weekday     *int   `json:"weekday,omitempty"`
	Date        string `json:"date,omitempty"`
	StartMinute int    `json:"start_minute"`
	EndMinute   int    `json:"end_minute"`
}

func toRuleResponse(rule model.AvailabilityRule) ruleResponse {
	out := ruleResponse{
		ID:          rule.ID,
		StartMinute: rule.StartMinute,
		EndMinute:   rule.EndMinute,
	}
	if rule.IsOverride() {
		out.Date = rule.Date.Format("2006-01-02")
	} else {
		weekday := rule.Weekday
		out.Weekday = &weekday
	}
	return out
}

// Weekly serves /api/v1/availability: GET returns all rules (weekly template
// plus overrides), PUT replaces the weekly template atomically.
func (h *AvailabilityHandler) Weekly(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rules, err := h.rules.ListByUser(r.Context(), authedUserID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		weekly := make([]ruleResponse, 0)
		overrides := make([]ruleResponse, 0)
		for _, rule := range rules {
			if rule.IsOverride() {
				overrides = append(overrides, toRuleResponse(rule))
			} else {
				weekly = append(weekly, toRuleResponse(rule))
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"weekly":    weekly,
			"overrides": overrides,
		})
	case http.MethodPut:
		h.replaceWeekly(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AvailabilityHandler) replaceWeekly(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rules []weeklyRule `json:"rules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.Validation("invalid json body"))
		return
	}

	userID := authedUserID(r)
	rules := make([]model.AvailabilityRule, 0, len(req.Rules))
	for _, in := range req.Rules {
		if in.Weekday < 0 || in.Weekday > 6 {
			writeError(w, apperror.Validation("weekday must be between 0 (Sunday) and 6 (Saturday)"))
			return
		}
		if err := validateWindow(in.StartMinute, in.EndMinute); err != nil {
			writeError(w, err)
			return
		}
		rules = append(rules, model.AvailabilityRule{
			ID:          uuid.NewString(),
			UserID:      userID,
			Weekday:     in.Weekday,
			StartMinute: in.StartMinute,
			EndMinute:   in.EndMinute,
		})
	}

	if err := h.rules.ReplaceWeekly(r.Context(), userID, rules); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Overrides serves /api/v1/availability/overrides: POST adds a date override
// (equal start and end minutes of zero block the whole day), DELETE removes one.
func (h *AvailabilityHandler) Overrides(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createOverride(w, r)
	case http.MethodDelete:
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		if id == "" {
			writeError(w, apperror.Validation("id query parameter is required"))
			return
		}
		if !validUUID(id) {
			writeError(w, apperror.NotFound("availability override"))
			return
		}
		ok, err := h.rules.DeleteOverride(r.Context(), id, authedUserID(r))
		if err != nil {
			writeError(w, err)
			return
		}
		if !ok {
			writeError(w, apperror.NotFound("availability override"))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *AvailabilityHandler) createOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.Validation("invalid json body"))
		return
	}
	date, err := time.Parse("2006-01-02", strings.TrimSpace(req.Date))
	if err != nil {
		writeError(w, apperror.Validation("date must be formatted YYYY-MM-DD"))
		return
	}
	blocking := req.StartMinute == 0 && req.EndMinute == 0
	if !blocking {
		if err := validateWindow(req.StartMinute, req.EndMinute); err != nil {
			writeError(w, err)
			return
		}
	}

	rule := model.AvailabilityRule{
		ID:          uuid.NewString(),
		UserID:      authedUserID(r),
		Weekday:     -1,
		Date:        &date,
		StartMinute: req.StartMinute,
		EndMinute:   req.EndMinute,
	}
	if err := h.rules.Create(r.Context(), rule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleResponse(rule))
}

func validateWindow(startMinute, endMinute int) error {
	if startMinute < 0 || endMinute > 24*60 {
		return apperror.Validation("minutes must be between 0 and 1440")
	}
	if endMinute <= startMinute {
		return apperror.Validation("end_minute must be after start_minute")
	}
	return nil
}
