package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/meetsync/meetsync/internal/inbox"
	"github.com/meetsync/meetsync/internal/model"
	"github.com/meetsync/meetsync/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// PaymentWebhookHandler receives Stripe webhooks and settles the payment
// status of paid meetings. Signature verification is the authentication;
// no JWT is involved.
type PaymentWebhookHandler struct {
	meetings  *storage.MeetingRepository
	inbox     *inbox.Repository
	logger    *slog.Logger
	secret    string
	tolerance time.Duration
}

func NewPaymentWebhookHandler(meetings *storage.MeetingRepository, inboxRepo *inbox.Repository, logger *slog.Logger, secret string) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{
		meetings:  meetings,
		inbox:     inboxRepo,
		logger:    logger,
		secret:    secret,
		tolerance: 5 * time.Minute,
	}
}

func (h *PaymentWebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(h.secret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.secret, h.tolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	// Stripe retries delivery; replayed events are acknowledged and dropped.
	fresh, err := h.inbox.Record(r.Context(), evt.ID, string(evt.Type))
	if err != nil {
		http.Error(w, "failed to record event", http.StatusInternalServerError)
		return
	}
	if !fresh {
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	switch evt.Type {
	case "payment_intent.succeeded":
		h.settleIntent(w, r, evt, model.PaymentPaid)
	case "payment_intent.payment_failed":
		h.settleIntent(w, r, evt, model.PaymentFailed)
	default:
		h.logger.Info("stripe event ignored", "event_type", evt.Type, "event_id", evt.ID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

func (h *PaymentWebhookHandler) settleIntent(w http.ResponseWriter, r *http.Request, evt stripe.Event, status string) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
		h.logger.Error("stripe: invalid payment intent payload", "err", err, "event_id", evt.ID)
		http.Error(w, "invalid payment intent payload", http.StatusBadRequest)
		return
	}

	matched, err := h.meetings.SetPaymentStatusByIntent(r.Context(), intent.ID, status)
	if err != nil {
		http.Error(w, "failed to update payment status", http.StatusInternalServerError)
		return
	}
	if !matched {
		h.logger.Warn("stripe: no meeting for payment intent", "payment_intent_id", intent.ID)
	} else {
		h.logger.Info("payment status updated", "payment_intent_id", intent.ID, "payment_status", status)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
