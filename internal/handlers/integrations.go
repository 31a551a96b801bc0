package handlers

import (
	"net/http"
	"time"

	"github.com/meetsync/meetsync/internal/apperror"
	"github.com/meetsync/meetsync/internal/integration"
	"github.com/meetsync/meetsync/libs/auth"
)

type IntegrationHandler struct {
	repo   *integration.Repository
	google *integration.GoogleCalendar
	// stateSigner issues short-lived tokens carried through the OAuth
	// redirect so the callback can recover which user initiated the flow.
	stateSigner *auth.Signer
}

func NewIntegrationHandler(repo *integration.Repository, google *integration.GoogleCalendar, secret string) *IntegrationHandler {
	return &IntegrationHandler{
		repo:        repo,
		google:      google,
		stateSigner: auth.NewSigner(secret, 10*time.Minute),
	}
}

type integrationItem struct {
	Provider    string `json:"provider"`
	ConnectedAt string `json:"connected_at"`
}

// List serves GET /api/v1/integrations for the authenticated host.
func (h *IntegrationHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	integrations, err := h.repo.ListByUser(r.Context(), authedUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]integrationItem, 0, len(integrations))
	for _, in := range integrations {
		out = append(out, integrationItem{
			Provider:    in.Provider,
			ConnectedAt: in.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GoogleConnect returns the Google consent URL. The OAuth state parameter is
// a short-lived signed token identifying the user.
func (h *IntegrationHandler) GoogleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.google == nil {
		writeError(w, apperror.NotFound("google calendar integration"))
		return
	}

	state, err := h.stateSigner.Sign(authedUserID(r), "")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"auth_url": h.google.AuthURL(state),
	})
}

// GoogleCallback is the OAuth redirect target. It is unauthenticated; the
// state token carries the user identity.
func (h *IntegrationHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.google == nil {
		writeError(w, apperror.NotFound("google calendar integration"))
		return
	}

	q := r.URL.Query()
	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		writeError(w, apperror.Validation("code and state are required"))
		return
	}
	claims, err := h.stateSigner.Verify(state)
	if err != nil {
		writeError(w, apperror.Unauthorized("invalid state token"))
		return
	}

	if err := h.google.Exchange(r.Context(), claims.Subject, code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"provider": integration.ProviderGoogle,
		"status":   "connected",
	})
}
