package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meetsync/meetsync/internal/apperror"
	"github.com/meetsync/meetsync/internal/model"
	"github.com/meetsync/meetsync/internal/sessions"
	"github.com/meetsync/meetsync/internal/storage"
	"github.com/meetsync/meetsync/libs/auth"
	"golang.org/x/crypto/bcrypt"
)

type AuthHandler struct {
	signer     *auth.Signer
	users      *storage.UserRepository
	refresh    *sessions.RefreshRepository
	refreshTTL time.Duration
}

func NewAuthHandler(signer *auth.Signer, users *storage.UserRepository, refresh *sessions.RefreshRepository, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{signer: signer, users: users, refresh: refresh, refreshTTL: refreshTTL}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Timezone string `json:"timezone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Timezone string `json:"timezone"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.Validation("invalid json body"))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Password = strings.TrimSpace(req.Password)
	req.Timezone = strings.TrimSpace(req.Timezone)
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeError(w, apperror.Validation("name, email and password are required"))
		return
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		writeError(w, apperror.Validation("unknown timezone %q", req.Timezone))
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	user := model.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Timezone:     req.Timezone,
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		if storage.IsUniqueViolation(err) {
			writeError(w, apperror.Conflict("email already registered"))
			return
		}
		writeError(w, err)
		return
	}

	h.issueSession(r.Context(), w, user, http.StatusCreated)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.Validation("invalid json body"))
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, apperror.Validation("email and password are required"))
		return
	}

	user, err := h.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, apperror.Unauthorized("invalid credentials"))
			return
		}
		writeError(w, err)
		return
	}
	if err := verifyPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, apperror.Unauthorized("invalid credentials"))
		return
	}

	h.issueSession(r.Context(), w, user, http.StatusOK)
}

// Refresh rotates the refresh token: the presented token is revoked and a
// fresh pair is issued, so a stolen token stops working after first use.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.Validation("invalid json body"))
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		writeError(w, apperror.Validation("refresh_token is required"))
		return
	}

	record, err := h.refresh.Lookup(r.Context(), req.RefreshToken)
	if err != nil {
		if sessions.IsNotFound(err) {
			writeError(w, apperror.Unauthorized("invalid refresh token"))
			return
		}
		writeError(w, err)
		return
	}
	if !record.Active(time.Now()) {
		writeError(w, apperror.Unauthorized("refresh token expired"))
		return
	}

	user, err := h.users.GetByID(r.Context(), record.UserID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, apperror.Unauthorized("invalid refresh token"))
			return
		}
		writeError(w, err)
		return
	}

	if err := h.refresh.Revoke(r.Context(), record.ID); err != nil {
		writeError(w, err)
		return
	}

	h.issueSession(r.Context(), w, user, http.StatusOK)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.Validation("invalid json body"))
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		writeError(w, apperror.Validation("refresh_token is required"))
		return
	}

	record, err := h.refresh.Lookup(r.Context(), req.RefreshToken)
	if err != nil {
		if sessions.IsNotFound(err) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeError(w, err)
		return
	}
	if record.RevokedAt == nil {
		if err := h.refresh.Revoke(r.Context(), record.ID); err != nil {
			writeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me serves the authenticated profile on GET and updates name/timezone on PATCH.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := authedUserID(r)
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, apperror.NotFound("user"))
			return
		}
		writeError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
	case http.MethodPatch:
		var req struct {
			Name     string `json:"name"`
			Timezone string `json:"timezone"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperror.Validation("invalid json body"))
			return
		}
		if name := strings.TrimSpace(req.Name); name != "" {
			user.Name = name
		}
		if tz := strings.TrimSpace(req.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				writeError(w, apperror.Validation("unknown timezone %q", tz))
				return
			}
			user.Timezone = tz
		}
		if err := h.users.UpdateProfile(r.Context(), user.ID, user.Name, user.Timezone); err != nil {
			writeError(w, err)
			return
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		UserID:   user.ID,
		Name:     user.Name,
		Email:    user.Email,
		Timezone: user.Timezone,
	})
}

func (h *AuthHandler) issueSession(ctx context.Context, w http.ResponseWriter, user model.User, status int) {
	access, err := h.signer.Sign(user.ID, user.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	raw, err := sessions.NewToken()
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.refresh.Create(ctx, user.ID, raw, time.Now().Add(h.refreshTTL)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, tokenResponse{
		AccessToken:  access,
		RefreshToken: raw,
		TokenType:    "Bearer",
	})
}

func hashPassword(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(hash string, raw string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw))
}
