package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/meetsync/meetsync/internal/apperror"
	"github.com/meetsync/meetsync/libs/auth"
)

func TestPasswordHashing(t *testing.T) {
	const password = "correct horse battery staple"

	first, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := hashPassword(password)
	if err != nil {
		t.Fatalf("hash again: %v", err)
	}
	if first == second {
		t.Fatal("bcrypt salting should produce distinct hashes")
	}
	for _, hash := range []string{first, second} {
		if err := verifyPassword(hash, password); err != nil {
			t.Fatalf("verify against %q: %v", hash, err)
		}
	}
	if err := verifyPassword(first, "correct horse battery stable"); err == nil {
		t.Fatal("near-miss password must not verify")
	}
}

func TestWriteErrorMapsDomainErrors(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{apperror.Validation("bad input"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{apperror.NotFound("meeting"), http.StatusNotFound, "NOT_FOUND"},
		{apperror.Forbidden("nope"), http.StatusForbidden, "FORBIDDEN"},
		{apperror.Unauthorized("who"), http.StatusUnauthorized, "UNAUTHORIZED"},
		{apperror.SlotUnavailable(), http.StatusConflict, "SLOT_UNAVAILABLE"},
		{errors.New("pg: connection refused"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, tc.err)
		if rec.Code != tc.wantStatus {
			t.Fatalf("err %v: expected status %d, got %d", tc.err, tc.wantStatus, rec.Code)
		}
		var body errorResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode error body: %v", err)
		}
		if body.ErrorCode != tc.wantCode {
			t.Fatalf("err %v: expected code %s, got %s", tc.err, tc.wantCode, body.ErrorCode)
		}
		if body.Message == "" {
			t.Fatalf("err %v: expected non-empty message", tc.err)
		}
	}
}

func TestWriteErrorHidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, errors.New("dial tcp 10.0.0.5:5432: i/o timeout"))

	var body errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Message != "internal server error" {
		t.Fatalf("internal detail leaked: %q", body.Message)
	}
}

func TestMalformedIDsReturnNotFound(t *testing.T) {
	// Ids hit UUID-typed columns; the guard must turn garbage into a 404
	// before any query runs (the handlers below carry no repositories).
	assertNotFound := func(t *testing.T, rec *httptest.ResponseRecorder) {
		t.Helper()
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		var body errorResponse
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.ErrorCode != "NOT_FOUND" {
			t.Fatalf("expected NOT_FOUND, got %s", body.ErrorCode)
		}
	}

	pub := &PublicHandler{}
	rec := httptest.NewRecorder()
	pub.Slots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?event_type_id=abc", nil))
	assertNotFound(t, rec)

	rec = httptest.NewRecorder()
	pub.EventTypes(rec, httptest.NewRequest(http.MethodGet, "/api/v1/public/event-types?host=not-a-uuid", nil))
	assertNotFound(t, rec)

	rec = httptest.NewRecorder()
	pub.Cancel(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/meetings/cancel",
		strings.NewReader(`{"meeting_id":"abc","cancel_token":"tok"}`)))
	assertNotFound(t, rec)

	et := &EventTypeHandler{}
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/event-types/abc", nil)
	req.SetPathValue("id", "abc")
	et.Item(rec, req)
	assertNotFound(t, rec)
}

func TestRequireAuth(t *testing.T) {
	signer := auth.NewSigner("test-secret", time.Hour)

	var gotUserID string
	protected := RequireAuth(signer, func(w http.ResponseWriter, r *http.Request) {
		gotUserID = authedUserID(r)
		w.WriteHeader(http.StatusOK)
	})

	// No header.
	rec := httptest.NewRecorder()
	protected(rec, httptest.NewRequest(http.MethodGet, "/api/v1/meetings", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	// Garbage token.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/meetings", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	protected(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rec.Code)
	}

	// Valid token.
	token, err := signer.Sign("user-42", "host@example.com")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/meetings", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	protected(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", rec.Code)
	}
	if gotUserID != "user-42" {
		t.Fatalf("expected user-42 in context, got %q", gotUserID)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Intro Call":           "intro-call",
		"30 Minute Meeting":    "30-minute-meeting",
		"  Weird -- Spacing  ": "weird-spacing",
		"Deep Dive!":           "deep-dive",
	}
	for in, want := range cases {
		if got := slugify(in); got != want {
			t.Fatalf("slugify(%q) = %q, want %q", in, got, want)
		}
	}
	for _, slug := range []string{"intro-call", "a", "a1-b2"} {
		if !slugPattern.MatchString(slug) {
			t.Fatalf("expected %q to be a valid slug", slug)
		}
	}
	for _, slug := range []string{"", "-lead", "trail-", "Upper", "two--hyphens"} {
		if slugPattern.MatchString(slug) {
			t.Fatalf("expected %q to be rejected", slug)
		}
	}
}

func TestValidateWindow(t *testing.T) {
	if err := validateWindow(540, 1020); err != nil {
		t.Fatalf("9:00-17:00 should be valid: %v", err)
	}
	cases := [][2]int{
		{1020, 540}, // inverted
		{540, 540},  // empty
		{-10, 60},   // negative
		{0, 1500},   // past midnight
	}
	for _, c := range cases {
		err := validateWindow(c[0], c[1])
		appErr, ok := apperror.As(err)
		if !ok || appErr.Code != "VALIDATION_ERROR" {
			t.Fatalf("window %v: expected VALIDATION_ERROR, got %v", c, err)
		}
	}
}
