package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/meetsync/meetsync/internal/apperror"
	"github.com/meetsync/meetsync/libs/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

// RequireAuth verifies the bearer token and stores the claims in the request
// context for downstream handlers.
func RequireAuth(signer *auth.Signer, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, apperror.Unauthorized("missing or invalid Authorization header"))
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		claims, err := signer.Verify(token)
		if err != nil {
			writeError(w, apperror.Unauthorized("invalid token"))
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next(w, r.WithContext(ctx))
	}
}

func authedUserID(r *http.Request) string {
	claims, ok := r.Context().Value(claimsKey).(*auth.Claims)
	if !ok {
		return ""
	}
	return claims.Subject
}
