package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/meetsync/meetsync/internal/apperror"
)

type errorResponse struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to the wire shape. Anything that is not an
// apperror surfaces as a generic 500 so internals never leak to clients.
func writeError(w http.ResponseWriter, err error) {
	if appErr, ok := apperror.As(err); ok {
		writeJSON(w, appErr.Status(), errorResponse{Message: appErr.Message, ErrorCode: appErr.Code})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal server error", ErrorCode: "INTERNAL"})
}

// validUUID guards id parameters before they reach UUID-typed columns.
// A malformed id would otherwise raise a Postgres cast error (22P02) and
// surface as a 500 instead of a not-found.
func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
