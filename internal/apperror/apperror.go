package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a domain error carrying the wire code the API layer maps to HTTP.
type Error struct {
	Code    string
	Message string
	status  int
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Status returns the HTTP status the error maps to.
func (e *Error) Status() int { return e.status }

func Validation(format string, args ...any) *Error {
	return &Error{Code: "VALIDATION_ERROR", Message: fmt.Sprintf(format, args...), status: http.StatusBadRequest}
}

func NotFound(what string) *Error {
	return &Error{Code: "NOT_FOUND", Message: what + " not found", status: http.StatusNotFound}
}

func Forbidden(msg string) *Error {
	return &Error{Code: "FORBIDDEN", Message: msg, status: http.StatusForbidden}
}

func Unauthorized(msg string) *Error {
	return &Error{Code: "UNAUTHORIZED", Message: msg, status: http.StatusUnauthorized}
}

func SlotUnavailable() *Error {
	return &Error{Code: "SLOT_UNAVAILABLE", Message: "requested time slot is no longer available", status: http.StatusConflict}
}

func Conflict(msg string) *Error {
	return &Error{Code: "CONFLICT", Message: msg, status: http.StatusConflict}
}

// As unwraps err into *Error if possible.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
