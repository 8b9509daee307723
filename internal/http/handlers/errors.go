// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP responses
// (via the `fail()` helper in this package), and the translation of service-layer
// sentinel errors into (status, code) pairs. These codes provide clients with a stable,
// machine-readable error taxonomy that supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case, and domain-agnostic unless explicitly noted.
//   - Generic codes (e.g., bad_request, unauthorized, conflict) mirror common HTTP
//     status semantics to aid interoperability.
//   - Domain-specific codes (e.g., meetup_full, meetup_closed) are reserved for
//     business outcomes that a client must tell apart even though they share a status.
//   - All error responses must include both an HTTP status and one of these codes.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "meetup_full",
//	  "message": "meetup is already full"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-mealmate-backend/internal/services"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeMeetupFull       = "meetup_full"
	ErrCodeMeetupClosed     = "meetup_closed"
	ErrCodeInvalidState     = "invalid_state"
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// statusFor maps a service error to an HTTP status and error code. Unknown
// errors become 500 with fallback as the code.
func statusFor(err error, fallback string) (int, string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, services.ErrPostFull):
		return http.StatusConflict, ErrCodeMeetupFull
	case errors.Is(err, services.ErrPostClosed):
		return http.StatusConflict, ErrCodeMeetupClosed
	case errors.Is(err, services.ErrInvalidStateTransition):
		return http.StatusConflict, ErrCodeInvalidState
	case errors.Is(err, services.ErrAdmissionConflict):
		return http.StatusConflict, ErrCodeConflict
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, ErrCodeForbidden
	case errors.Is(err, services.ErrEmptyUserID):
		return http.StatusUnauthorized, ErrCodeUnauthorized
	case errors.Is(err, services.ErrOwnRequest),
		errors.Is(err, services.ErrSelfInterest),
		errors.Is(err, services.ErrInvalidPost),
		errors.Is(err, services.ErrInvalidProfile):
		return http.StatusBadRequest, ErrCodeBadRequest
	}
	return http.StatusInternalServerError, fallback
}

// failService writes the error envelope for a service error. Storage
// details are not echoed to the client.
func failService(c *gin.Context, err error, fallback string) {
	status, code := statusFor(err, fallback)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = "internal error"
	}
	if errors.Is(err, services.ErrAdmissionConflict) {
		c.Header("Retry-After", "1")
	}
	failWith(c, status, code, msg, err)
}
