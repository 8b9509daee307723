// Package handlers provides HTTP handler implementations for the public API.
//
// This file holds the response helpers every handler goes through. Errors
// always use the ErrorResponse envelope with a stable code (see errors.go),
// and the code is recorded on the context so the metrics middleware can
// count admission refusals such as meetup_full separately from real faults.
//
//	HTTP/1.1 409 Conflict
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "meetup_full",
//	  "message": "meetup is already full"
//	}
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-mealmate-backend/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	// Echo of X-Request-ID, for matching client reports to server logs
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"meetup_full"`
	// Human-readable message, safe to show to users
	Message string `json:"message" example:"meetup is already full"`
}

// businessCodes are refusals a client is expected to handle (drop the stale
// request, show "full"). They are logged at info, not as failures.
var businessCodes = map[string]struct{}{
	ErrCodeMeetupFull:   {},
	ErrCodeMeetupClosed: {},
	ErrCodeInvalidState: {},
	ErrCodeConflict:     {},
}

// fail aborts with the error envelope and records code for metrics.
// Server errors are logged at error level; meetup business refusals at info.
func fail(c *gin.Context, status int, code, msg string) {
	failWith(c, status, code, msg, nil)
}

// failWith is fail with the underlying cause attached to the log line. The
// cause never reaches the client.
func failWith(c *gin.Context, status int, code, msg string, cause error) {
	middleware.SetErrorCode(c, code)

	if ev := failEvent(middleware.LoggerFrom(c), status, code); ev != nil {
		if cause != nil {
			ev = ev.Err(cause)
		}
		ev.Int("status", status).
			Str("code", code).
			Str("message", msg).
			Str("route", c.FullPath()).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

func failEvent(lg *zerolog.Logger, status int, code string) *zerolog.Event {
	if status >= http.StatusInternalServerError {
		return lg.Error()
	}
	if _, ok := businessCodes[code]; ok {
		return lg.Info()
	}
	return nil
}

// Fail is fail for the router's NoRoute/NoMethod handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
