// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file is the access logger. Query strings and header values are
// scrubbed of emails, phone numbers, and UUID-shaped ids (profile display
// names and contact details sometimes end up in query strings), credential
// headers are masked, and bodies are never logged. It also attaches the
// request-scoped logger that handlers (LoggerFrom) and services
// (zerolog.Ctx) write through, so every line of one request carries the same
// request_id and user_id.
package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are extra headers (case-insensitive) whose values are
	// replaced by "[REDACTED]", on top of Authorization, Cookie and
	// Set-Cookie.
	MaskHeaders []string
	// QuietRoutes are route templates whose successful responses are logged
	// at debug, e.g. /health and /metrics scraped every few seconds.
	QuietRoutes []string
}

var (
	// UUIDs go first so the phone pattern cannot eat their digit groups.
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// scrubber redacts free text and header sets.
type scrubber struct {
	masked map[string]struct{}
}

func newScrubber(extra []string) scrubber {
	m := map[string]struct{}{"authorization": {}, "cookie": {}, "set-cookie": {}}
	for _, h := range extra {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			m[h] = struct{}{}
		}
	}
	return scrubber{masked: m}
}

func (s scrubber) text(v string) string {
	if v == "" {
		return v
	}
	v = uuidRE.ReplaceAllString(v, "[REDACTED:id]")
	v = emailRE.ReplaceAllString(v, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(v, "[REDACTED:phone]")
}

func (s scrubber) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := s.masked[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = s.text(strings.Join(vv, ", "))
	}
	return out
}

// RedactingLogger logs one "http_request" line per request with the route
// template, scrubbed query and headers, status, size and latency.
//
// Levels: 5xx error; 4xx warn, except meetup refusals (meetup_full,
// meetup_closed, invalid_state, conflict), which are normal outcomes of a
// meetup filling up and stay at info; quiet routes debug; the rest info.
// The error envelope code, when a handler set one, is logged as error_code,
// and a served idempotent replay as replayed_request_id.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	scrub := newScrubber(opts.MaskHeaders)
	quiet := make(map[string]struct{}, len(opts.QuietRoutes))
	for _, r := range opts.QuietRoutes {
		quiet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		lg := log.With().
			Str("request_id", reqID).
			Str("user_id", c.GetString("userID")).
			Logger()
		c.Set("logger", &lg)
		c.Request = c.Request.WithContext(lg.WithContext(c.Request.Context()))

		query := scrub.text(c.Request.URL.RawQuery)
		headers := scrub.headers(c.Request.Header)

		c.Next()

		status := c.Writer.Status()
		code := ErrorCode(c)
		_, isQuiet := quiet[c.FullPath()]

		ev := accessEvent(&lg, status, code, isQuiet)
		if code != "" {
			ev = ev.Str("error_code", code)
		}
		if rid, ok := ReplayedRequestID(c); ok {
			ev = ev.Str("replayed_request_id", rid)
		}
		if c.FullPath() == "" {
			ev = ev.Str("raw_path", scrub.text(c.Request.URL.Path))
		}
		ev.Str("method", c.Request.Method).
			Str("path", routeLabel(c)).
			Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}

func accessEvent(lg *zerolog.Logger, status int, code string, quiet bool) *zerolog.Event {
	switch {
	case status >= http.StatusInternalServerError:
		return lg.Error()
	case status >= http.StatusBadRequest && !expectedRefusal(code):
		return lg.Warn()
	case quiet && status < http.StatusBadRequest:
		return lg.Debug()
	}
	return lg.Info()
}

func expectedRefusal(code string) bool {
	switch code {
	case "meetup_full", "meetup_closed", "invalid_state", "conflict":
		return true
	}
	return false
}
