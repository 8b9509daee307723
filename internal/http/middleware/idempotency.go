// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file handles the Idempotency-Key header on join-request submission.
// A client that lost the response to POST /posts/:id/requests can retry with
// the same key and get the original join request back instead of a second
// one. The middleware only validates the key and resolves a prior request;
// the submit handler writes the replay and stores new keys.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client retry key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey      = "idem.key"
	ctxKeyIdemReplayID = "idem.replay_request_id"
	ctxKeyRateBypass   = "rate.bypass"

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// JoinRequestRoutes are the routes where Idempotency-Key is honoured.
func JoinRequestRoutes() []string {
	return []string{"/posts/:id/requests"}
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length (200 when <= 0).
	MaxLen int
	// Pattern restricts key characters; ^[A-Za-z0-9._~\-:]+$ when nil.
	Pattern *regexp.Regexp
	// Routes are POST route template suffixes that honour keys. The header
	// is ignored on every other route. JoinRequestRoutes when empty.
	Routes []string
}

// IdempotencyLookup returns the id of the join request that key already
// produced for (userID, postID), or "" when the key is new or expired.
// Errors are treated as a miss.
type IdempotencyLookup func(ctx context.Context, userID, postID, key string, now time.Time) (requestID string, err error)

// GetIdempotencyKey returns the validated key, if the request carried one on
// a route that honours keys.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// ReplayedRequestID returns the join request a replayed key refers to.
func ReplayedRequestID(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemReplayID)
	return s, s != ""
}

// IdempotencyValidator validates Idempotency-Key on the configured routes.
// A malformed key is a 400 bad_idempotency_key. A key that lookup resolves
// marks the request as a replay, which also exempts it from rate limiting:
// the client is collecting a result, not submitting again.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}
	routes := opts.Routes
	if len(routes) == 0 {
		routes = JoinRequestRoutes()
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || c.Request.Method != http.MethodPost || !routeHasSuffix(c.FullPath(), routes) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			SetErrorCode(c, "bad_idempotency_key")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			rid, err := lookup(c.Request.Context(), callerID(c), c.Param("id"), key, time.Now().UTC())
			if err == nil && rid != "" {
				c.Set(ctxKeyIdemReplayID, rid)
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Next()
	}
}

func routeHasSuffix(route string, suffixes []string) bool {
	if route == "" {
		return false
	}
	for _, s := range suffixes {
		if strings.HasSuffix(route, s) {
			return true
		}
	}
	return false
}

// callerID is the user Auth resolved, or the anonymous demo user handlers
// act as.
func callerID(c *gin.Context) string {
	if s := c.GetString("userID"); s != "" {
		return s
	}
	return "demo-user"
}
