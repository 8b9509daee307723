// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the in-memory token-bucket limiter. Every caller has a
// general bucket; state-changing meetup actions (accepting a join request,
// signalling interest, and so on) draw from an additional, tighter bucket of
// their own so a client hammering accept cannot starve its reads, and a
// client reading heavily cannot accept faster than the action budget allows.
//
//   - Buckets are keyed by "<tier>|<identity>" (user id, else client IP)
//   - Tiers match on HTTP method plus route template (c.FullPath())
//   - Idle buckets are swept opportunistically
//   - Idempotent replays bypass limiting (see IdempotencyValidator)
//
// The limiter is process-local; it is edge abuse control, not authorization.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	tierDefault = "default"

	sweepEvery     = 5000
	defaultIdleTTL = 10 * time.Minute
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByUserOrIP keys buckets by the caller resolved by Auth, falling back to
// the client IP for anonymous requests.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get("userID"); ok {
			if s, ok := v.(string); ok && s != "" {
				return "user:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// RateBudget is one token bucket: RPS tokens per second, up to Burst.
type RateBudget struct {
	RPS   float64
	Burst int
}

// RateTier applies Budget to requests whose method is Method and whose route
// template ends with Route (so it holds under any API base path).
type RateTier struct {
	Name   string
	Method string
	Route  string
	Budget RateBudget
}

// RateLimitOptions configures NewRateLimiter.
type RateLimitOptions struct {
	// Default applies to every request.
	Default RateBudget
	// Tiers add a second bucket to matching requests; the first match wins.
	Tiers []RateTier
	// Key identifies the caller; KeyByUserOrIP when nil.
	Key keyFunc
	// IdleTTL evicts buckets unused for this long (10m when <= 0).
	IdleTTL time.Duration
}

// MeetupActionTiers is the action budget used by the router: owner decisions,
// join requests, and interest signals.
func MeetupActionTiers(b RateBudget) []RateTier {
	return []RateTier{
		{Name: "accept", Method: http.MethodPost, Route: "/requests/:id/accept", Budget: b},
		{Name: "reject", Method: http.MethodPost, Route: "/requests/:id/reject", Budget: b},
		{Name: "join", Method: http.MethodPost, Route: "/posts/:id/requests", Budget: b},
		{Name: "interest", Method: http.MethodPost, Route: "/interests", Budget: b},
	}
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds the buckets. It is safe for concurrent use.
type RateLimiter struct {
	opts RateLimitOptions

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups uint64
}

// NewRateLimiter builds a limiter from opts. Burst values <= 0 become 1.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	if opts.Key == nil {
		opts.Key = KeyByUserOrIP()
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}
	return &RateLimiter{opts: opts, buckets: make(map[string]*bucket)}
}

// tierFor returns the action tier matching c, if any.
func (rl *RateLimiter) tierFor(c *gin.Context) (RateTier, bool) {
	route := c.FullPath()
	if route == "" {
		return RateTier{}, false
	}
	for _, t := range rl.opts.Tiers {
		if t.Method == c.Request.Method && strings.HasSuffix(route, t.Route) {
			return t, true
		}
	}
	return RateTier{}, false
}

// limiter returns the bucket for tier and identity, creating it on first use.
// The idle sweep runs before the lookup so a stale bucket is replaced, not
// refreshed.
func (rl *RateLimiter) limiter(tier string, b RateBudget, id string) *rate.Limiter {
	now := time.Now()
	key := tier + "|" + id

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= sweepEvery {
		for k, v := range rl.buckets {
			if now.Sub(v.lastSeen) >= rl.opts.IdleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	if v, ok := rl.buckets[key]; ok {
		v.lastSeen = now
		return v.lim
	}
	burst := b.Burst
	if burst <= 0 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(b.RPS), burst)
	rl.buckets[key] = &bucket{lim: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator marked this request as a
// replay of a completed request.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limits. A request must fit both its action tier (when
// one matches) and the default bucket. The action tier is checked first, so
// a refused action does not spend a general token. Refusals are 429 with a
// Retry-After derived from the bucket's refill time.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		id := rl.opts.Key(c)

		if t, ok := rl.tierFor(c); ok {
			if wait, ok := take(rl.limiter(t.Name, t.Budget, id)); !ok {
				rejectRate(c, t.Name, wait)
				return
			}
		}
		if wait, ok := take(rl.limiter(tierDefault, rl.opts.Default, id)); !ok {
			rejectRate(c, tierDefault, wait)
			return
		}
		c.Next()
	}
}

// take spends one token if available now. Otherwise it returns how long
// until one would be, without spending it.
func take(lim *rate.Limiter) (time.Duration, bool) {
	r := lim.Reserve()
	if !r.OK() {
		return 0, false
	}
	wait := r.Delay()
	if wait == 0 {
		return 0, true
	}
	r.Cancel()
	return wait, false
}

// retryAfter renders wait as whole seconds, at least 1. A zero wait means the
// bucket never refills (RPS 0).
func retryAfter(wait time.Duration) string {
	if wait <= 0 || wait == rate.InfDuration {
		return "1"
	}
	return strconv.Itoa(int(math.Ceil(wait.Seconds())))
}

func rejectRate(c *gin.Context, tier string, wait time.Duration) {
	rateLimited.WithLabelValues(tier).Inc()
	c.Header("Retry-After", retryAfter(wait))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       "too_many_requests",
		"message":    "rate limit exceeded for " + tier + " requests",
	})
}
