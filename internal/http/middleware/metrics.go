// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the Prometheus collectors for HTTP traffic. Label values
// are always bounded:
//
//   - route:  the registered template (e.g. /api/v1/requests/:id/accept), or
//     "unmatched" when no route matched, so scanners cannot mint series
//   - status: numeric status code
//   - code:   the error envelope code written by the handler (meetup_full,
//     meetup_closed, invalid_state, conflict, ...), see SetErrorCode
//   - tier:   the rate-limit tier that refused a request
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	ctxKeyErrorCode = "mw.error_code"

	routeUnmatched = "unmatched"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by method, route template and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request latency by method and route template.",
			// Admission retries back off up to 500ms per attempt, so the
			// upper buckets reach past a full retry budget.
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "HTTP requests currently being served.",
		},
	)

	// httpErrors counts error envelopes by route and code, which is where
	// meetup_full / meetup_closed / invalid_state / conflict show up.
	httpErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_error_responses_total",
			Help: "Error responses by route template and error code.",
		},
		[]string{"route", "code"},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests refused by the rate limiter, by tier.",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpErrors, rateLimited)
}

// SetErrorCode records the error envelope code of the response so Metrics
// can count it. Handlers call it through their fail helper.
func SetErrorCode(c *gin.Context, code string) {
	c.Set(ctxKeyErrorCode, code)
}

// ErrorCode returns the code recorded by SetErrorCode, or "".
func ErrorCode(c *gin.Context) string {
	return c.GetString(ctxKeyErrorCode)
}

// routeLabel returns the route template for c, or "unmatched".
func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return routeUnmatched
}

// Metrics instruments every request. Mount /metrics with promhttp next to it.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		route := routeLabel(c)
		method := c.Request.Method
		httpReqs.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		if code := ErrorCode(c); code != "" {
			httpErrors.WithLabelValues(route, code).Inc()
		}
	}
}
