// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file sets response hardening headers. Two kinds of route are told
// apart: public meetup listings, which may be cached and revalidated with
// ETags, and per-user data (profiles, recommendations, matches, join
// requests), which must never be stored by a shared cache.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS sends Strict-Transport-Security on HTTPS requests only.
	EnableHSTS bool
	// HSTSMaxAge defaults to 180 days when <= 0.
	HSTSMaxAge time.Duration
	// EnablePolicy adds Permissions-Policy and X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool
	// PrivateRoutes are route template suffixes whose responses get
	// Cache-Control: no-store.
	PrivateRoutes []string
}

// PrivateMeetupRoutes lists the routes that return one user's data.
func PrivateMeetupRoutes() []string {
	return []string{
		"/profile",
		"/recommendations",
		"/matches",
		"/interests",
		"/requests/received",
		"/requests/sent",
		"/requests/:id",
		"/requests/:id/accept",
		"/requests/:id/reject",
	}
}

// SecurityHeaders returns the hardening middleware. It always sets nosniff,
// frame denial, and no-referrer.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge/time.Second), 10) + "; includeSubDomains; preload"
	private := append([]string(nil), opt.PrivateRoutes...)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if routeHasSuffix(c.FullPath(), private) {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}

// isHTTPS reports whether the request arrived over TLS, directly or via a
// proxy that set X-Forwarded-Proto.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
