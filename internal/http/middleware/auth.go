// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the identity boundary. A bearer token signed with
// HS256 identifies the caller; in development the X-User-ID header is
// accepted instead. The resolved id is stored under the "userID" Gin key,
// which handlers, the rate limiter, and the idempotency validator read.
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the JWT payload understood by Auth. UserID wins over the
// registered subject when both are present.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// AuthOptions configures Auth.
type AuthOptions struct {
	// Secret is the HS256 key. Empty disables token verification; bearer
	// tokens are then rejected.
	Secret []byte
	// AllowHeader accepts X-User-ID when no bearer token is sent.
	AllowHeader bool
	// Required rejects requests that carry no identity at all.
	Required bool
	// Public lists path prefixes exempt from Required, e.g. "/health".
	Public []string
}

var errNoSubject = errors.New("token has no subject")

// Auth resolves the caller identity and stores it under "userID".
func Auth(opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw, found := bearer(c.GetHeader("Authorization")); found {
			uid, err := ParseToken(opts.Secret, raw)
			if err != nil {
				unauthorized(c, "invalid bearer token")
				return
			}
			c.Set("userID", uid)
			c.Next()
			return
		}

		if opts.AllowHeader {
			if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
				c.Set("userID", h)
				c.Next()
				return
			}
		}

		if opts.Required && !isPublic(c.Request.URL.Path, opts.Public) {
			unauthorized(c, "authentication required")
			return
		}
		c.Next()
	}
}

// ParseToken verifies an HS256 token and returns the user id it carries.
func ParseToken(secret []byte, raw string) (string, error) {
	if len(secret) == 0 {
		return "", jwt.ErrTokenUnverifiable
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims.UserID != "" {
		return claims.UserID, nil
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", errNoSubject
}

// IssueToken signs a token for userID valid for ttl. Used by tests and local
// tooling; production tokens come from the identity provider.
func IssueToken(secret []byte, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func isPublic(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func bearer(h string) (string, bool) {
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	tok := strings.TrimSpace(h[len(prefix):])
	return tok, tok != ""
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="mealmate"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       "unauthorized",
		"message":    msg,
	})
}
