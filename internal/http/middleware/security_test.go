package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func securedRouter(opt SecurityOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(opt))
	okh := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	api := r.Group("/api/v1")
	api.GET("/posts", okh)
	api.GET("/posts/:id", okh)
	api.GET("/profile", okh)
	api.GET("/requests/received", okh)
	api.GET("/requests/:id", okh)
	api.POST("/requests/:id/accept", okh)
	api.GET("/recommendations", okh)
	return r
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	r := securedRouter(SecurityOptions{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil))

	h := w.Header()
	if h.Get("X-Content-Type-Options") != "nosniff" ||
		h.Get("X-Frame-Options") != "DENY" ||
		h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline headers missing: %#v", h)
	}
	if h.Get("Permissions-Policy") != "" || h.Get("X-Permitted-Cross-Domain-Policies") != "" {
		t.Fatalf("unexpected policy headers: %#v", h)
	}
	if h.Get("Cache-Control") != "" || h.Get("Strict-Transport-Security") != "" {
		t.Fatalf("unexpected cache/HSTS headers: %#v", h)
	}
}

func TestSecurityHeaders_PrivateMeetupRoutesAreNoStore(t *testing.T) {
	r := securedRouter(SecurityOptions{PrivateRoutes: PrivateMeetupRoutes()})

	private := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/profile"},
		{http.MethodGet, "/api/v1/recommendations"},
		{http.MethodGet, "/api/v1/requests/received"},
		{http.MethodGet, "/api/v1/requests/r1"},
		{http.MethodPost, "/api/v1/requests/r1/accept"},
	}
	for _, p := range private {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(p.method, p.path, nil))
		h := w.Header()
		if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
			t.Fatalf("%s %s: expected no-store headers, got %#v", p.method, p.path, h)
		}
	}

	// Public listings stay cacheable so ETag revalidation works.
	for _, path := range []string{"/api/v1/posts", "/api/v1/posts/p1"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if cc := w.Header().Get("Cache-Control"); cc != "" {
			t.Fatalf("GET %s: unexpected Cache-Control %q", path, cc)
		}
	}

	// Unmatched paths have no template and are left alone.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/profile/extra", nil))
	if w.Code != http.StatusNotFound || w.Header().Get("Cache-Control") != "" {
		t.Fatalf("unmatched: %d %#v", w.Code, w.Header())
	}
}

func TestSecurityHeaders_PolicyAndHSTS(t *testing.T) {
	r := securedRouter(SecurityOptions{EnableHSTS: true, HSTSMaxAge: time.Hour, EnablePolicy: true})

	// Plain HTTP: policy yes, HSTS no.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil))
	if w.Header().Get("Permissions-Policy") == "" || w.Header().Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers missing: %#v", w.Header())
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS must not be sent over plain HTTP")
	}

	// Direct TLS.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	req.TLS = &tls.ConnectionState{}
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=3600; includeSubDomains; preload" {
		t.Fatalf("HSTS over TLS = %q", got)
	}

	// Behind a TLS-terminating proxy.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	req.Header.Set("X-Forwarded-Proto", "HTTPS")
	r.ServeHTTP(w, req)
	if w.Header().Get("Strict-Transport-Security") == "" {
		t.Fatalf("HSTS expected behind proxy")
	}
}

func TestSecurityHeaders_DefaultHSTSMaxAge(t *testing.T) {
	r := securedRouter(SecurityOptions{EnableHSTS: true})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts", nil)
	req.TLS = &tls.ConnectionState{}
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Strict-Transport-Security"); got != "max-age=15552000; includeSubDomains; preload" {
		t.Fatalf("default HSTS = %q", got)
	}
}

func TestPrivateMeetupRoutes(t *testing.T) {
	private := PrivateMeetupRoutes()
	cases := map[string]bool{
		"":                            false,
		"/api/v1/posts":               false,
		"/api/v1/posts/:id/requests":  false,
		"/api/v1/profile":             true,
		"/api/v1/matches":             true,
		"/api/v1/interests":           true,
		"/api/v1/requests/sent":       true,
		"/api/v1/requests/:id/reject": true,
		"/v2/requests/:id/accept":     true,
	}
	for route, want := range cases {
		if got := routeHasSuffix(route, private); got != want {
			t.Errorf("private(%q) = %v, want %v", route, got, want)
		}
	}
}

func Test_isHTTPS(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if isHTTPS(req) {
		t.Fatalf("plain request reported as HTTPS")
	}
	req.Header.Set("X-Forwarded-Proto", "http")
	if isHTTPS(req) {
		t.Fatalf("X-Forwarded-Proto=http reported as HTTPS")
	}
	req.Header.Set("X-Forwarded-Proto", "https")
	if !isHTTPS(req) {
		t.Fatalf("X-Forwarded-Proto=https not detected")
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	if !isHTTPS(req) {
		t.Fatalf("TLS request not detected")
	}
}
