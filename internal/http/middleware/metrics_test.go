package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func metricsRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	api := r.Group("/api/v1")
	api.GET("/posts/:id", func(c *gin.Context) { c.String(http.StatusOK, "post") })
	api.POST("/requests/:id/accept", func(c *gin.Context) {
		switch c.Param("id") {
		case "full":
			SetErrorCode(c, "meetup_full")
			c.JSON(http.StatusConflict, gin.H{"code": "meetup_full"})
		case "closed":
			SetErrorCode(c, "meetup_closed")
			c.JSON(http.StatusConflict, gin.H{"code": "meetup_closed"})
		default:
			c.Status(http.StatusOK)
		}
	})
	return r
}

func TestMetrics_RouteTemplateLabels(t *testing.T) {
	r := metricsRouter()
	const route = "/api/v1/posts/:id"
	base := testutil.ToFloat64(httpReqs.WithLabelValues("GET", route, "200"))

	for _, id := range []string{"p1", "p2", "p3"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/posts/"+id, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("GET post %s -> %d", id, w.Code)
		}
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", route, "200")); got != base+3 {
		t.Fatalf("requests for %s = %v, want %v", route, got, base+3)
	}
	if n := testutil.CollectAndCount(httpLat, "http_request_duration_seconds"); n == 0 {
		t.Fatalf("no latency series collected")
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("inflight = %v after requests finished", got)
	}
}

func TestMetrics_UnmatchedPathsShareOneSeries(t *testing.T) {
	r := metricsRouter()
	base := testutil.ToFloat64(httpReqs.WithLabelValues("GET", routeUnmatched, "404"))

	for _, p := range []string{"/wp-admin", "/api/v1/nope", "/.env"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		if w.Code != http.StatusNotFound {
			t.Fatalf("GET %s -> %d", p, w.Code)
		}
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", routeUnmatched, "404")); got != base+3 {
		t.Fatalf("unmatched = %v, want %v", got, base+3)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/wp-admin", "404")); got != 0 {
		t.Fatalf("raw path leaked into labels")
	}
}

func TestMetrics_CountsAdmissionOutcomesByCode(t *testing.T) {
	r := metricsRouter()
	const route = "/api/v1/requests/:id/accept"
	baseFull := testutil.ToFloat64(httpErrors.WithLabelValues(route, "meetup_full"))
	baseClosed := testutil.ToFloat64(httpErrors.WithLabelValues(route, "meetup_closed"))
	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("POST", route, "200"))

	for _, id := range []string{"full", "full", "closed", "r1"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/requests/"+id+"/accept", nil))
	}

	if got := testutil.ToFloat64(httpErrors.WithLabelValues(route, "meetup_full")); got != baseFull+2 {
		t.Fatalf("meetup_full = %v, want %v", got, baseFull+2)
	}
	if got := testutil.ToFloat64(httpErrors.WithLabelValues(route, "meetup_closed")); got != baseClosed+1 {
		t.Fatalf("meetup_closed = %v, want %v", got, baseClosed+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("POST", route, "200")); got != baseOK+1 {
		t.Fatalf("accepted = %v, want %v", got, baseOK+1)
	}
}

func TestErrorCode_Roundtrip(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if ErrorCode(c) != "" {
		t.Fatalf("unset error code should be empty")
	}
	SetErrorCode(c, "invalid_state")
	if got := ErrorCode(c); got != "invalid_state" {
		t.Fatalf("ErrorCode = %q", got)
	}
}
