package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-mealmate-backend/internal/http/middleware"
	"github.com/tbourn/go-mealmate-backend/internal/services"
)

// respRouter wires a request id, a captured request logger, and a hook that
// reports the recorded error code after the handler ran.
func respRouter(buf *bytes.Buffer, code *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	logger := zerolog.New(buf)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-1")
		c.Set("logger", &logger)
		c.Next()
		*code = middleware.ErrorCode(c)
	})
	return r
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v (%s)", err, w.Body.String())
	}
	return resp
}

func Test_fail_500_LogsAtError(t *testing.T) {
	var buf bytes.Buffer
	var code string
	r := respRouter(&buf, &code)
	r.POST("/requests/:id/accept", func(c *gin.Context) {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/requests/r1/accept", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	resp := decodeErr(t, w)
	if resp.RequestID != "rid-1" || resp.Code != ErrCodeInternal || resp.Message != "internal error" {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if code != ErrCodeInternal {
		t.Fatalf("recorded code = %q", code)
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, `"route":"/requests/:id/accept"`) {
		t.Fatalf("expected error log with route, got: %s", out)
	}
}

func Test_failService_MeetupFullLogsAtInfo(t *testing.T) {
	var buf bytes.Buffer
	var code string
	r := respRouter(&buf, &code)
	r.POST("/requests/:id/accept", func(c *gin.Context) {
		failService(c, fmt.Errorf("accept r1: %w", services.ErrPostFull), ErrCodeInternal)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/requests/r1/accept", nil))

	if w.Code != http.StatusConflict || decodeErr(t, w).Code != ErrCodeMeetupFull {
		t.Fatalf("got %d %s", w.Code, w.Body.String())
	}
	if code != ErrCodeMeetupFull {
		t.Fatalf("recorded code = %q", code)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected exactly one log line, got %d: %s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"level":"info"`) || !strings.Contains(lines[0], `"code":"meetup_full"`) {
		t.Fatalf("expected info log for meetup_full: %s", lines[0])
	}
}

func Test_failWith_CauseLoggedNotReturned(t *testing.T) {
	var buf bytes.Buffer
	var code string
	r := respRouter(&buf, &code)
	cause := errors.New("database is locked (SQLITE_BUSY)")
	r.GET("/recommendations", func(c *gin.Context) {
		failService(c, fmt.Errorf("%w: %w", services.ErrStorage, cause), ErrCodeListFailed)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/recommendations", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", w.Code)
	}
	resp := decodeErr(t, w)
	if resp.Code != ErrCodeListFailed || resp.Message != "internal error" {
		t.Fatalf("unexpected body: %+v", resp)
	}
	if strings.Contains(w.Body.String(), "SQLITE_BUSY") {
		t.Fatalf("storage detail leaked to client: %s", w.Body.String())
	}
	if !strings.Contains(buf.String(), "SQLITE_BUSY") {
		t.Fatalf("cause missing from log: %s", buf.String())
	}
}

func Test_Fail_404_NotLogged_And_SuccessHelpers(t *testing.T) {
	var buf bytes.Buffer
	var code string
	r := respRouter(&buf, &code)
	r.GET("/missing", func(c *gin.Context) {
		Fail(c, http.StatusNotFound, ErrCodeNotFound, "nope")
	})
	r.POST("/posts", func(c *gin.Context) {
		ok(c, http.StatusCreated, gin.H{"id": "p1"})
	})
	r.DELETE("/requests/:id", func(c *gin.Context) {
		noContent(c)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("404 status=%d", w.Code)
	}
	if resp := decodeErr(t, w); resp.RequestID != "rid-1" || resp.Code != ErrCodeNotFound || resp.Message != "nope" {
		t.Fatalf("unexpected 404 body: %+v", resp)
	}
	if code != ErrCodeNotFound {
		t.Fatalf("recorded code = %q", code)
	}
	if buf.Len() != 0 {
		t.Fatalf("client errors should not be logged here: %s", buf.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/posts", nil))
	if w.Code != http.StatusCreated || !strings.Contains(w.Body.String(), `"id":"p1"`) {
		t.Fatalf("ok helper: %d %s", w.Code, w.Body.String())
	}
	if code != "" {
		t.Fatalf("success recorded an error code: %q", code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/requests/r1", nil))
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Fatalf("noContent helper: %d %q", w.Code, w.Body.String())
	}
}

func Test_failEvent_Levels(t *testing.T) {
	lg := zerolog.New(&bytes.Buffer{})
	cases := []struct {
		status int
		code   string
		logged bool
	}{
		{http.StatusInternalServerError, ErrCodeInternal, true},
		{http.StatusConflict, ErrCodeMeetupClosed, true},
		{http.StatusConflict, ErrCodeInvalidState, true},
		{http.StatusConflict, ErrCodeConflict, true},
		{http.StatusBadRequest, ErrCodeBadRequest, false},
		{http.StatusForbidden, ErrCodeForbidden, false},
	}
	for _, tc := range cases {
		if got := failEvent(&lg, tc.status, tc.code) != nil; got != tc.logged {
			t.Errorf("failEvent(%d, %s) logged=%v, want %v", tc.status, tc.code, got, tc.logged)
		}
	}
}
