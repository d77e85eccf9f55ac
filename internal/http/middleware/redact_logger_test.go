package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func redactRouter(opts RedactOptions) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), RedactingLogger(opts))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestRedactingLogger_ScrubsQueryValues(t *testing.T) {
	buf := captureLogs(t)
	r := redactRouter(RedactOptions{})

	req := httptest.NewRequest(http.MethodGet,
		"/x?card=4111111111111111&mail=jane.doe@example.com&ref=7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := buf.String()
	if strings.Contains(out, "4111111111111111") {
		t.Fatalf("PAN leaked to logs: %s", out)
	}
	if strings.Contains(out, "jane.doe@example.com") {
		t.Fatalf("email leaked to logs: %s", out)
	}
	if strings.Contains(out, "7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab") {
		t.Fatalf("uuid leaked to logs: %s", out)
	}
	if !strings.Contains(out, "[REDACTED:pan]") {
		t.Fatalf("expected PAN redaction marker: %s", out)
	}
}

func TestRedactingLogger_MasksHeaders(t *testing.T) {
	buf := captureLogs(t)
	r := redactRouter(RedactOptions{MaskHeaders: []string{"X-API-Key"}})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	req.Header.Set("X-API-Key", "sk_live_abc123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := buf.String()
	if strings.Contains(out, "topsecret") {
		t.Fatalf("authorization leaked: %s", out)
	}
	if strings.Contains(out, "sk_live_abc123") {
		t.Fatalf("custom masked header leaked: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("expected masked header marker: %s", out)
	}
}
