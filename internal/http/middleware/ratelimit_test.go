package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func rateRouter(rl *RateLimiter, pre ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	for _, m := range pre {
		r.Use(m)
	}
	r.Use(rl.Handler())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestRateLimiter_EnforcesBurst(t *testing.T) {
	rl := NewRateLimiter(0, 2, KeyByUserOrIP())
	r := rateRouter(rl)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("request %d: expected 204, got %d", i, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRateLimiter_SeparateBucketsPerUser(t *testing.T) {
	rl := NewRateLimiter(0, 1, KeyByUserOrIP())
	setUser := func(id string) gin.HandlerFunc {
		return func(c *gin.Context) { c.Set("userID", id); c.Next() }
	}

	ra := rateRouter(rl, setUser("alice"))
	rb := rateRouter(rl, setUser("bob"))

	for name, r := range map[string]*gin.Engine{"alice": ra, "bob": rb} {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("%s: expected 204, got %d", name, w.Code)
		}
	}

	// Alice is drained; Bob's bucket is untouched only until his own request
	// above, so a second Alice request must fail.
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	ra.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for drained user, got %d", w.Code)
	}
}

func TestRateLimiter_ReplayBypass(t *testing.T) {
	rl := NewRateLimiter(0, 1, KeyByUserOrIP())
	markReplay := func(c *gin.Context) { c.Set(ctxKeyRateBypass, true); c.Next() }
	r := rateRouter(rl, markReplay)

	// Well past the burst, replays keep flowing.
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("replay %d: expected 204, got %d", i, w.Code)
		}
	}
}
