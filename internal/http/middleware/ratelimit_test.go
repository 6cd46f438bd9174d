package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func init() { gin.SetMode(gin.TestMode) }

func TestMemoryStore_AllowsBurstThenDenies(t *testing.T) {
	s := NewMemoryStore(3, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := s.Allow(ctx, "ip:1.2.3.4")
		if err != nil || !ok {
			t.Fatalf("request %d should pass, got (%v, %v)", i+1, ok, err)
		}
	}
	ok, err := s.Allow(ctx, "ip:1.2.3.4")
	if err != nil || ok {
		t.Fatalf("request over the burst should be denied, got (%v, %v)", ok, err)
	}
}

func TestMemoryStore_KeysAreIndependent(t *testing.T) {
	s := NewMemoryStore(1, time.Hour)
	ctx := context.Background()

	if ok, _ := s.Allow(ctx, "ip:1.2.3.4"); !ok {
		t.Fatal("first key should pass")
	}
	if ok, _ := s.Allow(ctx, "ip:5.6.7.8"); !ok {
		t.Fatal("a different key must have its own bucket")
	}
	if ok, _ := s.Allow(ctx, "ip:1.2.3.4"); ok {
		t.Fatal("exhausted key should stay denied")
	}
}

func TestMemoryStore_DefensiveDefaults(t *testing.T) {
	s := NewMemoryStore(0, 0)
	if ok, _ := s.Allow(context.Background(), "k"); !ok {
		t.Fatal("limit floor of 1 should allow the first event")
	}
	if ok, _ := s.Allow(context.Background(), "k"); ok {
		t.Fatal("second event should be denied under the floor limit")
	}
}

// stubStore scripts CounterStore answers for the middleware tests.
type stubStore struct {
	allowed bool
	err     error
}

func (s *stubStore) Allow(context.Context, string) (bool, error) { return s.allowed, s.err }

func limiterRouter(store CounterStore) *gin.Engine {
	r := gin.New()
	r.POST("/waitlist-submit", IPRateLimit(store), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	return r
}

func TestIPRateLimit_DeniedRequestGets429Envelope(t *testing.T) {
	r := limiterRouter(&stubStore{allowed: false})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/waitlist-submit", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After 60, got %q", got)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["success"] != false || body["code"] != "too_many_requests" {
		t.Fatalf("unexpected envelope: %v", body)
	}
}

func TestIPRateLimit_AllowedRequestPasses(t *testing.T) {
	r := limiterRouter(&stubStore{allowed: true})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/waitlist-submit", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestIPRateLimit_StoreErrorFailsOpen(t *testing.T) {
	r := limiterRouter(&stubStore{err: errors.New("redis down")})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/waitlist-submit", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("a counter outage must not block submissions, got %d", w.Code)
	}
}
