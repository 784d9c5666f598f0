package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/relicta-tech/notebase/internal/config"
)

func TestRateLimiter_Refill(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 60, Burst: 2, Interval: time.Minute})
	defer rl.Close()

	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("burst should be allowed")
	}
	if rl.Allow("a") {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Error("clients are limited independently")
	}

	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Error("one token should refill after a second at 60/min")
	}
	if rl.Allow("a") {
		t.Error("only one token should have refilled")
	}
}

func TestPerMinute(t *testing.T) {
	if got := PerMinute(600).Burst; got != 60 {
		t.Errorf("PerMinute(600).Burst = %d", got)
	}
	if got := PerMinute(5).Burst; got != 10 {
		t.Errorf("PerMinute(5).Burst = %d", got)
	}
}

func TestRequireRole(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUser(r) == nil {
			t.Error("user should be in context")
		}
		w.WriteHeader(http.StatusNoContent)
	})
	cfg := config.ServerAuthConfig{
		Mode:    config.ServerAuthAPIKey,
		APIKeys: []config.APIKeyConfig{{Name: "ci", Key: "k"}},
	}
	h := Auth(cfg)(RequireRole(string(config.ServerRoleEditor))(ok))

	// Keys without roles are viewers.
	req := httptest.NewRequest(http.MethodPost, "/?api_key=k", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}

	anon := Auth(config.ServerAuthConfig{Mode: config.ServerAuthNone})(RequireRole(string(config.ServerRoleEditor))(ok))
	rec = httptest.NewRecorder()
	anon.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("anonymous should edit when auth is off, got %d", rec.Code)
	}
}
