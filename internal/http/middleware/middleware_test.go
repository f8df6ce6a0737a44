package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/potholewatch/backend/internal/auth"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Subject", GetSubject(r.Context()))
		w.Header().Set("X-Role", GetRole(r.Context()))
		w.Header().Set("X-Authority", GetAuthority(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func issue(t *testing.T, mgr *auth.JWTManager, id auth.Identity) string {
	t.Helper()
	token, _, err := mgr.GenerateAccessToken(id)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestAuthRequiresToken(t *testing.T) {
	mgr := auth.NewJWTManager(testSecret, time.Minute)
	h := Auth(mgr)(echoIdentity())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, mgr, auth.Identity{Subject: "u1", Role: "admin-bmc", Authority: "BMC"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Subject") != "u1" || rec.Header().Get("X-Role") != "admin-bmc" || rec.Header().Get("X-Authority") != "BMC" {
		t.Fatalf("unexpected identity headers %v", rec.Header())
	}
}

func TestOptionalAuth(t *testing.T) {
	mgr := auth.NewJWTManager(testSecret, time.Minute)
	h := OptionalAuth(mgr)(echoIdentity())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports", nil))
	if rec.Code != http.StatusOK || rec.Header().Get("X-Subject") != "" {
		t.Fatalf("anonymous request should pass, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("invalid token should be rejected, got %d", rec.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	mgr := auth.NewJWTManager(testSecret, time.Minute)
	h := Auth(mgr)(RequireAdmin(echoIdentity()))

	cases := map[string]int{
		"user":       http.StatusForbidden,
		"admin":      http.StatusOK,
		"admin-nmmc": http.StatusOK,
	}
	for role, want := range cases {
		req := httptest.NewRequest(http.MethodPatch, "/update_status/1", nil)
		req.Header.Set("Authorization", "Bearer "+issue(t, mgr, auth.Identity{Subject: "u", Role: role}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("role %s: expected %d, got %d", role, want, rec.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:5173", "*.potholewatch.in"})(echoIdentity())

	cases := map[string]bool{
		"http://localhost:5173":       true,
		"https://app.potholewatch.in": true,
		"https://potholewatch.in":     false,
		"https://evil.example.com":    false,
	}
	for origin, allowed := range cases {
		req := httptest.NewRequest(http.MethodOptions, "/report", nil)
		req.Header.Set("Origin", origin)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Fatalf("preflight for %s: expected 204, got %d", origin, rec.Code)
		}
		got := rec.Header().Get("Access-Control-Allow-Origin") == origin
		if got != allowed {
			t.Fatalf("origin %s: allowed=%v, want %v", origin, got, allowed)
		}
	}
}

func TestIPRateLimit(t *testing.T) {
	limiter := NewRateLimiter("test", 1, 2)
	h := IPRateLimit(limiter)(echoIdentity())

	var codes []int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/reports", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other IP should have its own bucket, got %d", rec.Code)
	}
}

func TestRecover(t *testing.T) {
	h := Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	cases := map[time.Duration]string{
		10 * time.Millisecond:   "1",
		time.Second:             "1",
		1500 * time.Millisecond: "2",
	}
	for d, want := range cases {
		if got := retryAfter(d); got != want {
			t.Fatalf("retryAfter(%s) = %s, want %s", d, got, want)
		}
	}
}
