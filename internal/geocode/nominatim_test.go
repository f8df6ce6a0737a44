package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type stubCache struct {
	store map[string]string
}

func (s *stubCache) Get(ctx context.Context, key string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	val, ok := s.store[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(val)
	return cmd
}

func (s *stubCache) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if s.store == nil {
		s.store = make(map[string]string)
	}
	s.store[key] = value.(string)
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func TestReverseGeocodeUsesDisplayNameAndCache(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/reverse" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("missing user agent, got %q", r.Header.Get("User-Agent"))
		}
		if r.URL.Query().Get("format") != "jsonv2" {
			t.Errorf("unexpected format %q", r.URL.Query().Get("format"))
		}
		_, _ = w.Write([]byte(`{"display_name":"Ghodbunder Road, Thane West, Thane"}`))
	}))
	defer srv.Close()

	n := newNominatim(Config{BaseURL: srv.URL, UserAgent: "test-agent", Interval: time.Millisecond})
	n.cache = &stubCache{}

	for i := 0; i < 2; i++ {
		addr, ok := n.ReverseGeocode(context.Background(), 19.2183, 72.9781)
		if !ok {
			t.Fatalf("lookup %d failed", i)
		}
		if addr != "Ghodbunder Road, Thane West, Thane" {
			t.Fatalf("unexpected address %q", addr)
		}
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected one upstream call, got %d", got)
	}
}

func TestReverseGeocodeFailureIsAbsorbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := newNominatim(Config{BaseURL: srv.URL, Interval: time.Millisecond})

	addr, ok := n.ReverseGeocode(context.Background(), 0, 0)
	if ok || addr != "" {
		t.Fatalf("expected failure, got %q %v", addr, ok)
	}
}

func TestReverseGeocodeUnableToGeocode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer srv.Close()

	n := newNominatim(Config{BaseURL: srv.URL, Interval: time.Millisecond})

	if _, ok := n.ReverseGeocode(context.Background(), 0, 0); ok {
		t.Fatal("expected failure")
	}
}

func TestCacheKeyRounds(t *testing.T) {
	if cacheKey(19.218301, 72.978101) != cacheKey(19.218302, 72.978104) {
		t.Fatal("expected nearby points to share a key")
	}
}
