package detector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{URL: srv.URL, Confidence: 0.5, Concurrency: 1})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestDetectUsesCount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if _, _, err := r.FormFile("image"); err != nil {
			t.Errorf("missing image: %v", err)
		}
		if r.FormValue("conf") != "0.50" {
			t.Errorf("unexpected conf %q", r.FormValue("conf"))
		}
		_, _ = w.Write([]byte(`{"count": 3}`))
	})

	count, err := c.Detect(context.Background(), []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3, got %d", count)
	}
}

func TestDetectCountsConfidentBoxes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"detections":[{"label":"pothole","confidence":0.9},{"label":"pothole","confidence":0.2},{"label":"pothole","confidence":0.5}]}`))
	})

	count, err := c.Detect(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 confident boxes, got %d", count)
	}
}

func TestDetectFailsOnServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	})

	if _, err := c.Detect(context.Background(), []byte("img")); err == nil {
		t.Fatal("expected error")
	}
}

func TestDetectHonoursContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Detect(ctx, []byte("img")); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestNewClientValidatesURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for empty url")
	}
	if _, err := NewClient(Config{URL: "localhost:9000"}); err == nil {
		t.Fatal("expected error for url without scheme")
	}
}
