package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSlackNotifierPostsMessage(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewSlackNotifier(srv.URL)
	err := n.Notify(context.Background(), Event{Type: EventCreated, Authority: "TMC", Address: "Thane West", DefectCount: 3})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(got["text"], "Thane Municipal Corporation") || !strings.Contains(got["text"], "3 pothole") {
		t.Fatalf("unexpected message %q", got["text"])
	}
}

func TestSlackNotifierReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := NewSlackNotifier(srv.URL).Notify(context.Background(), Event{Type: EventResolved}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewSlackNotifierWithoutURL(t *testing.T) {
	if NewSlackNotifier("") != nil {
		t.Fatal("expected nil notifier")
	}
}

type recordingNotifier struct {
	events []Event
	err    error
}

func (r *recordingNotifier) Notify(ctx context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestMultiJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("boom")}

	err := Multi{ok, nil, failing}.Notify(context.Background(), Event{Type: EventDeleted})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.events) != 1 || len(failing.events) != 1 {
		t.Fatal("expected every notifier to be called")
	}
}
