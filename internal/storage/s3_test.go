package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestS3StorePutAndDelete(t *testing.T) {
	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		if r.URL.Path != "/bucket/evidence/a.jpg" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AK/20240102/auto/s3/aws4_request") {
			t.Errorf("unexpected authorization %q", auth)
		}
		if r.Method == http.MethodPut {
			body, _ := io.ReadAll(r.Body)
			if string(body) != "img" {
				t.Errorf("unexpected body %q", body)
			}
			if r.Header.Get("Content-Type") != "image/jpeg" {
				t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
			}
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store, err := NewS3Store(S3Config{
		Endpoint:     srv.URL,
		Region:       "auto",
		Bucket:       "bucket",
		AccessKey:    "AK",
		SecretKey:    "SK",
		PublicDomain: "https://cdn.example.com",
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	store.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	ref, err := store.Put(context.Background(), "evidence/a.jpg", []byte("img"), "image/jpeg")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if ref != "https://cdn.example.com/evidence/a.jpg" {
		t.Fatalf("unexpected ref %q", ref)
	}

	if err := store.Delete(context.Background(), ref); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if len(methods) != 2 || methods[0] != http.MethodPut || methods[1] != http.MethodDelete {
		t.Fatalf("unexpected calls %v", methods)
	}
}

func TestS3StoreDeleteMissingIsNoop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	store, err := NewS3Store(S3Config{Endpoint: srv.URL, Region: "us-east-1", Bucket: "b", AccessKey: "a", SecretKey: "s"})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Delete(context.Background(), srv.URL+"/b/gone.jpg"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestS3ConfigValidate(t *testing.T) {
	if _, err := NewS3Store(S3Config{Endpoint: "https://x", Region: "r", Bucket: "b", AccessKey: "a"}); err == nil {
		t.Fatal("expected missing secret key error")
	}
	if _, err := NewS3Store(S3Config{Endpoint: "x.example.com", Region: "r", Bucket: "b", AccessKey: "a", SecretKey: "s"}); err == nil {
		t.Fatal("expected scheme error")
	}
}

func TestAWSEscape(t *testing.T) {
	if got := awsEscape("a b/c~", false); got != "a%20b/c~" {
		t.Fatalf("unexpected %q", got)
	}
	if got := awsEscape("a/b", true); got != "a%2Fb" {
		t.Fatalf("unexpected %q", got)
	}
}
