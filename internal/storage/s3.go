package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// S3Config holds what is needed to sign requests against an S3-compatible
// endpoint (AWS, R2, MinIO).
type S3Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	PublicDomain string
	HTTPClient   *http.Client
}

// S3Store stores images in a bucket using path-style SigV4 requests.
// References are public URLs when PublicDomain is set, otherwise object URLs.
type S3Store struct {
	cfg    S3Config
	client *http.Client
	now    func() time.Time
}

// NewS3Store validates cfg and returns a ready store.
func NewS3Store(cfg S3Config) (*S3Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	cfg.PublicDomain = strings.TrimRight(strings.TrimSpace(cfg.PublicDomain), "/")

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &S3Store{cfg: cfg, client: client, now: time.Now}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if len(body) == 0 {
		return "", errors.New("storage: empty body")
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}

	headers := http.Header{}
	headers.Set("Content-Type", contentType)
	headers.Set("Cache-Control", "public, max-age=31536000, immutable")

	if err := s.do(ctx, http.MethodPut, clean, body, headers); err != nil {
		return "", err
	}
	return s.refFor(clean), nil
}

func (s *S3Store) Delete(ctx context.Context, ref string) error {
	clean, err := cleanKey(s.keyFromRef(ref))
	if err != nil {
		return err
	}
	// S3 answers 204 for missing keys as well, so this is idempotent.
	return s.do(ctx, http.MethodDelete, clean, nil, http.Header{})
}

func (s *S3Store) objectURL(key string) string {
	escaped := (&url.URL{Path: key}).EscapedPath()
	return fmt.Sprintf("%s/%s/%s", s.cfg.Endpoint, s.cfg.Bucket, escaped)
}

func (s *S3Store) refFor(key string) string {
	if s.cfg.PublicDomain != "" {
		return s.cfg.PublicDomain + "/" + (&url.URL{Path: key}).EscapedPath()
	}
	return s.objectURL(key)
}

func (s *S3Store) keyFromRef(ref string) string {
	ref = strings.TrimSpace(ref)
	for _, prefix := range []string{s.cfg.PublicDomain, s.cfg.Endpoint + "/" + s.cfg.Bucket} {
		if prefix != "" && strings.HasPrefix(ref, prefix+"/") {
			raw := strings.TrimPrefix(ref, prefix+"/")
			if unescaped, err := url.PathUnescape(raw); err == nil {
				return unescaped
			}
			return raw
		}
	}
	return ref
}

func (s *S3Store) do(ctx context.Context, method, key string, body []byte, headers http.Header) error {
	req, err := http.NewRequestWithContext(ctx, method, s.objectURL(key), bytes.NewReader(body))
	if err != nil {
		return err
	}
	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	sum := sha256.Sum256(body)
	payloadHash := hex.EncodeToString(sum[:])
	req.ContentLength = int64(len(body))
	if len(body) > 0 {
		req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	}
	req.Header.Set("x-amz-content-sha256", payloadHash)

	signer{region: s.cfg.Region, accessKey: s.cfg.AccessKey, secretKey: s.cfg.SecretKey}.
		sign(req, payloadHash, s.now().UTC())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("storage: %s %s: %w", method, key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodDelete {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("storage: %s failed (%d): %s", strings.ToLower(method), resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (cfg S3Config) validate() error {
	required := []struct{ value, name string }{
		{cfg.Endpoint, "endpoint"},
		{cfg.Region, "region"},
		{cfg.Bucket, "bucket"},
		{cfg.AccessKey, "access key"},
		{cfg.SecretKey, "secret key"},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("storage: s3 %s is required", r.name)
		}
	}
	if !strings.HasPrefix(cfg.Endpoint, "http://") && !strings.HasPrefix(cfg.Endpoint, "https://") {
		return errors.New("storage: s3 endpoint must include http/https")
	}
	return nil
}
