package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// Config describes the inference sidecar.
type Config struct {
	URL         string
	Confidence  float64
	Concurrency int64
	HTTPClient  *http.Client
}

// Client calls a YOLO-style inference service that accepts a multipart image
// and answers with the detected boxes.
type Client struct {
	url        string
	confidence float64
	client     *http.Client
	sem        *semaphore.Weighted
}

type detectResponse struct {
	Count      *int `json:"count"`
	Detections []struct {
		Label      string    `json:"label"`
		Confidence float64   `json:"confidence"`
		Box        []float64 `json:"box"`
	} `json:"detections"`
}

// NewClient validates cfg and builds a client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("detector: url is required")
	}
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return nil, errors.New("detector: url must include http/https")
	}
	if cfg.Confidence <= 0 || cfg.Confidence > 1 {
		cfg.Confidence = 0.5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		url:        strings.TrimRight(cfg.URL, "/"),
		confidence: cfg.Confidence,
		client:     client,
		sem:        semaphore.NewWeighted(cfg.Concurrency),
	}, nil
}

// Detect returns the number of defects found in image. It waits for a free
// inference slot, so a cancelled ctx also aborts queued calls.
func (c *Client) Detect(ctx context.Context, image []byte) (int, error) {
	if len(image) == 0 {
		return 0, errors.New("detector: empty image")
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("detector: waiting for slot: %w", err)
	}
	defer c.sem.Release(1)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", "image")
	if err != nil {
		return 0, err
	}
	if _, err := part.Write(image); err != nil {
		return 0, err
	}
	if err := writer.WriteField("conf", strconv.FormatFloat(c.confidence, 'f', 2, 64)); err != nil {
		return 0, err
	}
	if err := writer.Close(); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/detect", &body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("detector: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("detector: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("detector: decode response: %w", err)
	}

	if parsed.Count != nil {
		if *parsed.Count < 0 {
			return 0, fmt.Errorf("detector: negative count %d", *parsed.Count)
		}
		return *parsed.Count, nil
	}

	count := 0
	for _, d := range parsed.Detections {
		if d.Confidence >= c.confidence {
			count++
		}
	}
	return count, nil
}
