package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/potholewatch/backend/internal/metrics"
)

const (
	// DefaultBaseURL is the public Nominatim endpoint.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"
	// DefaultUserAgent identifies the service, as Nominatim's usage policy requires.
	DefaultUserAgent = "PotholeWatch/1.0"

	cachePrefix = "geocode:"
)

type cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Config configures the Nominatim client.
type Config struct {
	BaseURL    string
	UserAgent  string
	CacheTTL   time.Duration
	HTTPClient *http.Client
	// Interval between upstream calls; Nominatim allows one per second.
	Interval time.Duration
}

// Nominatim reverse-geocodes coordinates through an OSM Nominatim server.
// Results are cached in Redis when a cache is supplied.
type Nominatim struct {
	baseURL   string
	userAgent string
	ttl       time.Duration
	client    *http.Client
	limiter   *rate.Limiter
	cache     cache
	logger    zerolog.Logger
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// NewNominatim builds a client. rdb may be nil to disable caching.
func NewNominatim(cfg Config, rdb *redis.Client) *Nominatim {
	n := newNominatim(cfg)
	if rdb != nil {
		n.cache = rdb
	}
	return n
}

func newNominatim(cfg Config) *Nominatim {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Nominatim{
		baseURL:   base,
		userAgent: ua,
		ttl:       ttl,
		client:    client,
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		logger:    log.With().Str("component", "geocode").Logger(),
	}
}

// ReverseGeocode returns a human-readable address for the coordinates. Any
// failure yields ("", false); callers fall back to a placeholder.
func (n *Nominatim) ReverseGeocode(ctx context.Context, lat, lng float64) (string, bool) {
	key := cacheKey(lat, lng)

	if n.cache != nil {
		if addr, err := n.cache.Get(ctx, key).Result(); err == nil && addr != "" {
			metrics.GeocodeLookups.WithLabelValues("hit").Inc()
			return addr, true
		} else if err != nil && !errors.Is(err, redis.Nil) {
			n.logger.Warn().Err(err).Msg("geocode cache read failed")
		}
	}

	addr, err := n.lookup(ctx, lat, lng)
	if err != nil {
		metrics.GeocodeLookups.WithLabelValues("error").Inc()
		n.logger.Warn().Err(err).Float64("lat", lat).Float64("lng", lng).Msg("reverse geocode failed")
		return "", false
	}
	metrics.GeocodeLookups.WithLabelValues("miss").Inc()

	if n.cache != nil {
		if err := n.cache.Set(ctx, key, addr, n.ttl).Err(); err != nil {
			n.logger.Warn().Err(err).Msg("geocode cache write failed")
		}
	}
	return addr, true
}

func (n *Nominatim) lookup(ctx context.Context, lat, lng float64) (string, error) {
	if err := n.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	params.Set("lon", strconv.FormatFloat(lng, 'f', 6, 64))
	params.Set("format", "jsonv2")
	params.Set("zoom", "18")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("nominatim returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != "" {
		return "", errors.New(parsed.Error)
	}
	addr := strings.TrimSpace(parsed.DisplayName)
	if addr == "" {
		return "", errors.New("empty display_name")
	}
	return addr, nil
}

// cacheKey rounds to ~1m so nearby submissions share an entry.
func cacheKey(lat, lng float64) string {
	return fmt.Sprintf("%s%.5f,%.5f", cachePrefix, lat, lng)
}
