package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"

	StorageLocal = "local"
	StorageS3    = "s3"
)

// Config holds everything loaded from the environment.
type Config struct {
	Port          int
	StoreDriver   string
	DBDSN         string
	MongoURI      string
	MongoDB       string
	RedisURL      string
	JWTAccessTTL  time.Duration
	JWTRefreshTTL time.Duration
	JWTSecret     string
	AllowOrigins  []string

	RateLimitPublic RateLimitConfig
	RateLimitAuth   RateLimitConfig

	Detector DetectorConfig
	Geocoder GeocoderConfig
	Storage  StorageConfig

	MaxUploadBytes  int64
	SlackWebhookURL string
	AMQPURL         string
	AMQPExchange    string

	LogLevel  string
	LogFormat string
}

// RateLimitConfig is a simple token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// DetectorConfig points at the inference sidecar.
type DetectorConfig struct {
	URL         string
	Timeout     time.Duration
	Concurrency int64
	Confidence  float64
}

// GeocoderConfig configures reverse geocoding. An empty URL disables it.
type GeocoderConfig struct {
	URL       string
	UserAgent string
	CacheTTL  time.Duration
}

// StorageConfig selects and configures the image store.
type StorageConfig struct {
	Provider       string
	UploadDir      string
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3PublicDomain string
}

// Load reads the environment (and .env when present) and applies defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil || port <= 0 {
		return nil, errors.New("invalid PORT")
	}
	cfg.Port = port

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(getEnv("STORE_DRIVER", StoreDriverPostgres)))
	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		cfg.DBDSN = getEnv("DB_DSN", "")
		if cfg.DBDSN == "" {
			return nil, errors.New("DB_DSN is required")
		}
	case StoreDriverMongo:
		cfg.MongoURI = getEnv("MONGO_URI", "")
		if cfg.MongoURI == "" {
			return nil, errors.New("MONGO_URI is required")
		}
		cfg.MongoDB = getEnv("MONGO_DB", "pothole")
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	cfg.RedisURL = getEnv("REDIS_URL", "")
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", ""))
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET must have at least 32 characters")
	}

	if cfg.JWTAccessTTL, err = parseDurationEnv("JWT_ACCESS_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.JWTRefreshTTL, err = parseDurationEnv("JWT_REFRESH_TTL", 30*24*time.Hour); err != nil {
		return nil, err
	}

	for _, origin := range strings.Split(getEnv("ALLOW_ORIGINS", ""), ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, origin)
		}
	}

	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 5, Burst: 10}
	cfg.RateLimitAuth = RateLimitConfig{RequestsPerSecond: 10, Burst: 40}

	cfg.Detector.URL = strings.TrimSpace(getEnv("DETECTOR_URL", "http://localhost:9000"))
	if cfg.Detector.Timeout, err = parseDurationEnv("DETECT_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	concurrency, err := strconv.ParseInt(getEnv("DETECTOR_CONCURRENCY", "4"), 10, 64)
	if err != nil || concurrency <= 0 {
		return nil, errors.New("invalid DETECTOR_CONCURRENCY")
	}
	cfg.Detector.Concurrency = concurrency
	confidence, err := strconv.ParseFloat(getEnv("DETECT_CONFIDENCE", "0.5"), 64)
	if err != nil || confidence <= 0 || confidence > 1 {
		return nil, errors.New("DETECT_CONFIDENCE must be in (0, 1]")
	}
	cfg.Detector.Confidence = confidence

	cfg.Geocoder.URL = strings.TrimSpace(getEnv("GEOCODER_URL", "https://nominatim.openstreetmap.org"))
	cfg.Geocoder.UserAgent = strings.TrimSpace(getEnv("GEOCODER_USER_AGENT", "PotholeWatch/1.0"))
	if cfg.Geocoder.CacheTTL, err = parseDurationEnv("GEOCODE_CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}

	cfg.Storage = StorageConfig{
		Provider:       strings.ToLower(strings.TrimSpace(getEnv("STORAGE_PROVIDER", StorageLocal))),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		S3Endpoint:     getEnv("S3_ENDPOINT", ""),
		S3Region:       getEnv("S3_REGION", "auto"),
		S3Bucket:       getEnv("S3_BUCKET", ""),
		S3AccessKey:    getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("S3_SECRET_KEY", ""),
		S3PublicDomain: getEnv("S3_PUBLIC_DOMAIN", ""),
	}
	if cfg.Storage.Provider != StorageLocal && cfg.Storage.Provider != StorageS3 {
		return nil, fmt.Errorf("unknown STORAGE_PROVIDER %q", cfg.Storage.Provider)
	}

	maxMB, err := strconv.Atoi(getEnv("MAX_UPLOAD_MB", "10"))
	if err != nil || maxMB <= 0 {
		return nil, errors.New("invalid MAX_UPLOAD_MB")
	}
	cfg.MaxUploadBytes = int64(maxMB) << 20

	cfg.SlackWebhookURL = strings.TrimSpace(getEnv("SLACK_WEBHOOK_URL", ""))
	cfg.AMQPURL = strings.TrimSpace(getEnv("AMQP_URL", ""))
	cfg.AMQPExchange = strings.TrimSpace(getEnv("AMQP_EXCHANGE", "pothole.reports"))

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info")))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(getEnv("LOG_FORMAT", "console")))

	return cfg, nil
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil || dur <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return dur, nil
}
