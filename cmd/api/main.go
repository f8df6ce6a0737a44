package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/potholewatch/backend/internal/auth"
	"github.com/potholewatch/backend/internal/config"
	"github.com/potholewatch/backend/internal/db"
	"github.com/potholewatch/backend/internal/detector"
	"github.com/potholewatch/backend/internal/geocode"
	internalhttp "github.com/potholewatch/backend/internal/http"
	"github.com/potholewatch/backend/internal/metrics"
	"github.com/potholewatch/backend/internal/mongostore"
	"github.com/potholewatch/backend/internal/notify"
	"github.com/potholewatch/backend/internal/report"
	"github.com/potholewatch/backend/internal/repo"
	"github.com/potholewatch/backend/internal/service"
	"github.com/potholewatch/backend/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api exited with error")
	}
}

type userStore interface {
	InsertUser(ctx context.Context, in repo.NewUser) (repo.User, error)
	GetUserByEmail(ctx context.Context, email string) (repo.User, error)
	GetUserByID(ctx context.Context, id string) (repo.User, error)
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	setupLogger(cfg)
	metrics.Register()

	ctx := context.Background()

	var (
		reports report.Store
		users   userStore
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMongo:
		client, database, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return fmt.Errorf("mongo: %w", err)
		}
		defer client.Disconnect(context.Background())
		reports = mongostore.NewReports(database)
		users = mongostore.NewUsers(database)
	default:
		pool, err := db.NewPool(ctx, cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("db migrate: %w", err)
		}
		reports = report.NewRepository(pool)
		users = repo.NewUsers(pool)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis parse: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	images, uploads, err := newImageStore(cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	det, err := detector.NewClient(detector.Config{
		URL:         cfg.Detector.URL,
		Confidence:  cfg.Detector.Confidence,
		Concurrency: cfg.Detector.Concurrency,
	})
	if err != nil {
		return fmt.Errorf("detector: %w", err)
	}

	deps := report.Deps{
		Store:         reports,
		Images:        images,
		Detector:      det,
		DetectTimeout: cfg.Detector.Timeout,
	}
	if cfg.Geocoder.URL != "" {
		deps.Geocoder = geocode.NewNominatim(geocode.Config{
			BaseURL:   cfg.Geocoder.URL,
			UserAgent: cfg.Geocoder.UserAgent,
			CacheTTL:  cfg.Geocoder.CacheTTL,
		}, redisClient)
	}

	var notifiers notify.Multi
	if slack := notify.NewSlackNotifier(cfg.SlackWebhookURL); slack != nil {
		notifiers = append(notifiers, slack)
	}
	if cfg.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return fmt.Errorf("amqp: %w", err)
		}
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}
	if len(notifiers) > 0 {
		deps.Notifier = notifiers
	}

	reportService, err := report.NewService(deps)
	if err != nil {
		return fmt.Errorf("report service: %w", err)
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTTL)
	authService := service.NewAuthService(users, redisClient, jwtManager, cfg.JWTRefreshTTL)

	routerDeps := internalhttp.Deps{
		Reports:   reportService,
		Accounts:  authService,
		RedisPing: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}
	if uploads != nil {
		routerDeps.Uploads = http.Dir(uploads.Root())
		routerDeps.UploadsPrefix = uploads.Prefix()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           internalhttp.NewRouter(cfg, routerDeps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("store", cfg.StoreDriver).Str("storage", cfg.Storage.Provider).Msgf("API listening on :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newImageStore returns the configured store, plus the local store when
// images are kept on disk so the router can serve them.
func newImageStore(cfg *config.Config) (report.ImageStore, *storage.LocalStore, error) {
	switch cfg.Storage.Provider {
	case config.StorageS3:
		s3, err := storage.NewS3Store(storage.S3Config{
			Endpoint:     cfg.Storage.S3Endpoint,
			Region:       cfg.Storage.S3Region,
			Bucket:       cfg.Storage.S3Bucket,
			AccessKey:    cfg.Storage.S3AccessKey,
			SecretKey:    cfg.Storage.S3SecretKey,
			PublicDomain: cfg.Storage.S3PublicDomain,
		})
		if err != nil {
			return nil, nil, err
		}
		return s3, nil, nil
	default:
		local, err := storage.NewLocalStore(cfg.Storage.UploadDir, "uploads")
		if err != nil {
			return nil, nil, err
		}
		return local, local, nil
	}
}

func setupLogger(cfg *config.Config) {
	if cfg.LogFormat != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
