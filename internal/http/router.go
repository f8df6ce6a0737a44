package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/potholewatch/backend/internal/auth"
	"github.com/potholewatch/backend/internal/config"
	httpmiddleware "github.com/potholewatch/backend/internal/http/middleware"
	"github.com/potholewatch/backend/internal/report"
	"github.com/potholewatch/backend/internal/service"
)

type reportService interface {
	Ping(ctx context.Context) error
	Predict(ctx context.Context, image []byte) (int, error)
	Create(ctx context.Context, sub report.Submission) (*report.Report, error)
	List(ctx context.Context, caller report.Caller, opts report.ListOptions) ([]report.Report, error)
	Get(ctx context.Context, id string) (*report.Report, error)
	Resolve(ctx context.Context, caller report.Caller, id string, image []byte) (*report.Report, error)
	Delete(ctx context.Context, caller report.Caller, id string) error
}

type accountService interface {
	JWT() *auth.JWTManager
	Signup(ctx context.Context, in service.SignupInput) (*service.Profile, error)
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	Refresh(ctx context.Context, rawToken string) (*service.LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	GetMe(ctx context.Context, subject string) (*service.Profile, error)
}

// Deps are the collaborators the HTTP layer needs. RedisPing and Uploads
// are optional.
type Deps struct {
	Reports   reportService
	Accounts  accountService
	RedisPing func(ctx context.Context) error
	// Uploads serves the local image directory under UploadsPrefix.
	Uploads       http.FileSystem
	UploadsPrefix string
}

type Handler struct {
	cfg           *config.Config
	reports       reportService
	accounts      accountService
	redisPing     func(ctx context.Context) error
	maxUpload     int64
	publicLimiter *httpmiddleware.RateLimiter
	authLimiter   *httpmiddleware.RateLimiter
}

// NewRouter returns the configured router.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	h := &Handler{
		cfg:           cfg,
		reports:       deps.Reports,
		accounts:      deps.Accounts,
		maxUpload:     cfg.MaxUploadBytes,
		publicLimiter: httpmiddleware.NewRateLimiter("public", cfg.RateLimitPublic.RequestsPerSecond, cfg.RateLimitPublic.Burst),
		authLimiter:   httpmiddleware.NewRateLimiter("user", cfg.RateLimitAuth.RequestsPerSecond, cfg.RateLimitAuth.Burst),
	}
	h.redisPing = deps.RedisPing
	if h.maxUpload <= 0 {
		h.maxUpload = 10 << 20
	}

	jwtManager := deps.Accounts.JWT()

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(httpmiddleware.Logging)
	r.Use(httpmiddleware.Recover)
	r.Use(httpmiddleware.CORS(cfg.AllowOrigins))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	if deps.Uploads != nil {
		prefix := "/" + strings.Trim(deps.UploadsPrefix, "/") + "/"
		r.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(filesOnly{root: deps.Uploads})))
	}

	r.Group(func(public chi.Router) {
		public.Use(httpmiddleware.IPRateLimit(h.publicLimiter))

		public.Post("/predict", h.Predict)
		public.Post("/signup", h.Signup)
		public.Post("/login", h.Login)
		public.Route("/auth", func(a chi.Router) {
			a.Post("/refresh", h.Refresh)
			a.Post("/logout", h.Logout)
		})

		public.Group(func(optional chi.Router) {
			optional.Use(httpmiddleware.OptionalAuth(jwtManager))

			optional.Post("/report", h.CreateReport)
			optional.Get("/reports", h.ListReports)
			optional.Get("/reports/{id}", h.GetReport)
		})
	})

	r.Group(func(private chi.Router) {
		private.Use(httpmiddleware.Auth(jwtManager))
		private.Use(httpmiddleware.UserRateLimit(h.authLimiter))

		private.Get("/me", h.Me)
		private.Delete("/reports/{id}", h.DeleteReport)

		private.Group(func(admin chi.Router) {
			admin.Use(httpmiddleware.RequireAdmin)
			admin.Patch("/update_status/{id}", h.ResolveReport)
		})
	})

	return r
}

// Health is a liveness probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready checks the report store and Redis.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	storeErr := h.reports.Ping(ctx)
	var redisErr error
	if h.redisPing != nil {
		redisErr = h.redisPing(ctx)
	}

	if storeErr != nil || redisErr != nil {
		WriteError(w, http.StatusServiceUnavailable, "INTERNAL", "dependencies unavailable", map[string]any{
			"store": errorString(storeErr),
			"redis": errorString(redisErr),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
