package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/usergate/internal/metrics"
	"github.com/hitoshi/usergate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	CSRF              middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// メトリクス
	Metrics         metrics.MetricsCollector
	MetricsGatherer prometheus.Gatherer

	// 認証
	Validator   Validator
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ページ
	CurrentUserFinder CurrentUserFinder
	SMSCodeLength     int

	// ユーザー
	UserService UserServiceInterface

	HealthChecks []HealthCheck
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → CORS → CSRF
//
// POST /register と POST /login にはそれぞれ独立したレート制限を適用する。
// /api/users/me のみセッション必須。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

	authHandler := NewAuthHandler(deps.Validator, deps.AuthService, deps.Metrics, deps.AuthConfig)
	pageHandler := NewPageHandler(deps.CurrentUserFinder, deps.SMSCodeLength)
	userHandler := NewUserHandler(deps.UserService)

	// --- 運用エンドポイント ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecks...))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}
	r.Method(http.MethodGet, "/static/*", StaticHandler())

	// --- 認証不要のルート ---
	r.Get("/", pageHandler.Home)
	r.Get("/register", pageHandler.RegisterPage)
	r.With(deps.RateLimiter.RegisterMiddleware()).Post("/register", authHandler.Register)
	r.Get("/login", pageHandler.LoginPage)
	r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", authHandler.Login)
	r.Get("/logout", authHandler.Logout)
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

	// --- 認証が必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Get("/api/users/me", userHandler.Me)
	})

	return r
}

// NewOpsRouter はワーカープロセス用の /health と /metrics のみを持つルーターを返す。
func NewOpsRouter(logger *slog.Logger, gatherer prometheus.Gatherer, checks ...HealthCheck) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger, nil))
	r.Use(middleware.NewRecoveryMiddleware())

	r.Method(http.MethodGet, "/health", NewHealthHandler(checks...))
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	}
	return r
}
