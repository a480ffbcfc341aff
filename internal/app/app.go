package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/usergate/internal/auth"
	"github.com/hitoshi/usergate/internal/config"
	"github.com/hitoshi/usergate/internal/database"
	"github.com/hitoshi/usergate/internal/handler"
	"github.com/hitoshi/usergate/internal/logger"
	"github.com/hitoshi/usergate/internal/metrics"
	"github.com/hitoshi/usergate/internal/middleware"
	"github.com/hitoshi/usergate/internal/repository"
	"github.com/hitoshi/usergate/internal/security"
	"github.com/hitoshi/usergate/internal/user"
	"github.com/hitoshi/usergate/internal/validation"
	"github.com/hitoshi/usergate/internal/verification"
	"github.com/hitoshi/usergate/internal/worker/cleanup"
)

const (
	connectTimeout  = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映する
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		slog.Warn("unknown LOG_LEVEL, falling back to info", slog.String("log_level", cfg.LogLevel))
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。issue-codeの発行コードはwに出力する。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, CommandArgs(args))
	case CommandIssueCode:
		return runIssueCode(cfg, w, CommandArgs(args))
	case CommandRevokeSessions:
		return runRevokeSessions(cfg, CommandArgs(args))
	default:
		return runServe(cfg)
	}
}

// openDatabase はプール設定を適用してDBに接続し、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
	})
	if err != nil {
		return nil, err
	}

	if err := database.Ping(context.Background(), db, connectTimeout); err != nil {
		db.Close()
		return nil, err
	}

	slog.Info("database connection established")
	return db, nil
}

// openRedis は認証コード用のRedisクライアントを生成し、疎通を確認する。
func openRedis(cfg *config.Config) (*redis.Client, error) {
	rdb, err := verification.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("redis connection established")
	return rdb, nil
}

// newRegistry はプロセス標準のコレクタを登録したレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func databaseCheck(db *sql.DB) handler.HealthCheck {
	return handler.HealthCheck{Name: "database", Check: db.PingContext}
}

func redisCheck(rdb *redis.Client) handler.HealthCheck {
	return handler.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}}
}

// runServe はAPIサーバーモードで起動する。
// DBとRedisに接続し、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. 接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb, err := openRedis(cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)

	// 3. ドメインサービスの初期化
	hasher := security.NewBcryptHasher(cfg.BcryptCost)
	users := user.NewStore(userRepo, hasher)
	codes := verification.NewRedisCodeStore(rdb)
	validator := validation.NewValidator(users, codes, cfg.SMSCodeLength)
	authService := auth.NewService(users, sessionRepo, auth.ServiceConfig{
		SessionExpires: cfg.UserSessionExpires,
	})

	// 4. メトリクスとレート制限
	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	rateLimiterCfg := middleware.PerMinuteRateLimiterConfig(cfg.RateLimitLogin, cfg.RateLimitRegister)
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	// 5. ルーターの構築
	csrfCfg := middleware.CSRFConfig{
		CookieDomain: cfg.CookieDomain,
		CookieSecure: cfg.CookieSecure,
	}
	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		SessionFinder:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRF:              csrfCfg,
		RateLimiter:       rateLimiter,

		Metrics:         collector,
		MetricsGatherer: reg,

		Validator:   validator,
		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain: cfg.CookieDomain,
			CookieSecure: cfg.CookieSecure,
		},

		CurrentUserFinder: authService,
		SMSCodeLength:     validator.SMSCodeLength(),
		UserService:       authService,

		HealthChecks: []handler.HealthCheck{databaseCheck(db), redisCheck(rdb)},
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := newHTTPServer(cfg.ServerPort, router)
	slog.Info("API server starting", slog.String("addr", server.Addr))
	if err := serveUntilSignal(server); err != nil {
		return err
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除ジョブを定期実行し、/health と /metrics を公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sessionRepo := repository.NewPostgresSessionRepo(db)

	reg := newRegistry()
	collector := metrics.NewCollector(reg)

	cleanupJob := cleanup.NewCleanupJob(sessionRepo, collector, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		cleanupJob.Start(ctx, cfg.SessionCleanupInterval)
	}()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)

	server := newHTTPServer(cfg.ServerPort, handler.NewOpsRouter(slog.Default(), reg, databaseCheck(db)))
	err = serveUntilSignal(server)

	cancel()
	<-done

	if err != nil {
		return err
	}
	slog.Info("worker stopped gracefully")
	return nil
}

func newHTTPServer(port string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// serveUntilSignal はサーバーを起動し、シグナル受信またはListen失敗まで待つ。
func serveUntilSignal(server *http.Server) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}

	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// migrateAction はmigrateサブコマンドの動作。
type migrateAction struct {
	name  string // up, down, version
	steps int
}

// parseMigrateArgs はmigrate以降の引数を解釈する。
// 引数なしは "up"、"down" の既定ステップ数は1。
func parseMigrateArgs(args []string) (migrateAction, error) {
	if len(args) == 0 {
		return migrateAction{name: "up"}, nil
	}

	switch args[0] {
	case "up":
		return migrateAction{name: "up"}, nil
	case "version":
		return migrateAction{name: "version"}, nil
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return migrateAction{}, fmt.Errorf("invalid rollback steps: %q", args[1])
			}
			steps = n
		}
		return migrateAction{name: "down", steps: steps}, nil
	default:
		return migrateAction{}, fmt.Errorf("unknown migrate action: %q", args[0])
	}
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, args []string) error {
	action, err := parseMigrateArgs(args)
	if err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("action", action.name),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action.name {
	case "down":
		if err := database.RollbackMigrations(cfg.DatabaseURL, action.steps); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back", slog.Int("steps", action.steps))
	case "version":
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("current migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	}
	return nil
}

// runIssueCode は携帯番号の認証コードを生成してRedisに保存し、wに出力する。
// コード自体はログに残さない。
func runIssueCode(cfg *config.Config, w io.Writer, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: issue-code <mobile>")
	}
	mobile := args[0]
	if !validation.IsMobile(mobile) {
		return fmt.Errorf("invalid mobile number: %q", mobile)
	}

	code, err := verification.GenerateCode(cfg.SMSCodeLength)
	if err != nil {
		return err
	}

	rdb, err := openRedis(cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	store := verification.NewRedisCodeStore(rdb)
	if err := store.Save(ctx, mobile, code, cfg.SMSCodeExpires); err != nil {
		return err
	}

	slog.Info("verification code issued",
		slog.String("mobile", mobile),
		slog.Duration("expires", cfg.SMSCodeExpires),
	)
	fmt.Fprintln(w, code)
	return nil
}

// runRevokeSessions は指定ユーザーIDの全セッションを削除する。
func runRevokeSessions(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: revoke-sessions <user_id>")
	}
	userID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid user id: %q", args[0])
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	users := user.NewStore(repository.NewPostgresUserRepo(db), security.NewBcryptHasher(cfg.BcryptCost))
	authService := auth.NewService(users, repository.NewPostgresSessionRepo(db), auth.ServiceConfig{
		SessionExpires: cfg.UserSessionExpires,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	return authService.RevokeSessions(ctx, userID.String())
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
