package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zagshelpzags/zagmarket/internal/auth"
	"github.com/zagshelpzags/zagmarket/internal/config"
	"github.com/zagshelpzags/zagmarket/internal/database"
	"github.com/zagshelpzags/zagmarket/internal/handler"
	"github.com/zagshelpzags/zagmarket/internal/identity"
	"github.com/zagshelpzags/zagmarket/internal/imagestore"
	"github.com/zagshelpzags/zagmarket/internal/listing"
	"github.com/zagshelpzags/zagmarket/internal/logger"
	"github.com/zagshelpzags/zagmarket/internal/metrics"
	"github.com/zagshelpzags/zagmarket/internal/middleware"
	"github.com/zagshelpzags/zagmarket/internal/repository"
	"github.com/zagshelpzags/zagmarket/internal/security"
	"github.com/zagshelpzags/zagmarket/internal/user"
	"github.com/zagshelpzags/zagmarket/internal/worker/cleanup"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// runtime はサブコマンド実行時に共有する初期化済みの状態。
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
}

// Init はアプリケーションの初期化を行う。
// 設定(環境変数と任意のTOMLファイル)を読み込み、JSON構造化ログをセットアップする。
// ログ出力先はwriter。
func Init(w io.Writer, configPath string) (*config.Config, error) {
	// 1. 設定読み込み前にもログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 設定を読み込む
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再セットアップ
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

func newRuntime(w io.Writer, configPath string, cmd Command) (*runtime, error) {
	cfg, err := Init(w, configPath)
	if err != nil {
		return nil, fmt.Errorf("initialization failed: %w", err)
	}

	log := slog.Default()
	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.Bool("image_uploads", cfg.ImageUploadsEnabled()),
	)

	return &runtime{cfg: cfg, logger: log}, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(databaseURL string) (*sqlx.DB, error) {
	db, err := database.Open(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// buildRouter は全依存関係をワイヤリングしてHTTPハンドラーを構築する。
func buildRouter(ctx context.Context, rt *runtime, db *sqlx.DB, rateLimiter *middleware.RateLimiter) (http.Handler, error) {
	cfg := rt.cfg
	log := rt.logger

	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. セキュリティ
	guard := security.NewURLGuard()
	sanitizer := security.NewTextSanitizer()

	// 3. IdPクライアント
	idp := identity.NewClient(
		guard.NewSafeClient(cfg.IdPTimeout),
		log,
		cfg.StytchBaseURL,
		cfg.StytchProjectID,
		cfg.StytchSecret,
	)

	// 4. ドメインサービス
	listingRepo := repository.NewPostgresListingRepo(db)
	listingService := listing.NewService(listingRepo, listing.NewValidator(sanitizer, guard), collector, log)
	authService := auth.NewService(idp, auth.ServiceConfig{
		AllowedEmailDomain:     cfg.AllowedEmailDomain,
		SessionDurationMinutes: cfg.SessionDurationMinutes,
	}, log)
	accountService := user.NewService(listingService, idp, collector, log)

	deps := &handler.RouterDeps{
		SessionVerifier:   idp,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		MaxBodyBytes:      cfg.MaxBodyBytes,
		Logger:            log,
		Recorder:          collector,
		MetricsHandler:    metrics.Handler(reg),
		HealthChecker:     db,
		AuthService:       authService,
		ListingService:    listingService,
		AccountService:    accountService,
	}

	// 5. 画像アップロード(バケット未設定なら無効)
	if cfg.ImageUploadsEnabled() {
		store, err := imagestore.New(ctx, imagestore.Config{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
			Expiry:        cfg.S3UploadExpiry,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure image store: %w", err)
		}
		deps.ImageUploader = store
	}

	return handler.NewRouter(deps), nil
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(rt *runtime) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(rt.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	rt.logger.Info("database connection established")

	rateLimiter := middleware.NewRateLimiter(
		middleware.DefaultRateLimiterConfig(rt.cfg.RateLimitWrite, rt.cfg.RateLimitAuth),
	)
	defer rateLimiter.Stop()

	router, err := buildRouter(ctx, rt, db, rateLimiter)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + rt.cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		rt.logger.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}

	rt.logger.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	rt.logger.Info("API server stopped gracefully")
	return nil
}

// runWorker は出品の保持期間クリーンアップを定期実行する。
// 削除件数などのメトリクスはWorkerMetricsPortの/metricsで公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(rt *runtime) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(rt.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	rt.logger.Info("database connection established (worker)")

	reg := prometheus.NewRegistry()
	job := cleanup.NewCleanupJob(db, rt.logger, metrics.NewCollector(reg), rt.cfg.ListingRetentionDays)

	metricsServer := newWorkerMetricsServer(rt.cfg.WorkerMetricsPort, reg)
	go func() {
		rt.logger.Info("worker metrics server starting", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rt.logger.Error("worker metrics server error", slog.String("error", err.Error()))
		}
	}()

	rt.logger.Info("worker starting",
		slog.Int("retention_days", rt.cfg.ListingRetentionDays),
		slog.Duration("interval", rt.cfg.CleanupInterval),
		slog.Bool("enabled", job.Enabled()),
	)

	job.Schedule(ctx, rt.cfg.CleanupInterval)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("worker metrics server shutdown failed: %w", err)
	}

	rt.logger.Info("worker stopped gracefully")
	return nil
}

// newWorkerMetricsServer はワーカーのメトリクスだけを公開するHTTPサーバーを構築する。
func newWorkerMetricsServer(port string, reg *prometheus.Registry) *http.Server {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	return &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// runMigrate はすべての未適用マイグレーションを順番に適用する。
func runMigrate(rt *runtime) error {
	rt.logger.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(rt.cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(rt.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	rt.logger.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runHealthcheck は /health エンドポイントにHTTPリクエストを送り、結果を返す。
// distroless環境でのDockerヘルスチェック用。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
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
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	if u.User == nil {
		return u.String()
	}
	// url.Userは"*"をエスケープするため、認証情報を外してから差し込む
	u.User = nil
	return strings.Replace(u.String(), "://", "://***@", 1)
}
