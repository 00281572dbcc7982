package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/zagshelpzags/zagmarket/internal/metrics"
	"github.com/zagshelpzags/zagmarket/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionVerifier   middleware.SessionVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	MaxBodyBytes      int64
	Logger            *slog.Logger

	// メトリクス
	Recorder       metrics.Recorder
	MetricsHandler http.Handler

	// ヘルスチェック
	HealthChecker HealthChecker

	// 認証
	AuthService AuthServiceInterface

	// 出品
	ListingService ListingServiceInterface
	ImageUploader  ImageUploader // nilの場合は画像アップロードを無効化

	// アカウント
	AccountService AccountServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// 全ルート共通のミドルウェア:
//
//	RequestID → RealIP → Logging → Recovery → Metrics → SecurityHeaders → CORS → BodyLimit
//
// 書き込み系ルートにはさらに Session → RateLimit(Write) を適用する。
// 出品の参照系は認証不要。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewMetricsMiddleware(recorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewBodyLimitMiddleware(deps.MaxBodyBytes))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "Route not found"})
	})

	authHandler := NewAuthHandler(deps.AuthService)
	listingHandler := NewListingHandler(deps.ListingService, deps.ImageUploader)
	userHandler := NewUserHandler(deps.AccountService)

	session := middleware.NewSessionMiddleware(deps.SessionVerifier, recorder, logger)
	writeLimit := deps.RateLimiter.WriteMiddleware()

	// --- 運用系 ---
	r.Get("/health", Health(deps.HealthChecker))
	r.Get("/api/test", Ping)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- 認証 ---
	r.Route("/api/auth", func(r chi.Router) {
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/signup", authHandler.SignUp)
		r.With(deps.RateLimiter.AuthMiddleware()).Post("/login", authHandler.Login)
		r.Post("/logout", authHandler.Logout)

		// DELETE /api/auth/user - 退会（出品の一括削除を含む）
		r.With(session, writeLimit).Delete("/user", userHandler.DeleteAccount)
	})

	// --- 出品 ---
	r.Route("/api/listings", func(r chi.Router) {
		r.Get("/", listingHandler.ListListings)
		r.Get("/user/{userId}", listingHandler.ListUserListings)
		r.Get("/{id}", listingHandler.GetListing)

		r.Group(func(r chi.Router) {
			r.Use(session)
			r.Use(writeLimit)

			r.Post("/", listingHandler.CreateListing)
			if deps.ImageUploader != nil {
				r.Post("/images", listingHandler.PresignImageUpload)
			}
			r.Put("/{id}", listingHandler.UpdateListing)
			r.Delete("/{id}", listingHandler.DeleteListing)
		})
	})

	return r
}
