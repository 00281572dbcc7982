package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker はDB接続の疎通確認インターフェース。
// *sqlx.DB が満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

const healthTimeout = 3 * time.Second

// Health はDB疎通を含むヘルスチェックを返す。
// GET /health
func Health(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		if checker != nil {
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{
					"success": false,
					"status":  "unavailable",
					"error":   "Database is unreachable",
				})
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
	}
}

// Ping はプロセスの生存確認を返す。
// GET /api/test
func Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "Server is running!",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
