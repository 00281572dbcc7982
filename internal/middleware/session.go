// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zagshelpzags/zagmarket/internal/identity"
	"github.com/zagshelpzags/zagmarket/internal/logger"
	"github.com/zagshelpzags/zagmarket/internal/metrics"
	"github.com/zagshelpzags/zagmarket/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストに認証済みセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// bodyTokenField はボディでセッショントークンを渡す場合のフィールド名。
const bodyTokenField = "session_token"

// SessionVerifier はセッショントークンの検証インターフェース。
// identity.Client が満たす。
type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (*identity.VerifyResult, error)
}

// NewSessionMiddleware はリクエストのセッショントークンをIdPで検証するミドルウェアを返す。
//
// トークンは Authorization: Bearer ヘッダーを優先し、なければJSONボディの session_token を使う。
// 検証はリクエストごとに毎回IdPへ問い合わせ、結果はキャッシュしない。
// 成功時はプリンシパルとトークンをリクエストコンテキストに注入する。
// 失敗時はすべて401を返し、後続のハンドラーは実行しない。
func NewSessionMiddleware(verifier SessionVerifier, recorder metrics.Recorder, log *slog.Logger) func(next http.Handler) http.Handler {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	reject := func(w http.ResponseWriter, reason string, apiErr *model.APIError) {
		recorder.RecordAuthFailure(reason)
		WriteAPIError(w, apiErr)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. トークンを取得
			token, err := extractToken(r)
			if err != nil {
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					WriteAPIError(w, model.NewPayloadTooLargeError())
					return
				}
				log.Warn("リクエストボディの読み込みに失敗しました", slog.String("error", err.Error()))
			}
			if token == "" {
				reject(w, "missing_token", model.NewAuthRequiredError())
				return
			}

			log.Debug("セッションを検証します",
				slog.String("token", logger.TokenPreview(token)),
				slog.String("path", r.URL.Path),
			)

			// 2. IdPでセッションを検証
			res, err := verifier.VerifySession(r.Context(), token)
			if err != nil {
				kind := identity.KindOf(err)
				log.Warn("セッションの検証に失敗しました",
					slog.String("kind", kind.String()),
					slog.String("token", logger.TokenPreview(token)),
					slog.String("error", err.Error()),
				)
				switch kind {
				case identity.KindUnauthorized:
					reject(w, "invalid_session", model.NewInvalidSessionError())
				case identity.KindNotFound:
					reject(w, "session_not_found", model.NewSessionNotFoundError())
				default:
					reject(w, "provider_error", model.NewAuthFailedError())
				}
				return
			}

			// 3. プリンシパルを特定
			principal := res.Principal()
			if principal == "" {
				log.Warn("セッションからユーザーを特定できません",
					slog.String("token", logger.TokenPreview(token)),
				)
				reject(w, "unidentified", model.NewSessionUnidentifiedError())
				return
			}

			// 4. 認証済みセッションをコンテキストに注入
			setLoggedUser(r.Context(), principal)
			ctx := ContextWithSession(r.Context(), model.SessionContext{
				Principal: principal,
				Token:     token,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken はヘッダー、ボディの順にセッショントークンを探す。
// ボディを読んだ場合は後続のハンドラーのために元に戻す。
func extractToken(r *http.Request) (string, error) {
	if token := BearerToken(r.Header.Get("Authorization")); token != "" {
		return token, nil
	}
	return bodyToken(r)
}

// BearerToken は "Bearer <token>" 形式のAuthorizationヘッダーからトークンを取り出す。
// 形式が異なる場合は空文字列を返す。
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// bodyToken はJSONボディの session_token を返す。文字列以外の値は無視する。
func bodyToken(r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}

	raw, err := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", nil
	}
	token, _ := body[bodyTokenField].(string)
	return strings.TrimSpace(token), nil
}

// SessionFromContext はリクエストコンテキストから認証済みセッションを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SessionFromContext(ctx context.Context) (model.SessionContext, bool) {
	sc, ok := ctx.Value(sessionContextKey).(model.SessionContext)
	if !ok || sc.Principal == "" {
		return model.SessionContext{}, false
	}
	return sc, true
}

// UserIDFromContext はリクエストコンテキストからプリンシパルIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	sc, ok := SessionFromContext(ctx)
	if !ok {
		return "", errors.New("user ID not found in context")
	}
	return sc.Principal, nil
}

// ContextWithSession はコンテキストに認証済みセッションを注入する。
func ContextWithSession(ctx context.Context, sc model.SessionContext) context.Context {
	return context.WithValue(ctx, sessionContextKey, sc)
}

// ContextWithUserID はコンテキストにプリンシパルIDのみを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return ContextWithSession(ctx, model.SessionContext{Principal: userID})
}
