package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/zagshelpzags/zagmarket/internal/middleware"
	"github.com/zagshelpzags/zagmarket/internal/model"
)

const (
	msgInvalidJSON = "Request body must be valid JSON"
	msgBodyObject  = "Request body must be a JSON object"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
// APIError以外のエラーは原因をログのみに記録し、定型文の500を返す。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteAPIError(w, apiErr)
		return
	}

	slog.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// decodeBody はリクエストボディをJSONオブジェクトとしてデコードする。
// 空のボディは空のオブジェクトとして扱う。
func decodeBody(r *http.Request) (map[string]any, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return map[string]any{}, nil
	}

	var raw any
	err := json.NewDecoder(r.Body).Decode(&raw)
	switch {
	case errors.Is(err, io.EOF):
		return map[string]any{}, nil
	case err != nil:
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, model.NewPayloadTooLargeError()
		}
		return nil, model.NewValidationError(msgInvalidJSON)
	}

	body, ok := raw.(map[string]any)
	if !ok {
		return nil, model.NewValidationError(msgBodyObject)
	}
	return body, nil
}

// requireSession はセッションミドルウェアが注入したセッションを取り出す。
// 取得できない場合は401を書き込みfalseを返す。
func requireSession(w http.ResponseWriter, r *http.Request) (model.SessionContext, bool) {
	sc, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteAPIError(w, model.NewAuthRequiredError())
		return model.SessionContext{}, false
	}
	return sc, true
}
