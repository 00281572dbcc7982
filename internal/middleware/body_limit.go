package middleware

import "net/http"

// NewBodyLimitMiddleware はリクエストボディの最大サイズを制限するミドルウェアを返す。
// 上限を超えた読み込みは *http.MaxBytesError になる。
func NewBodyLimitMiddleware(maxBytes int64) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxBytes > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
