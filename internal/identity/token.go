package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// isSessionJWT はトークンがセッションJWT形式かを判定する。
// 署名検証はIdP側で行うため、ここでは形式のみを見る。
func isSessionJWT(token string) bool {
	_, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	return err == nil
}

// JWTExpiry はセッションJWTのexpクレームを返す。
// 表示用の補助情報であり、認可判断には使わない。
func JWTExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// sessionTokenField はトークン形式に応じたリクエストフィールド名を返す。
func sessionTokenField(token string) string {
	if isSessionJWT(token) {
		return "session_jwt"
	}
	return "session_token"
}
