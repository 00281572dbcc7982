package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/zagshelpzags/zagmarket/internal/auth"
	"github.com/zagshelpzags/zagmarket/internal/identity"
	"github.com/zagshelpzags/zagmarket/internal/middleware"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, body map[string]any) (*auth.SignUpResult, error)
	Login(ctx context.Context, body map[string]any) (*auth.LoginResult, error)
	Logout(ctx context.Context, token string) error
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

type signUpResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type sessionResponse struct {
	ExpiresAt time.Time `json:"expires_at"`
}

type loginResponse struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message"`
	SessionToken string          `json:"session_token"`
	SessionJWT   string          `json:"session_jwt,omitempty"`
	UserID       string          `json:"user_id"`
	User         *identity.User  `json:"user,omitempty"`
	Session      sessionResponse `json:"session"`
}

// SignUp はユーザーを作成する。
// POST /api/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	res, err := h.service.SignUp(r.Context(), body)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, signUpResponse{
		Success: true,
		Message: "User created successfully. Please check your email to verify your account.",
		UserID:  res.UserID,
	})
}

// Login はメールアドレスとパスワードで認証し、セッショントークンを返す。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	res, err := h.service.Login(r.Context(), body)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Success:      true,
		Message:      "Login successful",
		SessionToken: res.SessionToken,
		SessionJWT:   res.SessionJWT,
		UserID:       res.UserID,
		User:         res.User,
		Session:      sessionResponse{ExpiresAt: res.ExpiresAt},
	})
}

// Logout はセッションを失効させる。
// トークンはボディの session_token を優先し、なければAuthorizationヘッダーを使う。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	token, _ := body["session_token"].(string)
	token = strings.TrimSpace(token)
	if token == "" {
		token = middleware.BearerToken(r.Header.Get("Authorization"))
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageEnvelope{Success: true, Message: "Logged out successfully"})
}
