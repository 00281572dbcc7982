// Package identity は外部IdP(Stytch)のREST APIクライアントを提供する。
// パスワード認証、セッション検証・失効、ユーザー作成・削除を扱い、
// IdPのエラーはErrorKindに分類して返す。
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxResponseBytes はIdPレスポンスボディの読み取り上限。
const maxResponseBytes = 1 << 20

// Client はStytch互換のIdPクライアント。ステートレスで並行利用できる。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	projectID  string
	secret     string
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLにはテスト用のモックサーバーを指定できる。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, projectID, secret string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		projectID:  projectID,
		secret:     secret,
	}
}

// Name はユーザーの氏名。
type Name struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Email はユーザーに紐づくメールアドレス。
type Email struct {
	EmailID  string `json:"email_id"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}

// User はIdPが保持するユーザー情報。
type User struct {
	UserID    string     `json:"user_id"`
	Name      Name       `json:"name"`
	Emails    []Email    `json:"emails"`
	Status    string     `json:"status"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Session はIdPが発行したセッション。
type Session struct {
	SessionID    string     `json:"session_id"`
	UserID       string     `json:"user_id"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	LastAccessed *time.Time `json:"last_accessed_at,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// CreateUserParams はパスワードユーザー作成の入力。
type CreateUserParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// CreateUserResult はユーザー作成の結果。
type CreateUserResult struct {
	UserID  string `json:"user_id"`
	EmailID string `json:"email_id"`
}

// AuthResult はパスワード認証の結果。
type AuthResult struct {
	UserID       string   `json:"user_id"`
	SessionToken string   `json:"session_token"`
	SessionJWT   string   `json:"session_jwt"`
	Session      *Session `json:"session"`
	User         *User    `json:"user"`
}

// VerifyResult はセッション検証の結果。
// プリンシパルIDは応答のルートとsessionオブジェクトのどちらにも現れうる。
type VerifyResult struct {
	UserID  string   `json:"user_id"`
	Session *Session `json:"session"`
}

// Principal はルートのuser_id、なければsession.user_idを返す。どちらもなければ空文字列。
func (r *VerifyResult) Principal() string {
	if r.UserID != "" {
		return r.UserID
	}
	if r.Session != nil {
		return r.Session.UserID
	}
	return ""
}

// errorBody はIdPのエラーレスポンス。
type errorBody struct {
	StatusCode   int    `json:"status_code"`
	RequestID    string `json:"request_id"`
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
}

// CreateUser はメールアドレスとパスワードでユーザーを作成する。
func (c *Client) CreateUser(ctx context.Context, p CreateUserParams) (*CreateUserResult, error) {
	body := map[string]any{
		"email":    p.Email,
		"password": p.Password,
		"name": map[string]string{
			"first_name": p.FirstName,
			"last_name":  p.LastName,
		},
	}
	if p.Phone != "" {
		body["phone_number"] = p.Phone
	}

	var result CreateUserResult
	if err := c.do(ctx, http.MethodPost, "/v1/passwords", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Authenticate はメールアドレスとパスワードで認証し、新しいセッションを発行する。
func (c *Client) Authenticate(ctx context.Context, email, password string, sessionDurationMinutes int) (*AuthResult, error) {
	body := map[string]any{
		"email":                    email,
		"password":                 password,
		"session_duration_minutes": sessionDurationMinutes,
	}

	var result AuthResult
	if err := c.do(ctx, http.MethodPost, "/v1/passwords/authenticate", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// VerifySession はセッショントークンを検証する。
// トークンがJWT形式であればsession_jwtとして送信する。
func (c *Client) VerifySession(ctx context.Context, token string) (*VerifyResult, error) {
	body := map[string]any{sessionTokenField(token): token}

	var result VerifyResult
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/authenticate", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RevokeSession はセッションを失効させる。
func (c *Client) RevokeSession(ctx context.Context, token string) error {
	body := map[string]any{sessionTokenField(token): token}
	return c.do(ctx, http.MethodPost, "/v1/sessions/revoke", body, nil)
}

// DeleteUser はIdP上のユーザーを削除する。
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/users/"+url.PathEscape(userID), nil, nil)
}

// do はJSONリクエストを送信し、2xxならoutへデコードする。
// 2xx以外は*Errorに分類して返す。
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.projectID, c.secret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("IdPの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read identity provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		idpErr := &Error{
			Kind:       classify(resp.StatusCode, eb.ErrorType),
			StatusCode: resp.StatusCode,
			ErrorType:  eb.ErrorType,
			Message:    eb.ErrorMessage,
			RequestID:  eb.RequestID,
		}
		c.logger.Warn("IdPがエラーを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("error_type", eb.ErrorType),
			slog.String("kind", idpErr.Kind.String()),
			slog.String("request_id", eb.RequestID),
		)
		return idpErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode identity provider response: %w", err)
	}
	return nil
}
