// Package auth はパスワード認証によるサインアップ、ログイン、ログアウトを提供する。
// 認証情報とセッションはすべて外部のIdPが保持し、本パッケージは入力検証とエラー変換のみを担う。
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/zagshelpzags/zagmarket/internal/identity"
	"github.com/zagshelpzags/zagmarket/internal/model"
	"github.com/zagshelpzags/zagmarket/internal/security"
)

// IdentityProvider はIdPのパスワード認証・セッション操作インターフェース。
type IdentityProvider interface {
	CreateUser(ctx context.Context, p identity.CreateUserParams) (*identity.CreateUserResult, error)
	Authenticate(ctx context.Context, email, password string, sessionDurationMinutes int) (*identity.AuthResult, error)
	RevokeSession(ctx context.Context, token string) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	AllowedEmailDomain     string // 例: zagmail.gonzaga.edu
	SessionDurationMinutes int
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	idp    IdentityProvider
	config ServiceConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewService はServiceを生成する。
func NewService(idp IdentityProvider, config ServiceConfig, logger *slog.Logger) *Service {
	return &Service{
		idp:    idp,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// SignUpResult はサインアップの結果。
type SignUpResult struct {
	UserID string
}

// LoginResult はログインの結果。
// ExpiresAt は表示用であり、認可判定には使用しない。
type LoginResult struct {
	UserID       string
	SessionToken string
	SessionJWT   string
	User         *identity.User
	ExpiresAt    time.Time
}

const msgCredentialsRequired = "Email and password are required"

// credentials はリクエストボディからemailとpasswordを取り出す。
// どちらも文字列でなければならない。emailは小文字化する。
func credentials(body map[string]any) (email, password string, err error) {
	body, _ = security.StripOperatorKeys(body).(map[string]any)
	email, ok1 := body["email"].(string)
	password, ok2 := body["password"].(string)
	email = strings.ToLower(strings.TrimSpace(email))
	if !ok1 || !ok2 || email == "" || password == "" {
		return "", "", model.NewValidationError(msgCredentialsRequired)
	}
	return email, password, nil
}

func optionalString(body map[string]any, key string) string {
	s, _ := body[key].(string)
	return strings.TrimSpace(s)
}

// SignUp はメールアドレスとパスワードでユーザーを作成する。
// 許可されたドメインのメールアドレスのみ受け付ける。
func (s *Service) SignUp(ctx context.Context, body map[string]any) (*SignUpResult, error) {
	email, password, err := credentials(body)
	if err != nil {
		return nil, err
	}

	domain := s.config.AllowedEmailDomain
	if domain != "" && !strings.HasSuffix(email, "@"+domain) {
		return nil, model.NewInvalidEmailDomainError(domain)
	}

	res, err := s.idp.CreateUser(ctx, identity.CreateUserParams{
		Email:     email,
		Password:  password,
		FirstName: optionalString(body, "firstName"),
		LastName:  optionalString(body, "lastName"),
		Phone:     optionalString(body, "phone"),
	})
	if err != nil {
		kind := identity.KindOf(err)
		s.logger.Warn("ユーザー作成に失敗しました",
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()),
		)
		switch kind {
		case identity.KindPolicyViolation:
			return nil, model.NewWeakPasswordError()
		case identity.KindConflict:
			return nil, model.NewUserExistsError()
		case identity.KindBadRequest:
			return nil, model.NewInvalidRequestError()
		default:
			return nil, model.NewInternalError("An error occurred during sign up. Please try again.")
		}
	}

	s.logger.Info("ユーザーを作成しました", slog.String("user_id", res.UserID))
	return &SignUpResult{UserID: res.UserID}, nil
}

// Login はメールアドレスとパスワードで認証し、セッションを発行する。
// アカウントの有無を推測されないよう、IdPの400/401/404はすべて同じエラーに変換する。
func (s *Service) Login(ctx context.Context, body map[string]any) (*LoginResult, error) {
	email, password, err := credentials(body)
	if err != nil {
		return nil, err
	}

	res, err := s.idp.Authenticate(ctx, email, password, s.config.SessionDurationMinutes)
	if err != nil {
		kind := identity.KindOf(err)
		s.logger.Warn("ログインに失敗しました",
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()),
		)
		switch kind {
		case identity.KindBadRequest, identity.KindUnauthorized, identity.KindNotFound:
			return nil, model.NewInvalidCredentialsError()
		default:
			return nil, model.NewInternalError("An error occurred during login. Please try again.")
		}
	}

	userID := res.UserID
	if userID == "" && res.Session != nil {
		userID = res.Session.UserID
	}

	return &LoginResult{
		UserID:       userID,
		SessionToken: res.SessionToken,
		SessionJWT:   res.SessionJWT,
		User:         res.User,
		ExpiresAt:    s.expiresAt(res),
	}, nil
}

// expiresAt はセッションの有効期限を決定する。
// IdPの値 → JWTのexpクレーム → 現在時刻+セッション期間 の順に採用する。
func (s *Service) expiresAt(res *identity.AuthResult) time.Time {
	if res.Session != nil && res.Session.ExpiresAt != nil {
		return res.Session.ExpiresAt.UTC()
	}
	if exp, ok := identity.JWTExpiry(res.SessionJWT); ok {
		return exp.UTC()
	}
	return s.now().Add(time.Duration(s.config.SessionDurationMinutes) * time.Minute).UTC()
}

// Logout はセッションを失効させる。
// 既にIdP上に存在しないセッションは失効済みとして成功扱いにする。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return model.NewValidationError("Session token is required")
	}

	if err := s.idp.RevokeSession(ctx, token); err != nil {
		var idErr *identity.Error
		if errors.As(err, &idErr) && idErr.Kind == identity.KindNotFound {
			return nil
		}
		kind := identity.KindOf(err)
		s.logger.Warn("セッションの失効に失敗しました",
			slog.String("kind", kind.String()),
			slog.String("error", err.Error()),
		)
		if kind == identity.KindUnauthorized {
			return model.NewInvalidSessionError()
		}
		return model.NewInternalError("Failed to log out. Please try again.")
	}
	return nil
}
