// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, listing, account, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeInvalidListingID    = "INVALID_LISTING_ID"
	ErrCodeInvalidEmailDomain  = "INVALID_EMAIL_DOMAIN"
	ErrCodeWeakPassword        = "WEAK_PASSWORD"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeAuthRequired        = "AUTH_REQUIRED"
	ErrCodeInvalidSession      = "INVALID_SESSION"
	ErrCodeSessionNotFound     = "SESSION_NOT_FOUND"
	ErrCodeSessionUnidentified = "SESSION_UNIDENTIFIED"
	ErrCodeAuthFailed          = "AUTH_FAILED"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeListingNotFound     = "LISTING_NOT_FOUND"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeUserExists          = "USER_EXISTS"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodePayloadTooLarge     = "PAYLOAD_TOO_LARGE"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Check the request fields and try again.",
	}
}

// NewInvalidListingIDError は出品IDの形式が不正な場合のエラーを生成する。
func NewInvalidListingIDError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidListingID,
		Message:  "Invalid listing ID format",
		Category: "validation",
		Action:   "Check the listing ID.",
	}
}

// NewInvalidEmailDomainError は許可されていないメールドメインのエラーを生成する。
func NewInvalidEmailDomainError(domain string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmailDomain,
		Message:  fmt.Sprintf("Only @%s email addresses are allowed", domain),
		Category: "validation",
		Action:   "Sign up with your institutional email address.",
	}
}

// NewWeakPasswordError はパスワード強度不足のエラーを生成する。
func NewWeakPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  "Password does not meet the strength requirements.",
		Category: "validation",
		Action:   "Choose a longer password that has not appeared in a data breach.",
	}
}

// NewInvalidRequestError はIdPが入力を拒否した場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Invalid request. Please check your input.",
		Category: "validation",
		Action:   "Check the request fields and try again.",
	}
}

// NewAuthRequiredError は認証情報が提示されていない場合のエラーを生成する。
func NewAuthRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthRequired,
		Message:  "Authentication required. Please log in.",
		Category: "auth",
		Action:   "Log in and retry the request.",
	}
}

// NewInvalidSessionError はセッションが無効または期限切れの場合のエラーを生成する。
func NewInvalidSessionError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSession,
		Message:  "Invalid or expired session. Please log in again.",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewSessionNotFoundError はセッションが存在しない場合のエラーを生成する。
// 列挙攻撃を避けるため404ではなく認証エラーとして扱う。
func NewSessionNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  "Session not found. Please log in again.",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewSessionUnidentifiedError は検証応答からプリンシパルを特定できない場合のエラーを生成する。
func NewSessionUnidentifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionUnidentified,
		Message:  "Unable to identify user from session. Please log in again.",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewAuthFailedError はその他の理由で認証に失敗した場合のエラーを生成する。
func NewAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  "Authentication failed. Please log in again.",
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewInvalidCredentialsError はログイン失敗のエラーを生成する。
// アカウントの存在有無は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid email or password.",
		Category: "auth",
		Action:   "Check your email and password.",
	}
}

// NewForbiddenError は所有者以外による変更操作のエラーを生成する。
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  message,
		Category: "listing",
		Action:   "Only the owner of a listing can change it.",
	}
}

// NewListingNotFoundError は出品が見つからない場合のエラーを生成する。
func NewListingNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeListingNotFound,
		Message:  "Listing not found",
		Category: "listing",
		Action:   "Check the listing ID.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "account",
		Action:   "Log in again.",
	}
}

// NewUserExistsError は既に登録済みのメールアドレスのエラーを生成する。
func NewUserExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeUserExists,
		Message:  "A user with this email already exists",
		Category: "account",
		Action:   "Log in with the existing account.",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Wait a moment and retry.",
	}
}

// NewPayloadTooLargeError はリクエストボディが上限を超えた場合のエラーを生成する。
func NewPayloadTooLargeError() *APIError {
	return &APIError{
		Code:     ErrCodePayloadTooLarge,
		Message:  "Request body is too large",
		Category: "validation",
		Action:   "Reduce the size of the request (for example, use a smaller image).",
	}
}

// NewInternalError は内部エラーを生成する。
// message には利用者に見せてよい定型文のみを渡す。
func NewInternalError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  message,
		Category: "system",
		Action:   "Please try again later.",
	}
}
