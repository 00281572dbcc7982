package identity

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind はIdPから返されたエラーの分類。
type ErrorKind int

const (
	KindGeneric ErrorKind = iota
	KindBadRequest
	KindUnauthorized
	KindNotFound
	KindConflict
	KindPolicyViolation
)

// String はログ出力用の分類名を返す。
func (k ErrorKind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindPolicyViolation:
		return "policy_violation"
	default:
		return "generic"
	}
}

// Error はIdP呼び出しの失敗を分類済みで表す。
// Message はIdPの返したエラーメッセージで、ログ用途に限り利用者へは返さない。
type Error struct {
	Kind       ErrorKind
	StatusCode int
	ErrorType  string
	Message    string
	RequestID  string
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.ErrorType != "" {
		return fmt.Sprintf("identity provider error (%d %s): %s", e.StatusCode, e.ErrorType, e.Message)
	}
	return fmt.Sprintf("identity provider error (%d): %s", e.StatusCode, e.Message)
}

// policyViolationTypes はパスワード強度ポリシー違反を示すerror_type。
var policyViolationTypes = map[string]bool{
	"weak_password":     true,
	"breached_password": true,
}

// conflictTypes は既存アカウントとの重複を示すerror_type。
var conflictTypes = map[string]bool{
	"duplicate_email":        true,
	"duplicate_phone_number": true,
}

// classify はHTTPステータスとerror_typeからErrorKindを決める。
func classify(statusCode int, errorType string) ErrorKind {
	switch {
	case policyViolationTypes[errorType]:
		return KindPolicyViolation
	case conflictTypes[errorType], statusCode == http.StatusConflict:
		return KindConflict
	case statusCode == http.StatusBadRequest:
		return KindBadRequest
	case statusCode == http.StatusUnauthorized:
		return KindUnauthorized
	case statusCode == http.StatusNotFound:
		return KindNotFound
	default:
		return KindGeneric
	}
}

// KindOf はerrがIdPエラーであればその分類を返す。
// ネットワークエラーなどIdPの応答を伴わない失敗はKindGenericとなる。
func KindOf(err error) ErrorKind {
	var idpErr *Error
	if errors.As(err, &idpErr) {
		return idpErr.Kind
	}
	return KindGeneric
}
