package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zagshelpzags/zagmarket/internal/identity"
	"github.com/zagshelpzags/zagmarket/internal/model"
)

// --- モック ---

type mockSessionVerifier struct {
	verifySessionFn func(ctx context.Context, token string) (*identity.VerifyResult, error)
	calls           int
}

func (m *mockSessionVerifier) VerifySession(ctx context.Context, token string) (*identity.VerifyResult, error) {
	m.calls++
	if m.verifySessionFn != nil {
		return m.verifySessionFn(ctx, token)
	}
	return nil, errors.New("not configured")
}

type mockAuthRecorder struct {
	reasons []string
}

func (m *mockAuthRecorder) RecordHTTPRequest(string, string, int, time.Duration) {}
func (m *mockAuthRecorder) RecordAuthFailure(reason string)                      { m.reasons = append(m.reasons, reason) }
func (m *mockAuthRecorder) RecordListingMutation(string)                         {}
func (m *mockAuthRecorder) RecordAccountDeletion(string, int64)                  {}
func (m *mockAuthRecorder) RecordListingsPurged(int64)                           {}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validSession(principal string) *mockSessionVerifier {
	return &mockSessionVerifier{
		verifySessionFn: func(ctx context.Context, token string) (*identity.VerifyResult, error) {
			return &identity.VerifyResult{UserID: principal}, nil
		},
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

// --- テスト ---

// TestSessionMiddleware_BearerToken はAuthorizationヘッダーのトークンで認証されることを検証する。
func TestSessionMiddleware_BearerToken(t *testing.T) {
	var gotToken string
	verifier := &mockSessionVerifier{
		verifySessionFn: func(ctx context.Context, token string) (*identity.VerifyResult, error) {
			gotToken = token
			return &identity.VerifyResult{UserID: "user-test-1"}, nil
		},
	}

	var captured model.SessionContext
	handler := NewSessionMiddleware(verifier, nil, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = SessionFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
	req.Header.Set("Authorization", "Bearer tok-abc")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotToken != "tok-abc" {
		t.Errorf("verified token = %q, want %q", gotToken, "tok-abc")
	}
	if captured.Principal != "user-test-1" || captured.Token != "tok-abc" {
		t.Errorf("session = %+v", captured)
	}
}

// TestSessionMiddleware_HeaderTakesPrecedence はヘッダーとボディの両方がある場合にヘッダーが優先されることを検証する。
func TestSessionMiddleware_HeaderTakesPrecedence(t *testing.T) {
	var gotToken string
	verifier := &mockSessionVerifier{
		verifySessionFn: func(ctx context.Context, token string) (*identity.VerifyResult, error) {
			gotToken = token
			return &identity.VerifyResult{UserID: "u"}, nil
		},
	}

	handler := NewSessionMiddleware(verifier, nil, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/listings", strings.NewReader(`{"session_token":"from-body"}`))
	req.Header.Set("Authorization", "Bearer from-header")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotToken != "from-header" {
		t.Errorf("verified token = %q, want %q", gotToken, "from-header")
	}
}

// TestSessionMiddleware_BodyTokenRestoresBody はボディのトークンで認証され、ボディが後続に残ることを検証する。
func TestSessionMiddleware_BodyTokenRestoresBody(t *testing.T) {
	const payload = `{"session_token":"tok-body","title":"Desk"}`

	var gotBody string
	handler := NewSessionMiddleware(validSession("user-test-1"), nil, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/listings", strings.NewReader(payload))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotBody != payload {
		t.Errorf("body = %q, want %q", gotBody, payload)
	}
}

// TestSessionMiddleware_Rejections はゲートの各拒否パターンと応答メッセージを検証する。
func TestSessionMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		body       string
		verifyErr  error
		result     *identity.VerifyResult
		wantCode   string
		wantMsg    string
		wantReason string
		wantCalls  int
	}{
		{
			name:       "no token",
			wantCode:   model.ErrCodeAuthRequired,
			wantMsg:    "Authentication required. Please log in.",
			wantReason: "missing_token",
		},
		{
			name:       "non-string body token",
			body:       `{"session_token":{"$ne":null}}`,
			wantCode:   model.ErrCodeAuthRequired,
			wantReason: "missing_token",
		},
		{
			name:       "non-bearer header",
			header:     "Basic dXNlcjpwdw==",
			wantCode:   model.ErrCodeAuthRequired,
			wantReason: "missing_token",
		},
		{
			name:       "provider 401",
			header:     "Bearer bad",
			verifyErr:  &identity.Error{Kind: identity.KindUnauthorized, StatusCode: 401},
			wantCode:   model.ErrCodeInvalidSession,
			wantMsg:    "Invalid or expired session. Please log in again.",
			wantReason: "invalid_session",
			wantCalls:  1,
		},
		{
			name:       "provider 404",
			header:     "Bearer gone",
			verifyErr:  &identity.Error{Kind: identity.KindNotFound, StatusCode: 404},
			wantCode:   model.ErrCodeSessionNotFound,
			wantMsg:    "Session not found. Please log in again.",
			wantReason: "session_not_found",
			wantCalls:  1,
		},
		{
			name:       "provider unreachable",
			header:     "Bearer tok",
			verifyErr:  errors.New("dial tcp: connection refused"),
			wantCode:   model.ErrCodeAuthFailed,
			wantMsg:    "Authentication failed. Please log in again.",
			wantReason: "provider_error",
			wantCalls:  1,
		},
		{
			name:       "no principal",
			header:     "Bearer tok",
			result:     &identity.VerifyResult{Session: &identity.Session{SessionID: "s"}},
			wantCode:   model.ErrCodeSessionUnidentified,
			wantMsg:    "Unable to identify user from session. Please log in again.",
			wantReason: "unidentified",
			wantCalls:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := &mockSessionVerifier{
				verifySessionFn: func(ctx context.Context, token string) (*identity.VerifyResult, error) {
					return tt.result, tt.verifyErr
				},
			}
			recorder := &mockAuthRecorder{}

			handler := NewSessionMiddleware(verifier, recorder, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(http.MethodPost, "/api/listings", body)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			got := decodeError(t, w)
			if got.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", got.Code, tt.wantCode)
			}
			if tt.wantMsg != "" && got.Error != tt.wantMsg {
				t.Errorf("error = %q, want %q", got.Error, tt.wantMsg)
			}
			if strings.Contains(got.Error, "dial tcp") {
				t.Error("provider error detail leaked into response")
			}
			if verifier.calls != tt.wantCalls {
				t.Errorf("verifier calls = %d, want %d", verifier.calls, tt.wantCalls)
			}
			if len(recorder.reasons) != 1 || recorder.reasons[0] != tt.wantReason {
				t.Errorf("auth failure reasons = %v, want [%s]", recorder.reasons, tt.wantReason)
			}
		})
	}
}

// TestSessionMiddleware_PrincipalFromNestedSession はsession.user_idからプリンシパルを特定できることを検証する。
func TestSessionMiddleware_PrincipalFromNestedSession(t *testing.T) {
	verifier := &mockSessionVerifier{
		verifySessionFn: func(ctx context.Context, token string) (*identity.VerifyResult, error) {
			return &identity.VerifyResult{Session: &identity.Session{UserID: "user-nested"}}, nil
		},
	}

	var userID string
	handler := NewSessionMiddleware(verifier, nil, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ = UserIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
	req.Header.Set("Authorization", "Bearer tok")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if userID != "user-nested" {
		t.Errorf("userID = %q, want %q", userID, "user-nested")
	}
}

// TestSessionMiddleware_VerifiesEveryRequest は検証結果をキャッシュせず毎回IdPに問い合わせることを検証する。
func TestSessionMiddleware_VerifiesEveryRequest(t *testing.T) {
	verifier := validSession("user-test-1")
	handler := NewSessionMiddleware(verifier, nil, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/listings", nil)
		req.Header.Set("Authorization", "Bearer same-token")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if verifier.calls != 3 {
		t.Errorf("verifier calls = %d, want 3", verifier.calls)
	}
}

// TestSessionMiddleware_BodyTooLarge は上限を超えるボディで413が返ることを検証する。
func TestSessionMiddleware_BodyTooLarge(t *testing.T) {
	verifier := validSession("user-test-1")
	handler := NewBodyLimitMiddleware(16)(NewSessionMiddleware(verifier, nil, discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})))

	req := httptest.NewRequest(http.MethodPost, "/api/listings", strings.NewReader(`{"session_token":"tok","title":"way too long for the limit"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
	if verifier.calls != 0 {
		t.Errorf("verifier calls = %d, want 0", verifier.calls)
	}
}

func TestUserIDFromContext_Empty(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for context without session")
	}
}
