package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zagshelpzags/zagmarket/internal/auth"
	"github.com/zagshelpzags/zagmarket/internal/imagestore"
	"github.com/zagshelpzags/zagmarket/internal/listing"
	"github.com/zagshelpzags/zagmarket/internal/middleware"
	"github.com/zagshelpzags/zagmarket/internal/model"
)

// --- モック定義 ---

type mockListingService struct {
	createFn      func(ctx context.Context, principal string, body map[string]any) (*model.Listing, error)
	listFn        func(ctx context.Context, q listing.ListQuery) (*model.ListingPage, error)
	getFn         func(ctx context.Context, id string) (*model.Listing, error)
	listByOwnerFn func(ctx context.Context, owner string) ([]*model.Listing, error)
	updateFn      func(ctx context.Context, principal, id string, body map[string]any) (*model.Listing, error)
	deleteFn      func(ctx context.Context, principal, id string) error
}

func (m *mockListingService) Create(ctx context.Context, principal string, body map[string]any) (*model.Listing, error) {
	return m.createFn(ctx, principal, body)
}

func (m *mockListingService) List(ctx context.Context, q listing.ListQuery) (*model.ListingPage, error) {
	return m.listFn(ctx, q)
}

func (m *mockListingService) Get(ctx context.Context, id string) (*model.Listing, error) {
	return m.getFn(ctx, id)
}

func (m *mockListingService) ListByOwner(ctx context.Context, owner string) ([]*model.Listing, error) {
	return m.listByOwnerFn(ctx, owner)
}

func (m *mockListingService) Update(ctx context.Context, principal, id string, body map[string]any) (*model.Listing, error) {
	return m.updateFn(ctx, principal, id, body)
}

func (m *mockListingService) Delete(ctx context.Context, principal, id string) error {
	return m.deleteFn(ctx, principal, id)
}

type mockImageUploader struct {
	presignFn func(ctx context.Context, principal, contentType string) (*imagestore.Upload, error)
}

func (m *mockImageUploader) PresignUpload(ctx context.Context, principal, contentType string) (*imagestore.Upload, error) {
	return m.presignFn(ctx, principal, contentType)
}

type mockAuthService struct {
	signUpFn func(ctx context.Context, body map[string]any) (*auth.SignUpResult, error)
	loginFn  func(ctx context.Context, body map[string]any) (*auth.LoginResult, error)
	logoutFn func(ctx context.Context, token string) error
}

func (m *mockAuthService) SignUp(ctx context.Context, body map[string]any) (*auth.SignUpResult, error) {
	return m.signUpFn(ctx, body)
}

func (m *mockAuthService) Login(ctx context.Context, body map[string]any) (*auth.LoginResult, error) {
	return m.loginFn(ctx, body)
}

func (m *mockAuthService) Logout(ctx context.Context, token string) error {
	return m.logoutFn(ctx, token)
}

type mockAccountService struct {
	deleteAccountFn func(ctx context.Context, principal string) (int64, error)
}

func (m *mockAccountService) DeleteAccount(ctx context.Context, principal string) (int64, error) {
	return m.deleteAccountFn(ctx, principal)
}

// --- ヘルパー ---

// withUserID はテスト用にコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseBody はレスポンスボディをmapとしてパースするヘルパー。
func parseBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode response: %v\nraw: %s", err, w.Body.String())
	}
	return result
}
