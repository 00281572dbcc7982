package user

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zagshelpzags/zagmarket/internal/identity"
	"github.com/zagshelpzags/zagmarket/internal/metrics"
	"github.com/zagshelpzags/zagmarket/internal/model"
)

// --- モック ---

type mockListingDeleter struct {
	deleteAllByOwnerFn func(ctx context.Context, owner string) (int64, error)
}

func (m *mockListingDeleter) DeleteAllByOwner(ctx context.Context, owner string) (int64, error) {
	return m.deleteAllByOwnerFn(ctx, owner)
}

type mockAccountDeleter struct {
	deleteUserFn func(ctx context.Context, userID string) error
}

func (m *mockAccountDeleter) DeleteUser(ctx context.Context, userID string) error {
	return m.deleteUserFn(ctx, userID)
}

func newTestService(listings ListingDeleter, idp AccountDeleter) *Service {
	return NewService(listings, idp, metrics.Nop{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// --- テスト ---

// TestDeleteAccount_DeletesListingsThenAccount は出品→アカウントの順に削除し件数を返すことを検証する。
func TestDeleteAccount_DeletesListingsThenAccount(t *testing.T) {
	var calls []string

	listings := &mockListingDeleter{
		deleteAllByOwnerFn: func(ctx context.Context, owner string) (int64, error) {
			assert.Equal(t, "user-test-1", owner)
			calls = append(calls, "listings")
			return 3, nil
		},
	}
	idp := &mockAccountDeleter{
		deleteUserFn: func(ctx context.Context, userID string) error {
			assert.Equal(t, "user-test-1", userID)
			calls = append(calls, "account")
			return nil
		},
	}

	n, err := newTestService(listings, idp).DeleteAccount(context.Background(), "user-test-1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.Equal(t, []string{"listings", "account"}, calls)
}

// TestDeleteAccount_ListingFailureDoesNotBlock は出品削除失敗時も件数0でアカウント削除が続行されることを検証する。
func TestDeleteAccount_ListingFailureDoesNotBlock(t *testing.T) {
	accountDeleted := false

	listings := &mockListingDeleter{
		deleteAllByOwnerFn: func(ctx context.Context, owner string) (int64, error) {
			return 2, errors.New("connection reset")
		},
	}
	idp := &mockAccountDeleter{
		deleteUserFn: func(ctx context.Context, userID string) error {
			accountDeleted = true
			return nil
		},
	}

	n, err := newTestService(listings, idp).DeleteAccount(context.Background(), "user-test-1")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.True(t, accountDeleted)
}

// TestDeleteAccount_ProviderErrors はIdPエラーの分類ごとの変換を検証する。
func TestDeleteAccount_ProviderErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"not found", &identity.Error{Kind: identity.KindNotFound, StatusCode: http.StatusNotFound}, model.ErrCodeUserNotFound},
		{"bad request", &identity.Error{Kind: identity.KindBadRequest, StatusCode: http.StatusBadRequest}, model.ErrCodeInvalidRequest},
		{"unauthorized", &identity.Error{Kind: identity.KindUnauthorized, StatusCode: http.StatusUnauthorized}, model.ErrCodeInternal},
		{"transport", errors.New("dial tcp: timeout"), model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listingsDeleted := false
			listings := &mockListingDeleter{
				deleteAllByOwnerFn: func(ctx context.Context, owner string) (int64, error) {
					listingsDeleted = true
					return 1, nil
				},
			}
			idp := &mockAccountDeleter{
				deleteUserFn: func(ctx context.Context, userID string) error {
					return tt.err
				},
			}

			_, err := newTestService(listings, idp).DeleteAccount(context.Background(), "user-test-1")
			var apiErr *model.APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.wantCode, apiErr.Code)
			assert.NotContains(t, apiErr.Message, "dial tcp")
			// 出品削除はロールバックされない
			assert.True(t, listingsDeleted)
		})
	}
}

func TestDeleteAccount_RequiresPrincipal(t *testing.T) {
	svc := newTestService(
		&mockListingDeleter{deleteAllByOwnerFn: func(ctx context.Context, owner string) (int64, error) {
			t.Fatal("listings must not be touched without a principal")
			return 0, nil
		}},
		&mockAccountDeleter{deleteUserFn: func(ctx context.Context, userID string) error {
			t.Fatal("account must not be touched without a principal")
			return nil
		}},
	)

	_, err := svc.DeleteAccount(context.Background(), "")
	var apiErr *model.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, model.ErrCodeAuthRequired, apiErr.Code)
}
