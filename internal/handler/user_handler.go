package handler

import (
	"context"
	"net/http"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	// DeleteAccount はプリンシパルの出品とIdP上のアカウントを削除し、削除した出品数を返す。
	DeleteAccount(ctx context.Context, principal string) (int64, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service AccountServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service AccountServiceInterface) *UserHandler {
	return &UserHandler{service: service}
}

type deleteAccountResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	ListingsDeleted int64  `json:"listings_deleted"`
}

// DeleteAccount は認証済みユーザーの退会処理を実行する。
// DELETE /api/auth/user
func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	sc, ok := requireSession(w, r)
	if !ok {
		return
	}

	deleted, err := h.service.DeleteAccount(r.Context(), sc.Principal)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteAccountResponse{
		Success:         true,
		Message:         "Account deleted successfully",
		ListingsDeleted: deleted,
	})
}
