// Package user はアカウント管理のドメインロジックを提供する。
package user

import (
	"context"
	"log/slog"

	"github.com/zagshelpzags/zagmarket/internal/identity"
	"github.com/zagshelpzags/zagmarket/internal/metrics"
	"github.com/zagshelpzags/zagmarket/internal/model"
)

// ListingDeleter は所有者単位の出品一括削除インターフェース。
type ListingDeleter interface {
	DeleteAllByOwner(ctx context.Context, owner string) (int64, error)
}

// AccountDeleter はIdP上のアカウント削除インターフェース。
type AccountDeleter interface {
	DeleteUser(ctx context.Context, userID string) error
}

// Service はアカウント管理のサービス層。
// 退会処理のビジネスロジックを提供する。
type Service struct {
	listings ListingDeleter
	idp      AccountDeleter
	recorder metrics.Recorder
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(listings ListingDeleter, idp AccountDeleter, recorder metrics.Recorder, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{
		listings: listings,
		idp:      idp,
		recorder: recorder,
		logger:   logger,
	}
}

// DeleteAccount はプリンシパルの出品をすべて削除したうえでIdP上のアカウントを削除し、
// 削除した出品数を返す。
//
// 削除順序: 出品 → IdPアカウント（逐次実行、並列化しない）。
// 出品削除の失敗はログに残して件数0として続行する。
// IdP側の削除が失敗しても、削除済みの出品は戻さない。
func (s *Service) DeleteAccount(ctx context.Context, principal string) (int64, error) {
	if principal == "" {
		return 0, model.NewAuthRequiredError()
	}

	s.logger.Info("退会処理を開始します",
		slog.String("user_id", principal),
	)

	// 1. 出品を削除
	deleted, err := s.listings.DeleteAllByOwner(ctx, principal)
	if err != nil {
		s.logger.Error("出品の削除に失敗しました。アカウント削除は続行します",
			slog.String("user_id", principal),
			slog.String("error", err.Error()),
		)
		deleted = 0
	}

	// 2. IdPのアカウントを削除
	if err := s.idp.DeleteUser(ctx, principal); err != nil {
		kind := identity.KindOf(err)
		s.logger.Error("アカウントの削除に失敗しました",
			slog.String("user_id", principal),
			slog.String("kind", kind.String()),
			slog.Int64("listings_deleted", deleted),
			slog.String("error", err.Error()),
		)
		s.recorder.RecordAccountDeletion("provider_"+kind.String(), deleted)

		switch kind {
		case identity.KindNotFound:
			return 0, model.NewUserNotFoundError()
		case identity.KindBadRequest:
			return 0, model.NewInvalidRequestError()
		default:
			return 0, model.NewInternalError("Failed to delete account. Please try again.")
		}
	}

	s.recorder.RecordAccountDeletion("success", deleted)
	s.logger.Info("退会処理が完了しました",
		slog.String("user_id", principal),
		slog.Int64("listings_deleted", deleted),
	)

	return deleted, nil
}
