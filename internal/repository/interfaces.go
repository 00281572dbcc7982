// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/zagshelpzags/zagmarket/internal/model"
)

// ListingRepository は出品データの永続化インターフェース。
type ListingRepository interface {
	// Create は出品を作成する。ID・作成日時・更新日時はストア側で採番される。
	Create(ctx context.Context, listing *model.Listing) error

	// FindByID は指定IDの出品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Listing, error)

	// List はフィルタに一致する出品を作成日時の降順で取得する。
	List(ctx context.Context, filter model.ListingFilter, limit, skip int) ([]*model.Listing, error)

	// Count はフィルタに一致する出品の総数を返す。
	Count(ctx context.Context, filter model.ListingFilter) (int64, error)

	// ListByOwner は指定プリンシパルの出品をすべて取得する。ページングは行わない。
	ListByOwner(ctx context.Context, owner string) ([]*model.Listing, error)

	// Update は出品の可変フィールドを保存する。該当行がない場合はnilを返す。
	Update(ctx context.Context, listing *model.Listing) (*model.Listing, error)

	// DeleteByID は指定IDの出品を削除する。削除した行があればtrueを返す。
	DeleteByID(ctx context.Context, id string) (bool, error)

	// DeleteByOwner は指定プリンシパルの出品をすべて削除し、削除件数を返す。
	DeleteByOwner(ctx context.Context, owner string) (int64, error)
}
