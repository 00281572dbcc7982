// Package listing は出品のCRUDと所有者による変更制限を提供する。
package listing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zagshelpzags/zagmarket/internal/metrics"
	"github.com/zagshelpzags/zagmarket/internal/model"
	"github.com/zagshelpzags/zagmarket/internal/repository"
)

// Service は出品のユースケースを実装する。
type Service struct {
	repo      repository.ListingRepository
	validator *Validator
	recorder  metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(repo repository.ListingRepository, validator *Validator, recorder metrics.Recorder, logger *slog.Logger) *Service {
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Service{
		repo:      repo,
		validator: validator,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
	}
}

// Create は認証済みプリンシパルを所有者として出品を作成する。
func (s *Service) Create(ctx context.Context, principal string, body map[string]any) (*model.Listing, error) {
	if principal == "" {
		return nil, model.NewAuthRequiredError()
	}
	in, err := s.validator.ParseCreate(body)
	if err != nil {
		return nil, err
	}

	l := &model.Listing{
		Title:       in.Title,
		Description: in.Description,
		Tags:        in.Tags,
		Image:       in.Image,
		CreatedBy:   principal,
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}

	s.recorder.RecordListingMutation("create")
	s.logger.Info("listing created",
		slog.String("listing_id", l.ID),
		slog.String("user_id", principal),
	)
	return l, nil
}

// List はフィルタとページングを適用した一覧と総件数を返す。
func (s *Service) List(ctx context.Context, q ListQuery) (*model.ListingPage, error) {
	filter := q.Filter(s.now())

	listings, err := s.repo.List(ctx, filter, q.Limit, q.Skip)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count listings: %w", err)
	}

	return &model.ListingPage{
		Listings: listings,
		Total:    total,
		Limit:    q.Limit,
		Skip:     q.Skip,
		HasMore:  int64(q.Skip+len(listings)) < total,
	}, nil
}

// Get は指定IDの出品を返す。IDの形式が不正な場合は404ではなく400とする。
func (s *Service) Get(ctx context.Context, id string) (*model.Listing, error) {
	id, err := normalizeID(id)
	if err != nil {
		return nil, err
	}
	l, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find listing: %w", err)
	}
	if l == nil {
		return nil, model.NewListingNotFoundError()
	}
	return l, nil
}

// ListByOwner は指定プリンシパルの出品を新しい順にすべて返す。
func (s *Service) ListByOwner(ctx context.Context, owner string) ([]*model.Listing, error) {
	if owner == "" {
		return nil, model.NewValidationError("User ID is required")
	}
	listings, err := s.repo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list listings by owner: %w", err)
	}
	return listings, nil
}

// Update は所有者による部分更新を行う。
// 入力検証はストアへの問い合わせより先に行う。
func (s *Service) Update(ctx context.Context, principal, id string, body map[string]any) (*model.Listing, error) {
	id, err := normalizeID(id)
	if err != nil {
		return nil, err
	}
	patch, err := s.validator.ParsePatch(body)
	if err != nil {
		return nil, err
	}

	l, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find listing: %w", err)
	}
	if l == nil {
		return nil, model.NewListingNotFoundError()
	}
	if err := Authorize(principal, l, ActionUpdate); err != nil {
		s.logger.Warn("listing update denied",
			slog.String("listing_id", id),
			slog.String("user_id", principal),
		)
		return nil, err
	}

	patch.Apply(l)
	updated, err := s.repo.Update(ctx, l)
	if err != nil {
		return nil, fmt.Errorf("update listing: %w", err)
	}
	// 取得から保存までの間に削除された
	if updated == nil {
		return nil, model.NewListingNotFoundError()
	}

	s.recorder.RecordListingMutation("update")
	return updated, nil
}

// Delete は所有者による削除を行う。存在しないIDは成功ではなく404とする。
func (s *Service) Delete(ctx context.Context, principal, id string) error {
	id, err := normalizeID(id)
	if err != nil {
		return err
	}

	l, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("find listing: %w", err)
	}
	if l == nil {
		return model.NewListingNotFoundError()
	}
	if err := Authorize(principal, l, ActionDelete); err != nil {
		s.logger.Warn("listing delete denied",
			slog.String("listing_id", id),
			slog.String("user_id", principal),
		)
		return err
	}

	deleted, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if !deleted {
		return model.NewListingNotFoundError()
	}

	s.recorder.RecordListingMutation("delete")
	s.logger.Info("listing deleted",
		slog.String("listing_id", id),
		slog.String("user_id", principal),
	)
	return nil
}

// DeleteAllByOwner は指定プリンシパルの出品をすべて削除し、件数を返す。
// アカウント削除からのみ呼ばれ、HTTPルートには公開しない。
func (s *Service) DeleteAllByOwner(ctx context.Context, owner string) (int64, error) {
	if owner == "" {
		return 0, fmt.Errorf("owner is required")
	}
	n, err := s.repo.DeleteByOwner(ctx, owner)
	if err != nil {
		return 0, fmt.Errorf("delete listings by owner: %w", err)
	}
	s.logger.Info("listings deleted for owner",
		slog.String("user_id", owner),
		slog.Int64("count", n),
	)
	return n, nil
}

// normalizeID はIDの形式を検証し、正規形(小文字・ハイフン区切り)で返す。
func normalizeID(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", model.NewInvalidListingIDError()
	}
	return u.String(), nil
}
