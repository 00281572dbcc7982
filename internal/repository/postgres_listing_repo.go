package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/zagshelpzags/zagmarket/internal/model"
)

// listingColumns はSELECT/RETURNINGで使う列の並び。
var listingColumns = []string{
	"id", "title", "description", "tags", "image",
	"created_by", "created_by_email", "created_at", "updated_at",
}

// psql はPostgreSQL用のプレースホルダ($1, $2, ...)を使うステートメントビルダー。
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// listingRow はlistingsテーブルの1行をスキャンするための中間表現。
type listingRow struct {
	ID             string         `db:"id"`
	Title          string         `db:"title"`
	Description    string         `db:"description"`
	Tags           pq.StringArray `db:"tags"`
	Image          sql.NullString `db:"image"`
	CreatedBy      string         `db:"created_by"`
	CreatedByEmail sql.NullString `db:"created_by_email"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (r *listingRow) toModel() *model.Listing {
	tags := []string(r.Tags)
	if tags == nil {
		tags = []string{}
	}
	return &model.Listing{
		ID:             r.ID,
		Title:          r.Title,
		Description:    r.Description,
		Tags:           tags,
		Image:          nullStringPtr(r.Image),
		CreatedBy:      r.CreatedBy,
		CreatedByEmail: nullStringPtr(r.CreatedByEmail),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

// PostgresListingRepo はPostgreSQLを使用した出品リポジトリ。
type PostgresListingRepo struct {
	db *sqlx.DB
}

// NewPostgresListingRepo はPostgresListingRepoを生成する。
func NewPostgresListingRepo(db *sqlx.DB) *PostgresListingRepo {
	return &PostgresListingRepo{db: db}
}

var _ ListingRepository = (*PostgresListingRepo)(nil)

// Create は出品を作成し、採番されたIDとタイムスタンプをlistingに反映する。
func (r *PostgresListingRepo) Create(ctx context.Context, listing *model.Listing) error {
	query, args, err := psql.Insert("listings").
		Columns("title", "description", "tags", "image", "created_by", "created_by_email").
		Values(listing.Title, listing.Description, pq.Array(nonNilTags(listing.Tags)),
			listing.Image, listing.CreatedBy, listing.CreatedByEmail).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if err := r.db.QueryRowxContext(ctx, query, args...).Scan(&listing.ID, &listing.CreatedAt, &listing.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create listing: %w", err)
	}
	listing.Tags = nonNilTags(listing.Tags)
	return nil
}

// FindByID は指定IDの出品を取得する。見つからない場合はnilを返す。
func (r *PostgresListingRepo) FindByID(ctx context.Context, id string) (*model.Listing, error) {
	query, args, err := psql.Select(listingColumns...).
		From("listings").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var row listingRow
	err = r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find listing: %w", err)
	}
	return row.toModel(), nil
}

// List はフィルタに一致する出品を作成日時の降順で取得する。
func (r *PostgresListingRepo) List(ctx context.Context, filter model.ListingFilter, limit, skip int) ([]*model.Listing, error) {
	query, args, err := buildListQuery(filter, limit, skip).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}
	return r.selectListings(ctx, query, args)
}

// Count はフィルタに一致する出品の総数を返す。
func (r *PostgresListingRepo) Count(ctx context.Context, filter model.ListingFilter) (int64, error) {
	query, args, err := buildCountQuery(filter).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var total int64
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return total, nil
}

// ListByOwner は指定プリンシパルの出品を作成日時の降順ですべて取得する。
func (r *PostgresListingRepo) ListByOwner(ctx context.Context, owner string) ([]*model.Listing, error) {
	query, args, err := psql.Select(listingColumns...).
		From("listings").
		Where(sq.Eq{"created_by": owner}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build owner query: %w", err)
	}
	return r.selectListings(ctx, query, args)
}

// Update は出品の可変フィールドを保存し、updated_atを更新する。
// created_byは更新対象に含めず、条件として一致を要求する。
// 該当行がない場合はnilを返す。
func (r *PostgresListingRepo) Update(ctx context.Context, listing *model.Listing) (*model.Listing, error) {
	query, args, err := psql.Update("listings").
		SetMap(map[string]any{
			"title":       listing.Title,
			"description": listing.Description,
			"tags":        pq.Array(nonNilTags(listing.Tags)),
			"image":       listing.Image,
			"updated_at":  sq.Expr("now()"),
		}).
		Where(sq.Eq{"id": listing.ID, "created_by": listing.CreatedBy}).
		Suffix("RETURNING " + strings.Join(listingColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update query: %w", err)
	}

	var row listingRow
	err = r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update listing: %w", err)
	}
	return row.toModel(), nil
}

// DeleteByID は指定IDの出品を削除する。削除した行があればtrueを返す。
func (r *PostgresListingRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	query, args, err := psql.Delete("listings").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build delete query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to delete listing: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

// DeleteByOwner は指定プリンシパルの出品をすべて削除し、削除件数を返す。
func (r *PostgresListingRepo) DeleteByOwner(ctx context.Context, owner string) (int64, error) {
	query, args, err := psql.Delete("listings").Where(sq.Eq{"created_by": owner}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build bulk delete query: %w", err)
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete listings by owner: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

func (r *PostgresListingRepo) selectListings(ctx context.Context, query string, args []any) ([]*model.Listing, error) {
	var rows []listingRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}

	listings := make([]*model.Listing, 0, len(rows))
	for i := range rows {
		listings = append(listings, rows[i].toModel())
	}
	return listings, nil
}

// buildListingFilter は一覧・件数取得で共通のWHERE条件を組み立てる。
// タグはいずれかに一致(&&)、期間は作成日時か更新日時のどちらかが範囲内であれば一致とする。
func buildListingFilter(filter model.ListingFilter) sq.And {
	cond := sq.And{}
	if len(filter.Tags) > 0 {
		cond = append(cond, sq.Expr("tags && ?", pq.Array(filter.Tags)))
	}
	if filter.Since != nil {
		cond = append(cond, sq.Or{
			sq.GtOrEq{"created_at": *filter.Since},
			sq.GtOrEq{"updated_at": *filter.Since},
		})
	}
	return cond
}

func buildListQuery(filter model.ListingFilter, limit, skip int) sq.SelectBuilder {
	q := psql.Select(listingColumns...).From("listings")
	if cond := buildListingFilter(filter); len(cond) > 0 {
		q = q.Where(cond)
	}
	return q.OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(skip))
}

func buildCountQuery(filter model.ListingFilter) sq.SelectBuilder {
	q := psql.Select("count(*)").From("listings")
	if cond := buildListingFilter(filter); len(cond) > 0 {
		q = q.Where(cond)
	}
	return q
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// nullStringPtr はsql.NullStringを*stringに変換する。NULLの場合はnilを返す。
func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
