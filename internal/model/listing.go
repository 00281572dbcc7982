package model

import "time"

// Listing の入力制約。
const (
	ListingTitleMaxLength       = 200
	ListingDescriptionMaxLength = 5000
	ListingMaxTags              = 10
)

// Listing はマーケットプレイスの出品を表す。
// CreatedBy は作成時に認証済みプリンシパルで固定され、以後変更されない。
type Listing struct {
	ID             string    `db:"id"`
	Title          string    `db:"title"`
	Description    string    `db:"description"`
	Tags           []string  `db:"tags"`
	Image          *string   `db:"image"`
	CreatedBy      string    `db:"created_by"`
	CreatedByEmail *string   `db:"created_by_email"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// PostedAt は作成日時の別名。フロントエンドの表示用に公開する。
func (l *Listing) PostedAt() time.Time {
	return l.CreatedAt
}

// ListingFilter は出品一覧の検索条件を表す。
// Tags はいずれか1つに一致すれば対象とする。
// Since が指定された場合、作成日時または更新日時のいずれかが Since 以降のものを対象とする。
type ListingFilter struct {
	Tags  []string
	Since *time.Time
}

// ListingPage は一覧取得の結果とページング情報を表す。
type ListingPage struct {
	Listings []*Listing
	Total    int64
	Limit    int
	Skip     int
	HasMore  bool
}

// SessionContext はGateが検証済みのセッション情報をリクエスト単位で保持する。
type SessionContext struct {
	Principal string
	Token     string
}
