package listing

import (
	"github.com/zagshelpzags/zagmarket/internal/model"
)

// Action は所有者チェックの対象となる変更操作。
type Action string

const (
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Authorize は変更操作を行うプリンシパルが出品の所有者であるかを判定する。
// 比較は正規化しない単純な文字列一致で行う。
// 読み取り操作はこのチェックを通らない。
func Authorize(principal string, l *model.Listing, action Action) error {
	if principal != "" && principal == l.CreatedBy {
		return nil
	}
	return model.NewForbiddenError("You can only " + string(action) + " your own listings")
}
