package listing

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zagshelpzags/zagmarket/internal/model"
	"github.com/zagshelpzags/zagmarket/internal/security"
)

// 一覧取得のページングの既定値と上限。
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// 時間窓の上限。これを超える値はtime.Durationで表せないため丸める。
const (
	maxWindowHours = int(math.MaxInt64 / int64(time.Hour))
	maxWindowDays  = maxWindowHours / 24
)

// singleValueKeys は一覧取得が解釈するキー。これらは1回だけ指定できる。
var singleValueKeys = []string{"tags", "hours", "days", "limit", "skip"}

// ListQuery は一覧取得のクエリパラメータを解釈した結果。
type ListQuery struct {
	Tags  []string
	Hours int
	Days  int
	Limit int
	Skip  int
}

// Window は時間窓を返す。hoursが正ならhours、なければdaysが正ならdays、どちらもなければ0。
func (q ListQuery) Window() time.Duration {
	switch {
	case q.Hours > 0:
		return time.Duration(min(q.Hours, maxWindowHours)) * time.Hour
	case q.Days > 0:
		return time.Duration(min(q.Days, maxWindowDays)) * 24 * time.Hour
	default:
		return 0
	}
}

// Filter は基準時刻nowに対するストア用のフィルタを返す。
func (q ListQuery) Filter(now time.Time) model.ListingFilter {
	filter := model.ListingFilter{Tags: q.Tags}
	if w := q.Window(); w > 0 {
		since := now.Add(-w)
		filter.Since = &since
	}
	return filter
}

// ParseListQuery はクエリパラメータを検証してListQueryに変換する。
// 演算子形のキーは無視し、解釈するキーが複数回指定された場合は型エラーとする。
// hours/daysは先頭の整数部分を読み、数値でない値や0以下の値は無視する。
func ParseListQuery(values url.Values) (ListQuery, error) {
	values = security.SanitizeQuery(values)
	q := ListQuery{Limit: DefaultLimit}

	for _, key := range singleValueKeys {
		if len(values[key]) > 1 {
			return ListQuery{}, model.NewValidationError(fmt.Sprintf("Query parameter %q must be a single value", key))
		}
	}

	if raw := values.Get("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				q.Tags = append(q.Tags, tag)
			}
		}
	}

	q.Hours = min(leadingPositiveInt(values.Get("hours")), maxWindowHours)
	q.Days = min(leadingPositiveInt(values.Get("days")), maxWindowDays)

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || limit <= 0 {
			return ListQuery{}, model.NewValidationError("limit must be a positive integer")
		}
		q.Limit = min(limit, MaxLimit)
	}

	if raw := values.Get("skip"); raw != "" {
		skip, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || skip < 0 {
			return ListQuery{}, model.NewValidationError("skip must be a non-negative integer")
		}
		q.Skip = skip
	}

	return q, nil
}

// leadingPositiveInt は先頭の符号と数字列だけを整数として読む("12abc"は12、"1.5"は1)。
// 数字が無い場合や0以下の場合は0、intに収まらない正の値はmath.MaxIntを返す。
func leadingPositiveInt(raw string) int {
	raw = strings.TrimSpace(raw)
	end := 0
	if end < len(raw) && (raw[end] == '+' || raw[end] == '-') {
		end++
	}
	digits := end
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}

	n, err := strconv.Atoi(raw[:end])
	if err != nil {
		if errors.Is(err, strconv.ErrRange) && raw[0] != '-' {
			return math.MaxInt
		}
		return 0
	}
	if n <= 0 {
		return 0
	}
	return n
}
