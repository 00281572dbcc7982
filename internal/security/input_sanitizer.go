package security

import (
	"net/url"
	"strings"
)

// StripOperatorKeys はデコード済みJSONから "$" で始まるキーを再帰的に取り除く。
// {"$ne": null} のようなクエリ演算子の形をした値をストア層に届かせないための前処理で、
// 値の型検証は呼び出し側で別途行う。
func StripOperatorKeys(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		for k, child := range tv {
			if isOperatorKey(k) {
				delete(tv, k)
				continue
			}
			tv[k] = StripOperatorKeys(child)
		}
		return tv
	case []any:
		for i, child := range tv {
			tv[i] = StripOperatorKeys(child)
		}
		return tv
	default:
		return v
	}
}

// SanitizeQuery はクエリパラメータから演算子形のキーを取り除いたコピーを返す。
// "$where" のような "$" 始まりのキーと、"tags[$ne]" のようなブラケット記法のキーが対象。
func SanitizeQuery(values url.Values) url.Values {
	out := make(url.Values, len(values))
	for k, v := range values {
		if isOperatorKey(k) || strings.ContainsAny(k, "[]") {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}

func isOperatorKey(k string) bool {
	return strings.HasPrefix(k, "$")
}
