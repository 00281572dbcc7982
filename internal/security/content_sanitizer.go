package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は利用者入力のテキストからマークアップを除去する。
// 出品のタイトル・説明・タグはプレーンテキストとして保存する。
type TextSanitizer interface {
	// PlainText はすべてのHTMLタグを除去し、前後の空白を取り除いた文字列を返す。
	// 実体参照は元の文字に戻す。戻した結果がタグになる場合はそれも除去する。
	PlainText(s string) string
}

// maxSanitizePasses は実体参照の多重エンコードを剥がす回数の上限。
const maxSanitizePasses = 4

type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はbluemondayのStrictPolicyを使うTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// PlainText はマークアップを除去したプレーンテキストを返す。
func (s *textSanitizer) PlainText(in string) string {
	out := in
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(s.policy.Sanitize(out))
		if next == out {
			break
		}
		out = next
	}
	return strings.TrimSpace(out)
}
