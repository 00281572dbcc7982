package listing

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zagshelpzags/zagmarket/internal/model"
	"github.com/zagshelpzags/zagmarket/internal/security"
)

// 検証エラーのメッセージ。
const (
	msgTitleRequired       = "Title is required and must be a string"
	msgDescriptionRequired = "Description is required and must be a string"
	msgTagsType            = "Tags must be an array of strings"
	msgImageType           = "Image must be a string or null"
	msgImageFormat         = "Image must be an http(s) URL or a data:image URI"
	msgBodyType            = "Request body must be a JSON object"
)

// dataImagePrefix は埋め込み画像として受け付けるdata URIの接頭辞。
const dataImagePrefix = "data:image/"

// Input は検証済みの出品作成入力。
type Input struct {
	Title       string
	Description string
	Tags        []string
	Image       *string
}

// Patch は検証済みの部分更新入力。nilのフィールドは更新しない。
// ImageSet がtrueでImageがnilの場合は画像を削除する。
type Patch struct {
	Title       *string
	Description *string
	Tags        *[]string
	ImageSet    bool
	Image       *string
}

// Apply はパッチの指定フィールドだけをlistingへ反映する。
func (p *Patch) Apply(l *model.Listing) {
	if p.Title != nil {
		l.Title = *p.Title
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.Tags != nil {
		l.Tags = *p.Tags
	}
	if p.ImageSet {
		l.Image = p.Image
	}
}

// Validator はリクエストボディを型検証し、サニタイズ済みの入力へ変換する。
type Validator struct {
	sanitizer security.TextSanitizer
	guard     security.URLGuard
}

// NewValidator はValidatorを生成する。
func NewValidator(sanitizer security.TextSanitizer, guard security.URLGuard) *Validator {
	return &Validator{sanitizer: sanitizer, guard: guard}
}

// ParseCreate は作成リクエストのボディを検証する。
// 演算子形のキーを除去したうえで、title/descriptionが文字列であることを要求する。
// createdBy等のクライアント指定の所有者フィールドは無視する。
func (v *Validator) ParseCreate(body map[string]any) (*Input, error) {
	if body == nil {
		return nil, model.NewValidationError(msgBodyType)
	}
	security.StripOperatorKeys(body)

	title, err := v.requiredText(body["title"], msgTitleRequired, "Title", model.ListingTitleMaxLength)
	if err != nil {
		return nil, err
	}
	description, err := v.requiredText(body["description"], msgDescriptionRequired, "Description", model.ListingDescriptionMaxLength)
	if err != nil {
		return nil, err
	}
	tags, err := v.tags(body["tags"])
	if err != nil {
		return nil, err
	}
	image, err := v.image(body["image"])
	if err != nil {
		return nil, err
	}

	return &Input{
		Title:       title,
		Description: description,
		Tags:        tags,
		Image:       image,
	}, nil
}

// ParsePatch は更新リクエストのボディを検証する。存在するフィールドだけを対象にする。
func (v *Validator) ParsePatch(body map[string]any) (*Patch, error) {
	if body == nil {
		return nil, model.NewValidationError(msgBodyType)
	}
	security.StripOperatorKeys(body)

	patch := &Patch{}

	if raw, ok := body["title"]; ok {
		title, err := v.requiredText(raw, msgTitleRequired, "Title", model.ListingTitleMaxLength)
		if err != nil {
			return nil, err
		}
		patch.Title = &title
	}
	if raw, ok := body["description"]; ok {
		description, err := v.requiredText(raw, msgDescriptionRequired, "Description", model.ListingDescriptionMaxLength)
		if err != nil {
			return nil, err
		}
		patch.Description = &description
	}
	if raw, ok := body["tags"]; ok {
		tags, err := v.tags(raw)
		if err != nil {
			return nil, err
		}
		patch.Tags = &tags
	}
	if raw, ok := body["image"]; ok {
		image, err := v.image(raw)
		if err != nil {
			return nil, err
		}
		patch.ImageSet = true
		patch.Image = image
	}

	return patch, nil
}

// requiredText は必須のプレーンテキストを検証する。
// オブジェクトや配列、数値は型エラーとして拒否する。
func (v *Validator) requiredText(raw any, requiredMsg, field string, maxLen int) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", model.NewValidationError(requiredMsg)
	}
	s = v.sanitizer.PlainText(s)
	if s == "" {
		return "", model.NewValidationError(requiredMsg)
	}
	if utf8.RuneCountInString(s) > maxLen {
		return "", model.NewValidationError(fmt.Sprintf("%s must be at most %d characters", field, maxLen))
	}
	return s, nil
}

// tags はタグ配列を検証する。未指定・nullは空配列とする。空文字列のタグは取り除く。
func (v *Validator) tags(raw any) ([]string, error) {
	if raw == nil {
		return []string{}, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, model.NewValidationError(msgTagsType)
	}

	tags := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, model.NewValidationError(msgTagsType)
		}
		if s = v.sanitizer.PlainText(s); s != "" {
			tags = append(tags, s)
		}
	}
	if len(tags) > model.ListingMaxTags {
		return nil, model.NewValidationError(fmt.Sprintf("A listing can have at most %d tags", model.ListingMaxTags))
	}
	return tags, nil
}

// image は画像フィールドを検証する。未指定・null・空文字列は画像なしとする。
func (v *Validator) image(raw any) (*string, error) {
	if raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, model.NewValidationError(msgImageType)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	if strings.HasPrefix(strings.ToLower(s), dataImagePrefix) {
		return &s, nil
	}
	if err := v.guard.ValidateURL(s); err != nil {
		return nil, model.NewValidationError(msgImageFormat)
	}
	return &s, nil
}
