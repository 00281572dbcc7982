// Package imagestore は出品画像アップロード用の署名付きURLを発行する。
// 画像本体はクライアントがS3互換ストレージへ直接PUTし、APIサーバーは中継しない。
package imagestore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/zagshelpzags/zagmarket/internal/model"
)

// DefaultExpiry は署名付きURLのデフォルト有効期間。
const DefaultExpiry = 15 * time.Minute

// allowedContentTypes はアップロード可能な画像形式と拡張子の対応。
var allowedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

const msgContentType = "content_type must be one of image/jpeg, image/png, image/gif, image/webp"

// Presigner は署名付きPUTリクエストの生成インターフェース。
// *s3.PresignClient が満たす。
type Presigner interface {
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config はストレージ接続設定。
type Config struct {
	Bucket        string
	Region        string
	Endpoint      string // MinIO等のS3互換エンドポイント。空ならAWS
	AccessKey     string
	SecretKey     string
	PublicBaseURL string // 公開URLのベース。空ならエンドポイントから組み立てる
	Expiry        time.Duration
}

// Upload は発行した署名付きアップロードの情報。
type Upload struct {
	UploadURL   string
	Method      string
	Headers     map[string]string
	Key         string
	ImageURL    string
	ContentType string
	ExpiresAt   time.Time
}

// Store は画像アップロードURLを発行する。
type Store struct {
	presigner Presigner
	cfg       Config
	now       func() time.Time
	newID     func() string
}

// New はS3クライアントを構築してStoreを生成する。
// 静的な認証情報が設定されていればそれを使い、なければAWSのデフォルト解決に従う。
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("AWS設定の読み込みに失敗しました: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithPresigner(s3.NewPresignClient(client), cfg), nil
}

// NewWithPresigner は任意のPresignerでStoreを生成する。
func NewWithPresigner(p Presigner, cfg Config) *Store {
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	return &Store{
		presigner: p,
		cfg:       cfg,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// PresignUpload はプリンシパル用の画像アップロードURLを発行する。
func (s *Store) PresignUpload(ctx context.Context, principal, contentType string) (*Upload, error) {
	if principal == "" {
		return nil, model.NewAuthRequiredError()
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return nil, model.NewValidationError(msgContentType)
	}

	now := s.now().UTC()
	key := s.objectKey(principal, now, ext)

	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.cfg.Expiry))
	if err != nil {
		return nil, fmt.Errorf("署名付きURLの生成に失敗しました: %w", err)
	}

	headers := make(map[string]string, len(req.SignedHeader))
	for k, v := range req.SignedHeader {
		if len(v) > 0 && !strings.EqualFold(k, "Host") {
			headers[k] = v[0]
		}
	}

	return &Upload{
		UploadURL:   req.URL,
		Method:      req.Method,
		Headers:     headers,
		Key:         key,
		ImageURL:    s.PublicURL(key),
		ContentType: contentType,
		ExpiresAt:   now.Add(s.cfg.Expiry),
	}, nil
}

// objectKey は listings/{principal}/{yyyy}/{mm}/{uuid}{ext} 形式のキーを返す。
func (s *Store) objectKey(principal string, t time.Time, ext string) string {
	return fmt.Sprintf("listings/%s/%04d/%02d/%s%s",
		url.PathEscape(principal), t.Year(), int(t.Month()), s.newID(), ext)
}

// PublicURL はオブジェクトキーに対応する公開URLを返す。
func (s *Store) PublicURL(key string) string {
	switch {
	case s.cfg.PublicBaseURL != "":
		return strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/" + key
	case s.cfg.Endpoint != "":
		return strings.TrimSuffix(s.cfg.Endpoint, "/") + "/" + s.cfg.Bucket + "/" + key
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
	}
}
