package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	stytchLiveBaseURL = "https://api.stytch.com"
	stytchTestBaseURL = "https://test.stytch.com"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Identity provider (Stytch)
	StytchProjectID string
	StytchSecret    string
	StytchBaseURL   string
	IdPTimeout      time.Duration

	// Auth
	AllowedEmailDomain     string
	SessionDurationMinutes int

	// Request
	MaxBodyBytes int64

	// Rate Limit
	RateLimitWrite int
	RateLimitAuth  int

	// Retention
	ListingRetentionDays int
	CleanupInterval      time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort        string
	WorkerMetricsPort string

	// CORS
	CORSAllowedOrigin string

	// Object storage
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3PublicBaseURL string
	S3UploadExpiry  time.Duration
}

// ImageUploadsEnabled はS3バケットが設定されているかを返す。
func (c *Config) ImageUploadsEnabled() bool {
	return c.S3Bucket != ""
}

// source は環境変数と設定ファイルの値を優先順位付きで引く。
// 環境変数 > 設定ファイル > デフォルト値。
type source struct {
	file map[string]string
}

func (s source) get(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

// Load は環境変数(と任意のTOML設定ファイル)からConfigを読み込む。
// pathが空の場合はCONFIG_FILE環境変数を参照し、それも空なら設定ファイルは使わない。
// 必須項目が未設定の場合はエラーを返す。
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}

	src := source{file: map[string]string{}}
	if path != "" {
		values, err := readFile(path)
		if err != nil {
			return nil, err
		}
		src.file = values
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = src.get("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.StytchProjectID = src.get("STYTCH_PROJECT_ID")
	if cfg.StytchProjectID == "" {
		missing = append(missing, "STYTCH_PROJECT_ID")
	}

	cfg.StytchSecret = src.get("STYTCH_SECRET")
	if cfg.StytchSecret == "" {
		missing = append(missing, "STYTCH_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required configuration is not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.StytchBaseURL = strings.TrimRight(src.getString("STYTCH_BASE_URL", defaultStytchBaseURL(cfg.StytchProjectID)), "/")
	cfg.IdPTimeout = src.getDuration("IDP_TIMEOUT", 10*time.Second)
	cfg.AllowedEmailDomain = strings.ToLower(strings.TrimPrefix(src.getString("ALLOWED_EMAIL_DOMAIN", "zagmail.gonzaga.edu"), "@"))
	cfg.SessionDurationMinutes = src.getInt("SESSION_DURATION_MINUTES", 60)
	cfg.MaxBodyBytes = src.getInt64("MAX_BODY_BYTES", 5242880)
	cfg.RateLimitWrite = src.getInt("RATE_LIMIT_WRITE", 60)
	cfg.RateLimitAuth = src.getInt("RATE_LIMIT_AUTH", 10)
	cfg.ListingRetentionDays = src.getInt("LISTING_RETENTION_DAYS", 0)
	cfg.CleanupInterval = src.getDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.LogLevel = src.getString("LOG_LEVEL", "info")
	cfg.ServerPort = src.getString("SERVER_PORT", "3000")
	cfg.WorkerMetricsPort = src.getString("WORKER_METRICS_PORT", "9091")
	cfg.CORSAllowedOrigin = src.getString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")
	cfg.S3Bucket = src.getString("S3_BUCKET", "")
	cfg.S3Region = src.getString("S3_REGION", "us-east-1")
	cfg.S3Endpoint = src.getString("S3_ENDPOINT", "")
	cfg.S3AccessKey = src.getString("S3_ACCESS_KEY", "")
	cfg.S3SecretKey = src.getString("S3_SECRET_KEY", "")
	cfg.S3PublicBaseURL = strings.TrimRight(src.getString("S3_PUBLIC_BASE_URL", ""), "/")
	cfg.S3UploadExpiry = src.getDuration("S3_UPLOAD_EXPIRY", 15*time.Minute)

	return cfg, nil
}

// defaultStytchBaseURL はプロジェクトIDからStytch APIのベースURLを決める。
// live環境のプロジェクトIDは "project-live-" で始まる。
func defaultStytchBaseURL(projectID string) string {
	if strings.HasPrefix(projectID, "project-live-") {
		return stytchLiveBaseURL
	}
	return stytchTestBaseURL
}

// readFile はフラットなTOMLテーブルを読み込み、キーを大文字に正規化して返す。
func readFile(path string) (map[string]string, error) {
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch tv := v.(type) {
		case map[string]any, []any, []map[string]any:
			return nil, fmt.Errorf("config file %s: key %q must be a scalar value", path, k)
		case time.Time:
			values[strings.ToUpper(k)] = tv.Format(time.RFC3339)
		default:
			values[strings.ToUpper(k)] = fmt.Sprint(tv)
		}
	}
	return values, nil
}

func (s source) getString(key, defaultVal string) string {
	if v := s.get(key); v != "" {
		return v
	}
	return defaultVal
}

func (s source) getInt(key string, defaultVal int) int {
	v := s.get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func (s source) getInt64(key string, defaultVal int64) int64 {
	v := s.get(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func (s source) getDuration(key string, defaultVal time.Duration) time.Duration {
	v := s.get(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
