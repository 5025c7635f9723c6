package config

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/shouni/go-comic-kit/pkg/config"

	"github.com/shouni/go-utils/envutil"
)

// デフォルト値の定義なのだ
const (
	DefaultAddr            = ":8080"
	DefaultStorageBackend  = "local"
	DefaultLocalStorageDir = "output/assets"
	DefaultLogFormat       = "text"
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxBodyBytes    = 1 << 20
)

// ストレージの種類
const (
	StorageLocal = "local"
	StorageGCS   = "gcs"
)

// Config はアプリケーション全体の環境設定（APIキーや保存先）を保持する構造体なのだ。
type Config struct {
	Kit config.Config

	Addr            string
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	StorageBackend  string
	LocalStorageDir string
	PublicBaseURL   string // 空なら Addr から組み立てるのだ（AssetsBaseURL）
	GCSBucket       string
	GCSPublicBase   string

	// AllowPrivateURLs が true のとき、画像ダウンロードの SSRF 検証を省略します。
	// ローカルで動く OpenAI 互換サーバーを使う場合向けなのだ。
	AllowPrivateURLs bool

	StylePresetsFile string

	LogFormat string
	LogLevel  string
}

// LoadConfig は環境変数から設定を読み込み、構造体を返すのだ！
// 数値や時間の書式が不正な値はエラーにします。
func LoadConfig() (*Config, error) {
	kit := config.DefaultConfig()
	kit.Provider = strings.ToLower(envutil.GetEnv("AI_PROVIDER", kit.Provider))
	kit.GeminiAPIKey = envutil.GetEnv("GEMINI_API_KEY", "")
	kit.GeminiModel = envutil.GetEnv("GEMINI_MODEL", kit.GeminiModel)
	kit.GeminiImage = envutil.GetEnv("IMAGE_GEMINI_MODEL", kit.GeminiImage)
	kit.OpenAIAPIKey = envutil.GetEnv("OPENAI_API_KEY", "")
	kit.OpenAIBaseURL = envutil.GetEnv("OPENAI_BASE_URL", kit.OpenAIBaseURL)
	kit.OpenAIModel = envutil.GetEnv("OPENAI_MODEL", kit.OpenAIModel)
	kit.OpenAIImage = envutil.GetEnv("OPENAI_IMAGE_MODEL", kit.OpenAIImage)
	kit.CountPolicy = config.CountPolicy(strings.ToLower(envutil.GetEnv("COUNT_POLICY", string(kit.CountPolicy))))
	kit.ObjectPrefix = envutil.GetEnv("OBJECT_PREFIX", kit.ObjectPrefix)

	cfg := &Config{
		Kit:              kit,
		Addr:             envutil.GetEnv("ADDR", DefaultAddr),
		StorageBackend:   strings.ToLower(envutil.GetEnv("STORAGE_BACKEND", DefaultStorageBackend)),
		LocalStorageDir:  envutil.GetEnv("LOCAL_STORAGE_DIR", DefaultLocalStorageDir),
		PublicBaseURL:    envutil.GetEnv("PUBLIC_BASE_URL", ""),
		GCSBucket:        envutil.GetEnv("GCS_BUCKET", ""),
		GCSPublicBase:    envutil.GetEnv("GCS_PUBLIC_BASE", ""),
		StylePresetsFile: envutil.GetEnv("STYLE_PRESETS_FILE", ""),
		LogFormat:        strings.ToLower(envutil.GetEnv("LOG_FORMAT", DefaultLogFormat)),
		LogLevel:         strings.ToLower(envutil.GetEnv("LOG_LEVEL", DefaultLogLevel)),
	}

	var err error
	if cfg.Kit.Temperature, err = envFloat32("TEMPERATURE", kit.Temperature); err != nil {
		return nil, err
	}
	if cfg.Kit.MaxConcurrency, err = envInt("MAX_CONCURRENCY", kit.MaxConcurrency); err != nil {
		return nil, err
	}
	if cfg.Kit.MaxImageBytes, err = envInt64("MAX_IMAGE_BYTES", kit.MaxImageBytes); err != nil {
		return nil, err
	}
	if cfg.MaxBodyBytes, err = envInt64("MAX_BODY_BYTES", DefaultMaxBodyBytes); err != nil {
		return nil, err
	}
	if cfg.AllowPrivateURLs, err = envBool("ALLOW_PRIVATE_URLS", false); err != nil {
		return nil, err
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"TEXT_TIMEOUT", kit.TextTimeout, &cfg.Kit.TextTimeout},
		{"IMAGE_TIMEOUT", kit.ImageTimeout, &cfg.Kit.ImageTimeout},
		{"TRANSFER_TIMEOUT", kit.TransferTimeout, &cfg.Kit.TransferTimeout},
		{"RATE_INTERVAL", kit.RateInterval, &cfg.Kit.RateInterval},
		{"SCENE_CACHE_TTL", kit.SceneCacheTTL, &cfg.Kit.SceneCacheTTL},
		{"SHUTDOWN_TIMEOUT", DefaultShutdownTimeout, &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = envDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Validate は選択されたプロバイダーとストレージに必要な値が揃っているかを確認するのだ。
func (c *Config) Validate() error {
	switch c.Kit.Provider {
	case "gemini":
		if c.Kit.GeminiAPIKey == "" {
			return fmt.Errorf("環境変数 GEMINI_API_KEY が設定されていません。Gemini APIの利用には必須なのだ")
		}
	case "openai":
		if c.Kit.OpenAIAPIKey == "" {
			return fmt.Errorf("環境変数 OPENAI_API_KEY が設定されていません。OpenAI互換APIの利用には必須なのだ")
		}
	default:
		return fmt.Errorf("未対応の AI_PROVIDER です: %q (gemini または openai)", c.Kit.Provider)
	}

	switch c.Kit.CountPolicy {
	case config.CountPolicyClamp, config.CountPolicyStrict, config.CountPolicyLenient:
	default:
		return fmt.Errorf("未対応の COUNT_POLICY です: %q", c.Kit.CountPolicy)
	}

	switch c.StorageBackend {
	case StorageLocal:
		if c.LocalStorageDir == "" {
			return fmt.Errorf("LOCAL_STORAGE_DIR が空なのだ")
		}
	case StorageGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("STORAGE_BACKEND=gcs には GCS_BUCKET が必須なのだ")
		}
	default:
		return fmt.Errorf("未対応の STORAGE_BACKEND です: %q (local または gcs)", c.StorageBackend)
	}
	return nil
}

// AssetsBaseURL はローカル保存時の公開 URL の基点を返します。
// PUBLIC_BASE_URL が未設定なら、待ち受けアドレスのポートに合わせて http://localhost:<port>/assets にするのだ。
func (c *Config) AssetsBaseURL() string {
	if c.PublicBaseURL != "" {
		return c.PublicBaseURL
	}
	host, port, err := net.SplitHostPort(c.Addr)
	if err != nil {
		host, port = "", "8080"
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/assets"
}

// SlogLevel は LogLevel を slog.Level に変換します。不明な値は Info なのだ。
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envInt(key string, def int) (int, error) {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("環境変数 %s の値が不正です (%q): %w", key, raw, err)
	}
	return v, nil
}

func envInt64(key string, def int64) (int64, error) {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("環境変数 %s の値が不正です (%q): %w", key, raw, err)
	}
	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("環境変数 %s の値が不正です (%q): %w", key, raw, err)
	}
	return v, nil
}

func envFloat32(key string, def float32) (float32, error) {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, fmt.Errorf("環境変数 %s の値が不正です (%q): %w", key, raw, err)
	}
	return float32(v), nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("環境変数 %s の値が不正です (%q): %w", key, raw, err)
	}
	return v, nil
}
