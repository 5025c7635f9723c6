package config

import (
	"time"
)

// CountPolicy はシーン数が要求パネル数と一致しない場合の扱いです。
type CountPolicy string

const (
	// CountPolicyClamp は多すぎるシーンを切り詰め、少ない場合はそのまま受け入れます。
	CountPolicyClamp CountPolicy = "clamp"
	// CountPolicyStrict は不一致をエラーにします。
	CountPolicyStrict CountPolicy = "strict"
	// CountPolicyLenient は何もせずそのまま受け入れます。
	CountPolicyLenient CountPolicy = "lenient"
)

// デフォルト値の定義
const (
	DefaultProvider        = "gemini"
	DefaultGeminiModel     = "gemini-2.5-flash"
	DefaultGeminiImage     = "imagen-4.0-generate-001"
	DefaultOpenAIBaseURL   = "https://api.openai.com/v1"
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultOpenAIImage     = "dall-e-3"
	DefaultTemperature     = float32(0.7)
	DefaultTextTimeout     = 60 * time.Second
	DefaultImageTimeout    = 120 * time.Second
	DefaultTransferTimeout = 30 * time.Second
	DefaultMaxConcurrency  = 4
	DefaultSceneCacheTTL   = 10 * time.Minute
	DefaultObjectPrefix    = "comic_panels"
	DefaultMaxImageBytes   = 20 << 20
)

// Config は go-comic-kit の各コンポーネントを動作させるための基本設定です。
type Config struct {
	// --- AI Provider Settings ---
	Provider     string // "gemini" または "openai"
	GeminiAPIKey string
	GeminiModel  string
	GeminiImage  string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	OpenAIImage   string

	Temperature float32

	// --- Pipeline Settings ---
	CountPolicy    CountPolicy
	MaxConcurrency int
	RateInterval   time.Duration // 0 なら画像生成のレート制限なし
	SceneCacheTTL  time.Duration // 0 ならキャッシュしない

	// --- Timeouts ---
	TextTimeout     time.Duration
	ImageTimeout    time.Duration
	TransferTimeout time.Duration

	// --- Storage ---
	ObjectPrefix  string
	MaxImageBytes int64
}

// DefaultConfig は推奨されるデフォルト設定を返すヘルパー関数です。
func DefaultConfig() Config {
	return Config{
		Provider:        DefaultProvider,
		GeminiModel:     DefaultGeminiModel,
		GeminiImage:     DefaultGeminiImage,
		OpenAIBaseURL:   DefaultOpenAIBaseURL,
		OpenAIModel:     DefaultOpenAIModel,
		OpenAIImage:     DefaultOpenAIImage,
		Temperature:     DefaultTemperature,
		CountPolicy:     CountPolicyClamp,
		MaxConcurrency:  DefaultMaxConcurrency,
		SceneCacheTTL:   DefaultSceneCacheTTL,
		TextTimeout:     DefaultTextTimeout,
		ImageTimeout:    DefaultImageTimeout,
		TransferTimeout: DefaultTransferTimeout,
		ObjectPrefix:    DefaultObjectPrefix,
		MaxImageBytes:   DefaultMaxImageBytes,
	}
}
