package builder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/go-comic-kit/internal/config"
	"github.com/shouni/go-comic-kit/pkg/extractor"
	"github.com/shouni/go-comic-kit/pkg/generator"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
	"github.com/shouni/go-comic-kit/pkg/prompts"
	"github.com/shouni/go-comic-kit/pkg/renderer"
	"github.com/shouni/go-comic-kit/pkg/storage"

	"github.com/shouni/go-http-kit/httpkit"
)

// BuildGenerator は AI_PROVIDER に応じてクライアントを初期化します。
func BuildGenerator(ctx context.Context, cfg *config.Config, httpClient *httpkit.Client) (Generator, error) {
	kit := cfg.Kit
	switch kit.Provider {
	case "openai":
		c, err := generator.NewOpenAIClient(kit.OpenAIAPIKey, kit.OpenAIBaseURL, kit.OpenAIModel, kit.OpenAIImage, kit.Temperature, httpClient)
		if err != nil {
			return nil, fmt.Errorf("OpenAIクライアントの初期化に失敗したのだ: %w", err)
		}
		return c, nil
	default:
		c, err := generator.NewGeminiClient(ctx, generator.GeminiOptions{
			APIKey:      kit.GeminiAPIKey,
			TextModel:   kit.GeminiModel,
			ImageModel:  kit.GeminiImage,
			Temperature: kit.Temperature,
			Downloader:  httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("Geminiクライアントの初期化に失敗したのだ: %w", err)
		}
		return c, nil
	}
}

// BuildStore は STORAGE_BACKEND に応じて ObjectStore を返します。
// ローカル保存のときは配信用のルートディレクトリも返すのだ。
func BuildStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, string, error) {
	switch cfg.StorageBackend {
	case config.StorageGCS:
		s, err := storage.NewGCSStore(ctx, cfg.GCSBucket, cfg.GCSPublicBase)
		if err != nil {
			return nil, "", fmt.Errorf("GCSストレージの初期化に失敗したのだ: %w", err)
		}
		return s, "", nil
	default:
		s, err := storage.NewLocalStore(cfg.LocalStorageDir, cfg.AssetsBaseURL())
		if err != nil {
			return nil, "", fmt.Errorf("ローカルストレージの初期化に失敗したのだ: %w", err)
		}
		return s, s.Root(), nil
	}
}

// BuildPromptBuilder は STYLE_PRESETS_FILE があればそれを、なければ埋め込みのプリセットを使います。
func BuildPromptBuilder(cfg *config.Config) (*prompts.TemplatePromptBuilder, error) {
	var presets prompts.StylePresets
	if cfg.StylePresetsFile != "" {
		var err error
		presets, err = prompts.LoadStylePresets(cfg.StylePresetsFile)
		if err != nil {
			return nil, fmt.Errorf("画風プリセットの読み込みに失敗しました: %w", err)
		}
		slog.Info("画風プリセットをファイルから読み込んだのだ", "path", cfg.StylePresetsFile)
	}
	pb, err := prompts.NewTemplatePromptBuilder(presets)
	if err != nil {
		return nil, fmt.Errorf("プロンプトビルダーの初期化に失敗しました: %w", err)
	}
	return pb, nil
}

// BuildExtractor はテキスト生成クライアントとプロンプトから Extractor を作るのだ。
func BuildExtractor(cfg *config.Config, gen generator.TextGenerator, pb *prompts.TemplatePromptBuilder) *extractor.Extractor {
	return extractor.New(gen, pb, extractor.Options{
		Timeout:  cfg.Kit.TextTimeout,
		CacheTTL: cfg.Kit.SceneCacheTTL,
	})
}

// BuildRenderer は画像生成クライアントと保存先から Renderer を作ります。
func BuildRenderer(cfg *config.Config, gen generator.ImageGenerator, pb *prompts.TemplatePromptBuilder, store storage.ObjectStore, httpClient httpkit.Requester) *renderer.Renderer {
	return renderer.New(gen, pb, store, httpClient, renderer.Options{
		ImageTimeout:    cfg.Kit.ImageTimeout,
		TransferTimeout: cfg.Kit.TransferTimeout,
		ObjectPrefix:    cfg.Kit.ObjectPrefix,
		MaxImageBytes:   cfg.Kit.MaxImageBytes,
	})
}

// BuildOrchestrator は Extractor と Renderer をつないだ Orchestrator を返すのだ。
func BuildOrchestrator(cfg *config.Config, ex pipeline.SceneExtractor, rd pipeline.PanelRenderer) *pipeline.Orchestrator {
	return pipeline.New(ex, rd, pipeline.Options{
		CountPolicy:    cfg.Kit.CountPolicy,
		MaxConcurrency: cfg.Kit.MaxConcurrency,
		RateInterval:   cfg.Kit.RateInterval,
		Observer: pipeline.StateObserverFunc(func(ctx context.Context, runID string, from, to pipeline.State) {
			slog.InfoContext(ctx, "パイプラインの状態", "run_id", runID, "state", to.String())
		}),
	})
}
