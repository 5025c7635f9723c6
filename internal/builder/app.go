package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shouni/go-comic-kit/internal/config"
	"github.com/shouni/go-comic-kit/pkg/extractor"
	"github.com/shouni/go-comic-kit/pkg/generator"
	"github.com/shouni/go-comic-kit/pkg/pipeline"
	"github.com/shouni/go-comic-kit/pkg/prompts"
	"github.com/shouni/go-comic-kit/pkg/storage"

	"github.com/shouni/go-http-kit/httpkit"
)

// httpTimeoutMargin は httpkit クライアント全体のタイムアウトを、呼び出し単位の ctx より後ろにずらす余白なのだ。
const httpTimeoutMargin = 5 * time.Second

// Generator はテキストと画像の両方を生成できるクライアントなのだ。
type Generator interface {
	generator.TextGenerator
	generator.ImageGenerator
}

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持する
// serve と generate の両方がこれを通して依存関係を受け取ります。
type AppContext struct {
	Config       *config.Config                 // Configは、環境変数とフラグから組み立てた設定です。
	Generator    Generator                      // Generatorは、選択されたプロバイダーのクライアントです。
	Store        storage.ObjectStore            // Storeは、パネル画像の永続化先です。
	LocalRoot    string                         // LocalRootは、ローカル保存時のみ設定され、/assets の配信元になります。
	Prompts      *prompts.TemplatePromptBuilder // Promptsは、シーン抽出と画像のプロンプトを組み立てます。
	Extractor    *extractor.Extractor           // Extractorは、台本からシーン列を取り出します。
	Orchestrator *pipeline.Orchestrator         // Orchestratorは、台本からパネル列までを実行する司令塔です。

	closers []io.Closer
}

// NewAppContext は設定から全コンポーネントを組み立てる
func NewAppContext(ctx context.Context, cfg *config.Config) (*AppContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := newHTTPClient(cfg)
	app := &AppContext{Config: cfg}

	gen, err := BuildGenerator(ctx, cfg, httpClient)
	if err != nil {
		return nil, err
	}
	app.Generator = gen

	store, localRoot, err := BuildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Store = store
	app.LocalRoot = localRoot
	if c, ok := store.(io.Closer); ok {
		app.closers = append(app.closers, c)
	}

	pb, err := BuildPromptBuilder(cfg)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Prompts = pb

	app.Extractor = BuildExtractor(cfg, gen, pb)
	app.Orchestrator = BuildOrchestrator(cfg, app.Extractor, BuildRenderer(cfg, gen, pb, store, httpClient))

	slog.InfoContext(ctx, "アプリケーションの初期化が完了したのだ",
		"provider", cfg.Kit.Provider,
		"storage", cfg.StorageBackend,
		"max_concurrency", cfg.Kit.MaxConcurrency,
		"count_policy", cfg.Kit.CountPolicy)
	return app, nil
}

// Close は保持しているクライアントを閉じます。
func (a *AppContext) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("クライアントのクローズに失敗したのだ: %w", errors.Join(errs...))
	}
	return nil
}

// newHTTPClient は OpenAI 互換 API と画像ダウンロードで共有する httpkit クライアントを返すのだ。
// 再実行は呼び出し側の責務なのでリトライは 0 回、タイムアウトは呼び出しごとの ctx が先に効きます。
func newHTTPClient(cfg *config.Config) *httpkit.Client {
	timeout := max(cfg.Kit.TextTimeout, cfg.Kit.ImageTimeout, cfg.Kit.TransferTimeout) + httpTimeoutMargin
	return httpkit.New(timeout,
		httpkit.WithMaxRetries(0),
		httpkit.WithSkipNetworkValidation(cfg.AllowPrivateURLs),
	)
}
