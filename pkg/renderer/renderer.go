package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/generator"
	"github.com/shouni/go-comic-kit/pkg/prompts"
	"github.com/shouni/go-comic-kit/pkg/storage"

	"github.com/google/uuid"
	"github.com/shouni/go-http-kit/httpkit"
)

const (
	// 保存時の Content-Type は常に PNG として扱うのだ。
	panelContentType = "image/png"
	panelExtension   = ".png"
)

// Options は Renderer の動作設定です。
type Options struct {
	// ImageTimeout は画像生成1回あたりの上限です。
	ImageTimeout time.Duration
	// TransferTimeout は一時 URL からのダウンロードとアップロードそれぞれの上限です。
	TransferTimeout time.Duration
	// ObjectPrefix は保存キーの接頭辞です。
	ObjectPrefix string
	// MaxImageBytes はダウンロードする画像の最大サイズです。0 以下なら無制限。
	MaxImageBytes int64
}

// Renderer は1つの Scene から画像を生成し、永続化して Panel にするのだ。
type Renderer struct {
	imageGen   generator.ImageGenerator
	prompt     prompts.ImagePrompt
	store      storage.ObjectStore
	httpClient httpkit.Requester
	opts       Options
}

// New は Renderer を初期化します。
// httpClient が nil なら、SSRF 検証ありでリトライなしの httpkit クライアントを使うのだ。
func New(imageGen generator.ImageGenerator, prompt prompts.ImagePrompt, store storage.ObjectStore, httpClient httpkit.Requester, opts Options) *Renderer {
	if httpClient == nil {
		httpClient = httpkit.New(opts.TransferTimeout, httpkit.WithMaxRetries(0))
	}
	return &Renderer{
		imageGen:   imageGen,
		prompt:     prompt,
		store:      store,
		httpClient: httpClient,
		opts:       opts,
	}
}

// Render は index 番目（0 始まり）のシーンを描画し、保存済みの Panel を返します。
// 失敗したときに Panel は返しません。保存まで成功した画像の後片付けは呼び出し側の責務なのだ。
func (r *Renderer) Render(ctx context.Context, scene domain.Scene, cfg domain.GenerationConfig, index int) (domain.Panel, error) {
	imagePrompt, err := r.prompt.BuildPanel(scene, cfg)
	if err != nil {
		return domain.Panel{}, fmt.Errorf("パネル %d のプロンプト生成に失敗: %w", index+1, err)
	}

	startTime := time.Now()
	img, err := r.generate(ctx, imagePrompt, cfg)
	if err != nil {
		return domain.Panel{}, fmt.Errorf("panel %d: %w", index+1, err)
	}

	data := img.Data
	if len(data) == 0 {
		if img.URL == "" {
			return domain.Panel{}, fmt.Errorf("panel %d: %w: image service returned neither data nor URL", index+1, domain.ErrUpstreamService)
		}
		data, err = r.download(ctx, img.URL)
		if err != nil {
			return domain.Panel{}, fmt.Errorf("panel %d: %w", index+1, err)
		}
	}

	key := r.objectKey()
	if err := r.upload(ctx, key, data); err != nil {
		return domain.Panel{}, fmt.Errorf("panel %d: %w", index+1, err)
	}

	panel := domain.NewPanelFromScene(scene, index, r.store.PublicURL(key), key)
	slog.InfoContext(ctx, "パネル画像を保存したのだ",
		"index", panel.SequenceNumber,
		"key", key,
		"bytes", len(data),
		"duration", time.Since(startTime).Round(time.Millisecond))
	return panel, nil
}

// Delete は保存済みの画像を削除します。失敗時の後片付け用なのだ。
func (r *Renderer) Delete(ctx context.Context, key string) error {
	return r.store.Delete(ctx, key)
}

func (r *Renderer) generate(ctx context.Context, prompt string, cfg domain.GenerationConfig) (generator.ImageResult, error) {
	callCtx, cancel := withTimeout(ctx, r.opts.ImageTimeout)
	defer cancel()

	img, err := r.imageGen.GenerateImage(callCtx, generator.ImageRequest{
		Prompt:      prompt,
		AspectRatio: cfg.AspectRatio.Ratio(),
		Size:        cfg.AspectRatio.Size(),
	})
	if err != nil {
		return generator.ImageResult{}, domain.UpstreamError(ctx, "image generation", err)
	}
	return img, nil
}

func (r *Renderer) upload(ctx context.Context, key string, data []byte) error {
	callCtx, cancel := withTimeout(ctx, r.opts.TransferTimeout)
	defer cancel()

	if err := r.store.Put(callCtx, key, bytes.NewReader(data), panelContentType); err != nil {
		return persistError(ctx, "upload", err)
	}
	return nil
}

// objectKey は実行ごとに新しいキーを返すので、再実行が既存の画像を上書きすることはないのだ。
func (r *Renderer) objectKey() string {
	return path.Join(r.opts.ObjectPrefix, uuid.NewString()+panelExtension)
}

// persistError はダウンロード・アップロードの失敗を ErrArtifactPersist で包みます。
// 呼び出し単位のタイムアウトなら ErrUpstreamTimeout も併せて判定できるのだ。
func persistError(parent context.Context, op string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%s: %w", op, parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w: %w", op, domain.ErrArtifactPersist, domain.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrArtifactPersist, err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
