package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/go-comic-kit/pkg/config"
	"github.com/shouni/go-comic-kit/pkg/domain"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	defaultCleanupTimeout = 30 * time.Second
	rateBurst             = 2
)

// SceneExtractor は台本をシーン列に変換するのだ。
type SceneExtractor interface {
	Extract(ctx context.Context, script string, cfg domain.GenerationConfig) ([]domain.Scene, error)
}

// PanelRenderer はシーン1つを保存済みの Panel にします。Delete は失敗時の後片付けに使うのだ。
type PanelRenderer interface {
	Render(ctx context.Context, scene domain.Scene, cfg domain.GenerationConfig, index int) (domain.Panel, error)
	Delete(ctx context.Context, key string) error
}

// Options は Orchestrator の動作設定です。
type Options struct {
	CountPolicy config.CountPolicy
	// MaxConcurrency はプロセス全体で同時に描画するパネル数の上限です。0 以下なら無制限。
	MaxConcurrency int
	// RateInterval は画像生成を開始する最小間隔です。0 ならレート制限なし。
	RateInterval time.Duration
	// CleanupTimeout は失敗時に保存済み画像を削除する処理全体の上限です。
	CleanupTimeout time.Duration
	Observer       StateObserver
}

// Orchestrator は Scene Extractor と Panel Renderer をつなぎ、
// 台本から順序どおりのパネル列を作る司令塔なのだ。
type Orchestrator struct {
	extractor SceneExtractor
	renderer  PanelRenderer
	opts      Options
	sem       *semaphore.Weighted
	limiter   *rate.Limiter
}

// New は Orchestrator を初期化します。セマフォとリミッターは呼び出しをまたいで共有されるのだ。
func New(extractor SceneExtractor, renderer PanelRenderer, opts Options) *Orchestrator {
	if opts.CountPolicy == "" {
		opts.CountPolicy = config.CountPolicyClamp
	}
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = defaultCleanupTimeout
	}
	o := &Orchestrator{
		extractor: extractor,
		renderer:  renderer,
		opts:      opts,
	}
	if opts.MaxConcurrency > 0 {
		o.sem = semaphore.NewWeighted(int64(opts.MaxConcurrency))
	}
	// intervalが0なら制限なしとして動くのだ。
	if opts.RateInterval > 0 {
		o.limiter = rate.NewLimiter(rate.Every(opts.RateInterval), rateBurst)
	}
	return o
}

// Generate は台本からパネル列を生成します。
// 結果は全部成功か全部失敗のどちらかで、失敗時は errors.Is(err, domain.ErrGenerationFailed) が成り立ちます。
// 入力が不正な場合は状態を進めずに domain.ErrInvalidRequest を返すのだ。
func (o *Orchestrator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	if err := req.Validate(); err != nil {
		return domain.GenerationResult{}, err
	}

	r := newRun(uuid.NewString(), o.opts.Observer)
	logger := slog.With("run_id", r.id)
	startTime := time.Now()

	r.transition(ctx, StateExtractingScenes)
	logger.InfoContext(ctx, "シーン抽出を開始するのだ",
		"panel_count", req.Config.PanelCount,
		"style", req.Config.Style,
		"aspect_ratio", req.Config.AspectRatio)

	scenes, err := o.extractor.Extract(ctx, req.Script, req.Config)
	if err != nil {
		return o.fail(ctx, r, err)
	}
	scenes, err = applyCountPolicy(o.opts.CountPolicy, scenes, req.Config.PanelCount)
	if err != nil {
		return o.fail(ctx, r, err)
	}

	r.transition(ctx, StateRenderingPanels)
	panels, err := o.renderAll(ctx, r.id, scenes, req.Config)
	if err != nil {
		return o.fail(ctx, r, err)
	}

	r.transition(ctx, StateCompleted)
	logger.InfoContext(ctx, "パネル生成が完了したのだ",
		"panels", len(panels),
		"duration", time.Since(startTime).Round(time.Millisecond))
	return domain.GenerationResult{Panels: panels}, nil
}

func (o *Orchestrator) fail(ctx context.Context, r *run, err error) (domain.GenerationResult, error) {
	r.transition(ctx, StateFailed)
	slog.ErrorContext(ctx, "パネル生成に失敗したのだ", "run_id", r.id, "error", err)
	return domain.GenerationResult{}, domain.GenerationFailed(err)
}

// renderAll はシーンを並列に描画し、完了順ではなくインデックス順に結果を並べます。
// 1つでも失敗したら残りを打ち切り、この実行で保存済みの画像を削除するのだ。
func (o *Orchestrator) renderAll(ctx context.Context, runID string, scenes []domain.Scene, cfg domain.GenerationConfig) (domain.Panels, error) {
	panels := make(domain.Panels, len(scenes))
	eg, egCtx := errgroup.WithContext(ctx)

	for i, scene := range scenes {
		eg.Go(func() error {
			if o.sem != nil {
				if err := o.sem.Acquire(egCtx, 1); err != nil {
					return err
				}
				defer o.sem.Release(1)
			}
			if o.limiter != nil {
				if err := o.limiter.Wait(egCtx); err != nil {
					return err
				}
			}

			panel, err := o.renderer.Render(egCtx, scene, cfg, i)
			if err != nil {
				return err
			}
			panels[i] = panel
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		// 兄弟のキャンセルより呼び出し元のキャンセルを優先して返すのだ。
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		o.cleanup(ctx, runID, panels)
		return nil, err
	}
	return panels, nil
}

// cleanup は保存済みの画像をベストエフォートで削除します。削除の失敗は元のエラーを隠さないのだ。
func (o *Orchestrator) cleanup(ctx context.Context, runID string, panels domain.Panels) {
	keys := panels.ObjectKeys()
	if len(keys) == 0 {
		return
	}

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.CleanupTimeout)
	defer cancel()

	deleted := 0
	for _, key := range keys {
		if err := o.renderer.Delete(cleanupCtx, key); err != nil {
			slog.WarnContext(ctx, "保存済み画像の削除に失敗したのだ", "run_id", runID, "key", key, "error", err)
			continue
		}
		deleted++
	}
	slog.InfoContext(ctx, "失敗した実行の画像を削除したのだ", "run_id", runID, "deleted", deleted, "total", len(keys))
}

// applyCountPolicy はシーン数と要求パネル数の不一致をポリシーに従って扱います。
func applyCountPolicy(policy config.CountPolicy, scenes []domain.Scene, want int) ([]domain.Scene, error) {
	got := len(scenes)
	if got == want {
		return scenes, nil
	}

	switch policy {
	case config.CountPolicyStrict:
		return nil, fmt.Errorf("%w: requested %d panels, got %d scenes", domain.ErrSceneCountMismatch, want, got)
	case config.CountPolicyLenient:
		slog.Warn("シーン数が要求と一致しないがそのまま使うのだ", "requested", want, "received", got)
		return scenes, nil
	default:
		if got > want {
			slog.Warn("余分なシーンを切り詰めるのだ", "requested", want, "received", got)
			return scenes[:want], nil
		}
		slog.Warn("シーン数が要求より少ないのだ", "requested", want, "received", got)
		return scenes, nil
	}
}
