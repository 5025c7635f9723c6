package extractor

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/shouni/go-comic-kit/pkg/config"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/generator"
	"github.com/shouni/go-comic-kit/pkg/prompts"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const (
	cacheCleanupInterval = 15 * time.Minute
	maxExcerptLen        = 200
)

// Options は Extractor の動作設定なのだ。
type Options struct {
	// Timeout はテキスト生成1回あたりの上限です。0 なら ctx 任せ。
	Timeout time.Duration
	// CacheTTL が 0 より大きいとき、成功したシーン列を台本・パネル数・画風ごとに保持します。
	CacheTTL time.Duration
}

// Extractor は台本をテキスト生成サービスに渡し、シーン列に変換するのだ。
type Extractor struct {
	textGen generator.TextGenerator
	prompt  prompts.ScenePrompt
	opts    Options
	cache   *cache.Cache
	group   singleflight.Group
}

// New は Extractor を初期化します。
func New(textGen generator.TextGenerator, prompt prompts.ScenePrompt, opts Options) *Extractor {
	e := &Extractor{
		textGen: textGen,
		prompt:  prompt,
		opts:    opts,
	}
	if opts.CacheTTL > 0 {
		e.cache = cache.New(opts.CacheTTL, cacheCleanupInterval)
	}
	return e
}

// Extract は台本からシーン列を取り出します。シーン数の検証は呼び出し側の責務なのだ。
func (e *Extractor) Extract(ctx context.Context, script string, cfg domain.GenerationConfig) ([]domain.Scene, error) {
	if e.cache == nil {
		return e.extract(ctx, script, cfg, e.opts.Timeout)
	}

	key := cacheKey(script, cfg)
	if v, ok := e.cache.Get(key); ok {
		slog.DebugContext(ctx, "シーン抽出結果をキャッシュから返すのだ", "panel_count", cfg.PanelCount)
		return cloneScenes(v.([]domain.Scene)), nil
	}

	// 共有される呼び出しは先頭の呼び出し元のキャンセルに巻き込まれないよう、
	// ctx から切り離して Extractor 自身のタイムアウトで動かすのだ。
	ch := e.group.DoChan(key, func() (any, error) {
		scenes, err := e.extract(context.WithoutCancel(ctx), script, cfg, e.sharedTimeout())
		if err != nil {
			return nil, err
		}
		e.cache.SetDefault(key, scenes)
		return scenes, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		scenes, ok := res.Val.([]domain.Scene)
		if !ok {
			return nil, fmt.Errorf("unexpected return type from singleflight: %T", res.Val)
		}
		return cloneScenes(scenes), nil
	}
}

// sharedTimeout は切り離した呼び出しの上限です。Timeout 未設定でも無期限にはしないのだ。
func (e *Extractor) sharedTimeout() time.Duration {
	if e.opts.Timeout > 0 {
		return e.opts.Timeout
	}
	return config.DefaultTextTimeout
}

func (e *Extractor) extract(ctx context.Context, script string, cfg domain.GenerationConfig, timeout time.Duration) ([]domain.Scene, error) {
	system, user, err := e.prompt.BuildScene(script, cfg)
	if err != nil {
		return nil, fmt.Errorf("プロンプト生成に失敗: %w", err)
	}

	callCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	startTime := time.Now()
	raw, err := e.textGen.GenerateText(callCtx, generator.TextRequest{System: system, User: user, JSON: true})
	if err != nil {
		return nil, domain.UpstreamError(ctx, "text generation", err)
	}

	scenes, err := ParseScenes(raw)
	if err != nil {
		slog.WarnContext(ctx, "テキスト生成の応答を解析できなかったのだ", "excerpt", truncateString(raw, maxExcerptLen), "error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "シーン抽出が完了したのだ",
		"requested", cfg.PanelCount,
		"received", len(scenes),
		"duration", time.Since(startTime).Round(time.Millisecond))
	return scenes, nil
}

type rawResponse struct {
	Scenes *[]rawScene `json:"scenes"`
}

type rawScene struct {
	Description *string   `json:"description"`
	Characters  *[]string `json:"characters"`
	Dialogues   *[]string `json:"dialogues"`
}

// ParseScenes は応答テキストを厳密に解析します。
// 応答全体が1つの JSON オブジェクトで、scenes が空でない配列、各シーンに
// description / characters / dialogues が揃っていることを要求するのだ。
// コードフェンスの除去などの補正は行いません。
func ParseScenes(raw string) ([]domain.Scene, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))

	var resp rawResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: response is not valid JSON: %w", domain.ErrMalformedGenerationOutput, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: unexpected data after JSON object", domain.ErrMalformedGenerationOutput)
	}
	if resp.Scenes == nil {
		return nil, fmt.Errorf("%w: top-level \"scenes\" list is missing", domain.ErrMalformedGenerationOutput)
	}
	if len(*resp.Scenes) == 0 {
		return nil, fmt.Errorf("%w: \"scenes\" list is empty", domain.ErrMalformedGenerationOutput)
	}

	scenes := make([]domain.Scene, len(*resp.Scenes))
	for i, rs := range *resp.Scenes {
		if rs.Description == nil || rs.Characters == nil || rs.Dialogues == nil {
			return nil, fmt.Errorf("%w: scene %d must have description, characters and dialogues", domain.ErrMalformedGenerationOutput, i+1)
		}
		scenes[i] = domain.Scene{
			Description: *rs.Description,
			Characters:  *rs.Characters,
			Dialogues:   *rs.Dialogues,
		}
	}
	return scenes, nil
}

func cacheKey(script string, cfg domain.GenerationConfig) string {
	h := sha256.New()
	h.Write([]byte(cfg.Style))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(cfg.PanelCount)))
	h.Write([]byte{0})
	h.Write([]byte(script))
	return hex.EncodeToString(h.Sum(nil))
}

// cloneScenes はキャッシュ内のデータが呼び出し元に変更されるのを防ぐためのコピーなのだ。
func cloneScenes(src []domain.Scene) []domain.Scene {
	out := make([]domain.Scene, len(src))
	for i, s := range src {
		out[i] = s.Clone()
	}
	return out
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// truncateString はルーンの途中で切らないように maxLen バイト以内へ縮めます。
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
