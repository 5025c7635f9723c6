package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	imagekit "github.com/shouni/gemini-image-kit/generator"
	"github.com/shouni/gemini-image-kit/ports"
	"github.com/shouni/go-gemini-client/gemini"
	"github.com/shouni/go-http-kit/httpkit"
	"google.golang.org/genai"
)

const (
	imagenModelPrefix = "imagen"

	// 参照画像（File API）のキャッシュ設定なのだ
	imageCacheTTL     = 1 * time.Hour
	imageCacheCleanup = 30 * time.Minute

	// go-gemini-client は一時的なエラーで最低1回は送り直すので、待ち時間を呼び出し単位の上限より十分短くするのだ
	geminiRetryDelay = 2 * time.Second
)

// GeminiOptions は GeminiClient の初期化パラメータです。
type GeminiOptions struct {
	APIKey      string
	TextModel   string
	ImageModel  string
	Temperature float32
	// Downloader は画像キットが参照画像を取りに行くときのクライアントです。nil ならリトライなしの httpkit を使います。
	Downloader ports.Downloader
}

// GeminiClient は Gemini のテキスト生成と画像生成をまとめたクライアントなのだ。
//
//   - テキスト: JSON のみの応答（ResponseMIMEType）を要求するため genai を直接呼びます。
//   - 画像（imagen-*）: Imagen の GenerateImages を genai で直接呼びます。
//   - 画像（それ以外の Gemini 画像モデル）: gemini-image-kit の GenerateMangaPanel を使います。
type GeminiClient struct {
	client      *genai.Client
	panels      ports.ImageGenerator
	textModel   string
	imageModel  string
	temperature float32
}

// NewGeminiClient は API キーから genai と go-gemini-client / gemini-image-kit を初期化します。
func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY が設定されていないのだ")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}

	panels, err := newPanelGenerator(ctx, opts)
	if err != nil {
		return nil, err
	}

	return &GeminiClient{
		client:      client,
		panels:      panels,
		textModel:   opts.TextModel,
		imageModel:  opts.ImageModel,
		temperature: opts.Temperature,
	}, nil
}

// newPanelGenerator は go-gemini-client の上に gemini-image-kit の画像生成器を組み立てるのだ。
func newPanelGenerator(ctx context.Context, opts GeminiOptions) (ports.ImageGenerator, error) {
	aiClient, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:       opts.APIKey,
		Temperature:  genai.Ptr(opts.Temperature),
		InitialDelay: geminiRetryDelay,
		MaxDelay:     geminiRetryDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("Geminiクライアントの初期化に失敗しました: %w", err)
	}

	downloader := opts.Downloader
	if downloader == nil {
		downloader = httpkit.New(0, httpkit.WithMaxRetries(0))
	}
	imgCache := cache.New(imageCacheCleanup, 2*imageCacheCleanup)

	core, err := imagekit.NewGeminiImageCore(aiClient, noReferenceReader{}, downloader, imgCache, imageCacheTTL, false)
	if err != nil {
		return nil, fmt.Errorf("画像生成コアの初期化に失敗しました: %w", err)
	}
	gen, err := imagekit.NewGeminiGenerator(core)
	if err != nil {
		return nil, fmt.Errorf("画像生成器の初期化に失敗しました: %w", err)
	}
	return gen, nil
}

// GenerateText は system instruction 付きで1回だけ生成し、応答テキストを返します。
func (g *GeminiClient) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(g.temperature),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.textModel, genai.Text(req.User), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content (model: %s): %w", g.textModel, withContextError(ctx, err))
	}
	return resp.Text(), nil
}

// GenerateImage は1枚だけ生成するのだ。Gemini 系はどちらも URL ではなくバイト列を返します。
func (g *GeminiClient) GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error) {
	if IsImagenModel(g.imageModel) {
		return g.generateImagen(ctx, req)
	}

	resp, err := g.panels.GenerateMangaPanel(ctx, ports.ImagePanelRequest{
		GenerationOptions: ports.GenerationOptions{
			Model:       g.imageModel,
			Prompt:      req.Prompt,
			AspectRatio: req.AspectRatio,
		},
	})
	if err != nil {
		return ImageResult{}, fmt.Errorf("gemini generate image (model: %s): %w", g.imageModel, withContextError(ctx, err))
	}
	if resp == nil || len(resp.Data) == 0 {
		return ImageResult{}, fmt.Errorf("gemini returned an empty image (model: %s)", g.imageModel)
	}
	return ImageResult{Data: resp.Data, MimeType: defaultMimeType(resp.MimeType)}, nil
}

func (g *GeminiClient) generateImagen(ctx context.Context, req ImageRequest) (ImageResult, error) {
	resp, err := g.client.Models.GenerateImages(ctx, g.imageModel, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    req.AspectRatio,
		OutputMIMEType: "image/png",
	})
	if err != nil {
		return ImageResult{}, fmt.Errorf("imagen generate images (model: %s): %w", g.imageModel, withContextError(ctx, err))
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return ImageResult{}, fmt.Errorf("imagen returned no image (model: %s)", g.imageModel)
	}

	img := resp.GeneratedImages[0].Image
	if len(img.ImageBytes) == 0 {
		return ImageResult{}, fmt.Errorf("imagen returned an empty image (model: %s)", g.imageModel)
	}
	return ImageResult{Data: img.ImageBytes, MimeType: defaultMimeType(img.MIMEType)}, nil
}

// IsImagenModel は Imagen（GenerateImages API）で扱うモデル名かどうかを返します。
func IsImagenModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(model), imagenModelPrefix)
}

func defaultMimeType(mimeType string) string {
	if mimeType == "" {
		return "image/png"
	}
	return mimeType
}

// withContextError は ctx の期限切れやキャンセルを err から errors.Is で判別できるようにするのだ。
func withContextError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}

// errNoReferenceImages は参照画像（gs://）を読もうとしたときのエラーです。
var errNoReferenceImages = errors.New("reference images are not used by panel generation")

// noReferenceReader はパネル生成が参照画像を渡さないことを表す ContentReader なのだ。
type noReferenceReader struct{}

func (noReferenceReader) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("%w: %s", errNoReferenceImages, uri)
}
