package generator

import (
	"context"
)

// TextRequest はテキスト生成1回分の入力です。
type TextRequest struct {
	System string
	User   string
	// JSON が true のとき、サービス側に JSON のみの応答を要求するのだ。
	JSON bool
}

// ImageRequest は画像生成1回分の入力です。AspectRatio は "1:1" 形式、Size は "1024x1024" 形式なのだ。
type ImageRequest struct {
	Prompt      string
	AspectRatio string
	Size        string
}

// ImageResult は生成された画像です。URL（期限付き）か Data のどちらかが入ります。
type ImageResult struct {
	URL      string
	Data     []byte
	MimeType string
}

// TextGenerator はテキスト生成サービスへのインターフェースです。
// 戻り値はアシスタント応答の生テキストで、解釈は呼び出し側の責務なのだ。
type TextGenerator interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
}

// ImageGenerator は画像生成サービスへのインターフェースです。
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error)
}
