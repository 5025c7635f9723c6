package domain

import (
	"context"
	"errors"
	"fmt"
)

// 生成パイプラインのエラー分類なのだ。呼び出し側は errors.Is で判定します。
var (
	// ErrInvalidRequest は入力（台本・設定）が不正な場合です。
	ErrInvalidRequest = errors.New("invalid request")
	// ErrMalformedGenerationOutput はテキスト生成の応答が契約どおりの JSON でない場合です。
	ErrMalformedGenerationOutput = errors.New("malformed generation output")
	// ErrSceneCountMismatch は strict ポリシーでシーン数が要求と一致しない場合です。
	ErrSceneCountMismatch = errors.New("scene count mismatch")
	// ErrUpstreamService はテキスト／画像生成サービスが失敗を返した場合です。
	ErrUpstreamService = errors.New("upstream service error")
	// ErrUpstreamTimeout は1回の外部呼び出しがタイムアウトした場合です。
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrArtifactPersist は画像のダウンロードまたは保存に失敗した場合です。
	ErrArtifactPersist = errors.New("artifact persist error")
	// ErrGenerationFailed は上記すべてを包む、呼び出し側向けのエラーです。
	ErrGenerationFailed = errors.New("generation failed")
)

// UpstreamError は外部呼び出しのエラーを分類して包むのだ。
// 呼び出し単位の ctx が期限切れで、親 ctx がまだ生きているなら ErrUpstreamTimeout、
// 親がキャンセルされたなら ctx のエラーをそのまま、それ以外は ErrUpstreamService になります。
func UpstreamError(parent context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if parent.Err() != nil {
		return fmt.Errorf("%s: %w", op, parent.Err())
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUpstreamService, err)
}

// GenerationFailed は原因を保ったまま ErrGenerationFailed で包みます。
func GenerationFailed(err error) error {
	if err == nil || errors.Is(err, ErrGenerationFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrGenerationFailed, err)
}
