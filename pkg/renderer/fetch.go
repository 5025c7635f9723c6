package renderer

import (
	"context"
	"errors"
	"fmt"
)

// download は画像サービスが返した一時 URL から画像を取得するのだ。
// 非公開アドレスへのアクセス拒否と 2xx 以外の判定は httpkit が行います。
func (r *Renderer) download(ctx context.Context, url string) ([]byte, error) {
	callCtx, cancel := withTimeout(ctx, r.opts.TransferTimeout)
	defer cancel()

	data, err := r.httpClient.FetchBytes(callCtx, url)
	if err != nil {
		if ctxErr := callCtx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, persistError(ctx, "download", err)
	}
	if r.opts.MaxImageBytes > 0 && int64(len(data)) > r.opts.MaxImageBytes {
		return nil, persistError(ctx, "download", fmt.Errorf("image exceeds %d bytes", r.opts.MaxImageBytes))
	}
	if len(data) == 0 {
		return nil, persistError(ctx, "download", fmt.Errorf("empty image body"))
	}
	return data, nil
}
