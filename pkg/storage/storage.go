package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectExists は同じキーのオブジェクトが既に存在する場合のエラーです。上書きはしないのだ。
var ErrObjectExists = errors.New("object already exists")

// ObjectStore はパネル画像を永続化するストレージの契約です。
type ObjectStore interface {
	// Put はキーが未使用の場合だけ書き込みます。既存なら ErrObjectExists を返します。
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	// Delete はオブジェクトを削除します。存在しない場合はエラーにしません。
	Delete(ctx context.Context, key string) error
	// PublicURL はキーに対応する長期間有効な公開 URL を返すのだ。
	PublicURL(key string) string
}
