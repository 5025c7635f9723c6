package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

const defaultGCSPublicBase = "https://storage.googleapis.com"

// GCSStore は Google Cloud Storage のバケットに保存する ObjectStore です。
type GCSStore struct {
	client     *storage.Client
	bucket     string
	publicBase string
}

// NewGCSStore は Application Default Credentials で GCS クライアントを作成するのだ。
// publicBase が空なら https://storage.googleapis.com/<bucket> を公開 URL の基点にします。
func NewGCSStore(ctx context.Context, bucket, publicBase string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS バケット名が指定されていないのだ")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	if publicBase == "" {
		publicBase = defaultGCSPublicBase + "/" + bucket
	}
	return &GCSStore{
		client:     client,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
	}, nil
}

// Put は DoesNotExist 条件付きで書き込むので、既存キーの上書きは GCS 側で拒否されます。
func (s *GCSStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	obj := s.client.Bucket(s.bucket).Object(key).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("GCS への書き込みに失敗しました (gs://%s/%s): %w", s.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return fmt.Errorf("%w: gs://%s/%s", ErrObjectExists, s.bucket, key)
		}
		return fmt.Errorf("GCS への書き込みの確定に失敗しました (gs://%s/%s): %w", s.bucket, key, err)
	}
	return nil
}

// Delete はオブジェクトを削除します。存在しなければ何もしないのだ。
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("GCS オブジェクトの削除に失敗しました (gs://%s/%s): %w", s.bucket, key, err)
	}
	return nil
}

// PublicURL は公開バケットの URL を返します。
func (s *GCSStore) PublicURL(key string) string {
	return s.publicBase + (&url.URL{Path: "/" + key}).EscapedPath()
}

// Close は GCS クライアントを閉じるのだ。
func (s *GCSStore) Close() error {
	return s.client.Close()
}
