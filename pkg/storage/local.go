package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStore はローカルディレクトリに保存する開発用の ObjectStore なのだ。
// PublicURL は baseURL + キーで、serve コマンドが /assets 配下で配信します。
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore は root ディレクトリを作成して LocalStore を返します。
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("ローカル保存先のディレクトリが指定されていないのだ")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("出力ディレクトリの作成に失敗したのだ: %w", err)
	}
	return &LocalStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Root は保存先ディレクトリを返すのだ。
func (s *LocalStore) Root() string {
	return s.root
}

// Put は O_EXCL で作成するので、同じキーへの上書きは起きません。
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("ディレクトリの作成に失敗しました (key: %s): %w", key, err)
	}

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", ErrObjectExists, key)
		}
		return fmt.Errorf("ファイルの作成に失敗しました (key: %s): %w", key, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(p)
		return fmt.Errorf("ファイルへの書き込みに失敗しました (key: %s): %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(p)
		return fmt.Errorf("ファイルのクローズに失敗しました (key: %s): %w", key, err)
	}
	return nil
}

// Delete はファイルを削除します。
func (s *LocalStore) Delete(ctx context.Context, key string) error {
	p, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ファイルの削除に失敗しました (key: %s): %w", key, err)
	}
	return nil
}

// PublicURL は baseURL とキーを結合します。
func (s *LocalStore) PublicURL(key string) string {
	escaped := (&url.URL{Path: path.Clean("/" + key)}).EscapedPath()
	return s.baseURL + escaped
}

// resolve はキーを root 配下のパスに変換し、外へ出るキーを拒否するのだ。
func (s *LocalStore) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" {
		return "", fmt.Errorf("不正なキーなのだ: %q", key)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
