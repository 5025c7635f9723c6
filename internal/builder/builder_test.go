package builder

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/shouni/go-comic-kit/internal/config"
	kitconfig "github.com/shouni/go-comic-kit/pkg/config"
	"github.com/shouni/go-comic-kit/pkg/generator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openAIConfig(t *testing.T) *config.Config {
	t.Helper()
	kit := kitconfig.DefaultConfig()
	kit.Provider = "openai"
	kit.OpenAIAPIKey = "sk-test"
	return &config.Config{
		Kit:             kit,
		StorageBackend:  config.StorageLocal,
		LocalStorageDir: filepath.Join(t.TempDir(), "assets"),
		PublicBaseURL:   "http://localhost:8080/assets",
	}
}

func TestNewAppContext_OpenAILocal(t *testing.T) {
	cfg := openAIConfig(t)

	app, err := NewAppContext(context.Background(), cfg)
	require.NoError(t, err)
	defer app.Close()

	assert.IsType(t, &generator.OpenAIClient{}, app.Generator)
	assert.Equal(t, cfg.LocalStorageDir, app.LocalRoot)
	assert.NotNil(t, app.Orchestrator)
	assert.NotNil(t, app.Prompts)

	_, err = os.Stat(cfg.LocalStorageDir)
	assert.NoError(t, err, "保存先ディレクトリが作成されるのだ")
}

func TestNewAppContext_InvalidConfig(t *testing.T) {
	cfg := openAIConfig(t)
	cfg.Kit.OpenAIAPIKey = ""

	_, err := NewAppContext(context.Background(), cfg)
	assert.Error(t, err)
}

func TestBuildPromptBuilder_PresetsFile(t *testing.T) {
	cfg := openAIConfig(t)

	cfg.StylePresetsFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := BuildPromptBuilder(cfg)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "styles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
styles:
  - name: manga
    label: Manga
    prompt: screentone shading
  - name: futuristic
    label: Futuristic
    prompt: neon glow
  - name: realistic
    label: Realistic
    prompt: photographic lighting
  - name: superhero
    label: Superhero
    prompt: bold inks
`), 0o644))
	cfg.StylePresetsFile = path
	pb, err := BuildPromptBuilder(cfg)
	require.NoError(t, err)
	assert.Equal(t, "neon glow", pb.Presets().Prompt("futuristic"))
}

func TestSetupLogger(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	cfg := &config.Config{LogFormat: "json", LogLevel: "warn"}
	logger := SetupLogger(&buf, cfg)

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"key":"value"`)
}

func TestNewHTTPClient(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	cfg := openAIConfig(t)

	t.Run("プライベートアドレスは既定で拒否", func(t *testing.T) {
		hits.Store(0)
		_, err := newHTTPClient(cfg).FetchBytes(context.Background(), srv.URL+"/ok")
		assert.Error(t, err)
		assert.Zero(t, hits.Load())
	})

	cfg.AllowPrivateURLs = true
	client := newHTTPClient(cfg)
	assert.Zero(t, client.RetryConfig.MaxRetries)
	assert.True(t, client.SkipNetworkValidation)

	t.Run("許可すれば取得できる", func(t *testing.T) {
		body, err := client.FetchBytes(context.Background(), srv.URL+"/ok")
		require.NoError(t, err)
		assert.Equal(t, "png-bytes", string(body))
	})

	t.Run("5xx でも送り直さない", func(t *testing.T) {
		hits.Store(0)
		_, err := client.FetchBytes(context.Background(), srv.URL+"/broken")
		assert.Error(t, err)
		assert.EqualValues(t, 1, hits.Load())
	})
}
