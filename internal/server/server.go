package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/prompts"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	// 画像生成を含むため、書き込みの上限は長めに取るのだ。
	writeTimeout = 10 * time.Minute
	idleTimeout  = 2 * time.Minute
	corsMaxAge   = 12 * time.Hour
)

// Generator は1回分のパイプラインを実行するものなのだ。
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error)
}

// Options は HTTP サーバーの設定です。
type Options struct {
	// AssetsDir が空でなければ /assets 配下で保存済み画像を配信します。
	AssetsDir    string
	MaxBodyBytes int64
}

// Server は台本を受け取ってパネル列を返す HTTP の入り口なのだ。
type Server struct {
	gen     Generator
	presets prompts.StylePresets
	opts    Options
	engine  *gin.Engine
}

// New はルーティングとミドルウェアを組み立てた Server を返します。
func New(gen Generator, presets prompts.StylePresets, opts Options) *Server {
	s := &Server{gen: gen, presets: presets, opts: opts}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{http.MethodPost, http.MethodGet, http.MethodOptions},
		AllowHeaders:    []string{"authorization", "x-client-info", "apikey", "content-type"},
		MaxAge:          corsMaxAge,
	}))

	r.GET("/healthz", s.handleHealth)
	r.GET("/styles", s.handleStyles)
	r.POST("/process-comic-script", s.handleProcessScript)
	if opts.AssetsDir != "" {
		r.Static("/assets", opts.AssetsDir)
	}

	s.engine = r
	return s
}

// Handler は http.Handler として Server を返すのだ。
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve は ctx が終わるまで ln で待ち受け、終わったら shutdownTimeout の間に処理中のリクエストを待ちます。
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	slog.InfoContext(ctx, "HTTPサーバーを起動したのだ", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTPサーバーが停止しました: %w", err)
	case <-ctx.Done():
	}

	slog.Info("HTTPサーバーを停止しているのだ")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーのシャットダウンに失敗しました: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestLogger は gin のアクセスログを slog に流すのだ。
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			slog.WarnContext(c.Request.Context(), "request", attrs...)
			return
		}
		slog.DebugContext(c.Request.Context(), "request", attrs...)
	}
}
