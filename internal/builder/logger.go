package builder

import (
	"io"
	"log/slog"

	"github.com/shouni/go-comic-kit/internal/config"
)

// SetupLogger は LOG_FORMAT と LOG_LEVEL に従ってデフォルトの slog を差し替えます。
func SetupLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
