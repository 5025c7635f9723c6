package cmd

import (
	"fmt"
	"net"

	"github.com/shouni/go-comic-kit/internal/builder"
	"github.com/shouni/go-comic-kit/internal/server"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveAddr string

// serveCmd は、POST /process-comic-script を受け付ける HTTP サーバーを起動するのだ。
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "HTTPサーバーとして起動するのだ。",
	RunE:  serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "待ち受けアドレスなのだ（未指定なら ADDR または :8080）。")
}

func serveCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if serveAddr != "" {
		appCfg.Addr = serveAddr
	}

	app, err := builder.NewAppContext(ctx, appCfg)
	if err != nil {
		return err
	}
	defer app.Close()

	gin.SetMode(gin.ReleaseMode)
	srv := server.New(app.Orchestrator, app.Prompts.Presets(), server.Options{
		AssetsDir:    app.LocalRoot,
		MaxBodyBytes: appCfg.MaxBodyBytes,
	})

	ln, err := net.Listen("tcp", appCfg.Addr)
	if err != nil {
		return fmt.Errorf("アドレス %s で待ち受けできなかったのだ: %w", appCfg.Addr, err)
	}
	return srv.Serve(ctx, ln, appCfg.ShutdownTimeout)
}
