package cmd

import (
	"fmt"
	"log/slog"

	"github.com/shouni/go-comic-kit/internal/builder"
	"github.com/shouni/go-comic-kit/pkg/domain"

	"github.com/spf13/cobra"
)

// scenesCmd は、シーン抽出（JSON出力）のみを実行するのだ。
var scenesCmd = &cobra.Command{
	Use:   "scenes",
	Short: "台本をシーンに分解した JSON だけを出力するのだ。",
	Long: `台本を解析し、シーンごとの描写・登場人物・セリフを JSON 形式で出力するのだ。
画像生成と保存は行わないのだよ。`,
	RunE: scenesCommand,
}

func init() {
	addScriptFlags(scenesCmd)
}

func scenesCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	req, err := buildRequest(cmd.InOrStdin())
	if err != nil {
		return err
	}

	app, err := builder.NewAppContext(ctx, appCfg)
	if err != nil {
		return err
	}
	defer app.Close()

	slog.Info("シーン抽出モードを起動するのだ！", "panels", req.Config.PanelCount, "style", req.Config.Style)

	scenes, err := app.Extractor.Extract(ctx, req.Script, req.Config)
	if err != nil {
		return fmt.Errorf("シーン抽出中にエラーが発生したのだ: %w", domain.GenerationFailed(err))
	}

	return writeJSON(cmd.OutOrStdout(), genOpts.OutputFile, struct {
		Scenes []domain.Scene `json:"scenes"`
	}{Scenes: scenes})
}
