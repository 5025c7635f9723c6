package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shouni/go-comic-kit/internal/builder"
	"github.com/shouni/go-comic-kit/pkg/domain"
	"github.com/shouni/go-comic-kit/pkg/publisher"

	"github.com/spf13/cobra"
)

// generateOptions は generate / scenes コマンドのフラグなのだ。
type generateOptions struct {
	ScriptFile  string
	OutputFile  string
	PanelCount  int
	Style       string
	AspectRatio string
	Format      string
	Title       string
}

var genOpts generateOptions

// generateCmd は、台本からパネル画像を生成し、結果の JSON を出力するのだ。
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "台本からコミックのパネルを生成するのだ。",
	Long: `台本をシーンに分解し、シーンごとの画像を生成・保存するのだ。
出力は {"panels":[...]} 形式の JSON で、画像は保存先の URL で参照するのだよ。`,
	RunE: generateCommand,
}

func init() {
	addScriptFlags(generateCmd)
	generateCmd.Flags().StringVar(&genOpts.Format, "format", "json", "出力形式（json または markdown）なのだ。")
	generateCmd.Flags().StringVar(&genOpts.Title, "title", "", "markdown 出力の見出しなのだ。")
}

func addScriptFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&genOpts.ScriptFile, "script-file", "f", "", "台本ファイルのパス（'-' または未指定で標準入力なのだ）。")
	cmd.Flags().StringVarP(&genOpts.OutputFile, "output-file", "o", "-", "結果 JSON の保存先（'-' で標準出力なのだ）。")
	cmd.Flags().IntVarP(&genOpts.PanelCount, "panels", "n", domain.DefaultPanelCount, "パネル数（1〜10）なのだ。")
	cmd.Flags().StringVarP(&genOpts.Style, "style", "s", string(domain.DefaultStyle), "画風（manga / futuristic / realistic / superhero）なのだ。")
	cmd.Flags().StringVarP(&genOpts.AspectRatio, "aspect", "a", string(domain.DefaultAspect), "縦横比（square / landscape / portrait）なのだ。")
}

func generateCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if genOpts.Format != "json" && genOpts.Format != "markdown" {
		return fmt.Errorf("未対応の出力形式です: %q (json または markdown)", genOpts.Format)
	}
	req, err := buildRequest(cmd.InOrStdin())
	if err != nil {
		return err
	}

	app, err := builder.NewAppContext(ctx, appCfg)
	if err != nil {
		return err
	}
	defer app.Close()

	slog.Info("コミック生成パイプラインを起動するのだ！",
		"panels", req.Config.PanelCount,
		"style", req.Config.Style,
		"aspect_ratio", req.Config.AspectRatio,
		"output", genOpts.OutputFile)

	res, err := app.Orchestrator.Generate(ctx, req)
	if err != nil {
		return fmt.Errorf("パイプライン実行中にエラーが発生したのだ: %w", err)
	}

	if genOpts.Format == "markdown" {
		md := publisher.NewMarkdownPublisher().Build(genOpts.Title, res.Panels)
		err = writeOutput(cmd.OutOrStdout(), genOpts.OutputFile, []byte(md))
	} else {
		err = writeJSON(cmd.OutOrStdout(), genOpts.OutputFile, res)
	}
	if err != nil {
		return err
	}
	slog.Info("すべての生成工程が完了したのだ！", "panels", len(res.Panels))
	return nil
}

// buildRequest はフラグと台本から GenerationRequest を作って検証するのだ。
func buildRequest(stdin io.Reader) (domain.GenerationRequest, error) {
	script, err := readScript(stdin, genOpts.ScriptFile)
	if err != nil {
		return domain.GenerationRequest{}, err
	}
	style, err := domain.ParseStyle(genOpts.Style)
	if err != nil {
		return domain.GenerationRequest{}, err
	}
	aspect, err := domain.ParseAspectRatio(genOpts.AspectRatio)
	if err != nil {
		return domain.GenerationRequest{}, err
	}

	req := domain.GenerationRequest{
		Script: script,
		Config: domain.GenerationConfig{PanelCount: genOpts.PanelCount, Style: style, AspectRatio: aspect},
	}
	if err := req.Validate(); err != nil {
		return domain.GenerationRequest{}, err
	}
	return req, nil
}

func readScript(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "" || path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("台本の読み込みに失敗したのだ: %w", err)
	}
	script := strings.TrimSpace(string(data))
	if script == "" {
		return "", fmt.Errorf("台本が空なのだ。--script-file か標準入力で渡してほしいのだ")
	}
	return script, nil
}

// writeJSON は v を整形して path（'-' なら stdout）に書き出します。
func writeJSON(stdout io.Writer, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("結果の JSON 変換に失敗したのだ: %w", err)
	}
	return writeOutput(stdout, path, append(data, '\n'))
}

// writeOutput は data を path（'-' なら stdout）に書き出すのだ。
func writeOutput(stdout io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("出力ディレクトリの作成に失敗したのだ: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("結果の保存に失敗したのだ (path: %s): %w", path, err)
	}
	return nil
}
