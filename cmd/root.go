package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shouni/go-comic-kit/internal/builder"
	"github.com/shouni/go-comic-kit/internal/config"
	kitconfig "github.com/shouni/go-comic-kit/pkg/config"

	"github.com/spf13/cobra"
)

// appFlags は全コマンド共通のフラグなのだ。未指定のものは環境変数の値が使われます。
type appFlags struct {
	Provider       string
	Model          string
	ImageModel     string
	Storage        string
	LocalDir       string
	CountPolicy    string
	MaxConcurrency int
	LogFormat      string
	LogLevel       string
}

var (
	flags  appFlags
	appCfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "comic-kit",
	Short: "台本からコミックのパネルを生成するのだ。",
	Long: `台本テキストをシーンに分解し、シーンごとの画像を並列に生成して保存するのだ。
HTTPサーバーとしても、単発のCLIとしても動くのだよ。`,
	SilenceUsage:      true,
	PersistentPreRunE: preRunAppE,
}

func init() {
	addAppFlags(rootCmd)
	rootCmd.AddCommand(serveCmd, generateCmd, scenesCmd, stylesCmd)
}

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()

	// --- AIモデル・挙動設定 ---
	pf.StringVar(&flags.Provider, "provider", kitconfig.DefaultProvider, "AIプロバイダー（gemini または openai）なのだ。")
	pf.StringVar(&flags.Model, "model", "", "テキスト生成モデル名なのだ（未指定ならプロバイダーの既定値）。")
	pf.StringVar(&flags.ImageModel, "image-model", "", "画像生成モデル名なのだ（未指定ならプロバイダーの既定値）。")
	pf.StringVar(&flags.CountPolicy, "count-policy", string(kitconfig.CountPolicyClamp), "シーン数が合わないときの扱い（clamp / strict / lenient）なのだ。")
	pf.IntVar(&flags.MaxConcurrency, "max-concurrency", kitconfig.DefaultMaxConcurrency, "同時に描画するパネル数の上限なのだ。")

	// --- 保存先 ---
	pf.StringVar(&flags.Storage, "storage", config.DefaultStorageBackend, "画像の保存先（local または gcs）なのだ。")
	pf.StringVar(&flags.LocalDir, "local-dir", config.DefaultLocalStorageDir, "local 保存時のディレクトリなのだ。")

	// --- ログ ---
	pf.StringVar(&flags.LogFormat, "log-format", config.DefaultLogFormat, "ログ形式（text または json）なのだ。")
	pf.StringVar(&flags.LogLevel, "log-level", config.DefaultLogLevel, "ログレベル（debug / info / warn / error）なのだ。")
}

// preRunAppE は、環境変数から設定を読み込み、明示されたフラグで上書きするのだ。
func preRunAppE(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	builder.SetupLogger(os.Stderr, cfg)
	appCfg = cfg
	return nil
}

// applyFlags は変更されたフラグだけを設定に反映します。
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool {
		f := cmd.Flag(name)
		return f != nil && f.Changed
	}
	if changed("provider") {
		cfg.Kit.Provider = flags.Provider
	}
	if changed("model") {
		cfg.Kit.GeminiModel = flags.Model
		cfg.Kit.OpenAIModel = flags.Model
	}
	if changed("image-model") {
		cfg.Kit.GeminiImage = flags.ImageModel
		cfg.Kit.OpenAIImage = flags.ImageModel
	}
	if changed("count-policy") {
		cfg.Kit.CountPolicy = kitconfig.CountPolicy(flags.CountPolicy)
	}
	if changed("max-concurrency") {
		cfg.Kit.MaxConcurrency = flags.MaxConcurrency
	}
	if changed("storage") {
		cfg.StorageBackend = flags.Storage
	}
	if changed("local-dir") {
		cfg.LocalStorageDir = flags.LocalDir
	}
	if changed("log-format") {
		cfg.LogFormat = flags.LogFormat
	}
	if changed("log-level") {
		cfg.LogLevel = flags.LogLevel
	}
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
// SIGINT / SIGTERM で ctx がキャンセルされ、処理中のパイプラインも止まるのだよ。
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "エラー:", err)
		stop()
		os.Exit(1)
	}
}
