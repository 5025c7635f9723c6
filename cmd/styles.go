package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/shouni/go-comic-kit/internal/builder"

	"github.com/spf13/cobra"
)

// stylesCmd は、使える画風とプロンプト断片の一覧を表示するのだ。APIキーは不要です。
var stylesCmd = &cobra.Command{
	Use:   "styles",
	Short: "画風プリセットの一覧を表示するのだ。",
	RunE: func(cmd *cobra.Command, args []string) error {
		pb, err := builder.BuildPromptBuilder(appCfg)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tLABEL\tPROMPT")
		for _, p := range pb.Presets().List() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, p.Label, p.Prompt)
		}
		return w.Flush()
	},
}
