package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/shouni/go-comic-story/internal/builder"
	"github.com/shouni/go-comic-story/internal/config"
	"github.com/shouni/go-comic-story/pkg/publisher"
	"github.com/shouni/go-comic-story/pkg/session"

	"github.com/spf13/cobra"
)

var (
	withImages  bool
	saveHistory bool
)

// storyCmd は、ジャンルとお題から物語を生成するのだ！
var storyCmd = &cobra.Command{
	Use:   "story",
	Short: "ジャンルとお題から物語を生成するのだ。",
	Long: `テキスト生成モデルで物語を作り、標準出力に書き出すのだ。
--images を付けると全パネルの画像も作り、--output-dir を指定すると story.md / panels.yaml / images/ を保存するのだよ。`,
	Example: `  comic-story story --genre Fantasy --prompt "A dragon who is afraid of fire"
  comic-story story --mode manga --genre Romance --prompt "Two rivals" --images --output-dir output/rivals`,
	RunE: storyCommand,
}

func init() {
	storyCmd.Flags().StringVarP(&opts.Mode, "mode", "m", config.DefaultMode, "生成モード（story / manga）なのだ。")
	storyCmd.Flags().StringVarP(&opts.Genre, "genre", "g", config.DefaultGenre, "ジャンルなのだ。")
	storyCmd.Flags().StringVarP(&opts.Prompt, "prompt", "p", config.DefaultPrompt, "物語のお題なのだ。")
	storyCmd.Flags().StringVarP(&opts.OutputDir, "output-dir", "o", "", "生成物を保存するディレクトリなのだ。")
	storyCmd.Flags().StringVar(&opts.Format, "format", "text", "標準出力の形式（text / json）なのだ。")
	storyCmd.Flags().BoolVar(&withImages, "images", false, "全パネルの画像も生成するのだ。")
	storyCmd.Flags().BoolVar(&saveHistory, "save", false, "履歴DBに保存するのだ。")
}

// storyCommand は、story サブコマンドの実行ロジック本体なのだ。
func storyCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if opts.Format != "text" && opts.Format != "json" {
		return fmt.Errorf("未対応の出力形式なのだ: '%s'", opts.Format)
	}

	cfg := loadConfig()
	app, err := builder.NewAppContext(ctx, cfg, builder.Features{Images: withImages, History: saveHistory})
	if err != nil {
		return fmt.Errorf("アプリケーションの初期化に失敗しました: %w", err)
	}
	defer app.Close()

	sess := &session.Session{}
	if err := app.Workflow.CreateStory(ctx, sess, opts.Mode, opts.Genre, opts.Prompt); err != nil {
		return err
	}

	if withImages {
		n, err := app.Workflow.GenerateAllImages(ctx, sess)
		if err != nil {
			// 作れた分だけでも保存するのだ
			slog.Warn("一部のパネル画像を作れなかったのだ", "created", n, "error", err)
		} else {
			slog.Info("パネル画像を生成したのだ", "count", n)
		}
	}

	if saveHistory {
		created, err := app.Workflow.SaveToHistory(ctx, sess)
		if err != nil {
			return err
		}
		slog.Info("履歴に保存したのだ", "created", created, "db", cfg.HistoryDB)
	}

	if opts.OutputDir != "" {
		result, err := app.Publisher.Publish(ctx, sess.Story, sess.Images, publisher.Options{OutputDir: opts.OutputDir})
		if err != nil {
			return fmt.Errorf("生成物の保存に失敗しました: %w", err)
		}
		slog.Info("生成物を保存したのだ", "story", result.StoryPath, "panels", result.PanelsPath, "images", len(result.ImagePaths))
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sess.Story)
	}
	_, err = fmt.Fprintln(out, sess.Story.Text)
	return err
}

