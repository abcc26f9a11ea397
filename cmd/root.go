package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/shouni/go-comic-story/internal/config"

	"github.com/spf13/cobra"
)

var (
	// opts は各サブコマンドのフラグが書き込む実行時オプションなのだ。
	opts    config.GenerateOptions
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "comic-story",
	Short: "AIでコミックの物語とパネル画像を作るのだ。",
	Long: `ジャンルとお題から 4部構成（Introduction / Storyline / Climax / Moral）の物語を生成し、
パネルごとに分解して画像を作るツールなのだ。Web UI（serve）と CLI のどちらでも使えるのだよ。`,
	SilenceUsage:      true,
	PersistentPreRunE: preRunAppE,
}

func init() {
	cobra.OnInitialize(initConfig)
	addAppFlags(rootCmd)
	rootCmd.AddCommand(serveCmd, storyCmd, panelsCmd, imageCmd)
}

// addAppFlags は、アプリケーション全般に適用されるグローバルフラグを定義するのだ。
func addAppFlags(rootCmd *cobra.Command) {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "設定ファイル（既定: ./comic-story.yaml または ~/.config/comic-story/comic-story.yaml）なのだ。")

	// --- AIモデル・挙動設定 ---
	rootCmd.PersistentFlags().StringVar(&opts.LLMBackend, "llm", "", "テキスト生成バックエンド（local / groq / gemini）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.ImageBackend, "image-backend", "", "画像生成バックエンド（together / gemini）なのだ。")
	rootCmd.PersistentFlags().StringVar(&opts.Model, "model", "", "テキスト生成に使うモデル名なのだ。")

	// --- 実行制御 ---
	rootCmd.PersistentFlags().DurationVar(&opts.HTTPTimeout, "http-timeout", config.DefaultHTTPTimeout, "外部APIリクエストのタイムアウトなのだ。")
	rootCmd.PersistentFlags().DurationVar(&opts.RateLimit, "rate-limit", config.DefaultRateLimit, "画像生成リクエストの最小間隔なのだ。")
	rootCmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "デバッグログを出すのだ。")
}

// initConfig は .env と設定ファイルを環境変数へ取り込むのだ。
func initConfig() {
	used, err := config.LoadFiles(cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "設定ファイルの読み込みに失敗したのだ:", err)
		os.Exit(1)
	}
	for _, f := range used {
		fmt.Fprintln(os.Stderr, "Using config file:", f)
	}
}

// preRunAppE は、ログレベルを決めるのだ。API キーの確認は各コマンドが必要な範囲で行います。
func preRunAppE(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// loadConfig は環境変数の設定にフラグの値を重ねるのだ。
func loadConfig() *config.Config {
	cfg := config.LoadConfig()
	cfg.ApplyOptions(opts)
	return cfg
}

// Execute は、アプリケーションのメインエントリポイントなのだ。
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
