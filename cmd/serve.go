package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/shouni/go-comic-story/internal/builder"
	"github.com/shouni/go-comic-story/internal/config"
	"github.com/shouni/go-comic-story/internal/server"

	"github.com/spf13/cobra"
)

var (
	listenAddr string
	noImages   bool
	noHistory  bool
)

// serveCmd は Web UI を起動するのだ。
var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "ブラウザで物語とパネル画像を作る Web UI を起動するのだ。",
	Example: "  comic-story serve --addr :8501",
	RunE:    serveCommand,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", config.DefaultListenAddr, "待ち受けアドレスなのだ。")
	serveCmd.Flags().BoolVar(&noImages, "no-images", false, "画像生成を無効にするのだ。")
	serveCmd.Flags().BoolVar(&noHistory, "no-history", false, "履歴の保存を無効にするのだ。")
}

func serveCommand(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()

	features := builder.Features{Images: !noImages, History: !noHistory}
	if features.Images {
		// 画像のキーが無いだけなら、テキストだけで起動するのだ
		if err := cfg.Validate(true); err != nil {
			slog.Warn("画像生成を無効にして起動するのだ", "reason", err)
			features.Images = false
		}
	}

	app, err := builder.NewAppContext(ctx, cfg, features)
	if err != nil {
		return fmt.Errorf("アプリケーションの初期化に失敗しました: %w", err)
	}
	defer app.Close()

	srv, err := server.New(app.Workflow, app.Sessions, server.Options{Addr: listenAddr})
	if err != nil {
		return fmt.Errorf("サーバーの初期化に失敗しました: %w", err)
	}

	slog.Info("Web UI を準備したのだ",
		"llm", cfg.LLMBackend,
		"images", features.Images,
		"history", features.History)
	return srv.ListenAndServe(ctx)
}
