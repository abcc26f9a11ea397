package cmd

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shouni/go-comic-story/internal/apiclient"
	"github.com/shouni/go-comic-story/internal/builder"
	"github.com/shouni/go-comic-story/pkg/prompts"
	"github.com/shouni/go-comic-story/pkg/publisher"

	"github.com/spf13/cobra"
)

var (
	imageDescription string
	imageOutput      string
)

// imageCmd はパネル1枚分の描写から画像を1枚だけ作るのだ。
var imageCmd = &cobra.Command{
	Use:     "image",
	Short:   "パネルの描写から画像を1枚生成するのだ。",
	Example: `  comic-story image -d "A girl stands on a rooftop at dawn" -o output/panel.png`,
	RunE:    imageCommand,
}

func init() {
	imageCmd.Flags().StringVarP(&imageDescription, "description", "d", "", "パネルの描写なのだ。")
	imageCmd.Flags().StringVarP(&imageOutput, "output", "o", "output/panel.png", "画像の保存先なのだ。")
	_ = imageCmd.MarkFlagRequired("description")
}

func imageCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := loadConfig()
	if err := cfg.Validate(true); err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.Options.HTTPTimeout}
	pb, err := prompts.NewTextPromptBuilder()
	if err != nil {
		return err
	}
	pg, err := builder.BuildPanelGenerator(ctx, cfg, pb, httpClient)
	if err != nil {
		return err
	}

	slog.Info("画像を生成するのだ", "backend", cfg.ImageBackend)
	img, err := pg.GenerateOne(ctx, 1, imageDescription)
	if err != nil {
		return err
	}

	data := img.Data
	if len(data) == 0 {
		if data, _, err = apiclient.Fetch(ctx, httpClient, img.URL); err != nil {
			return fmt.Errorf("画像のダウンロードに失敗しました: %w", err)
		}
	}

	if err := publisher.NewLocalWriter().Write(ctx, imageOutput, bytes.NewReader(data), img.MIMEType); err != nil {
		return err
	}
	slog.Info("画像を保存したのだ", "path", imageOutput)
	return nil
}
