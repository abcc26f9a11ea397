package generator

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shouni/go-comic-story/internal/config"
)

// NewImageGenerator は設定に従って画像生成バックエンドを選ぶのだ。
func NewImageGenerator(ctx context.Context, cfg *config.Config, httpClient *http.Client) (ImageGenerator, error) {
	switch cfg.ImageBackend {
	case config.BackendTogether:
		return NewTogetherClient(cfg.TogetherBaseURL, cfg.TogetherAPIKey, cfg.TogetherModel, httpClient)
	case config.BackendGemini:
		return NewGeminiImageClient(ctx, cfg.GeminiAPIKey, cfg.GeminiImageModel)
	default:
		return nil, fmt.Errorf("未対応の画像生成バックエンドなのだ: '%s'", cfg.ImageBackend)
	}
}
