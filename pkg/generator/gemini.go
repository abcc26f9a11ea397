package generator

import (
	"context"
	"fmt"

	"github.com/shouni/go-comic-story/pkg/domain"

	"google.golang.org/genai"
)

// GeminiImageClient は Gemini の画像出力モデルで画像を生成するのだ。結果はバイト列で返ります。
type GeminiImageClient struct {
	client *genai.Client
	model  string
}

// NewGeminiImageClient は genai クライアントを初期化します。
func NewGeminiImageClient(ctx context.Context, apiKey, model string) (*GeminiImageClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY は必須です")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("画像生成クライアントの初期化に失敗しました: %w", err)
	}
	return &GeminiImageClient{client: client, model: model}, nil
}

func (c *GeminiImageClient) Name() string {
	return fmt.Sprintf("Gemini Image (%s)", c.model)
}

// GenerateImage はレスポンスの中から最初のインライン画像を取り出すのだ。
func (c *GeminiImageClient) GenerateImage(ctx context.Context, prompt string) (*domain.PanelImage, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: 画像生成に失敗しました: %w", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &domain.PanelImage{
					Data:     part.InlineData.Data,
					MIMEType: part.InlineData.MIMEType,
				}, nil
			}
		}
	}
	return nil, fmt.Errorf("gemini: 応答に画像が含まれていませんでした")
}
