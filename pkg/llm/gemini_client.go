package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiClient は Gemini API でテキストを生成するのだ。
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient は genai クライアントを初期化します。
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY は必須です")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("AIクライアントの初期化に失敗しました: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

func (c *GeminiClient) Name() string {
	return fmt.Sprintf("Gemini (%s)", c.model)
}

// Generate は System をシステム指示として渡してコンテンツを生成するのだ。
func (c *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini: コンテンツ生成に失敗しました: %w", err)
	}
	return cleanResponse("gemini", resp.Text())
}
