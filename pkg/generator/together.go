package generator

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shouni/go-comic-story/internal/apiclient"
	"github.com/shouni/go-comic-story/pkg/domain"
)

const (
	defaultTogetherSteps = 4
	defaultTogetherN     = 1
)

// TogetherClient は Together の FLUX モデルで画像を生成するのだ。結果は URL で返ってきます。
type TogetherClient struct {
	apiKey string
	model  string
	base   string
	steps  int
	client *http.Client
}

// NewTogetherClient は TogetherClient を初期化します。
func NewTogetherClient(baseURL, apiKey, model string, httpClient *http.Client) (*TogetherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("TOGETHER_API_KEY は必須です")
	}
	return &TogetherClient{
		apiKey: apiKey,
		model:  model,
		base:   strings.TrimRight(baseURL, "/"),
		steps:  defaultTogetherSteps,
		client: apiclient.PickHTTPClient(httpClient),
	}, nil
}

func (c *TogetherClient) Name() string {
	return fmt.Sprintf("Together (%s)", c.model)
}

type togetherRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Steps  int    `json:"steps"`
	N      int    `json:"n"`
}

// GenerateImage は images/generations を呼び、最初の画像の URL を返すのだ。
func (c *TogetherClient) GenerateImage(ctx context.Context, prompt string) (*domain.PanelImage, error) {
	payload := togetherRequest{
		Model:  c.model,
		Prompt: prompt,
		Steps:  c.steps,
		N:      defaultTogetherN,
	}

	var parsed struct {
		Data []struct {
			URL     string `json:"url"`
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := apiclient.PostJSON(ctx, c.client, c.base+"/images/generations", headers, payload, &parsed); err != nil {
		return nil, fmt.Errorf("together: 画像生成に失敗しました: %w", err)
	}
	if len(parsed.Data) == 0 || parsed.Data[0].URL == "" {
		return nil, fmt.Errorf("together: 画像URLが返されませんでした")
	}

	return &domain.PanelImage{URL: parsed.Data[0].URL}, nil
}
