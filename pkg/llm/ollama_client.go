package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shouni/go-comic-story/internal/apiclient"
)

// OllamaClient はローカルの推論サーバー（/api/generate）と通信するのだ。
type OllamaClient struct {
	host   string
	model  string
	client *http.Client
}

// NewOllamaClient は OllamaClient を初期化します。
func NewOllamaClient(host, model string, httpClient *http.Client) *OllamaClient {
	return &OllamaClient{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		client: apiclient.PickHTTPClient(httpClient),
	}
}

func (c *OllamaClient) Name() string {
	return fmt.Sprintf("Ollama (%s)", c.model)
}

type ollamaOptions struct {
	NumPredict  int     `json:"num_predict,omitempty"`
	Temperature float32 `json:"temperature"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	System  string        `json:"system,omitempty"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

// Generate はストリーミング無しで1回分の生成結果を受け取るのだ。
func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	payload := ollamaRequest{
		Model:  c.model,
		Prompt: req.Prompt,
		System: req.System,
		Stream: false,
		Options: ollamaOptions{
			NumPredict:  req.MaxTokens,
			Temperature: req.Temperature,
		},
	}

	var parsed struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}
	if err := apiclient.PostJSON(ctx, c.client, c.host+"/api/generate", nil, payload, &parsed); err != nil {
		return "", fmt.Errorf("ollama: %w", err)
	}
	return cleanResponse("ollama", parsed.Response)
}
