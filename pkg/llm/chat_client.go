package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/shouni/go-comic-story/internal/apiclient"
)

// ChatClient は OpenAI 互換の /chat/completions を話すホスト型API（Groq など）のクライアントなのだ。
type ChatClient struct {
	apiKey string
	model  string
	base   string
	client *http.Client
}

// NewChatClient は ChatClient を初期化します。APIキーは必須なのだ。
func NewChatClient(baseURL, apiKey, model string, httpClient *http.Client) (*ChatClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("チャットAPIのAPIキーは必須です")
	}
	return &ChatClient{
		apiKey: apiKey,
		model:  model,
		base:   strings.TrimRight(baseURL, "/"),
		client: apiclient.PickHTTPClient(httpClient),
	}, nil
}

func (c *ChatClient) Name() string {
	return fmt.Sprintf("Chat (%s)", c.model)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// Generate はシステムプロンプトとユーザープロンプトを送り、最初の候補の本文を返すのだ。
func (c *ChatClient) Generate(ctx context.Context, req Request) (string, error) {
	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	payload := chatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := apiclient.PostJSON(ctx, c.client, c.base+"/chat/completions", headers, payload, &parsed); err != nil {
		return "", fmt.Errorf("chat completions: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat completions: 候補が1件も返されませんでした")
	}
	return cleanResponse("chat completions", parsed.Choices[0].Message.Content)
}
