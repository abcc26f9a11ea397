package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shouni/go-comic-story/internal/config"
)

// ErrEmptyResponse はモデルが空の文章を返したときのエラーなのだ。
var ErrEmptyResponse = errors.New("モデルから空の応答が返されました")

// Request は1回のテキスト生成の入力です。
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// TextGenerator は物語テキストを生成する外部モデルの境界なのだ。
type TextGenerator interface {
	Generate(ctx context.Context, req Request) (string, error)
	Name() string
}

// Defaults はバックエンドごとの推奨生成パラメータなのだ。
type Defaults struct {
	MaxTokens   int
	Temperature float32
}

var (
	// LocalDefaults はローカル推論（llama.cpp 系）向けの設定です。
	LocalDefaults = Defaults{MaxTokens: 1200, Temperature: 0.7}
	// HostedDefaults はホスト型API（Groq / Gemini）向けの設定です。
	HostedDefaults = Defaults{MaxTokens: 1000, Temperature: 0}
)

// DefaultsFor はバックエンド名に応じた生成パラメータを返すのだ。
func DefaultsFor(backend string) Defaults {
	if backend == config.BackendLocal {
		return LocalDefaults
	}
	return HostedDefaults
}

// New は設定に従って TextGenerator を組み立てるのだ。
func New(ctx context.Context, cfg *config.Config, httpClient *http.Client) (TextGenerator, error) {
	switch cfg.LLMBackend {
	case config.BackendLocal:
		return NewOllamaClient(cfg.OllamaHost, cfg.OllamaModel, httpClient), nil
	case config.BackendGroq:
		return NewChatClient(cfg.GroqBaseURL, cfg.GroqAPIKey, cfg.GroqModel, httpClient)
	case config.BackendGemini:
		return NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		return nil, fmt.Errorf("未対応のテキスト生成バックエンドなのだ: '%s'", cfg.LLMBackend)
	}
}

// cleanResponse は前後の空白を落とし、空なら ErrEmptyResponse を返します。
func cleanResponse(backend, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", backend, ErrEmptyResponse)
	}
	return text, nil
}
