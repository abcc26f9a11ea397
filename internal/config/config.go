package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shouni/go-utils/envutil"
)

// バックエンド名なのだ
const (
	BackendLocal    = "local"
	BackendGroq     = "groq"
	BackendGemini   = "gemini"
	BackendTogether = "together"
)

// デフォルト値の定義なのだ
const (
	DefaultLLMBackend   = BackendGroq
	DefaultImageBackend = BackendTogether

	DefaultGroqBaseURL  = "https://api.groq.com/openai/v1"
	DefaultGroqModel    = "mixtral-8x7b-32768"
	DefaultOllamaHost   = "http://localhost:11434"
	DefaultOllamaModel  = "mistral-nemo"
	DefaultGeminiModel  = "gemini-3-flash-preview"
	DefaultImageModel   = "gemini-3-pro-image-preview"
	DefaultTogetherURL  = "https://api.together.xyz/v1"
	DefaultTogetherFlux = "black-forest-labs/FLUX.1-schnell-Free"

	DefaultMode         = "story"
	DefaultGenre        = "Superhero"
	DefaultPrompt       = "A teenage inventor discovers a portal to a parallel universe..."
	DefaultHTTPTimeout  = 3 * time.Minute
	DefaultRateLimit    = 5 * time.Second
	DefaultRateBurst    = 2
	DefaultSessionTTL   = 2 * time.Hour
	DefaultHistoryDB    = "output/history.db"
	DefaultOutputDir    = "output"
	DefaultListenAddr   = ":8501"
	DefaultHistoryLimit = 50
)

// Config はアプリケーション全体の環境設定（APIキーやバックエンドの選択）を保持する構造体なのだ。
type Config struct {
	LLMBackend   string
	ImageBackend string

	GroqAPIKey  string
	GroqBaseURL string
	GroqModel   string

	OllamaHost  string
	OllamaModel string

	GeminiAPIKey     string
	GeminiModel      string
	GeminiImageModel string

	TogetherAPIKey  string
	TogetherBaseURL string
	TogetherModel   string

	ImagePromptSuffix string
	HistoryDB         string

	Options GenerateOptions
}

// LoadConfig は環境変数から設定を読み込み、構造体を返すのだ！
func LoadConfig() *Config {
	cfg := &Config{
		LLMBackend:        strings.ToLower(envutil.GetEnv("LLM_BACKEND", DefaultLLMBackend)),
		ImageBackend:      strings.ToLower(envutil.GetEnv("IMAGE_BACKEND", DefaultImageBackend)),
		GroqAPIKey:        envutil.GetEnv("GROQ_API_KEY", ""),
		GroqBaseURL:       envutil.GetEnv("GROQ_BASE_URL", DefaultGroqBaseURL),
		GroqModel:         envutil.GetEnv("GROQ_MODEL", DefaultGroqModel),
		OllamaHost:        envutil.GetEnv("OLLAMA_HOST", DefaultOllamaHost),
		OllamaModel:       envutil.GetEnv("OLLAMA_MODEL", DefaultOllamaModel),
		GeminiAPIKey:      envutil.GetEnv("GEMINI_API_KEY", ""),
		GeminiModel:       envutil.GetEnv("GEMINI_MODEL", DefaultGeminiModel),
		GeminiImageModel:  envutil.GetEnv("IMAGE_GEMINI_MODEL", DefaultImageModel),
		TogetherAPIKey:    envutil.GetEnv("TOGETHER_API_KEY", ""),
		TogetherBaseURL:   envutil.GetEnv("TOGETHER_BASE_URL", DefaultTogetherURL),
		TogetherModel:     envutil.GetEnv("TOGETHER_MODEL", DefaultTogetherFlux),
		ImagePromptSuffix: envutil.GetEnv("IMAGE_PROMPT_SUFFIX", ""),
		HistoryDB:         envutil.GetEnv("HISTORY_DB", DefaultHistoryDB),
	}
	return cfg
}

// Validate は選ばれたバックエンドに必要なAPIキーが揃っているか確認するのだ。
func (c *Config) Validate(needImages bool) error {
	switch c.LLMBackend {
	case BackendLocal:
	case BackendGroq:
		if c.GroqAPIKey == "" {
			return fmt.Errorf("環境変数 GROQ_API_KEY が設定されていません。Groq の利用には必須なのだ")
		}
	case BackendGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("環境変数 GEMINI_API_KEY が設定されていません。Gemini の利用には必須なのだ")
		}
	default:
		return fmt.Errorf("未対応のテキスト生成バックエンドなのだ: '%s'", c.LLMBackend)
	}

	if !needImages {
		return nil
	}

	switch c.ImageBackend {
	case BackendTogether:
		if c.TogetherAPIKey == "" {
			return fmt.Errorf("環境変数 TOGETHER_API_KEY が設定されていません。画像生成には必須なのだ")
		}
	case BackendGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("環境変数 GEMINI_API_KEY が設定されていません。画像生成には必須なのだ")
		}
	default:
		return fmt.Errorf("未対応の画像生成バックエンドなのだ: '%s'", c.ImageBackend)
	}
	return nil
}

// GenerateOptions は CLI フラグから渡される実行時のパラメータなのだ。
type GenerateOptions struct {
	// 物語の入力
	Mode   string // --mode: story or manga
	Genre  string // --genre
	Prompt string // --prompt

	// 入出力
	StoryFile string // --story-file
	OutputDir string // --output-dir
	Format    string // --format

	// AI挙動設定
	LLMBackend   string // --llm
	ImageBackend string // --image-backend
	Model        string // --model

	// 実行制御
	HTTPTimeout time.Duration // --http-timeout
	RateLimit   time.Duration // --rate-limit
	Verbose     bool          // --verbose
}

// ApplyOptions はフラグで明示された値を環境変数由来の設定より優先させるのだ。
func (c *Config) ApplyOptions(opts GenerateOptions) {
	c.Options = opts
	if opts.LLMBackend != "" {
		c.LLMBackend = strings.ToLower(opts.LLMBackend)
	}
	if opts.ImageBackend != "" {
		c.ImageBackend = strings.ToLower(opts.ImageBackend)
	}
	if opts.Model == "" {
		return
	}
	switch c.LLMBackend {
	case BackendLocal:
		c.OllamaModel = opts.Model
	case BackendGroq:
		c.GroqModel = opts.Model
	case BackendGemini:
		c.GeminiModel = opts.Model
	}
}
