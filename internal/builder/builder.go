package builder

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shouni/go-comic-story/internal/config"
	"github.com/shouni/go-comic-story/pkg/generator"
	"github.com/shouni/go-comic-story/pkg/history"
	"github.com/shouni/go-comic-story/pkg/llm"
	"github.com/shouni/go-comic-story/pkg/parser"
	"github.com/shouni/go-comic-story/pkg/prompts"
	"github.com/shouni/go-comic-story/pkg/publisher"
	"github.com/shouni/go-comic-story/pkg/session"
	"github.com/shouni/go-comic-story/pkg/workflow"

	"golang.org/x/time/rate"
)

// Features は組み立てる機能の選択なのだ。
type Features struct {
	Images  bool // 画像生成バックエンドを組み立てる
	History bool // 履歴DBを開く
}

// NewAppContext は設定から全ての依存関係を組み立てるのだ。
func NewAppContext(ctx context.Context, cfg *config.Config, features Features) (*AppContext, error) {
	if err := cfg.Validate(features.Images); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.Options.HTTPTimeout}
	if cfg.Options.HTTPTimeout <= 0 {
		httpClient.Timeout = config.DefaultHTTPTimeout
	}

	app := &AppContext{
		Config:     cfg,
		Options:    cfg.Options,
		Sessions:   session.NewStore(config.DefaultSessionTTL),
		Parser:     parser.NewStoryParser(),
		Publisher:  publisher.NewStoryPublisher(publisher.NewLocalWriter(), httpClient),
		httpClient: httpClient,
	}

	manager, err := app.buildManager(ctx, features)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Workflow = manager
	return app, nil
}

func (a *AppContext) buildManager(ctx context.Context, features Features) (*workflow.Manager, error) {
	textGen, err := BuildTextGenerator(ctx, a.Config, a.httpClient)
	if err != nil {
		return nil, err
	}

	pb, err := prompts.NewTextPromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("プロンプトビルダーの初期化に失敗しました: %w", err)
	}

	args := workflow.ManagerArgs{
		TextGenerator: textGen,
		GenDefaults:   llm.DefaultsFor(a.Config.LLMBackend),
		PromptBuilder: pb,
		Parser:        a.Parser,
	}

	if features.Images {
		pg, err := BuildPanelGenerator(ctx, a.Config, pb, a.httpClient)
		if err != nil {
			return nil, err
		}
		args.PanelGenerator = pg
	}

	if features.History {
		store, err := history.Open(a.Config.HistoryDB)
		if err != nil {
			return nil, fmt.Errorf("履歴DBの初期化に失敗しました: %w", err)
		}
		a.history = store
		args.History = store
	}

	return workflow.New(args)
}

// BuildTextGenerator は設定されたバックエンドのテキスト生成クライアントを作るのだ。
func BuildTextGenerator(ctx context.Context, cfg *config.Config, httpClient *http.Client) (llm.TextGenerator, error) {
	textGen, err := llm.New(ctx, cfg, httpClient)
	if err != nil {
		return nil, fmt.Errorf("テキスト生成クライアントの初期化に失敗したのだ: %w", err)
	}
	slog.Debug("テキスト生成クライアントを初期化したのだ", "backend", textGen.Name())
	return textGen, nil
}

// BuildPanelGenerator は画像バックエンド・流量制限・キャッシュを束ねた PanelGenerator を作ります。
func BuildPanelGenerator(ctx context.Context, cfg *config.Config, pb prompts.PromptBuilder, httpClient *http.Client) (*generator.PanelGenerator, error) {
	imgGen, err := generator.NewImageGenerator(ctx, cfg, httpClient)
	if err != nil {
		return nil, fmt.Errorf("画像生成クライアントの初期化に失敗したのだ: %w", err)
	}

	interval := cfg.Options.RateLimit
	if interval <= 0 {
		interval = config.DefaultRateLimit
	}
	limiter := rate.NewLimiter(rate.Every(interval), config.DefaultRateBurst)

	composer := generator.NewPanelComposer(imgGen, prompts.NewImagePromptBuilder(pb, cfg.ImagePromptSuffix), limiter)
	return generator.NewPanelGenerator(composer), nil
}
