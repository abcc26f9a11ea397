package builder

import (
	"errors"
	"net/http"

	"github.com/shouni/go-comic-story/internal/config"
	"github.com/shouni/go-comic-story/pkg/history"
	"github.com/shouni/go-comic-story/pkg/parser"
	"github.com/shouni/go-comic-story/pkg/publisher"
	"github.com/shouni/go-comic-story/pkg/session"
	"github.com/shouni/go-comic-story/pkg/workflow"
)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持する
// これを各コマンドやサーバーに渡すことで、依存関係の注入を簡素化します。
type AppContext struct {
	Config     *config.Config            // Configは、環境変数とフラグから組み立てた設定です（APIキー、バックエンドなど）。
	Options    config.GenerateOptions    // Optionsは、コマンドラインから渡された実行時の設定です。
	Workflow   *workflow.Manager         // Workflowは、物語生成・画像生成・履歴保存をまとめたマネージャーです。
	Sessions   *session.Store            // Sessionsは、Web UI の利用者ごとの状態です。
	Parser     *parser.StoryParser       // Parserは、物語ファイルの読み込みと解析に使います。
	Publisher  *publisher.StoryPublisher // Publisherは、生成物をディレクトリに書き出します。
	history    *history.Store            // history は Close するために持っておくのだ
	httpClient *http.Client
}

// Close は開いているリソースを解放するのだ。
func (a *AppContext) Close() error {
	var errs []error
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	return errors.Join(errs...)
}
