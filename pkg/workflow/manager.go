package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shouni/go-comic-story/pkg/domain"
	"github.com/shouni/go-comic-story/pkg/llm"
	"github.com/shouni/go-comic-story/pkg/parser"
	"github.com/shouni/go-comic-story/pkg/prompts"
	"github.com/shouni/go-comic-story/pkg/session"
)

// ErrNoStory は物語がまだ無いセッションで画像生成や保存をしようとしたときのエラーなのだ。
var ErrNoStory = errors.New("先に物語を生成してください")

// storyUserPrompt は物語モードでシステムプロンプトと一緒に送るユーザープロンプトなのだ。
const storyUserPrompt = "Genre: %s\nPrompt: %s"

// ManagerArgs は Manager の依存関係なのだ。
type ManagerArgs struct {
	TextGenerator  llm.TextGenerator
	GenDefaults    llm.Defaults
	PromptBuilder  prompts.PromptBuilder
	Parser         parser.Parser
	PanelGenerator PanelImageGenerator // 画像生成を使わない場合は nil でよい
	History        HistoryStore        // 履歴を使わない場合は nil でよい
}

// Manager は「生成 → 解析 → 画像 → 保存」の各工程をセッションに対して実行するのだ。
type Manager struct {
	textGen     llm.TextGenerator
	genDefaults llm.Defaults
	prompts     prompts.PromptBuilder
	parser      parser.Parser
	panels      PanelImageGenerator
	history     HistoryStore
}

// New は依存関係を検証して Manager を初期化します。
func New(args ManagerArgs) (*Manager, error) {
	if args.TextGenerator == nil {
		return nil, fmt.Errorf("TextGenerator は必須です")
	}
	if args.PromptBuilder == nil {
		return nil, fmt.Errorf("PromptBuilder は必須です")
	}
	p := args.Parser
	if p == nil {
		p = parser.NewStoryParser()
	}
	defaults := args.GenDefaults
	if defaults.MaxTokens == 0 {
		defaults = llm.HostedDefaults
	}

	return &Manager{
		textGen:     args.TextGenerator,
		genDefaults: defaults,
		prompts:     args.PromptBuilder,
		parser:      p,
		panels:      args.PanelGenerator,
		history:     args.History,
	}, nil
}

// ImagesEnabled は画像生成が使えるかどうかなのだ。
func (m *Manager) ImagesEnabled() bool { return m.panels != nil }

// HistoryEnabled は履歴が使えるかどうかなのだ。
func (m *Manager) HistoryEnabled() bool { return m.history != nil }

// GenerateStory はジャンルとお題から物語を生成して解析するのだ。セッションには触りません。
func (m *Manager) GenerateStory(ctx context.Context, mode, genre, prompt string) (*domain.Story, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("お題（プロンプト）が空なのだ")
	}
	switch mode {
	case "":
		mode = prompts.ModeStory
	case prompts.ModeStory, prompts.ModeManga:
	default:
		return nil, fmt.Errorf("物語の生成に使えないモードなのだ: '%s'", mode)
	}
	if strings.TrimSpace(genre) == "" || isOtherModeGenre(mode, genre) {
		// 別モードのジャンルが残っていたら、このモードの既定ジャンルで書かせるのだ
		genre = prompts.Genres(mode)[0]
	}
	genre, err := prompts.ValidateGenre(mode, genre)
	if err != nil {
		return nil, err
	}

	req, err := m.buildRequest(mode, genre, prompt)
	if err != nil {
		return nil, err
	}

	slog.Info("物語の生成を開始するのだ", "backend", m.textGen.Name(), "mode", mode, "genre", genre)
	startTime := time.Now()
	text, err := m.textGen.Generate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("物語の生成に失敗しました: %w", err)
	}
	slog.Info("物語を生成したのだ", "chars", len(text), "duration", time.Since(startTime).Round(time.Millisecond))

	story, err := m.parser.Parse(text)
	if err != nil {
		if story == nil {
			return nil, fmt.Errorf("物語の解析に失敗しました: %w", err)
		}
		// 構造化に失敗しても素のパネル分割で表示は続けられるのだ
		slog.Warn("物語の構造化に失敗したのだ", "error", err)
	}
	story.Genre = genre
	story.Prompt = prompt
	return story, nil
}

// isOtherModeGenre は genre が mode では使えず、ほかのモードなら使えるジャンルか判定します。
func isOtherModeGenre(mode, genre string) bool {
	if _, err := prompts.ValidateGenre(mode, genre); err == nil {
		return false
	}
	for _, other := range []string{prompts.ModeStory, prompts.ModeManga} {
		if other == mode {
			continue
		}
		if _, err := prompts.ValidateGenre(other, genre); err == nil {
			return true
		}
	}
	return false
}

// buildRequest はモードに応じてシステムプロンプトとユーザープロンプトを組み立てるのだ。
func (m *Manager) buildRequest(mode, genre, prompt string) (llm.Request, error) {
	rendered, err := m.prompts.Build(mode, prompts.TemplateData{Genre: genre, Prompt: prompt})
	if err != nil {
		return llm.Request{}, fmt.Errorf("プロンプト生成に失敗: %w", err)
	}

	req := llm.Request{
		MaxTokens:   m.genDefaults.MaxTokens,
		Temperature: m.genDefaults.Temperature,
	}
	switch mode {
	case prompts.ModeStory:
		req.System = rendered
		req.Prompt = fmt.Sprintf(storyUserPrompt, genre, prompt)
	default:
		req.Prompt = rendered
	}
	return req, nil
}

// CreateStory は物語を生成し、セッションの物語を置き換えるのだ。以前の画像は捨てられます。
func (m *Manager) CreateStory(ctx context.Context, sess *session.Session, mode, genre, prompt string) error {
	story, err := m.GenerateStory(ctx, mode, genre, prompt)
	if err != nil {
		return err
	}

	sess.Mode = mode
	sess.Genre = story.Genre
	sess.Prompt = story.Prompt
	sess.ReplaceStory(story)
	return nil
}

// GeneratePanelImage はセッションの index 番目（1始まり）のパネル画像を作るのだ。
// description が空でなければ、パネル本文の代わりにそれを画像の説明に使います。
func (m *Manager) GeneratePanelImage(ctx context.Context, sess *session.Session, index int, description string) (*domain.PanelImage, error) {
	if !m.ImagesEnabled() {
		return nil, fmt.Errorf("画像生成が設定されていないのだ")
	}
	if !sess.HasStory() {
		return nil, ErrNoStory
	}

	descriptions := sess.Story.PanelDescriptions()
	if index < 1 || index > len(descriptions) {
		return nil, fmt.Errorf("パネル番号 %d は範囲外なのだ (1..%d)", index, len(descriptions))
	}

	if strings.TrimSpace(description) == "" {
		description = descriptions[index-1]
	}
	img, err := m.panels.GenerateOne(ctx, index, strings.TrimSpace(description))
	if err != nil {
		return nil, err
	}
	sess.SetImage(*img)
	return img, nil
}

// GenerateAllImages は画像の無いパネルだけをまとめて生成し、そのまま履歴にも保存するのだ。
// 一部のパネルが失敗しても、生成できた画像はセッションに残ります。
func (m *Manager) GenerateAllImages(ctx context.Context, sess *session.Session) (int, error) {
	if !m.ImagesEnabled() {
		return 0, fmt.Errorf("画像生成が設定されていないのだ")
	}
	if !sess.HasStory() {
		return 0, ErrNoStory
	}

	created, genErr := m.panels.GenerateMissing(ctx, sess.Story.PanelDescriptions(), sess.Images)
	for _, img := range created {
		sess.SetImage(img)
	}

	if m.HistoryEnabled() {
		if _, err := m.SaveToHistory(ctx, sess); err != nil {
			slog.Warn("画像生成後の履歴保存に失敗したのだ", "error", err)
		}
	}
	return len(created), genErr
}

// Reset はセッションを新しい物語を始める前の状態に戻すのだ。
func (m *Manager) Reset(sess *session.Session) {
	sess.Reset()
	slog.Debug("セッションをリセットしたのだ", "session", sess.ID)
}

// SaveToHistory はセッションの物語と画像を履歴に保存します。同じお題と物語なら新規には増えないのだ。
func (m *Manager) SaveToHistory(ctx context.Context, sess *session.Session) (bool, error) {
	if !m.HistoryEnabled() {
		return false, fmt.Errorf("履歴が設定されていないのだ")
	}
	if !sess.HasStory() {
		return false, ErrNoStory
	}

	images := make(map[int]string, len(sess.Images))
	for i, img := range sess.Images {
		if src := img.ImageSource(); src != "" {
			images[i] = src
		}
	}

	saved, err := m.history.Save(ctx, &domain.HistoryEntry{
		Genre:  sess.Genre,
		Prompt: sess.Prompt,
		Story:  sess.Story.Text,
		Images: images,
	})
	if err != nil {
		return false, fmt.Errorf("履歴の保存に失敗しました: %w", err)
	}
	sess.Saved = true
	return saved, nil
}

// History は新しい順に履歴を返すのだ。
func (m *Manager) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if !m.HistoryEnabled() {
		return nil, nil
	}
	return m.history.List(ctx, limit)
}

// HistoryEntry は履歴1件と、その物語を解析し直した結果を返すのだ。
func (m *Manager) HistoryEntry(ctx context.Context, id string) (domain.HistoryEntry, *domain.Story, error) {
	if !m.HistoryEnabled() {
		return domain.HistoryEntry{}, nil, fmt.Errorf("履歴が設定されていないのだ")
	}
	entry, err := m.history.Get(ctx, id)
	if err != nil {
		return domain.HistoryEntry{}, nil, err
	}
	story, err := m.parser.Parse(entry.Story)
	if err != nil {
		if story == nil {
			return domain.HistoryEntry{}, nil, fmt.Errorf("履歴の物語の解析に失敗しました: %w", err)
		}
		slog.Warn("履歴の物語の構造化に失敗したのだ", "id", id, "error", err)
	}
	story.Genre = entry.Genre
	story.Prompt = entry.Prompt
	story.CreatedAt = entry.CreatedAt
	return entry, story, nil
}

// DeleteHistory は履歴を1件削除します。
func (m *Manager) DeleteHistory(ctx context.Context, id string) error {
	if !m.HistoryEnabled() {
		return fmt.Errorf("履歴が設定されていないのだ")
	}
	return m.history.Delete(ctx, id)
}
