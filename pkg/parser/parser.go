package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/shouni/go-comic-story/pkg/domain"
)

// Parser は生成された物語テキストを解析するためのインターフェースなのだ。
type Parser interface {
	Parse(text string) (*domain.Story, error)
}

// StoryParser は素のパネル分割とセクション付き解析の両方をまとめて実行します。
type StoryParser struct{}

// NewStoryParser は StoryParser を初期化するのだ。
func NewStoryParser() *StoryParser {
	return &StoryParser{}
}

// Parse はテキストを両方の方式で解析し、domain.Story にまとめて返すのだ。
// セクション付き解析に失敗しても、素のパネル分割の結果は返します。
func (p *StoryParser) Parse(text string) (*domain.Story, error) {
	story := &domain.Story{
		Text:      text,
		Panels:    ExtractPanels(text),
		CreatedAt: time.Now(),
	}

	sections, err := ParseStory(text)
	story.Sections = sections
	if err != nil {
		return story, err
	}

	slog.Debug("物語を解析したのだ",
		"panels", len(story.Panels),
		"sections", len(sections),
		"section_panels", sections.PanelCount())
	return story, nil
}

// ParseFromPath はローカルファイル（"-" なら標準入力）から物語テキストを読み込んで解析するのだ。
func (p *StoryParser) ParseFromPath(ctx context.Context, path string) (*domain.Story, error) {
	slog.InfoContext(ctx, "物語ファイルを読み込んでいます", "path", path)

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("物語ファイルのオープンに失敗しました (%s): %w", path, err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("物語ファイルの読み込みに失敗しました: %w", err)
	}

	return p.Parse(string(data))
}
