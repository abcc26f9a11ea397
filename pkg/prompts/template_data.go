package prompts

import (
	_ "embed"
)

const (
	// ModeStory は 4部構成（Introduction/Storyline/Climax/Moral）の物語を書かせるモードなのだ。
	ModeStory = "story"
	// ModeManga は "Panel N:" 区切りの 5〜7 コマ漫画を書かせるモードなのだ。
	ModeManga = "manga"
	// ModeImage はパネル1枚分の画像生成プロンプトです。
	ModeImage = "image"
)

// TemplateData はプロンプトテンプレートに渡すデータ構造です。
type TemplateData struct {
	Genre       string
	Prompt      string
	Description string
	StyleSuffix string
}

var (
	//go:embed story.md
	StoryPrompt string
	//go:embed manga.md
	MangaPrompt string
	//go:embed image.md
	ImagePrompt string
)

// allTemplates はモードとテンプレート文字列を紐づけるマップなのだ。
var allTemplates = map[string]string{
	ModeStory: StoryPrompt,
	ModeManga: MangaPrompt,
	ModeImage: ImagePrompt,
}
