package prompts

import (
	"fmt"
	"strings"
)

// ImagePromptBuilder はパネルの描写から画像生成用のプロンプトを作るのだ。
type ImagePromptBuilder struct {
	builder     PromptBuilder
	styleSuffix string
}

// NewImagePromptBuilder は ImagePromptBuilder を初期化します。
func NewImagePromptBuilder(builder PromptBuilder, styleSuffix string) *ImagePromptBuilder {
	return &ImagePromptBuilder{
		builder:     builder,
		styleSuffix: strings.TrimSpace(styleSuffix),
	}
}

// BuildPanel は1パネル分の画像プロンプトを返します。
func (b *ImagePromptBuilder) BuildPanel(description string) (string, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return "", fmt.Errorf("パネルの描写が空なのだ")
	}
	return b.builder.Build(ModeImage, TemplateData{
		Description: description,
		StyleSuffix: b.styleSuffix,
	})
}
