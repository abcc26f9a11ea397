package prompts

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"text/template"
)

// PromptBuilder は、AIプロンプトを構築する契約です。
type PromptBuilder interface {
	Build(mode string, data TemplateData) (string, error)
}

// TextPromptBuilder は埋め込みテンプレートを保持し、モードに応じてプロンプトを組み立てます。
type TextPromptBuilder struct {
	templates map[string]*template.Template
}

// NewTextPromptBuilder は TextPromptBuilder を初期化します。
func NewTextPromptBuilder() (*TextPromptBuilder, error) {
	parsedTemplates := make(map[string]*template.Template)
	for mode, content := range allTemplates {
		if strings.TrimSpace(content) == "" {
			return nil, fmt.Errorf("プロンプトテンプレート '%s' (go:embed) の読み込みに失敗しました: 内容が空です", mode)
		}

		tmpl, err := template.New(mode).Option("missingkey=error").Parse(content)
		if err != nil {
			return nil, fmt.Errorf("プロンプト '%s' の解析に失敗: %w", mode, err)
		}
		parsedTemplates[mode] = tmpl
	}

	return &TextPromptBuilder{
		templates: parsedTemplates,
	}, nil
}

// Build は、要求されたモードに応じて適切なテンプレートを実行します。
func (b *TextPromptBuilder) Build(mode string, data TemplateData) (string, error) {
	tmpl, ok := b.templates[mode]
	if !ok {
		return "", fmt.Errorf("サポートされていないモード: '%s'。サポートされているモードは [%s] です",
			mode, strings.Join(b.Modes(), ", "))
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("プロンプトテンプレートの実行に失敗しました: %w", err)
	}

	return strings.TrimSpace(sb.String()), nil
}

// Modes は利用可能なモードを名前順で返すのだ。
func (b *TextPromptBuilder) Modes() []string {
	modes := slices.Collect(maps.Keys(b.templates))
	slices.Sort(modes)
	return modes
}
