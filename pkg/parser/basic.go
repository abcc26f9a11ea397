package parser

import (
	"strings"

	"github.com/shouni/go-comic-story/pkg/domain"
)

// ExtractPanels は "Panel" で始まる行を区切りとして、テキストをパネルの列に分割するのだ。
//
// 区切り行はそのまま次のパネルの先頭になります。区切りが1つもなければ入力全体が1パネル、
// 空白だけの入力ならパネルは0件なのだ。失敗することはありません。
func ExtractPanels(text string) []domain.Panel {
	var panels []domain.Panel
	var current strings.Builder
	hasText := false // 空白以外の文字をすでに溜めているか

	push := func() {
		panels = append(panels, domain.Panel{
			Index:   len(panels) + 1,
			RawText: strings.TrimSpace(current.String()),
		})
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, PanelPrefix) && hasText {
			push()
			current.Reset()
			current.WriteString(line)
			continue
		}
		current.WriteString("\n")
		current.WriteString(line)
		hasText = hasText || trimmed != ""
	}

	// 空白だけのブロックは捨てるのだ
	if hasText {
		push()
	}

	return panels
}
