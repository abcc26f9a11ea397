package generator

import (
	"context"
	"errors"

	"github.com/shouni/go-comic-story/pkg/domain"
)

// ErrNoDescription は描写の無いパネルに画像を頼んだときのエラーなのだ。
var ErrNoDescription = errors.New("パネルに画像化できる描写がありません")

// ImageGenerator は画像生成APIの境界なのだ。プロンプトから1枚の画像を返します。
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (*domain.PanelImage, error)
	Name() string
}

// PanelPromptBuilder はパネルの描写を画像プロンプトに変換します。
type PanelPromptBuilder interface {
	BuildPanel(description string) (string, error)
}
