package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shouni/go-comic-story/pkg/domain"

	"golang.org/x/sync/errgroup"
)

// PanelGenerator は、パネル単位または未生成パネルの一括で画像を作るのだ。
type PanelGenerator struct {
	composer *PanelComposer
}

// NewPanelGenerator は PanelGenerator の新しいインスタンスを初期化します。
func NewPanelGenerator(composer *PanelComposer) *PanelGenerator {
	return &PanelGenerator{composer: composer}
}

// GenerateOne は1パネル分の画像を生成します。index は1始まりのパネル番号なのだ。
func (pg *PanelGenerator) GenerateOne(ctx context.Context, index int, description string) (*domain.PanelImage, error) {
	logger := slog.With("panel_index", index)
	logger.Info("Starting panel generation")

	startTime := time.Now()
	img, err := pg.composer.Compose(ctx, description)
	if err != nil {
		return nil, fmt.Errorf("panel %d generation failed: %w", index, err)
	}
	img.PanelIndex = index

	logger.Info("Panel generation completed", "duration", time.Since(startTime).Round(time.Millisecond))
	return img, nil
}

// GenerateMissing は existing に画像が無いパネルだけを並列で生成するのだ。
//
// 1枚の失敗で他のパネルを止めることはしません。生成できた分を返し、失敗はまとめたエラーで返します。
// context がキャンセルされた場合だけは途中で打ち切るのだ。
func (pg *PanelGenerator) GenerateMissing(ctx context.Context, descriptions []string, existing map[int]domain.PanelImage) (map[int]domain.PanelImage, error) {
	created := make(map[int]domain.PanelImage)
	var (
		mu   sync.Mutex
		errs []error
	)

	eg, egCtx := errgroup.WithContext(ctx)
	pending := 0
	for i, desc := range descriptions {
		index := i + 1
		if img, ok := existing[index]; ok && img.HasContent() {
			continue
		}
		pending++

		eg.Go(func() error {
			img, err := pg.GenerateOne(egCtx, index, desc)
			if err != nil {
				if ctxErr := egCtx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Warn("パネル画像の生成をスキップしたのだ", "panel_index", index, "error", err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}

			mu.Lock()
			created[index] = *img
			mu.Unlock()
			return nil
		})
	}

	slog.Info("未生成パネルの一括生成を開始するのだ", "pending", pending, "total", len(descriptions))
	if err := eg.Wait(); err != nil {
		return created, err
	}

	return created, errors.Join(errs...)
}
