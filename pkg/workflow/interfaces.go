package workflow

import (
	"context"

	"github.com/shouni/go-comic-story/pkg/domain"
)

// PanelImageGenerator はパネル画像の生成を担当します。
type PanelImageGenerator interface {
	GenerateOne(ctx context.Context, index int, description string) (*domain.PanelImage, error)
	GenerateMissing(ctx context.Context, descriptions []string, existing map[int]domain.PanelImage) (map[int]domain.PanelImage, error)
}

// HistoryStore は生成履歴の永続化を担当するのだ。
type HistoryStore interface {
	Save(ctx context.Context, entry *domain.HistoryEntry) (bool, error)
	List(ctx context.Context, limit int) ([]domain.HistoryEntry, error)
	Get(ctx context.Context, id string) (domain.HistoryEntry, error)
	Delete(ctx context.Context, id string) error
}
