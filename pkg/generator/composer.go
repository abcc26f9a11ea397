package generator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shouni/go-comic-story/pkg/domain"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	defaultImageCacheTTL     = 1 * time.Hour
	defaultImageCacheCleanup = 30 * time.Minute
)

// PanelComposer はプロンプト構築・流量制限・キャッシュをまとめて、1パネル分の画像を作るのだ。
type PanelComposer struct {
	ImageGenerator ImageGenerator
	PromptBuilder  PanelPromptBuilder
	RateLimiter    *rate.Limiter
	imageCache     *cache.Cache
	generateGroup  singleflight.Group
}

// NewPanelComposer は PanelComposer の新しいインスタンスを初期化済みの状態で生成します。
// limiter が nil の場合は流量制限をかけないのだ。
func NewPanelComposer(imgGen ImageGenerator, pb PanelPromptBuilder, limiter *rate.Limiter) *PanelComposer {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &PanelComposer{
		ImageGenerator: imgGen,
		PromptBuilder:  pb,
		RateLimiter:    limiter,
		imageCache:     cache.New(defaultImageCacheTTL, defaultImageCacheCleanup),
	}
}

// Compose は描写から画像を生成するのだ。同じプロンプトの結果はキャッシュから返し、
// 同時に来た同じリクエストは1回の API 呼び出しにまとめます。
func (pc *PanelComposer) Compose(ctx context.Context, description string) (*domain.PanelImage, error) {
	if strings.TrimSpace(description) == "" {
		return nil, ErrNoDescription
	}

	prompt, err := pc.PromptBuilder.BuildPanel(description)
	if err != nil {
		return nil, fmt.Errorf("画像プロンプトの構築に失敗しました: %w", err)
	}
	key := cacheKey(prompt)

	if cached, ok := pc.imageCache.Get(key); ok {
		if img, ok := cached.(domain.PanelImage); ok {
			slog.Debug("画像キャッシュにヒットしたのだ", "key", key[:12])
			return &img, nil
		}
	}

	val, err, shared := pc.generateGroup.Do(key, func() (interface{}, error) {
		if err := pc.RateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		startTime := time.Now()
		img, genErr := pc.ImageGenerator.GenerateImage(ctx, prompt)
		if genErr != nil {
			return nil, genErr
		}
		slog.Info("画像を生成したのだ",
			"backend", pc.ImageGenerator.Name(),
			"duration", time.Since(startTime).Round(time.Millisecond))

		pc.imageCache.Set(key, *img, cache.DefaultExpiration)
		return *img, nil
	})
	if err != nil {
		return nil, err
	}

	img, ok := val.(domain.PanelImage)
	if !ok {
		return nil, fmt.Errorf("unexpected return type from singleflight: %T", val)
	}
	if shared {
		slog.Debug("同じプロンプトの生成結果を共有したのだ", "key", key[:12])
	}
	return &img, nil
}

// cacheKey はプロンプトのハッシュをキャッシュキーにするのだ。
func cacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
