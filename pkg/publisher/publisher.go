package publisher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shouni/go-comic-story/internal/apiclient"
	"github.com/shouni/go-comic-story/pkg/domain"

	"go.yaml.in/yaml/v3"
)

// Options はパブリッシュ動作を制御する設定項目です。
type Options struct {
	OutputDir string
}

// PublishResult はパブリッシュ処理の結果として生成されたファイルの情報を保持します。
type PublishResult struct {
	StoryPath  string   // 生成された story.md のパス
	PanelsPath string   // 生成された panels.yaml のパス
	ImagePaths []string // 保存された全画像のパスリスト
}

const (
	defaultStoryName    = "story.md"
	defaultPanelsName   = "panels.yaml"
	defaultImageDirName = "images"
)

// panelsDocument は panels.yaml の中身なのだ。
type panelsDocument struct {
	Genre    string                `yaml:"genre,omitempty"`
	Prompt   string                `yaml:"prompt,omitempty"`
	Sections []domain.StorySection `yaml:"sections,omitempty"`
	Panels   []domain.Panel        `yaml:"panels"`
	Images   map[int]string        `yaml:"images,omitempty"`
}

// StoryPublisher は物語と画像をディレクトリに書き出すのだ。
type StoryPublisher struct {
	writer     OutputWriter
	httpClient *http.Client
}

// NewStoryPublisher は StoryPublisher を初期化します。URL だけの画像は httpClient でダウンロードするのだ。
func NewStoryPublisher(writer OutputWriter, httpClient *http.Client) *StoryPublisher {
	if writer == nil {
		writer = NewLocalWriter()
	}
	return &StoryPublisher{
		writer:     writer,
		httpClient: apiclient.PickHTTPClient(httpClient),
	}
}

// Publish は画像の保存、story.md と panels.yaml の書き出しを一括して実行するのだ！
func (p *StoryPublisher) Publish(ctx context.Context, story *domain.Story, images map[int]domain.PanelImage, opts Options) (PublishResult, error) {
	result := PublishResult{}
	if story == nil {
		return result, fmt.Errorf("書き出す物語がありません")
	}

	// 1. 画像の保存
	savedPaths, err := p.saveImages(ctx, images, opts.OutputDir)
	if err != nil {
		return result, fmt.Errorf("画像の書き込みに失敗しました: %w", err)
	}
	for _, idx := range sortedKeys(savedPaths) {
		result.ImagePaths = append(result.ImagePaths, savedPaths[idx])
	}

	// 2. story.md
	storyPath, err := ResolveOutputPath(opts.OutputDir, defaultStoryName)
	if err != nil {
		return result, err
	}
	content := buildMarkdown(story, savedPaths)
	if err := p.writer.Write(ctx, storyPath, strings.NewReader(content), "text/markdown; charset=utf-8"); err != nil {
		return result, fmt.Errorf("markdownファイルの書き込みに失敗しました: %w", err)
	}
	result.StoryPath = storyPath

	// 3. panels.yaml
	panelsPath, err := ResolveOutputPath(opts.OutputDir, defaultPanelsName)
	if err != nil {
		return result, err
	}
	doc, err := MarshalPanels(story, relativeImagePaths(savedPaths))
	if err != nil {
		return result, err
	}
	if err := p.writer.Write(ctx, panelsPath, bytes.NewReader(doc), "application/yaml"); err != nil {
		return result, fmt.Errorf("yamlファイルの書き込みに失敗しました: %w", err)
	}
	result.PanelsPath = panelsPath

	slog.Info("物語を書き出したのだ", "dir", opts.OutputDir, "images", len(result.ImagePaths))
	return result, nil
}

// MarshalPanels は解析結果を YAML にするのだ。images にはパネル番号から画像パスへの対応を渡します。
func MarshalPanels(story *domain.Story, images map[int]string) ([]byte, error) {
	doc := panelsDocument{
		Genre:    story.Genre,
		Prompt:   story.Prompt,
		Sections: story.Sections.Ordered(),
		Panels:   story.Panels,
		Images:   images,
	}
	if doc.Panels == nil {
		doc.Panels = []domain.Panel{}
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("YAML への変換に失敗しました: %w", err)
	}
	return out, nil
}

// saveImages は画像を images/panel_N.<ext> に保存し、パネル番号から保存先パスへの対応を返すのだ。
// バイト列を持たない画像は URL からダウンロードします。
func (p *StoryPublisher) saveImages(ctx context.Context, images map[int]domain.PanelImage, baseDir string) (map[int]string, error) {
	paths := make(map[int]string, len(images))
	for _, idx := range sortedKeys(images) {
		img := images[idx]
		data, mime := img.Data, img.MIMEType
		if len(data) == 0 {
			if img.URL == "" {
				continue
			}
			var err error
			data, mime, err = apiclient.Fetch(ctx, p.httpClient, img.URL)
			if err != nil {
				return nil, fmt.Errorf("パネル %d の画像取得に失敗しました: %w", idx, err)
			}
		}

		name := fmt.Sprintf("panel_%d%s", idx, extensionFor(mime))
		fullPath, err := ResolveOutputPath(baseDir, path.Join(defaultImageDirName, name))
		if err != nil {
			return nil, fmt.Errorf("出力パスの解決に失敗しました: %w", err)
		}
		if err := p.writer.Write(ctx, fullPath, bytes.NewReader(data), mime); err != nil {
			return nil, fmt.Errorf("画像の書き込みに失敗しました %s: %w", fullPath, err)
		}
		paths[idx] = fullPath
	}
	return paths, nil
}

// buildMarkdown は元の物語テキストの後ろに、保存した画像の一覧を付けるのだ。
func buildMarkdown(story *domain.Story, imagePaths map[int]string) string {
	var sb strings.Builder
	title := "Comic Story"
	if story.Genre != "" {
		title = story.Genre + " Comic Story"
	}
	sb.WriteString(fmt.Sprintf("# %s\n\n", title))
	if story.Prompt != "" {
		sb.WriteString(fmt.Sprintf("> %s\n\n", story.Prompt))
	}
	sb.WriteString(strings.TrimSpace(story.Text))
	sb.WriteString("\n")

	rel := relativeImagePaths(imagePaths)
	if len(rel) == 0 {
		return sb.String()
	}
	sb.WriteString("\n## Images\n\n")
	for _, idx := range sortedKeys(rel) {
		sb.WriteString(fmt.Sprintf("![Panel %d](%s)\n", idx, rel[idx]))
	}
	return sb.String()
}

// relativeImagePaths は story.md から見た相対パス（images/panel_N.png）に揃えるのだ。
func relativeImagePaths(paths map[int]string) map[int]string {
	if len(paths) == 0 {
		return nil
	}
	out := make(map[int]string, len(paths))
	for idx, p := range paths {
		out[idx] = path.Join(defaultImageDirName, filepath.Base(p))
	}
	return out
}

func sortedKeys[V any](m map[int]V) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
