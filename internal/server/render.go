package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shouni/go-comic-story/internal/apiclient"
	"github.com/shouni/go-comic-story/pkg/domain"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

//go:embed templates/*.html
var templatesFS embed.FS

// panelsPerRow は画面上の1行に並べるパネル数なのだ。
const panelsPerRow = 3

var pageNames = []string{"index", "history", "history_entry"}

// parseTemplates は各ページを layout.html と組にしてパースします。
func parseTemplates() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"title": func(s string) string {
			r, size := utf8.DecodeRuneInString(s)
			if size == 0 {
				return s
			}
			return string(unicode.ToUpper(r)) + s[size:]
		},
	}
	out := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templatesFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("テンプレート %s のパースに失敗しました: %w", name, err)
		}
		out[name] = t
	}
	return out, nil
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
}

// renderMarkdown は物語テキストを HTML にするのだ。生の HTML はエスケープされます。
func (s *Server) renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := s.md.Convert([]byte(text), &buf); err != nil {
		slog.Warn("Markdown の変換に失敗したのだ", "error", err)
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String())
}

func (s *Server) render(w http.ResponseWriter, status int, page string, data any) {
	t, ok := s.templates[page]
	if !ok {
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		slog.Error("テンプレートの描画に失敗したのだ", "page", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// panelView は1枚のパネルカードの表示内容なのだ。
type panelView struct {
	Index       int
	Section     string
	Label       string
	Description string
	Narration   []string
	Dialogues   []domain.Dialogue
	ImageSrc    template.URL
	CanGenerate bool
}

// buildPanelViews はパネルを表示順に並べ、3枚ずつの行に分けるのだ。
// 番号は Story.PanelDescriptions と同じ1始まりの連番です。
func buildPanelViews(story *domain.Story, images map[int]string) [][]panelView {
	if story == nil {
		return nil
	}

	var views []panelView
	if story.Sections.PanelCount() > 0 {
		for _, sec := range story.Sections.Ordered() {
			for _, p := range sec.Panels {
				views = append(views, panelView{
					Index:       len(views) + 1,
					Section:     sec.Name,
					Label:       p.Number,
					Description: p.Description,
					Narration:   p.Narration,
					Dialogues:   p.Dialogues,
				})
			}
		}
	} else {
		for _, p := range story.Panels {
			views = append(views, panelView{
				Index:       p.Index,
				Label:       fmt.Sprint(p.Index),
				Description: p.RawText,
			})
		}
	}

	for i := range views {
		views[i].ImageSrc = safeImageURL(images[views[i].Index])
	}
	return chunk(views, panelsPerRow)
}

// safeImageURL は http(s) の URL と画像の data URI だけを img の src として通すのだ。
// それ以外はテンプレートの URL エスケープを迂回させないように空にします。
func safeImageURL(src string) template.URL {
	src = strings.TrimSpace(src)
	lower := strings.ToLower(src)
	for _, prefix := range []string{"https:", "http:", "data:image/"} {
		if strings.HasPrefix(lower, prefix) {
			return template.URL(src)
		}
	}
	if src != "" {
		slog.Warn("表示できない画像 URL を無視したのだ", "src", apiclient.Truncate(src, 80))
	}
	return ""
}

func chunk[T any](items []T, size int) [][]T {
	var rows [][]T
	for size < len(items) {
		items, rows = items[size:], append(rows, items[:size:size])
	}
	if len(items) > 0 {
		rows = append(rows, items)
	}
	return rows
}

func imageSources(images map[int]domain.PanelImage) map[int]string {
	out := make(map[int]string, len(images))
	for i, img := range images {
		out[i] = img.ImageSource()
	}
	return out
}
