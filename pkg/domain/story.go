package domain

import (
	"encoding/base64"
	"slices"
	"sort"
	"time"
)

// 物語を構成する標準の4部構成なのだ。Ordered はこの順で並べます。
const (
	SectionIntroduction = "introduction"
	SectionStoryline    = "storyline"
	SectionClimax       = "climax"
	SectionMoral        = "moral"
)

// CanonicalSectionOrder は 4部構成の表示順です。
var CanonicalSectionOrder = []string{
	SectionIntroduction,
	SectionStoryline,
	SectionClimax,
	SectionMoral,
}

// StorySection は "**[Climax]**" のような見出しで区切られた物語の一部分なのだ。
type StorySection struct {
	Name   string       `json:"name" yaml:"name"`
	Panels []StoryPanel `json:"panels" yaml:"panels"`
}

// StorySections はセクション名（小文字）からパネル列へのマップです。
type StorySections map[string][]StoryPanel

// Ordered はセクションを 4部構成の順に並べ、残りは名前順で後ろに付けて返すのだ。
func (s StorySections) Ordered() []StorySection {
	out := make([]StorySection, 0, len(s))
	for _, name := range CanonicalSectionOrder {
		if panels, ok := s[name]; ok {
			out = append(out, StorySection{Name: name, Panels: panels})
		}
	}

	var rest []string
	for name := range s {
		if !slices.Contains(CanonicalSectionOrder, name) {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		out = append(out, StorySection{Name: name, Panels: s[name]})
	}
	return out
}

// PanelCount は全セクションのパネル数の合計なのだ。
func (s StorySections) PanelCount() int {
	n := 0
	for _, panels := range s {
		n += len(panels)
	}
	return n
}

// Story は1回の生成で得られた物語とその解析結果をまとめたものなのだ。
type Story struct {
	Genre     string        `json:"genre"`
	Prompt    string        `json:"prompt"`
	Text      string        `json:"text"`
	Panels    []Panel       `json:"panels"`
	Sections  StorySections `json:"sections,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// PanelDescriptions は画像生成に使う、パネルごとの描写テキストを返します。
// セクション付きで解析できた場合は構造化パネルの描写を、そうでなければ素のパネル本文を使うのだ。
func (s *Story) PanelDescriptions() []string {
	if s == nil {
		return nil
	}
	if s.Sections.PanelCount() > 0 {
		var out []string
		for _, sec := range s.Sections.Ordered() {
			for _, p := range sec.Panels {
				out = append(out, p.Description)
			}
		}
		return out
	}

	out := make([]string, len(s.Panels))
	for i, p := range s.Panels {
		out[i] = p.RawText
	}
	return out
}

// HistoryEntry は履歴として保存された1件の生成結果なのだ。
type HistoryEntry struct {
	ID        string         `json:"id"`
	Genre     string         `json:"genre"`
	Prompt    string         `json:"prompt"`
	Story     string         `json:"story"`
	Images    map[int]string `json:"images,omitempty"` // パネル番号 -> URL または data URI
	CreatedAt time.Time      `json:"created_at"`
}

// ImageSource は <img src> にそのまま渡せる文字列を返すのだ。
func (img PanelImage) ImageSource() string {
	if img.URL != "" {
		return img.URL
	}
	if len(img.Data) == 0 {
		return ""
	}
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
