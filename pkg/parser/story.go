package parser

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shouni/go-comic-story/pkg/domain"
)

// storyState は ParseStory が1回の走査の間だけ持つ状態なのだ。
type storyState struct {
	sectionName string
	hasSection  bool
	panels      []domain.StoryPanel
	sections    domain.StorySections
}

// currentPanel は最後に開いたパネルを返します。パネルが無ければ nil なのだ。
func (st *storyState) currentPanel() *domain.StoryPanel {
	if len(st.panels) == 0 {
		return nil
	}
	return &st.panels[len(st.panels)-1]
}

// commit は開いているセクションを確定するのだ。パネルが0件のセクションは登録しません。
func (st *storyState) commit() {
	if st.hasSection && len(st.panels) > 0 {
		st.sections[st.sectionName] = st.panels
	}
}

// lineRule は「判定」と「処理」の組なのだ。先頭から順に評価して、最初に一致したものだけが適用されます。
type lineRule struct {
	name  string
	match func(line string, st *storyState) bool
	apply func(line string, st *storyState)
}

// panelRule は開いているパネルに行を振り分けるための規則です。
type panelRule struct {
	name  string
	match func(line string) bool
	apply func(line string, p *domain.StoryPanel)
}

// storyRules は1行ごとの分類規則なのだ。順番がそのまま優先度になっています。
var storyRules = []lineRule{
	{
		name:  "skip",
		match: func(line string, _ *storyState) bool { return line == "" || line == dividerLine },
		apply: func(string, *storyState) {},
	},
	{
		name:  "section",
		match: func(line string, _ *storyState) bool { return isSectionHeader(line) },
		apply: func(line string, st *storyState) {
			st.commit()
			st.sectionName = sectionName(line)
			st.hasSection = true
			st.panels = nil
		},
	},
	{
		name:  "panel",
		match: func(line string, _ *storyState) bool { return strings.HasPrefix(line, panelMarker) },
		apply: func(line string, st *storyState) {
			number, rest := splitPanelMarker(line)
			st.panels = append(st.panels, domain.StoryPanel{
				Number:      number,
				Description: rest,
				Narration:   []string{},
				Dialogues:   []domain.Dialogue{},
			})
		},
	},
	{
		name:  "orphan",
		match: func(_ string, st *storyState) bool { return st.currentPanel() == nil },
		apply: func(string, *storyState) {},
	},
	{
		name:  "content",
		match: func(string, *storyState) bool { return true },
		apply: func(line string, st *storyState) {
			routeToPanel(line, st.currentPanel())
		},
	},
}

// panelRules はパネル内の行をナレーション・心の声・セリフ・描写に振り分けるのだ。
var panelRules = []panelRule{
	{
		name:  "narration",
		match: func(line string) bool { return strings.HasPrefix(line, narrationBox) },
		apply: func(line string, p *domain.StoryPanel) {
			p.Narration = append(p.Narration, strings.TrimSpace(strings.TrimPrefix(line, narrationBox)))
		},
	},
	{
		name:  "thought",
		match: func(line string) bool { return strings.Contains(line, thoughtBubble) },
		apply: func(line string, p *domain.StoryPanel) {
			character, _, _ := strings.Cut(line, thoughtMarker)
			text := line
			if i := strings.LastIndex(line, fieldSeparator); i >= 0 {
				text = line[i+len(fieldSeparator):]
			}
			p.Dialogues = append(p.Dialogues, domain.Dialogue{
				Kind:      domain.DialogueThought,
				Character: strings.TrimSpace(character),
				Text:      strings.TrimSpace(text),
			})
		},
	},
	{
		name: "speech",
		match: func(line string) bool {
			return strings.Contains(line, fieldSeparator) && !strings.Contains(line, "(")
		},
		apply: func(line string, p *domain.StoryPanel) {
			character, text, ok := strings.Cut(line, fieldSeparator)
			if !ok {
				return
			}
			p.Dialogues = append(p.Dialogues, domain.Dialogue{
				Kind:      domain.DialogueSpeech,
				Character: strings.TrimSpace(character),
				Text:      strings.TrimSpace(text),
			})
		},
	},
	{
		name:  "description",
		match: func(line string) bool { return !strings.HasPrefix(line, "*") },
		apply: func(line string, p *domain.StoryPanel) { p.AddDescription(line) },
	},
}

// ParseStory は "**[Introduction]**" のような見出しと "*PANEL1:" のようなマーカーを持つ物語テキストを、
// セクション名からパネル列へのマップに変換するのだ。
//
// 認識できない行は黙って捨てます。走査中の想定外のパニックだけはここで受け止めて、
// 空のマップとエラーを返すのだ。
func ParseStory(text string) (sections domain.StorySections, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ストーリーの解析中に予期しないエラーが発生したのだ", "panic", r)
			sections = domain.StorySections{}
			err = fmt.Errorf("ストーリーの解析に失敗しました: %v", r)
		}
	}()

	st := &storyState{sections: domain.StorySections{}}
	for _, raw := range strings.Split(text, "\n") {
		applyStoryRules(strings.TrimSpace(raw), st)
	}
	st.commit()

	return st.sections, nil
}

// applyStoryRules は最初に一致した規則の名前を返します。
func applyStoryRules(line string, st *storyState) string {
	for _, r := range storyRules {
		if r.match(line, st) {
			r.apply(line, st)
			return r.name
		}
	}
	return ""
}

// routeToPanel はパネル内規則を順に試し、適用した規則名を返すのだ。どれにも当たらなければ空文字です。
func routeToPanel(line string, p *domain.StoryPanel) string {
	for _, r := range panelRules {
		if r.match(line) {
			r.apply(line, p)
			return r.name
		}
	}
	return ""
}

func isSectionHeader(line string) bool {
	return strings.Contains(line, sectionOpen) && strings.Contains(line, sectionClose)
}

// sectionName は2つのマーカーに挟まれたラベルを小文字にして取り出すのだ。
func sectionName(line string) string {
	_, after, _ := strings.Cut(line, sectionOpen)
	label, _, found := strings.Cut(after, sectionClose)
	if !found {
		// "]**" が "**[" より前にしか無い行
		label = strings.NewReplacer(sectionOpen, "", sectionClose, "").Replace(line)
	}
	return strings.ToLower(strings.TrimSpace(label))
}

// splitPanelMarker は "*PANEL 3: 本文" を ("3", "本文") に分けます。
func splitPanelMarker(line string) (number, rest string) {
	body := strings.TrimPrefix(line, panelMarker)
	number, rest, _ = strings.Cut(body, fieldSeparator)
	// "*PANEL 1:* 本文*" のような強調記号の残りは落とすのだ
	rest = strings.TrimSpace(strings.Trim(strings.TrimSpace(rest), "*"))
	return strings.TrimSpace(number), rest
}
