package domain

// Panel は台本テキストを「Panel」行で区切った1ブロック分のパネルなのだ。
type Panel struct {
	Index   int    `json:"index" yaml:"index"`       // 出現順の1始まりの番号
	RawText string `json:"raw_text" yaml:"raw_text"` // 先頭の "Panel N:" を含む元テキスト
}

// DialogueKind はセリフの種類（通常の発話 or 心の声）なのだ。
type DialogueKind string

const (
	DialogueSpeech  DialogueKind = "speech"
	DialogueThought DialogueKind = "thought"
)

// Dialogue はパネル内の1つのセリフを表します。
type Dialogue struct {
	Kind      DialogueKind `json:"kind" yaml:"kind"`
	Character string       `json:"character" yaml:"character"`
	Text      string       `json:"text" yaml:"text"`
}

// StoryPanel はセクション付きストーリーから抽出された、構造化済みのパネルなのだ。
// Number はマーカーから切り出したラベルそのもので、数値や一意性は保証されません。
type StoryPanel struct {
	Number      string     `json:"number" yaml:"number"`
	Description string     `json:"description" yaml:"description"`
	Narration   []string   `json:"narration" yaml:"narration"`
	Dialogues   []Dialogue `json:"dialogues" yaml:"dialogues"`
}

// AddDescription は描写テキストを半角スペース区切りで追記するのだ。
func (p *StoryPanel) AddDescription(text string) {
	if p.Description == "" {
		p.Description = text
		return
	}
	p.Description += " " + text
}

// Speeches は発話セリフだけを抜き出して返します。
func (p StoryPanel) Speeches() []Dialogue {
	return p.dialoguesOf(DialogueSpeech)
}

// Thoughts は心の声だけを抜き出して返します。
func (p StoryPanel) Thoughts() []Dialogue {
	return p.dialoguesOf(DialogueThought)
}

func (p StoryPanel) dialoguesOf(kind DialogueKind) []Dialogue {
	var out []Dialogue
	for _, d := range p.Dialogues {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// PanelImage は1パネル分の生成画像なのだ。
// ホスト型の生成APIは URL を、Gemini はバイト列を返すので、どちらか一方が入ります。
type PanelImage struct {
	PanelIndex int    `json:"panel_index"`
	URL        string `json:"url,omitempty"`
	Data       []byte `json:"-"`
	MIMEType   string `json:"mime_type,omitempty"`
}

// HasContent は画像として表示できる情報を持っているか判定するのだ。
func (img PanelImage) HasContent() bool {
	return img.URL != "" || len(img.Data) > 0
}
