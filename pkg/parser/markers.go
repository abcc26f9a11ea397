package parser

// 台本テキストの中で意味を持つマーカー文字列なのだ。
// どれも大文字小文字を区別した完全一致で判定します。
const (
	// PanelPrefix は素のパネル区切りに使う行頭トークンなのだ。
	PanelPrefix = "Panel"

	sectionOpen    = "**["
	sectionClose   = "]**"
	panelMarker    = "*PANEL"
	narrationBox   = "NARRATION BOX:"
	thoughtBubble  = "THOUGHT BUBBLE"
	thoughtMarker  = "(THOUGHT BUBBLE)"
	dividerLine    = "---"
	fieldSeparator = ":"
)
