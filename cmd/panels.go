package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/shouni/go-comic-story/examples"
	"github.com/shouni/go-comic-story/pkg/domain"
	"github.com/shouni/go-comic-story/pkg/parser"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"
)

var (
	richPanels   bool
	panelsFormat string
	samplePanels bool
)

// panelsCmd は既存の物語テキストをパネルに分解して表示するのだ。API キーは要りません。
var panelsCmd = &cobra.Command{
	Use:   "panels",
	Short: "物語ファイルをパネルに分解して JSON / YAML で出力するのだ。",
	Example: `  comic-story panels -f output/story.md --rich
  cat story.txt | comic-story panels --format yaml`,
	RunE: panelsCommand,
}

func init() {
	panelsCmd.Flags().StringVarP(&opts.StoryFile, "story-file", "f", "-", "物語ファイルのパス（'-'で標準入力なのだ）。")
	panelsCmd.Flags().StringVar(&panelsFormat, "format", "json", "出力形式（json / yaml）なのだ。")
	panelsCmd.Flags().BoolVar(&samplePanels, "example", false, "同梱の見本の物語を解析するのだ。")
	panelsCmd.Flags().BoolVar(&richPanels, "rich", false, "セクション付きの構造化パネルを出力するのだ。")
}

func panelsCommand(cmd *cobra.Command, args []string) error {
	p := parser.NewStoryParser()
	var (
		story *domain.Story
		err   error
	)
	if samplePanels {
		story, err = p.Parse(examples.SampleStory)
	} else {
		story, err = p.ParseFromPath(cmd.Context(), opts.StoryFile)
	}
	if err != nil {
		return err
	}

	var v any = story.Panels
	if richPanels {
		v = story.Sections.Ordered()
	}

	out := cmd.OutOrStdout()
	switch panelsFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("未対応の出力形式なのだ: '%s'", panelsFormat)
	}
}
