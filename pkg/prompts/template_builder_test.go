package prompts

import (
	"strings"
	"testing"
)

func TestTextPromptBuilder_Build(t *testing.T) {
	b, err := NewTextPromptBuilder()
	if err != nil {
		t.Fatalf("初期化に失敗したのだ: %v", err)
	}

	t.Run("物語モードはジャンルとお題と書式ルールを含むのだ", func(t *testing.T) {
		got, err := b.Build(ModeStory, TemplateData{Genre: "Fantasy", Prompt: "A dragon learns to bake"})
		if err != nil {
			t.Fatalf("予期しないエラーなのだ: %v", err)
		}
		for _, want := range []string{"Fantasy", `"A dragon learns to bake"`, "**[Introduction]**", "*PANEL", "NARRATION BOX:", "(THOUGHT BUBBLE)"} {
			if !strings.Contains(got, want) {
				t.Errorf("%q が含まれていないのだ", want)
			}
		}
	})

	t.Run("漫画モードは Panel 区切りを指示するのだ", func(t *testing.T) {
		got, err := b.Build(ModeManga, TemplateData{Genre: "Horror", Prompt: "haunted train"})
		if err != nil {
			t.Fatalf("予期しないエラーなのだ: %v", err)
		}
		if !strings.Contains(got, "Horror manga story with 5-7 panels") || !strings.Contains(got, "Panel <number>:") {
			t.Errorf("実際の値: %s", got)
		}
	})

	t.Run("未知のモードはサポート一覧付きのエラーなのだ", func(t *testing.T) {
		_, err := b.Build("duet", TemplateData{})
		if err == nil {
			t.Fatal("エラーを期待したのだ")
		}
		if !strings.Contains(err.Error(), "image, manga, story") {
			t.Errorf("サポート一覧が含まれていないのだ: %v", err)
		}
	})
}

func TestImagePromptBuilder_BuildPanel(t *testing.T) {
	tb, err := NewTextPromptBuilder()
	if err != nil {
		t.Fatalf("初期化に失敗したのだ: %v", err)
	}

	t.Run("描写が漫画風のプロンプトに埋め込まれるのだ", func(t *testing.T) {
		got, err := NewImagePromptBuilder(tb, "").BuildPanel("  A hero appears.  ")
		if err != nil {
			t.Fatalf("予期しないエラーなのだ: %v", err)
		}
		if !strings.HasPrefix(got, "Manga-style illustration: A hero appears., monochrome") {
			t.Errorf("実際の値: %s", got)
		}
		if !strings.HasSuffix(got, "professional manga panel style.") {
			t.Errorf("サフィックス無しなら定型文で終わるはずなのだ: %s", got)
		}
	})

	t.Run("スタイルサフィックスが末尾に付くのだ", func(t *testing.T) {
		got, err := NewImagePromptBuilder(tb, "watercolor").BuildPanel("rain")
		if err != nil {
			t.Fatalf("予期しないエラーなのだ: %v", err)
		}
		if !strings.HasSuffix(got, "panel style. watercolor") {
			t.Errorf("実際の値: %s", got)
		}
	})

	t.Run("空の描写はエラーなのだ", func(t *testing.T) {
		if _, err := NewImagePromptBuilder(tb, "").BuildPanel("   "); err == nil {
			t.Error("エラーを期待したのだ")
		}
	})
}

func TestValidateGenre(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		genre   string
		want    string
		wantErr bool
	}{
		{"大文字小文字を無視して正式表記を返すのだ", ModeStory, "science fiction", "Science Fiction", false},
		{"漫画モードのジャンルなのだ", ModeManga, " sci-fi ", "Sci-Fi", false},
		{"モードに無いジャンルはエラーなのだ", ModeManga, "Superhero", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateGenre(tt.mode, tt.genre)
			if (err != nil) != tt.wantErr {
				t.Fatalf("エラーの有無が違うのだ: %v", err)
			}
			if got != tt.want {
				t.Errorf("期待値: %s, 実際の値: %s", tt.want, got)
			}
		})
	}

	t.Run("Genres はコピーを返すのだ", func(t *testing.T) {
		g := Genres(ModeStory)
		g[0] = "changed"
		if StoryGenres[0] != "Superhero" {
			t.Error("元のスライスが書き換わってしまったのだ")
		}
	})
}
