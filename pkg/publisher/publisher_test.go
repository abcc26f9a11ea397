package publisher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shouni/go-comic-story/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"
)

func sampleStory() *domain.Story {
	return &domain.Story{
		Genre:  "Fantasy",
		Prompt: "dragons",
		Text:   "**[Introduction]**\n*PANEL 1: A dragon sleeps.",
		Panels: []domain.Panel{{Index: 1, RawText: "**[Introduction]**\n*PANEL 1: A dragon sleeps."}},
		Sections: domain.StorySections{
			"introduction": {{Number: "1", Description: "A dragon sleeps.", Narration: []string{}, Dialogues: []domain.Dialogue{}}},
		},
	}
}

func TestStoryPublisher_Publish(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	pub := NewStoryPublisher(NewLocalWriter(), srv.Client())

	images := map[int]domain.PanelImage{
		1: {PanelIndex: 1, Data: []byte("png-bytes"), MIMEType: "image/png"},
		2: {PanelIndex: 2, URL: srv.URL + "/p2"},
		3: {PanelIndex: 3},
	}

	result, err := pub.Publish(context.Background(), sampleStory(), images, Options{OutputDir: dir})
	require.NoError(t, err)

	t.Run("画像はパネル番号順に保存され、URL の画像はダウンロードされるのだ", func(t *testing.T) {
		require.Equal(t, []string{
			filepath.Join(dir, "images", "panel_1.png"),
			filepath.Join(dir, "images", "panel_2.jpg"),
		}, result.ImagePaths)

		data, err := os.ReadFile(result.ImagePaths[1])
		require.NoError(t, err)
		assert.Equal(t, "jpeg-bytes", string(data))
	})

	t.Run("story.md に元テキストと画像リンクが入るのだ", func(t *testing.T) {
		data, err := os.ReadFile(result.StoryPath)
		require.NoError(t, err)
		md := string(data)
		assert.True(t, strings.HasPrefix(md, "# Fantasy Comic Story\n"))
		assert.Contains(t, md, "*PANEL 1: A dragon sleeps.")
		assert.Contains(t, md, "![Panel 2](images/panel_2.jpg)")
	})

	t.Run("panels.yaml はセクションとパネルを持つのだ", func(t *testing.T) {
		data, err := os.ReadFile(result.PanelsPath)
		require.NoError(t, err)

		var doc panelsDocument
		require.NoError(t, yaml.Unmarshal(data, &doc))
		require.Len(t, doc.Sections, 1)
		assert.Equal(t, "introduction", doc.Sections[0].Name)
		assert.Equal(t, "A dragon sleeps.", doc.Sections[0].Panels[0].Description)
		assert.Equal(t, "images/panel_1.png", doc.Images[1])
	})
}

func TestStoryPublisher_PublishErrors(t *testing.T) {
	t.Run("物語が nil ならエラーなのだ", func(t *testing.T) {
		_, err := NewStoryPublisher(nil, nil).Publish(context.Background(), nil, nil, Options{OutputDir: t.TempDir()})
		assert.Error(t, err)
	})

	t.Run("画像のダウンロード失敗はエラーになるのだ", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		images := map[int]domain.PanelImage{1: {PanelIndex: 1, URL: srv.URL}}
		_, err := NewStoryPublisher(nil, srv.Client()).Publish(context.Background(), sampleStory(), images, Options{OutputDir: t.TempDir()})
		assert.Error(t, err)
	})
}

func TestResolveOutputPath(t *testing.T) {
	got, err := ResolveOutputPath("out", "images/panel_1.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "images", "panel_1.png"), got)

	_, err = ResolveOutputPath("out", "../escape.md")
	assert.Error(t, err)
}
