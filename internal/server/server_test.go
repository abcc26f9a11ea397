package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shouni/go-comic-story/pkg/domain"
	"github.com/shouni/go-comic-story/pkg/history"
	"github.com/shouni/go-comic-story/pkg/llm"
	"github.com/shouni/go-comic-story/pkg/prompts"
	"github.com/shouni/go-comic-story/pkg/session"
	"github.com/shouni/go-comic-story/pkg/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStory = `**[Introduction]**
*PANEL 1: A lab full of gadgets.
NARRATION BOX: Midnight.
Maya: It works!
*PANEL 2: A glowing portal opens.
**[Climax]**
*PANEL 3: Maya steps through.
*PANEL 4: A strange city.`

type stubText struct{}

func (stubText) Generate(context.Context, llm.Request) (string, error) { return testStory, nil }
func (stubText) Name() string { return "stub" }

// stubPanels は受け取った説明を記録し、delay だけ待ってから画像を返すのだ。
type stubPanels struct {
	delay time.Duration

	mu           sync.Mutex
	descriptions map[int]string
}

func (s *stubPanels) GenerateOne(_ context.Context, index int, description string) (*domain.PanelImage, error) {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.descriptions == nil {
		s.descriptions = map[int]string{}
	}
	s.descriptions[index] = description
	return &domain.PanelImage{PanelIndex: index, URL: fmt.Sprintf("https://img.example/%d.png", index)}, nil
}

func (s *stubPanels) description(index int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptions[index]
}

func (s *stubPanels) GenerateMissing(ctx context.Context, descriptions []string, existing map[int]domain.PanelImage) (map[int]domain.PanelImage, error) {
	out := map[int]domain.PanelImage{}
	for i := range descriptions {
		if _, ok := existing[i+1]; ok {
			continue
		}
		img, _ := s.GenerateOne(ctx, i+1, descriptions[i])
		out[i+1] = *img
	}
	return out, nil
}

type testEnv struct {
	srv    *httptest.Server
	client *http.Client
	store  *history.Store
	panels *stubPanels
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithPanels(t, &stubPanels{})
}

func newTestEnvWithPanels(t *testing.T, panels *stubPanels) *testEnv {
	t.Helper()

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pb, err := prompts.NewTextPromptBuilder()
	require.NoError(t, err)
	manager, err := workflow.New(workflow.ManagerArgs{
		TextGenerator:  stubText{},
		PromptBuilder:  pb,
		PanelGenerator: panels,
		History:        store,
	})
	require.NoError(t, err)

	s, err := New(manager, session.NewStore(time.Hour), Options{})
	require.NoError(t, err)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{srv: srv, client: &http.Client{Jar: jar}, store: store, panels: panels}
}

func (e *testEnv) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := e.client.Get(e.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) (int, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.srv.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_StoryFlow(t *testing.T) {
	env := newTestEnv(t)

	t.Run("初回表示はデフォルトのお題を出すのだ", func(t *testing.T) {
		status, body := env.get(t, "/")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, "A teenage inventor discovers a portal")
		assert.NotContains(t, body, `class="story"`)
	})

	t.Run("生成すると物語とパネルが3枚ずつの行で表示されるのだ", func(t *testing.T) {
		status, body := env.post(t, "/generate", url.Values{
			"mode":   {"story"},
			"genre":  {"Science Fiction"},
			"prompt": {"A portal in the lab"},
		})
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, `class="story"`)
		assert.Contains(t, body, "<strong>Maya:</strong> It works!")
		assert.Contains(t, body, `class="narration">Midnight.`)
		assert.Equal(t, 2, strings.Count(body, `<div class="row">`), "4枚のパネルは2行になるのだ")
		assert.Contains(t, body, `action="/panels/4/image"`)
	})

	t.Run("1枚だけ画像を作れるのだ", func(t *testing.T) {
		status, body := env.post(t, "/panels/2/image", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, `src="https://img.example/2.png"`)
		assert.Contains(t, body, "Generated image for panel 2.")
		assert.Equal(t, "A glowing portal opens.", env.panels.description(2))
		assert.Contains(t, body, "Regenerate Image")
	})

	t.Run("書き換えた説明で画像を作れるのだ", func(t *testing.T) {
		status, body := env.post(t, "/panels/3/image", url.Values{
			"description": {"Maya steps through, holding a lantern."},
		})
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, `src="https://img.example/3.png"`)
		assert.Equal(t, "Maya steps through, holding a lantern.", env.panels.description(3))
		assert.Contains(t, body, `<textarea name="description" rows="4">Maya steps through.</textarea>`, "物語の本文は変わらないのだ")
	})

	t.Run("通知は1回だけ表示されるのだ", func(t *testing.T) {
		_, body := env.get(t, "/")
		assert.NotContains(t, body, "Generated image for panel 2.")
	})

	t.Run("一括生成で残りの画像が揃い、履歴にも保存されるのだ", func(t *testing.T) {
		_, body := env.post(t, "/images", nil)
		assert.Contains(t, body, "Generated 2 image(s).")
		for i := 1; i <= 4; i++ {
			assert.Contains(t, body, fmt.Sprintf(`src="https://img.example/%d.png"`, i))
		}

		entries, err := env.store.List(context.Background(), 0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Len(t, entries[0].Images, 4)
	})

	t.Run("保存済みの物語を保存しても増えないのだ", func(t *testing.T) {
		_, body := env.post(t, "/save", nil)
		assert.Contains(t, body, "Already in history")
		entries, _ := env.store.List(context.Background(), 0)
		assert.Len(t, entries, 1)
	})

	t.Run("new で空の画面に戻るのだ", func(t *testing.T) {
		_, body := env.post(t, "/new", nil)
		assert.NotContains(t, body, `class="story"`)
	})

	t.Run("不正なパネル番号は 400 なのだ", func(t *testing.T) {
		status, _ := env.post(t, "/panels/abc/image", nil)
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestServer_ConcurrentPanelImages(t *testing.T) {
	env := newTestEnvWithPanels(t, &stubPanels{delay: 30 * time.Millisecond})
	status, _ := env.post(t, "/generate", url.Values{
		"mode":   {"story"},
		"genre":  {"Fantasy"},
		"prompt": {"A portal in the lab"},
	})
	require.Equal(t, http.StatusOK, status)

	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			resp, err := env.client.PostForm(fmt.Sprintf("%s/panels/%d/image", env.srv.URL, idx), nil)
			if assert.NoError(t, err) {
				resp.Body.Close()
			}
		}(i)
	}
	wg.Wait()

	_, body := env.get(t, "/")
	for i := 1; i <= 3; i++ {
		assert.Contains(t, body, fmt.Sprintf(`src="https://img.example/%d.png"`, i), "同時に作った画像はどれも残るのだ")
	}
}

func TestServer_MangaModeWithStoryGenre(t *testing.T) {
	env := newTestEnv(t)
	_, body := env.post(t, "/generate", url.Values{
		"mode":   {"manga"},
		"genre":  {"Superhero"},
		"prompt": {"cats in space"},
	})
	assert.NotContains(t, body, "Story generation failed")
	assert.Contains(t, body, `class="story"`)
	assert.Contains(t, body, fmt.Sprintf(`<option value="%s" selected>`, prompts.Genres(prompts.ModeManga)[0]))
}

func TestServer_History(t *testing.T) {
	env := newTestEnv(t)
	entry := &domain.HistoryEntry{
		Genre:  "Fantasy",
		Prompt: "dragons <b>bold</b>",
		Story:  testStory,
		Images: map[int]string{1: "https://img.example/h1.png"},
	}
	_, err := env.store.Save(context.Background(), entry)
	require.NoError(t, err)

	t.Run("一覧に表示され、HTML はエスケープされるのだ", func(t *testing.T) {
		status, body := env.get(t, "/history")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, "/history/"+entry.ID)
		assert.Contains(t, body, "dragons &lt;b&gt;bold&lt;/b&gt;")
	})

	t.Run("詳細では物語とパネル画像が見えるのだ", func(t *testing.T) {
		status, body := env.get(t, "/history/"+entry.ID)
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, `src="https://img.example/h1.png"`)
		assert.Contains(t, body, "A strange city.")
	})

	t.Run("存在しない履歴は 404 なのだ", func(t *testing.T) {
		status, _ := env.get(t, "/history/missing")
		assert.Equal(t, http.StatusNotFound, status)
	})

	t.Run("削除すると一覧から消えるのだ", func(t *testing.T) {
		status, body := env.post(t, "/history/"+entry.ID+"/delete", nil)
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, "No saved stories yet.")
	})
}

func TestServer_Healthz(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.client.Get(env.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "ok", got["status"])
	assert.Equal(t, true, got["images"])
	assert.Equal(t, true, got["history"])
}

func TestSafeImageURL(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"https はそのまま通すのだ", "https://img.example/1.png", "https://img.example/1.png"},
		{"http も通すのだ", "http://img.example/1.png", "http://img.example/1.png"},
		{"画像の data URI は通すのだ", "data:image/png;base64,AAAA", "data:image/png;base64,AAAA"},
		{"javascript は落とすのだ", "javascript:alert(1)", ""},
		{"画像以外の data URI は落とすのだ", "data:text/html;base64,PHNjcmlwdD4=", ""},
		{"空は空のままなのだ", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(safeImageURL(tt.src)))
		})
	}
}

func TestChunk(t *testing.T) {
	rows := chunk([]int{1, 2, 3, 4, 5, 6, 7}, 3)
	assert.Equal(t, [][]int{{1, 2, 3}, {4, 5, 6}, {7}}, rows)
	assert.Nil(t, chunk([]int{}, 3))
}
