// Package server は物語生成の Web UI を提供するのだ。
//
// ルート:
//   - GET  /                      入力フォームと現在の物語
//   - POST /generate              物語を生成
//   - POST /panels/{index}/image  パネル1枚の画像を生成
//   - POST /images                足りない画像をまとめて生成
//   - POST /save                  履歴に保存
//   - POST /new                   セッションを空に戻す
//   - GET  /history               履歴一覧
//   - GET  /history/{id}          履歴1件
//   - POST /history/{id}/delete   履歴の削除
//   - GET  /healthz               ヘルスチェック
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shouni/go-comic-story/internal/config"
	"github.com/shouni/go-comic-story/pkg/domain"
	"github.com/shouni/go-comic-story/pkg/history"
	"github.com/shouni/go-comic-story/pkg/prompts"
	"github.com/shouni/go-comic-story/pkg/session"
	"github.com/shouni/go-comic-story/pkg/workflow"

	"github.com/yuin/goldmark"
)

const (
	sessionCookieName = "comic_session"
	maxFormBytes      = 64 << 10
	shutdownTimeout   = 10 * time.Second
)

// Options はサーバーの起動設定なのだ。
type Options struct {
	Addr          string
	HistoryLimit  int
	DefaultGenre  string
	DefaultPrompt string
}

// Server は Web UI の HTTP サーバーです。
type Server struct {
	opts      Options
	workflow  *workflow.Manager
	sessions  *session.Store
	router    *http.ServeMux
	templates map[string]*template.Template
	md        goldmark.Markdown
	server    *http.Server
}

// New は Server を初期化し、ルートを登録するのだ。
func New(manager *workflow.Manager, sessions *session.Store, opts Options) (*Server, error) {
	if manager == nil {
		return nil, fmt.Errorf("workflow.Manager は必須です")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session.Store は必須です")
	}
	if opts.Addr == "" {
		opts.Addr = config.DefaultListenAddr
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = config.DefaultHistoryLimit
	}
	if opts.DefaultGenre == "" {
		opts.DefaultGenre = config.DefaultGenre
	}
	if opts.DefaultPrompt == "" {
		opts.DefaultPrompt = config.DefaultPrompt
	}

	templates, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		opts:      opts,
		workflow:  manager,
		sessions:  sessions,
		router:    http.NewServeMux(),
		templates: templates,
		md:        newMarkdown(),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /{$}", s.handleIndex)
	s.router.HandleFunc("POST /generate", s.handleGenerate)
	s.router.HandleFunc("POST /panels/{index}/image", s.handlePanelImage)
	s.router.HandleFunc("POST /images", s.handleAllImages)
	s.router.HandleFunc("POST /save", s.handleSave)
	s.router.HandleFunc("POST /new", s.handleNew)

	s.router.HandleFunc("GET /history", s.handleHistory)
	s.router.HandleFunc("GET /history/{id}", s.handleHistoryEntry)
	s.router.HandleFunc("POST /history/{id}/delete", s.handleHistoryDelete)

	s.router.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler はミドルウェア込みのハンドラを返すのだ。
func (s *Server) Handler() http.Handler {
	return chain(recoveryMiddleware, securityHeadersMiddleware, loggingMiddleware)(s.router)
}

// ListenAndServe はサーバーを起動し、ctx がキャンセルされたら穏やかに停止するのだ。
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Web UI を起動したのだ", "addr", s.opts.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("サーバーを停止しています")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

// loadSession はクッキーのセッションを取り出すのだ。無ければ作ってクッキーを発行します。
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) *session.Session {
	var id string
	if c, err := r.Cookie(sessionCookieName); err == nil {
		id = c.Value
	}
	sess := s.sessions.GetOrNew(id)
	if sess.ID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

// update はセッションを排他したまま fn で書き換え、その通知を残して画面に戻すのだ（POST → Redirect → GET）。
// 同じセッションへの操作は到着順に1つずつ実行されます。
func (s *Server) update(w http.ResponseWriter, r *http.Request, fn func(sess *session.Session) string) {
	id := s.loadSession(w, r).ID
	_, err := s.sessions.Update(id, func(sess *session.Session) error {
		sess.Notice = fn(sess)
		return nil
	})
	if err != nil {
		slog.Warn("セッションの更新に失敗したのだ", "session", id, "error", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type indexData struct {
	Session        *session.Session
	Mode           string
	Genre          string
	Prompt         string
	Modes          []string
	StoryGenres    []string
	MangaGenres    []string
	Notice         string
	StoryHTML      template.HTML
	PanelRows      [][]panelView
	ImageCount     int
	PanelCount     int
	ImagesEnabled  bool
	HistoryEnabled bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sess := s.loadSession(w, r)

	data := indexData{
		Session:        sess,
		Mode:           sess.Mode,
		Genre:          sess.Genre,
		Prompt:         sess.Prompt,
		Modes:          []string{prompts.ModeStory, prompts.ModeManga},
		Notice:         sess.Notice,
		ImagesEnabled:  s.workflow.ImagesEnabled(),
		HistoryEnabled: s.workflow.HistoryEnabled(),
	}
	if data.Mode == "" {
		data.Mode = prompts.ModeStory
	}
	if data.Genre == "" {
		data.Genre = s.opts.DefaultGenre
		if data.Mode != prompts.ModeStory {
			data.Genre = prompts.Genres(data.Mode)[0]
		}
	}
	if data.Prompt == "" {
		data.Prompt = s.opts.DefaultPrompt
	}
	data.StoryGenres = prompts.Genres(prompts.ModeStory)
	data.MangaGenres = prompts.Genres(prompts.ModeManga)

	if sess.HasStory() {
		data.StoryHTML = s.renderMarkdown(sess.Story.Text)
		data.PanelRows = buildPanelViews(sess.Story, imageSources(sess.Images))
		for _, row := range data.PanelRows {
			for i := range row {
				row[i].CanGenerate = data.ImagesEnabled
			}
		}
		data.PanelCount = len(sess.Story.PanelDescriptions())
		data.ImageCount = len(sess.Images)
	}

	// 通知は1回表示したら消すのだ
	if notice := sess.Notice; notice != "" {
		_, _ = s.sessions.Update(sess.ID, func(cur *session.Session) error {
			if cur.Notice == notice {
				cur.Notice = ""
			}
			return nil
		})
	}
	s.render(w, http.StatusOK, "index", data)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	mode := r.PostFormValue("mode")
	genre := r.PostFormValue("genre")
	prompt := r.PostFormValue("prompt")

	s.update(w, r, func(sess *session.Session) string {
		if err := s.workflow.CreateStory(r.Context(), sess, mode, genre, prompt); err != nil {
			slog.Error("物語の生成に失敗したのだ", "error", err)
			// 入力はそのまま残して再挑戦しやすくするのだ
			sess.Mode, sess.Genre, sess.Prompt = mode, genre, prompt
			return "Story generation failed: " + err.Error()
		}
		return ""
	})
}

func (s *Server) handlePanelImage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "invalid panel index", http.StatusBadRequest)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	// 画面で書き換えたパネルの説明なのだ。空ならパネル本文を使います
	description := r.PostFormValue("description")

	s.update(w, r, func(sess *session.Session) string {
		if _, err := s.workflow.GeneratePanelImage(r.Context(), sess, index, description); err != nil {
			slog.Error("パネル画像の生成に失敗したのだ", "panel", index, "error", err)
			return fmt.Sprintf("Image for panel %d failed: %v", index, err)
		}
		return fmt.Sprintf("Generated image for panel %d.", index)
	})
}

func (s *Server) handleAllImages(w http.ResponseWriter, r *http.Request) {
	s.update(w, r, func(sess *session.Session) string {
		n, err := s.workflow.GenerateAllImages(r.Context(), sess)
		if err != nil {
			slog.Error("画像の一括生成でエラーが発生したのだ", "created", n, "error", err)
			return fmt.Sprintf("Generated %d image(s); some panels failed: %v", n, err)
		}
		return fmt.Sprintf("Generated %d image(s).", n)
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	s.update(w, r, func(sess *session.Session) string {
		created, err := s.workflow.SaveToHistory(r.Context(), sess)
		switch {
		case err != nil:
			return "Save failed: " + err.Error()
		case created:
			return "Saved to history."
		default:
			return "Already in history; images updated."
		}
	})
}

func (s *Server) handleNew(w http.ResponseWriter, r *http.Request) {
	s.update(w, r, func(sess *session.Session) string {
		s.workflow.Reset(sess)
		return ""
	})
}

type historyData struct {
	Entries        []domain.HistoryEntry
	HistoryEnabled bool
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.workflow.History(r.Context(), s.opts.HistoryLimit)
	if err != nil {
		slog.Error("履歴の取得に失敗したのだ", "error", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	s.render(w, http.StatusOK, "history", historyData{
		Entries:        entries,
		HistoryEnabled: s.workflow.HistoryEnabled(),
	})
}

type historyEntryData struct {
	Entry     domain.HistoryEntry
	StoryHTML template.HTML
	PanelRows [][]panelView
}

func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	entry, story, err := s.workflow.HistoryEntry(r.Context(), r.PathValue("id"))
	if errors.Is(err, history.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.Error("履歴の取得に失敗したのだ", "error", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	s.render(w, http.StatusOK, "history_entry", historyEntryData{
		Entry:     entry,
		StoryHTML: s.renderMarkdown(entry.Story),
		PanelRows: buildPanelViews(story, entry.Images),
	})
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	err := s.workflow.DeleteHistory(r.Context(), r.PathValue("id"))
	if errors.Is(err, history.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		slog.Error("履歴の削除に失敗したのだ", "error", err)
		http.Error(w, "failed to delete history", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/history", http.StatusSeeOther)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.sessions.Count(),
		"images":   s.workflow.ImagesEnabled(),
		"history":  s.workflow.HistoryEnabled(),
	})
}
