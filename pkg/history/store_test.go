package history

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/shouni/go-comic-story/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	})
	return store, path
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestOpenCreatesSchema(t *testing.T) {
	_, path := openTestStore(t)

	sqlDB, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()

	var name string
	err = sqlDB.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'history'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "history", name)
}

func TestStore_SaveDedupe(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	entry := &domain.HistoryEntry{Genre: "Action", Prompt: "ninja", Story: "Panel 1: jump"}
	saved, err := store.Save(ctx, entry)
	require.NoError(t, err)
	assert.True(t, saved)
	require.NotEmpty(t, entry.ID)

	t.Run("同じお題と物語は追加されず、画像だけ更新されるのだ", func(t *testing.T) {
		dup := &domain.HistoryEntry{Genre: "Action", Prompt: "ninja", Story: "Panel 1: jump", Images: map[int]string{1: "https://img/1"}}
		saved, err := store.Save(ctx, dup)
		require.NoError(t, err)
		assert.False(t, saved)
		assert.Equal(t, entry.ID, dup.ID)

		all, err := store.List(ctx, 0)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "https://img/1", all[0].Images[1])
	})

	t.Run("物語が違えば別の履歴になるのだ", func(t *testing.T) {
		saved, err := store.Save(ctx, &domain.HistoryEntry{Genre: "Action", Prompt: "ninja", Story: "Panel 1: fall"})
		require.NoError(t, err)
		assert.True(t, saved)
	})

	t.Run("空の物語は保存できないのだ", func(t *testing.T) {
		_, err := store.Save(ctx, &domain.HistoryEntry{Prompt: "x"})
		assert.Error(t, err)
	})
}

func TestStore_ListGetDelete(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, story := range []string{"old", "mid", "new"} {
		_, err := store.Save(ctx, &domain.HistoryEntry{
			Genre:     "Horror",
			Prompt:    "p",
			Story:     story,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	t.Run("新しい順に返り、limit が効くのだ", func(t *testing.T) {
		got, err := store.List(ctx, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "new", got[0].Story)
		assert.Equal(t, "mid", got[1].Story)
		assert.NotNil(t, got[0].Images)
	})

	t.Run("Get と Delete ができるのだ", func(t *testing.T) {
		all, err := store.List(ctx, 0)
		require.NoError(t, err)
		id := all[2].ID

		got, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "old", got.Story)

		require.NoError(t, store.Delete(ctx, id))
		_, err = store.Get(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, id), ErrNotFound)
	})
}

func TestDedupeKey(t *testing.T) {
	assert.Equal(t, DedupeKey("a", "b"), DedupeKey("a", "b"))
	assert.NotEqual(t, DedupeKey("ab", ""), DedupeKey("a", "b"))
}
