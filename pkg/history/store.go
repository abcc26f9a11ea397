package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shouni/go-comic-story/pkg/domain"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound は履歴が存在しないときのエラーなのだ。
var ErrNotFound = errors.New("履歴が見つかりません")

var schema = []string{
	`CREATE TABLE IF NOT EXISTS history (
	id          TEXT PRIMARY KEY,
	dedupe_key  TEXT NOT NULL UNIQUE,
	genre       TEXT NOT NULL,
	prompt      TEXT NOT NULL,
	story       TEXT NOT NULL,
	images_json TEXT NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_created_at ON history(created_at DESC)`,
}

// Store は生成履歴を SQLite に保存するのだ。
type Store struct {
	sqlDB *sql.DB
}

// Open は path の SQLite を開き、スキーマを用意します。
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("履歴DBのパスは必須です")
	}

	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("履歴DBのディレクトリ作成に失敗しました: %w", err)
		}
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	for _, stmt := range schema {
		if _, err := sqlDB.Exec(stmt); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &Store{sqlDB: sqlDB}, nil
}

// Close は DB 接続を閉じるのだ。
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Save は履歴を保存します。同じお題と同じ物語の組が既にあれば画像だけ更新し、saved=false を返すのだ。
func (s *Store) Save(ctx context.Context, entry *domain.HistoryEntry) (bool, error) {
	if entry == nil || strings.TrimSpace(entry.Story) == "" {
		return false, fmt.Errorf("保存する物語が空なのだ")
	}

	imagesJSON, err := json.Marshal(nonNilImages(entry.Images))
	if err != nil {
		return false, fmt.Errorf("画像一覧のエンコードに失敗しました: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	key := DedupeKey(entry.Prompt, entry.Story)
	now := time.Now()

	var existingID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM history WHERE dedupe_key = ?`, key).Scan(&existingID)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			`UPDATE history SET images_json = ?, updated_at = ? WHERE id = ?`,
			string(imagesJSON), now.UnixMilli(), existingID,
		); err != nil {
			return false, fmt.Errorf("update history: %w", err)
		}
		entry.ID = existingID
		return false, tx.Commit()
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("select history: %w", err)
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history (id, dedupe_key, genre, prompt, story, images_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, key, entry.Genre, entry.Prompt, entry.Story, string(imagesJSON),
		entry.CreatedAt.UnixMilli(), now.UnixMilli(),
	); err != nil {
		return false, fmt.Errorf("insert history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// List は新しい順に最大 limit 件の履歴を返すのだ。limit が0以下なら全件です。
func (s *Store) List(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	query := `SELECT id, genre, prompt, story, images_json, created_at FROM history ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// Get は ID で1件取り出すのだ。
func (s *Store) Get(ctx context.Context, id string) (domain.HistoryEntry, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, genre, prompt, story, images_json, created_at FROM history WHERE id = ?`, id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.HistoryEntry{}, ErrNotFound
	}
	return entry, err
}

// Delete は ID の履歴を削除します。
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (domain.HistoryEntry, error) {
	var (
		entry      domain.HistoryEntry
		imagesJSON string
		createdAt  int64
	)
	if err := sc.Scan(&entry.ID, &entry.Genre, &entry.Prompt, &entry.Story, &imagesJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entry, err
		}
		return entry, fmt.Errorf("scan history: %w", err)
	}
	if err := json.Unmarshal([]byte(imagesJSON), &entry.Images); err != nil {
		return entry, fmt.Errorf("画像一覧のデコードに失敗しました: %w", err)
	}
	entry.CreatedAt = time.UnixMilli(createdAt)
	return entry, nil
}

// DedupeKey はお題と物語の組から重複判定用のキーを作るのだ。
func DedupeKey(prompt, story string) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write([]byte(story))
	return hex.EncodeToString(h.Sum(nil))
}

func nonNilImages(m map[int]string) map[int]string {
	if m == nil {
		return map[int]string{}
	}
	return m
}
