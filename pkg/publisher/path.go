package publisher

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveOutputPath は、ベースとなるディレクトリとファイル名から出力パスを作るのだ。
// ファイル名がディレクトリの外を指す場合はエラーにします。
func ResolveOutputPath(baseDir, fileName string) (string, error) {
	if baseDir == "" {
		baseDir = "."
	}
	full := filepath.Join(baseDir, fileName)
	rel, err := filepath.Rel(baseDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("出力先の外を指すファイル名です: %s", fileName)
	}
	return full, nil
}

// extensionFor は MIME タイプから画像の拡張子を決めるのだ。分からなければ .png です。
func extensionFor(mime string) string {
	mime, _, _ = strings.Cut(mime, ";")
	switch strings.TrimSpace(strings.ToLower(mime)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
