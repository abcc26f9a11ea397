package prompts

import (
	"fmt"
	"slices"
	"strings"
)

var (
	// StoryGenres は 4部構成の物語で選べるジャンルなのだ。
	StoryGenres = []string{"Superhero", "Science Fiction", "Fantasy", "Mystery", "Adventure", "Comedy", "Drama"}
	// MangaGenres はコマ割り漫画で選べるジャンルなのだ。
	MangaGenres = []string{"Romance", "Action", "Fantasy", "Sci-Fi", "Horror"}
)

// Genres はモードごとのジャンル一覧のコピーを返します。
func Genres(mode string) []string {
	switch mode {
	case ModeManga:
		return slices.Clone(MangaGenres)
	default:
		return slices.Clone(StoryGenres)
	}
}

// ValidateGenre はジャンル名を大文字小文字を無視して照合し、正式な表記に揃えて返すのだ。
func ValidateGenre(mode, genre string) (string, error) {
	genre = strings.TrimSpace(genre)
	for _, g := range Genres(mode) {
		if strings.EqualFold(g, genre) {
			return g, nil
		}
	}
	return "", fmt.Errorf("モード '%s' ではジャンル '%s' は使えないのだ。使えるのは [%s] です",
		mode, genre, strings.Join(Genres(mode), ", "))
}
