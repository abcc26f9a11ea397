package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unsetEnv はテスト終了時に元へ戻るように環境変数を消すのだ。
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("環境変数が無ければデフォルト値なのだ", func(t *testing.T) {
		unsetEnv(t, "LLM_BACKEND", "GROQ_MODEL", "IMAGE_BACKEND")
		cfg := LoadConfig()
		assert.Equal(t, DefaultLLMBackend, cfg.LLMBackend)
		assert.Equal(t, DefaultGroqModel, cfg.GroqModel)
		assert.Equal(t, DefaultImageBackend, cfg.ImageBackend)
	})

	t.Run("バックエンド名は小文字に揃えるのだ", func(t *testing.T) {
		t.Setenv("LLM_BACKEND", "Gemini")
		t.Setenv("GEMINI_API_KEY", "g-key")
		cfg := LoadConfig()
		assert.Equal(t, BackendGemini, cfg.LLMBackend)
		assert.Equal(t, "g-key", cfg.GeminiAPIKey)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name       string
		cfg        Config
		needImages bool
		wantErr    bool
	}{
		{"ローカルはキー不要", Config{LLMBackend: BackendLocal}, false, false},
		{"Groq はキー必須", Config{LLMBackend: BackendGroq}, false, true},
		{"Groq にキーがあれば OK", Config{LLMBackend: BackendGroq, GroqAPIKey: "k"}, false, false},
		{"未知のバックエンド", Config{LLMBackend: "openai"}, false, true},
		{"画像不要なら画像キーは見ない", Config{LLMBackend: BackendLocal, ImageBackend: BackendTogether}, false, false},
		{"Together はキー必須", Config{LLMBackend: BackendLocal, ImageBackend: BackendTogether}, true, true},
		{"Gemini 画像は Gemini キー", Config{LLMBackend: BackendLocal, ImageBackend: BackendGemini, GeminiAPIKey: "k"}, true, false},
		{"未知の画像バックエンド", Config{LLMBackend: BackendLocal, ImageBackend: "dalle"}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate(tt.needImages)
			if (err != nil) != tt.wantErr {
				t.Errorf("期待値: wantErr=%v, 実際の値: %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_ApplyOptions(t *testing.T) {
	cfg := &Config{LLMBackend: BackendGroq, GroqModel: DefaultGroqModel, OllamaModel: DefaultOllamaModel}
	cfg.ApplyOptions(GenerateOptions{LLMBackend: "LOCAL", Model: "llama3", HTTPTimeout: time.Minute})

	assert.Equal(t, BackendLocal, cfg.LLMBackend)
	assert.Equal(t, "llama3", cfg.OllamaModel)
	assert.Equal(t, DefaultGroqModel, cfg.GroqModel, "別バックエンドのモデルは変えないのだ")
	assert.Equal(t, time.Minute, cfg.Options.HTTPTimeout)
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("COMIC_TEST_GROQ=from-dotenv\nCOMIC_TEST_KEEP=dotenv\n"), 0o600))
	yamlPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("comic_test:\n  model: from-yaml\n"), 0o600))

	t.Setenv("COMIC_TEST_KEEP", "process")
	unsetEnv(t, "COMIC_TEST_GROQ", "COMIC_TEST_MODEL")

	used, err := LoadFiles(yamlPath)
	require.NoError(t, err)
	assert.Len(t, used, 2)

	assert.Equal(t, "from-dotenv", os.Getenv("COMIC_TEST_GROQ"))
	assert.Equal(t, "process", os.Getenv("COMIC_TEST_KEEP"), "既存の環境変数は上書きしないのだ")
	assert.Equal(t, "from-yaml", os.Getenv("COMIC_TEST_MODEL"))

	t.Run("明示したファイルが無ければエラーなのだ", func(t *testing.T) {
		_, err := LoadFiles(filepath.Join(dir, "missing.yaml"))
		assert.Error(t, err)
	})
}
