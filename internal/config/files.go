package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigName は設定ファイルの名前（拡張子なし）なのだ。
	ConfigName    = "comic-story"
	dotEnvFile    = ".env"
	configDirName = "comic-story"
)

// LoadFiles は .env と YAML の設定ファイルを読み込み、まだ設定されていない環境変数として書き出すのだ。
// 既に環境に存在する値は上書きしません。読み込んだファイルのパスを返します。
//
// configFile が空なら ./comic-story.yaml と ~/.config/comic-story/comic-story.yaml を探すのだ。
func LoadFiles(configFile string) ([]string, error) {
	var used []string

	if _, err := os.Stat(dotEnvFile); err == nil {
		v := viper.New()
		v.SetConfigFile(dotEnvFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return used, fmt.Errorf(".env の読み込みに失敗しました: %w", err)
		}
		exportToEnv(v)
		used = append(used, v.ConfigFileUsed())
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configDirName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return used, nil
		}
		return used, fmt.Errorf("設定ファイルの読み込みに失敗しました: %w", err)
	}
	exportToEnv(v)
	return append(used, v.ConfigFileUsed()), nil
}

// exportToEnv は viper のキー（小文字）を大文字の環境変数名にして書き出すのだ。
// "groq.api_key" のような入れ子のキーは GROQ_API_KEY になります。
func exportToEnv(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		name := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if _, exists := os.LookupEnv(name); exists {
			continue
		}
		_ = os.Setenv(name, v.GetString(key))
	}
}
