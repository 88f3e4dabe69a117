package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// LoadFile は設定ファイルを既定値の上に重ね、環境変数の上書きを適用して読み込む
// 拡張子で形式を判別する（.toml / .yaml / .yml）
// ファイル内の相対ルートはファイルの置かれたディレクトリを基準に解決する
func LoadFile(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	// 既定のルートを一旦外して、ファイルが指定したかどうかを判別する
	defaultRoot := cfg.Server.Root
	cfg.Server.Root = ""

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("未対応の設定ファイル形式: %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("設定ファイル %s の解析に失敗: %w", path, err)
	}

	switch {
	case cfg.Server.Root == "":
		cfg.Server.Root = defaultRoot
	case !filepath.IsAbs(cfg.Server.Root):
		cfg.Server.Root = filepath.Join(filepath.Dir(path), cfg.Server.Root)
	}

	return finish(cfg)
}
