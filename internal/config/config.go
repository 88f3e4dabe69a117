package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

// DefaultPort は開発サーバーの既定ポート
const DefaultPort = 8000

// envPrefix は環境変数による上書きのプレフィックス
const envPrefix = "VIPSPOT"

var validate = validator.New()

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server  ServerConfig  `toml:"server" yaml:"server"`
	Browser BrowserConfig `toml:"browser" yaml:"browser"`
	Log     LogConfig     `toml:"log" yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	// リッスンするホスト（空なら全インターフェース）
	Host string `toml:"host" yaml:"host"`
	// リッスンするポート番号（0 はテスト用の空きポート）
	Port int `toml:"port" yaml:"port" validate:"min=0,max=65535"`
	// 配信するルートディレクトリ（絶対パス）
	Root string `toml:"root" yaml:"root" validate:"required"`

	// タイムアウト設定
	ReadHeaderTimeout Duration `toml:"read_header_timeout" yaml:"read_header_timeout" validate:"gte=0"`
	ReadTimeout       Duration `toml:"read_timeout" yaml:"read_timeout" validate:"gte=0"`
	WriteTimeout      Duration `toml:"write_timeout" yaml:"write_timeout" validate:"gte=0"`
	IdleTimeout       Duration `toml:"idle_timeout" yaml:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout   Duration `toml:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
}

// BrowserConfig は起動時のブラウザ自動オープンの設定
type BrowserConfig struct {
	Enabled bool     `toml:"enabled" yaml:"enabled"`
	Delay   Duration `toml:"delay" yaml:"delay" validate:"gte=0"`
}

// LogConfig は診断ログの設定
type LogConfig struct {
	Level string `toml:"level" yaml:"level" validate:"required,oneof=debug info warn error"`
}

// envSpec は環境変数から上書きできる項目
// キーは VIPSPOT_ 付きのみ。envconfig タグ名は接頭辞なしでも参照されるため、
// タグを付けるのは接頭辞なしの PORT も受け付ける Port だけにする
type envSpec struct {
	ListenHost   string   `split_words:"true"`
	Port         int      `envconfig:"PORT"`
	Root         string   `split_words:"true"`
	OpenBrowser  bool     `split_words:"true"`
	BrowserDelay Duration `split_words:"true"`
	LogLevel     string   `split_words:"true"`
}

// Default は既定値だけで構成された設定を返す
// ルートディレクトリは実行ファイルの置かれたディレクトリ
func Default() (*Config, error) {
	root, err := ExecutableDir()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Host:              "",
			Port:              DefaultPort,
			Root:              root,
			ReadHeaderTimeout: Duration(5 * time.Second),
			ReadTimeout:       Duration(15 * time.Second),
			WriteTimeout:      Duration(30 * time.Second),
			IdleTimeout:       Duration(60 * time.Second),
			ShutdownTimeout:   Duration(5 * time.Second),
		},
		Browser: BrowserConfig{
			Enabled: true,
			Delay:   Duration(time.Second),
		},
		Log: LogConfig{
			Level: "info",
		},
	}, nil
}

// Load は既定値に環境変数の上書きを適用して設定を読み込む
func Load() (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	return finish(cfg)
}

// finish は環境変数の上書き、ルートの正規化、検証をまとめて行う
func finish(cfg *Config) (*Config, error) {
	if err := cfg.applyEnv(); err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}

	root, err := normalizeRoot(cfg.Server.Root)
	if err != nil {
		return nil, err
	}
	cfg.Server.Root = root

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// applyEnv は設定済みの環境変数だけを反映する
func (c *Config) applyEnv() error {
	spec := envSpec{
		ListenHost:   c.Server.Host,
		Port:         c.Server.Port,
		Root:         c.Server.Root,
		OpenBrowser:  c.Browser.Enabled,
		BrowserDelay: c.Browser.Delay,
		LogLevel:     c.Log.Level,
	}

	if err := envconfig.Process(envPrefix, &spec); err != nil {
		return err
	}

	c.Server.Host = spec.ListenHost
	c.Server.Port = spec.Port
	c.Server.Root = spec.Root
	c.Browser.Enabled = spec.OpenBrowser
	c.Browser.Delay = spec.BrowserDelay
	c.Log.Level = spec.LogLevel

	return nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	var err error

	if verr := validate.Struct(c); verr != nil {
		err = multierr.Append(err, verr)
	}

	// ルートディレクトリは存在するディレクトリでなければならない
	if c.Server.Root != "" {
		info, statErr := os.Stat(c.Server.Root)
		switch {
		case statErr != nil:
			err = multierr.Append(err, fmt.Errorf("ルートディレクトリにアクセスできません: %w", statErr))
		case !info.IsDir():
			err = multierr.Append(err, fmt.Errorf("ルートがディレクトリではありません: %s", c.Server.Root))
		}
	}

	return err
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// BrowserURL は指定ポートで待ち受けるサーバーのルートURLを返す
func BrowserURL(port int) string {
	return fmt.Sprintf("http://localhost:%d/", port)
}

// ExecutableDir は実行中のプログラムが置かれたディレクトリを返す
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("実行ファイルの場所を取得できません: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe), nil
}

// normalizeRoot はルートを絶対パスにし、シンボリックリンクを解決する
func normalizeRoot(root string) (string, error) {
	if root == "" {
		return "", nil
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("ルートディレクトリの解決に失敗: %w", err)
	}

	// 存在しない場合は Validate で報告する
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	return abs, nil
}

// SetRoot はルートディレクトリを差し替える（相対パスは作業ディレクトリ基準）
func (c *Config) SetRoot(root string) error {
	abs, err := normalizeRoot(root)
	if err != nil {
		return err
	}
	c.Server.Root = abs
	return nil
}
