// Package main は設定をコマンドラインで上書きできる開発サーバーコマンドです
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"vipspot/internal/cli"
	"vipspot/internal/config"
	"vipspot/internal/server"
)

func main() {
	// コマンドラインオプション
	var (
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 全インターフェース)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8000)")
		dir        = flag.String("dir", "", "配信するディレクトリ (デフォルト: 実行ファイルのディレクトリ)")
		configPath = flag.String("config", "", "設定ファイルのパス (.toml / .yaml)")
		noBrowser  = flag.Bool("no-browser", false, "起動時にブラウザを開かない")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println(server.Title)
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(cli.ExitOK)
	}

	load := func() (*config.Config, error) {
		var (
			cfg *config.Config
			err error
		)
		if *configPath != "" {
			cfg, err = config.LoadFile(*configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return nil, err
		}

		// コマンドラインオプションで設定を上書き
		if *host != "" {
			cfg.Server.Host = *host
		}
		if *port != 0 {
			cfg.Server.Port = *port
		}
		if *dir != "" {
			if err := cfg.SetRoot(*dir); err != nil {
				return nil, err
			}
		}
		if *noBrowser {
			cfg.Browser.Enabled = false
		}

		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("設定の検証に失敗: %w", err)
		}
		return cfg, nil
	}

	os.Exit(cli.NewRunner().Run(context.Background(), load))
}
