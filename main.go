package main

import (
	"context"
	"os"

	"vipspot/internal/cli"
	"vipspot/internal/config"
)

func main() {
	// 既定値（ポート 8000、実行ファイルのディレクトリ）と環境変数で起動する
	os.Exit(cli.NewRunner().Run(context.Background(), config.Load))
}
