// Package cli は設定の読み込みからサーバーの停止までを通しで実行し、終了コードを決める
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"go.uber.org/multierr"

	"vipspot/internal/config"
	"vipspot/internal/logger"
	"vipspot/internal/server"
)

// 終了コード
const (
	ExitOK    = 0
	ExitError = 1
)

// LoadFunc は設定を読み込む関数
type LoadFunc func() (*config.Config, error)

// Runner はコンソール出力先を持つ実行器
type Runner struct {
	Out     io.Writer // 起動バナーとアクセスログ
	Err     io.Writer // エラーメッセージ
	Options []server.Option
}

// NewRunner は標準出力・標準エラー出力を使う Runner を作成する
func NewRunner() *Runner {
	return &Runner{
		Out: os.Stdout,
		Err: os.Stderr,
	}
}

// Run はサーバーを起動し、停止までブロックして終了コードを返す
func (r *Runner) Run(ctx context.Context, load LoadFunc) int {
	stopped, err := r.run(ctx, load)
	if err == nil {
		if stopped {
			fmt.Fprintln(r.Out, "\nServer stopped by user")
		}
		return ExitOK
	}

	red := color.New(color.FgRed)
	var bindErr *server.BindError
	switch {
	case errors.Is(err, server.ErrAddrInUse) && errors.As(err, &bindErr):
		red.Fprintf(r.Err, "Error: Port %d is already in use\n", bindErr.Port)
		fmt.Fprintln(r.Err, "Try using a different port or stop the existing server")
	case errors.As(err, &bindErr):
		red.Fprintf(r.Err, "Error starting server: %v\n", bindErr.Err)
	default:
		red.Fprintf(r.Err, "Unexpected error: %v\n", err)
	}
	return ExitError
}

// run は停止まで実行し、サーバーが配信を始めていたかを返す
func (r *Runner) run(ctx context.Context, load LoadFunc) (served bool, errReturned error) {
	cfg, err := load()
	if err != nil {
		return false, err
	}

	if err := logger.Init(cfg.Log.Level); err != nil {
		return false, err
	}
	defer multierr.AppendInvoke(&errReturned, multierr.Invoke(logger.Sync))

	opts := append([]server.Option{server.WithOutput(r.Out)}, r.Options...)
	srv, err := server.New(cfg, opts...)
	if err != nil {
		return false, err
	}

	if err := srv.Listen(); err != nil {
		return false, err
	}

	if err := srv.Start(ctx); err != nil {
		return true, err
	}
	return true, nil
}
