// Package logger は診断ログ用の zap ロガーを初期化する
//
// アクセスログは server パッケージが標準出力へ書く。
// ここで扱うのは起動・停止・ブラウザ起動失敗・パニック復帰などの診断ログで、標準エラー出力へ書く。
package logger

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	stdlog "log"
	"os"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init はグローバルロガーを指定レベルで初期化する
func Init(level string) error {
	return InitWithWriter(level, os.Stderr)
}

// InitWithWriter は出力先を指定してグローバルロガーを初期化する
func InitWithWriter(level string, w io.Writer) error {
	logLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return fmt.Errorf("無効なログレベル: %w", err)
	}

	encoderCfg := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		NameKey:        "component",
		TimeKey:        "T",
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(w), logLevel)
	zap.ReplaceGlobals(zap.New(core))

	return nil
}

// Sync はバッファされたログを書き出す
// 端末やパイプに対する fsync の失敗は無視する
func Sync() error {
	err := zap.L().Sync()
	if err == nil || isStdioSyncError(err) {
		return nil
	}
	stdlog.Printf("ロガーの同期に失敗: %v", err)
	return err
}

func isStdioSyncError(err error) bool {
	if errors.Is(err, syscall.ENOTTY) || errors.Is(err, syscall.EINVAL) {
		return true
	}
	var pathErr *fs.PathError
	return errors.As(err, &pathErr) && pathErr.Op == "sync"
}
