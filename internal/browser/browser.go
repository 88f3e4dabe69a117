// Package browser は起動直後に既定のブラウザでサーバーを開く
//
// 起動は待ち時間のあとに独立したゴルーチンで一度だけ行う。
// ヘッドレス環境などで開けなくてもログに残すだけで、サーバーには影響させない。
package browser

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/browser"
	"go.uber.org/zap"
)

func init() {
	// xdg-open などの出力でコンソールを汚さない
	browser.Stdout = io.Discard
	browser.Stderr = io.Discard
}

// OpenFunc は URL をブラウザで開く関数
type OpenFunc func(url string) error

// Launcher は遅延付きのブラウザ起動を行う
type Launcher struct {
	delay time.Duration
	open  OpenFunc
	lg    *zap.Logger
}

// Option は Launcher の生成時オプション
type Option func(*Launcher)

// WithOpenFunc はブラウザを開く処理を差し替える
func WithOpenFunc(fn OpenFunc) Option {
	return func(l *Launcher) {
		l.open = fn
	}
}

// WithLogger は失敗時のログ出力先を指定する
func WithLogger(lg *zap.Logger) Option {
	return func(l *Launcher) {
		l.lg = lg
	}
}

// NewLauncher は delay 待ってからブラウザを開く Launcher を作成する
func NewLauncher(delay time.Duration, opts ...Option) *Launcher {
	l := &Launcher{
		delay: delay,
		open:  browser.OpenURL,
		lg:    zap.L().Named("browser"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Launch は別ゴルーチンでブラウザを開き、完了時に閉じるチャネルを返す
// 待機中に ctx が終了した場合は開かずに終わる
func (l *Launcher) Launch(ctx context.Context, url string) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		timer := time.NewTimer(l.delay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := l.openSafely(url); err != nil {
			l.lg.Warn("ブラウザを開けませんでした", zap.String("url", url), zap.Error(err))
			return
		}
		l.lg.Debug("ブラウザを開きました", zap.String("url", url))
	}()

	return done
}

// openSafely は open 内のパニックもエラーとして扱う
func (l *Launcher) openSafely(url string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("ブラウザ起動中にパニック: %v", r)
		}
	}()
	return l.open(url)
}
