package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vipspot/internal/browser"
	"vipspot/internal/config"
)

// Title は起動時に表示するサーバー名
const Title = "VIPSpot 2025 Development Server"

// notifyContext は停止シグナルを待つコンテキストを作る（テストで差し替える）
var notifyContext = signal.NotifyContext

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	static     *StaticHandler
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
	launcher   *browser.Launcher
	out        io.Writer
	lg         *zap.Logger
}

// Option は Server の生成時オプション
type Option func(*Server)

// WithOutput は起動バナーとアクセスログの出力先を指定する
func WithOutput(w io.Writer) Option {
	return func(s *Server) {
		s.out = w
	}
}

// WithLauncher はブラウザ起動に使うランチャーを指定する
func WithLauncher(l *browser.Launcher) Option {
	return func(s *Server) {
		s.launcher = l
	}
}

// WithLogger は診断ログのロガーを指定する
func WithLogger(lg *zap.Logger) Option {
	return func(s *Server) {
		s.lg = lg
	}
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		config: cfg,
		out:    os.Stdout,
		lg:     zap.L().Named("server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.launcher == nil {
		s.launcher = browser.NewLauncher(cfg.Browser.Delay.Std(), browser.WithLogger(s.lg.Named("browser")))
	}

	static, err := NewStaticHandler(cfg.Server.Root, s.lg)
	if err != nil {
		return nil, fmt.Errorf("ルートディレクトリの解決に失敗: %w", err)
	}
	s.static = static

	s.engine = s.setupEngine()
	s.httpServer = &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           s.engine,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout.Std(),
		ReadTimeout:       cfg.Server.ReadTimeout.Std(),
		WriteTimeout:      cfg.Server.WriteTimeout.Std(),
		IdleTimeout:       cfg.Server.IdleTimeout.Std(),
		ErrorLog:          zap.NewStdLog(s.lg.Named("http")),
	}

	return s, nil
}

// setupEngine はミドルウェアの順序を組み立てる
// ルートは登録せず、すべてのリクエストを NoRoute の静的ハンドラで受ける
func (s *Server) setupEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(
		requestID(),
		accessLog(s.out),
		commonHeaders(),
		recovery(s.lg),
		preflight(),
	)
	engine.NoRoute(s.static.Handle)

	return engine
}

// Handler はサーバーのHTTPハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Root は配信しているルートディレクトリの絶対パスを返す
func (s *Server) Root() string {
	return s.static.Root()
}

// Listen はリスナーをバインドする
// ポート使用中は ErrAddrInUse と判定できる *BindError を返す
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return newBindError(s.httpServer.Addr, s.config.Server.Port, err)
	}
	s.listener = ln
	return nil
}

// Port は実際に待ち受けているポート番号を返す
// バインド前は設定値を返す
func (s *Server) Port() int {
	if s.listener == nil {
		return s.config.Server.Port
	}
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.config.Server.Port
}

// URL はサーバーのルートURLを返す
func (s *Server) URL() string {
	return config.BrowserURL(s.Port())
}

// Start はサーバーを起動し、シグナルかコンテキストの終了まで待つ
// シグナルやコンテキスト終了による停止は nil を返す
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := notifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 停止が始まったらシグナルの捕捉をやめ、2回目の Ctrl+C で即座に終了できるようにする
	go func() {
		<-ctx.Done()
		stop()
	}()

	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.printBanner()

	if s.config.Browser.Enabled {
		s.launcher.Launch(ctx, s.URL())
	}

	return s.Run(ctx)
}

// Run はバインド済みのリスナーで配信し、ctx の終了でグレースフルシャットダウンする
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("リスナーがバインドされていません")
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		<-ctx.Done()
		return s.Shutdown()
	})

	eg.Go(func() error {
		s.lg.Info("HTTPサーバーを起動しています", zap.String("addr", s.listener.Addr().String()), zap.String("root", s.Root()))
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
		return nil
	})

	return eg.Wait()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
// 期限内に終わらない接続は強制的に閉じ、停止自体は成功として扱う
func (s *Server) Shutdown() error {
	s.lg.Info("サーバーをシャットダウンしています")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout.Std())
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
		}
		// 期限までに終わらなかった接続は打ち切る
		if cerr := s.httpServer.Close(); cerr != nil {
			return fmt.Errorf("接続の強制切断に失敗: %w", cerr)
		}
		s.lg.Warn("期限内に終わらなかった接続を強制的に閉じました",
			zap.Duration("timeout", s.config.Server.ShutdownTimeout.Std()))
		return nil
	}

	s.lg.Info("サーバーが正常にシャットダウンされました")
	return nil
}

// printBanner は起動時の案内を表示する
func (s *Server) printBanner() {
	fmt.Fprintln(s.out, Title)
	fmt.Fprintf(s.out, "Serving at: http://localhost:%d\n", s.Port())
	fmt.Fprintf(s.out, "Directory: %s\n", s.Root())
	fmt.Fprintln(s.out, "Press Ctrl+C to stop the server")
	fmt.Fprintln(s.out, strings.Repeat("-", 50))
}
