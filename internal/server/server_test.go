package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"vipspot/internal/browser"
	"vipspot/internal/config"
)

// syncBuffer はサーバーのゴルーチンとテストから同時に触れるバッファ
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testConfig はテスト用の設定（空きポート、ブラウザ起動なし）を作成する
func testConfig(root string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:              "127.0.0.1",
			Port:              0,
			Root:              root,
			ReadHeaderTimeout: config.Duration(5 * time.Second),
			ReadTimeout:       config.Duration(5 * time.Second),
			WriteTimeout:      config.Duration(5 * time.Second),
			ShutdownTimeout:   config.Duration(2 * time.Second),
		},
		Log: config.LogConfig{Level: "info"},
	}
}

// writeTree は相対パスと内容の組でファイルを作成する
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func newTestServer(t *testing.T, root string) (*Server, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	srv, err := New(testConfig(root), WithOutput(out), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	return srv, out
}

// startServer はサーバーを別ゴルーチンで起動し、停止関数を返す
func startServer(t *testing.T, srv *Server) (baseURL string, stop func() error) {
	t.Helper()
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	var once sync.Once
	var stopErr error
	stop = func() error {
		once.Do(func() {
			cancel()
			select {
			case stopErr = <-errCh:
			case <-time.After(5 * time.Second):
				stopErr = errors.New("サーバーの停止がタイムアウトしました")
			}
		})
		return stopErr
	}
	t.Cleanup(func() { _ = stop() })

	return fmt.Sprintf("http://127.0.0.1:%d", srv.Port()), stop
}

// TestServerStartAndShutdown はサーバーの起動とシャットダウンをテストする
func TestServerStartAndShutdown(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"index.html": "<html></html>"})

	srv, out := newTestServer(t, root)
	baseURL, stop := startServer(t, srv)

	resp, err := http.Get(baseURL + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "<html></html>", string(body))

	require.NoError(t, stop())

	// 停止後は接続できない
	_, err = http.Get(baseURL + "/")
	assert.Error(t, err)

	wantRoot, _ := filepath.EvalSymlinks(root)
	banner := strings.Join([]string{
		"VIPSpot 2025 Development Server",
		fmt.Sprintf("Serving at: http://localhost:%d", srv.Port()),
		"Directory: " + wantRoot,
		"Press Ctrl+C to stop the server",
		strings.Repeat("-", 50),
	}, "\n") + "\n"
	assert.True(t, strings.HasPrefix(out.String(), banner), "起動バナーが一致しません:\n%s", out.String())
}

// TestServerScenario は index.html と app.js を置いたルートでの一連の応答をテストする
func TestServerScenario(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"index.html": "<html></html>",
		"app.js":     "console.log(1)",
	})

	srv, _ := newTestServer(t, root)
	baseURL, _ := startServer(t, srv)

	testCases := []struct {
		name        string
		method      string
		path        string
		status      int
		contentType string
		body        string
	}{
		{"HTML", http.MethodGet, "/index.html", http.StatusOK, "text/html", "<html></html>"},
		{"JavaScript", http.MethodGet, "/app.js", http.StatusOK, "application/javascript", "console.log(1)"},
		{"プリフライト", http.MethodOptions, "/anything", http.StatusOK, "", ""},
		{"存在しないファイル", http.MethodGet, "/missing.txt", http.StatusNotFound, "", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, baseURL+tc.path, nil)
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, tc.status, resp.StatusCode)
			if tc.contentType != "" {
				assert.Equal(t, tc.contentType, resp.Header.Get("Content-Type"))
			}
			if tc.status == http.StatusOK {
				assert.Equal(t, tc.body, string(body))
			}
			assertCommonHeaders(t, resp.Header)
		})
	}
}

// TestServerAddrInUse は使用中ポートへのバインドが ErrAddrInUse になることをテストする
func TestServerAddrInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t.TempDir())
	cfg.Server.Port = ln.Addr().(*net.TCPAddr).Port

	srv, err := New(cfg, WithOutput(io.Discard), WithLogger(zap.NewNop()))
	require.NoError(t, err)

	err = srv.Listen()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAddrInUse)

	var bindErr *BindError
	require.ErrorAs(t, err, &bindErr)
	assert.Equal(t, cfg.Server.Port, bindErr.Port)
	assert.True(t, bindErr.InUse)

	// Start もバインドに失敗したら配信を始めずに返る
	assert.ErrorIs(t, srv.Start(context.Background()), ErrAddrInUse)
}

// TestServerSecondInstance は同じポートで二つ目のサーバーが起動できないことをテストする
func TestServerSecondInstance(t *testing.T) {
	root := t.TempDir()
	first, _ := newTestServer(t, root)
	startServer(t, first)

	cfg := testConfig(root)
	cfg.Server.Port = first.Port()
	second, err := New(cfg, WithOutput(io.Discard), WithLogger(zap.NewNop()))
	require.NoError(t, err)

	assert.ErrorIs(t, second.Listen(), ErrAddrInUse)
}

// holdConnection はヘッダーを送り切らない接続を張り、シャットダウンを待たせる
func holdConnection(t *testing.T, baseURL string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", strings.TrimPrefix(baseURL, "http://"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = io.WriteString(conn, "GET /index.html HTTP/1.1\r\nHost: localhost\r\n")
	require.NoError(t, err)
	// サーバーが接続を受け付けるまで待つ
	time.Sleep(100 * time.Millisecond)
	return conn
}

// TestServerShutdownTimeout は期限内に終わらない接続があっても停止が成功することをテストする
func TestServerShutdownTimeout(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"index.html": "<html></html>"})

	cfg := testConfig(root)
	cfg.Server.ShutdownTimeout = config.Duration(200 * time.Millisecond)

	core, logs := observer.New(zap.WarnLevel)
	srv, err := New(cfg, WithOutput(io.Discard), WithLogger(zap.New(core)))
	require.NoError(t, err)

	baseURL, stop := startServer(t, srv)
	conn := holdConnection(t, baseURL)

	started := time.Now()
	require.NoError(t, stop())
	assert.Less(t, time.Since(started), 2*time.Second)

	// 残っていた接続は閉じられている
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "接続が閉じられていません")
	}

	assert.Equal(t, 1, logs.FilterMessage("期限内に終わらなかった接続を強制的に閉じました").Len())
}

// TestServerReleasesSignalsOnShutdown は停止が始まった時点でシグナルの捕捉を解除することをテストする
func TestServerReleasesSignalsOnShutdown(t *testing.T) {
	released := make(chan struct{})
	orig := notifyContext
	notifyContext = func(parent context.Context, sig ...os.Signal) (context.Context, context.CancelFunc) {
		ctx, stop := orig(parent, sig...)
		var once sync.Once
		return ctx, func() {
			once.Do(func() { close(released) })
			stop()
		}
	}
	t.Cleanup(func() { notifyContext = orig })

	root := t.TempDir()
	cfg := testConfig(root)
	srv, err := New(cfg, WithOutput(io.Discard), WithLogger(zap.NewNop()))
	require.NoError(t, err)

	baseURL, stop := startServer(t, srv)
	holdConnection(t, baseURL)

	stopped := make(chan error, 1)
	go func() { stopped <- stop() }()

	// 接続が残っていてシャットダウン中でも、捕捉は先に解除される
	select {
	case <-released:
	case <-stopped:
		t.Fatal("シグナルの捕捉がシャットダウン完了まで解除されませんでした")
	case <-time.After(time.Second):
		t.Fatal("シグナルの捕捉が解除されませんでした")
	}

	assert.NoError(t, <-stopped)
}

func TestServerRunWithoutListener(t *testing.T) {
	srv, _ := newTestServer(t, t.TempDir())
	assert.Error(t, srv.Run(context.Background()))
}

func TestServerLaunchesBrowser(t *testing.T) {
	root := t.TempDir()
	opened := make(chan string, 1)

	cfg := testConfig(root)
	cfg.Browser = config.BrowserConfig{Enabled: true, Delay: config.Duration(10 * time.Millisecond)}

	srv, err := New(cfg,
		WithOutput(io.Discard),
		WithLogger(zap.NewNop()),
		WithLauncher(newTestLauncher(func(url string) error {
			opened <- url
			return nil
		})),
	)
	require.NoError(t, err)
	startServer(t, srv)

	select {
	case url := <-opened:
		assert.Equal(t, fmt.Sprintf("http://localhost:%d/", srv.Port()), url)
	case <-time.After(3 * time.Second):
		t.Fatal("ブラウザが開かれませんでした")
	}
}

func newTestLauncher(open browser.OpenFunc) *browser.Launcher {
	return browser.NewLauncher(10*time.Millisecond, browser.WithOpenFunc(open), browser.WithLogger(zap.NewNop()))
}
