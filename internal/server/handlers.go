package server

import (
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const indexFile = "index.html"

// errOutsideRoot はルートディレクトリ外への解決を表す
var errOutsideRoot = errors.New("ルートディレクトリ外へのアクセス")

// StaticHandler はルートディレクトリ配下のファイルを配信する
type StaticHandler struct {
	root    string       // シンボリックリンク解決済みの絶対パス
	listing http.Handler // インデックスのないディレクトリの一覧表示
	lg      *zap.Logger
}

// NewStaticHandler は root を配信する StaticHandler を作成する
func NewStaticHandler(root string, lg *zap.Logger) (*StaticHandler, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, err
	}

	return &StaticHandler{
		root:    resolved,
		listing: http.FileServer(listingFS{http.Dir(resolved)}),
		lg:      lg,
	}, nil
}

// Root は配信しているルートディレクトリを返す
func (h *StaticHandler) Root() string {
	return h.root
}

// Handle は GET / HEAD を静的ファイルとして処理し、それ以外は 501 を返す
func (h *StaticHandler) Handle(c *gin.Context) {
	switch c.Request.Method {
	case http.MethodGet, http.MethodHead:
		h.serve(c)
	default:
		writeStatus(c, http.StatusNotImplemented)
	}
}

func (h *StaticHandler) serve(c *gin.Context) {
	urlPath := c.Request.URL.Path
	if !strings.HasPrefix(urlPath, "/") {
		urlPath = "/" + urlPath
	}

	if containsDotDot(urlPath) {
		h.reject(c, urlPath, errOutsideRoot)
		return
	}

	name := path.Clean(urlPath)
	full, info, err := h.resolve(name)
	if err != nil {
		h.reject(c, urlPath, err)
		return
	}

	if info.IsDir() {
		h.serveDir(c, urlPath, name, full)
		return
	}

	// ファイルに末尾スラッシュを付けたパスは存在しない扱い
	if strings.HasSuffix(urlPath, "/") {
		writeStatus(c, http.StatusNotFound)
		return
	}

	h.serveFile(c, name, full, info)
}

func (h *StaticHandler) serveDir(c *gin.Context, urlPath, name, full string) {
	if !strings.HasSuffix(urlPath, "/") {
		target := url.URL{Path: strings.TrimSuffix(name, "/") + "/", RawQuery: c.Request.URL.RawQuery}
		c.Redirect(http.StatusMovedPermanently, target.String())
		c.Abort()
		return
	}

	indexName := path.Join(name, indexFile)
	indexFull, info, err := h.resolve(indexName)
	switch {
	case err == nil && !info.IsDir():
		h.serveFile(c, indexName, indexFull, info)
		return
	case err != nil && !errors.Is(err, fs.ErrNotExist) && !isNotDir(err):
		// ルート外を指す index.html は一覧にも切り替えず拒否する
		h.reject(c, indexName, err)
		return
	}

	h.listing.ServeHTTP(c.Writer, c.Request)
}

// listingFS はディレクトリ一覧の表示だけに使うファイルシステム
// index.html とディレクトリ以外は存在しないものとして扱い、一覧経由でファイルを返さない
type listingFS struct {
	dir http.FileSystem
}

func (l listingFS) Open(name string) (http.File, error) {
	if path.Base(name) == indexFile {
		return nil, fs.ErrNotExist
	}

	f, err := l.dir.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil || !info.IsDir() {
		f.Close()
		return nil, fs.ErrNotExist
	}
	return f, nil
}

func (h *StaticHandler) serveFile(c *gin.Context, name, full string, info fs.FileInfo) {
	f, err := os.Open(full)
	if err != nil {
		h.reject(c, name, err)
		return
	}
	defer f.Close()

	header := c.Writer.Header()
	header.Set("Content-Type", ResolveMIMEType(name))
	if strings.EqualFold(path.Ext(name), ".html") {
		header.Set("Cache-Control", "no-store")
	}

	http.ServeContent(c.Writer, c.Request, path.Base(name), info.ModTime(), f)
}

// resolve はURLパスをルート配下の実パスへ解決する
// シンボリックリンクを辿った先がルート外なら errOutsideRoot を返す
func (h *StaticHandler) resolve(name string) (string, fs.FileInfo, error) {
	full := filepath.Join(h.root, filepath.FromSlash(name))

	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", nil, err
	}
	if !within(h.root, resolved) {
		return "", nil, errOutsideRoot
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", nil, err
	}
	return resolved, info, nil
}

// reject はエラーの種類に応じて 403 / 404 / 500 を返す
func (h *StaticHandler) reject(c *gin.Context, urlPath string, err error) {
	switch {
	case errors.Is(err, errOutsideRoot):
		h.lg.Warn("ルート外へのアクセスを拒否しました",
			zap.String(ctxKeyRequestID, c.GetString(ctxKeyRequestID)),
			zap.String("path", urlPath),
		)
		writeStatus(c, http.StatusForbidden)
	case errors.Is(err, fs.ErrNotExist), isNotDir(err):
		writeStatus(c, http.StatusNotFound)
	case errors.Is(err, fs.ErrPermission):
		writeStatus(c, http.StatusForbidden)
	default:
		h.lg.Error("ファイルの解決に失敗しました",
			zap.String(ctxKeyRequestID, c.GetString(ctxKeyRequestID)),
			zap.String("path", urlPath),
			zap.Error(err),
		)
		writeStatus(c, http.StatusInternalServerError)
	}
}

// within は target が root 自身または root 配下にあるかを返す
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// containsDotDot はパス要素に ".." が含まれるかを返す
// Windows の区切り文字も要素の区切りとして扱う
func containsDotDot(p string) bool {
	if !strings.Contains(p, "..") {
		return false
	}
	for _, elem := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		if elem == ".." {
			return true
		}
	}
	return false
}
