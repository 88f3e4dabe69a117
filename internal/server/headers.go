package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	headerRequestID = "X-Request-Id"
	ctxKeyRequestID = "request_id"

	accessLogTimeFormat = "2006-01-02 15:04:05"
)

// corsHeaders はプリフライトを含む全レスポンスに付与する CORS ヘッダー
var corsHeaders = [][2]string{
	{"Access-Control-Allow-Origin", "*"},
	{"Access-Control-Allow-Methods", "GET, POST, OPTIONS"},
	{"Access-Control-Allow-Headers", "Content-Type"},
}

// securityHeaders は全レスポンスに付与するセキュリティヘッダー
var securityHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "1; mode=block"},
}

// ApplyCommonHeaders は CORS とセキュリティヘッダーを設定する
func ApplyCommonHeaders(h http.Header) {
	for _, kv := range corsHeaders {
		h.Set(kv[0], kv[1])
	}
	for _, kv := range securityHeaders {
		h.Set(kv[0], kv[1])
	}
}

// commonHeaders は後続のハンドラより先に共通ヘッダーを積んでおく
// エラー応答やパニック復帰時の 500 にも必ず載る
func commonHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		ApplyCommonHeaders(c.Writer.Header())
		c.Next()
	}
}

// requestID はリクエストごとに ID を払い出し、診断ログとレスポンスに載せる
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set(ctxKeyRequestID, id)
		c.Header(headerRequestID, id)
		c.Next()
	}
}

// accessLog は 1 リクエスト 1 行のアクセスログを書く
//
//	[2025-01-02 15:04:05] "GET /index.html HTTP/1.1" 200 13
func accessLog(out io.Writer) gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: formatAccessLog,
		Output:    out,
	})
}

func formatAccessLog(p gin.LogFormatterParams) string {
	uri, proto := p.Path, "HTTP/1.1"
	if p.Request != nil {
		uri = p.Request.RequestURI
		if uri == "" {
			uri = p.Request.URL.RequestURI()
		}
		proto = p.Request.Proto
	}

	size := "-"
	if p.BodySize > 0 {
		size = strconv.Itoa(p.BodySize)
	}

	return fmt.Sprintf("[%s] \"%s %s %s\" %d %s\n",
		p.TimeStamp.Format(accessLogTimeFormat),
		p.Method, uri, proto,
		p.StatusCode, size,
	)
}

// recovery はハンドラ内のパニックをそのリクエストだけに閉じ込め、500 を返す
func recovery(lg *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, err any) {
		lg.Error("リクエスト処理中にパニックが発生しました",
			zap.String(ctxKeyRequestID, c.GetString(ctxKeyRequestID)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", err),
		)
		writeStatus(c, http.StatusInternalServerError)
	})
}

// preflight は OPTIONS に対してファイルシステムに触れず 200 の空応答を返す
func preflight() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}
		c.Status(http.StatusOK)
		c.Abort()
	}
}

// writeStatus は共通ヘッダーを保ったまま、ステータスとその説明文だけの応答を書く
func writeStatus(c *gin.Context, code int) {
	h := c.Writer.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Del("Cache-Control")
	c.String(code, "%d %s\n", code, http.StatusText(code))
	c.Abort()
}
