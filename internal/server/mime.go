package server

import (
	"mime"
	"path"
	"strings"
)

// defaultContentType は拡張子から型を推定できないときの Content-Type
const defaultContentType = "application/octet-stream"

// mimeOverrides はプラットフォームの推定より優先する拡張子ごとの Content-Type
var mimeOverrides = map[string]string{
	".js":    "application/javascript",
	".css":   "text/css",
	".json":  "application/json",
	".woff2": "font/woff2",
	".woff":  "font/woff",
}

// ResolveMIMEType はファイル名から Content-Type を決定する
//
// 上書き表にある拡張子はその値を返す。それ以外はプラットフォームの推定を
// パラメータ（charset など）を除いた形で返し、推定できなければ
// application/octet-stream を返す。
func ResolveMIMEType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return defaultContentType
	}

	if ct, ok := mimeOverrides[ext]; ok {
		return ct
	}

	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return defaultContentType
	}
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
		return mediaType
	}
	return ct
}
