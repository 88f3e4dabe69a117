// Package server は、開発用の静的ファイルサーバーを提供します。
//
// このパッケージは、ルートディレクトリ配下のファイル配信、
// CORS とセキュリティヘッダーの付与、MIME タイプの補正、
// プリフライトリクエストへの応答を担当します。
//
// 責務:
//   - TCP リスナーのバインドと HTTP サーバーの起動・停止
//   - ルートディレクトリ外へのパス解決の拒否（../ やシンボリックリンク）
//   - 全レスポンスへの共通ヘッダー付与（エラー・OPTIONS を含む）
//   - 拡張子による Content-Type の上書き
//   - 1 リクエスト 1 行のアクセスログ
//
// 仕様:
//   - ルーティングとミドルウェアは gin を使用
//   - ファイル本体の送出は net/http の ServeContent に委譲
//   - GET / HEAD / OPTIONS 以外のメソッドは 501 を返す
//   - シグナル受信でグレースフルシャットダウン
package server
