// Package server はHTTPサーバーを管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// MJPEGストリームと検出結果の配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - api/openapi.yml に基づくルーティングとリクエスト検証
//   - /stream でのMJPEG配信（接続ごとにstream.Publisherを動かす）
//   - システム状態と顔検出結果のJSON / Server-Sent Events 配信
//
// 仕様:
//   - ginを使用（ルーティングはinternal/generatedのServerInterface経由）
//   - リクエストはkin-openapiで検証
//   - シャットダウン時は配信中のストリームをClosedで終わらせてから停止する
//   - 複数クライアントの同時接続をサポート（フレームは単一スロットを取り合う）
package server
