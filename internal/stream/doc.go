// Package stream MJPEGのmultipartストリーム配信を担う
//
// 接続ごとにPublisherがフレームを1枚ずつ取得し、
// multipart/x-mixed-replace のパートとして書き出して返却する。
//
// 状態遷移: Idle → Streaming → (Closed | Failed)
//   - 書き込み失敗やクライアント切断でFailed
//   - サーバー停止の通知でClosed
package stream
