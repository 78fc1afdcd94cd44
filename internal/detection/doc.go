// Package detection バックグラウンドで顔検出を繰り返すループを提供する
//
// # 仕様
//   - 1サイクル: フレーム取得 → デコード → 検出 → 結果の報告 → 返却
//   - 取得に失敗したらバックオフ (既定500ms) して再試行する
//   - デコードに失敗したらフレームを返却し、バックオフしてから次のサイクルへ
//   - 検出器のエラーはスキップとして報告し、バックオフはしない
//   - フレームと画素行列はどの経路でも必ず解放する
//   - サイクル間は最低でも既定500ms空ける
//   - コンテキストがキャンセルされたら終了する
package detection
