// Package camera カメラセンサーとフレームスロットの調停を担う
//
// # 責務
// - センサー（V4L2 / ffmpeg / テストパターン）の初期化と読み取り
// - 単一フレームスロットの排他的な払い出し（Acquire / Release）
// - キャプチャ失敗の検出と状態管理
// - V4L2デバイスの自動検出
//
// # 仕様
//   - Source: スロットは1つ。払い出し中のFrameは常に高々1つで、
//     2つ目のAcquireは返却かコンテキスト終了までブロックする
//   - センサーはスロット保持中にのみ読まれる。遅い消費者のためにフレームを溜めない
//   - 二重解放・他ソースのフレームの解放はエラーとして返す
//   - Sensor: V4L2Sensor（go4vl）、FFmpegSensor（ffmpeg image2pipe）、PatternSensor（合成画像）
//   - Discovery: /dev/video* の検出とアクセス確認
//
// # 前提要件
//   - ffmpeg: ffmpegセンサー使用時のみ
//     Ubuntu/Debian: sudo apt install ffmpeg
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
