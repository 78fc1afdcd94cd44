package camera

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status はカメラの動作状態を表す
type Status string

const (
	StatusInactive Status = "inactive" // カメラは停止中
	StatusActive   Status = "active"   // カメラは動作中
	StatusError    Status = "error"    // 連続してキャプチャに失敗している
)

// PixelFormat はキャプチャ結果のエンコード形式を表す
type PixelFormat string

const (
	FormatJPEG      PixelFormat = "jpeg"      // JPEG圧縮
	FormatRGB888    PixelFormat = "rgb888"    // 1画素3バイト
	FormatRGB565    PixelFormat = "rgb565"    // 1画素2バイト（ビッグエンディアン）
	FormatGrayscale PixelFormat = "grayscale" // 1画素1バイト
	FormatYUV422    PixelFormat = "yuv422"    // YUYV、2画素4バイト
)

// ParsePixelFormat は設定文字列をPixelFormatに変換する
func ParsePixelFormat(s string) (PixelFormat, error) {
	f := PixelFormat(strings.ToLower(s))
	switch f {
	case FormatJPEG, FormatRGB888, FormatRGB565, FormatGrayscale, FormatYUV422:
		return f, nil
	}
	return "", fmt.Errorf("未対応のピクセルフォーマット: %q", s)
}

// BytesPerPixel は非圧縮フォーマットの1画素あたりのバイト数を返す
// JPEGの場合は0を返す
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case FormatRGB888:
		return 3
	case FormatRGB565, FormatYUV422:
		return 2
	case FormatGrayscale:
		return 1
	}
	return 0
}

var (
	// ErrCaptureFailed はセンサーからのフレーム取得に失敗したことを示す
	ErrCaptureFailed = errors.New("capture failed")
	// ErrFrameReleased は解放済みフレームを再度解放しようとしたことを示す
	ErrFrameReleased = errors.New("frame already released")
	// ErrForeignFrame は別のSourceが払い出したフレーム、またはnilを解放しようとしたことを示す
	ErrForeignFrame = errors.New("frame not held from this source")
	// ErrSourceClosed はクローズ済みのSourceに対する操作を示す
	ErrSourceClosed = errors.New("source closed")
)

// RawFrame はセンサーが1回のキャプチャで返すデータ
type RawFrame struct {
	Data      []byte
	Width     int
	Height    int
	Format    PixelFormat
	Timestamp time.Time
}

// Sensor は物理センサー（またはその代替）を表す外部コラボレーター
//
// Grabは次のフレームが得られるまでブロックする（センサーのフレーム周期が上限）。
// Sourceはスロットを保持している間だけGrabを呼ぶため、実装は並行呼び出しを
// 想定しなくてよい。
type Sensor interface {
	// Open はデバイスを初期化する。失敗は起動時の致命的エラーとして扱われる
	Open(ctx context.Context) error

	// Grab は次のフレームを取得する
	Grab(ctx context.Context) (RawFrame, error)

	// Close はデバイスを解放する
	Close() error

	// Info はセンサーの情報を返す
	Info() SensorInfo
}

// SensorInfo はセンサーの情報を表す
type SensorInfo struct {
	Type   SensorType
	Name   string
	Device string
	Width  int
	Height int
	FPS    int
	Format PixelFormat
}

// Settings はセンサー作成時の設定
type Settings struct {
	Device      string      // デバイスパス
	Width       int         // 画像幅
	Height      int         // 画像高さ
	FPS         int         // フレームレート
	Format      PixelFormat // ピクセルフォーマット
	JPEGQuality int         // JPEG品質
	BufferCount int         // ドライバーのバッファ数
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ScanDevices はシステム内の利用可能なカメラデバイスをスキャンする
	ScanDevices(ctx context.Context) ([]string, error)

	// IsDeviceAvailable は指定されたデバイスが利用可能かチェックする
	IsDeviceAvailable(ctx context.Context, device string) bool
}
