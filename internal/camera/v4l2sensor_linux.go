//go:build linux

package camera

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
)

// V4L2Sensor はgo4vlでV4L2デバイスを直接扱うセンサー
// ドライバーのバッファ数は設定値（1）に固定する
type V4L2Sensor struct {
	settings Settings

	mu      sync.Mutex
	dev     *device.Device
	name    string
	cancel  context.CancelFunc
	latest  chan []byte
	done    chan struct{}
	stopped chan struct{}
}

// NewV4L2Sensor は新しいV4L2Sensorを作成する
func NewV4L2Sensor(settings Settings) *V4L2Sensor {
	return &V4L2Sensor{settings: settings}
}

// NewV4L2SensorFromConfig は設定からV4L2Sensorを作成する
func NewV4L2SensorFromConfig(settings Settings) (Sensor, error) {
	if settings.Device == "" {
		return nil, fmt.Errorf("V4L2センサーの作成にはデバイスパスが必要です")
	}
	if _, err := fourCC(settings.Format); err != nil {
		return nil, err
	}
	return NewV4L2Sensor(settings), nil
}

// fourCC はピクセルフォーマットをV4L2のFourCCに変換する
func fourCC(f PixelFormat) (v4l2.FourCCType, error) {
	switch f {
	case FormatJPEG:
		return v4l2.PixelFmtMJPEG, nil
	case FormatRGB888:
		return v4l2.PixelFmtRGB24, nil
	case FormatGrayscale:
		return v4l2.PixelFmtGrey, nil
	case FormatYUV422:
		return v4l2.PixelFmtYUYV, nil
	}
	return 0, fmt.Errorf("V4L2センサーは %s に対応していません", f)
}

// Open はデバイスを開いてストリーミングを開始する
func (s *V4L2Sensor) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev != nil {
		return nil // 既に開始済み
	}

	pixFmt, err := fourCC(s.settings.Format)
	if err != nil {
		return err
	}

	bufCount := s.settings.BufferCount
	if bufCount <= 0 {
		bufCount = 1
	}

	dev, err := device.Open(s.settings.Device,
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: pixFmt,
			Width:       uint32(s.settings.Width),
			Height:      uint32(s.settings.Height),
			Field:       v4l2.FieldNone,
		}),
		device.WithFPS(uint32(s.settings.FPS)),
		device.WithBufferSize(uint32(bufCount)),
	)
	if err != nil {
		return fmt.Errorf("デバイス %s のオープンに失敗: %w", s.settings.Device, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	if err := dev.Start(runCtx); err != nil {
		cancel()
		_ = dev.Close()
		return fmt.Errorf("ストリーミングの開始に失敗: %w", err)
	}

	s.dev = dev
	s.name = dev.Name()
	s.cancel = cancel
	s.latest = make(chan []byte, 1)
	s.done = make(chan struct{})
	s.stopped = make(chan struct{})

	go pump(dev.GetOutput(), s.latest, s.done, s.stopped)

	// 最初のフレームが届くまで待つ
	select {
	case frame := <-s.latest:
		offer(s.latest, frame)
		return nil
	case <-s.done:
		s.stopLocked()
		return fmt.Errorf("デバイス %s の出力が終了しました", s.settings.Device)
	case <-ctx.Done():
		s.stopLocked()
		return ctx.Err()
	case <-time.After(10 * time.Second):
		s.stopLocked()
		return fmt.Errorf("最初のフレームの取得がタイムアウトしました")
	}
}

// pump はドライバーの出力をメールボックスへ移す
// 出力チャンネルが閉じたらdoneを閉じる
func pump(output <-chan []byte, latest chan []byte, done, stopped chan struct{}) {
	defer close(stopped)
	for frame := range output {
		if len(frame) == 0 {
			continue
		}
		// ドライバーのバッファは再利用されるのでコピーしてから渡す
		owned := make([]byte, len(frame))
		copy(owned, frame)
		offer(latest, owned)
	}
	close(done)
}

// Grab は次のフレームを取得する
func (s *V4L2Sensor) Grab(ctx context.Context) (RawFrame, error) {
	s.mu.Lock()
	latest, done := s.latest, s.done
	s.mu.Unlock()

	if latest == nil {
		return RawFrame{}, fmt.Errorf("センサーが開かれていません")
	}

	select {
	case frame := <-latest:
		return RawFrame{
			Data:      frame,
			Width:     s.settings.Width,
			Height:    s.settings.Height,
			Format:    s.settings.Format,
			Timestamp: time.Now(),
		}, nil
	case <-done:
		return RawFrame{}, fmt.Errorf("デバイス %s の出力が終了しました", s.settings.Device)
	case <-ctx.Done():
		return RawFrame{}, ctx.Err()
	}
}

// Close はストリーミングを停止してデバイスを閉じる
func (s *V4L2Sensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

func (s *V4L2Sensor) stopLocked() error {
	if s.dev == nil {
		return nil
	}
	// コンテキストを止めるとgo4vlがストリーミングを停止して出力チャンネルを閉じる
	s.cancel()
	<-s.stopped
	closeErr := s.dev.Close()

	s.dev = nil
	s.latest = nil
	s.done = nil

	if closeErr != nil {
		return fmt.Errorf("デバイスのクローズに失敗: %w", closeErr)
	}
	return nil
}

// Info はセンサー情報を返す
func (s *V4L2Sensor) Info() SensorInfo {
	s.mu.Lock()
	name := s.name
	s.mu.Unlock()
	if name == "" {
		name = fmt.Sprintf("V4L2 (%s)", s.settings.Device)
	}

	return SensorInfo{
		Type:   SensorTypeV4L2,
		Name:   name,
		Device: s.settings.Device,
		Width:  s.settings.Width,
		Height: s.settings.Height,
		FPS:    s.settings.FPS,
		Format: s.settings.Format,
	}
}
