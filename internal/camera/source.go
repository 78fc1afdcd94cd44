package camera

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"kaomi/internal/log"
)

// Source は単一のフレームバッファスロットを調停するフレームソース
//
// スロットは1つだけなので、同時に払い出されるFrameは高々1つ。
// 2つ目のAcquireは先のFrameがReleaseされるかコンテキストが終わるまでブロックする。
// センサーはスロット保持中にのみ読まれるため、遅い消費者のためにフレームが
// キューされることはない（取りこぼしは許容し、鮮度を優先する）。
type Source struct {
	sensor Sensor
	slot   *semaphore.Weighted
	logger *slog.Logger

	mu                  sync.RWMutex
	status              Status
	consecutiveFailures int
	errorThreshold      int
	lastCapture         time.Time

	acquired    atomic.Uint64
	released    atomic.Uint64
	failures    atomic.Uint64
	outstanding atomic.Int64
	closed      atomic.Bool
}

// Option はSourceの生成オプション
type Option func(*Source)

// WithErrorThreshold は連続失敗何回でエラー状態とみなすかを設定する
func WithErrorThreshold(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.errorThreshold = n
		}
	}
}

// WithLogger はロガーを設定する
func WithLogger(l *slog.Logger) Option {
	return func(s *Source) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSource は新しいSourceを作成する
func NewSource(sensor Sensor, opts ...Option) *Source {
	s := &Source{
		sensor:         sensor,
		slot:           semaphore.NewWeighted(1),
		status:         StatusInactive,
		errorThreshold: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.With("component", "camera")
	}
	return s
}

// Start はセンサーを初期化する
func (s *Source) Start(ctx context.Context) error {
	if err := s.sensor.Open(ctx); err != nil {
		s.setStatus(StatusError)
		return fmt.Errorf("カメラの初期化に失敗: %w", err)
	}

	info := s.sensor.Info()
	s.logger.Info("カメラを初期化しました",
		"sensor", info.Type, "device", info.Device,
		"width", info.Width, "height", info.Height, "fps", info.FPS, "format", info.Format)

	s.setStatus(StatusActive)
	return nil
}

// Acquire は次のフレームを取得する
//
// スロットが空くまでブロックし、その後センサーから1フレームを読む。
// センサーの失敗や空・不正なデータはErrCaptureFailedとして返し、Frameは返さない。
func (s *Source) Acquire(ctx context.Context) (*Frame, error) {
	if s.closed.Load() {
		return nil, ErrSourceClosed
	}

	if err := s.slot.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	if s.closed.Load() {
		s.slot.Release(1)
		return nil, ErrSourceClosed
	}

	raw, err := s.sensor.Grab(ctx)
	if err == nil {
		err = checkPayload(raw)
	}
	if err != nil {
		s.slot.Release(1)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.recordFailure(err)
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}

	s.recordSuccess(raw.Timestamp)
	s.acquired.Add(1)
	s.outstanding.Add(1)

	return &Frame{
		Data:      raw.Data,
		Width:     raw.Width,
		Height:    raw.Height,
		Format:    raw.Format,
		Timestamp: raw.Timestamp,
		owner:     s,
	}, nil
}

// Release はフレームをソースに返却し、スロットを再利用可能にする
//
// 二重解放はErrFrameReleased、他のSourceのフレームやnilはErrForeignFrameを返す。
// いずれの場合もスロットの状態は変更しない。
func (s *Source) Release(f *Frame) error {
	if f == nil || f.owner != s {
		return ErrForeignFrame
	}
	if !f.released.CompareAndSwap(false, true) {
		return ErrFrameReleased
	}

	f.Data = nil
	s.outstanding.Add(-1)
	s.released.Add(1)
	s.slot.Release(1)
	return nil
}

// Close はセンサーを解放する
// 払い出し中のフレームがあれば、その返却をctxが終わるまで待つ
func (s *Source) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := s.slot.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("払い出し中フレームの返却待ちに失敗: %w", err)
	}
	defer s.slot.Release(1)

	s.setStatus(StatusInactive)
	if err := s.sensor.Close(); err != nil {
		return fmt.Errorf("カメラのクローズに失敗: %w", err)
	}
	return nil
}

// Info はセンサー情報を返す
func (s *Source) Info() SensorInfo {
	return s.sensor.Info()
}

// Status は現在の状態を返す
func (s *Source) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Stats はソースの統計情報
type Stats struct {
	Status      Status
	Acquired    uint64
	Released    uint64
	Failures    uint64
	Outstanding int64
	LastCapture time.Time
}

// Stats は統計情報のスナップショットを返す
func (s *Source) Stats() Stats {
	s.mu.RLock()
	status, last := s.status, s.lastCapture
	s.mu.RUnlock()

	return Stats{
		Status:      status,
		Acquired:    s.acquired.Load(),
		Released:    s.released.Load(),
		Failures:    s.failures.Load(),
		Outstanding: s.outstanding.Load(),
		LastCapture: last,
	}
}

func (s *Source) setStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *Source) recordFailure(err error) {
	s.failures.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.consecutiveFailures++
	if s.status == StatusActive && s.consecutiveFailures >= s.errorThreshold {
		s.status = StatusError
		s.logger.Error("キャプチャが連続して失敗しています", "failures", s.consecutiveFailures, "error", err)
	}
}

func (s *Source) recordSuccess(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusError {
		s.logger.Info("キャプチャが復旧しました", "failures", s.consecutiveFailures)
		s.status = StatusActive
	}
	s.consecutiveFailures = 0
	s.lastCapture = at
}

var jpegSOI = []byte{0xFF, 0xD8}

// checkPayload はセンサーの出力が空や不正でないかを確認する
func checkPayload(raw RawFrame) error {
	if len(raw.Data) == 0 {
		return fmt.Errorf("空のフレーム")
	}

	switch raw.Format {
	case FormatJPEG:
		if !bytes.HasPrefix(raw.Data, jpegSOI) {
			return fmt.Errorf("JPEGの開始マーカーがありません")
		}
	case FormatRGB888, FormatRGB565, FormatGrayscale, FormatYUV422:
		want := raw.Width * raw.Height * raw.Format.BytesPerPixel()
		if want == 0 || len(raw.Data) != want {
			return fmt.Errorf("フレームサイズが不正: got %d bytes, want %d (%dx%d %s)",
				len(raw.Data), want, raw.Width, raw.Height, raw.Format)
		}
	default:
		return fmt.Errorf("未対応のピクセルフォーマット: %q", raw.Format)
	}

	return nil
}
