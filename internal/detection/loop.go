package detection

import (
	"context"
	"log/slog"
	"time"

	"kaomi/internal/camera"
	"kaomi/internal/face"
	"kaomi/internal/imaging"
	"kaomi/internal/log"
)

const (
	// DefaultInterval はサイクル間の最小間隔
	DefaultInterval = 500 * time.Millisecond
	// DefaultBackoff は失敗時の待ち時間
	DefaultBackoff = 500 * time.Millisecond
)

// FrameSource はフレームの取得元
type FrameSource interface {
	Acquire(ctx context.Context) (*camera.Frame, error)
	Release(f *camera.Frame) error
}

// WaitFunc はdだけ待つ。ctxが終わったらそのエラーを返す
type WaitFunc func(ctx context.Context, d time.Duration) error

// Loop は顔検出ループ
type Loop struct {
	source   FrameSource
	decoder  imaging.Decoder
	detector face.Detector
	config   *face.Config
	reporter Reporter
	interval time.Duration
	backoff  time.Duration
	wait     WaitFunc
	logger   *slog.Logger
}

// Option はLoopの生成オプション
type Option func(*Loop)

// WithInterval はサイクル間の最小間隔を設定する
func WithInterval(d time.Duration) Option {
	return func(l *Loop) { l.interval = d }
}

// WithBackoff は失敗時の待ち時間を設定する
func WithBackoff(d time.Duration) Option {
	return func(l *Loop) { l.backoff = d }
}

// WithDecoder はデコーダーを差し替える
func WithDecoder(d imaging.Decoder) Option {
	return func(l *Loop) { l.decoder = d }
}

// WithWait は待機関数を差し替える（テスト用）
func WithWait(w WaitFunc) Option {
	return func(l *Loop) { l.wait = w }
}

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// NewLoop は新しいLoopを作成する
// cfgは作成後に変更しないこと
func NewLoop(source FrameSource, detector face.Detector, cfg *face.Config, reporter Reporter, opts ...Option) *Loop {
	l := &Loop{
		source:   source,
		decoder:  imaging.DecoderFunc(imaging.Decode),
		detector: detector,
		config:   cfg,
		reporter: reporter,
		interval: DefaultInterval,
		backoff:  DefaultBackoff,
		wait:     sleep,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = log.With("component", "detection")
	}
	return l
}

// Run はctxがキャンセルされるまで検出を繰り返す
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("顔検出ループを開始します", "interval", l.interval, "backoff", l.backoff)
	defer l.logger.Info("顔検出ループを終了しました")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := l.source.Acquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Warn("フレームの取得に失敗しました", "error", err, "backoff", l.backoff)
			l.reporter.Skip(StageCapture, err)
			if err := l.wait(ctx, l.backoff); err != nil {
				return err
			}
			continue
		}

		delay := l.interval
		if !l.process(ctx, frame) {
			delay = l.backoff
		}

		if err := l.wait(ctx, delay); err != nil {
			return err
		}
	}
}

// process は取得済みフレーム1枚を処理する
// デコードに失敗した場合はfalseを返す。フレームは必ず返却する
func (l *Loop) process(ctx context.Context, frame *camera.Frame) bool {
	defer func() {
		if err := l.source.Release(frame); err != nil {
			l.logger.Error("フレームの返却に失敗しました", "error", err)
		}
	}()

	m, err := l.decoder.Decode(frame)
	if err != nil {
		l.logger.Warn("フレームのデコードに失敗しました", "error", err, "format", frame.Format, "bytes", frame.Len())
		l.reporter.Skip(StageDecode, err)
		return false
	}
	defer m.Free()

	start := time.Now()
	boxes, err := l.detector.Detect(ctx, m, l.config)
	took := time.Since(start)
	if err != nil {
		if ctx.Err() == nil {
			l.logger.Warn("顔検出に失敗しました", "error", err)
			l.reporter.Skip(StageDetect, err)
		}
		return true
	}

	l.reporter.Report(newResult(boxes, m.Width, m.Height, took, frame.Timestamp))
	return true
}

// sleep はctxを考慮してdだけ待つ
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
