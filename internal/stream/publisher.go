package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"kaomi/internal/camera"
	"kaomi/internal/log"
)

// DefaultFrameInterval はフレーム送信の最小間隔（約10fps）
const DefaultFrameInterval = 100 * time.Millisecond

// FrameSource はフレームの取得元
type FrameSource interface {
	Acquire(ctx context.Context) (*camera.Frame, error)
	Release(f *camera.Frame) error
}

// Publisher はMJPEGストリームを配信する
type Publisher struct {
	source   FrameSource
	boundary string
	interval time.Duration
	logger   *slog.Logger
}

// Option はPublisherの生成オプション
type Option func(*Publisher)

// WithBoundary は境界文字列を設定する
func WithBoundary(b string) Option {
	return func(p *Publisher) {
		if b != "" {
			p.boundary = b
		}
	}
}

// WithFrameInterval はフレーム送信の最小間隔を設定する
func WithFrameInterval(d time.Duration) Option {
	return func(p *Publisher) { p.interval = d }
}

// WithLogger はロガーを設定する
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// NewPublisher は新しいPublisherを作成する
func NewPublisher(source FrameSource, opts ...Option) *Publisher {
	p := &Publisher{
		source:   source,
		boundary: DefaultBoundary,
		interval: DefaultFrameInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = log.With("component", "stream")
	}
	return p
}

// ContentType はレスポンスのContent-Typeを返す
func (p *Publisher) ContentType() string {
	return ContentTypeFor(p.boundary)
}

// Serve はセッションなしでServeSessionを呼ぶ
func (p *Publisher) Serve(ctx context.Context, shutdown <-chan struct{}, w io.Writer, flush func()) (State, error) {
	return p.ServeSession(ctx, nil, shutdown, w, flush)
}

// ServeSession はストリームが終わるまでフレームを書き続ける
//
// ctxはクライアントの接続を表し、終了したら切断としてFailedを返す。
// shutdownが閉じられたらClosedを返す。書き込みに失敗した場合は
// 保持中のフレームを返却してからFailedを返す。
func (p *Publisher) ServeSession(ctx context.Context, sess *Session, shutdown <-chan struct{}, w io.Writer, flush func()) (State, error) {
	// shutdownでもAcquireと待機を中断できるようにする
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-shutdown:
			cancel()
		case <-runCtx.Done():
		}
	}()

	logger := p.logger
	if sess != nil {
		logger = logger.With("session", sess.ID, "remote", sess.Remote)
	}

	finish := func(st State, err error) (State, error) {
		sess.setState(st)
		logger.Info("ストリームを終了しました", "state", st, "frames", sess.FramesSent(), "error", err)
		return st, err
	}

	sess.setState(StateStreaming)
	logger.Info("ストリームを開始しました")

	for {
		if closed(shutdown) {
			return finish(StateClosed, nil)
		}
		if err := ctx.Err(); err != nil {
			return finish(StateFailed, err)
		}

		frame, err := p.source.Acquire(runCtx)
		if err != nil {
			if closed(shutdown) {
				return finish(StateClosed, nil)
			}
			if ctx.Err() != nil {
				return finish(StateFailed, ctx.Err())
			}
			if errors.Is(err, camera.ErrSourceClosed) {
				return finish(StateClosed, nil)
			}
			// キャプチャの失敗は一時的なものとして次の周期で再試行する
			logger.Debug("フレームの取得に失敗しました", "error", err)
			p.pause(runCtx)
			continue
		}

		if frame.Format != camera.FormatJPEG {
			p.release(logger, frame)
			logger.Debug("JPEG以外のフレームをスキップしました", "format", frame.Format)
			p.pause(runCtx)
			continue
		}

		if err := WritePart(w, p.boundary, frame.Data); err != nil {
			p.release(logger, frame)
			return finish(StateFailed, err)
		}
		if flush != nil {
			flush()
		}
		p.release(logger, frame)
		sess.frameSent()

		p.pause(runCtx)
	}
}

func (p *Publisher) release(logger *slog.Logger, f *camera.Frame) {
	if err := p.source.Release(f); err != nil {
		logger.Error("フレームの返却に失敗しました", "error", err)
	}
}

// pause は送信間隔だけ待つ。ctxが終わったら即座に戻る
func (p *Publisher) pause(ctx context.Context) {
	if p.interval <= 0 {
		return
	}
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func closed(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
