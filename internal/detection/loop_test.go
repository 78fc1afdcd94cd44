package detection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kaomi/internal/camera"
	"kaomi/internal/face"
	"kaomi/internal/imaging"
)

// step はfakeSourceの1回分のAcquireの振る舞い
type step struct {
	err    error
	format camera.PixelFormat
}

// fakeSource はAcquire/Releaseの回数を数えるテスト用フレームソース
type fakeSource struct {
	mu       sync.Mutex
	steps    []step
	acquired int
	released int
	live     map[*camera.Frame]bool
	doubled  int
}

func newFakeSource(steps ...step) *fakeSource {
	return &fakeSource{steps: steps, live: make(map[*camera.Frame]bool)}
}

func (s *fakeSource) Acquire(ctx context.Context) (*camera.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := step{format: camera.FormatRGB888}
	if len(s.steps) > 0 {
		st, s.steps = s.steps[0], s.steps[1:]
	}
	if st.err != nil {
		return nil, st.err
	}
	if len(s.live) > 0 {
		panic("2つ目のフレームが払い出された")
	}

	s.acquired++
	f := &camera.Frame{Data: []byte{1, 2, 3, 4, 5, 6}, Width: 2, Height: 1, Format: st.format, Timestamp: time.Now()}
	s.live[f] = true
	return f, nil
}

func (s *fakeSource) Release(f *camera.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.live[f] {
		s.doubled++
		return camera.ErrFrameReleased
	}
	delete(s.live, f)
	s.released++
	return nil
}

// fakeDetector は呼び出しごとに決められた結果を返す
type fakeDetector struct {
	results [][]face.Box
	errs    []error
	calls   int
}

func (d *fakeDetector) Detect(_ context.Context, _ *imaging.Matrix, _ *face.Config) ([]face.Box, error) {
	i := d.calls
	d.calls++
	if i < len(d.errs) && d.errs[i] != nil {
		return nil, d.errs[i]
	}
	if i < len(d.results) {
		return d.results[i], nil
	}
	return nil, nil
}

// memReporter は報告を記録する
type memReporter struct {
	results []Result
	skips   []Stage
}

func (r *memReporter) Report(res Result)        { r.results = append(r.results, res) }
func (r *memReporter) Skip(stage Stage, _ error) { r.skips = append(r.skips, stage) }

// recordWaits は待ち時間を記録し、n回目でキャンセルする
func recordWaits(cancel context.CancelFunc, n int) (*[]time.Duration, WaitFunc) {
	var waits []time.Duration
	return &waits, func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) >= n {
			cancel()
		}
		return ctx.Err()
	}
}

func TestLoop_CaptureFaultRecovery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	faulty := errors.New("sensor timeout")
	source := newFakeSource(step{err: faulty}, step{err: faulty})
	detector := &fakeDetector{results: [][]face.Box{{{X: 1, Y: 1, W: 40, H: 40, Score: 0.9}}}}
	reporter := &memReporter{}
	waits, wait := recordWaits(cancel, 3)

	loop := NewLoop(source, detector, face.DefaultConfig(), reporter, WithWait(wait))
	err := loop.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	// 2回バックオフしてから3回目で成功し、通常の間隔で待つ
	assert.Equal(t, []time.Duration{DefaultBackoff, DefaultBackoff, DefaultInterval}, *waits)
	assert.Equal(t, []Stage{StageCapture, StageCapture}, reporter.skips)
	require.Len(t, reporter.results, 1)
	assert.Equal(t, 1, reporter.results[0].Faces)
	assert.Equal(t, 1, source.acquired)
	assert.Equal(t, 1, source.released)
}

func TestLoop_ReleaseOnEveryPath(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := newFakeSource(
		step{format: "bayer"},             // デコード失敗
		step{format: camera.FormatRGB888}, // 検出失敗
		step{format: camera.FormatRGB888}, // 成功
	)
	detector := &fakeDetector{errs: []error{errors.New("model error")}}
	reporter := &memReporter{}
	waits, wait := recordWaits(cancel, 3)

	loop := NewLoop(source, detector, face.DefaultConfig(), reporter, WithWait(wait))
	_ = loop.Run(ctx)

	assert.Equal(t, 3, source.acquired)
	assert.Equal(t, source.acquired, source.released)
	assert.Zero(t, source.doubled)
	assert.Empty(t, source.live)

	assert.Equal(t, []Stage{StageDecode, StageDetect}, reporter.skips)
	// デコード失敗だけがバックオフになる
	assert.Equal(t, []time.Duration{DefaultBackoff, DefaultInterval, DefaultInterval}, *waits)
}

func TestLoop_ReportsZeroFaces(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := newFakeSource()
	reporter := &memReporter{}
	_, wait := recordWaits(cancel, 1)

	loop := NewLoop(source, &fakeDetector{}, face.DefaultConfig(), reporter, WithWait(wait))
	_ = loop.Run(ctx)

	require.Len(t, reporter.results, 1)
	res := reporter.results[0]
	assert.Equal(t, 0, res.Faces)
	assert.NotNil(t, res.Boxes)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, 2, res.Width)
	assert.Equal(t, 1, res.Height)
}

func TestLoop_CancelWhileBlocked(t *testing.T) {
	sensor := camera.NewPatternSensor(camera.Settings{Width: 64, Height: 48, FPS: 100, Format: camera.FormatJPEG})
	source := camera.NewSource(sensor)
	require.NoError(t, source.Start(context.Background()))

	// ストリーム側がスロットを握っているのでAcquireはブロックする
	held, err := source.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(source, face.NewTwoStage(face.NewSkinProposer()), face.DefaultConfig(), NewRecorder(4))

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	require.NoError(t, source.Release(held))
}

func TestLoop_WithPatternSource(t *testing.T) {
	sensor := camera.NewPatternSensor(camera.Settings{Width: 64, Height: 48, FPS: 100, Format: camera.FormatJPEG})
	source := camera.NewSource(sensor)
	require.NoError(t, source.Start(context.Background()))

	recorder := NewRecorder(8)
	loop := NewLoop(source, face.NewTwoStage(face.NewSkinProposer()), face.DefaultConfig(), recorder,
		WithInterval(5*time.Millisecond), WithBackoff(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := loop.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	stats := source.Stats()
	assert.Equal(t, stats.Acquired, stats.Released)
	assert.Zero(t, stats.Outstanding)
	assert.Positive(t, recorder.Totals().Passes)
	assert.Zero(t, recorder.Totals().Skipped)
}
