package detection

import (
	"log/slog"
	"sync"
	"time"

	"kaomi/internal/log"
)

// Totals は検出の累計
type Totals struct {
	Passes      uint64    `json:"passes"`
	Faces       uint64    `json:"faces"`
	Skipped     uint64    `json:"skipped"`
	LastFaces   int       `json:"last_faces"`
	LastPass    time.Time `json:"last_pass"`
	LastSkipped Stage     `json:"last_skipped,omitempty"`
}

// Recorder は検出結果をログに出し、直近の履歴を保持するReporter
//
// 購読者には結果をチャンネルで配る。購読者が詰まっている場合は
// 古い結果を捨てて最新を入れるため、ループ側がブロックすることはない。
type Recorder struct {
	logger *slog.Logger

	mu      sync.RWMutex
	history []Result
	next    int
	full    bool
	totals  Totals
	subs    map[chan Result]struct{}
}

// NewRecorder は直近size件を保持するRecorderを作成する
func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = 1
	}
	return &Recorder{
		logger:  log.With("component", "detection"),
		history: make([]Result, size),
		subs:    make(map[chan Result]struct{}),
	}
}

// Report は結果を記録する
func (r *Recorder) Report(res Result) {
	if res.Faces == 0 {
		r.logger.Info("顔は検出されませんでした", "took", res.Took)
	} else {
		r.logger.Info("顔を検出しました", "faces", res.Faces, "took", res.Took, "id", res.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.history[r.next] = res
	r.next = (r.next + 1) % len(r.history)
	if r.next == 0 {
		r.full = true
	}

	r.totals.Passes++
	r.totals.Faces += uint64(res.Faces)
	r.totals.LastFaces = res.Faces
	r.totals.LastPass = res.At

	for ch := range r.subs {
		offer(ch, res)
	}
}

// Skip はスキップを記録する
func (r *Recorder) Skip(stage Stage, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals.Skipped++
	r.totals.LastSkipped = stage
}

// Latest は最新の結果を返す
func (r *Recorder) Latest() (Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full && r.next == 0 {
		return Result{}, false
	}
	i := (r.next - 1 + len(r.history)) % len(r.history)
	return r.history[i], true
}

// Recent は新しい順に最大limit件の結果を返す
func (r *Recorder) Recent(limit int) []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.next
	if r.full {
		n = len(r.history)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Result, 0, limit)
	for k := 1; k <= limit; k++ {
		out = append(out, r.history[(r.next-k+len(r.history))%len(r.history)])
	}
	return out
}

// Totals は累計を返す
func (r *Recorder) Totals() Totals {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totals
}

// Subscribe は結果を受け取るチャンネルと購読解除関数を返す
func (r *Recorder) Subscribe(buffer int) (<-chan Result, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Result, buffer)

	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, ch)
			r.mu.Unlock()
			close(ch)
		})
	}
}

// offer はチャンネルが詰まっていれば古い結果を捨てて最新を入れる
func offer(ch chan Result, res Result) {
	select {
	case ch <- res:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- res:
	default:
	}
}
