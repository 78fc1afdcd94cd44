package stream

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State はストリームの状態
type State string

const (
	StateIdle      State = "idle"      // 開始前
	StateStreaming State = "streaming" // 配信中
	StateClosed    State = "closed"    // サーバー停止で終了
	StateFailed    State = "failed"    // 書き込み失敗・切断で終了
)

// Session は1接続分の配信状態
type Session struct {
	ID        string
	Remote    string
	StartedAt time.Time

	frames atomic.Uint64
	state  atomic.Value // State
}

func newSession(remote string) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		Remote:    remote,
		StartedAt: time.Now(),
	}
	s.state.Store(StateIdle)
	return s
}

// State は現在の状態を返す
func (s *Session) State() State {
	if s == nil {
		return StateIdle
	}
	return s.state.Load().(State)
}

// FramesSent は送信したフレーム数を返す
func (s *Session) FramesSent() uint64 {
	if s == nil {
		return 0
	}
	return s.frames.Load()
}

func (s *Session) setState(st State) {
	if s != nil {
		s.state.Store(st)
	}
}

func (s *Session) frameSent() {
	if s != nil {
		s.frames.Add(1)
	}
}

// SessionInfo はセッションのスナップショット
type SessionInfo struct {
	ID         string    `json:"id"`
	Remote     string    `json:"remote"`
	StartedAt  time.Time `json:"started_at"`
	FramesSent uint64    `json:"frames_sent"`
	State      State     `json:"state"`
}

// Sessions は接続中のセッションを管理する
type Sessions struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	total    atomic.Uint64
}

// NewSessions は新しいSessionsを作成する
func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]*Session)}
}

// Register はセッションを登録する
func (m *Sessions) Register(remote string) *Session {
	s := newSession(remote)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	m.total.Add(1)
	return s
}

// Unregister はセッションを削除する
func (m *Sessions) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Get は指定されたIDのセッションを取得する
func (m *Sessions) Get(id string) (SessionInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, exists := m.sessions[id]
	if !exists {
		return SessionInfo{}, false
	}
	return s.info(), true
}

// List は接続中のセッション一覧を開始順に返す
func (m *Sessions) List() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].StartedAt.Equal(infos[j].StartedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Count は接続中のセッション数を返す
func (m *Sessions) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Total はこれまでに登録されたセッション数を返す
func (m *Sessions) Total() uint64 {
	return m.total.Load()
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		ID:         s.ID,
		Remote:     s.Remote,
		StartedAt:  s.StartedAt,
		FramesSent: s.FramesSent(),
		State:      s.State(),
	}
}
