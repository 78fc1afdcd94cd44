package detection

import (
	"time"

	"github.com/google/uuid"

	"kaomi/internal/face"
)

// Result は1回の検出結果
type Result struct {
	ID         uuid.UUID     `json:"id"`
	Faces      int           `json:"faces"`
	Boxes      []face.Box    `json:"boxes"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	Took       time.Duration `json:"took"`
	CapturedAt time.Time     `json:"captured_at"`
	At         time.Time     `json:"at"`
}

// newResult は結果を作成する
func newResult(boxes []face.Box, width, height int, took time.Duration, capturedAt time.Time) Result {
	if boxes == nil {
		boxes = []face.Box{}
	}
	return Result{
		ID:         uuid.New(),
		Faces:      len(boxes),
		Boxes:      boxes,
		Width:      width,
		Height:     height,
		Took:       took,
		CapturedAt: capturedAt,
		At:         time.Now(),
	}
}

// Stage は検出をスキップした段階
type Stage string

const (
	StageCapture Stage = "capture" // フレーム取得
	StageDecode  Stage = "decode"  // デコード
	StageDetect  Stage = "detect"  // 検出
)

// Reporter は検出ループの結果の報告先
type Reporter interface {
	// Report は1回の検出結果を受け取る。顔が0個でも呼ばれる
	Report(r Result)
	// Skip はサイクルのスキップを受け取る
	Skip(stage Stage, err error)
}
