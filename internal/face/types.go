package face

import (
	"context"
	"errors"
	"fmt"

	"kaomi/internal/imaging"
)

// Box は検出された顔の矩形と信頼度
type Box struct {
	X     int     `json:"x"`
	Y     int     `json:"y"`
	W     int     `json:"w"`
	H     int     `json:"h"`
	Score float32 `json:"score"`
}

// Area は矩形の面積を返す
func (b Box) Area() int {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// Threshold は1段分のしきい値
type Threshold struct {
	Score           float32 // これ未満の候補は捨てる
	NMS             float32 // IoUがこれを超える重なりは抑制する
	CandidateNumber int     // 残す候補の上限
}

func (t Threshold) validate(name string) error {
	if t.Score < 0 || t.Score > 1 {
		return fmt.Errorf("%sのスコアしきい値が範囲外です: %v", name, t.Score)
	}
	if t.NMS < 0 || t.NMS > 1 {
		return fmt.Errorf("%sのNMSしきい値が範囲外です: %v", name, t.NMS)
	}
	if t.CandidateNumber <= 0 {
		return fmt.Errorf("%sの候補数は正の値である必要があります: %d", name, t.CandidateNumber)
	}
	return nil
}

// Config は1回の検出に使う設定。作成後は変更しない
type Config struct {
	MinFace      int       // 最小の顔サイズ (px)
	PyramidTimes int       // ピラミッドの段数
	PyramidScale float64   // 段ごとの縮小率
	Proposal     Threshold // 候補抽出段
	Refine       Threshold // 絞り込み段
}

// DefaultConfig は既定の検出設定を返す
// 絞り込み段は候補抽出段と同じ値で、既定では候補をそれ以上減らさない
func DefaultConfig() *Config {
	return &Config{
		MinFace:      40,
		PyramidTimes: 1,
		PyramidScale: 0.707,
		Proposal:     Threshold{Score: 0.6, NMS: 0.7, CandidateNumber: 20},
		Refine:       Threshold{Score: 0.6, NMS: 0.7, CandidateNumber: 20},
	}
}

// Validate は設定値を検証する
func (c *Config) Validate() error {
	if c.MinFace <= 0 {
		return fmt.Errorf("最小顔サイズは正の値である必要があります: %d", c.MinFace)
	}
	if c.PyramidTimes <= 0 {
		return fmt.Errorf("ピラミッド段数は正の値である必要があります: %d", c.PyramidTimes)
	}
	if c.PyramidScale <= 0 || c.PyramidScale > 1 {
		return fmt.Errorf("ピラミッドの縮小率は(0, 1]である必要があります: %v", c.PyramidScale)
	}
	if err := c.Proposal.validate("候補抽出段"); err != nil {
		return err
	}
	return c.Refine.validate("絞り込み段")
}

// ErrInvalidInput は検出できない入力を示す
var ErrInvalidInput = errors.New("invalid detector input")

// Detector は顔検出器
type Detector interface {
	Detect(ctx context.Context, m *imaging.Matrix, cfg *Config) ([]Box, error)
}

// Proposer は1段目の候補抽出器
// 渡された行列の座標系で候補を返す。しきい値の適用は任意
type Proposer interface {
	Propose(ctx context.Context, m *imaging.Matrix, t Threshold) ([]Box, error)
}
