package face

import (
	"context"
	"fmt"
	"math"

	"kaomi/internal/imaging"
)

// TwoStage はピラミッド上の候補抽出と絞り込みを行う検出器
type TwoStage struct {
	proposer Proposer
}

// NewTwoStage は新しいTwoStageを作成する
func NewTwoStage(p Proposer) *TwoStage {
	return &TwoStage{proposer: p}
}

// Detect は顔を検出する
func (d *TwoStage) Detect(ctx context.Context, m *imaging.Matrix, cfg *Config) ([]Box, error) {
	if m == nil || m.Width <= 0 || m.Height <= 0 || len(m.Pix) != m.Width*m.Height*3 {
		return nil, ErrInvalidInput
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	candidates, err := d.propose(ctx, m, cfg)
	if err != nil {
		return nil, err
	}

	return refine(candidates, cfg.Refine), nil
}

// propose は1段目。各段の候補を元の座標系に戻して集める
func (d *TwoStage) propose(ctx context.Context, m *imaging.Matrix, cfg *Config) ([]Box, error) {
	var all []Box
	scale := 1.0

	for level := 0; level < cfg.PyramidTimes; level++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// 縮小後にMinFaceを下回る段は探しても意味がない
		if level > 0 && (float64(m.Width)*scale < float64(cfg.MinFace) || float64(m.Height)*scale < float64(cfg.MinFace)) {
			break
		}

		img := m
		if level > 0 {
			resized, err := imaging.Resize(m, scale)
			if err != nil {
				break
			}
			img = resized
		}

		boxes, err := d.proposer.Propose(ctx, img, cfg.Proposal)
		if img != m {
			img.Free()
		}
		if err != nil {
			return nil, fmt.Errorf("候補抽出に失敗 (level %d): %w", level, err)
		}

		for _, b := range boxes {
			b = rescale(b, scale)
			b = clip(b, m.Width, m.Height)
			if b.W < cfg.MinFace || b.H < cfg.MinFace || b.Score < cfg.Proposal.Score {
				continue
			}
			all = append(all, b)
		}

		scale *= cfg.PyramidScale
	}

	return capped(NMS(all, cfg.Proposal.NMS), cfg.Proposal.CandidateNumber), nil
}

// refine は2段目
func refine(candidates []Box, t Threshold) []Box {
	kept := make([]Box, 0, len(candidates))
	for _, b := range candidates {
		if b.Score >= t.Score {
			kept = append(kept, b)
		}
	}
	return capped(NMS(kept, t.NMS), t.CandidateNumber)
}

func capped(boxes []Box, n int) []Box {
	if n > 0 && len(boxes) > n {
		return boxes[:n]
	}
	return boxes
}

func rescale(b Box, scale float64) Box {
	if scale == 1 {
		return b
	}
	return Box{
		X:     int(math.Round(float64(b.X) / scale)),
		Y:     int(math.Round(float64(b.Y) / scale)),
		W:     int(math.Round(float64(b.W) / scale)),
		H:     int(math.Round(float64(b.H) / scale)),
		Score: b.Score,
	}
}

// clip は矩形を画像内に収める
func clip(b Box, width, height int) Box {
	x2 := min(b.X+b.W, width)
	y2 := min(b.Y+b.H, height)
	b.X = max(b.X, 0)
	b.Y = max(b.Y, 0)
	b.W = max(x2-b.X, 0)
	b.H = max(y2-b.Y, 0)
	return b
}
