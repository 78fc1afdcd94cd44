// Package yunet OpenCVのFaceDetectorYN (YuNet) を使った顔候補抽出
package yunet

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"kaomi/internal/face"
	"kaomi/internal/imaging"
)

// ErrModelNotFound はONNXモデルファイルが見つからないことを示す
var ErrModelNotFound = errors.New("yunet model not found")

// Proposer はYuNetで顔候補を出すface.Proposer
type Proposer struct {
	detector gocv.FaceDetectorYN
	mu       sync.Mutex // 推論を保護
}

// New はモデルファイルからProposerを作成する
func New(modelPath string, width, height int) (*Proposer, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
	}

	// 入力サイズは画像ごとに更新する
	detector := gocv.NewFaceDetectorYNWithParams(
		modelPath,
		"", // ONNXなので設定ファイルは不要
		image.Pt(width, height),
		0.6,
		0.3,
		5000,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &Proposer{detector: detector}, nil
}

// Propose は候補を返す
func (p *Proposer) Propose(ctx context.Context, m *imaging.Matrix, t face.Threshold) ([]face.Box, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rgb, err := gocv.NewMatFromBytes(m.Height, m.Width, gocv.MatTypeCV8UC3, m.Pix)
	if err != nil {
		return nil, fmt.Errorf("Matの作成に失敗: %w", err)
	}
	defer rgb.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(rgb, &bgr, gocv.ColorRGBToBGR)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.detector.SetInputSize(image.Pt(m.Width, m.Height))
	p.detector.SetScoreThreshold(t.Score)
	p.detector.SetNMSThreshold(t.NMS)
	if t.CandidateNumber > 0 {
		p.detector.SetTopK(t.CandidateNumber)
	}

	faces := gocv.NewMat()
	defer faces.Close()
	p.detector.Detect(bgr, &faces)

	// 1行15列: 0-3が矩形 (x, y, w, h)、4-13がランドマーク、14がスコア
	boxes := make([]face.Box, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		boxes = append(boxes, face.Box{
			X:     int(faces.GetFloatAt(r, 0)),
			Y:     int(faces.GetFloatAt(r, 1)),
			W:     int(faces.GetFloatAt(r, 2)),
			H:     int(faces.GetFloatAt(r, 3)),
			Score: faces.GetFloatAt(r, 14),
		})
	}
	return boxes, nil
}

// Close はリソースを解放する
func (p *Proposer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detector.Close()
	return nil
}
