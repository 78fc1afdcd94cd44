package face

import (
	"context"

	"kaomi/internal/imaging"
)

// SkinProposer は肌色領域から顔候補を出すProposer
//
// 画像をセルに区切って肌色のセルを連結し、その外接矩形を候補とする。
// スコアは外接矩形内の肌色セルの割合と縦横比から決める。
// モデルファイルを使わないため、YuNetが使えない環境での代替として使う。
type SkinProposer struct {
	Cell int // セルの一辺 (px)
}

// NewSkinProposer は新しいSkinProposerを作成する
func NewSkinProposer() *SkinProposer {
	return &SkinProposer{Cell: 4}
}

// Propose は候補を返す
func (p *SkinProposer) Propose(ctx context.Context, m *imaging.Matrix, t Threshold) ([]Box, error) {
	cell := p.Cell
	if cell <= 0 {
		cell = 4
	}
	cols, rows := m.Width/cell, m.Height/cell
	if cols == 0 || rows == 0 {
		return nil, nil
	}

	mask := make([]bool, cols*rows)
	for cy := 0; cy < rows; cy++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for cx := 0; cx < cols; cx++ {
			mask[cy*cols+cx] = skinCell(m, cx*cell, cy*cell, cell)
		}
	}

	var boxes []Box
	visited := make([]bool, len(mask))
	queue := make([]int, 0, 64)

	for i := range mask {
		if !mask[i] || visited[i] {
			continue
		}

		// 4近傍で連結成分をたどる
		minX, minY, maxX, maxY := cols, rows, -1, -1
		count := 0
		queue = append(queue[:0], i)
		visited[i] = true
		for len(queue) > 0 {
			c := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := c%cols, c/cols
			count++
			minX, minY = min(minX, x), min(minY, y)
			maxX, maxY = max(maxX, x), max(maxY, y)

			for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				if n[0] < 0 || n[0] >= cols || n[1] < 0 || n[1] >= rows {
					continue
				}
				j := n[1]*cols + n[0]
				if mask[j] && !visited[j] {
					visited[j] = true
					queue = append(queue, j)
				}
			}
		}

		w, h := maxX-minX+1, maxY-minY+1
		if count < 4 {
			continue
		}
		score := float32(count) / float32(w*h) * aspectScore(w, h)
		if score < t.Score {
			continue
		}
		boxes = append(boxes, Box{X: minX * cell, Y: minY * cell, W: w * cell, H: h * cell, Score: score})
	}

	return boxes, nil
}

// skinCell はセル内の過半数が肌色ならtrueを返す
func skinCell(m *imaging.Matrix, x0, y0, cell int) bool {
	skin := 0
	for y := y0; y < y0+cell; y++ {
		for x := x0; x < x0+cell; x++ {
			r, g, b := m.At(x, y)
			if isSkin(r, g, b) {
				skin++
			}
		}
	}
	return skin*2 > cell*cell
}

// isSkin はYCbCr空間の範囲で肌色を判定する
func isSkin(r, g, b uint8) bool {
	ri, gi, bi := int32(r), int32(g), int32(b)
	cb := 128 + (-168736*ri-331264*gi+500000*bi)/1000000
	cr := 128 + (500000*ri-418688*gi-81312*bi)/1000000
	return cb >= 77 && cb <= 127 && cr >= 133 && cr <= 173
}

// aspectScore は顔らしい縦横比 (幅/高さ が 0.6〜1.2) で1、外れるほど小さくなる
func aspectScore(w, h int) float32 {
	a := float32(w) / float32(h)
	switch {
	case a < 0.6:
		return a / 0.6
	case a > 1.2:
		return 1.2 / a
	}
	return 1
}
