package imaging

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// Resize は行列をscale倍に縮小（または拡大）した新しい行列を返す
// 元の行列は変更しない。呼び出し側は戻り値をFreeすること
func Resize(m *Matrix, scale float64) (*Matrix, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("無効な倍率: %v", scale)
	}

	w := int(float64(m.Width) * scale)
	h := int(float64(m.Height) * scale)
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("縮小後のサイズが小さすぎます: %dx%d", w, h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), m.RGBA(), image.Rect(0, 0, m.Width, m.Height), draw.Src, nil)
	return FromImage(dst), nil
}
