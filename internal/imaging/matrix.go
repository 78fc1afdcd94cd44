package imaging

import (
	"image"
	"image/color"
	"sync"
	"sync/atomic"
)

// Matrix はRGB888の画素行列（行優先、1画素3バイト）
//
// 検出1回ごとに作られ、使い終わったらFreeでバッファをプールに戻す。
type Matrix struct {
	Width  int
	Height int
	Pix    []uint8

	freed atomic.Bool
}

var pixPool = sync.Pool{
	New: func() any { return new([]uint8) },
}

// NewMatrix はプールからバッファを借りて行列を作る
func NewMatrix(width, height int) *Matrix {
	n := width * height * 3
	buf := pixPool.Get().(*[]uint8)
	if cap(*buf) < n {
		*buf = make([]uint8, n)
	}
	return &Matrix{Width: width, Height: height, Pix: (*buf)[:n]}
}

// At は(x, y)の画素のRGBを返す
func (m *Matrix) At(x, y int) (r, g, b uint8) {
	i := (y*m.Width + x) * 3
	return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
}

// Set は(x, y)の画素を設定する
func (m *Matrix) Set(x, y int, r, g, b uint8) {
	i := (y*m.Width + x) * 3
	m.Pix[i], m.Pix[i+1], m.Pix[i+2] = r, g, b
}

// Free はバッファをプールに返す
// 2回目以降の呼び出しは何もせずfalseを返す
func (m *Matrix) Free() bool {
	if m == nil || !m.freed.CompareAndSwap(false, true) {
		return false
	}
	buf := m.Pix[:0]
	m.Pix = nil
	pixPool.Put(&buf)
	return true
}

// RGBA はimage/drawで扱うためにimage.RGBAへ変換する
func (m *Matrix) RGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	for i, j := 0, 0; i < len(m.Pix); i, j = i+3, j+4 {
		img.Pix[j] = m.Pix[i]
		img.Pix[j+1] = m.Pix[i+1]
		img.Pix[j+2] = m.Pix[i+2]
		img.Pix[j+3] = 0xFF
	}
	return img
}

// FromImage は任意のimage.Imageを行列に変換する
func FromImage(img image.Image) *Matrix {
	b := img.Bounds()
	m := NewMatrix(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < m.Height; y++ {
			o := src.PixOffset(b.Min.X, b.Min.Y+y)
			row := src.Pix[o : o+m.Width*4]
			for x := 0; x < m.Width; x++ {
				m.Set(x, y, row[x*4], row[x*4+1], row[x*4+2])
			}
		}
	case *image.YCbCr:
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				yi := src.YOffset(b.Min.X+x, b.Min.Y+y)
				ci := src.COffset(b.Min.X+x, b.Min.Y+y)
				r, g, bb := color.YCbCrToRGB(src.Y[yi], src.Cb[ci], src.Cr[ci])
				m.Set(x, y, r, g, bb)
			}
		}
	case *image.Gray:
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				v := src.Pix[src.PixOffset(b.Min.X+x, b.Min.Y+y)]
				m.Set(x, y, v, v, v)
			}
		}
	default:
		for y := 0; y < m.Height; y++ {
			for x := 0; x < m.Width; x++ {
				r, g, bb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				m.Set(x, y, uint8(r>>8), uint8(g>>8), uint8(bb>>8))
			}
		}
	}
	return m
}
