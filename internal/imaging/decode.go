package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"

	"kaomi/internal/camera"
)

var (
	// ErrUnsupportedFormat はデコードできないピクセルフォーマットを示す
	ErrUnsupportedFormat = errors.New("unsupported pixel format")
	// ErrCorruptFrame はフレームのデータが壊れていることを示す
	ErrCorruptFrame = errors.New("corrupt frame")
)

// Decoder はフレームを画素行列に変換する
type Decoder interface {
	Decode(f *camera.Frame) (*Matrix, error)
}

// DecoderFunc は関数をDecoderとして扱うためのアダプター
type DecoderFunc func(f *camera.Frame) (*Matrix, error)

// Decode はfを呼ぶ
func (fn DecoderFunc) Decode(f *camera.Frame) (*Matrix, error) {
	return fn(f)
}

// Decode はフレームをRGB888の行列に変換する
// フレームは読むだけで変更しない
func Decode(f *camera.Frame) (*Matrix, error) {
	if f == nil || f.Len() == 0 {
		return nil, fmt.Errorf("%w: 空のフレーム", ErrCorruptFrame)
	}

	switch f.Format {
	case camera.FormatJPEG:
		return decodeJPEG(f)
	case camera.FormatRGB888, camera.FormatRGB565, camera.FormatGrayscale, camera.FormatYUV422:
		want := f.Width * f.Height * f.Format.BytesPerPixel()
		if f.Width <= 0 || f.Height <= 0 || f.Len() != want {
			return nil, fmt.Errorf("%w: %d bytes for %dx%d %s", ErrCorruptFrame, f.Len(), f.Width, f.Height, f.Format)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f.Format)
	}

	m := NewMatrix(f.Width, f.Height)
	switch f.Format {
	case camera.FormatRGB888:
		copy(m.Pix, f.Data)
	case camera.FormatRGB565:
		decodeRGB565(m, f.Data)
	case camera.FormatGrayscale:
		for i, v := range f.Data {
			m.Pix[i*3], m.Pix[i*3+1], m.Pix[i*3+2] = v, v, v
		}
	case camera.FormatYUV422:
		if f.Width%2 != 0 {
			m.Free()
			return nil, fmt.Errorf("%w: YUV422の幅は偶数である必要があります: %d", ErrCorruptFrame, f.Width)
		}
		decodeYUYV(m, f.Data)
	}
	return m, nil
}

func decodeJPEG(f *camera.Frame) (*Matrix, error) {
	img, err := jpeg.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptFrame, err)
	}

	b := img.Bounds()
	if f.Width > 0 && f.Height > 0 && (b.Dx() != f.Width || b.Dy() != f.Height) {
		return nil, fmt.Errorf("%w: JPEGのサイズ %dx%d がフレームの %dx%d と一致しません",
			ErrCorruptFrame, b.Dx(), b.Dy(), f.Width, f.Height)
	}
	return FromImage(img), nil
}

// decodeRGB565 はビッグエンディアンのRGB565を展開する
func decodeRGB565(m *Matrix, data []byte) {
	for i := 0; i+1 < len(data); i += 2 {
		v := uint16(data[i])<<8 | uint16(data[i+1])
		r := uint8(v>>11) & 0x1F
		g := uint8(v>>5) & 0x3F
		b := uint8(v) & 0x1F
		o := i / 2 * 3
		m.Pix[o] = r<<3 | r>>2
		m.Pix[o+1] = g<<2 | g>>4
		m.Pix[o+2] = b<<3 | b>>2
	}
}

// decodeYUYV はYUYV (Y0 U Y1 V) をBT.601で変換する
func decodeYUYV(m *Matrix, data []byte) {
	for i := 0; i+3 < len(data); i += 4 {
		y0, u, y1, v := data[i], data[i+1], data[i+2], data[i+3]
		o := i / 2 * 3
		m.Pix[o], m.Pix[o+1], m.Pix[o+2] = yuvToRGB(y0, u, v)
		m.Pix[o+3], m.Pix[o+4], m.Pix[o+5] = yuvToRGB(y1, u, v)
	}
}

func yuvToRGB(y, u, v uint8) (uint8, uint8, uint8) {
	c := int32(y)
	d := int32(u) - 128
	e := int32(v) - 128
	r := c + (1402*e)/1000
	g := c - (344*d+714*e)/1000
	b := c + (1772*d)/1000
	return clamp(r), clamp(g), clamp(b)
}

func clamp(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
