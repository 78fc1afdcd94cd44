package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kaomi/internal/camera"
)

func encodeJPEG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func near(t *testing.T, want, got uint8) {
	t.Helper()
	d := int(want) - int(got)
	if d < -6 || d > 6 {
		t.Errorf("expected ~%d, got %d", want, got)
	}
}

func TestDecode_JPEG(t *testing.T) {
	data := encodeJPEG(t, 16, 8, color.RGBA{200, 40, 90, 255})
	orig := append([]byte(nil), data...)
	f := &camera.Frame{Data: data, Width: 16, Height: 8, Format: camera.FormatJPEG}

	m, err := Decode(f)
	require.NoError(t, err)
	defer m.Free()

	assert.Equal(t, 16, m.Width)
	assert.Equal(t, 8, m.Height)
	assert.Len(t, m.Pix, 16*8*3)

	r, g, b := m.At(5, 3)
	near(t, 200, r)
	near(t, 40, g)
	near(t, 90, b)

	// 入力フレームは変更されない
	assert.Equal(t, orig, f.Data)
}

func TestDecode_JPEGSizeMismatch(t *testing.T) {
	data := encodeJPEG(t, 16, 8, color.RGBA{A: 255})
	f := &camera.Frame{Data: data, Width: 320, Height: 240, Format: camera.FormatJPEG}

	_, err := Decode(f)
	assert.ErrorIs(t, err, ErrCorruptFrame)
}

func TestDecode_RawFormats(t *testing.T) {
	testCases := []struct {
		name    string
		format  camera.PixelFormat
		data    []byte
		r, g, b uint8
	}{
		{"rgb888", camera.FormatRGB888, []byte{1, 2, 3, 4, 5, 6}, 4, 5, 6},
		{"rgb565 red", camera.FormatRGB565, []byte{0x00, 0x00, 0xF8, 0x00}, 255, 0, 0},
		{"rgb565 blue", camera.FormatRGB565, []byte{0x00, 0x00, 0x00, 0x1F}, 0, 0, 255},
		{"grayscale", camera.FormatGrayscale, []byte{0, 77}, 77, 77, 77},
		{"yuv422 white", camera.FormatYUV422, []byte{255, 128, 255, 128}, 255, 255, 255},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			orig := append([]byte(nil), tc.data...)
			f := &camera.Frame{Data: tc.data, Width: 2, Height: 1, Format: tc.format}

			m, err := Decode(f)
			require.NoError(t, err)
			defer m.Free()

			r, g, b := m.At(1, 0)
			assert.Equal(t, []uint8{tc.r, tc.g, tc.b}, []uint8{r, g, b})
			assert.Equal(t, orig, f.Data)
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	testCases := []struct {
		name  string
		frame *camera.Frame
		want  error
	}{
		{"nil", nil, ErrCorruptFrame},
		{"empty", &camera.Frame{Format: camera.FormatJPEG}, ErrCorruptFrame},
		{"truncated jpeg", &camera.Frame{Data: []byte{0xFF, 0xD8, 0xFF}, Format: camera.FormatJPEG}, ErrCorruptFrame},
		{"short rgb888", &camera.Frame{Data: []byte{1, 2}, Width: 2, Height: 1, Format: camera.FormatRGB888}, ErrCorruptFrame},
		{"odd yuv422", &camera.Frame{Data: make([]byte, 6), Width: 3, Height: 1, Format: camera.FormatYUV422}, ErrCorruptFrame},
		{"unknown", &camera.Frame{Data: []byte{1}, Width: 1, Height: 1, Format: "bayer"}, ErrUnsupportedFormat},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := Decode(tc.frame)
			assert.Nil(t, m)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestMatrix_Free(t *testing.T) {
	m := NewMatrix(4, 4)
	assert.True(t, m.Free())
	assert.False(t, m.Free(), "2回目のFreeは何もしない")
	assert.Nil(t, m.Pix)

	var nilMatrix *Matrix
	assert.False(t, nilMatrix.Free())
}

func TestResize(t *testing.T) {
	m := NewMatrix(100, 50)
	defer m.Free()
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			m.Set(x, y, 10, 20, 30)
		}
	}

	half, err := Resize(m, 0.5)
	require.NoError(t, err)
	defer half.Free()

	assert.Equal(t, 50, half.Width)
	assert.Equal(t, 25, half.Height)
	r, g, b := half.At(10, 10)
	near(t, 10, r)
	near(t, 20, g)
	near(t, 30, b)

	_, err = Resize(m, 0)
	assert.Error(t, err)
	_, err = Resize(m, 0.001)
	assert.Error(t, err)
}
