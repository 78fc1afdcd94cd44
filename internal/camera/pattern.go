package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"
)

// PatternSensor はカメラなしで動作確認するための合成画像センサー
// 時間とともに移動するグラデーションを設定されたFPSで生成する
type PatternSensor struct {
	settings Settings

	mu       sync.Mutex
	opened   bool
	frameNo  int
	lastGrab time.Time
}

// NewPatternSensor は新しいPatternSensorを作成する
func NewPatternSensor(settings Settings) *PatternSensor {
	return &PatternSensor{settings: settings}
}

// NewPatternSensorFromConfig は設定からPatternSensorを作成する
func NewPatternSensorFromConfig(settings Settings) (Sensor, error) {
	switch settings.Format {
	case FormatJPEG, FormatRGB888, FormatGrayscale:
	default:
		return nil, fmt.Errorf("パターンセンサーは %s に対応していません", settings.Format)
	}
	if settings.Width <= 0 || settings.Height <= 0 {
		return nil, fmt.Errorf("無効な解像度: %dx%d", settings.Width, settings.Height)
	}
	return NewPatternSensor(settings), nil
}

// Open はセンサーを開く
func (p *PatternSensor) Open(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened = true
	return nil
}

// Grab はフレーム周期を待って次の合成フレームを返す
func (p *PatternSensor) Grab(ctx context.Context) (RawFrame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.opened {
		return RawFrame{}, fmt.Errorf("センサーが開かれていません")
	}

	if p.settings.FPS > 0 && !p.lastGrab.IsZero() {
		period := time.Second / time.Duration(p.settings.FPS)
		if wait := period - time.Since(p.lastGrab); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return RawFrame{}, ctx.Err()
			case <-timer.C:
			}
		}
	}

	img := p.render(p.frameNo)
	p.frameNo++
	p.lastGrab = time.Now()

	data, err := p.encode(img)
	if err != nil {
		return RawFrame{}, err
	}

	return RawFrame{
		Data:      data,
		Width:     p.settings.Width,
		Height:    p.settings.Height,
		Format:    p.settings.Format,
		Timestamp: p.lastGrab,
	}, nil
}

// Close はセンサーを閉じる
func (p *PatternSensor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened = false
	return nil
}

// Info はセンサー情報を返す
func (p *PatternSensor) Info() SensorInfo {
	return SensorInfo{
		Type:   SensorTypePattern,
		Name:   "テストパターン",
		Device: "pattern",
		Width:  p.settings.Width,
		Height: p.settings.Height,
		FPS:    p.settings.FPS,
		Format: p.settings.Format,
	}
}

// render はフレーム番号に応じて横に流れるグラデーションを描く
func (p *PatternSensor) render(n int) *image.RGBA {
	w, h := p.settings.Width, p.settings.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	shift := n * 4
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8((x + shift) * 255 / (w + 1)),
				G: uint8(y * 255 / (h + 1)),
				B: uint8((n * 8) % 256),
				A: 255,
			})
		}
	}
	return img
}

func (p *PatternSensor) encode(img *image.RGBA) ([]byte, error) {
	switch p.settings.Format {
	case FormatJPEG:
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality(p.settings.JPEGQuality)}); err != nil {
			return nil, fmt.Errorf("JPEGエンコードに失敗: %w", err)
		}
		return buf.Bytes(), nil

	case FormatRGB888:
		out := make([]byte, 0, len(img.Pix)/4*3)
		for i := 0; i < len(img.Pix); i += 4 {
			out = append(out, img.Pix[i], img.Pix[i+1], img.Pix[i+2])
		}
		return out, nil

	case FormatGrayscale:
		out := make([]byte, 0, len(img.Pix)/4)
		for i := 0; i < len(img.Pix); i += 4 {
			gray := color.GrayModel.Convert(color.RGBA{img.Pix[i], img.Pix[i+1], img.Pix[i+2], 255}).(color.Gray)
			out = append(out, gray.Y)
		}
		return out, nil
	}

	return nil, fmt.Errorf("未対応のピクセルフォーマット: %q", p.settings.Format)
}

// jpegQuality はセンサー側の品質値（1-31、小さいほど高品質）を
// image/jpegの品質値（1-100）に変換する
func jpegQuality(q int) int {
	if q <= 0 {
		return jpeg.DefaultQuality
	}
	quality := 100 - (q-1)*3
	if quality < 10 {
		quality = 10
	}
	return quality
}
