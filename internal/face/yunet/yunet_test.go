package yunet

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"kaomi/internal/face"
	"kaomi/internal/imaging"
)

func TestNew_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path/model.onnx", 320, 240)
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Expected ErrModelNotFound, got %v", err)
	}
}

func TestPropose_SolidImage(t *testing.T) {
	modelPath := findModelPath()
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	p, err := New(modelPath, 320, 240)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	m := imaging.NewMatrix(320, 240)
	defer m.Free()
	for i := range m.Pix {
		m.Pix[i] = 100
	}

	boxes, err := p.Propose(context.Background(), m, face.DefaultConfig().Proposal)
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if len(boxes) > 0 {
		t.Errorf("Expected no detections in solid color image, got %d", len(boxes))
	}
}

func TestPropose_WithTwoStage(t *testing.T) {
	modelPath := findModelPath()
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	p, err := New(modelPath, 320, 240)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	m := imaging.NewMatrix(320, 240)
	defer m.Free()

	boxes, err := face.NewTwoStage(p).Detect(context.Background(), m, face.DefaultConfig())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(boxes) != 0 {
		t.Errorf("Expected 0 faces, got %d", len(boxes))
	}
}

func findModelPath() string {
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != "/"; dir = filepath.Dir(dir) {
			modelPath := filepath.Join(dir, "models", "face_detection_yunet.onnx")
			if _, err := os.Stat(modelPath); err == nil {
				return modelPath
			}
		}
	}
	return ""
}
