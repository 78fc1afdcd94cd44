package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kaomi/internal/camera"
	"kaomi/internal/config"
	"kaomi/internal/face"
)

func patternConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Camera.Sensor = "pattern"
	cfg.Camera.FPS = 30
	cfg.Detection.ModelPath = "/nonexistent/face_detection_yunet.onnx"
	cfg.Detection.Interval = 10 * time.Millisecond
	cfg.Detection.Backoff = 10 * time.Millisecond
	return cfg
}

func TestFaceConfig(t *testing.T) {
	got := FaceConfig(config.Default().Detection)
	assert.Equal(t, face.DefaultConfig(), got)
}

func TestNew_InvalidSensor(t *testing.T) {
	cfg := patternConfig()
	cfg.Camera.Sensor = "esp32"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_InvalidDetectionConfig(t *testing.T) {
	cfg := patternConfig()
	cfg.Detection.MinFace = 0

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRun_PatternSensor(t *testing.T) {
	a, err := New(context.Background(), patternConfig())
	require.NoError(t, err)
	require.NotNil(t, a.loop, "モデルがなくても肌色検出で動く")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, a.Run(ctx))

	stats := a.source.Stats()
	assert.Equal(t, camera.StatusInactive, stats.Status)
	assert.Positive(t, stats.Acquired)
	assert.Equal(t, stats.Acquired, stats.Released)
}

func TestRun_DetectionDisabled(t *testing.T) {
	cfg := patternConfig()
	cfg.Detection.Enabled = false

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, a.loop)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, a.Run(ctx))
}
