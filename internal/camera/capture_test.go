package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitJPEG(t *testing.T) {
	frameA := []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}
	frameB := []byte{0xFF, 0xD8, 0x03, 0xFF, 0x00, 0x04, 0xFF, 0xD9}

	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x11}) // 先頭のゴミ
	stream.Write(frameA)
	stream.Write(frameB)
	stream.Write([]byte{0xFF, 0xD8, 0x05}) // 途中で切れたフレーム

	// 1バイトずつ読ませてチャンク境界をまたぐケースも確認する
	scanner := bufio.NewScanner(iotest.OneByteReader(&stream))
	scanner.Split(splitJPEG)

	var frames [][]byte
	for scanner.Scan() {
		frames = append(frames, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	if !bytes.Equal(frames[0], frameA) {
		t.Errorf("frame 0 mismatch: %x", frames[0])
	}
	if !bytes.Equal(frames[1], frameB) {
		t.Errorf("frame 1 mismatch: %x", frames[1])
	}
}

func TestFFmpegSensorFromConfig(t *testing.T) {
	if _, err := NewFFmpegSensorFromConfig(Settings{Format: FormatJPEG}); err == nil {
		t.Error("Expected error without device")
	}
	if _, err := NewFFmpegSensorFromConfig(Settings{Device: "/dev/video0", Format: FormatRGB888}); err == nil {
		t.Error("Expected error for non-JPEG format")
	}

	sensor, err := NewFFmpegSensorFromConfig(Settings{Device: "/dev/video0", Width: 320, Height: 240, FPS: 15, Format: FormatJPEG, JPEGQuality: 12})
	if err != nil {
		t.Fatalf("NewFFmpegSensorFromConfig failed: %v", err)
	}
	joined := strings.Join(sensor.(*FFmpegSensor).args(), " ")
	for _, want := range []string{"-video_size 320x240", "-r 15", "-i /dev/video0", "-q:v 12"} {
		if !strings.Contains(joined, want) {
			t.Errorf("ffmpeg args missing %q: %s", want, joined)
		}
	}
}

func TestFFmpegSensor_GrabBeforeOpen(t *testing.T) {
	sensor := NewFFmpegSensor(Settings{Device: "/dev/video0"})
	if _, err := sensor.Grab(t.Context()); err == nil {
		t.Error("Expected error when grabbing before Open")
	}
}

// fakeFFmpeg はJPEGを1枚出力してから異常終了するffmpegの代わりのスクリプトを作る
func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("シェルスクリプトを実行できない環境です")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nprintf '\\377\\330\\001\\002\\377\\331'\nsleep 0.5\nexit 1\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// ffmpegが終了した後のAcquireは毎回すぐにキャプチャ失敗を返す
func TestFFmpegSensor_ProcessExit(t *testing.T) {
	sensor := NewFFmpegSensor(Settings{Device: "/dev/video0", Width: 320, Height: 240, FPS: 15, Format: FormatJPEG})
	sensor.command = fakeFFmpeg(t)

	source := NewSource(sensor)
	require.NoError(t, source.Start(t.Context()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		assert.NoError(t, source.Close(ctx))
	}()

	frame, err := source.Acquire(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}, frame.Data)
	require.NoError(t, source.Release(frame))

	for i := 0; i < 4; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		start := time.Now()
		_, err := source.Acquire(ctx)
		cancel()

		require.Error(t, err, "acquire %d", i)
		assert.True(t, errors.Is(err, ErrCaptureFailed), "acquire %d: %v", i, err)
		assert.Less(t, time.Since(start), time.Second, "acquire %d", i)
	}

	assert.Equal(t, StatusError, source.Status())
	assert.Equal(t, int64(0), source.Stats().Outstanding)
}
