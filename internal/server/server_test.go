package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kaomi/internal/camera"
	"kaomi/internal/config"
	"kaomi/internal/detection"
	"kaomi/internal/face"
	"kaomi/internal/generated"
)

// testConfig はテスト用の設定を作成する
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Camera.Sensor = "pattern"
	cfg.Stream.FrameInterval = 10 * time.Millisecond
	return cfg
}

// startedSource はテストパターンで動くSourceを作成する
func startedSource(t *testing.T) *camera.Source {
	t.Helper()
	sensor := camera.NewPatternSensor(camera.Settings{Width: 32, Height: 24, FPS: 100, Format: camera.FormatJPEG})
	source := camera.NewSource(sensor)
	require.NoError(t, source.Start(context.Background()))
	return source
}

func newTestServer(t *testing.T, store DetectionStore) (*Server, *camera.Source) {
	t.Helper()
	source := startedSource(t)
	srv, err := New(context.Background(), testConfig(), source, store)
	require.NoError(t, err)
	return srv, source
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

// TestServerEndpoints はJSONエンドポイントをテストする
func TestServerEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, detection.NewRecorder(10))

	testCases := []struct {
		name           string
		endpoint       string
		expectedStatus int
	}{
		{"ヘルスチェックエンドポイント", "/health", http.StatusOK},
		{"ステータスエンドポイント", "/api/status", http.StatusOK},
		{"API定義", "/api/openapi.json", http.StatusOK},
		{"検出結果一覧", "/api/detections", http.StatusOK},
		{"検出結果一覧 (limit指定)", "/api/detections?limit=5", http.StatusOK},
		{"検出結果一覧 (limitが範囲外)", "/api/detections?limit=0", http.StatusBadRequest},
		{"検出結果一覧 (limitが数値でない)", "/api/detections?limit=abc", http.StatusBadRequest},
		{"最新の検出結果 (まだない)", "/api/detections/latest", http.StatusNotFound},
		{"存在しないパス", "/nothing", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(t, srv.Handler(), tc.endpoint)
			if rec.Code != tc.expectedStatus {
				t.Errorf("予期しないステータスコード: got %d, want %d (body: %s)",
					rec.Code, tc.expectedStatus, rec.Body.String())
			}
		})
	}
}

func TestGetStatus(t *testing.T) {
	srv, source := newTestServer(t, detection.NewRecorder(10))

	frame, err := source.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, source.Release(frame))

	rec := get(t, srv.Handler(), "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var status generated.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))

	assert.Equal(t, generated.Running, status.Status)
	assert.Equal(t, "pattern", status.Camera.Sensor)
	assert.Equal(t, generated.Active, status.Camera.Status)
	assert.Equal(t, int64(1), status.Camera.Acquired)
	assert.Equal(t, int64(1), status.Camera.Released)
	assert.Zero(t, status.Camera.Outstanding)
	assert.True(t, status.Detection.Enabled)
	assert.Zero(t, status.Streams.Active)
}

func TestGetDetections(t *testing.T) {
	recorder := detection.NewRecorder(10)
	srv, _ := newTestServer(t, recorder)

	for i := 0; i < 3; i++ {
		recorder.Report(detection.Result{
			ID:    uuid.MustParse("6f1c2a9e-0d4b-4b7e-9a51-00000000000" + strconv.Itoa(i)),
			Faces: i,
			Boxes: make([]face.Box, i),
			At:    time.Now(),
		})
	}

	rec := get(t, srv.Handler(), "/api/detections?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var list generated.DetectionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Detections, 2)
	assert.Equal(t, 2, list.Detections[0].Faces)
	assert.Equal(t, 1, list.Detections[1].Faces)

	rec = get(t, srv.Handler(), "/api/detections/latest")
	require.Equal(t, http.StatusOK, rec.Code)

	var latest generated.DetectionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &latest))
	assert.Equal(t, "6f1c2a9e-0d4b-4b7e-9a51-000000000002", latest.Id.String())
	assert.Len(t, latest.Boxes, 2)
}

func TestDetectionDisabled(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	for _, endpoint := range []string{"/api/detections", "/api/detections/latest", "/api/detections/events"} {
		rec := get(t, srv.Handler(), endpoint)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, endpoint)
	}

	rec := get(t, srv.Handler(), "/api/status")
	var status generated.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Detection.Enabled)
}

// TestStream は/streamのmultipartを読んでから切断する
func TestStream(t *testing.T) {
	srv, source := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stream")
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/x-mixed-replace", mediaType)
	assert.Equal(t, "frame_boundary", params["boundary"])

	reader := multipart.NewReader(resp.Body, params["boundary"])
	for i := 0; i < 3; i++ {
		part, err := reader.NextPart()
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))

		payload, err := io.ReadAll(part)
		require.NoError(t, err)
		length, err := strconv.Atoi(part.Header.Get("Content-Length"))
		require.NoError(t, err)
		assert.Len(t, payload, length)
		assert.Equal(t, []byte{0xFF, 0xD8}, payload[:2])
	}

	assert.Equal(t, 1, srv.Sessions().Count())

	// 切断するとセッションが消え、フレームはすべて返却される
	resp.Body.Close()
	assert.Eventually(t, func() bool {
		stats := source.Stats()
		return srv.Sessions().Count() == 0 && stats.Outstanding == 0 && stats.Acquired == stats.Released
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStream_CameraInactive(t *testing.T) {
	srv, source := newTestServer(t, nil)
	require.NoError(t, source.Close(context.Background()))

	rec := get(t, srv.Handler(), "/stream")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// TestServerShutdownEndsStreams はシャットダウンで配信中のストリームが正常に終わることをテストする
func TestServerShutdownEndsStreams(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx, listener)
	}()

	resp, err := http.Get("http://" + listener.Addr().String() + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	// 最初のパートが届いてから停止する
	br := bufio.NewReader(resp.Body)
	_, err = br.ReadString('\n')
	require.NoError(t, err)

	cancel()

	// 終端チャンクまで読み切れる（途中で切れていない）
	_, err = io.ReadAll(br)
	assert.NoError(t, err)

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("サーバーの停止がタイムアウトしました")
	}
}

func TestDetectionEvents(t *testing.T) {
	recorder := detection.NewRecorder(10)
	srv, _ := newTestServer(t, recorder)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				recorder.Report(detection.Result{ID: uuid.MustParse("6f1c2a9e-0d4b-4b7e-9a51-000000000009"), Faces: 1, Boxes: []face.Box{{X: 1, Y: 2, W: 40, H: 40, Score: 0.9}}})
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/detections/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream"))

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		}
		if strings.HasPrefix(line, "data:") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			break
		}
	}

	assert.Equal(t, "detection", event)
	var result generated.DetectionResult
	require.NoError(t, json.Unmarshal([]byte(data), &result))
	assert.Equal(t, 1, result.Faces)
}
