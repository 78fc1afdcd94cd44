package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"kaomi/internal/camera"
	"kaomi/internal/config"
	"kaomi/internal/detection"
	"kaomi/internal/generated"
	"kaomi/internal/stream"
)

// CameraSource はハンドラーが使うフレームソース
type CameraSource interface {
	stream.FrameSource
	Info() camera.SensorInfo
	Stats() camera.Stats
}

// DetectionStore はハンドラーが使う検出結果の保持先
type DetectionStore interface {
	Latest() (detection.Result, bool)
	Recent(limit int) []detection.Result
	Totals() detection.Totals
	Subscribe(buffer int) (<-chan detection.Result, func())
}

// KaomiHandler は生成されたServerInterfaceを実装する
type KaomiHandler struct {
	config    *config.Config
	source    CameraSource
	publisher *stream.Publisher
	sessions  *stream.Sessions
	store     DetectionStore // 顔検出が無効ならnil
	spec      *apiSpec
	shutdown  <-chan struct{}
}

const defaultDetectionLimit = 10

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *KaomiHandler) HealthCheck(c *gin.Context) {
	response := generated.HealthResponse{
		Status:    generated.Healthy,
		Timestamp: time.Now(),
	}

	c.JSON(http.StatusOK, response)
}

// GetStatus はシステム状態取得エンドポイントの実装
func (h *KaomiHandler) GetStatus(c *gin.Context) {
	info := h.source.Info()
	stats := h.source.Stats()

	cam := generated.CameraStatus{
		Sensor:      string(info.Type),
		Name:        info.Name,
		Device:      info.Device,
		Width:       info.Width,
		Height:      info.Height,
		Fps:         info.FPS,
		Format:      string(info.Format),
		Status:      convertCameraStatus(stats.Status),
		Acquired:    int64(stats.Acquired),
		Released:    int64(stats.Released),
		Failures:    int64(stats.Failures),
		Outstanding: stats.Outstanding,
		LastCapture: timePtr(stats.LastCapture),
	}

	sessions := h.sessions.List()
	streams := generated.StreamStatus{
		Active:   len(sessions),
		Total:    int64(h.sessions.Total()),
		Sessions: make([]generated.StreamSession, 0, len(sessions)),
	}
	for _, s := range sessions {
		streams.Sessions = append(streams.Sessions, generated.StreamSession{
			Id:         uuid.MustParse(s.ID),
			Remote:     s.Remote,
			StartedAt:  s.StartedAt,
			FramesSent: int64(s.FramesSent),
			State:      generated.StreamSessionState(s.State),
		})
	}

	det := generated.DetectionStatus{Enabled: h.store != nil}
	if h.store != nil {
		totals := h.store.Totals()
		det.Passes = int64(totals.Passes)
		det.Faces = int64(totals.Faces)
		det.Skipped = int64(totals.Skipped)
		det.LastFaces = totals.LastFaces
		det.LastPass = timePtr(totals.LastPass)
	}

	response := generated.StatusResponse{
		Status: generated.Running,
		Server: generated.ServerInfo{
			Host: h.config.Server.Host,
			Port: h.config.Server.Port,
		},
		Camera:    cam,
		Streams:   streams,
		Detection: det,
		Timestamp: time.Now(),
	}

	c.JSON(http.StatusOK, response)
}

// GetOpenAPISpec はAPI定義をJSONで返す
func (h *KaomiHandler) GetOpenAPISpec(c *gin.Context) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", h.spec.json)
}

// GetDetections は直近の検出結果一覧エンドポイントの実装
func (h *KaomiHandler) GetDetections(c *gin.Context, params generated.GetDetectionsParams) {
	if !h.detectionEnabled(c) {
		return
	}

	limit := defaultDetectionLimit
	if params.Limit != nil {
		limit = *params.Limit
	}

	results := h.store.Recent(limit)
	response := generated.DetectionsResponse{
		Detections: make([]generated.DetectionResult, 0, len(results)),
	}
	for _, r := range results {
		response.Detections = append(response.Detections, convertResult(r))
	}

	c.JSON(http.StatusOK, response)
}

// GetLatestDetection は最新の検出結果エンドポイントの実装
func (h *KaomiHandler) GetLatestDetection(c *gin.Context) {
	if !h.detectionEnabled(c) {
		return
	}

	result, ok := h.store.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, generated.ErrorResponse{
			Error:     "no_detection",
			Message:   "まだ検出結果がありません",
			Timestamp: time.Now(),
		})
		return
	}

	c.JSON(http.StatusOK, convertResult(result))
}

// GetDetectionEvents は検出結果をServer-Sent Eventsで配信する
func (h *KaomiHandler) GetDetectionEvents(c *gin.Context) {
	if !h.detectionEnabled(c) {
		return
	}

	results, unsubscribe := h.store.Subscribe(8)
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case <-h.shutdown:
			return false
		case r, ok := <-results:
			if !ok {
				return false
			}
			c.SSEvent("detection", convertResult(r))
			return true
		}
	})
}

// GetStream はMJPEGストリーミングエンドポイントの実装
func (h *KaomiHandler) GetStream(c *gin.Context) {
	if h.source.Stats().Status == camera.StatusInactive {
		c.JSON(http.StatusServiceUnavailable, generated.ErrorResponse{
			Error:     "camera_not_active",
			Message:   "カメラがアクティブではありません",
			Timestamp: time.Now(),
		})
		return
	}

	sess := h.sessions.Register(c.Request.RemoteAddr)
	defer h.sessions.Unregister(sess.ID)

	// レスポンスヘッダーを設定
	c.Header("Content-Type", h.publisher.ContentType())
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Status(http.StatusOK)

	state, err := h.publisher.ServeSession(c.Request.Context(), sess, h.shutdown, c.Writer, c.Writer.Flush)
	if state == stream.StateFailed && err != nil {
		_ = c.Error(err)
	}
}

// ヘルパー関数

// detectionEnabled は顔検出が無効なら503を返してfalseを返す
func (h *KaomiHandler) detectionEnabled(c *gin.Context) bool {
	if h.store != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, generated.ErrorResponse{
		Error:     "detection_disabled",
		Message:   "顔検出は無効です",
		Timestamp: time.Now(),
	})
	return false
}

// convertCameraStatus はカメラステータスを変換する
func convertCameraStatus(status camera.Status) generated.CameraStatusStatus {
	switch status {
	case camera.StatusActive:
		return generated.Active
	case camera.StatusInactive:
		return generated.Inactive
	case camera.StatusError:
		return generated.Error
	default:
		return generated.Inactive
	}
}

// convertResult は検出結果を変換する
func convertResult(r detection.Result) generated.DetectionResult {
	boxes := make([]generated.FaceBox, 0, len(r.Boxes))
	for _, b := range r.Boxes {
		boxes = append(boxes, generated.FaceBox{X: b.X, Y: b.Y, W: b.W, H: b.H, Score: b.Score})
	}

	return generated.DetectionResult{
		Id:         r.ID,
		Faces:      r.Faces,
		Boxes:      boxes,
		Width:      r.Width,
		Height:     r.Height,
		TookMs:     float64(r.Took.Microseconds()) / 1000,
		CapturedAt: timePtr(r.CapturedAt),
		At:         r.At,
	}
}

// timePtr はゼロ値ならnilを返す
func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
