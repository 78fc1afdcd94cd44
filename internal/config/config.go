package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
// プロセス起動時に一度だけ読み込まれ、以後は変更しない
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Camera    CameraConfig    `yaml:"camera"`
	Stream    StreamConfig    `yaml:"stream"`
	Detection DetectionConfig `yaml:"detection"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // 読み込みタイムアウト
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // 書き込みタイムアウト
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // シャットダウン猶予
}

// CameraConfig はカメラ（単一センサー）の設定
type CameraConfig struct {
	Sensor      string `yaml:"sensor"`       // センサー種別: v4l2 / ffmpeg / pattern
	Device      string `yaml:"device"`       // デバイスパス (例: /dev/video0)。空なら自動検出
	Width       int    `yaml:"width"`        // 画像幅
	Height      int    `yaml:"height"`       // 画像高さ
	FPS         int    `yaml:"fps"`          // フレームレート (fps)
	PixelFormat string `yaml:"pixel_format"` // jpeg / rgb888 / rgb565 / grayscale / yuv422
	JPEGQuality int    `yaml:"jpeg_quality"` // JPEG品質 (1-31, 小さいほど高品質)
	BufferCount int    `yaml:"buffer_count"` // フレームバッファ数 (1のみ対応)
	GrabMode    string `yaml:"grab_mode"`    // 取得ポリシー (when_empty のみ対応)

	// 連続キャプチャ失敗でエラー状態とみなす回数
	ErrorThreshold int `yaml:"error_threshold"`
}

// StreamConfig はMJPEGストリームの設定
type StreamConfig struct {
	Boundary      string        `yaml:"boundary"`       // マルチパート境界トークン
	FrameInterval time.Duration `yaml:"frame_interval"` // フレーム間の最小間隔
}

// DetectionConfig は顔検出ループの設定
type DetectionConfig struct {
	Enabled      bool          `yaml:"enabled"`
	ModelPath    string        `yaml:"model_path"`    // YuNet ONNXモデル
	Interval     time.Duration `yaml:"interval"`      // サイクル間の最小間隔
	Backoff      time.Duration `yaml:"backoff"`       // 失敗時の待機時間
	HistorySize  int           `yaml:"history_size"`  // 保持する検出結果の件数
	MinFace      int           `yaml:"min_face"`      // 最小顔サイズ (px)
	PyramidTimes int           `yaml:"pyramid_times"` // ピラミッド段数
	PyramidScale float64       `yaml:"pyramid_scale"` // ピラミッド縮小率

	Proposal ThresholdConfig `yaml:"proposal"` // 候補生成段のしきい値
	Refine   ThresholdConfig `yaml:"refine"`   // 絞り込み段のしきい値
}

// ThresholdConfig は検出段ごとのしきい値
type ThresholdConfig struct {
	Score           float64 `yaml:"score"`
	NMS             float64 `yaml:"nms"`
	CandidateNumber int     `yaml:"candidate_number"`
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    0, // ストリーミング用にタイムアウト無効化
			ShutdownTimeout: 5 * time.Second,
		},
		Camera: CameraConfig{
			Sensor:         "v4l2",
			Device:         "",
			Width:          320, // QVGA
			Height:         240,
			FPS:            15,
			PixelFormat:    "jpeg",
			JPEGQuality:    12,
			BufferCount:    1,
			GrabMode:       "when_empty",
			ErrorThreshold: 3,
		},
		Stream: StreamConfig{
			Boundary:      "frame_boundary",
			FrameInterval: 100 * time.Millisecond,
		},
		Detection: DetectionConfig{
			Enabled:      true,
			ModelPath:    "models/face_detection_yunet.onnx",
			Interval:     500 * time.Millisecond,
			Backoff:      500 * time.Millisecond,
			HistorySize:  50,
			MinFace:      40,
			PyramidTimes: 1,
			PyramidScale: 0.707,
			Proposal:     ThresholdConfig{Score: 0.6, NMS: 0.7, CandidateNumber: 20},
			Refine:       ThresholdConfig{Score: 0.6, NMS: 0.7, CandidateNumber: 20},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load は設定を読み込む
// CONFIG_FILE が指定されていればYAMLを読み込み、その後環境変数で上書きする
func Load() (*Config, error) {
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile は指定されたYAMLファイルから設定を読み込む
// pathが空の場合はデフォルト値と環境変数のみを使う
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルの解析に失敗: %w", err)
		}
	}

	cfg.applyEnv()

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// applyEnv は環境変数で設定を上書きする
func (c *Config) applyEnv() {
	c.Server.Host = getEnvOrDefault("SERVER_HOST", c.Server.Host)
	c.Server.Port = getEnvAsIntOrDefault("PORT", c.Server.Port)
	c.Camera.Sensor = getEnvOrDefault("CAMERA_SENSOR", c.Camera.Sensor)
	c.Camera.Device = getEnvOrDefault("CAMERA_DEVICE", c.Camera.Device)
	c.Detection.ModelPath = getEnvOrDefault("DETECTION_MODEL", c.Detection.ModelPath)
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// カメラ設定の検証
	switch c.Camera.Sensor {
	case "v4l2", "ffmpeg", "pattern":
	default:
		return fmt.Errorf("未対応のセンサー種別: %q", c.Camera.Sensor)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("無効な解像度: %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Camera.FPS <= 0 || c.Camera.FPS > 60 {
		return fmt.Errorf("無効なFPS値: %d", c.Camera.FPS)
	}
	if c.Camera.BufferCount != 1 {
		return fmt.Errorf("フレームバッファ数は1のみ対応: %d", c.Camera.BufferCount)
	}
	if c.Camera.GrabMode != "when_empty" {
		return fmt.Errorf("未対応の取得ポリシー: %q", c.Camera.GrabMode)
	}
	if c.Camera.JPEGQuality < 1 || c.Camera.JPEGQuality > 31 {
		return fmt.Errorf("無効なJPEG品質: %d", c.Camera.JPEGQuality)
	}

	// ストリーム設定の検証
	if c.Stream.Boundary == "" {
		return fmt.Errorf("境界トークンが設定されていません")
	}
	if c.Stream.FrameInterval <= 0 {
		return fmt.Errorf("無効なフレーム間隔: %s", c.Stream.FrameInterval)
	}

	// 検出設定の検証
	if c.Detection.Enabled {
		d := c.Detection
		if d.Interval <= 0 || d.Backoff <= 0 {
			return fmt.Errorf("無効な検出間隔: interval=%s backoff=%s", d.Interval, d.Backoff)
		}
		if d.ModelPath == "" {
			return fmt.Errorf("検出モデルのパスが設定されていません")
		}
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
