// Package app は設定から各コンポーネントを組み立てて起動する
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"kaomi/internal/camera"
	"kaomi/internal/config"
	"kaomi/internal/detection"
	"kaomi/internal/face"
	"kaomi/internal/face/yunet"
	"kaomi/internal/log"
	"kaomi/internal/server"
)

// App はカメラ・顔検出ループ・HTTPサーバーをまとめたもの
type App struct {
	config  *config.Config
	source  *camera.Source
	loop    *detection.Loop // 顔検出が無効ならnil
	server  *server.Server
	closers []io.Closer
	logger  *slog.Logger
}

// New はコンポーネントを組み立てる
// カメラの初期化に失敗した場合はエラーを返し、サーバーは起動しない
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		config: cfg,
		logger: log.With("component", "app"),
	}

	source, err := newSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.source = source

	var store server.DetectionStore
	if cfg.Detection.Enabled {
		recorder := detection.NewRecorder(cfg.Detection.HistorySize)
		loop, err := a.newLoop(cfg, source, recorder)
		if err != nil {
			a.close()
			return nil, err
		}
		a.loop = loop
		store = recorder
	}

	srv, err := server.New(ctx, cfg, source, store)
	if err != nil {
		a.close()
		return nil, err
	}
	a.server = srv

	return a, nil
}

// newSource はセンサーを作成して初期化する
func newSource(ctx context.Context, cfg *config.Config) (*camera.Source, error) {
	format, err := camera.ParsePixelFormat(cfg.Camera.PixelFormat)
	if err != nil {
		return nil, err
	}

	settings := camera.Settings{
		Device:      cfg.Camera.Device,
		Width:       cfg.Camera.Width,
		Height:      cfg.Camera.Height,
		FPS:         cfg.Camera.FPS,
		Format:      format,
		JPEGQuality: cfg.Camera.JPEGQuality,
		BufferCount: cfg.Camera.BufferCount,
	}

	factory := camera.NewSensorFactory(camera.NewLinuxDiscovery())
	sensor, err := factory.CreateSensor(ctx, camera.SensorType(cfg.Camera.Sensor), settings)
	if err != nil {
		return nil, fmt.Errorf("センサーの作成に失敗: %w", err)
	}

	source := camera.NewSource(sensor, camera.WithErrorThreshold(cfg.Camera.ErrorThreshold))
	if err := source.Start(ctx); err != nil {
		return nil, err
	}
	return source, nil
}

// newLoop は顔検出ループを作成する
// YuNetのモデルが見つからない場合は肌色ベースの候補抽出で代用する
func (a *App) newLoop(cfg *config.Config, source *camera.Source, recorder *detection.Recorder) (*detection.Loop, error) {
	faceCfg := FaceConfig(cfg.Detection)
	if err := faceCfg.Validate(); err != nil {
		return nil, fmt.Errorf("顔検出の設定が不正です: %w", err)
	}

	var proposer face.Proposer
	yn, err := yunet.New(cfg.Detection.ModelPath, cfg.Camera.Width, cfg.Camera.Height)
	switch {
	case err == nil:
		a.closers = append(a.closers, yn)
		proposer = yn
		a.logger.Info("YuNetモデルを読み込みました", "model", cfg.Detection.ModelPath)
	case errors.Is(err, yunet.ErrModelNotFound):
		a.logger.Warn("YuNetモデルが見つからないため肌色検出で代用します", "model", cfg.Detection.ModelPath)
		proposer = face.NewSkinProposer()
	default:
		return nil, err
	}

	return detection.NewLoop(source, face.NewTwoStage(proposer), faceCfg, recorder,
		detection.WithInterval(cfg.Detection.Interval),
		detection.WithBackoff(cfg.Detection.Backoff),
	), nil
}

// FaceConfig は設定ファイルの値から検出設定を作る
func FaceConfig(c config.DetectionConfig) *face.Config {
	return &face.Config{
		MinFace:      c.MinFace,
		PyramidTimes: c.PyramidTimes,
		PyramidScale: c.PyramidScale,
		Proposal:     threshold(c.Proposal),
		Refine:       threshold(c.Refine),
	}
}

func threshold(t config.ThresholdConfig) face.Threshold {
	return face.Threshold{
		Score:           float32(t.Score),
		NMS:             float32(t.NMS),
		CandidateNumber: t.CandidateNumber,
	}
}

// Run はサーバーと顔検出ループを動かし、ctxのキャンセルかシグナルで停止する
func (a *App) Run(ctx context.Context) error {
	info := a.source.Info()
	a.logger.Info("Kaomi を起動します",
		"address", a.config.ServerAddress(),
		"stream", "http://"+a.config.ServerAddress()+"/stream",
		"sensor", info.Type, "device", info.Device,
		"detection", a.loop != nil)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if a.loop != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.loop.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("顔検出ループが異常終了しました", "error", err)
			}
		}()
	}

	err := a.server.Start(runCtx)

	cancel()
	wg.Wait()
	a.close()

	return err
}

// close はカメラと検出器を解放する
func (a *App) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.source != nil {
		if err := a.source.Close(ctx); err != nil {
			a.logger.Error("カメラのクローズに失敗しました", "error", err)
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Error("リソースの解放に失敗しました", "error", err)
		}
	}
	a.closers = nil
}
