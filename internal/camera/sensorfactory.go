package camera

import (
	"context"
	"fmt"
	"sort"
)

// SensorType はセンサーの種別を定義
type SensorType string

const (
	// SensorTypeV4L2 はgo4vlで直接扱うV4L2デバイス
	SensorTypeV4L2 SensorType = "v4l2"
	// SensorTypeFFmpeg はffmpeg経由のV4L2デバイス
	SensorTypeFFmpeg SensorType = "ffmpeg"
	// SensorTypePattern は合成画像
	SensorTypePattern SensorType = "pattern"
)

// SensorCreator はセンサー作成関数の型
type SensorCreator func(settings Settings) (Sensor, error)

// SensorFactory はセンサー作成ファクトリー
type SensorFactory interface {
	CreateSensor(ctx context.Context, sensorType SensorType, settings Settings) (Sensor, error)
	GetSupportedTypes() []SensorType
}

// DefaultSensorFactory は標準実装
type DefaultSensorFactory struct {
	creators  map[SensorType]SensorCreator
	discovery Discovery
}

// NewSensorFactory は新しいファクトリーを作成する
func NewSensorFactory(discovery Discovery) *DefaultSensorFactory {
	factory := &DefaultSensorFactory{
		creators:  make(map[SensorType]SensorCreator),
		discovery: discovery,
	}

	factory.Register(SensorTypeV4L2, NewV4L2SensorFromConfig)
	factory.Register(SensorTypeFFmpeg, NewFFmpegSensorFromConfig)
	factory.Register(SensorTypePattern, NewPatternSensorFromConfig)

	return factory
}

// Register はセンサー作成関数を登録する
func (f *DefaultSensorFactory) Register(sensorType SensorType, creator SensorCreator) {
	f.creators[sensorType] = creator
}

// CreateSensor はセンサーを作成する
// デバイスを使う種別でデバイスパスが空の場合は、最初に見つかったカメラを使う
func (f *DefaultSensorFactory) CreateSensor(ctx context.Context, sensorType SensorType, settings Settings) (Sensor, error) {
	creator, exists := f.creators[sensorType]
	if !exists {
		return nil, fmt.Errorf("サポートされていないセンサー種別: %s", sensorType)
	}

	if sensorType != SensorTypePattern && f.discovery != nil {
		device, err := f.resolveDevice(ctx, settings.Device)
		if err != nil {
			return nil, err
		}
		settings.Device = device
	}

	return creator(settings)
}

// resolveDevice は使用するデバイスパスを決める
func (f *DefaultSensorFactory) resolveDevice(ctx context.Context, device string) (string, error) {
	if device != "" {
		if !f.discovery.IsDeviceAvailable(ctx, device) {
			return "", fmt.Errorf("デバイスが利用できません: %s", device)
		}
		return device, nil
	}

	devices, err := f.discovery.ScanDevices(ctx)
	if err != nil {
		return "", fmt.Errorf("カメラの検出に失敗: %w", err)
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("利用可能なカメラが見つかりません")
	}
	return devices[0], nil
}

// GetSupportedTypes はサポートされているセンサー種別を返す
func (f *DefaultSensorFactory) GetSupportedTypes() []SensorType {
	types := make([]SensorType, 0, len(f.creators))
	for sensorType := range f.creators {
		types = append(types, sensorType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
