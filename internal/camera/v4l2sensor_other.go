//go:build !linux

package camera

import "fmt"

// NewV4L2SensorFromConfig はLinux以外では利用できない
func NewV4L2SensorFromConfig(_ Settings) (Sensor, error) {
	return nil, fmt.Errorf("V4L2センサーはLinuxでのみ利用できます")
}
