package sensor

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Sensor is the capability contract shared by all acquisition sources.
//
// Contract:
//   - Get blocks (sampling sleep or frame read) and returns the newest reading.
//   - Stop is idempotent and never blocks. It only clears the run-state flag.
//   - IsRunning is true until the first Stop and never becomes true again.
//
// Get is called from a single acquisition goroutine. Stop and IsRunning are
// safe from any goroutine.
type Sensor interface {
	Name() string
	Get() (int64, error)
	Stop()
	IsRunning() bool
}

// Base carries the run-state flag shared by every variant. Variants embed it
// and override Get. The zero value is a running sensor.
type Base struct {
	// SensorName identifies the sensor in logs and overlays.
	SensorName string

	stopped atomic.Bool
}

// Name returns the sensor name.
func (b *Base) Name() string {
	return b.SensorName
}

// Get always fails with ErrNotImplemented.
func (b *Base) Get() (int64, error) {
	return 0, fmt.Errorf("sensor %q: %w", b.SensorName, ErrNotImplemented)
}

// Stop clears the run-state flag. Only the first call has an effect.
func (b *Base) Stop() {
	if b.stopped.CompareAndSwap(false, true) {
		slog.Debug("sensor: stop requested", "sensor", b.SensorName)
	}
}

// IsRunning reports whether Stop has not been called yet.
func (b *Base) IsRunning() bool {
	return !b.stopped.Load()
}
