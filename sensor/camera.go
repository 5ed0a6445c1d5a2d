package sensor

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FrameSource is an opened capture device.
//
// ReadFrame blocks until the next frame is available. Any error is terminal
// for the source. Close releases the device; callers guarantee it is called
// once.
type FrameSource interface {
	ReadFrame() (*Frame, error)
	Close() error
}

// SourceStats holds frame source counters.
type SourceStats struct {
	Frames    uint64 `json:"frames"`
	BytesRead uint64 `json:"bytes_read"`
}

// StatsReporter is implemented by frame sources that count what they read.
type StatsReporter interface {
	Stats() SourceStats
}

// OpenFunc opens a FrameSource for the given configuration.
type OpenFunc func(cfg CameraConfig) (FrameSource, error)

// CameraConfig describes the capture device to open.
type CameraConfig struct {
	// DeviceIndex selects /dev/video<N> for the v4l2 source.
	DeviceIndex int

	// Width and Height of the delivered RGBA frames.
	Width  int
	Height int

	// Source is "v4l2" (default), "test" (GStreamer test pattern) or
	// "synthetic" (in-process generator, no GStreamer).
	Source string

	// DevicePath is a fmt template taking DeviceIndex. Default "/dev/video%d".
	DevicePath string

	// FPS paces the test and synthetic sources. 0 means 30.
	FPS int
}

// Device returns the resolved device path.
func (c CameraConfig) Device() string {
	tmpl := c.DevicePath
	if tmpl == "" {
		tmpl = "/dev/video%d"
	}
	return fmt.Sprintf(tmpl, c.DeviceIndex)
}

// Resolution returns "WxH".
func (c CameraConfig) Resolution() string {
	return fmt.Sprintf("%dx%d", c.Width, c.Height)
}

// CameraSensor pulls frames from a FrameSource and publishes each one into
// the injected FrameSlot. Get returns the sequence number of the stored frame.
type CameraSensor struct {
	Base

	cfg  CameraConfig
	src  FrameSource
	slot *FrameSlot

	seq uint64 // owned by the Get caller

	closeOnce sync.Once
	closeErr  error
}

// NewCameraSensor opens the capture device. A failure is returned wrapped in
// ErrDeviceUnavailable and nothing is left open.
func NewCameraSensor(name string, cfg CameraConfig, open OpenFunc, slot *FrameSlot) (*CameraSensor, error) {
	if name == "" {
		return nil, fmt.Errorf("sensor: name is required")
	}
	if slot == nil {
		return nil, fmt.Errorf("sensor %q: frame slot is required", name)
	}
	if open == nil {
		return nil, fmt.Errorf("sensor %q: open function is required", name)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("sensor %q: %w: invalid resolution %dx%d",
			name, ErrDeviceUnavailable, cfg.Width, cfg.Height)
	}

	src, err := open(cfg)
	if err != nil {
		slog.Error("sensor: camera init failed",
			"sensor", name,
			"device_index", cfg.DeviceIndex,
			"resolution", cfg.Resolution(),
			"source", cfg.Source,
			"error", err,
		)
		if errors.Is(err, ErrDeviceUnavailable) {
			return nil, fmt.Errorf("sensor %q: %w", name, err)
		}
		return nil, fmt.Errorf("sensor %q: %w: %v", name, ErrDeviceUnavailable, err)
	}

	slog.Info("sensor: camera initialized",
		"sensor", name,
		"device_index", cfg.DeviceIndex,
		"resolution", cfg.Resolution(),
		"source", cfg.Source,
	)

	c := &CameraSensor{cfg: cfg, src: src, slot: slot}
	c.SensorName = name
	return c, nil
}

// Get reads one frame, stores it into the slot and returns its sequence
// number. A read failure, or a frame whose pixel data does not cover
// Width x Height RGBA, is wrapped in ErrFrameRead and the slot keeps the last
// good frame.
func (c *CameraSensor) Get() (int64, error) {
	frame, err := c.src.ReadFrame()
	if err != nil {
		return 0, fmt.Errorf("sensor %q: %w: %v", c.SensorName, ErrFrameRead, err)
	}
	if frame == nil {
		return 0, fmt.Errorf("sensor %q: %w: empty frame", c.SensorName, ErrFrameRead)
	}
	if frame.Width <= 0 || frame.Height <= 0 || len(frame.Data) < 4*frame.Width*frame.Height {
		return 0, fmt.Errorf("sensor %q: %w: malformed frame %dx%d with %d bytes",
			c.SensorName, ErrFrameRead, frame.Width, frame.Height, len(frame.Data))
	}

	c.seq++
	frame.Seq = c.seq
	if frame.Timestamp.IsZero() {
		frame.Timestamp = time.Now()
	}
	if frame.TraceID == "" {
		frame.TraceID = uuid.New().String()
	}

	c.slot.Store(frame)

	slog.Debug("sensor: frame stored",
		"sensor", c.SensorName,
		"seq", frame.Seq,
		"trace_id", frame.TraceID,
	)

	return int64(frame.Seq), nil
}

// Config returns the configuration the camera was opened with.
func (c *CameraSensor) Config() CameraConfig {
	return c.cfg
}

// Slot returns the frame slot the camera writes into.
func (c *CameraSensor) Slot() *FrameSlot {
	return c.slot
}

// SourceStats returns the source counters, or false if the source does not
// report any. Safe from any goroutine when the source's Stats is.
func (c *CameraSensor) SourceStats() (SourceStats, bool) {
	r, ok := c.src.(StatsReporter)
	if !ok {
		return SourceStats{}, false
	}
	return r.Stats(), true
}

// Close releases the capture device. Only the first call reaches the device;
// later calls return the first result. Safe on a nil receiver.
func (c *CameraSensor) Close() error {
	if c == nil {
		return nil
	}
	c.closeOnce.Do(func() {
		if c.src == nil {
			return
		}
		c.closeErr = c.src.Close()
		if c.closeErr != nil {
			slog.Warn("sensor: camera release failed", "sensor", c.SensorName, "error", c.closeErr)
			return
		}
		slog.Info("sensor: camera released", "sensor", c.SensorName, "frames", c.seq)
	})
	return c.closeErr
}
