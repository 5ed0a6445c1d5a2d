// Package capture opens camera devices through GStreamer and exposes them as
// sensor.FrameSource values.
//
// Pipeline: v4l2src (or videotestsrc) → videoconvert → videoscale →
// capsfilter(RGBA, WxH) → appsink. Frames are pulled synchronously by the
// camera acquisition worker; the appsink keeps only the newest buffer.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/sensor-display/capture/internal/pipeline"
	"github.com/e7canasta/sensor-display/sensor"
)

// StartTimeout bounds how long Open waits for the pipeline to reach PLAYING.
const StartTimeout = 5 * time.Second

// Source is a GStreamer-backed frame source.
type Source struct {
	cfg      sensor.CameraConfig
	elements *pipeline.Elements

	frames    atomic.Uint64
	bytesRead atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// Open builds and starts the capture pipeline. It is a sensor.OpenFunc.
//
// Missing device nodes, negative indexes and pipeline start failures are
// reported as sensor.ErrDeviceUnavailable; nothing is left running.
func Open(cfg sensor.CameraConfig) (sensor.FrameSource, error) {
	if cfg.DeviceIndex < 0 {
		return nil, fmt.Errorf("capture: %w: invalid device index %d", sensor.ErrDeviceUnavailable, cfg.DeviceIndex)
	}

	source := cfg.Source
	if source == "" {
		source = pipeline.SourceV4L2
	}

	pcfg := pipeline.Config{
		Source: source,
		Width:  cfg.Width,
		Height: cfg.Height,
		FPS:    cfg.FPS,
	}

	if source == pipeline.SourceV4L2 {
		pcfg.Device = cfg.Device()
		if _, err := os.Stat(pcfg.Device); err != nil {
			return nil, fmt.Errorf("capture: %w: %v", sensor.ErrDeviceUnavailable, err)
		}
	}

	elements, err := pipeline.Create(pcfg)
	if err != nil {
		return nil, fmt.Errorf("capture: %w: %v", sensor.ErrDeviceUnavailable, err)
	}

	if err := pipeline.Start(elements, StartTimeout); err != nil {
		if derr := pipeline.Destroy(elements); derr != nil {
			slog.Warn("capture: failed to destroy pipeline after start error", "error", derr)
		}

		var perr *pipeline.Error
		if errors.As(err, &perr) {
			return nil, fmt.Errorf("capture: %w: %s device %s: %v",
				sensor.ErrDeviceUnavailable, perr.Category, pcfg.Device, err)
		}
		return nil, fmt.Errorf("capture: %w: %v", sensor.ErrDeviceUnavailable, err)
	}

	slog.Info("capture: pipeline playing",
		"source", source,
		"device", pcfg.Device,
		"resolution", cfg.Resolution(),
	)

	return &Source{cfg: cfg, elements: elements}, nil
}

// ReadFrame blocks until the next frame is available.
func (s *Source) ReadFrame() (*sensor.Frame, error) {
	data, err := pipeline.PullFrame(s.elements.AppSink)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	want := s.cfg.Width * s.cfg.Height * 4
	if len(data) < want {
		return nil, fmt.Errorf("capture: short frame: %d bytes, want %d", len(data), want)
	}

	s.frames.Add(1)
	s.bytesRead.Add(uint64(len(data)))

	return &sensor.Frame{
		Data:      data[:want],
		Width:     s.cfg.Width,
		Height:    s.cfg.Height,
		Timestamp: time.Now(),
	}, nil
}

// Close stops the pipeline. Only the first call has an effect.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = pipeline.Destroy(s.elements)
		slog.Debug("capture: pipeline destroyed",
			"frames", s.frames.Load(),
			"bytes_read", s.bytesRead.Load(),
		)
	})
	return s.closeErr
}

// Stats returns capture counters.
func (s *Source) Stats() sensor.SourceStats {
	return sensor.SourceStats{
		Frames:    s.frames.Load(),
		BytesRead: s.bytesRead.Load(),
	}
}
