package sensor

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// SyntheticSource generates RGBA test frames in process, paced at the
// configured FPS. Used when no capture device is present.
type SyntheticSource struct {
	width    int
	height   int
	interval time.Duration

	next      time.Time
	frames    atomic.Uint64
	bytesRead atomic.Uint64
	closed    atomic.Bool
}

// OpenSynthetic is an OpenFunc for the "synthetic" source. A negative device
// index is rejected as an unavailable device.
func OpenSynthetic(cfg CameraConfig) (FrameSource, error) {
	if cfg.DeviceIndex < 0 {
		return nil, fmt.Errorf("synthetic: %w: device index %d", ErrDeviceUnavailable, cfg.DeviceIndex)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("synthetic: invalid resolution %dx%d", cfg.Width, cfg.Height)
	}
	fps := cfg.FPS
	if fps <= 0 {
		fps = 30
	}
	return &SyntheticSource{
		width:    cfg.Width,
		height:   cfg.Height,
		interval: time.Second / time.Duration(fps),
	}, nil
}

// ReadFrame sleeps until the next frame is due and returns a moving gradient.
func (s *SyntheticSource) ReadFrame() (*Frame, error) {
	if s.closed.Load() {
		return nil, errors.New("synthetic: source closed")
	}

	now := time.Now()
	if s.next.IsZero() {
		s.next = now
	}
	if wait := s.next.Sub(now); wait > 0 {
		time.Sleep(wait)
	}
	s.next = s.next.Add(s.interval)

	data := make([]byte, s.width*s.height*4)
	shift := int(s.frames.Load())
	for y := 0; y < s.height; y++ {
		row := data[y*s.width*4 : (y+1)*s.width*4]
		for x := 0; x < s.width; x++ {
			i := x * 4
			row[i] = byte(x + shift)
			row[i+1] = byte(y)
			row[i+2] = byte(shift)
			row[i+3] = 0xff
		}
	}
	s.frames.Add(1)
	s.bytesRead.Add(uint64(len(data)))

	return &Frame{
		Data:      data,
		Width:     s.width,
		Height:    s.height,
		Timestamp: time.Now(),
	}, nil
}

// Close marks the source closed. Subsequent reads fail.
func (s *SyntheticSource) Close() error {
	s.closed.Store(true)
	return nil
}

// Stats returns the frames generated so far.
func (s *SyntheticSource) Stats() SourceStats {
	return SourceStats{
		Frames:    s.frames.Load(),
		BytesRead: s.bytesRead.Load(),
	}
}
