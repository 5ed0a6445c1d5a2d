package sensor

import (
	"image"
	"time"
)

// Frame is a single RGBA camera frame.
//
// IMMUTABILITY CONTRACT:
//   - The camera worker MUST NOT modify a frame after FrameSlot.Store.
//   - Readers get their own copy through FrameSlot.Snapshot and may draw on it.
type Frame struct {
	// Data holds RGBA pixels, 4 bytes per pixel, rows packed (stride = 4*Width).
	Data []byte

	Width  int
	Height int

	// Seq is assigned by CameraSensor.Get, starting at 1.
	Seq uint64

	// Timestamp is the capture time (source time, not display time).
	Timestamp time.Time

	// TraceID correlates log lines about the same frame.
	TraceID string
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := *f
	c.Data = make([]byte, len(f.Data))
	copy(c.Data, f.Data)
	return &c
}

// Image wraps the frame pixels as an *image.RGBA without copying.
func (f *Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Data,
		Stride: 4 * f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}
