package pipeline

import (
	"errors"
	"fmt"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// ErrEOS is returned by PullFrame once the appsink reached end of stream.
var ErrEOS = errors.New("end of stream")

// PullFrame blocks until the appsink has a sample and returns a copy of its
// pixel data. GStreamer reuses the buffer, so the bytes are always copied.
func PullFrame(sink *app.Sink) ([]byte, error) {
	if sink == nil {
		return nil, fmt.Errorf("appsink not initialized")
	}

	sample := sink.PullSample()
	if sample == nil {
		if sink.IsEOS() {
			return nil, ErrEOS
		}
		return nil, fmt.Errorf("failed to pull sample from appsink")
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		return nil, fmt.Errorf("failed to get buffer from sample")
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return nil, fmt.Errorf("empty buffer received")
	}

	frame := make([]byte, len(data))
	copy(frame, data)
	buffer.Unmap()

	return frame, nil
}
