package sensor

import "errors"

var (
	// ErrNotImplemented is returned by Base.Get. Reaching it means a variant
	// forgot to override Get; it is a programming error, not a runtime
	// condition to recover from.
	ErrNotImplemented = errors.New("sensor: get not implemented")

	// ErrDeviceUnavailable reports that a capture device could not be opened.
	// Fatal to startup.
	ErrDeviceUnavailable = errors.New("sensor: device unavailable")

	// ErrFrameRead reports a failed frame pull. Terminal for the camera
	// acquisition loop.
	ErrFrameRead = errors.New("sensor: frame read failed")
)
