// Package sensor defines the acquisition sources feeding the live display.
//
// Two variants implement the Sensor contract:
//
//   - PeriodicSensor: simulated scalar sensor sampled at a fixed delay.
//     Get sleeps for the delay and returns a monotonically increasing counter.
//   - CameraSensor: wraps a FrameSource (GStreamer device, test pattern or
//     synthetic generator). Get pulls one frame and stores it into the
//     FrameSlot it was constructed with, returning the frame sequence number.
//
// Lifecycle:
//
//	cam, err := sensor.NewCameraSensor("camera", cfg, open, slot) // fails with ErrDeviceUnavailable
//	defer cam.Close()                                        // releases the device exactly once
//	for cam.IsRunning() {
//	    if _, err := cam.Get(); err != nil { break }         // read failure is terminal
//	}
//
// Stop is cooperative: it only flips the run-state flag. A sensor blocked in
// Get (sampling sleep, frame read) finishes that call before its worker
// observes the flag, so shutdown latency is bounded by the longest blocking
// call in flight, not instantaneous.
package sensor
