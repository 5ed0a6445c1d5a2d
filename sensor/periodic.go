package sensor

import (
	"fmt"
	"time"
)

// PeriodicSensor simulates a hardware sensor sampled at a fixed delay.
//
// The counter is owned by the goroutine calling Get; nothing else reads it.
type PeriodicSensor struct {
	Base

	delay   time.Duration
	counter int64
}

// NewPeriodicSensor creates a scalar sensor with the given sampling delay.
func NewPeriodicSensor(name string, delay time.Duration) (*PeriodicSensor, error) {
	if name == "" {
		return nil, fmt.Errorf("sensor: name is required")
	}
	if delay < 0 {
		return nil, fmt.Errorf("sensor %q: invalid delay %v (must be >= 0)", name, delay)
	}

	s := &PeriodicSensor{delay: delay}
	s.SensorName = name
	return s, nil
}

// Get sleeps for the sampling delay, then returns the next counter value
// (1, 2, 3, ...). The sleep is not interruptible: a Stop issued meanwhile is
// observed by the worker only after Get returns.
func (s *PeriodicSensor) Get() (int64, error) {
	time.Sleep(s.delay)
	s.counter++
	return s.counter, nil
}

// Delay returns the sampling delay.
func (s *PeriodicSensor) Delay() time.Duration {
	return s.delay
}

// RateHz returns the nominal sampling rate, or 0 for a zero delay.
func (s *PeriodicSensor) RateHz() float64 {
	if s.delay <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.delay)
}

// Label returns the overlay label, e.g. "Sensor1 (100 Hz)".
func (s *PeriodicSensor) Label() string {
	rate := s.RateHz()
	if rate == 0 {
		return s.SensorName
	}
	if rate >= 1 {
		return fmt.Sprintf("%s (%.0f Hz)", s.SensorName, rate)
	}
	return fmt.Sprintf("%s (%.2f Hz)", s.SensorName, rate)
}
