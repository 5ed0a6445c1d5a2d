// Package acquisition runs one goroutine per sensor.
//
// A periodic worker pushes each reading onto its bounded queue, dropping it
// when the queue is full. A camera worker only drives Get; the camera sensor
// publishes frames into its slot itself. Both loops check IsRunning at the
// top of every iteration, so after Stop a worker performs at most one more
// Get. Any Get error ends the loop: there is no retry.
package acquisition

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/e7canasta/sensor-display/queue"
	"github.com/e7canasta/sensor-display/sensor"
)

// timestampWindow bounds the reading timestamps kept for rate statistics.
const timestampWindow = 256

// Worker drives one sensor.
type Worker struct {
	sensor sensor.Sensor
	out    *queue.Bounded[int64] // nil for the camera worker

	reads    atomic.Uint64
	failures atomic.Uint64
	done     atomic.Bool

	mu      sync.Mutex
	times   []time.Time // ring of recent reading timestamps
	next    int
	lastErr error
}

// Stats is a snapshot of worker counters.
type Stats struct {
	Sensor   string    `json:"sensor"`
	Reads    uint64    `json:"reads"`
	Failures uint64    `json:"failures"`
	Done     bool      `json:"done"`
	LastErr  string    `json:"last_error,omitempty"`
	Rate     RateStats `json:"rate"`
}

// NewPeriodicWorker creates a worker pushing readings of s onto q.
func NewPeriodicWorker(s sensor.Sensor, q *queue.Bounded[int64]) (*Worker, error) {
	if s == nil {
		return nil, fmt.Errorf("acquisition: sensor is required")
	}
	if q == nil {
		return nil, fmt.Errorf("acquisition: queue is required for %q", s.Name())
	}
	return &Worker{sensor: s, out: q}, nil
}

// NewCameraWorker creates a worker driving a camera sensor.
func NewCameraWorker(s sensor.Sensor) (*Worker, error) {
	if s == nil {
		return nil, fmt.Errorf("acquisition: sensor is required")
	}
	return &Worker{sensor: s}, nil
}

// Sensor returns the driven sensor.
func (w *Worker) Sensor() sensor.Sensor {
	return w.sensor
}

// Run loops until the sensor is stopped or Get fails. It blocks; run it on
// its own goroutine (see Group).
func (w *Worker) Run() {
	defer w.done.Store(true)

	name := w.sensor.Name()
	slog.Debug("acquisition: worker started", "sensor", name)

	for w.sensor.IsRunning() {
		v, err := w.sensor.Get()
		if err != nil {
			w.failures.Add(1)
			w.mu.Lock()
			w.lastErr = err
			w.mu.Unlock()

			slog.Error("acquisition: read failed, worker exiting",
				"sensor", name,
				"reads", w.reads.Load(),
				"error", err,
			)
			return
		}

		w.record(time.Now())

		if w.out == nil {
			continue
		}

		slog.Debug("acquisition: adding reading to queue", "sensor", name, "value", v)
		if !w.out.TryPush(v) {
			slog.Debug("acquisition: queue full, dropping reading", "sensor", name, "value", v)
		}
	}

	slog.Debug("acquisition: worker stopped", "sensor", name, "reads", w.reads.Load())
}

func (w *Worker) record(t time.Time) {
	w.reads.Add(1)

	w.mu.Lock()
	if len(w.times) < timestampWindow {
		w.times = append(w.times, t)
	} else {
		w.times[w.next] = t
		w.next = (w.next + 1) % timestampWindow
	}
	w.mu.Unlock()
}

// Stats returns worker counters and the effective sampling rate over the
// most recent readings.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	ordered := make([]time.Time, 0, len(w.times))
	ordered = append(ordered, w.times[w.next:]...)
	ordered = append(ordered, w.times[:w.next]...)
	lastErr := w.lastErr
	w.mu.Unlock()

	st := Stats{
		Sensor:   w.sensor.Name(),
		Reads:    w.reads.Load(),
		Failures: w.failures.Load(),
		Done:     w.done.Load(),
		Rate:     CalculateRate(ordered),
	}
	if lastErr != nil {
		st.LastErr = lastErr.Error()
	}
	return st
}

// Group runs workers on their own goroutines and joins them.
type Group struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	workers []*Worker
}

// Go starts w on a new goroutine.
func (g *Group) Go(w *Worker) {
	g.mu.Lock()
	g.workers = append(g.workers, w)
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		w.Run()
	}()
}

// Wait blocks until every started worker has returned. No timeout.
func (g *Group) Wait() {
	g.wg.Wait()
}

// Started returns the number of workers started so far.
func (g *Group) Started() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.workers)
}

// Stats returns the stats of every started worker, in start order.
func (g *Group) Stats() []Stats {
	g.mu.Lock()
	workers := append([]*Worker(nil), g.workers...)
	g.mu.Unlock()

	out := make([]Stats, 0, len(workers))
	for _, w := range workers {
		out = append(out, w.Stats())
	}
	return out
}
