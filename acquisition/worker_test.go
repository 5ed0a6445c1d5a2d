package acquisition

import (
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/e7canasta/sensor-display/queue"
	"github.com/e7canasta/sensor-display/sensor"
)

// gatedSensor blocks every Get until the test releases it.
type gatedSensor struct {
	sensor.Base
	gate  chan struct{}
	calls atomic.Int64
}

func newGatedSensor() *gatedSensor {
	s := &gatedSensor{gate: make(chan struct{})}
	s.SensorName = "gated"
	return s
}

func (s *gatedSensor) Get() (int64, error) {
	n := s.calls.Add(1)
	<-s.gate
	return n, nil
}

// failingSensor fails after n successful reads.
type failingSensor struct {
	sensor.Base
	n     int
	calls int
}

func (s *failingSensor) Get() (int64, error) {
	s.calls++
	if s.calls > s.n {
		return 0, errors.New("read failed")
	}
	return int64(s.calls), nil
}

func TestWorker_AtMostOneGetAfterStop(t *testing.T) {
	s := newGatedSensor()
	q, _ := queue.New[int64](10)
	w, err := NewPeriodicWorker(s, q)
	if err != nil {
		t.Fatal(err)
	}

	var g Group
	g.Go(w)

	// Let a few reads through, then stop while a Get is in flight.
	for i := 0; i < 3; i++ {
		s.gate <- struct{}{}
	}
	for s.calls.Load() < 4 {
		time.Sleep(time.Millisecond)
	}
	callsAtStop := s.calls.Load()
	s.Stop()
	close(s.gate)

	g.Wait()

	if got := s.calls.Load(); got > callsAtStop+1 {
		t.Errorf("Get called %d times, want <= %d after Stop", got, callsAtStop+1)
	}
	if !w.Stats().Done {
		t.Error("worker should report done")
	}
}

func TestWorker_PeriodicPushesInOrder(t *testing.T) {
	s, _ := sensor.NewPeriodicSensor("Sensor1", 0)
	q, _ := queue.New[int64](10)
	w, _ := NewPeriodicWorker(s, q)

	var g Group
	g.Go(w)

	for q.Stats().Pushed+q.Stats().Dropped < 20 {
		time.Sleep(time.Millisecond)
	}
	s.Stop()
	g.Wait()

	// The queue was never drained: it must hold exactly the first 10 values.
	for want := int64(1); want <= 10; want++ {
		got, ok := q.TryPop()
		if !ok || got != want {
			t.Fatalf("TryPop() = (%d, %v), want %d", got, ok, want)
		}
	}
	if q.Stats().Dropped == 0 {
		t.Error("expected drops on a full, undrained queue")
	}
}

func TestWorker_ExitsOnReadFailure(t *testing.T) {
	s := &failingSensor{n: 2}
	s.SensorName = "camera"
	w, _ := NewCameraWorker(s)

	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after read failure")
	}

	st := w.Stats()
	if st.Reads != 2 || st.Failures != 1 {
		t.Errorf("Stats() = %+v, want reads=2 failures=1", st)
	}
	if st.LastErr == "" {
		t.Error("last error not recorded")
	}
	if !s.IsRunning() {
		t.Error("a read failure must not stop the sensor itself")
	}
}

func TestNewPeriodicWorker_RequiresQueue(t *testing.T) {
	s, _ := sensor.NewPeriodicSensor("Sensor1", 0)
	if _, err := NewPeriodicWorker(s, nil); err == nil {
		t.Error("expected error for nil queue")
	}
	if _, err := NewCameraWorker(nil); err == nil {
		t.Error("expected error for nil sensor")
	}
}

func TestCalculateRate(t *testing.T) {
	t0 := time.Unix(0, 0)

	t.Run("steady_100hz", func(t *testing.T) {
		times := make([]time.Time, 11)
		for i := range times {
			times[i] = t0.Add(time.Duration(i) * 10 * time.Millisecond)
		}
		st := CalculateRate(times)
		if math.Abs(st.RateMean-100) > 0.001 {
			t.Errorf("RateMean = %f, want 100", st.RateMean)
		}
		if st.JitterMax > 1e-9 {
			t.Errorf("JitterMax = %f, want 0", st.JitterMax)
		}
		if !st.IsStable {
			t.Error("steady rate should be stable")
		}
	})

	t.Run("too_few_samples", func(t *testing.T) {
		st := CalculateRate([]time.Time{t0})
		if st.Samples != 1 || st.RateMean != 0 {
			t.Errorf("CalculateRate(1 sample) = %+v", st)
		}
	})

	t.Run("irregular", func(t *testing.T) {
		times := []time.Time{
			t0,
			t0.Add(10 * time.Millisecond),
			t0.Add(50 * time.Millisecond),
			t0.Add(60 * time.Millisecond),
		}
		st := CalculateRate(times)
		if st.IsStable {
			t.Error("irregular intervals should not be stable")
		}
		if math.Abs(st.RateMax-100) > 0.001 {
			t.Errorf("RateMax = %f, want 100", st.RateMax)
		}
	})
}
