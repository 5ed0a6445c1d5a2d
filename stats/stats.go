// Package stats collects pipeline counters, logs them periodically and
// prints the final summary at shutdown.
package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/e7canasta/sensor-display/acquisition"
	"github.com/e7canasta/sensor-display/control"
	"github.com/e7canasta/sensor-display/display"
	"github.com/e7canasta/sensor-display/queue"
	"github.com/e7canasta/sensor-display/sensor"
)

// Snapshot is a point-in-time view of every pipeline counter.
type Snapshot struct {
	RunID   string              `json:"run_id"`
	Uptime  time.Duration       `json:"uptime"`
	State   string              `json:"state"`
	Camera  sensor.SlotStats    `json:"camera"`
	Workers []acquisition.Stats `json:"workers"`
	Queues  []QueueStats        `json:"queues"`
	Display display.Stats       `json:"display"`

	// Source is nil when the frame source keeps no counters.
	Source  *sensor.SourceStats `json:"source,omitempty"`
	// Control is nil when the control plane is not running.
	Control *control.Stats      `json:"control,omitempty"`
}

// QueueStats names the counters of one reading queue.
type QueueStats struct {
	Sensor string `json:"sensor"`
	queue.Stats
}

// Map converts the snapshot to a generic map (control plane payload).
func (s Snapshot) Map() map[string]interface{} {
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	return m
}

// Reporter logs a snapshot on a fixed interval.
type Reporter struct {
	scheduler gocron.Scheduler
	source    func() Snapshot
	reports   atomic.Uint64
}

// NewReporter schedules a stats report every interval.
func NewReporter(interval time.Duration, source func() Snapshot) (*Reporter, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("stats: invalid interval %v (must be > 0)", interval)
	}
	if source == nil {
		return nil, fmt.Errorf("stats: snapshot source is required")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("stats: failed to create scheduler: %w", err)
	}

	r := &Reporter{scheduler: s, source: source}

	if _, err := s.NewJob(gocron.DurationJob(interval), gocron.NewTask(r.Report)); err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("stats: failed to schedule report: %w", err)
	}

	return r, nil
}

// Start starts the scheduler.
func (r *Reporter) Start() {
	r.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for a running report to finish.
func (r *Reporter) Stop() error {
	return r.scheduler.Shutdown()
}

// Reports returns the number of reports logged.
func (r *Reporter) Reports() uint64 {
	return r.reports.Load()
}

// Report logs one snapshot.
func (r *Reporter) Report() {
	s := r.source()
	r.reports.Add(1)

	slog.Info("stats: pipeline",
		"uptime", s.Uptime.Round(time.Second),
		"state", s.State,
		"display_cycles", s.Display.Cycles,
		"display_renders", s.Display.Renders,
		"frames", s.Camera.Stored,
		"frames_overwritten", s.Camera.Overwritten,
	)
	if s.Source != nil {
		slog.Debug("stats: source",
			"frames", s.Source.Frames,
			"bytes_read", s.Source.BytesRead,
		)
	}
	if s.Control != nil {
		slog.Info("stats: control",
			"received", s.Control.Received,
			"rejected", s.Control.Rejected,
		)
	}
	for _, q := range s.Queues {
		slog.Info("stats: queue",
			"sensor", q.Sensor,
			"pushed", q.Pushed,
			"dropped", q.Dropped,
			"popped", q.Popped,
			"len", q.Len,
		)
	}
	for _, w := range s.Workers {
		slog.Debug("stats: worker",
			"sensor", w.Sensor,
			"reads", w.Reads,
			"rate_hz", fmt.Sprintf("%.2f", w.Rate.RateMean),
			"jitter_ms", fmt.Sprintf("%.2f", w.Rate.JitterMean*1000),
		)
	}
}

// PrintSummary writes the final statistics.
func PrintSummary(w io.Writer, s Snapshot) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╭─────────────────────────────────────────────────────────────────╮")
	fmt.Fprintf(w, "│ Final Statistics (Uptime: %v)\n", s.Uptime.Round(time.Second))
	fmt.Fprintln(w, "├─────────────────────────────────────────────────────────────────┤")

	fmt.Fprintln(w, "│ Camera:")
	fmt.Fprintf(w, "│   Frames Stored:      %6d frames\n", s.Camera.Stored)
	fmt.Fprintf(w, "│   Frames Overwritten: %6d frames (never displayed)\n", s.Camera.Overwritten)
	if s.Source != nil {
		fmt.Fprintf(w, "│   Frames Read:        %6d frames (%.1f MB)\n",
			s.Source.Frames, float64(s.Source.BytesRead)/(1024*1024))
	}

	fmt.Fprintln(w, "│")
	fmt.Fprintln(w, "│ Display:")
	fmt.Fprintf(w, "│   Cycles:             %6d\n", s.Display.Cycles)
	fmt.Fprintf(w, "│   Renders:            %6d\n", s.Display.Renders)
	fmt.Fprintf(w, "│   Skipped (no frame): %6d\n", s.Display.Skipped)
	if s.Display.RenderErrors > 0 {
		fmt.Fprintf(w, "│   Render Errors:      %6d\n", s.Display.RenderErrors)
	}

	fmt.Fprintln(w, "│")
	fmt.Fprintln(w, "│ Queues:")
	for _, q := range s.Queues {
		total := q.Pushed + q.Dropped
		dropRate := 0.0
		if total > 0 {
			dropRate = float64(q.Dropped) / float64(total) * 100.0
		}
		fmt.Fprintf(w, "│   %-12s pushed %6d  dropped %6d (%.1f%%)  popped %6d\n",
			q.Sensor, q.Pushed, q.Dropped, dropRate, q.Popped)
	}

	fmt.Fprintln(w, "│")
	fmt.Fprintln(w, "│ Workers:")
	for _, wk := range s.Workers {
		status := "ok"
		if wk.LastErr != "" {
			status = "failed: " + wk.LastErr
		}
		fmt.Fprintf(w, "│   %-12s reads %7d  rate %7.2f Hz  jitter %6.2f ms  %s\n",
			wk.Sensor, wk.Reads, wk.Rate.RateMean, wk.Rate.JitterMean*1000, status)
	}

	if s.Control != nil {
		fmt.Fprintln(w, "│")
		fmt.Fprintln(w, "│ Control:")
		fmt.Fprintf(w, "│   Commands Received:  %6d\n", s.Control.Received)
		fmt.Fprintf(w, "│   Commands Rejected:  %6d\n", s.Control.Rejected)
	}

	fmt.Fprintln(w, "╰─────────────────────────────────────────────────────────────────╯")
}
