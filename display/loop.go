package display

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/e7canasta/sensor-display/sensor"
)

// ExitReason tells why the display loop ended.
type ExitReason int

const (
	// ExitKeyPressed: the configured exit key was pressed.
	ExitKeyPressed ExitReason = iota
	// ExitWindowClosed: the backend reported the window was closed.
	ExitWindowClosed
	// ExitCancelled: the context was cancelled (signal or remote command).
	ExitCancelled
)

func (r ExitReason) String() string {
	switch r {
	case ExitKeyPressed:
		return "exit key"
	case ExitWindowClosed:
		return "window closed"
	case ExitCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// LoopConfig configures the display loop.
type LoopConfig struct {
	// Frequency is the target cycle rate in Hz.
	Frequency float64

	// ExitKey ends the loop when pressed. Default "q".
	ExitKey string

	// AfterCycle, when set, is called at the end of every cycle with a copy
	// of the display state.
	AfterCycle func(State)
}

// Loop is the fixed-rate display loop.
type Loop struct {
	cfg      LoopConfig
	interval time.Duration
	slot     *sensor.FrameSlot
	channels []Channel
	renderer Renderer

	state State

	cycles       atomic.Uint64
	renders      atomic.Uint64
	skipped      atomic.Uint64
	renderErrors atomic.Uint64
}

// Stats is a snapshot of display loop counters.
type Stats struct {
	Cycles       uint64 `json:"cycles"`
	Renders      uint64 `json:"renders"`
	Skipped      uint64 `json:"skipped"` // cycles without a camera frame
	RenderErrors uint64 `json:"render_errors"`
}

// NewLoop validates the configuration and creates a loop. It does not start it.
func NewLoop(cfg LoopConfig, slot *sensor.FrameSlot, channels []Channel, r Renderer) (*Loop, error) {
	if cfg.Frequency <= 0 {
		return nil, fmt.Errorf("display: invalid frequency %v (must be > 0)", cfg.Frequency)
	}
	if slot == nil {
		return nil, fmt.Errorf("display: frame slot is required")
	}
	if r == nil {
		return nil, fmt.Errorf("display: renderer is required")
	}
	for i, ch := range channels {
		if ch.Queue == nil {
			return nil, fmt.Errorf("display: channel %d (%s) has no queue", i, ch.Label)
		}
	}
	if cfg.ExitKey == "" {
		cfg.ExitKey = "q"
	}

	return &Loop{
		cfg:      cfg,
		interval: time.Duration(float64(time.Second) / cfg.Frequency),
		slot:     slot,
		channels: channels,
		renderer: r,
		state:    State{Readings: make([]Reading, len(channels))},
	}, nil
}

// Run executes display cycles until the exit key is pressed, the window is
// closed or ctx is cancelled. Cancellation is checked once per cycle.
//
// Each cycle:
//  1. Snapshot the camera frame (nil until the camera produced one)
//  2. Pop at most one value per queue; an empty queue keeps the last value
//  3. If a frame exists, draw the overlay on it and show it; else skip
//  4. Poll input
//  5. Sleep 1/Frequency (time spent in the cycle is not compensated)
func (l *Loop) Run(ctx context.Context) ExitReason {
	slog.Info("display: loop started",
		"frequency_hz", l.cfg.Frequency,
		"channels", len(l.channels),
		"exit_key", l.cfg.ExitKey,
	)

	for {
		if ctx.Err() != nil {
			return l.exit(ExitCancelled)
		}

		frame := l.slot.Snapshot()

		for i, ch := range l.channels {
			if v, ok := ch.Queue.TryPop(); ok {
				l.state.Readings[i] = Reading{Value: v, Valid: true}
			}
		}

		lines := l.Lines()

		if frame != nil {
			img := frame.Image()
			Compose(img, lines)
			if err := l.renderer.Show(img, lines); err != nil {
				l.renderErrors.Add(1)
				slog.Warn("display: render failed", "seq", frame.Seq, "error", err)
			} else {
				l.renders.Add(1)
			}
		} else {
			l.skipped.Add(1)
		}

		in := l.renderer.Poll()
		l.cycles.Add(1)

		if l.cfg.AfterCycle != nil {
			l.cfg.AfterCycle(l.state.clone())
		}

		if in.Quit {
			return l.exit(ExitWindowClosed)
		}
		if in.Key != "" && in.Key == l.cfg.ExitKey {
			return l.exit(ExitKeyPressed)
		}

		time.Sleep(l.interval)
	}
}

func (l *Loop) exit(reason ExitReason) ExitReason {
	st := l.Stats()
	slog.Info("display: loop ended",
		"reason", reason.String(),
		"cycles", st.Cycles,
		"renders", st.Renders,
		"skipped", st.Skipped,
	)
	return reason
}

// Lines returns the overlay text for the current state, one line per
// channel: "<label>: <value|No data>".
func (l *Loop) Lines() []string {
	lines := make([]string, len(l.channels))
	for i, ch := range l.channels {
		lines[i] = ch.Label + ": " + l.state.Readings[i].String()
	}
	return lines
}

// Stats returns display loop counters. Safe from any goroutine.
func (l *Loop) Stats() Stats {
	return Stats{
		Cycles:       l.cycles.Load(),
		Renders:      l.renders.Load(),
		Skipped:      l.skipped.Load(),
		RenderErrors: l.renderErrors.Load(),
	}
}
