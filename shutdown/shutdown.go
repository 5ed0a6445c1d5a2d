// Package shutdown tears the pipeline down exactly once.
//
// Sequence (order is important!):
//  1. Stop every sensor (flips run-state flags, never blocks)
//  2. Join every acquisition worker (no timeout: bounded by the slowest Get)
//  3. Release resources in registration order (display, then camera, ...)
//
// State machine: Running → Stopping → Stopped. Stopped is terminal. A second
// Shutdown call waits for the first to finish and returns its result.
package shutdown

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// State of the coordinator.
type State int32

const (
	Running State = iota
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stoppable is anything with a cooperative stop, typically a sensor.
type Stoppable interface {
	Name() string
	Stop()
}

// Waiter joins the acquisition goroutines.
type Waiter interface {
	Wait()
}

// Resource is released during step 3.
type Resource struct {
	Name  string
	Close func() error
}

// Coordinator runs the shutdown sequence.
type Coordinator struct {
	sensors   []Stoppable
	waiter    Waiter
	resources []Resource

	state  atomic.Int32
	once   sync.Once
	err    error
	reason string
}

// New creates a coordinator in the Running state.
func New(sensors []Stoppable, waiter Waiter, resources ...Resource) *Coordinator {
	return &Coordinator{
		sensors:   sensors,
		waiter:    waiter,
		resources: resources,
	}
}

// Shutdown runs the sequence once. The returned error joins every resource
// release failure; a failed release does not prevent the next one.
func (c *Coordinator) Shutdown(reason string) error {
	c.once.Do(func() {
		c.reason = reason
		c.err = c.run(reason)
	})
	return c.err
}

func (c *Coordinator) run(reason string) error {
	start := time.Now()
	c.state.Store(int32(Stopping))
	slog.Info("shutdown: started", "reason", reason)

	for _, s := range c.sensors {
		s.Stop()
	}
	slog.Info("shutdown: sensors stopped", "count", len(c.sensors))

	if c.waiter != nil {
		c.waiter.Wait()
	}
	slog.Info("shutdown: workers joined", "elapsed", time.Since(start))

	var errs []error
	for _, r := range c.resources {
		if r.Close == nil {
			continue
		}
		if err := r.Close(); err != nil {
			slog.Error("shutdown: failed to release resource", "resource", r.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", r.Name, err))
			continue
		}
		slog.Info("shutdown: resource released", "resource", r.Name)
	}

	c.state.Store(int32(Stopped))
	slog.Info("shutdown: complete", "reason", reason, "elapsed", time.Since(start))

	return errors.Join(errs...)
}

// State returns the current state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// Reason returns the reason given to the first Shutdown call, or "".
// Valid once State is Stopped.
func (c *Coordinator) Reason() string {
	if c.State() != Stopped {
		return ""
	}
	return c.reason
}
