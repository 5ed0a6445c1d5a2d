// Package display runs the fixed-rate render loop that combines the newest
// camera frame with the last-seen scalar readings.
//
// The loop is the only consumer of every reading queue and the only reader
// of the frame slot. It runs on the main goroutine: window backends (SDL)
// require their calls on the main OS thread.
//
// Pixels reach the screen through a Renderer backend:
//
//   - sdlwindow: SDL2 window titled "Output", resizable
//   - terminal:  single status line on the controlling terminal, for
//     headless hosts
package display

import (
	"image"
	"strconv"

	"github.com/e7canasta/sensor-display/queue"
)

// NoData is shown for a sensor that has not produced a reading yet.
const NoData = "No data"

// Renderer presents composed frames and reports user input.
//
// Show receives the frame with the overlay already drawn; lines carries the
// same overlay text for backends that cannot show pixels. Poll must not
// block. Close releases the backend; it is called once, after every worker
// has been joined.
type Renderer interface {
	Show(img *image.RGBA, lines []string) error
	Poll() Input
	Close() error
}

// Input is the user input observed by one Poll.
type Input struct {
	// Key is the lower-cased name of the last key pressed, or "".
	Key string
	// Quit is set when the window was closed.
	Quit bool
}

// Reading is the last-seen value of one scalar sensor.
type Reading struct {
	Value int64
	Valid bool
}

func (r Reading) String() string {
	if !r.Valid {
		return NoData
	}
	return strconv.FormatInt(r.Value, 10)
}

// State is the display state after a cycle.
type State struct {
	Readings []Reading
}

func (s State) clone() State {
	return State{Readings: append([]Reading(nil), s.Readings...)}
}

// Channel binds an overlay label to the queue feeding it.
type Channel struct {
	Label string // e.g. "Sensor1 (100 Hz)"
	Queue *queue.Bounded[int64]
}
