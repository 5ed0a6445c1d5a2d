// Package terminal is the headless display backend. It keeps the overlay
// text on a single, continuously rewritten status line and reads the exit
// key from the controlling terminal in cbreak mode.
package terminal

import (
	"fmt"
	"image"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/pkg/term"

	"github.com/e7canasta/sensor-display/display"
)

// DefaultDevice is the controlling terminal.
const DefaultDevice = "/dev/tty"

// Renderer writes status lines to out and polls keys from a terminal.
type Renderer struct {
	tty *term.Term
	out io.Writer

	buf []byte

	closeOnce sync.Once
	closeErr  error
}

// Open puts device (default /dev/tty) in cbreak mode and returns a renderer
// writing status lines to out.
func Open(device string, out io.Writer) (*Renderer, error) {
	if device == "" {
		device = DefaultDevice
	}
	if out == nil {
		return nil, fmt.Errorf("terminal: output writer is required")
	}

	tty, err := term.Open(device)
	if err != nil {
		return nil, fmt.Errorf("terminal: open %s: %w", device, err)
	}
	if err := tty.SetCbreak(); err != nil {
		_ = tty.Close()
		return nil, fmt.Errorf("terminal: cbreak mode: %w", err)
	}

	slog.Info("terminal: status line enabled", "device", device)

	return &Renderer{tty: tty, out: out, buf: make([]byte, 16)}, nil
}

// Show rewrites the status line: "[WxH] line1 | line2 | ...".
func (r *Renderer) Show(img *image.RGBA, lines []string) error {
	b := img.Bounds()
	_, err := fmt.Fprintf(r.out, "\r\033[K[%dx%d] %s", b.Dx(), b.Dy(), strings.Join(lines, " | "))
	return err
}

// Poll returns the last key typed since the previous poll. It never blocks:
// bytes are read only when the terminal reports them available.
func (r *Renderer) Poll() display.Input {
	var in display.Input

	n, err := r.tty.Available()
	if err != nil || n == 0 {
		return in
	}
	if n > len(r.buf) {
		n = len(r.buf)
	}

	read, err := r.tty.Read(r.buf[:n])
	if err != nil || read == 0 {
		return in
	}

	switch c := r.buf[read-1]; c {
	case 0x1b:
		in.Key = "escape"
	default:
		in.Key = strings.ToLower(string(rune(c)))
	}
	return in
}

// Close restores the terminal mode. Only the first call has an effect.
func (r *Renderer) Close() error {
	r.closeOnce.Do(func() {
		fmt.Fprintln(r.out)
		if err := r.tty.Restore(); err != nil {
			r.closeErr = fmt.Errorf("terminal: restore: %w", err)
		}
		if err := r.tty.Close(); err != nil && r.closeErr == nil {
			r.closeErr = fmt.Errorf("terminal: close: %w", err)
		}
	})
	return r.closeErr
}
