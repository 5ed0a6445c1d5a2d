package config

import (
	"errors"
	"fmt"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Validate checks the configuration, fills defaults for optional fields and
// parses the camera resolution.
func Validate(cfg *Config) error {
	// Camera
	w, h, err := ParseResolution(cfg.Camera.Resolution)
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	cfg.Camera.Width, cfg.Camera.Height = w, h

	switch cfg.Camera.Source {
	case "":
		cfg.Camera.Source = "v4l2"
	case "v4l2", "test", "synthetic":
	default:
		return fmt.Errorf("%w: camera.source %q (must be v4l2, test or synthetic)", ErrInvalid, cfg.Camera.Source)
	}
	if cfg.Camera.DevicePath == "" {
		cfg.Camera.DevicePath = "/dev/video%d"
	}
	if cfg.Camera.FPS <= 0 {
		cfg.Camera.FPS = 30
	}

	// Display
	if cfg.Display.Frequency <= 0 {
		return fmt.Errorf("%w: display.frequency must be > 0, got %v", ErrInvalid, cfg.Display.Frequency)
	}
	switch cfg.Display.Backend {
	case "":
		cfg.Display.Backend = "sdl"
	case "sdl", "terminal":
	default:
		return fmt.Errorf("%w: display.backend %q (must be sdl or terminal)", ErrInvalid, cfg.Display.Backend)
	}
	if cfg.Display.ExitKey == "" {
		cfg.Display.ExitKey = "q"
	}
	if cfg.Display.Title == "" {
		cfg.Display.Title = "Output"
	}

	// Sensors
	if len(cfg.Sensors) == 0 {
		return fmt.Errorf("%w: at least one sensor is required", ErrInvalid)
	}
	seen := make(map[string]bool, len(cfg.Sensors))
	for i, s := range cfg.Sensors {
		if s.Name == "" {
			return fmt.Errorf("%w: sensors[%d].name is required", ErrInvalid, i)
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate sensor name %q", ErrInvalid, s.Name)
		}
		seen[s.Name] = true
		if s.Delay < 0 {
			return fmt.Errorf("%w: sensor %q: delay must be >= 0, got %v", ErrInvalid, s.Name, s.Delay)
		}
	}

	// Queue
	if cfg.Queue.Capacity <= 0 {
		cfg.Queue.Capacity = 10
	}

	// Log
	switch cfg.Log.Level {
	case "":
		cfg.Log.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level %q", ErrInvalid, cfg.Log.Level)
	}
	if cfg.Log.Dir == "" {
		cfg.Log.Dir = "log"
	}
	if cfg.Log.File == "" {
		cfg.Log.File = "app.log"
	}

	// Stats
	if cfg.Stats.Interval < 0 {
		return fmt.Errorf("%w: stats.interval must be >= 0", ErrInvalid)
	}

	// Control plane (optional)
	if cfg.Control.Broker != "" {
		if cfg.Control.ClientID == "" {
			cfg.Control.ClientID = "sensor-display"
		}
		if cfg.Control.Topics.Command == "" {
			cfg.Control.Topics.Command = fmt.Sprintf("%s/control/commands", cfg.Control.ClientID)
		}
		if cfg.Control.Topics.Response == "" {
			cfg.Control.Topics.Response = fmt.Sprintf("%s/control/responses", cfg.Control.ClientID)
		}
	}

	return nil
}
