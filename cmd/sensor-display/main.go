package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/e7canasta/sensor-display/capture"
	"github.com/e7canasta/sensor-display/config"
	"github.com/e7canasta/sensor-display/display"
	"github.com/e7canasta/sensor-display/display/sdlwindow"
	"github.com/e7canasta/sensor-display/display/terminal"
	"github.com/e7canasta/sensor-display/internal/app"
	"github.com/e7canasta/sensor-display/sensor"
)

const version = "v0.1.0"

func init() {
	// SDL window and event calls must stay on the main OS thread
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "Path to YAML configuration file (optional)")
	envPath := flag.String("env", ".env", "Path to .env file (optional)")
	cameraIndex := flag.Int("camera-index", 0, "Camera device index (/dev/video<N>)")
	source := flag.String("source", "", "Camera source: v4l2, test, synthetic")
	resolution := flag.String("resolution", "", "Capture resolution WxH (e.g. 1280x720)")
	frequency := flag.Float64("display-frequency", 0, "Display refresh rate in Hz")
	backend := flag.String("backend", "", "Display backend: sdl, terminal")
	broker := flag.String("mqtt-broker", "", "MQTT broker URL for the control plane (e.g. tcp://localhost:1883)")
	statsview := flag.String("statsview", "", "Address for the runtime stats viewer (e.g. localhost:18066)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := loadConfig(*configPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sensor-display: %v\n", err)
		os.Exit(2)
	}

	// Explicit flags win over file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "camera-index":
			cfg.Camera.Index = *cameraIndex
		case "source":
			cfg.Camera.Source = *source
		case "resolution":
			cfg.Camera.Resolution = *resolution
		case "display-frequency":
			cfg.Display.Frequency = *frequency
		case "backend":
			cfg.Display.Backend = *backend
		case "mqtt-broker":
			cfg.Control.Broker = *broker
		case "statsview":
			cfg.Stats.StatsviewAddr = *statsview
		case "debug":
			if *debug {
				cfg.Log.Level = "debug"
			}
		}
	})

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "sensor-display: %v\n", err)
		os.Exit(2)
	}

	logFile, err := setupLogging(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sensor-display: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	slog.Info("starting sensor-display",
		"version", version,
		"camera_index", cfg.Camera.Index,
		"source", cfg.Camera.Source,
		"resolution", cfg.Camera.Resolution,
		"display_hz", cfg.Display.Frequency,
		"backend", cfg.Display.Backend,
		"sensors", len(cfg.Sensors),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, app.Options{
		OpenCamera:  openCamera(cfg.Camera.Source),
		NewRenderer: newRenderer,
	})
	if err != nil {
		slog.Error("failed to initialize pipeline", "error", err)
		logFile.Close()
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		slog.Error("shutdown completed with errors", "error", err)
		logFile.Close()
		os.Exit(1)
	}

	slog.Info("sensor-display stopped")
}

func loadConfig(path, envPath string) (*config.Config, error) {
	if err := config.LoadEnv(envPath); err != nil {
		return nil, err
	}

	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging writes text logs to stdout and appends them to
// <dir>/<file>. The returned file must be closed by the caller.
func setupLogging(cfg config.LogConfig) (*os.File, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(cfg.Dir, cfg.File), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.MultiWriter(os.Stdout, f), &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return f, nil
}

// openCamera selects the capture backend for source.
func openCamera(source string) sensor.OpenFunc {
	if source == "synthetic" {
		return sensor.OpenSynthetic
	}
	return capture.Open
}

// newRenderer creates the display backend named by display.backend.
func newRenderer(cfg *config.Config) (display.Renderer, error) {
	switch cfg.Display.Backend {
	case "terminal":
		r, err := terminal.Open(cfg.Display.TTY, os.Stdout)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		w, err := sdlwindow.New(cfg.Display.Title, cfg.Camera.Width, cfg.Camera.Height)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
}
