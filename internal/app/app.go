// Package app wires the acquisition pipeline: one camera and N periodic
// sensors, each on its own goroutine, feeding the display loop that runs on
// the calling (main) goroutine.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/sensor-display/acquisition"
	"github.com/e7canasta/sensor-display/config"
	"github.com/e7canasta/sensor-display/control"
	"github.com/e7canasta/sensor-display/display"
	"github.com/e7canasta/sensor-display/queue"
	"github.com/e7canasta/sensor-display/sensor"
	"github.com/e7canasta/sensor-display/shutdown"
	"github.com/e7canasta/sensor-display/stats"
)

// CameraName names the camera sensor in logs and stats.
const CameraName = "camera"

// Options carries the device backends and optional hooks. The GStreamer
// and SDL backends are chosen by the entry point so this package stays
// cgo-free.
type Options struct {
	// OpenCamera opens the capture device. Optional for the "synthetic"
	// source (sensor.OpenSynthetic), required otherwise.
	OpenCamera sensor.OpenFunc

	// NewRenderer creates the display backend. Required.
	NewRenderer func(cfg *config.Config) (display.Renderer, error)

	// ConnectControl connects the MQTT control plane. Default: control.Connect.
	ConnectControl func(ctx context.Context, cfg config.ControlConfig) (control.Client, error)

	// AfterCycle is passed to the display loop.
	AfterCycle func(display.State)

	// Output receives the final summary and the stats viewer address.
	// Default os.Stdout.
	Output io.Writer
}

// App is a fully constructed pipeline. Nothing runs until Run.
type App struct {
	cfg   *config.Config
	opts  Options
	runID string

	camera   *sensor.CameraSensor
	sensors  []*sensor.PeriodicSensor
	queues   []*queue.Bounded[int64]
	workers  []*acquisition.Worker
	group    acquisition.Group
	renderer display.Renderer
	loop     *display.Loop

	coordinator *shutdown.Coordinator

	mu       sync.Mutex
	cancel   context.CancelFunc
	started  time.Time
	control  *control.Handler
	reporter *stats.Reporter
	viewer   *stats.Viewer

	running atomic.Bool
}

// New builds every component. If the camera cannot be opened the error
// wraps sensor.ErrDeviceUnavailable, the renderer is never created and no
// goroutine is started.
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config is required")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.OpenCamera == nil {
		if cfg.Camera.Source != "synthetic" {
			return nil, fmt.Errorf("app: no capture backend for source %q", cfg.Camera.Source)
		}
		opts.OpenCamera = sensor.OpenSynthetic
	}
	if opts.NewRenderer == nil {
		return nil, fmt.Errorf("app: display backend is required")
	}
	if opts.ConnectControl == nil {
		opts.ConnectControl = func(ctx context.Context, c config.ControlConfig) (control.Client, error) {
			return control.Connect(ctx, c)
		}
	}

	a := &App{
		cfg:   cfg,
		opts:  opts,
		runID: uuid.New().String(),
	}

	// 1. Camera first: failure is fatal and nothing else is built
	camera, err := sensor.NewCameraSensor(CameraName, sensor.CameraConfig{
		DeviceIndex: cfg.Camera.Index,
		Width:       cfg.Camera.Width,
		Height:      cfg.Camera.Height,
		Source:      cfg.Camera.Source,
		DevicePath:  cfg.Camera.DevicePath,
		FPS:         cfg.Camera.FPS,
	}, opts.OpenCamera, sensor.NewFrameSlot())
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.camera = camera

	cameraWorker, err := acquisition.NewCameraWorker(camera)
	if err != nil {
		camera.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	a.workers = append(a.workers, cameraWorker)

	// 2. Periodic sensors, one queue each
	channels := make([]display.Channel, 0, len(cfg.Sensors))
	for _, sc := range cfg.Sensors {
		s, err := sensor.NewPeriodicSensor(sc.Name, sc.Delay)
		if err != nil {
			camera.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		q, err := queue.New[int64](cfg.Queue.Capacity)
		if err != nil {
			camera.Close()
			return nil, fmt.Errorf("app: %w", err)
		}
		w, err := acquisition.NewPeriodicWorker(s, q)
		if err != nil {
			camera.Close()
			return nil, fmt.Errorf("app: %w", err)
		}

		slog.Debug("app: sensor configured",
			"sensor", s.Name(),
			"delay", s.Delay(),
			"rate_hz", s.RateHz(),
			"queue_capacity", cfg.Queue.Capacity,
		)

		a.sensors = append(a.sensors, s)
		a.queues = append(a.queues, q)
		a.workers = append(a.workers, w)
		channels = append(channels, display.Channel{Label: s.Label(), Queue: q})
	}

	// 3. Display
	renderer, err := opts.NewRenderer(cfg)
	if err != nil {
		camera.Close()
		return nil, fmt.Errorf("app: display: %w", err)
	}
	a.renderer = renderer

	loop, err := display.NewLoop(display.LoopConfig{
		Frequency:  cfg.Display.Frequency,
		ExitKey:    cfg.Display.ExitKey,
		AfterCycle: opts.AfterCycle,
	}, camera.Slot(), channels, renderer)
	if err != nil {
		renderer.Close()
		camera.Close()
		return nil, fmt.Errorf("app: %w", err)
	}
	a.loop = loop

	// 4. Shutdown order: sensors, workers, display, camera, auxiliary services
	stoppables := make([]shutdown.Stoppable, 0, len(a.workers))
	for _, w := range a.workers {
		stoppables = append(stoppables, w.Sensor())
	}
	a.coordinator = shutdown.New(stoppables, &a.group,
		shutdown.Resource{Name: "display", Close: renderer.Close},
		shutdown.Resource{Name: "camera", Close: camera.Close},
		shutdown.Resource{Name: "services", Close: a.stopServices},
	)

	slog.Info("app: pipeline ready",
		"run_id", a.runID,
		"sensors", len(a.sensors),
		"display_hz", cfg.Display.Frequency,
		"backend", cfg.Display.Backend,
		"source", camera.Config().Source,
		"resolution", camera.Config().Resolution(),
	)

	return a, nil
}

// Run starts the workers and runs the display loop on the calling goroutine
// until the exit key, a closed window, ctx cancellation or RequestShutdown.
// It then runs the shutdown sequence and prints the final summary.
func (a *App) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return errors.New("app: already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.cancel = cancel
	a.started = time.Now()
	a.mu.Unlock()

	a.startServices(ctx)

	for _, w := range a.workers {
		a.group.Go(w)
	}
	slog.Info("app: workers started", "count", a.group.Started())

	reason := a.loop.Run(ctx)

	err := a.coordinator.Shutdown(reason.String())

	stats.PrintSummary(a.opts.Output, a.Snapshot())

	return err
}

// RequestShutdown ends the display loop at its next cycle boundary. Safe
// from any goroutine; a no-op before Run.
func (a *App) RequestShutdown(reason string) {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	slog.Info("app: shutdown requested", "reason", reason)
	cancel()
}

// startServices starts the optional control plane, stats reporter and
// stats viewer. A failing service is logged and skipped.
func (a *App) startServices(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg.Control.Broker != "" {
		if err := a.startControl(ctx); err != nil {
			slog.Error("app: control plane disabled", "error", err)
		}
	}

	if a.cfg.Stats.Interval > 0 {
		r, err := stats.NewReporter(a.cfg.Stats.Interval, a.Snapshot)
		if err != nil {
			slog.Error("app: stats reporter disabled", "error", err)
		} else {
			r.Start()
			a.reporter = r
		}
	}

	if a.cfg.Stats.StatsviewAddr != "" {
		a.viewer = stats.LaunchViewer(a.cfg.Stats.StatsviewAddr, a.opts.Output)
	}
}

func (a *App) startControl(ctx context.Context) error {
	client, err := a.opts.ConnectControl(ctx, a.cfg.Control)
	if err != nil {
		return err
	}

	h, err := control.NewHandler(a.cfg.Control, client, control.Callbacks{
		OnGetStatus: func() map[string]interface{} {
			return a.Snapshot().Map()
		},
		OnShutdown: func() error {
			if a.coordinator.State() != shutdown.Running {
				return errors.New("shutdown already in progress")
			}
			a.RequestShutdown("remote command")
			return nil
		},
	})
	if err != nil {
		client.Disconnect(250)
		return err
	}
	if err := h.Start(ctx); err != nil {
		client.Disconnect(250)
		return err
	}

	a.control = h
	return nil
}

// stopServices is the last shutdown step.
func (a *App) stopServices() error {
	a.mu.Lock()
	h, r, v := a.control, a.reporter, a.viewer
	a.mu.Unlock()

	var errs []error
	if h != nil {
		if err := h.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if r != nil {
		if err := r.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	v.Stop()

	return errors.Join(errs...)
}

// Snapshot returns the current pipeline counters. Safe from any goroutine.
func (a *App) Snapshot() stats.Snapshot {
	a.mu.Lock()
	started, h := a.started, a.control
	a.mu.Unlock()

	var uptime time.Duration
	if !started.IsZero() {
		uptime = time.Since(started)
	}

	var source *sensor.SourceStats
	if st, ok := a.camera.SourceStats(); ok {
		source = &st
	}

	var ctl *control.Stats
	if h != nil {
		st := h.Stats()
		ctl = &st
	}

	queues := make([]stats.QueueStats, len(a.queues))
	for i, q := range a.queues {
		queues[i] = stats.QueueStats{Sensor: a.sensors[i].Name(), Stats: q.Stats()}
	}

	return stats.Snapshot{
		RunID:   a.runID,
		Uptime:  uptime,
		State:   a.coordinator.State().String(),
		Camera:  a.camera.Slot().Stats(),
		Workers: a.group.Stats(),
		Queues:  queues,
		Display: a.loop.Stats(),
		Source:  source,
		Control: ctl,
	}
}

// Coordinator returns the shutdown coordinator.
func (a *App) Coordinator() *shutdown.Coordinator {
	return a.coordinator
}
