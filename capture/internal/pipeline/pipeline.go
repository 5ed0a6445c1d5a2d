package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// Source kinds understood by Create.
const (
	SourceV4L2 = "v4l2"
	SourceTest = "test"
)

// Config contains configuration for GStreamer pipeline creation
type Config struct {
	Source string // SourceV4L2 or SourceTest
	Device string // v4l2 device path, e.g. /dev/video0
	Width  int
	Height int
	FPS    int // caps framerate for the test source; 0 lets the device decide
}

// Elements holds references to the pipeline elements needed after creation.
type Elements struct {
	Pipeline *gst.Pipeline
	AppSink  *app.Sink
}

// Create builds a capture pipeline:
//
//	v4l2src | videotestsrc → videoconvert → videoscale → capsfilter(RGBA, WxH) → appsink
//
// The pipeline is configured but NOT started (state remains NULL).
// The appsink keeps only the newest buffer and is read in pull mode.
func Create(cfg Config) (*Elements, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid resolution %dx%d", cfg.Width, cfg.Height)
	}

	// Initialize GStreamer (safe to call multiple times)
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	var src *gst.Element
	switch cfg.Source {
	case SourceV4L2, "":
		src, err = gst.NewElement("v4l2src")
		if err != nil {
			return nil, fmt.Errorf("failed to create v4l2src: %w", err)
		}
		src.SetProperty("device", cfg.Device)
	case SourceTest:
		src, err = gst.NewElement("videotestsrc")
		if err != nil {
			return nil, fmt.Errorf("failed to create videotestsrc: %w", err)
		}
		src.SetProperty("is-live", true)
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsStr := buildCaps(cfg)
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)    // No sync with clock (real-time)
	appsink.SetProperty("max-buffers", 1) // Keep only latest frame
	appsink.SetProperty("drop", true)     // Drop old frames

	if err := pipeline.AddMany(src, converter, scaler, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to add pipeline elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, converter, scaler, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	slog.Debug("capture: pipeline created",
		"source", cfg.Source,
		"device", cfg.Device,
		"caps", capsStr,
	)

	return &Elements{Pipeline: pipeline, AppSink: appsink}, nil
}

// Start sets the pipeline to PLAYING and waits on the bus until the
// pipeline reports PLAYING, posts an error, or the timeout elapses.
func Start(el *Elements, timeout time.Duration) error {
	if el == nil || el.Pipeline == nil {
		return fmt.Errorf("pipeline not initialized")
	}

	if err := el.Pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to set pipeline to PLAYING: %w", err)
	}

	bus := el.Pipeline.GetPipelineBus()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			category := ClassifyGError(gerr)
			slog.Error("capture: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"category", category.String(),
			)
			return &Error{Category: category, Message: gerr.Error()}

		case gst.MessageEOS:
			return fmt.Errorf("end of stream before first frame")

		case gst.MessageStateChanged:
			if msg.Source() == el.Pipeline.GetName() {
				oldState, newState := msg.ParseStateChanged()
				slog.Debug("capture: pipeline state changed", "from", oldState, "to", newState)
				if newState == gst.StatePlaying {
					return nil
				}
			}
		}
	}

	return fmt.Errorf("pipeline did not reach PLAYING within %v", timeout)
}

// Destroy sets the pipeline to NULL and releases its resources.
// Safe to call on a nil or already destroyed pipeline.
func Destroy(el *Elements) error {
	if el == nil || el.Pipeline == nil {
		return nil
	}

	if err := el.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	el.Pipeline = nil
	el.AppSink = nil

	return nil
}

// buildCaps builds the appsink caps:
// "video/x-raw,format=RGBA,width=W,height=H[,framerate=N/1]"
func buildCaps(cfg Config) string {
	caps := fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d", cfg.Width, cfg.Height)
	if cfg.Source == SourceTest && cfg.FPS > 0 {
		caps += fmt.Sprintf(",framerate=%d/1", cfg.FPS)
	}
	return caps
}
