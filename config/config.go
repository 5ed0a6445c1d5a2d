package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SENSOR_DISPLAY_"

// Config represents the complete sensor-display configuration
type Config struct {
	Camera  CameraConfig   `yaml:"camera"`
	Display DisplayConfig  `yaml:"display"`
	Sensors []SensorConfig `yaml:"sensors"`
	Queue   QueueConfig    `yaml:"queue"`
	Log     LogConfig      `yaml:"log"`
	Stats   StatsConfig    `yaml:"stats"`
	Control ControlConfig  `yaml:"control"`
}

// CameraConfig contains capture device settings
type CameraConfig struct {
	Index      int    `yaml:"index"`       // /dev/video<index>
	Resolution string `yaml:"resolution"`  // WxH, e.g. 1280x720
	Source     string `yaml:"source"`      // v4l2, test, synthetic
	DevicePath string `yaml:"device_path"` // fmt template, default /dev/video%d
	FPS        int    `yaml:"fps"`         // pacing for test and synthetic sources

	// Parsed from Resolution by Validate
	Width  int `yaml:"-"`
	Height int `yaml:"-"`
}

// DisplayConfig contains display loop settings
type DisplayConfig struct {
	Frequency float64 `yaml:"frequency"` // Hz
	Backend   string  `yaml:"backend"`   // sdl, terminal
	ExitKey   string  `yaml:"exit_key"`
	Title     string  `yaml:"title"`
	TTY       string  `yaml:"tty"` // terminal backend input device
}

// SensorConfig defines one periodic scalar sensor
type SensorConfig struct {
	Name  string        `yaml:"name"`
	Delay time.Duration `yaml:"delay"` // e.g. 10ms, 1s
}

// QueueConfig contains reading queue settings
type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Dir   string `yaml:"dir"`
	File  string `yaml:"file"`
	Level string `yaml:"level"` // debug, info, warn, error
}

// StatsConfig contains runtime statistics settings
type StatsConfig struct {
	Interval      time.Duration `yaml:"interval"`       // periodic stats log, 0 disables
	StatsviewAddr string        `yaml:"statsview_addr"` // empty disables the viewer
}

// ControlConfig contains MQTT control plane settings. An empty broker
// disables the control plane.
type ControlConfig struct {
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	Topics   ControlTopics `yaml:"topics"`
}

// ControlTopics contains control plane topics
type ControlTopics struct {
	Command  string `yaml:"command"`
	Response string `yaml:"response"`
}

// Default returns the reference configuration: camera 0 at 1280x720,
// display at 30 Hz, three sensors at 10ms, 100ms and 1s, queues of 10.
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Index:      0,
			Resolution: "1280x720",
			Source:     "v4l2",
			DevicePath: "/dev/video%d",
			FPS:        30,
		},
		Display: DisplayConfig{
			Frequency: 30,
			Backend:   "sdl",
			ExitKey:   "q",
			Title:     "Output",
			TTY:       "/dev/tty",
		},
		Sensors: []SensorConfig{
			{Name: "Sensor1", Delay: 10 * time.Millisecond},
			{Name: "Sensor2", Delay: 100 * time.Millisecond},
			{Name: "Sensor3", Delay: time.Second},
		},
		Queue: QueueConfig{Capacity: 10},
		Log: LogConfig{
			Dir:   "log",
			File:  "app.log",
			Level: "info",
		},
		Stats: StatsConfig{Interval: 10 * time.Second},
		Control: ControlConfig{
			ClientID: "sensor-display",
			Topics: ControlTopics{
				Command:  "sensor-display/control/commands",
				Response: "sensor-display/control/responses",
			},
		},
	}
}

// Load reads a YAML configuration file over the defaults. Keys absent from
// the file keep their default value; a sensors list replaces the default one.
// The result is not validated: environment and flag overrides are applied
// first, then Validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// LoadEnv loads a .env file into the process environment. A missing file
// is not an error. Variables already set are not overridden.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv applies SENSOR_DISPLAY_* overrides:
//
//	CAMERA_INDEX, CAMERA_SOURCE, RESOLUTION, DISPLAY_FREQUENCY, BACKEND,
//	LOG_LEVEL, LOG_DIR, MQTT_BROKER, STATSVIEW_ADDR
func ApplyEnv(cfg *Config) error {
	if v, ok := lookup("CAMERA_INDEX"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sCAMERA_INDEX=%q: %v", ErrInvalid, EnvPrefix, v, err)
		}
		cfg.Camera.Index = n
	}
	if v, ok := lookup("CAMERA_SOURCE"); ok {
		cfg.Camera.Source = v
	}
	if v, ok := lookup("RESOLUTION"); ok {
		cfg.Camera.Resolution = v
	}
	if v, ok := lookup("DISPLAY_FREQUENCY"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %sDISPLAY_FREQUENCY=%q: %v", ErrInvalid, EnvPrefix, v, err)
		}
		cfg.Display.Frequency = f
	}
	if v, ok := lookup("BACKEND"); ok {
		cfg.Display.Backend = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := lookup("LOG_DIR"); ok {
		cfg.Log.Dir = v
	}
	if v, ok := lookup("MQTT_BROKER"); ok {
		cfg.Control.Broker = v
	}
	if v, ok := lookup("STATSVIEW_ADDR"); ok {
		cfg.Stats.StatsviewAddr = v
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// ParseResolution parses "WxH" into positive width and height.
func ParseResolution(s string) (width, height int, err error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("%w: resolution %q must be WxH", ErrInvalid, s)
	}
	width, errW := strconv.Atoi(w)
	height, errH := strconv.Atoi(h)
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("%w: resolution %q must be WxH with positive integers", ErrInvalid, s)
	}
	return width, height, nil
}
