package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/sensor-display/config"
	"github.com/e7canasta/sensor-display/control"
	"github.com/e7canasta/sensor-display/display"
	"github.com/e7canasta/sensor-display/sensor"
	"github.com/e7canasta/sensor-display/shutdown"
)

// fakeSource produces small frames at roughly 100 fps.
type fakeSource struct {
	closes atomic.Int32
}

func (s *fakeSource) ReadFrame() (*sensor.Frame, error) {
	if s.closes.Load() > 0 {
		return nil, errors.New("closed")
	}
	time.Sleep(10 * time.Millisecond)
	return &sensor.Frame{Data: make([]byte, 8*6*4), Width: 8, Height: 6}, nil
}

func (s *fakeSource) Close() error {
	s.closes.Add(1)
	return nil
}

// fakeRenderer records what it is asked to show.
type fakeRenderer struct {
	mu     sync.Mutex
	shows  int
	lines  []string
	closed int
}

func (r *fakeRenderer) Show(_ *image.RGBA, lines []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shows++
	r.lines = append(r.lines[:0], lines...)
	return nil
}

func (r *fakeRenderer) Poll() display.Input { return display.Input{} }

func (r *fakeRenderer) Close() error {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Camera.Source = "synthetic"
	cfg.Camera.Resolution = "8x6"
	cfg.Stats.Interval = 0
	return cfg
}

type harness struct {
	app      *App
	source   *fakeSource
	renderer *fakeRenderer
	out      bytes.Buffer

	mu     sync.Mutex
	states []timedState
}

type timedState struct {
	at    time.Duration
	state display.State
}

func newHarness(t *testing.T, cfg *config.Config) *harness {
	t.Helper()
	h := &harness{source: &fakeSource{}, renderer: &fakeRenderer{}}
	start := time.Now()

	app, err := New(cfg, Options{
		OpenCamera: func(sensor.CameraConfig) (sensor.FrameSource, error) {
			return h.source, nil
		},
		NewRenderer: func(*config.Config) (display.Renderer, error) {
			return h.renderer, nil
		},
		AfterCycle: func(s display.State) {
			h.mu.Lock()
			h.states = append(h.states, timedState{at: time.Since(start), state: s})
			h.mu.Unlock()
		},
		Output: &h.out,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.app = app
	return h
}

func TestApp_MultiRateEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("runs the pipeline for two seconds")
	}

	h := newHarness(t, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := h.app.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	h.mu.Lock()
	states := h.states
	h.mu.Unlock()

	if len(states) < 20 {
		t.Fatalf("only %d display cycles in 2s at 30 Hz", len(states))
	}

	last := states[len(states)-1].state
	if len(last.Readings) != 3 {
		t.Fatalf("readings = %d, want 3", len(last.Readings))
	}
	fast, slow := last.Readings[0], last.Readings[2]
	if !fast.Valid || fast.Value < 20 {
		t.Errorf("Sensor1 = %v, want a value >= 20 after 2s at 100 Hz", fast)
	}
	if slow.Valid && slow.Value > 2 {
		t.Errorf("Sensor3 = %v, want at most 2 after 2s at 1 Hz", slow)
	}

	for _, ts := range states {
		if ts.at > 900*time.Millisecond {
			break
		}
		if r := ts.state.Readings[2]; r.Valid && r.Value > 1 {
			t.Errorf("Sensor3 = %v at %v, want No data or 1", r, ts.at)
		}
	}

	// Pipeline torn down in order, each resource once
	if st := h.app.Coordinator().State(); st != shutdown.Stopped {
		t.Errorf("state = %v, want stopped", st)
	}
	if got := h.app.Coordinator().Reason(); got != display.ExitCancelled.String() {
		t.Errorf("reason = %q", got)
	}
	if n := h.source.closes.Load(); n != 1 {
		t.Errorf("camera closed %d times, want 1", n)
	}
	if h.renderer.closed != 1 {
		t.Errorf("renderer closed %d times, want 1", h.renderer.closed)
	}
	if h.renderer.shows == 0 {
		t.Error("nothing rendered")
	}
	if !strings.Contains(h.renderer.lines[0], "Sensor1 (100 Hz)") {
		t.Errorf("overlay line = %q", h.renderer.lines[0])
	}

	snap := h.app.Snapshot()
	for _, w := range snap.Workers {
		if !w.Done {
			t.Errorf("worker %s still running after Run", w.Sensor)
		}
	}
	if snap.Camera.Stored == 0 {
		t.Error("no frames stored")
	}
	if !strings.Contains(h.out.String(), "Final Statistics") {
		t.Error("final summary not printed")
	}
}

func TestNew_InvalidDevice(t *testing.T) {
	cfg := testConfig()
	cfg.Camera.Index = -1

	var rendererCalls int
	app, err := New(cfg, Options{
		NewRenderer: func(*config.Config) (display.Renderer, error) {
			rendererCalls++
			return &fakeRenderer{}, nil
		},
	})

	if !errors.Is(err, sensor.ErrDeviceUnavailable) {
		t.Fatalf("New() error = %v, want ErrDeviceUnavailable", err)
	}
	if app != nil {
		t.Error("expected nil app")
	}
	if rendererCalls != 0 {
		t.Errorf("renderer created %d times before camera check", rendererCalls)
	}
}

func TestNew_RendererFailureReleasesCamera(t *testing.T) {
	src := &fakeSource{}
	_, err := New(testConfig(), Options{
		OpenCamera: func(sensor.CameraConfig) (sensor.FrameSource, error) {
			return src, nil
		},
		NewRenderer: func(*config.Config) (display.Renderer, error) {
			return nil, errors.New("no display")
		},
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if n := src.closes.Load(); n != 1 {
		t.Errorf("camera closed %d times, want 1", n)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Sensors = nil

	if _, err := New(cfg, Options{}); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("New() error = %v, want ErrInvalid", err)
	}
}

func TestApp_RequestShutdown(t *testing.T) {
	h := newHarness(t, testConfig())

	// No-op before Run
	h.app.RequestShutdown("early")

	done := make(chan error, 1)
	go func() { done <- h.app.Run(context.Background()) }()

	time.Sleep(200 * time.Millisecond)
	h.app.RequestShutdown("test")

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after RequestShutdown")
	}

	if st := h.app.Coordinator().State(); st != shutdown.Stopped {
		t.Errorf("state = %v, want stopped", st)
	}
	if err := h.app.Run(context.Background()); err == nil {
		t.Error("second Run should fail")
	}
}

// shortFrameSource reports a resolution its pixel data does not cover.
type shortFrameSource struct {
	fakeSource
}

func (s *shortFrameSource) ReadFrame() (*sensor.Frame, error) {
	if s.closes.Load() > 0 {
		return nil, errors.New("closed")
	}
	time.Sleep(10 * time.Millisecond)
	return &sensor.Frame{Data: make([]byte, 4), Width: 200, Height: 100}, nil
}

func TestApp_MalformedFrameStopsCameraOnly(t *testing.T) {
	src := &shortFrameSource{}
	renderer := &fakeRenderer{}
	var out bytes.Buffer

	app, err := New(testConfig(), Options{
		OpenCamera: func(sensor.CameraConfig) (sensor.FrameSource, error) {
			return src, nil
		},
		NewRenderer: func(*config.Config) (display.Renderer, error) {
			return renderer, nil
		},
		Output: &out,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	time.Sleep(200 * time.Millisecond)
	app.RequestShutdown("test")

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after RequestShutdown")
	}

	snap := app.Snapshot()
	if snap.Camera.Stored != 0 {
		t.Errorf("stored %d malformed frames", snap.Camera.Stored)
	}
	if snap.Display.Renders != 0 {
		t.Errorf("rendered %d times without a frame", snap.Display.Renders)
	}
	cam := snap.Workers[0]
	if cam.Sensor != CameraName || !strings.Contains(cam.LastErr, "malformed frame") {
		t.Errorf("camera worker = %+v, want a malformed frame error", cam)
	}
	if n := src.closes.Load(); n != 1 {
		t.Errorf("camera closed %d times, want 1", n)
	}
}

// statusClient is a control.Client that records published responses.
type statusClient struct {
	mu        sync.Mutex
	handler   mqtt.MessageHandler
	published chan control.Response
	connected bool
}

func (c *statusClient) Subscribe(_ string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	c.handler = cb
	c.mu.Unlock()
	return doneToken{}
}

func (c *statusClient) Unsubscribe(...string) mqtt.Token { return doneToken{} }

func (c *statusClient) Publish(_ string, _ byte, _ bool, payload interface{}) mqtt.Token {
	var resp control.Response
	_ = json.Unmarshal(payload.([]byte), &resp)
	c.published <- resp
	return doneToken{}
}

func (c *statusClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *statusClient) Disconnect(uint) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *statusClient) send(t *testing.T, payload string) control.Response {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h(nil, fakeMessage(payload))
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("control handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case r := <-c.published:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no response published")
		return control.Response{}
	}
}

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type fakeMessage string

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return "cmd" }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return []byte(m) }
func (m fakeMessage) Ack()              {}

func TestApp_StatusIncludesSourceAndControlCounters(t *testing.T) {
	cfg := testConfig()
	cfg.Control.Broker = "tcp://localhost:1883"
	client := &statusClient{published: make(chan control.Response, 10), connected: true}
	var out bytes.Buffer

	// Synthetic source: it keeps frame counters
	app, err := New(cfg, Options{
		NewRenderer: func(*config.Config) (display.Renderer, error) {
			return &fakeRenderer{}, nil
		},
		ConnectControl: func(context.Context, config.ControlConfig) (control.Client, error) {
			return client, nil
		},
		Output: &out,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	time.Sleep(200 * time.Millisecond)
	resp := client.send(t, `{"command": "get_status"}`)
	if resp.Status != "success" {
		t.Fatalf("get_status = %+v", resp)
	}

	src, ok := resp.Data["source"].(map[string]interface{})
	if !ok || src["frames"].(float64) < 1 {
		t.Errorf("source counters = %v, want frames >= 1", resp.Data["source"])
	}
	ctl, ok := resp.Data["control"].(map[string]interface{})
	if !ok || ctl["received"] != float64(1) {
		t.Errorf("control counters = %v, want received 1", resp.Data["control"])
	}

	if resp := client.send(t, `{"command": "shutdown"}`); resp.Status != "shutting_down" {
		t.Errorf("shutdown = %+v", resp)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after remote shutdown")
	}

	snap := app.Snapshot()
	if snap.Control == nil || snap.Control.Received != 2 {
		t.Errorf("control stats = %+v, want 2 received", snap.Control)
	}
	if client.IsConnected() {
		t.Error("control client still connected after shutdown")
	}
	for _, want := range []string{"Frames Read:", "Commands Received:       2"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("summary missing %q:\n%s", want, out.String())
		}
	}
}
