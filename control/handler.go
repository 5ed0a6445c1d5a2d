// Package control is the MQTT control plane. It accepts two commands on
// the command topic and answers on the response topic:
//
//	{"command": "get_status"}  → pipeline counters (no sensor values)
//	{"command": "shutdown"}    → triggers the normal shutdown path
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/sensor-display/config"
)

const (
	commandQoS  byte = 1
	responseQoS byte = 0
)

// Command represents a control plane command
type Command struct {
	Command string `json:"command"`
}

// Response represents a command response
type Response struct {
	CommandAck string                 `json:"command_ack"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// Callbacks contains the actions behind each command
type Callbacks struct {
	OnGetStatus func() map[string]interface{}
	OnShutdown  func() error
}

// Handler handles control plane commands
type Handler struct {
	cfg      config.ControlConfig
	client   Client
	commands chan Command

	callbacks Callbacks
	wg        sync.WaitGroup
	stopOnce  sync.Once

	mu     sync.Mutex // guards closed and sends on commands
	closed bool

	received atomic.Uint64
	rejected atomic.Uint64
}

// Stats holds control plane counters
type Stats struct {
	Received uint64 `json:"received"`
	Rejected uint64 `json:"rejected"`
}

// NewHandler creates a new control plane handler
func NewHandler(cfg config.ControlConfig, client Client, callbacks Callbacks) (*Handler, error) {
	if client == nil {
		return nil, fmt.Errorf("control: mqtt client is required")
	}
	if cfg.Topics.Command == "" || cfg.Topics.Response == "" {
		return nil, fmt.Errorf("control: command and response topics are required")
	}
	return &Handler{
		cfg:       cfg,
		client:    client,
		commands:  make(chan Command, 10),
		callbacks: callbacks,
	}, nil
}

// Start subscribes to the command topic and processes commands until ctx is
// cancelled or Stop is called.
func (h *Handler) Start(ctx context.Context) error {
	topic := h.cfg.Topics.Command

	slog.Info("control: subscribing to control plane", "topic", topic, "qos", commandQoS)

	token := h.client.Subscribe(topic, commandQoS, h.messageHandler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("control: subscription timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control: subscription failed: %w", err)
	}

	h.wg.Add(1)
	go h.processCommands(ctx)

	slog.Info("control: handler started")
	return nil
}

// Stop unsubscribes, waits for the command processor and disconnects the
// client. Only the first call has an effect.
func (h *Handler) Stop() error {
	h.stopOnce.Do(func() {
		if h.client.IsConnected() {
			token := h.client.Unsubscribe(h.cfg.Topics.Command)
			token.WaitTimeout(2 * time.Second)
		}

		h.mu.Lock()
		h.closed = true
		close(h.commands)
		h.mu.Unlock()
		h.wg.Wait()

		if h.client.IsConnected() {
			h.client.Disconnect(250) // 250ms grace period
		}

		slog.Info("control: handler stopped",
			"received", h.received.Load(),
			"rejected", h.rejected.Load(),
		)
	})
	return nil
}

// Stats returns control plane counters
func (h *Handler) Stats() Stats {
	return Stats{
		Received: h.received.Load(),
		Rejected: h.rejected.Load(),
	}
}

// messageHandler is called by the MQTT client for each command message
func (h *Handler) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	h.received.Add(1)

	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		h.rejected.Add(1)
		slog.Error("control: failed to parse command", "error", err)
		h.sendResponse(Response{
			CommandAck: "unknown",
			Status:     "error",
			Error:      "invalid JSON",
		})
		return
	}

	slog.Info("control: command received", "command", cmd.Command)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		h.rejected.Add(1)
		return
	}

	select {
	case h.commands <- cmd:
	default:
		h.rejected.Add(1)
		slog.Warn("control: command queue full, dropping command", "command", cmd.Command)
	}
}

func (h *Handler) processCommands(ctx context.Context) {
	defer h.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-h.commands:
			if !ok {
				return
			}
			h.sendResponse(h.handleCommand(cmd))
		}
	}
}

// handleCommand executes a command and builds its response
func (h *Handler) handleCommand(cmd Command) Response {
	resp := Response{CommandAck: cmd.Command}

	switch cmd.Command {
	case "get_status":
		if h.callbacks.OnGetStatus == nil {
			resp.Status = "error"
			resp.Error = "get_status not implemented"
			break
		}
		resp.Status = "success"
		resp.Data = h.callbacks.OnGetStatus()

	case "shutdown":
		if h.callbacks.OnShutdown == nil {
			resp.Status = "error"
			resp.Error = "shutdown not implemented"
			break
		}
		if err := h.callbacks.OnShutdown(); err != nil {
			resp.Status = "error"
			resp.Error = err.Error()
			break
		}
		resp.Status = "shutting_down"

	default:
		h.rejected.Add(1)
		resp.Status = "error"
		resp.Error = fmt.Sprintf("unknown command: %s", cmd.Command)
	}

	return resp
}

func (h *Handler) sendResponse(resp Response) {
	resp.Timestamp = time.Now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Error("control: failed to marshal response", "error", err)
		return
	}

	token := h.client.Publish(h.cfg.Topics.Response, responseQoS, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		slog.Error("control: response publish timeout")
		return
	}
	if err := token.Error(); err != nil {
		slog.Error("control: failed to publish response", "error", err)
		return
	}

	slog.Debug("control: response sent", "command_ack", resp.CommandAck, "status", resp.Status)
}
