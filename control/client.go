package control

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/e7canasta/sensor-display/config"
)

// connectTimeout bounds the first connection attempt.
const connectTimeout = 5 * time.Second

// Client is the subset of mqtt.Client used by the control plane.
type Client interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// Connect establishes a connection to the MQTT broker with automatic
// reconnection. The first connection attempt is bounded by connectTimeout.
func Connect(ctx context.Context, cfg config.ControlConfig) (mqtt.Client, error) {
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		slog.Info("control: mqtt connection established",
			"broker", broker,
			"client_id", cfg.ClientID,
		)
	}

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		slog.Warn("control: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", broker,
		)
	}

	client := mqtt.NewClient(opts)

	slog.Info("control: connecting to mqtt broker", "broker", broker)

	if err := awaitConnect(ctx, client, connectTimeout); err != nil {
		return nil, err
	}
	return client, nil
}

// awaitConnect waits for the first connection attempt. On timeout or
// cancellation the client is disconnected so a background reconnect cannot
// outlive the caller.
func awaitConnect(ctx context.Context, client mqtt.Client, timeout time.Duration) error {
	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(timeout):
		client.Disconnect(0)
		return fmt.Errorf("control: mqtt connection timeout")
	case <-ctx.Done():
		client.Disconnect(0)
		return fmt.Errorf("control: mqtt connect: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("control: mqtt connection failed: %w", err)
	}
	return nil
}
