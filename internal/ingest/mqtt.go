package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/thrustbench/thrustbench/internal/config"
	"github.com/thrustbench/thrustbench/internal/telemetry"
)

// Bridge connects a stand that publishes over an MQTT broker instead of the
// direct websocket link. Readings arrive on <prefix>/readings and are
// forwarded into the same ingest channel the websocket link feeds; commands
// are published to <prefix>/commands.
type Bridge struct {
	client   mqtt.Client
	readings chan<- telemetry.Reading
	cmdTopic string
}

// Connect dials the broker and subscribes to the readings topic. The client
// auto-reconnects and re-subscribes on connection loss.
func Connect(cfg config.MQTTConfig, readings chan<- telemetry.Reading) (*Bridge, error) {
	b := &Bridge{
		readings: readings,
		cmdTopic: cfg.TopicPrefix + "/commands",
	}
	readingsTopic := cfg.TopicPrefix + "/readings"

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true)

	opts.OnConnect = func(c mqtt.Client) {
		token := c.Subscribe(readingsTopic, 1, b.onReading)
		token.Wait()
		if err := token.Error(); err != nil {
			slog.Error("mqtt: subscribe failed", "topic", readingsTopic, "err", err)
			return
		}
		slog.Info("mqtt: connected", "broker", cfg.Broker, "topic", readingsTopic)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("mqtt: connection lost", "err", err)
	}

	b.client = mqtt.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect %q: %w", cfg.Broker, token.Error())
	}
	return b, nil
}

// SendCommand publishes a control command for the stand. Implements
// session.CommandSink so a broker-attached stand is driven exactly like a
// websocket-attached one.
func (b *Bridge) SendCommand(cmd telemetry.Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	token := b.client.Publish(b.cmdTopic, 1, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish command: %w", err)
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight work to finish.
func (b *Bridge) Close() {
	b.client.Disconnect(250)
}

func (b *Bridge) onReading(_ mqtt.Client, msg mqtt.Message) {
	var r telemetry.Reading
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		slog.Debug("mqtt: malformed reading", "err", err)
		return
	}
	b.readings <- r
}
