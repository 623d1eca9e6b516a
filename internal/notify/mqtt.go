package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/kozaktomas/face-registry/internal/config"
)

const mqttPublishTimeout = 5 * time.Second

// MQTTPublisher publishes events as JSON to "<topic>/<event type>" and
// listens for sync requests on "<topic>/sync".
type MQTTPublisher struct {
	client mqtt.Client
	topic  string
	logger *slog.Logger
}

// NewMQTTPublisher connects to cfg.Broker.
func NewMQTTPublisher(cfg config.MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "face-registry"
	}
	// Broker sessions are per client ID; several instances must not collide.
	clientID += "-" + uuid.New().String()[:8]

	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(clientID)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetConnectTimeout(30 * time.Second)
	opts.SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", cfg.Broker, token.Error())
	}
	logger.Info("connected to mqtt", "broker", cfg.Broker, "client_id", clientID)

	return &MQTTPublisher{
		client: client,
		topic:  strings.TrimSuffix(cfg.Topic, "/"),
		logger: logger,
	}, nil
}

// Notify publishes e to <topic>/<event type>. Broker failures are logged
// only; whatever produced the event has already happened.
func (p *MQTTPublisher) Notify(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("encoding mqtt event", "error", err)
		return
	}
	topic := eventTopic(p.topic, e.Type)
	token := p.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		p.logger.Warn("mqtt publish timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("mqtt publish failed", "topic", topic, "error", err)
	}
}

// OnSyncRequest calls fn whenever a message arrives on the sync topic.
func (p *MQTTPublisher) OnSyncRequest(fn func()) error {
	topic := syncTopic(p.topic)
	token := p.client.Subscribe(topic, 0, func(c mqtt.Client, m mqtt.Message) {
		p.logger.Info("sync requested over mqtt", "topic", m.Topic())
		go fn()
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

func eventTopic(base, eventType string) string {
	return base + "/" + eventType
}

func syncTopic(base string) string {
	return base + "/sync"
}
