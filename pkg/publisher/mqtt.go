package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/illmade-knight/go-event-gateway/pkg/model"
	"github.com/rs/zerolog"
)

// QoSLevel names the MQTT delivery guarantees.
type QoSLevel string

const (
	QoSAtMostOnce  QoSLevel = "atMostOnce"
	QoSAtLeastOnce QoSLevel = "atLeastOnce"
	QoSExactlyOnce QoSLevel = "exactlyOnce"
)

func (q QoSLevel) byteValue() (byte, error) {
	switch q {
	case QoSAtMostOnce, "":
		return 0, nil
	case QoSAtLeastOnce:
		return 1, nil
	case QoSExactlyOnce:
		return 2, nil
	}
	return 0, fmt.Errorf("unknown MQTT QoS level %q", q)
}

// MQTTConfig holds the settings for the MQTT sink.
type MQTTConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ClientID     string        `mapstructure:"client_id"`
	KeepAlive    time.Duration `mapstructure:"keep_alive"`
	CleanSession bool          `mapstructure:"clean_session"`
	QoS          QoSLevel      `mapstructure:"qos"`
	Retain       bool          `mapstructure:"retain"`
	// PublishTimeout bounds how long a publish waits for the broker token.
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// MQTTPublisher ships events to an MQTT broker at the configured QoS level.
// The routed topic is used directly as the MQTT topic; the payload is the
// event's canonical JSON serialization.
type MQTTPublisher struct {
	client         mqtt.Client
	qos            byte
	retain         bool
	publishTimeout time.Duration
	logger         zerolog.Logger
}

// NewMQTTPublisher connects to the broker and returns the publisher. The
// Paho client reconnects on its own after transient drops.
func NewMQTTPublisher(cfg *MQTTConfig, logger zerolog.Logger) (*MQTTPublisher, error) {
	qos, err := cfg.QoS.byteValue()
	if err != nil {
		return nil, err
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetKeepAlive(cfg.KeepAlive).
		SetCleanSession(cfg.CleanSession).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s:%d", cfg.Host, cfg.Port)
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	logger.Info().Str("host", cfg.Host).Int("port", cfg.Port).Str("client_id", cfg.ClientID).Msg("MQTT publisher connected.")
	return newMQTTPublisherWithClient(client, qos, cfg.Retain, cfg.PublishTimeout, logger), nil
}

func newMQTTPublisherWithClient(client mqtt.Client, qos byte, retain bool, publishTimeout time.Duration, logger zerolog.Logger) *MQTTPublisher {
	if publishTimeout <= 0 {
		publishTimeout = 10 * time.Second
	}
	return &MQTTPublisher{
		client:         client,
		qos:            qos,
		retain:         retain,
		publishTimeout: publishTimeout,
		logger:         logger.With().Str("component", "MQTTPublisher").Logger(),
	}
}

func (p *MQTTPublisher) PublishOne(_ context.Context, topic model.Topic, event *model.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event %s: %w", event.ID, err)
	}

	token := p.client.Publish(string(topic), p.qos, p.retain, payload)
	if !token.WaitTimeout(p.publishTimeout) {
		return fmt.Errorf("mqtt publish to %s timed out after %s", topic, p.publishTimeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("mqtt publish to %s failed: %w", topic, token.Error())
	}
	p.logger.Debug().Str("topic", string(topic)).Msg("Message published.")
	return nil
}

func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	p.logger.Info().Msg("MQTT publisher disconnected.")
	return nil
}
