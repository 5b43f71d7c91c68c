package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/illmade-knight/go-event-gateway/pkg/model"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
)

// Compression names the supported Kafka compression codecs.
type Compression string

const (
	CompressionNone   Compression = "none"
	CompressionGzip   Compression = "gzip"
	CompressionSnappy Compression = "snappy"
)

// RequiredAcks names the broker acknowledgement levels.
type RequiredAcks string

const (
	AcksNone RequiredAcks = "none"
	AcksOne  RequiredAcks = "one"
	AcksAll  RequiredAcks = "all"
)

// KafkaConfig holds the producer settings for the Kafka-compatible sink.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	ClientID        string        `mapstructure:"client_id"`
	Compression     Compression   `mapstructure:"compression"`
	RequiredAcks    RequiredAcks  `mapstructure:"required_acks"`
	ConnIdleTimeout time.Duration `mapstructure:"conn_idle_timeout"`
	MessageTimeout  time.Duration `mapstructure:"message_timeout"`
	AckTimeout      time.Duration `mapstructure:"ack_timeout"`
	// MetadataFieldAsKey, when set and present in an event's metadata, names
	// the metadata entry whose value becomes the record key. Records fall
	// back to the event id otherwise.
	MetadataFieldAsKey string `mapstructure:"metadata_field_as_key"`
}

// kafkaWriter is the slice of kafka.Writer the publisher uses, seamed out
// for tests.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher sends single records to a Kafka-compatible broker; each
// PublishOne call blocks until the broker acknowledges the write or the ack
// timeout expires. The record value is the event's canonical JSON serialization; the
// key follows the metadata-field rule from the config. A circuit breaker
// around the writer sheds load quickly when the broker is down instead of
// letting every request wait out the full timeout.
type KafkaPublisher struct {
	writer     kafkaWriter
	breaker    *gobreaker.CircuitBreaker
	keyField   string
	ackTimeout time.Duration
	logger     zerolog.Logger
}

// NewKafkaPublisher builds the producer from the config. The connection is
// lazy: the first publish dials the brokers.
func NewKafkaPublisher(cfg *KafkaConfig, logger zerolog.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	compression, err := kafkaCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	acks, err := kafkaRequiredAcks(cfg.RequiredAcks)
	if err != nil {
		return nil, err
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		Compression:  compression,
		RequiredAcks: acks,
		WriteTimeout: cfg.MessageTimeout,
		Transport: &kafka.Transport{
			ClientID:    cfg.ClientID,
			IdleTimeout: cfg.ConnIdleTimeout,
		},
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "kafka-publisher",
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Kafka circuit breaker changed state.")
		},
	})

	logger.Info().Strs("brokers", cfg.Brokers).Str("client_id", cfg.ClientID).Msg("Kafka publisher initialized.")
	return &KafkaPublisher{
		writer:     writer,
		breaker:    breaker,
		keyField:   cfg.MetadataFieldAsKey,
		ackTimeout: cfg.AckTimeout,
		logger:     logger.With().Str("component", "KafkaPublisher").Logger(),
	}, nil
}

func kafkaCompression(c Compression) (kafka.Compression, error) {
	switch c {
	case CompressionNone, "":
		return 0, nil
	case CompressionGzip:
		return kafka.Gzip, nil
	case CompressionSnappy:
		return kafka.Snappy, nil
	}
	return 0, fmt.Errorf("unknown kafka compression %q", c)
}

func kafkaRequiredAcks(a RequiredAcks) (kafka.RequiredAcks, error) {
	switch a {
	case AcksNone:
		return kafka.RequireNone, nil
	case AcksOne, "":
		return kafka.RequireOne, nil
	case AcksAll:
		return kafka.RequireAll, nil
	}
	return 0, fmt.Errorf("unknown kafka required acks %q", a)
}

// recordKey picks the record key: the configured metadata field when present
// on the event, the event id otherwise.
func (p *KafkaPublisher) recordKey(event *model.Event) string {
	if p.keyField != "" {
		if value, ok := event.Metadata[p.keyField]; ok {
			return value
		}
	}
	return event.ID.String()
}

func (p *KafkaPublisher) PublishOne(ctx context.Context, topic model.Topic, event *model.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event %s: %w", event.ID, err)
	}
	msg := kafka.Message{
		Topic: string(topic),
		Key:   []byte(p.recordKey(event)),
		Value: payload,
	}

	writeCtx := ctx
	if p.ackTimeout > 0 {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(ctx, p.ackTimeout)
		defer cancel()
	}

	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.writer.WriteMessages(writeCtx, msg)
	})
	if err != nil {
		return fmt.Errorf("kafka publish to %s failed: %w", topic, err)
	}
	p.logger.Debug().Str("topic", string(topic)).Str("key", string(msg.Key)).Msg("Record published.")
	return nil
}

func (p *KafkaPublisher) Close() error {
	p.logger.Info().Msg("Closing Kafka writer...")
	return p.writer.Close()
}
