package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-event-gateway/pkg/model"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// PubSubConfig holds the settings for the Google Pub/Sub sink.
type PubSubConfig struct {
	ProjectID       string        `mapstructure:"project_id"`
	CredentialsFile string        `mapstructure:"credentials_file"`
	AckTimeout      time.Duration `mapstructure:"ack_timeout"`
}

// NewPubSubClient creates a Pub/Sub client, using the configured service
// account file when present and Application Default Credentials otherwise.
func NewPubSubClient(ctx context.Context, cfg *PubSubConfig, logger zerolog.Logger) (*pubsub.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file for Pub/Sub client.")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC) for Pub/Sub client.")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}
	return client, nil
}

// PubSubPublisher sends events to Google Pub/Sub topics. Topic handles are
// created on first use and cached; event metadata travels as message
// attributes so subscribers can filter without deserializing the payload.
type PubSubPublisher struct {
	client     *pubsub.Client
	ackTimeout time.Duration
	logger     zerolog.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPubSubPublisher wraps an existing Pub/Sub client. The client's lifecycle
// is owned by the publisher and released by Close.
func NewPubSubPublisher(cfg *PubSubConfig, client *pubsub.Client, logger zerolog.Logger) (*PubSubPublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	ackTimeout := cfg.AckTimeout
	if ackTimeout <= 0 {
		ackTimeout = 20 * time.Second
	}
	return &PubSubPublisher{
		client:     client,
		ackTimeout: ackTimeout,
		logger:     logger.With().Str("component", "PubSubPublisher").Logger(),
		topics:     make(map[string]*pubsub.Topic),
	}, nil
}

func (p *PubSubPublisher) topic(name string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	topic, ok := p.topics[name]
	if !ok {
		topic = p.client.Topic(name)
		p.topics[name] = topic
	}
	return topic
}

func (p *PubSubPublisher) PublishOne(ctx context.Context, topic model.Topic, event *model.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event %s: %w", event.ID, err)
	}

	result := p.topic(string(topic)).Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: event.Metadata,
	})

	getCtx, cancel := context.WithTimeout(ctx, p.ackTimeout)
	defer cancel()
	serverID, err := result.Get(getCtx)
	if err != nil {
		return fmt.Errorf("pubsub publish to %s failed: %w", topic, err)
	}
	p.logger.Debug().Str("topic", string(topic)).Str("pubsub_msg_id", serverID).Msg("Message published.")
	return nil
}

// Close flushes and stops every cached topic, then closes the client.
func (p *PubSubPublisher) Close() error {
	p.mu.Lock()
	for _, topic := range p.topics {
		topic.Stop()
	}
	p.mu.Unlock()
	p.logger.Info().Msg("Pub/Sub publisher stopped.")
	return p.client.Close()
}
