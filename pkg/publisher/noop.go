package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-event-gateway/pkg/model"
	"github.com/rs/zerolog"
)

// NoOpPublisher serializes the event, logs it with its destination topic,
// and reports success. Used for local and dev setups.
type NoOpPublisher struct {
	logger zerolog.Logger
}

// NewNoOpPublisher creates the logging sink.
func NewNoOpPublisher(logger zerolog.Logger) *NoOpPublisher {
	return &NoOpPublisher{
		logger: logger.With().Str("component", "NoOpPublisher").Logger(),
	}
}

func (p *NoOpPublisher) PublishOne(_ context.Context, topic model.Topic, event *model.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event %s: %w", event.ID, err)
	}
	p.logger.Info().
		Str("topic", string(topic)).
		RawJSON("event", payload).
		Msg("Published event.")
	return nil
}

func (p *NoOpPublisher) Close() error {
	return nil
}
