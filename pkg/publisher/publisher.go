// Package publisher ships (topic, event) pairs to a downstream broker. The
// no-op variant is for local development; Kafka, Google Pub/Sub, and MQTT
// variants talk to real brokers. All implementations are safe for concurrent
// use.
package publisher

import (
	"context"

	"github.com/illmade-knight/go-event-gateway/pkg/model"
)

// Publisher sends a single event to a topic. Implementations wrap broker
// errors as opaque failures; retries are the broker client's responsibility.
type Publisher interface {
	PublishOne(ctx context.Context, topic model.Topic, event *model.Event) error
	Close() error
}
