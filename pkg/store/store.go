// Package store persists routing rules and topic validation configs behind a
// pluggable Store interface, with in-memory, file-backed, and Postgres
// variants plus caching layers for the read-heavy hot path.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-event-gateway/pkg/model"
)

var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("item not found")
	// ErrConflict signals that a record with the same id already exists.
	ErrConflict = errors.New("item already exists")
)

// Store is the capability set the gateway needs for rules and validations.
// The storage layer exclusively owns the records; callers get copies.
type Store interface {
	AddRule(ctx context.Context, rule model.TopicRoutingRule) error
	GetRule(ctx context.Context, id uuid.UUID) (model.TopicRoutingRule, error)
	GetAllRules(ctx context.Context) ([]model.TopicRoutingRule, error)
	UpdateRule(ctx context.Context, id uuid.UUID, rule model.TopicRoutingRule) error
	DeleteRule(ctx context.Context, id uuid.UUID) error

	AddTopicValidation(ctx context.Context, v model.TopicValidationConfig) error
	GetAllTopicValidations(ctx context.Context) (map[model.Topic][]model.TopicValidationConfig, error)
	// GetValidationsForTopic returns the schemas registered for topic. Unknown
	// topics yield an empty slice, never an error.
	GetValidationsForTopic(ctx context.Context, topic model.Topic) ([]model.DataSchema, error)
	DeleteTopicValidation(ctx context.Context, id uuid.UUID) error
}

// StoredEvent is the record kept when event sampling is enabled: the routing
// outcome plus the full event document.
type StoredEvent struct {
	ID               uuid.UUID       `json:"id"`
	EventID          uuid.UUID       `json:"eventId"`
	EventType        string          `json:"eventType"`
	EventVersion     *string         `json:"eventVersion,omitempty"`
	RoutingID        *uuid.UUID      `json:"routingId,omitempty"`
	DestinationTopic *string         `json:"destinationTopic,omitempty"`
	FailureReason    *string         `json:"failureReason,omitempty"`
	StoredAt         time.Time       `json:"storedAt"`
	EventData        json.RawMessage `json:"eventData"`
}

// EventRecorder is the optional write capability for sampled events.
type EventRecorder interface {
	StoreEvent(ctx context.Context, rec StoredEvent) error
}

// EventQuerier is the optional read capability over recorded events.
type EventQuerier interface {
	GetEvent(ctx context.Context, id uuid.UUID) (StoredEvent, error)
	GetEventsByType(ctx context.Context, eventType string, limit, offset int64) ([]StoredEvent, error)
}

// schemasOf projects validation configs onto their schemas, preserving order.
func schemasOf(configs []model.TopicValidationConfig) []model.DataSchema {
	schemas := make([]model.DataSchema, 0, len(configs))
	for _, config := range configs {
		schemas = append(schemas, config.Schema)
	}
	return schemas
}
