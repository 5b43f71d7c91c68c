// Package gateway composes the topic router, payload validator, and
// publisher into the event-processing pipeline and exposes the admin
// operations over the store.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-event-gateway/pkg/model"
	"github.com/illmade-knight/go-event-gateway/pkg/publisher"
	"github.com/illmade-knight/go-event-gateway/pkg/router"
	"github.com/illmade-knight/go-event-gateway/pkg/store"
	"github.com/rs/zerolog"
)

// Gateway is the pipeline contract: ingest handling plus the admin
// passthroughs for rules and validations.
type Gateway interface {
	Handle(ctx context.Context, event *model.Event) error

	AddRoutingRule(ctx context.Context, rule model.TopicRoutingRule) error
	UpdateRoutingRule(ctx context.Context, id uuid.UUID, rule model.TopicRoutingRule) error
	GetRoutingRules(ctx context.Context) ([]model.TopicRoutingRule, error)
	DeleteRoutingRule(ctx context.Context, id uuid.UUID) error

	AddTopicValidation(ctx context.Context, v model.TopicValidationConfig) error
	GetTopicValidations(ctx context.Context) (map[model.Topic][]model.DataSchema, error)
	DeleteTopicValidation(ctx context.Context, id uuid.UUID) error
}

// Config tunes the pipeline.
type Config struct {
	// StorageReadTimeout bounds each hot-path storage read.
	StorageReadTimeout time.Duration
	// SamplingEnabled turns on recording of handled events.
	SamplingEnabled bool
	// SamplingThreshold is the percentage of events recorded when sampling is
	// enabled. 100 records everything; NewEventGateway replaces a value of
	// zero or below with 100.
	SamplingThreshold float64
}

// NewConfigDefaults provides a config with sensible defaults.
func NewConfigDefaults() *Config {
	return &Config{
		StorageReadTimeout: 500 * time.Millisecond,
		SamplingThreshold:  100,
	}
}

// EventGateway is the production Gateway: it holds a shared read-only view of
// the store and an owned publisher handle.
type EventGateway struct {
	store     store.Store
	publisher publisher.Publisher
	recorder  store.EventRecorder
	cfg       Config
	logger    zerolog.Logger
}

// NewEventGateway wires the pipeline. recorder may be nil; it is only used
// when sampling is enabled.
func NewEventGateway(
	cfg *Config,
	st store.Store,
	pub publisher.Publisher,
	recorder store.EventRecorder,
	logger zerolog.Logger,
) *EventGateway {
	resolved := *cfg
	if resolved.StorageReadTimeout <= 0 {
		resolved.StorageReadTimeout = 500 * time.Millisecond
	}
	if resolved.SamplingThreshold <= 0 {
		resolved.SamplingThreshold = 100
	}
	return &EventGateway{
		store:     st,
		publisher: pub,
		recorder:  recorder,
		cfg:       resolved,
		logger:    logger.With().Str("component", "EventGateway").Logger(),
	}
}

// Handle runs the pipeline for one event: load the rule snapshot, route,
// load the topic's schemas, validate, publish. Each stage maps its failure
// into the gateway error taxonomy.
func (g *EventGateway) Handle(ctx context.Context, event *model.Event) error {
	rules, err := g.readRules(ctx)
	if err != nil {
		g.record(ctx, event, nil, failure(err))
		return internal(err)
	}

	rule := router.Route(rules, event)
	if rule == nil {
		g.logger.Debug().Str("event_id", event.ID.String()).Str("event_type", event.EventType).Msg("No rule matched event.")
		routeErr := &NoTopicError{EventID: event.ID}
		g.record(ctx, event, nil, failure(routeErr))
		return routeErr
	}

	schemas, err := g.readValidations(ctx, rule.Topic)
	if err != nil {
		g.record(ctx, event, rule, failure(err))
		return internal(err)
	}

	if invalid := validateEvent(event, schemas); invalid != nil {
		g.logger.Debug().
			Str("event_id", event.ID.String()).
			Str("schema", invalid.SchemaName).
			Str("reason", invalid.Reason).
			Msg("Event payload rejected by schema.")
		g.record(ctx, event, rule, failure(invalid))
		return invalid
	}

	if err := g.publisher.PublishOne(ctx, rule.Topic, event); err != nil {
		g.logger.Error().Err(err).Str("event_id", event.ID.String()).Str("topic", string(rule.Topic)).Msg("Publish failed.")
		g.record(ctx, event, rule, failure(err))
		return internal(err)
	}

	g.record(ctx, event, rule, nil)
	return nil
}

func (g *EventGateway) readRules(ctx context.Context) ([]model.TopicRoutingRule, error) {
	readCtx, cancel := context.WithTimeout(ctx, g.cfg.StorageReadTimeout)
	defer cancel()
	return g.store.GetAllRules(readCtx)
}

func (g *EventGateway) readValidations(ctx context.Context, topic model.Topic) ([]model.DataSchema, error) {
	readCtx, cancel := context.WithTimeout(ctx, g.cfg.StorageReadTimeout)
	defer cancel()
	return g.store.GetValidationsForTopic(readCtx, topic)
}

func failure(err error) *string {
	reason := err.Error()
	return &reason
}

// record stores a sampled trace of the handled event. Recording is
// best-effort: failures are logged and never affect the request.
func (g *EventGateway) record(ctx context.Context, event *model.Event, rule *model.TopicRoutingRule, failureReason *string) {
	if !g.cfg.SamplingEnabled || g.recorder == nil {
		return
	}
	if g.cfg.SamplingThreshold < 100 && rand.Float64()*100 >= g.cfg.SamplingThreshold {
		return
	}

	eventData, err := json.Marshal(event)
	if err != nil {
		g.logger.Warn().Err(err).Str("event_id", event.ID.String()).Msg("Failed to serialize event for recording.")
		return
	}
	rec := store.StoredEvent{
		ID:            uuid.New(),
		EventID:       event.ID,
		EventType:     event.EventType,
		EventVersion:  event.EventVersion,
		FailureReason: failureReason,
		StoredAt:      time.Now().UTC(),
		EventData:     eventData,
	}
	if rule != nil {
		routingID := rule.ID
		topic := string(rule.Topic)
		rec.RoutingID = &routingID
		rec.DestinationTopic = &topic
	}
	if err := g.recorder.StoreEvent(ctx, rec); err != nil {
		g.logger.Warn().Err(err).Str("event_id", event.ID.String()).Msg("Failed to record sampled event.")
	}
}

// AddRoutingRule validates the rule and writes it through to the store.
func (g *EventGateway) AddRoutingRule(ctx context.Context, rule model.TopicRoutingRule) error {
	if err := rule.Validate(); err != nil {
		return &InvalidInputError{Reason: err.Error()}
	}
	if err := g.store.AddRule(ctx, rule); err != nil {
		return internal(err)
	}
	return nil
}

// UpdateRoutingRule replaces the whole record for id. A missing id is a
// NotFoundError rather than an internal failure; an update that changes the
// rule's topic is rejected as invalid input.
func (g *EventGateway) UpdateRoutingRule(ctx context.Context, id uuid.UUID, rule model.TopicRoutingRule) error {
	rule.ID = id
	if err := rule.Validate(); err != nil {
		return &InvalidInputError{Reason: err.Error()}
	}
	existing, err := g.store.GetRule(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{ID: id}
		}
		return internal(err)
	}
	if existing.Topic != rule.Topic {
		return &InvalidInputError{Reason: "routing rule: topic cannot be changed by an update"}
	}
	if err := g.store.UpdateRule(ctx, id, rule); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &NotFoundError{ID: id}
		}
		return internal(err)
	}
	return nil
}

func (g *EventGateway) GetRoutingRules(ctx context.Context) ([]model.TopicRoutingRule, error) {
	rules, err := g.store.GetAllRules(ctx)
	if err != nil {
		return nil, internal(err)
	}
	return rules, nil
}

// DeleteRoutingRule is idempotent: deleting a missing rule succeeds.
func (g *EventGateway) DeleteRoutingRule(ctx context.Context, id uuid.UUID) error {
	if err := g.store.DeleteRule(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return internal(err)
	}
	return nil
}

// AddTopicValidation writes the validation through to the store. A schema
// that was present in the request has already been compiled during
// deserialization; here the topic, the id, and the schema's presence are
// checked.
func (g *EventGateway) AddTopicValidation(ctx context.Context, v model.TopicValidationConfig) error {
	if err := v.Topic.Validate(); err != nil {
		return &InvalidInputError{Reason: err.Error()}
	}
	if v.ID == uuid.Nil {
		return &InvalidInputError{Reason: "topic validation: id is required"}
	}
	if v.Schema.Schema.JSON == nil {
		return &InvalidInputError{Reason: "topic validation: schema is required"}
	}
	if err := g.store.AddTopicValidation(ctx, v); err != nil {
		return internal(err)
	}
	return nil
}

// GetTopicValidations lists the registered schemas grouped by topic.
func (g *EventGateway) GetTopicValidations(ctx context.Context) (map[model.Topic][]model.DataSchema, error) {
	all, err := g.store.GetAllTopicValidations(ctx)
	if err != nil {
		return nil, internal(err)
	}
	byTopic := make(map[model.Topic][]model.DataSchema, len(all))
	for topic, configs := range all {
		schemas := make([]model.DataSchema, 0, len(configs))
		for _, config := range configs {
			schemas = append(schemas, config.Schema)
		}
		byTopic[topic] = schemas
	}
	return byTopic, nil
}

// DeleteTopicValidation is idempotent: deleting a missing validation succeeds.
func (g *EventGateway) DeleteTopicValidation(ctx context.Context, id uuid.UUID) error {
	if err := g.store.DeleteTopicValidation(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return internal(err)
	}
	return nil
}
