package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-event-gateway/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
)

// MeteredGateway decorates a Gateway with Prometheus instrumentation on the
// ingest path. Admin operations pass through unmeasured.
type MeteredGateway struct {
	inner     Gateway
	events    *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

// NewMeteredGateway registers the gateway metrics on reg and returns the
// decorator.
func NewMeteredGateway(inner Gateway, reg prometheus.Registerer) (*MeteredGateway, error) {
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_total",
			Help: "Total number of events handled",
		},
		[]string{"event_type", "event_version", "source", "result"},
	)
	durations := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "event_handling_duration_seconds",
			Help: "Histogram of event handling durations",
		},
		[]string{"step"},
	)
	if err := reg.Register(events); err != nil {
		return nil, fmt.Errorf("failed to register events counter: %w", err)
	}
	if err := reg.Register(durations); err != nil {
		return nil, fmt.Errorf("failed to register duration histogram: %w", err)
	}
	return &MeteredGateway{inner: inner, events: events, durations: durations}, nil
}

func (m *MeteredGateway) Handle(ctx context.Context, event *model.Event) error {
	start := time.Now()
	err := m.inner.Handle(ctx, event)
	m.durations.WithLabelValues("handle").Observe(time.Since(start).Seconds())

	version := "unknown"
	if event.EventVersion != nil {
		version = *event.EventVersion
	}
	source := "unknown"
	if event.Origin != nil {
		source = *event.Origin
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.events.WithLabelValues(event.EventType, version, source, result).Inc()
	return err
}

func (m *MeteredGateway) AddRoutingRule(ctx context.Context, rule model.TopicRoutingRule) error {
	return m.inner.AddRoutingRule(ctx, rule)
}

func (m *MeteredGateway) UpdateRoutingRule(ctx context.Context, id uuid.UUID, rule model.TopicRoutingRule) error {
	return m.inner.UpdateRoutingRule(ctx, id, rule)
}

func (m *MeteredGateway) GetRoutingRules(ctx context.Context) ([]model.TopicRoutingRule, error) {
	return m.inner.GetRoutingRules(ctx)
}

func (m *MeteredGateway) DeleteRoutingRule(ctx context.Context, id uuid.UUID) error {
	return m.inner.DeleteRoutingRule(ctx, id)
}

func (m *MeteredGateway) AddTopicValidation(ctx context.Context, v model.TopicValidationConfig) error {
	return m.inner.AddTopicValidation(ctx, v)
}

func (m *MeteredGateway) GetTopicValidations(ctx context.Context) (map[model.Topic][]model.DataSchema, error) {
	return m.inner.GetTopicValidations(ctx)
}

func (m *MeteredGateway) DeleteTopicValidation(ctx context.Context, id uuid.UUID) error {
	return m.inner.DeleteTopicValidation(ctx, id)
}
