package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-event-gateway/pkg/model"
)

// storedEventCap bounds the in-memory event ring so a long-running dev
// process cannot grow without limit.
const storedEventCap = 1000

// InMemoryStore is the authoritative, process-local Store variant. All writes
// happen under a single writer lock; readers get copies of the records.
type InMemoryStore struct {
	mu          sync.RWMutex
	rules       map[uuid.UUID]model.TopicRoutingRule
	validations map[model.Topic][]model.TopicValidationConfig
	events      []StoredEvent
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rules:       make(map[uuid.UUID]model.TopicRoutingRule),
		validations: make(map[model.Topic][]model.TopicValidationConfig),
	}
}

type seedDocument struct {
	RoutingRules     []model.TopicRoutingRule                      `json:"routingRules"`
	TopicValidations map[model.Topic][]model.TopicValidationConfig `json:"topicValidations"`
}

// NewInMemoryStoreFromJSON seeds a store from a JSON document of the form
// {"routingRules": […], "topicValidations": {topic: […]}}.
func NewInMemoryStoreFromJSON(data []byte) (*InMemoryStore, error) {
	var seed seedDocument
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse initial store data: %w", err)
	}
	s := NewInMemoryStore()
	for _, rule := range seed.RoutingRules {
		s.rules[rule.ID] = rule
	}
	for topic, configs := range seed.TopicValidations {
		s.validations[topic] = configs
	}
	return s, nil
}

func (s *InMemoryStore) AddRule(_ context.Context, rule model.TopicRoutingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[rule.ID]; exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrConflict)
	}
	s.rules[rule.ID] = rule
	return nil
}

func (s *InMemoryStore) GetRule(_ context.Context, id uuid.UUID) (model.TopicRoutingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return model.TopicRoutingRule{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return rule, nil
}

func (s *InMemoryStore) GetAllRules(_ context.Context) ([]model.TopicRoutingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rules := make([]model.TopicRoutingRule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, rule)
	}
	return rules, nil
}

func (s *InMemoryStore) UpdateRule(_ context.Context, id uuid.UUID, rule model.TopicRoutingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	rule.ID = id
	s.rules[id] = rule
	return nil
}

func (s *InMemoryStore) DeleteRule(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[id]; !exists {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	delete(s.rules, id)
	return nil
}

func (s *InMemoryStore) AddTopicValidation(_ context.Context, v model.TopicValidationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, configs := range s.validations {
		for _, config := range configs {
			if config.ID == v.ID {
				return fmt.Errorf("topic validation %s: %w", v.ID, ErrConflict)
			}
		}
	}
	s.validations[v.Topic] = append(s.validations[v.Topic], v)
	return nil
}

func (s *InMemoryStore) GetAllTopicValidations(_ context.Context) (map[model.Topic][]model.TopicValidationConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make(map[model.Topic][]model.TopicValidationConfig, len(s.validations))
	for topic, configs := range s.validations {
		all[topic] = append([]model.TopicValidationConfig(nil), configs...)
	}
	return all, nil
}

func (s *InMemoryStore) GetValidationsForTopic(_ context.Context, topic model.Topic) ([]model.DataSchema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return schemasOf(s.validations[topic]), nil
}

func (s *InMemoryStore) DeleteTopicValidation(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for topic, configs := range s.validations {
		for i, config := range configs {
			if config.ID == id {
				s.validations[topic] = append(configs[:i], configs[i+1:]...)
				if len(s.validations[topic]) == 0 {
					delete(s.validations, topic)
				}
				return nil
			}
		}
	}
	return fmt.Errorf("topic validation %s: %w", id, ErrNotFound)
}

func (s *InMemoryStore) StoreEvent(_ context.Context, rec StoredEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, rec)
	if len(s.events) > storedEventCap {
		s.events = s.events[len(s.events)-storedEventCap:]
	}
	return nil
}

func (s *InMemoryStore) GetEvent(_ context.Context, id uuid.UUID) (StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.events {
		if rec.ID == id {
			return rec, nil
		}
	}
	return StoredEvent{}, fmt.Errorf("stored event %s: %w", id, ErrNotFound)
}

func (s *InMemoryStore) GetEventsByType(_ context.Context, eventType string, limit, offset int64) ([]StoredEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]StoredEvent, 0)
	for _, rec := range s.events {
		if rec.EventType == eventType {
			matched = append(matched, rec)
		}
	}
	if offset >= int64(len(matched)) {
		return []StoredEvent{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < int64(len(matched)) {
		matched = matched[:limit]
	}
	return matched, nil
}
