package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-event-gateway/pkg/model"
	"github.com/rs/zerolog"
)

// FileStore persists the entire state as one JSON document. Every write reads
// the document, mutates it, and truncates-and-rewrites the file under a
// single lock. It is intended for local and small single-process setups.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger zerolog.Logger
}

type fileDatabase struct {
	Rules            map[uuid.UUID]model.TopicRoutingRule          `json:"rules"`
	TopicValidations map[model.Topic][]model.TopicValidationConfig `json:"topicValidations"`
}

// NewFileStore creates a store backed by the JSON document at path. The file
// is created lazily on the first write.
func NewFileStore(path string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger.With().Str("component", "FileStore").Str("path", path).Logger(),
	}
}

func (s *FileStore) readDatabase() (fileDatabase, error) {
	empty := fileDatabase{
		Rules:            make(map[uuid.UUID]model.TopicRoutingRule),
		TopicValidations: make(map[model.Topic][]model.TopicValidationConfig),
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return empty, nil
	}
	if err != nil {
		return fileDatabase{}, fmt.Errorf("failed to read store file: %w", err)
	}
	if len(data) == 0 {
		return empty, nil
	}
	var db fileDatabase
	if err := json.Unmarshal(data, &db); err != nil {
		return fileDatabase{}, fmt.Errorf("failed to parse store file: %w", err)
	}
	if db.Rules == nil {
		db.Rules = make(map[uuid.UUID]model.TopicRoutingRule)
	}
	if db.TopicValidations == nil {
		db.TopicValidations = make(map[model.Topic][]model.TopicValidationConfig)
	}
	return db, nil
}

func (s *FileStore) writeDatabase(db fileDatabase) error {
	data, err := json.Marshal(db)
	if err != nil {
		return fmt.Errorf("failed to serialize store file: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	return nil
}

func (s *FileStore) AddRule(_ context.Context, rule model.TopicRoutingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.readDatabase()
	if err != nil {
		return err
	}
	if _, exists := db.Rules[rule.ID]; exists {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrConflict)
	}
	db.Rules[rule.ID] = rule
	return s.writeDatabase(db)
}

func (s *FileStore) GetRule(_ context.Context, id uuid.UUID) (model.TopicRoutingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.readDatabase()
	if err != nil {
		return model.TopicRoutingRule{}, err
	}
	rule, ok := db.Rules[id]
	if !ok {
		return model.TopicRoutingRule{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return rule, nil
}

func (s *FileStore) GetAllRules(_ context.Context) ([]model.TopicRoutingRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.readDatabase()
	if err != nil {
		return nil, err
	}
	rules := make([]model.TopicRoutingRule, 0, len(db.Rules))
	for _, rule := range db.Rules {
		rules = append(rules, rule)
	}
	return rules, nil
}

func (s *FileStore) UpdateRule(_ context.Context, id uuid.UUID, rule model.TopicRoutingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.readDatabase()
	if err != nil {
		return err
	}
	if _, exists := db.Rules[id]; !exists {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	rule.ID = id
	db.Rules[id] = rule
	return s.writeDatabase(db)
}

func (s *FileStore) DeleteRule(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.readDatabase()
	if err != nil {
		return err
	}
	if _, exists := db.Rules[id]; !exists {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	delete(db.Rules, id)
	return s.writeDatabase(db)
}

func (s *FileStore) AddTopicValidation(_ context.Context, v model.TopicValidationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.readDatabase()
	if err != nil {
		return err
	}
	for _, configs := range db.TopicValidations {
		for _, config := range configs {
			if config.ID == v.ID {
				return fmt.Errorf("topic validation %s: %w", v.ID, ErrConflict)
			}
		}
	}
	db.TopicValidations[v.Topic] = append(db.TopicValidations[v.Topic], v)
	return s.writeDatabase(db)
}

func (s *FileStore) GetAllTopicValidations(_ context.Context) (map[model.Topic][]model.TopicValidationConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.readDatabase()
	if err != nil {
		return nil, err
	}
	return db.TopicValidations, nil
}

func (s *FileStore) GetValidationsForTopic(_ context.Context, topic model.Topic) ([]model.DataSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.readDatabase()
	if err != nil {
		return nil, err
	}
	return schemasOf(db.TopicValidations[topic]), nil
}

func (s *FileStore) DeleteTopicValidation(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := s.readDatabase()
	if err != nil {
		return err
	}
	for topic, configs := range db.TopicValidations {
		for i, config := range configs {
			if config.ID == id {
				db.TopicValidations[topic] = append(configs[:i], configs[i+1:]...)
				if len(db.TopicValidations[topic]) == 0 {
					delete(db.TopicValidations, topic)
				}
				return s.writeDatabase(db)
			}
		}
	}
	return fmt.Errorf("topic validation %s: %w", id, ErrNotFound)
}
