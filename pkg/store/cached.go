package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-event-gateway/pkg/model"
	"github.com/rs/zerolog"
)

// DefaultCacheRefreshInterval is used when the config does not set one.
const DefaultCacheRefreshInterval = 300 * time.Second

// snapshot is an immutable view of the rule and validation state. Readers
// hold a snapshot for the duration of one operation; the refresher swaps the
// pointer atomically so readers never block on writers.
type snapshot struct {
	rules       []model.TopicRoutingRule
	validations map[model.Topic][]model.TopicValidationConfig
}

// CachedStore serves hot-path reads from an in-process snapshot of an
// underlying (typically durable) Store. The snapshot refreshes on a
// configurable interval and after every write this process performs itself;
// writes by other processes become visible within one interval. On refresh
// failure the previous snapshot is retained and the store reports itself
// degraded.
type CachedStore struct {
	source          Store
	recorder        EventRecorder
	snap            atomic.Pointer[snapshot]
	degraded        atomic.Bool
	refreshInterval time.Duration
	logger          zerolog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCachedStore performs the initial snapshot load and returns the caching
// layer. Call Start to run the background refresher and Stop to halt it.
func NewCachedStore(ctx context.Context, source Store, refreshInterval time.Duration, logger zerolog.Logger) (*CachedStore, error) {
	if refreshInterval <= 0 {
		refreshInterval = DefaultCacheRefreshInterval
	}
	s := &CachedStore{
		source:          source,
		refreshInterval: refreshInterval,
		logger:          logger.With().Str("component", "CachedStore").Logger(),
	}
	if recorder, ok := source.(EventRecorder); ok {
		s.recorder = recorder
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("initial cache load failed: %w", err)
	}
	return s, nil
}

// Start launches the background refresher. It returns immediately.
func (s *CachedStore) Start(ctx context.Context) {
	refreshCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-refreshCtx.Done():
				s.logger.Info().Msg("Cache refresher shutting down.")
				return
			case <-ticker.C:
				if err := s.Refresh(refreshCtx); err != nil {
					s.logger.Warn().Err(err).Msg("Periodic cache refresh failed, serving stale snapshot.")
				}
			}
		}
	}()
	s.logger.Info().Dur("refresh_interval", s.refreshInterval).Msg("Cache refresher started.")
}

// Stop halts the background refresher and waits for it to exit.
func (s *CachedStore) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Refresh reloads the snapshot from the source store. On failure the current
// snapshot stays in place and the store is marked degraded.
func (s *CachedStore) Refresh(ctx context.Context) error {
	rules, err := s.source.GetAllRules(ctx)
	if err != nil {
		s.degraded.Store(true)
		return fmt.Errorf("failed to load rules: %w", err)
	}
	validations, err := s.source.GetAllTopicValidations(ctx)
	if err != nil {
		s.degraded.Store(true)
		return fmt.Errorf("failed to load topic validations: %w", err)
	}
	s.snap.Store(&snapshot{rules: rules, validations: validations})
	s.degraded.Store(false)
	s.logger.Debug().Int("rules", len(rules)).Int("topics", len(validations)).Msg("Cache refreshed.")
	return nil
}

// Degraded reports whether the last refresh attempt failed and reads are
// being served from a stale snapshot.
func (s *CachedStore) Degraded() bool {
	return s.degraded.Load()
}

// refreshAfterWrite reloads the snapshot after one of our own writes so the
// change is visible immediately. Failures only degrade freshness, never the
// write itself.
func (s *CachedStore) refreshAfterWrite(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Cache refresh after write failed.")
	}
}

func (s *CachedStore) AddRule(ctx context.Context, rule model.TopicRoutingRule) error {
	if err := s.source.AddRule(ctx, rule); err != nil {
		return err
	}
	s.refreshAfterWrite(ctx)
	return nil
}

func (s *CachedStore) GetRule(_ context.Context, id uuid.UUID) (model.TopicRoutingRule, error) {
	for _, rule := range s.snap.Load().rules {
		if rule.ID == id {
			return rule, nil
		}
	}
	return model.TopicRoutingRule{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
}

func (s *CachedStore) GetAllRules(_ context.Context) ([]model.TopicRoutingRule, error) {
	return append([]model.TopicRoutingRule(nil), s.snap.Load().rules...), nil
}

func (s *CachedStore) UpdateRule(ctx context.Context, id uuid.UUID, rule model.TopicRoutingRule) error {
	if err := s.source.UpdateRule(ctx, id, rule); err != nil {
		return err
	}
	s.refreshAfterWrite(ctx)
	return nil
}

func (s *CachedStore) DeleteRule(ctx context.Context, id uuid.UUID) error {
	if err := s.source.DeleteRule(ctx, id); err != nil {
		return err
	}
	s.refreshAfterWrite(ctx)
	return nil
}

func (s *CachedStore) AddTopicValidation(ctx context.Context, v model.TopicValidationConfig) error {
	if err := s.source.AddTopicValidation(ctx, v); err != nil {
		return err
	}
	s.refreshAfterWrite(ctx)
	return nil
}

func (s *CachedStore) GetAllTopicValidations(_ context.Context) (map[model.Topic][]model.TopicValidationConfig, error) {
	validations := s.snap.Load().validations
	all := make(map[model.Topic][]model.TopicValidationConfig, len(validations))
	for topic, configs := range validations {
		all[topic] = append([]model.TopicValidationConfig(nil), configs...)
	}
	return all, nil
}

func (s *CachedStore) GetValidationsForTopic(_ context.Context, topic model.Topic) ([]model.DataSchema, error) {
	return schemasOf(s.snap.Load().validations[topic]), nil
}

func (s *CachedStore) DeleteTopicValidation(ctx context.Context, id uuid.UUID) error {
	if err := s.source.DeleteTopicValidation(ctx, id); err != nil {
		return err
	}
	s.refreshAfterWrite(ctx)
	return nil
}

// StoreEvent delegates to the source when it records events; sampling is
// write-only and bypasses the snapshot entirely.
func (s *CachedStore) StoreEvent(ctx context.Context, rec StoredEvent) error {
	if s.recorder == nil {
		return fmt.Errorf("underlying store does not record events")
	}
	return s.recorder.StoreEvent(ctx, rec)
}
