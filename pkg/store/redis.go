package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-event-gateway/pkg/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisCacheConfig holds the settings for the Redis validation side-cache.
type RedisCacheConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// RedisValidationCache decorates a Store with a Redis side-cache for the
// per-topic validation lookup on the hot path. Unlike the in-process
// snapshot, the Redis cache is shared between gateway processes, and a write
// performed through this decorator invalidates the affected key for all of
// them. A miss is refilled from the wrapped store, so when that store is an
// in-process CachedStore the refilled value is only as fresh as that
// process's snapshot.
//
// All other operations delegate to the wrapped store.
type RedisValidationCache struct {
	Store

	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisValidationCache connects to Redis, pings it to verify
// connectivity, and returns the caching decorator around source.
func NewRedisValidationCache(ctx context.Context, cfg *RedisCacheConfig, source Store, logger zerolog.Logger) (*RedisValidationCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info().Str("redis_address", cfg.Addr).Msg("Connected to Redis validation cache.")
	return &RedisValidationCache{
		Store:  source,
		client: client,
		ttl:    cfg.CacheTTL,
		logger: logger.With().Str("component", "RedisValidationCache").Logger(),
	}, nil
}

func validationKey(topic model.Topic) string {
	return "topic-validations:" + string(topic)
}

// GetValidationsForTopic checks Redis first and falls back to the wrapped
// store on a miss, writing the result back in the background.
func (c *RedisValidationCache) GetValidationsForTopic(ctx context.Context, topic model.Topic) ([]model.DataSchema, error) {
	key := validationKey(topic)
	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		var schemas []model.DataSchema
		if unmarshalErr := json.Unmarshal([]byte(cached), &schemas); unmarshalErr == nil {
			c.logger.Debug().Str("key", key).Msg("Redis cache hit.")
			return schemas, nil
		}
		c.logger.Warn().Str("key", key).Msg("Failed to parse cached validations, falling back to store.")
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Error().Err(err).Str("key", key).Msg("Unexpected Redis error, falling back to store.")
	}

	schemas, err := c.Store.GetValidationsForTopic(ctx, topic)
	if err != nil {
		return nil, err
	}

	go func() {
		writeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		payload, marshalErr := json.Marshal(schemas)
		if marshalErr != nil {
			c.logger.Error().Err(marshalErr).Str("key", key).Msg("Failed to marshal validations for caching.")
			return
		}
		if setErr := c.client.Set(writeCtx, key, payload, c.ttl).Err(); setErr != nil {
			c.logger.Error().Err(setErr).Str("key", key).Msg("Failed to write validations to Redis in background.")
		}
	}()

	return schemas, nil
}

// AddTopicValidation writes through and invalidates the affected topic key.
func (c *RedisValidationCache) AddTopicValidation(ctx context.Context, v model.TopicValidationConfig) error {
	if err := c.Store.AddTopicValidation(ctx, v); err != nil {
		return err
	}
	c.invalidate(ctx, v.Topic)
	return nil
}

// DeleteTopicValidation resolves the validation's topic before deleting so
// the right key can be invalidated afterwards.
func (c *RedisValidationCache) DeleteTopicValidation(ctx context.Context, id uuid.UUID) error {
	var topic model.Topic
	if all, err := c.Store.GetAllTopicValidations(ctx); err == nil {
		for t, configs := range all {
			for _, config := range configs {
				if config.ID == id {
					topic = t
				}
			}
		}
	}
	if err := c.Store.DeleteTopicValidation(ctx, id); err != nil {
		return err
	}
	if topic != "" {
		c.invalidate(ctx, topic)
	}
	return nil
}

func (c *RedisValidationCache) invalidate(ctx context.Context, topic model.Topic) {
	if err := c.client.Del(ctx, validationKey(topic)).Err(); err != nil {
		c.logger.Warn().Err(err).Str("topic", string(topic)).Msg("Failed to invalidate Redis cache entry.")
	}
}

// Close closes the Redis client. The wrapped store's lifecycle is managed by
// its owner.
func (c *RedisValidationCache) Close() error {
	c.logger.Info().Msg("Closing Redis client connection...")
	return c.client.Close()
}
