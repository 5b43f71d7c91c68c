package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-event-gateway/pkg/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresConfig holds the connection settings for the durable store.
type PostgresConfig struct {
	Username string
	Password string
	// Endpoint is host or host:port.
	Endpoint string
	DBName   string
}

// DSN renders the config as a postgres connection URL.
func (c *PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   c.Endpoint,
		Path:   "/" + c.DBName,
	}
	return u.String()
}

const pgUniqueViolation = "23505"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS routing_rules (
	id UUID PRIMARY KEY,
	order_num INTEGER NOT NULL,
	topic TEXT NOT NULL,
	description TEXT,
	event_type_condition JSONB NOT NULL,
	event_version_condition JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS topic_validations (
	id UUID PRIMARY KEY,
	topic TEXT NOT NULL,
	schema JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS stored_events (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	event_version TEXT,
	routing_id UUID,
	destination_topic TEXT,
	failure_reason TEXT,
	stored_at TIMESTAMPTZ NOT NULL,
	event_data JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS stored_events_event_type_idx ON stored_events (event_type, stored_at);
`

// PostgresStore is the durable Store variant. Rules and validations live in
// two tables with conditions and schemas stored as JSON documents; writes are
// single statements over a shared connection pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore connects a pool, ensures the schema exists, and returns
// the store. The pool is owned by the store and released by Close.
func NewPostgresStore(ctx context.Context, cfg *PostgresConfig, logger zerolog.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure postgres schema: %w", err)
	}
	logger.Info().Str("endpoint", cfg.Endpoint).Str("dbname", cfg.DBName).Msg("Connected to Postgres store.")
	return &PostgresStore{
		pool:   pool,
		logger: logger.With().Str("component", "PostgresStore").Logger(),
	}, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (s *PostgresStore) AddRule(ctx context.Context, rule model.TopicRoutingRule) error {
	typeCond, err := json.Marshal(rule.EventTypeCondition)
	if err != nil {
		return fmt.Errorf("failed to serialize event type condition: %w", err)
	}
	versionCond, err := marshalOptionalCondition(rule.EventVersionCondition)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO routing_rules (id, order_num, topic, description, event_type_condition, event_version_condition)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rule.ID, rule.Order, string(rule.Topic), rule.Description, typeCond, versionCond,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert routing rule: %w", err)
	}
	return nil
}

func marshalOptionalCondition(cond *model.Condition) ([]byte, error) {
	if cond == nil {
		return nil, nil
	}
	data, err := json.Marshal(cond)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event version condition: %w", err)
	}
	return data, nil
}

func scanRule(row pgx.Row) (model.TopicRoutingRule, error) {
	var (
		rule        model.TopicRoutingRule
		topic       string
		typeCond    []byte
		versionCond []byte
	)
	if err := row.Scan(&rule.ID, &rule.Order, &topic, &rule.Description, &typeCond, &versionCond); err != nil {
		return model.TopicRoutingRule{}, err
	}
	rule.Topic = model.Topic(topic)
	if err := json.Unmarshal(typeCond, &rule.EventTypeCondition); err != nil {
		return model.TopicRoutingRule{}, fmt.Errorf("failed to parse event type condition: %w", err)
	}
	if len(versionCond) > 0 {
		var cond model.Condition
		if err := json.Unmarshal(versionCond, &cond); err != nil {
			return model.TopicRoutingRule{}, fmt.Errorf("failed to parse event version condition: %w", err)
		}
		rule.EventVersionCondition = &cond
	}
	return rule, nil
}

const selectRuleColumns = `SELECT id, order_num, topic, description, event_type_condition, event_version_condition FROM routing_rules`

func (s *PostgresStore) GetRule(ctx context.Context, id uuid.UUID) (model.TopicRoutingRule, error) {
	row := s.pool.QueryRow(ctx, selectRuleColumns+` WHERE id = $1`, id)
	rule, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.TopicRoutingRule{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.TopicRoutingRule{}, fmt.Errorf("failed to query routing rule: %w", err)
	}
	return rule, nil
}

func (s *PostgresStore) GetAllRules(ctx context.Context) ([]model.TopicRoutingRule, error) {
	rows, err := s.pool.Query(ctx, selectRuleColumns+` ORDER BY order_num, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query routing rules: %w", err)
	}
	defer rows.Close()

	rules := make([]model.TopicRoutingRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan routing rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read routing rules: %w", err)
	}
	return rules, nil
}

func (s *PostgresStore) UpdateRule(ctx context.Context, id uuid.UUID, rule model.TopicRoutingRule) error {
	typeCond, err := json.Marshal(rule.EventTypeCondition)
	if err != nil {
		return fmt.Errorf("failed to serialize event type condition: %w", err)
	}
	versionCond, err := marshalOptionalCondition(rule.EventVersionCondition)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE routing_rules
		 SET order_num = $2, topic = $3, description = $4, event_type_condition = $5,
		     event_version_condition = $6, updated_at = NOW()
		 WHERE id = $1`,
		id, rule.Order, string(rule.Topic), rule.Description, typeCond, versionCond,
	)
	if err != nil {
		return fmt.Errorf("failed to update routing rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteRule(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM routing_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete routing rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) AddTopicValidation(ctx context.Context, v model.TopicValidationConfig) error {
	schema, err := json.Marshal(v.Schema)
	if err != nil {
		return fmt.Errorf("failed to serialize data schema: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO topic_validations (id, topic, schema) VALUES ($1, $2, $3)`,
		v.ID, string(v.Topic), schema,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("topic validation %s: %w", v.ID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert topic validation: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAllTopicValidations(ctx context.Context) (map[model.Topic][]model.TopicValidationConfig, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, topic, schema FROM topic_validations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query topic validations: %w", err)
	}
	defer rows.Close()

	all := make(map[model.Topic][]model.TopicValidationConfig)
	for rows.Next() {
		var (
			config model.TopicValidationConfig
			topic  string
			schema []byte
		)
		if err := rows.Scan(&config.ID, &topic, &schema); err != nil {
			return nil, fmt.Errorf("failed to scan topic validation: %w", err)
		}
		config.Topic = model.Topic(topic)
		if err := json.Unmarshal(schema, &config.Schema); err != nil {
			return nil, fmt.Errorf("failed to parse data schema: %w", err)
		}
		all[config.Topic] = append(all[config.Topic], config)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read topic validations: %w", err)
	}
	return all, nil
}

func (s *PostgresStore) GetValidationsForTopic(ctx context.Context, topic model.Topic) ([]model.DataSchema, error) {
	rows, err := s.pool.Query(ctx, `SELECT schema FROM topic_validations WHERE topic = $1`, string(topic))
	if err != nil {
		return nil, fmt.Errorf("failed to query topic validations: %w", err)
	}
	defer rows.Close()

	schemas := make([]model.DataSchema, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan data schema: %w", err)
		}
		var schema model.DataSchema
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("failed to parse data schema: %w", err)
		}
		schemas = append(schemas, schema)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read topic validations: %w", err)
	}
	return schemas, nil
}

func (s *PostgresStore) DeleteTopicValidation(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM topic_validations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete topic validation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("topic validation %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) StoreEvent(ctx context.Context, rec StoredEvent) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stored_events (id, event_id, event_type, event_version, routing_id, destination_topic, failure_reason, stored_at, event_data)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.EventID, rec.EventType, rec.EventVersion, rec.RoutingID,
		rec.DestinationTopic, rec.FailureReason, rec.StoredAt, []byte(rec.EventData),
	)
	if err != nil {
		return fmt.Errorf("failed to insert stored event: %w", err)
	}
	return nil
}

const selectStoredEventColumns = `SELECT id, event_id, event_type, event_version, routing_id, destination_topic, failure_reason, stored_at, event_data FROM stored_events`

func scanStoredEvent(row pgx.Row) (StoredEvent, error) {
	var (
		rec  StoredEvent
		data []byte
	)
	err := row.Scan(&rec.ID, &rec.EventID, &rec.EventType, &rec.EventVersion, &rec.RoutingID,
		&rec.DestinationTopic, &rec.FailureReason, &rec.StoredAt, &data)
	if err != nil {
		return StoredEvent{}, err
	}
	rec.EventData = json.RawMessage(data)
	return rec, nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id uuid.UUID) (StoredEvent, error) {
	row := s.pool.QueryRow(ctx, selectStoredEventColumns+` WHERE id = $1`, id)
	rec, err := scanStoredEvent(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return StoredEvent{}, fmt.Errorf("stored event %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return StoredEvent{}, fmt.Errorf("failed to query stored event: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) GetEventsByType(ctx context.Context, eventType string, limit, offset int64) ([]StoredEvent, error) {
	rows, err := s.pool.Query(ctx,
		selectStoredEventColumns+` WHERE event_type = $1 ORDER BY stored_at DESC LIMIT $2 OFFSET $3`,
		eventType, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stored events: %w", err)
	}
	defer rows.Close()

	events := make([]StoredEvent, 0)
	for rows.Next() {
		rec, err := scanStoredEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stored event: %w", err)
		}
		events = append(events, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stored events: %w", err)
	}
	return events, nil
}
