// Package config loads the process-wide configuration: which storage and
// publisher variants to run, where to listen, and the API options.
package config

import (
	"fmt"
	"strings"

	"github.com/illmade-knight/go-event-gateway/pkg/archive"
	"github.com/illmade-knight/go-event-gateway/pkg/publisher"
	"github.com/illmade-knight/go-event-gateway/pkg/store"
	"github.com/spf13/viper"
)

// Storage variant discriminators.
const (
	StorageInMemory = "inMemory"
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

// Publisher variant discriminators.
const (
	PublisherNoOp   = "noOp"
	PublisherKafka  = "kafka"
	PublisherPubSub = "pubsub"
	PublisherMQTT   = "mqtt"
)

// AppConfig is the root configuration document.
type AppConfig struct {
	DebugMode bool           `mapstructure:"debug_mode"`
	Server    ServerConfig   `mapstructure:"server"`
	Database  DatabaseConfig `mapstructure:"database"`
	Gateway   GatewayConfig  `mapstructure:"gateway"`
	API       APIConfig      `mapstructure:"api"`
}

// ServerConfig holds the HTTP bind address.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig selects and parameterizes the storage variant. The flat
// layout mirrors the config file: only the fields for the selected type are
// read.
type DatabaseConfig struct {
	Type string `mapstructure:"type"`

	// file
	Path string `mapstructure:"path"`

	// inMemory
	InitialDataJSON string `mapstructure:"initial_data_json"`

	// postgres
	Username                 string `mapstructure:"username"`
	Password                 string `mapstructure:"password"`
	Endpoint                 string `mapstructure:"endpoint"`
	DBName                   string `mapstructure:"dbname"`
	CacheRefreshIntervalSecs int    `mapstructure:"cache_refresh_interval_secs"`

	// RedisCache, when present, layers a shared validation cache over the
	// selected store.
	RedisCache *store.RedisCacheConfig `mapstructure:"redis_cache"`
}

// PostgresConfig projects the postgres fields into the store's config type.
func (d *DatabaseConfig) PostgresConfig() *store.PostgresConfig {
	return &store.PostgresConfig{
		Username: d.Username,
		Password: d.Password,
		Endpoint: d.Endpoint,
		DBName:   d.DBName,
	}
}

// PublisherSelection selects and parameterizes the publisher variant.
type PublisherSelection struct {
	Type   string                 `mapstructure:"type"`
	Kafka  publisher.KafkaConfig  `mapstructure:"kafka"`
	PubSub publisher.PubSubConfig `mapstructure:"pubsub"`
	MQTT   publisher.MQTTConfig   `mapstructure:"mqtt"`
}

// GatewayConfig tunes the pipeline and its observability.
type GatewayConfig struct {
	MetricsEnabled    bool                    `mapstructure:"metrics_enabled"`
	SamplingEnabled   bool                    `mapstructure:"sampling_enabled"`
	SamplingThreshold float64                 `mapstructure:"sampling_threshold"`
	Publisher         PublisherSelection      `mapstructure:"publisher"`
	Archive           *archive.BigQueryConfig `mapstructure:"archive"`
}

// JWTAuthConfig carries the token-validation settings consumed by the
// deployment's auth middleware.
type JWTAuthConfig struct {
	JWKSURL             string `mapstructure:"jwks_url"`
	RefreshIntervalSecs int    `mapstructure:"refresh_interval_secs"`
}

// APIConfig holds the API surface options.
type APIConfig struct {
	Prefix  string         `mapstructure:"prefix"`
	JWTAuth *JWTAuthConfig `mapstructure:"jwt_auth"`
}

// Load reads the config file at path, applies EVENT_GATEWAY_* environment
// overrides, and validates the variant selectors.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("EVENT_GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.type", StorageInMemory)
	v.SetDefault("database.dbname", "event_gateway")
	v.SetDefault("database.cache_refresh_interval_secs", 300)
	v.SetDefault("gateway.publisher.type", PublisherNoOp)
	v.SetDefault("gateway.sampling_threshold", 100.0)
	v.SetDefault("api.prefix", "/api/v1")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.Database.Type {
	case StorageInMemory:
	case StorageFile:
		if c.Database.Path == "" {
			return fmt.Errorf("database type %q requires a path", StorageFile)
		}
	case StoragePostgres:
		if c.Database.Endpoint == "" {
			return fmt.Errorf("database type %q requires an endpoint", StoragePostgres)
		}
	default:
		return fmt.Errorf("unknown database type %q", c.Database.Type)
	}

	switch c.Gateway.Publisher.Type {
	case PublisherNoOp, PublisherKafka, PublisherPubSub, PublisherMQTT:
	default:
		return fmt.Errorf("unknown publisher type %q", c.Gateway.Publisher.Type)
	}
	return nil
}
