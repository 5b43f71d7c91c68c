// The gateway command runs the event gateway: an HTTP API that routes
// self-describing events to broker topics, validating payloads against
// registered JSON schemas on the way through.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/illmade-knight/go-event-gateway/pkg/archive"
	"github.com/illmade-knight/go-event-gateway/pkg/config"
	"github.com/illmade-knight/go-event-gateway/pkg/gateway"
	"github.com/illmade-knight/go-event-gateway/pkg/httpapi"
	"github.com/illmade-knight/go-event-gateway/pkg/publisher"
	"github.com/illmade-knight/go-event-gateway/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration.")
	}
	if cfg.DebugMode {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, recorder, cleanupStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage.")
	}
	defer cleanupStore()

	pub, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize publisher.")
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logger.Warn().Err(err).Msg("Error closing publisher.")
		}
	}()

	if cfg.Gateway.Archive != nil {
		bqClient, err := archive.NewBigQueryClient(ctx, cfg.Gateway.Archive, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to create BigQuery client.")
		}
		defer func() { _ = bqClient.Close() }()
		archiver, err := archive.NewBigQueryArchiver(ctx, bqClient, cfg.Gateway.Archive, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize event archive.")
		}
		recorder = archiver
	}

	gatewayCfg := gateway.NewConfigDefaults()
	gatewayCfg.SamplingEnabled = cfg.Gateway.SamplingEnabled
	gatewayCfg.SamplingThreshold = cfg.Gateway.SamplingThreshold
	var gw gateway.Gateway = gateway.NewEventGateway(gatewayCfg, st, pub, recorder, logger)

	var metricsReg *prometheus.Registry
	if cfg.Gateway.MetricsEnabled {
		metricsReg = prometheus.NewRegistry()
		metricsReg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		gw, err = gateway.NewMeteredGateway(gw, metricsReg)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to register gateway metrics.")
		}
	}

	server := httpapi.NewServer(&httpapi.ServerConfig{
		Host:      cfg.Server.Host,
		Port:      cfg.Server.Port,
		APIPrefix: cfg.API.Prefix,
	}, gw, metricsReg, logger)

	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start HTTP server.")
	}

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed.")
	}
}

// buildStore assembles the configured storage variant, including the
// in-process cache for postgres and the optional Redis side-cache.
func buildStore(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (store.Store, store.EventRecorder, func(), error) {
	cleanup := func() {}

	var (
		st       store.Store
		recorder store.EventRecorder
	)
	switch cfg.Database.Type {
	case config.StorageInMemory:
		var inMemory *store.InMemoryStore
		if cfg.Database.InitialDataJSON != "" {
			var err error
			inMemory, err = store.NewInMemoryStoreFromJSON([]byte(cfg.Database.InitialDataJSON))
			if err != nil {
				return nil, nil, cleanup, err
			}
		} else {
			inMemory = store.NewInMemoryStore()
		}
		st, recorder = inMemory, inMemory

	case config.StorageFile:
		st = store.NewFileStore(cfg.Database.Path, logger)

	case config.StoragePostgres:
		postgres, err := store.NewPostgresStore(ctx, cfg.Database.PostgresConfig(), logger)
		if err != nil {
			return nil, nil, cleanup, err
		}
		refreshInterval := time.Duration(cfg.Database.CacheRefreshIntervalSecs) * time.Second
		cached, err := store.NewCachedStore(ctx, postgres, refreshInterval, logger)
		if err != nil {
			postgres.Close()
			return nil, nil, cleanup, err
		}
		cached.Start(ctx)
		cleanup = func() {
			cached.Stop()
			postgres.Close()
		}
		st, recorder = cached, cached
	}

	if cfg.Database.RedisCache != nil {
		redisCached, err := store.NewRedisValidationCache(ctx, cfg.Database.RedisCache, st, logger)
		if err != nil {
			return nil, nil, cleanup, err
		}
		innerCleanup := cleanup
		cleanup = func() {
			if err := redisCached.Close(); err != nil {
				logger.Warn().Err(err).Msg("Error closing Redis cache.")
			}
			innerCleanup()
		}
		st = redisCached
	}

	return st, recorder, cleanup, nil
}

// buildPublisher assembles the configured publisher variant.
func buildPublisher(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (publisher.Publisher, error) {
	switch cfg.Gateway.Publisher.Type {
	case config.PublisherKafka:
		return publisher.NewKafkaPublisher(&cfg.Gateway.Publisher.Kafka, logger)
	case config.PublisherPubSub:
		client, err := publisher.NewPubSubClient(ctx, &cfg.Gateway.Publisher.PubSub, logger)
		if err != nil {
			return nil, err
		}
		return publisher.NewPubSubPublisher(&cfg.Gateway.Publisher.PubSub, client, logger)
	case config.PublisherMQTT:
		return publisher.NewMQTTPublisher(&cfg.Gateway.Publisher.MQTT, logger)
	default:
		return publisher.NewNoOpPublisher(logger), nil
	}
}
