// Package archive streams sampled event records into an analytical sink so
// routing outcomes can be inspected after the fact.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/go-event-gateway/pkg/store"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// BigQueryConfig holds the destination dataset and table for the archive.
type BigQueryConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	DatasetID       string `mapstructure:"dataset_id"`
	TableID         string `mapstructure:"table_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// NewBigQueryClient creates a BigQuery client, using the configured service
// account file when present and Application Default Credentials otherwise.
func NewBigQueryClient(ctx context.Context, cfg *BigQueryConfig, logger zerolog.Logger) (*bigquery.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file for BigQuery client.")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC) for BigQuery client.")
	}
	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	return client, nil
}

// eventRow is the flattened BigQuery shape of a stored event. Optional
// fields become NULLABLE columns; the full event document travels as a JSON
// string.
type eventRow struct {
	ID               string              `bigquery:"id"`
	EventID          string              `bigquery:"event_id"`
	EventType        string              `bigquery:"event_type"`
	EventVersion     bigquery.NullString `bigquery:"event_version"`
	RoutingID        bigquery.NullString `bigquery:"routing_id"`
	DestinationTopic bigquery.NullString `bigquery:"destination_topic"`
	FailureReason    bigquery.NullString `bigquery:"failure_reason"`
	StoredAtUnix     int64               `bigquery:"stored_at_unix"`
	EventData        string              `bigquery:"event_data"`
}

func toRow(rec store.StoredEvent) *eventRow {
	row := &eventRow{
		ID:           rec.ID.String(),
		EventID:      rec.EventID.String(),
		EventType:    rec.EventType,
		StoredAtUnix: rec.StoredAt.Unix(),
		EventData:    string(rec.EventData),
	}
	if rec.EventVersion != nil {
		row.EventVersion = bigquery.NullString{StringVal: *rec.EventVersion, Valid: true}
	}
	if rec.RoutingID != nil {
		row.RoutingID = bigquery.NullString{StringVal: rec.RoutingID.String(), Valid: true}
	}
	if rec.DestinationTopic != nil {
		row.DestinationTopic = bigquery.NullString{StringVal: *rec.DestinationTopic, Valid: true}
	}
	if rec.FailureReason != nil {
		row.FailureReason = bigquery.NullString{StringVal: *rec.FailureReason, Valid: true}
	}
	return row
}

// BigQueryArchiver implements store.EventRecorder by streaming rows into a
// BigQuery table. The table is created with an inferred schema when missing.
type BigQueryArchiver struct {
	client   *bigquery.Client
	inserter *bigquery.Inserter
	logger   zerolog.Logger
}

// NewBigQueryArchiver verifies (or creates) the destination table and
// returns the archiver. The client's lifecycle is owned by the caller.
func NewBigQueryArchiver(ctx context.Context, client *bigquery.Client, cfg *BigQueryConfig, logger zerolog.Logger) (*BigQueryArchiver, error) {
	if client == nil {
		return nil, errors.New("bigquery client cannot be nil")
	}
	logger = logger.With().
		Str("component", "BigQueryArchiver").
		Str("dataset_id", cfg.DatasetID).
		Str("table_id", cfg.TableID).
		Logger()

	tableRef := client.Dataset(cfg.DatasetID).Table(cfg.TableID)
	if _, err := tableRef.Metadata(ctx); err != nil {
		if !strings.Contains(err.Error(), "notFound") {
			return nil, fmt.Errorf("failed to get BigQuery table metadata: %w", err)
		}
		logger.Warn().Msg("Archive table not found. Creating with inferred schema.")
		inferred, inferErr := bigquery.InferSchema(eventRow{})
		if inferErr != nil {
			return nil, fmt.Errorf("failed to infer archive schema: %w", inferErr)
		}
		if createErr := tableRef.Create(ctx, &bigquery.TableMetadata{Schema: inferred}); createErr != nil {
			return nil, fmt.Errorf("failed to create archive table %s.%s: %w", cfg.DatasetID, cfg.TableID, createErr)
		}
		logger.Info().Msg("Archive table created.")
	}

	return &BigQueryArchiver{
		client:   client,
		inserter: tableRef.Inserter(),
		logger:   logger,
	}, nil
}

// StoreEvent streams one record into the archive table.
func (a *BigQueryArchiver) StoreEvent(ctx context.Context, rec store.StoredEvent) error {
	if err := a.inserter.Put(ctx, toRow(rec)); err != nil {
		a.logger.Error().Err(err).Str("event_id", rec.EventID.String()).Msg("Failed to insert archive row.")
		return fmt.Errorf("bigquery Inserter.Put failed: %w", err)
	}
	return nil
}
