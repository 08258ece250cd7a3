package main

import (
	"bloodsync/internal/blob"
	"bloodsync/internal/config"
	"bloodsync/internal/core"
	"bloodsync/internal/events"
	"bloodsync/internal/infra/persistence/dynamodb"
	"bloodsync/internal/logging"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// app holds the wired service and everything that must be released on exit.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	service  *core.Service
	store    core.PersistentStore
	registry *prometheus.Registry
	closers  []io.Closer
}

func storageConfig(cfg *config.Config) core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(cfg.Storage.Driver),
		SQLitePath:  cfg.SQLite.Path,
		PostgresDSN: cfg.Postgres.DSN,
		DynamoDB:    dynamoConfig(cfg),
	}
}

func dynamoConfig(cfg *config.Config) dynamodb.Config {
	return dynamodb.Config{
		Region:      cfg.DynamoDB.Region,
		Endpoint:    cfg.DynamoDB.Endpoint,
		TablePrefix: cfg.DynamoDB.TablePrefix,
	}
}

func blobConfig(cfg *config.Config) blob.Config {
	return blob.Config{
		Driver: blob.Driver(cfg.Blob.Driver),
		FSRoot: cfg.Blob.FSRoot,
		S3: blob.S3Config{
			Bucket:    cfg.Blob.S3.Bucket,
			Region:    cfg.Blob.S3.Region,
			Prefix:    cfg.Blob.S3.Prefix,
			Endpoint:  cfg.Blob.S3.Endpoint,
			PathStyle: cfg.Blob.S3.PathStyle,
		},
	}
}

func openPublisher(cfg *config.Config) (events.Publisher, io.Closer, error) {
	switch cfg.Events.Driver {
	case "nats":
		p, err := events.NewNATSPublisher(events.NATSConfig{URL: cfg.Events.NATSURL, SubjectPrefix: cfg.Events.SubjectPrefix})
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	case "memory":
		return events.NewMemoryPublisher(), nil, nil
	default:
		return events.NoopPublisher{}, nil, nil
	}
}

// newApp opens the configured backends and builds the service.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ids, err := core.NewIDGenerator(core.IDScheme(cfg.ID.Scheme))
	if err != nil {
		return nil, err
	}
	clock := core.ClockFunc(nil)
	store, err := core.OpenPersistentStore(ctx, storageConfig(cfg), nil, clock)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
	}
	a.store = store
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	ledger, err := blob.Open(ctx, blobConfig(cfg))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Blob.Driver, err)
	}
	publisher, closer, err := openPublisher(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}
	metrics, err := core.NewPrometheusMetricsRecorder(a.registry)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.registry.MustRegister(core.NewInventoryCollector(store))

	a.service = core.NewService(store,
		core.WithClock(clock),
		core.WithLogger(logging.NewAdapter(logger)),
		core.WithAuditRecorder(logging.NewAuditLogger(logger)),
		core.WithMetricsRecorder(metrics),
		core.WithIDGenerator(ids),
		core.WithPublisher(publisher),
		core.WithLedgerStore(ledger),
	)
	return a, nil
}

// Close releases backends in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
