package core

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"popcatalog/internal/blob"
	"popcatalog/internal/codec"
	"popcatalog/internal/config"
	"popcatalog/internal/infra/persistence/memory"
	"popcatalog/internal/infra/persistence/postgres"
	"popcatalog/internal/infra/persistence/sqlite"
	"popcatalog/internal/logging"
	"popcatalog/pkg/domain"
)

// StorageDriver identifies a concrete catalog backend implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenBackend selects a catalog backend from configuration. Defaults to
// sqlite when the driver is unset.
func OpenBackend(ctx context.Context, cfg config.Storage, batchSize int) (domain.CatalogBackend, error) {
	driver := StorageDriver(cfg.Driver)
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		store, err := sqlite.NewStore(ctx, cfg.SQLitePath, batchSize)
		if err != nil {
			return nil, err
		}
		return store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN, batchSize)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// Open builds a catalog from cfg: backend, archive store, parameter codec,
// slog logger and expvar plus Prometheus metrics registered with reg. A nil
// reg skips Prometheus.
func Open(ctx context.Context, cfg config.Config, reg prometheus.Registerer) (*Catalog, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cd, err := codec.ByName(cfg.ParameterCodec)
	if err != nil {
		return nil, err
	}
	tag, err := cfg.LocalTag()
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.Log).With(slog.String("component", "catalog"))
	metrics := MultiMetrics{NewExpvarMetricsRecorder("")}
	if reg != nil {
		prom, err := NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, err
		}
		metrics = append(metrics, prom)
	}
	archive, err := blob.Open(ctx, cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	backend, err := OpenBackend(ctx, cfg.Storage, cfg.BulkBatchSize)
	if err != nil {
		return nil, fmt.Errorf("open %s catalog: %w", cfg.Storage.Driver, err)
	}
	logger.Info("catalog opened", "storage", backend.Driver(), "archive", archive.Driver(), "codec", cd.Name())
	return NewCatalog(backend,
		WithLogger(logger),
		WithMetrics(metrics),
		WithCodec(cd),
		WithWorkers(cfg.FlattenWorkers),
		WithArchive(archive),
		WithLocalLanguage(tag),
	), nil
}
