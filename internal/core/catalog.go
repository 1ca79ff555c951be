// Package core implements the catalog service: the save protocol for
// estimations, forecasts and projections, their loads, the listing cache,
// result flattening and bulk loading, and the projection parameter archive.
package core

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/text/language"

	"popcatalog/internal/blob"
	"popcatalog/internal/codec"
	"popcatalog/pkg/domain"
)

// DefaultFlattenWorkers bounds flattening when no worker count is configured.
const DefaultFlattenWorkers = 4

// Catalog persists catalog entities and their results through a
// domain.CatalogBackend. It never cascades saves: dependencies must be saved
// by the caller first.
type Catalog struct {
	backend  domain.CatalogBackend
	archive  blob.Store
	codec    codec.Codec
	logger   Logger
	metrics  MetricsRecorder
	tracer   Tracer
	workers  int
	local    language.Tag
	listings *Listings
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger routes catalog logs to logger.
func WithLogger(logger Logger) Option {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records one observation per operation.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(c *Catalog) {
		if recorder != nil {
			c.metrics = recorder
		}
	}
}

// WithTracer replaces the default OpenTelemetry tracer.
func WithTracer(tracer Tracer) Option {
	return func(c *Catalog) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithCodec selects the codec new parameter documents are written with.
// Stored documents are always read with the codec they were written with.
func WithCodec(cd codec.Codec) Option {
	return func(c *Catalog) {
		if cd != nil {
			c.codec = cd
		}
	}
}

// WithWorkers bounds the goroutines used to flatten one result array.
func WithWorkers(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithArchive enables ExportProjection and ImportProjection.
func WithArchive(store blob.Store) Option {
	return func(c *Catalog) { c.archive = store }
}

// WithLocalLanguage tags the local description text of exported documents.
func WithLocalLanguage(tag language.Tag) Option {
	return func(c *Catalog) { c.local = tag }
}

// NewCatalog returns a catalog over backend.
func NewCatalog(backend domain.CatalogBackend, opts ...Option) *Catalog {
	cd, _ := codec.ByName(codec.JSON)
	c := &Catalog{
		backend: backend,
		codec:   cd,
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  NewOTelTracer(nil),
		workers: DefaultFlattenWorkers,
		local:   language.Danish,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.listings = newListings(c)
	return c
}

// Backend returns the underlying catalog backend.
func (c *Catalog) Backend() domain.CatalogBackend { return c.backend }

// Listings returns the catalog listing cache.
func (c *Catalog) Listings() *Listings { return c.listings }

// Close releases the backend.
func (c *Catalog) Close() error { return c.backend.Close() }

// run wraps one operation with a span, a metrics observation and a log record.
func (c *Catalog) run(ctx context.Context, op string, entity string, id int32, fn func(ctx context.Context) error) error {
	started := time.Now()
	ctx, span := c.tracer.Start(ctx, "catalog."+op)
	span.SetAttribute("catalog.entity", entity)
	span.SetAttribute("catalog.id", id)
	err := fn(ctx)
	span.End(err)
	elapsed := time.Since(started)
	c.metrics.Observe(ctx, op, err == nil, elapsed)
	if err != nil {
		c.logger.Warn("catalog operation failed", "op", op, "entity", entity, "id", id, "duration", elapsed, "error", err)
		return err
	}
	c.logger.Debug("catalog operation", "op", op, "entity", entity, "id", id, "duration", elapsed)
	return nil
}

// storeErr wraps a backend failure with the operation and entity it concerned.
func storeErr(op string, entity string, id int32, err error) error {
	return &domain.StoreError{Op: op, Entity: entity, ID: id, Err: err}
}

func (c *Catalog) encode(entity string, doc any) ([]byte, error) {
	b, err := c.codec.Encode(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s parameters: %w", entity, err)
	}
	return b, nil
}

// decode reads a stored parameter document with the codec it was written
// with, logging fields the document carries that this build does not know.
func (c *Catalog) decode(row domain.CatalogRow, v any) error {
	cd, err := codec.ByName(row.Codec)
	if err != nil {
		return fmt.Errorf("%s %d: %w", row.Class, row.ID, err)
	}
	report, err := cd.Decode(row.Parameters, v)
	if err != nil {
		return fmt.Errorf("decode %s %d parameters: %w", row.Class, row.ID, err)
	}
	if !report.Clean() {
		c.logger.Warn("unknown parameter fields skipped", "entity", row.Class, "id", row.ID, "fields", report.UnknownFields)
	}
	return nil
}
