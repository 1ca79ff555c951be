package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"popcatalog/internal/blob"
	"popcatalog/internal/codec"
	"popcatalog/pkg/domain"
)

const (
	archivePrefix = "projections/"
	archiveFormat = 1
)

// ArchivedEntry is the descriptive part of a catalog entry in an archive.
type ArchivedEntry struct {
	ID        int32        `json:"id"`
	Class     domain.Class `json:"class"`
	Title     string       `json:"title"`
	Caption   string       `json:"caption"`
	TextEn    string       `json:"textEn"`
	TextLocal string       `json:"textLocal"`
}

// ArchivedEstimation is one estimation of an archived projection graph.
type ArchivedEstimation struct {
	Entry      ArchivedEntry             `json:"entry"`
	Parameters domain.EstimationDocument `json:"parameters"`
}

// ArchivedForecast is one forecast of an archived projection graph.
// Estimation indexes ProjectionArchive.Estimations, or is -1.
type ArchivedForecast struct {
	Entry      ArchivedEntry           `json:"entry"`
	Parameters domain.ForecastDocument `json:"parameters"`
	Estimation int                     `json:"estimation"`
}

// ArchivedProjection is the projection root of an archive.
type ArchivedProjection struct {
	Entry      ArchivedEntry             `json:"entry"`
	Parameters domain.ProjectionDocument `json:"parameters"`
}

// ProjectionArchive is the self-contained parameter document written by
// ExportProjection.
type ProjectionArchive struct {
	Format        int                  `json:"format"`
	ExportedAt    time.Time            `json:"exportedAt"`
	LocalLanguage string               `json:"localLanguage"`
	Projection    ArchivedProjection   `json:"projection"`
	Forecasts     []ArchivedForecast   `json:"forecasts"`
	Estimations   []ArchivedEstimation `json:"estimations"`
}

func archivedEntry(e *domain.CatalogEntry) ArchivedEntry {
	return ArchivedEntry{
		ID:        e.ID(),
		Class:     e.Class(),
		Title:     e.Title(),
		Caption:   e.Caption(),
		TextEn:    e.TextEn(),
		TextLocal: e.TextLocal(),
	}
}

func (a ArchivedEntry) record() domain.EntryRecord {
	return domain.EntryRecord{
		ID:        a.ID,
		Class:     a.Class,
		Title:     a.Title,
		Caption:   a.Caption,
		TextEn:    a.TextEn,
		TextLocal: a.TextLocal,
	}
}

func (c *Catalog) requireArchive() error {
	if c.archive == nil {
		return &domain.UnsupportedError{Entity: "catalog", Field: "archive", Value: "none"}
	}
	return nil
}

// ExportProjection writes p, its forecasts and their estimations to the
// archive under a fresh key.
func (c *Catalog) ExportProjection(ctx context.Context, p *domain.Projection) (blob.Info, error) {
	if p == nil {
		return blob.Info{}, &domain.ValidationError{Entity: "projection", Field: "projection", Reason: "is nil"}
	}
	var info blob.Info
	entry := p.Entry()
	err := c.run(ctx, "export_projection", string(entry.Class()), entry.ID(), func(ctx context.Context) error {
		if err := c.requireArchive(); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		doc := ProjectionArchive{
			Format:        archiveFormat,
			ExportedAt:    time.Now().UTC().Truncate(time.Second),
			LocalLanguage: c.local.String(),
			Projection:    ArchivedProjection{Entry: archivedEntry(entry), Parameters: p.Document()},
			Forecasts:     []ArchivedForecast{},
			Estimations:   []ArchivedEstimation{},
		}
		for _, f := range p.Forecasts() {
			af := ArchivedForecast{Entry: archivedEntry(f.Entry()), Parameters: f.Document(), Estimation: -1}
			if est := f.Estimation(); est != nil {
				af.Estimation = len(doc.Estimations)
				doc.Estimations = append(doc.Estimations, ArchivedEstimation{Entry: archivedEntry(est.Entry()), Parameters: est.Document()})
			}
			doc.Forecasts = append(doc.Forecasts, af)
		}
		body, err := c.encode("projection archive", doc)
		if err != nil {
			return err
		}
		key := archivePrefix + uuid.NewString() + "." + c.codec.Name()
		info, err = c.archive.Put(ctx, key, bytes.NewReader(body), blob.PutOptions{
			ContentType: c.codec.ContentType(),
			Metadata: map[string]string{
				"codec":  c.codec.Name(),
				"format": strconv.Itoa(archiveFormat),
				"title":  entry.Title(),
			},
		})
		if err != nil {
			return storeErr("export", string(entry.Class()), entry.ID(), err)
		}
		return nil
	})
	return info, err
}

// Exports lists the archived projection documents.
func (c *Catalog) Exports(ctx context.Context) ([]blob.Info, error) {
	if err := c.requireArchive(); err != nil {
		return nil, err
	}
	return c.archive.List(ctx, archivePrefix)
}

// ImportProjection reads an archived projection graph back as new, unsaved
// entities: estimations, then forecasts, then the projection must be saved
// in that order.
func (c *Catalog) ImportProjection(ctx context.Context, key string) (*domain.Projection, error) {
	var out *domain.Projection
	err := c.run(ctx, "import_projection", string(domain.ProjectionClass), domain.UnsavedID, func(ctx context.Context) error {
		if err := c.requireArchive(); err != nil {
			return err
		}
		doc, err := c.readArchive(ctx, key)
		if err != nil {
			return err
		}
		out, err = rebuild(doc)
		if err != nil {
			return fmt.Errorf("import %s: %w", key, err)
		}
		return nil
	})
	return out, err
}

func (c *Catalog) readArchive(ctx context.Context, key string) (ProjectionArchive, error) {
	info, rc, err := c.archive.Get(ctx, key)
	if err != nil {
		return ProjectionArchive{}, storeErr("import", key, domain.UnsavedID, err)
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return ProjectionArchive{}, storeErr("import", key, domain.UnsavedID, err)
	}
	name := info.Metadata["codec"]
	if name == "" {
		name = strings.TrimPrefix(path.Ext(key), ".")
	}
	cd, err := codec.ByName(name)
	if err != nil {
		return ProjectionArchive{}, err
	}
	var doc ProjectionArchive
	report, err := cd.Decode(body, &doc)
	if err != nil {
		return ProjectionArchive{}, fmt.Errorf("decode archive %s: %w", key, err)
	}
	if !report.Clean() {
		c.logger.Warn("unknown archive fields skipped", "key", key, "fields", report.UnknownFields)
	}
	if doc.Format != archiveFormat {
		return ProjectionArchive{}, &domain.UnsupportedError{Entity: "projection archive", Field: "format", Value: doc.Format}
	}
	return doc, nil
}

// rebuild restores the archived graph and gives every entity a new identity.
func rebuild(doc ProjectionArchive) (*domain.Projection, error) {
	estimations := make([]*domain.Estimation, len(doc.Estimations))
	for i, ae := range doc.Estimations {
		est, err := domain.RestoreEstimation(ae.Entry.record(), ae.Parameters)
		if err != nil {
			return nil, err
		}
		estimations[i] = est.Duplicate()
	}
	forecasts := make([]domain.Forecast, 0, len(doc.Forecasts))
	for _, af := range doc.Forecasts {
		var est *domain.Estimation
		if af.Estimation >= 0 {
			if af.Estimation >= len(estimations) {
				return nil, &domain.ValidationError{Entity: "projection archive", Field: "estimation", Reason: fmt.Sprintf("index %d out of range", af.Estimation)}
			}
			est = estimations[af.Estimation]
		}
		f, err := domain.RestoreForecast(af.Entry.record(), af.Parameters, est)
		if err != nil {
			return nil, err
		}
		forecasts = append(forecasts, f.Duplicate())
	}
	p, err := domain.RestoreProjection(doc.Projection.Entry.record(), doc.Projection.Parameters, forecasts)
	if err != nil {
		return nil, err
	}
	return p.Duplicate(), nil
}
