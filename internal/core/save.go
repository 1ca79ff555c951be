package core

import (
	"context"
	"fmt"

	"popcatalog/pkg/domain"
)

// catalogRow assembles the stored form of an entity from its entry, years
// and encoded parameters.
func (c *Catalog) catalogRow(entry *domain.CatalogEntry, years domain.YearRange, estimationID int32, doc any) (domain.CatalogRow, error) {
	params, err := c.encode(string(entry.Class()), doc)
	if err != nil {
		return domain.CatalogRow{}, err
	}
	return domain.CatalogRow{
		EntryRecord:  entry.Record(),
		FirstYear:    years.Start(),
		LastYear:     years.End(),
		EstimationID: estimationID,
		Codec:        c.codec.Name(),
		Parameters:   params,
	}, nil
}

// upsert writes row and returns the identity the backend assigned.
func (c *Catalog) upsert(ctx context.Context, entry *domain.CatalogEntry, row domain.CatalogRow, replace bool) (domain.Identity, error) {
	action := entry.Action()
	if action == domain.SaveNone {
		// Entry metadata is unchanged but the entity itself is dirty.
		action = domain.SaveUpdate
	}
	ident, err := c.backend.Upsert(ctx, domain.UpsertRequest{Action: action, Replace: replace, Row: row})
	if err != nil {
		return domain.Identity{}, storeErr("upsert", string(entry.Class()), entry.ID(), err)
	}
	return ident, nil
}

func describe(entry *domain.CatalogEntry) string {
	return fmt.Sprintf("%s %q", entry.Class(), entry.Title())
}

// requireEstimation fails when est is set but not durably saved.
func requireEstimation(owner *domain.CatalogEntry, est *domain.Estimation) error {
	if est == nil {
		return nil
	}
	if !est.Saved() || !est.Entry().Persisted() {
		return &domain.DependencyError{Entity: describe(owner), Dependency: describe(est.Entry())}
	}
	return nil
}

// SaveEstimation validates and persists e. Saving an already saved
// estimation is a no-op.
func (c *Catalog) SaveEstimation(ctx context.Context, e *domain.Estimation, replace bool) error {
	if e == nil {
		return &domain.ValidationError{Entity: "estimation", Field: "estimation", Reason: "is nil"}
	}
	entry := e.Entry()
	return c.run(ctx, "save_estimation", string(entry.Class()), entry.ID(), func(ctx context.Context) error {
		if err := e.Validate(); err != nil {
			return err
		}
		if e.Saved() {
			return nil
		}
		row, err := c.catalogRow(entry, e.Years(), domain.UnsavedID, e.Document())
		if err != nil {
			return err
		}
		ident, err := c.upsert(ctx, entry, row, replace)
		if err != nil {
			return err
		}
		e.MarkSaved(ident)
		c.listings.Invalidate()
		return nil
	})
}

// SaveForecast validates and persists f. A Reference forecast whose
// estimation is unsaved fails with a dependency error. Saving an already
// saved forecast is a no-op.
func (c *Catalog) SaveForecast(ctx context.Context, f domain.Forecast, replace bool) error {
	if f == nil {
		return &domain.ValidationError{Entity: "forecast", Field: "forecast", Reason: "is nil"}
	}
	entry := f.Entry()
	return c.run(ctx, "save_forecast", string(entry.Class()), entry.ID(), func(ctx context.Context) error {
		return c.saveForecast(ctx, f, replace)
	})
}

func (c *Catalog) saveForecast(ctx context.Context, f domain.Forecast, replace bool) error {
	entry := f.Entry()
	if err := f.Validate(); err != nil {
		return err
	}
	est := f.Estimation()
	if err := requireEstimation(entry, est); err != nil {
		return err
	}
	if f.Saved() {
		return nil
	}
	estimationID := domain.UnsavedID
	if est != nil {
		estimationID = est.Entry().ID()
	}
	row, err := c.catalogRow(entry, f.Years(), estimationID, f.Document())
	if err != nil {
		return err
	}
	ident, err := c.upsert(ctx, entry, row, replace)
	if err != nil {
		return err
	}
	f.MarkSaved(ident)
	c.listings.Invalidate()
	return nil
}

// SaveProjection validates p, requires every forecast (and its estimation)
// to be saved already, persists the projection row and links its six
// forecasts. Nothing is written when a dependency is unsaved.
func (c *Catalog) SaveProjection(ctx context.Context, p *domain.Projection, replace bool) error {
	if p == nil {
		return &domain.ValidationError{Entity: "projection", Field: "projection", Reason: "is nil"}
	}
	entry := p.Entry()
	return c.run(ctx, "save_projection", string(entry.Class()), entry.ID(), func(ctx context.Context) error {
		return c.saveProjection(ctx, p, replace)
	})
}

func (c *Catalog) saveProjection(ctx context.Context, p *domain.Projection, replace bool) error {
	entry := p.Entry()
	if err := p.Validate(); err != nil {
		return err
	}
	forecasts := p.Forecasts()
	for _, f := range forecasts {
		if !f.Saved() || !f.Entry().Persisted() {
			return &domain.DependencyError{Entity: describe(entry), Dependency: describe(f.Entry())}
		}
		if err := requireEstimation(entry, f.Estimation()); err != nil {
			return err
		}
	}
	if p.Saved() {
		return nil
	}
	row, err := c.catalogRow(entry, p.Years(), domain.UnsavedID, p.Document())
	if err != nil {
		return err
	}
	ident, err := c.upsert(ctx, entry, row, replace)
	if err != nil {
		return err
	}
	// The projection row is authoritative for its links, so relinking
	// replaces whatever forecast a kind pointed at before.
	for _, f := range forecasts {
		link := domain.Containment{ProjectionID: ident.ID, ForecastID: f.Entry().ID(), Kind: f.Kind()}
		if err := c.backend.DefineContainment(ctx, link, true); err != nil {
			return storeErr("define containment", string(entry.Class()), ident.ID, err)
		}
	}
	p.MarkSaved(ident)
	c.listings.Invalidate()
	return nil
}
