package core

import (
	"context"

	"popcatalog/pkg/dense"
	"popcatalog/pkg/domain"
)

// ProjectionResults carries the dense result arrays of one projection run.
// Nil arrays are skipped on save.
type ProjectionResults struct {
	Population        *dense.Array
	Deaths            *dense.Array
	Births            *dense.Array
	Mothers           *dense.Array
	Children          *dense.Array
	Heirs             *dense.Array
	Immigrants        *dense.Array
	Emigrants         *dense.Array
	ResidenceDuration *dense.Array
}

// Array returns the result array bound to table.
func (r ProjectionResults) Array(table domain.ResultTable) *dense.Array {
	switch table {
	case domain.TablePopulation:
		return r.Population
	case domain.TableDeaths:
		return r.Deaths
	case domain.TableBirths:
		return r.Births
	case domain.TableMothers:
		return r.Mothers
	case domain.TableChildren:
		return r.Children
	case domain.TableHeirs:
		return r.Heirs
	case domain.TableImmigrants:
		return r.Immigrants
	case domain.TableEmigrants:
		return r.Emigrants
	case domain.TableResidenceDuration:
		return r.ResidenceDuration
	default:
		return nil
	}
}

// ProjectionLayout returns the layout of a projection result table.
func ProjectionLayout(p *domain.Projection, table domain.ResultTable) Layout {
	l := Layout{Table: table, CatalogID: p.Entry().ID(), StartYear: p.Years().Start()}
	if table == domain.TableHeirs {
		l.ExtraOffset = int32(p.BequestMinAge())
	}
	return l
}

// ForecastLayout returns the layout of a forecast's result table.
func ForecastLayout(f domain.Forecast) (Layout, error) {
	table, ok := domain.ForecastTable(f.Kind())
	if !ok {
		return Layout{}, &domain.UnsupportedError{Entity: string(f.Kind().Class()), Field: "results", Value: f.Kind()}
	}
	return Layout{Table: table, CatalogID: f.Entry().ID(), StartYear: f.Years().Start()}, nil
}

// storeRows flattens arr into table, deleting earlier rows first on replace.
func (c *Catalog) storeRows(ctx context.Context, arr *dense.Array, layout Layout, replace bool) error {
	rows, err := Flatten(ctx, arr, layout, c.workers)
	if err != nil {
		return err
	}
	entity := string(layout.Table)
	if replace {
		if _, err := c.backend.DeleteRows(ctx, layout.Table, layout.CatalogID); err != nil {
			return storeErr("delete rows", entity, layout.CatalogID, err)
		}
	}
	n, err := c.backend.InsertRows(ctx, layout.Table, rows)
	if err != nil {
		return storeErr("insert rows", entity, layout.CatalogID, err)
	}
	c.logger.Debug("result rows stored", "table", layout.Table, "id", layout.CatalogID, "rows", n, "cells", arr.Len())
	return nil
}

// SaveForecastResults saves f (a no-op when already saved) and bulk-loads
// its flattened result array.
func (c *Catalog) SaveForecastResults(ctx context.Context, f domain.Forecast, arr *dense.Array, replace bool) error {
	if f == nil {
		return &domain.ValidationError{Entity: "forecast", Field: "forecast", Reason: "is nil"}
	}
	entry := f.Entry()
	return c.run(ctx, "save_forecast_results", string(entry.Class()), entry.ID(), func(ctx context.Context) error {
		if _, err := ForecastLayout(f); err != nil {
			return err
		}
		if err := c.saveForecast(ctx, f, replace); err != nil {
			return err
		}
		layout, _ := ForecastLayout(f)
		return c.storeRows(ctx, arr, layout, replace)
	})
}

// SaveProjectionResults saves p (a no-op when already saved) and bulk-loads
// every non-nil result array, table by table.
func (c *Catalog) SaveProjectionResults(ctx context.Context, p *domain.Projection, results ProjectionResults, replace bool) error {
	if p == nil {
		return &domain.ValidationError{Entity: "projection", Field: "projection", Reason: "is nil"}
	}
	entry := p.Entry()
	return c.run(ctx, "save_projection_results", string(entry.Class()), entry.ID(), func(ctx context.Context) error {
		if err := c.saveProjection(ctx, p, replace); err != nil {
			return err
		}
		for _, table := range domain.ProjectionTables {
			arr := results.Array(table)
			if arr == nil {
				continue
			}
			if err := c.storeRows(ctx, arr, ProjectionLayout(p, table), replace); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadForecastResults reads the stored results of a saved forecast into an
// array of shape.
func (c *Catalog) LoadForecastResults(ctx context.Context, f domain.Forecast, shape ...int) (*dense.Array, error) {
	if f == nil {
		return nil, &domain.ValidationError{Entity: "forecast", Field: "forecast", Reason: "is nil"}
	}
	var out *dense.Array
	entry := f.Entry()
	err := c.run(ctx, "load_forecast_results", string(entry.Class()), entry.ID(), func(ctx context.Context) error {
		layout, err := ForecastLayout(f)
		if err != nil {
			return err
		}
		out, err = c.loadRows(ctx, entry, layout, shape)
		return err
	})
	return out, err
}

// LoadProjectionResults reads one stored result table of a saved projection
// into an array of shape.
func (c *Catalog) LoadProjectionResults(ctx context.Context, p *domain.Projection, table domain.ResultTable, shape ...int) (*dense.Array, error) {
	if p == nil {
		return nil, &domain.ValidationError{Entity: "projection", Field: "projection", Reason: "is nil"}
	}
	var out *dense.Array
	entry := p.Entry()
	err := c.run(ctx, "load_projection_results", string(entry.Class()), entry.ID(), func(ctx context.Context) error {
		if table.Owner() != domain.FamilyProjection {
			return &domain.UnsupportedError{Entity: "projection", Field: "results", Value: string(table)}
		}
		var err error
		out, err = c.loadRows(ctx, entry, ProjectionLayout(p, table), shape)
		return err
	})
	return out, err
}

func (c *Catalog) loadRows(ctx context.Context, entry *domain.CatalogEntry, layout Layout, shape []int) (*dense.Array, error) {
	if !entry.Persisted() {
		return nil, &domain.DependencyError{Entity: string(layout.Table) + " results", Dependency: describe(entry)}
	}
	rows, err := c.backend.QueryRows(ctx, layout.Table, layout.CatalogID)
	if err != nil {
		return nil, storeErr("query rows", string(layout.Table), layout.CatalogID, err)
	}
	return Inflate(rows, layout, shape...)
}
