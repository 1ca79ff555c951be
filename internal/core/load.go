package core

import (
	"context"

	"popcatalog/pkg/domain"
)

// LoadEstimation hydrates the estimation stored under id.
func (c *Catalog) LoadEstimation(ctx context.Context, id int32) (*domain.Estimation, error) {
	var out *domain.Estimation
	err := c.run(ctx, "load_estimation", string(domain.FamilyEstimation), id, func(ctx context.Context) error {
		var err error
		out, err = c.loadEstimation(ctx, id)
		return err
	})
	return out, err
}

func (c *Catalog) loadEstimation(ctx context.Context, id int32) (*domain.Estimation, error) {
	row, err := c.backend.Get(ctx, domain.FamilyEstimation, id)
	if err != nil {
		return nil, storeErr("get", string(domain.FamilyEstimation), id, err)
	}
	var doc domain.EstimationDocument
	if err := c.decode(row, &doc); err != nil {
		return nil, err
	}
	return domain.RestoreEstimation(row.EntryRecord, doc)
}

// LoadForecast hydrates the forecast stored under id together with the
// estimation it references.
func (c *Catalog) LoadForecast(ctx context.Context, id int32) (domain.Forecast, error) {
	var out domain.Forecast
	err := c.run(ctx, "load_forecast", string(domain.FamilyForecast), id, func(ctx context.Context) error {
		var err error
		out, err = c.loadForecast(ctx, id)
		return err
	})
	return out, err
}

func (c *Catalog) loadForecast(ctx context.Context, id int32) (domain.Forecast, error) {
	row, err := c.backend.Get(ctx, domain.FamilyForecast, id)
	if err != nil {
		return nil, storeErr("get", string(domain.FamilyForecast), id, err)
	}
	var doc domain.ForecastDocument
	if err := c.decode(row, &doc); err != nil {
		return nil, err
	}
	var est *domain.Estimation
	if row.EstimationID >= 0 {
		if est, err = c.loadEstimation(ctx, row.EstimationID); err != nil {
			return nil, err
		}
	}
	return domain.RestoreForecast(row.EntryRecord, doc, est)
}

// LoadProjection hydrates the projection stored under id, its linked
// forecasts and their estimations.
func (c *Catalog) LoadProjection(ctx context.Context, id int32) (*domain.Projection, error) {
	var out *domain.Projection
	err := c.run(ctx, "load_projection", string(domain.FamilyProjection), id, func(ctx context.Context) error {
		row, err := c.backend.Get(ctx, domain.FamilyProjection, id)
		if err != nil {
			return storeErr("get", string(domain.FamilyProjection), id, err)
		}
		var doc domain.ProjectionDocument
		if err := c.decode(row, &doc); err != nil {
			return err
		}
		ids, err := c.backend.Contained(ctx, id)
		if err != nil {
			return storeErr("contained", string(domain.FamilyProjection), id, err)
		}
		forecasts := make([]domain.Forecast, 0, len(ids))
		for _, fid := range ids {
			f, err := c.loadForecast(ctx, fid)
			if err != nil {
				return err
			}
			forecasts = append(forecasts, f)
		}
		out, err = domain.RestoreProjection(row.EntryRecord, doc, forecasts)
		return err
	})
	return out, err
}
