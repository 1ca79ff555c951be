package core

import (
	"context"
	"testing"

	"popcatalog/pkg/domain"
)

func TestListingsCacheUntilSave(t *testing.T) {
	ctx := context.Background()
	metrics := &captureMetricsRecorder{}
	c := newMemoryCatalog(WithMetrics(metrics))
	listings := c.Listings()

	projections, err := listings.Projections(ctx)
	if err != nil || len(projections) != 0 {
		t.Fatalf("empty catalog listing: %v %v", projections, err)
	}
	if !listings.Loaded() {
		t.Fatalf("listings must be cached after the first read")
	}
	if _, err := listings.Forecasts(ctx); err != nil {
		t.Fatalf("Forecasts: %v", err)
	}
	if metrics.count("list") != 1 {
		t.Fatalf("cached listings must not reload, got %d loads", metrics.count("list"))
	}

	p := newProjectionGraph(t, "Main")
	saveGraph(t, c, p)
	if listings.Loaded() {
		t.Fatalf("saves must invalidate the listings")
	}

	projections, err = listings.Projections(ctx)
	if err != nil {
		t.Fatalf("Projections: %v", err)
	}
	if len(projections) != 1 {
		t.Fatalf("expected one projection, got %+v", projections)
	}
	got := projections[0]
	if got.ID != p.Entry().ID() || got.Class != domain.ProjectionClass || got.Title != "Main" ||
		got.Revision != 1 || got.FirstYear != 2020 || got.LastYear != 2049 {
		t.Fatalf("unexpected summary %+v", got)
	}

	forecasts, err := listings.Forecasts(ctx)
	if err != nil || len(forecasts) != len(domain.ForecastKinds) {
		t.Fatalf("expected %d forecasts, got %d (%v)", len(domain.ForecastKinds), len(forecasts), err)
	}
	fertility, err := listings.ForecastsOf(ctx, domain.KindFertility)
	if err != nil {
		t.Fatalf("ForecastsOf: %v", err)
	}
	if len(fertility) != 1 || fertility[0].ID != p.Fertility().Entry().ID() {
		t.Fatalf("unexpected fertility listing %+v", fertility)
	}
	estimations, err := listings.Estimations(ctx)
	if err != nil || len(estimations) != 4 {
		t.Fatalf("expected four estimations, got %d (%v)", len(estimations), err)
	}
	if metrics.count("list") != 2 {
		t.Fatalf("expected exactly one reload after the saves, got %d loads", metrics.count("list"))
	}
}

func TestListingsReturnCopies(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCatalog()
	saveGraph(t, c, newProjectionGraph(t, "Main"))

	first, err := c.Listings().Forecasts(ctx)
	if err != nil {
		t.Fatalf("Forecasts: %v", err)
	}
	first[0].Title = "mutated"
	second, err := c.Listings().Forecasts(ctx)
	if err != nil {
		t.Fatalf("Forecasts: %v", err)
	}
	if second[0].Title == "mutated" {
		t.Fatalf("listing callers must not alias the cache")
	}
}

func TestListingsExplicitInvalidate(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCatalog()
	if err := c.Listings().EnsureLoaded(ctx); err != nil {
		t.Fatalf("EnsureLoaded: %v", err)
	}
	est := mustEstimation(t, domain.EstimateImmigration, mustYears(t, 2020, 10))
	row := domain.CatalogRow{
		EntryRecord:  est.Entry().Record(),
		FirstYear:    2020,
		LastYear:     2029,
		EstimationID: domain.UnsavedID,
		Codec:        "json",
		Parameters:   []byte(`{}`),
	}
	if _, err := c.Backend().Upsert(ctx, domain.UpsertRequest{Action: domain.SaveInsert, Row: row}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	stale, err := c.Listings().Estimations(ctx)
	if err != nil || len(stale) != 0 {
		t.Fatalf("writes behind the catalog stay invisible until invalidated: %v %v", stale, err)
	}
	c.Listings().Invalidate()
	fresh, err := c.Listings().Estimations(ctx)
	if err != nil || len(fresh) != 1 {
		t.Fatalf("expected the estimation after Invalidate: %v %v", fresh, err)
	}
}
