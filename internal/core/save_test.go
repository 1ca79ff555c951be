package core

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"popcatalog/internal/infra/persistence/sqlite"
	"popcatalog/pkg/domain"
)

func TestSaveProjectionRequiresSavedForecasts(t *testing.T) {
	ctx := context.Background()
	metrics := &captureMetricsRecorder{}
	c := newMemoryCatalog(WithMetrics(metrics))
	p := newProjectionGraph(t, "Main")

	err := c.SaveProjection(ctx, p, false)
	if !errors.Is(err, domain.ErrDependencyNotReady) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if p.Entry().ID() != domain.UnsavedID || p.Entry().Action() != domain.SaveInsert {
		t.Fatalf("failed save must leave the projection untouched: id=%d action=%s", p.Entry().ID(), p.Entry().Action())
	}
	rows, err := c.Backend().List(ctx, domain.FamilyProjection)
	if err != nil || len(rows) != 0 {
		t.Fatalf("nothing may be written on a dependency error: %v %v", rows, err)
	}
	if !metrics.has("save_projection", false) {
		t.Fatalf("expected a failed save_projection observation, got %+v", metrics.calls)
	}
}

func TestSaveForecastRequiresSavedEstimation(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCatalog()
	p := newProjectionGraph(t, "Main")
	fert := p.Fertility()

	if err := c.SaveForecast(ctx, fert, false); !errors.Is(err, domain.ErrDependencyNotReady) {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if fert.Entry().Persisted() {
		t.Fatalf("forecast must stay unsaved")
	}
	if err := c.SaveEstimation(ctx, fert.Estimation(), false); err != nil {
		t.Fatalf("SaveEstimation: %v", err)
	}
	if err := c.SaveForecast(ctx, fert, false); err != nil {
		t.Fatalf("SaveForecast: %v", err)
	}
	if !fert.Saved() || fert.Entry().Revision() != 1 {
		t.Fatalf("forecast not acknowledged: saved=%v revision=%d", fert.Saved(), fert.Entry().Revision())
	}
	row, err := c.Backend().Get(ctx, domain.FamilyForecast, fert.Entry().ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.EstimationID != fert.Estimation().Entry().ID() {
		t.Fatalf("stored estimation id %d, want %d", row.EstimationID, fert.Estimation().Entry().ID())
	}
}

func TestSaveRejectsInvalidEntities(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCatalog()
	years := mustYears(t, 2020, 30)
	empty, err := domain.NewProjection("Empty", years)
	if err != nil {
		t.Fatalf("NewProjection: %v", err)
	}
	if err := c.SaveProjection(ctx, empty, false); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("projection without forecasts must fail validation, got %v", err)
	}
	if err := c.SaveProjection(ctx, nil, false); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("nil projection must fail validation, got %v", err)
	}
	if err := c.SaveForecast(ctx, nil, false); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("nil forecast must fail validation, got %v", err)
	}
	if err := c.SaveEstimation(ctx, nil, false); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("nil estimation must fail validation, got %v", err)
	}
}

func TestSaveIsNoOpWhenSaved(t *testing.T) {
	ctx := context.Background()
	metrics := &captureMetricsRecorder{}
	c := newMemoryCatalog(WithMetrics(metrics))
	p := newProjectionGraph(t, "Main")
	saveGraph(t, c, p)
	revision := p.Entry().Revision()

	if err := c.SaveProjection(ctx, p, false); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if p.Entry().Revision() != revision {
		t.Fatalf("saving a saved projection must not bump the revision")
	}
	row, err := c.Backend().Get(ctx, domain.FamilyProjection, p.Entry().ID())
	if err != nil || row.Revision != revision {
		t.Fatalf("stored revision changed: %+v %v", row, err)
	}
	if metrics.count("save_projection") != 2 {
		t.Fatalf("expected two save_projection observations, got %+v", metrics.calls)
	}
}

func TestSaveUpdateBumpsRevision(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCatalog()
	p := newProjectionGraph(t, "Main")
	saveGraph(t, c, p)

	if err := p.Entry().SetCaption("main-v2"); err != nil {
		t.Fatalf("SetCaption: %v", err)
	}
	if err := c.SaveProjection(ctx, p, false); err != nil {
		t.Fatalf("SaveProjection: %v", err)
	}
	if p.Entry().Revision() != 2 || !p.Saved() {
		t.Fatalf("expected revision 2 after update, got %d saved=%v", p.Entry().Revision(), p.Saved())
	}

	stale := p.SnapshotIdentical()
	if err := p.Entry().SetCaption("main-v3"); err != nil {
		t.Fatalf("SetCaption: %v", err)
	}
	if err := c.SaveProjection(ctx, p, false); err != nil {
		t.Fatalf("SaveProjection: %v", err)
	}
	if err := stale.Entry().SetCaption("main-stale"); err != nil {
		t.Fatalf("SetCaption: %v", err)
	}
	err := c.SaveProjection(ctx, stale, false)
	if !errors.Is(err, domain.ErrConflict) || !errors.Is(err, domain.ErrStore) {
		t.Fatalf("stale revision must be a store conflict, got %v", err)
	}
	var storeErr *domain.StoreError
	if !errors.As(err, &storeErr) || storeErr.Op != "upsert" || storeErr.ID != p.Entry().ID() {
		t.Fatalf("unexpected store error %#v", storeErr)
	}
}

func TestSaveDuplicateTitleConflicts(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCatalog()
	first := mustEstimation(t, domain.EstimateMortality, mustYears(t, 2020, 30))
	if err := c.SaveEstimation(ctx, first, false); err != nil {
		t.Fatalf("SaveEstimation: %v", err)
	}
	second := mustEstimation(t, domain.EstimateMortality, mustYears(t, 2020, 30))
	err := c.SaveEstimation(ctx, second, false)
	if !errors.Is(err, domain.ErrStore) || !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate title must be a store conflict, got %v", err)
	}
	if second.Entry().Persisted() {
		t.Fatalf("conflicting estimation must stay unsaved")
	}
	if err := c.SaveEstimation(ctx, second, true); err != nil {
		t.Fatalf("replace save: %v", err)
	}
	if second.Entry().ID() != first.Entry().ID() || second.Entry().Revision() != 2 {
		t.Fatalf("replace must overwrite the unpublished row: id=%d revision=%d", second.Entry().ID(), second.Entry().Revision())
	}
}

func TestSaveSameTitleAcrossForecastKinds(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCatalog()
	years := mustYears(t, 2020, 30)
	fert, err := domain.NewFertilityForecast("Shared", years)
	if err != nil {
		t.Fatalf("NewFertilityForecast: %v", err)
	}
	mort, err := domain.NewMortalityForecast("Shared", years)
	if err != nil {
		t.Fatalf("NewMortalityForecast: %v", err)
	}
	for _, f := range []interface {
		SetConstantYear(int) error
		SetReferenceID(int32) error
	}{fert, mort} {
		if err := f.SetConstantYear(2020); err != nil {
			t.Fatalf("SetConstantYear: %v", err)
		}
		if err := f.SetReferenceID(1); err != nil {
			t.Fatalf("SetReferenceID: %v", err)
		}
	}
	if err := c.SaveForecast(ctx, fert, false); err != nil {
		t.Fatalf("SaveForecast(fertility): %v", err)
	}
	if err := c.SaveForecast(ctx, mort, true); err != nil {
		t.Fatalf("SaveForecast(mortality): %v", err)
	}
	if mort.Entry().ID() == fert.Entry().ID() || mort.Entry().Revision() != 1 {
		t.Fatalf("mortality replaced the fertility row: ids %d/%d", mort.Entry().ID(), fert.Entry().ID())
	}
	loaded, err := c.LoadForecast(ctx, fert.Entry().ID())
	if err != nil {
		t.Fatalf("LoadForecast: %v", err)
	}
	if loaded.Kind() != domain.KindFertility || loaded.Entry().Revision() != 1 {
		t.Fatalf("expected the untouched fertility forecast, got %s revision %d", loaded.Kind(), loaded.Entry().Revision())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name string
		open func(t *testing.T) *Catalog
	}{
		{"memory", func(t *testing.T) *Catalog { return newMemoryCatalog() }},
		{"sqlite", func(t *testing.T) *Catalog {
			store, err := sqlite.NewStore(context.Background(), filepath.Join(t.TempDir(), "catalog.db"), 100)
			if err != nil {
				t.Fatalf("sqlite.NewStore: %v", err)
			}
			t.Cleanup(func() { _ = store.Close() })
			return NewCatalog(store)
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			c := tc.open(t)
			p := newProjectionGraph(t, "Main")
			if err := p.SetBequestAges(70, 80); err != nil {
				t.Fatalf("SetBequestAges: %v", err)
			}
			saveGraph(t, c, p)

			loaded, err := c.LoadProjection(ctx, p.Entry().ID())
			if err != nil {
				t.Fatalf("LoadProjection: %v", err)
			}
			if !loaded.Saved() || loaded.Entry().Title() != "Main" || loaded.Entry().Revision() != 1 {
				t.Fatalf("unexpected loaded entry %+v", loaded.Entry().Record())
			}
			if loaded.BequestMinAge() != 70 || loaded.BequestMaxAge() != 80 || !loaded.Years().Equal(p.Years()) {
				t.Fatalf("parameters not restored: %d..%d %s", loaded.BequestMinAge(), loaded.BequestMaxAge(), loaded.Years())
			}
			if err := loaded.Validate(); err != nil {
				t.Fatalf("loaded projection invalid: %v", err)
			}
			for _, kind := range domain.ForecastKinds {
				want, got := p.Forecast(kind), loaded.Forecast(kind)
				if got == nil {
					t.Fatalf("%s forecast not linked", kind)
				}
				if got.Entry().ID() != want.Entry().ID() || got.Entry().Title() != want.Entry().Title() {
					t.Fatalf("%s forecast mismatch: %d %q", kind, got.Entry().ID(), got.Entry().Title())
				}
				if (want.Estimation() == nil) != (got.Estimation() == nil) {
					t.Fatalf("%s estimation presence differs", kind)
				}
				if want.Estimation() != nil && got.Estimation().Entry().ID() != want.Estimation().Entry().ID() {
					t.Fatalf("%s estimation id %d, want %d", kind, got.Estimation().Entry().ID(), want.Estimation().Entry().ID())
				}
			}

			est, err := c.LoadEstimation(ctx, p.Mortality().Estimation().Entry().ID())
			if err != nil {
				t.Fatalf("LoadEstimation: %v", err)
			}
			if est.Kind() != domain.EstimateMortality || !est.Sample().Equal(p.Mortality().Estimation().Sample()) {
				t.Fatalf("unexpected estimation %s %s", est.Kind(), est.Sample())
			}

			if _, err := c.LoadProjection(ctx, 4242); !errors.Is(err, domain.ErrNotFound) || !errors.Is(err, domain.ErrStore) {
				t.Fatalf("missing projection must be a not-found store error, got %v", err)
			}
			if _, err := c.LoadForecast(ctx, p.Entry().ID()); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("projection id loaded as forecast must be not found, got %v", err)
			}
		})
	}
}

func TestSaveProjectionRelinksForecast(t *testing.T) {
	ctx := context.Background()
	c := newMemoryCatalog()
	p := newProjectionGraph(t, "Main")
	saveGraph(t, c, p)

	nat, err := domain.NewNaturalizationForecast("Naturalization v2", p.Years())
	if err != nil {
		t.Fatalf("NewNaturalizationForecast: %v", err)
	}
	if err := c.SaveForecast(ctx, nat, false); err != nil {
		t.Fatalf("SaveForecast: %v", err)
	}
	if err := p.SetForecast(nat); err != nil {
		t.Fatalf("SetForecast: %v", err)
	}
	if err := c.SaveProjection(ctx, p, false); err != nil {
		t.Fatalf("SaveProjection: %v", err)
	}
	loaded, err := c.LoadProjection(ctx, p.Entry().ID())
	if err != nil {
		t.Fatalf("LoadProjection: %v", err)
	}
	if got := loaded.Naturalization(); got == nil || got.Entry().ID() != nat.Entry().ID() {
		t.Fatalf("naturalization link not replaced")
	}
}

func TestLoadLogsUnknownParameterFields(t *testing.T) {
	ctx := context.Background()
	logger := &captureLogger{}
	c := newMemoryCatalog(WithLogger(logger))
	est := mustEstimation(t, domain.EstimateFertility, mustYears(t, 2020, 30))
	if err := c.SaveEstimation(ctx, est, false); err != nil {
		t.Fatalf("SaveEstimation: %v", err)
	}
	row, err := c.Backend().Get(ctx, domain.FamilyEstimation, est.Entry().ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	row.Parameters = append(row.Parameters[:len(row.Parameters)-1], []byte(`,"legacy":true}`)...)
	if _, err := c.Backend().Upsert(ctx, domain.UpsertRequest{Action: domain.SaveUpdate, Row: row}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := c.LoadEstimation(ctx, est.Entry().ID()); err != nil {
		t.Fatalf("LoadEstimation: %v", err)
	}
	if !logger.has("warn", "unknown parameter fields skipped") {
		t.Fatalf("expected unknown field warning, got %+v", logger.records)
	}
}
