package core

import (
	"context"
	"slices"
	"sync"
	"time"

	"popcatalog/pkg/domain"
)

// Summary is one catalog listing line.
type Summary struct {
	ID        int32
	Class     domain.Class
	Title     string
	Caption   string
	Revision  uint8
	Modified  time.Time
	Published bool
	FirstYear int
	LastYear  int
}

// Listings caches catalog summaries per family. Loads happen once until
// Invalidate; every successful save invalidates.
type Listings struct {
	catalog *Catalog
	mu      sync.Mutex
	loaded  bool
	byFam   map[domain.Family][]Summary
}

func newListings(c *Catalog) *Listings {
	return &Listings{catalog: c}
}

// Invalidate drops the cached listings.
func (l *Listings) Invalidate() {
	l.mu.Lock()
	l.loaded = false
	l.byFam = nil
	l.mu.Unlock()
}

// Loaded reports whether the listings are cached.
func (l *Listings) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loaded
}

// EnsureLoaded loads every family listing unless already cached.
func (l *Listings) EnsureLoaded(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ensureLocked(ctx)
}

func (l *Listings) ensureLocked(ctx context.Context) error {
	if l.loaded {
		return nil
	}
	return l.catalog.run(ctx, "list", "catalog", domain.UnsavedID, func(ctx context.Context) error {
		byFam := make(map[domain.Family][]Summary, len(domain.Families))
		for _, family := range domain.Families {
			rows, err := l.catalog.backend.List(ctx, family)
			if err != nil {
				return storeErr("list", string(family), domain.UnsavedID, err)
			}
			summaries := make([]Summary, 0, len(rows))
			for _, row := range rows {
				summaries = append(summaries, Summary{
					ID:        row.ID,
					Class:     row.Class,
					Title:     row.Title,
					Caption:   row.Caption,
					Revision:  row.Revision,
					Modified:  row.Modified,
					Published: row.Published,
					FirstYear: row.FirstYear,
					LastYear:  row.LastYear,
				})
			}
			byFam[family] = summaries
		}
		l.byFam = byFam
		l.loaded = true
		return nil
	})
}

func (l *Listings) family(ctx context.Context, family domain.Family) ([]Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.ensureLocked(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(l.byFam[family]), nil
}

// Estimations lists every stored estimation.
func (l *Listings) Estimations(ctx context.Context) ([]Summary, error) {
	return l.family(ctx, domain.FamilyEstimation)
}

// Forecasts lists every stored forecast.
func (l *Listings) Forecasts(ctx context.Context) ([]Summary, error) {
	return l.family(ctx, domain.FamilyForecast)
}

// ForecastsOf lists the stored forecasts of kind.
func (l *Listings) ForecastsOf(ctx context.Context, kind domain.ForecastKind) ([]Summary, error) {
	all, err := l.Forecasts(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(s Summary) bool { return s.Class != kind.Class() }), nil
}

// Projections lists every stored projection.
func (l *Listings) Projections(ctx context.Context) ([]Summary, error) {
	return l.family(ctx, domain.FamilyProjection)
}
