// Package memory provides an in-memory catalog backend used for tests and
// ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"popcatalog/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.CatalogBackend = (*Store)(nil)

type titleKey struct {
	class domain.Class
	title string
}

type containmentKey struct {
	projection int32
	kind       domain.ForecastKind
}

// Snapshot captures the full store state.
type Snapshot struct {
	NextID  int32
	Entries []domain.CatalogRow
	Links   []domain.Containment
	Results map[domain.ResultTable][]domain.ResultRow
}

// Store keeps catalog rows, containment links and result rows in maps
// guarded by a single mutex.
type Store struct {
	mu      sync.RWMutex
	nextID  int32
	entries map[int32]domain.CatalogRow
	titles  map[titleKey]int32
	links   map[containmentKey]int32
	results map[domain.ResultTable][]domain.ResultRow
	now     func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		nextID:  1,
		entries: make(map[int32]domain.CatalogRow),
		titles:  make(map[titleKey]int32),
		links:   make(map[containmentKey]int32),
		results: make(map[domain.ResultTable][]domain.ResultRow),
		now:     time.Now,
	}
}

func (s *Store) Driver() string { return "memory" }

func (s *Store) Close() error { return nil }

func cloneRow(row domain.CatalogRow) domain.CatalogRow {
	row.Parameters = slices.Clone(row.Parameters)
	return row
}

func (s *Store) Upsert(_ context.Context, req domain.UpsertRequest) (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := cloneRow(req.Row)
	family := row.Class.Family()
	now := s.now().UTC().Truncate(time.Microsecond)

	switch req.Action {
	case domain.SaveInsert:
		key := titleKey{row.Class, row.Title}
		if existingID, taken := s.titles[key]; taken {
			existing := s.entries[existingID]
			if !req.Replace {
				return domain.Identity{}, domain.ConflictError{Family: family, Title: row.Title, Reason: "title already taken"}
			}
			if existing.Published {
				return domain.Identity{}, domain.ConflictError{Family: family, Title: row.Title, Reason: "title taken by a published entry"}
			}
			revision, err := domain.NextRevision(family, row.Title, existing.Revision)
			if err != nil {
				return domain.Identity{}, err
			}
			ident := domain.Identity{ID: existingID, Revision: revision, Created: existing.Created, Modified: now}
			s.store(row, ident)
			return ident, nil
		}
		ident := domain.Identity{ID: s.nextID, Revision: 1, Created: now, Modified: now}
		s.nextID++
		s.store(row, ident)
		return ident, nil
	case domain.SaveUpdate:
		existing, ok := s.entries[row.ID]
		if !ok || existing.Class.Family() != family {
			return domain.Identity{}, domain.NotFoundError{Family: family, ID: row.ID}
		}
		if existing.Revision != row.Revision {
			return domain.Identity{}, domain.ConflictError{
				Family: family,
				Title:  row.Title,
				Reason: fmt.Sprintf("revision %d is stale, stored revision is %d", row.Revision, existing.Revision),
			}
		}
		if owner, taken := s.titles[titleKey{row.Class, row.Title}]; taken && owner != row.ID {
			return domain.Identity{}, domain.ConflictError{Family: family, Title: row.Title, Reason: "title already taken"}
		}
		revision, err := domain.NextRevision(family, row.Title, existing.Revision)
		if err != nil {
			return domain.Identity{}, err
		}
		delete(s.titles, titleKey{existing.Class, existing.Title})
		ident := domain.Identity{ID: row.ID, Revision: revision, Created: existing.Created, Modified: now}
		s.store(row, ident)
		return ident, nil
	default:
		return domain.Identity{}, fmt.Errorf("upsert %s %d: action %s: %w", row.Class, row.ID, req.Action, domain.ErrUnsupported)
	}
}

func (s *Store) store(row domain.CatalogRow, ident domain.Identity) {
	row.ID, row.Revision, row.Created, row.Modified = ident.ID, ident.Revision, ident.Created, ident.Modified
	s.entries[ident.ID] = row
	s.titles[titleKey{row.Class, row.Title}] = ident.ID
}

func (s *Store) Get(_ context.Context, family domain.Family, id int32) (domain.CatalogRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.entries[id]
	if !ok || row.Class.Family() != family {
		return domain.CatalogRow{}, domain.NotFoundError{Family: family, ID: id}
	}
	return cloneRow(row), nil
}

func (s *Store) List(_ context.Context, family domain.Family) ([]domain.CatalogRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.CatalogRow
	for _, row := range s.entries {
		if row.Class.Family() != family {
			continue
		}
		row.Parameters = nil
		out = append(out, row)
	}
	slices.SortFunc(out, func(a, b domain.CatalogRow) int { return int(a.ID) - int(b.ID) })
	return out, nil
}

func (s *Store) DefineContainment(_ context.Context, link domain.Containment, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[link.ProjectionID]; !ok {
		return domain.NotFoundError{Family: domain.FamilyProjection, ID: link.ProjectionID}
	}
	if _, ok := s.entries[link.ForecastID]; !ok {
		return domain.NotFoundError{Family: domain.FamilyForecast, ID: link.ForecastID}
	}
	key := containmentKey{link.ProjectionID, link.Kind}
	current, linked := s.links[key]
	if linked && current != link.ForecastID && !replace {
		return domain.ConflictError{
			Family: domain.FamilyProjection,
			Title:  s.entries[link.ProjectionID].Title,
			Reason: fmt.Sprintf("%s forecast %d already linked", link.Kind, current),
		}
	}
	s.links[key] = link.ForecastID
	return nil
}

func (s *Store) Contained(_ context.Context, projectionID int32) ([]int32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int32
	for _, kind := range domain.ForecastKinds {
		if id, ok := s.links[containmentKey{projectionID, kind}]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func checkTable(table domain.ResultTable) error {
	if !table.Known() {
		return &domain.UnsupportedError{Entity: "result table", Field: "name", Value: string(table)}
	}
	return nil
}

func (s *Store) InsertRows(_ context.Context, table domain.ResultTable, rows []domain.ResultRow) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[table] = append(s.results[table], rows...)
	return int64(len(rows)), nil
}

func (s *Store) DeleteRows(_ context.Context, table domain.ResultTable, catalogID int32) (int64, error) {
	if err := checkTable(table); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.results[table])
	s.results[table] = slices.DeleteFunc(s.results[table], func(r domain.ResultRow) bool { return r.CatalogID == catalogID })
	return int64(before - len(s.results[table])), nil
}

func (s *Store) QueryRows(_ context.Context, table domain.ResultTable, catalogID int32) ([]domain.ResultRow, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ResultRow
	for _, r := range s.results[table] {
		if r.CatalogID == catalogID {
			out = append(out, r)
		}
	}
	return out, nil
}

// ExportState returns a deep copy of the store contents.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{NextID: s.nextID, Results: make(map[domain.ResultTable][]domain.ResultRow, len(s.results))}
	for _, row := range s.entries {
		snap.Entries = append(snap.Entries, cloneRow(row))
	}
	slices.SortFunc(snap.Entries, func(a, b domain.CatalogRow) int { return int(a.ID) - int(b.ID) })
	for key, id := range s.links {
		snap.Links = append(snap.Links, domain.Containment{ProjectionID: key.projection, ForecastID: id, Kind: key.kind})
	}
	slices.SortFunc(snap.Links, func(a, b domain.Containment) int {
		if a.ProjectionID != b.ProjectionID {
			return int(a.ProjectionID) - int(b.ProjectionID)
		}
		return int(a.Kind) - int(b.Kind)
	})
	for table, rows := range s.results {
		snap.Results[table] = slices.Clone(rows)
	}
	return snap
}

// ImportState replaces the store contents with snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[int32]domain.CatalogRow, len(snapshot.Entries))
	s.titles = make(map[titleKey]int32, len(snapshot.Entries))
	s.links = make(map[containmentKey]int32, len(snapshot.Links))
	s.results = make(map[domain.ResultTable][]domain.ResultRow, len(snapshot.Results))
	s.nextID = max(snapshot.NextID, 1)
	for _, row := range snapshot.Entries {
		s.entries[row.ID] = cloneRow(row)
		s.titles[titleKey{row.Class.Family(), row.Title}] = row.ID
		if row.ID >= s.nextID {
			s.nextID = row.ID + 1
		}
	}
	for _, link := range snapshot.Links {
		s.links[containmentKey{link.ProjectionID, link.Kind}] = link.ForecastID
	}
	for table, rows := range snapshot.Results {
		s.results[table] = slices.Clone(rows)
	}
}
