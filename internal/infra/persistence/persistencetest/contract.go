// Package persistencetest holds the behavioural contract every
// domain.CatalogBackend must satisfy, shared by the backend test suites.
package persistencetest

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"popcatalog/pkg/domain"
)

// Row returns an insertable catalog row of class with title.
func Row(class domain.Class, title string) domain.CatalogRow {
	return domain.CatalogRow{
		EntryRecord: domain.EntryRecord{
			ID:        domain.UnsavedID,
			Class:     class,
			Title:     title,
			TextEn:    domain.DefaultTextEn,
			TextLocal: domain.DefaultTextLocal,
		},
		FirstYear:    2020,
		LastYear:     2049,
		EstimationID: -1,
		Codec:        "json",
		Parameters:   []byte(`{"years":{"start":2020,"length":30}}`),
	}
}

// RunCatalogBackend runs the backend contract; open must return a fresh,
// empty backend per call.
func RunCatalogBackend(t *testing.T, open func(t *testing.T) domain.CatalogBackend) {
	t.Run("InsertGetList", func(t *testing.T) { testInsertGetList(t, open(t)) })
	t.Run("TitleConflicts", func(t *testing.T) { testTitleConflicts(t, open(t)) })
	t.Run("TitlesArePerClass", func(t *testing.T) { testTitlesArePerClass(t, open(t)) })
	t.Run("RevisionExhaustion", func(t *testing.T) { testRevisionExhaustion(t, open(t)) })
	t.Run("Replace", func(t *testing.T) { testReplace(t, open(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, open(t)) })
	t.Run("Containment", func(t *testing.T) { testContainment(t, open(t)) })
	t.Run("ResultRows", func(t *testing.T) { testResultRows(t, open(t)) })
}

func insert(t *testing.T, b domain.CatalogBackend, row domain.CatalogRow) domain.Identity {
	t.Helper()
	ident, err := b.Upsert(context.Background(), domain.UpsertRequest{Action: domain.SaveInsert, Row: row})
	if err != nil {
		t.Fatalf("insert %s: %v", row.Title, err)
	}
	return ident
}

func testInsertGetList(t *testing.T, b domain.CatalogBackend) {
	ctx := context.Background()
	first := insert(t, b, Row("forecast.fertility", "Baseline"))
	if first.ID < 0 || first.Revision != 1 || first.Created.IsZero() || !first.Created.Equal(first.Modified) {
		t.Fatalf("unexpected identity %+v", first)
	}
	second := insert(t, b, Row("forecast.birth", "Births"))
	insert(t, b, Row("estimation.fertility", "Baseline"))
	if second.ID <= first.ID {
		t.Fatalf("ids must increase: %d then %d", first.ID, second.ID)
	}

	got, err := b.Get(ctx, domain.FamilyForecast, first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := Row("forecast.fertility", "Baseline")
	want.ID, want.Revision, want.Created, want.Modified = first.ID, first.Revision, first.Created, first.Modified
	if diff := cmp.Diff(want, got, cmpopts.EquateApproxTime(0)); diff != "" {
		t.Fatalf("stored row mismatch (-want +got):\n%s", diff)
	}

	if _, err := b.Get(ctx, domain.FamilyProjection, first.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("family mismatch must be not found, got %v", err)
	}
	list, err := b.List(ctx, domain.FamilyForecast)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("unexpected listing %+v", list)
	}
	if list[0].Parameters != nil {
		t.Fatalf("listings must not carry parameters")
	}
}

func testTitleConflicts(t *testing.T, b domain.CatalogBackend) {
	ctx := context.Background()
	insert(t, b, Row("forecast.fertility", "Taken"))
	_, err := b.Upsert(ctx, domain.UpsertRequest{Action: domain.SaveInsert, Row: Row("forecast.fertility", "Taken")})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for duplicate title, got %v", err)
	}
	insert(t, b, Row("forecast.mortality", "Taken"))
	insert(t, b, Row("estimation.fertility", "Taken"))
	insert(t, b, Row("projection", "Taken"))
}

func testTitlesArePerClass(t *testing.T, b domain.CatalogBackend) {
	ctx := context.Background()
	fert := insert(t, b, Row("forecast.fertility", "Shared"))

	mort := Row("forecast.mortality", "Shared")
	mort.Caption = "mortality"
	ident, err := b.Upsert(ctx, domain.UpsertRequest{Action: domain.SaveInsert, Replace: true, Row: mort})
	if err != nil {
		t.Fatalf("replace into another class: %v", err)
	}
	if ident.ID == fert.ID || ident.Revision != 1 {
		t.Fatalf("replace must stay within its class, got %+v (fertility id %d)", ident, fert.ID)
	}

	got, err := b.Get(ctx, domain.FamilyForecast, fert.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Class != "forecast.fertility" || got.Revision != 1 || got.Caption != "" {
		t.Fatalf("fertility row was overwritten: %+v", got.EntryRecord)
	}
	list, err := b.List(ctx, domain.FamilyForecast)
	if err != nil || len(list) != 2 {
		t.Fatalf("expected both rows listed, got %d (%v)", len(list), err)
	}
}

func testRevisionExhaustion(t *testing.T, b domain.CatalogBackend) {
	ctx := context.Background()
	created := insert(t, b, Row("projection", "Busy"))
	row := Row("projection", "Busy")
	row.ID, row.Revision = created.ID, created.Revision
	for row.Revision < domain.MaxRevision {
		ident, err := b.Upsert(ctx, domain.UpsertRequest{Action: domain.SaveUpdate, Row: row})
		if err != nil {
			t.Fatalf("update at revision %d: %v", row.Revision, err)
		}
		row.Revision = ident.Revision
	}
	if _, err := b.Upsert(ctx, domain.UpsertRequest{Action: domain.SaveUpdate, Row: row}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("update past the last revision must conflict, got %v", err)
	}
	_, err := b.Upsert(ctx, domain.UpsertRequest{Action: domain.SaveInsert, Replace: true, Row: Row("projection", "Busy")})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("replace past the last revision must conflict, got %v", err)
	}
	got, err := b.Get(ctx, domain.FamilyProjection, created.ID)
	if err != nil || got.Revision != domain.MaxRevision {
		t.Fatalf("revision must stay at %d, got %d (%v)", domain.MaxRevision, got.Revision, err)
	}
}

func testReplace(t *testing.T, b domain.CatalogBackend) {
	ctx := context.Background()
	original := insert(t, b, Row("forecast.fertility", "Draft"))

	row := Row("forecast.fertility", "Draft")
	row.Caption = "v2"
	ident, err := b.Upsert(ctx, domain.UpsertRequest{Action: domain.SaveInsert, Replace: true, Row: row})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if ident.ID != original.ID || ident.Revision != original.Revision+1 || !ident.Created.Equal(original.Created) {
		t.Fatalf("replace must overwrite in place: %+v vs %+v", ident, original)
	}
	got, err := b.Get(ctx, domain.FamilyForecast, ident.ID)
	if err != nil || got.Caption != "v2" {
		t.Fatalf("replaced row not stored: %+v %v", got, err)
	}

	published := Row("forecast.mortality", "Final")
	published.Published, published.ReadOnly = true, true
	insert(t, b, published)
	_, err = b.Upsert(ctx, domain.UpsertRequest{Action: domain.SaveInsert, Replace: true, Row: Row("forecast.mortality", "Final")})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("published rows must not be replaced, got %v", err)
	}
}

func testUpdate(t *testing.T, b domain.CatalogBackend) {
	ctx := context.Background()
	created := insert(t, b, Row("estimation.mortality", "Rates"))

	row := Row("estimation.mortality", "Rates v2")
	row.ID, row.Revision = created.ID, created.Revision
	updated, err := b.Upsert(ctx, domain.UpsertRequest{Action: domain.SaveUpdate, Row: row})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != created.ID || updated.Revision != created.Revision+1 || !updated.Created.Equal(created.Created) {
		t.Fatalf("unexpected identity after update %+v", updated)
	}

	if _, err := b.Upsert(ctx, domain.UpsertRequest{Action: domain.SaveUpdate, Row: row}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("stale revision must conflict, got %v", err)
	}
	row.ID = created.ID + 1000
	if _, err := b.Upsert(ctx, domain.UpsertRequest{Action: domain.SaveUpdate, Row: row}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing row must be not found, got %v", err)
	}
	if _, err := b.Upsert(ctx, domain.UpsertRequest{Action: domain.SaveNone, Row: row}); err == nil {
		t.Fatalf("upsert without an action must fail")
	}
}

func testContainment(t *testing.T, b domain.CatalogBackend) {
	ctx := context.Background()
	proj := insert(t, b, Row("projection", "Main"))
	birth := insert(t, b, Row("forecast.birth", "Births"))
	fert := insert(t, b, Row("forecast.fertility", "Fertility A"))
	other := insert(t, b, Row("forecast.fertility", "Fertility B"))

	link := func(id int32, kind domain.ForecastKind, replace bool) error {
		return b.DefineContainment(ctx, domain.Containment{ProjectionID: proj.ID, ForecastID: id, Kind: kind}, replace)
	}
	if err := link(fert.ID, domain.KindFertility, false); err != nil {
		t.Fatalf("link fertility: %v", err)
	}
	if err := link(birth.ID, domain.KindBirth, false); err != nil {
		t.Fatalf("link birth: %v", err)
	}
	if err := link(fert.ID, domain.KindFertility, false); err != nil {
		t.Fatalf("relinking the same forecast must be a no-op: %v", err)
	}
	if err := link(other.ID, domain.KindFertility, false); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict without replace, got %v", err)
	}
	if err := link(other.ID, domain.KindFertility, true); err != nil {
		t.Fatalf("replace link: %v", err)
	}
	ids, err := b.Contained(ctx, proj.ID)
	if err != nil {
		t.Fatalf("Contained: %v", err)
	}
	if diff := cmp.Diff([]int32{birth.ID, other.ID}, ids); diff != "" {
		t.Fatalf("containment mismatch (-want +got):\n%s", diff)
	}
}

func testResultRows(t *testing.T, b domain.CatalogBackend) {
	ctx := context.Background()
	proj := insert(t, b, Row("projection", "Results"))
	children := []domain.ResultRow{
		{CatalogID: proj.ID, OriginID: 1, GenderID: 1, Age: 0, Extra: 20, Year: 2020, Value: 1.5},
		{CatalogID: proj.ID, OriginID: 2, GenderID: 2, Age: 0, Extra: 31, Year: 2020, Value: 2},
		{CatalogID: proj.ID, OriginID: 1, GenderID: 2, Age: 1, Extra: 25, Year: 2021, Value: 0.25},
		{CatalogID: proj.ID, OriginID: 1, GenderID: 1, Age: 2, Extra: 40, Year: 2022, Value: 7},
		{CatalogID: proj.ID, OriginID: 3, GenderID: 1, Age: 3, Extra: 44, Year: 2023, Value: 1e-9},
	}
	n, err := b.InsertRows(ctx, domain.TableChildren, children)
	if err != nil || n != int64(len(children)) {
		t.Fatalf("InsertRows = %d, %v", n, err)
	}
	heirs := []domain.ResultRow{{CatalogID: proj.ID, GenderID: 1, Age: 50, Extra: 74, Year: 2020, Value: 3}}
	if _, err := b.InsertRows(ctx, domain.TableHeirs, heirs); err != nil {
		t.Fatalf("InsertRows heirs: %v", err)
	}

	sortRows := cmpopts.SortSlices(func(a, b domain.ResultRow) bool {
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Extra < b.Extra
	})
	got, err := b.QueryRows(ctx, domain.TableChildren, proj.ID)
	if err != nil {
		t.Fatalf("QueryRows: %v", err)
	}
	if diff := cmp.Diff(children, got, sortRows); diff != "" {
		t.Fatalf("children mismatch (-want +got):\n%s", diff)
	}
	gotHeirs, err := b.QueryRows(ctx, domain.TableHeirs, proj.ID)
	if err != nil {
		t.Fatalf("QueryRows heirs: %v", err)
	}
	if diff := cmp.Diff(heirs, gotHeirs); diff != "" {
		t.Fatalf("heirs mismatch (-want +got):\n%s", diff)
	}

	deleted, err := b.DeleteRows(ctx, domain.TableChildren, proj.ID)
	if err != nil || deleted != int64(len(children)) {
		t.Fatalf("DeleteRows = %d, %v", deleted, err)
	}
	if rest, err := b.QueryRows(ctx, domain.TableChildren, proj.ID); err != nil || len(rest) != 0 {
		t.Fatalf("rows left after delete: %v %v", rest, err)
	}
	if _, err := b.InsertRows(ctx, domain.ResultTable("users; --"), children); !errors.Is(err, domain.ErrUnsupported) {
		t.Fatalf("unknown tables must be rejected, got %v", err)
	}
}
