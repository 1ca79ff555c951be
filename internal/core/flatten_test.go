package core

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"popcatalog/pkg/dense"
	"popcatalog/pkg/domain"
)

func mustArray(t *testing.T, shape ...int) *dense.Array {
	t.Helper()
	a, err := dense.New(shape...)
	if err != nil {
		t.Fatalf("dense.New(%v): %v", shape, err)
	}
	return a
}

func mustSet(t *testing.T, a *dense.Array, v float64, idx ...int) {
	t.Helper()
	if err := a.Set(v, idx...); err != nil {
		t.Fatalf("Set(%v): %v", idx, err)
	}
}

func TestFlattenSingleCell(t *testing.T) {
	arr := mustArray(t, 2, 2, 1, 2)
	mustSet(t, arr, 3.5, 1, 0, 0, 1)
	rows, err := Flatten(context.Background(), arr, Layout{Table: domain.TablePopulation, CatalogID: 7, StartYear: 2020}, 1)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	want := []domain.ResultRow{{CatalogID: 7, OriginID: 1, GenderID: 1, Age: 1, Year: 2021, Value: 3.5}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenSkipsZeros(t *testing.T) {
	arr := mustArray(t, 3, 2, 2, 4)
	rows, err := Flatten(context.Background(), arr, Layout{Table: domain.TableDeaths, CatalogID: 1, StartYear: 2020}, 4)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("all-zero array must flatten to no rows, got %d", len(rows))
	}
}

func TestFlattenOrderIsYearGenderAgeOrigin(t *testing.T) {
	arr := mustArray(t, 2, 2, 2, 2)
	for i := range arr.Data() {
		arr.Data()[i] = float64(i + 1)
	}
	rows, err := Flatten(context.Background(), arr, Layout{Table: domain.TablePopulation, CatalogID: 1, StartYear: 2000}, 1)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(rows) != arr.Len() {
		t.Fatalf("expected %d rows, got %d", arr.Len(), len(rows))
	}
	type key struct{ year, gender, age, origin int }
	var got []key
	for _, r := range rows[:8] {
		got = append(got, key{int(r.Year), int(r.GenderID), int(r.Age), int(r.OriginID)})
	}
	want := []key{
		{2000, 1, 0, 1}, {2000, 1, 0, 2}, {2000, 1, 1, 1}, {2000, 1, 1, 2},
		{2000, 2, 0, 1}, {2000, 2, 0, 2}, {2000, 2, 1, 1}, {2000, 2, 1, 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("iteration order mismatch (-want +got):\n%s", diff)
	}
	for _, r := range rows[8:] {
		if r.Year != 2001 {
			t.Fatalf("second half must be year 2001, got %+v", r)
		}
	}
}

func TestFlattenWorkersPreserveOrder(t *testing.T) {
	arr := mustArray(t, 4, 2, 3, 17)
	for i := range arr.Data() {
		if i%3 != 0 {
			arr.Data()[i] = float64(i)
		}
	}
	layout := Layout{Table: domain.TableImmigrants, CatalogID: 9, StartYear: 1990}
	serial, err := Flatten(context.Background(), arr, layout, 1)
	if err != nil {
		t.Fatalf("Flatten serial: %v", err)
	}
	for _, workers := range []int{2, 5, 17, 64} {
		parallel, err := Flatten(context.Background(), arr, layout, workers)
		if err != nil {
			t.Fatalf("Flatten(%d workers): %v", workers, err)
		}
		if diff := cmp.Diff(serial, parallel); diff != "" {
			t.Fatalf("%d workers changed the rows (-serial +parallel):\n%s", workers, diff)
		}
	}
}

func TestFlattenHeirsOffsetsMotherAge(t *testing.T) {
	// heirs: (age, gender, extra, year), no origin axis
	arr := mustArray(t, 3, 2, 5, 2)
	mustSet(t, arr, 2, 2, 1, 4, 0)
	rows, err := Flatten(context.Background(), arr, Layout{Table: domain.TableHeirs, CatalogID: 3, StartYear: 2020, ExtraOffset: 72}, 2)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	want := []domain.ResultRow{{CatalogID: 3, GenderID: 2, Age: 2, Extra: 76, Year: 2020, Value: 2}}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("heirs mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenResidenceDuration(t *testing.T) {
	// residence duration: (age, gender, origin, duration, year)
	arr := mustArray(t, 1, 1, 2, 3, 1)
	mustSet(t, arr, 1, 0, 0, 0, 1, 0)
	mustSet(t, arr, 4, 0, 0, 1, 2, 0)
	layout := Layout{Table: domain.TableResidenceDuration, CatalogID: 5, StartYear: 2030}
	rows, err := Flatten(context.Background(), arr, layout, 1)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	want := []domain.ResultRow{
		{CatalogID: 5, OriginID: 5, GenderID: 1, Age: 0, Extra: 1, Year: 2030, Value: 1},
		{CatalogID: 5, OriginID: 6, GenderID: 1, Age: 0, Extra: UnboundedDuration, Year: 2030, Value: 4},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("residence rows mismatch (-want +got):\n%s", diff)
	}

	back, err := Inflate(rows, layout, arr.Shape()...)
	if err != nil {
		t.Fatalf("Inflate: %v", err)
	}
	if diff := cmp.Diff(arr.Data(), back.Data()); diff != "" {
		t.Fatalf("inflate mismatch (-want +got):\n%s", diff)
	}
}

func TestInflateRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		layout Layout
		shape  []int
	}{
		{Layout{Table: domain.TablePopulation, CatalogID: 1, StartYear: 2020}, []int{5, 2, 3, 4}},
		{Layout{Table: domain.TableChildren, CatalogID: 2, StartYear: 2020}, []int{2, 2, 2, 40, 3}},
		{Layout{Table: domain.TableHeirs, CatalogID: 3, StartYear: 2020, ExtraOffset: 72}, []int{100, 2, 5, 2}},
		{Layout{Table: domain.TableForecastMortality, CatalogID: 4, StartYear: 2020}, []int{3, 2, 1, 30}},
	} {
		t.Run(string(tc.layout.Table), func(t *testing.T) {
			arr := mustArray(t, tc.shape...)
			for i := range arr.Data() {
				if i%7 == 0 {
					arr.Data()[i] = float64(i) / 4
				}
			}
			rows, err := Flatten(context.Background(), arr, tc.layout, 3)
			if err != nil {
				t.Fatalf("Flatten: %v", err)
			}
			back, err := Inflate(rows, tc.layout, tc.shape...)
			if err != nil {
				t.Fatalf("Inflate: %v", err)
			}
			if diff := cmp.Diff(arr.Data(), back.Data()); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFlattenRejectsBadShapes(t *testing.T) {
	ctx := context.Background()
	if _, err := Flatten(ctx, mustArray(t, 2, 2, 2), Layout{Table: domain.TablePopulation, StartYear: 2020}, 1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("wrong rank must be a validation error, got %v", err)
	}
	if _, err := Flatten(ctx, mustArray(t, 2, 2, 2), Layout{Table: "nope", StartYear: 2020}, 1); !errors.Is(err, domain.ErrUnsupported) {
		t.Fatalf("unknown table must be unsupported, got %v", err)
	}
	if _, err := Flatten(ctx, mustArray(t, 257, 1, 1, 1), Layout{Table: domain.TablePopulation, StartYear: 2020}, 1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("too many ages must be rejected, got %v", err)
	}
	if _, err := Flatten(ctx, mustArray(t, 1, 1, 1, 2), Layout{Table: domain.TablePopulation, StartYear: 32767}, 1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("years past the year column must be rejected, got %v", err)
	}
	if _, err := Flatten(ctx, nil, Layout{Table: domain.TablePopulation, StartYear: 2020}, 1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("nil array must be rejected, got %v", err)
	}
}

func TestFlattenHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Flatten(ctx, mustArray(t, 2, 2, 2, 3), Layout{Table: domain.TablePopulation, StartYear: 2020}, 2); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestInflateRejectsRowsOutsideShape(t *testing.T) {
	rows := []domain.ResultRow{{CatalogID: 1, OriginID: 1, GenderID: 1, Age: 9, Year: 2020, Value: 1}}
	if _, err := Inflate(rows, Layout{Table: domain.TableDeaths, CatalogID: 1, StartYear: 2020}, 2, 2, 1, 1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
