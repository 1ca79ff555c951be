package domain

import (
	"context"
	"strings"
	"time"
)

// Family groups catalog classes stored in the same catalog table.
type Family string

const (
	FamilyEstimation Family = "estimation"
	FamilyForecast   Family = "forecast"
	FamilyProjection Family = "projection"
)

// Families lists every catalog family.
var Families = [...]Family{FamilyEstimation, FamilyForecast, FamilyProjection}

// Class names the concrete kind of a catalog entry, e.g. "forecast.birth".
type Class string

// Family returns the family prefix of the class.
func (c Class) Family() Family {
	family, _, _ := strings.Cut(string(c), ".")
	return Family(family)
}

// MaxRevision is the last revision a catalog row can reach.
const MaxRevision = ^uint8(0)

// NextRevision returns the revision following current, or a ConflictError
// once the counter is exhausted. Backends never wrap revisions.
func NextRevision(family Family, title string, current uint8) (uint8, error) {
	if current == MaxRevision {
		return 0, ConflictError{Family: family, Title: title, Reason: "revision counter exhausted"}
	}
	return current + 1, nil
}

// Identity is the authoritative identity the store assigns on upsert.
type Identity struct {
	ID       int32
	Revision uint8
	Created  time.Time
	Modified time.Time
}

// CatalogRow is one catalog entry as stored, with its year bounds and
// encoded parameter document.
type CatalogRow struct {
	EntryRecord
	FirstYear    int
	LastYear     int
	EstimationID int32
	Codec        string
	Parameters   []byte
}

// UpsertRequest inserts Row when Action is SaveInsert and updates the row
// with Row.ID otherwise. Updates carry the revision the caller last saw in
// Row.Revision; a mismatch is a conflict.
type UpsertRequest struct {
	Action  SaveAction
	Replace bool
	Row     CatalogRow
}

// Containment links a forecast into a projection.
type Containment struct {
	ProjectionID int32
	ForecastID   int32
	Kind         ForecastKind
}

// CatalogBackend is the relational store behind the catalog. Implementations
// report uniqueness and revision collisions as ErrConflict and missing rows
// as ErrNotFound; they never retry.
type CatalogBackend interface {
	// Upsert writes one catalog row. Titles are unique per class. With
	// Replace, an insert whose title is taken overwrites the existing
	// unpublished row of the same class and title.
	Upsert(ctx context.Context, req UpsertRequest) (Identity, error)
	// Get returns the row with id in family.
	Get(ctx context.Context, family Family, id int32) (CatalogRow, error)
	// List returns every row of family without parameters, ordered by id.
	List(ctx context.Context, family Family) ([]CatalogRow, error)
	// DefineContainment links a forecast into a projection. Relinking the
	// same forecast is a no-op; linking another forecast of a kind already
	// linked needs replace.
	DefineContainment(ctx context.Context, link Containment, replace bool) error
	// Contained returns the forecast ids linked into a projection.
	Contained(ctx context.Context, projectionID int32) ([]int32, error)
	// InsertRows bulk-loads result rows into table.
	InsertRows(ctx context.Context, table ResultTable, rows []ResultRow) (int64, error)
	// DeleteRows removes every row of table stored for catalogID.
	DeleteRows(ctx context.Context, table ResultTable, catalogID int32) (int64, error)
	// QueryRows returns every row of table stored for catalogID.
	QueryRows(ctx context.Context, table ResultTable, catalogID int32) ([]ResultRow, error)
	Driver() string
	Close() error
}

// ResultRow is one non-zero cell of a flattened result array. Gender and
// origin ids are one-based, Age zero-based; Extra holds the kind-specific
// axis (mother age or residence duration) when the table has one.
type ResultRow struct {
	CatalogID int32
	OriginID  uint8
	GenderID  uint8
	Age       uint8
	Extra     int32
	Year      int16
	Value     float64
}

// ResultTable names a bulk result table.
type ResultTable string

const (
	TablePopulation          ResultTable = "population"
	TableDeaths              ResultTable = "deaths"
	TableBirths              ResultTable = "births"
	TableMothers             ResultTable = "mothers"
	TableChildren            ResultTable = "children"
	TableHeirs               ResultTable = "heirs"
	TableImmigrants          ResultTable = "immigrants"
	TableEmigrants           ResultTable = "emigrants"
	TableResidenceDuration   ResultTable = "residence_duration"
	TableForecastFertility   ResultTable = "forecasted_fertility"
	TableForecastMortality   ResultTable = "forecasted_mortality"
	TableForecastImmigration ResultTable = "forecasted_immigration"
	TableForecastEmigration  ResultTable = "forecasted_emigration"
)

// ProjectionTables lists the projection result tables in load order.
var ProjectionTables = [...]ResultTable{
	TablePopulation, TableDeaths, TableBirths, TableMothers, TableChildren,
	TableHeirs, TableImmigrants, TableEmigrants, TableResidenceDuration,
}

// ForecastTable returns the result table of a forecast kind, if it has one.
func ForecastTable(kind ForecastKind) (ResultTable, bool) {
	switch kind {
	case KindFertility:
		return TableForecastFertility, true
	case KindMortality:
		return TableForecastMortality, true
	case KindImmigration:
		return TableForecastImmigration, true
	case KindEmigration:
		return TableForecastEmigration, true
	default:
		return "", false
	}
}

// Known reports whether t is one of the declared tables.
func (t ResultTable) Known() bool {
	switch t {
	case TablePopulation, TableDeaths, TableBirths, TableMothers, TableChildren,
		TableHeirs, TableImmigrants, TableEmigrants, TableResidenceDuration,
		TableForecastFertility, TableForecastMortality, TableForecastImmigration, TableForecastEmigration:
		return true
	}
	return false
}

// Owner is the catalog family whose ids key the table.
func (t ResultTable) Owner() Family {
	if strings.HasPrefix(string(t), "forecasted_") {
		return FamilyForecast
	}
	return FamilyProjection
}

// HasOrigin reports whether the table carries an origin axis.
func (t ResultTable) HasOrigin() bool { return t != TableHeirs }

// ExtraColumn names the kind-specific axis column, or "" when there is none.
func (t ResultTable) ExtraColumn() string {
	switch t {
	case TableChildren, TableHeirs:
		return "mother_age"
	case TableResidenceDuration:
		return "duration_id"
	default:
		return ""
	}
}

// KeyColumn names the catalog id column.
func (t ResultTable) KeyColumn() string {
	if t.Owner() == FamilyForecast {
		return "forecast_id"
	}
	return "projection_id"
}

// ValueColumn names the value column.
func (t ResultTable) ValueColumn() string {
	if t.Owner() == FamilyForecast {
		return "estimate"
	}
	return "persons"
}

// Columns lists the insert columns of t in row order.
func (t ResultTable) Columns() []string {
	cols := []string{t.KeyColumn()}
	if t.HasOrigin() {
		cols = append(cols, "origin_id")
	}
	cols = append(cols, "gender_id", "age")
	if extra := t.ExtraColumn(); extra != "" {
		cols = append(cols, extra)
	}
	return append(cols, "year", t.ValueColumn())
}

// Values returns the column values of r in Columns order.
func (t ResultTable) Values(r ResultRow) []any {
	vals := []any{r.CatalogID}
	if t.HasOrigin() {
		vals = append(vals, int16(r.OriginID))
	}
	vals = append(vals, int16(r.GenderID), int16(r.Age))
	if t.ExtraColumn() != "" {
		vals = append(vals, r.Extra)
	}
	return append(vals, r.Year, r.Value)
}

// ScanTargets returns pointers into r in Columns order.
func (t ResultTable) ScanTargets(r *ResultRow) []any {
	dst := []any{&r.CatalogID}
	if t.HasOrigin() {
		dst = append(dst, &r.OriginID)
	}
	dst = append(dst, &r.GenderID, &r.Age)
	if t.ExtraColumn() != "" {
		dst = append(dst, &r.Extra)
	}
	return append(dst, &r.Year, &r.Value)
}
