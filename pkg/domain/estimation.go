package domain

import "fmt"

// EstimationKind identifies which demographic rate an estimation produces.
type EstimationKind uint8

const (
	EstimateFertility EstimationKind = iota + 1
	EstimateMortality
	EstimateImmigration
	EstimateEmigration
)

func (k EstimationKind) String() string {
	switch k {
	case EstimateFertility:
		return "fertility"
	case EstimateMortality:
		return "mortality"
	case EstimateImmigration:
		return "immigration"
	case EstimateEmigration:
		return "emigration"
	default:
		return fmt.Sprintf("estimation(%d)", uint8(k))
	}
}

// Class returns the catalog class of estimations of this kind.
func (k EstimationKind) Class() Class { return Class("estimation." + k.String()) }

// FirstSampleYear is the earliest year historical data exists for the kind.
func (k EstimationKind) FirstSampleYear() int {
	switch k {
	case EstimateFertility:
		return 1980
	case EstimateMortality:
		return 1990
	default:
		return FirstMigrationYear
	}
}

// DefaultOrigins is the only origin selection implemented for the kind.
func (k EstimationKind) DefaultOrigins() Origins {
	if k == EstimateImmigration {
		return OriginImmigrantsNonCitizens
	}
	return OriginNone
}

// FirstMigrationYear is the first year with registered migration flows.
const FirstMigrationYear = 1981

// Origins is a set of population origin groups.
type Origins uint8

const OriginNone Origins = 0

const (
	OriginCitizens Origins = 1 << iota
	OriginImmigrantsCitizens
	OriginImmigrantsNonCitizens
	OriginDescendantsCitizens
	OriginDescendantsNonCitizens
)

// Estimation describes how historical sample years were analyzed to produce
// rates for the declared range.
type Estimation struct {
	Cataloged
	kind    EstimationKind
	sample  YearRange
	origins Origins
}

// NewEstimation returns an unsaved estimation with the kind's default sample
// range, running from the kind's first sample year to the year before years.
func NewEstimation(kind EstimationKind, title string, years YearRange) (*Estimation, error) {
	if kind < EstimateFertility || kind > EstimateEmigration {
		return nil, invalid("estimation", "kind", "unknown kind %d", kind)
	}
	base, err := newCataloged(kind.Class(), title, years)
	if err != nil {
		return nil, err
	}
	sample, err := YearRangeBetween(kind.FirstSampleYear(), years.Start()-1)
	if err != nil {
		return nil, fmt.Errorf("default sample range: %w", err)
	}
	return &Estimation{Cataloged: base, kind: kind, sample: sample, origins: kind.DefaultOrigins()}, nil
}

func (e *Estimation) Kind() EstimationKind { return e.kind }

// Sample returns a copy of the sampled historical range.
func (e *Estimation) Sample() YearRange { return e.sample }

func (e *Estimation) Origins() Origins { return e.origins }

// SetSample replaces the sampled range.
func (e *Estimation) SetSample(sample YearRange) error {
	if sample.IsZero() {
		return invalid(string(e.kind.Class()), "sample", "range is required")
	}
	if sample.Equal(e.sample) {
		return nil
	}
	sample.saved = false
	e.sample = sample
	return nil
}

// SetOrigins accepts only the kind's default selection.
func (e *Estimation) SetOrigins(origins Origins) error {
	if origins != e.kind.DefaultOrigins() {
		return &UnsupportedError{Entity: string(e.kind.Class()), Field: "origins", Value: origins}
	}
	return nil
}

// Saved also requires the sample range to be persisted.
func (e *Estimation) Saved() bool {
	return e.Cataloged.Saved() && e.sample.Saved()
}

// Coverage returns the sample range joined with the declared range.
func (e *Estimation) Coverage() (YearRange, error) {
	return JoinYearRanges(e.sample, e.years)
}

// Validate checks the catalog fields and that the sample directly precedes
// the declared range.
func (e *Estimation) Validate() error {
	if err := e.validate(); err != nil {
		return err
	}
	if e.sample.IsZero() {
		return invalid(string(e.kind.Class()), "sample", "range is required")
	}
	if !e.sample.Follows(e.years) {
		return invalid(string(e.kind.Class()), "sample", "%s must end before %s", e.sample, e.years)
	}
	if e.sample.start < e.kind.FirstSampleYear() {
		return invalid(string(e.kind.Class()), "sample", "starts before %d", e.kind.FirstSampleYear())
	}
	return nil
}

// MarkSaved records a successful store round trip of the estimation.
func (e *Estimation) MarkSaved(id Identity) {
	e.entry.Acknowledge(id)
	e.markSaved()
	e.sample.saved = true
}

// Duplicate returns an unsaved copy under a new identity.
func (e *Estimation) Duplicate() *Estimation {
	cp := *e
	cp.Cataloged = e.duplicate()
	cp.sample.saved = false
	return &cp
}

// SnapshotIdentical returns a copy that keeps the persisted identity.
func (e *Estimation) SnapshotIdentical() *Estimation {
	cp := *e
	cp.Cataloged = e.snapshot()
	return &cp
}

// EstimationDocument is the parameter blob stored with an estimation.
type EstimationDocument struct {
	Kind    EstimationKind `json:"kind"`
	Years   YearSpan       `json:"years"`
	Sample  YearSpan       `json:"sample"`
	Origins Origins        `json:"origins"`
}

// Document returns the serializable parameters of the estimation.
func (e *Estimation) Document() EstimationDocument {
	return EstimationDocument{Kind: e.kind, Years: e.years.Span(), Sample: e.sample.Span(), Origins: e.origins}
}

// RestoreEstimation rebuilds a saved estimation from its catalog record and
// decoded parameters.
func RestoreEstimation(rec EntryRecord, doc EstimationDocument) (*Estimation, error) {
	years, err := doc.Years.Range()
	if err != nil {
		return nil, fmt.Errorf("estimation %d years: %w", rec.ID, err)
	}
	sample, err := doc.Sample.Range()
	if err != nil {
		return nil, fmt.Errorf("estimation %d sample: %w", rec.ID, err)
	}
	sample.saved = true
	origins := doc.Origins
	if origins != doc.Kind.DefaultOrigins() {
		return nil, &UnsupportedError{Entity: string(doc.Kind.Class()), Field: "origins", Value: origins}
	}
	return &Estimation{Cataloged: restoreCataloged(rec, years), kind: doc.Kind, sample: sample, origins: origins}, nil
}
