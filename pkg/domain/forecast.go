package domain

import (
	"fmt"
	"math"
)

// ForecastKind identifies the demographic flow a forecast specifies.
type ForecastKind uint8

const (
	KindBirth ForecastKind = iota + 1
	KindFertility
	KindMortality
	KindEmigration
	KindImmigration
	KindNaturalization
)

// ForecastKinds lists every kind in projection order.
var ForecastKinds = [...]ForecastKind{KindBirth, KindFertility, KindMortality, KindEmigration, KindImmigration, KindNaturalization}

func (k ForecastKind) String() string {
	switch k {
	case KindBirth:
		return "birth"
	case KindFertility:
		return "fertility"
	case KindMortality:
		return "mortality"
	case KindEmigration:
		return "emigration"
	case KindImmigration:
		return "immigration"
	case KindNaturalization:
		return "naturalization"
	default:
		return fmt.Sprintf("forecast(%d)", uint8(k))
	}
}

// Class returns the catalog class of forecasts of this kind.
func (k ForecastKind) Class() Class { return Class("forecast." + k.String()) }

// Specification selects how a forecast derives its future values.
type Specification uint8

const (
	SpecReference Specification = iota
	SpecConstant
	SpecScaling
)

func (s Specification) String() string {
	switch s {
	case SpecReference:
		return "reference"
	case SpecConstant:
		return "constant"
	case SpecScaling:
		return "scaling"
	default:
		return fmt.Sprintf("specification(%d)", uint8(s))
	}
}

// Determination says whether a flow is computed by the model or supplied.
type Determination uint8

const (
	Endogenous Determination = iota
	Exogenous
)

func (d Determination) String() string {
	if d == Exogenous {
		return "exogenous"
	}
	return "endogenous"
}

// ScaleMethod selects how a Scaling forecast adjusts its reference.
type ScaleMethod uint8

const (
	ScaleNone ScaleMethod = iota
	ScaleByFactor
	ScaleToTotalFertilityRate
	ScaleToLifetimeTarget
	ScaleToTotalImmigration
	ScaleToTotalEmigrationRate
)

func (m ScaleMethod) String() string {
	switch m {
	case ScaleNone:
		return "none"
	case ScaleByFactor:
		return "factor"
	case ScaleToTotalFertilityRate:
		return "total-fertility-rate"
	case ScaleToLifetimeTarget:
		return "lifetime-target"
	case ScaleToTotalImmigration:
		return "total-immigration"
	case ScaleToTotalEmigrationRate:
		return "total-emigration-rate"
	default:
		return fmt.Sprintf("scale(%d)", uint8(m))
	}
}

// Forecast is implemented by the six forecast kinds. The set is closed.
type Forecast interface {
	Kind() ForecastKind
	Entry() *CatalogEntry
	Years() YearRange
	SetYears(YearRange) error
	Specification() Specification
	SetSpecification(Specification) error
	Determination() Determination
	SetDetermination(Determination) error
	ReferenceID() int32
	SetReferenceID(int32) error
	// Estimation is nil for kinds that take none and outside Reference.
	Estimation() *Estimation
	Saved() bool
	Validate() error
	Reset()
	MarkSaved(Identity)
	Document() ForecastDocument
	Duplicate() Forecast
	SnapshotIdentical() Forecast

	base() *forecastBase
}

// kindRules parameterizes the shared state machine per forecast kind.
type kindRules struct {
	kind           ForecastKind
	referenceOnly  bool
	allowExogenous bool
	estimation     EstimationKind // zero when the kind takes no estimation
	target         ScaleMethod    // kind-specific target scaling
}

var forecastRules = map[ForecastKind]*kindRules{
	KindBirth:          {kind: KindBirth, referenceOnly: true},
	KindFertility:      {kind: KindFertility, allowExogenous: true, estimation: EstimateFertility, target: ScaleToTotalFertilityRate},
	KindMortality:      {kind: KindMortality, estimation: EstimateMortality, target: ScaleToLifetimeTarget},
	KindEmigration:     {kind: KindEmigration, allowExogenous: true, estimation: EstimateEmigration, target: ScaleToTotalEmigrationRate},
	KindImmigration:    {kind: KindImmigration, allowExogenous: true, estimation: EstimateImmigration, target: ScaleToTotalImmigration},
	KindNaturalization: {kind: KindNaturalization, referenceOnly: true},
}

func (r *kindRules) entity() string { return string(r.kind.Class()) }

func (r *kindRules) allowsScale(m ScaleMethod) bool {
	return m == ScaleNone || m == ScaleByFactor || (r.target != ScaleNone && m == r.target)
}

// forecastState holds every field whose meaning depends on the
// specification. Transitions build a new state and commit it whole.
type forecastState struct {
	spec         Specification
	det          Determination
	estimation   *Estimation
	constantYear int
	scaleFactor  float64
	scaleMethod  ScaleMethod
}

func initialState() forecastState {
	return forecastState{spec: SpecReference, det: Endogenous, constantYear: -1, scaleFactor: 1, scaleMethod: ScaleNone}
}

// reset applies the defaults of s.spec.
func (s *forecastState) reset() {
	switch s.spec {
	case SpecReference:
		s.constantYear = -1
		s.scaleFactor = 1
		s.scaleMethod = ScaleNone
		s.det = Endogenous
	case SpecConstant:
		s.estimation = nil
		s.scaleMethod = ScaleNone
		s.scaleFactor = 1
	case SpecScaling:
		s.estimation = nil
		s.scaleMethod = ScaleByFactor
		s.constantYear = -1
	}
}

func (s *forecastState) enter(spec Specification) {
	if s.spec == spec {
		return
	}
	s.spec = spec
	s.reset()
}

// forecastBase carries the fields shared by every forecast kind.
type forecastBase struct {
	Cataloged
	rules       *kindRules
	state       forecastState
	referenceID int32
}

func newForecastBase(kind ForecastKind, title string, years YearRange) (forecastBase, error) {
	rules, ok := forecastRules[kind]
	if !ok {
		return forecastBase{}, invalid("forecast", "kind", "unknown kind %d", kind)
	}
	c, err := newCataloged(kind.Class(), title, years)
	if err != nil {
		return forecastBase{}, err
	}
	return forecastBase{Cataloged: c, rules: rules, state: initialState(), referenceID: UnsavedID}, nil
}

func (f *forecastBase) base() *forecastBase { return f }

func (f *forecastBase) Kind() ForecastKind { return f.rules.kind }
func (f *forecastBase) Specification() Specification { return f.state.spec }
func (f *forecastBase) Determination() Determination { return f.state.det }
func (f *forecastBase) ReferenceID() int32 { return f.referenceID }
func (f *forecastBase) Estimation() *Estimation { return f.state.estimation }

func (f *forecastBase) commit(next forecastState) {
	if next != f.state {
		f.state = next
		f.markDirty()
	}
}

// SetSpecification transitions to spec and applies its defaults. Kinds fixed
// to Reference reject any other value.
func (f *forecastBase) SetSpecification(spec Specification) error {
	if spec > SpecScaling {
		return invalid(f.rules.entity(), "specification", "unknown value %d", spec)
	}
	if f.rules.referenceOnly && spec != SpecReference {
		return &UnsupportedError{Entity: f.rules.entity(), Field: "specification", Value: spec}
	}
	next := f.state
	next.enter(spec)
	f.commit(next)
	return nil
}

// SetDetermination sets the flow determination. An exogenous flow cannot be
// reference-determined, so Exogenous under Reference moves to Scaling.
func (f *forecastBase) SetDetermination(det Determination) error {
	if det > Exogenous {
		return invalid(f.rules.entity(), "determination", "unknown value %d", det)
	}
	if det == Exogenous && !f.rules.allowExogenous {
		return &UnsupportedError{Entity: f.rules.entity(), Field: "determination", Value: det}
	}
	next := f.state
	if det == Exogenous && next.spec == SpecReference {
		next.enter(SpecScaling)
	}
	next.det = det
	f.commit(next)
	return nil
}

// SetReferenceID records the projection a Constant or Scaling forecast
// derives from. UnsavedID clears it.
func (f *forecastBase) SetReferenceID(id int32) error {
	if id < UnsavedID {
		return invalid(f.rules.entity(), "referenceId", "%d is not a catalog id", id)
	}
	if id != f.referenceID {
		f.referenceID = id
		f.markDirty()
	}
	return nil
}

// Reset restores the defaults of the current specification.
func (f *forecastBase) Reset() {
	next := f.state
	next.reset()
	f.commit(next)
}

func (f *forecastBase) validateState() error {
	if err := f.validate(); err != nil {
		return err
	}
	entity := f.rules.entity()
	s := f.state
	switch s.spec {
	case SpecConstant:
		if !f.years.IncludesYear(s.constantYear) {
			return invalid(entity, "constantYear", "%d outside %s", s.constantYear, f.years)
		}
		if f.referenceID == UnsavedID {
			return invalid(entity, "referenceId", "constant forecasts need a reference projection")
		}
	case SpecScaling:
		if !(s.scaleFactor > 0) || math.IsInf(s.scaleFactor, 0) {
			return invalid(entity, "scaleFactor", "%v must be positive", s.scaleFactor)
		}
		if f.referenceID == UnsavedID {
			return invalid(entity, "referenceId", "scaling forecasts need a reference projection")
		}
	case SpecReference:
		if f.rules.estimation == 0 {
			return nil
		}
		if s.estimation == nil {
			return invalid(entity, "estimation", "reference forecasts need an estimation")
		}
		if err := s.estimation.Validate(); err != nil {
			return fmt.Errorf("%s estimation: %w", entity, err)
		}
		coverage, err := s.estimation.Coverage()
		if err != nil {
			return invalid(entity, "estimation", "sample and estimated years are not contiguous: %v", err)
		}
		if !coverage.Includes(f.years) {
			return invalid(entity, "years", "%s reaches beyond the estimated %s", f.years, coverage)
		}
	}
	return nil
}

func (f *forecastBase) markForecastSaved(id Identity) {
	f.entry.Acknowledge(id)
	f.markSaved()
}

func (f *forecastBase) document() ForecastDocument {
	doc := ForecastDocument{
		Kind:          f.rules.kind,
		Years:         f.years.Span(),
		Specification: f.state.spec,
		Determination: f.state.det,
		ReferenceID:   f.referenceID,
		EstimationID:  UnsavedID,
		ConstantYear:  f.state.constantYear,
		ScaleFactor:   f.state.scaleFactor,
		ScaleMethod:   f.state.scaleMethod,
		Assumptions:   []AssumptionDocument{},
	}
	if f.state.estimation != nil {
		doc.EstimationID = f.state.estimation.Entry().ID()
	}
	return doc
}

func (f *forecastBase) duplicateBase() forecastBase {
	cp := *f
	cp.Cataloged = f.duplicate()
	return cp
}

func (f *forecastBase) snapshotBase() forecastBase {
	cp := *f
	cp.Cataloged = f.snapshot()
	return cp
}

// scaled holds the setters shared by kinds that support every
// specification: fertility, mortality and the two migration flows.
type scaled struct {
	forecastBase
}

func (f *scaled) ConstantYear() int { return f.state.constantYear }
func (f *scaled) ScaleFactor() float64 { return f.state.scaleFactor }
func (f *scaled) ScaleMethod() ScaleMethod { return f.state.scaleMethod }

// SetEstimation attaches the upstream estimation, moving to Reference first
// when needed. A nil estimation detaches it.
func (f *scaled) SetEstimation(e *Estimation) error {
	next := f.state
	if e == nil {
		next.estimation = nil
		f.commit(next)
		return nil
	}
	if e.Kind() != f.rules.estimation {
		return invalid(f.rules.entity(), "estimation", "%s estimation does not fit a %s forecast", e.Kind(), f.rules.kind)
	}
	next.enter(SpecReference)
	next.estimation = e
	f.commit(next)
	return nil
}

// SetConstantYear holds the forecast flat from year, moving to Constant.
func (f *scaled) SetConstantYear(year int) error {
	if !f.years.IncludesYear(year) {
		return invalid(f.rules.entity(), "constantYear", "%d outside %s", year, f.years)
	}
	next := f.state
	next.enter(SpecConstant)
	next.constantYear = year
	f.commit(next)
	return nil
}

// SetScaleFactor sets a positive factor, moving to Scaling.
func (f *scaled) SetScaleFactor(factor float64) error {
	if !(factor > 0) || math.IsInf(factor, 0) {
		return invalid(f.rules.entity(), "scaleFactor", "%v must be positive", factor)
	}
	next := f.state
	next.enter(SpecScaling)
	next.scaleFactor = factor
	f.commit(next)
	return nil
}

// SetScaleMethod selects the scaling method, moving to Scaling.
func (f *scaled) SetScaleMethod(method ScaleMethod) error {
	if !f.rules.allowsScale(method) {
		return invalid(f.rules.entity(), "scaleMethod", "%s does not apply", method)
	}
	next := f.state
	next.enter(SpecScaling)
	next.scaleMethod = method
	f.commit(next)
	return nil
}

func (f *scaled) restoreState(doc ForecastDocument, est *Estimation) error {
	entity := f.rules.entity()
	if doc.Specification > SpecScaling {
		return invalid(entity, "specification", "unknown value %d", doc.Specification)
	}
	if doc.Determination == Exogenous && !f.rules.allowExogenous {
		return &UnsupportedError{Entity: entity, Field: "determination", Value: doc.Determination}
	}
	if !f.rules.allowsScale(doc.ScaleMethod) {
		return invalid(entity, "scaleMethod", "%s does not apply", doc.ScaleMethod)
	}
	if est != nil && est.Kind() != f.rules.estimation {
		return invalid(entity, "estimation", "%s estimation does not fit a %s forecast", est.Kind(), f.rules.kind)
	}
	f.state = forecastState{
		spec:         doc.Specification,
		det:          doc.Determination,
		estimation:   est,
		constantYear: doc.ConstantYear,
		scaleFactor:  doc.ScaleFactor,
		scaleMethod:  doc.ScaleMethod,
	}
	if doc.Specification != SpecReference {
		f.state.estimation = nil
	}
	f.referenceID = doc.ReferenceID
	return nil
}

// ForecastDocument is the parameter blob stored with a forecast. Fields that
// do not apply to a kind keep their zero value.
type ForecastDocument struct {
	Kind          ForecastKind         `json:"kind"`
	Years         YearSpan             `json:"years"`
	Specification Specification        `json:"specification"`
	Determination Determination        `json:"determination"`
	ReferenceID   int32                `json:"referenceId"`
	EstimationID  int32                `json:"estimationId"`
	ConstantYear  int                  `json:"constantYear"`
	ScaleFactor   float64              `json:"scaleFactor"`
	ScaleMethod   ScaleMethod          `json:"scaleMethod"`
	Input         YearSpan             `json:"input"`
	Impute        bool                 `json:"impute"`
	Assumptions   []AssumptionDocument `json:"assumptions"`
}

// RestoreForecast rebuilds a saved forecast of doc.Kind. est is the loaded
// upstream estimation, or nil.
func RestoreForecast(rec EntryRecord, doc ForecastDocument, est *Estimation) (Forecast, error) {
	rules, ok := forecastRules[doc.Kind]
	if !ok {
		return nil, invalid("forecast", "kind", "unknown kind %d", doc.Kind)
	}
	years, err := doc.Years.Range()
	if err != nil {
		return nil, fmt.Errorf("forecast %d years: %w", rec.ID, err)
	}
	base := forecastBase{Cataloged: restoreCataloged(rec, years), rules: rules, state: initialState(), referenceID: doc.ReferenceID}
	switch doc.Kind {
	case KindBirth:
		return restoreBirth(base, doc)
	case KindNaturalization:
		return restoreNaturalization(base, doc)
	}
	s := scaled{forecastBase: base}
	if err := s.restoreState(doc, est); err != nil {
		return nil, err
	}
	switch doc.Kind {
	case KindFertility:
		return &FertilityForecast{scaled: s}, nil
	case KindMortality:
		return &MortalityForecast{scaled: s}, nil
	case KindImmigration:
		input, err := restoreInput(rules, doc.Input)
		if err != nil {
			return nil, err
		}
		return &ImmigrationForecast{scaled: s, input: input}, nil
	default:
		input, err := restoreInput(rules, doc.Input)
		if err != nil {
			return nil, err
		}
		return &EmigrationForecast{scaled: s, input: input}, nil
	}
}
