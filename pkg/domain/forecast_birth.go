package domain

import "fmt"

// DefaultBoyShare is the assumed share of boys among newborns.
const DefaultBoyShare = 0.513

const derivedInputYears = 5

// AssumedElement names a birth component that is either assumed or derived
// from historical data.
type AssumedElement uint8

const (
	MotherAgeDistribution AssumedElement = iota
	OriginDistribution
	NaturalizationRate
	BoyShare
	assumedElementCount
)

func (e AssumedElement) String() string {
	switch e {
	case MotherAgeDistribution:
		return "motherAgeDistribution"
	case OriginDistribution:
		return "originDistribution"
	case NaturalizationRate:
		return "naturalizationRate"
	case BoyShare:
		return "boyShare"
	default:
		return fmt.Sprintf("element(%d)", uint8(e))
	}
}

// ElementSource is either Assumed(value) or Derived(input range).
type ElementSource struct {
	derived bool
	value   float64
	input   YearRange
}

// Assumed returns a source supplied as a fixed assumption.
func Assumed(value float64) ElementSource { return ElementSource{value: value} }

// Derived returns a source estimated from the historical input range.
func Derived(input YearRange) ElementSource { return ElementSource{derived: true, input: input} }

func (s ElementSource) IsDerived() bool { return s.derived }

// Value is the assumed value; zero for derived sources.
func (s ElementSource) Value() float64 { return s.value }

// Input is the historical range of a derived source.
func (s ElementSource) Input() (YearRange, bool) { return s.input, s.derived }

func assumedDefault(e AssumedElement) ElementSource {
	if e == BoyShare {
		return Assumed(DefaultBoyShare)
	}
	return Assumed(0)
}

// BirthForecast specifies births. It is always a Reference, endogenous
// forecast; its components are each assumed or derived.
type BirthForecast struct {
	forecastBase
	elements [assumedElementCount]ElementSource
}

// NewBirthForecast returns an unsaved forecast with every element assumed.
func NewBirthForecast(title string, years YearRange) (*BirthForecast, error) {
	base, err := newForecastBase(KindBirth, title, years)
	if err != nil {
		return nil, err
	}
	f := &BirthForecast{forecastBase: base}
	f.resetElements()
	return f, nil
}

func (f *BirthForecast) resetElements() {
	for e := range assumedElementCount {
		f.elements[e] = assumedDefault(e)
	}
}

func (f *BirthForecast) check(e AssumedElement) error {
	if e >= assumedElementCount {
		return invalid(f.rules.entity(), "element", "unknown element %d", e)
	}
	return nil
}

// Source returns the current source of element e.
func (f *BirthForecast) Source(e AssumedElement) ElementSource {
	if e >= assumedElementCount {
		return ElementSource{}
	}
	return f.elements[e]
}

// IsAssumed reports whether element e is supplied as an assumption.
func (f *BirthForecast) IsAssumed(e AssumedElement) bool {
	return e < assumedElementCount && !f.elements[e].derived
}

// AssumedElements lists the assumed elements in declaration order.
func (f *BirthForecast) AssumedElements() []AssumedElement {
	var out []AssumedElement
	for e := range assumedElementCount {
		if !f.elements[e].derived {
			out = append(out, e)
		}
	}
	return out
}

// SetAssumed switches element e between assumed and derived. Switching to
// derived allocates the five years before the forecast as input; switching
// back discards the input and restores the element's default assumption.
func (f *BirthForecast) SetAssumed(e AssumedElement, assumed bool) error {
	if err := f.check(e); err != nil {
		return err
	}
	if assumed == !f.elements[e].derived {
		return nil
	}
	if assumed {
		f.elements[e] = assumedDefault(e)
		f.markDirty()
		return nil
	}
	input, err := defaultInput(f.rules, f.years, derivedInputYears)
	if err != nil {
		return err
	}
	f.elements[e] = Derived(input)
	f.markDirty()
	return nil
}

// BoyShare returns the assumed boy share, or zero when it is derived.
func (f *BirthForecast) BoyShare() float64 { return f.elements[BoyShare].value }

// SetBoyShare assumes the given share of boys among newborns.
func (f *BirthForecast) SetBoyShare(share float64) error {
	if !(share > 0 && share < 1) {
		return invalid(f.rules.entity(), "boyShare", "%v must lie strictly between 0 and 1", share)
	}
	next := Assumed(share)
	if next != f.elements[BoyShare] {
		f.elements[BoyShare] = next
		f.markDirty()
	}
	return nil
}

// SetInput derives element e from the given historical range.
func (f *BirthForecast) SetInput(e AssumedElement, input YearRange) error {
	if err := f.check(e); err != nil {
		return err
	}
	if input.IsZero() {
		return invalid(f.rules.entity(), "input", "range is required")
	}
	if !input.Follows(f.years) {
		return invalid(f.rules.entity(), "input", "%s must end before %s", input, f.years)
	}
	cur := f.elements[e]
	if cur.derived && cur.input.Equal(input) {
		return nil
	}
	input.saved = false
	f.elements[e] = Derived(input)
	f.markDirty()
	return nil
}

// Reset assumes every element again with its default.
func (f *BirthForecast) Reset() {
	f.forecastBase.Reset()
	var defaults [assumedElementCount]ElementSource
	for e := range assumedElementCount {
		defaults[e] = assumedDefault(e)
	}
	if defaults != f.elements {
		f.elements = defaults
		f.markDirty()
	}
}

func (f *BirthForecast) Validate() error {
	if err := f.validateState(); err != nil {
		return err
	}
	for e, src := range f.elements {
		el := AssumedElement(e)
		if !src.derived {
			if el == BoyShare && !(src.value > 0 && src.value < 1) {
				return invalid(f.rules.entity(), "boyShare", "%v must lie strictly between 0 and 1", src.value)
			}
			continue
		}
		if !src.input.Follows(f.years) {
			return invalid(f.rules.entity(), el.String(), "input %s must end before %s", src.input, f.years)
		}
	}
	return nil
}

func (f *BirthForecast) Saved() bool {
	if !f.Cataloged.Saved() {
		return false
	}
	for _, src := range f.elements {
		if src.derived && !src.input.Saved() {
			return false
		}
	}
	return true
}

func (f *BirthForecast) MarkSaved(id Identity) {
	f.markForecastSaved(id)
	for e := range f.elements {
		f.elements[e].input.saved = f.elements[e].derived
	}
}

// AssumptionDocument is the serialized form of one birth element.
type AssumptionDocument struct {
	Element AssumedElement `json:"element"`
	Derived bool           `json:"derived"`
	Value   float64        `json:"value"`
	Input   YearSpan       `json:"input"`
}

func (f *BirthForecast) Document() ForecastDocument {
	doc := f.document()
	for e, src := range f.elements {
		doc.Assumptions = append(doc.Assumptions, AssumptionDocument{
			Element: AssumedElement(e),
			Derived: src.derived,
			Value:   src.value,
			Input:   src.input.Span(),
		})
	}
	return doc
}

func (f *BirthForecast) Duplicate() Forecast {
	cp := &BirthForecast{forecastBase: f.duplicateBase(), elements: f.elements}
	for e := range cp.elements {
		cp.elements[e].input.saved = false
	}
	return cp
}

func (f *BirthForecast) SnapshotIdentical() Forecast {
	return &BirthForecast{forecastBase: f.snapshotBase(), elements: f.elements}
}

func restoreBirth(base forecastBase, doc ForecastDocument) (*BirthForecast, error) {
	if doc.Specification != SpecReference || doc.Determination != Endogenous {
		return nil, &UnsupportedError{Entity: base.rules.entity(), Field: "specification", Value: doc.Specification}
	}
	f := &BirthForecast{forecastBase: base}
	f.resetElements()
	for _, a := range doc.Assumptions {
		if err := f.check(a.Element); err != nil {
			return nil, err
		}
		if !a.Derived {
			f.elements[a.Element] = Assumed(a.Value)
			continue
		}
		input, err := restoreInput(f.rules, a.Input)
		if err != nil {
			return nil, err
		}
		f.elements[a.Element] = Derived(input)
	}
	return f, nil
}

// NaturalizationForecast specifies naturalization rates from a historical
// input range. It is always a Reference, endogenous forecast.
type NaturalizationForecast struct {
	forecastBase
	input  YearRange
	impute bool
}

func NewNaturalizationForecast(title string, years YearRange) (*NaturalizationForecast, error) {
	base, err := newForecastBase(KindNaturalization, title, years)
	if err != nil {
		return nil, err
	}
	input, err := defaultInput(base.rules, years, naturalizationInputYears)
	if err != nil {
		return nil, err
	}
	return &NaturalizationForecast{forecastBase: base, input: input}, nil
}

func (f *NaturalizationForecast) Input() YearRange { return f.input }

func (f *NaturalizationForecast) SetInput(input YearRange) error {
	return setInput(&f.forecastBase, &f.input, input)
}

// Impute reports whether missing naturalizations are imputed.
func (f *NaturalizationForecast) Impute() bool { return f.impute }

func (f *NaturalizationForecast) SetImpute(impute bool) {
	if impute != f.impute {
		f.impute = impute
		f.markDirty()
	}
}

func (f *NaturalizationForecast) Reset() {
	f.forecastBase.Reset()
	resetInput(&f.forecastBase, &f.input, naturalizationInputYears)
	f.SetImpute(false)
}

func (f *NaturalizationForecast) Validate() error {
	if err := f.validateState(); err != nil {
		return err
	}
	return checkInput(f.rules, f.input, f.years)
}

func (f *NaturalizationForecast) Saved() bool { return f.Cataloged.Saved() && f.input.Saved() }

func (f *NaturalizationForecast) MarkSaved(id Identity) {
	f.markForecastSaved(id)
	f.input.saved = true
}

func (f *NaturalizationForecast) Document() ForecastDocument {
	doc := f.document()
	doc.Input = f.input.Span()
	doc.Impute = f.impute
	return doc
}

func (f *NaturalizationForecast) Duplicate() Forecast {
	cp := &NaturalizationForecast{forecastBase: f.duplicateBase(), input: f.input, impute: f.impute}
	cp.input.saved = false
	return cp
}

func (f *NaturalizationForecast) SnapshotIdentical() Forecast {
	return &NaturalizationForecast{forecastBase: f.snapshotBase(), input: f.input, impute: f.impute}
}

func restoreNaturalization(base forecastBase, doc ForecastDocument) (*NaturalizationForecast, error) {
	if doc.Specification != SpecReference || doc.Determination != Endogenous {
		return nil, &UnsupportedError{Entity: base.rules.entity(), Field: "specification", Value: doc.Specification}
	}
	input, err := restoreInput(base.rules, doc.Input)
	if err != nil {
		return nil, err
	}
	return &NaturalizationForecast{forecastBase: base, input: input, impute: doc.Impute}, nil
}
