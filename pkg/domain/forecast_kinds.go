package domain

// Default lengths of historical input ranges, ending the year before the
// forecast starts.
const (
	migrationInputYears      = 3
	naturalizationInputYears = 5
)

var (
	_ Forecast = (*FertilityForecast)(nil)
	_ Forecast = (*MortalityForecast)(nil)
	_ Forecast = (*ImmigrationForecast)(nil)
	_ Forecast = (*EmigrationForecast)(nil)
	_ Forecast = (*BirthForecast)(nil)
	_ Forecast = (*NaturalizationForecast)(nil)
)

// FertilityForecast specifies future fertility rates.
type FertilityForecast struct {
	scaled
}

// NewFertilityForecast returns an unsaved Reference forecast.
func NewFertilityForecast(title string, years YearRange) (*FertilityForecast, error) {
	base, err := newForecastBase(KindFertility, title, years)
	if err != nil {
		return nil, err
	}
	return &FertilityForecast{scaled: scaled{forecastBase: base}}, nil
}

func (f *FertilityForecast) Validate() error { return f.validateState() }

func (f *FertilityForecast) MarkSaved(id Identity) { f.markForecastSaved(id) }

func (f *FertilityForecast) Document() ForecastDocument { return f.document() }

func (f *FertilityForecast) Duplicate() Forecast {
	return &FertilityForecast{scaled: scaled{forecastBase: f.duplicateBase()}}
}

func (f *FertilityForecast) SnapshotIdentical() Forecast {
	return &FertilityForecast{scaled: scaled{forecastBase: f.snapshotBase()}}
}

// MortalityForecast specifies future mortality. Mortality is always
// determined by the model.
type MortalityForecast struct {
	scaled
}

func NewMortalityForecast(title string, years YearRange) (*MortalityForecast, error) {
	base, err := newForecastBase(KindMortality, title, years)
	if err != nil {
		return nil, err
	}
	return &MortalityForecast{scaled: scaled{forecastBase: base}}, nil
}

func (f *MortalityForecast) Validate() error { return f.validateState() }

func (f *MortalityForecast) MarkSaved(id Identity) { f.markForecastSaved(id) }

func (f *MortalityForecast) Document() ForecastDocument { return f.document() }

func (f *MortalityForecast) Duplicate() Forecast {
	return &MortalityForecast{scaled: scaled{forecastBase: f.duplicateBase()}}
}

func (f *MortalityForecast) SnapshotIdentical() Forecast {
	return &MortalityForecast{scaled: scaled{forecastBase: f.snapshotBase()}}
}

// ImmigrationForecast specifies future immigration, with a historical input
// range of observed flows.
type ImmigrationForecast struct {
	scaled
	input YearRange
}

func NewImmigrationForecast(title string, years YearRange) (*ImmigrationForecast, error) {
	base, err := newForecastBase(KindImmigration, title, years)
	if err != nil {
		return nil, err
	}
	input, err := defaultInput(base.rules, years, migrationInputYears)
	if err != nil {
		return nil, err
	}
	return &ImmigrationForecast{scaled: scaled{forecastBase: base}, input: input}, nil
}

// Input returns the historical input range.
func (f *ImmigrationForecast) Input() YearRange { return f.input }

// SetInput replaces the historical input range.
func (f *ImmigrationForecast) SetInput(input YearRange) error {
	return setInput(&f.forecastBase, &f.input, input)
}

func (f *ImmigrationForecast) Reset() {
	f.forecastBase.Reset()
	resetInput(&f.forecastBase, &f.input, migrationInputYears)
}

func (f *ImmigrationForecast) Validate() error {
	if err := f.validateState(); err != nil {
		return err
	}
	return checkInput(f.rules, f.input, f.years)
}

func (f *ImmigrationForecast) Saved() bool { return f.Cataloged.Saved() && f.input.Saved() }

func (f *ImmigrationForecast) MarkSaved(id Identity) {
	f.markForecastSaved(id)
	f.input.saved = true
}

func (f *ImmigrationForecast) Document() ForecastDocument {
	doc := f.document()
	doc.Input = f.input.Span()
	return doc
}

func (f *ImmigrationForecast) Duplicate() Forecast {
	input := f.input
	input.saved = false
	return &ImmigrationForecast{scaled: scaled{forecastBase: f.duplicateBase()}, input: input}
}

func (f *ImmigrationForecast) SnapshotIdentical() Forecast {
	return &ImmigrationForecast{scaled: scaled{forecastBase: f.snapshotBase()}, input: f.input}
}

// EmigrationForecast specifies future emigration, with a historical input
// range of observed flows.
type EmigrationForecast struct {
	scaled
	input YearRange
}

func NewEmigrationForecast(title string, years YearRange) (*EmigrationForecast, error) {
	base, err := newForecastBase(KindEmigration, title, years)
	if err != nil {
		return nil, err
	}
	input, err := defaultInput(base.rules, years, migrationInputYears)
	if err != nil {
		return nil, err
	}
	return &EmigrationForecast{scaled: scaled{forecastBase: base}, input: input}, nil
}

func (f *EmigrationForecast) Input() YearRange { return f.input }

func (f *EmigrationForecast) SetInput(input YearRange) error {
	return setInput(&f.forecastBase, &f.input, input)
}

func (f *EmigrationForecast) Reset() {
	f.forecastBase.Reset()
	resetInput(&f.forecastBase, &f.input, migrationInputYears)
}

func (f *EmigrationForecast) Validate() error {
	if err := f.validateState(); err != nil {
		return err
	}
	return checkInput(f.rules, f.input, f.years)
}

func (f *EmigrationForecast) Saved() bool { return f.Cataloged.Saved() && f.input.Saved() }

func (f *EmigrationForecast) MarkSaved(id Identity) {
	f.markForecastSaved(id)
	f.input.saved = true
}

func (f *EmigrationForecast) Document() ForecastDocument {
	doc := f.document()
	doc.Input = f.input.Span()
	return doc
}

func (f *EmigrationForecast) Duplicate() Forecast {
	input := f.input
	input.saved = false
	return &EmigrationForecast{scaled: scaled{forecastBase: f.duplicateBase()}, input: input}
}

func (f *EmigrationForecast) SnapshotIdentical() Forecast {
	return &EmigrationForecast{scaled: scaled{forecastBase: f.snapshotBase()}, input: f.input}
}

// defaultInput returns the length-year range ending the year before years.
func defaultInput(rules *kindRules, years YearRange, length int) (YearRange, error) {
	var input YearRange
	if err := input.DefineAnchored(years.Start()-1, length, false); err != nil {
		return YearRange{}, invalid(rules.entity(), "input", "no room for %d input years before %s", length, years)
	}
	return input, nil
}

// checkInput requires a historical input to precede the forecast and to lie
// within registered migration data.
func checkInput(rules *kindRules, input, years YearRange) error {
	if input.IsZero() {
		return invalid(rules.entity(), "input", "range is required")
	}
	if !input.Follows(years) {
		return invalid(rules.entity(), "input", "%s must end before %s", input, years)
	}
	if input.Start() < FirstMigrationYear {
		return invalid(rules.entity(), "input", "%s starts before %d", input, FirstMigrationYear)
	}
	return nil
}

func setInput(f *forecastBase, dst *YearRange, input YearRange) error {
	if err := checkInput(f.rules, input, f.years); err != nil {
		return err
	}
	if input.Equal(*dst) {
		return nil
	}
	input.saved = false
	*dst = input
	return nil
}

func resetInput(f *forecastBase, dst *YearRange, length int) {
	input, err := defaultInput(f.rules, f.years, length)
	if err != nil || input.Equal(*dst) {
		return
	}
	*dst = input
}

func restoreInput(rules *kindRules, span YearSpan) (YearRange, error) {
	input, err := span.Range()
	if err != nil {
		return YearRange{}, invalid(rules.entity(), "input", "%v", err)
	}
	input.saved = true
	return input, nil
}
