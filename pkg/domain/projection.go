package domain

import "fmt"

// Default bequest age band of a projection.
const (
	DefaultBequestMinAge uint8 = 72
	DefaultBequestMaxAge uint8 = 76
)

// ProjectionClass is the catalog class of projections.
const ProjectionClass Class = "projection"

const projectionEntity = "projection"

// Projection aggregates one forecast per flow and the run-wide parameters.
// It is the root of the save graph: projection, forecasts, estimations.
type Projection struct {
	Cataloged
	forecasts  [len(ForecastKinds)]Forecast
	bequestMin uint8
	bequestMax uint8
}

// NewProjection returns an unsaved projection without forecasts.
func NewProjection(title string, years YearRange) (*Projection, error) {
	base, err := newCataloged(ProjectionClass, title, years)
	if err != nil {
		return nil, err
	}
	return &Projection{Cataloged: base, bequestMin: DefaultBequestMinAge, bequestMax: DefaultBequestMaxAge}, nil
}

func slot(kind ForecastKind) (int, bool) {
	for i, k := range ForecastKinds {
		if k == kind {
			return i, true
		}
	}
	return 0, false
}

// Forecast returns the forecast of the given kind, or nil.
func (p *Projection) Forecast(kind ForecastKind) Forecast {
	i, ok := slot(kind)
	if !ok {
		return nil
	}
	return p.forecasts[i]
}

// Forecasts returns the set forecasts in projection order.
func (p *Projection) Forecasts() []Forecast {
	out := make([]Forecast, 0, len(p.forecasts))
	for _, f := range p.forecasts {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

// SetForecast places f in the slot of its kind.
func (p *Projection) SetForecast(f Forecast) error {
	if f == nil {
		return invalid(projectionEntity, "forecast", "is required")
	}
	i, ok := slot(f.Kind())
	if !ok {
		return invalid(projectionEntity, "forecast", "unknown kind %s", f.Kind())
	}
	if p.forecasts[i] != f {
		p.forecasts[i] = f
		p.markDirty()
	}
	return nil
}

func (p *Projection) Birth() *BirthForecast {
	f, _ := p.Forecast(KindBirth).(*BirthForecast)
	return f
}

func (p *Projection) Fertility() *FertilityForecast {
	f, _ := p.Forecast(KindFertility).(*FertilityForecast)
	return f
}

func (p *Projection) Mortality() *MortalityForecast {
	f, _ := p.Forecast(KindMortality).(*MortalityForecast)
	return f
}

func (p *Projection) Emigration() *EmigrationForecast {
	f, _ := p.Forecast(KindEmigration).(*EmigrationForecast)
	return f
}

func (p *Projection) Immigration() *ImmigrationForecast {
	f, _ := p.Forecast(KindImmigration).(*ImmigrationForecast)
	return f
}

func (p *Projection) Naturalization() *NaturalizationForecast {
	f, _ := p.Forecast(KindNaturalization).(*NaturalizationForecast)
	return f
}

func (p *Projection) BequestMinAge() uint8 { return p.bequestMin }
func (p *Projection) BequestMaxAge() uint8 { return p.bequestMax }

// SetBequestAges sets the inclusive age band of bequest recipients.
func (p *Projection) SetBequestAges(minAge, maxAge uint8) error {
	if minAge > maxAge {
		return invalid(projectionEntity, "bequestAges", "minimum %d exceeds maximum %d", minAge, maxAge)
	}
	if minAge != p.bequestMin || maxAge != p.bequestMax {
		p.bequestMin, p.bequestMax = minAge, maxAge
		p.markDirty()
	}
	return nil
}

// Validate requires all six forecasts, each valid on its own.
func (p *Projection) Validate() error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.bequestMin > p.bequestMax {
		return invalid(projectionEntity, "bequestAges", "minimum %d exceeds maximum %d", p.bequestMin, p.bequestMax)
	}
	for i, f := range p.forecasts {
		if f == nil {
			return invalid(projectionEntity, "forecast", "%s forecast is missing", ForecastKinds[i])
		}
		if err := f.Validate(); err != nil {
			return fmt.Errorf("%s forecast: %w", ForecastKinds[i], err)
		}
	}
	return nil
}

// MarkSaved records a successful store round trip of the projection.
func (p *Projection) MarkSaved(id Identity) {
	p.entry.Acknowledge(id)
	p.markSaved()
}

// Duplicate returns an unsaved projection under a new identity that
// references identical snapshots of the same forecasts.
func (p *Projection) Duplicate() *Projection {
	cp := &Projection{Cataloged: p.duplicate(), bequestMin: p.bequestMin, bequestMax: p.bequestMax}
	for i, f := range p.forecasts {
		if f != nil {
			cp.forecasts[i] = f.SnapshotIdentical()
		}
	}
	return cp
}

// SnapshotIdentical returns a copy that keeps every persisted identity.
func (p *Projection) SnapshotIdentical() *Projection {
	cp := &Projection{Cataloged: p.snapshot(), bequestMin: p.bequestMin, bequestMax: p.bequestMax}
	for i, f := range p.forecasts {
		if f != nil {
			cp.forecasts[i] = f.SnapshotIdentical()
		}
	}
	return cp
}

// ProjectionDocument is the parameter blob stored with a projection. The
// forecasts are linked through the containment table.
type ProjectionDocument struct {
	Years         YearSpan `json:"years"`
	BequestMinAge uint8    `json:"bequestMinAge"`
	BequestMaxAge uint8    `json:"bequestMaxAge"`
}

func (p *Projection) Document() ProjectionDocument {
	return ProjectionDocument{Years: p.years.Span(), BequestMinAge: p.bequestMin, BequestMaxAge: p.bequestMax}
}

// RestoreProjection rebuilds a saved projection and attaches its forecasts.
func RestoreProjection(rec EntryRecord, doc ProjectionDocument, forecasts []Forecast) (*Projection, error) {
	years, err := doc.Years.Range()
	if err != nil {
		return nil, fmt.Errorf("projection %d years: %w", rec.ID, err)
	}
	if doc.BequestMinAge > doc.BequestMaxAge {
		return nil, invalid(projectionEntity, "bequestAges", "minimum %d exceeds maximum %d", doc.BequestMinAge, doc.BequestMaxAge)
	}
	p := &Projection{Cataloged: restoreCataloged(rec, years), bequestMin: doc.BequestMinAge, bequestMax: doc.BequestMaxAge}
	for _, f := range forecasts {
		i, ok := slot(f.Kind())
		if !ok {
			return nil, invalid(projectionEntity, "forecast", "unknown kind %s", f.Kind())
		}
		if p.forecasts[i] != nil {
			return nil, invalid(projectionEntity, "forecast", "projection %d contains two %s forecasts", rec.ID, f.Kind())
		}
		p.forecasts[i] = f
	}
	return p, nil
}
