package domain

import (
	"errors"
	"testing"
)

func newFertility(t *testing.T) *FertilityForecast {
	t.Helper()
	f, err := NewFertilityForecast("Fertility baseline", mustRange(t, 2020, 30))
	if err != nil {
		t.Fatalf("NewFertilityForecast: %v", err)
	}
	return f
}

func newEstimation(t *testing.T, kind EstimationKind, years YearRange) *Estimation {
	t.Helper()
	e, err := NewEstimation(kind, kind.String()+" estimation", years)
	if err != nil {
		t.Fatalf("NewEstimation: %v", err)
	}
	return e
}

func TestForecastDefaults(t *testing.T) {
	f := newFertility(t)
	if f.Specification() != SpecReference || f.Determination() != Endogenous {
		t.Fatalf("unexpected defaults %s/%s", f.Specification(), f.Determination())
	}
	if f.ConstantYear() != -1 || f.ScaleFactor() != 1 || f.ScaleMethod() != ScaleNone || f.ReferenceID() != UnsavedID {
		t.Fatalf("unexpected scaling defaults %d %v %s %d", f.ConstantYear(), f.ScaleFactor(), f.ScaleMethod(), f.ReferenceID())
	}
	if f.Saved() {
		t.Fatalf("new forecast must be unsaved")
	}
}

func TestForecastSpecificationResets(t *testing.T) {
	f := newFertility(t)
	if err := f.SetSpecification(SpecScaling); err != nil {
		t.Fatalf("SetSpecification: %v", err)
	}
	if f.ScaleMethod() != ScaleByFactor || f.ConstantYear() != -1 {
		t.Fatalf("scaling defaults not applied: %s %d", f.ScaleMethod(), f.ConstantYear())
	}
	if err := f.SetScaleFactor(1.5); err != nil {
		t.Fatalf("SetScaleFactor: %v", err)
	}
	if err := f.SetSpecification(SpecConstant); err != nil {
		t.Fatalf("SetSpecification: %v", err)
	}
	if f.ScaleMethod() != ScaleNone || f.ScaleFactor() != 1 {
		t.Fatalf("constant defaults not applied: %s %v", f.ScaleMethod(), f.ScaleFactor())
	}
	if err := f.SetDetermination(Exogenous); err != nil {
		t.Fatalf("SetDetermination: %v", err)
	}
	if err := f.SetSpecification(SpecReference); err != nil {
		t.Fatalf("SetSpecification: %v", err)
	}
	if f.Determination() != Endogenous {
		t.Fatalf("entering reference must force endogenous")
	}
}

func TestExogenousUnderReferenceMovesToScaling(t *testing.T) {
	f := newFertility(t)
	if err := f.SetDetermination(Exogenous); err != nil {
		t.Fatalf("SetDetermination: %v", err)
	}
	if f.Specification() != SpecScaling || f.Determination() != Exogenous {
		t.Fatalf("expected scaling/exogenous, got %s/%s", f.Specification(), f.Determination())
	}
}

func TestExogenousUnderScalingIsNoTransition(t *testing.T) {
	f := newFertility(t)
	if err := f.SetSpecification(SpecScaling); err != nil {
		t.Fatalf("SetSpecification: %v", err)
	}
	if err := f.SetScaleMethod(ScaleToTotalFertilityRate); err != nil {
		t.Fatalf("SetScaleMethod: %v", err)
	}
	if err := f.SetScaleFactor(2); err != nil {
		t.Fatalf("SetScaleFactor: %v", err)
	}
	if err := f.SetDetermination(Exogenous); err != nil {
		t.Fatalf("SetDetermination: %v", err)
	}
	if f.Specification() != SpecScaling || f.ScaleMethod() != ScaleToTotalFertilityRate || f.ScaleFactor() != 2 {
		t.Fatalf("determination change must not reset scaling: %s %s %v", f.Specification(), f.ScaleMethod(), f.ScaleFactor())
	}
}

func TestSetEstimationForcesReference(t *testing.T) {
	f := newFertility(t)
	if err := f.SetScaleFactor(3); err != nil {
		t.Fatalf("SetScaleFactor: %v", err)
	}
	est := newEstimation(t, EstimateFertility, f.Years())
	if err := f.SetEstimation(est); err != nil {
		t.Fatalf("SetEstimation: %v", err)
	}
	if f.Specification() != SpecReference || f.Estimation() != est || f.ScaleFactor() != 1 {
		t.Fatalf("estimation should force reference and reset: %s %v", f.Specification(), f.ScaleFactor())
	}
	if err := f.SetConstantYear(2025); err != nil {
		t.Fatalf("SetConstantYear: %v", err)
	}
	if f.Estimation() != nil {
		t.Fatalf("estimation must be cleared outside reference")
	}
}

func TestSetEstimationRejectsWrongKind(t *testing.T) {
	f := newFertility(t)
	if err := f.SetScaleFactor(3); err != nil {
		t.Fatalf("SetScaleFactor: %v", err)
	}
	est := newEstimation(t, EstimateMortality, f.Years())
	if err := f.SetEstimation(est); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.Specification() != SpecScaling || f.ScaleFactor() != 3 {
		t.Fatalf("failed SetEstimation must not transition")
	}
}

func TestFailedSettersLeaveStateUntouched(t *testing.T) {
	f := newFertility(t)
	if err := f.SetScaleFactor(0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := f.SetConstantYear(1999); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := f.SetScaleMethod(ScaleToLifetimeTarget); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.Specification() != SpecReference || f.ScaleMethod() != ScaleNone {
		t.Fatalf("state changed after failed setters: %s %s", f.Specification(), f.ScaleMethod())
	}
}

func TestMortalityRejectsExogenous(t *testing.T) {
	f, err := NewMortalityForecast("Mortality", mustRange(t, 2020, 30))
	if err != nil {
		t.Fatalf("NewMortalityForecast: %v", err)
	}
	if err := f.SetDetermination(Exogenous); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
	if f.Specification() != SpecReference {
		t.Fatalf("rejected determination must not transition")
	}
}

func TestReferenceOnlyKinds(t *testing.T) {
	years := mustRange(t, 2020, 30)
	b, err := NewBirthForecast("Births", years)
	if err != nil {
		t.Fatalf("NewBirthForecast: %v", err)
	}
	n, err := NewNaturalizationForecast("Naturalization", years)
	if err != nil {
		t.Fatalf("NewNaturalizationForecast: %v", err)
	}
	for _, f := range []Forecast{b, n} {
		if err := f.SetSpecification(SpecScaling); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("%s: expected unsupported error, got %v", f.Kind(), err)
		}
		if err := f.SetDetermination(Exogenous); !errors.Is(err, ErrUnsupported) {
			t.Fatalf("%s: expected unsupported error, got %v", f.Kind(), err)
		}
		if err := f.SetSpecification(SpecReference); err != nil {
			t.Fatalf("%s: reference must be accepted: %v", f.Kind(), err)
		}
	}
}

func TestForecastValidate(t *testing.T) {
	f := newFertility(t)
	if err := f.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("reference without estimation must be invalid, got %v", err)
	}
	est := newEstimation(t, EstimateFertility, f.Years())
	if err := f.SetEstimation(est); err != nil {
		t.Fatalf("SetEstimation: %v", err)
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("valid reference forecast: %v", err)
	}

	short := newEstimation(t, EstimateFertility, mustRange(t, 2020, 10))
	if err := f.SetEstimation(short); err != nil {
		t.Fatalf("SetEstimation: %v", err)
	}
	if err := f.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("forecast beyond the estimated years must be invalid, got %v", err)
	}

	if err := f.SetConstantYear(2030); err != nil {
		t.Fatalf("SetConstantYear: %v", err)
	}
	if err := f.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("constant without reference projection must be invalid, got %v", err)
	}
	if err := f.SetReferenceID(3); err != nil {
		t.Fatalf("SetReferenceID: %v", err)
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("valid constant forecast: %v", err)
	}
	if err := f.SetScaleFactor(0.9); err != nil {
		t.Fatalf("SetScaleFactor: %v", err)
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("valid scaling forecast: %v", err)
	}
}

func TestBirthAssumptionToggleRestoresDefaults(t *testing.T) {
	b, err := NewBirthForecast("Births", mustRange(t, 2020, 30))
	if err != nil {
		t.Fatalf("NewBirthForecast: %v", err)
	}
	if b.BoyShare() != DefaultBoyShare || len(b.AssumedElements()) != 4 {
		t.Fatalf("every element starts assumed with boy share %v", DefaultBoyShare)
	}
	before := b.Source(BoyShare)
	if err := b.SetAssumed(BoyShare, false); err != nil {
		t.Fatalf("SetAssumed false: %v", err)
	}
	src := b.Source(BoyShare)
	input, derived := src.Input()
	if !derived || input.Start() != 2015 || input.End() != 2019 {
		t.Fatalf("expected default input 2015..2019, got %s derived=%v", input, derived)
	}
	if err := b.SetAssumed(BoyShare, true); err != nil {
		t.Fatalf("SetAssumed true: %v", err)
	}
	if b.Source(BoyShare) != before || b.BoyShare() != 0.513 {
		t.Fatalf("toggle twice should restore %v, got %v", before, b.Source(BoyShare))
	}
	if _, derived := b.Source(BoyShare).Input(); derived {
		t.Fatalf("assumed element must not keep an input")
	}
}

func TestBirthValidate(t *testing.T) {
	b, err := NewBirthForecast("Births", mustRange(t, 2020, 30))
	if err != nil {
		t.Fatalf("NewBirthForecast: %v", err)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("default birth forecast: %v", err)
	}
	if err := b.SetBoyShare(0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := b.SetInput(MotherAgeDistribution, mustRange(t, 2018, 5)); !errors.Is(err, ErrValidation) {
		t.Fatalf("input overlapping the forecast must be rejected, got %v", err)
	}
	if err := b.SetInput(MotherAgeDistribution, mustRange(t, 2010, 5)); err != nil {
		t.Fatalf("SetInput: %v", err)
	}
	if b.IsAssumed(MotherAgeDistribution) {
		t.Fatalf("SetInput should derive the element")
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestNaturalizationInput(t *testing.T) {
	n, err := NewNaturalizationForecast("Naturalization", mustRange(t, 2020, 30))
	if err != nil {
		t.Fatalf("NewNaturalizationForecast: %v", err)
	}
	if in := n.Input(); in.Start() != 2015 || in.End() != 2019 {
		t.Fatalf("unexpected default input %s", in)
	}
	if err := n.SetInput(mustRange(t, 1979, 5)); !errors.Is(err, ErrValidation) {
		t.Fatalf("input before 1981 must be rejected, got %v", err)
	}
	n.SetImpute(true)
	n.Reset()
	if n.Impute() {
		t.Fatalf("Reset must clear impute")
	}
	if err := n.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestEmigrationDefaultInput(t *testing.T) {
	e, err := NewEmigrationForecast("Emigration", mustRange(t, 2020, 30))
	if err != nil {
		t.Fatalf("NewEmigrationForecast: %v", err)
	}
	if in := e.Input(); in.Start() != 2017 || in.End() != 2019 {
		t.Fatalf("unexpected default input %s", in)
	}
}

func TestForecastDuplicateVersusSnapshot(t *testing.T) {
	f := newFertility(t)
	f.MarkSaved(Identity{ID: 5, Revision: 2})
	if !f.Saved() {
		t.Fatalf("MarkSaved should save the forecast")
	}
	dup := f.Duplicate()
	if dup.Entry().ID() != UnsavedID || dup.Entry().Action() != SaveInsert || dup.Saved() {
		t.Fatalf("duplicate must carry a new unsaved identity")
	}
	snap := f.SnapshotIdentical()
	if snap.Entry().ID() != 5 || !snap.Saved() || snap.Entry() == f.Entry() {
		t.Fatalf("snapshot must keep the identity in a distinct entry")
	}
}

func TestRestoreForecastRoundTrip(t *testing.T) {
	est := newEstimation(t, EstimateImmigration, mustRange(t, 2020, 30))
	est.MarkSaved(Identity{ID: 2})
	f, err := NewImmigrationForecast("Immigration", mustRange(t, 2020, 30))
	if err != nil {
		t.Fatalf("NewImmigrationForecast: %v", err)
	}
	if err := f.SetEstimation(est); err != nil {
		t.Fatalf("SetEstimation: %v", err)
	}
	doc := f.Document()
	if doc.EstimationID != 2 || doc.Input.Length != 3 {
		t.Fatalf("unexpected document %+v", doc)
	}
	back, err := RestoreForecast(EntryRecord{ID: 8, Class: KindImmigration.Class(), Title: "Immigration"}, doc, est)
	if err != nil {
		t.Fatalf("RestoreForecast: %v", err)
	}
	imm, ok := back.(*ImmigrationForecast)
	if !ok {
		t.Fatalf("expected *ImmigrationForecast, got %T", back)
	}
	if !imm.Saved() || imm.Estimation() != est || !imm.Input().Equal(f.Input()) {
		t.Fatalf("restored forecast differs")
	}
}

func TestEstimationOrigins(t *testing.T) {
	imm := newEstimation(t, EstimateImmigration, mustRange(t, 2020, 10))
	if imm.Origins() != OriginImmigrantsNonCitizens {
		t.Fatalf("unexpected default origins %d", imm.Origins())
	}
	if err := imm.SetOrigins(OriginCitizens); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
	if err := imm.SetOrigins(OriginImmigrantsNonCitizens); err != nil {
		t.Fatalf("default origins must be accepted: %v", err)
	}
	em := newEstimation(t, EstimateEmigration, mustRange(t, 2020, 10))
	if err := em.SetOrigins(OriginDescendantsCitizens); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestEstimationDefaultSample(t *testing.T) {
	fert := newEstimation(t, EstimateFertility, mustRange(t, 2020, 10))
	if s := fert.Sample(); s.Start() != 1980 || s.End() != 2019 {
		t.Fatalf("unexpected fertility sample %s", s)
	}
	mort := newEstimation(t, EstimateMortality, mustRange(t, 2020, 10))
	if s := mort.Sample(); s.Start() != 1990 || s.End() != 2019 {
		t.Fatalf("unexpected mortality sample %s", s)
	}
	if err := mort.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}
