package core

import (
	"context"
	"testing"
	"time"

	"popcatalog/internal/infra/persistence/memory"
	"popcatalog/pkg/domain"
)

func mustYears(t *testing.T, start, length int) domain.YearRange {
	t.Helper()
	r, err := domain.NewYearRange(start, length)
	if err != nil {
		t.Fatalf("NewYearRange(%d, %d): %v", start, length, err)
	}
	return r
}

func mustEstimation(t *testing.T, kind domain.EstimationKind, years domain.YearRange) *domain.Estimation {
	t.Helper()
	e, err := domain.NewEstimation(kind, kind.String()+" estimation", years)
	if err != nil {
		t.Fatalf("NewEstimation(%s): %v", kind, err)
	}
	return e
}

// newProjectionGraph builds a valid, unsaved projection over 2020..2049 with
// all six forecasts and their four estimations.
func newProjectionGraph(t *testing.T, title string) *domain.Projection {
	t.Helper()
	years := mustYears(t, 2020, 30)
	p, err := domain.NewProjection(title, years)
	if err != nil {
		t.Fatalf("NewProjection: %v", err)
	}
	birth, err := domain.NewBirthForecast(title+" births", years)
	if err != nil {
		t.Fatalf("NewBirthForecast: %v", err)
	}
	fert, err := domain.NewFertilityForecast(title+" fertility", years)
	if err != nil {
		t.Fatalf("NewFertilityForecast: %v", err)
	}
	if err := fert.SetEstimation(mustEstimation(t, domain.EstimateFertility, years)); err != nil {
		t.Fatalf("SetEstimation: %v", err)
	}
	mort, err := domain.NewMortalityForecast(title+" mortality", years)
	if err != nil {
		t.Fatalf("NewMortalityForecast: %v", err)
	}
	if err := mort.SetEstimation(mustEstimation(t, domain.EstimateMortality, years)); err != nil {
		t.Fatalf("SetEstimation: %v", err)
	}
	emig, err := domain.NewEmigrationForecast(title+" emigration", years)
	if err != nil {
		t.Fatalf("NewEmigrationForecast: %v", err)
	}
	if err := emig.SetEstimation(mustEstimation(t, domain.EstimateEmigration, years)); err != nil {
		t.Fatalf("SetEstimation: %v", err)
	}
	imm, err := domain.NewImmigrationForecast(title+" immigration", years)
	if err != nil {
		t.Fatalf("NewImmigrationForecast: %v", err)
	}
	if err := imm.SetEstimation(mustEstimation(t, domain.EstimateImmigration, years)); err != nil {
		t.Fatalf("SetEstimation: %v", err)
	}
	nat, err := domain.NewNaturalizationForecast(title+" naturalization", years)
	if err != nil {
		t.Fatalf("NewNaturalizationForecast: %v", err)
	}
	for _, f := range []domain.Forecast{birth, fert, mort, emig, imm, nat} {
		if err := p.SetForecast(f); err != nil {
			t.Fatalf("SetForecast(%s): %v", f.Kind(), err)
		}
	}
	return p
}

// saveGraph saves every estimation, then every forecast, then p.
func saveGraph(t *testing.T, c *Catalog, p *domain.Projection) {
	t.Helper()
	ctx := context.Background()
	for _, f := range p.Forecasts() {
		if est := f.Estimation(); est != nil {
			if err := c.SaveEstimation(ctx, est, false); err != nil {
				t.Fatalf("SaveEstimation(%s): %v", est.Kind(), err)
			}
		}
	}
	for _, f := range p.Forecasts() {
		if err := c.SaveForecast(ctx, f, false); err != nil {
			t.Fatalf("SaveForecast(%s): %v", f.Kind(), err)
		}
	}
	if err := c.SaveProjection(ctx, p, false); err != nil {
		t.Fatalf("SaveProjection: %v", err)
	}
}

func newMemoryCatalog(opts ...Option) *Catalog {
	return NewCatalog(memory.NewStore(), opts...)
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

func (c *captureMetricsRecorder) count(op string) int {
	n := 0
	for _, call := range c.calls {
		if call.op == op {
			n++
		}
	}
	return n
}

type logRecord struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	records []logRecord
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.records = append(l.records, logRecord{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) has(level, msg string) bool {
	for _, r := range l.records {
		if r.level == level && r.msg == msg {
			return true
		}
	}
	return false
}
