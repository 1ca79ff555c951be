package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var expvarSeq atomic.Uint64

// opCounters aggregates one catalog operation. Durations are summed in
// microseconds so repeated millisecond observations add up exactly.
type opCounters struct {
	ok     atomic.Int64
	failed atomic.Int64
	micros atomic.Int64
}

// ExpvarMetricsRecorder publishes per-operation totals through expvar for
// deployments without a Prometheus scrape.
type ExpvarMetricsRecorder struct {
	name string
	ops  sync.Map // operation -> *opCounters
}

// ExpvarMetricsSnapshot is the published document.
type ExpvarMetricsSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarMetricsRecorder publishes a recorder under name, or under a
// generated popcatalog_catalog_metrics_<n> name when name is empty.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("popcatalog_catalog_metrics_%d", expvarSeq.Add(1))
	}
	rec := &ExpvarMetricsRecorder{name: name}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

func (r *ExpvarMetricsRecorder) Name() string { return r.name }

func (r *ExpvarMetricsRecorder) counters(operation string) *opCounters {
	if c, ok := r.ops.Load(operation); ok {
		return c.(*opCounters)
	}
	c, _ := r.ops.LoadOrStore(operation, &opCounters{})
	return c.(*opCounters)
}

// Observe implements MetricsRecorder. Unnamed operations are dropped.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	c := r.counters(operation)
	c.micros.Add(duration.Microseconds())
	if success {
		c.ok.Add(1)
	} else {
		c.failed.Add(1)
	}
}

// Snapshot copies the current totals.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	snap := ExpvarMetricsSnapshot{
		DurationsMS: make(map[string]float64),
		Results:     make(map[string]map[string]int64),
		RecordedAt:  time.Now().UTC(),
	}
	r.ops.Range(func(key, value any) bool {
		op, c := key.(string), value.(*opCounters)
		snap.DurationsMS[op] = float64(c.micros.Load()) / 1000
		snap.Results[op] = map[string]int64{"success": c.ok.Load(), "error": c.failed.Load()}
		return true
	})
	return snap
}

// JSONTraceEntry is one finished span as written by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string         `json:"operation"`
	Status     string         `json:"status"`
	Attributes map[string]any `json:"attributes,omitempty"`
	DurationMS float64        `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at"`
}

// JSONTraceTracer writes finished spans as JSON lines and keeps them in
// memory. It is meant for local debugging and tests; production tracing goes
// through OTelTracer.
type JSONTraceTracer struct {
	mu      sync.Mutex
	out     io.Writer
	entries []JSONTraceEntry
}

// NewJSONTracer returns a tracer writing to w. A nil w only retains entries.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	return &JSONTraceTracer{out: w}
}

// Entries returns the finished spans in completion order.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, entry: JSONTraceEntry{Operation: operation, StartedAt: time.Now().UTC()}}
}

func (t *JSONTraceTracer) finish(entry JSONTraceEntry) {
	var line []byte
	if t.out != nil {
		line, _ = json.Marshal(entry)
		line = append(line, '\n')
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	if line != nil {
		_, _ = t.out.Write(line)
	}
}

type jsonTraceSpan struct {
	tracer *JSONTraceTracer
	entry  JSONTraceEntry
}

func (s *jsonTraceSpan) SetAttribute(key string, value any) {
	if s.entry.Attributes == nil {
		s.entry.Attributes = make(map[string]any)
	}
	s.entry.Attributes[key] = value
}

func (s *jsonTraceSpan) End(err error) {
	s.entry.EndedAt = time.Now().UTC()
	s.entry.DurationMS = float64(s.entry.EndedAt.Sub(s.entry.StartedAt).Microseconds()) / 1000
	s.entry.Status = "success"
	if err != nil {
		s.entry.Status = "error"
		s.entry.Error = err.Error()
	}
	s.tracer.finish(s.entry)
}

