package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/logflow/pmdash/internal/model"
	"github.com/logflow/pmdash/pkg/aggregate"
	"github.com/logflow/pmdash/pkg/engine"
	"github.com/logflow/pmdash/pkg/eventlog"
	"github.com/logflow/pmdash/pkg/logger"
)

const roundTrip = "Case ID,Activity Name,Start Time,End Time\n" +
	"A,X,2024-01-01 00:00:00,2024-01-01 00:10:00\n" +
	"A,Y,2024-01-01 00:10:00,2024-01-01 00:20:00\n" +
	"B,X,2024-01-01 00:00:00,2024-01-01 00:05:00\n"

// countingEngine records how often Aggregate is called.
type countingEngine struct {
	engine.Native
	calls int
}

func (e *countingEngine) Aggregate(ctx context.Context, log *model.Log) (*aggregate.Views, error) {
	e.calls++
	return e.Native.Aggregate(ctx, log)
}

// counterRecorder keeps counter totals by name.
type counterRecorder struct {
	mu       sync.Mutex
	counters map[string]int64
}

func (r *counterRecorder) Counter(name string, v int64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counters == nil {
		r.counters = make(map[string]int64)
	}
	r.counters[name] += v
}
func (r *counterRecorder) Gauge(string, float64, map[string]string)       {}
func (r *counterRecorder) Histogram(string, float64, map[string]string)   {}
func (r *counterRecorder) Timer(string, time.Duration, map[string]string) {}

func quietLogger() *logger.Logger {
	return logger.New(&strings.Builder{}, logger.Off)
}

func TestRun_RoundTrip(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())
	counters := &counterRecorder{}

	a := New(WithTracer(tp.Tracer("test")), WithMetrics(counters), WithLogger(quietLogger()))
	b, err := a.Run(context.Background(), "log.csv", strings.NewReader(roundTrip), eventlog.DefaultOptions())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if b.ID == "" || b.Source != "log.csv" || b.Engine != engine.NameNative || b.Format != "csv" {
		t.Errorf("Unexpected bundle header: %+v", b)
	}
	if b.CaseDurations["A"] != 20 || b.CaseDurations["B"] != 5 {
		t.Errorf("Unexpected durations: %v", b.CaseDurations)
	}
	if !b.Average.Valid || b.Average.Value != 12.5 {
		t.Errorf("Unexpected average: %+v", b.Average)
	}
	if len(b.Transitions) != 1 || b.Transitions[0] != (aggregate.Transition{From: "X", To: "Y", Count: 1}) {
		t.Errorf("Unexpected transitions: %+v", b.Transitions)
	}
	if b.Log.Len() != 3 {
		t.Errorf("Expected 3 events, got %d", b.Log.Len())
	}

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	if strings.Join(names, ",") != SpanLoad+","+SpanAggregate {
		t.Errorf("Unexpected spans: %v", names)
	}
	if counters.counters["pmdash.loads.total"] != 1 || counters.counters["pmdash.rows.total"] != 3 {
		t.Errorf("Unexpected counters: %v", counters.counters)
	}
}

func TestRun_MissingColumnSkipsAggregation(t *testing.T) {
	eng := &countingEngine{}
	a := New(WithEngine(eng), WithLogger(quietLogger()))

	input := "Case ID,Activity Name,Start Time\nA,X,2024-01-01 00:00:00\n"
	b, err := a.Run(context.Background(), "bad.csv", strings.NewReader(input), eventlog.DefaultOptions())
	if b != nil {
		t.Error("Expected no bundle")
	}
	var mce *eventlog.MissingColumnsError
	if !errors.As(err, &mce) || mce.Missing[0] != eventlog.ColEndTime {
		t.Fatalf("Expected MissingColumnsError naming End Time, got %v", err)
	}
	if eng.calls != 0 {
		t.Errorf("Aggregate called %d times", eng.calls)
	}
}

func TestRun_Warnings(t *testing.T) {
	input := "Case ID,Activity Name,Start Time,End Time\nA,X,2024-01-01 10:00,2024-01-01 09:00\n"
	counters := &counterRecorder{}
	a := New(WithMetrics(counters), WithLogger(quietLogger()))

	b, err := a.Run(context.Background(), "neg.csv", strings.NewReader(input), eventlog.DefaultOptions())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(b.Warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %d", len(b.Warnings))
	}
	if b.CaseDurations["A"] != -60 {
		t.Errorf("Expected -60, got %v", b.CaseDurations["A"])
	}
	if counters.counters["pmdash.warnings.total"] != 1 {
		t.Errorf("Expected warning counter, got %v", counters.counters)
	}
}

func TestFromLog(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := New(WithLogger(quietLogger()))
	a.now = func() time.Time { return fixed }

	b, err := a.FromLog(context.Background(), "mem", model.NewLog(nil), nil)
	if err != nil {
		t.Fatalf("FromLog failed: %v", err)
	}
	if !b.LoadedAt.Equal(fixed) {
		t.Errorf("Expected %v, got %v", fixed, b.LoadedAt)
	}
	if b.Average.Valid {
		t.Error("Expected undefined average for empty log")
	}

	other, _ := a.FromLog(context.Background(), "mem", model.NewLog(nil), nil)
	if other.ID == b.ID {
		t.Error("Bundle ids should be unique")
	}
}
