// Package analysis runs the load and aggregate pipeline and packages the
// results into a Bundle.
package analysis

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/logflow/pmdash/internal/model"
	"github.com/logflow/pmdash/pkg/aggregate"
	"github.com/logflow/pmdash/pkg/engine"
	lferrors "github.com/logflow/pmdash/pkg/errors"
	"github.com/logflow/pmdash/pkg/eventlog"
	"github.com/logflow/pmdash/pkg/logger"
	"github.com/logflow/pmdash/pkg/metrics"
	"github.com/logflow/pmdash/pkg/telemetry"
)

// Span names.
const (
	SpanLoad      = "eventlog.load"
	SpanAggregate = "aggregate.views"
)

// Bundle is a validated log with every view computed from it. A bundle
// is never modified after it is returned.
type Bundle struct {
	ID       string    `json:"id"`
	Source   string    `json:"source"`
	LoadedAt time.Time `json:"loaded_at"`
	Engine   string    `json:"engine"`
	Format   string    `json:"format"`

	Log      *model.Log         `json:"-"`
	Warnings []eventlog.Warning `json:"-"`

	aggregate.Views
}

// Analyzer runs the pipeline with one engine.
type Analyzer struct {
	engine  engine.Engine
	metrics metrics.Recorder
	tracer  trace.Tracer
	log     *logger.Logger
	now     func() time.Time
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithEngine sets the aggregation engine. The default is native.
func WithEngine(e engine.Engine) Option {
	return func(a *Analyzer) { a.engine = e }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(a *Analyzer) { a.metrics = r }
}

// WithTracer sets the tracer. The default uses the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(a *Analyzer) { a.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(a *Analyzer) { a.log = l }
}

// New creates an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		engine:  engine.NewNative(),
		metrics: metrics.NewNoop(),
		tracer:  telemetry.Tracer(),
		log:     logger.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Engine returns the aggregation engine.
func (a *Analyzer) Engine() engine.Engine {
	return a.engine
}

// Run loads the log from r and aggregates it. A load failure is returned
// as is and nothing is aggregated.
func (a *Analyzer) Run(ctx context.Context, source string, r io.Reader, opts eventlog.Options) (*Bundle, error) {
	res, err := a.load(ctx, source, r, opts)
	if err != nil {
		return nil, err
	}
	b, err := a.FromLog(ctx, source, res.Log, res.Warnings)
	if err != nil {
		return nil, err
	}
	b.Format = res.Format.String()
	return b, nil
}

func (a *Analyzer) load(ctx context.Context, source string, r io.Reader, opts eventlog.Options) (*eventlog.Result, error) {
	ctx, span := a.tracer.Start(ctx, SpanLoad, trace.WithAttributes(attribute.String("source", source)))
	start := time.Now()

	res, err := eventlog.Load(ctx, r, opts)
	a.metrics.Timer(metrics.MetricPhaseDuration, time.Since(start), map[string]string{metrics.TagPhase: "load"})

	if err != nil {
		a.metrics.Counter(metrics.MetricLoadsTotal, 1, map[string]string{
			metrics.TagStatus: "error",
			metrics.TagCode:   string(lferrors.GetCode(err)),
		})
		a.log.Errorf("load %s: %v", source, err)
		telemetry.EndSpan(span, err)
		return nil, err
	}

	a.metrics.Counter(metrics.MetricLoadsTotal, 1, map[string]string{
		metrics.TagStatus: "ok",
		metrics.TagCode:   "",
	})
	a.metrics.Counter(metrics.MetricRowsTotal, int64(res.Log.Len()), map[string]string{
		metrics.TagFormat: res.Format.String(),
	})
	for _, w := range res.Warnings {
		a.metrics.Counter(metrics.MetricWarningsTotal, 1, map[string]string{
			metrics.TagCode: string(w.Code()),
		})
		a.log.Warnf("%s: %v", source, w)
	}

	span.SetAttributes(
		attribute.Int("rows", res.Log.Len()),
		attribute.String("format", res.Format.String()),
		attribute.Int("warnings", len(res.Warnings)),
	)
	telemetry.EndSpan(span, nil)
	a.log.Debugf("loaded %s: %d rows (%s)", source, res.Log.Len(), res.Format)
	return res, nil
}

// FromLog aggregates an already validated log.
func (a *Analyzer) FromLog(ctx context.Context, source string, log *model.Log, warnings []eventlog.Warning) (*Bundle, error) {
	ctx, span := a.tracer.Start(ctx, SpanAggregate, trace.WithAttributes(
		attribute.String("engine", a.engine.Name()),
		attribute.Int("rows", log.Len()),
	))
	start := time.Now()

	views, err := a.engine.Aggregate(ctx, log)
	a.metrics.Timer(metrics.MetricPhaseDuration, time.Since(start), map[string]string{metrics.TagPhase: "aggregate"})
	if err != nil {
		telemetry.EndSpan(span, err)
		return nil, err
	}
	telemetry.EndSpan(span, nil)
	a.metrics.Gauge(metrics.MetricCasesLoaded, float64(views.Summary.Cases), nil)

	return &Bundle{
		ID:       uuid.NewString(),
		Source:   source,
		LoadedAt: a.now().UTC(),
		Engine:   a.engine.Name(),
		Log:      log,
		Warnings: warnings,
		Views:    *views,
	}, nil
}
