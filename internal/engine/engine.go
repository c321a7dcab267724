// Package engine runs one reconciliation pass over every matched metric.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/catalog"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/metrics"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/monitoring"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/reconciler"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/stats"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/tracing"
	"github.com/tareqmamari/cloudwatch-stddev-alarms/internal/window"
)

// Options control the sampling window and limit computation.
type Options struct {
	Namespace  string
	MetricName string
	SampleDays int
	Period     int
	Multiplier int
}

// Summary describes what one run did.
type Summary struct {
	TraceID           string        `json:"trace_id"`
	Window            window.Window `json:"window"`
	MetricsMatched    int           `json:"metrics_matched"`
	MetricsSkipped    int           `json:"metrics_skipped"`
	MetricsDegenerate int           `json:"metrics_degenerate"`
	AlarmsPut         int           `json:"alarms_put"`
	AlarmsDeleted     int           `json:"alarms_deleted"`
	Duration          time.Duration `json:"duration"`
}

// Engine wires the planner, catalog, calculator and reconciler together.
type Engine struct {
	opts       Options
	catalog    *catalog.Catalog
	reconciler *reconciler.Reconciler
	metrics    *metrics.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// New creates an engine. m may be nil.
func New(opts Options, c *catalog.Catalog, r *reconciler.Reconciler, m *metrics.Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		opts:       opts,
		catalog:    c,
		reconciler: r,
		metrics:    m,
		logger:     logger.Named("engine"),
		now:        time.Now,
	}
}

// WithClock replaces the time source used to plan the window.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Run plans the window, lists the matching metrics and reconciles each one in turn. Metrics
// with no datapoints in the window are skipped. The first error aborts the run; the summary
// returned alongside it covers the metrics completed so far.
func (e *Engine) Run(ctx context.Context) (summary *Summary, err error) {
	start := time.Now()
	ctx = tracing.EnsureTraceContext(ctx)
	ctx, span := tracing.RunSpan(ctx, e.opts.Namespace, e.opts.MetricName)
	defer span.End()

	summary = &Summary{TraceID: tracing.FromContext(ctx).TraceID}
	logger := e.logger.With(zap.String("trace_id", summary.TraceID))

	defer func() {
		summary.Duration = time.Since(start)
		if e.metrics != nil {
			e.metrics.RecordRun(err == nil, time.Now(), summary.Duration)
		}
		if err != nil {
			tracing.RecordError(span, err)
			logger.Error("Run failed", zap.Error(err), zap.Duration("duration", summary.Duration))
			return
		}
		tracing.SetSuccess(span)
		logger.Info("Run complete",
			zap.Int("metrics_matched", summary.MetricsMatched),
			zap.Int("metrics_skipped", summary.MetricsSkipped),
			zap.Int("metrics_degenerate", summary.MetricsDegenerate),
			zap.Int("alarms_put", summary.AlarmsPut),
			zap.Int("alarms_deleted", summary.AlarmsDeleted),
			zap.Duration("duration", summary.Duration),
		)
	}()

	w, err := window.Plan(e.now(), e.opts.SampleDays, e.opts.Period)
	if err != nil {
		return summary, err
	}
	summary.Window = w
	logger.Info("Examining window",
		zap.Time("start", w.Start),
		zap.Time("end", w.End),
		zap.Duration("span", w.Duration()),
		zap.Int("period", w.Period),
	)

	matched, err := e.catalog.Metrics(ctx)
	if err != nil {
		return summary, err
	}
	summary.MetricsMatched = len(matched)

	for _, m := range matched {
		if err := e.processMetric(ctx, logger, m, w, summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

func (e *Engine) processMetric(ctx context.Context, logger *zap.Logger, m monitoring.Metric, w window.Window, summary *Summary) error {
	ctx, span := tracing.MetricSpan(ctx, m.Key())
	defer span.End()
	logger = logger.With(zap.String("metric", m.Key()))

	samples, err := e.catalog.Series(ctx, m, w)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if len(samples) == 0 {
		logger.Info("No datapoints in window, leaving alarms untouched")
		summary.MetricsSkipped++
		e.recordResult(metrics.ResultEmpty)
		return nil
	}

	result, err := stats.Compute(samples, e.opts.Multiplier)
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	tracing.SetThresholds(span, result.Mean, result.StdDev, result.High, result.Low)
	logger.Info("Computed control limits",
		zap.Int("samples", len(samples)),
		zap.Float64("mean", result.Mean),
		zap.Float64("stddev", result.StdDev),
		zap.Float64("high", result.High),
		zap.Float64("low", result.Low),
	)

	outcome, err := e.reconciler.Reconcile(ctx, m, w.Period, result)
	if outcome != nil {
		summary.AlarmsPut += len(outcome.Put)
		summary.AlarmsDeleted += len(outcome.Deleted)
	}
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}

	if result.Degenerate() {
		summary.MetricsDegenerate++
		e.recordResult(metrics.ResultDegenerate)
	} else {
		e.recordResult(metrics.ResultReconciled)
	}
	tracing.SetSuccess(span)
	return nil
}

func (e *Engine) recordResult(result string) {
	if e.metrics != nil {
		e.metrics.RecordMetricProcessed(result)
	}
}
